package app

import (
	"context"

	"mathquest-service/internal/domain"
)

// SubmitRequest is one attempt at a lesson: a client-generated attempt id and
// a non-empty batch of answers.
type SubmitRequest struct {
	UserID    int64
	LessonID  int64
	AttemptID string
	Answers   []domain.AnswerItem
}

// SubmitOutcome is what the caller sees for both fresh and replayed attempts.
type SubmitOutcome struct {
	CorrectCount   int     `json:"correct_count"`
	EarnedXP       int     `json:"earned_xp"`
	NewTotalXP     int     `json:"new_total_xp"`
	Streak         Streak  `json:"streak"`
	LessonProgress float64 `json:"lesson_progress"`
	Duplicate      bool    `json:"duplicate"`
}

// Streak is the current/best pair reported to clients.
type Streak struct {
	Current int `json:"current"`
	Best    int `json:"best"`
}

// Submit evaluates a batch of answers idempotently.
//
// A previously seen attempt id replays the stored correct_count/earned_xp
// against the user's current totals without touching any state. Otherwise the
// evaluation, the streak/XP update and the stored outcome commit as one
// atomic unit under the user's ledger lock; an invalid problem id discovered
// mid-batch rolls everything back.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (SubmitOutcome, error) {
	if req.AttemptID == "" {
		return SubmitOutcome{}, domain.Validationf("attempt_id is required")
	}
	if len(req.Answers) == 0 {
		return SubmitOutcome{}, domain.Validationf("answers must be non-empty")
	}

	lesson, err := s.content.GetLesson(ctx, req.LessonID)
	if err != nil {
		return SubmitOutcome{}, err
	}

	// Fast path: a processed attempt replays without locking anything.
	if prev, ok, err := s.ledger.FindResult(ctx, req.AttemptID); err != nil {
		return SubmitOutcome{}, err
	} else if ok {
		return s.replay(ctx, prev, req.UserID, lesson)
	}

	var outcome SubmitOutcome
	err = s.ledger.WithUserLock(ctx, req.UserID, func(ctx context.Context, tx LedgerTx) error {
		// Re-check under the lock: another request may have committed this
		// attempt between the unlocked lookup and lock acquisition.
		if prev, ok, err := tx.FindResult(ctx, req.AttemptID); err != nil {
			return err
		} else if ok {
			replayed, err := s.replayLocked(ctx, tx, prev, lesson)
			if err != nil {
				return err
			}
			outcome = replayed
			return nil
		}

		user, err := tx.User(ctx)
		if err != nil {
			return err
		}

		correctCount, earnedXP, details, err := evaluate(ctx, tx, lesson, req.Answers)
		if err != nil {
			return err
		}

		upd := user.Advance(earnedXP, domain.DateOf(s.now()))
		if err := tx.SaveUser(ctx, user); err != nil {
			return err
		}

		if err := tx.InsertResult(ctx, domain.SubmissionResult{
			AttemptID:    req.AttemptID,
			UserID:       req.UserID,
			LessonID:     lesson.ID,
			CorrectCount: correctCount,
			EarnedXP:     earnedXP,
			Details:      details,
			CreatedAt:    s.now(),
		}); err != nil {
			return err
		}

		solved, err := tx.SolvedCount(ctx, lesson.ProblemIDs())
		if err != nil {
			return err
		}

		outcome = SubmitOutcome{
			CorrectCount:   correctCount,
			EarnedXP:       earnedXP,
			NewTotalXP:     upd.TotalXP,
			Streak:         Streak{Current: upd.Current, Best: upd.Best},
			LessonProgress: lessonProgress(solved, len(lesson.Problems)),
		}
		return nil
	})
	if err != nil {
		return SubmitOutcome{}, err
	}

	if s.hub != nil && !outcome.Duplicate {
		s.hub.Publish(ProgressUpdate{
			UserID:         req.UserID,
			TotalXP:        outcome.NewTotalXP,
			CurrentStreak:  outcome.Streak.Current,
			BestStreak:     outcome.Streak.Best,
			LessonID:       lesson.ID,
			LessonProgress: outcome.LessonProgress,
			EarnedXP:       outcome.EarnedXP,
		})
	}
	return outcome, nil
}

// evaluate grades each answer in order and applies progress transitions.
// XP is granted only when MarkSolved reports a first solve, so resubmitting
// an already-solved problem (same batch or a later attempt) never re-awards.
func evaluate(ctx context.Context, tx LedgerTx, lesson domain.Lesson, answers []domain.AnswerItem) (correctCount, earnedXP int, details map[int64]bool, err error) {
	details = make(map[int64]bool, len(answers))
	for _, item := range answers {
		problem, ok := lesson.ProblemByID(item.ProblemID)
		if !ok {
			return 0, 0, nil, domain.InvalidProblemError{ProblemID: item.ProblemID}
		}
		if item.OptionID == nil && item.Value == nil {
			return 0, 0, nil, domain.Validationf("answer for problem %d has neither option_id nor value", item.ProblemID)
		}

		correct := problem.Grade(item)
		// Last write wins when the same problem appears twice in one batch.
		details[item.ProblemID] = correct

		if !correct {
			continue
		}
		correctCount++
		transitioned, err := tx.MarkSolved(ctx, problem.ID)
		if err != nil {
			return 0, 0, nil, err
		}
		if transitioned {
			earnedXP += domain.XPPerCorrect
		}
	}
	return correctCount, earnedXP, details, nil
}

// replay builds a duplicate response from the stored outcome and the user's
// current (not historical) totals plus freshly computed lesson progress.
func (s *Service) replay(ctx context.Context, prev domain.SubmissionResult, userID int64, lesson domain.Lesson) (SubmitOutcome, error) {
	user, err := s.ledger.GetUser(ctx, userID)
	if err != nil {
		return SubmitOutcome{}, err
	}
	solved, err := s.ledger.SolvedCount(ctx, userID, lesson.ProblemIDs())
	if err != nil {
		return SubmitOutcome{}, err
	}
	return duplicateOutcome(prev, user, solved, len(lesson.Problems)), nil
}

func (s *Service) replayLocked(ctx context.Context, tx LedgerTx, prev domain.SubmissionResult, lesson domain.Lesson) (SubmitOutcome, error) {
	user, err := tx.User(ctx)
	if err != nil {
		return SubmitOutcome{}, err
	}
	solved, err := tx.SolvedCount(ctx, lesson.ProblemIDs())
	if err != nil {
		return SubmitOutcome{}, err
	}
	return duplicateOutcome(prev, user, solved, len(lesson.Problems)), nil
}

func duplicateOutcome(prev domain.SubmissionResult, user domain.User, solved, total int) SubmitOutcome {
	return SubmitOutcome{
		CorrectCount:   prev.CorrectCount,
		EarnedXP:       prev.EarnedXP,
		NewTotalXP:     user.TotalXP,
		Streak:         Streak{Current: user.CurrentStreak, Best: user.BestStreak},
		LessonProgress: lessonProgress(solved, total),
		Duplicate:      true,
	}
}
