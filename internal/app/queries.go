package app

import (
	"context"

	"mathquest-service/internal/domain"
)

// ListLessons returns all lessons with their problems. Callers serving these
// to clients must strip the answer keys (see the transport views).
func (s *Service) ListLessons(ctx context.Context) ([]domain.Lesson, error) {
	return s.content.ListLessons(ctx)
}

// GetLesson returns one lesson with its problems and answer keys.
func (s *Service) GetLesson(ctx context.Context, lessonID int64) (domain.Lesson, error) {
	return s.content.GetLesson(ctx, lessonID)
}

// Profile returns the user's XP and streak state.
func (s *Service) Profile(ctx context.Context, userID int64) (domain.User, error) {
	return s.ledger.GetUser(ctx, userID)
}

// LessonProgress recomputes the solved fraction for one user and lesson.
func (s *Service) LessonProgress(ctx context.Context, userID, lessonID int64) (float64, error) {
	lesson, err := s.content.GetLesson(ctx, lessonID)
	if err != nil {
		return 0, err
	}
	solved, err := s.ledger.SolvedCount(ctx, userID, lesson.ProblemIDs())
	if err != nil {
		return 0, err
	}
	return lessonProgress(solved, len(lesson.Problems)), nil
}
