package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mathquest-service/internal/domain"
)

// ContentLoader reads lesson content from the normalized Postgres schema.
type ContentLoader struct {
	pool *pgxpool.Pool
}

func NewContentLoader(pool *pgxpool.Pool) *ContentLoader {
	return &ContentLoader{pool: pool}
}

func (l *ContentLoader) LoadLesson(ctx context.Context, lessonID int64) (domain.Lesson, error) {
	lesson := domain.Lesson{ID: lessonID}
	err := l.pool.QueryRow(ctx, `SELECT title FROM lessons WHERE id=$1`, lessonID).Scan(&lesson.Title)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("load lesson: %w", err)
	}

	problems, err := l.loadProblems(ctx, []int64{lessonID})
	if err != nil {
		return domain.Lesson{}, err
	}
	lesson.Problems = problems[lessonID]
	return lesson, nil
}

func (l *ContentLoader) LoadLessons(ctx context.Context) ([]domain.Lesson, error) {
	rows, err := l.pool.Query(ctx, `SELECT id, title FROM lessons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	defer rows.Close()

	var lessons []domain.Lesson
	var ids []int64
	for rows.Next() {
		var lesson domain.Lesson
		if err := rows.Scan(&lesson.ID, &lesson.Title); err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		lessons = append(lessons, lesson)
		ids = append(ids, lesson.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	problems, err := l.loadProblems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range lessons {
		lessons[i].Problems = problems[lessons[i].ID]
	}
	return lessons, nil
}

// loadProblems fetches problems and their options for the given lessons and
// groups them by lesson id.
func (l *ContentLoader) loadProblems(ctx context.Context, lessonIDs []int64) (map[int64][]domain.Problem, error) {
	grouped := make(map[int64][]domain.Problem, len(lessonIDs))
	if len(lessonIDs) == 0 {
		return grouped, nil
	}

	rows, err := l.pool.Query(ctx, `
		SELECT id, lesson_id, question_text, correct_option_id, correct_value
		FROM problems WHERE lesson_id = ANY($1) ORDER BY id`, lessonIDs)
	if err != nil {
		return nil, fmt.Errorf("load problems: %w", err)
	}
	defer rows.Close()

	var problems []*domain.Problem
	byProblem := make(map[int64]*domain.Problem)
	problemLesson := make(map[int64]int64)
	var problemIDs []int64
	for rows.Next() {
		p := &domain.Problem{}
		var lessonID int64
		var correctOptionID *int64
		var correctValue *float64
		if err := rows.Scan(&p.ID, &lessonID, &p.Question, &correctOptionID, &correctValue); err != nil {
			return nil, fmt.Errorf("scan problem: %w", err)
		}
		switch {
		case correctOptionID != nil:
			p.Key = domain.ChoiceKey{OptionID: *correctOptionID}
		case correctValue != nil:
			p.Key = domain.NumericKey{Value: *correctValue}
		}
		problems = append(problems, p)
		byProblem[p.ID] = p
		problemLesson[p.ID] = lessonID
		problemIDs = append(problemIDs, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(problemIDs) == 0 {
		return grouped, nil
	}

	optRows, err := l.pool.Query(ctx, `
		SELECT id, problem_id, text FROM problem_options
		WHERE problem_id = ANY($1) ORDER BY id`, problemIDs)
	if err != nil {
		return nil, fmt.Errorf("load options: %w", err)
	}
	defer optRows.Close()

	for optRows.Next() {
		var opt domain.ProblemOption
		var problemID int64
		if err := optRows.Scan(&opt.ID, &problemID, &opt.Text); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		if p, ok := byProblem[problemID]; ok {
			p.Options = append(p.Options, opt)
		}
	}
	if err := optRows.Err(); err != nil {
		return nil, err
	}

	for _, p := range problems {
		lessonID := problemLesson[p.ID]
		grouped[lessonID] = append(grouped[lessonID], *p)
	}
	return grouped, nil
}
