package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Seed inserts the demo user and three demo lessons. Safe to run repeatedly:
// the user upserts by id and lessons already present (by title) are skipped.
func Seed(ctx context.Context, pool *pgxpool.Pool, demoUserID int64) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO users (id, username) VALUES ($1, 'demo_user')
		ON CONFLICT (id) DO NOTHING`, demoUserID); err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`SELECT setval(pg_get_serial_sequence('users','id'), (SELECT MAX(id) FROM users))`); err != nil {
		return fmt.Errorf("bump users sequence: %w", err)
	}

	if err := seedChoiceLesson(ctx, tx, "Basic Arithmetic", []choiceProblem{
		{"What is 2 + 3?", []string{"4", "5", "6"}, 1},
		{"What is 7 - 2?", []string{"4", "5"}, 1},
		{"What is 10 + 0?", []string{"10", "0"}, 0},
	}); err != nil {
		return err
	}
	if err := seedChoiceLesson(ctx, tx, "Multiplication Mastery", []choiceProblem{
		{"3 x 4 = ?", []string{"12", "7"}, 0},
		{"6 x 6 = ?", []string{"36", "42"}, 0},
		{"5 x 0 = ?", []string{"0", "5"}, 0},
	}); err != nil {
		return err
	}
	if err := seedNumericLesson(ctx, tx, "Division Basics", []numericProblem{
		{"What is 10 / 2?", 5.0},
		{"What is 9 / 3?", 3.0},
		{"What is 8 / 2?", 4.0},
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type choiceProblem struct {
	question   string
	options    []string
	correctIdx int
}

type numericProblem struct {
	question string
	value    float64
}

func seedChoiceLesson(ctx context.Context, tx pgx.Tx, title string, problems []choiceProblem) error {
	lessonID, created, err := ensureLesson(ctx, tx, title)
	if err != nil || !created {
		return err
	}
	for _, p := range problems {
		var problemID int64
		if err := tx.QueryRow(ctx,
			`INSERT INTO problems (lesson_id, question_text) VALUES ($1, $2) RETURNING id`,
			lessonID, p.question).Scan(&problemID); err != nil {
			return fmt.Errorf("seed problem: %w", err)
		}
		var correctOptionID int64
		for i, text := range p.options {
			var optionID int64
			if err := tx.QueryRow(ctx,
				`INSERT INTO problem_options (problem_id, text) VALUES ($1, $2) RETURNING id`,
				problemID, text).Scan(&optionID); err != nil {
				return fmt.Errorf("seed option: %w", err)
			}
			if i == p.correctIdx {
				correctOptionID = optionID
			}
		}
		if _, err := tx.Exec(ctx,
			`UPDATE problems SET correct_option_id=$2 WHERE id=$1`, problemID, correctOptionID); err != nil {
			return fmt.Errorf("set correct option: %w", err)
		}
	}
	return nil
}

func seedNumericLesson(ctx context.Context, tx pgx.Tx, title string, problems []numericProblem) error {
	lessonID, created, err := ensureLesson(ctx, tx, title)
	if err != nil || !created {
		return err
	}
	for _, p := range problems {
		if _, err := tx.Exec(ctx,
			`INSERT INTO problems (lesson_id, question_text, correct_value) VALUES ($1, $2, $3)`,
			lessonID, p.question, p.value); err != nil {
			return fmt.Errorf("seed numeric problem: %w", err)
		}
	}
	return nil
}

func ensureLesson(ctx context.Context, tx pgx.Tx, title string) (int64, bool, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM lessons WHERE title=$1`, title).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != pgx.ErrNoRows {
		return 0, false, fmt.Errorf("lookup lesson: %w", err)
	}
	if err := tx.QueryRow(ctx,
		`INSERT INTO lessons (title) VALUES ($1) RETURNING id`, title).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("seed lesson: %w", err)
	}
	return id, true, nil
}
