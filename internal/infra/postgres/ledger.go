package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"mathquest-service/internal/app"
	"mathquest-service/internal/domain"
)

// Ledger is the Postgres implementation of app.Ledger. Per-user serialization
// uses SELECT ... FOR UPDATE on the user's row; the evaluate + streak update +
// result insert all ride the same transaction, so a mid-batch failure (an
// invalid problem id, say) rolls every effect back.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

const userColumns = `id, username, total_xp, current_streak, best_streak, last_activity_date`

const resultColumns = `attempt_id, user_id, lesson_id, correct_count, earned_xp, details, created_at`

func (l *Ledger) FindResult(ctx context.Context, attemptID string) (domain.SubmissionResult, bool, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+resultColumns+` FROM submission_results WHERE attempt_id=$1`, attemptID)
	return scanResult(row)
}

func (l *Ledger) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	return scanUser(row)
}

func (l *Ledger) SolvedCount(ctx context.Context, userID int64, problemIDs []int64) (int, error) {
	return solvedCount(ctx, l.pool, userID, problemIDs)
}

func (l *Ledger) WithUserLock(ctx context.Context, userID int64, fn func(ctx context.Context, tx app.LedgerTx) error) error {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1 FOR UPDATE`, userID)
	user, err := scanUser(row)
	if err != nil {
		return err
	}

	if err := fn(ctx, &ledgerTx{tx: tx, user: user}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type ledgerTx struct {
	tx   pgx.Tx
	user domain.User
}

func (t *ledgerTx) FindResult(ctx context.Context, attemptID string) (domain.SubmissionResult, bool, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+resultColumns+` FROM submission_results WHERE attempt_id=$1`, attemptID)
	return scanResult(row)
}

func (t *ledgerTx) User(_ context.Context) (domain.User, error) {
	return t.user, nil
}

func (t *ledgerTx) SaveUser(ctx context.Context, user domain.User) error {
	var lastActivity *time.Time
	if user.LastActivity != nil {
		d := user.LastActivity.Time()
		lastActivity = &d
	}
	_, err := t.tx.Exec(ctx,
		`UPDATE users SET total_xp=$2, current_streak=$3, best_streak=$4, last_activity_date=$5 WHERE id=$1`,
		user.ID, user.TotalXP, user.CurrentStreak, user.BestStreak, lastActivity)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	t.user = user
	return nil
}

// MarkSolved is the atomic "insert if absent, report whether inserted"
// primitive: the conditional upsert touches a row only when it is new or
// still unsolved, so RowsAffected tells us whether a transition happened.
func (t *ledgerTx) MarkSolved(ctx context.Context, problemID int64) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO problem_progress (user_id, problem_id, solved_correctly, solved_at)
		VALUES ($1, $2, TRUE, now())
		ON CONFLICT (user_id, problem_id) DO UPDATE
		SET solved_correctly = TRUE, solved_at = now()
		WHERE problem_progress.solved_correctly = FALSE`,
		t.user.ID, problemID)
	if err != nil {
		return false, fmt.Errorf("mark solved: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *ledgerTx) InsertResult(ctx context.Context, result domain.SubmissionResult) error {
	details, err := json.Marshal(result.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO submission_results (attempt_id, user_id, lesson_id, correct_count, earned_xp, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)`,
		result.AttemptID, result.UserID, result.LessonID,
		result.CorrectCount, result.EarnedXP, string(details), result.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (t *ledgerTx) SolvedCount(ctx context.Context, problemIDs []int64) (int, error) {
	return solvedCount(ctx, t.tx, t.user.ID, problemIDs)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func solvedCount(ctx context.Context, q queryRower, userID int64, problemIDs []int64) (int, error) {
	if len(problemIDs) == 0 {
		return 0, nil
	}
	var count int
	err := q.QueryRow(ctx, `
		SELECT COUNT(*) FROM problem_progress
		WHERE user_id=$1 AND solved_correctly AND problem_id = ANY($2)`,
		userID, problemIDs).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("solved count: %w", err)
	}
	return count, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	var lastActivity *time.Time
	err := row.Scan(&user.ID, &user.Username, &user.TotalXP, &user.CurrentStreak, &user.BestStreak, &lastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	if lastActivity != nil {
		d := domain.DateOf(*lastActivity)
		user.LastActivity = &d
	}
	return user, nil
}

func scanResult(row pgx.Row) (domain.SubmissionResult, bool, error) {
	var res domain.SubmissionResult
	var details []byte
	err := row.Scan(&res.AttemptID, &res.UserID, &res.LessonID, &res.CorrectCount, &res.EarnedXP, &details, &res.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SubmissionResult{}, false, nil
	}
	if err != nil {
		return domain.SubmissionResult{}, false, fmt.Errorf("scan result: %w", err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &res.Details); err != nil {
			return domain.SubmissionResult{}, false, fmt.Errorf("unmarshal details: %w", err)
		}
	}
	return res, true, nil
}
