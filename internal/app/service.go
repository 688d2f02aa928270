package app

import (
	"context"
	"math"
	"time"

	"mathquest-service/internal/domain"
)

// ContentRepository loads lesson content, answer keys included (from
// cache/backing store). Implementations must treat lessons as immutable.
type ContentRepository interface {
	GetLesson(ctx context.Context, lessonID int64) (domain.Lesson, error)
	ListLessons(ctx context.Context) ([]domain.Lesson, error)
}

// Ledger abstracts the durable scoring state: users, per-problem progress and
// stored attempt outcomes. Reads outside WithUserLock see committed state only.
type Ledger interface {
	// FindResult looks up a stored attempt outcome without taking any lock.
	FindResult(ctx context.Context, attemptID string) (domain.SubmissionResult, bool, error)
	GetUser(ctx context.Context, userID int64) (domain.User, error)
	// SolvedCount counts how many of the given problems the user has solved.
	SolvedCount(ctx context.Context, userID int64, problemIDs []int64) (int, error)
	// WithUserLock runs fn holding an exclusive lock on the user's ledger row.
	// Every mutation fn performs commits atomically when fn returns nil and is
	// rolled back in full when it returns an error.
	WithUserLock(ctx context.Context, userID int64, fn func(ctx context.Context, tx LedgerTx) error) error
}

// LedgerTx is the mutation surface available under a user lock. All methods
// are scoped to the locked user.
type LedgerTx interface {
	FindResult(ctx context.Context, attemptID string) (domain.SubmissionResult, bool, error)
	// User returns the row as of lock acquisition.
	User(ctx context.Context) (domain.User, error)
	// MarkSolved records the problem as solved and reports whether this was
	// the first time: true exactly when no progress row existed or the
	// existing row was still unsolved.
	MarkSolved(ctx context.Context, problemID int64) (bool, error)
	SaveUser(ctx context.Context, user domain.User) error
	InsertResult(ctx context.Context, result domain.SubmissionResult) error
	SolvedCount(ctx context.Context, problemIDs []int64) (int, error)
}

// Service contains the submission engine and the read-side use cases.
type Service struct {
	content ContentRepository
	ledger  Ledger
	hub     *ProgressHub
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock injects a deterministic clock; streak tests depend on it.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHub wires a hub that receives a ProgressUpdate after each accepted
// (non-duplicate) submission.
func WithHub(hub *ProgressHub) Option {
	return func(s *Service) { s.hub = hub }
}

func NewService(content ContentRepository, ledger Ledger, opts ...Option) *Service {
	s := &Service{content: content, ledger: ledger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lessonProgress is the fraction of a lesson's problems the user has ever
// solved, clamped to [0,1] and rounded to 3 decimals. Empty lessons are 0.0.
func lessonProgress(solved, total int) float64 {
	if total == 0 {
		return 0.0
	}
	p := float64(solved) / float64(total)
	if p > 1 {
		p = 1
	}
	return math.Round(p*1000) / 1000
}
