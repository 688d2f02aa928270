package memory

import (
	"context"
	"sync"
	"time"

	"mathquest-service/internal/app"
	"mathquest-service/internal/domain"
)

type progressKey struct {
	userID    int64
	problemID int64
}

// Ledger is an in-memory implementation of app.Ledger, used by tests and by
// the server when no Postgres URL is configured. Mutations inside a user lock
// are staged and only applied when the callback succeeds, so a failed
// evaluation leaves no partial XP or progress behind.
type Ledger struct {
	mu       sync.Mutex
	users    map[int64]domain.User
	progress map[progressKey]domain.ProblemProgress
	results  map[string]domain.SubmissionResult
	locks    map[int64]*sync.Mutex
}

func NewLedger(users ...domain.User) *Ledger {
	l := &Ledger{
		users:    make(map[int64]domain.User),
		progress: make(map[progressKey]domain.ProblemProgress),
		results:  make(map[string]domain.SubmissionResult),
		locks:    make(map[int64]*sync.Mutex),
	}
	for _, u := range users {
		l.users[u.ID] = u
	}
	return l
}

func (l *Ledger) FindResult(_ context.Context, attemptID string) (domain.SubmissionResult, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	res, ok := l.results[attemptID]
	return res, ok, nil
}

func (l *Ledger) GetUser(_ context.Context, userID int64) (domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	user, ok := l.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (l *Ledger) SolvedCount(_ context.Context, userID int64, problemIDs []int64) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.solvedCountLocked(userID, problemIDs, nil), nil
}

func (l *Ledger) solvedCountLocked(userID int64, problemIDs []int64, staged map[int64]time.Time) int {
	count := 0
	for _, pid := range problemIDs {
		if row, ok := l.progress[progressKey{userID, pid}]; ok && row.Solved {
			count++
			continue
		}
		if _, ok := staged[pid]; ok {
			count++
		}
	}
	return count
}

// WithUserLock serializes callbacks per user and commits staged mutations
// only when fn returns nil.
func (l *Ledger) WithUserLock(ctx context.Context, userID int64, fn func(ctx context.Context, tx app.LedgerTx) error) error {
	userMu := l.userLock(userID)
	userMu.Lock()
	defer userMu.Unlock()

	tx := &ledgerTx{ledger: l, userID: userID, solved: make(map[int64]time.Time)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (l *Ledger) userLock(userID int64) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	mu, ok := l.locks[userID]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[userID] = mu
	}
	return mu
}

type ledgerTx struct {
	ledger *Ledger
	userID int64

	user       domain.User
	userLoaded bool
	userDirty  bool
	solved     map[int64]time.Time
	inserted   []domain.SubmissionResult
}

func (t *ledgerTx) FindResult(_ context.Context, attemptID string) (domain.SubmissionResult, bool, error) {
	for _, res := range t.inserted {
		if res.AttemptID == attemptID {
			return res, true, nil
		}
	}
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	res, ok := t.ledger.results[attemptID]
	return res, ok, nil
}

func (t *ledgerTx) User(_ context.Context) (domain.User, error) {
	if t.userLoaded {
		return t.user, nil
	}
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	user, ok := t.ledger.users[t.userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	t.user = user
	t.userLoaded = true
	return user, nil
}

func (t *ledgerTx) SaveUser(_ context.Context, user domain.User) error {
	t.user = user
	t.userLoaded = true
	t.userDirty = true
	return nil
}

func (t *ledgerTx) MarkSolved(_ context.Context, problemID int64) (bool, error) {
	if _, ok := t.solved[problemID]; ok {
		return false, nil
	}
	t.ledger.mu.Lock()
	row, ok := t.ledger.progress[progressKey{t.userID, problemID}]
	t.ledger.mu.Unlock()
	if ok && row.Solved {
		return false, nil
	}
	t.solved[problemID] = time.Now().UTC()
	return true, nil
}

func (t *ledgerTx) InsertResult(ctx context.Context, result domain.SubmissionResult) error {
	if _, ok, _ := t.FindResult(ctx, result.AttemptID); ok {
		return domain.ErrDuplicateAttempt
	}
	t.inserted = append(t.inserted, result)
	return nil
}

func (t *ledgerTx) SolvedCount(_ context.Context, problemIDs []int64) (int, error) {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	return t.ledger.solvedCountLocked(t.userID, problemIDs, t.solved), nil
}

func (t *ledgerTx) commit() {
	t.ledger.mu.Lock()
	defer t.ledger.mu.Unlock()
	if t.userDirty {
		t.ledger.users[t.userID] = t.user
	}
	for pid, at := range t.solved {
		t.ledger.progress[progressKey{t.userID, pid}] = domain.ProblemProgress{
			UserID:    t.userID,
			ProblemID: pid,
			Solved:    true,
			SolvedAt:  at,
		}
	}
	for _, res := range t.inserted {
		t.ledger.results[res.AttemptID] = res
	}
}
