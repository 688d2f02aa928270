package app

import "sync"

// ProgressUpdate is pushed to subscribers after each accepted submission.
type ProgressUpdate struct {
	UserID         int64   `json:"user_id"`
	TotalXP        int     `json:"total_xp"`
	CurrentStreak  int     `json:"current_streak"`
	BestStreak     int     `json:"best_streak"`
	LessonID       int64   `json:"lesson_id,omitempty"`
	LessonProgress float64 `json:"lesson_progress,omitempty"`
	EarnedXP       int     `json:"earned_xp"`
}

// ProgressHub fans submission outcomes out to per-user subscribers.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[int64]map[chan ProgressUpdate]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[int64]map[chan ProgressUpdate]struct{})}
}

// Subscribe returns a channel of updates for one user. The caller must invoke
// the returned cancel function to avoid leaks.
func (h *ProgressHub) Subscribe(userID int64) (<-chan ProgressUpdate, func()) {
	ch := make(chan ProgressUpdate, 8)

	h.mu.Lock()
	set, ok := h.subs[userID]
	if !ok {
		set = make(map[chan ProgressUpdate]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[userID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(h.subs, userID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers the update to the user's subscribers. Slow consumers have
// their stale frame dropped so publishers never block on a dead connection.
func (h *ProgressHub) Publish(update ProgressUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[update.UserID] {
		select {
		case ch <- update:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- update
		}
	}
}
