package domain

// XPPerCorrect is awarded once per (user, problem) pair, on the submission
// where the problem first becomes solved.
const XPPerCorrect = 10

// StreakUpdate reports the ledger state after Advance.
type StreakUpdate struct {
	Current          int
	Best             int
	TotalXP          int
	PreviousActivity *Date
}

// Advance applies one accepted submission to the user's ledger fields.
//
// The streak moves on UTC calendar days: no prior activity starts at 1, a
// same-day resubmission leaves it unchanged, yesterday extends it by one, and
// anything else (a gap of two or more days, or a stored date after today)
// resets it to 1. BestStreak is a monotonic high-water mark. LastActivity is
// set to today unconditionally, and earnedXP may be zero - the streak tracks
// activity, not correctness.
func (u *User) Advance(earnedXP int, today Date) StreakUpdate {
	prev := u.LastActivity

	var streak int
	switch {
	case prev == nil:
		streak = 1
	case *prev == today:
		streak = u.CurrentStreak
	case *prev == today.AddDays(-1):
		streak = u.CurrentStreak + 1
	default:
		streak = 1
	}

	u.CurrentStreak = streak
	if streak > u.BestStreak {
		u.BestStreak = streak
	}
	u.TotalXP += earnedXP
	day := today
	u.LastActivity = &day

	return StreakUpdate{
		Current:          u.CurrentStreak,
		Best:             u.BestStreak,
		TotalXP:          u.TotalXP,
		PreviousActivity: prev,
	}
}
