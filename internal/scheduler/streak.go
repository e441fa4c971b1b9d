package scheduler

import (
	"time"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

// Rest thresholds for consecutive-sending streaks. Five straight days earn
// one full rest day; ten earn two and reset the counter.
const (
	streakRestThreshold  = 5
	streakResetThreshold = 10
)

// StreakUpdate is the computed next streak state for an outbound account.
// Applied is false when the account already sent today and nothing changes.
type StreakUpdate struct {
	Applied   bool
	Streak    int
	LastSend  time.Time
	RestUntil *time.Time
}

// NextStreak advances the consecutive-sending-days counter for an outbound
// account after a successful lease. It is idempotent per local calendar day:
// the first send of a day advances the streak, later sends are no-ops.
func NextStreak(acct *domain.OutboundAccount, now time.Time, loc *time.Location) StreakUpdate {
	if acct.StreakLastSendDate != nil && SameLocalDay(*acct.StreakLastSendDate, now, loc) {
		return StreakUpdate{Applied: false}
	}

	var streak int
	switch {
	case acct.RestUntil != nil && !acct.RestUntil.After(now):
		// Streak resumes after an enforced rest window.
		streak = acct.StreakDays + 1
	case acct.StreakLastSendDate != nil && SameLocalDay(*acct.StreakLastSendDate, now.AddDate(0, 0, -1), loc):
		streak = acct.StreakDays + 1
	default:
		streak = 1
	}

	up := StreakUpdate{Applied: true, Streak: streak, LastSend: now}

	midnight := LocalMidnight(now, loc)
	switch {
	case streak >= streakResetThreshold:
		// Two full rest days, counter starts over.
		rest := midnight.AddDate(0, 0, 3)
		up.RestUntil = &rest
		up.Streak = 0
	case streak == streakRestThreshold:
		// One full rest day; the streak continues through it.
		rest := midnight.AddDate(0, 0, 2)
		up.RestUntil = &rest
	}
	return up
}
