package scheduler

import (
	"math"
	"math/rand"
	"time"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

// Pacing floor and window floor for smooth mode. The 30 min window floor
// keeps the per-message budget sane as the active window runs out.
const (
	MinSmoothDelaySeconds = 30
	WindowFloorSeconds    = 1800
)

// SmoothDelay returns the seconds to wait before the next send in smooth
// mode. It spreads the remaining daily budget across the remaining active
// window with ±20% jitter, clamped to [30s, full-window pace].
//
// rng == nil disables jitter; the UI estimator relies on that so repeated
// polls see a stable value.
func SmoothDelay(sched domain.Schedule, onlineSenders, sentToday int, nowLocal time.Time, rng *rand.Rand) int {
	perSender := sched.DailyLimitPerSender
	if perSender <= 0 {
		perSender = domain.DefaultDailyLimit
	}
	if onlineSenders < 1 {
		onlineSenders = 1
	}
	n := perSender * onlineSenders

	remaining := n - sentToday
	if remaining < 1 {
		remaining = 1
	}

	nowSec := nowLocal.Hour()*3600 + nowLocal.Minute()*60 + nowLocal.Second()
	remSec := sched.ActiveHoursEnd*3600 - nowSec
	if remSec < WindowFloorSeconds {
		remSec = WindowFloorSeconds
	}

	delay := float64(remSec) / float64(remaining)
	if rng != nil {
		delay *= 1 + (rng.Float64()*0.4 - 0.2)
	}

	// Never slower than a fresh-start plan over the full window.
	fullWindow := float64((sched.ActiveHoursEnd-sched.ActiveHoursStart)*3600) / float64(n)
	if delay > fullWindow {
		delay = fullWindow
	}
	if delay < MinSmoothDelaySeconds {
		delay = MinSmoothDelaySeconds
	}
	return int(math.Round(delay))
}

// BurstDelay returns the seconds between sends inside a burst group,
// uniform in [MinDelaySeconds, MaxDelaySeconds]. With rng == nil it returns
// the midpoint so estimates stay stable.
func BurstDelay(b domain.BurstParams, rng *rand.Rand) int {
	return uniformSeconds(b.MinDelaySeconds, b.MaxDelaySeconds, rng)
}

// GroupBreak returns the cool-off duration after a full burst group,
// uniform in [MinGroupBreakSeconds, MaxGroupBreakSeconds].
func GroupBreak(b domain.BurstParams, rng *rand.Rand) time.Duration {
	return time.Duration(uniformSeconds(b.MinGroupBreakSeconds, b.MaxGroupBreakSeconds, rng)) * time.Second
}

func uniformSeconds(min, max int, rng *rand.Rand) int {
	if max <= min {
		return min
	}
	if rng == nil {
		return (min + max) / 2
	}
	return min + rng.Intn(max-min+1)
}
