package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/outreach-scheduler/internal/domain"
	"github.com/ignite/outreach-scheduler/internal/pkg/distlock"
	"github.com/ignite/outreach-scheduler/internal/pkg/logger"
	"github.com/ignite/outreach-scheduler/internal/registry"
)

// =============================================================================
// DISPATCH SCHEDULER
// =============================================================================
// The scheduler runs a fixed-period tick. Each tick sweeps stale senders,
// auto-completes due warmups, reclaims abandoned leases and timed-out tasks,
// and then makes a single dispatch attempt per active auto-mode campaign:
// pick the next eligible sender round-robin, lease the oldest pending lead,
// render the message, commit the cursors + task in one step, and push the
// task to the sender's live agent channel.
//
// Ticks never overlap: if the previous tick is still running the next fire
// is dropped. A per-campaign failure is logged and the tick moves on.

// Config holds the scheduler's timing knobs. Zero values are filled from
// DefaultConfig.
type Config struct {
	TickInterval     time.Duration
	StaleSenderAfter time.Duration
	StaleTaskAfter   time.Duration
	StaleLeaseAuto   time.Duration
	StaleLeaseManual time.Duration
	WarmupHorizon    time.Duration
	// TestModeDelaySeconds is the forced pacing delay when any online
	// sender of a campaign runs in test mode.
	TestModeDelaySeconds int
}

// DefaultConfig returns the production timing defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval:         30 * time.Second,
		StaleSenderAfter:     60 * time.Second,
		StaleTaskAfter:       2 * time.Minute,
		StaleLeaseAuto:       5 * time.Minute,
		StaleLeaseManual:     10 * time.Minute,
		WarmupHorizon:        14 * 24 * time.Hour,
		TestModeDelaySeconds: 30,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.StaleSenderAfter <= 0 {
		c.StaleSenderAfter = d.StaleSenderAfter
	}
	if c.StaleTaskAfter <= 0 {
		c.StaleTaskAfter = d.StaleTaskAfter
	}
	if c.StaleLeaseAuto <= 0 {
		c.StaleLeaseAuto = d.StaleLeaseAuto
	}
	if c.StaleLeaseManual <= 0 {
		c.StaleLeaseManual = d.StaleLeaseManual
	}
	if c.WarmupHorizon <= 0 {
		c.WarmupHorizon = d.WarmupHorizon
	}
	if c.TestModeDelaySeconds <= 0 {
		c.TestModeDelaySeconds = d.TestModeDelaySeconds
	}
	return c
}

// Scheduler is the periodic dispatch control loop.
type Scheduler struct {
	store Store
	reg   *registry.Registry
	cfg   Config
	clock Clock
	rng   *rand.Rand
	lock  distlock.DistLock // optional cross-process tick singleton

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex

	inTick atomic.Bool

	// Stats
	ticksRun     int64
	ticksSkipped int64
	dispatched   int64
}

// New creates a scheduler. cfg zero values fall back to DefaultConfig.
func New(store Store, reg *registry.Registry, cfg Config) *Scheduler {
	return &Scheduler{
		store: store,
		reg:   reg,
		cfg:   cfg.withDefaults(),
		clock: realClock{},
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetLock installs a distributed lock so only one process in a cluster runs
// the tick. Must be called before Start.
func (s *Scheduler) SetLock(l distlock.DistLock) { s.lock = l }

// Start launches the tick loop. Returns an error if already running.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true

	s.wg.Add(1)
	go s.run()
	logger.Info("scheduler started", "tick_interval", s.cfg.TickInterval)
	return nil
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	logger.Info("scheduler stopped",
		"ticks_run", atomic.LoadInt64(&s.ticksRun),
		"dispatched", atomic.LoadInt64(&s.dispatched))
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.ctx)
		}
	}
}

// Tick runs one scheduler pass. At most one tick is in flight per process;
// an overlapping fire is dropped. With a distributed lock installed, a pass
// that loses the lock is dropped the same way.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.inTick.CompareAndSwap(false, true) {
		atomic.AddInt64(&s.ticksSkipped, 1)
		logger.Warn("tick still in flight, skipping")
		return
	}
	defer s.inTick.Store(false)

	if s.lock != nil {
		ok, err := s.lock.Acquire(ctx)
		if err != nil {
			logger.Error("tick lock acquire failed", "error", err)
			return
		}
		if !ok {
			atomic.AddInt64(&s.ticksSkipped, 1)
			return
		}
		defer func() {
			if err := s.lock.Release(ctx); err != nil {
				logger.Warn("tick lock release failed", "error", err)
			}
		}()
	}

	atomic.AddInt64(&s.ticksRun, 1)
	now := s.clock.Now()

	campaigns := s.runSweeps(ctx, now)

	for i := range campaigns {
		c := &campaigns[i]
		if c.Mode != domain.ModeAuto {
			continue
		}
		if err := s.dispatchCampaign(ctx, c); err != nil {
			logger.Error("campaign dispatch failed", "campaign_id", c.ID, "error", err)
		}
	}
}

// runSweeps performs the maintenance passes and returns the active campaign
// list for the dispatch phase. Sweeps are best-effort: a failure is logged
// and the next tick re-runs them.
func (s *Scheduler) runSweeps(ctx context.Context, now time.Time) []domain.Campaign {
	stale, err := s.store.SweepStaleSenders(ctx, now.Add(-s.cfg.StaleSenderAfter))
	if err != nil {
		logger.Error("stale sender sweep failed", "error", err)
	}
	for _, snd := range stale {
		s.reg.PushToAccount(snd.AccountID, registry.Event{
			Type:    registry.EventSenderOffline,
			Payload: domain.SenderEventPayload{SenderID: snd.ID, OutboundAccountID: snd.OutboundAccountID, Reason: "heartbeat timeout"},
		})
	}

	warmed, err := s.store.CompleteDueWarmups(ctx, now.Add(-s.cfg.WarmupHorizon))
	if err != nil {
		logger.Error("warmup completion sweep failed", "error", err)
	}
	for _, acct := range warmed {
		logger.Info("warmup completed", "outbound_account_id", acct.ID, "handle", acct.Handle)
		s.reg.PushToAccount(acct.AccountID, registry.Event{
			Type:    registry.EventWarmupCompleted,
			Payload: domain.WarmupEventPayload{OutboundAccountID: acct.ID, Handle: acct.Handle},
		})
	}

	campaigns, err := s.store.ListActiveCampaigns(ctx)
	if err != nil {
		logger.Error("list active campaigns failed", "error", err)
		return nil
	}

	for i := range campaigns {
		c := &campaigns[i]
		cutoff := now.Add(-s.cfg.StaleLeaseAuto)
		if c.Mode == domain.ModeManual {
			cutoff = now.Add(-s.cfg.StaleLeaseManual)
		}
		n, err := s.store.ReclaimStaleLeases(ctx, c.ID, cutoff)
		if err != nil {
			logger.Error("stale lease sweep failed", "campaign_id", c.ID, "error", err)
		} else if n > 0 {
			logger.Info("reclaimed stale leases", "campaign_id", c.ID, "count", n)
		}
	}

	if n, err := s.store.ReclaimStaleTasks(ctx, now.Add(-s.cfg.StaleTaskAfter)); err != nil {
		logger.Error("stale task sweep failed", "error", err)
	} else if n > 0 {
		logger.Info("reclaimed stale tasks", "count", n)
	}

	return campaigns
}

// dispatchCampaign makes at most one dispatch attempt for the campaign.
func (s *Scheduler) dispatchCampaign(ctx context.Context, c *domain.Campaign) error {
	now := s.clock.Now()
	loc := Location(c.Schedule.Timezone)
	burst := c.Schedule.Pacing == domain.PacingBurst

	// New local day resets the burst window.
	if burst && c.LastSentAt != nil && !SameLocalDay(*c.LastSentAt, now, loc) &&
		(c.BurstSentInGroup != 0 || c.BurstBreakUntil != nil) {
		if err := s.store.ResetBurstWindow(ctx, c.ID); err != nil {
			return fmt.Errorf("reset burst window: %w", err)
		}
		c.BurstSentInGroup = 0
		c.BurstBreakUntil = nil
	}

	senders, err := s.store.ListCampaignSenders(ctx, c)
	if err != nil {
		return fmt.Errorf("list campaign senders: %w", err)
	}
	if len(senders) == 0 {
		return nil
	}

	var online int
	testMode := false
	for i := range senders {
		if senders[i].Status == domain.SenderOnline {
			online++
			if senders[i].TestMode {
				testMode = true
			}
		}
	}

	if !testMode && !WithinActiveHours(c.Schedule.ActiveHoursStart, c.Schedule.ActiveHoursEnd, now, loc) {
		return nil
	}

	if c.BurstBreakUntil != nil {
		if !testMode && c.BurstBreakUntil.After(now) {
			return nil
		}
		if !c.BurstBreakUntil.After(now) {
			if err := s.store.ClearBurstBreak(ctx, c.ID); err != nil {
				return fmt.Errorf("clear burst break: %w", err)
			}
			c.BurstBreakUntil = nil
		}
	}

	from, to := DayBounds(now, loc)
	sentToday, err := s.store.CountCampaignDaySends(ctx, c.ID, from, to)
	if err != nil {
		return fmt.Errorf("count campaign sends: %w", err)
	}

	delay := s.campaignDelay(c, online, sentToday, now, loc, testMode, s.rng)

	// The 0.8 multiplier absorbs tick jitter: a 30 s tick period must not
	// stretch every gap by up to a full period.
	if !testMode && c.LastSentAt != nil && now.Sub(*c.LastSentAt).Seconds() < 0.8*float64(delay) {
		return nil
	}

	// Round-robin sender selection, first eligible wins.
	chosenIdx := -1
	n := len(senders)
	for k := 0; k < n; k++ {
		i := (c.LastSenderIndex + 1 + k) % n
		ok, reason, err := s.eligible(ctx, c, &senders[i], testMode, now, loc)
		if err != nil {
			return err
		}
		if ok {
			chosenIdx = i
			break
		}
		logger.Debug("sender ineligible", "campaign_id", c.ID, "sender_id", senders[i].ID, "reason", reason)
	}
	if chosenIdx < 0 {
		return nil
	}
	sender := &senders[chosenIdx]

	lead, err := s.store.AcquireLead(ctx, c.ID, sender.ID, now)
	if err != nil {
		return fmt.Errorf("acquire lead: %w", err)
	}
	if lead == nil {
		open, err := s.store.CountOpenLeads(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("count open leads: %w", err)
		}
		if open == 0 {
			if done, err := s.store.CompleteCampaign(ctx, c.ID); err != nil {
				return fmt.Errorf("complete campaign: %w", err)
			} else if done {
				logger.Info("campaign completed", "campaign_id", c.ID)
			}
		}
		return nil
	}

	target, err := s.store.GetOutboundLead(ctx, lead.OutboundLeadID)
	if err != nil {
		return fmt.Errorf("load outbound lead: %w", err)
	}
	if target == nil {
		return s.store.SkipLead(ctx, lead.ID, "outbound lead missing", now)
	}
	if target.Messaged {
		// Another campaign already reached this profile.
		return s.store.SkipLead(ctx, lead.ID, "already messaged", now)
	}

	var (
		message string
		tplIdx  *int
		advance bool
	)
	if lead.CustomMessage != "" {
		message = lead.CustomMessage
	} else {
		if len(c.Templates) == 0 {
			return s.store.SkipLead(ctx, lead.ID, "no message template", now)
		}
		i := c.LastMessageIndex % len(c.Templates)
		message = Render(c.Templates[i], target)
		tplIdx = &i
		advance = true
	}

	task, err := s.store.CommitDispatch(ctx, &Dispatch{
		Campaign:        c,
		Lead:            lead,
		Sender:          sender,
		Target:          target,
		Message:         message,
		TemplateIndex:   tplIdx,
		SenderIndex:     chosenIdx,
		AdvanceTemplate: advance,
		BurstIncrement:  burst,
		Now:             now,
	})
	if err != nil {
		return fmt.Errorf("commit dispatch: %w", err)
	}
	atomic.AddInt64(&s.dispatched, 1)

	if !s.reg.PushToSender(sender.ID, registry.Event{Type: registry.EventTaskNew, Payload: domain.NewTaskPayload(task)}) {
		// The sender-pull path will still find the task.
		logger.Warn("task push undelivered", "task_id", task.ID, "sender_id", sender.ID)
	}

	if acct, err := s.store.GetOutboundAccount(ctx, sender.OutboundAccountID); err != nil {
		logger.Error("streak load failed", "outbound_account_id", sender.OutboundAccountID, "error", err)
	} else if acct != nil {
		if up := NextStreak(acct, now, loc); up.Applied {
			if err := s.store.UpdateStreak(ctx, acct.ID, up.Streak, up.LastSend, up.RestUntil); err != nil {
				logger.Error("streak update failed", "outbound_account_id", acct.ID, "error", err)
			}
		}
	}

	if burst && c.BurstSentInGroup+1 >= c.Schedule.Burst.MessagesPerGroup {
		until := now.Add(GroupBreak(c.Schedule.Burst, s.rng))
		if err := s.store.SetBurstBreak(ctx, c.ID, until); err != nil {
			logger.Error("set burst break failed", "campaign_id", c.ID, "error", err)
		}
	}

	s.pushETAHints(ctx, c, senders, chosenIdx, delay)
	return nil
}

// campaignDelay computes the pacing delay in seconds for the campaign's
// current state. Test mode forces a short fixed delay.
func (s *Scheduler) campaignDelay(c *domain.Campaign, online, sentToday int, now time.Time, loc *time.Location, testMode bool, rng *rand.Rand) int {
	if testMode {
		return s.cfg.TestModeDelaySeconds
	}
	if c.Schedule.Pacing == domain.PacingBurst {
		return BurstDelay(c.Schedule.Burst, rng)
	}
	return SmoothDelay(c.Schedule, online, sentToday, now.In(loc), rng)
}

// pushETAHints tells each online sender when its next task is expected,
// walking the round-robin order outward from the position after the chosen
// sender.
func (s *Scheduler) pushETAHints(ctx context.Context, c *domain.Campaign, senders []domain.Sender, chosenIdx, delay int) {
	pending, err := s.store.CountPendingLeads(ctx, c.ID)
	if err != nil {
		logger.Warn("pending lead count failed", "campaign_id", c.ID, "error", err)
		return
	}

	n := len(senders)
	k := 0
	for m := 0; m < n; m++ {
		i := (chosenIdx + 1 + m) % n
		if senders[i].Status != domain.SenderOnline {
			continue
		}
		s.reg.PushToSender(senders[i].ID, registry.Event{
			Type: registry.EventTaskETA,
			Payload: domain.ETAPayload{
				CampaignID:    c.ID,
				NextInSeconds: delay * (k + 1),
				PendingLeads:  pending,
			},
		})
		k++
	}
}

// NextSendETA estimates when the campaign's next send is due, with jitter
// disabled so repeated UI polls see a stable value. The second return is
// the jitter-free pacing delay in seconds.
func (s *Scheduler) NextSendETA(ctx context.Context, campaignID string) (time.Time, int, error) {
	c, err := s.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return time.Time{}, 0, err
	}
	if c == nil {
		return time.Time{}, 0, fmt.Errorf("campaign %s not found", campaignID)
	}

	now := s.clock.Now()
	loc := Location(c.Schedule.Timezone)

	senders, err := s.store.ListCampaignSenders(ctx, c)
	if err != nil {
		return time.Time{}, 0, err
	}
	var online int
	testMode := false
	for i := range senders {
		if senders[i].Status == domain.SenderOnline {
			online++
			if senders[i].TestMode {
				testMode = true
			}
		}
	}

	from, to := DayBounds(now, loc)
	sentToday, err := s.store.CountCampaignDaySends(ctx, c.ID, from, to)
	if err != nil {
		return time.Time{}, 0, err
	}

	delay := s.campaignDelay(c, online, sentToday, now, loc, testMode, nil)

	if c.Schedule.Pacing == domain.PacingBurst && c.BurstBreakUntil != nil && c.BurstBreakUntil.After(now) {
		return c.BurstBreakUntil.Add(time.Duration(delay) * time.Second), delay, nil
	}
	if c.LastSentAt == nil {
		return now, delay, nil
	}
	return c.LastSentAt.Add(time.Duration(delay) * time.Second), delay, nil
}
