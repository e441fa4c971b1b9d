package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// memStore is an in-memory Store with the same conditional-update semantics
// as the Postgres implementation.
type memStore struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	leads     map[string]*domain.CampaignLead
	senders   map[string]*domain.Sender
	accounts  map[string]*domain.OutboundAccount
	targets   map[string]*domain.OutboundLead
	tasks     map[string]*domain.Task

	senderOrder []string
	taskSeq     int
}

func newMemStore() *memStore {
	return &memStore{
		campaigns: make(map[string]*domain.Campaign),
		leads:     make(map[string]*domain.CampaignLead),
		senders:   make(map[string]*domain.Sender),
		accounts:  make(map[string]*domain.OutboundAccount),
		targets:   make(map[string]*domain.OutboundLead),
		tasks:     make(map[string]*domain.Task),
	}
}

func (m *memStore) addCampaign(c *domain.Campaign) { m.campaigns[c.ID] = c }

func (m *memStore) addSender(s *domain.Sender) {
	m.senders[s.ID] = s
	m.senderOrder = append(m.senderOrder, s.ID)
}

func (m *memStore) addAccount(a *domain.OutboundAccount) { m.accounts[a.ID] = a }

func (m *memStore) addTarget(t *domain.OutboundLead) { m.targets[t.ID] = t }

func (m *memStore) addLead(l *domain.CampaignLead) {
	m.leads[l.ID] = l
	if c := m.campaigns[l.CampaignID]; c != nil {
		switch l.Status {
		case domain.LeadPending:
			c.Stats.Pending++
		case domain.LeadQueued:
			c.Stats.Queued++
		case domain.LeadSent:
			c.Stats.Sent++
		case domain.LeadFailed:
			c.Stats.Failed++
		case domain.LeadSkipped:
			c.Stats.Skipped++
		}
	}
}

func (m *memStore) SweepStaleSenders(_ context.Context, cutoff time.Time) ([]domain.Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Sender
	for _, s := range m.senders {
		if s.Status == domain.SenderOnline && (s.LastHeartbeat == nil || s.LastHeartbeat.Before(cutoff)) {
			s.Status = domain.SenderOffline
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) CompleteDueWarmups(_ context.Context, cutoff time.Time) ([]domain.OutboundAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.OutboundAccount
	for _, a := range m.accounts {
		if a.Warmup.Enabled && a.Warmup.StartDate != nil && !a.Warmup.StartDate.After(cutoff) {
			a.Status = domain.OutboundReady
			a.Warmup.Enabled = false
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) ReclaimStaleLeases(_ context.Context, campaignID string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.campaigns[campaignID]
	n := 0
	for _, l := range m.leads {
		if l.CampaignID == campaignID && l.Status == domain.LeadQueued &&
			l.QueuedAt != nil && l.QueuedAt.Before(cutoff) {
			l.Status = domain.LeadPending
			l.SenderID = nil
			l.QueuedAt = nil
			l.TaskID = nil
			n++
		}
	}
	if c != nil && n > 0 {
		c.Stats.Queued -= n
		c.Stats.Pending += n
	}
	return n, nil
}

func (m *memStore) ReclaimStaleTasks(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.Open() && t.CreatedAt.Before(cutoff) {
			t.Status = domain.TaskFailed
			n++
			if t.CampaignLeadID == nil {
				continue
			}
			l := m.leads[*t.CampaignLeadID]
			if l == nil || l.Status != domain.LeadQueued {
				continue
			}
			l.Status = domain.LeadPending
			l.SenderID = nil
			l.QueuedAt = nil
			l.TaskID = nil
			if c := m.campaigns[l.CampaignID]; c != nil {
				c.Stats.Queued--
				c.Stats.Pending++
			}
		}
	}
	return n, nil
}

func (m *memStore) GetCampaign(_ context.Context, id string) (*domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) ListActiveCampaigns(_ context.Context) ([]domain.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Campaign
	for _, c := range m.campaigns {
		if c.Status == domain.CampaignActive {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListCampaignSenders(_ context.Context, c *domain.Campaign) ([]domain.Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	member := make(map[string]bool, len(c.OutboundAccountIDs))
	for _, id := range c.OutboundAccountIDs {
		member[id] = true
	}
	var out []domain.Sender
	for _, id := range m.senderOrder {
		s := m.senders[id]
		if member[s.OutboundAccountID] {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) GetOutboundAccount(_ context.Context, id string) (*domain.OutboundAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) CountCampaignDaySends(_ context.Context, campaignID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leads {
		if l.CampaignID == campaignID && (l.Status == domain.LeadSent || l.Status == domain.LeadQueued) &&
			!l.UpdatedAt.Before(from) && l.UpdatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountSenderDaySends(_ context.Context, senderID, campaignID string, from, to time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leads {
		if l.SenderID == nil || *l.SenderID != senderID {
			continue
		}
		if campaignID != "" && l.CampaignID != campaignID {
			continue
		}
		if (l.Status == domain.LeadSent || l.Status == domain.LeadQueued) &&
			!l.UpdatedAt.Before(from) && l.UpdatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) HasOpenTask(_ context.Context, senderID, campaignID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tasks {
		if t.Open() && t.SenderID != nil && *t.SenderID == senderID &&
			t.CampaignID != nil && *t.CampaignID == campaignID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) AcquireLead(_ context.Context, campaignID, senderID string, now time.Time) (*domain.CampaignLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*domain.CampaignLead
	for _, l := range m.leads {
		if l.CampaignID == campaignID && l.Status == domain.LeadPending {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	failedBefore := func(l *domain.CampaignLead) bool {
		for _, id := range l.FailedSenderIDs {
			if id == senderID {
				return true
			}
		}
		return false
	}
	sort.Slice(candidates, func(i, j int) bool {
		fi, fj := failedBefore(candidates[i]), failedBefore(candidates[j])
		if fi != fj {
			return !fi
		}
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	l := candidates[0]
	l.Status = domain.LeadQueued
	l.SenderID = &senderID
	l.QueuedAt = &now
	l.UpdatedAt = now
	if c := m.campaigns[campaignID]; c != nil {
		c.Stats.Pending--
		c.Stats.Queued++
	}
	cp := *l
	return &cp, nil
}

func (m *memStore) CountOpenLeads(_ context.Context, campaignID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leads {
		if l.CampaignID == campaignID && (l.Status == domain.LeadPending || l.Status == domain.LeadQueued) {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CountPendingLeads(_ context.Context, campaignID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.leads {
		if l.CampaignID == campaignID && l.Status == domain.LeadPending {
			n++
		}
	}
	return n, nil
}

func (m *memStore) CompleteCampaign(_ context.Context, campaignID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.campaigns[campaignID]
	if c == nil || c.Status != domain.CampaignActive {
		return false, nil
	}
	for _, l := range m.leads {
		if l.CampaignID == campaignID && !l.Status.Terminal() {
			return false, nil
		}
	}
	c.Status = domain.CampaignCompleted
	return true, nil
}

func (m *memStore) GetOutboundLead(_ context.Context, id string) (*domain.OutboundLead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.targets[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memStore) SkipLead(_ context.Context, leadID, reason string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l := m.leads[leadID]
	if l == nil || l.Status != domain.LeadQueued {
		return nil
	}
	l.Status = domain.LeadSkipped
	l.LastError = reason
	l.UpdatedAt = now
	if c := m.campaigns[l.CampaignID]; c != nil {
		c.Stats.Queued--
		c.Stats.Skipped++
	}
	return nil
}

func (m *memStore) CommitDispatch(_ context.Context, d *Dispatch) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.campaigns[d.Campaign.ID]
	if c == nil {
		return nil, fmt.Errorf("campaign %s not found", d.Campaign.ID)
	}
	c.LastSenderIndex = d.SenderIndex
	if d.AdvanceTemplate {
		c.LastMessageIndex++
	}
	now := d.Now
	c.LastSentAt = &now
	if d.BurstIncrement {
		c.BurstSentInGroup++
	}

	m.taskSeq++
	t := &domain.Task{
		ID:             fmt.Sprintf("task-%d", m.taskSeq),
		AccountID:      c.AccountID,
		Type:           domain.TaskSendDM,
		TargetUsername: d.Target.Username,
		Message:        d.Message,
		SenderID:       &d.Sender.ID,
		CampaignID:     &c.ID,
		CampaignLeadID: &d.Lead.ID,
		OutboundLeadID: &d.Target.ID,
		Status:         domain.TaskPending,
		CreatedAt:      now,
	}
	m.tasks[t.ID] = t

	if l := m.leads[d.Lead.ID]; l != nil {
		l.TaskID = &t.ID
		l.MessageUsed = d.Message
		l.TemplateIndex = d.TemplateIndex
		l.UpdatedAt = now
	}
	return t, nil
}

func (m *memStore) ResetBurstWindow(_ context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.campaigns[campaignID]; c != nil {
		c.BurstSentInGroup = 0
		c.BurstBreakUntil = nil
	}
	return nil
}

func (m *memStore) ClearBurstBreak(_ context.Context, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.campaigns[campaignID]; c != nil {
		c.BurstBreakUntil = nil
	}
	return nil
}

func (m *memStore) SetBurstBreak(_ context.Context, campaignID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.campaigns[campaignID]; c != nil {
		c.BurstBreakUntil = &until
		c.BurstSentInGroup = 0
	}
	return nil
}

func (m *memStore) UpdateStreak(_ context.Context, outboundAccountID string, streak int, lastSend time.Time, restUntil *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.accounts[outboundAccountID]; a != nil {
		a.StreakDays = streak
		a.StreakLastSendDate = &lastSend
		a.RestUntil = restUntil
	}
	return nil
}

// leadByID returns the live lead for assertions.
func (m *memStore) leadByID(id string) *domain.CampaignLead {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leads[id]
}

func (m *memStore) campaignByID(id string) *domain.Campaign {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaigns[id]
}

func (m *memStore) openTasks() []*domain.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Task
	for _, t := range m.tasks {
		if t.Open() {
			out = append(out, t)
		}
	}
	return out
}
