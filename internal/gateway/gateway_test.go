package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-scheduler/internal/domain"
	"github.com/ignite/outreach-scheduler/internal/registry"
	"github.com/ignite/outreach-scheduler/internal/service/campaign"
	"github.com/ignite/outreach-scheduler/internal/service/reconcile"
)

type fakeAuth struct{}

func (fakeAuth) Authenticate(_ context.Context, credential string) (string, string, error) {
	if credential == "good-token" {
		return "sender-1", "acct-1", nil
	}
	return "", "", fmt.Errorf("unknown agent credential")
}

type fakeSenderStore struct {
	mu      sync.Mutex
	online  []string
	offline []string
}

func (f *fakeSenderStore) MarkSenderOnline(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, id)
	return nil
}

func (f *fakeSenderStore) MarkSenderOffline(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = append(f.offline, id)
	return nil
}

// fakeReconcileRepo backs the reconcile service with canned tasks.
type fakeReconcileRepo struct {
	mu         sync.Mutex
	tasks      map[string]*domain.Task
	pending    []*domain.Task
	heartbeats []string
	completed  []string
	failed     []string
	leadsSent  []string
}

func newFakeReconcileRepo() *fakeReconcileRepo {
	return &fakeReconcileRepo{tasks: make(map[string]*domain.Task)}
}

func (f *fakeReconcileRepo) GetTask(_ context.Context, id string) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return nil, reconcile.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeReconcileRepo) CompleteTask(_ context.Context, taskID string, _ domain.TaskResult, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || !t.Open() {
		return false, nil
	}
	t.Status = domain.TaskCompleted
	f.completed = append(f.completed, taskID)
	return true, nil
}

func (f *fakeReconcileRepo) FailTask(_ context.Context, taskID string, _ domain.TaskError, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok || !t.Open() {
		return false, nil
	}
	t.Status = domain.TaskFailed
	f.failed = append(f.failed, taskID)
	return true, nil
}

func (f *fakeReconcileRepo) MarkOutboundLeadMessaged(_ context.Context, _, _, _ string, _ time.Time) error {
	return nil
}

func (f *fakeReconcileRepo) MarkLeadSent(_ context.Context, leadID string, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leadsSent = append(f.leadsSent, leadID)
	return true, nil
}

func (f *fakeReconcileRepo) MarkLeadFailed(_ context.Context, _, _ string, _ time.Time) (bool, error) {
	return true, nil
}

func (f *fakeReconcileRepo) RestrictSender(_ context.Context, _ string, _ time.Time, _ string) error {
	return nil
}

func (f *fakeReconcileRepo) PickupTask(_ context.Context, _ string, _ *string, _ time.Time) (*domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	t := f.pending[0]
	f.pending = f.pending[1:]
	t.Status = domain.TaskInProgress
	return t, nil
}

func (f *fakeReconcileRepo) Heartbeat(_ context.Context, senderID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, senderID)
	return nil
}

func (f *fakeReconcileRepo) ResetStuckTasks(_ context.Context, _ string, _ time.Time) (int, error) {
	return 2, nil
}

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[string]*domain.Campaign
	statuses  map[string]domain.CampaignStatus
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns: make(map[string]*domain.Campaign),
		statuses:  make(map[string]domain.CampaignStatus),
	}
}

func (f *fakeCampaignRepo) Get(_ context.Context, accountID, id string) (*domain.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.AccountID != accountID {
		return nil, campaign.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeCampaignRepo) UpdateStatus(_ context.Context, accountID, id string, from []domain.CampaignStatus, to domain.CampaignStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.AccountID != accountID {
		return campaign.ErrNotFound
	}
	for _, s := range from {
		if c.Status == s {
			c.Status = to
			f.statuses[id] = to
			return nil
		}
	}
	return campaign.ErrInvalidTransition
}

func (f *fakeCampaignRepo) AttachLeads(_ context.Context, _, _ string, ids []string) (int, error) {
	return len(ids), nil
}

func (f *fakeCampaignRepo) RetryLeads(_ context.Context, _, _ string, ids []string) (int, error) {
	return len(ids), nil
}

func (f *fakeCampaignRepo) Stats(_ context.Context, accountID, id string) (domain.CampaignStats, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.campaigns[id]
	if !ok || c.AccountID != accountID {
		return domain.CampaignStats{}, 0, campaign.ErrNotFound
	}
	return c.Stats, c.Stats.Total(), nil
}

func testServer(t *testing.T) (*httptest.Server, *fakeReconcileRepo, *fakeCampaignRepo) {
	t.Helper()
	recRepo := newFakeReconcileRepo()
	campRepo := newFakeCampaignRepo()
	reg := registry.New(&fakeSenderStore{})
	rec := reconcile.New(recRepo, reg)
	camp := campaign.NewService(campRepo)

	srv := NewServer(":0", fakeAuth{}, reg, rec, camp, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, recRepo, campRepo
}

func dialAgent(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/agent"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, kind string, payload interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": kind, "payload": payload}))
}

func readEvent(t *testing.T, conn *websocket.Conn) (string, map[string]interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var frame struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	return frame.Type, frame.Payload
}

func authAgent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	sendEvent(t, conn, "auth", map[string]string{"token": "good-token"})
	kind, payload := readEvent(t, conn)
	require.Equal(t, registry.EventAuthOK, kind)
	require.Equal(t, "sender-1", payload["sender_id"])

	// The account-wide sender-online broadcast reaches this channel too.
	kind, _ = readEvent(t, conn)
	require.Equal(t, registry.EventSenderOnline, kind)
}

func TestAgentAuthOK(t *testing.T) {
	ts, _, _ := testServer(t)
	conn := dialAgent(t, ts)
	authAgent(t, conn)
}

func TestAgentAuthBadToken(t *testing.T) {
	ts, _, _ := testServer(t)
	conn := dialAgent(t, ts)

	sendEvent(t, conn, "auth", map[string]string{"token": "bogus"})
	kind, payload := readEvent(t, conn)
	assert.Equal(t, registry.EventAuthError, kind)
	assert.Equal(t, "authentication failed", payload["error"])
}

func TestEventsRequireAuth(t *testing.T) {
	ts, repo, _ := testServer(t)
	conn := dialAgent(t, ts)

	sendEvent(t, conn, "heartbeat", nil)
	kind, payload := readEvent(t, conn)
	assert.Equal(t, "error", kind)
	assert.Equal(t, "not authenticated", payload["error"])
	assert.Empty(t, repo.heartbeats)
}

func TestUnknownEventKindRejected(t *testing.T) {
	ts, _, _ := testServer(t)
	conn := dialAgent(t, ts)
	authAgent(t, conn)

	sendEvent(t, conn, "self-destruct", nil)
	kind, payload := readEvent(t, conn)
	assert.Equal(t, "error", kind)
	assert.Contains(t, payload["error"], "unknown event kind")
}

func TestTaskPickup(t *testing.T) {
	ts, repo, _ := testServer(t)
	repo.pending = append(repo.pending, &domain.Task{
		ID:             "task-1",
		Type:           domain.TaskSendDM,
		Status:         domain.TaskPending,
		TargetUsername: "target_one",
		Message:        "hey there",
	})

	conn := dialAgent(t, ts)
	authAgent(t, conn)

	sendEvent(t, conn, "task:pickup", nil)
	kind, payload := readEvent(t, conn)
	require.Equal(t, registry.EventTaskNew, kind)
	assert.Equal(t, "task-1", payload["id"])
	assert.Equal(t, "target_one", payload["target_username"])

	// Queue now empty: second pickup hands back a null task.
	sendEvent(t, conn, "task:pickup", nil)
	kind, payload = readEvent(t, conn)
	assert.Equal(t, registry.EventTaskNew, kind)
	assert.Nil(t, payload)
}

func TestTaskCompleteCoercesAgentPayload(t *testing.T) {
	ts, repo, _ := testServer(t)
	leadID := "lead-1"
	repo.tasks["task-1"] = &domain.Task{
		ID:             "task-1",
		Type:           domain.TaskSendDM,
		Status:         domain.TaskInProgress,
		TargetUsername: "target_one",
		CampaignLeadID: &leadID,
	}

	conn := dialAgent(t, ts)
	authAgent(t, conn)

	// Agents ship loose types: string booleans and unix-millis timestamps.
	sendEvent(t, conn, "task:complete", map[string]interface{}{
		"task_id":   "task-1",
		"success":   "yes",
		"thread_id": "t-99",
		"timestamp": 1756166400000,
	})

	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.completed) == 1 && len(repo.leadsSent) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTaskFail(t *testing.T) {
	ts, repo, _ := testServer(t)
	repo.tasks["task-1"] = &domain.Task{
		ID:     "task-1",
		Type:   domain.TaskSendDM,
		Status: domain.TaskInProgress,
	}

	conn := dialAgent(t, ts)
	authAgent(t, conn)

	sendEvent(t, conn, "task:fail", map[string]interface{}{
		"task_id":    "task-1",
		"error":      "target unavailable",
		"error_type": "USER_NOT_FOUND",
	})

	assert.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return len(repo.failed) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestControlAPIRequiresAccountHeader(t *testing.T) {
	ts, _, _ := testServer(t)

	resp, err := http.Post(ts.URL+"/api/campaigns/c1/activate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestActivateEndpoint(t *testing.T) {
	ts, _, campRepo := testServer(t)
	campRepo.campaigns["c1"] = &domain.Campaign{
		ID:        "c1",
		AccountID: "acct-1",
		Status:    domain.CampaignDraft,
		Templates: []string{"hi {{username}}"},
		Schedule:  domain.Schedule{ActiveHoursStart: 9, ActiveHoursEnd: 17},
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/campaigns/c1/activate", nil)
	req.Header.Set("X-Account-ID", "acct-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.CampaignActive, campRepo.statuses["c1"])
}

func TestActivateWrongAccountIs404(t *testing.T) {
	ts, _, campRepo := testServer(t)
	campRepo.campaigns["c1"] = &domain.Campaign{
		ID:        "c1",
		AccountID: "acct-1",
		Status:    domain.CampaignDraft,
		Templates: []string{"hi"},
		Schedule:  domain.Schedule{ActiveHoursStart: 9, ActiveHoursEnd: 17},
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/campaigns/c1/activate", nil)
	req.Header.Set("X-Account-ID", "acct-2")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	ts, _, campRepo := testServer(t)
	campRepo.campaigns["c1"] = &domain.Campaign{
		ID:        "c1",
		AccountID: "acct-1",
		Status:    domain.CampaignActive,
		Stats:     domain.CampaignStats{Pending: 3, Sent: 7},
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/campaigns/c1/stats", nil)
	req.Header.Set("X-Account-ID", "acct-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body struct {
		Stats     domain.CampaignStats `json:"stats"`
		LeadCount int                  `json:"lead_count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 3, body.Stats.Pending)
	assert.Equal(t, 7, body.Stats.Sent)
	assert.Equal(t, 10, body.LeadCount)
}

func TestResetStuckTasksEndpoint(t *testing.T) {
	ts, _, _ := testServer(t)

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/api/tasks/reset", nil)
	req.Header.Set("X-Account-ID", "acct-1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 2, body["reset"])
}
