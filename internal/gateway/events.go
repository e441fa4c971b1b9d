package gateway

import (
	"encoding/json"
	"fmt"

	"github.com/ignite/outreach-scheduler/internal/domain"
)

// Agent-to-server event kinds. Anything outside this set is rejected at
// the boundary and logged.
const (
	eventAuth      = "auth"
	eventHeartbeat = "heartbeat"
	eventPickup    = "task:pickup"
	eventComplete  = "task:complete"
	eventFail      = "task:fail"
)

// envelope is the wire frame for agent events: a kind tag plus a payload
// whose shape depends on the kind.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type authPayload struct {
	Token string `json:"token"`
}

type pickupPayload struct {
	AnySender bool `json:"any_sender"`
}

// completePayload carries loosely-typed agent results. Agents ship whatever
// their runtime produced, so the numeric and boolean fields are normalized
// with the domain coercion helpers rather than decoded strictly.
type completePayload struct {
	TaskID    string      `json:"task_id"`
	Success   interface{} `json:"success"`
	Username  string      `json:"username"`
	ThreadID  string      `json:"thread_id"`
	Timestamp interface{} `json:"timestamp"`
}

func (p completePayload) result() domain.TaskResult {
	res := domain.TaskResult{
		Success:  true,
		Username: p.Username,
		ThreadID: p.ThreadID,
	}
	if b := domain.ToBoolean(p.Success); b != nil {
		res.Success = *b
	}
	res.Timestamp = domain.ToDate(p.Timestamp)
	return res
}

type failPayload struct {
	TaskID     string      `json:"task_id"`
	Error      string      `json:"error"`
	ErrorType  string      `json:"error_type"`
	StackTrace string      `json:"stack_trace"`
	Timestamp  interface{} `json:"timestamp"`
}

func (p failPayload) taskError() domain.TaskError {
	te := domain.TaskError{
		Message:    p.Error,
		Type:       domain.FailureType(p.ErrorType),
		StackTrace: p.StackTrace,
	}
	te.Timestamp = domain.ToDate(p.Timestamp)
	return te
}

func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("malformed payload: %w", err)
	}
	return nil
}
