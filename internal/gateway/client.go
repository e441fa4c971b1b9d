package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ignite/outreach-scheduler/internal/domain"
	"github.com/ignite/outreach-scheduler/internal/pkg/logger"
	"github.com/ignite/outreach-scheduler/internal/registry"
	"github.com/ignite/outreach-scheduler/internal/service/reconcile"
)

const (
	writeTimeout = 10 * time.Second
	readTimeout  = 90 * time.Second
	authTimeout  = 15 * time.Second
)

// client is one agent WebSocket connection. It implements registry.Channel
// so the scheduler and reconciler can push events through it.
type client struct {
	conn *websocket.Conn
	srv  *Server

	senderID  string
	accountID string
	authed    bool

	writeMu sync.Mutex
}

func newClient(conn *websocket.Conn, srv *Server) *client {
	return &client{conn: conn, srv: srv}
}

// Send implements registry.Channel. Writes are serialized because gorilla
// connections allow only one concurrent writer.
func (c *client) Send(ev registry.Event) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(ev)
}

func (c *client) close() {
	c.conn.Close()
}

// run reads agent events until the connection drops. The first event must
// be auth; everything else is rejected until the sender is resolved.
func (c *client) run(ctx context.Context) {
	c.conn.SetReadLimit(64 << 10)
	c.conn.SetReadDeadline(time.Now().Add(authTimeout))

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("agent connection closed unexpectedly", "sender_id", c.senderID, "error", err.Error())
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.sendError("malformed event frame")
			continue
		}
		if err := c.dispatch(ctx, env); err != nil {
			logger.Warn("agent event rejected",
				"type", env.Type, "sender_id", c.senderID, "error", err.Error())
			c.sendError(err.Error())
		}
	}
}

func (c *client) dispatch(ctx context.Context, env envelope) error {
	if env.Type == eventAuth {
		return c.handleAuth(ctx, env.Payload)
	}
	if !c.authed {
		return errNotAuthenticated
	}

	switch env.Type {
	case eventHeartbeat:
		return c.srv.reconcile.Heartbeat(ctx, c.senderID)
	case eventPickup:
		return c.handlePickup(ctx, env.Payload)
	case eventComplete:
		return c.handleComplete(ctx, env.Payload)
	case eventFail:
		return c.handleFail(ctx, env.Payload)
	default:
		return errUnknownEvent(env.Type)
	}
}

func (c *client) handleAuth(ctx context.Context, raw json.RawMessage) error {
	var p authPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}

	senderID, accountID, err := c.srv.auth.Authenticate(ctx, p.Token)
	if err != nil {
		logger.Warn("agent auth failed", "error", err.Error())
		c.Send(registry.Event{
			Type:    registry.EventAuthError,
			Payload: map[string]string{"error": "authentication failed"},
		})
		return errAuthFailed
	}

	c.senderID = senderID
	c.accountID = accountID
	c.authed = true

	if err := c.srv.registry.Register(ctx, senderID, accountID, c); err != nil {
		return err
	}

	c.Send(registry.Event{
		Type:    registry.EventAuthOK,
		Payload: map[string]string{"sender_id": senderID, "account_id": accountID},
	})
	c.srv.registry.PushToAccount(accountID, registry.Event{
		Type:    registry.EventSenderOnline,
		Payload: domain.SenderEventPayload{SenderID: senderID},
	})
	logger.Info("agent authenticated", "sender_id", senderID, "account_id", accountID)
	return nil
}

func (c *client) handlePickup(ctx context.Context, raw json.RawMessage) error {
	var p pickupPayload
	if len(raw) > 0 {
		if err := decodePayload(raw, &p); err != nil {
			return err
		}
	}

	scope := &c.senderID
	if p.AnySender {
		scope = nil
	}
	task, err := c.srv.reconcile.Pickup(ctx, c.accountID, scope)
	if err == reconcile.ErrNoTask {
		return c.Send(registry.Event{Type: registry.EventTaskNew, Payload: nil})
	}
	if err != nil {
		return err
	}
	return c.Send(registry.Event{
		Type:    registry.EventTaskNew,
		Payload: domain.NewTaskPayload(task),
	})
}

func (c *client) handleComplete(ctx context.Context, raw json.RawMessage) error {
	var p completePayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.TaskID == "" {
		return errMissingTaskID
	}
	return c.srv.reconcile.HandleCompletion(ctx, p.TaskID, p.result())
}

func (c *client) handleFail(ctx context.Context, raw json.RawMessage) error {
	var p failPayload
	if err := decodePayload(raw, &p); err != nil {
		return err
	}
	if p.TaskID == "" {
		return errMissingTaskID
	}
	return c.srv.reconcile.HandleFailure(ctx, p.TaskID, p.taskError())
}

func (c *client) sendError(msg string) {
	c.Send(registry.Event{Type: "error", Payload: map[string]string{"error": msg}})
}
