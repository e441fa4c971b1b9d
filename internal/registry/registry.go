// Package registry holds the process-local map of live agent connections.
//
// The registry is authoritative only for "is this sender reachable right
// now". It is lost on restart; durable online/offline state lives in the
// store and is reconciled through heartbeats, so the scheduler treats "no
// channel" the same as an offline sender.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/outreach-scheduler/internal/pkg/logger"
)

// Event is a server→agent message pushed over a live channel.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Channel is one live connection to a remote agent. Implementations must be
// safe for concurrent Send calls.
type Channel interface {
	Send(ev Event) error
}

// SenderStore is the slice of the store the registry needs to keep the
// durable sender status in step with connection events.
type SenderStore interface {
	MarkSenderOnline(ctx context.Context, senderID string, heartbeat time.Time) error
	MarkSenderOffline(ctx context.Context, senderID string) error
}

// Registry maps sender ids and account ids to live agent channels.
type Registry struct {
	mu        sync.RWMutex
	bySender  map[string]Channel
	byAccount map[string]map[Channel]struct{}
	senderOf  map[Channel]string
	accountOf map[Channel]string

	store SenderStore
	now   func() time.Time
}

// New creates an empty registry backed by the given sender store.
func New(store SenderStore) *Registry {
	return &Registry{
		bySender:  make(map[string]Channel),
		byAccount: make(map[string]map[Channel]struct{}),
		senderOf:  make(map[Channel]string),
		accountOf: make(map[Channel]string),
		store:     store,
		now:       time.Now,
	}
}

// Register associates a channel with a sender and its account, replacing any
// prior channel for the same sender, and marks the sender online with a
// fresh heartbeat in the store.
func (r *Registry) Register(ctx context.Context, senderID, accountID string, ch Channel) error {
	r.mu.Lock()
	if old, ok := r.bySender[senderID]; ok && old != ch {
		r.dropLocked(old)
	}
	r.bySender[senderID] = ch
	if r.byAccount[accountID] == nil {
		r.byAccount[accountID] = make(map[Channel]struct{})
	}
	r.byAccount[accountID][ch] = struct{}{}
	r.senderOf[ch] = senderID
	r.accountOf[ch] = accountID
	r.mu.Unlock()

	return r.store.MarkSenderOnline(ctx, senderID, r.now())
}

// Forget removes the channel's registrations and marks its sender offline.
// Safe to call for channels that were never registered.
func (r *Registry) Forget(ctx context.Context, ch Channel) error {
	r.mu.Lock()
	senderID, known := r.senderOf[ch]
	// Only clear the sender slot if this channel still owns it; a newer
	// connection may have replaced it.
	if known && r.bySender[senderID] == ch {
		delete(r.bySender, senderID)
	} else {
		senderID = ""
	}
	r.dropLocked(ch)
	r.mu.Unlock()

	if senderID == "" {
		return nil
	}
	return r.store.MarkSenderOffline(ctx, senderID)
}

func (r *Registry) dropLocked(ch Channel) {
	if acct, ok := r.accountOf[ch]; ok {
		delete(r.byAccount[acct], ch)
		if len(r.byAccount[acct]) == 0 {
			delete(r.byAccount, acct)
		}
	}
	delete(r.senderOf, ch)
	delete(r.accountOf, ch)
}

// PushToSender delivers an event to the sender's channel. Returns false when
// no channel is registered or the send fails.
func (r *Registry) PushToSender(senderID string, ev Event) bool {
	r.mu.RLock()
	ch, ok := r.bySender[senderID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if err := ch.Send(ev); err != nil {
		logger.Warn("registry push to sender failed", "sender_id", senderID, "event", ev.Type, "error", err)
		return false
	}
	return true
}

// PushToAccount fans an event out to every channel registered for the
// account, best-effort.
func (r *Registry) PushToAccount(accountID string, ev Event) {
	r.mu.RLock()
	chans := make([]Channel, 0, len(r.byAccount[accountID]))
	for ch := range r.byAccount[accountID] {
		chans = append(chans, ch)
	}
	r.mu.RUnlock()

	for _, ch := range chans {
		if err := ch.Send(ev); err != nil {
			logger.Warn("registry push to account failed", "account_id", accountID, "event", ev.Type, "error", err)
		}
	}
}

// Connected reports whether a channel is registered for the sender.
func (r *Registry) Connected(senderID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.bySender[senderID]
	return ok
}
