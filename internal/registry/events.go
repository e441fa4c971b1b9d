package registry

// Server→agent event names. Agent→server names live in the gateway, which
// owns inbound decoding.
const (
	EventAuthOK           = "auth-ok"
	EventAuthError        = "auth-error"
	EventTaskNew          = "task:new"
	EventTaskETA          = "task:eta"
	EventTaskCompleted    = "task:completed"
	EventTaskFailed       = "task:failed"
	EventSenderOnline     = "sender-online"
	EventSenderOffline    = "sender-offline"
	EventSenderRestricted = "sender-restricted"
	EventWarmupCompleted  = "warmup-completed"
)
