package gateway

import (
	"errors"
	"fmt"
)

var (
	errNotAuthenticated = errors.New("not authenticated")
	errAuthFailed       = errors.New("authentication failed")
	errMissingTaskID    = errors.New("missing task_id")
)

func errUnknownEvent(kind string) error {
	return fmt.Errorf("unknown event kind %q", kind)
}
