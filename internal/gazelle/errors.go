package gazelle

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrTransient marks connection-level failures (refused connections,
// timeouts) that persisted through all retry attempts. Callers use
// errors.Is to distinguish these from site-reported failures.
var ErrTransient = errors.New("transient network error")

// ServiceError is a definitive failure reported by the site: a non-2xx
// status, a malformed body, or a Gazelle envelope with status != success.
// Service errors are never retried.
type ServiceError struct {
	Action string
	Status int
	Detail string
}

func (e *ServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gazelle %s: status %d: %s", e.Action, e.Status, e.Detail)
	}
	return fmt.Sprintf("gazelle %s: %s", e.Action, e.Detail)
}

// isTransient reports whether err is a transport-level failure worth
// retrying. Context cancellation is not transient: the caller gave up.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
