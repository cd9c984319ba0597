package eventlog

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrUnavailable marks a transient store failure; callers retry
	// with backoff and eventually drop the event.
	ErrUnavailable = errors.New("log store unavailable")
)
