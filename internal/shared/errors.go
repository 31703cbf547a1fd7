package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Queue store errors
	ErrRevisionConflict = fmt.Errorf("revision conflict")
	ErrStoreUnavailable = fmt.Errorf("queue store unavailable")

	// Side channel errors. These never leave the side channel itself;
	// callers observe them as outcomes and log lines.
	ErrSideChannelClosed = fmt.Errorf("side channel closed")
	ErrTimeout           = fmt.Errorf("operation timed out")

	ErrServiceUnavailable = fmt.Errorf("service unavailable")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
