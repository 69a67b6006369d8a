package failover

import "errors"

var (
	// ErrConfiguration wraps invalid Options.
	ErrConfiguration = errors.New("failover: invalid configuration")
	// ErrInitialization wraps failures to open the store or claim a sequence.
	ErrInitialization = errors.New("failover: initialization failed")
	// ErrCapacityExceeded is returned by Map.Put when a new key would exceed MaxEntries.
	ErrCapacityExceeded = errors.New("failover: store capacity exceeded")
	// ErrNoListeners is returned by Start when no listener was added.
	ErrNoListeners = errors.New("failover: no retry listeners registered")
	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("failover: policy stopped")
)
