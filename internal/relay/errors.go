package relay

import "errors"

// Core error taxonomy (spec.md §7). Transport errors are absorbed inside
// the session with bounded retry; callers never see ErrTransportReset,
// ErrShortRead or ErrTimeout directly — they only observe "offline"
// status or a logged warning for unlocks.
var (
	// ErrUnreachable means a TCP session to a device could not be opened.
	ErrUnreachable = errors.New("relay: device unreachable")

	// ErrTransportReset means a write or read failed because the
	// connection was reset or not present; retryable.
	ErrTransportReset = errors.New("relay: transport reset")

	// ErrShortRead means fewer than 12 bytes were read: some bytes
	// arrived before the 2-second read timeout elapsed, or the stream
	// ended (EOF) before a full frame; retryable.
	ErrShortRead = errors.New("relay: short read")

	// ErrTimeout means the 2-second read timeout elapsed before any
	// bytes of a response arrived. Treated as no response; not
	// retried within the same send, since nothing suggests a retry
	// would arrive sooner.
	ErrTimeout = errors.New("relay: read timeout")

	// ErrNotFound means a pulse target lock id is not in the registry.
	ErrNotFound = errors.New("relay: lock id not found")

	// ErrConfigInvalid means the fleet configuration is malformed
	// (duplicate lock ids, missing fields). Fatal at startup.
	ErrConfigInvalid = errors.New("relay: invalid configuration")
)
