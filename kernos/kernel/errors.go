package kernel

import "errors"

var (
	// ErrOutOfIds is returned when a fixed-size id space or object arena is
	// exhausted. The caller may retry after freeing objects.
	ErrOutOfIds = errors.New("out of ids")

	// ErrInvalidCapability is returned for invalid, revoked, stale or
	// wrong-kind capabilities.
	ErrInvalidCapability = errors.New("invalid capability")

	// ErrAlreadyAssociated is returned when a resource such as an interrupt
	// line is already claimed.
	ErrAlreadyAssociated = errors.New("already associated")

	// ErrCanceled is returned by a blocking call that was aborted instead of
	// being satisfied.
	ErrCanceled = errors.New("canceled")

	// ErrInvariantViolation marks a kernel invariant the caller tried to
	// break. The operation is a no-op.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrDenied is returned when a thread outside the core protection domain
	// invokes a core-only call.
	ErrDenied = errors.New("permission denied")

	// ErrBadState is returned when an object is not in a state that allows
	// the requested operation.
	ErrBadState = errors.New("bad object state")

	// ErrInvalidArgument is returned for malformed call arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)
