package flashbench

import "errors"

// Protocol-level failures. Callers match with errors.Is; call sites wrap these
// with the failing operation and address.
var (
	// ErrBusTimeout means the status register's busy bit never cleared
	// within the deadline for the issued operation.
	ErrBusTimeout = errors.New("flash: busy flag did not clear before timeout")

	// ErrCommandIgnored means an erase/program command never raised the busy
	// flag shortly after issue. The usual cause is an active block
	// protection, not a dead bus.
	ErrCommandIgnored = errors.New("flash: command ignored (protection active?)")

	// ErrIdentificationUnavailable means no plausible manufacturer byte was
	// found after all identification retries and no earlier identification
	// is cached.
	ErrIdentificationUnavailable = errors.New("flash: no plausible JEDEC identification")

	// ErrVerificationFailed means a post-erase or post-program readback did
	// not match the expected contents.
	ErrVerificationFailed = errors.New("flash: readback verification failed")

	// ErrCapacityExceeded means address+size runs past the known device size.
	ErrCapacityExceeded = errors.New("flash: address range exceeds device capacity")
)
