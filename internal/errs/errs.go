// Package errs defines the sentinel error kinds shared across filemesh's
// subsystems, matching the error kinds a caller of the request surface can
// distinguish on.
package errs

import "errors"

// Sentinel errors corresponding to the request-surface error kinds. Callers
// use errors.Is against these; subsystems wrap them with fmt.Errorf("...: %w").
var (
	// ErrNotFound is returned when a manifest or chunk is absent locally.
	ErrNotFound = errors.New("not found")

	// ErrCorruptData is returned when a chunk's SHA-1 does not match its
	// filename. Fatal for the in-flight fetch; callers should treat the
	// chunk as absent and try another replica.
	ErrCorruptData = errors.New("corrupt data")

	// ErrPeerUnreachable is returned when an outbound RPC fails or times
	// out. Counted as a partial failure by fanout callers.
	ErrPeerUnreachable = errors.New("peer unreachable")

	// ErrBadRequest is returned when a caller's request is missing
	// mandatory fields.
	ErrBadRequest = errors.New("bad request")

	// ErrUnauthorized is returned when a leave is requested for a peer
	// other than the caller itself.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransferFailed is returned when an outbound store_chunk or
	// store_manifest did not acknowledge. Anti-entropy is expected to
	// heal the gap; callers must not retry synchronously.
	ErrTransferFailed = errors.New("transfer failed")
)
