package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy indicates a resource is still referenced and the operation
	// should be retried.
	ErrBusy = errors.New("transport: resource busy")
	// ErrNotFound indicates the requested segment or channel does not exist.
	ErrNotFound = errors.New("transport: not found")
	// ErrSegmentExists indicates a segment id is already in use.
	ErrSegmentExists = errors.New("transport: segment id already in use")
	// ErrChannelExists indicates an interrupt channel is already registered.
	ErrChannelExists = errors.New("transport: interrupt channel already in use")
	// ErrClosed indicates the session has been closed.
	ErrClosed = errors.New("transport: session closed")
	// ErrOutOfRange indicates a transfer entry exceeds a segment boundary.
	ErrOutOfRange = errors.New("transport: transfer exceeds segment bounds")
	// ErrUnavailable indicates the segment exists but is not published.
	ErrUnavailable = errors.New("transport: segment not available")
)

// ErrInvalidHandle reports use of a nil or released resource handle.
type ErrInvalidHandle struct {
	Resource string
}

func (e ErrInvalidHandle) Error() string {
	return fmt.Sprintf("transport: invalid %s handle", e.Resource)
}
