package hmdlink

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned from [Client] operations
// that require a live connection.
var ErrNotConnected = errors.New("not connected to render server")

// PresentFailedError is returned from [Client.PresentRenderBuffers]
// when the server reports a non-zero present result.
// The session remains usable; the client may present again.
type PresentFailedError struct {
	Code int32
}

func (e PresentFailedError) Error() string {
	return fmt.Sprintf("server reported present result %d", e.Code)
}

// ViewCountChangedError ends a session whose pipeline stopped agreeing
// with itself about how many views the display has.
// Registered buffer sets are sized by the view count,
// so a change mid-session cannot be honored.
type ViewCountChangedError struct {
	Was, Now int
}

func (e ViewCountChangedError) Error() string {
	return fmt.Sprintf("pipeline view count changed from %d to %d mid-session", e.Was, e.Now)
}

// InvalidViewCountError ends a session whose pipeline reported
// a view count the protocol cannot carry.
type InvalidViewCountError struct {
	Views int
}

func (e InvalidViewCountError) Error() string {
	return fmt.Sprintf("pipeline reported %d views, protocol allows 1 through 8", e.Views)
}

// UnevenBufferCountError ends a session that registered a handle count
// that does not divide into whole buffer sets.
type UnevenBufferCountError struct {
	Buffers, Views int
}

func (e UnevenBufferCountError) Error() string {
	return fmt.Sprintf("%d buffers is not a multiple of the %d view count", e.Buffers, e.Views)
}
