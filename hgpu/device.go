package hgpu

import "errors"

// SharedHandle is an opaque cross-process handle to a shareable texture.
//
// On the wire it is a pointer-width integer;
// the protocol assumes 64-bit processes on both ends.
// The handle must refer to a resource created with the platform's
// NT-shareable flag so it can be duplicated across processes
// and opened on any device sharing the adapter.
type SharedHandle uint64

// Device is a graphics device capable of opening
// textures shared from another process.
type Device interface {
	// OpenSharedTexture opens the texture behind h on this device.
	//
	// Returns [ErrInvalidHandle] if h does not name a live resource,
	// or [ErrDeviceRejected] if the device refused the import.
	OpenSharedTexture(h SharedHandle) (Texture, error)
}

// Texture is an owned reference to a GPU texture.
type Texture interface {
	// KeyedMutex returns the keyed mutex attached to the texture.
	//
	// Returns [ErrNoKeyedMutex] if the texture was not created with
	// the shareable-keyed-mutex flag.
	// That flag is a hard requirement on the producing process.
	KeyedMutex() (KeyedMutex, error)

	// Release drops this reference to the texture.
	// The reference must not be used afterward.
	Release()
}

// KeyedMutex is the synchronization primitive attached to a shared texture.
//
// At any instant exactly one process holds a given key.
// The bridge only ever uses key 0.
type KeyedMutex interface {
	// AcquireSync blocks until the key is released by the other owner,
	// then takes ownership. There is no timeout.
	AcquireSync(key uint64) error

	// ReleaseSync hands ownership of the key back.
	ReleaseSync(key uint64) error

	// Release drops this reference to the mutex.
	Release()
}

// SharedTexture is a producer-side texture that can be shared by handle.
// Client applications implement this over their own device's textures.
type SharedTexture interface {
	// SharedHandle extracts the cross-process handle for the texture.
	SharedHandle() (SharedHandle, error)
}

var (
	// ErrInvalidHandle indicates a shared handle that does not
	// name a live resource.
	ErrInvalidHandle = errors.New("shared texture handle is invalid")

	// ErrDeviceRejected indicates the device refused to open
	// an otherwise valid shared resource.
	ErrDeviceRejected = errors.New("device rejected shared texture")

	// ErrNoKeyedMutex indicates the texture was created without
	// the shareable-keyed-mutex flag.
	ErrNoKeyedMutex = errors.New("texture has no keyed mutex")
)
