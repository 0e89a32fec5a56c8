package hmdlink

import (
	"fmt"

	"github.com/motionreality/hmdlink/hgpu"
)

// mutexKey is the only key the protocol uses on a keyed mutex.
const mutexKey = 0

// mutexState tracks which side of the process boundary
// holds a texture's keyed mutex.
type mutexState uint8

const (
	// The client holds the key; the server must not touch the texture.
	mutexWithClient mutexState = iota

	// The server holds the key; the client must not render into the texture.
	mutexWithServer
)

// importedTexture is a texture the session opened from a shared handle,
// paired with its keyed mutex.
// The session is the sole owner of both references;
// close releases each exactly once.
type importedTexture struct {
	handle hgpu.SharedHandle
	tex    hgpu.Texture
	mutex  hgpu.KeyedMutex
	held   mutexState
}

// importTexture opens the texture behind h on the session's device
// and obtains its keyed mutex.
// On any failure nothing is left open.
func importTexture(dev hgpu.Device, h hgpu.SharedHandle) (*importedTexture, error) {
	tex, err := dev.OpenSharedTexture(h)
	if err != nil {
		return nil, fmt.Errorf("failed to open shared texture %#x: %w", uint64(h), err)
	}

	mutex, err := tex.KeyedMutex()
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("failed to get keyed mutex for texture %#x: %w", uint64(h), err)
	}

	return &importedTexture{handle: h, tex: tex, mutex: mutex}, nil
}

// acquire takes the keyed mutex for the server side.
// It blocks until the client releases the key.
func (t *importedTexture) acquire() error {
	if t.held == mutexWithServer {
		return fmt.Errorf("mutex for texture %#x already held by server", uint64(t.handle))
	}
	if err := t.mutex.AcquireSync(mutexKey); err != nil {
		return fmt.Errorf("failed to acquire mutex for texture %#x: %w", uint64(t.handle), err)
	}
	t.held = mutexWithServer
	return nil
}

// release hands the keyed mutex back to the client side.
func (t *importedTexture) release() error {
	if t.held != mutexWithServer {
		return fmt.Errorf("mutex for texture %#x not held by server", uint64(t.handle))
	}
	if err := t.mutex.ReleaseSync(mutexKey); err != nil {
		return fmt.Errorf("failed to release mutex for texture %#x: %w", uint64(t.handle), err)
	}
	t.held = mutexWithClient
	return nil
}

// close drops both owned references, releasing a held key first.
// The returned error reports a failed key release;
// the references are dropped regardless.
func (t *importedTexture) close() error {
	var err error
	if t.held == mutexWithServer {
		err = t.release()
	}
	t.tex.Release()
	t.mutex.Release()
	return err
}
