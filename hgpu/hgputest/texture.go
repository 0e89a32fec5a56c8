package hgputest

import (
	"fmt"
	"sync"

	"github.com/motionreality/hmdlink/hgpu"
)

// Texture is a fake [hgpu.Texture] with reference accounting.
type Texture struct {
	Handle hgpu.SharedHandle

	noMutex bool
	mutex   *KeyedMutex

	mu       sync.Mutex
	released int
}

// KeyedMutex implements [hgpu.Texture].
func (t *Texture) KeyedMutex() (hgpu.KeyedMutex, error) {
	if t.noMutex {
		return nil, hgpu.ErrNoKeyedMutex
	}
	return t.mutex, nil
}

// Release implements [hgpu.Texture].
// Releasing the same reference twice panics,
// as the double free would on a real device.
func (t *Texture) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.released++
	if t.released > 1 {
		panic(fmt.Sprintf("texture %#x released %d times", uint64(t.Handle), t.released))
	}
}

// Released reports whether the texture reference has been dropped.
func (t *Texture) Released() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.released > 0
}

// Mutex returns the texture's fake keyed mutex for inspection.
func (t *Texture) Mutex() *KeyedMutex {
	return t.mutex
}

// KeyedMutex is a fake [hgpu.KeyedMutex] counting acquires and releases.
//
// It does not block: the tests that use it drive both sides of the
// hand-off from one goroutine, so contention is asserted through
// the counters rather than through real blocking.
type KeyedMutex struct {
	tex *Texture

	mu         sync.Mutex
	acquires   int
	releases   int
	refDropped int

	// AcquireErr and ReleaseErr, when set,
	// are returned from the corresponding call.
	AcquireErr error
	ReleaseErr error
}

// AcquireSync implements [hgpu.KeyedMutex].
func (m *KeyedMutex) AcquireSync(key uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AcquireErr != nil {
		return m.AcquireErr
	}
	m.acquires++
	return nil
}

// ReleaseSync implements [hgpu.KeyedMutex].
func (m *KeyedMutex) ReleaseSync(key uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReleaseErr != nil {
		return m.ReleaseErr
	}
	m.releases++
	if m.releases > m.acquires {
		panic(fmt.Sprintf("keyed mutex for %#x released %d times after %d acquires",
			uint64(m.tex.Handle), m.releases, m.acquires))
	}
	return nil
}

// Release implements [hgpu.KeyedMutex].
func (m *KeyedMutex) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refDropped++
	if m.refDropped > 1 {
		panic(fmt.Sprintf("keyed mutex for %#x reference dropped %d times",
			uint64(m.tex.Handle), m.refDropped))
	}
}

// Acquires returns the number of successful AcquireSync calls.
func (m *KeyedMutex) Acquires() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires
}

// Releases returns the number of successful ReleaseSync calls.
func (m *KeyedMutex) Releases() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.releases
}

// Held reports whether the server side currently holds the key,
// i.e. there is one more acquire than release.
func (m *KeyedMutex) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acquires > m.releases
}

// RefDropped reports whether the mutex reference itself was released.
func (m *KeyedMutex) RefDropped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refDropped > 0
}
