// Package hgputest provides instrumented in-memory implementations
// of the hgpu interfaces, for exercising the bridge without a GPU.
package hgputest

import (
	"sync"

	"github.com/motionreality/hmdlink/hgpu"
)

// Device is a fake [hgpu.Device].
//
// By default any handle opens successfully.
// Individual handles can be programmed to fail
// with one of the hgpu import errors.
type Device struct {
	mu sync.Mutex

	// Errors to return from OpenSharedTexture, keyed by handle.
	openErrs map[hgpu.SharedHandle]error

	// Handles whose textures report hgpu.ErrNoKeyedMutex.
	noMutex map[hgpu.SharedHandle]bool

	textures []*Texture
}

// NewDevice returns an empty fake device.
func NewDevice() *Device {
	return &Device{
		openErrs: map[hgpu.SharedHandle]error{},
		noMutex:  map[hgpu.SharedHandle]bool{},
	}
}

// FailOpen programs OpenSharedTexture to return err for h.
func (d *Device) FailOpen(h hgpu.SharedHandle, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErrs[h] = err
}

// DenyKeyedMutex programs the texture opened from h
// to report hgpu.ErrNoKeyedMutex.
func (d *Device) DenyKeyedMutex(h hgpu.SharedHandle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.noMutex[h] = true
}

// OpenSharedTexture implements [hgpu.Device].
func (d *Device) OpenSharedTexture(h hgpu.SharedHandle) (hgpu.Texture, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.openErrs[h]; err != nil {
		return nil, err
	}

	t := &Texture{
		Handle:  h,
		noMutex: d.noMutex[h],
		mutex:   &KeyedMutex{},
	}
	t.mutex.tex = t
	d.textures = append(d.textures, t)
	return t, nil
}

// OpenedTextures returns every texture this device has opened,
// in open order, including released ones.
func (d *Device) OpenedTextures() []*Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Texture(nil), d.textures...)
}

// OpenedTexture returns the i'th texture opened on this device.
func (d *Device) OpenedTexture(i int) *Texture {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.textures[i]
}
