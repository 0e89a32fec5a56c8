package hgputest

import "github.com/motionreality/hmdlink/hgpu"

// SharedTexture is a fake producer-side [hgpu.SharedTexture].
type SharedTexture struct {
	Handle hgpu.SharedHandle

	// Err, when set, is returned from SharedHandle.
	Err error
}

// SharedHandle implements [hgpu.SharedTexture].
func (t SharedTexture) SharedHandle() (hgpu.SharedHandle, error) {
	if t.Err != nil {
		return 0, t.Err
	}
	return t.Handle, nil
}
