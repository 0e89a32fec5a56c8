package hmdlink

import (
	"errors"

	"github.com/motionreality/hmdlink/hgpu"
)

// bufferSet is one frame's worth of imported textures, one per view.
type bufferSet struct {
	textures []*importedTexture
}

// gpuTextures returns the set's textures as the pipeline consumes them.
func (s *bufferSet) gpuTextures() []hgpu.Texture {
	texs := make([]hgpu.Texture, len(s.textures))
	for i, t := range s.textures {
		texs[i] = t.tex
	}
	return texs
}

func (s *bufferSet) acquireAll() error {
	var errs error
	for _, t := range s.textures {
		errs = errors.Join(errs, t.acquire())
	}
	return errs
}

func (s *bufferSet) releaseAll() error {
	var errs error
	for _, t := range s.textures {
		errs = errors.Join(errs, t.release())
	}
	return errs
}

// close drops every texture in the set.
func (s *bufferSet) close() error {
	var errs error
	for _, t := range s.textures {
		errs = errors.Join(errs, t.close())
	}
	return errs
}

// presentGate enforces the keyed-mutex hand-off discipline around presents.
//
// The set presented most recently stays held by the server until the
// next present replaces it: the pipeline may still be reading from it
// asynchronously, and handing it back early would let the client render
// into textures the display is scanning out.
type presentGate struct {
	sets []*bufferSet

	// Index of the set still held from the previous present,
	// or -1 when no present has happened since registration.
	active int
}

func newPresentGate() presentGate {
	return presentGate{active: -1}
}

func (g *presentGate) setCount() int {
	return len(g.sets)
}

// install replaces the gate's sets after a successful registration.
// Any previous sets must already be closed.
func (g *presentGate) install(sets []*bufferSet) {
	g.sets = sets
	g.active = -1
}

// beginPresent acquires every mutex in the target set.
// The caller must have bounds-checked idx.
func (g *presentGate) beginPresent(idx int) error {
	return g.sets[idx].acquireAll()
}

// finishPresent completes the hand-off after the pipeline call:
// the previously active set is released, never the just-presented one,
// and the just-presented set becomes the active set.
func (g *presentGate) finishPresent(idx int) error {
	var err error
	if g.active >= 0 && g.active < len(g.sets) && g.active != idx {
		err = g.sets[g.active].releaseAll()
	}
	g.active = idx
	return err
}

// releaseActive hands back whichever set is currently held.
func (g *presentGate) releaseActive() error {
	if g.active < 0 || g.active >= len(g.sets) {
		return nil
	}
	err := g.sets[g.active].releaseAll()
	g.active = -1
	return err
}

// close releases the active set and drops every imported texture.
func (g *presentGate) close() error {
	errs := g.releaseActive()
	for _, s := range g.sets {
		errs = errors.Join(errs, s.close())
	}
	g.sets = nil
	return errs
}
