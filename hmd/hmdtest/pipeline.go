// Package hmdtest provides a scripted in-memory [hmd.Pipeline]
// that records every call, for exercising the bridge without a display.
package hmdtest

import (
	"fmt"
	"sync"

	"github.com/motionreality/hmdlink/hgpu"
	"github.com/motionreality/hmdlink/hmd"
)

// Pipeline is a fake [hmd.Pipeline].
//
// The zero value is not usable; create one with [NewPipeline].
type Pipeline struct {
	mu sync.Mutex

	views int

	// Scripted failures. When set, the corresponding call returns the error.
	RenderInfoErr error
	RegisterErr   error
	PresentErr    error

	shutdown bool

	registers []RegisterCall
	presents  []PresentCall
	queries   []hmd.RenderParams
}

// RegisterCall records one RegisterBuffers invocation.
type RegisterCall struct {
	Set            []hgpu.Texture
	AppWillPresent bool
}

// PresentCall records one PresentBuffers invocation.
type PresentCall struct {
	Set    []hgpu.Texture
	Used   []hmd.RenderInfo
	Params hmd.RenderParams
}

// NewPipeline returns a fake pipeline reporting the given view count.
func NewPipeline(views int) *Pipeline {
	return &Pipeline{views: views}
}

// GetRenderInfo implements [hmd.Pipeline].
// The returned infos carry distinguishable per-view viewports
// and echo the head-pose override, if any, into every view's pose.
func (p *Pipeline) GetRenderInfo(params hmd.RenderParams) ([]hmd.RenderInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.RenderInfoErr != nil {
		return nil, p.RenderInfoErr
	}

	p.queries = append(p.queries, params)

	infos := make([]hmd.RenderInfo, p.views)
	for i := range infos {
		infos[i] = hmd.RenderInfo{
			Viewport: hmd.Viewport{
				Left:   float64(i) * 960,
				Width:  960,
				Height: 1080,
			},
			Pose: hmd.IdentityPose(),
			Projection: hmd.Projection{
				Left: -1, Right: 1, Top: 1, Bottom: -1,
				NearClip: params.NearClipMeters,
				FarClip:  params.FarClipMeters,
			},
		}
		if params.RoomFromHeadReplace != nil {
			infos[i].Pose = *params.RoomFromHeadReplace
		}
	}
	return infos, nil
}

// RegisterBuffers implements [hmd.Pipeline].
func (p *Pipeline) RegisterBuffers(set []hgpu.Texture, appWillPresent bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.RegisterErr != nil {
		return p.RegisterErr
	}
	p.registers = append(p.registers, RegisterCall{
		Set:            append([]hgpu.Texture(nil), set...),
		AppWillPresent: appWillPresent,
	})
	return nil
}

// PresentBuffers implements [hmd.Pipeline].
func (p *Pipeline) PresentBuffers(set []hgpu.Texture, used []hmd.RenderInfo, params hmd.RenderParams) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.PresentErr != nil {
		return p.PresentErr
	}
	p.presents = append(p.presents, PresentCall{
		Set:    append([]hgpu.Texture(nil), set...),
		Used:   append([]hmd.RenderInfo(nil), used...),
		Params: params,
	})
	return nil
}

// Shutdown implements [hmd.Pipeline].
// Shutting down twice panics, as a use-after-free would.
func (p *Pipeline) Shutdown() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		panic(fmt.Sprintf("pipeline with %d views shut down twice", p.views))
	}
	p.shutdown = true
	return nil
}

// Registers returns the recorded RegisterBuffers calls.
func (p *Pipeline) Registers() []RegisterCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]RegisterCall(nil), p.registers...)
}

// Presents returns the recorded PresentBuffers calls.
func (p *Pipeline) Presents() []PresentCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PresentCall(nil), p.presents...)
}

// Queries returns the recorded GetRenderInfo params, in call order.
func (p *Pipeline) Queries() []hmd.RenderParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]hmd.RenderParams(nil), p.queries...)
}

// ShutdownCalled reports whether Shutdown ran.
func (p *Pipeline) ShutdownCalled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.shutdown
}

// Opener returns an [hmd.Opener] producing pipelines with the given
// view count, and a pointer through which the test can reach
// the most recently opened pipeline.
func Opener(views int) (hmd.Opener, *Opened) {
	o := &Opened{}
	return func() (hmd.Pipeline, error) {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.Err != nil {
			return nil, o.Err
		}
		p := NewPipeline(views)
		o.pipelines = append(o.pipelines, p)
		return p, nil
	}, o
}

// Opened tracks the pipelines produced by an [Opener].
type Opened struct {
	mu        sync.Mutex
	pipelines []*Pipeline

	// Err, when set, makes every open fail until it is cleared.
	Err error
}

// Count returns how many pipelines have been opened.
func (o *Opened) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pipelines)
}

// Last returns the most recently opened pipeline.
func (o *Opened) Last() *Pipeline {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pipelines[len(o.pipelines)-1]
}

// At returns the i'th opened pipeline.
func (o *Opened) At(i int) *Pipeline {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pipelines[i]
}
