package hmd

import "github.com/motionreality/hmdlink/hgpu"

// Default render parameters, matching the render manager's own defaults.
// A zero on the wire means "leave the default alone".
const (
	DefaultNearClipMeters = 0.1
	DefaultFarClipMeters  = 100.0
	DefaultIPDMeters      = 0.063
)

// RenderParams are the adjustable inputs to a render-info query.
type RenderParams struct {
	NearClipMeters float64
	FarClipMeters  float64
	IPDMeters      float64

	// RoomFromHeadReplace, when non-nil, overrides the tracked head pose
	// for this query only.
	RoomFromHeadReplace *Pose
}

// DefaultRenderParams returns params with every field at its default.
func DefaultRenderParams() RenderParams {
	return RenderParams{
		NearClipMeters: DefaultNearClipMeters,
		FarClipMeters:  DefaultFarClipMeters,
		IPDMeters:      DefaultIPDMeters,
	}
}

// Pipeline is the display pipeline owned by the render-server process.
//
// Implementations are not required to be safe for concurrent use;
// the bridge drives a pipeline from a single session worker.
type Pipeline interface {
	// GetRenderInfo returns one RenderInfo per view,
	// in a stable view order.
	GetRenderInfo(params RenderParams) ([]RenderInfo, error)

	// RegisterBuffers introduces one buffer set to the pipeline,
	// one texture per view, in view order.
	// appWillPresent tells the pipeline the application
	// will drive presentation explicitly.
	RegisterBuffers(set []hgpu.Texture, appWillPresent bool) error

	// PresentBuffers composites the given registered set to the display,
	// using the supplied per-view render info and parameters.
	PresentBuffers(set []hgpu.Texture, used []RenderInfo, params RenderParams) error

	// Shutdown tears the pipeline down.
	// The pipeline must not be used afterward.
	Shutdown() error
}

// Opener creates a fresh [Pipeline].
//
// The bridge opens the pipeline lazily on first use
// and re-opens it when a client re-registers buffers,
// so the Opener may be invoked several times per process.
type Opener func() (Pipeline, error)
