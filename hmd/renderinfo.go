package hmd

import "github.com/go-gl/mathgl/mgl64"

// Viewport locates one view on the display,
// with the lower-left corner of the screen as (0,0).
type Viewport struct {
	Left   float64
	Lower  float64
	Width  float64
	Height float64
}

// Pose is a rigid transform: a translation and an orientation.
type Pose struct {
	Translation mgl64.Vec3
	Rotation    mgl64.Quat
}

// IdentityPose returns a pose with zero translation and identity rotation.
func IdentityPose() Pose {
	return Pose{Rotation: mgl64.QuatIdent()}
}

// PoseFromQuaternion returns a pose at the origin with the given orientation.
// This is how a client-supplied head orientation becomes a room-from-head
// replacement pose at present time.
func PoseFromQuaternion(q mgl64.Quat) Pose {
	return Pose{Rotation: q}
}

// Projection describes an off-axis projection frustum for one view.
type Projection struct {
	Left     float64
	Right    float64
	Top      float64
	Bottom   float64
	NearClip float64
	FarClip  float64
}

// RenderInfo describes everything a client needs to render one view:
// where it lands on the display, the head pose to render from,
// and the projection frustum.
type RenderInfo struct {
	Viewport   Viewport
	Pose       Pose
	Projection Projection
}
