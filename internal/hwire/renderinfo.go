package hwire

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/motionreality/hmdlink/hmd"
)

// Render infos cross the wire as the packed concatenation of
// viewport, pose, and projection, all f64, no padding.
// Encoding and decoding go field by field rather than through
// any kind of in-memory layout reinterpretation,
// so the wire format stays pinned if the structs ever change.

func putF64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func getF64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// encodeRenderInfo packs info into dst, which must be
// at least RenderInfoSize bytes.
func encodeRenderInfo(dst []byte, info hmd.RenderInfo) {
	putF64(dst[0:], info.Viewport.Left)
	putF64(dst[8:], info.Viewport.Lower)
	putF64(dst[16:], info.Viewport.Width)
	putF64(dst[24:], info.Viewport.Height)

	putF64(dst[32:], info.Pose.Translation[0])
	putF64(dst[40:], info.Pose.Translation[1])
	putF64(dst[48:], info.Pose.Translation[2])
	putF64(dst[56:], info.Pose.Rotation.W)
	putF64(dst[64:], info.Pose.Rotation.V[0])
	putF64(dst[72:], info.Pose.Rotation.V[1])
	putF64(dst[80:], info.Pose.Rotation.V[2])

	putF64(dst[88:], info.Projection.Left)
	putF64(dst[96:], info.Projection.Right)
	putF64(dst[104:], info.Projection.Top)
	putF64(dst[112:], info.Projection.Bottom)
	putF64(dst[120:], info.Projection.NearClip)
	putF64(dst[128:], info.Projection.FarClip)
}

// decodeRenderInfo unpacks one render info from b,
// which must be at least RenderInfoSize bytes.
func decodeRenderInfo(b []byte) hmd.RenderInfo {
	return hmd.RenderInfo{
		Viewport: hmd.Viewport{
			Left:   getF64(b[0:]),
			Lower:  getF64(b[8:]),
			Width:  getF64(b[16:]),
			Height: getF64(b[24:]),
		},
		Pose: hmd.Pose{
			Translation: mgl64.Vec3{
				getF64(b[32:]),
				getF64(b[40:]),
				getF64(b[48:]),
			},
			Rotation: mgl64.Quat{
				W: getF64(b[56:]),
				V: mgl64.Vec3{
					getF64(b[64:]),
					getF64(b[72:]),
					getF64(b[80:]),
				},
			},
		},
		Projection: hmd.Projection{
			Left:     getF64(b[88:]),
			Right:    getF64(b[96:]),
			Top:      getF64(b[104:]),
			Bottom:   getF64(b[112:]),
			NearClip: getF64(b[120:]),
			FarClip:  getF64(b[128:]),
		},
	}
}
