package hwire

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/motionreality/hmdlink/hgpu"
	"github.com/motionreality/hmdlink/hmd"
)

// RequestRenderInfo asks the server for per-view render info.
// A zero in any field means "use the pipeline default",
// and the server must not forward it.
type RequestRenderInfo struct {
	NearClip float32
	FarClip  float32
	IPD      float32
}

// EncodedSize returns the wire length of m.
func (RequestRenderInfo) EncodedSize() int {
	return RequestRenderInfoSize
}

// Encode returns the wire form of m.
func (m RequestRenderInfo) Encode() []byte {
	b := make([]byte, m.EncodedSize())
	binary.LittleEndian.PutUint32(b[0:], uint32(RequestRenderInfoType))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(m.NearClip))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(m.FarClip))
	binary.LittleEndian.PutUint32(b[12:], math.Float32bits(m.IPD))
	return b
}

// Decode populates m from b.
func (m *RequestRenderInfo) Decode(b []byte) error {
	if err := checkFixedSize(RequestRenderInfoType, b, RequestRenderInfoSize); err != nil {
		return err
	}
	m.NearClip = math.Float32frombits(binary.LittleEndian.Uint32(b[4:]))
	m.FarClip = math.Float32frombits(binary.LittleEndian.Uint32(b[8:]))
	m.IPD = math.Float32frombits(binary.LittleEndian.Uint32(b[12:]))
	return nil
}

// SendRenderInfo is the server's reply to RequestRenderInfo:
// a count followed by that many packed render infos.
type SendRenderInfo struct {
	Infos []hmd.RenderInfo
}

// EncodedSize returns the wire length of m:
// the fixed prefix plus one packed render info per view.
func (m SendRenderInfo) EncodedSize() int {
	return SendRenderInfoFixedSize + len(m.Infos)*RenderInfoSize
}

// Encode returns the wire form of m.
// The caller is responsible for capping the info count;
// encoding more than MaxRenderInfoCount is a bug.
func (m SendRenderInfo) Encode() []byte {
	if len(m.Infos) > MaxRenderInfoCount {
		panic(errors.New("BUG: SendRenderInfo must be capped to MaxRenderInfoCount before encoding"))
	}

	b := make([]byte, m.EncodedSize())
	binary.LittleEndian.PutUint32(b[0:], uint32(SendRenderInfoType))
	binary.LittleEndian.PutUint32(b[4:], uint32(len(m.Infos)))
	for i, info := range m.Infos {
		encodeRenderInfo(b[SendRenderInfoFixedSize+i*RenderInfoSize:], info)
	}
	return b
}

// Decode populates m from b.
// A count of zero or above MaxRenderInfoCount is a protocol error,
// as is any length that disagrees with the count.
func (m *SendRenderInfo) Decode(b []byte) error {
	if err := checkHeader(SendRenderInfoType, b); err != nil {
		return err
	}
	if len(b) < SendRenderInfoFixedSize {
		return SizeMismatchError{Type: SendRenderInfoType, Got: len(b), Want: SendRenderInfoFixedSize}
	}

	count := binary.LittleEndian.Uint32(b[4:])
	if count < 1 || count > MaxRenderInfoCount {
		return CountOutOfRangeError{
			Type: SendRenderInfoType, Count: count,
			Min: 1, Max: MaxRenderInfoCount,
		}
	}

	want := SendRenderInfoFixedSize + int(count)*RenderInfoSize
	if len(b) != want {
		return SizeMismatchError{Type: SendRenderInfoType, Got: len(b), Want: want}
	}

	m.Infos = make([]hmd.RenderInfo, count)
	for i := range m.Infos {
		m.Infos[i] = decodeRenderInfo(b[SendRenderInfoFixedSize+i*RenderInfoSize:])
	}
	return nil
}

// RegisterBuffers carries the shared handles for every texture
// the client wants the server to import, in set-major view order.
type RegisterBuffers struct {
	Handles []hgpu.SharedHandle
}

// EncodedSize returns the wire length of m:
// the fixed prefix plus one handle per buffer.
func (m RegisterBuffers) EncodedSize() int {
	return RegisterBuffersFixedSize + len(m.Handles)*HandleSize
}

// Encode returns the wire form of m.
// Encoding more than MaxBufferCount handles is a bug;
// the client API rejects oversize registrations before reaching here.
func (m RegisterBuffers) Encode() []byte {
	if len(m.Handles) > MaxBufferCount {
		panic(errors.New("BUG: RegisterBuffers must be capped to MaxBufferCount before encoding"))
	}

	b := make([]byte, m.EncodedSize())
	binary.LittleEndian.PutUint32(b[0:], uint32(RegisterBuffersType))
	binary.LittleEndian.PutUint32(b[4:], uint32(len(m.Handles)))
	for i, h := range m.Handles {
		binary.LittleEndian.PutUint64(b[RegisterBuffersFixedSize+i*HandleSize:], uint64(h))
	}
	return b
}

// Decode populates m from b.
func (m *RegisterBuffers) Decode(b []byte) error {
	if err := checkHeader(RegisterBuffersType, b); err != nil {
		return err
	}
	if len(b) < RegisterBuffersFixedSize {
		return SizeMismatchError{Type: RegisterBuffersType, Got: len(b), Want: RegisterBuffersFixedSize}
	}

	count := binary.LittleEndian.Uint32(b[4:])
	if count > MaxBufferCount {
		return CountOutOfRangeError{
			Type: RegisterBuffersType, Count: count,
			Min: 0, Max: MaxBufferCount,
		}
	}

	want := RegisterBuffersFixedSize + int(count)*HandleSize
	if len(b) != want {
		return SizeMismatchError{Type: RegisterBuffersType, Got: len(b), Want: want}
	}

	m.Handles = make([]hgpu.SharedHandle, count)
	for i := range m.Handles {
		m.Handles[i] = hgpu.SharedHandle(
			binary.LittleEndian.Uint64(b[RegisterBuffersFixedSize+i*HandleSize:]),
		)
	}
	return nil
}

// BeginPresent asks the server to present one registered buffer set,
// optionally overriding the head orientation used for the present.
type BeginPresent struct {
	SetIndex uint32

	// HeadValid indicates Orientation carries a usable head pose.
	HeadValid   bool
	Orientation mgl64.Quat
}

// EncodedSize returns the wire length of m.
func (BeginPresent) EncodedSize() int {
	return BeginPresentSize
}

// Encode returns the wire form of m.
func (m BeginPresent) Encode() []byte {
	b := make([]byte, m.EncodedSize())
	binary.LittleEndian.PutUint32(b[0:], uint32(BeginPresentType))
	binary.LittleEndian.PutUint32(b[4:], m.SetIndex)

	var valid uint32
	if m.HeadValid {
		valid = 1
	}
	binary.LittleEndian.PutUint32(b[8:], valid)

	putF64(b[12:], m.Orientation.W)
	putF64(b[20:], m.Orientation.V[0])
	putF64(b[28:], m.Orientation.V[1])
	putF64(b[36:], m.Orientation.V[2])
	return b
}

// Decode populates m from b.
func (m *BeginPresent) Decode(b []byte) error {
	if err := checkFixedSize(BeginPresentType, b, BeginPresentSize); err != nil {
		return err
	}
	m.SetIndex = binary.LittleEndian.Uint32(b[4:])
	m.HeadValid = binary.LittleEndian.Uint32(b[8:]) != 0
	m.Orientation = mgl64.Quat{
		W: getF64(b[12:]),
		V: mgl64.Vec3{getF64(b[20:]), getF64(b[28:]), getF64(b[36:])},
	}
	return nil
}

// PresentAck tells the client the server has received BeginPresent
// and is about to perform the present.
type PresentAck struct{}

// EncodedSize returns the wire length of m.
func (PresentAck) EncodedSize() int {
	return PresentAckSize
}

// Encode returns the wire form of m.
func (m PresentAck) Encode() []byte {
	b := make([]byte, m.EncodedSize())
	binary.LittleEndian.PutUint32(b, uint32(PresentAckType))
	return b
}

// Decode validates b as a PresentAck.
func (*PresentAck) Decode(b []byte) error {
	return checkFixedSize(PresentAckType, b, PresentAckSize)
}

// PresentResult reports the outcome of a present:
// PresentOK, PresentBadParameter, or PresentPipelineFailed.
type PresentResult struct {
	Code int32
}

// EncodedSize returns the wire length of m.
func (PresentResult) EncodedSize() int {
	return PresentResultSize
}

// Encode returns the wire form of m.
func (m PresentResult) Encode() []byte {
	b := make([]byte, m.EncodedSize())
	binary.LittleEndian.PutUint32(b[0:], uint32(PresentResultType))
	binary.LittleEndian.PutUint32(b[4:], uint32(m.Code))
	return b
}

// Decode populates m from b.
func (m *PresentResult) Decode(b []byte) error {
	if err := checkFixedSize(PresentResultType, b, PresentResultSize); err != nil {
		return err
	}
	m.Code = int32(binary.LittleEndian.Uint32(b[4:]))
	return nil
}
