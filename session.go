package hmdlink

import (
	"fmt"
	"log/slog"

	"github.com/motionreality/hmdlink/hgpu"
	"github.com/motionreality/hmdlink/hmd"
	"github.com/motionreality/hmdlink/internal/hpipe"
	"github.com/motionreality/hmdlink/internal/hwire"
)

// session is the per-connection state machine.
//
// A session runs on a single worker goroutine from accept to teardown.
// Any transport or protocol error ends the session;
// only bad present parameters and pipeline present failures are soft,
// reported to the client as a result code.
type session struct {
	log  *slog.Logger
	conn *hpipe.Conn

	device       hgpu.Device
	openPipeline hmd.Opener

	// The pipeline is opened lazily on the first message that needs it
	// and re-opened when a client re-registers buffers.
	pipeline hmd.Pipeline

	// viewCount is fixed by the first pipeline query.
	// Zero means no pipeline has been opened yet.
	viewCount int

	lastRenderInfo []hmd.RenderInfo
	renderParams   hmd.RenderParams

	gate presentGate

	presentCount uint64

	recvBuf []byte
}

func newSession(log *slog.Logger, conn *hpipe.Conn, device hgpu.Device, open hmd.Opener) *session {
	return &session{
		log:  log,
		conn: conn,

		device:       device,
		openPipeline: open,

		renderParams: hmd.DefaultRenderParams(),

		gate: newPresentGate(),

		recvBuf: make([]byte, hwire.MaxRequestSize),
	}
}

// serve processes messages until the connection or the protocol fails.
// The returned error says why the session ended;
// a clean client disconnect surfaces as [io.EOF].
func (s *session) serve() error {
	for {
		n, err := s.conn.Receive(s.recvBuf)
		if err != nil {
			return err
		}
		msg := s.recvBuf[:n]

		t, err := hwire.PeekType(msg)
		if err != nil {
			return err
		}

		switch t {
		case hwire.RequestRenderInfoType:
			err = s.handleRequestRenderInfo(msg)
		case hwire.RegisterBuffersType:
			err = s.handleRegisterBuffers(msg)
		case hwire.BeginPresentType:
			err = s.handleBeginPresent(msg)
		default:
			err = hwire.UnknownMessageTypeError{Type: t}
		}
		if err != nil {
			return err
		}
	}
}

// teardown releases every held mutex, drops every imported texture,
// and shuts the pipeline down.
// It must run exactly once, after serve returns.
func (s *session) teardown() {
	if err := s.gate.close(); err != nil {
		s.log.Warn("Error releasing buffer sets at teardown", "err", err)
	}
	if s.pipeline != nil {
		if err := s.pipeline.Shutdown(); err != nil {
			s.log.Warn("Error shutting down pipeline", "err", err)
		}
		s.pipeline = nil
	}
}

// ensurePipeline opens the pipeline if it isn't open yet.
// The initial render-info query establishes the session's view count,
// so a RegisterBuffers arriving before any RequestRenderInfo
// still knows how large a buffer set is.
func (s *session) ensurePipeline() error {
	if s.pipeline != nil {
		return nil
	}

	p, err := s.openPipeline()
	if err != nil {
		return fmt.Errorf("failed to open display pipeline: %w", err)
	}

	infos, err := p.GetRenderInfo(hmd.DefaultRenderParams())
	if err != nil {
		if serr := p.Shutdown(); serr != nil {
			s.log.Warn("Error shutting down pipeline after failed query", "err", serr)
		}
		return fmt.Errorf("initial render info query failed: %w", err)
	}

	if len(infos) < 1 || len(infos) > hwire.MaxRenderInfoCount {
		if serr := p.Shutdown(); serr != nil {
			s.log.Warn("Error shutting down pipeline after bad view count", "err", serr)
		}
		return InvalidViewCountError{Views: len(infos)}
	}
	if s.viewCount != 0 && len(infos) != s.viewCount {
		if serr := p.Shutdown(); serr != nil {
			s.log.Warn("Error shutting down pipeline after view count change", "err", serr)
		}
		return ViewCountChangedError{Was: s.viewCount, Now: len(infos)}
	}

	s.pipeline = p
	s.viewCount = len(infos)
	s.lastRenderInfo = infos
	s.renderParams = hmd.DefaultRenderParams()

	s.log.Info("Opened display pipeline", "views", s.viewCount)
	for i, info := range infos {
		s.log.Debug("View geometry",
			"view", i,
			"width", info.Viewport.Width,
			"height", info.Viewport.Height,
		)
	}
	return nil
}

// resetPipeline tears down all registered sets and the pipeline itself.
// Re-registration in a live session forces this full reset.
func (s *session) resetPipeline() error {
	if err := s.gate.close(); err != nil {
		s.log.Warn("Error releasing buffer sets during reset", "err", err)
	}
	s.gate = newPresentGate()

	if s.pipeline != nil {
		if err := s.pipeline.Shutdown(); err != nil {
			s.log.Warn("Error shutting down pipeline during reset", "err", err)
		}
		s.pipeline = nil
	}
	return nil
}

func (s *session) handleRequestRenderInfo(b []byte) error {
	var msg hwire.RequestRenderInfo
	if err := msg.Decode(b); err != nil {
		return err
	}

	if err := s.ensurePipeline(); err != nil {
		return err
	}

	// Zeros on the wire mean "leave the default alone".
	params := hmd.DefaultRenderParams()
	if msg.NearClip > 0 {
		params.NearClipMeters = float64(msg.NearClip)
	}
	if msg.FarClip > 0 {
		params.FarClipMeters = float64(msg.FarClip)
	}
	if msg.IPD > 0 {
		params.IPDMeters = float64(msg.IPD)
	}

	infos, err := s.pipeline.GetRenderInfo(params)
	if err != nil {
		return fmt.Errorf("render info query failed: %w", err)
	}
	if len(infos) != s.viewCount {
		return ViewCountChangedError{Was: s.viewCount, Now: len(infos)}
	}

	s.renderParams = params
	s.lastRenderInfo = infos

	reply := hwire.SendRenderInfo{
		Infos: infos[:min(len(infos), hwire.MaxRenderInfoCount)],
	}
	return s.conn.Send(reply.Encode())
}

func (s *session) handleRegisterBuffers(b []byte) error {
	var msg hwire.RegisterBuffers
	if err := msg.Decode(b); err != nil {
		return err
	}

	s.log.Info("Registering buffers", "handles", len(msg.Handles))

	// A second registration in the same session forces a full reset:
	// every previously imported texture and the pipeline itself go away
	// before the new registration is built.
	if s.gate.setCount() > 0 {
		s.log.Info("Re-registration forces a pipeline reset")
		if err := s.resetPipeline(); err != nil {
			return err
		}
	}

	if err := s.ensurePipeline(); err != nil {
		return err
	}

	if len(msg.Handles)%s.viewCount != 0 {
		return UnevenBufferCountError{Buffers: len(msg.Handles), Views: s.viewCount}
	}
	setCount := len(msg.Handles) / s.viewCount

	sets := make([]*bufferSet, 0, setCount)
	closeSets := func() {
		for _, set := range sets {
			if err := set.close(); err != nil {
				s.log.Warn("Error closing buffer set after failed registration", "err", err)
			}
		}
	}

	for iSet := 0; iSet < setCount; iSet++ {
		set := &bufferSet{textures: make([]*importedTexture, 0, s.viewCount)}
		sets = append(sets, set)

		for iView := 0; iView < s.viewCount; iView++ {
			h := msg.Handles[iSet*s.viewCount+iView]
			tex, err := importTexture(s.device, h)
			if err != nil {
				closeSets()
				return err
			}
			set.textures = append(set.textures, tex)
		}

		// The registration itself happens with the server holding
		// every key in the set, so the pipeline's bookkeeping sees
		// a stable texture state; the keys go straight back after.
		if err := set.acquireAll(); err != nil {
			closeSets()
			return err
		}
		regErr := s.pipeline.RegisterBuffers(set.gpuTextures(), true)
		if err := set.releaseAll(); err != nil {
			closeSets()
			return err
		}
		if regErr != nil {
			closeSets()
			return fmt.Errorf("pipeline rejected buffer set %d: %w", iSet, regErr)
		}
	}

	s.gate.install(sets)
	s.log.Info("Registered buffer sets", "sets", setCount, "views", s.viewCount)

	// RegisterBuffers has no success reply.
	return nil
}

func (s *session) handleBeginPresent(b []byte) error {
	var msg hwire.BeginPresent
	if err := msg.Decode(b); err != nil {
		return err
	}

	// Ack before presenting, so the client's round-trip timer can
	// separate "server received" from "server finished presenting".
	if err := s.conn.Send(hwire.PresentAck{}.Encode()); err != nil {
		return err
	}

	code := s.present(msg)

	if err := s.conn.Send(hwire.PresentResult{Code: code}.Encode()); err != nil {
		return err
	}

	s.presentCount++
	if s.presentCount == 1 || s.presentCount%60 == 0 {
		s.log.Debug("Presented frames", "count", s.presentCount)
	}
	return nil
}

// present performs one present and returns its result code.
// Failures here are soft: the session continues,
// and the client learns the outcome from the code.
func (s *session) present(msg hwire.BeginPresent) int32 {
	if s.pipeline == nil || s.gate.setCount() == 0 {
		s.log.Warn("Present before any buffer registration")
		return hwire.PresentBadParameter
	}

	idx := int(msg.SetIndex)
	if idx >= s.gate.setCount() {
		s.log.Warn("Invalid buffer set index", "idx", idx, "sets", s.gate.setCount())
		return hwire.PresentBadParameter
	}

	// A supplied head pose replaces the tracked one for this present only.
	infosUsed := s.lastRenderInfo
	if msg.HeadValid {
		temp := s.renderParams
		pose := hmd.PoseFromQuaternion(msg.Orientation)
		temp.RoomFromHeadReplace = &pose

		infos, err := s.pipeline.GetRenderInfo(temp)
		if err != nil {
			s.log.Warn("Render info query for head pose failed", "err", err)
			return hwire.PresentPipelineFailed
		}
		infosUsed = infos
	}

	if err := s.gate.beginPresent(idx); err != nil {
		s.log.Warn("Failed to acquire mutexes for present", "idx", idx, "err", err)
	}

	perr := s.pipeline.PresentBuffers(s.gate.sets[idx].gpuTextures(), infosUsed, s.renderParams)

	if err := s.gate.finishPresent(idx); err != nil {
		s.log.Warn("Failed to release previous set's mutexes", "err", err)
	}

	if perr != nil {
		s.log.Warn("Pipeline present failed", "idx", idx, "err", perr)
		return hwire.PresentPipelineFailed
	}
	return hwire.PresentOK
}
