package hmdlink_test

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/motionreality/hmdlink"
	"github.com/motionreality/hmdlink/hgpu"
	"github.com/motionreality/hmdlink/hgpu/hgputest"
	"github.com/motionreality/hmdlink/hmd/hmdtest"
	"github.com/motionreality/hmdlink/internal/htest"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

type fixture struct {
	dir    string
	device *hgputest.Device
	opened *hmdtest.Opened
	server *hmdlink.Server
	done   chan error
}

// startServer runs a server with the fake device and pipeline
// in a background goroutine, stopping it at test cleanup.
func startServer(t *testing.T, views int) *fixture {
	t.Helper()

	f := &fixture{
		dir:    t.TempDir(),
		device: hgputest.NewDevice(),
		done:   make(chan error, 1),
	}

	opener, opened := hmdtest.Opener(views)
	f.opened = opened

	f.server = hmdlink.NewServer(htest.NewLogger(t), hmdlink.ServerConfig{
		SocketDir:    f.dir,
		Device:       f.device,
		OpenPipeline: opener,
	})

	go func() { f.done <- f.server.Run() }()

	t.Cleanup(func() {
		f.server.Shutdown()
		select {
		case err := <-f.done:
			require.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("server did not stop after Shutdown")
		}
	})

	return f
}

// connect dials the fixture's server, retrying until its endpoint is up.
func connect(t *testing.T, f *fixture) *hmdlink.Client {
	t.Helper()

	c := hmdlink.NewClient(htest.NewLogger(t), hmdlink.ClientConfig{SocketDir: f.dir})
	require.Eventually(t, func() bool {
		return c.Connect(true) == nil
	}, waitFor, tick)
	t.Cleanup(c.Close)
	return c
}

func sharedTextures(handles ...hgpu.SharedHandle) []hgpu.SharedTexture {
	texs := make([]hgpu.SharedTexture, len(handles))
	for i, h := range handles {
		texs[i] = hgputest.SharedTexture{Handle: h}
	}
	return texs
}

func TestHandshakeOnly(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	require.Equal(t, 2, c.RenderInfoCount())
	require.Equal(t, float64(960), c.RenderInfo(0).Viewport.Width)

	// Non-zero params are forwarded; zeros keep the defaults.
	c.SetRenderParams(0.25, 500, 0)
	require.NoError(t, c.UpdateRenderInfo())

	queries := f.opened.Last().Queries()
	last := queries[len(queries)-1]
	require.Equal(t, 0.25, last.NearClipMeters)
	require.Equal(t, float64(500), last.FarClipMeters)
	require.Equal(t, 0.063, last.IPDMeters)

	c.Disconnect()

	// No textures were ever registered, and the lazily opened
	// pipeline is torn down with the session.
	require.Empty(t, f.device.OpenedTextures())
	require.Eventually(t, func() bool {
		return f.opened.Last().ShutdownCalled()
	}, waitFor, tick)
}

func TestRegisterAndPresentOnce(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	require.NoError(t, c.RegisterRenderBuffers(sharedTextures(100, 101)))
	require.NoError(t, c.PresentRenderBuffers(0, nil))

	p := f.opened.Last()

	regs := p.Registers()
	require.Len(t, regs, 1)
	require.True(t, regs[0].AppWillPresent)
	require.Len(t, regs[0].Set, 2)

	require.Len(t, p.Presents(), 1)

	// Registration acquires and releases each key once;
	// the present leaves the set held by the server.
	for i := 0; i < 2; i++ {
		m := f.device.OpenedTexture(i).Mutex()
		require.Equal(t, 2, m.Acquires())
		require.Equal(t, 1, m.Releases())
		require.True(t, m.Held())
	}

	c.Disconnect()

	// Teardown balances every mutex and drops every reference.
	require.Eventually(t, func() bool {
		for i := 0; i < 2; i++ {
			m := f.device.OpenedTexture(i).Mutex()
			if m.Acquires() != m.Releases() || !m.RefDropped() {
				return false
			}
			if !f.device.OpenedTexture(i).Released() {
				return false
			}
		}
		return p.ShutdownCalled()
	}, waitFor, tick)
}

func TestHandOffAcrossTwoSets(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	require.NoError(t, c.RegisterRenderBuffers(sharedTextures(0xa0, 0xa1, 0xb0, 0xb1)))

	require.NoError(t, c.PresentRenderBuffers(0, nil))
	require.NoError(t, c.PresentRenderBuffers(1, nil))

	// Presenting set 1 handed back exactly set 0.
	for i := 0; i < 2; i++ {
		m := f.device.OpenedTexture(i).Mutex()
		require.Equal(t, 2, m.Acquires(), "set 0 texture %d", i)
		require.Equal(t, 2, m.Releases(), "set 0 texture %d", i)
	}
	for i := 2; i < 4; i++ {
		m := f.device.OpenedTexture(i).Mutex()
		require.Equal(t, 2, m.Acquires(), "set 1 texture %d", i)
		require.Equal(t, 1, m.Releases(), "set 1 texture %d", i)
		require.True(t, m.Held(), "set 1 texture %d", i)
	}

	c.Disconnect()

	require.Eventually(t, func() bool {
		for i := 0; i < 4; i++ {
			m := f.device.OpenedTexture(i).Mutex()
			if m.Acquires() != m.Releases() {
				return false
			}
		}
		return true
	}, waitFor, tick)
}

func TestPoseOverride(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	require.NoError(t, c.RegisterRenderBuffers(sharedTextures(1, 2)))

	q := mgl64.Quat{W: 1}
	require.NoError(t, c.PresentRenderBuffers(0, &q))

	p := f.opened.Last()

	// The present re-queried render info with the supplied
	// orientation replacing the tracked head pose.
	queries := p.Queries()
	last := queries[len(queries)-1]
	require.NotNil(t, last.RoomFromHeadReplace)
	require.Equal(t, q, last.RoomFromHeadReplace.Rotation)

	presents := p.Presents()
	require.Len(t, presents, 1)
	require.Equal(t, q, presents[0].Used[0].Pose.Rotation)

	// Without a pose, the cached render info is used
	// and no extra query happens.
	before := len(p.Queries())
	require.NoError(t, c.PresentRenderBuffers(0, nil))
	require.Len(t, p.Queries(), before)
}

func TestBadSetIndexIsSoft(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	require.NoError(t, c.RegisterRenderBuffers(sharedTextures(5, 6)))

	// One set registered, so index 1 is out of range.
	err := c.PresentRenderBuffers(1, nil)
	var pfe hmdlink.PresentFailedError
	require.ErrorAs(t, err, &pfe)
	require.Equal(t, int32(-1), pfe.Code)

	// Nothing was acquired for the failed present.
	for i := 0; i < 2; i++ {
		require.Equal(t, 1, f.device.OpenedTexture(i).Mutex().Acquires())
	}

	// The session survives and the set is still presentable.
	require.NoError(t, c.PresentRenderBuffers(0, nil))
}

func TestPresentBeforeRegisterIsSoft(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	err := c.PresentRenderBuffers(0, nil)
	var pfe hmdlink.PresentFailedError
	require.ErrorAs(t, err, &pfe)
	require.Equal(t, int32(-1), pfe.Code)

	require.True(t, c.IsConnected())
	require.NoError(t, c.UpdateRenderInfo())
}

func TestPipelinePresentFailureIsSoft(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	require.NoError(t, c.RegisterRenderBuffers(sharedTextures(8, 9)))

	f.opened.Last().PresentErr = errors.New("display glitch")

	err := c.PresentRenderBuffers(0, nil)
	var pfe hmdlink.PresentFailedError
	require.ErrorAs(t, err, &pfe)
	require.Equal(t, int32(-2), pfe.Code)

	// The session continues.
	f.opened.Last().PresentErr = nil
	require.NoError(t, c.PresentRenderBuffers(0, nil))
}

func TestReregistrationForcesReset(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	require.NoError(t, c.RegisterRenderBuffers(sharedTextures(1, 2)))
	require.NoError(t, c.PresentRenderBuffers(0, nil))

	first := f.opened.Last()

	require.NoError(t, c.RegisterRenderBuffers(sharedTextures(3, 4)))
	require.NoError(t, c.PresentRenderBuffers(0, nil))

	// The second registration tore the first pipeline down,
	// opened a fresh one, and balanced the first set's mutexes.
	require.Equal(t, 2, f.opened.Count())
	require.True(t, first.ShutdownCalled())
	for i := 0; i < 2; i++ {
		m := f.device.OpenedTexture(i).Mutex()
		require.Equal(t, m.Acquires(), m.Releases())
		require.True(t, m.RefDropped())
	}

	require.Len(t, f.opened.Last().Presents(), 1)
}

func TestImportFailureEndsSession(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	f.device.FailOpen(101, hgpu.ErrInvalidHandle)

	// Registration has no success reply, so the failure surfaces
	// as a dead connection on the next exchange.
	require.NoError(t, c.RegisterRenderBuffers(sharedTextures(100, 101)))
	require.Error(t, c.PresentRenderBuffers(0, nil))
	require.False(t, c.IsConnected())

	// The texture imported before the failure was not leaked.
	require.Eventually(t, func() bool {
		texs := f.device.OpenedTextures()
		return len(texs) == 1 && texs[0].Released()
	}, waitFor, tick)
}

func TestClientRejectsUnevenRegistration(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	err := c.RegisterRenderBuffers(sharedTextures(1, 2, 3))
	require.ErrorAs(t, err, &hmdlink.UnevenBufferCountError{})

	// The rejection is local; the connection is still live.
	require.True(t, c.IsConnected())
	require.NoError(t, c.UpdateRenderInfo())
}

func TestClientRejectsOversizeRegistration(t *testing.T) {
	t.Parallel()

	f := startServer(t, 1)
	c := connect(t, f)

	handles := make([]hgpu.SharedHandle, 17)
	for i := range handles {
		handles[i] = hgpu.SharedHandle(i + 1)
	}
	require.Error(t, c.RegisterRenderBuffers(sharedTextures(handles...)))
	require.True(t, c.IsConnected())
}

func TestInvalidViewCountEndsSession(t *testing.T) {
	t.Parallel()

	f := startServer(t, 0)
	waitEndpoint(t, f.dir)

	// The dial itself succeeds, but the handshake dies when the
	// pipeline reports zero views: the server disconnects without
	// sending a render info reply.
	c := hmdlink.NewClient(htest.NewLogger(t), hmdlink.ClientConfig{SocketDir: f.dir})
	require.Error(t, c.Connect(true))
	require.False(t, c.IsConnected())
}

func TestServerShutdownEndsSession(t *testing.T) {
	t.Parallel()

	f := startServer(t, 2)
	c := connect(t, f)

	f.server.Shutdown()

	// Wait joins the accept loop once Shutdown has ended it.
	waited := make(chan struct{})
	go func() {
		f.server.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(waitFor):
		t.Fatal("Wait did not return after Shutdown")
	}

	select {
	case err := <-f.done:
		require.NoError(t, err)
		f.done <- nil
	case <-time.After(waitFor):
		t.Fatal("server did not stop")
	}

	// The client's next exchange observes the dropped pipe.
	require.Error(t, c.UpdateRenderInfo())
}

func TestNewServerValidatesConfig(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() {
		hmdlink.NewServer(htest.NewLogger(t), hmdlink.ServerConfig{})
	})
}
