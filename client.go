package hmdlink

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/motionreality/hmdlink/hgpu"
	"github.com/motionreality/hmdlink/hmd"
	"github.com/motionreality/hmdlink/internal/hpipe"
	"github.com/motionreality/hmdlink/internal/hwire"
)

// ClientConfig is the configuration for a [Client].
type ClientConfig struct {
	// Directory holding the endpoint socket.
	// Empty selects the OS temporary directory,
	// which is where a default-configured server binds.
	SocketDir string
}

// Client is the library surface a rendering application links against.
//
// A Client is not safe for concurrent use:
// the protocol is strictly request/response on one pipe,
// so callers drive it from their render loop.
type Client struct {
	log *slog.Logger
	cfg ClientConfig

	conn *hpipe.Conn

	// The cached RequestRenderInfo payload.
	// Zeros mean "use the server's defaults".
	params hwire.RequestRenderInfo

	infos []hmd.RenderInfo

	recvBuf []byte

	stats presentStats
}

// NewClient returns a disconnected client.
func NewClient(log *slog.Logger, cfg ClientConfig) *Client {
	return &Client{
		log:     log,
		cfg:     cfg,
		recvBuf: make([]byte, hwire.MaxReplySize),
	}
}

// Close disconnects the client.
// The client may be reused by calling Connect again.
func (c *Client) Close() {
	c.Disconnect()
}

// Connect opens the pipe to the server and performs the initial
// render-info exchange.
// Any previous connection is dropped first.
func (c *Client) Connect(primary bool) error {
	c.Disconnect()

	ep := hpipe.Secondary
	if primary {
		ep = hpipe.Primary
	}

	conn, err := hpipe.Dial(c.cfg.SocketDir, ep)
	if err != nil {
		return err
	}
	c.conn = conn

	if err := c.UpdateRenderInfo(); err != nil {
		c.Disconnect()
		return err
	}
	return nil
}

// Disconnect drops the connection and the cached render info.
func (c *Client) Disconnect() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.infos = nil
}

// IsConnected reports whether the pipe is open.
func (c *Client) IsConnected() bool {
	return c.conn != nil
}

// SetRenderParams updates the cached render parameters sent with
// every render-info request. Zero for any value means
// "use the server's default".
// Call [Client.UpdateRenderInfo] afterward to apply them.
func (c *Client) SetRenderParams(nearClip, farClip, ipd float32) {
	c.params.NearClip = nearClip
	c.params.FarClip = farClip
	c.params.IPD = ipd
}

// UpdateRenderInfo asks the server for fresh per-view render info
// and caches the reply.
func (c *Client) UpdateRenderInfo() error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if err := c.send(c.params.Encode()); err != nil {
		return err
	}

	n, err := c.receive()
	if err != nil {
		return err
	}

	var reply hwire.SendRenderInfo
	if err := reply.Decode(c.recvBuf[:n]); err != nil {
		// A malformed reply poisons the whole session.
		c.Disconnect()
		return fmt.Errorf("bad render info reply: %w", err)
	}

	c.infos = reply.Infos
	return nil
}

// RenderInfoCount returns the number of views in the cached render info.
func (c *Client) RenderInfoCount() int {
	return len(c.infos)
}

// RenderInfo returns the cached render info for view i.
func (c *Client) RenderInfo(i int) hmd.RenderInfo {
	return c.infos[i]
}

// RegisterRenderBuffers extracts a shareable handle from every texture
// and registers them with the server, in set-major view order.
// The count must be a whole multiple of the view count,
// and at most 16 textures can be registered.
//
// The server sends no reply; a registration the server rejects
// surfaces as a dropped connection on the next call.
func (c *Client) RegisterRenderBuffers(textures []hgpu.SharedTexture) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if len(c.infos) == 0 || len(textures)%len(c.infos) != 0 {
		return UnevenBufferCountError{Buffers: len(textures), Views: len(c.infos)}
	}
	if len(textures) > hwire.MaxBufferCount {
		return fmt.Errorf("%d textures exceeds the protocol limit of %d",
			len(textures), hwire.MaxBufferCount)
	}

	msg := hwire.RegisterBuffers{
		Handles: make([]hgpu.SharedHandle, len(textures)),
	}
	for i, tex := range textures {
		h, err := tex.SharedHandle()
		if err != nil {
			// The connection is still fine; nothing was sent.
			return fmt.Errorf("failed to get shared handle for texture %d: %w", i, err)
		}
		msg.Handles[i] = h
	}

	return c.send(msg.Encode())
}

// PresentRenderBuffers asks the server to present one registered set.
// headPose, when non-nil, overrides the tracked head orientation
// for this present.
//
// The call blocks through the server's ack and present;
// a non-zero present result is returned as [PresentFailedError]
// and the connection stays up.
func (c *Client) PresentRenderBuffers(setIndex int, headPose *mgl64.Quat) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	msg := hwire.BeginPresent{SetIndex: uint32(setIndex)}
	if headPose != nil {
		msg.HeadValid = true
		msg.Orientation = *headPose
	}

	sent := time.Now()
	if err := c.send(msg.Encode()); err != nil {
		return err
	}

	n, err := c.receive()
	if err != nil {
		return err
	}
	var ack hwire.PresentAck
	if err := ack.Decode(c.recvBuf[:n]); err != nil {
		c.Disconnect()
		return fmt.Errorf("bad present ack: %w", err)
	}
	acked := time.Now()

	n, err = c.receive()
	if err != nil {
		return err
	}
	var result hwire.PresentResult
	if err := result.Decode(c.recvBuf[:n]); err != nil {
		c.Disconnect()
		return fmt.Errorf("bad present result: %w", err)
	}

	c.stats.record(c.log, sent, acked, time.Now())

	if result.Code != hwire.PresentOK {
		return PresentFailedError{Code: result.Code}
	}
	return nil
}

// send transmits one message, dropping the connection on failure.
func (c *Client) send(b []byte) error {
	if err := c.conn.Send(b); err != nil {
		c.Disconnect()
		return err
	}
	return nil
}

// receive blocks for one message, dropping the connection on failure.
func (c *Client) receive() (int, error) {
	n, err := c.conn.Receive(c.recvBuf)
	if err != nil {
		c.Disconnect()
		return 0, err
	}
	return n, nil
}

// presentStats accumulates present round-trip timing,
// reported once per 60 frames.
type presentStats struct {
	frames       int
	totalAck     time.Duration
	totalPresent time.Duration
	maxPresent   time.Duration
}

func (ps *presentStats) record(log *slog.Logger, sent, acked, done time.Time) {
	ps.frames++
	ps.totalAck += acked.Sub(sent)
	ps.totalPresent += done.Sub(acked)
	ps.maxPresent = max(ps.maxPresent, done.Sub(acked))

	if ps.frames%60 != 0 {
		return
	}
	log.Debug("Present timing",
		"avg_ack", ps.totalAck/time.Duration(ps.frames),
		"avg_present", ps.totalPresent/time.Duration(ps.frames),
		"max_present", ps.maxPresent,
	)
	*ps = presentStats{}
}
