package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
	// PongWait is how long a connection may stay silent before it is dropped.
	PongWait   = 60 * time.Second
	pingPeriod = (PongWait * 9) / 10
	// MaxFrameSize bounds one inbound frame.
	MaxFrameSize      = 1 << 20
	DefaultSendBuffer = 128
)

// ErrMalformedFrame is returned by ReadFrame for frames that are not valid JSON.
var ErrMalformedFrame = errors.New("malformed frame")

// Identity is who holds a connection.
type Identity struct {
	Role    string
	Subject string
	Label   string
}

// Connection wraps a websocket and serialises outbound writes through a buffered channel.
// A full buffer closes the connection.
type Connection struct {
	id       string
	identity Identity
	log      *slog.Logger

	ws     *websocket.Conn
	send   chan OutboundFrame
	once   sync.Once
	closed chan struct{}
}

// NewConnection wraps ws. buffer <= 0 selects DefaultSendBuffer.
func NewConnection(log *slog.Logger, ws *websocket.Conn, identity Identity, buffer int) *Connection {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	id := uuid.NewString()
	c := &Connection{
		id:       id,
		identity: identity,
		log:      log.With(slog.String("component", "ws_connection"), slog.String("client_id", id), slog.String("role", identity.Role)),
		ws:       ws,
		send:     make(chan OutboundFrame, buffer),
		closed:   make(chan struct{}),
	}
	ws.SetReadLimit(MaxFrameSize)
	_ = ws.SetReadDeadline(time.Now().Add(PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(PongWait))
	})
	return c
}

func (c *Connection) ID() string      { return c.id }
func (c *Connection) Role() string    { return c.identity.Role }
func (c *Connection) Subject() string { return c.identity.Subject }
func (c *Connection) Label() string   { return c.identity.Label }

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// Start launches the write loop. It must be called exactly once.
func (c *Connection) Start() {
	go c.writeLoop()
}

// Send enqueues frame without blocking. It reports false when the frame was dropped.
func (c *Connection) Send(frame OutboundFrame) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.closed:
		return false
	default:
		c.log.Warn("send buffer full, closing connection")
		go c.CloseWith(websocket.ClosePolicyViolation, "send buffer full")
		return false
	}
}

// ReadFrame blocks for the next inbound frame. Undecodable frames yield
// ErrMalformedFrame and leave the connection usable.
func (c *Connection) ReadFrame() (InboundFrame, error) {
	msgType, payload, err := c.ws.ReadMessage()
	if err != nil {
		return InboundFrame{}, err
	}
	// Any traffic counts as liveness.
	_ = c.ws.SetReadDeadline(time.Now().Add(PongWait))
	if msgType != websocket.TextMessage {
		return InboundFrame{}, fmt.Errorf("%w: binary frames are not supported", ErrMalformedFrame)
	}
	var frame InboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return InboundFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return frame, nil
}

// Close terminates the connection with a normal closure.
func (c *Connection) Close() {
	c.CloseWith(websocket.CloseNormalClosure, "")
}

// CloseWith terminates the connection and stops the write loop.
func (c *Connection) CloseWith(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

func (c *Connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.send:
			if err := c.writeFrame(frame); err != nil {
				c.log.Debug("write failed", slog.Any("error", err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Connection) writeFrame(frame OutboundFrame) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteJSON(frame)
}

func (c *Connection) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}

var _ Client = (*Connection)(nil)
