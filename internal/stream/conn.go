package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"loop-drive/internal/domain"
)

var (
	redialDelay = 3 * time.Second
	pingPeriod  = 30 * time.Second
	pongWait    = 60 * time.Second
	writeWait   = 5 * time.Second
)

// Handler receives dispatched inbound events. Exactly one handler is
// registered per connection, before Run.
type Handler interface {
	HandleTripRequest(ev *TripRequestEvent)
	HandleTripCanceledByRider(tripID string)
}

// Conn owns the one persistent event channel of a driver session. It
// redials with a fixed delay after an unexpected close and keeps doing so
// until the session context is cancelled.
type Conn struct {
	slogger  *slog.Logger
	url      string
	driverID string
	handler  Handler

	mu    sync.Mutex
	ws    *websocket.Conn
	state domain.ConnectionState

	// serializes data writes; kept separate from mu so a slow peer
	// cannot block State()
	writeMu sync.Mutex

	onState func(domain.ConnectionState)
}

func NewConn(slogger *slog.Logger, url, driverID string, handler Handler) *Conn {
	return &Conn{
		slogger:  slogger,
		url:      url,
		driverID: driverID,
		handler:  handler,
		state:    domain.Disconnected,
	}
}

// SetStateListener registers a callback fired on every state change.
// Must be called before Run.
func (c *Conn) SetStateListener(fn func(domain.ConnectionState)) {
	c.onState = fn
}

func (c *Conn) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s domain.ConnectionState) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()
	if changed && c.onState != nil {
		c.onState(s)
	}
}

// Run dials and reads until ctx is cancelled. Blocks; callers run it in
// its own goroutine.
func (c *Conn) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.setState(domain.Connecting)
		ws, err := c.dial(ctx)
		if err != nil {
			c.setState(domain.Disconnected)
			c.slogger.Warn("ws dial failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(redialDelay):
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.setState(domain.Connected)
		c.slogger.Info("ws connected", "driver_id", c.driverID)

		done := make(chan struct{})
		go c.pingPong(ctx, ws, done)
		c.readLoop(ctx, ws)
		close(done)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		c.setState(domain.Disconnected)

		select {
		case <-ctx.Done():
			return
		case <-time.After(redialDelay):
		}
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s?driver_id=%s", c.url, c.driverID)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

// pingPong keeps one connection alive: periodic pings with a write
// deadline, and the socket is closed when the session context dies so
// the reader unblocks. One per connection, stopped via done when the
// reader exits.
func (c *Conn) pingPong(ctx context.Context, ws *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			ws.Close()
			return
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				ws.Close()
				return
			}
		}
	}
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) {
	// a silently dead peer must not block the reader forever: every pong
	// refreshes the deadline, a missed one tears the connection down and
	// hands control back to the redial loop
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.slogger.Warn("ws read error", "error", err)
			}
			ws.Close()
			return
		}
		c.dispatch(data)
	}
}

// dispatch parses one inbound frame. Transport garbage never propagates:
// malformed payloads are logged, noise is dropped, unknown tags are
// logged and ignored.
func (c *Conn) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.slogger.Warn("ws malformed payload", "error", err)
		return
	}
	if env.TripID == "" {
		// noise / heartbeat
		return
	}

	switch env.Type {
	case TypeTripRequest:
		ev := new(TripRequestEvent)
		if err := json.Unmarshal(data, ev); err != nil {
			c.slogger.Warn("ws malformed trip request", "error", err)
			return
		}
		c.handler.HandleTripRequest(ev)
	case TypeTripCanceledRider:
		c.handler.HandleTripCanceledByRider(env.TripID)
	default:
		c.slogger.Info("ws unknown event type", "type", env.Type, "trip_id", env.TripID)
	}
}

// Send writes one JSON event. It is a silent no-op while the channel is
// not connected: events are dropped, never queued or retried.
func (c *Conn) Send(v any) {
	c.mu.Lock()
	ws := c.ws
	connected := c.state == domain.Connected
	c.mu.Unlock()
	if !connected || ws == nil {
		return
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(v); err != nil {
		c.slogger.Warn("ws write error", "error", err)
	}
}
