package channel

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"deliveryboy-agent/internal/retry"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed between reads before the connection is considered dead
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096
)

// Config holds the channel's connection parameters
type Config struct {
	// URL is the WebSocket endpoint, e.g. ws://host/ws
	URL string

	// Token is the bearer token, passed as a query parameter on dial
	Token string

	// UserID is the subject identity re-announced on every (re)connection
	UserID string

	// Reconnect governs the automatic reconnection backoff
	Reconnect retry.Policy
}

// DefaultReconnectPolicy backs off exponentially from 1s to 30s, forever
func DefaultReconnectPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: 0, // unbounded
		Backoff:     retry.Exponential(time.Second, 30*time.Second),
	}
}

// Channel is the persistent real-time connection to the server. Exactly one
// connection exists per authenticated identity; Connect tears down any
// previous socket before dialing so two live sockets never deliver
// duplicate events. Outbound emits are a no-op while disconnected - this is
// a notification/telemetry channel, not a command ledger.
type Channel struct {
	mu         sync.Mutex
	cfg        Config
	handler    func(NotificationEvent)
	rooms      map[string]bool
	conn       *websocket.Conn
	send       chan []byte
	connected  bool
	generation int
	cancel     context.CancelFunc
}

// New creates a disconnected channel
func New(cfg Config) *Channel {
	if cfg.Reconnect.Backoff == nil {
		cfg.Reconnect = DefaultReconnectPolicy()
	}
	return &Channel{
		cfg:   cfg,
		rooms: make(map[string]bool),
	}
}

// Subscribe registers the consumer of translated notification events.
// Events are delivered in arrival order, one at a time.
func (c *Channel) Subscribe(fn func(NotificationEvent)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Connected reports whether a live socket currently exists
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Connect establishes the connection and keeps it alive with automatic
// reconnection until the context is cancelled or Close is called. Any
// previous connection is torn down first.
func (c *Channel) Connect(ctx context.Context) {
	c.mu.Lock()
	c.teardownLocked()
	c.generation++
	gen := c.generation
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(runCtx, gen)
}

// UpdateCredentials swaps the identity and reconnects. The old socket is
// torn down before the new dial, never leaving two live connections.
func (c *Channel) UpdateCredentials(ctx context.Context, token, userID string) {
	c.mu.Lock()
	c.cfg.Token = token
	c.cfg.UserID = userID
	c.mu.Unlock()

	c.Connect(ctx)
}

// Close tears the connection down. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	c.generation++
	c.teardownLocked()
	c.mu.Unlock()
}

// teardownLocked cancels the run loop and closes the live socket. Caller
// holds c.mu.
func (c *Channel) teardownLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected = false
	c.send = nil
}

// Emit sends a named event to the server. While disconnected it logs and
// drops the event.
func (c *Channel) Emit(name string, payload interface{}) {
	c.mu.Lock()
	send := c.send
	connected := c.connected
	c.mu.Unlock()

	if !connected || send == nil {
		log.Printf("⚠️  Emit %q skipped: channel disconnected", name)
		return
	}

	data, err := json.Marshal(outboundMessage{Event: name, Data: payload})
	if err != nil {
		log.Printf("❌ Failed to marshal %q event: %v", name, err)
		return
	}

	select {
	case send <- data:
	default:
		log.Printf("⚠️  Send buffer full, dropping %q event", name)
	}
}

// JoinRoom subscribes this client to a server-side room. Rooms are
// re-joined automatically after a reconnect.
func (c *Channel) JoinRoom(name string) {
	c.mu.Lock()
	c.rooms[name] = true
	c.mu.Unlock()
	c.Emit("join", name)
}

// LeaveRoom unsubscribes from a server-side room
func (c *Channel) LeaveRoom(name string) {
	c.mu.Lock()
	delete(c.rooms, name)
	c.mu.Unlock()
	c.Emit("leave", name)
}

// run is the connection supervisor: dial, pump until disconnect, back off,
// repeat. A stale generation means Connect/Close superseded this loop.
func (c *Channel) run(ctx context.Context, gen int) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		connected, err := c.session(ctx, gen)
		if ctx.Err() != nil || c.superseded(gen) {
			return
		}
		if err != nil {
			log.Printf("⚠️  Event channel disconnected: %v", err)
		}

		if connected {
			// A session that got as far as registration resets the
			// backoff sequence
			attempt = 0
		}
		attempt++
		if c.cfg.Reconnect.Exhausted(attempt) {
			log.Printf("❌ Event channel giving up after %d attempts", attempt)
			return
		}
		if err := c.cfg.Reconnect.Wait(ctx, attempt); err != nil {
			return
		}
	}
}

func (c *Channel) superseded(gen int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen != c.generation
}

// session dials once and pumps until the socket dies. Returns whether the
// connection was established.
func (c *Channel) session(ctx context.Context, gen int) (bool, error) {
	c.mu.Lock()
	endpoint := c.cfg.URL
	token := c.cfg.Token
	userID := c.cfg.UserID
	c.mu.Unlock()

	u, err := url.Parse(endpoint)
	if err != nil {
		return false, err
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		conn.Close()
		return false, nil
	}
	send := make(chan []byte, 256)
	c.conn = conn
	c.send = send
	c.connected = true
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	c.mu.Unlock()

	log.Printf("✅ Event channel connected (user: %s)", userID)

	// Re-announce identity on every (re)connection: both messages are
	// idempotent on the server side
	c.Emit("registerDelivery", userID)
	c.Emit("authenticate", map[string]interface{}{"userId": userID})
	for _, room := range rooms {
		c.Emit("join", room)
	}

	stop := make(chan struct{})
	writeDone := make(chan struct{})
	go c.writePump(conn, send, stop, writeDone)

	readErr := c.readPump(conn)

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
		c.send = nil
		c.connected = false
	}
	c.mu.Unlock()

	// Wake the write pump immediately - a dead socket must not wait for
	// the next ping tick before the reconnect loop resumes
	close(stop)
	conn.Close()
	<-writeDone
	return true, readErr
}

// readPump consumes server messages in arrival order and hands translated
// events to the subscriber
func (c *Channel) readPump(conn *websocket.Conn) error {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️  Unexpected close: %v", err)
			}
			return err
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("⚠️  Invalid message from server: %v", err)
			continue
		}

		switch msg.Event {
		case "ping":
			c.Emit("pong", map[string]interface{}{
				"timestamp": time.Now().Format(time.RFC3339),
			})

		default:
			c.dispatch(Translate(msg.Event, msg.Data))
		}
	}
}

func (c *Channel) dispatch(ev NotificationEvent) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}

// writePump drains the send buffer and keeps the connection alive with
// pings. It exits when the session closes stop, so a dropped socket is
// noticed without waiting out the ping interval.
func (c *Channel) writePump(conn *websocket.Conn, send chan []byte, stop, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case <-stop:
			return

		case message, ok := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
