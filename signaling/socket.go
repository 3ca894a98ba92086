/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dentalio/callkit-go/callsdk"
)

// frame is the wire envelope for one event on the websocket.
type frame struct {
	Event   string          `json:"event"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SocketConfig holds the configuration for the websocket channel.
type SocketConfig struct {
	HandshakeTimeout            time.Duration // Timeout for the websocket handshake
	PingInterval                time.Duration // Interval between ping messages
	PongTimeout                 time.Duration // Timeout for receiving a pong response
	BackoffTimeMax              time.Duration // Maximum time between connection attempts
	BackoffTimeReset            time.Duration // Initial time before the first retry
	MaxRetries                  int           // Number of times to retry before giving up
	InitialConnectionMaxRetries int           // Number of times to retry before giving up on the initial connection
	Header                      http.Header   // Extra handshake headers, e.g. authorization
	Logger                      callsdk.Logger
}

// DefaultSocketConfig returns the default configuration for the websocket channel.
func DefaultSocketConfig() *SocketConfig {
	return &SocketConfig{
		HandshakeTimeout:            10 * time.Second,
		PingInterval:                30 * time.Second,
		PongTimeout:                 10 * time.Second,
		BackoffTimeMax:              32 * time.Second,
		BackoffTimeReset:            1 * time.Second,
		MaxRetries:                  3,
		InitialConnectionMaxRetries: 5,
	}
}

// SocketChannel is a Channel implementation over a gorilla websocket.
// Events are JSON frames of the form {"event": ..., "payload": ...}.
// Inbound handlers run on the single reader goroutine, so events for a
// connection are dispatched in arrival order.
type SocketChannel struct {
	url    string
	config *SocketConfig
	logger callsdk.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	connected    bool
	connecting   bool
	hasConnected bool
	handlers     map[string][]Handler
	closeCh      chan struct{}
	onConnect    func()

	writeMu sync.Mutex

	retryCount     int
	currentBackoff time.Duration
}

// NewSocket creates a websocket channel for the given gateway URL.
// A nil config uses DefaultSocketConfig.
func NewSocket(url string, config *SocketConfig) *SocketChannel {
	if config == nil {
		config = DefaultSocketConfig()
	}
	logger := callsdk.EnsureLogger(config.Logger)

	return &SocketChannel{
		url:            url,
		config:         config,
		logger:         logger,
		handlers:       make(map[string][]Handler),
		closeCh:        make(chan struct{}),
		currentBackoff: config.BackoffTimeReset,
	}
}

// SetOnConnect registers a hook invoked after every successful connection,
// including reconnects. The call client uses it to re-announce presence.
func (c *SocketChannel) SetOnConnect(fn func()) {
	c.mu.Lock()
	c.onConnect = fn
	c.mu.Unlock()
}

// Connect establishes the websocket connection to the signaling gateway.
func (c *SocketChannel) Connect() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return fmt.Errorf("connection attempt already in progress")
	}
	c.connecting = true
	c.mu.Unlock()

	return c.connectWithBackoff()
}

// Close closes the websocket connection. Safe to call more than once.
func (c *SocketChannel) Close() error {
	c.mu.Lock()
	if !c.connected && !c.connecting {
		c.mu.Unlock()
		return nil
	}

	// Signal all goroutines to stop, then arm fresh channels so the
	// channel can be reconnected later.
	close(c.closeCh)
	c.closeCh = make(chan struct{})

	conn := c.conn
	c.conn = nil
	c.connected = false
	c.connecting = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closed by client"))
		_ = conn.Close()
	}

	return nil
}

// Connected reports whether the channel is currently connected.
func (c *SocketChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Emit sends one named event with a JSON payload.
func (c *SocketChannel) Emit(event string, payload interface{}) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return callsdk.NewSignalingUnavailable(event)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	msg, err := json.Marshal(frame{Event: event, ID: uuid.NewString(), Payload: raw})
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", event, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return callsdk.NewSignalingUnavailable(event)
	}
	return nil
}

// On registers an event handler for a specific event name.
func (c *SocketChannel) On(event string, handler Handler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], handler)
	c.mu.Unlock()
}

// Off removes an event handler for a specific event name.
func (c *SocketChannel) Off(event string, handler Handler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	handlers, ok := c.handlers[event]
	if !ok {
		return
	}

	// Find the handler by comparing function pointers
	handlerPtr := fmt.Sprintf("%p", handler)
	for i, h := range handlers {
		if fmt.Sprintf("%p", h) == handlerPtr {
			c.handlers[event] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
	if len(c.handlers[event]) == 0 {
		delete(c.handlers, event)
	}
}

// connectWithBackoff attempts to connect with exponential backoff.
func (c *SocketChannel) connectWithBackoff() error {
	c.retryCount = 0
	c.currentBackoff = c.config.BackoffTimeReset

	maxRetries := c.config.MaxRetries
	if !c.hasConnected {
		maxRetries = c.config.InitialConnectionMaxRetries
	}

	c.mu.Lock()
	closeCh := c.closeCh
	c.mu.Unlock()

	var err error
	for c.retryCount <= maxRetries {
		err = c.attemptConnection()
		if err == nil {
			return nil
		}

		c.retryCount++
		if c.retryCount > maxRetries {
			break
		}

		select {
		case <-time.After(c.currentBackoff):
			c.currentBackoff *= 2
			if c.currentBackoff > c.config.BackoffTimeMax {
				c.currentBackoff = c.config.BackoffTimeMax
			}
		case <-closeCh:
			return nil // stopped by user
		}
	}

	c.mu.Lock()
	c.connecting = false
	c.mu.Unlock()
	return fmt.Errorf("failed to connect after %d attempts: %v", c.retryCount, err)
}

// attemptConnection makes a single connection attempt to the gateway.
func (c *SocketChannel) attemptConnection() error {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	conn, _, err := dialer.Dial(c.url, c.config.Header)
	if err != nil {
		return fmt.Errorf("failed to connect to signaling gateway: %v", err)
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Time{})
	})

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.connecting = false
	c.hasConnected = true
	onConnect := c.onConnect
	c.mu.Unlock()

	// done belongs to this connection alone. Reconnects spawn a fresh
	// reader with a fresh channel, so a late exit of an old reader can
	// never stop the new connection's keepalive.
	done := make(chan struct{})
	go c.startPingPong(conn, done)
	go c.listen(conn, done)

	if onConnect != nil {
		onConnect()
	}

	return nil
}

// listen reads frames from the websocket and dispatches them in order.
func (c *SocketChannel) listen(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		c.mu.Lock()
		if c.conn == conn {
			c.connected = false
		}
		c.mu.Unlock()
		close(done)
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.handleConnectionError(conn, err)
			return
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil || f.Event == "" {
			continue
		}

		c.mu.Lock()
		handlers := make([]Handler, len(c.handlers[f.Event]))
		copy(handlers, c.handlers[f.Event])
		c.mu.Unlock()

		// Handlers run on this goroutine so events apply in arrival order.
		for _, handler := range handlers {
			handler(f.Payload)
		}
	}
}

// handleConnectionError triggers reconnection unless the close was deliberate.
func (c *SocketChannel) handleConnectionError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	wasConnected := c.connected && c.conn == conn
	if wasConnected {
		c.connected = false
	}
	closeCh := c.closeCh
	c.mu.Unlock()

	if !wasConnected {
		return
	}

	select {
	case <-closeCh:
		// Closed by the client, don't reconnect.
	default:
		c.logger.Printf("signaling: connection lost, reconnecting: %v", err)
		go c.reconnect()
	}
}

// reconnect attempts to re-establish the connection after a read failure.
func (c *SocketChannel) reconnect() {
	c.mu.Lock()
	if c.connected || c.connecting {
		c.mu.Unlock()
		return
	}
	c.connecting = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	_ = c.connectWithBackoff()
}

// startPingPong keeps the connection alive with websocket pings.
func (c *SocketChannel) startPingPong(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	c.mu.Lock()
	closeCh := c.closeCh
	c.mu.Unlock()

	for {
		select {
		case <-ticker.C:
			if err := c.ping(conn); err != nil {
				return
			}
		case <-closeCh:
			return
		case <-done:
			return
		}
	}
}

// ping sends a ping and arms the pong deadline.
func (c *SocketChannel) ping(conn *websocket.Conn) error {
	if err := conn.SetReadDeadline(time.Now().Add(c.config.PongTimeout)); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(websocket.PingMessage,
		[]byte(fmt.Sprintf("%d", time.Now().UnixMilli())))
}
