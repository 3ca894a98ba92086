/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dentalio/callkit-go/callsdk"
)

// gatewayStub is a minimal websocket server that records inbound frames
// and can push frames to the connected client.
type gatewayStub struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received []frame
	gotFrame chan frame
}

func newGatewayStub(t *testing.T) *gatewayStub {
	g := &gatewayStub{t: t, gotFrame: make(chan frame, 16)}
	g.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := g.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		g.mu.Lock()
		g.conn = conn
		g.mu.Unlock()

		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f frame
			if err := json.Unmarshal(message, &f); err != nil {
				t.Errorf("bad frame from client: %v", err)
				continue
			}
			g.mu.Lock()
			g.received = append(g.received, f)
			g.mu.Unlock()
			g.gotFrame <- f
		}
	}))
	t.Cleanup(g.server.Close)
	return g
}

func (g *gatewayStub) url() string {
	return "ws" + strings.TrimPrefix(g.server.URL, "http")
}

func (g *gatewayStub) push(event string, payload interface{}) {
	g.t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		g.t.Fatalf("marshal push payload: %v", err)
	}
	msg, _ := json.Marshal(frame{Event: event, Payload: raw})

	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		g.t.Fatal("no client connected")
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		g.t.Fatalf("push failed: %v", err)
	}
}

// drop closes the current client connection server-side, forcing the
// client onto its reconnect path.
func (g *gatewayStub) drop() {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func fastSocketConfig(t *testing.T) *SocketConfig {
	config := DefaultSocketConfig()
	config.BackoffTimeReset = 10 * time.Millisecond
	config.BackoffTimeMax = 50 * time.Millisecond
	config.Logger = testLogger(t)
	return config
}

func TestSocketChannel_EmitReachesGateway(t *testing.T) {
	gw := newGatewayStub(t)
	socket := NewSocket(gw.url(), fastSocketConfig(t))
	if err := socket.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer socket.Close()

	if !socket.Connected() {
		t.Fatal("socket reports disconnected after Connect")
	}

	err := socket.Emit(EventCallUser, CallUserPayload{CallerID: "doc-1", ReceiverID: "pat-1"})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	select {
	case f := <-gw.gotFrame:
		if f.Event != EventCallUser {
			t.Errorf("event = %q, want %q", f.Event, EventCallUser)
		}
		if f.ID == "" {
			t.Error("frame carries no id")
		}
		var p CallUserPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			t.Fatalf("bad payload: %v", err)
		}
		if p.ReceiverID != "pat-1" {
			t.Errorf("receiverId = %q", p.ReceiverID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame never reached the gateway")
	}
}

func TestSocketChannel_DispatchesInboundInOrder(t *testing.T) {
	gw := newGatewayStub(t)
	socket := NewSocket(gw.url(), fastSocketConfig(t))

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	socket.On(EventIncomingCall, func(raw json.RawMessage) {
		var p IncomingCallPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			t.Errorf("bad payload: %v", err)
			return
		}
		mu.Lock()
		got = append(got, p.MessageID)
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	if err := socket.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer socket.Close()

	for _, id := range []string{"m1", "m2", "m3"} {
		gw.push(EventIncomingCall, IncomingCallPayload{MessageID: id})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("inbound events never dispatched")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"m1", "m2", "m3"} {
		if got[i] != want {
			t.Fatalf("event %d = %q, want %q", i, got[i], want)
		}
	}
}

func TestSocketChannel_EmitWhileDisconnected(t *testing.T) {
	socket := NewSocket("ws://127.0.0.1:0", fastSocketConfig(t))

	err := socket.Emit(EventCallUser, CallUserPayload{})
	if err == nil {
		t.Fatal("expected an error emitting while disconnected")
	}
	if !callsdk.IsSignalingUnavailable(err) {
		t.Errorf("got %v, want a signaling-unavailable error", err)
	}
}

func TestSocketChannel_OnConnectHook(t *testing.T) {
	gw := newGatewayStub(t)
	socket := NewSocket(gw.url(), fastSocketConfig(t))

	hooked := make(chan struct{}, 1)
	socket.SetOnConnect(func() {
		if err := socket.Emit(JoinEvent(DefaultNamespace), JoinPayload{UserID: "doc-1"}); err != nil {
			t.Errorf("join inside hook failed: %v", err)
		}
		hooked <- struct{}{}
	})

	if err := socket.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer socket.Close()

	select {
	case <-hooked:
	case <-time.After(2 * time.Second):
		t.Fatal("connect hook never ran")
	}
	select {
	case f := <-gw.gotFrame:
		if f.Event != JoinEvent(DefaultNamespace) {
			t.Errorf("first frame = %q, want the join event", f.Event)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("join frame never arrived")
	}
}

func TestSocketChannel_ReconnectAfterRepeatedDrops(t *testing.T) {
	gw := newGatewayStub(t)
	socket := NewSocket(gw.url(), fastSocketConfig(t))
	if err := socket.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { socket.Close() })

	// Each connection owns its own reader and keepalive, so delivery
	// has to survive any number of server-side drops in a row.
	waitDelivered := func(id string) {
		t.Helper()
		deadline := time.Now().Add(10 * time.Second)
		for {
			if time.Now().After(deadline) {
				t.Fatalf("join for %s never reached the gateway", id)
			}
			_ = socket.Emit(JoinEvent(DefaultNamespace), JoinPayload{UserID: id})
			select {
			case f := <-gw.gotFrame:
				var p JoinPayload
				if json.Unmarshal(f.Payload, &p) == nil && p.UserID == id {
					return
				}
			case <-time.After(50 * time.Millisecond):
			}
		}
	}

	waitDelivered("user-0")
	gw.drop()
	waitDelivered("user-1")
	gw.drop()
	waitDelivered("user-2")
}

func TestSocketChannel_CloseIdempotent(t *testing.T) {
	gw := newGatewayStub(t)
	socket := NewSocket(gw.url(), fastSocketConfig(t))
	if err := socket.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := socket.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := socket.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if socket.Connected() {
		t.Error("socket reports connected after Close")
	}
}
