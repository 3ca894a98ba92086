/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package signaling

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/dentalio/callkit-go/callsdk"
)

// InProcessGateway routes call events between loopback endpoints the way
// the production gateway routes them between sockets: call-user becomes
// incoming-call at the receiver with a gateway-assigned message id,
// answer-call becomes call-accepted at the caller, and so on. Used by
// tests and single-process deployments.
type InProcessGateway struct {
	namespace string
	logger    callsdk.Logger

	mu    sync.Mutex
	users map[string]*Loopback
}

// NewInProcessGateway creates a gateway for the given presence namespace.
func NewInProcessGateway(namespace string, logger callsdk.Logger) *InProcessGateway {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	logger = callsdk.EnsureLogger(logger)
	return &InProcessGateway{
		namespace: namespace,
		logger:    logger,
		users:     make(map[string]*Loopback),
	}
}

// Connect returns a new client-side channel endpoint. The client becomes
// routable once it emits the namespace join event.
func (g *InProcessGateway) Connect() *Loopback {
	client, server := NewLoopbackPair()
	g.bind(server)
	return client
}

// Registered reports whether a user has joined the namespace. Joins are
// processed asynchronously, so callers that need a routable peer poll
// this before dialing.
func (g *InProcessGateway) Registered(userID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.users[userID]
	return ok
}

// Close disconnects every registered endpoint.
func (g *InProcessGateway) Close() error {
	g.mu.Lock()
	users := g.users
	g.users = make(map[string]*Loopback)
	g.mu.Unlock()

	for _, endpoint := range users {
		_ = endpoint.Close()
	}
	return nil
}

func (g *InProcessGateway) bind(server *Loopback) {
	var senderID string

	server.On(JoinEvent(g.namespace), func(raw json.RawMessage) {
		var p JoinPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			g.logger.Printf("gateway: bad join payload: %v", err)
			return
		}
		senderID = p.UserID
		g.mu.Lock()
		g.users[p.UserID] = server
		g.mu.Unlock()
	})

	server.On(EventCallUser, func(raw json.RawMessage) {
		var p CallUserPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			g.logger.Printf("gateway: bad call-user payload: %v", err)
			return
		}
		g.emitTo(p.ReceiverID, EventIncomingCall, IncomingCallPayload{
			CallerID:    p.CallerID,
			CallerName:  p.CallerName,
			CallerRole:  p.CallerRole,
			IsVideoCall: p.IsVideoCall,
			Signal:      p.Signal,
			MessageID:   uuid.NewString(),
		})
	})

	server.On(EventAnswerCall, func(raw json.RawMessage) {
		var p AnswerCallPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			g.logger.Printf("gateway: bad answer-call payload: %v", err)
			return
		}
		g.emitTo(p.CallerID, EventCallAccepted, CallAcceptedPayload{Signal: p.Signal})
	})

	server.On(EventRejectCall, func(raw json.RawMessage) {
		var p RejectCallPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			g.logger.Printf("gateway: bad reject-call payload: %v", err)
			return
		}
		g.emitTo(p.CallerID, EventCallRejected, CallRejectedPayload{Reason: p.Reason})
	})

	server.On(EventEndCall, func(raw json.RawMessage) {
		var p EndCallPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			g.logger.Printf("gateway: bad end-call payload: %v", err)
			return
		}
		other := p.ReceiverID
		if senderID == p.ReceiverID {
			other = p.CallerID
		}
		g.emitTo(other, EventCallEnded, CallEndedPayload{})
	})

	server.On(EventIceCandidate, func(raw json.RawMessage) {
		// Clients emit descriptions only after gathering completes, so
		// no candidate ever originates client-side. Logged to catch a
		// misbehaving endpoint.
		g.logger.Printf("gateway: unexpected client-side ice-candidate")
	})
}

func (g *InProcessGateway) emitTo(userID, event string, payload interface{}) {
	g.mu.Lock()
	endpoint := g.users[userID]
	g.mu.Unlock()

	if endpoint == nil {
		g.logger.Printf("gateway: no endpoint for %q, dropping %s", userID, event)
		return
	}
	if err := endpoint.Emit(event, payload); err != nil {
		g.logger.Printf("gateway: %s to %q failed: %v", event, userID, err)
	}
}
