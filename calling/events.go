/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import "sync"

// ---- Call State & Event Enums ----

// Status represents the lifecycle state of the call session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusDialing    Status = "dialing"
	StatusRinging    Status = "ringing"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusEnded      Status = "ended"
	StatusFailed     Status = "failed"
	StatusRejected   Status = "rejected"
)

// Terminal reports whether the status ends a session. Terminal statuses
// are momentary: the session resets to idle as part of the same teardown.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusFailed || s == StatusRejected
}

// Active reports whether a session is in progress.
func (s Status) Active() bool {
	return s != StatusIdle && !s.Terminal()
}

// Direction distinguishes who placed the call.
type Direction string

const (
	DirectionOutgoing Direction = "outgoing"
	DirectionIncoming Direction = "incoming"
)

// EventKey identifies the type of client event.
type EventKey string

const (
	// EventStatusChanged carries a StatusChange payload.
	EventStatusChanged EventKey = "status_changed"
	// EventIncomingCall carries a Snapshot of the ringing session.
	EventIncomingCall EventKey = "incoming_call"
	// EventRemoteStream carries the first remote track of a stream group.
	EventRemoteStream EventKey = "remote_stream"
	// EventDuration carries the connected call's duration in seconds.
	EventDuration EventKey = "duration"
	// EventNotice carries a Notice payload.
	EventNotice EventKey = "notice"
)

// StatusChange is the payload of EventStatusChanged.
type StatusChange struct {
	From Status
	To   Status
}

// NoticeKind distinguishes the human-readable call outcome notices.
// "I hung up", "they hung up", and "it broke" are materially different
// outcomes and stay distinguishable end to end.
type NoticeKind string

const (
	NoticeEnded    NoticeKind = "ended"
	NoticeFailed   NoticeKind = "failed"
	NoticeRejected NoticeKind = "rejected"
	NoticeTimeout  NoticeKind = "timeout"
	NoticeError    NoticeKind = "error"
)

// Notice is the payload of EventNotice.
type Notice struct {
	Kind    NoticeKind
	Message string
}

// ---- Event Emitter ----

// EventHandler is a callback function for events
type EventHandler func(data interface{})

// EventEmitter provides a simple event pub/sub system
type EventEmitter struct {
	mu       sync.RWMutex
	handlers map[EventKey][]EventHandler
}

// NewEventEmitter creates a new EventEmitter
func NewEventEmitter() *EventEmitter {
	return &EventEmitter{
		handlers: make(map[EventKey][]EventHandler),
	}
}

// On registers an event handler for a specific event type
func (e *EventEmitter) On(event EventKey, handler EventHandler) {
	if handler == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[event] = append(e.handlers[event], handler)
}

// Off removes all handlers for a specific event type
func (e *EventEmitter) Off(event EventKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.handlers, event)
}

// Emit fires an event, calling all registered handlers
func (e *EventEmitter) Emit(event EventKey, data interface{}) {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers[event]))
	copy(handlers, e.handlers[event])
	e.mu.RUnlock()

	for _, handler := range handlers {
		handler(data)
	}
}
