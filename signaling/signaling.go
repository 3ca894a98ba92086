/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package signaling provides the duplex event bus used to exchange call
// offers, answers, and candidates before the direct peer transport exists.
// The wire protocol is a small set of named JSON events; the transport is
// pluggable behind the Channel interface.
package signaling

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"

	"github.com/dentalio/callkit-go/callsdk"
)

// Wire event names. Outbound events are emitted by the local call client,
// inbound events arrive from the remote party via the gateway.
const (
	EventCallUser     = "call-user"
	EventIncomingCall = "incoming-call"
	EventAnswerCall   = "answer-call"
	EventCallAccepted = "call-accepted"
	EventRejectCall   = "reject-call"
	EventCallRejected = "call-rejected"
	EventEndCall      = "end-call"
	EventCallEnded    = "call-ended"
	EventIceCandidate = "ice-candidate"
	EventCallFailed   = "call-failed"
)

// DefaultNamespace is the presence namespace joined by call clients.
const DefaultNamespace = "video-call"

// JoinEvent returns the namespaced presence event name.
func JoinEvent(namespace string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return "join-" + namespace
}

// SignalType discriminates the payload of a Signal envelope.
type SignalType string

const (
	SignalOffer     SignalType = "offer"
	SignalAnswer    SignalType = "answer"
	SignalCandidate SignalType = "candidate"
)

// Signal is one signaling message: an offer or answer carrying a session
// description, or a single ICE candidate. It is never persisted; the
// repair layer and the peer wrapper consume it immediately.
type Signal struct {
	Type      SignalType               `json:"type"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

// Handler receives the raw payload of one inbound event. Implementations
// of Channel must invoke handlers for a given connection in the order the
// events arrived; the call state machine relies on this for transition
// ordering.
type Handler func(payload json.RawMessage)

// Channel is the transport-agnostic duplex event bus the call client binds
// to. A websocket implementation lives in this package; tests and embedded
// deployments can use the in-process loopback pair.
type Channel interface {
	// Connected reports whether the channel can currently deliver events.
	Connected() bool

	// Emit sends one named event with a JSON-encodable payload.
	Emit(event string, payload interface{}) error

	// On registers a handler for a named event. Multiple handlers per
	// event are invoked in registration order.
	On(event string, handler Handler)

	// Off removes a previously registered handler for the event.
	Off(event string, handler Handler)

	// Close tears the channel down. Safe to call more than once.
	Close() error
}

// --- Wire payloads (§ event table) ---

// JoinPayload announces the local identity to the presence namespace.
type JoinPayload struct {
	UserID   string       `json:"userId"`
	UserRole callsdk.Role `json:"userRole"`
	UserName string       `json:"userName"`
}

// CallUserPayload initiates an outgoing call carrying the repaired offer.
type CallUserPayload struct {
	CallerID    string       `json:"callerId"`
	ReceiverID  string       `json:"receiverId"`
	CallerName  string       `json:"callerName"`
	CallerRole  callsdk.Role `json:"callerRole"`
	IsVideoCall bool         `json:"isVideoCall"`
	Signal      Signal       `json:"signal"`
}

// IncomingCallPayload is the gateway's delivery of a call-user event to
// the callee, tagged with the message id used for the rest of the call.
type IncomingCallPayload struct {
	CallerID    string       `json:"callerId"`
	CallerName  string       `json:"callerName"`
	CallerRole  callsdk.Role `json:"callerRole"`
	IsVideoCall bool         `json:"isVideoCall"`
	Signal      Signal       `json:"signal"`
	MessageID   string       `json:"messageId"`
}

// AnswerCallPayload carries the callee's answer back to the caller.
type AnswerCallPayload struct {
	CallerID  string `json:"callerId"`
	Signal    Signal `json:"signal"`
	MessageID string `json:"messageId"`
}

// CallAcceptedPayload delivers the remote answer to the caller.
type CallAcceptedPayload struct {
	Signal Signal `json:"signal"`
}

// RejectCallPayload declines a ringing call with a reason string.
type RejectCallPayload struct {
	CallerID  string `json:"callerId"`
	MessageID string `json:"messageId"`
	Reason    string `json:"reason"`
}

// CallRejectedPayload delivers a remote reject to the caller.
type CallRejectedPayload struct {
	Reason string `json:"reason"`
}

// EndCallPayload terminates a call and reports its duration in seconds.
type EndCallPayload struct {
	CallerID     string `json:"callerId"`
	ReceiverID   string `json:"receiverId"`
	MessageID    string `json:"messageId"`
	CallDuration int    `json:"callDuration"`
}

// CallEndedPayload delivers a remote hangup. It carries no fields.
type CallEndedPayload struct{}

// IceCandidatePayload delivers one trickled remote candidate.
type IceCandidatePayload struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// CallFailedPayload delivers a remote failure report.
type CallFailedPayload struct {
	Message string `json:"message"`
}
