/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package calling is the single source of truth for the call lifecycle.
// The Client owns one CallSession at a time, binds inbound signaling
// events to state transitions, dispatches to the peer wrapper and media
// acquisition, and emits typed events for the embedding application.
package calling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/dentalio/callkit-go/callsdk"
	"github.com/dentalio/callkit-go/media"
	"github.com/dentalio/callkit-go/peer"
	"github.com/dentalio/callkit-go/signaling"
)

// Notifier posts a human-readable call summary into an existing
// conversation. Fire-and-forget; the client never reads chat state.
type Notifier func(content string)

// Config holds the configuration for the call client.
type Config struct {
	// Channel is the signaling event bus. Required.
	Channel signaling.Channel

	// Acquirer produces local media streams. Required.
	Acquirer media.Acquirer

	// Identity is the local party announced on the channel.
	Identity callsdk.Identity

	// Namespace selects the presence join event. Defaults to
	// signaling.DefaultNamespace.
	Namespace string

	// ICEServers overrides the peer wrapper's default STUN list.
	ICEServers []webrtc.ICEServer

	// Constraints are the media capture hints. A zero value uses
	// media.DefaultConstraints.
	Constraints media.Constraints

	// SetupTimeout bounds dialing/ringing/connecting. Zero disables the
	// bound; DefaultConfig sets 60s.
	SetupTimeout time.Duration

	// Clock drives the duration ticker and setup timer. Defaults to the
	// wall clock; tests inject a mock.
	Clock clock.Clock

	// Notifier, when set, receives the call summary on every
	// connected-to-ended transition.
	Notifier Notifier

	// OnLocalPreview, when set, receives the local stream after a video
	// acquisition so the host can attach a preview sink.
	OnLocalPreview func(*media.Stream)

	Logger callsdk.Logger
}

// DefaultConfig returns the default call client configuration. Channel,
// Acquirer, and Identity must still be supplied.
func DefaultConfig() *Config {
	return &Config{
		Namespace:    signaling.DefaultNamespace,
		Constraints:  media.DefaultConstraints(),
		SetupTimeout: 60 * time.Second,
	}
}

type binding struct {
	event   string
	handler signaling.Handler
}

// Client is the call coordinator. All session state is guarded by mu;
// user operations, signaling dispatch, and peer callbacks serialize on it,
// so transitions apply in the order their events arrive.
type Client struct {
	config  *Config
	logger  callsdk.Logger
	clk     clock.Clock
	emitter *EventEmitter

	mu         sync.Mutex
	sess       session
	generation uint64
	bound      []binding
}

// New creates a call client bound to the given channel and acquirer.
func New(config *Config) (*Client, error) {
	if config == nil || config.Channel == nil {
		return nil, fmt.Errorf("calling: signaling channel is required")
	}
	if config.Acquirer == nil {
		return nil, fmt.Errorf("calling: media acquirer is required")
	}
	if config.Namespace == "" {
		config.Namespace = signaling.DefaultNamespace
	}
	if config.Constraints == (media.Constraints{}) {
		config.Constraints = media.DefaultConstraints()
	}

	logger := callsdk.EnsureLogger(config.Logger)
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	c := &Client{
		config:  config,
		logger:  logger,
		clk:     clk,
		emitter: NewEventEmitter(),
		sess:    session{status: StatusIdle},
	}
	c.bindDispatcher()
	return c, nil
}

// Events returns the client's event emitter.
func (c *Client) Events() *EventEmitter { return c.emitter }

// Session returns a copy of the current session state.
func (c *Client) Session() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.snapshot(c.config.Identity.UserID)
}

// Register announces the local identity on the presence namespace. Call
// it after the channel connects, and again after every reconnect.
func (c *Client) Register() error {
	id := c.config.Identity
	return c.config.Channel.Emit(signaling.JoinEvent(c.config.Namespace), signaling.JoinPayload{
		UserID:   id.UserID,
		UserRole: id.UserRole,
		UserName: id.UserName,
	})
}

// Close ends any active call and unbinds the signaling handlers.
func (c *Client) Close() error {
	_ = c.EndCall()

	c.mu.Lock()
	bound := c.bound
	c.bound = nil
	c.mu.Unlock()

	for _, b := range bound {
		c.config.Channel.Off(b.event, b.handler)
	}
	return nil
}

// ---- User operations ----

// CallUser places an outgoing call. Rejected when a session is already
// active. Local media is acquired before any signaling is sent; on
// acquisition failure the session returns to idle and nothing is emitted.
func (c *Client) CallUser(remoteID, remoteName string, remoteRole callsdk.Role, mode media.Mode) error {
	c.mu.Lock()
	if c.sess.status.Active() {
		c.mu.Unlock()
		return callsdk.ErrCallInProgress
	}
	if !c.config.Channel.Connected() {
		c.mu.Unlock()
		return callsdk.NewSignalingUnavailable(signaling.EventCallUser)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.generation++
	gen := c.generation
	c.sess = session{
		direction:       DirectionOutgoing,
		remotePartyID:   remoteID,
		remotePartyName: remoteName,
		remotePartyRole: remoteRole,
		mode:            mode,
		status:          StatusDialing,
		messageID:       uuid.NewString(),
		acquireCancel:   cancel,
	}
	c.mu.Unlock()
	c.emitter.Emit(EventStatusChanged, StatusChange{From: StatusIdle, To: StatusDialing})

	stream, err := c.config.Acquirer.Acquire(ctx, mode, c.config.Constraints)

	c.mu.Lock()
	if gen != c.generation || c.sess.status != StatusDialing {
		// Ended or rejected while the permission prompt was pending; any
		// late grant still gets released.
		c.mu.Unlock()
		stream.Release()
		return nil
	}
	cancel()
	c.sess.acquireCancel = nil
	if err != nil {
		c.sess.reset()
		c.mu.Unlock()
		c.emitter.Emit(EventStatusChanged, StatusChange{From: StatusDialing, To: StatusIdle})
		c.notify(NoticeError, callsdk.UserMessage(err))
		return err
	}
	c.sess.localStream = stream

	conn, err := c.newPeer(gen, true, mode, stream)
	if err != nil {
		cleanup := c.teardownLocked()
		c.mu.Unlock()
		cleanup()
		c.emitStatusPair(StatusDialing, StatusFailed)
		c.notify(NoticeError, callsdk.UserMessage(err))
		return err
	}
	c.sess.conn = conn
	c.armSetupTimerLocked(gen)
	preview := c.config.OnLocalPreview
	c.mu.Unlock()

	if mode.Video() && preview != nil {
		preview(stream)
	}

	// Offer creation waits for candidate gathering; keep it off the
	// caller's goroutine. The offer reaches the wire via OnSignal.
	go func() {
		if err := conn.Start(); err != nil {
			c.failSession(gen, err)
		}
	}()
	return nil
}

// AnswerCall accepts a ringing incoming call: acquires local media,
// attaches it to the wrapper, and applies the buffered remote offer.
func (c *Client) AnswerCall() error {
	c.mu.Lock()
	if c.sess.status != StatusRinging {
		c.mu.Unlock()
		return fmt.Errorf("no ringing call to answer")
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.sess.acquireCancel = cancel
	c.sess.status = StatusConnecting
	gen := c.generation
	mode := c.sess.mode
	c.mu.Unlock()
	c.emitter.Emit(EventStatusChanged, StatusChange{From: StatusRinging, To: StatusConnecting})

	stream, err := c.config.Acquirer.Acquire(ctx, mode, c.config.Constraints)

	c.mu.Lock()
	if gen != c.generation || c.sess.status != StatusConnecting {
		c.mu.Unlock()
		stream.Release()
		return nil
	}
	cancel()
	c.sess.acquireCancel = nil
	if err != nil {
		// Decline on the wire so the caller does not hang waiting.
		payload := signaling.RejectCallPayload{
			CallerID:  c.sess.remotePartyID,
			MessageID: c.sess.messageID,
			Reason:    "media-unavailable",
		}
		cleanup := c.teardownLocked()
		c.mu.Unlock()
		cleanup()
		c.emitWire(signaling.EventRejectCall, payload)
		c.emitStatusPair(StatusConnecting, StatusFailed)
		c.notify(NoticeError, callsdk.UserMessage(err))
		return err
	}
	c.sess.localStream = stream
	conn := c.sess.conn
	offer := c.sess.pendingOffer
	c.sess.pendingOffer = nil
	preview := c.config.OnLocalPreview
	c.mu.Unlock()

	if mode.Video() && preview != nil {
		preview(stream)
	}

	if err := conn.AttachStream(stream); err != nil {
		wrapped := callsdk.NewDescriptionApply("attachStream", err)
		c.failSession(gen, wrapped)
		return wrapped
	}

	// The answer is generated inside ProcessSignal and reaches the wire
	// via OnSignal.
	go func() {
		if offer == nil {
			return
		}
		if err := conn.ProcessSignal(*offer); err != nil {
			c.failSession(gen, err)
		}
	}()
	return nil
}

// RejectCall declines a ringing call with a reason. Never acquires media.
// Safe in any state: idle is a no-op, and any other active state behaves
// like EndCall.
func (c *Client) RejectCall(reason string) error {
	c.mu.Lock()
	if !c.sess.status.Active() {
		c.mu.Unlock()
		return nil
	}
	if c.sess.status != StatusRinging {
		c.mu.Unlock()
		return c.EndCall()
	}
	payload := signaling.RejectCallPayload{
		CallerID:  c.sess.remotePartyID,
		MessageID: c.sess.messageID,
		Reason:    reason,
	}
	cleanup := c.teardownLocked()
	c.mu.Unlock()
	cleanup()

	c.emitWire(signaling.EventRejectCall, payload)
	c.emitStatusPair(StatusRinging, StatusRejected)
	c.notify(NoticeRejected, "Call declined.")
	return nil
}

// EndCall hangs up the active call. Idempotent and safe in any state,
// including mid-acquisition and mid-negotiation.
func (c *Client) EndCall() error {
	c.mu.Lock()
	if !c.sess.status.Active() {
		c.mu.Unlock()
		return nil
	}
	from := c.sess.status
	wasConnected := from == StatusConnected
	id := c.config.Identity
	payload := signaling.EndCallPayload{
		MessageID:    c.sess.messageID,
		CallDuration: c.sess.durationSeconds,
	}
	if c.sess.direction == DirectionOutgoing {
		payload.CallerID = id.UserID
		payload.ReceiverID = c.sess.remotePartyID
	} else {
		payload.CallerID = c.sess.remotePartyID
		payload.ReceiverID = id.UserID
	}
	summary := callSummary(c.sess.direction, c.sess.mode, c.sess.durationSeconds)
	cleanup := c.teardownLocked()
	c.mu.Unlock()
	cleanup()

	c.emitWire(signaling.EventEndCall, payload)
	c.emitStatusPair(from, StatusEnded)
	c.notify(NoticeEnded, "Call ended.")
	if wasConnected && c.config.Notifier != nil {
		c.config.Notifier(summary)
	}
	return nil
}

// ToggleMute flips the local audio track's enabled flag without
// renegotiation and returns the new enabled state.
func (c *Client) ToggleMute() bool {
	return c.toggleTrack(webrtc.RTPCodecTypeAudio)
}

// ToggleVideo flips the local video track's enabled flag without
// renegotiation and returns the new enabled state.
func (c *Client) ToggleVideo() bool {
	return c.toggleTrack(webrtc.RTPCodecTypeVideo)
}

func (c *Client) toggleTrack(kind webrtc.RTPCodecType) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sess.localStream == nil {
		return false
	}
	track := c.sess.localStream.TrackOfKind(kind)
	if track == nil {
		return false
	}
	enabled := !track.Enabled()
	track.SetEnabled(enabled)
	return enabled
}

// ToggleSpeaker flips the UI speaker flag and returns the new value.
// Hardware routing is platform-dependent and non-binding.
func (c *Client) ToggleSpeaker() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sess.speakerOn = !c.sess.speakerOn
	return c.sess.speakerOn
}

// ---- Inbound dispatcher ----

// bindDispatcher is the single place wire events map to transitions.
func (c *Client) bindDispatcher() {
	c.on(signaling.EventIncomingCall, func(raw json.RawMessage) {
		var p signaling.IncomingCallPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Printf("calling: bad incoming-call payload: %v", err)
			return
		}
		c.handleIncomingCall(p)
	})
	c.on(signaling.EventCallAccepted, func(raw json.RawMessage) {
		var p signaling.CallAcceptedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Printf("calling: bad call-accepted payload: %v", err)
			return
		}
		c.handleCallAccepted(p)
	})
	c.on(signaling.EventCallRejected, func(raw json.RawMessage) {
		var p signaling.CallRejectedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Printf("calling: bad call-rejected payload: %v", err)
			return
		}
		c.handleCallRejected(p)
	})
	c.on(signaling.EventCallEnded, func(raw json.RawMessage) {
		c.handleCallEnded()
	})
	c.on(signaling.EventIceCandidate, func(raw json.RawMessage) {
		var p signaling.IceCandidatePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Printf("calling: bad ice-candidate payload: %v", err)
			return
		}
		c.handleIceCandidate(p)
	})
	c.on(signaling.EventCallFailed, func(raw json.RawMessage) {
		var p signaling.CallFailedPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Printf("calling: bad call-failed payload: %v", err)
			return
		}
		c.handleCallFailed(p)
	})
}

func (c *Client) on(event string, handler signaling.Handler) {
	c.config.Channel.On(event, handler)
	c.bound = append(c.bound, binding{event, handler})
}

func (c *Client) handleIncomingCall(p signaling.IncomingCallPayload) {
	c.mu.Lock()
	if c.sess.status.Active() {
		c.mu.Unlock()
		// Busy: decline without disturbing the active session.
		c.emitWire(signaling.EventRejectCall, signaling.RejectCallPayload{
			CallerID:  p.CallerID,
			MessageID: p.MessageID,
			Reason:    "busy",
		})
		return
	}

	mode := media.ModeFromVideoFlag(p.IsVideoCall)
	offer := p.Signal
	c.generation++
	gen := c.generation
	c.sess = session{
		direction:       DirectionIncoming,
		remotePartyID:   p.CallerID,
		remotePartyName: p.CallerName,
		remotePartyRole: p.CallerRole,
		mode:            mode,
		status:          StatusRinging,
		messageID:       p.MessageID,
		pendingOffer:    &offer,
	}

	conn, err := c.newPeer(gen, false, mode, nil)
	if err != nil {
		cleanup := c.teardownLocked()
		c.mu.Unlock()
		cleanup()
		c.emitStatusPair(StatusRinging, StatusFailed)
		c.notify(NoticeError, callsdk.UserMessage(err))
		return
	}
	c.sess.conn = conn
	c.armSetupTimerLocked(gen)
	snap := c.sess.snapshot(c.config.Identity.UserID)
	c.mu.Unlock()

	c.emitter.Emit(EventStatusChanged, StatusChange{From: StatusIdle, To: StatusRinging})
	c.emitter.Emit(EventIncomingCall, snap)
}

func (c *Client) handleCallAccepted(p signaling.CallAcceptedPayload) {
	c.mu.Lock()
	if c.sess.status != StatusDialing || c.sess.conn == nil {
		c.mu.Unlock()
		return
	}
	gen := c.generation
	conn := c.sess.conn
	c.mu.Unlock()

	if err := conn.ProcessSignal(p.Signal); err != nil {
		c.failSession(gen, err)
		return
	}

	c.mu.Lock()
	if gen != c.generation || c.sess.status != StatusDialing {
		c.mu.Unlock()
		return
	}
	emit := c.setConnectedLocked(gen)
	c.mu.Unlock()
	emit()
}

func (c *Client) handleCallRejected(p signaling.CallRejectedPayload) {
	c.mu.Lock()
	if !c.sess.status.Active() {
		c.mu.Unlock()
		return
	}
	from := c.sess.status
	cleanup := c.teardownLocked()
	c.mu.Unlock()
	cleanup()

	c.emitStatusPair(from, StatusRejected)
	c.notify(NoticeRejected, callsdk.UserMessage(callsdk.NewRemoteRejected(p.Reason)))
}

func (c *Client) handleCallEnded() {
	c.mu.Lock()
	if !c.sess.status.Active() {
		c.mu.Unlock()
		return
	}
	from := c.sess.status
	wasConnected := from == StatusConnected
	summary := callSummary(c.sess.direction, c.sess.mode, c.sess.durationSeconds)
	cleanup := c.teardownLocked()
	c.mu.Unlock()
	cleanup()

	c.emitStatusPair(from, StatusEnded)
	c.notify(NoticeEnded, callsdk.UserMessage(callsdk.NewRemoteEnded()))
	if wasConnected && c.config.Notifier != nil {
		c.config.Notifier(summary)
	}
}

func (c *Client) handleCallFailed(p signaling.CallFailedPayload) {
	c.mu.Lock()
	if !c.sess.status.Active() {
		c.mu.Unlock()
		return
	}
	from := c.sess.status
	cleanup := c.teardownLocked()
	c.mu.Unlock()
	cleanup()

	c.emitStatusPair(from, StatusFailed)
	c.notify(NoticeFailed, callsdk.UserMessage(callsdk.NewRemoteFailed(p.Message)))
}

func (c *Client) handleIceCandidate(p signaling.IceCandidatePayload) {
	c.mu.Lock()
	if !c.sess.status.Active() || c.sess.conn == nil {
		c.mu.Unlock()
		return
	}
	conn := c.sess.conn
	c.mu.Unlock()

	candidate := p.Candidate
	if err := conn.ProcessSignal(signaling.Signal{
		Type:      signaling.SignalCandidate,
		Candidate: &candidate,
	}); err != nil {
		c.logger.Printf("calling: candidate apply error: %v", err)
	}
}

// ---- Peer wiring ----

func (c *Client) newPeer(gen uint64, initiator bool, mode media.Mode, stream *media.Stream) (*peer.Connection, error) {
	return peer.New(&peer.Config{
		Initiator:   initiator,
		Mode:        mode,
		LocalStream: stream,
		ICEServers:  c.config.ICEServers,
		OnSignal:    func(sig signaling.Signal) { c.forwardSignal(gen, sig) },
		OnStream:    func(t *webrtc.TrackRemote) { c.handleRemoteTrack(gen, t) },
		OnConnected: func() { c.handlePeerConnected(gen) },
		OnError:     func(err error) { c.failSession(gen, err) },
		OnClose:     func() { c.handlePeerClose(gen) },
		Logger:      c.logger,
	})
}

// forwardSignal is the single outbound emitter: locally generated
// descriptions map to wire events by session direction.
func (c *Client) forwardSignal(gen uint64, sig signaling.Signal) {
	c.mu.Lock()
	if gen != c.generation || !c.sess.status.Active() {
		c.mu.Unlock()
		return
	}
	id := c.config.Identity
	var event string
	var payload interface{}
	switch {
	case sig.Type == signaling.SignalOffer && c.sess.direction == DirectionOutgoing:
		event = signaling.EventCallUser
		payload = signaling.CallUserPayload{
			CallerID:    id.UserID,
			ReceiverID:  c.sess.remotePartyID,
			CallerName:  id.UserName,
			CallerRole:  id.UserRole,
			IsVideoCall: c.sess.mode.Video(),
			Signal:      sig,
		}
	case sig.Type == signaling.SignalAnswer && c.sess.direction == DirectionIncoming:
		event = signaling.EventAnswerCall
		payload = signaling.AnswerCallPayload{
			CallerID:  c.sess.remotePartyID,
			Signal:    sig,
			MessageID: c.sess.messageID,
		}
	default:
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := c.config.Channel.Emit(event, payload); err != nil {
		c.failSession(gen, err)
	}
}

func (c *Client) handleRemoteTrack(gen uint64, track *webrtc.TrackRemote) {
	c.mu.Lock()
	if gen != c.generation || !c.sess.status.Active() {
		c.mu.Unlock()
		return
	}
	c.sess.remoteTracks = append(c.sess.remoteTracks, track)
	var emit func()
	if c.sess.status == StatusConnecting {
		emit = c.setConnectedLocked(gen)
	}
	c.mu.Unlock()

	if emit != nil {
		emit()
	}
	c.emitter.Emit(EventRemoteStream, track)
}

// handlePeerConnected flips a negotiating session to connected when the
// transport comes up. Remote tracks from a silent peer may never arrive,
// so track arrival is not the only connected trigger.
func (c *Client) handlePeerConnected(gen uint64) {
	c.mu.Lock()
	if gen != c.generation ||
		(c.sess.status != StatusDialing && c.sess.status != StatusConnecting) {
		c.mu.Unlock()
		return
	}
	emit := c.setConnectedLocked(gen)
	c.mu.Unlock()
	emit()
}

// failSession tears the active session down with a failure notice. Used
// by peer callbacks and negotiation errors.
func (c *Client) failSession(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation || !c.sess.status.Active() {
		c.mu.Unlock()
		return
	}
	from := c.sess.status
	cleanup := c.teardownLocked()
	c.mu.Unlock()
	cleanup()

	c.logger.Printf("calling: session failed: %v", err)
	c.emitStatusPair(from, StatusFailed)
	c.notify(NoticeError, callsdk.UserMessage(err))
}

func (c *Client) handlePeerClose(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || !c.sess.status.Active() {
		c.mu.Unlock()
		return
	}
	from := c.sess.status
	cleanup := c.teardownLocked()
	c.mu.Unlock()
	cleanup()

	c.emitStatusPair(from, StatusEnded)
	c.notify(NoticeEnded, "Call ended.")
}

// ---- Timers ----

// setConnectedLocked flips the session to connected and starts the
// duration ticker. startedAt is set at most once per session, and only
// when the ticker is not already running.
func (c *Client) setConnectedLocked(gen uint64) func() {
	from := c.sess.status
	c.sess.status = StatusConnected
	if c.sess.setupTimer != nil {
		c.sess.setupTimer.Stop()
		c.sess.setupTimer = nil
	}
	if c.sess.startedAt.IsZero() {
		c.sess.startedAt = c.clk.Now()
		c.sess.durationSeconds = 0
		ticker := c.clk.Ticker(time.Second)
		stop := make(chan struct{})
		c.sess.ticker = ticker
		c.sess.tickerStop = stop
		go c.runTicker(gen, ticker, stop)
	}
	conn := c.sess.conn
	return func() {
		// The peer mutex is only taken after the client mutex is
		// released, so peer callbacks can never deadlock against it.
		if conn != nil {
			if n := conn.PendingCandidates(); n > 0 {
				c.logger.Printf("calling: %d candidates still buffered at connect", n)
			}
		}
		c.emitter.Emit(EventStatusChanged, StatusChange{From: from, To: StatusConnected})
	}
}

func (c *Client) runTicker(gen uint64, ticker *clock.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		c.mu.Lock()
		if gen != c.generation || c.sess.status != StatusConnected {
			c.mu.Unlock()
			return
		}
		c.sess.durationSeconds = int(c.clk.Now().Sub(c.sess.startedAt) / time.Second)
		secs := c.sess.durationSeconds
		c.mu.Unlock()
		c.emitter.Emit(EventDuration, secs)
	}
}

func (c *Client) armSetupTimerLocked(gen uint64) {
	if c.config.SetupTimeout <= 0 {
		return
	}
	c.sess.setupTimer = c.clk.AfterFunc(c.config.SetupTimeout, func() {
		c.handleSetupTimeout(gen)
	})
}

// handleSetupTimeout bounds dialing/ringing/connecting so an unanswered
// call cannot hang forever. The remote is told, then the session fails.
func (c *Client) handleSetupTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || !c.sess.status.Active() || c.sess.status == StatusConnected {
		c.mu.Unlock()
		return
	}
	from := c.sess.status
	id := c.config.Identity
	remoteID := c.sess.remotePartyID
	messageID := c.sess.messageID
	direction := c.sess.direction
	cleanup := c.teardownLocked()
	c.mu.Unlock()
	cleanup()

	if from == StatusRinging {
		c.emitWire(signaling.EventRejectCall, signaling.RejectCallPayload{
			CallerID:  remoteID,
			MessageID: messageID,
			Reason:    "timeout",
		})
	} else {
		payload := signaling.EndCallPayload{MessageID: messageID}
		if direction == DirectionOutgoing {
			payload.CallerID = id.UserID
			payload.ReceiverID = remoteID
		} else {
			payload.CallerID = remoteID
			payload.ReceiverID = id.UserID
		}
		c.emitWire(signaling.EventEndCall, payload)
	}

	c.emitStatusPair(from, StatusFailed)
	c.notify(NoticeTimeout, callsdk.UserMessage(callsdk.NewSetupTimeout(string(from))))
}

// ---- Teardown and helpers ----

// teardownLocked stops timers, invalidates every outstanding callback,
// and resets the session. It returns the resource-release step to run
// after the lock is dropped, so a peer OnClose firing inside Close cannot
// re-enter the mutex. Cleanup is never skipped on error paths.
func (c *Client) teardownLocked() func() {
	c.generation++
	stream := c.sess.localStream
	conn := c.sess.conn
	if c.sess.acquireCancel != nil {
		c.sess.acquireCancel()
	}
	if c.sess.setupTimer != nil {
		c.sess.setupTimer.Stop()
	}
	if c.sess.ticker != nil {
		c.sess.ticker.Stop()
	}
	if c.sess.tickerStop != nil {
		close(c.sess.tickerStop)
	}
	c.sess.reset()

	return func() {
		stream.Release()
		if conn != nil {
			_ = conn.Close()
		}
	}
}

// emitStatusPair reports a terminal transition followed by the reset to
// idle defaults.
func (c *Client) emitStatusPair(from, terminal Status) {
	c.emitter.Emit(EventStatusChanged, StatusChange{From: from, To: terminal})
	c.emitter.Emit(EventStatusChanged, StatusChange{From: terminal, To: StatusIdle})
}

func (c *Client) emitWire(event string, payload interface{}) {
	if err := c.config.Channel.Emit(event, payload); err != nil {
		c.logger.Printf("calling: %s emit failed: %v", event, err)
	}
}

func (c *Client) notify(kind NoticeKind, message string) {
	c.logger.Printf("calling: %s: %s", kind, message)
	c.emitter.Emit(EventNotice, Notice{Kind: kind, Message: message})
}

func callSummary(direction Direction, mode media.Mode, seconds int) string {
	return fmt.Sprintf("Call summary: %s %s call, duration %02d:%02d",
		direction, mode, seconds/60, seconds%60)
}
