/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package peer owns one underlying WebRTC peer connection per call. The
// wrapper maps the transport's own state machine to four externally
// observable signals: OnSignal (outbound negotiation messages), OnStream
// (remote media arrival), OnError (terminal transport failures), and
// OnClose. Inbound descriptions pass through the repair layer before they
// are applied.
package peer

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/dentalio/callkit-go/callsdk"
	"github.com/dentalio/callkit-go/media"
	"github.com/dentalio/callkit-go/sdprepair"
	"github.com/dentalio/callkit-go/signaling"
)

// Config holds the configuration for one peer connection wrapper.
type Config struct {
	// Initiator selects the offering side of the negotiation.
	Initiator bool

	// Mode decides whether a video section is negotiated.
	Mode media.Mode

	// LocalStream is attached at creation when present. The callee side
	// creates the wrapper without a stream and attaches one at answer time.
	LocalStream *media.Stream

	// ICEServers overrides the default public STUN list.
	ICEServers []webrtc.ICEServer

	// OnSignal receives outbound offers and answers. The call site must
	// forward them over signaling.
	OnSignal func(signaling.Signal)

	// OnStream fires once per remote track group.
	OnStream func(*webrtc.TrackRemote)

	// OnConnected fires when the transport reaches the connected state.
	// Remote tracks may arrive before or after this.
	OnConnected func()

	// OnError receives terminal transport failures (ICE failed or
	// disconnected). Errors from ProcessSignal are returned, not reported
	// here.
	OnError func(error)

	// OnClose fires exactly once when the connection shuts down.
	OnClose func()

	Logger callsdk.Logger
}

// DefaultICEServers returns the fixed public STUN list. No TURN: a
// documented limitation of this design.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
	}
}

// Connection wraps one *webrtc.PeerConnection for the duration of a call.
type Connection struct {
	config *Config
	logger callsdk.Logger

	mu            sync.Mutex
	pc            *webrtc.PeerConnection
	remoteSet     bool
	pendingRemote []webrtc.ICECandidateInit
	seenStreams   map[string]bool
	failed        bool
	closed        bool

	closeOnce sync.Once
}

// New builds the underlying peer connection, registers the default codecs
// and interceptors, and attaches the local stream's tracks when provided.
func New(config *Config) (*Connection, error) {
	if config == nil {
		config = &Config{}
	}
	logger := callsdk.EnsureLogger(config.Logger)

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	// Default interceptors (RTCP reports, NACK, TWCC) are required with a
	// custom MediaEngine, otherwise inbound SRTP is not processed properly
	// and OnTrack may not fire.
	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register default interceptors: %w", err)
	}

	// Generous ICE timeouts so a brief NAT hiccup does not immediately
	// terminate the call.
	settings := webrtc.SettingEngine{}
	settings.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settings),
		webrtc.WithInterceptorRegistry(registry),
	)

	// A nil slice means "use the defaults"; an explicit empty slice means
	// host candidates only (loopback and LAN deployments).
	iceServers := config.ICEServers
	if iceServers == nil {
		iceServers = DefaultICEServers()
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	conn := &Connection{
		config:      config,
		logger:      logger,
		pc:          pc,
		seenStreams: make(map[string]bool),
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Printf("peer: connection state -> %s", s)
		switch s {
		case webrtc.PeerConnectionStateConnected:
			if config.OnConnected != nil {
				config.OnConnected()
			}
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateDisconnected:
			conn.reportFailure(s.String())
		case webrtc.PeerConnectionStateClosed:
			conn.fireClose()
		}
	})
	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		logger.Printf("peer: ICE connection state -> %s", s)
		switch s {
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateDisconnected:
			conn.reportFailure(s.String())
		}
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Printf("peer: remote track codec=%s stream=%s", track.Codec().MimeType, track.StreamID())
		conn.mu.Lock()
		seen := conn.seenStreams[track.StreamID()]
		conn.seenStreams[track.StreamID()] = true
		handler := conn.config.OnStream
		conn.mu.Unlock()

		if !seen && handler != nil {
			handler(track)
		}
	})

	if config.LocalStream != nil {
		if err := conn.attachStreamLocked(config.LocalStream); err != nil {
			_ = pc.Close()
			return nil, err
		}
	} else if config.Initiator {
		// Offering with no local media still needs valid m-lines.
		conn.addRecvOnlyTransceivers()
	}

	return conn, nil
}

// AttachStream adds the tracks of a late-acquired local stream. Used by
// the callee side between ringing and answering, before the buffered
// remote offer is applied, so the generated answer carries the tracks.
func (c *Connection) AttachStream(stream *media.Stream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}
	return c.attachStreamLocked(stream)
}

func (c *Connection) attachStreamLocked(stream *media.Stream) error {
	for _, track := range stream.Tracks() {
		transceiver, err := c.pc.AddTransceiverFromTrack(track.Local(),
			webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv},
		)
		if err != nil {
			return fmt.Errorf("failed to add %s transceiver: %w", track.Kind(), err)
		}

		// Drain RTCP from the sender to keep interceptors fed.
		go func() {
			sender := transceiver.Sender()
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
	}
	return nil
}

func (c *Connection) addRecvOnlyTransceivers() {
	kinds := []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio}
	if c.config.Mode.Video() {
		kinds = append(kinds, webrtc.RTPCodecTypeVideo)
	}
	for _, kind := range kinds {
		if _, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			c.logger.Printf("peer: AddTransceiver(%s) error: %v", kind, err)
		}
	}
}

// Start creates the initial offer. Only meaningful on the initiator side.
// The offer is fully gathered before it is emitted, so the description
// carries every local candidate and no outbound trickle is needed.
func (c *Connection) Start() error {
	if !c.config.Initiator {
		return fmt.Errorf("start is only valid on the initiator side")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return callsdk.NewDescriptionApply("createOffer", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return callsdk.NewDescriptionApply("setLocalDescription", err)
	}

	<-webrtc.GatheringCompletePromise(c.pc)

	local := c.pc.LocalDescription()
	if local == nil {
		return callsdk.NewDescriptionApply("createOffer",
			fmt.Errorf("local description is nil after gathering"))
	}

	sdp, err := sdprepair.Normalize(webrtc.SDPTypeOffer, local.SDP, c.config.Mode.Video())
	if err != nil {
		return callsdk.NewDescriptionApply("normalizeOffer", err)
	}

	c.emitSignal(signaling.Signal{Type: signaling.SignalOffer, SDP: sdp})
	return nil
}

// ProcessSignal applies one inbound signal. Offers and answers are routed
// through the repair layer first; candidates are buffered FIFO until the
// remote description has been set, then flushed in receipt order.
// Failures are returned to the caller, already converted to taxonomy
// errors.
func (c *Connection) ProcessSignal(sig signaling.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed")
	}

	switch sig.Type {
	case signaling.SignalCandidate:
		return c.handleCandidateLocked(sig)
	case signaling.SignalOffer:
		return c.handleOfferLocked(sig)
	case signaling.SignalAnswer:
		return c.handleAnswerLocked(sig)
	default:
		return fmt.Errorf("unknown signal type %q", sig.Type)
	}
}

func (c *Connection) handleCandidateLocked(sig signaling.Signal) error {
	if sig.Candidate == nil {
		return nil
	}
	if !c.remoteSet {
		c.pendingRemote = append(c.pendingRemote, *sig.Candidate)
		return nil
	}
	if err := c.pc.AddICECandidate(*sig.Candidate); err != nil {
		// A single bad candidate is not fatal; the rest may connect.
		c.logger.Printf("peer: AddICECandidate error: %v", err)
	}
	return nil
}

func (c *Connection) handleOfferLocked(sig signaling.Signal) error {
	repaired, err := sdprepair.Normalize(webrtc.SDPTypeOffer, sig.SDP, c.config.Mode.Video())
	if err != nil {
		return callsdk.NewDescriptionApply("repairOffer", err)
	}

	if err := c.applyRemoteLocked(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  repaired,
	}); err != nil {
		return err
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return callsdk.NewDescriptionApply("createAnswer", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return callsdk.NewDescriptionApply("setLocalDescription", err)
	}

	<-webrtc.GatheringCompletePromise(c.pc)

	local := c.pc.LocalDescription()
	if local == nil {
		return callsdk.NewDescriptionApply("createAnswer",
			fmt.Errorf("local description is nil after gathering"))
	}

	sdp, err := sdprepair.Normalize(webrtc.SDPTypeAnswer, local.SDP, c.config.Mode.Video())
	if err != nil {
		return callsdk.NewDescriptionApply("normalizeAnswer", err)
	}

	c.emitSignal(signaling.Signal{Type: signaling.SignalAnswer, SDP: sdp})
	return nil
}

func (c *Connection) handleAnswerLocked(sig signaling.Signal) error {
	// Duplicate answers can arrive after gateway reconnects; once the
	// signaling state is stable the answer has already been applied.
	if c.pc.SignalingState() == webrtc.SignalingStateStable && c.remoteSet {
		c.logger.Printf("peer: ignoring duplicate answer (signaling state already stable)")
		return nil
	}

	repaired, err := sdprepair.Normalize(webrtc.SDPTypeAnswer, sig.SDP, c.config.Mode.Video())
	if err != nil {
		return callsdk.NewDescriptionApply("repairAnswer", err)
	}

	desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: repaired}
	applyErr := c.pc.SetRemoteDescription(desc)
	if applyErr != nil && sdprepair.IsOrderError(applyErr) {
		// Remote answers from mobile clients can order media sections
		// differently than our offer. Rebuild an answer mirroring the
		// local section order and retry exactly once; if that fails,
		// the original error propagates.
		local := c.pc.LocalDescription()
		if local != nil {
			if mirrored, mErr := sdprepair.MirrorAnswer(local.SDP); mErr == nil {
				if c.pc.SetRemoteDescription(webrtc.SessionDescription{
					Type: webrtc.SDPTypeAnswer,
					SDP:  mirrored,
				}) == nil {
					applyErr = nil
				}
			}
		}
	}
	if applyErr != nil {
		return callsdk.NewDescriptionApply("setRemoteDescription", applyErr)
	}

	c.remoteSetLocked()
	return nil
}

// applyRemoteLocked sets a remote description with the bounded
// multiplex-attribute retry.
func (c *Connection) applyRemoteLocked(desc webrtc.SessionDescription) error {
	applyErr := c.pc.SetRemoteDescription(desc)
	if applyErr != nil && sdprepair.IsMuxError(applyErr) {
		forced, _, fErr := sdprepair.EnsureRTCPMux(desc.SDP)
		if fErr == nil {
			if c.pc.SetRemoteDescription(webrtc.SessionDescription{
				Type: desc.Type,
				SDP:  forced,
			}) == nil {
				applyErr = nil
			}
		}
	}
	if applyErr != nil {
		return callsdk.NewDescriptionApply("setRemoteDescription", applyErr)
	}

	c.remoteSetLocked()
	return nil
}

// remoteSetLocked marks the remote description applied and flushes the
// buffered candidates in receipt order.
func (c *Connection) remoteSetLocked() {
	c.remoteSet = true
	for _, candidate := range c.pendingRemote {
		if err := c.pc.AddICECandidate(candidate); err != nil {
			c.logger.Printf("peer: buffered AddICECandidate error: %v", err)
		}
	}
	c.pendingRemote = nil
}

// PendingCandidates reports how many remote candidates are still buffered.
func (c *Connection) PendingCandidates() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pendingRemote)
}

// ConnectionState returns the underlying transport state.
func (c *Connection) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

// Close releases the underlying connection. Idempotent.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pc := c.pc
	c.mu.Unlock()

	err := pc.Close()
	c.fireClose()
	return err
}

func (c *Connection) emitSignal(sig signaling.Signal) {
	if c.config.OnSignal != nil {
		c.config.OnSignal(sig)
	}
}

// reportFailure surfaces a terminal transport state once. There is no
// automatic ICE restart; the call state machine tears the session down.
func (c *Connection) reportFailure(state string) {
	c.mu.Lock()
	if c.failed || c.closed {
		c.mu.Unlock()
		return
	}
	c.failed = true
	handler := c.config.OnError
	c.mu.Unlock()

	if handler != nil {
		handler(callsdk.NewIceFailure(state))
	}
}

func (c *Connection) fireClose() {
	c.closeOnce.Do(func() {
		if c.config.OnClose != nil {
			c.config.OnClose()
		}
	})
}
