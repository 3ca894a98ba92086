/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package peer

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/dentalio/callkit-go/media"
	"github.com/dentalio/callkit-go/sdprepair"
	"github.com/dentalio/callkit-go/signaling"
)

// noICE keeps tests on host candidates so gathering completes without
// reaching any STUN server.
var noICE = []webrtc.ICEServer{}

func testStream(t *testing.T, mode media.Mode) *media.Stream {
	t.Helper()
	stream, err := media.NewStaticAcquirer().Acquire(context.Background(), mode, media.DefaultConstraints())
	if err != nil {
		t.Fatalf("acquire test stream: %v", err)
	}
	t.Cleanup(stream.Release)
	return stream
}

func TestConnection_StartEmitsGatheredOffer(t *testing.T) {
	signals := make(chan signaling.Signal, 1)
	conn, err := New(&Config{
		Initiator:   true,
		Mode:        media.ModeVideo,
		LocalStream: testStream(t, media.ModeVideo),
		ICEServers:  noICE,
		OnSignal:    func(sig signaling.Signal) { signals <- sig },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case sig := <-signals:
		if sig.Type != signaling.SignalOffer {
			t.Fatalf("signal type = %q, want offer", sig.Type)
		}
		if sdprepair.IsPlaceholder(sig.SDP) {
			t.Fatal("emitted offer is not a real description")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("offer never emitted")
	}
}

func TestConnection_StartOnCalleeSide(t *testing.T) {
	conn, err := New(&Config{Initiator: false, Mode: media.ModeAudio, ICEServers: noICE})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer conn.Close()

	if err := conn.Start(); err == nil {
		t.Error("expected Start to fail on the non-initiator side")
	}
}

func TestConnection_OfferProducesAnswer(t *testing.T) {
	offers := make(chan signaling.Signal, 1)
	caller, err := New(&Config{
		Initiator:   true,
		Mode:        media.ModeAudio,
		LocalStream: testStream(t, media.ModeAudio),
		ICEServers:  noICE,
		OnSignal:    func(sig signaling.Signal) { offers <- sig },
	})
	if err != nil {
		t.Fatalf("New caller failed: %v", err)
	}
	defer caller.Close()

	if err := caller.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	offer := <-offers

	answers := make(chan signaling.Signal, 1)
	callee, err := New(&Config{
		Initiator:  false,
		Mode:       media.ModeAudio,
		ICEServers: noICE,
		OnSignal:   func(sig signaling.Signal) { answers <- sig },
	})
	if err != nil {
		t.Fatalf("New callee failed: %v", err)
	}
	defer callee.Close()

	if err := callee.AttachStream(testStream(t, media.ModeAudio)); err != nil {
		t.Fatalf("AttachStream failed: %v", err)
	}
	if err := callee.ProcessSignal(offer); err != nil {
		t.Fatalf("ProcessSignal(offer) failed: %v", err)
	}

	select {
	case answer := <-answers:
		if answer.Type != signaling.SignalAnswer {
			t.Fatalf("signal type = %q, want answer", answer.Type)
		}
		if err := caller.ProcessSignal(answer); err != nil {
			t.Fatalf("caller could not apply the answer: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("answer never emitted")
	}
}

func TestConnection_CandidatesBufferedUntilRemoteSet(t *testing.T) {
	offers := make(chan signaling.Signal, 1)
	caller, err := New(&Config{
		Initiator:   true,
		Mode:        media.ModeAudio,
		LocalStream: testStream(t, media.ModeAudio),
		ICEServers:  noICE,
		OnSignal:    func(sig signaling.Signal) { offers <- sig },
	})
	if err != nil {
		t.Fatalf("New caller failed: %v", err)
	}
	defer caller.Close()
	if err := caller.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	offer := <-offers

	callee, err := New(&Config{Initiator: false, Mode: media.ModeAudio, ICEServers: noICE})
	if err != nil {
		t.Fatalf("New callee failed: %v", err)
	}
	defer callee.Close()

	candidate := webrtc.ICECandidateInit{
		Candidate: "candidate:1 1 UDP 2122252543 127.0.0.1 54321 typ host",
	}
	for i := 0; i < 3; i++ {
		err := callee.ProcessSignal(signaling.Signal{Type: signaling.SignalCandidate, Candidate: &candidate})
		if err != nil {
			t.Fatalf("candidate %d rejected: %v", i, err)
		}
	}
	if got := callee.PendingCandidates(); got != 3 {
		t.Fatalf("PendingCandidates = %d before remote description, want 3", got)
	}

	if err := callee.AttachStream(testStream(t, media.ModeAudio)); err != nil {
		t.Fatalf("AttachStream failed: %v", err)
	}
	if err := callee.ProcessSignal(offer); err != nil {
		t.Fatalf("ProcessSignal(offer) failed: %v", err)
	}
	if got := callee.PendingCandidates(); got != 0 {
		t.Errorf("PendingCandidates = %d after remote description, want 0", got)
	}
}

func TestConnection_NilCandidateIgnored(t *testing.T) {
	conn, err := New(&Config{Initiator: false, Mode: media.ModeAudio, ICEServers: noICE})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer conn.Close()

	err = conn.ProcessSignal(signaling.Signal{Type: signaling.SignalCandidate})
	if err != nil {
		t.Errorf("end-of-candidates signal rejected: %v", err)
	}
	if conn.PendingCandidates() != 0 {
		t.Error("nil candidate was buffered")
	}
}

func TestConnection_DuplicateAnswerIgnored(t *testing.T) {
	offers := make(chan signaling.Signal, 1)
	caller, err := New(&Config{
		Initiator:   true,
		Mode:        media.ModeAudio,
		LocalStream: testStream(t, media.ModeAudio),
		ICEServers:  noICE,
		OnSignal:    func(sig signaling.Signal) { offers <- sig },
	})
	if err != nil {
		t.Fatalf("New caller failed: %v", err)
	}
	defer caller.Close()
	if err := caller.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	offer := <-offers

	answers := make(chan signaling.Signal, 1)
	callee, err := New(&Config{
		Initiator:  false,
		Mode:       media.ModeAudio,
		ICEServers: noICE,
		OnSignal:   func(sig signaling.Signal) { answers <- sig },
	})
	if err != nil {
		t.Fatalf("New callee failed: %v", err)
	}
	defer callee.Close()
	if err := callee.AttachStream(testStream(t, media.ModeAudio)); err != nil {
		t.Fatalf("AttachStream failed: %v", err)
	}
	if err := callee.ProcessSignal(offer); err != nil {
		t.Fatalf("ProcessSignal(offer) failed: %v", err)
	}
	answer := <-answers

	if err := caller.ProcessSignal(answer); err != nil {
		t.Fatalf("first answer rejected: %v", err)
	}
	if err := caller.ProcessSignal(answer); err != nil {
		t.Errorf("duplicate answer should be ignored, got %v", err)
	}
}

func TestConnection_TransportConnects(t *testing.T) {
	offers := make(chan signaling.Signal, 1)
	callerUp := make(chan struct{}, 1)
	caller, err := New(&Config{
		Initiator:   true,
		Mode:        media.ModeAudio,
		LocalStream: testStream(t, media.ModeAudio),
		ICEServers:  noICE,
		OnSignal:    func(sig signaling.Signal) { offers <- sig },
		OnConnected: func() { callerUp <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("New caller failed: %v", err)
	}
	defer caller.Close()
	if err := caller.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	answers := make(chan signaling.Signal, 1)
	calleeUp := make(chan struct{}, 1)
	callee, err := New(&Config{
		Initiator:   false,
		Mode:        media.ModeAudio,
		ICEServers:  noICE,
		OnSignal:    func(sig signaling.Signal) { answers <- sig },
		OnConnected: func() { calleeUp <- struct{}{} },
	})
	if err != nil {
		t.Fatalf("New callee failed: %v", err)
	}
	defer callee.Close()
	if err := callee.AttachStream(testStream(t, media.ModeAudio)); err != nil {
		t.Fatalf("AttachStream failed: %v", err)
	}

	if err := callee.ProcessSignal(<-offers); err != nil {
		t.Fatalf("ProcessSignal(offer) failed: %v", err)
	}
	if err := caller.ProcessSignal(<-answers); err != nil {
		t.Fatalf("ProcessSignal(answer) failed: %v", err)
	}

	for _, side := range []struct {
		name string
		up   chan struct{}
	}{{"caller", callerUp}, {"callee", calleeUp}} {
		select {
		case <-side.up:
		case <-time.After(30 * time.Second):
			t.Fatalf("%s transport never connected", side.name)
		}
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	closes := 0
	conn, err := New(&Config{
		Initiator:  false,
		Mode:       media.ModeAudio,
		ICEServers: noICE,
		OnClose:    func() { closes++ },
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if closes != 1 {
		t.Errorf("OnClose fired %d times, want 1", closes)
	}

	err = conn.ProcessSignal(signaling.Signal{Type: signaling.SignalOffer, SDP: "simulated"})
	if err == nil {
		t.Error("expected ProcessSignal to fail on a closed connection")
	}
}

func TestConnection_UnknownSignalType(t *testing.T) {
	conn, err := New(&Config{Initiator: false, Mode: media.ModeAudio, ICEServers: noICE})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer conn.Close()

	if err := conn.ProcessSignal(signaling.Signal{Type: "renegotiate"}); err == nil {
		t.Error("expected an error for an unknown signal type")
	}
}
