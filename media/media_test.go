/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
)

func TestModeFromVideoFlag(t *testing.T) {
	if got := ModeFromVideoFlag(true); got != ModeVideo {
		t.Errorf("ModeFromVideoFlag(true) = %v, want video", got)
	}
	if got := ModeFromVideoFlag(false); got != ModeAudio {
		t.Errorf("ModeFromVideoFlag(false) = %v, want audio", got)
	}
}

func TestStaticAcquirer_TrackKinds(t *testing.T) {
	tests := []struct {
		name   string
		mode   Mode
		tracks int
		video  bool
	}{
		{"Audio call", ModeAudio, 1, false},
		{"Video call", ModeVideo, 2, true},
	}

	acquirer := NewStaticAcquirer()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stream, err := acquirer.Acquire(context.Background(), tc.mode, DefaultConstraints())
			if err != nil {
				t.Fatalf("Acquire failed: %v", err)
			}
			defer stream.Release()

			if len(stream.Tracks()) != tc.tracks {
				t.Fatalf("got %d tracks, want %d", len(stream.Tracks()), tc.tracks)
			}
			if stream.TrackOfKind(webrtc.RTPCodecTypeAudio) == nil {
				t.Error("no audio track")
			}
			if hasVideo := stream.TrackOfKind(webrtc.RTPCodecTypeVideo) != nil; hasVideo != tc.video {
				t.Errorf("video track present = %v, want %v", hasVideo, tc.video)
			}
			for i, track := range stream.Tracks() {
				if !track.Enabled() {
					t.Errorf("track %d not enabled at acquisition", i)
				}
			}
		})
	}
}

func TestStaticAcquirer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stream, err := NewStaticAcquirer().Acquire(ctx, ModeAudio, DefaultConstraints())
	if err == nil {
		stream.Release()
		t.Fatal("expected an error from a cancelled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestTrack_ToggleDoesNotStop(t *testing.T) {
	local, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2,
	}, "audio", "test")
	if err != nil {
		t.Fatal(err)
	}
	track := NewTrack(local, webrtc.RTPCodecTypeAudio, nil)

	track.SetEnabled(false)
	if track.Enabled() {
		t.Error("track still enabled after disable")
	}
	if track.Stopped() {
		t.Error("disabling the track must not release the device")
	}
	track.SetEnabled(true)
	if !track.Enabled() {
		t.Error("track not enabled after re-enable")
	}
}

func TestTrack_StopIdempotent(t *testing.T) {
	stops := 0
	track := NewTrack(nil, webrtc.RTPCodecTypeAudio, func() error {
		stops++
		return nil
	})

	if err := track.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := track.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if stops != 1 {
		t.Errorf("device released %d times, want 1", stops)
	}
	if track.Enabled() {
		t.Error("stopped track reports enabled")
	}
}

func TestStream_Release(t *testing.T) {
	stops := 0
	stream := NewStream(ModeVideo,
		NewTrack(nil, webrtc.RTPCodecTypeAudio, func() error { stops++; return nil }),
		NewTrack(nil, webrtc.RTPCodecTypeVideo, func() error { stops++; return nil }),
	)

	if stream.ActiveTracks() != 2 {
		t.Fatalf("ActiveTracks = %d, want 2", stream.ActiveTracks())
	}
	stream.Release()
	stream.Release()
	if stops != 2 {
		t.Errorf("devices released %d times, want 2", stops)
	}
	if stream.ActiveTracks() != 0 {
		t.Errorf("ActiveTracks = %d after release, want 0", stream.ActiveTracks())
	}
}

func TestStream_NilRelease(t *testing.T) {
	var stream *Stream
	stream.Release()
}

func TestGuardCancel_LateGrantReleased(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	stopped := make(chan struct{})
	granted := make(chan struct{})
	stream, err := guardCancel(ctx, func() (*Stream, error) {
		cancel()
		<-granted
		return NewStream(ModeAudio, NewTrack(nil, webrtc.RTPCodecTypeAudio, func() error {
			close(stopped)
			return nil
		})), nil
	})

	if stream != nil {
		t.Fatal("expected no stream after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	// The prompt is granted only after the caller has already gone away.
	close(granted)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("late-granted track was never released")
	}
}

func TestGuardCancel_GrantBeforeCancel(t *testing.T) {
	want := NewStream(ModeAudio, NewTrack(nil, webrtc.RTPCodecTypeAudio, nil))
	got, err := guardCancel(context.Background(), func() (*Stream, error) {
		return want, nil
	})
	if err != nil {
		t.Fatalf("guardCancel failed: %v", err)
	}
	if got != want {
		t.Error("expected the captured stream back")
	}
}
