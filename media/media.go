/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package media wraps local camera and microphone capture with
// call-mode-aware constraints. Acquisition is pluggable behind the
// Acquirer interface: device capture uses pion/mediadevices where platform
// drivers exist, and a synthetic acquirer serves tests and headless hosts.
package media

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Mode selects which device kinds a call uses.
type Mode string

const (
	ModeAudio Mode = "audio"
	ModeVideo Mode = "video"
)

// ModeFromVideoFlag maps the wire-level isVideoCall flag to a Mode.
func ModeFromVideoFlag(isVideo bool) Mode {
	if isVideo {
		return ModeVideo
	}
	return ModeAudio
}

// Video reports whether the mode includes camera capture.
func (m Mode) Video() bool { return m == ModeVideo }

// AudioConstraints are processing hints for microphone capture. They are
// requested where the platform supports them, never guaranteed.
type AudioConstraints struct {
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// VideoConstraints are capture hints. Ideal values are targets, not
// guarantees; callers must tolerate a lower-resolution grant.
type VideoConstraints struct {
	IdealWidth     int
	IdealHeight    int
	IdealFrameRate int
}

// Constraints bundles the capture hints for one acquisition.
type Constraints struct {
	Audio AudioConstraints
	Video VideoConstraints
}

// DefaultConstraints requests echo cancellation, noise suppression, and
// automatic gain control, with a 1280x720 30fps video target.
func DefaultConstraints() Constraints {
	return Constraints{
		Audio: AudioConstraints{
			EchoCancellation: true,
			NoiseSuppression: true,
			AutoGainControl:  true,
		},
		Video: VideoConstraints{
			IdealWidth:     1280,
			IdealHeight:    720,
			IdealFrameRate: 30,
		},
	}
}

// Acquirer produces a local media stream for a call. Implementations must
// classify failures as PermissionDenied or DeviceUnavailable errors and
// must release any tracks granted after ctx was cancelled.
type Acquirer interface {
	Acquire(ctx context.Context, mode Mode, constraints Constraints) (*Stream, error)
}

// Track is one owned local capture track. The enabled flag backs the
// mute/video toggles and is flipped without renegotiation.
type Track struct {
	kind  webrtc.RTPCodecType
	local webrtc.TrackLocal

	mu      sync.Mutex
	enabled bool
	stopped bool
	stop    func() error
}

// NewTrack wraps a webrtc local track with an optional device-release
// function. Tracks start enabled.
func NewTrack(local webrtc.TrackLocal, kind webrtc.RTPCodecType, stop func() error) *Track {
	return &Track{kind: kind, local: local, enabled: true, stop: stop}
}

// Kind returns the track's codec type (audio or video).
func (t *Track) Kind() webrtc.RTPCodecType { return t.kind }

// Local returns the underlying track to attach to a peer connection.
func (t *Track) Local() webrtc.TrackLocal { return t.local }

// Enabled reports whether the track is currently live for the remote side.
func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// SetEnabled flips the track's live flag.
func (t *Track) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Stop releases the capture device behind the track. Idempotent.
func (t *Track) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.enabled = false
	stop := t.stop
	t.mu.Unlock()

	if stop != nil {
		return stop()
	}
	return nil
}

// Stopped reports whether the track has been released.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Stream is an exclusively owned group of local tracks for one call.
type Stream struct {
	mode   Mode
	tracks []*Track
}

// NewStream groups tracks under a call mode.
func NewStream(mode Mode, tracks ...*Track) *Stream {
	return &Stream{mode: mode, tracks: tracks}
}

// Mode returns the call mode the stream was acquired for.
func (s *Stream) Mode() Mode { return s.mode }

// Tracks returns the stream's tracks.
func (s *Stream) Tracks() []*Track { return s.tracks }

// TrackOfKind returns the first track of the given kind, or nil.
func (s *Stream) TrackOfKind(kind webrtc.RTPCodecType) *Track {
	for _, t := range s.tracks {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// ActiveTracks counts tracks that have not been stopped.
func (s *Stream) ActiveTracks() int {
	n := 0
	for _, t := range s.tracks {
		if !t.Stopped() {
			n++
		}
	}
	return n
}

// Release stops every track. Idempotent; always safe on teardown paths.
func (s *Stream) Release() {
	if s == nil {
		return
	}
	for _, t := range s.tracks {
		_ = t.Stop()
	}
}

// guardCancel runs a blocking capture and honors ctx cancellation. A grant
// that lands after cancellation was observed is still released, so a user
// hanging up mid-permission-prompt never leaks a device handle.
func guardCancel(ctx context.Context, capture func() (*Stream, error)) (*Stream, error) {
	type result struct {
		stream *Stream
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		stream, err := capture()
		ch <- result{stream, err}
	}()

	select {
	case r := <-ch:
		if ctx.Err() != nil {
			r.stream.Release()
			return nil, ctx.Err()
		}
		return r.stream, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.stream != nil {
				r.stream.Release()
			}
		}()
		return nil, ctx.Err()
	}
}
