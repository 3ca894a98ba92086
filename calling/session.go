/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package calling

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pion/webrtc/v4"

	"github.com/dentalio/callkit-go/callsdk"
	"github.com/dentalio/callkit-go/media"
	"github.com/dentalio/callkit-go/peer"
	"github.com/dentalio/callkit-go/signaling"
)

// session is the single call session owned by the Client. Exactly one
// non-idle session exists per client at a time. All fields are guarded by
// the Client's mutex.
type session struct {
	direction       Direction
	remotePartyID   string
	remotePartyName string
	remotePartyRole callsdk.Role
	mode            media.Mode
	status          Status
	messageID       string

	// startedAt is set at most once, at the transition to connected.
	startedAt       time.Time
	durationSeconds int

	// localStream is exclusively owned by the session and released on
	// every terminal transition. remoteTracks are references populated by
	// the peer wrapper, never created here.
	localStream  *media.Stream
	remoteTracks []*webrtc.TrackRemote

	conn *peer.Connection

	// pendingOffer buffers the inbound offer of an incoming call until
	// local media is acquired at answer time.
	pendingOffer *signaling.Signal

	// acquireCancel aborts an in-flight media acquisition when the call
	// is ended or rejected mid-prompt.
	acquireCancel context.CancelFunc

	speakerOn  bool
	setupTimer *clock.Timer

	// ticker drives the duration counter; tickerStop is closed at
	// teardown so the ticker goroutine never blocks on a stopped ticker.
	ticker     *clock.Ticker
	tickerStop chan struct{}
}

// Snapshot is a copy of the session's observable state, safe to inspect
// outside the client's lock.
type Snapshot struct {
	Direction       Direction
	LocalPartyID    string
	RemotePartyID   string
	RemotePartyName string
	RemotePartyRole callsdk.Role
	Mode            media.Mode
	Status          Status
	StartedAt       time.Time
	DurationSeconds int
	MessageID       string
	AudioEnabled    bool
	VideoEnabled    bool
	SpeakerOn       bool
	RemoteTracks    int
}

func (s *session) snapshot(localPartyID string) Snapshot {
	snap := Snapshot{
		Direction:       s.direction,
		LocalPartyID:    localPartyID,
		RemotePartyID:   s.remotePartyID,
		RemotePartyName: s.remotePartyName,
		RemotePartyRole: s.remotePartyRole,
		Mode:            s.mode,
		Status:          s.status,
		StartedAt:       s.startedAt,
		DurationSeconds: s.durationSeconds,
		MessageID:       s.messageID,
		SpeakerOn:       s.speakerOn,
		RemoteTracks:    len(s.remoteTracks),
	}
	if s.localStream != nil {
		if t := s.localStream.TrackOfKind(webrtc.RTPCodecTypeAudio); t != nil {
			snap.AudioEnabled = t.Enabled()
		}
		if t := s.localStream.TrackOfKind(webrtc.RTPCodecTypeVideo); t != nil {
			snap.VideoEnabled = t.Enabled()
		}
	}
	return snap
}

// reset returns the session to idle defaults. Resources must already have
// been released by the teardown path.
func (s *session) reset() {
	*s = session{status: StatusIdle}
}
