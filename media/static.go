/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package media

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// StaticAcquirer produces synthetic local tracks with no device capture
// behind them. The tracks negotiate like real ones, which is all tests and
// headless deployments need.
type StaticAcquirer struct{}

// NewStaticAcquirer returns an acquirer backed by synthetic tracks.
func NewStaticAcquirer() *StaticAcquirer { return &StaticAcquirer{} }

// Acquire returns an opus audio track, plus a VP8 video track for video
// mode. Constraints are accepted and ignored.
func (a *StaticAcquirer) Acquire(ctx context.Context, mode Mode, _ Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	audio, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: 48000,
		Channels:  2,
	}, "audio", "callkit-local")
	if err != nil {
		return nil, err
	}
	tracks := []*Track{NewTrack(audio, webrtc.RTPCodecTypeAudio, nil)}

	if mode.Video() {
		video, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		}, "video", "callkit-local")
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, NewTrack(video, webrtc.RTPCodecTypeVideo, nil))
	}

	return NewStream(mode, tracks...), nil
}

var _ Acquirer = (*StaticAcquirer)(nil)
