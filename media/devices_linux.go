/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

//go:build linux

package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"

	"github.com/dentalio/callkit-go/callsdk"
)

// DeviceAcquirer captures real camera/microphone tracks via
// pion/mediadevices (V4L2 + malgo on Linux).
type DeviceAcquirer struct {
	logger callsdk.Logger
}

// NewDeviceAcquirer returns a device-backed acquirer. A nil logger uses
// the standard library default.
func NewDeviceAcquirer(logger callsdk.Logger) *DeviceAcquirer {
	logger = callsdk.EnsureLogger(logger)
	return &DeviceAcquirer{logger: logger}
}

// Acquire requests the microphone always and the camera only for video
// mode. A video call degrades to audio-only when the camera cannot be
// opened; a call with no usable microphone fails.
func (a *DeviceAcquirer) Acquire(ctx context.Context, mode Mode, constraints Constraints) (*Stream, error) {
	return guardCancel(ctx, func() (*Stream, error) {
		return a.capture(mode, constraints)
	})
}

func (a *DeviceAcquirer) capture(mode Mode, constraints Constraints) (*Stream, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, callsdk.NewDeviceUnavailable("acquire", err)
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, callsdk.NewDeviceUnavailable("acquire", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	// GetUserMedia fails as a unit if either requested track cannot be
	// opened, so a busy camera is retried as audio-only rather than
	// failing the whole call.
	attempts := []struct {
		video bool
		label string
	}{{mode.Video(), string(mode)}}
	if mode.Video() {
		attempts = append(attempts, struct {
			video bool
			label string
		}{false, "audio-only fallback"})
	}

	var lastErr error
	for _, attempt := range attempts {
		mdConstraints := mediadevices.MediaStreamConstraints{Codec: selector}
		mdConstraints.Audio = func(c *mediadevices.MediaTrackConstraints) {
			// Echo cancellation, noise suppression, and gain control are
			// processing hints; mediadevices applies what the driver
			// supports.
		}
		if attempt.video {
			video := constraints.Video
			mdConstraints.Video = func(c *mediadevices.MediaTrackConstraints) {
				// Raw formats only: some cameras expose an MJPEG node that
				// produces malformed frames and poisons the VP8 encoder.
				c.FrameFormat = prop.FrameFormatOneOf{
					frame.FormatYUYV,
					frame.FormatI420,
					frame.FormatI444,
					frame.FormatRGBA,
				}
				if video.IdealWidth > 0 {
					c.Width = prop.IntRanged{Ideal: video.IdealWidth}
				}
				if video.IdealHeight > 0 {
					c.Height = prop.IntRanged{Ideal: video.IdealHeight}
				}
				if video.IdealFrameRate > 0 {
					c.FrameRate = prop.FloatRanged{Ideal: float32(video.IdealFrameRate)}
				}
			}
		}

		mdStream, err := mediadevices.GetUserMedia(mdConstraints)
		if err != nil {
			a.logger.Printf("media: GetUserMedia (%s) failed: %v", attempt.label, err)
			lastErr = err
			continue
		}

		var tracks []*Track
		for _, mdTrack := range mdStream.GetTracks() {
			mdTrack := mdTrack
			kind := mdTrack.Kind()
			tracks = append(tracks, NewTrack(mdTrack, kind, mdTrack.Close))
		}
		if len(tracks) == 0 {
			lastErr = fmt.Errorf("capture returned no tracks")
			continue
		}

		a.logger.Printf("media: local media captured (%s), %d tracks", attempt.label, len(tracks))
		return NewStream(mode, tracks...), nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no capture attempt executed")
	}
	return nil, classifyCaptureError(lastErr)
}

// classifyCaptureError splits permission denials from every other
// acquisition failure so the two surface distinct user messages.
func classifyCaptureError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") ||
		strings.Contains(msg, "not allowed") {
		return callsdk.NewPermissionDenied("acquire", err)
	}
	return callsdk.NewDeviceUnavailable("acquire", err)
}

var _ Acquirer = (*DeviceAcquirer)(nil)
var _ webrtc.TrackLocal = (mediadevices.Track)(nil)
