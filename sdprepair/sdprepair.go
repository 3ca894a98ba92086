/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package sdprepair normalizes session descriptions before they are
// applied to a peer connection. The deployment mixes a standards-compliant
// web stack with mobile clients that may emit placeholder descriptors or
// descriptions missing the multiplexed RTP/RTCP attribute; this package
// detects both cases and produces a description a real peer connection
// will accept. Repairs are structural edits on a parsed description, not
// string substitutions.
package sdprepair

import (
	"fmt"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

const (
	attrRTCPMux = "rtcp-mux"
	attrMID     = "mid"
	attrSetup   = "setup"

	setupActpass = "actpass"
	setupActive  = "active"
)

// IsPlaceholder reports whether body is a simulated descriptor token
// rather than real session-description syntax. Real descriptions always
// begin with a version line.
func IsPlaceholder(body string) bool {
	return !strings.HasPrefix(strings.TrimSpace(body), "v=0")
}

// Normalize returns a description safe to hand to a peer connection:
// placeholder descriptors are replaced with a synthesized minimal
// description, real descriptions get the rtcp-mux attribute inserted into
// any media section missing it. kind must be webrtc.SDPTypeOffer or
// webrtc.SDPTypeAnswer; video selects whether a video section is
// synthesized for placeholders.
func Normalize(kind webrtc.SDPType, body string, video bool) (string, error) {
	if IsPlaceholder(body) {
		return Synthesize(kind, video)
	}
	out, _, err := EnsureRTCPMux(body)
	return out, err
}

// EnsureRTCPMux inserts the rtcp-mux attribute into every media section
// that lacks it, immediately after the section's media-identification
// attribute when present. Idempotent: sections already carrying the
// attribute are left untouched, so repairing twice never duplicates it.
func EnsureRTCPMux(body string) (out string, changed bool, err error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(body)); err != nil {
		return "", false, fmt.Errorf("parse description: %w", err)
	}

	for _, media := range desc.MediaDescriptions {
		if hasAttribute(media, attrRTCPMux) {
			continue
		}
		insertAfterMID(media, sdp.NewPropertyAttribute(attrRTCPMux))
		changed = true
	}

	if !changed {
		return body, false, nil
	}

	raw, err := desc.Marshal()
	if err != nil {
		return "", false, fmt.Errorf("marshal repaired description: %w", err)
	}
	return string(raw), true, nil
}

// MirrorAnswer reconstructs a remote answer from the local offer when the
// remote's media-section ordering does not match: the session header is
// copied from the local description and its media sections are reused with
// the setup role flipped to active, yielding an answer whose section order
// mirrors the offer by construction.
func MirrorAnswer(localOffer string) (string, error) {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(localOffer)); err != nil {
		return "", fmt.Errorf("parse local description: %w", err)
	}

	for _, media := range desc.MediaDescriptions {
		flipped := false
		for i, attr := range media.Attributes {
			if attr.Key == attrSetup {
				media.Attributes[i].Value = setupActive
				flipped = true
			}
		}
		if !flipped {
			media.Attributes = append(media.Attributes, sdp.NewAttribute(attrSetup, setupActive))
		}
	}

	raw, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal mirrored answer: %w", err)
	}
	return string(raw), nil
}

// IsMuxError reports whether err looks like a multiplex-attribute
// rejection from the underlying peer connection.
func IsMuxError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rtcp-mux") || strings.Contains(msg, "rtcpmux") ||
		strings.Contains(msg, "rtcp mux")
}

// IsOrderError reports whether err looks like a media-section ordering
// mismatch between a remote answer and the local offer.
func IsOrderError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "m-line") || strings.Contains(msg, "mline") ||
		strings.Contains(msg, "media section") || strings.Contains(msg, "does not match")
}

func hasAttribute(media *sdp.MediaDescription, key string) bool {
	for _, attr := range media.Attributes {
		if attr.Key == key {
			return true
		}
	}
	return false
}

// insertAfterMID places attr immediately after the section's mid
// attribute, or first when the section has none.
func insertAfterMID(media *sdp.MediaDescription, attr sdp.Attribute) {
	at := 0
	for i, a := range media.Attributes {
		if a.Key == attrMID {
			at = i + 1
			break
		}
	}
	media.Attributes = append(media.Attributes, sdp.Attribute{})
	copy(media.Attributes[at+1:], media.Attributes[at:])
	media.Attributes[at] = attr
}
