/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package sdprepair

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/pion/randutil"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

const credentialRunes = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Synthesize builds a minimal valid session description for a placeholder
// descriptor: session header with a bundle group, an audio section first,
// and a video section after it when video is true. The setup role follows
// standard offer/answer rules (actpass for an offer, active for an
// answer). Audio and video share ICE credentials for bundling.
func Synthesize(kind webrtc.SDPType, video bool) (string, error) {
	setup := setupActpass
	if kind == webrtc.SDPTypeAnswer {
		setup = setupActive
	}

	ufrag, err := randutil.GenerateCryptoRandomString(8, credentialRunes)
	if err != nil {
		return "", fmt.Errorf("generate ice ufrag: %w", err)
	}
	pwd, err := randutil.GenerateCryptoRandomString(24, credentialRunes)
	if err != nil {
		return "", fmt.Errorf("generate ice pwd: %w", err)
	}
	fingerprint, err := generateFingerprint()
	if err != nil {
		return "", err
	}
	sessionID, err := generateSessionID()
	if err != nil {
		return "", err
	}

	bundle := "BUNDLE audio"
	if video {
		bundle += " video"
	}

	desc := sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      sessionID,
			SessionVersion: 2,
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName:      "-",
		TimeDescriptions: []sdp.TimeDescription{{}},
		Attributes: []sdp.Attribute{
			sdp.NewAttribute("group", bundle),
			sdp.NewAttribute("msid-semantic", " WMS"),
		},
	}

	desc.MediaDescriptions = append(desc.MediaDescriptions, mediaSection(
		"audio", "111", ufrag, pwd, fingerprint, setup,
		sdp.NewAttribute("rtpmap", "111 opus/48000/2"),
		sdp.NewAttribute("fmtp", "111 minptime=10;useinbandfec=1"),
	))
	if video {
		desc.MediaDescriptions = append(desc.MediaDescriptions, mediaSection(
			"video", "96", ufrag, pwd, fingerprint, setup,
			sdp.NewAttribute("rtpmap", "96 VP8/90000"),
		))
	}

	raw, err := desc.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal synthesized description: %w", err)
	}
	return string(raw), nil
}

func mediaSection(media, format, ufrag, pwd, fingerprint, setup string, codecs ...sdp.Attribute) *sdp.MediaDescription {
	section := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   media,
			Port:    sdp.RangedPort{Value: 9},
			Protos:  []string{"UDP", "TLS", "RTP", "SAVPF"},
			Formats: []string{format},
		},
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: "IP4",
			Address:     &sdp.Address{Address: "0.0.0.0"},
		},
		Attributes: []sdp.Attribute{
			sdp.NewAttribute(attrMID, media),
			sdp.NewAttribute("ice-ufrag", ufrag),
			sdp.NewAttribute("ice-pwd", pwd),
			sdp.NewAttribute("fingerprint", "sha-256 "+fingerprint),
			sdp.NewAttribute(attrSetup, setup),
			sdp.NewPropertyAttribute(attrRTCPMux),
			sdp.NewPropertyAttribute("sendrecv"),
		},
	}
	section.Attributes = append(section.Attributes, codecs...)
	return section
}

// generateFingerprint produces a random sha-256 certificate fingerprint in
// colon-separated hex form. The synthesized description only has to parse
// and negotiate; the DTLS handshake it describes never takes place against
// a placeholder peer.
func generateFingerprint() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate fingerprint: %w", err)
	}
	parts := make([]string, len(buf))
	for i, b := range buf {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":"), nil
}

func generateSessionID() (uint64, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return 0, fmt.Errorf("generate session id: %w", err)
	}
	// Keep within the signed range some parsers expect.
	return binary.BigEndian.Uint64(buf) >> 1, nil
}
