/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callsdk

import (
	"errors"
	"fmt"
	"testing"
)

func TestCallError_ImplementsError(t *testing.T) {
	var err error = &CallError{Op: "getUserMedia", Message: "permission denied"}
	if err.Error() == "" {
		t.Error("CallError.Error() returned empty string")
	}
}

func TestErrorTaxonomy_Classification(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		matches func(error) bool
		others  []func(error) bool
	}{
		{
			name:    "PermissionDenied",
			err:     NewPermissionDenied("getUserMedia", errors.New("denied")),
			matches: IsPermissionDenied,
			others:  []func(error) bool{IsDeviceUnavailable, IsIceFailure},
		},
		{
			name:    "DeviceUnavailable",
			err:     NewDeviceUnavailable("getUserMedia", errors.New("no camera")),
			matches: IsDeviceUnavailable,
			others:  []func(error) bool{IsPermissionDenied, IsSignalingUnavailable},
		},
		{
			name:    "SignalingUnavailable",
			err:     NewSignalingUnavailable("call-user"),
			matches: IsSignalingUnavailable,
			others:  []func(error) bool{IsDescriptionApply, IsRemoteEnded},
		},
		{
			name:    "DescriptionApply",
			err:     NewDescriptionApply("setRemoteDescription", errors.New("bad sdp")),
			matches: IsDescriptionApply,
			others:  []func(error) bool{IsIceFailure, IsSetupTimeout},
		},
		{
			name:    "IceFailure",
			err:     NewIceFailure("failed"),
			matches: IsIceFailure,
			others:  []func(error) bool{IsDescriptionApply, IsRemoteFailed},
		},
		{
			name:    "SetupTimeout",
			err:     NewSetupTimeout("ringing"),
			matches: IsSetupTimeout,
			others:  []func(error) bool{IsIceFailure, IsRemoteRejected},
		},
		{
			name:    "RemoteRejected",
			err:     NewRemoteRejected("busy"),
			matches: IsRemoteRejected,
			others:  []func(error) bool{IsRemoteEnded, IsRemoteFailed},
		},
		{
			name:    "RemoteEnded",
			err:     NewRemoteEnded(),
			matches: IsRemoteEnded,
			others:  []func(error) bool{IsRemoteRejected, IsRemoteFailed},
		},
		{
			name:    "RemoteFailed",
			err:     NewRemoteFailed("relay crashed"),
			matches: IsRemoteFailed,
			others:  []func(error) bool{IsRemoteEnded, IsPermissionDenied},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if !tc.matches(tc.err) {
				t.Errorf("expected %v to match its own predicate", tc.err)
			}
			for i, other := range tc.others {
				if other(tc.err) {
					t.Errorf("predicate %d unexpectedly matched %v", i, tc.err)
				}
			}
		})
	}
}

func TestErrorTaxonomy_WrappedClassification(t *testing.T) {
	inner := NewIceFailure("disconnected")
	wrapped := fmt.Errorf("negotiation: %w", inner)

	if !IsIceFailure(wrapped) {
		t.Error("expected IsIceFailure to see through fmt.Errorf wrapping")
	}
	if IsDescriptionApply(wrapped) {
		t.Error("IsDescriptionApply matched an ICE failure")
	}
}

func TestErrorTaxonomy_Unwrap(t *testing.T) {
	cause := errors.New("NotAllowedError")
	err := NewPermissionDenied("getUserMedia", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the capture cause")
	}
}

func TestUserMessage_DistinctPerCategory(t *testing.T) {
	errs := []error{
		NewPermissionDenied("getUserMedia", errors.New("denied")),
		NewDeviceUnavailable("getUserMedia", errors.New("no mic")),
		NewSignalingUnavailable("call-user"),
		NewDescriptionApply("setRemoteDescription", errors.New("bad sdp")),
		NewIceFailure("failed"),
		NewSetupTimeout("dialing"),
		NewRemoteRejected("busy"),
		NewRemoteEnded(),
		NewRemoteFailed("gone"),
	}

	seen := make(map[string]int)
	for i, err := range errs {
		msg := UserMessage(err)
		if msg == "" {
			t.Errorf("error %d produced an empty user message", i)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("errors %d and %d share user message %q", prev, i, msg)
		}
		seen[msg] = i
	}
}

func TestUserMessage_RejectionCarriesReason(t *testing.T) {
	withReason := UserMessage(NewRemoteRejected("busy"))
	without := UserMessage(NewRemoteRejected(""))

	if withReason == without {
		t.Errorf("expected the reason to alter the message, both were %q", withReason)
	}
}

func TestUserMessage_UnknownError(t *testing.T) {
	msg := UserMessage(errors.New("some transport hiccup"))
	if msg == "" {
		t.Error("expected a generic fallback message for unknown errors")
	}
}
