/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callsdk

import (
	"errors"
	"fmt"
)

// ErrCallInProgress is returned when a new outgoing call is requested while
// a session is already active. The active session is left untouched.
var ErrCallInProgress = errors.New("a call is already in progress")

// CallError is the base error type for all call failures. Every platform
// error (media, signaling, peer transport) is converted into one of the
// concrete sub-types below before it reaches the call state machine, so
// consumers can use errors.As(err, &callErr) to access common fields
// regardless of the specific kind.
type CallError struct {
	// Op names the operation that failed (e.g. "acquire", "setRemoteDescription").
	Op string

	// Message is a short diagnostic description, not meant for end users.
	Message string

	// Err is an optional wrapped cause for errors.Unwrap support.
	Err error
}

// Error implements the error interface.
func (e *CallError) Error() string {
	msg := "call error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause, if any.
func (e *CallError) Unwrap() error {
	return e.Err
}

// --- Specific error sub-types ---

// PermissionDeniedError means the user or OS denied camera/microphone
// access. The call aborts before any signaling is sent.
type PermissionDeniedError struct {
	*CallError
}

// Unwrap returns the underlying CallError for errors.As traversal.
func (e *PermissionDeniedError) Unwrap() error { return e.CallError }

// UserMessage returns the user-facing text for this failure.
func (e *PermissionDeniedError) UserMessage() string {
	return "Camera or microphone access was denied. Allow access and try again."
}

// DeviceUnavailableError means media acquisition failed for a reason other
// than a permission denial (no device, device busy, capture error).
type DeviceUnavailableError struct {
	*CallError
}

// Unwrap returns the underlying CallError for errors.As traversal.
func (e *DeviceUnavailableError) Unwrap() error { return e.CallError }

// UserMessage returns the user-facing text for this failure.
func (e *DeviceUnavailableError) UserMessage() string {
	return "No usable camera or microphone was found."
}

// SignalingUnavailableError means the signaling channel was not connected
// when an action requiring it was invoked.
type SignalingUnavailableError struct {
	*CallError
}

// Unwrap returns the underlying CallError for errors.As traversal.
func (e *SignalingUnavailableError) Unwrap() error { return e.CallError }

// UserMessage returns the user-facing text for this failure.
func (e *SignalingUnavailableError) UserMessage() string {
	return "The call service is not connected. Try again in a moment."
}

// DescriptionApplyError means a session description could not be applied
// even after the repair layer's bounded retry.
type DescriptionApplyError struct {
	*CallError
}

// Unwrap returns the underlying CallError for errors.As traversal.
func (e *DescriptionApplyError) Unwrap() error { return e.CallError }

// UserMessage returns the user-facing text for this failure.
func (e *DescriptionApplyError) UserMessage() string {
	return "A connection error occurred while setting up the call."
}

// IceFailureError means ICE or the overall peer connection entered a
// terminal failed/disconnected state. There is no automatic restart.
type IceFailureError struct {
	*CallError
}

// Unwrap returns the underlying CallError for errors.As traversal.
func (e *IceFailureError) Unwrap() error { return e.CallError }

// UserMessage returns the user-facing text for this failure.
func (e *IceFailureError) UserMessage() string {
	return "The call connection was lost."
}

// SetupTimeoutError means the call did not reach the connected state within
// the configured setup window.
type SetupTimeoutError struct {
	*CallError
}

// Unwrap returns the underlying CallError for errors.As traversal.
func (e *SetupTimeoutError) Unwrap() error { return e.CallError }

// UserMessage returns the user-facing text for this failure.
func (e *SetupTimeoutError) UserMessage() string {
	return "The call timed out before it could be connected."
}

// RemoteRejectedError means the other party explicitly declined the call.
type RemoteRejectedError struct {
	*CallError

	// Reason is the reject reason string carried on the wire (e.g. "busy").
	Reason string
}

// Unwrap returns the underlying CallError for errors.As traversal.
func (e *RemoteRejectedError) Unwrap() error { return e.CallError }

// UserMessage returns the user-facing text for this failure.
func (e *RemoteRejectedError) UserMessage() string {
	if e.Reason != "" {
		return fmt.Sprintf("The call was declined (%s).", e.Reason)
	}
	return "The call was declined."
}

// RemoteEndedError means the other party hung up a call in progress.
type RemoteEndedError struct {
	*CallError
}

// Unwrap returns the underlying CallError for errors.As traversal.
func (e *RemoteEndedError) Unwrap() error { return e.CallError }

// UserMessage returns the user-facing text for this failure.
func (e *RemoteEndedError) UserMessage() string {
	return "The other party ended the call."
}

// RemoteFailedError means the other party reported a failure.
type RemoteFailedError struct {
	*CallError
}

// Unwrap returns the underlying CallError for errors.As traversal.
func (e *RemoteFailedError) Unwrap() error { return e.CallError }

// UserMessage returns the user-facing text for this failure.
func (e *RemoteFailedError) UserMessage() string {
	return "The call failed on the other side."
}

// --- Factories ---

// NewPermissionDenied wraps a platform permission error.
func NewPermissionDenied(op string, err error) error {
	return &PermissionDeniedError{CallError: &CallError{Op: op, Message: "permission denied", Err: err}}
}

// NewDeviceUnavailable wraps a non-permission media acquisition error.
func NewDeviceUnavailable(op string, err error) error {
	return &DeviceUnavailableError{CallError: &CallError{Op: op, Message: "device unavailable", Err: err}}
}

// NewSignalingUnavailable reports a disconnected signaling channel.
func NewSignalingUnavailable(op string) error {
	return &SignalingUnavailableError{CallError: &CallError{Op: op, Message: "signaling channel not connected"}}
}

// NewDescriptionApply wraps a description application failure.
func NewDescriptionApply(op string, err error) error {
	return &DescriptionApplyError{CallError: &CallError{Op: op, Message: "description could not be applied", Err: err}}
}

// NewIceFailure reports a terminal transport state.
func NewIceFailure(state string) error {
	return &IceFailureError{CallError: &CallError{Op: "ice", Message: "connection state " + state}}
}

// NewSetupTimeout reports an expired call-setup window.
func NewSetupTimeout(status string) error {
	return &SetupTimeoutError{CallError: &CallError{Op: "setup", Message: "timed out while " + status}}
}

// NewRemoteRejected reports an explicit reject from the other party.
func NewRemoteRejected(reason string) error {
	return &RemoteRejectedError{
		CallError: &CallError{Op: "signal", Message: "remote rejected"},
		Reason:    reason,
	}
}

// NewRemoteEnded reports an explicit hangup from the other party.
func NewRemoteEnded() error {
	return &RemoteEndedError{CallError: &CallError{Op: "signal", Message: "remote ended"}}
}

// NewRemoteFailed reports a failure signal from the other party.
func NewRemoteFailed(message string) error {
	return &RemoteFailedError{CallError: &CallError{Op: "signal", Message: message}}
}

// --- Convenience functions ---

// IsPermissionDenied reports whether err is a media permission denial.
func IsPermissionDenied(err error) bool {
	var e *PermissionDeniedError
	return errors.As(err, &e)
}

// IsDeviceUnavailable reports whether err is a non-permission media failure.
func IsDeviceUnavailable(err error) bool {
	var e *DeviceUnavailableError
	return errors.As(err, &e)
}

// IsSignalingUnavailable reports whether err is a disconnected-channel error.
func IsSignalingUnavailable(err error) bool {
	var e *SignalingUnavailableError
	return errors.As(err, &e)
}

// IsDescriptionApply reports whether err is a description application failure.
func IsDescriptionApply(err error) bool {
	var e *DescriptionApplyError
	return errors.As(err, &e)
}

// IsIceFailure reports whether err is a terminal transport failure.
func IsIceFailure(err error) bool {
	var e *IceFailureError
	return errors.As(err, &e)
}

// IsSetupTimeout reports whether err is an expired setup window.
func IsSetupTimeout(err error) bool {
	var e *SetupTimeoutError
	return errors.As(err, &e)
}

// IsRemoteRejected reports whether err is an explicit remote reject.
func IsRemoteRejected(err error) bool {
	var e *RemoteRejectedError
	return errors.As(err, &e)
}

// IsRemoteEnded reports whether err is an explicit remote hangup.
func IsRemoteEnded(err error) bool {
	var e *RemoteEndedError
	return errors.As(err, &e)
}

// IsRemoteFailed reports whether err is a remote failure signal.
func IsRemoteFailed(err error) bool {
	var e *RemoteFailedError
	return errors.As(err, &e)
}

// UserMessage returns the user-facing text for any taxonomy error, or a
// generic connection message for anything else. Each kind maps to exactly
// one distinct string so "I hung up", "they hung up", and "it broke" stay
// distinguishable end to end.
func UserMessage(err error) string {
	type messager interface{ UserMessage() string }
	var m messager
	if errors.As(err, &m) {
		return m.UserMessage()
	}
	if errors.Is(err, ErrCallInProgress) {
		return "A call is already in progress."
	}
	return "A connection error occurred."
}
