/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

//go:build !linux

package media

import (
	"context"
	"fmt"

	"github.com/dentalio/callkit-go/callsdk"
)

// DeviceAcquirer is unavailable off Linux: camera/microphone capture via
// pion/mediadevices needs platform drivers (V4L2 and malgo). Hosts on
// other platforms use the synthetic acquirer or supply their own.
type DeviceAcquirer struct {
	logger callsdk.Logger
}

// NewDeviceAcquirer returns the stub acquirer for this platform.
func NewDeviceAcquirer(logger callsdk.Logger) *DeviceAcquirer {
	logger = callsdk.EnsureLogger(logger)
	return &DeviceAcquirer{logger: logger}
}

// Acquire always fails with DeviceUnavailable on this platform.
func (a *DeviceAcquirer) Acquire(ctx context.Context, mode Mode, constraints Constraints) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, callsdk.NewDeviceUnavailable("acquire",
		fmt.Errorf("device capture is not supported on this platform"))
}

var _ Acquirer = (*DeviceAcquirer)(nil)
