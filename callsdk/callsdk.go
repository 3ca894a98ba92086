/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callsdk

import (
	"log"
)

// Logger is the minimal logging interface used across the SDK.
// The standard library *log.Logger satisfies it.
type Logger interface {
	Printf(format string, v ...interface{})
}

// Role identifies which side of the clinic relationship a party is on.
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Identity describes the local user as presented on the signaling channel.
type Identity struct {
	UserID   string
	UserName string
	UserRole Role
}

// EnsureLogger returns l, or the standard library default when l is nil.
// Constructors call this so a zero-valued config stays usable.
func EnsureLogger(l Logger) Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
