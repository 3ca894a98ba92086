/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 Dentalio <opensource@dentalio.health>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package callsdk

import (
	"log"
	"testing"
)

type nopLogger struct{}

func (nopLogger) Printf(format string, v ...interface{}) {}

func TestEnsureLogger(t *testing.T) {
	if got := EnsureLogger(nil); got != log.Default() {
		t.Errorf("EnsureLogger(nil) = %T, want the standard library default", got)
	}

	own := nopLogger{}
	if got := EnsureLogger(own); got != own {
		t.Errorf("EnsureLogger(own) = %T, want the supplied logger", got)
	}
}
