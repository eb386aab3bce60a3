// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package runtimex_test

import (
	"runtime"
	"testing"

	"code.hybscloud.com/umq/internal/runtimex"
)

func TestProcPinReturnsValidID(t *testing.T) {
	for range 100 {
		pid := runtimex.ProcPin()
		runtimex.ProcUnpin()

		if pid < 0 {
			t.Fatalf("ProcPin: got %d, want >= 0", pid)
		}
		if procs := runtime.GOMAXPROCS(0); pid >= procs {
			t.Fatalf("ProcPin: got %d, want < GOMAXPROCS (%d)", pid, procs)
		}
	}
}
