// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package runtimex exposes the scheduler hooks the shared node pool
// needs for its per-P caches.
//
// The hooks are the same bridge symbols sync.Pool links against:
// runtime pushes procPin/procUnpin to external packages only under
// the sync.runtime_procPin / sync.runtime_procUnpin names, so those
// are the names pulled here.
//
// Pin contract:
// Code between ProcPin and ProcUnpin runs without preemption on a
// fixed P, so a per-P slot indexed by the returned id has exactly one
// writer for the duration of the pinned section. Pinned sections must
// not block; in particular they must not acquire mutexes.
package runtimex

import _ "unsafe"

// ProcPin pins the calling goroutine to its current P and disables
// preemption. It returns the P's id. Every call must be paired with
// ProcUnpin on the same goroutine.
//
//go:linkname ProcPin sync.runtime_procPin
func ProcPin() int

// ProcUnpin undoes a previous ProcPin.
//
//go:linkname ProcUnpin sync.runtime_procUnpin
func ProcUnpin()
