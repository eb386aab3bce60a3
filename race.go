// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build race

package umq

// RaceEnabled is true when the race detector is active.
//
// Concurrent tests check it and skip themselves: the detector cannot
// see the happens-before edges the queue relies on — the release
// store of a node link paired with the consumer's acquire load, and
// the chunk stack's tagged Uint128 CAS — so correct runs report as
// races. Single-goroutine tests are unaffected and run under -race.
const RaceEnabled = true
