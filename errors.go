// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package umq

import "code.hybscloud.com/iox"

// ErrWouldBlock indicates a dequeue found the queue empty.
//
// The queue is unbounded, so Enqueue never returns it; only the
// non-blocking Dequeue reports it (DequeueBulk returns a count of 0
// instead). ErrWouldBlock is a
// control flow signal, not a failure: retry later, or use DequeueWait
// to let the consumer park until a producer publishes.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
//
// Example:
//
//	backoff := iox.Backoff{}
//	for {
//	    v, err := q.Dequeue()
//	    if err == nil {
//	        backoff.Reset()
//	        process(v)
//	        continue
//	    }
//	    backoff.Wait()
//	}
var ErrWouldBlock = iox.ErrWouldBlock

// IsWouldBlock reports whether err indicates the queue was empty.
// Delegates to [iox.IsWouldBlock] for wrapped error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Returns true for nil or ErrWouldBlock.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
