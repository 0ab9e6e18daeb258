// Package safe centralizes panic-safe invocation of user-supplied callbacks.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Both the poll thread (scheduled/permanent work) and the completion thread
// (I/O completion callbacks) must survive a panicking user callback. This
// used to be duplicated per call site in the source repository (see the
// deferred recover in reactor/epoll_reactor.go and the worker.executeTask
// recover in internal/concurrency/executor.go); it is a single helper here,
// per the "Global-style callback exception handling" design note.
package safe

import (
	"github.com/rs/zerolog"
)

// Call invokes fn, recovering and logging any panic instead of letting it
// propagate. label identifies the call site for the log line.
func Call(log zerolog.Logger, label string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("callback", label).
				Interface("panic", r).
				Msg("recovered panic in user callback")
		}
	}()
	fn()
}
