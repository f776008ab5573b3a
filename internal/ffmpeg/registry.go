package ffmpeg

import (
	"context"
	"time"

	gosync "github.com/mediabrowse/mediabrowse/pkg/sync"
)

// ProcessHandle tracks one in-flight decoder invocation. Handles are
// registered for the lifetime of the invocation only; the CancelAt
// deadline records when the timeout path will fire.
type ProcessHandle struct {
	Pid      int
	CancelAt time.Time

	cancel context.CancelFunc
}

// processRegistry is the process-wide table of running decoder
// invocations, keyed by OS process id. It enables cancellation that is
// out-of-band from the per-invocation timeout (e.g. server shutdown).
type processRegistry struct {
	procs gosync.TypedSyncMap[int, *ProcessHandle]
}

func (r *processRegistry) add(handle *ProcessHandle) {
	r.procs.Store(handle.Pid, handle)
}

func (r *processRegistry) remove(pid int) {
	r.procs.Delete(pid)
}

// cancel terminates the invocation tracked for pid, if any. The
// return reports whether a handle was found.
func (r *processRegistry) cancel(pid int) bool {
	handle, ok := r.procs.LoadAndDelete(pid)
	if !ok {
		return false
	}

	handle.cancel()
	return true
}

// cancelAll terminates every tracked invocation, returning how many
// were cancelled.
func (r *processRegistry) cancelAll() int {
	cancelled := 0
	r.procs.Range(func(pid int, handle *ProcessHandle) bool {
		handle.cancel()
		r.procs.Delete(pid)
		cancelled++

		return true
	})

	return cancelled
}

// running snapshots the currently tracked handles.
func (r *processRegistry) running() []ProcessHandle {
	handles := make([]ProcessHandle, 0)
	r.procs.Range(func(_ int, handle *ProcessHandle) bool {
		handles = append(handles, *handle)
		return true
	})

	return handles
}
