package hls

import (
	"runtime"
	"sync/atomic"
)

// spinLock is a user-space test-and-set spin lock with a pause between
// retries (spec §4.3 "a slot lock array... locks use a test-and-set + pause
// spin loop"). Go's runtime.Gosched stands in for the pause/cpu-relax
// instruction the original uses between probes.
type spinLock struct {
	state atomic.Bool
}

func (l *spinLock) Lock() {
	for !l.state.CompareAndSwap(false, true) {
		runtime.Gosched()
	}
}

func (l *spinLock) Unlock() {
	l.state.Store(false)
}
