package sync

import (
	"sync/atomic"

	"gopher386/kernel"
)

var (
	// ErrStaticReinit is raised when a Static is initialized twice.
	ErrStaticReinit = &kernel.Error{Module: "sync", Message: "static value already initialized"}

	// ErrStaticUninit is raised when a Static is used before Init.
	ErrStaticUninit = &kernel.Error{Module: "sync", Message: "static value used before initialization"}
)

// Static is a cell for a process-wide value whose contents are only known at
// boot time. Its zero value is empty; Init must be called exactly once before
// any call to Get.
type Static[T any] struct {
	value T
	ready atomic.Bool
}

// Init populates the cell. Calling Init on a populated cell panics with
// ErrStaticReinit.
func (s *Static[T]) Init(v T) {
	if s.ready.Load() {
		panic(ErrStaticReinit)
	}

	s.value = v
	s.ready.Store(true)
}

// Get returns a pointer to the stored value. Calling Get on an empty cell
// panics with ErrStaticUninit.
func (s *Static[T]) Get() *T {
	if !s.ready.Load() {
		panic(ErrStaticUninit)
	}

	return &s.value
}

// Ready returns true if Init has been called.
func (s *Static[T]) Ready() bool {
	return s.ready.Load()
}
