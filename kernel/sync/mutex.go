package sync

// SpinMutex co-locates a value with the Spinlock that protects it. The value
// can only be reached through the Guard returned by Lock.
//
// SpinMutex does not support recursion. Locking a SpinMutex from an interrupt
// handler while the interrupted code holds it deadlocks the CPU; callers that
// can be interrupted must disable interrupts for the duration of the guard.
type SpinMutex[T any] struct {
	lock  Spinlock
	value T
}

// NewSpinMutex returns an unlocked SpinMutex wrapping v.
func NewSpinMutex[T any](v T) SpinMutex[T] {
	return SpinMutex[T]{value: v}
}

// Lock spins until the mutex is acquired and returns a guard for the
// protected value.
func (m *SpinMutex[T]) Lock() Guard[T] {
	m.lock.Acquire()
	return Guard[T]{m: m}
}

// TryLock attempts to acquire the mutex without spinning. The returned guard
// is only valid if the second return value is true.
func (m *SpinMutex[T]) TryLock() (Guard[T], bool) {
	if !m.lock.TryToAcquire() {
		return Guard[T]{}, false
	}
	return Guard[T]{m: m}, true
}

// Guard grants access to the value of a locked SpinMutex.
type Guard[T any] struct {
	m *SpinMutex[T]
}

// Value returns a pointer to the protected value. The pointer must not be
// retained after Unlock.
func (g Guard[T]) Value() *T {
	return &g.m.value
}

// Unlock releases the mutex. The lock flag is cleared unconditionally.
func (g Guard[T]) Unlock() {
	g.m.lock.Release()
}
