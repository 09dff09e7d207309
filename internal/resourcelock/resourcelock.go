// Package resourcelock guards shared file-system areas between workers of a
// single process.
//
// One Lock exists per logical area (the live directory, the archive
// directory) for the lifetime of the process. It is created by the
// application and handed by pointer to every worker touching that area;
// it must never be copied. Locks are not reentrant.
//
// Critical sections should be entered with Do or DoBoth so that the lock is
// released on every exit path, including errors and panics. When a section
// needs both the live and archive locks, always take the live lock first.
package resourcelock

import "sync"

// Lock is a named mutual-exclusion guard for one shared resource.
type Lock struct {
	name string
	mu   sync.Mutex
}

// New creates a lock for the resource called name. The name is only used
// for diagnostics.
func New(name string) *Lock {
	return &Lock{name: name}
}

func (l *Lock) Name() string {
	return l.name
}

// Acquire blocks until the caller holds the lock.
func (l *Lock) Acquire() {
	l.mu.Lock()
}

// TryAcquire acquires the lock only if it is free and reports whether it did.
func (l *Lock) TryAcquire() bool {
	return l.mu.TryLock()
}

// Release relinquishes a lock obtained with Acquire or TryAcquire.
func (l *Lock) Release() {
	l.mu.Unlock()
}

// Do runs fn while holding the lock.
func (l *Lock) Do(fn func() error) error {
	l.Acquire()
	defer l.Release()
	return fn()
}

// DoBoth runs fn while holding first and then second. Locks are released in
// reverse order. Passing the same lock twice takes it once.
func DoBoth(first, second *Lock, fn func() error) error {
	if first == second {
		return first.Do(fn)
	}
	first.Acquire()
	defer first.Release()
	second.Acquire()
	defer second.Release()
	return fn()
}
