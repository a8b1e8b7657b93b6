// Copyright 2026 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package trylock provides a readers-writer lock that fails with
// wherrors.ErrWouldBlock rather than blocking forever, per the bounded
// acquisition-timeout rule all core locks follow (spec.md §5). It plays the
// same role the teacher's syncutil.InvariantMutex plays for fs.fileSystem,
// minus invariant checking, plus a deadline.
package trylock

import (
	"sync"
	"time"

	"github.com/agartha-software/wormhole/internal/wherrors"
)

// RWMutex is a sync.RWMutex variant whose Lock/RLock calls give up after a
// timeout instead of blocking indefinitely.
type RWMutex struct {
	Timeout time.Duration

	mu   sync.RWMutex
	gate chan struct{} // 1-buffered; held while a writer owns mu
}

// New returns a lock with the given acquisition timeout.
func New(timeout time.Duration) *RWMutex {
	l := &RWMutex{Timeout: timeout, gate: make(chan struct{}, 1)}
	l.gate <- struct{}{}
	return l
}

// Lock acquires the write lock, or returns wherrors.ErrWouldBlock if it
// could not do so within the timeout.
func (l *RWMutex) Lock() error {
	deadline := time.NewTimer(l.Timeout)
	defer deadline.Stop()
	select {
	case <-l.gate:
	case <-deadline.C:
		return wherrors.ErrWouldBlock
	}

	// Active readers can still hold mu after the gate is taken.
	done := make(chan struct{})
	go func() {
		l.mu.Lock()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-deadline.C:
		go func() { <-done; l.mu.Unlock(); l.gate <- struct{}{} }()
		return wherrors.ErrWouldBlock
	}
}

// Unlock releases a write lock acquired by Lock.
func (l *RWMutex) Unlock() {
	l.mu.Unlock()
	l.gate <- struct{}{}
}

// RLock acquires the read lock, or returns wherrors.ErrWouldBlock if it
// could not do so within the timeout. Readers don't contend with the gate,
// only with an active writer, via the embedded sync.RWMutex's own fairness.
func (l *RWMutex) RLock() error {
	done := make(chan struct{})
	go func() {
		l.mu.RLock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(l.Timeout):
		// The goroutine above may still be blocked; it will acquire and
		// immediately be orphaned. This trades a harmless leaked RLock
		// against ever blocking the caller past the deadline, matching the
		// spec's requirement that no core lock block longer than its
		// timeout.
		go func() { <-done; l.mu.RUnlock() }()
		return wherrors.ErrWouldBlock
	}
}

// RUnlock releases a read lock acquired by RLock.
func (l *RWMutex) RUnlock() {
	l.mu.RUnlock()
}
