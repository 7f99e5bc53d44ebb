// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scheduler implements the rule graph engine: Task/Signal wiring,
// per-rule worker goroutines, bounded concurrency, and cooperative
// cancellation.
package scheduler

import (
	"sync"
	"time"
)

// Signal is a one-shot readiness rendezvous: dependents wait on it and are
// released, all at once, the moment the owning task completes (or is
// skipped/cancelled). Implemented with a mutex+cond pair rather than a
// closed channel so IsReady can be polled cheaply without blocking.
type Signal struct {
	mu    sync.Mutex
	cond  *sync.Cond
	ready bool
}

// NewSignal returns a not-yet-ready signal.
func NewSignal() *Signal {
	s := &Signal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetReadyNotifyAll flips the ready flag and wakes every waiter.
func (s *Signal) SetReadyNotifyAll() {
	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// IsReady reports the current state without blocking.
func (s *Signal) IsReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Wait blocks until the signal is ready, calling checkCancelled roughly
// every 100ms so the caller can abandon the wait on cooperative
// cancellation without missing a legitimate readiness notification.
func (s *Signal) Wait(checkCancelled func() bool) {
	done := make(chan struct{})
	go func() {
		s.mu.Lock()
		for !s.ready {
			s.cond.Wait()
		}
		s.mu.Unlock()
		close(done)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if checkCancelled != nil && checkCancelled() {
				return
			}
		}
	}
}
