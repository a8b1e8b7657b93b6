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

package cfg

import (
	"fmt"
	"time"

	"github.com/agartha-software/wormhole/internal/trylock"
)

// LockTimeout bounds how long a reader or writer waits for a Guard before
// giving up, mirroring the original's Config trait, whose read_lock/
// write_lock helpers wrap try_read_for(LOCK_TIMEOUT)/try_write_for(...)
// around a parking_lot::RwLock rather than blocking indefinitely.
const LockTimeout = 5 * time.Second

// GlobalGuard is the in-memory, concurrency-safe holder of a pod's current
// GlobalConfig; Pod keeps one, refreshed by the service's apply-config and
// restart commands and consulted by RedundancyWorker for the replica target.
type GlobalGuard struct {
	mu  *trylock.RWMutex
	cur GlobalConfig
}

// NewGlobalGuard seeds a guard with an initial value.
func NewGlobalGuard(initial GlobalConfig) *GlobalGuard {
	return &GlobalGuard{mu: trylock.New(LockTimeout), cur: initial}
}

// Get returns the current value.
func (g *GlobalGuard) Get() (GlobalConfig, error) {
	if err := g.mu.RLock(); err != nil {
		return GlobalConfig{}, err
	}
	defer g.mu.RUnlock()
	return g.cur, nil
}

// Set replaces the current value.
func (g *GlobalGuard) Set(c GlobalConfig) error {
	if err := g.mu.Lock(); err != nil {
		return err
	}
	defer g.mu.Unlock()
	g.cur = c
	return nil
}

// LocalGuard is the per-host counterpart of GlobalGuard.
type LocalGuard struct {
	mu  *trylock.RWMutex
	cur LocalConfig
}

// NewLocalGuard seeds a guard with an initial value.
func NewLocalGuard(initial LocalConfig) *LocalGuard {
	return &LocalGuard{mu: trylock.New(LockTimeout), cur: initial}
}

// Get returns the current value.
func (g *LocalGuard) Get() (LocalConfig, error) {
	if err := g.mu.RLock(); err != nil {
		return LocalConfig{}, err
	}
	defer g.mu.RUnlock()
	return g.cur, nil
}

// Set replaces the current value. Per the original LocalConfigFile's
// constructor guard, a hostname change is rejected once a host has an
// established identity — callers needing to change it must go through a
// fresh LocalGuard, not a mutation of an existing one.
func (g *LocalGuard) Set(c LocalConfig) error {
	if err := g.mu.Lock(); err != nil {
		return err
	}
	defer g.mu.Unlock()
	if g.cur.General.Hostname != "" && c.General.Hostname != g.cur.General.Hostname {
		return fmt.Errorf("cfg: hostname is fixed at %q once established", g.cur.General.Hostname)
	}
	g.cur = c
	return nil
}
