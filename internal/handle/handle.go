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

// Package handle implements FileHandleManager (spec.md §4.3): per-open-file
// state shared between FsInterface's open/read/write/flush/release handlers.
package handle

import (
	"time"

	"github.com/google/uuid"

	"github.com/agartha-software/wormhole/internal/delta"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/trylock"
	"github.com/agartha-software/wormhole/internal/wherrors"
)

// AccessMode is the capability a FileHandle was opened with.
type AccessMode int

const (
	Read AccessMode = iota
	Write
	Execute
)

// OpenFlags mirrors the caller-supplied open(2) intent that FileHandleManager
// derives AccessMode and Dirty-tracking behavior from.
type OpenFlags struct {
	Append   bool
	Truncate bool
	Create   bool
}

// ID names one open file handle. It is handed to the kernel bridge as the
// fuseops.HandleID the FUSE protocol threads through read/write/release.
type ID = uuid.UUID

// FileHandle is the per-open-file state spec.md §4.1 describes: an access
// mode, the open(2) flags it was derived from, whether unflushed writes
// exist, and — for write handles — the rolling-checksum signature of the
// content at open time (or at the most recent flush), used to compute the
// next delta.
type FileHandle struct {
	Ino    itree.Ino
	Mode   AccessMode
	Flags  OpenFlags
	Dirty  bool
	Opened time.Time

	// BaseSignature is only meaningful for Write handles; Read/Execute
	// handles leave it unset.
	BaseSignature delta.Signature
}

// Manager maintains the UUID-to-FileHandle map FsInterface consults on
// every read/write/flush/release call. Its own readers-writer lock sits
// below the ITree in the hold order spec.md §6 fixes ("Pod.peers, ITree,
// FileHandleManager, Callbacks") — Manager's methods must never call back
// into ITree while holding mu.
type Manager struct {
	mu      *trylock.RWMutex
	handles map[ID]*FileHandle
}

// LockTimeout bounds how long a caller waits to acquire Manager's lock
// before getting wherrors.ErrWouldBlock back, matching itree.LockTimeout.
const LockTimeout = 5 * time.Second

// New returns an empty Manager.
func New() *Manager {
	return &Manager{mu: trylock.New(LockTimeout), handles: make(map[ID]*FileHandle)}
}

// Open registers a FileHandle with the given AccessMode and flags under a
// fresh ID; the handle starts dirty only when flags request truncation.
// base is the signature computed
// over the file's current on-disk content; callers only need supply a
// non-zero one for Write-mode handles (spec.md §4.3).
func (m *Manager) Open(ino itree.Ino, mode AccessMode, flags OpenFlags, base delta.Signature) (ID, error) {
	if err := m.mu.Lock(); err != nil {
		return ID{}, err
	}
	defer m.mu.Unlock()

	id := uuid.New()
	m.handles[id] = &FileHandle{
		Ino:           ino,
		Mode:          mode,
		Flags:         flags,
		Dirty:         flags.Truncate,
		Opened:        time.Now(),
		BaseSignature: base,
	}
	return id, nil
}

// Get returns a copy of the handle's current state.
func (m *Manager) Get(id ID) (FileHandle, error) {
	if err := m.mu.RLock(); err != nil {
		return FileHandle{}, err
	}
	defer m.mu.RUnlock()

	h, ok := m.handles[id]
	if !ok {
		return FileHandle{}, wherrors.ErrNoHandle
	}
	return *h, nil
}

// MarkDirty records that id has unflushed writes pending.
func (m *Manager) MarkDirty(id ID) error {
	return m.mutate(id, func(h *FileHandle) { h.Dirty = true })
}

// UpdateSignature replaces id's base signature, called after every
// successful flush (spec.md §4.3: "the signature is updated after every
// flush") and clears Dirty since the handle's view of the content is now
// in sync with what was just propagated.
func (m *Manager) UpdateSignature(id ID, sig delta.Signature) error {
	return m.mutate(id, func(h *FileHandle) {
		h.BaseSignature = sig
		h.Dirty = false
	})
}

func (m *Manager) mutate(id ID, fn func(*FileHandle)) error {
	if err := m.mu.Lock(); err != nil {
		return err
	}
	defer m.mu.Unlock()

	h, ok := m.handles[id]
	if !ok {
		return wherrors.ErrNoHandle
	}
	fn(h)
	return nil
}

// Release removes id from the map and reports whether it needed a final
// flush, matching the release semantics of spec.md §4.3 ("release triggers
// a final flush if dirty is true"); the caller, not Manager, performs that
// flush since it requires the ITree/DiskManager/NetworkInterface Manager
// doesn't hold references to.
func (m *Manager) Release(id ID) (needsFlush bool, err error) {
	if err := m.mu.Lock(); err != nil {
		return false, err
	}
	defer m.mu.Unlock()

	h, ok := m.handles[id]
	if !ok {
		return false, wherrors.ErrNoHandle
	}
	delete(m.handles, id)
	return h.Dirty, nil
}

// DeriveAccessMode maps the caller-visible read/write/execute request bits
// onto the three-way AccessMode the rest of the system reasons about.
func DeriveAccessMode(wantRead, wantWrite, wantExecute bool) AccessMode {
	switch {
	case wantExecute:
		return Execute
	case wantWrite:
		return Write
	default:
		return Read
	}
}
