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

package itree

import (
	"fmt"
	"time"

	"github.com/agartha-software/wormhole/internal/logger"
	"github.com/agartha-software/wormhole/internal/perms"
	"github.com/agartha-software/wormhole/internal/trylock"
	"github.com/agartha-software/wormhole/internal/wherrors"
)

// LockTimeout bounds every ITree lock acquisition (spec.md §5).
const LockTimeout = 5 * time.Second

// ITree is the shared, lock-guarded map of inode number to Inode.
//
// LOCK ORDERING: the tree's own mu is the only lock inside this package.
// A caller that also holds a Pod.peers lock acquires it before mu; a
// FileHandleManager lock is acquired after mu, per spec.md §5.
type ITree struct {
	mu *trylock.RWMutex

	// GUARDED_BY(mu)
	entries map[Ino]Inode
	// GUARDED_BY(mu)
	nextIno Ino
	// localOnly marks inode IDs that must never be replicated or handed to
	// clean_local's caller (LocalConfigIno today; reserved for future use).
	// GUARDED_BY(mu)
	localOnly map[Ino]struct{}
}

// New returns an ITree containing only the immortal root directory.
func New() *ITree {
	t := &ITree{
		entries:   make(map[Ino]Inode),
		nextIno:   FirstIno,
		localOnly: map[Ino]struct{}{LocalConfigIno: {}},
		mu:        trylock.New(LockTimeout),
	}
	now := time.Now()
	uid, gid, err := perms.MyUserAndGroup()
	if err != nil {
		logger.Warnf("itree: MyUserAndGroup: %v; root inode owned by uid/gid 0", err)
	}
	t.entries[Root] = Inode{
		Parent: Root,
		ID:     Root,
		Name:   "",
		Entry:  NewDirectoryEntry(),
		Meta: Metadata{
			Kind:  KindDirectory,
			Mode:  0o755,
			Nlink: 2,
			Uid:   uid,
			Gid:   gid,
			Atime: now, Mtime: now, Ctime: now, Crtime: now,
		},
		Xattrs: map[string][]byte{},
	}
	return t
}

func (t *ITree) lock() error  { return t.mu.Lock() }
func (t *ITree) unlock()      { t.mu.Unlock() }
func (t *ITree) rlock() error { return t.mu.RLock() }
func (t *ITree) runlock()     { t.mu.RUnlock() }

// ReserveIno returns the next Ino and advances the counter.
func (t *ITree) ReserveIno() (Ino, error) {
	if err := t.lock(); err != nil {
		return 0, err
	}
	defer t.unlock()

	if t.nextIno == 0 {
		return 0, fmt.Errorf("itree: inode counter exhausted")
	}
	ino := t.nextIno
	t.nextIno++
	return ino, nil
}

// MarkReservedIno advances the counter to new+1 if new is not already
// behind it, catching up to a peer's allocation.
func (t *ITree) MarkReservedIno(new Ino) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	if new >= t.nextIno {
		t.nextIno = new + 1
	}
	return nil
}

// AddInode inserts inode if its ID is free and its parent exists and is a
// Directory, appending it to the parent's child list.
func (t *ITree) AddInode(in Inode) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()
	return t.addInodeLocked(in)
}

func (t *ITree) addInodeLocked(in Inode) error {
	if _, exists := t.entries[in.ID]; exists {
		return wherrors.ErrAlreadyExist
	}
	parent, ok := t.entries[in.Parent]
	if !ok {
		return wherrors.ErrParentNotFound
	}
	if parent.Entry.Kind() != EntryDirectory {
		return wherrors.ErrParentNotFolder
	}
	for _, c := range parent.Entry.children {
		if t.entries[c].Name == in.Name {
			return wherrors.ErrAlreadyExist
		}
	}

	parent.Entry.children = append(parent.Entry.children, in.ID)
	t.entries[in.Parent] = parent
	t.entries[in.ID] = in
	if in.ID == LocalConfigIno {
		t.localOnly[in.ID] = struct{}{}
	}
	return nil
}

// RemoveInode detaches id from its parent and deletes it. Fails ErrNonEmpty
// on a non-empty Directory.
func (t *ITree) RemoveInode(id Ino) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()
	return t.removeInodeLocked(id)
}

func (t *ITree) removeInodeLocked(id Ino) error {
	in, ok := t.entries[id]
	if !ok {
		return wherrors.ErrNotFound
	}
	if in.Entry.Kind() == EntryDirectory && len(in.Entry.children) > 0 {
		return wherrors.ErrNonEmpty
	}

	parent, ok := t.entries[in.Parent]
	if ok {
		parent.Entry.children = removeIno(parent.Entry.children, id)
		t.entries[in.Parent] = parent
	}
	delete(t.entries, id)
	delete(t.localOnly, id)
	return nil
}

func removeIno(list []Ino, target Ino) []Ino {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// GetInode returns a copy of the inode with the given id.
func (t *ITree) GetInode(id Ino) (Inode, error) {
	if err := t.rlock(); err != nil {
		return Inode{}, err
	}
	defer t.runlock()

	in, ok := t.entries[id]
	if !ok {
		return Inode{}, wherrors.ErrNotFound
	}
	return in.clone(), nil
}

// MutateInode runs fn with exclusive access to the inode, persisting
// whatever fn returns. It is the Go equivalent of get_inode_mut: callers
// must not retain the Inode they are given past fn's return.
func (t *ITree) MutateInode(id Ino, fn func(*Inode) error) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	in, ok := t.entries[id]
	if !ok {
		return wherrors.ErrNotFound
	}
	if err := fn(&in); err != nil {
		return err
	}
	t.entries[id] = in
	return nil
}

// GetChildByName resolves a single path component under parent, applying
// the reserved-name override at the tree root (spec.md §4.1).
func (t *ITree) GetChildByName(parent Ino, name InodeName) (Inode, error) {
	if err := t.rlock(); err != nil {
		return Inode{}, err
	}
	defer t.runlock()
	return t.getChildByNameLocked(parent, name)
}

func (t *ITree) getChildByNameLocked(parent Ino, name InodeName) (Inode, error) {
	if parent == Root {
		switch string(name) {
		case GlobalConfigName:
			if in, ok := t.entries[GlobalConfigIno]; ok {
				return in.clone(), nil
			}
		case LocalConfigName:
			if in, ok := t.entries[LocalConfigIno]; ok {
				return in.clone(), nil
			}
		}
	}

	p, ok := t.entries[parent]
	if !ok {
		return Inode{}, wherrors.ErrNotFound
	}
	if p.Entry.Kind() != EntryDirectory {
		return Inode{}, wherrors.ErrNotADirectory
	}
	for _, c := range p.Entry.children {
		if child, ok := t.entries[c]; ok && child.Name == name {
			return child.clone(), nil
		}
	}
	return Inode{}, wherrors.ErrNotFound
}

// GetInodeFromPath walks components from the root. Names are matched
// byte-exactly and case-sensitively.
func (t *ITree) GetInodeFromPath(path string) (Inode, error) {
	if err := t.rlock(); err != nil {
		return Inode{}, err
	}
	defer t.runlock()

	cur := Root
	for _, comp := range splitPath(path) {
		name, err := NewInodeName(comp)
		if err != nil {
			return Inode{}, err
		}
		child, err := t.getChildByNameLocked(cur, name)
		if err != nil {
			return Inode{}, err
		}
		cur = child.ID
	}
	in, ok := t.entries[cur]
	if !ok {
		return Inode{}, wherrors.ErrNotFound
	}
	return in.clone(), nil
}

// GetPathFromInode walks parent links back to the root.
func (t *ITree) GetPathFromInode(id Ino) (string, error) {
	if err := t.rlock(); err != nil {
		return "", err
	}
	defer t.runlock()

	var comps []string
	cur := id
	for cur != Root {
		in, ok := t.entries[cur]
		if !ok {
			return "", wherrors.ErrNotFound
		}
		comps = append([]string{string(in.Name)}, comps...)
		cur = in.Parent
	}
	return "/" + joinPath(comps), nil
}

// MvInode relocates name from parent to new_name under new_parent. The
// caller decides how to handle an existing destination before calling this
// (spec.md §4.1); this call fails if a collision would result.
func (t *ITree) MvInode(parent, newParent Ino, name, newName InodeName) error {
	if err := t.lock(); err != nil {
		return err
	}
	defer t.unlock()

	src, err := t.getChildByNameLocked(parent, name)
	if err != nil {
		return err
	}
	np, ok := t.entries[newParent]
	if !ok {
		return wherrors.ErrParentNotFound
	}
	if np.Entry.Kind() != EntryDirectory {
		return wherrors.ErrParentNotFolder
	}
	for _, c := range np.Entry.children {
		if t.entries[c].Name == newName && c != src.ID {
			return wherrors.ErrAlreadyExist
		}
	}

	oldParent := t.entries[parent]
	oldParent.Entry.children = removeIno(oldParent.Entry.children, src.ID)
	t.entries[parent] = oldParent
	if parent == newParent {
		np = oldParent
	}

	src.Parent = newParent
	src.Name = newName
	t.entries[src.ID] = src

	np.Entry.children = append(np.Entry.children, src.ID)
	t.entries[newParent] = np
	return nil
}

// AddInodeHosts adds peers to a File entry's host list (File entries only).
func (t *ITree) AddInodeHosts(id Ino, peers ...PeerID) error {
	return t.MutateInode(id, func(in *Inode) error {
		if in.Entry.Kind() != EntryFile {
			return wherrors.ErrIsADirectory
		}
		in.Entry.hosts = dedupSortHosts(append(in.Entry.hosts, peers...))
		return nil
	})
}

// RemoveInodeHosts removes peers from a File entry's host list.
func (t *ITree) RemoveInodeHosts(id Ino, peers ...PeerID) error {
	remove := make(map[PeerID]struct{}, len(peers))
	for _, p := range peers {
		remove[p] = struct{}{}
	}
	return t.MutateInode(id, func(in *Inode) error {
		if in.Entry.Kind() != EntryFile {
			return wherrors.ErrIsADirectory
		}
		kept := in.Entry.hosts[:0]
		for _, h := range in.Entry.hosts {
			if _, drop := remove[h]; !drop {
				kept = append(kept, h)
			}
		}
		in.Entry.hosts = dedupSortHosts(kept)
		return nil
	})
}

// SetInodeHosts replaces a File entry's host list outright, used to apply
// authoritative EditHosts broadcasts (spec.md §5 ordering guarantees).
func (t *ITree) SetInodeHosts(id Ino, peers []PeerID) error {
	return t.MutateInode(id, func(in *Inode) error {
		if in.Entry.Kind() != EntryFile {
			return wherrors.ErrIsADirectory
		}
		in.Entry.hosts = dedupSortHosts(peers)
		return nil
	})
}

// CleanLocal returns a copy of the tree with every local-only inode, and
// any dangling references to it, stripped. Used before sharing the tree
// with a new peer (spec.md §4.1, §4.8).
func (t *ITree) CleanLocal() (*ITree, error) {
	if err := t.rlock(); err != nil {
		return nil, err
	}
	defer t.runlock()

	out := &ITree{
		entries:   make(map[Ino]Inode, len(t.entries)),
		nextIno:   t.nextIno,
		localOnly: map[Ino]struct{}{},
		mu:        trylock.New(LockTimeout),
	}

	for id, in := range t.entries {
		if _, local := t.localOnly[id]; local {
			continue
		}
		out.entries[id] = in.clone()
	}
	for id, in := range out.entries {
		if in.Entry.Kind() != EntryDirectory {
			continue
		}
		in.Entry.children = removeLocal(in.Entry.children, t.localOnly)
		out.entries[id] = in
	}
	return out, nil
}

func removeLocal(children []Ino, local map[Ino]struct{}) []Ino {
	out := children[:0]
	for _, c := range children {
		if _, drop := local[c]; !drop {
			out = append(out, c)
		}
	}
	return out
}

// AllKinds returns every known inode's FileKind, for RedundancyWorker's
// CheckIntegrity sweep (spec.md §4.7).
func (t *ITree) AllKinds() map[Ino]FileKind {
	if err := t.rlock(); err != nil {
		return nil
	}
	defer t.runlock()

	out := make(map[Ino]FileKind, len(t.entries))
	for id, in := range t.entries {
		out[id] = in.Meta.Kind
	}
	return out
}

// CheckInvariants validates the tree's structural invariants: the root is
// its own parent, every other inode has a directory parent that lists it
// exactly once, names are unique within a directory, every child points back
// at its parent, and next_ino exceeds every allocated ino. Host lists are not
// checked. It is meant for tests and for an optional debug mode, mirroring the teacher's
// checkInvariants pattern in fs/fs.go — not called on every operation.
func (t *ITree) CheckInvariants() error {
	if err := t.rlock(); err != nil {
		return err
	}
	defer t.runlock()

	root, ok := t.entries[Root]
	if !ok || root.ID != Root || root.Parent != Root {
		return fmt.Errorf("itree: root invariant violated")
	}
	seenNames := map[Ino]map[InodeName]int{}
	for id, in := range t.entries {
		if id == Root {
			continue
		}
		parent, ok := t.entries[in.Parent]
		if !ok || parent.Entry.Kind() != EntryDirectory {
			return fmt.Errorf("itree: inode %d has missing/non-dir parent", id)
		}
		found := 0
		for _, c := range parent.Entry.children {
			if c == id {
				found++
			}
		}
		if found != 1 {
			return fmt.Errorf("itree: inode %d appears %d times in parent %d's children", id, found, in.Parent)
		}
		if seenNames[in.Parent] == nil {
			seenNames[in.Parent] = map[InodeName]int{}
		}
		seenNames[in.Parent][in.Name]++
	}
	for parent, names := range seenNames {
		for name, count := range names {
			if count > 1 {
				return fmt.Errorf("itree: duplicate name %q under parent %d", name, parent)
			}
		}
	}
	for _, in := range t.entries {
		if in.Entry.Kind() != EntryDirectory {
			continue
		}
		for _, c := range in.Entry.children {
			child, ok := t.entries[c]
			if !ok || child.Parent != in.ID {
				return fmt.Errorf("itree: child %d of %d has wrong parent pointer", c, in.ID)
			}
		}
	}
	if t.nextIno <= maxAllocated(t.entries) {
		return fmt.Errorf("itree: next_ino %d does not exceed every allocated ino", t.nextIno)
	}
	return nil
}

func maxAllocated(entries map[Ino]Inode) Ino {
	var max Ino
	for id := range entries {
		if id > max {
			max = id
		}
	}
	return max
}
