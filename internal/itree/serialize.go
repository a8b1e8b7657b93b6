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
	"bytes"
	"encoding/gob"

	"github.com/agartha-software/wormhole/internal/trylock"
)

// entryWire is the exported shadow of FsEntry gob relies on, since FsEntry
// itself keeps its fields unexported to enforce the constructors above.
type entryWire struct {
	Kind     EntryKind
	Hosts    []PeerID
	Children []Ino
	Target   SymlinkTarget
	Hint     FileKind
}

// GobEncode implements gob.GobEncoder so FsEntry can travel over the wire
// and into the .itree snapshot despite its unexported fields.
func (e FsEntry) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	w := entryWire{Kind: e.kind, Hosts: e.hosts, Children: e.children, Target: e.target, Hint: e.hint}
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (e *FsEntry) GobDecode(data []byte) error {
	var w entryWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}
	e.kind, e.hosts, e.children, e.target, e.hint = w.Kind, w.Hosts, w.Children, w.Target, w.Hint
	return nil
}

// treeWire is the exported snapshot of an ITree's durable state: the entry
// map and the allocator cursor. The mutex itself is never serialized.
type treeWire struct {
	Entries map[Ino]Inode
	NextIno Ino
}

// Marshal produces the compact binary snapshot used both for the on-disk
// .itree file (Ino 4) and for the join-handshake FsAnswer payload (spec.md
// §4.1, §6). Callers are expected to have already called CleanLocal if the
// snapshot is headed across the network.
func (t *ITree) Marshal() ([]byte, error) {
	if err := t.rlock(); err != nil {
		return nil, err
	}
	defer t.runlock()

	var buf bytes.Buffer
	w := treeWire{Entries: t.entries, NextIno: t.nextIno}
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses a snapshot produced by Marshal into a fresh ITree.
func Unmarshal(data []byte) (*ITree, error) {
	var w treeWire
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return nil, err
	}
	if w.Entries == nil {
		w.Entries = make(map[Ino]Inode)
	}
	return &ITree{
		entries:   w.Entries,
		nextIno:   w.NextIno,
		localOnly: map[Ino]struct{}{LocalConfigIno: {}},
		mu:        trylock.New(LockTimeout),
	}, nil
}
