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

// Package itree implements the replicated inode tree: the shared data
// structure mapping inode numbers to directory/file/symlink records, with
// the rules governing its consistency across peers (spec.md §3, §4.1).
package itree

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Ino is a 64-bit inode number. Values 1-10 are reserved; numbers >= FirstIno
// are allocated monotonically and never reused within a running network.
type Ino uint64

const (
	Root                Ino = 1
	GlobalConfigIno     Ino = 2
	LocalConfigIno      Ino = 3
	TreeSnapshotIno     Ino = 4
	FirstIno            Ino = 11
	GlobalConfigName        = ".global_config.toml"
	LocalConfigName         = ".local_config.toml"
	TreeSnapshotName        = ".itree"
)

// PeerID identifies a peer. It mirrors the string form of a libp2p peer.ID;
// kept as a plain string here so this package never depends on the network
// transport.
type PeerID string

// InodeName is a single path component. It must not be empty, ".", or "..".
type InodeName string

// NewInodeName validates and wraps a path component.
func NewInodeName(s string) (InodeName, error) {
	if s == "" || s == "." || s == ".." || strings.Contains(s, "/") {
		return "", fmt.Errorf("itree: invalid inode name %q", s)
	}
	return InodeName(s), nil
}

// TargetKind distinguishes the variants of SymlinkTarget.
type TargetKind int

const (
	// TargetRelative is resolved relative to the symlink's parent directory.
	TargetRelative TargetKind = iota
	// TargetAbsolute is resolved relative to the mount root.
	TargetAbsolute
	// TargetExternal is an opaque host-filesystem path outside the mount.
	TargetExternal
)

// SymlinkTarget is the logical (not platform-realized) target of a symlink.
type SymlinkTarget struct {
	Kind TargetKind
	Path string
}

// FileKind is the POSIX file type carried by Metadata.Kind.
type FileKind int

const (
	KindFile FileKind = iota
	KindDirectory
	KindSymlink
)

// Metadata is POSIX-style inode metadata.
type Metadata struct {
	Size    uint64
	Blocks  uint64
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
	Crtime  time.Time
	Kind    FileKind
	Mode    uint32 // permission bits, three relevant: read 0o400, write 0o200, execute 0o100
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint32
	BlkSize uint32
	Flags   uint32
}

// FsEntry is the tagged variant carried by every Inode: a File (with the set
// of peers hosting its bytes), a Directory (with an ordered child list), or
// a Symlink (with a target and a dereference-free kind hint).
type FsEntry struct {
	kind EntryKind

	// File
	hosts []PeerID

	// Directory
	children []Ino

	// Symlink
	target SymlinkTarget
	hint   FileKind
}

type EntryKind int

const (
	EntryFile EntryKind = iota
	EntryDirectory
	EntrySymlink
)

func NewFileEntry(hosts ...PeerID) FsEntry {
	return FsEntry{kind: EntryFile, hosts: dedupSortHosts(hosts)}
}

func NewDirectoryEntry(children ...Ino) FsEntry {
	c := make([]Ino, len(children))
	copy(c, children)
	return FsEntry{kind: EntryDirectory, children: c}
}

func NewSymlinkEntry(target SymlinkTarget, hint FileKind) FsEntry {
	return FsEntry{kind: EntrySymlink, target: target, hint: hint}
}

func (e FsEntry) Kind() EntryKind { return e.kind }

// Hosts returns the (already deduplicated, sorted) host list of a File
// entry, or nil for other kinds.
func (e FsEntry) Hosts() []PeerID {
	if e.kind != EntryFile {
		return nil
	}
	out := make([]PeerID, len(e.hosts))
	copy(out, e.hosts)
	return out
}

// Children returns the ordered child list of a Directory entry, or nil for
// other kinds. Order is insertion order and must be preserved by callers.
func (e FsEntry) Children() []Ino {
	if e.kind != EntryDirectory {
		return nil
	}
	out := make([]Ino, len(e.children))
	copy(out, e.children)
	return out
}

// Target returns the symlink target and type hint of a Symlink entry.
func (e FsEntry) Target() (SymlinkTarget, FileKind) { return e.target, e.hint }

func dedupSortHosts(hosts []PeerID) []PeerID {
	seen := make(map[PeerID]struct{}, len(hosts))
	out := make([]PeerID, 0, len(hosts))
	for _, h := range hosts {
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Inode is one entry of the tree: its parent, its own id, its name within
// the parent, its FsEntry payload, its metadata, and its extended
// attributes.
type Inode struct {
	Parent Ino
	ID     Ino
	Name   InodeName
	Entry  FsEntry
	Meta   Metadata
	Xattrs map[string][]byte
}

func (in Inode) clone() Inode {
	out := in
	out.Entry = FsEntry{
		kind:     in.Entry.kind,
		hosts:    append([]PeerID(nil), in.Entry.hosts...),
		children: append([]Ino(nil), in.Entry.children...),
		target:   in.Entry.target,
		hint:     in.Entry.hint,
	}
	out.Xattrs = make(map[string][]byte, len(in.Xattrs))
	for k, v := range in.Xattrs {
		out.Xattrs[k] = append([]byte(nil), v...)
	}
	return out
}
