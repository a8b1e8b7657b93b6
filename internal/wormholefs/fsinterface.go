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

// Package wormholefs implements FsInterface (spec.md §4.4): the public
// filesystem contract that orchestrates the ITree, the DiskManager, and
// the NetworkInterface. It is grounded on the teacher's fs.fileSystem
// (fs/fs.go) for its method set and lock-ordering discipline, generalized
// from a GCS-bucket-backed store to the replicated itree described in
// spec.md §3.
package wormholefs

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/agartha-software/wormhole/internal/delta"
	"github.com/agartha-software/wormhole/internal/disk"
	"github.com/agartha-software/wormhole/internal/handle"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/logger"
	"github.com/agartha-software/wormhole/internal/metrics"
	"github.com/agartha-software/wormhole/internal/network"
	"github.com/agartha-software/wormhole/internal/wherrors"
)

// ApplyRedundancy is the concrete signature wormholefs calls into; it is a
// function rather than an interface method set because internal/redundancy
// and internal/wormholefs would otherwise import each other (spec.md §9's
// "cyclic references... break it with... message-passing channels" —
// here the break is a plain function value supplied by internal/pod).
type ApplyRedundancy func(ino itree.Ino)

// Server is FsInterface: the orchestration point between ITree,
// DiskManager, and NetworkInterface. A mount.Bridge (internal/mount) wraps
// it as a fuseutil.FileSystem; tests and internal/pod drive it directly.
type Server struct {
	Tree    *itree.ITree
	Disk    disk.Manager
	Handles *handle.Manager
	Net     *network.Interface
	Self    itree.PeerID

	ApplyRedundancy ApplyRedundancy

	// HostsUpdated tells the RedundancyWorker a file's host list changed so
	// it can resolve pending sends against the authoritative list; nil until
	// internal/pod wires the worker in, same as ApplyRedundancy.
	HostsUpdated func(ino itree.Ino, hosts []itree.PeerID)

	// Metrics records per-operation counters when a Pod registered them;
	// nil (the *PodMetrics methods are nil-safe) when metrics are off.
	Metrics *metrics.PodMetrics

	// Clock lets tests control Metadata timestamps; defaults to time.Now.
	Clock func() time.Time
}

// New returns a Server wired to the given components. ApplyRedundancy may
// be nil until internal/pod finishes constructing the RedundancyWorker;
// Release simply skips the nudge in that case.
func New(tree *itree.ITree, d disk.Manager, handles *handle.Manager, net *network.Interface, self itree.PeerID) *Server {
	return &Server{Tree: tree, Disk: d, Handles: handles, Net: net, Self: self, Clock: time.Now}
}

func (s *Server) now() time.Time { return s.Clock() }

// checkPerm enforces the three permission bits of spec.md §4.4.5 against
// an inode's mode. want is one of 0o400 (read), 0o200 (write), 0o100
// (execute).
func checkPerm(meta itree.Metadata, want uint32) error {
	if meta.Mode&want == 0 {
		return wherrors.ErrPermissionDenied
	}
	return nil
}

// Lookup resolves name under parent, gated by execute permission on
// parent (spec.md §4.4.5: "execute on a directory gates lookup").
func (s *Server) Lookup(parent itree.Ino, name itree.InodeName) (itree.Inode, error) {
	p, err := s.Tree.GetInode(parent)
	if err != nil {
		return itree.Inode{}, err
	}
	if err := checkPerm(p.Meta, 0o100); err != nil {
		return itree.Inode{}, err
	}
	return s.Tree.GetChildByName(parent, name)
}

// GetAttr returns an inode's metadata.
func (s *Server) GetAttr(ino itree.Ino) (itree.Metadata, error) {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return itree.Metadata{}, err
	}
	return in.Meta, nil
}

// AttrUpdate carries the subset of Metadata SetAttr should overwrite; a
// nil field leaves the current value untouched, matching the "partial
// meta" input spec.md §4.4 describes.
type AttrUpdate struct {
	Size  *uint64
	Mode  *uint32
	Uid   *uint32
	Gid   *uint32
	Atime *time.Time
	Mtime *time.Time
}

// SetAttr updates an inode's metadata in place and broadcasts the change.
func (s *Server) SetAttr(ctx context.Context, ino itree.Ino, upd AttrUpdate) (itree.Metadata, error) {
	var out itree.Metadata
	err := s.Tree.MutateInode(ino, func(in *itree.Inode) error {
		if upd.Size != nil {
			in.Meta.Size = *upd.Size
		}
		if upd.Mode != nil {
			in.Meta.Mode = *upd.Mode
		}
		if upd.Uid != nil {
			in.Meta.Uid = *upd.Uid
		}
		if upd.Gid != nil {
			in.Meta.Gid = *upd.Gid
		}
		if upd.Atime != nil {
			in.Meta.Atime = *upd.Atime
		}
		if upd.Mtime != nil {
			in.Meta.Mtime = *upd.Mtime
		}
		in.Meta.Ctime = s.now()
		out = in.Meta
		return nil
	})
	if err != nil {
		return itree.Metadata{}, err
	}
	s.Net.Broadcast(ctx, network.Message{Kind: network.KindEditMetadata, Ino: ino, Metadata: out})
	return out, nil
}

// DirEntry is one row of a ReadDir result.
type DirEntry struct {
	Ino  itree.Ino
	Name string
	Meta itree.Metadata
}

// ReadDir lists a directory's children plus "." and "..", gated by read
// permission (spec.md §4.4.5: "read gates readdir").
func (s *Server) ReadDir(ino itree.Ino) ([]DirEntry, error) {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return nil, err
	}
	if in.Entry.Kind() != itree.EntryDirectory {
		return nil, wherrors.ErrNotADirectory
	}
	if err := checkPerm(in.Meta, 0o400); err != nil {
		return nil, err
	}

	parent, err := s.Tree.GetInode(in.Parent)
	if err != nil {
		parent = in
	}
	out := []DirEntry{
		{Ino: in.ID, Name: ".", Meta: in.Meta},
		{Ino: parent.ID, Name: "..", Meta: parent.Meta},
	}
	for _, childID := range in.Entry.Children() {
		child, err := s.Tree.GetInode(childID)
		if err != nil {
			continue
		}
		out = append(out, DirEntry{Ino: child.ID, Name: string(child.Name), Meta: child.Meta})
	}
	return out, nil
}

func defaultMeta(kind itree.FileKind, mode os.FileMode) itree.Metadata {
	now := time.Now()
	nlink := uint32(1)
	if kind == itree.KindDirectory {
		nlink = 2
	}
	return itree.Metadata{
		Kind: kind, Mode: uint32(mode.Perm()), Nlink: nlink,
		Atime: now, Mtime: now, Ctime: now, Crtime: now,
		BlkSize: 4096,
	}
}

// Create allocates an Ino, inserts the inode, realizes it on disk,
// broadcasts its creation, and (for files) opens a write handle — spec.md
// §4.4's "create" row.
func (s *Server) Create(ctx context.Context, parent itree.Ino, name itree.InodeName, kind itree.FileKind, flags handle.OpenFlags, perms os.FileMode) (itree.Inode, handle.ID, error) {
	p, err := s.Tree.GetInode(parent)
	if err != nil {
		return itree.Inode{}, handle.ID{}, wherrors.ErrParentNotFound
	}
	if err := checkPerm(p.Meta, 0o200); err != nil {
		return itree.Inode{}, handle.ID{}, err
	}
	if isReservedName(parent, name) {
		return itree.Inode{}, handle.ID{}, wherrors.ErrAlreadyExist
	}

	ino, err := s.Tree.ReserveIno()
	if err != nil {
		return itree.Inode{}, handle.ID{}, err
	}

	in := itree.Inode{
		Parent: parent, ID: ino, Name: name,
		Meta:   defaultMeta(kind, perms),
		Xattrs: map[string][]byte{},
	}
	path, err := s.pathOfChild(parent, name)
	if err != nil {
		return itree.Inode{}, handle.ID{}, err
	}

	switch kind {
	case itree.KindDirectory:
		in.Entry = itree.NewDirectoryEntry()
		if err := s.Disk.NewDir(path, perms); err != nil {
			return itree.Inode{}, handle.ID{}, err
		}
	case itree.KindSymlink:
		in.Entry = itree.NewSymlinkEntry(itree.SymlinkTarget{}, itree.KindFile)
	default:
		in.Entry = itree.NewFileEntry(s.Self)
		if err := s.Disk.NewFile(path, perms); err != nil {
			return itree.Inode{}, handle.ID{}, err
		}
	}

	if err := s.Tree.AddInode(in); err != nil {
		return itree.Inode{}, handle.ID{}, err
	}

	s.Net.Broadcast(ctx, network.Message{Kind: network.KindInode, Inode: in})

	var hID handle.ID
	if kind == itree.KindFile {
		hID, err = s.Handles.Open(ino, handle.Write, flags, delta.NewSignature(nil))
		if err != nil {
			return itree.Inode{}, handle.ID{}, err
		}
	}
	return in, hID, nil
}

// CreateSymlink allocates a fresh symlink inode pointing at target, realizes
// it on disk, and broadcasts its creation. The stored hint carries the
// target's expected kind without forcing later readers to dereference it;
// unresolvable targets default to a file hint.
func (s *Server) CreateSymlink(ctx context.Context, parent itree.Ino, name itree.InodeName, target itree.SymlinkTarget, perms os.FileMode) (itree.Inode, error) {
	p, err := s.Tree.GetInode(parent)
	if err != nil {
		return itree.Inode{}, wherrors.ErrParentNotFound
	}
	if err := checkPerm(p.Meta, 0o200); err != nil {
		return itree.Inode{}, err
	}
	if isReservedName(parent, name) {
		return itree.Inode{}, wherrors.ErrAlreadyExist
	}

	ino, err := s.Tree.ReserveIno()
	if err != nil {
		return itree.Inode{}, err
	}

	in := itree.Inode{
		Parent: parent, ID: ino, Name: name,
		Entry:  itree.NewSymlinkEntry(target, s.hintFor(parent, target)),
		Meta:   defaultMeta(itree.KindSymlink, perms),
		Xattrs: map[string][]byte{},
	}
	path, err := s.pathOfChild(parent, name)
	if err != nil {
		return itree.Inode{}, err
	}
	if err := s.Disk.NewSymlink(path, perms, target.Path); err != nil {
		return itree.Inode{}, err
	}
	if err := s.Tree.AddInode(in); err != nil {
		return itree.Inode{}, err
	}

	s.Net.Broadcast(ctx, network.Message{Kind: network.KindInode, Inode: in})
	return in, nil
}

// hintFor resolves target against the tree to learn its kind, defaulting to
// a file hint when the target does not (yet) resolve inside the mount.
func (s *Server) hintFor(parent itree.Ino, target itree.SymlinkTarget) itree.FileKind {
	var logical string
	switch target.Kind {
	case itree.TargetAbsolute:
		logical = target.Path
	case itree.TargetRelative:
		parentPath, err := s.Tree.GetPathFromInode(parent)
		if err != nil {
			return itree.KindFile
		}
		logical = strings.TrimSuffix(parentPath, "/") + "/" + target.Path
	default:
		return itree.KindFile
	}
	if resolved, err := s.Tree.GetInodeFromPath(logical); err == nil {
		return resolved.Meta.Kind
	}
	return itree.KindFile
}

func isReservedName(parent itree.Ino, name itree.InodeName) bool {
	return parent == itree.Root && (string(name) == itree.GlobalConfigName || string(name) == itree.LocalConfigName)
}

func (s *Server) pathOfChild(parent itree.Ino, name itree.InodeName) (string, error) {
	base, err := s.Tree.GetPathFromInode(parent)
	if err != nil {
		return "", err
	}
	if base == "/" {
		return "/" + string(name), nil
	}
	return base + "/" + string(name), nil
}

// Open registers a FileHandle for an existing inode.
func (s *Server) Open(ino itree.Ino, flags handle.OpenFlags, mode handle.AccessMode) (handle.ID, error) {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return handle.ID{}, err
	}
	want := uint32(0o400)
	if mode == handle.Write {
		want = 0o200
	}
	if err := checkPerm(in.Meta, want); err != nil {
		return handle.ID{}, err
	}

	var base delta.Signature
	if mode == handle.Write && in.Entry.Kind() == itree.EntryFile {
		path, err := s.Tree.GetPathFromInode(ino)
		if err == nil {
			if data, err := s.readWholeLocal(path, in.Meta.Size); err == nil {
				base = delta.NewSignature(data)
			}
		}
	}
	return s.Handles.Open(ino, mode, flags, base)
}

func (s *Server) readWholeLocal(path string, size uint64) ([]byte, error) {
	buf := make([]byte, size)
	n, err := s.Disk.ReadFile(path, 0, buf)
	if err != nil && n == 0 && size > 0 {
		return nil, err
	}
	return buf[:n], nil
}

// Read satisfies a read, pulling from a hosting peer if the file is not
// stored locally (spec.md §4.4.1).
func (s *Server) Read(ctx context.Context, ino itree.Ino, offset int64, buf []byte, hID handle.ID) (int, error) {
	if _, err := s.Handles.Get(hID); err != nil {
		return 0, wherrors.ErrNoHandle
	}
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return 0, err
	}
	if err := checkPerm(in.Meta, 0o400); err != nil {
		return 0, wherrors.ErrNoReadPerm
	}

	hosts := in.Entry.Hosts()
	if containsSelf(hosts, s.Self) {
		path, err := s.Tree.GetPathFromInode(ino)
		if err != nil {
			return 0, err
		}
		n, err := s.Disk.ReadFile(path, offset, buf)
		s.Metrics.ObserveOp("read", err)
		s.Metrics.AddBytesRead(n)
		return n, err
	}

	data, err := s.pullFile(ctx, ino, hosts)
	s.Metrics.ObserveOp("read", err)
	if err != nil {
		return 0, err
	}
	if offset >= int64(len(data)) {
		return 0, nil
	}
	n := copy(buf, data[offset:])
	s.Metrics.AddBytesRead(n)
	return n, nil
}

// pullFile implements spec.md §4.4.1's pull_file: try each host in list
// order, first success wins, coalesced through Callbacks so concurrent
// readers of the same ino share one round-trip.
func (s *Server) pullFile(ctx context.Context, ino itree.Ino, hosts []itree.PeerID) ([]byte, error) {
	return s.Net.Callbacks.Pull(ino, func() ([]byte, error) {
		for _, host := range hosts {
			addr := network.Address(host)
			reply, err := s.Net.SendAndAwait(ctx, addr, network.Message{Kind: network.KindRequestFile, Ino: ino})
			if err != nil {
				logger.Debugf("pull %d from %s failed: %v", ino, host, err)
				continue
			}
			if reply.Kind == network.KindRequestedFile {
				return reply.Data, nil
			}
		}
		return nil, wherrors.ErrNoHostAvailable
	})
}

func containsSelf(hosts []itree.PeerID, self itree.PeerID) bool {
	for _, h := range hosts {
		if h == self {
			return true
		}
	}
	return false
}

// Write writes data at offset in the local disk copy and marks the handle
// dirty; it does
// not itself propagate to peers (spec.md §4.4.2: "the write is NOT
// broadcast byte-by-byte").
func (s *Server) Write(ino itree.Ino, data []byte, offset int64, hID handle.ID) (int, error) {
	h, err := s.Handles.Get(hID)
	if err != nil {
		return 0, err
	}
	if h.Mode != handle.Write {
		return 0, wherrors.ErrNoWritePerm
	}

	path, err := s.Tree.GetPathFromInode(ino)
	if err != nil {
		return 0, err
	}
	n, err := s.Disk.WriteFile(path, data, offset)
	s.Metrics.ObserveOp("write", err)
	if err != nil {
		return 0, err
	}
	s.Metrics.AddBytesWritten(n)
	if err := s.Handles.MarkDirty(hID); err != nil {
		return n, err
	}

	newSize := uint64(offset) + uint64(n)
	_ = s.Tree.MutateInode(ino, func(in *itree.Inode) error {
		if newSize > in.Meta.Size {
			in.Meta.Size = newSize
		}
		in.Meta.Mtime = s.now()
		return nil
	})
	return n, nil
}

// Remove deletes name from parent both in the itree and on disk, and
// broadcasts the removal (spec.md §4.4's "remove" row).
func (s *Server) Remove(ctx context.Context, parent itree.Ino, name itree.InodeName) error {
	p, err := s.Tree.GetInode(parent)
	if err != nil {
		return err
	}
	if err := checkPerm(p.Meta, 0o200); err != nil {
		return err
	}
	child, err := s.Tree.GetChildByName(parent, name)
	if err != nil {
		return err
	}

	path, err := s.Tree.GetPathFromInode(child.ID)
	if err != nil {
		return err
	}
	if err := s.Tree.RemoveInode(child.ID); err != nil {
		return err
	}

	switch child.Entry.Kind() {
	case itree.EntryDirectory:
		_ = s.Disk.RemoveDir(path)
	case itree.EntrySymlink:
		_ = s.Disk.RemoveSymlink(path)
	default:
		_ = s.Disk.RemoveFile(path)
	}

	s.Net.Broadcast(ctx, network.Message{Kind: network.KindRemove, Ino: child.ID})
	return nil
}

// Rename implements spec.md §4.4.4. Ordinary renames preserve the source
// Ino; a rename touching a reserved name degenerates into
// delete-source+create-destination+copy-bytes, since the reserved Ino is
// fixed by position rather than identity.
func (s *Server) Rename(ctx context.Context, oldParent, newParent itree.Ino, oldName, newName itree.InodeName, overwrite bool) error {
	src, err := s.Tree.GetChildByName(oldParent, oldName)
	if err != nil {
		return err
	}

	dst, err := s.Tree.GetChildByName(newParent, newName)
	destExists := err == nil
	if destExists && !overwrite {
		return wherrors.ErrDestinationExists
	}
	if destExists && overwrite {
		if dst.Entry.Kind() == itree.EntryDirectory && len(dst.Entry.Children()) > 0 {
			return wherrors.ErrOverwriteNonEmpty
		}
		if err := s.Remove(ctx, newParent, newName); err != nil {
			return err
		}
	}

	if isReservedName(oldParent, oldName) || isReservedName(newParent, newName) {
		return s.renameViaCopy(ctx, src, newParent, newName)
	}

	oldPath, err := s.pathOfChild(oldParent, oldName)
	if err != nil {
		return err
	}
	if err := s.Tree.MvInode(oldParent, newParent, oldName, newName); err != nil {
		return err
	}
	if newPath, err := s.Tree.GetPathFromInode(src.ID); err == nil {
		_ = s.Disk.MvFile(oldPath, newPath)
	}

	s.Net.Broadcast(ctx, network.Message{
		Kind: network.KindRename, Ino: oldParent, NewIno: newParent,
		Name: oldName, NewName: newName, Overwrite: overwrite,
	})
	return nil
}

// renameViaCopy implements the reserved-name degeneration of spec.md
// §4.4.4: the destination gets a fresh Ino and the source's bytes, and the
// source is removed.
func (s *Server) renameViaCopy(ctx context.Context, src itree.Inode, newParent itree.Ino, newName itree.InodeName) error {
	srcPath, err := s.Tree.GetPathFromInode(src.ID)
	if err != nil {
		return err
	}
	data, err := s.readWholeLocal(srcPath, src.Meta.Size)
	if err != nil {
		return err
	}

	in, _, err := s.Create(ctx, newParent, newName, src.Meta.Kind, handle.OpenFlags{}, os.FileMode(src.Meta.Mode))
	if err != nil {
		return err
	}
	dstPath, err := s.Tree.GetPathFromInode(in.ID)
	if err != nil {
		return err
	}
	if _, err := s.Disk.WriteFile(dstPath, data, 0); err != nil {
		return err
	}
	_ = s.Disk.SetFileSize(dstPath, int64(len(data)))
	if err := s.Tree.MutateInode(in.ID, func(i *itree.Inode) error {
		i.Meta.Size = uint64(len(data))
		return nil
	}); err != nil {
		return err
	}

	if err := s.Tree.RemoveInode(src.ID); err != nil {
		return err
	}
	_ = s.Disk.RemoveFile(srcPath)
	s.Net.Broadcast(ctx, network.Message{Kind: network.KindRemove, Ino: src.ID})
	return nil
}

// GetXAttr returns one extended attribute value.
func (s *Server) GetXAttr(ino itree.Ino, key string) ([]byte, error) {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return nil, err
	}
	v, ok := in.Xattrs[key]
	if !ok {
		return nil, wherrors.ErrKeyNotFound
	}
	return v, nil
}

// SetXAttr sets one extended attribute and broadcasts the change.
func (s *Server) SetXAttr(ctx context.Context, ino itree.Ino, key string, value []byte) error {
	err := s.Tree.MutateInode(ino, func(in *itree.Inode) error {
		in.Xattrs[key] = value
		return nil
	})
	if err != nil {
		return err
	}
	s.Net.Broadcast(ctx, network.Message{Kind: network.KindSetXAttr, Ino: ino, XAttrName: key, XAttrData: value})
	return nil
}

// RemoveXAttr removes one extended attribute and broadcasts the change.
func (s *Server) RemoveXAttr(ctx context.Context, ino itree.Ino, key string) error {
	err := s.Tree.MutateInode(ino, func(in *itree.Inode) error {
		if _, ok := in.Xattrs[key]; !ok {
			return wherrors.ErrKeyNotFound
		}
		delete(in.Xattrs, key)
		return nil
	})
	if err != nil {
		return err
	}
	s.Net.Broadcast(ctx, network.Message{Kind: network.KindRemoveXAttr, Ino: ino, XAttrName: key})
	return nil
}

// ReadLink returns a symlink's target as a realized path, resolved
// relative to the mount root or the symlink's parent depending on its
// SymlinkTarget kind (spec.md §3, §4.4).
func (s *Server) ReadLink(ino itree.Ino) (string, error) {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return "", err
	}
	if in.Entry.Kind() != itree.EntrySymlink {
		return "", wherrors.ErrNotSymlink
	}
	target, _ := in.Entry.Target()
	switch target.Kind {
	case itree.TargetAbsolute, itree.TargetExternal:
		return target.Path, nil
	default:
		parentPath, err := s.Tree.GetPathFromInode(in.Parent)
		if err != nil {
			return "", err
		}
		if parentPath == "/" {
			return "/" + target.Path, nil
		}
		return parentPath + "/" + target.Path, nil
	}
}

// HostsOf returns a File inode's current host list; it implements
// redundancy.FileSource for the worker's ApplyTo/CheckIntegrity logic.
func (s *Server) HostsOf(ino itree.Ino) ([]itree.PeerID, error) {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return nil, err
	}
	if in.Entry.Kind() != itree.EntryFile {
		return nil, wherrors.ErrIsADirectory
	}
	return in.Entry.Hosts(), nil
}

// ReadWholeFile reads a file's entire local contents; it implements
// redundancy.FileSource.
func (s *Server) ReadWholeFile(ino itree.Ino) ([]byte, error) {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return nil, err
	}
	path, err := s.Tree.GetPathFromInode(ino)
	if err != nil {
		return nil, err
	}
	return s.readWholeLocal(path, in.Meta.Size)
}

// AllInodes returns every known inode's kind; it implements
// redundancy.FileSource for CheckIntegrity's full sweep.
func (s *Server) AllInodes() (map[itree.Ino]itree.FileKind, error) {
	return s.Tree.AllKinds(), nil
}
