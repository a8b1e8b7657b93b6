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

// Package mount is the kernel-bridge adapter spec.md §1 keeps "deliberately
// out of scope... only the operations they invoke on the core are
// specified". Bridge is that narrow interface: it implements
// github.com/jacobsa/fuse/fuseutil.FileSystem by translating every FUSE
// callback into one of the FsInterface operations of spec.md §4.4, the
// same translation the teacher's fileSystem does in fs/fs.go (that file is
// this package's grounding: method set, the fuseops.InodeID/HandleID
// bookkeeping shape, the LOCKS_EXCLUDED documentation convention) against
// a GCS-object inode cache instead of this package's itree-backed Server.
//
// WinFSP is spec.md's other named kernel bridge; per DESIGN.md's Open
// Questions this package ships a Linux/jacobsa-fuse implementation only,
// shaped so a Windows bridge could be added beside it without touching
// internal/wormholefs.
package mount

import (
	"context"
	"os"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/agartha-software/wormhole/internal/handle"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/wherrors"
	"github.com/agartha-software/wormhole/internal/wormholefs"
)

// Bridge adapts a wormholefs.Server to fuseutil.FileSystem. Inode numbers
// pass through unchanged (itree.Ino and fuseops.InodeID are both uint64
// spaces rooted at 1), matching spec.md's "kernel-bridge attribute cache...
// core invariants do not depend on cache freshness" note: there is no
// separate kernel-side inode table to keep in sync.
type Bridge struct {
	fuseutil.NotImplementedFileSystem

	Server *wormholefs.Server

	// mountDir is the kernel-visible mount directory, used to classify
	// absolute symlink targets as inside or outside the mount; "" when the
	// Server is driven without a real mount (tests).
	mountDir string

	mu         sync.Mutex
	handleIDs  map[fuseops.HandleID]handle.ID
	nextHandle fuseops.HandleID
}

// NewBridge returns a Bridge ready to be passed to fuseutil.NewFileSystemServer.
func NewBridge(server *wormholefs.Server, mountDir string) *Bridge {
	return &Bridge{
		Server:    server,
		mountDir:  mountDir,
		handleIDs: make(map[fuseops.HandleID]handle.ID),
	}
}

func (b *Bridge) registerHandle(id handle.ID) fuseops.HandleID {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextHandle++
	h := b.nextHandle
	b.handleIDs[h] = id
	return h
}

func (b *Bridge) resolveHandle(h fuseops.HandleID) (handle.ID, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.handleIDs[h]
	return id, ok
}

func (b *Bridge) dropHandle(h fuseops.HandleID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handleIDs, h)
}

// attrsFromMeta converts itree.Metadata into fuseops.InodeAttributes,
// folding Metadata.Kind back into the high Mode bits the kernel expects
// (itree keeps Kind and the nine permission bits separate — spec.md §3's
// Metadata — since FsEntry already carries the authoritative type tag).
func attrsFromMeta(meta itree.Metadata) fuseops.InodeAttributes {
	mode := os.FileMode(meta.Mode & 0o7777)
	switch meta.Kind {
	case itree.KindDirectory:
		mode |= os.ModeDir
	case itree.KindSymlink:
		mode |= os.ModeSymlink
	}
	return fuseops.InodeAttributes{
		Size:   meta.Size,
		Nlink:  meta.Nlink,
		Mode:   mode,
		Atime:  meta.Atime,
		Mtime:  meta.Mtime,
		Ctime:  meta.Ctime,
		Crtime: meta.Crtime,
		Uid:    meta.Uid,
		Gid:    meta.Gid,
	}
}

func errno(err error) error {
	if err == nil {
		return nil
	}
	return wherrors.ToErrno(err)
}

// LOCKS_EXCLUDED(b.Server.Tree)
func (b *Bridge) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	name, err := itree.NewInodeName(op.Name)
	if err != nil {
		return syscall.EINVAL
	}
	in, err := b.Server.Lookup(itree.Ino(op.Parent), name)
	if err != nil {
		return errno(err)
	}
	op.Entry.Child = fuseops.InodeID(in.ID)
	op.Entry.Attributes = attrsFromMeta(in.Meta)
	return nil
}

func (b *Bridge) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	meta, err := b.Server.GetAttr(itree.Ino(op.Inode))
	if err != nil {
		return errno(err)
	}
	op.Attributes = attrsFromMeta(meta)
	return nil
}

func (b *Bridge) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	var upd wormholefs.AttrUpdate
	if op.Size != nil {
		upd.Size = op.Size
	}
	if op.Mode != nil {
		m := uint32(op.Mode.Perm())
		upd.Mode = &m
	}
	if op.Atime != nil {
		upd.Atime = op.Atime
	}
	if op.Mtime != nil {
		upd.Mtime = op.Mtime
	}
	meta, err := b.Server.SetAttr(ctx, itree.Ino(op.Inode), upd)
	if err != nil {
		return errno(err)
	}
	op.Attributes = attrsFromMeta(meta)
	return nil
}

// ForgetInode is a no-op: itree.ITree has no lookup-count-based eviction
// (spec.md §9's kernel-bridge attribute cache note says core invariants do
// not depend on it), unlike the teacher's inode.Inode.Lookup-count bookkeeping.
func (b *Bridge) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}

func (b *Bridge) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	name, err := itree.NewInodeName(op.Name)
	if err != nil {
		return syscall.EINVAL
	}
	in, _, err := b.Server.Create(ctx, itree.Ino(op.Parent), name, itree.KindDirectory, handle.OpenFlags{}, op.Mode)
	if err != nil {
		return errno(err)
	}
	op.Entry.Child = fuseops.InodeID(in.ID)
	op.Entry.Attributes = attrsFromMeta(in.Meta)
	return nil
}

func (b *Bridge) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	name, err := itree.NewInodeName(op.Name)
	if err != nil {
		return syscall.EINVAL
	}
	in, hID, err := b.Server.Create(ctx, itree.Ino(op.Parent), name, itree.KindFile, handle.OpenFlags{Create: true}, op.Mode)
	if err != nil {
		return errno(err)
	}
	op.Entry.Child = fuseops.InodeID(in.ID)
	op.Entry.Attributes = attrsFromMeta(in.Meta)
	op.Handle = b.registerHandle(hID)
	return nil
}

func (b *Bridge) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	name, err := itree.NewInodeName(op.Name)
	if err != nil {
		return syscall.EINVAL
	}
	target := itree.ParseSymlinkTarget(op.Target, b.mountDir)
	in, err := b.Server.CreateSymlink(ctx, itree.Ino(op.Parent), name, target, 0o777)
	if err != nil {
		return errno(err)
	}
	op.Entry.Child = fuseops.InodeID(in.ID)
	op.Entry.Attributes = attrsFromMeta(in.Meta)
	return nil
}

func (b *Bridge) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	name, err := itree.NewInodeName(op.Name)
	if err != nil {
		return syscall.EINVAL
	}
	return errno(b.Server.Remove(ctx, itree.Ino(op.Parent), name))
}

func (b *Bridge) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	name, err := itree.NewInodeName(op.Name)
	if err != nil {
		return syscall.EINVAL
	}
	return errno(b.Server.Remove(ctx, itree.Ino(op.Parent), name))
}

func (b *Bridge) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	oldName, err := itree.NewInodeName(op.OldName)
	if err != nil {
		return syscall.EINVAL
	}
	newName, err := itree.NewInodeName(op.NewName)
	if err != nil {
		return syscall.EINVAL
	}
	err = b.Server.Rename(ctx, itree.Ino(op.OldParent), itree.Ino(op.NewParent), oldName, newName, true)
	return errno(err)
}

func (b *Bridge) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	if _, err := b.Server.GetAttr(itree.Ino(op.Inode)); err != nil {
		return errno(err)
	}
	op.Handle = b.registerHandle(uuid.New())
	return nil
}

func (b *Bridge) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	entries, err := b.Server.ReadDir(itree.Ino(op.Inode))
	if err != nil {
		return errno(err)
	}

	var offset int
	for i, e := range entries {
		if i < int(op.Offset) {
			continue
		}
		kind := fuseutil.DT_File
		meta, mErr := b.Server.GetAttr(e.Ino)
		if mErr == nil {
			switch meta.Kind {
			case itree.KindDirectory:
				kind = fuseutil.DT_Directory
			case itree.KindSymlink:
				kind = fuseutil.DT_Link
			}
		}
		n := fuseutil.WriteDirent(op.Dst[offset:], fuseutil.Dirent{
			Offset: fuseops.DirOffset(i + 1),
			Inode:  fuseops.InodeID(e.Ino),
			Name:   e.Name,
			Type:   kind,
		})
		if n == 0 {
			break
		}
		offset += n
	}
	op.BytesRead = offset
	return nil
}

func (b *Bridge) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	b.dropHandle(op.Handle)
	return nil
}

func (b *Bridge) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	mode := handle.Read
	if uint32(op.OpenFlags)&uint32(os.O_WRONLY|os.O_RDWR) != 0 {
		mode = handle.Write
	}
	flags := handle.OpenFlags{
		Append:   uint32(op.OpenFlags)&uint32(os.O_APPEND) != 0,
		Truncate: uint32(op.OpenFlags)&uint32(os.O_TRUNC) != 0,
	}
	hID, err := b.Server.Open(itree.Ino(op.Inode), flags, mode)
	if err != nil {
		return errno(err)
	}
	op.Handle = b.registerHandle(hID)
	op.KeepPageCache = false
	return nil
}

func (b *Bridge) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	hID, ok := b.resolveHandle(op.Handle)
	if !ok {
		return syscall.EBADF
	}
	n, err := b.Server.Read(ctx, itree.Ino(op.Inode), op.Offset, op.Dst, hID)
	op.BytesRead = n
	if err != nil {
		return errno(err)
	}
	return nil
}

func (b *Bridge) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	hID, ok := b.resolveHandle(op.Handle)
	if !ok {
		return syscall.EBADF
	}
	_, err := b.Server.Write(itree.Ino(op.Inode), op.Data, op.Offset, hID)
	return errno(err)
}

func (b *Bridge) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	hID, ok := b.resolveHandle(op.Handle)
	if !ok {
		return syscall.EBADF
	}
	return errno(b.Server.Flush(ctx, itree.Ino(op.Inode), hID))
}

func (b *Bridge) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	hID, ok := b.resolveHandle(op.Handle)
	if !ok {
		return nil
	}
	defer b.dropHandle(op.Handle)
	return errno(b.Server.Release(ctx, hID))
}

func (b *Bridge) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	target, err := b.Server.ReadLink(itree.Ino(op.Inode))
	if err != nil {
		return errno(err)
	}
	op.Target = target
	return nil
}

func (b *Bridge) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	value, err := b.Server.GetXAttr(itree.Ino(op.Inode), op.Name)
	if err != nil {
		return errno(err)
	}
	if len(op.Dst) < len(value) {
		return syscall.ERANGE
	}
	op.BytesRead = copy(op.Dst, value)
	return nil
}

func (b *Bridge) SetXattr(ctx context.Context, op *fuseops.SetXattrOp) error {
	return errno(b.Server.SetXAttr(ctx, itree.Ino(op.Inode), op.Name, op.Value))
}

func (b *Bridge) RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) error {
	return errno(b.Server.RemoveXAttr(ctx, itree.Ino(op.Inode), op.Name))
}

func (b *Bridge) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	op.BlockSize = 4096
	op.IoSize = 1 << 20
	return nil
}

func (b *Bridge) Destroy() {}
