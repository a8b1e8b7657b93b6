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

// Package disk implements the DiskManager abstraction (spec.md §4.2): POSIX-
// like byte storage for one mount, consumed by internal/wormholefs. Each
// call maps one-to-one onto a host-filesystem operation; no atomicity is
// assumed across calls. The Linux-native and in-memory-virtual
// implementations below both wrap an afero.Fs, matching the spec's
// requirement that every implementation share the contract exactly.
package disk

import (
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"golang.org/x/sys/unix"
)

// SizeInfo reports free/total bytes for the backing store.
type SizeInfo struct {
	Free  uint64
	Total uint64
}

// Manager is the DiskManager contract core components consume.
type Manager interface {
	NewFile(path string, mode os.FileMode) error
	NewDir(path string, mode os.FileMode) error
	NewSymlink(path string, mode os.FileMode, target string) error
	RemoveFile(path string) error
	RemoveDir(path string) error
	RemoveSymlink(path string) error
	ReadFile(path string, offset int64, buf []byte) (int, error)
	WriteFile(path string, data []byte, offset int64) (int, error)
	SetFileSize(path string, size int64) error
	MvFile(path, newPath string) error
	SetPermissions(path string, mode os.FileMode) error
	FileExists(path string) (bool, error)
	SizeInfoOf() (SizeInfo, error)
	Stop() error
}

// aferoManager implements Manager over any afero.Fs. The OS-backed variant
// keeps root (the real mount path) so NewSymlink can create genuine on-disk
// symlinks and SizeInfoOf can statfs the backing filesystem; the in-memory
// variant has no symlink primitive at all, so there symlinks are realized
// as a regular file holding the target path, with the itree's FsEntry kind
// staying authoritative for "is this a symlink" (spec.md §4.1).
type aferoManager struct {
	fs   afero.Fs
	root string
}

// NewOSManager returns a DiskManager backed by the real host filesystem
// rooted at mountPoint, for Linux/Windows-native pods.
func NewOSManager(mountPoint string) Manager {
	return &aferoManager{fs: afero.NewBasePathFs(afero.NewOsFs(), mountPoint), root: mountPoint}
}

// NewMemManager returns a DiskManager backed by an in-memory filesystem, for
// tests and the in-memory-virtual pod variant spec.md §4.2 calls for.
func NewMemManager() Manager {
	return &aferoManager{fs: afero.NewMemMapFs()}
}

func (m *aferoManager) NewFile(path string, mode os.FileMode) error {
	f, err := m.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	return f.Close()
}

func (m *aferoManager) NewDir(path string, mode os.FileMode) error {
	return m.fs.Mkdir(path, mode)
}

func (m *aferoManager) NewSymlink(path string, mode os.FileMode, target string) error {
	if m.root != "" {
		return os.Symlink(target, filepath.Join(m.root, path))
	}
	if err := m.NewFile(path, mode); err != nil {
		return err
	}
	_, err := m.WriteFile(path, []byte(target), 0)
	return err
}

func (m *aferoManager) RemoveFile(path string) error    { return m.fs.Remove(path) }
func (m *aferoManager) RemoveDir(path string) error     { return m.fs.Remove(path) }
func (m *aferoManager) RemoveSymlink(path string) error { return m.fs.Remove(path) }

func (m *aferoManager) ReadFile(path string, offset int64, buf []byte) (int, error) {
	f, err := m.fs.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.ReadAt(buf, offset)
}

func (m *aferoManager) WriteFile(path string, data []byte, offset int64) (int, error) {
	f, err := m.fs.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.WriteAt(data, offset)
}

func (m *aferoManager) SetFileSize(path string, size int64) error {
	f, err := m.fs.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Truncate(size)
}

func (m *aferoManager) MvFile(path, newPath string) error {
	return m.fs.Rename(path, newPath)
}

func (m *aferoManager) SetPermissions(path string, mode os.FileMode) error {
	return m.fs.Chmod(path, mode)
}

func (m *aferoManager) FileExists(path string) (bool, error) {
	return afero.Exists(m.fs, path)
}

func (m *aferoManager) SizeInfoOf() (SizeInfo, error) {
	if m.root == "" {
		// In-memory filesystems have no meaningful disk quota.
		return SizeInfo{Free: ^uint64(0), Total: ^uint64(0)}, nil
	}
	var stat unix.Statfs_t
	if err := unix.Statfs(m.root, &stat); err != nil {
		return SizeInfo{}, err
	}
	return SizeInfo{
		Free:  stat.Bavail * uint64(stat.Bsize),
		Total: stat.Blocks * uint64(stat.Bsize),
	}, nil
}

func (m *aferoManager) Stop() error { return nil }
