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

package mount

import (
	"context"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/agartha-software/wormhole/internal/wormholefs"
)

// Mounted is the running kernel bridge for one Pod: a live jacobsa/fuse
// mount plus a handle to unmount it, the Go counterpart of the teacher's
// mountAndServe/MountedFileSystem pair (fuseutil/mounted_file_system.go).
type Mounted struct {
	fs  *fuse.MountedFileSystem
	dir string
}

// Mount realizes spec.md §4.8 step 5 ("Mount the kernel bridge (FUSE or
// WinFSP) pointing at FsInterface"): it wraps server in a Bridge, builds
// the fuseutil.FileSystemServer, and mounts it at dir.
func Mount(ctx context.Context, dir string, server *wormholefs.Server, fsName string) (*Mounted, error) {
	bridge := NewBridge(server, dir)
	fsServer := fuseutil.NewFileSystemServer(bridge)

	mfs, err := fuse.Mount(dir, fsServer, &fuse.MountConfig{
		FSName:                    fsName,
		VolumeName:                fsName,
		ReadOnly:                  false,
		DisableDefaultPermissions: true,
	})
	if err != nil {
		return nil, err
	}
	return &Mounted{fs: mfs, dir: dir}, nil
}

// WaitForReady blocks until the mount is ready to serve requests. fuse.Mount
// already waits for the mount to become ready before returning, so by the
// time a Mounted exists it is already ready.
func (m *Mounted) WaitForReady(ctx context.Context) error {
	return nil
}

// Unmount tears the kernel bridge down, the counterpart of spec.md §4.8's
// stop step 5 ("Call DiskManager::stop and unmount").
func (m *Mounted) Unmount() error {
	if err := fuse.Unmount(m.dir); err != nil {
		return err
	}
	return m.fs.Join(context.Background())
}
