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
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/agartha-software/wormhole/internal/logger"
)

// ParseSymlinkTarget classifies a raw symlink target string the way spec.md
// §3's SymlinkTarget distinguishes them: relative to the symlink's parent,
// absolute within the mount root (stored mount-relative so the link survives
// the mount directory moving), or external to the mount entirely. mountRoot
// is the kernel-visible mount directory; "" means it is unknown and every
// absolute target is treated as external.
func ParseSymlinkTarget(raw, mountRoot string) SymlinkTarget {
	if !strings.HasPrefix(raw, "/") {
		return SymlinkTarget{Kind: TargetRelative, Path: raw}
	}
	root := strings.TrimSuffix(mountRoot, "/")
	if root != "" && strings.HasPrefix(raw, root+"/") {
		return SymlinkTarget{Kind: TargetAbsolute, Path: strings.TrimPrefix(raw, root)}
	}
	return SymlinkTarget{Kind: TargetExternal, Path: raw}
}

// IndexDirectory builds a fresh ITree by walking the filesystem rooted at
// dir: the scratch-start recovery path of spec.md §4.8 step 1 for a mount
// directory that already holds data but no usable .itree snapshot. Every
// entry gets a freshly allocated Ino (reserved names at the root keep their
// fixed Inos), its permissions and size captured, and its kind classified
// as File (hosted by self), Directory (recursed into), or Symlink (target
// read from the real link).
func IndexDirectory(dir string, self PeerID) (*ITree, error) {
	t := New()
	if err := t.indexFolder(dir, dir, Root, self); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *ITree) indexFolder(root, dir string, parent Ino, self PeerID) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		if parent == Root && e.Name() == TreeSnapshotName {
			continue
		}
		name, err := NewInodeName(e.Name())
		if err != nil {
			logger.Warnf("itree: skipping unindexable entry %q in %s: %v", e.Name(), dir, err)
			continue
		}

		full := filepath.Join(dir, e.Name())
		info, err := os.Lstat(full)
		if err != nil {
			logger.Warnf("itree: indexing %s: %v", full, err)
			continue
		}

		var id Ino
		if parent == Root {
			switch e.Name() {
			case GlobalConfigName:
				id = GlobalConfigIno
			case LocalConfigName:
				id = LocalConfigIno
			}
		}
		if id == 0 {
			if id, err = t.ReserveIno(); err != nil {
				return err
			}
		}

		meta := Metadata{
			Mode:  uint32(info.Mode().Perm()),
			Nlink: 1,
			Atime: info.ModTime(), Mtime: info.ModTime(),
			Ctime: info.ModTime(), Crtime: info.ModTime(),
			BlkSize: 4096,
		}
		if st, ok := info.Sys().(*syscall.Stat_t); ok {
			meta.Uid = st.Uid
			meta.Gid = st.Gid
		}

		in := Inode{Parent: parent, ID: id, Name: name, Xattrs: map[string][]byte{}}
		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(full)
			if err != nil {
				logger.Warnf("itree: reading symlink %s: %v", full, err)
				continue
			}
			hint := KindFile
			if resolved, err := os.Stat(full); err == nil && resolved.IsDir() {
				hint = KindDirectory
			}
			in.Entry = NewSymlinkEntry(ParseSymlinkTarget(target, root), hint)
			meta.Kind = KindSymlink
		case info.IsDir():
			in.Entry = NewDirectoryEntry()
			meta.Kind = KindDirectory
			meta.Nlink = 2
		default:
			in.Entry = NewFileEntry(self)
			meta.Kind = KindFile
			meta.Size = uint64(info.Size())
			meta.Blocks = (uint64(info.Size()) + 511) / 512
		}
		in.Meta = meta

		if err := t.AddInode(in); err != nil {
			logger.Warnf("itree: indexing %s: %v", full, err)
			continue
		}
		if meta.Kind == KindDirectory {
			if err := t.indexFolder(root, full, id, self); err != nil {
				return err
			}
		}
	}
	return nil
}
