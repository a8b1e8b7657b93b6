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

package itree_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/itree"
)

func TestParseSymlinkTargetClassification(t *testing.T) {
	rel := itree.ParseSymlinkTarget("docs/readme.md", "/mnt/pod")
	assert.Equal(t, itree.TargetRelative, rel.Kind)
	assert.Equal(t, "docs/readme.md", rel.Path)

	abs := itree.ParseSymlinkTarget("/mnt/pod/docs/readme.md", "/mnt/pod")
	assert.Equal(t, itree.TargetAbsolute, abs.Kind)
	assert.Equal(t, "/docs/readme.md", abs.Path)

	ext := itree.ParseSymlinkTarget("/etc/hosts", "/mnt/pod")
	assert.Equal(t, itree.TargetExternal, ext.Kind)
	assert.Equal(t, "/etc/hosts", ext.Path)
}

// TestIndexDirectoryBuildsTreeFromExistingMount covers the scratch-start
// recovery path for a non-empty mount directory with no usable snapshot:
// existing files, subdirectories, and symlinks must all be indexed rather
// than silently orphaned.
func TestIndexDirectoryBuildsTreeFromExistingMount(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("world!"), 0o600))
	require.NoError(t, os.Symlink("a.txt", filepath.Join(dir, "link")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, itree.TreeSnapshotName), []byte("stale"), 0o600))

	tree, err := itree.IndexDirectory(dir, "self")
	require.NoError(t, err)
	require.NoError(t, tree.CheckInvariants())

	file, err := tree.GetInodeFromPath("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, itree.KindFile, file.Meta.Kind)
	assert.Equal(t, uint64(5), file.Meta.Size)
	assert.Equal(t, []itree.PeerID{"self"}, file.Entry.Hosts())
	assert.GreaterOrEqual(t, uint64(file.ID), uint64(itree.FirstIno))

	nested, err := tree.GetInodeFromPath("/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), nested.Meta.Size)
	assert.Equal(t, uint32(0o600), nested.Meta.Mode)

	link, err := tree.GetInodeFromPath("/link")
	require.NoError(t, err)
	assert.Equal(t, itree.KindSymlink, link.Meta.Kind)
	target, hint := link.Entry.Target()
	assert.Equal(t, itree.TargetRelative, target.Kind)
	assert.Equal(t, "a.txt", target.Path)
	assert.Equal(t, itree.KindFile, hint)

	// The stale snapshot file itself must not be indexed.
	_, err = tree.GetInodeFromPath("/" + itree.TreeSnapshotName)
	assert.Error(t, err)
}

// TestIndexDirectoryKeepsReservedInosAtRoot pins the reserved-name mapping:
// config files found at the indexed root land on their fixed Inos.
func TestIndexDirectoryKeepsReservedInosAtRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, itree.GlobalConfigName), []byte("[general]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, itree.LocalConfigName), []byte("[general]\n"), 0o644))

	tree, err := itree.IndexDirectory(dir, "self")
	require.NoError(t, err)

	global, err := tree.GetInodeFromPath("/" + itree.GlobalConfigName)
	require.NoError(t, err)
	assert.Equal(t, itree.GlobalConfigIno, global.ID)

	local, err := tree.GetInodeFromPath("/" + itree.LocalConfigName)
	require.NoError(t, err)
	assert.Equal(t, itree.LocalConfigIno, local.ID)

	// Ino 3 is local-only and must not survive clean_local.
	clean, err := tree.CleanLocal()
	require.NoError(t, err)
	_, err = clean.GetInode(itree.LocalConfigIno)
	assert.Error(t, err)
}
