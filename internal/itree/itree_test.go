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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/wherrors"
)

func mustName(t *testing.T, s string) itree.InodeName {
	t.Helper()
	n, err := itree.NewInodeName(s)
	require.NoError(t, err)
	return n
}

func addDir(t *testing.T, tree *itree.ITree, parent itree.Ino, name string) itree.Ino {
	t.Helper()
	id, err := tree.ReserveIno()
	require.NoError(t, err)
	require.NoError(t, tree.AddInode(itree.Inode{
		Parent: parent,
		ID:     id,
		Name:   mustName(t, name),
		Entry:  itree.NewDirectoryEntry(),
		Xattrs: map[string][]byte{},
	}))
	return id
}

func addFile(t *testing.T, tree *itree.ITree, parent itree.Ino, name string, hosts ...itree.PeerID) itree.Ino {
	t.Helper()
	id, err := tree.ReserveIno()
	require.NoError(t, err)
	require.NoError(t, tree.AddInode(itree.Inode{
		Parent: parent,
		ID:     id,
		Name:   mustName(t, name),
		Entry:  itree.NewFileEntry(hosts...),
		Xattrs: map[string][]byte{},
	}))
	return id
}

func TestNewTreeHasImmortalRoot(t *testing.T) {
	tree := itree.New()
	root, err := tree.GetInode(itree.Root)
	require.NoError(t, err)
	assert.Equal(t, itree.Root, root.ID)
	assert.Equal(t, itree.Root, root.Parent)
	assert.NoError(t, tree.CheckInvariants())
}

func TestPathResolutionRoundTrips(t *testing.T) {
	tree := itree.New()
	dirID := addDir(t, tree, itree.Root, "foo")
	fileID := addFile(t, tree, dirID, "bar.txt", "peerA")

	in, err := tree.GetInodeFromPath("/foo/bar.txt")
	require.NoError(t, err)
	assert.Equal(t, fileID, in.ID)

	path, err := tree.GetPathFromInode(fileID)
	require.NoError(t, err)
	assert.Equal(t, "/foo/bar.txt", path)

	back, err := tree.GetInodeFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, fileID, back.ID)
	require.NoError(t, tree.CheckInvariants())
}

func TestAddInodeRejectsDuplicateName(t *testing.T) {
	tree := itree.New()
	addFile(t, tree, itree.Root, "dup.txt")

	id, err := tree.ReserveIno()
	require.NoError(t, err)
	err = tree.AddInode(itree.Inode{
		Parent: itree.Root,
		ID:     id,
		Name:   mustName(t, "dup.txt"),
		Entry:  itree.NewFileEntry(),
		Xattrs: map[string][]byte{},
	})
	assert.ErrorIs(t, err, wherrors.ErrAlreadyExist)
}

func TestAddInodeRejectsMissingParent(t *testing.T) {
	tree := itree.New()
	id, err := tree.ReserveIno()
	require.NoError(t, err)
	err = tree.AddInode(itree.Inode{Parent: 999, ID: id, Name: mustName(t, "x"), Entry: itree.NewFileEntry()})
	assert.ErrorIs(t, err, wherrors.ErrParentNotFound)
}

func TestAddInodeRejectsNonDirParent(t *testing.T) {
	tree := itree.New()
	fileID := addFile(t, tree, itree.Root, "leaf.txt")
	id, err := tree.ReserveIno()
	require.NoError(t, err)
	err = tree.AddInode(itree.Inode{Parent: fileID, ID: id, Name: mustName(t, "x"), Entry: itree.NewFileEntry()})
	assert.ErrorIs(t, err, wherrors.ErrParentNotFolder)
}

func TestRemoveInodeRejectsNonEmptyDir(t *testing.T) {
	tree := itree.New()
	dirID := addDir(t, tree, itree.Root, "d")
	addFile(t, tree, dirID, "f")

	err := tree.RemoveInode(dirID)
	assert.ErrorIs(t, err, wherrors.ErrNonEmpty)
}

func TestMvInodePreservesInoAcrossParents(t *testing.T) {
	tree := itree.New()
	a := addDir(t, tree, itree.Root, "a")
	b := addDir(t, tree, itree.Root, "b")
	fileID := addFile(t, tree, a, "x")

	require.NoError(t, tree.MvInode(a, b, mustName(t, "x"), mustName(t, "y")))

	_, err := tree.GetInodeFromPath("/a/x")
	assert.ErrorIs(t, err, wherrors.ErrNotFound)

	moved, err := tree.GetInodeFromPath("/b/y")
	require.NoError(t, err)
	assert.Equal(t, fileID, moved.ID)
	require.NoError(t, tree.CheckInvariants())
}

func TestMvInodeRejectsCollision(t *testing.T) {
	tree := itree.New()
	addFile(t, tree, itree.Root, "existing")
	addFile(t, tree, itree.Root, "source")

	err := tree.MvInode(itree.Root, itree.Root, mustName(t, "source"), mustName(t, "existing"))
	assert.ErrorIs(t, err, wherrors.ErrAlreadyExist)
}

func TestReservedNameResolvesAtRoot(t *testing.T) {
	tree := itree.New()
	require.NoError(t, tree.AddInode(itree.Inode{
		Parent: itree.Root,
		ID:     itree.GlobalConfigIno,
		Name:   mustName(t, itree.GlobalConfigName),
		Entry:  itree.NewFileEntry(),
		Xattrs: map[string][]byte{},
	}))

	in, err := tree.GetChildByName(itree.Root, mustName(t, itree.GlobalConfigName))
	require.NoError(t, err)
	assert.Equal(t, itree.GlobalConfigIno, in.ID)
}

func TestInoMonotonicityAcrossReserveAndCatchUp(t *testing.T) {
	tree := itree.New()
	first, err := tree.ReserveIno()
	require.NoError(t, err)
	assert.Equal(t, itree.FirstIno, first)

	require.NoError(t, tree.MarkReservedIno(first+50))
	next, err := tree.ReserveIno()
	require.NoError(t, err)
	assert.Equal(t, first+51, next)
}

func TestHostListMutationRejectsNonFile(t *testing.T) {
	tree := itree.New()
	dirID := addDir(t, tree, itree.Root, "d")
	err := tree.AddInodeHosts(dirID, "peerA")
	assert.ErrorIs(t, err, wherrors.ErrIsADirectory)
}

func TestHostListIsDedupedAndSorted(t *testing.T) {
	tree := itree.New()
	fileID := addFile(t, tree, itree.Root, "f", "peerB", "peerA", "peerA")
	in, err := tree.GetInode(fileID)
	require.NoError(t, err)
	assert.Equal(t, []itree.PeerID{"peerA", "peerB"}, in.Entry.Hosts())
}

func TestCleanLocalStripsLocalOnlyInode(t *testing.T) {
	tree := itree.New()
	require.NoError(t, tree.AddInode(itree.Inode{
		Parent: itree.Root,
		ID:     itree.LocalConfigIno,
		Name:   mustName(t, itree.LocalConfigName),
		Entry:  itree.NewFileEntry(),
		Xattrs: map[string][]byte{},
	}))
	addFile(t, tree, itree.Root, "shared.txt")

	clean, err := tree.CleanLocal()
	require.NoError(t, err)

	_, err = clean.GetInode(itree.LocalConfigIno)
	assert.ErrorIs(t, err, wherrors.ErrNotFound)

	root, err := clean.GetInode(itree.Root)
	require.NoError(t, err)
	for _, c := range root.Entry.Children() {
		assert.NotEqual(t, itree.LocalConfigIno, c)
	}
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	tree := itree.New()
	addDir(t, tree, itree.Root, "a")
	addFile(t, tree, itree.Root, "f", "peerA")

	data, err := tree.Marshal()
	require.NoError(t, err)

	restored, err := itree.Unmarshal(data)
	require.NoError(t, err)

	in, err := restored.GetInodeFromPath("/f")
	require.NoError(t, err)
	assert.Equal(t, []itree.PeerID{"peerA"}, in.Entry.Hosts())
}
