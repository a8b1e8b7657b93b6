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

package disk_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/disk"
)

func TestNewFileThenWriteThenReadRoundTrips(t *testing.T) {
	m := disk.NewMemManager()
	require.NoError(t, m.NewFile("/a.txt", 0o644))

	n, err := m.WriteFile("/a.txt", []byte("hello wormhole"), 0)
	require.NoError(t, err)
	assert.Equal(t, len("hello wormhole"), n)

	buf := make([]byte, len("hello wormhole"))
	n, err = m.ReadFile("/a.txt", 0, buf)
	require.NoError(t, err)
	assert.Equal(t, len(buf), n)
	assert.Equal(t, "hello wormhole", string(buf))
}

func TestNewFileRejectsDuplicate(t *testing.T) {
	m := disk.NewMemManager()
	require.NoError(t, m.NewFile("/a.txt", 0o644))
	err := m.NewFile("/a.txt", 0o644)
	assert.Error(t, err)
}

func TestNewDirAndRemoveDir(t *testing.T) {
	m := disk.NewMemManager()
	require.NoError(t, m.NewDir("/sub", 0o755))

	exists, err := m.FileExists("/sub")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, m.RemoveDir("/sub"))
	exists, err = m.FileExists("/sub")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSetFileSizeTruncatesAndExtends(t *testing.T) {
	m := disk.NewMemManager()
	require.NoError(t, m.NewFile("/f", 0o644))
	_, err := m.WriteFile("/f", []byte("0123456789"), 0)
	require.NoError(t, err)

	require.NoError(t, m.SetFileSize("/f", 4))
	buf := make([]byte, 4)
	n, err := m.ReadFile("/f", 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(buf[:n]))
}

func TestMvFileRenames(t *testing.T) {
	m := disk.NewMemManager()
	require.NoError(t, m.NewFile("/old", 0o644))
	require.NoError(t, m.MvFile("/old", "/new"))

	exists, err := m.FileExists("/old")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = m.FileExists("/new")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSetPermissionsOnExistingFileSucceeds(t *testing.T) {
	m := disk.NewMemManager()
	require.NoError(t, m.NewFile("/f", 0o600))
	require.NoError(t, m.SetPermissions("/f", 0o640))
}

func TestOSManagerCreatesRealSymlink(t *testing.T) {
	dir := t.TempDir()
	m := disk.NewOSManager(dir)
	require.NoError(t, m.NewFile("/a.txt", 0o644))
	require.NoError(t, m.NewSymlink("/link", 0o777, "a.txt"))

	fi, err := os.Lstat(filepath.Join(dir, "link"))
	require.NoError(t, err)
	assert.NotZero(t, fi.Mode()&os.ModeSymlink)

	target, err := os.Readlink(filepath.Join(dir, "link"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", target)

	require.NoError(t, m.RemoveSymlink("/link"))
	_, err = os.Lstat(filepath.Join(dir, "link"))
	assert.True(t, os.IsNotExist(err))
}

func TestSymlinkWithoutNativeSupportStoresTarget(t *testing.T) {
	m := disk.NewMemManager()
	require.NoError(t, m.NewSymlink("/link", 0o777, "/f"))

	buf := make([]byte, len("/f"))
	n, err := m.ReadFile("/link", 0, buf)
	require.NoError(t, err)
	assert.Equal(t, "/f", string(buf[:n]))
}

func TestMemManagerReportsUnboundedSize(t *testing.T) {
	m := disk.NewMemManager()
	info, err := m.SizeInfoOf()
	require.NoError(t, err)
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), info.Free)
}

func TestOSManagerSizeInfoOfReflectsHostFilesystem(t *testing.T) {
	dir := t.TempDir()
	m := disk.NewOSManager(dir)

	require.NoError(t, m.NewFile("/f", 0o644))
	_, err := m.WriteFile("/f", []byte("abc"), 0)
	require.NoError(t, err)

	info, err := m.SizeInfoOf()
	require.NoError(t, err)
	assert.Greater(t, info.Total, uint64(0))

	data, err := os.ReadFile(dir + "/f")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(data))
}

func TestStopIsANoOp(t *testing.T) {
	m := disk.NewMemManager()
	assert.NoError(t, m.Stop())
}
