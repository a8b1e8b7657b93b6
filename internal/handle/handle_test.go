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

package handle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/delta"
	"github.com/agartha-software/wormhole/internal/handle"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/wherrors"
)

func TestOpenThenGetReturnsRegisteredState(t *testing.T) {
	m := handle.New()
	sig := delta.NewSignature([]byte("hello"))

	id, err := m.Open(itree.Ino(42), handle.Write, handle.OpenFlags{}, sig)
	require.NoError(t, err)

	h, err := m.Get(id)
	require.NoError(t, err)
	assert.Equal(t, itree.Ino(42), h.Ino)
	assert.Equal(t, handle.Write, h.Mode)
	assert.False(t, h.Dirty)
	assert.True(t, sig.Equal(h.BaseSignature))
}

func TestOpenWithTruncateFlagStartsDirty(t *testing.T) {
	m := handle.New()
	id, err := m.Open(itree.Ino(1), handle.Write, handle.OpenFlags{Truncate: true}, delta.Signature{})
	require.NoError(t, err)

	h, err := m.Get(id)
	require.NoError(t, err)
	assert.True(t, h.Dirty)
}

func TestGetUnknownHandleReturnsErrNoHandle(t *testing.T) {
	m := handle.New()
	_, err := m.Get(handle.ID{})
	assert.ErrorIs(t, err, wherrors.ErrNoHandle)
}

func TestMarkDirtyThenUpdateSignatureClearsDirty(t *testing.T) {
	m := handle.New()
	id, err := m.Open(itree.Ino(1), handle.Write, handle.OpenFlags{}, delta.Signature{})
	require.NoError(t, err)

	require.NoError(t, m.MarkDirty(id))
	h, err := m.Get(id)
	require.NoError(t, err)
	assert.True(t, h.Dirty)

	newSig := delta.NewSignature([]byte("updated"))
	require.NoError(t, m.UpdateSignature(id, newSig))

	h, err = m.Get(id)
	require.NoError(t, err)
	assert.False(t, h.Dirty)
	assert.True(t, newSig.Equal(h.BaseSignature))
}

func TestReleaseReportsDirtyAndRemovesHandle(t *testing.T) {
	m := handle.New()
	id, err := m.Open(itree.Ino(1), handle.Write, handle.OpenFlags{}, delta.Signature{})
	require.NoError(t, err)
	require.NoError(t, m.MarkDirty(id))

	needsFlush, err := m.Release(id)
	require.NoError(t, err)
	assert.True(t, needsFlush)

	_, err = m.Get(id)
	assert.ErrorIs(t, err, wherrors.ErrNoHandle)
}

func TestReleaseOfCleanHandleDoesNotRequestFlush(t *testing.T) {
	m := handle.New()
	id, err := m.Open(itree.Ino(1), handle.Read, handle.OpenFlags{}, delta.Signature{})
	require.NoError(t, err)

	needsFlush, err := m.Release(id)
	require.NoError(t, err)
	assert.False(t, needsFlush)
}

func TestDeriveAccessModePrioritizesExecuteThenWrite(t *testing.T) {
	assert.Equal(t, handle.Execute, handle.DeriveAccessMode(true, true, true))
	assert.Equal(t, handle.Write, handle.DeriveAccessMode(true, true, false))
	assert.Equal(t, handle.Read, handle.DeriveAccessMode(true, false, false))
}
