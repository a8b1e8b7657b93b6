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

package delta_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/delta"
)

func randomBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func TestPatchRoundTripsForSmallLocalizedChange(t *testing.T) {
	base := randomBytes(7830, 1)
	target := append([]byte(nil), base...)
	change := randomBytes(1057, 2)
	copy(target[2630:2630+len(change)], change)

	sig := delta.NewSignature(base)
	d := delta.Diff(sig, target)
	got := delta.Patch(base, d)

	assert.Equal(t, target, got)
}

func TestPatchRoundTripsForEmptyBase(t *testing.T) {
	target := randomBytes(100, 3)
	sig := delta.NewSignature(nil)
	d := delta.Diff(sig, target)
	got := delta.Patch(nil, d)
	assert.Equal(t, target, got)
}

func TestPatchRoundTripsForIdenticalContent(t *testing.T) {
	base := randomBytes(9000, 4)
	sig := delta.NewSignature(base)
	d := delta.Diff(sig, base)
	got := delta.Patch(base, d)
	assert.Equal(t, base, got)
}

// TestDiffResynchronizesAfterPrefixInsertion guards the rolling scan: a few
// bytes prepended shift every block off its alignment, so copies can only be
// found by rolling the weak checksum byte-by-byte until it lands back on a
// known block. A broken roll still round-trips (everything becomes literal
// data), which is why the delta's encoded size is asserted too.
func TestDiffResynchronizesAfterPrefixInsertion(t *testing.T) {
	base := randomBytes(8192, 7)
	target := append([]byte("hdr"), base...)

	sig := delta.NewSignature(base)
	d := delta.Diff(sig, target)
	got := delta.Patch(base, d)
	require.Equal(t, target, got)

	encoded, err := d.MarshalBinary()
	require.NoError(t, err)
	assert.Less(t, len(encoded), len(target)/2)
}

func TestSignatureEqualDetectsDrift(t *testing.T) {
	a := delta.NewSignature([]byte("hello world"))
	b := delta.NewSignature([]byte("hello world"))
	c := delta.NewSignature([]byte("hello wormhole"))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
}

func TestDeltaMarshalUnmarshalRoundTrip(t *testing.T) {
	base := randomBytes(5000, 5)
	target := append([]byte(nil), base...)
	copy(target[100:200], randomBytes(100, 6))

	sig := delta.NewSignature(base)
	d := delta.Diff(sig, target)

	data, err := d.MarshalBinary()
	require.NoError(t, err)

	var restored delta.Delta
	require.NoError(t, restored.UnmarshalBinary(data))

	got := delta.Patch(base, restored)
	assert.Equal(t, target, got)
}
