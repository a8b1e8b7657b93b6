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

package network_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/network"
)

func TestPullDeduplicatesConcurrentCalls(t *testing.T) {
	c := network.NewCallbacks()
	var calls int32

	fetch := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("data"), nil
	}

	results := make(chan []byte, 8)
	for i := 0; i < 8; i++ {
		go func() {
			data, err := c.Pull(itree.Ino(1), fetch)
			require.NoError(t, err)
			results <- data
		}()
	}

	for i := 0; i < 8; i++ {
		assert.Equal(t, []byte("data"), <-results)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestPullIsIndependentPerIno(t *testing.T) {
	c := network.NewCallbacks()
	var calls int32
	fetch := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("x"), nil
	}

	_, err := c.Pull(itree.Ino(1), fetch)
	require.NoError(t, err)
	_, err = c.Pull(itree.Ino(2), fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGetSignatureIsKeyedByPeerToo(t *testing.T) {
	c := network.NewCallbacks()
	var calls int32
	fetch := func() ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return []byte("sig"), nil
	}

	_, err := c.GetSignature(itree.Ino(1), "peerA", fetch)
	require.NoError(t, err)
	_, err = c.GetSignature(itree.Ino(1), "peerB", fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
