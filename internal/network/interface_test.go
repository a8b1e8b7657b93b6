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
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/network"
)

// wirePeers connects iface's side of a pipe to addr, and returns the other
// side as a bare PeerConnection the test drives directly, simulating a
// remote peer without any real transport.
func wirePeers(t *testing.T, iface *network.Interface, addr network.Address) *network.PeerConnection {
	t.Helper()
	c1, c2 := net.Pipe()
	local := network.NewPeerConnection("", addr, c1)
	remote := network.NewPeerConnection("", addr, c2)
	require.NoError(t, iface.AddPeer(local))
	return remote
}

func TestBroadcastReachesAllPeers(t *testing.T) {
	iface := network.NewInterface("self")
	remoteA := wirePeers(t, iface, "peerA")
	remoteB := wirePeers(t, iface, "peerB")

	msg := network.Message{Kind: network.KindFileChanged, Ino: itree.Ino(3)}
	require.NoError(t, iface.Broadcast(context.Background(), msg))

	gotA, err := remoteA.Recv()
	require.NoError(t, err)
	assert.Equal(t, msg, gotA)

	gotB, err := remoteB.Recv()
	require.NoError(t, err)
	assert.Equal(t, msg, gotB)
}

func TestSendToOnlyReachesNamedPeer(t *testing.T) {
	iface := network.NewInterface("self")
	remoteA := wirePeers(t, iface, "peerA")
	_ = wirePeers(t, iface, "peerB")

	msg := network.Message{Kind: network.KindRemove, Ino: itree.Ino(5)}
	require.NoError(t, iface.SendTo(context.Background(), msg, []network.Address{"peerA"}))

	got, err := remoteA.Recv()
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestSendAndAwaitReturnsMatchingReply(t *testing.T) {
	iface := network.NewInterface("self")
	remote := wirePeers(t, iface, "peerA")

	go func() {
		req, err := remote.Recv()
		require.NoError(t, err)
		assert.Equal(t, network.KindDeltaRequest, req.Kind)
		_ = remote.Send(context.Background(), network.Message{Kind: network.KindFileDelta, Ino: req.Ino, RequestID: req.RequestID, IsReply: true})
	}()

	reply, err := iface.SendAndAwait(context.Background(), "peerA", network.Message{Kind: network.KindDeltaRequest, Ino: 9})
	require.NoError(t, err)
	assert.Equal(t, network.KindFileDelta, reply.Kind)
	assert.Equal(t, itree.Ino(9), reply.Ino)
}

// TestSendAndAwaitIsNotStolenByInboundReader reproduces the shared-channel
// race a single Inbound consumer used to be vulnerable to: a concurrent
// reader draining Inbound (standing in for dispatchLoop) must never see the
// reply a SendAndAwait caller is waiting on, and SendAndAwait must never
// see unrelated Inbound traffic.
func TestSendAndAwaitIsNotStolenByInboundReader(t *testing.T) {
	iface := network.NewInterface("self")
	remote := wirePeers(t, iface, "peerA")

	var drained []network.Message
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range iface.Inbound() {
			mu.Lock()
			drained = append(drained, msg.Content)
			mu.Unlock()
		}
	}()

	go func() {
		req, err := remote.Recv()
		require.NoError(t, err)
		// Unsolicited traffic arrives first, racing the eventual reply.
		_ = remote.Send(context.Background(), network.Message{Kind: network.KindEditHosts, Ino: 1})
		_ = remote.Send(context.Background(), network.Message{Kind: network.KindFileDelta, Ino: req.Ino, RequestID: req.RequestID, IsReply: true})
	}()

	reply, err := iface.SendAndAwait(context.Background(), "peerA", network.Message{Kind: network.KindDeltaRequest, Ino: 9})
	require.NoError(t, err)
	assert.Equal(t, network.KindFileDelta, reply.Kind)
	assert.Equal(t, itree.Ino(9), reply.Ino)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(drained) == 1
	}, time.Second, 10*time.Millisecond)
	mu.Lock()
	assert.Equal(t, network.KindEditHosts, drained[0].Kind)
	mu.Unlock()
}

// TestInboundRequestWithCollidingIDIsNotTreatedAsReply covers the id-space
// collision between independent per-peer counters: a *request* arriving from
// the remote may carry a RequestID equal to one of our own outstanding calls,
// and must still be dispatched as inbound traffic rather than handed to the
// SendAndAwait waiter.
func TestInboundRequestWithCollidingIDIsNotTreatedAsReply(t *testing.T) {
	iface := network.NewInterface("self")
	remote := wirePeers(t, iface, "peerA")

	go func() {
		req, err := remote.Recv()
		require.NoError(t, err)
		// The remote's own counter happens to produce the same id for a
		// request of its own before it answers ours.
		_ = remote.Send(context.Background(), network.Message{Kind: network.KindRequestFile, Ino: 4, RequestID: req.RequestID})
		_ = remote.Send(context.Background(), network.Message{Kind: network.KindRequestedFile, Ino: req.Ino, RequestID: req.RequestID, IsReply: true})
	}()

	reply, err := iface.SendAndAwait(context.Background(), "peerA", network.Message{Kind: network.KindRequestFile, Ino: 9})
	require.NoError(t, err)
	assert.Equal(t, network.KindRequestedFile, reply.Kind)
	assert.Equal(t, itree.Ino(9), reply.Ino)

	select {
	case got := <-iface.Inbound():
		assert.Equal(t, network.KindRequestFile, got.Content.Kind)
		assert.Equal(t, itree.Ino(4), got.Content.Ino)
	case <-time.After(time.Second):
		t.Fatal("colliding inbound request never reached Inbound")
	}
}

func TestPeersListsConnectedAddresses(t *testing.T) {
	iface := network.NewInterface("self")
	wirePeers(t, iface, "peerA")
	wirePeers(t, iface, "peerB")

	peers, err := iface.Peers()
	require.NoError(t, err)
	assert.ElementsMatch(t, []network.Address{"peerA", "peerB"}, peers)
}

func TestDisconnectPeerRemovesItFromPeers(t *testing.T) {
	iface := network.NewInterface("self")
	remote := wirePeers(t, iface, "peerA")

	done := make(chan struct{})
	go func() {
		_, _ = remote.Recv()
		close(done)
	}()

	require.NoError(t, iface.DisconnectPeer(context.Background(), "peerA"))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("remote never saw disconnect notice")
	}

	peers, err := iface.Peers()
	require.NoError(t, err)
	assert.Empty(t, peers)
}
