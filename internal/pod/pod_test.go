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

package pod_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/internal/handle"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/pod"
)

// dialAddr returns a full libp2p multiaddr (including the /p2p/<peerID>
// suffix) that another Pod's Transport.Connect can dial into p, the
// address shape pod.Join's Entrypoints expects (spec.md §4.8).
func dialAddr(t *testing.T, p *pod.Pod) string {
	t.Helper()
	info := peer.AddrInfo{ID: p.Transport.Host.ID(), Addrs: p.Transport.Host.Addrs()}
	addrs, err := peer.AddrInfoToP2pAddrs(&info)
	require.NoError(t, err)
	require.NotEmpty(t, addrs)
	return addrs[0].String()
}

func TestNewFromScratchStartsAndStops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := pod.NewFromScratch(ctx, pod.Options{
		Name:     "alpha",
		Hostname: "alpha-host",
		Registry: prometheus.NewRegistry(),
		MountFS:  false,
	})
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, "alpha", p.Name)
	assert.Empty(t, p.Peers())

	require.NoError(t, p.Stop(ctx))
}

func TestNewFromScratchCreatesRootInode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := pod.NewFromScratch(ctx, pod.Options{
		Name:     "beta",
		Hostname: "beta-host",
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer p.Stop(ctx)

	root, err := p.Tree.GetInode(itree.Root)
	require.NoError(t, err)
	assert.Equal(t, itree.Root, root.ID)
}

// TestNewFromScratchIndexesExistingMountDirectory covers the scratch-start
// branch for a mount directory that already holds data but no snapshot:
// pre-existing files must come up in the tree instead of being orphaned.
func TestNewFromScratchIndexesExistingMountDirectory(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.txt"), []byte("abc"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	p, err := pod.NewFromScratch(ctx, pod.Options{
		Name:       "delta",
		Hostname:   "delta-host",
		MountPoint: dir,
		Registry:   prometheus.NewRegistry(),
		MountFS:    false,
	})
	require.NoError(t, err)
	defer p.Stop(ctx)

	kept, err := p.Tree.GetInodeFromPath("/kept.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), kept.Meta.Size)
	assert.Equal(t, []itree.PeerID{"delta-host"}, kept.Entry.Hosts())

	sub, err := p.Tree.GetInodeFromPath("/sub")
	require.NoError(t, err)
	assert.Equal(t, itree.KindDirectory, sub.Meta.Kind)
}

func TestStopPersistsSnapshotToDisk(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p, err := pod.NewFromScratch(ctx, pod.Options{
		Name:     "gamma",
		Hostname: "gamma-host",
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	require.NoError(t, p.Stop(ctx))

	exists, err := p.Disk.FileExists(itree.TreeSnapshotName)
	require.NoError(t, err)
	assert.True(t, exists)
}

// TestJoinReceivesTreeSnapshotAndRegistersPeer drives the join handshake
// of spec.md §4.8 end to end over a real loopback libp2p connection: a
// fresh Pod dials an existing one's entrypoint, and the entrypoint must
// answer with a KindFsAnswer carrying its ITree snapshot rather than
// leaving the joiner's read blocked forever.
func TestJoinReceivesTreeSnapshotAndRegistersPeer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	host, err := pod.NewFromScratch(ctx, pod.Options{
		Name:       "host",
		Hostname:   "host-peer",
		ListenAddr: "/ip4/127.0.0.1/tcp/0",
		Registry:   prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer host.Stop(ctx)

	mkFile(t, host)

	joiner, err := pod.Join(ctx, pod.Options{
		Name:        "joiner",
		Hostname:    "joiner-peer",
		ListenAddr:  "/ip4/127.0.0.1/tcp/0",
		Entrypoints: []string{dialAddr(t, host)},
		Registry:    prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	defer joiner.Stop(ctx)

	root, err := joiner.Tree.GetInode(itree.Root)
	require.NoError(t, err)
	assert.Equal(t, itree.Root, root.ID)

	_, err = joiner.Tree.GetChildByName(itree.Root, "greeting")
	assert.NoError(t, err)

	require.Eventually(t, func() bool {
		hostPeers, err := host.Net.Peers()
		if err != nil {
			return false
		}
		joinerPeers, err := joiner.Net.Peers()
		if err != nil {
			return false
		}
		return len(hostPeers) == 1 && len(joinerPeers) == 1
	}, 5*time.Second, 50*time.Millisecond)
}

func mkFile(t *testing.T, p *pod.Pod) {
	t.Helper()
	_, _, err := p.FS.Create(context.Background(), itree.Root, "greeting", itree.KindFile, handle.OpenFlags{}, 0o644)
	require.NoError(t, err)
}
