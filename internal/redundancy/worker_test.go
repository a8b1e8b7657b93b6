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

package redundancy_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agartha-software/wormhole/cfg"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/network"
	"github.com/agartha-software/wormhole/internal/redundancy"
)

// fakeSource is a minimal redundancy.FileSource double.
type fakeSource struct {
	mu    sync.Mutex
	hosts map[itree.Ino][]itree.PeerID
	files map[itree.Ino][]byte
	kinds map[itree.Ino]itree.FileKind
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		hosts: map[itree.Ino][]itree.PeerID{},
		files: map[itree.Ino][]byte{},
		kinds: map[itree.Ino]itree.FileKind{},
	}
}

func (f *fakeSource) HostsOf(ino itree.Ino) ([]itree.PeerID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]itree.PeerID(nil), f.hosts[ino]...), nil
}

func (f *fakeSource) ReadWholeFile(ino itree.Ino) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.files[ino], nil
}

func (f *fakeSource) AllInodes() (map[itree.Ino]itree.FileKind, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[itree.Ino]itree.FileKind, len(f.kinds))
	for k, v := range f.kinds {
		out[k] = v
	}
	return out, nil
}

func newGuard(n int) *cfg.GlobalGuard {
	return cfg.NewGlobalGuard(cfg.GlobalConfig{Redundancy: cfg.Redundancy{Number: n}})
}

func TestApplyToWithNoPeersLogsAndReturns(t *testing.T) {
	source := newFakeSource()
	source.hosts[1] = []itree.PeerID{"self"}
	source.files[1] = []byte("data")

	iface := network.NewInterface("self")
	w := redundancy.New(source, iface, newGuard(2), "self")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	w.Enqueue(redundancy.ApplyToCommand(1))
	time.Sleep(20 * time.Millisecond)

	w.Stop()
	<-done
}

func TestCheckIntegritySkipsFilesAtTarget(t *testing.T) {
	source := newFakeSource()
	source.kinds[1] = itree.KindFile
	source.hosts[1] = []itree.PeerID{"a", "b"}

	iface := network.NewInterface("self")
	w := redundancy.New(source, iface, newGuard(2), "self")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	w.Enqueue(redundancy.CheckIntegrityCommand())
	time.Sleep(20 * time.Millisecond)

	w.Stop()
	<-done
}

func TestStopEndsRunLoop(t *testing.T) {
	source := newFakeSource()
	iface := network.NewInterface("self")
	w := redundancy.New(source, iface, newGuard(2), "self")

	done := make(chan struct{})
	go func() { w.Run(context.Background()); close(done) }()

	w.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Stop")
	}
}

func TestUpdatedHostsCommandDoesNotPanicWithoutPending(t *testing.T) {
	source := newFakeSource()
	iface := network.NewInterface("self")
	w := redundancy.New(source, iface, newGuard(2), "self")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()

	require.NotPanics(t, func() {
		w.Enqueue(redundancy.UpdatedHostsCommand(42, []itree.PeerID{"a"}))
	})
	time.Sleep(10 * time.Millisecond)

	w.Stop()
	<-done
	assert.True(t, true)
}
