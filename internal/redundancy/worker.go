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

// Package redundancy implements the RedundancyWorker (spec.md §4.7): the
// background task that keeps replicas(file) >= R, retrying sends that
// timed out and sweeping the whole tree for drift on demand. It is
// grounded directly on original_source/src/pods/network/redundancy.rs,
// with the 512KiB MAX_SIZE_KEEP_RAM threshold, the PendingRedundancy
// retry bookkeeping, and the one-second retry tick carried over 1:1; the
// bounded-concurrency send fan-out uses golang.org/x/sync/semaphore in
// place of the original's tokio::sync::Semaphore, mirroring the teacher's
// own internal/workerpool bounded-concurrency idiom.
package redundancy

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/agartha-software/wormhole/cfg"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/logger"
	"github.com/agartha-software/wormhole/internal/metrics"
	"github.com/agartha-software/wormhole/internal/network"
)

// maxSizeKeepRAM is the literal MAX_SIZE_KEEP_RAM constant from the
// original: files smaller than this are cached in the pending entry so a
// retry doesn't have to re-read them from disk.
const maxSizeKeepRAM = 512 * 1024

// sendTimeout is how long a RedundancyFile send is given to be
// acknowledged before its peer is considered timed out (spec.md §4.7).
const sendTimeout = 10 * time.Second

// tickInterval is how often retryTimedOut runs (spec.md §4.7: "a
// background tick every second").
const tickInterval = time.Second

// FileSource is the narrow slice of FsInterface the worker needs: reading
// a file's current hosts and its bytes. wormholefs.Server implements this.
type FileSource interface {
	HostsOf(ino itree.Ino) ([]itree.PeerID, error)
	ReadWholeFile(ino itree.Ino) ([]byte, error)
	AllInodes() (map[itree.Ino]itree.FileKind, error)
}

// Command is the RedundancyMessage vocabulary of spec.md §4.7.
type Command struct {
	ApplyTo        itree.Ino
	CheckIntegrity bool
	UpdatedHosts   *updatedHosts
}

type updatedHosts struct {
	Ino   itree.Ino
	Hosts []itree.PeerID
}

// ApplyToCommand builds an ApplyTo(ino) command.
func ApplyToCommand(ino itree.Ino) Command { return Command{ApplyTo: ino} }

// CheckIntegrityCommand builds a CheckIntegrity command.
func CheckIntegrityCommand() Command { return Command{CheckIntegrity: true} }

// UpdatedHostsCommand builds an UpdatedHosts(ino, hosts) command, sent when
// NetworkInterface learns a file's host list changed (e.g. a peer
// acknowledged a RedundancyFile send outside this worker's own loop).
func UpdatedHostsCommand(ino itree.Ino, hosts []itree.PeerID) Command {
	return Command{UpdatedHosts: &updatedHosts{Ino: ino, Hosts: hosts}}
}

type pending struct {
	ino          itree.Ino
	cachedFile   []byte // nil if the file was too large to cache
	pendingSends map[itree.PeerID]time.Time
	hosts        []itree.PeerID
}

// resolve drops addresses from pendingSends that now appear in hosts,
// reporting whether nothing is left outstanding.
func (p *pending) resolve(hosts []itree.PeerID) bool {
	set := make(map[itree.PeerID]struct{}, len(hosts))
	for _, h := range hosts {
		set[h] = struct{}{}
	}
	for peer := range p.pendingSends {
		if _, ok := set[peer]; ok {
			delete(p.pendingSends, peer)
		}
	}
	return len(p.pendingSends) == 0
}

// Worker is the RedundancyWorker of spec.md §4.7.
type Worker struct {
	// Metrics is nil-safe; Pod sets it when a registry was supplied.
	Metrics *metrics.PodMetrics

	source  FileSource
	net     *network.Interface
	config  *cfg.GlobalGuard
	selfID  itree.PeerID
	queue   chan Command
	done    chan struct{}
	stopped chan struct{}

	mu      sync.Mutex
	pending map[itree.Ino]*pending
}

// New returns a Worker. Run must be called to start its background loop.
func New(source FileSource, net *network.Interface, config *cfg.GlobalGuard, self itree.PeerID) *Worker {
	return &Worker{
		source:  source,
		net:     net,
		config:  config,
		selfID:  self,
		queue:   make(chan Command, 256),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		pending: make(map[itree.Ino]*pending),
	}
}

// Enqueue posts a command to the worker without blocking the caller on its
// completion, matching the original's mpsc::UnboundedSender<RedundancyMessage>.
func (w *Worker) Enqueue(cmd Command) {
	select {
	case w.queue <- cmd:
	case <-w.done:
	}
}

// Stop ends the background loop and waits for it to exit.
func (w *Worker) Stop() {
	close(w.done)
	<-w.stopped
}

// Run is the worker's main loop: it drains Enqueue'd commands and, every
// tickInterval, retries timed-out sends. Run blocks until Stop is called;
// callers should run it in its own goroutine (spec.md §4.8 "spawn... the
// redundancy worker task").
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stopped)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case cmd := <-w.queue:
			w.handle(ctx, cmd)
		case <-ticker.C:
			w.retryTimedOut(ctx)
		}
	}
}

func (w *Worker) handle(ctx context.Context, cmd Command) {
	switch {
	case cmd.CheckIntegrity:
		w.checkIntegrity(ctx)
	case cmd.UpdatedHosts != nil:
		w.applyUpdatedHosts(cmd.UpdatedHosts.Ino, cmd.UpdatedHosts.Hosts)
	default:
		w.applyTo(ctx, cmd.ApplyTo)
	}
}

func (w *Worker) applyUpdatedHosts(ino itree.Ino, hosts []itree.PeerID) {
	w.mu.Lock()
	defer w.mu.Unlock()
	p, ok := w.pending[ino]
	if !ok {
		return
	}
	p.hosts = append([]itree.PeerID(nil), hosts...)
	if p.resolve(hosts) {
		delete(w.pending, ino)
	}
}

func (w *Worker) redundancyTarget() int {
	gc, err := w.config.Get()
	if err != nil {
		return cfg.DefaultRedundancy
	}
	if gc.Redundancy.Number <= 0 {
		return cfg.DefaultRedundancy
	}
	return gc.Redundancy.Number
}

// checkIntegrity iterates every File inode and applies redundancy to any
// under target, spec.md §4.7's "CheckIntegrity iterates every File inode".
func (w *Worker) checkIntegrity(ctx context.Context) {
	kinds, err := w.source.AllInodes()
	if err != nil {
		logger.Errorf("redundancy: can't enumerate inodes: %v", err)
		return
	}
	target := w.redundancyTarget()
	under := 0
	for ino, kind := range kinds {
		if kind != itree.KindFile {
			continue
		}
		hosts, err := w.source.HostsOf(ino)
		if err != nil {
			continue
		}
		if len(hosts) < target {
			under++
			w.applyTo(ctx, ino)
		}
	}
	w.Metrics.SetFilesUnderTarget(under)
}

// applyTo is the ApplyTo(ino) algorithm of spec.md §4.7: determine hosts
// and R, pick candidates among connected peers that don't already have the
// file, and fan sends out with bounded concurrency.
func (w *Worker) applyTo(ctx context.Context, ino itree.Ino) {
	w.mu.Lock()
	existing, retrying := w.pending[ino]
	w.mu.Unlock()

	if retrying {
		w.retryOne(ctx, existing)
		return
	}

	hosts, err := w.source.HostsOf(ino)
	if err != nil {
		logger.Errorf("redundancy: hosts_of(%d): %v", ino, err)
		return
	}
	target := w.redundancyTarget()
	needed := target - len(hosts)
	if needed <= 0 {
		return
	}

	allPeers, err := w.net.Peers()
	if err != nil {
		logger.Errorf("redundancy: peers: %v", err)
		return
	}
	candidates := excludingHosts(asPeerIDs(allPeers), hosts)
	if len(candidates) == 0 {
		logger.Warnf("redundancy: %d below target and no eligible peers", ino)
		return
	}

	data, err := w.source.ReadWholeFile(ino)
	if err != nil {
		logger.Errorf("redundancy: read %d: %v", ino, err)
		return
	}

	sent, acked := w.pushRedundancy(ctx, ino, data, candidates, needed)
	p := &pending{ino: ino, hosts: append([]itree.PeerID(nil), hosts...), pendingSends: sent}
	if len(data) < maxSizeKeepRAM {
		p.cachedFile = data
	}
	w.mu.Lock()
	w.pending[ino] = p
	w.mu.Unlock()

	if len(acked) > 0 {
		w.net.Broadcast(ctx, editHostsMessage(ino, append(append([]itree.PeerID(nil), hosts...), acked...)))
	}
}

func (w *Worker) retryOne(ctx context.Context, p *pending) {
	now := time.Now()
	w.mu.Lock()
	stillPending := 0
	for peer, deadline := range p.pendingSends {
		if deadline.After(now) {
			stillPending++
		} else {
			delete(p.pendingSends, peer)
		}
	}
	target := w.redundancyTarget()
	needed := target - (len(p.hosts) + stillPending)
	if needed <= 0 {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	allPeers, err := w.net.Peers()
	if err != nil {
		return
	}
	exclude := append(append([]itree.PeerID(nil), p.hosts...), peerIDsOf(p.pendingSends)...)
	candidates := excludingHosts(asPeerIDs(allPeers), exclude)
	if len(candidates) == 0 {
		logger.Warnf("redundancy: %d still below target, no eligible peers", p.ino)
		return
	}

	data := p.cachedFile
	if data == nil {
		data, err = w.source.ReadWholeFile(p.ino)
		if err != nil {
			logger.Errorf("redundancy: re-read %d: %v", p.ino, err)
			return
		}
	}

	sent, acked := w.pushRedundancy(ctx, p.ino, data, candidates, needed)
	for i := 0; i < len(sent)+len(acked); i++ {
		w.Metrics.IncRedundancyRetry()
	}
	w.mu.Lock()
	for peer, deadline := range sent {
		p.pendingSends[peer] = deadline
	}
	w.mu.Unlock()

	if len(acked) > 0 {
		w.net.Broadcast(ctx, editHostsMessage(p.ino, append(append([]itree.PeerID(nil), p.hosts...), acked...)))
	}
}

// retryTimedOut re-issues sends whose tombstones have expired, for every
// tracked file (spec.md §4.7's once-a-second tick).
func (w *Worker) retryTimedOut(ctx context.Context) {
	w.mu.Lock()
	all := make([]*pending, 0, len(w.pending))
	for _, p := range w.pending {
		all = append(all, p)
	}
	w.mu.Unlock()

	for _, p := range all {
		w.retryOne(ctx, p)
	}
}

// pushRedundancy concurrently sends RedundancyFile to up to needed
// candidates via a bounded-concurrency semaphore (spec.md §4.7 step 4),
// returning the peers whose send did not succeed (with their retry
// deadline) and, separately, the peers that acknowledged before
// pushRedundancy returned; the two do not overlap.
func (w *Worker) pushRedundancy(ctx context.Context, ino itree.Ino, data []byte, candidates []itree.PeerID, needed int) (map[itree.PeerID]time.Time, []itree.PeerID) {
	if needed > len(candidates) {
		needed = len(candidates)
	}
	sem := semaphore.NewWeighted(int64(needed))
	deadline := time.Now().Add(sendTimeout)

	var mu sync.Mutex
	sent := make(map[itree.PeerID]time.Time, needed)
	var acked []itree.PeerID
	var wg sync.WaitGroup

	for _, peer := range candidates[:needed] {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(peer itree.PeerID) {
			defer wg.Done()
			defer sem.Release(1)

			msg := network.Message{Kind: network.KindRedundancyFile, Ino: ino, Data: data}
			_, err := w.net.SendAndAwait(ctx, network.Address(peer), msg)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// No ack within AckTimeout: track it for retryTimedOut rather
				// than dropping it, matching the original's "timeout" bucket.
				sent[peer] = deadline
				return
			}
			acked = append(acked, peer)
		}(peer)
	}
	wg.Wait()
	return sent, acked
}

func editHostsMessage(ino itree.Ino, hosts []itree.PeerID) network.Message {
	return network.Message{Kind: network.KindEditHosts, Ino: ino, Hosts: hosts}
}

func excludingHosts(all, exclude []itree.PeerID) []itree.PeerID {
	skip := make(map[itree.PeerID]struct{}, len(exclude))
	for _, h := range exclude {
		skip[h] = struct{}{}
	}
	out := make([]itree.PeerID, 0, len(all))
	for _, a := range all {
		if _, ok := skip[a]; !ok {
			out = append(out, a)
		}
	}
	return out
}

func asPeerIDs(addrs []network.Address) []itree.PeerID {
	out := make([]itree.PeerID, len(addrs))
	for i, a := range addrs {
		out[i] = itree.PeerID(a)
	}
	return out
}

func peerIDsOf(m map[itree.PeerID]time.Time) []itree.PeerID {
	out := make([]itree.PeerID, 0, len(m))
	for p := range m {
		out = append(out, p)
	}
	return out
}
