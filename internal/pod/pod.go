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

// Package pod implements the composition root of spec.md §4.8: one Pod
// owns a mount's ITree, DiskManager, NetworkInterface, FileHandleManager,
// and RedundancyWorker, and carries them through a start/stop lifecycle.
// It is grounded on original_source/src/pods/pod.rs for the lifecycle
// shape and on the teacher's cmd/mount.go/cmd/legacy_main.go for the
// goroutine-per-background-task wiring style (fs/garbage_collect.go's
// spawn-with-cancel pattern, generalized to four tasks instead of one).
package pod

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/agartha-software/wormhole/cfg"
	"github.com/agartha-software/wormhole/internal/disk"
	"github.com/agartha-software/wormhole/internal/handle"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/logger"
	"github.com/agartha-software/wormhole/internal/metrics"
	"github.com/agartha-software/wormhole/internal/mount"
	"github.com/agartha-software/wormhole/internal/network"
	"github.com/agartha-software/wormhole/internal/redundancy"
	"github.com/agartha-software/wormhole/internal/wormholefs"
)

// PeerInfo is spec.md §3's PeerInfo record: the bookkeeping a Pod keeps
// about every peer it has dialed or been dialed by, surfaced through the
// service's pod summary.
type PeerInfo struct {
	PeerID   itree.PeerID
	Nickname string
	DialURL  string
	Metrics  PeerMetrics
}

// PeerMetrics is the small counter set PeerInfo.Metrics carries; nothing in
// the core requires more than these today.
type PeerMetrics struct {
	BytesSent     uint64
	BytesReceived uint64
}

// Options configures a Pod's construction, covering both the scratch and
// join paths of spec.md §4.8.
type Options struct {
	Name        string
	MountPoint  string
	ListenAddr  string
	Hostname    itree.PeerID
	PublicURL   string
	Entrypoints []string // non-empty selects the join path
	Registry    prometheus.Registerer
	MountFS     bool // false skips the kernel mount (used by in-memory tests)
}

// Pod owns one mount and every core component spec.md §2 enumerates,
// matching the "Pod (composition and lifecycle)" row of its component
// table.
type Pod struct {
	Name string

	// MountPoint is the kernel-visible mount directory; "" for in-memory
	// pods that never mount.
	MountPoint string

	Tree       *itree.ITree
	Disk       disk.Manager
	Handles    *handle.Manager
	Net        *network.Interface
	Transport  *network.Transport
	Redundancy *redundancy.Worker
	FS         *wormholefs.Server
	GlobalCfg  *cfg.GlobalGuard
	LocalCfg   *cfg.LocalGuard
	Metrics    *metrics.PodMetrics
	self       itree.PeerID

	mounted *mount.Mounted

	peersMu sync.RWMutex
	peers   map[itree.PeerID]*PeerInfo

	group  *errgroup.Group
	cancel context.CancelFunc
}

// NewFromScratch builds a Pod starting a brand-new network on an empty (or
// previously-used) mount directory: spec.md §4.8's scratch path. It loads
// the serialized .itree snapshot if DiskManager already has one (a restart
// of a previously-stopped Pod), otherwise indexes the mount directory's
// existing contents.
func NewFromScratch(ctx context.Context, opts Options) (*Pod, error) {
	d := disk.NewOSManager(opts.MountPoint)
	if opts.MountPoint == "" {
		d = disk.NewMemManager()
	}

	tree, err := loadOrInitTree(d, opts.MountPoint, opts.Hostname)
	if err != nil {
		return nil, err
	}

	global := cfg.NewGlobalGuard(cfg.DefaultGlobalConfig(opts.Name))
	local := cfg.NewLocalGuard(cfg.LocalConfig{General: cfg.LocalGeneral{
		Hostname: string(opts.Hostname), PublicURL: opts.PublicURL,
	}})

	p, err := newPod(opts, tree, d, global, local)
	if err != nil {
		return nil, err
	}
	if err := p.start(ctx, opts); err != nil {
		return nil, err
	}
	return p, nil
}

// Join builds a Pod that joins an existing network: spec.md §4.8's join
// path. It dials opts.Entrypoints in order, performs the "connect"
// handshake with the first one that succeeds, and seeds its ITree/
// GlobalConfig from the FsAnswer reply before waving to every other peer
// the entrypoint named.
func Join(ctx context.Context, opts Options) (*Pod, error) {
	if len(opts.Entrypoints) == 0 {
		return nil, fmt.Errorf("pod: Join requires at least one entrypoint")
	}

	iface := network.NewInterface(network.Address(opts.Hostname))
	transport, err := network.NewTransport(ctx, opts.ListenAddr, iface)
	if err != nil {
		return nil, err
	}

	var (
		pc      *network.PeerConnection
		dialErr error
	)
	for _, ep := range opts.Entrypoints {
		pc, dialErr = transport.Connect(ctx, ep, network.Address(opts.Hostname))
		if dialErr == nil {
			break
		}
		logger.Warnf("pod: join entrypoint %s failed: %v", ep, dialErr)
	}
	if pc == nil {
		return nil, fmt.Errorf("pod: no entrypoint reachable: %w", dialErr)
	}

	answer, err := pc.Recv()
	if err != nil {
		return nil, fmt.Errorf("pod: reading FsAnswer: %w", err)
	}

	tree, err := itree.Unmarshal(answer.TreeSnapshot)
	if err != nil {
		return nil, fmt.Errorf("pod: decoding joined itree: %w", err)
	}
	global, err := cfg.ReadGlobal(answer.GlobalConfig)
	if err != nil {
		return nil, fmt.Errorf("pod: decoding joined global config: %w", err)
	}

	d := disk.NewOSManager(opts.MountPoint)
	if opts.MountPoint == "" {
		d = disk.NewMemManager()
	}
	globalGuard := cfg.NewGlobalGuard(global)
	localGuard := cfg.NewLocalGuard(cfg.LocalConfig{General: cfg.LocalGeneral{
		Hostname: string(opts.Hostname), PublicURL: opts.PublicURL,
	}})

	p, err := newPodWithNetwork(opts, tree, d, globalGuard, localGuard, iface, transport)
	if err != nil {
		return nil, err
	}
	if err := iface.AddPeer(pc); err != nil {
		return nil, err
	}

	for _, addr := range answer.Peers {
		if _, err := transport.Wave(ctx, string(addr), network.Address(opts.Hostname)); err != nil {
			logger.Warnf("pod: wave to %s failed: %v", addr, err)
		}
	}

	if err := p.start(ctx, opts); err != nil {
		return nil, err
	}
	return p, nil
}

// loadOrInitTree implements spec.md §4.8 step 1's two scratch-start recovery
// paths: load the serialized .itree snapshot when one is present and
// decodes, otherwise build the ITree by indexing whatever the mount
// directory already holds. Only a Pod with no mount directory at all (the
// in-memory variant) starts from a bare root.
func loadOrInitTree(d disk.Manager, mountPoint string, self itree.PeerID) (*itree.ITree, error) {
	buf := make([]byte, 4<<20)
	n, err := d.ReadFile(itree.TreeSnapshotName, 0, buf)
	if err == nil && n > 0 {
		tree, err := itree.Unmarshal(buf[:n])
		if err == nil {
			return tree, nil
		}
		logger.Warnf("pod: failed to decode existing %s, reindexing mount: %v", itree.TreeSnapshotName, err)
	}
	if mountPoint == "" {
		return itree.New(), nil
	}
	return itree.IndexDirectory(mountPoint, self)
}

func newPod(opts Options, tree *itree.ITree, d disk.Manager, global *cfg.GlobalGuard, local *cfg.LocalGuard) (*Pod, error) {
	iface := network.NewInterface(network.Address(opts.Hostname))
	transport, err := network.NewTransport(context.Background(), opts.ListenAddr, iface)
	if err != nil {
		return nil, err
	}
	return newPodWithNetwork(opts, tree, d, global, local, iface, transport)
}

func newPodWithNetwork(opts Options, tree *itree.ITree, d disk.Manager, global *cfg.GlobalGuard, local *cfg.LocalGuard, iface *network.Interface, transport *network.Transport) (*Pod, error) {
	handles := handle.New()
	self := opts.Hostname

	fs := wormholefs.New(tree, d, handles, iface, self)

	source := redundancyFileSource{fs}
	worker := redundancy.New(source, iface, global, self)
	fs.ApplyRedundancy = func(ino itree.Ino) { worker.Enqueue(redundancy.ApplyToCommand(ino)) }
	fs.HostsUpdated = func(ino itree.Ino, hosts []itree.PeerID) {
		worker.Enqueue(redundancy.UpdatedHostsCommand(ino, hosts))
	}

	var m *metrics.PodMetrics
	if opts.Registry != nil {
		m = metrics.NewPodMetrics(opts.Registry, opts.Name)
	}
	fs.Metrics = m
	worker.Metrics = m

	p := &Pod{
		Name:       opts.Name,
		MountPoint: opts.MountPoint,
		Tree:       tree,
		Disk:       d,
		Handles:    handles,
		Net:        iface,
		Transport:  transport,
		Redundancy: worker,
		FS:         fs,
		GlobalCfg:  global,
		LocalCfg:   local,
		Metrics:    m,
		self:       self,
		peers:      make(map[itree.PeerID]*PeerInfo),
	}
	transport.SetAnswerSource(p.buildFsAnswer)
	iface.OnPeerGone = p.handlePeerGone
	iface.OnPeerAdded = p.handlePeerAdded
	return p, nil
}

func (p *Pod) handlePeerAdded(addr network.Address) {
	id := itree.PeerID(addr)
	p.peersMu.Lock()
	if _, known := p.peers[id]; !known {
		p.peers[id] = &PeerInfo{PeerID: id, Nickname: string(addr)}
	}
	p.peersMu.Unlock()
}

// handlePeerGone implements spec.md §4.5's disconnect_peer contract from
// the Pod's side: a departed peer is stripped from every file's host list
// and the redundancy worker re-checks integrity so files it was hosting get
// re-replicated.
func (p *Pod) handlePeerGone(addr network.Address) {
	gone := itree.PeerID(addr)
	for ino, kind := range p.Tree.AllKinds() {
		if kind != itree.KindFile {
			continue
		}
		_ = p.Tree.RemoveInodeHosts(ino, gone)
	}
	p.Redundancy.Enqueue(redundancy.CheckIntegrityCommand())

	p.peersMu.Lock()
	delete(p.peers, gone)
	p.peersMu.Unlock()
}

// buildFsAnswer is the AnswerSource a joining peer's KindRequestFs is
// answered with: the local-stripped ITree, the currently connected peer
// addresses, and the serialized GlobalConfig (spec.md §4.8 join step 2).
func (p *Pod) buildFsAnswer() (treeSnapshot []byte, peers []network.Address, globalConfig []byte, err error) {
	clean, err := p.Tree.CleanLocal()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("cleaning itree for FsAnswer: %w", err)
	}
	treeSnapshot, err = clean.Marshal()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling itree for FsAnswer: %w", err)
	}

	peers, err = p.Net.Peers()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("listing peers for FsAnswer: %w", err)
	}

	global, err := p.GlobalCfg.Get()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reading global config for FsAnswer: %w", err)
	}
	globalConfig, err = cfg.WriteGlobal(global)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("marshaling global config for FsAnswer: %w", err)
	}
	return treeSnapshot, peers, globalConfig, nil
}

// redundancyFileSource adapts *wormholefs.Server to redundancy.FileSource;
// it exists only to keep internal/redundancy from importing
// internal/wormholefs directly (spec.md §9's cyclic-reference note).
type redundancyFileSource struct{ fs *wormholefs.Server }

func (r redundancyFileSource) HostsOf(ino itree.Ino) ([]itree.PeerID, error) {
	return r.fs.HostsOf(ino)
}
func (r redundancyFileSource) ReadWholeFile(ino itree.Ino) ([]byte, error) {
	return r.fs.ReadWholeFile(ino)
}
func (r redundancyFileSource) AllInodes() (map[itree.Ino]itree.FileKind, error) {
	return r.fs.AllInodes()
}

// start spawns the Pod's three background tasks (the redundancy worker,
// network dispatch, and the periodic integrity sweep; inbound connections
// are accepted by network.Transport's stream handler, not by a task here)
// and mounts the kernel bridge, matching spec.md §4.8 step 4-5.
func (p *Pod) start(ctx context.Context, opts Options) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	group, gctx := errgroup.WithContext(ctx)
	p.group = group

	group.Go(func() error {
		p.Redundancy.Run(gctx)
		return nil
	})
	group.Go(func() error {
		p.dispatchLoop(gctx)
		return nil
	})
	group.Go(func() error {
		return p.integritySweepLoop(gctx)
	})

	if opts.MountFS && opts.MountPoint != "" {
		mounted, err := mount.Mount(ctx, opts.MountPoint, p.FS, "wormhole:"+opts.Name)
		if err != nil {
			return fmt.Errorf("pod: mount: %w", err)
		}
		if err := mounted.WaitForReady(ctx); err != nil {
			return fmt.Errorf("pod: mount not ready: %w", err)
		}
		p.mounted = mounted
	}
	return nil
}

// dispatchLoop is the single reader of NetworkInterface's Inbound channel
// that is not itself blocked inside a SendAndAwait call; it routes every
// asynchronous peer message (broadcasts, pulls, redundancy pushes) to
// FsInterface.Dispatch.
func (p *Pod) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.Net.Inbound():
			if !ok {
				return
			}
			reply := p.FS.Dispatch(ctx, msg.Origin, msg.Content)
			if reply != nil {
				if msg.Content.RequestID != 0 {
					reply.RequestID = msg.Content.RequestID
					reply.IsReply = true
				}
				_ = p.Net.SendTo(ctx, *reply, []network.Address{msg.Origin})
			}
		}
	}
}

// integritySweepLoop periodically asks RedundancyWorker to check every
// file's host count against R, spec.md §4.7's CheckIntegrity sweep.
func (p *Pod) integritySweepLoop(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if peers, err := p.Net.Peers(); err == nil {
				p.Metrics.SetPeerCount(len(peers))
			}
			p.Redundancy.Enqueue(redundancy.CheckIntegrityCommand())
		}
	}
}

// Peers returns a snapshot of every known PeerInfo, for the service's pod
// summary.
func (p *Pod) Peers() []PeerInfo {
	p.peersMu.RLock()
	defer p.peersMu.RUnlock()
	out := make([]PeerInfo, 0, len(p.peers))
	for _, info := range p.peers {
		out = append(out, *info)
	}
	return out
}

// Stop performs the graceful shutdown sequence of spec.md §4.8:
//  1. push a last replica of any file hosted only by this Pod,
//  2. broadcast Disconnect,
//  3. stop background tasks,
//  4. serialize the ITree to its reserved snapshot file,
//  5. stop the DiskManager and unmount.
func (p *Pod) Stop(ctx context.Context) error {
	p.pushSoleReplicas(ctx)

	_ = p.Net.Broadcast(ctx, network.Message{Kind: network.KindDisconnect, Hostname: network.Address(p.self)})

	if p.cancel != nil {
		p.cancel()
	}
	if p.group != nil {
		_ = p.group.Wait()
	}
	p.Redundancy.Stop()
	if p.Transport != nil {
		_ = p.Transport.Close()
	}

	if err := p.persistSnapshot(); err != nil {
		logger.Warnf("pod %s: failed to persist itree snapshot: %v", p.Name, err)
	}

	if err := p.Disk.Stop(); err != nil {
		logger.Warnf("pod %s: disk manager stop: %v", p.Name, err)
	}
	if p.mounted != nil {
		return p.mounted.Unmount()
	}
	return nil
}

// pushSoleReplicas implements spec.md §4.8 stop step 1: for every File
// hosted only by this Pod, try once to hand a replica to any connected
// peer before disconnecting. Failures are logged and do not block
// shutdown.
func (p *Pod) pushSoleReplicas(ctx context.Context) {
	peers, err := p.Net.Peers()
	if err != nil || len(peers) == 0 {
		return
	}

	for ino, kind := range p.Tree.AllKinds() {
		if kind != itree.KindFile {
			continue
		}
		hosts, err := p.FS.HostsOf(ino)
		if err != nil || len(hosts) != 1 || hosts[0] != p.self {
			continue
		}
		data, err := p.FS.ReadWholeFile(ino)
		if err != nil {
			logger.Warnf("pod %s: reading sole-hosted file %d for final push: %v", p.Name, ino, err)
			continue
		}
		if err := p.Net.SendTo(ctx, network.Message{Kind: network.KindRedundancyFile, Ino: ino, Data: data}, peers); err != nil {
			logger.Warnf("pod %s: final replica push for %d failed: %v", p.Name, ino, err)
		}
	}
}

// persistSnapshot writes the current ITree to its reserved Ino-4 file,
// spec.md §4.8 stop step 4.
func (p *Pod) persistSnapshot() error {
	data, err := p.Tree.Marshal()
	if err != nil {
		return err
	}
	if exists, _ := p.Disk.FileExists(itree.TreeSnapshotName); !exists {
		if err := p.Disk.NewFile(itree.TreeSnapshotName, 0o600); err != nil {
			return err
		}
	} else if err := p.Disk.SetFileSize(itree.TreeSnapshotName, 0); err != nil {
		return err
	}
	_, err = p.Disk.WriteFile(itree.TreeSnapshotName, data, 0)
	return err
}
