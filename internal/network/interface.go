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

package network

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agartha-software/wormhole/internal/logger"
	"github.com/agartha-software/wormhole/internal/trylock"
	"github.com/agartha-software/wormhole/internal/wherrors"
)

// LockTimeout bounds acquisition of Interface's peer-list lock, the same
// bounded-wait discipline itree.LockTimeout and handle.LockTimeout follow.
const LockTimeout = 5 * time.Second

// Interface is the NetworkInterface of spec.md §4.4: the broadcast/send_to/
// send_and_await/disconnect_peer surface FsInterface and RedundancyWorker
// call through, holding one PeerConnection per connected peer.
type Interface struct {
	Self      Address
	Callbacks *Callbacks

	// OnPeerGone fires after a peer leaves the set, whether it disconnected
	// gracefully, its stream died, or DisconnectPeer dropped it. The Pod
	// wires it to strip the peer from every file's host list and nudge the
	// redundancy worker (spec.md §4.5's disconnect_peer contract). Set it
	// before the first AddPeer; it runs on the departing peer's read-loop
	// goroutine.
	OnPeerGone func(Address)

	// OnPeerAdded fires after AddPeer registers a connection, letting the
	// Pod record PeerInfo bookkeeping for the CLI's Inspect/Status surface.
	OnPeerAdded func(Address)

	mu    *trylock.RWMutex
	peers map[Address]*PeerConnection

	inbound chan FromNetwork

	nextReqID uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan Message
}

// NewInterface returns an Interface with no peers connected yet.
func NewInterface(self Address) *Interface {
	return &Interface{
		Self:      self,
		Callbacks: NewCallbacks(),
		mu:        trylock.New(LockTimeout),
		peers:     make(map[Address]*PeerConnection),
		inbound:   make(chan FromNetwork, 256),
		pending:   make(map[uint64]chan Message),
	}
}

// Inbound is the channel every accepted peer's read loop publishes
// FromNetwork messages onto; FsInterface and RedundancyWorker both read
// from it, matching the original's single watchdog dispatch point.
func (n *Interface) Inbound() <-chan FromNetwork { return n.inbound }

// AddPeer registers a newly connected peer and starts its read loop,
// forwarding everything it receives onto Inbound until the stream closes.
func (n *Interface) AddPeer(pc *PeerConnection) error {
	if err := n.mu.Lock(); err != nil {
		return err
	}
	n.peers[pc.Hostname] = pc
	n.mu.Unlock()

	if n.OnPeerAdded != nil {
		n.OnPeerAdded(pc.Hostname)
	}
	go n.readLoop(pc)
	return nil
}

func (n *Interface) readLoop(pc *PeerConnection) {
	for {
		msg, err := pc.Recv()
		if err != nil {
			logger.Infof("peer %s: read loop ended: %v", pc.Hostname, err)
			n.removePeer(pc.Hostname)
			return
		}
		if msg.Kind == KindDisconnect {
			n.removePeer(pc.Hostname)
			return
		}
		if msg.IsReply && msg.RequestID != 0 && n.deliverToPending(msg) {
			continue
		}
		n.inbound <- FromNetwork{Origin: pc.Hostname, Content: msg}
	}
}

// deliverToPending routes msg to the SendAndAwait caller that is waiting on
// its RequestID, if any, instead of letting it fall into Inbound where
// dispatchLoop or a concurrent SendAndAwait could steal it. It reports
// whether a waiter was found.
func (n *Interface) deliverToPending(msg Message) bool {
	n.pendingMu.Lock()
	ch, ok := n.pending[msg.RequestID]
	n.pendingMu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- msg:
	default:
		// A duplicate reply for an already-answered request; the waiter's
		// one-shot buffer is full. Dropping it keeps readLoop unblocked.
	}
	return true
}

// registerPending allocates a fresh RequestID and a one-shot reply channel
// for it, so readLoop can hand a matching reply straight to the caller
// blocked in SendAndAwait.
func (n *Interface) registerPending() (uint64, chan Message) {
	id := atomic.AddUint64(&n.nextReqID, 1)
	ch := make(chan Message, 1)
	n.pendingMu.Lock()
	n.pending[id] = ch
	n.pendingMu.Unlock()
	return id, ch
}

func (n *Interface) unregisterPending(id uint64) {
	n.pendingMu.Lock()
	delete(n.pending, id)
	n.pendingMu.Unlock()
}

func (n *Interface) removePeer(addr Address) {
	if err := n.mu.Lock(); err != nil {
		return
	}
	_, present := n.peers[addr]
	delete(n.peers, addr)
	n.mu.Unlock()

	if present && n.OnPeerGone != nil {
		n.OnPeerGone(addr)
	}
}

// Peers returns the currently connected peer addresses, the Go counterpart
// of the original's get_all_peers_address.
func (n *Interface) Peers() ([]Address, error) {
	if err := n.mu.RLock(); err != nil {
		return nil, err
	}
	defer n.mu.RUnlock()

	out := make([]Address, 0, len(n.peers))
	for addr := range n.peers {
		out = append(out, addr)
	}
	return out, nil
}

// Broadcast sends msg to every connected peer, matching spec.md §4.4's
// ToNetworkMessage::BroadcastMessage. Send errors for individual peers are
// logged, not returned, since one dead peer must not block delivery to the
// rest.
func (n *Interface) Broadcast(ctx context.Context, msg Message) error {
	if err := n.mu.RLock(); err != nil {
		return err
	}
	targets := make([]*PeerConnection, 0, len(n.peers))
	for _, pc := range n.peers {
		targets = append(targets, pc)
	}
	n.mu.RUnlock()

	var wg sync.WaitGroup
	for _, pc := range targets {
		wg.Add(1)
		go func(pc *PeerConnection) {
			defer wg.Done()
			if err := pc.Send(ctx, msg); err != nil {
				logger.Warnf("broadcast to %s failed: %v", pc.Hostname, err)
			}
		}(pc)
	}
	wg.Wait()
	return nil
}

// SendTo delivers msg to exactly the named peers.
func (n *Interface) SendTo(ctx context.Context, msg Message, to []Address) error {
	if err := n.mu.RLock(); err != nil {
		return err
	}
	targets := make([]*PeerConnection, 0, len(to))
	for _, addr := range to {
		if pc, ok := n.peers[addr]; ok {
			targets = append(targets, pc)
		}
	}
	n.mu.RUnlock()

	var firstErr error
	for _, pc := range targets {
		if err := pc.Send(ctx, msg); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("send to %s: %w", pc.Hostname, err)
		}
	}
	return firstErr
}

// AckTimeout bounds SendAndAwait's wait for a reply (spec.md §4.4.3's
// flush protocol and RedundancyWorker's replication both wait on acks).
const AckTimeout = 10 * time.Second

// SendAndAwait sends msg to a single peer and blocks for its reply, the Go
// counterpart of the original's ToNetworkMessage::SpecificMessage carrying a
// callback sender. The reply is matched by a per-call RequestID that
// readLoop consults before anything reaches Inbound, so it can never be
// stolen by dispatchLoop or a concurrent SendAndAwait/pushRedundancy call
// racing on the same channel.
func (n *Interface) SendAndAwait(ctx context.Context, to Address, msg Message) (Message, error) {
	if err := n.mu.RLock(); err != nil {
		return Message{}, err
	}
	pc, ok := n.peers[to]
	n.mu.RUnlock()
	if !ok {
		return Message{}, wherrors.ErrNoHostAvailable
	}

	id, reply := n.registerPending()
	defer n.unregisterPending(id)
	msg.RequestID = id

	if err := pc.Send(ctx, msg); err != nil {
		return Message{}, err
	}

	deadline := time.NewTimer(AckTimeout)
	defer deadline.Stop()
	select {
	case r := <-reply:
		return r, nil
	case <-deadline.C:
		return Message{}, wherrors.ErrNetworkDied
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

// DisconnectPeer tells a peer we are leaving and drops its connection.
func (n *Interface) DisconnectPeer(ctx context.Context, addr Address) error {
	if err := n.mu.Lock(); err != nil {
		return err
	}
	pc, ok := n.peers[addr]
	delete(n.peers, addr)
	n.mu.Unlock()

	if !ok {
		return wherrors.ErrNoHostAvailable
	}
	pc.Disconnect(ctx)
	if n.OnPeerGone != nil {
		n.OnPeerGone(addr)
	}
	return nil
}
