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

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"

	"github.com/agartha-software/wormhole/internal/logger"
)

// Transport owns the libp2p host a Pod listens and dials through. It is the
// Go analog of the original's swarm.rs (the libp2p Swarm construction) and
// peer_ipc.rs's outbound-dial half.
type Transport struct {
	Host  host.Host
	iface *Interface

	answer AnswerSource
}

// AnswerSource supplies the data a KindFsAnswer reply is built from: the
// local-stripped ITree snapshot, the known peer addresses, and the
// serialized GlobalConfig a fresh joiner seeds itself from (spec.md §4.8's
// join step 2). Pod wires this in after construction, since Transport is
// built before the ITree/NetworkInterface/GlobalGuard it needs exist.
type AnswerSource func() (treeSnapshot []byte, peers []Address, globalConfig []byte, err error)

// SetAnswerSource wires the callback handleIncomingStream uses to answer a
// KindRequestFs hello with a KindFsAnswer. Must be set before any peer can
// dial in and join.
func (t *Transport) SetAnswerSource(f AnswerSource) { t.answer = f }

// NewTransport builds a libp2p host listening on listenAddr (an empty
// string picks an ephemeral TCP port, matching spec.md's "entrypoints
// advertise a URL" model where the URL is recorded in LocalConfig
// separately from the listen address) and wires Interface's accept loop as
// its stream handler for ProtocolID.
func NewTransport(ctx context.Context, listenAddr string, iface *Interface) (*Transport, error) {
	opts := []libp2p.Option{}
	if listenAddr != "" {
		opts = append(opts, libp2p.ListenAddrStrings(listenAddr))
	}

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("network: build libp2p host: %w", err)
	}

	t := &Transport{Host: h, iface: iface}
	h.SetStreamHandler(ProtocolID, t.handleIncomingStream)
	return t, nil
}

func (t *Transport) handleIncomingStream(s network.Stream) {
	remote := s.Conn().RemotePeer()
	pc := NewPeerConnection(remote, Address(remote.String()), s)

	hello, err := pc.Recv()
	if err != nil {
		logger.Warnf("handshake: failed to read hello from %s: %v", remote, err)
		_ = s.Close()
		return
	}
	pc.Hostname = hello.Hostname

	if hello.Kind == KindRequestFs {
		if err := t.sendFsAnswer(pc); err != nil {
			logger.Warnf("handshake: answering join from %s: %v", pc.Hostname, err)
			_ = s.Close()
			return
		}
	}

	if err := t.iface.AddPeer(pc); err != nil {
		logger.Warnf("handshake: failed to register peer %s: %v", pc.Hostname, err)
		_ = s.Close()
	}
}

// sendFsAnswer replies to a KindRequestFs hello with the current ITree,
// peer list, and GlobalConfig — the server half of spec.md §4.8's join
// handshake. Without it, the joiner's blocking read in pod.Join never
// returns.
func (t *Transport) sendFsAnswer(pc *PeerConnection) error {
	if t.answer == nil {
		return fmt.Errorf("network: no answer source configured")
	}
	treeSnapshot, peers, globalConfig, err := t.answer()
	if err != nil {
		return fmt.Errorf("building FsAnswer: %w", err)
	}
	return pc.Send(context.Background(), Message{
		Kind:         KindFsAnswer,
		TreeSnapshot: treeSnapshot,
		Peers:        peers,
		GlobalConfig: globalConfig,
	})
}

// Connect dials a fresh network's entrypoint, performing the "connect"
// handshake variant (spec.md §4.4.3's join flow: exchange {hostname, url},
// then the server answers with FsAnswer). addr is a full libp2p multiaddr
// including the /p2p/<peerID> suffix.
func (t *Transport) Connect(ctx context.Context, addr string, selfHostname Address) (*PeerConnection, error) {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("network: parse entrypoint address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, fmt.Errorf("network: resolve entrypoint peer info: %w", err)
	}

	if err := t.Host.Connect(ctx, *info); err != nil {
		return nil, fmt.Errorf("network: dial entrypoint: %w", err)
	}

	s, err := t.Host.NewStream(ctx, info.ID, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("network: open stream: %w", err)
	}

	pc := NewPeerConnection(info.ID, Address(info.ID.String()), s)
	if err := pc.Send(ctx, Message{Kind: KindRequestFs, Hostname: selfHostname}); err != nil {
		return nil, fmt.Errorf("network: send hello: %w", err)
	}
	return pc, nil
}

// Wave dials a peer learned about from an entrypoint's FsAnswer (the peer
// list), greeting it without requesting the full filesystem again —
// spec.md's "dial other peers with 'wave' handshakes".
func (t *Transport) Wave(ctx context.Context, addr string, selfHostname Address) (*PeerConnection, error) {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return nil, fmt.Errorf("network: parse peer address: %w", err)
	}
	info, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return nil, fmt.Errorf("network: resolve peer info: %w", err)
	}

	if err := t.Host.Connect(ctx, *info); err != nil {
		return nil, fmt.Errorf("network: dial peer: %w", err)
	}

	s, err := t.Host.NewStream(ctx, info.ID, ProtocolID)
	if err != nil {
		return nil, fmt.Errorf("network: open stream: %w", err)
	}

	pc := NewPeerConnection(info.ID, Address(info.ID.String()), s)
	if err := pc.Send(ctx, Message{Kind: KindWave, Hostname: selfHostname}); err != nil {
		return nil, fmt.Errorf("network: send wave: %w", err)
	}
	if err := t.iface.AddPeer(pc); err != nil {
		return nil, err
	}
	return pc, nil
}

// Close shuts the libp2p host down.
func (t *Transport) Close() error {
	return t.Host.Close()
}
