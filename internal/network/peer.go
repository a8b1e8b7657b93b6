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
	"bufio"
	"context"
	"encoding/gob"
	"io"
	"sync"

	"github.com/libp2p/go-libp2p/core/peer"
	"golang.org/x/sync/semaphore"

	"github.com/agartha-software/wormhole/internal/logger"
)

// ProtocolID is the libp2p stream protocol every pod speaks, the direct Go
// analog of the original's libp2p request_response protocol string.
const ProtocolID = "/wormhole/1.0.0"

// MaxInFlight bounds how many outbound requests a single PeerConnection may
// have outstanding at once (spec.md's flow-control requirement for the
// transport layer); beyond that, Send blocks until a slot frees up rather
// than growing an unbounded backlog.
const MaxInFlight = 128

// PeerConnection is one open stream to a remote pod, framed with gob. It
// owns exactly the concerns the original's PeerIPC struct owns: the
// remote's advertised hostname, an outbound write path, and a best-effort
// disconnect. It is built over io.ReadWriteCloser rather than libp2p's
// network.Stream directly so it can be driven by any transport a
// PeerConnection is handed — in production that's a libp2p stream
// (network.Stream embeds io.ReadWriteCloser), in tests a net.Pipe half.
type PeerConnection struct {
	PeerID   peer.ID
	Hostname Address

	mu   sync.Mutex
	enc  *gob.Encoder
	dec  *gob.Decoder
	conn io.Closer
	sem  *semaphore.Weighted
}

// NewPeerConnection wraps an already-open, bidirectional stream.
func NewPeerConnection(id peer.ID, hostname Address, rwc io.ReadWriteCloser) *PeerConnection {
	return &PeerConnection{
		PeerID:   id,
		Hostname: hostname,
		enc:      gob.NewEncoder(rwc),
		dec:      gob.NewDecoder(bufio.NewReader(rwc)),
		conn:     rwc,
		sem:      semaphore.NewWeighted(MaxInFlight),
	}
}

// Send writes one Message to the peer, blocking until MaxInFlight permits
// the send (flow control) and until the stream's own write completes.
func (p *PeerConnection) Send(ctx context.Context, msg Message) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enc.Encode(&msg)
}

// Recv blocks for the next Message the peer sends. Only one goroutine
// should call Recv for a given PeerConnection (the per-peer read loop).
func (p *PeerConnection) Recv() (Message, error) {
	var msg Message
	if err := p.dec.Decode(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Disconnect sends a best-effort Disconnect message and closes the stream.
func (p *PeerConnection) Disconnect(ctx context.Context) {
	if err := p.Send(ctx, Message{Kind: KindDisconnect}); err != nil {
		logger.Debugf("peer %s: disconnect notice failed: %v", p.Hostname, err)
	}
	_ = p.conn.Close()
}
