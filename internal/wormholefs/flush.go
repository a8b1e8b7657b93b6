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

package wormholefs

import (
	"context"
	"time"

	"github.com/agartha-software/wormhole/internal/delta"
	"github.com/agartha-software/wormhole/internal/handle"
	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/logger"
	"github.com/agartha-software/wormhole/internal/network"
)

// Flush implements spec.md §4.4.3's flush and delta-propagation protocol.
// With a write handle it reads the file back from disk, diffs it against
// the handle's base signature, refreshes that signature, and sends
// FileDelta to every tracking peer and FileChanged to everyone else.
// Without a handle (hID is the zero UUID) it only broadcasts FileChanged.
func (s *Server) Flush(ctx context.Context, ino itree.Ino, hID handle.ID) error {
	start := time.Now()
	defer func() { s.Metrics.ObserveFlush(time.Since(start).Seconds()) }()

	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return err
	}

	var zero handle.ID
	if hID == zero {
		s.Net.Broadcast(ctx, network.Message{Kind: network.KindFileChanged, Ino: ino, Metadata: in.Meta})
		return nil
	}

	h, err := s.Handles.Get(hID)
	if err != nil {
		return err
	}
	if h.Mode != handle.Write {
		s.Net.Broadcast(ctx, network.Message{Kind: network.KindFileChanged, Ino: ino, Metadata: in.Meta})
		return nil
	}

	path, err := s.Tree.GetPathFromInode(ino)
	if err != nil {
		return err
	}
	data, err := s.readWholeLocal(path, in.Meta.Size)
	if err != nil {
		return err
	}

	d := delta.Diff(h.BaseSignature, data)
	newSig := delta.NewSignature(data)
	if err := s.Handles.UpdateSignature(hID, newSig); err != nil {
		return err
	}

	tracking, notTracking := s.splitByTracking(in.Entry.Hosts())
	for _, peer := range tracking {
		if peer == s.Self {
			continue
		}
		msg := network.Message{Kind: network.KindFileDelta, Ino: ino, Metadata: in.Meta, Signature: h.BaseSignature, Delta: d}
		if err := s.Net.SendTo(ctx, msg, []network.Address{network.Address(peer)}); err != nil {
			logger.Debugf("flush: FileDelta to %s failed: %v", peer, err)
		}
	}
	for _, peer := range notTracking {
		msg := network.Message{Kind: network.KindFileChanged, Ino: ino, Metadata: in.Meta}
		if err := s.Net.SendTo(ctx, msg, []network.Address{network.Address(peer)}); err != nil {
			logger.Debugf("flush: FileChanged to %s failed: %v", peer, err)
		}
	}
	return nil
}

// splitByTracking separates a file's hosts (which track it, by definition
// of "host") from the rest of the connected peer set, matching spec.md
// §4.4.3's "For each peer in the file's tracking set... for peers NOT
// tracking the file".
func (s *Server) splitByTracking(hosts []itree.PeerID) (tracking, notTracking []itree.PeerID) {
	trackSet := make(map[itree.PeerID]struct{}, len(hosts))
	for _, h := range hosts {
		trackSet[h] = struct{}{}
	}
	tracking = hosts
	peers, err := s.Net.Peers()
	if err != nil {
		return tracking, nil
	}
	for _, addr := range peers {
		p := itree.PeerID(addr)
		if _, ok := trackSet[p]; !ok {
			notTracking = append(notTracking, p)
		}
	}
	return tracking, notTracking
}

// Release flushes a dirty handle, removes it, and nudges the redundancy
// worker (spec.md §4.4's "release... flushes if dirty, then applies
// redundancy").
func (s *Server) Release(ctx context.Context, hID handle.ID) error {
	h, err := s.Handles.Get(hID)
	if err != nil {
		return err
	}

	// Flush looks the handle up, so it runs before the handle is removed.
	if h.Dirty {
		if err := s.Flush(ctx, h.Ino, hID); err != nil {
			logger.Warnf("release: final flush of %d failed: %v", h.Ino, err)
		}
	}
	if _, err := s.Handles.Release(hID); err != nil {
		return err
	}
	if s.ApplyRedundancy != nil {
		s.ApplyRedundancy(h.Ino)
	}
	return nil
}

// maxDeltaRetries bounds spec.md §9's delta-request ping-pong: if A and B
// both flush concurrently, each FileDelta/DeltaRequest round trip that still
// finds a signature mismatch increments this counter, and once it's
// exhausted onFileDelta settles the file with a last-writer-wins tiebreak
// instead of asking for yet another round.
const maxDeltaRetries = 3

// onFileDelta handles an inbound FileDelta (spec.md §4.4.3). If we are not
// tracking the file it is a no-op success. If we are, and our local
// signature matches the sender's claimed base, we patch and apply; if it
// doesn't match, we ask the sender to recompute against our own base, up to
// maxDeltaRetries times. Past that bound we resolve the conflict by
// last-writer-wins on (mtime, peer-id) rather than ping-ponging forever.
func (s *Server) onFileDelta(from network.Address, ino itree.Ino, meta itree.Metadata, baseSig delta.Signature, d delta.Delta, retries int) network.Message {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return network.Message{Kind: network.KindFileChanged, Ino: ino}
	}
	if !containsSelf(in.Entry.Hosts(), s.Self) {
		return network.Message{Kind: network.KindFileChanged, Ino: ino, Metadata: meta}
	}

	path, err := s.Tree.GetPathFromInode(ino)
	if err != nil {
		return network.Message{Kind: network.KindFileChanged, Ino: ino}
	}
	current, err := s.readWholeLocal(path, in.Meta.Size)
	if err != nil {
		current = nil
	}
	localSig := delta.NewSignature(current)

	if !localSig.Equal(baseSig) {
		if retries >= maxDeltaRetries {
			return s.settleDeltaConflict(ino, in.Meta, meta, itree.PeerID(from))
		}
		return network.Message{Kind: network.KindDeltaRequest, Ino: ino, Signature: localSig, DeltaRetries: retries + 1}
	}

	patched := delta.Patch(current, d)
	if _, err := s.Disk.WriteFile(path, patched, 0); err != nil {
		logger.Errorf("onFileDelta: write %d failed: %v", ino, err)
	}
	_ = s.Disk.SetFileSize(path, int64(len(patched)))
	_ = s.Tree.MutateInode(ino, func(i *itree.Inode) error {
		i.Meta = meta
		return nil
	})
	return network.Message{Kind: network.KindFileChanged, Ino: ino, Metadata: meta}
}

// settleDeltaConflict breaks a delta-request ping-pong that exhausted
// maxDeltaRetries without converging, per spec.md §9's recommendation: the
// side with the newer Mtime wins, ties broken by comparing peer ids. If the
// remote side wins we cannot patch against it (our base signature never
// matched its claimed one), so we keep our own bytes but adopt its metadata,
// which is enough to end the loop: both sides will settle on FileChanged and
// reconcile bytes on the next real write.
func (s *Server) settleDeltaConflict(ino itree.Ino, localMeta, remoteMeta itree.Metadata, remote itree.PeerID) network.Message {
	remoteWins := remoteMeta.Mtime.After(localMeta.Mtime) ||
		(remoteMeta.Mtime.Equal(localMeta.Mtime) && remote > s.Self)

	settled := localMeta
	if remoteWins {
		settled = remoteMeta
	}
	_ = s.Tree.MutateInode(ino, func(i *itree.Inode) error {
		i.Meta = settled
		return nil
	})
	logger.Warnf("onFileDelta: %d: delta ping-pong exhausted %d retries, settling via last-writer-wins (remote %s wins=%v)",
		ino, maxDeltaRetries, remote, remoteWins)
	return network.Message{Kind: network.KindFileChanged, Ino: ino, Metadata: settled}
}

// onFileChanged handles an inbound FileChanged: apply the metadata, and if
// we track the file, ask for a delta against our base (spec.md §4.4.3).
func (s *Server) onFileChanged(ino itree.Ino, meta itree.Metadata) network.Message {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return network.Message{Kind: network.KindFileChanged, Ino: ino}
	}
	_ = s.Tree.MutateInode(ino, func(i *itree.Inode) error {
		i.Meta = meta
		return nil
	})
	if !containsSelf(in.Entry.Hosts(), s.Self) {
		return network.Message{Kind: network.KindFileChanged, Ino: ino}
	}

	path, err := s.Tree.GetPathFromInode(ino)
	if err != nil {
		return network.Message{Kind: network.KindFileChanged, Ino: ino}
	}
	current, _ := s.readWholeLocal(path, in.Meta.Size)
	return network.Message{Kind: network.KindDeltaRequest, Ino: ino, Signature: delta.NewSignature(current)}
}

// onDeltaRequest computes a delta from our current file against the
// requester's base signature and answers with FileDelta (spec.md §4.4.3),
// carrying the retry counter forward so onFileDelta on the other end can
// keep bounding the exchange.
func (s *Server) onDeltaRequest(ino itree.Ino, sig delta.Signature, retries int) network.Message {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return network.Message{Kind: network.KindFileChanged, Ino: ino}
	}
	path, err := s.Tree.GetPathFromInode(ino)
	if err != nil {
		return network.Message{Kind: network.KindFileChanged, Ino: ino}
	}
	current, _ := s.readWholeLocal(path, in.Meta.Size)
	d := delta.Diff(sig, current)
	return network.Message{Kind: network.KindFileDelta, Ino: ino, Metadata: in.Meta, Signature: sig, Delta: d, DeltaRetries: retries}
}
