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

	"github.com/agartha-software/wormhole/internal/itree"
	"github.com/agartha-software/wormhole/internal/logger"
	"github.com/agartha-software/wormhole/internal/network"
)

// Dispatch applies one inbound broadcast/request message to local state and
// returns a reply to send back to the sender, or nil if none is needed.
// internal/pod's dispatch loop is the sole caller; it is the Go counterpart
// of the original's watchdog match over FromNetworkMessage.
func (s *Server) Dispatch(ctx context.Context, from network.Address, msg network.Message) *network.Message {
	switch msg.Kind {
	case network.KindInode:
		return s.onInode(msg)
	case network.KindRemove:
		return s.onRemoteRemove(msg)
	case network.KindRename:
		return s.onRemoteRename(msg)
	case network.KindEditHosts:
		_ = s.Tree.SetInodeHosts(msg.Ino, msg.Hosts)
		s.notifyHostsUpdated(msg.Ino)
		if s.ApplyRedundancy != nil {
			s.ApplyRedundancy(msg.Ino)
		}
		return nil
	case network.KindAddHosts:
		_ = s.Tree.AddInodeHosts(msg.Ino, msg.Hosts...)
		s.notifyHostsUpdated(msg.Ino)
		return nil
	case network.KindRemoveHosts:
		_ = s.Tree.RemoveInodeHosts(msg.Ino, msg.Hosts...)
		s.notifyHostsUpdated(msg.Ino)
		if s.ApplyRedundancy != nil {
			s.ApplyRedundancy(msg.Ino)
		}
		return nil
	case network.KindRevokeFile:
		_ = s.Tree.RemoveInodeHosts(msg.Ino, itree.PeerID(from))
		_ = s.Tree.MutateInode(msg.Ino, func(in *itree.Inode) error {
			in.Meta = msg.Metadata
			return nil
		})
		s.notifyHostsUpdated(msg.Ino)
		if s.ApplyRedundancy != nil {
			s.ApplyRedundancy(msg.Ino)
		}
		return nil
	case network.KindEditMetadata:
		_ = s.Tree.MutateInode(msg.Ino, func(in *itree.Inode) error {
			in.Meta = msg.Metadata
			return nil
		})
		return nil
	case network.KindSetXAttr:
		_ = s.Tree.MutateInode(msg.Ino, func(in *itree.Inode) error {
			in.Xattrs[msg.XAttrName] = msg.XAttrData
			return nil
		})
		return nil
	case network.KindRemoveXAttr:
		_ = s.Tree.MutateInode(msg.Ino, func(in *itree.Inode) error {
			delete(in.Xattrs, msg.XAttrName)
			return nil
		})
		return nil
	case network.KindFileChanged:
		reply := s.onFileChanged(msg.Ino, msg.Metadata)
		return &reply
	case network.KindFileDelta:
		reply := s.onFileDelta(from, msg.Ino, msg.Metadata, msg.Signature, msg.Delta, msg.DeltaRetries)
		return &reply
	case network.KindDeltaRequest:
		reply := s.onDeltaRequest(msg.Ino, msg.Signature, msg.DeltaRetries)
		return &reply
	case network.KindRequestFile:
		return s.onRequestFile(msg.Ino)
	case network.KindRedundancyFile:
		return s.onRedundancyFile(ctx, msg.Ino, msg.Data)
	default:
		logger.Debugf("dispatch: ignoring unsolicited %s from %s", msg.Kind, from)
		return nil
	}
}

// notifyHostsUpdated hands the file's now-current host list to the
// redundancy worker so any pending sends it tracks resolve against the
// authoritative state (spec.md §4.7's UpdatedHosts message).
func (s *Server) notifyHostsUpdated(ino itree.Ino) {
	if s.HostsUpdated == nil {
		return
	}
	hosts, err := s.HostsOf(ino)
	if err != nil {
		return
	}
	s.HostsUpdated(ino, hosts)
}

func (s *Server) onInode(msg network.Message) *network.Message {
	_ = s.Tree.MarkReservedIno(msg.Inode.ID)
	if err := s.Tree.AddInode(msg.Inode); err != nil {
		logger.Debugf("dispatch: Inode(%d) already known: %v", msg.Inode.ID, err)
	}
	return nil
}

func (s *Server) onRemoteRemove(msg network.Message) *network.Message {
	if err := s.Tree.RemoveInode(msg.Ino); err != nil {
		logger.Debugf("dispatch: Remove(%d): %v", msg.Ino, err)
	}
	return nil
}

func (s *Server) onRemoteRename(msg network.Message) *network.Message {
	if err := s.Tree.MvInode(msg.Ino, msg.NewIno, msg.Name, msg.NewName); err != nil {
		logger.Debugf("dispatch: Rename: %v", err)
	}
	return nil
}

// onRequestFile answers a whole-file pull (spec.md §4.4.1).
func (s *Server) onRequestFile(ino itree.Ino) *network.Message {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return &network.Message{Kind: network.KindRequestedFile, Ino: ino}
	}
	path, err := s.Tree.GetPathFromInode(ino)
	if err != nil {
		return &network.Message{Kind: network.KindRequestedFile, Ino: ino}
	}
	data, err := s.readWholeLocal(path, in.Meta.Size)
	if err != nil {
		return &network.Message{Kind: network.KindRequestedFile, Ino: ino}
	}
	return &network.Message{Kind: network.KindRequestedFile, Ino: ino, Data: data}
}

// onRedundancyFile accepts a replica pushed by RedundancyWorker elsewhere
// in the network, writes it locally, adds ourself to the host list, and
// broadcasts the updated list (spec.md §4.7 step 4).
func (s *Server) onRedundancyFile(ctx context.Context, ino itree.Ino, data []byte) *network.Message {
	in, err := s.Tree.GetInode(ino)
	if err != nil {
		return &network.Message{Kind: network.KindEditHosts, Ino: ino}
	}
	path, err := s.Tree.GetPathFromInode(ino)
	if err == nil {
		if _, err := s.Disk.WriteFile(path, data, 0); err != nil {
			logger.Errorf("onRedundancyFile: write %d: %v", ino, err)
		} else {
			_ = s.Disk.SetFileSize(path, int64(len(data)))
		}
	}
	_ = s.Tree.AddInodeHosts(ino, s.Self)
	hosts := append(in.Entry.Hosts(), s.Self)
	s.Net.Broadcast(ctx, network.Message{Kind: network.KindEditHosts, Ino: ino, Hosts: hosts})
	return &network.Message{Kind: network.KindEditHosts, Ino: ino, Hosts: hosts}
}
