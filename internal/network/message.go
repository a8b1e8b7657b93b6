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

// Package network implements PeerConnection and NetworkInterface (spec.md
// §4.4): the peer wire protocol, its handshake, and the message vocabulary
// FsInterface/RedundancyWorker/Pod exchange across peers.
package network

import (
	"github.com/agartha-software/wormhole/internal/delta"
	"github.com/agartha-software/wormhole/internal/itree"
)

// Address identifies a peer by its advertised URL/hostname, the same string
// LocalConfig.General.PublicURL carries.
type Address string

// Kind tags which variant a Message carries, standing in for the original's
// MessageContent enum discriminant (Go's encoding/gob has no native sum
// type, so Message carries its payload pre-flattened into named fields and
// Kind says which ones are populated).
type Kind int

const (
	KindInode Kind = iota
	KindRedundancyFile
	KindRename
	KindEditHosts
	KindRevokeFile
	KindAddHosts
	KindRemoveHosts
	KindFileDelta
	KindFileChanged
	KindDeltaRequest
	KindRequestFile
	KindRequestedFile
	KindRemove
	KindEditMetadata
	KindSetXAttr
	KindRemoveXAttr
	KindRequestFs
	KindFsAnswer
	KindWave
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindInode:
		return "Inode"
	case KindRedundancyFile:
		return "RedundancyFile"
	case KindRename:
		return "Rename"
	case KindEditHosts:
		return "EditHosts"
	case KindRevokeFile:
		return "RevokeFile"
	case KindAddHosts:
		return "AddHosts"
	case KindRemoveHosts:
		return "RemoveHosts"
	case KindFileDelta:
		return "FileDelta"
	case KindFileChanged:
		return "FileChanged"
	case KindDeltaRequest:
		return "DeltaRequest"
	case KindRequestFile:
		return "RequestFile"
	case KindRequestedFile:
		return "RequestedFile"
	case KindRemove:
		return "Remove"
	case KindEditMetadata:
		return "EditMetadata"
	case KindSetXAttr:
		return "SetXAttr"
	case KindRemoveXAttr:
		return "RemoveXAttr"
	case KindRequestFs:
		return "RequestFs"
	case KindFsAnswer:
		return "FsAnswer"
	case KindWave:
		return "Wave"
	case KindDisconnect:
		return "Disconnect"
	default:
		return "Unknown"
	}
}

// Message is the single wire envelope every peer message travels in,
// matching the operation set of the original's MessageContent enum
// (spec.md §4.4.2, §6). Only the fields relevant to Kind are populated;
// the rest stay zero.
type Message struct {
	Kind Kind

	Ino       itree.Ino
	NewIno    itree.Ino // Rename's new parent
	Name      itree.InodeName
	NewName   itree.InodeName
	Overwrite bool

	Inode    itree.Inode
	Metadata itree.Metadata
	Hosts    []itree.PeerID

	XAttrName string
	XAttrData []byte

	Signature delta.Signature
	Delta     delta.Delta

	Data []byte // RequestedFile/RedundancyFile payload

	TreeSnapshot []byte // FsAnswer's marshaled ITree
	Peers        []Address
	GlobalConfig []byte // FsAnswer's marshaled GlobalConfig

	// Hostname carries the sender's advertised identity on the RequestFs/
	// wave handshake messages exchanged before a PeerConnection is fully
	// registered (spec.md §4.4.3: "exchange {hostname, url}").
	Hostname Address

	// RequestID ties a SendAndAwait call to its reply so readLoop can hand
	// it straight back instead of publishing it on Inbound; zero means the
	// message is not a tracked request/reply (broadcasts, fire-and-forget
	// sends, and dispatchLoop's unsolicited messages all leave it unset).
	RequestID uint64

	// IsReply marks a message as the answer to a tracked request. Each side
	// numbers RequestIDs from its own counter, so an inbound *request* can
	// carry an id that collides with one of our own outstanding calls;
	// readLoop only hands a message to a waiter when this is set.
	IsReply bool

	// DeltaRetries counts how many FileDelta/DeltaRequest round trips spec.md
	// §9's delta-request ping-pong has already made for this ino; it rides
	// along on both KindFileDelta and KindDeltaRequest so onFileDelta can
	// bound the exchange and fall back to a last-writer-wins tiebreak.
	DeltaRetries int
}

// FromNetwork pairs an inbound Message with the peer Address it arrived
// from, the Go counterpart of the original's FromNetworkMessage.
type FromNetwork struct {
	Origin  Address
	Content Message
}

// RedundancyCommand is the message vocabulary RedundancyWorker listens for,
// matching the original's RedundancyMessage enum.
type RedundancyCommand struct {
	ApplyTo        itree.Ino
	CheckIntegrity bool
}
