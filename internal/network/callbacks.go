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
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/agartha-software/wormhole/internal/itree"
)

// Callbacks deduplicates costly network round-trips: if a GetSignature or
// Pull for the same inode is already in flight, a second caller waits on
// the first's result rather than issuing a redundant request. This plays
// the same role the original's Callbacks type plays with a
// HashMap<Request, broadcast::Sender> — golang.org/x/sync/singleflight
// already is exactly that pattern, so it's used directly instead of
// reimplementing the broadcast-channel bookkeeping.
type Callbacks struct {
	group singleflight.Group
}

// NewCallbacks returns an empty Callbacks.
func NewCallbacks() *Callbacks {
	return &Callbacks{}
}

// pullKey and signatureKey format the same two Request variants the
// original distinguishes (Pull(ino) and GetSignature(ino, peer)).
func pullKey(ino itree.Ino) string {
	return fmt.Sprintf("pull:%d", ino)
}

func signatureKey(ino itree.Ino, peer itree.PeerID) string {
	return fmt.Sprintf("sig:%d:%s", ino, peer)
}

// Pull runs fetch at most once per ino among concurrent callers, returning
// the same ([]byte, error) to every caller that arrived while it was in
// flight.
func (c *Callbacks) Pull(ino itree.Ino, fetch func() ([]byte, error)) ([]byte, error) {
	v, err, _ := c.group.Do(pullKey(ino), func() (any, error) {
		return fetch()
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// GetSignature runs fetch at most once per (ino, peer) among concurrent
// callers.
func (c *Callbacks) GetSignature(ino itree.Ino, peer itree.PeerID, fetch func() ([]byte, error)) ([]byte, error) {
	v, err, _ := c.group.Do(signatureKey(ino, peer), func() (any, error) {
		return fetch()
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}
