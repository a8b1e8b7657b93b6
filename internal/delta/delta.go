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

// Package delta implements the rolling-checksum signature/diff/patch
// algorithm flush/propagation relies on (spec.md §4.4.3). The original
// Wormhole implementation calls out to librsync; no repository in the
// retrieval pack imports an rsync/bsdiff-style binary diff library (see
// DESIGN.md), so this package implements the same rsync-shaped algorithm
// directly: a weak rolling checksum (an Adler-32 style construction, mod
// 65521, exactly as rsync's own algorithm uses) for a cheap first filter
// and a strong per-block checksum (crypto/md5) to confirm real matches.
package delta

import (
	"crypto/md5"
	"encoding/binary"
	"errors"
)

var errShortBuffer = errors.New("delta: truncated wire buffer")

// BlockSize is the chunking granularity of the signature. Smaller blocks
// shrink the amount of data retransmitted on a partial change, at the cost
// of a larger signature.
const BlockSize = 4096

const adlerMod = 65521

// block is one chunk's checksum pair.
type block struct {
	Weak   uint32
	Strong [md5.Size]byte
}

// Signature summarizes a file's contents at a point in time, block by
// block, so a remote peer can compute a delta against it without seeing
// the original bytes again.
type Signature struct {
	Size   uint64
	Blocks []block
}

// NewSignature builds a Signature over data's contents.
func NewSignature(data []byte) Signature {
	sig := Signature{Size: uint64(len(data))}
	for off := 0; off < len(data); off += BlockSize {
		end := off + BlockSize
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]
		sig.Blocks = append(sig.Blocks, block{
			Weak:   weakChecksum(chunk),
			Strong: md5.Sum(chunk),
		})
	}
	return sig
}

// Equal reports whether two signatures describe the same content, used by
// the flush protocol to decide whether an incoming FileDelta can be applied
// as-is (spec.md §4.4.3).
func (s Signature) Equal(other Signature) bool {
	if s.Size != other.Size || len(s.Blocks) != len(other.Blocks) {
		return false
	}
	for i := range s.Blocks {
		if s.Blocks[i] != other.Blocks[i] {
			return false
		}
	}
	return true
}

// weakChecksum computes the rsync-style rolling checksum of a byte slice
// from scratch; rollChecksum advances it by one byte in O(1) as Diff's scan
// slides its window.
func weakChecksum(data []byte) uint32 {
	var a, b uint32
	for i, c := range data {
		a += uint32(c)
		b += (uint32(len(data)-i) % adlerMod) * uint32(c)
	}
	a %= adlerMod
	b %= adlerMod
	return a | b<<16
}

// rollChecksum slides a full-size window one byte forward: out leaves the
// front, in enters the back, wsize is the (unchanged) window length.
func rollChecksum(weak uint32, out, in byte, wsize int) uint32 {
	a := weak & 0xffff
	b := weak >> 16
	a = (a + adlerMod - uint32(out)%adlerMod + uint32(in)) % adlerMod
	sub := (uint32(wsize) * uint32(out)) % adlerMod
	b = (b + adlerMod - sub + a) % adlerMod
	return a | b<<16
}

// op is one instruction of a Delta: either "copy length bytes starting at
// offset from the base file" or "insert these literal bytes".
type op struct {
	Copy       bool
	Offset     uint64
	Length     uint64
	InsertData []byte
}

// Delta is a sequence of copy/insert instructions that transforms the
// Signature's base content into a new target content.
type Delta struct {
	Ops []op
}

// Diff computes the delta that transforms the content described by sig
// into target, following the classic rsync scan: slide a window across
// target, and whenever its weak checksum lands in sig's block index and
// the strong checksum also matches, emit a Copy instruction and skip past
// the match; otherwise accumulate a literal byte and advance by one.
func Diff(sig Signature, target []byte) Delta {
	index := make(map[uint32][]int, len(sig.Blocks))
	for i, b := range sig.Blocks {
		index[b.Weak] = append(index[b.Weak], i)
	}

	var d Delta
	var literal []byte
	flushLiteral := func() {
		if len(literal) > 0 {
			d.Ops = append(d.Ops, op{InsertData: append([]byte(nil), literal...)})
			literal = literal[:0]
		}
	}

	n := len(target)
	if n == 0 || len(sig.Blocks) == 0 {
		if n > 0 {
			d.Ops = append(d.Ops, op{InsertData: append([]byte(nil), target...)})
		}
		return d
	}

	pos := 0
	var weak uint32
	fresh := true
	for pos < n {
		winEnd := pos + BlockSize
		if winEnd > n {
			winEnd = n
		}
		window := target[pos:winEnd]
		if fresh {
			weak = weakChecksum(window)
			fresh = false
		}

		matched := -1
		if candidates, ok := index[weak]; ok {
			strong := md5.Sum(window)
			for _, c := range candidates {
				if sig.Blocks[c].Strong == strong {
					matched = c
					break
				}
			}
		}

		if matched >= 0 {
			flushLiteral()
			d.Ops = append(d.Ops, op{
				Copy:   true,
				Offset: uint64(matched) * BlockSize,
				Length: uint64(len(window)),
			})
			pos += len(window)
			fresh = true
			continue
		}

		literal = append(literal, target[pos])
		if winEnd < n {
			weak = rollChecksum(weak, target[pos], target[winEnd], len(window))
		} else {
			// The window shrinks from here to the end of target; recompute
			// rather than roll across a length change.
			fresh = true
		}
		pos++
	}
	flushLiteral()
	return d
}

// Patch applies d against base, producing the reconstructed target bytes.
func Patch(base []byte, d Delta) []byte {
	var out []byte
	for _, o := range d.Ops {
		if o.Copy {
			end := o.Offset + o.Length
			if end > uint64(len(base)) {
				end = uint64(len(base))
			}
			if o.Offset < uint64(len(base)) {
				out = append(out, base[o.Offset:end]...)
			}
			continue
		}
		out = append(out, o.InsertData...)
	}
	return out
}

// MarshalBinary/UnmarshalBinary give Delta a stable wire form independent
// of the unexported op type's layout, so gob (internal/network's wire codec) can
// carry it via the encoding.BinaryMarshaler/BinaryUnmarshaler hooks.
func (d Delta) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 64)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(d.Ops)))
	buf = append(buf, tmp[:]...)
	for _, o := range d.Ops {
		if o.Copy {
			buf = append(buf, 1)
			binary.LittleEndian.PutUint64(tmp[:], o.Offset)
			buf = append(buf, tmp[:]...)
			binary.LittleEndian.PutUint64(tmp[:], o.Length)
			buf = append(buf, tmp[:]...)
		} else {
			buf = append(buf, 0)
			binary.LittleEndian.PutUint64(tmp[:], uint64(len(o.InsertData)))
			buf = append(buf, tmp[:]...)
			buf = append(buf, o.InsertData...)
		}
	}
	return buf, nil
}

func (d *Delta) UnmarshalBinary(data []byte) error {
	if len(data) < 8 {
		return errShortBuffer
	}
	count := binary.LittleEndian.Uint64(data[:8])
	data = data[8:]
	d.Ops = make([]op, 0, count)
	for i := uint64(0); i < count; i++ {
		if len(data) < 1 {
			return errShortBuffer
		}
		tag := data[0]
		data = data[1:]
		if tag == 1 {
			if len(data) < 16 {
				return errShortBuffer
			}
			offset := binary.LittleEndian.Uint64(data[:8])
			length := binary.LittleEndian.Uint64(data[8:16])
			data = data[16:]
			d.Ops = append(d.Ops, op{Copy: true, Offset: offset, Length: length})
		} else {
			if len(data) < 8 {
				return errShortBuffer
			}
			n := binary.LittleEndian.Uint64(data[:8])
			data = data[8:]
			if uint64(len(data)) < n {
				return errShortBuffer
			}
			d.Ops = append(d.Ops, op{InsertData: append([]byte(nil), data[:n]...)})
			data = data[n:]
		}
	}
	return nil
}
