// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Package bitvector implements a dynamic 0-based bit sequence
// supporting rank, select, insert, and delete. Two strategies are
// available, chosen at construction time (a tagged variant, not
// runtime polymorphism in the hot path, per the collapsed-strategy
// design used across the succinct-filesystem core):
//
//   - [Word]: a packed-word sequence with O(1) access/set, O(n/64)
//     rank, and O(n) select/insert/delete. Intended as the reference
//     variant for tests and small sequences.
//   - [Tree]: a weight-balanced binary tree of small packed-byte
//     leaves, with per-leaf popcounts and per-internal-node running
//     size/ones totals. All six operations run in O(log n) amortized
//     time with small constants, since leaf size is bounded by a
//     compile-time constant. This is the production variant FloudsTree
//     and TwoBitWaveletTree use for directory mutations.
//
// Both strategies serialize to the same on-disk format (ยง6 of the
// specification): an 8-byte size followed by ceil(size/8) packed
// bytes, bit i stored at byte i/8, bit offset i%8 (LSB first). This
// keeps the two strategies drop-in interchangeable without a format
// migration.
package bitvector

import (
	"encoding/binary"
	"fmt"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
)

// Strategy selects the internal representation of a Bitvector.
type Strategy int

const (
	// Word is the packed-word reference strategy: O(1) access, O(n)
	// insert/delete. Suitable for tests and small sequences.
	Word Strategy = iota

	// Tree is the weight-balanced leaf-partitioned production
	// strategy: O(log n) amortized for every operation.
	Tree
)

// Bitvector is a mutable 0/1 sequence supporting rank, select,
// insert, and delete, per ยง4.1 of the specification.
type Bitvector interface {
	// Size returns the number of bits currently in the sequence.
	Size() int

	// Access returns the bit at position i. Fails with
	// fserr.ErrOutOfRange if i >= Size().
	Access(i int) (bool, error)

	// Set overwrites the bit at position i with b. Fails with
	// fserr.ErrOutOfRange if i >= Size().
	Set(i int, b bool) error

	// Rank1 counts the 1-bits in [0, i] inclusive. Fails with
	// fserr.ErrOutOfRange if i >= Size().
	Rank1(i int) (int, error)

	// Rank0 counts the 0-bits in [0, i] inclusive. Fails with
	// fserr.ErrOutOfRange if i >= Size().
	Rank0(i int) (int, error)

	// Select1 returns the 0-based position of the k-th (1-indexed)
	// 1-bit. Fails with fserr.ErrOutOfRange if k < 1 or k exceeds the
	// total number of 1-bits.
	Select1(k int) (int, error)

	// Select0 returns the 0-based position of the k-th (1-indexed)
	// 0-bit. Fails with fserr.ErrOutOfRange if k < 1 or k exceeds the
	// total number of 0-bits.
	Select0(k int) (int, error)

	// Insert places a new bit with value b at position i, shifting
	// bits at [i, Size()) right by one. Fails with
	// fserr.ErrOutOfRange if i > Size().
	Insert(i int, b bool) error

	// Delete removes the bit at position i, shifting bits at
	// (i, Size()) left by one. Fails with fserr.ErrOutOfRange if
	// i >= Size().
	Delete(i int) error

	// Serialize encodes the bitvector as (u64 size, packed bytes).
	Serialize() []byte

	// SerializedSize returns len(Serialize()) without performing the
	// encoding.
	SerializedSize() int
}

// New creates an empty Bitvector using the given strategy.
func New(strategy Strategy) Bitvector {
	return NewSized(strategy, 0)
}

// NewSized creates a Bitvector of fixed initial length n, all bits
// zero, using the given strategy.
func NewSized(strategy Strategy, n int) Bitvector {
	switch strategy {
	case Tree:
		return newTreeBitvector(n)
	default:
		return newWordBitvector(n)
	}
}

// Deserialize decodes a Bitvector previously produced by Serialize,
// using the given strategy for the in-memory representation. Returns
// the bitvector and the number of bytes consumed from data.
func Deserialize(strategy Strategy, data []byte) (Bitvector, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("bitvector: deserialize: %w: need 8 header bytes, got %d", fserr.ErrInvalidImage, len(data))
	}
	n := int(binary.LittleEndian.Uint64(data[:8]))
	byteLen := (n + 7) / 8
	if len(data) < 8+byteLen {
		return nil, 0, fmt.Errorf("bitvector: deserialize: %w: need %d body bytes, got %d", fserr.ErrInvalidImage, byteLen, len(data)-8)
	}
	packed := data[8 : 8+byteLen]

	bv := NewSized(strategy, n)
	for i := 0; i < n; i++ {
		bit := (packed[i/8]>>(uint(i)%8))&1 == 1
		if bit {
			if err := bv.Set(i, true); err != nil {
				return nil, 0, err
			}
		}
	}
	return bv, 8 + byteLen, nil
}

// serializeFromAccess produces the canonical on-disk encoding of any
// Bitvector implementation by iterating Access, so both strategies
// share one wire format.
func serializeFromAccess(n int, access func(i int) bool) []byte {
	byteLen := (n + 7) / 8
	out := make([]byte, 8+byteLen)
	binary.LittleEndian.PutUint64(out[:8], uint64(n))
	for i := 0; i < n; i++ {
		if access(i) {
			out[8+i/8] |= 1 << (uint(i) % 8)
		}
	}
	return out
}

func serializedSizeFor(n int) int {
	return 8 + (n+7)/8
}
