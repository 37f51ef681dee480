// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Package wavelet implements a balanced two-bit wavelet tree over the
// four-symbol alphabet {0,1,2,3}, per ยง4.2 of the specification. The
// tree is a fixed three-level shape — one root bitvector plus two
// child bitvectors — rather than a general recursive wavelet tree,
// since the alphabet size is pinned at four by the FLOUDS type
// channel (file/folder/empty_folder/reserved).
package wavelet

import (
	"fmt"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/bitvector"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
)

// Symbol is a two-bit alphabet value in {0,1,2,3}.
type Symbol uint8

// MaxSymbol is the largest representable symbol value.
const MaxSymbol Symbol = 3

func (s Symbol) valid() bool { return s <= MaxSymbol }

func (s Symbol) high() bool { return s >= 2 }
func (s Symbol) low() bool  { return s&1 == 1 }

func fromBits(high, low bool) Symbol {
	s := Symbol(0)
	if high {
		s |= 2
	}
	if low {
		s |= 1
	}
	return s
}

// Tree is a dynamic sequence of Symbols supporting access, rank,
// select, insert, and delete in terms of three underlying
// [bitvector.Bitvector] instances: root (high bit of every symbol),
// left (low bits of symbols whose high bit is 0, in original order),
// and right (low bits of symbols whose high bit is 1).
type Tree struct {
	strategy    bitvector.Strategy
	root        bitvector.Bitvector
	left, right bitvector.Bitvector
}

// New creates an empty Tree whose internal bitvectors use the given
// strategy.
func New(strategy bitvector.Strategy) *Tree {
	return &Tree{
		strategy: strategy,
		root:     bitvector.New(strategy),
		left:     bitvector.New(strategy),
		right:    bitvector.New(strategy),
	}
}

// FromSymbols builds a Tree from an initial symbol sequence in a
// single pass, partitioning each symbol's low bit into left or right
// according to its high bit.
func FromSymbols(strategy bitvector.Strategy, symbols []Symbol) (*Tree, error) {
	t := New(strategy)
	for i, s := range symbols {
		if !s.valid() {
			return nil, fmt.Errorf("wavelet: symbol %d at position %d: %w", s, i, fserr.ErrInvalidSymbol)
		}
		if err := t.Insert(i, s); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Size returns the number of symbols in the sequence.
func (t *Tree) Size() int { return t.root.Size() }

func (t *Tree) childFor(high bool) bitvector.Bitvector {
	if high {
		return t.right
	}
	return t.left
}

// Access returns the symbol at position i.
func (t *Tree) Access(i int) (Symbol, error) {
	high, err := t.root.Access(i)
	if err != nil {
		return 0, err
	}
	childRank, err := rankAt(t.root, i, high)
	if err != nil {
		return 0, err
	}
	low, err := t.childFor(high).Access(childRank - 1)
	if err != nil {
		return 0, err
	}
	return fromBits(high, low), nil
}

// rankAt returns rank_b(root, i) where b = want, failing with
// OutOfRange via the underlying bitvector if i is invalid.
func rankAt(root bitvector.Bitvector, i int, want bool) (int, error) {
	if want {
		return root.Rank1(i)
	}
	return root.Rank0(i)
}

// Set overwrites the symbol at position i with s.
func (t *Tree) Set(i int, s Symbol) error {
	if !s.valid() {
		return fmt.Errorf("wavelet: set: symbol %d: %w", s, fserr.ErrInvalidSymbol)
	}
	oldHigh, err := t.root.Access(i)
	if err != nil {
		return err
	}
	oldRank, err := rankAt(t.root, i, oldHigh)
	if err != nil {
		return err
	}
	newHigh := s.high()
	if newHigh != oldHigh {
		if err := t.root.Set(i, newHigh); err != nil {
			return err
		}
		if err := t.childFor(oldHigh).Delete(oldRank - 1); err != nil {
			return err
		}
		newRank, err := rankAt(t.root, i, newHigh)
		if err != nil {
			return err
		}
		return t.childFor(newHigh).Insert(newRank-1, s.low())
	}
	return t.childFor(oldHigh).Set(oldRank-1, s.low())
}

// Rank counts occurrences of symbol s in W[0..i] inclusive.
func (t *Tree) Rank(s Symbol, i int) (int, error) {
	if !s.valid() {
		return 0, fmt.Errorf("wavelet: rank: symbol %d: %w", s, fserr.ErrInvalidSymbol)
	}
	high := s.high()
	r, err := rankAt(t.root, i, high)
	if err != nil {
		return 0, err
	}
	if r == 0 {
		return 0, nil
	}
	child := t.childFor(high)
	if s.low() {
		return child.Rank1(r - 1)
	}
	return child.Rank0(r - 1)
}

// Select returns the 0-based position of the k-th (1-indexed)
// occurrence of symbol s.
func (t *Tree) Select(s Symbol, k int) (int, error) {
	if !s.valid() {
		return 0, fmt.Errorf("wavelet: select: symbol %d: %w", s, fserr.ErrInvalidSymbol)
	}
	if k < 1 {
		return 0, fmt.Errorf("wavelet: select ordinal %d must be >= 1: %w", k, fserr.ErrOutOfRange)
	}
	high := s.high()
	child := t.childFor(high)
	var p int
	var err error
	if s.low() {
		p, err = child.Select1(k)
	} else {
		p, err = child.Select0(k)
	}
	if err != nil {
		return 0, err
	}
	if high {
		return t.root.Select1(p + 1)
	}
	return t.root.Select0(p + 1)
}

// Insert places symbol s at position i, shifting W[i..n) right by one.
func (t *Tree) Insert(i int, s Symbol) error {
	if !s.valid() {
		return fmt.Errorf("wavelet: insert: symbol %d: %w", s, fserr.ErrInvalidSymbol)
	}
	high := s.high()
	var childPos int
	if i == 0 {
		childPos = 0
	} else {
		r, err := rankAt(t.root, i-1, high)
		if err != nil {
			return err
		}
		childPos = r
	}
	if err := t.root.Insert(i, high); err != nil {
		return err
	}
	return t.childFor(high).Insert(childPos, s.low())
}

// Delete removes the symbol at position i, shifting W[i+1..n) left by
// one.
func (t *Tree) Delete(i int) error {
	high, err := t.root.Access(i)
	if err != nil {
		return err
	}
	childPos, err := rankAt(t.root, i, high)
	if err != nil {
		return err
	}
	if err := t.root.Delete(i); err != nil {
		return err
	}
	return t.childFor(high).Delete(childPos - 1)
}

// Serialize encodes the tree as the concatenation of the root, left,
// and right bitvector blobs, per ยง6 of the specification.
func (t *Tree) Serialize() []byte {
	rootBytes := t.root.Serialize()
	leftBytes := t.left.Serialize()
	rightBytes := t.right.Serialize()
	out := make([]byte, 0, len(rootBytes)+len(leftBytes)+len(rightBytes))
	out = append(out, rootBytes...)
	out = append(out, leftBytes...)
	out = append(out, rightBytes...)
	return out
}

// SerializedSize returns len(Serialize()) without performing the
// encoding.
func (t *Tree) SerializedSize() int {
	return t.root.SerializedSize() + t.left.SerializedSize() + t.right.SerializedSize()
}

// Deserialize decodes a Tree previously produced by Serialize. Returns
// the tree and the number of bytes consumed from data.
func Deserialize(strategy bitvector.Strategy, data []byte) (*Tree, int, error) {
	root, rootConsumed, err := bitvector.Deserialize(strategy, data)
	if err != nil {
		return nil, 0, fmt.Errorf("wavelet: deserialize root: %w", err)
	}
	data = data[rootConsumed:]
	left, leftConsumed, err := bitvector.Deserialize(strategy, data)
	if err != nil {
		return nil, 0, fmt.Errorf("wavelet: deserialize left: %w", err)
	}
	data = data[leftConsumed:]
	right, rightConsumed, err := bitvector.Deserialize(strategy, data)
	if err != nil {
		return nil, 0, fmt.Errorf("wavelet: deserialize right: %w", err)
	}
	return &Tree{strategy: strategy, root: root, left: left, right: right}, rootConsumed + leftConsumed + rightConsumed, nil
}
