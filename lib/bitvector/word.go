// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

package bitvector

import (
	"fmt"
	"math/bits"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
)

// wordBitvector is the packed-word reference strategy: a flat []uint64
// holding n bits, insert/delete implemented by shifting the whole
// tail by one bit. Access and Set are O(1); rank scans word by word,
// so it costs O(n/64), and select scans bit by bit, so it costs O(n)
// in the worst case.
type wordBitvector struct {
	words []uint64
	n     int
}

func newWordBitvector(n int) *wordBitvector {
	return &wordBitvector{
		words: make([]uint64, (n+63)/64),
		n:     n,
	}
}

func (b *wordBitvector) Size() int { return b.n }

func (b *wordBitvector) checkIndex(i int) error {
	if i < 0 || i >= b.n {
		return fmt.Errorf("bitvector: index %d out of range [0, %d): %w", i, b.n, fserr.ErrOutOfRange)
	}
	return nil
}

func (b *wordBitvector) getBit(i int) bool {
	return (b.words[i/64]>>(uint(i)%64))&1 == 1
}

func (b *wordBitvector) setBit(i int, v bool) {
	word := i / 64
	off := uint(i) % 64
	if v {
		b.words[word] |= 1 << off
	} else {
		b.words[word] &^= 1 << off
	}
}

func (b *wordBitvector) Access(i int) (bool, error) {
	if err := b.checkIndex(i); err != nil {
		return false, err
	}
	return b.getBit(i), nil
}

func (b *wordBitvector) Set(i int, v bool) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	b.setBit(i, v)
	return nil
}

func (b *wordBitvector) Rank1(i int) (int, error) {
	if err := b.checkIndex(i); err != nil {
		return 0, err
	}
	fullWords := i / 64
	count := 0
	for w := 0; w < fullWords; w++ {
		count += bits.OnesCount64(b.words[w])
	}
	rem := uint(i)%64 + 1
	mask := uint64(1)<<rem - 1
	count += bits.OnesCount64(b.words[fullWords] & mask)
	return count, nil
}

func (b *wordBitvector) Rank0(i int) (int, error) {
	r1, err := b.Rank1(i)
	if err != nil {
		return 0, err
	}
	return i + 1 - r1, nil
}

func (b *wordBitvector) selectBit(k int, want bool) (int, error) {
	if k < 1 {
		return 0, fmt.Errorf("bitvector: select ordinal %d must be >= 1: %w", k, fserr.ErrOutOfRange)
	}
	remaining := k
	for i := 0; i < b.n; i++ {
		if b.getBit(i) == want {
			remaining--
			if remaining == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("bitvector: select ordinal %d exceeds available bits: %w", k, fserr.ErrOutOfRange)
}

func (b *wordBitvector) Select1(k int) (int, error) { return b.selectBit(k, true) }
func (b *wordBitvector) Select0(k int) (int, error) { return b.selectBit(k, false) }

func (b *wordBitvector) Insert(i int, v bool) error {
	if i < 0 || i > b.n {
		return fmt.Errorf("bitvector: insert position %d out of range [0, %d]: %w", i, b.n, fserr.ErrOutOfRange)
	}
	b.n++
	if (b.n+63)/64 > len(b.words) {
		b.words = append(b.words, 0)
	}
	for pos := b.n - 1; pos > i; pos-- {
		b.setBit(pos, b.getBit(pos-1))
	}
	b.setBit(i, v)
	return nil
}

func (b *wordBitvector) Delete(i int) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	for pos := i; pos < b.n-1; pos++ {
		b.setBit(pos, b.getBit(pos+1))
	}
	b.n--
	b.words = b.words[:(b.n+63)/64]
	return nil
}

func (b *wordBitvector) Serialize() []byte {
	return serializeFromAccess(b.n, b.getBit)
}

func (b *wordBitvector) SerializedSize() int {
	return serializedSizeFor(b.n)
}
