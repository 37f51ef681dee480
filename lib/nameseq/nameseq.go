// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Package nameseq implements an indexed sequence of variable-length
// byte-string names, per ยง4.3 of the specification. Two strategies are
// available, selected at construction time:
//
//   - [Flat]: a plain [][]byte-backed list. O(n) insert/delete, O(1)
//     access.
//   - [Packed]: one contiguous byte buffer plus a boundary
//     [bitvector.Bitvector] marking the start of each name, keeping
//     the whole sequence in succinct form on the wire.
package nameseq

import (
	"encoding/binary"
	"fmt"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/bitvector"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
)

// Strategy selects the internal representation of a Sequence.
type Strategy int

const (
	// Flat is the simple indexed-list strategy: O(n) inserts, O(1)
	// access.
	Flat Strategy = iota

	// Packed is the concatenated-bytes-plus-boundary-bitvector
	// strategy, keeping both metadata and bytes in succinct form.
	Packed
)

// Sequence is an ordered, mutable sequence of byte-string names.
type Sequence interface {
	// Size returns the number of names in the sequence.
	Size() int

	// Access returns a copy of the name at position i. Fails with
	// fserr.ErrOutOfRange if i >= Size().
	Access(i int) ([]byte, error)

	// Set overwrites the name at position i. Fails with
	// fserr.ErrOutOfRange if i >= Size().
	Set(i int, name []byte) error

	// Insert places name at position i, shifting names at [i, Size())
	// right by one. Fails with fserr.ErrOutOfRange if i > Size().
	Insert(i int, name []byte) error

	// Delete removes the name at position i, shifting names at
	// (i, Size()) left by one. Fails with fserr.ErrOutOfRange if
	// i >= Size().
	Delete(i int) error

	// Serialize encodes the sequence per ยง6 of the specification.
	Serialize() []byte

	// SerializedSize returns len(Serialize()) without performing the
	// encoding.
	SerializedSize() int
}

// New creates an empty Sequence using the given strategy. bvStrategy
// selects the boundary bitvector's internal representation for
// [Packed]; it is ignored for [Flat].
func New(strategy Strategy, bvStrategy bitvector.Strategy) Sequence {
	switch strategy {
	case Packed:
		return newPackedSequence(bvStrategy)
	default:
		return newFlatSequence()
	}
}

// Deserialize decodes a Sequence previously produced by Serialize.
// Returns the sequence and the number of bytes consumed from data.
func Deserialize(strategy Strategy, bvStrategy bitvector.Strategy, data []byte) (Sequence, int, error) {
	switch strategy {
	case Packed:
		return deserializePackedSequence(bvStrategy, data)
	default:
		return deserializeFlatSequence(data)
	}
}

func checkIndex(i, n int) error {
	if i < 0 || i >= n {
		return fmt.Errorf("nameseq: index %d out of range [0, %d): %w", i, n, fserr.ErrOutOfRange)
	}
	return nil
}

func checkInsertPos(i, n int) error {
	if i < 0 || i > n {
		return fmt.Errorf("nameseq: insert position %d out of range [0, %d]: %w", i, n, fserr.ErrOutOfRange)
	}
	return nil
}

// --- Flat strategy ---

type flatSequence struct {
	names [][]byte
}

func newFlatSequence() *flatSequence {
	return &flatSequence{}
}

func (f *flatSequence) Size() int { return len(f.names) }

func (f *flatSequence) Access(i int) ([]byte, error) {
	if err := checkIndex(i, len(f.names)); err != nil {
		return nil, err
	}
	out := make([]byte, len(f.names[i]))
	copy(out, f.names[i])
	return out, nil
}

func (f *flatSequence) Set(i int, name []byte) error {
	if err := checkIndex(i, len(f.names)); err != nil {
		return err
	}
	stored := make([]byte, len(name))
	copy(stored, name)
	f.names[i] = stored
	return nil
}

func (f *flatSequence) Insert(i int, name []byte) error {
	if err := checkInsertPos(i, len(f.names)); err != nil {
		return err
	}
	stored := make([]byte, len(name))
	copy(stored, name)
	f.names = append(f.names, nil)
	copy(f.names[i+1:], f.names[i:])
	f.names[i] = stored
	return nil
}

func (f *flatSequence) Delete(i int) error {
	if err := checkIndex(i, len(f.names)); err != nil {
		return err
	}
	copy(f.names[i:], f.names[i+1:])
	f.names = f.names[:len(f.names)-1]
	return nil
}

// Serialize emits (u64 count, then per-name (u32 length, bytes)).
// This framing differs from Packed's; an image whose tree was
// created with the Flat strategy stores its names this way and can
// only be read back with Flat.
func (f *flatSequence) Serialize() []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out[:8], uint64(len(f.names)))
	for _, name := range f.names {
		var lenBuf [4]byte
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(name)))
		out = append(out, lenBuf[:]...)
		out = append(out, name...)
	}
	return out
}

func (f *flatSequence) SerializedSize() int {
	total := 8
	for _, name := range f.names {
		total += 4 + len(name)
	}
	return total
}

func deserializeFlatSequence(data []byte) (*flatSequence, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("nameseq: deserialize flat: %w: need 8 header bytes", fserr.ErrInvalidImage)
	}
	count := int(binary.LittleEndian.Uint64(data[:8]))
	pos := 8
	f := &flatSequence{names: make([][]byte, 0, count)}
	for i := 0; i < count; i++ {
		if pos+4 > len(data) {
			return nil, 0, fmt.Errorf("nameseq: deserialize flat: %w: truncated length at entry %d", fserr.ErrInvalidImage, i)
		}
		length := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+length > len(data) {
			return nil, 0, fmt.Errorf("nameseq: deserialize flat: %w: truncated name at entry %d", fserr.ErrInvalidImage, i)
		}
		name := make([]byte, length)
		copy(name, data[pos:pos+length])
		pos += length
		f.names = append(f.names, name)
	}
	return f, pos, nil
}

// --- Packed strategy ---

// packedSequence stores all name bytes concatenated in one buffer C,
// and a boundary bitvector M of equal length in which M[j] = 1 iff
// byte j starts a name.
type packedSequence struct {
	bvStrategy bitvector.Strategy
	bytes      []byte
	boundary   bitvector.Bitvector
}

func newPackedSequence(bvStrategy bitvector.Strategy) *packedSequence {
	return &packedSequence{
		bvStrategy: bvStrategy,
		boundary:   bitvector.New(bvStrategy),
	}
}

func (p *packedSequence) Size() int {
	ones, err := p.totalOnes()
	if err != nil {
		return 0
	}
	return ones
}

func (p *packedSequence) totalOnes() (int, error) {
	n := p.boundary.Size()
	if n == 0 {
		return 0, nil
	}
	return p.boundary.Rank1(n - 1)
}

// bounds returns the [start, end) byte range of the i-th name.
func (p *packedSequence) bounds(i int) (int, int, error) {
	start, err := p.boundary.Select1(i + 1)
	if err != nil {
		return 0, 0, fmt.Errorf("nameseq: packed: locating name %d: %w", i, err)
	}
	count, err := p.totalOnes()
	if err != nil {
		return 0, 0, err
	}
	var end int
	if i+1 < count {
		end, err = p.boundary.Select1(i + 2)
		if err != nil {
			return 0, 0, err
		}
	} else {
		end = len(p.bytes)
	}
	return start, end, nil
}

func (p *packedSequence) Access(i int) ([]byte, error) {
	count, err := p.totalOnes()
	if err != nil {
		return nil, err
	}
	if err := checkIndex(i, count); err != nil {
		return nil, err
	}
	start, end, err := p.bounds(i)
	if err != nil {
		return nil, err
	}
	out := make([]byte, end-start)
	copy(out, p.bytes[start:end])
	return out, nil
}

func (p *packedSequence) Set(i int, name []byte) error {
	count, err := p.totalOnes()
	if err != nil {
		return err
	}
	if err := checkIndex(i, count); err != nil {
		return err
	}
	if err := p.Delete(i); err != nil {
		return err
	}
	return p.Insert(i, name)
}

func (p *packedSequence) Insert(i int, name []byte) error {
	count, err := p.totalOnes()
	if err != nil {
		return err
	}
	if err := checkInsertPos(i, count); err != nil {
		return err
	}
	var byteOffset int
	if i < count {
		byteOffset, _, err = p.bounds(i)
		if err != nil {
			return err
		}
	} else {
		byteOffset = len(p.bytes)
	}

	newBytes := make([]byte, len(p.bytes)+len(name))
	copy(newBytes, p.bytes[:byteOffset])
	copy(newBytes[byteOffset:], name)
	copy(newBytes[byteOffset+len(name):], p.bytes[byteOffset:])
	p.bytes = newBytes

	for j := 0; j < len(name); j++ {
		if err := p.boundary.Insert(byteOffset+j, j == 0); err != nil {
			return err
		}
	}
	return nil
}

func (p *packedSequence) Delete(i int) error {
	count, err := p.totalOnes()
	if err != nil {
		return err
	}
	if err := checkIndex(i, count); err != nil {
		return err
	}
	start, end, err := p.bounds(i)
	if err != nil {
		return err
	}
	length := end - start

	newBytes := make([]byte, len(p.bytes)-length)
	copy(newBytes, p.bytes[:start])
	copy(newBytes[start:], p.bytes[end:])
	p.bytes = newBytes

	for j := 0; j < length; j++ {
		if err := p.boundary.Delete(start); err != nil {
			return err
		}
	}
	return nil
}

// Serialize emits (u64 byte_len, byte_len bytes, boundary-bitvector
// blob), per ยง6 of the specification.
func (p *packedSequence) Serialize() []byte {
	boundaryBlob := p.boundary.Serialize()
	out := make([]byte, 8+len(p.bytes)+len(boundaryBlob))
	binary.LittleEndian.PutUint64(out[:8], uint64(len(p.bytes)))
	copy(out[8:], p.bytes)
	copy(out[8+len(p.bytes):], boundaryBlob)
	return out
}

func (p *packedSequence) SerializedSize() int {
	return 8 + len(p.bytes) + p.boundary.SerializedSize()
}

func deserializePackedSequence(bvStrategy bitvector.Strategy, data []byte) (*packedSequence, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("nameseq: deserialize packed: %w: need 8 header bytes", fserr.ErrInvalidImage)
	}
	byteLen := int(binary.LittleEndian.Uint64(data[:8]))
	if len(data) < 8+byteLen {
		return nil, 0, fmt.Errorf("nameseq: deserialize packed: %w: need %d body bytes", fserr.ErrInvalidImage, byteLen)
	}
	bytesCopy := make([]byte, byteLen)
	copy(bytesCopy, data[8:8+byteLen])

	boundary, consumed, err := bitvector.Deserialize(bvStrategy, data[8+byteLen:])
	if err != nil {
		return nil, 0, fmt.Errorf("nameseq: deserialize packed: boundary bitvector: %w", err)
	}

	return &packedSequence{
		bvStrategy: bvStrategy,
		bytes:      bytesCopy,
		boundary:   boundary,
	}, 8 + byteLen + consumed, nil
}
