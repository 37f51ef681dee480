// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Package allocator implements the bump-strategy variable-length
// extent allocator described in §4.5 of the specification: a single
// next_block counter that hands out monotonically increasing block
// ranges and never reclaims them.
package allocator

import (
	"encoding/binary"
	"fmt"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/blockdevice"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
)

// Handle identifies an extent by its starting block index. Block 0 is
// reserved for the filesystem header, so every handle the allocator
// hands out is >= 1.
type Handle uint64

// Allocator is the bump-strategy extent allocator. It owns no memory
// of its own beyond next_block: free is a no-op, and resize only ever
// grows an extent's footprint by allocating a fresh one when the
// existing extent's block count does not already cover the new size.
// The reference bump strategy does not copy the old extent's contents
// on grow — callers that need the previous bytes preserved must copy
// them before resizing, per §4.5.
type Allocator struct {
	dev       *blockdevice.Device
	nextBlock uint64
}

// New creates an allocator over dev with next_block starting just
// past the reserved header block.
func New(dev *blockdevice.Device) *Allocator {
	return &Allocator{dev: dev, nextBlock: 1}
}

func blocksFor(size uint64, blockSize int) uint64 {
	bs := uint64(blockSize)
	return (size + bs - 1) / bs
}

// Allocate reserves ⌈size / block_size⌉ blocks starting at the
// current next_block, advances next_block past them, and returns the
// starting block index as a Handle. size may be 0, in which case one
// block is still reserved, so the extent gets a handle of its own
// (and a later resize has something to grow from).
func (a *Allocator) Allocate(size uint64) (Handle, error) {
	h := Handle(a.nextBlock)
	n := blocksFor(size, a.dev.BlockSize())
	if n == 0 {
		n = 1
	}
	a.nextBlock += n
	if err := a.dev.EnsureBlocks(int64(a.nextBlock)); err != nil {
		return 0, fmt.Errorf("allocator: allocate: %w", err)
	}
	return h, nil
}

// Free is a no-op under the bump strategy: space is never reclaimed.
func (a *Allocator) Free(h Handle) error {
	_ = h
	return nil
}

// Resize returns h unchanged if the new size still fits within the
// block count already reserved for oldSize; otherwise it allocates a
// fresh extent of newSize and returns its handle. The caller is
// responsible for copying any bytes from the old extent that must
// survive the move.
func (a *Allocator) Resize(h Handle, oldSize, newSize uint64) (Handle, error) {
	if blocksFor(newSize, a.dev.BlockSize()) <= blocksFor(oldSize, a.dev.BlockSize()) {
		return h, nil
	}
	return a.Allocate(newSize)
}

// Read reads size bytes at offset within the extent identified by h
// into buf. buf must be at least size bytes.
func (a *Allocator) Read(h Handle, buf []byte, size, offset uint64) error {
	if uint64(len(buf)) < size {
		return fmt.Errorf("allocator: read: buf too small (%d < %d)", len(buf), size)
	}
	byteOffset := uint64(h)*uint64(a.dev.BlockSize()) + offset
	if err := a.dev.ReadAt(buf[:size], int64(byteOffset)); err != nil {
		return fmt.Errorf("allocator: read: %w: %v", fserr.ErrIoFailure, err)
	}
	return nil
}

// Write writes size bytes from buf to offset within the extent
// identified by h. The bytes go straight to their byte range through
// Device.WriteAt; the rest of a partially written block is left
// unchanged.
func (a *Allocator) Write(h Handle, buf []byte, size, offset uint64) error {
	if uint64(len(buf)) < size {
		return fmt.Errorf("allocator: write: buf too small (%d < %d)", len(buf), size)
	}
	byteOffset := uint64(h)*uint64(a.dev.BlockSize()) + offset
	if err := a.dev.WriteAt(buf[:size], int64(byteOffset)); err != nil {
		return fmt.Errorf("allocator: write: %w: %v", fserr.ErrIoFailure, err)
	}
	return nil
}

// SerializedSize returns the number of bytes Serialize produces: a
// single u64 holding next_block, per §6.
func (a *Allocator) SerializedSize() uint64 {
	return 8
}

// Serialize encodes the allocator's state as a single little-endian
// u64 holding next_block.
func (a *Allocator) Serialize() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, a.nextBlock)
	return buf
}

// Deserialize reconstructs an Allocator from a blob previously
// produced by Serialize, operating against dev.
func Deserialize(dev *blockdevice.Device, data []byte) (*Allocator, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("allocator: deserialize: %w: need 8 bytes, got %d", fserr.ErrInvalidImage, len(data))
	}
	return &Allocator{dev: dev, nextBlock: binary.LittleEndian.Uint64(data)}, 8, nil
}

// Save writes the allocator's own serialized state into an extent
// allocated from itself, per §4.5's self-description fixpoint: each
// round, serializing may change next_block (because allocating or
// resizing the self-describing extent consumes blocks), so the size
// is re-measured and the extent re-allocated/resized until the size
// stops changing. selfHandle and selfSize are the previous extent's
// handle and size (0/0 on first save), used for resizing. Save
// returns the handle and final serialized size of the allocator's own
// extent.
func (a *Allocator) Save(selfHandle Handle, selfSize uint64) (Handle, uint64, error) {
	h := selfHandle
	size := selfSize
	for {
		blob := a.Serialize()
		newSize := uint64(len(blob))
		newHandle, err := a.Resize(h, size, newSize)
		if err != nil {
			return 0, 0, fmt.Errorf("allocator: save: %w", err)
		}
		if newHandle == h && newSize == size {
			if err := a.Write(h, blob, newSize, 0); err != nil {
				return 0, 0, err
			}
			return h, newSize, nil
		}
		h, size = newHandle, newSize
	}
}
