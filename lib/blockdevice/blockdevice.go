// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

//go:build darwin || linux

// Package blockdevice implements fixed-size block reads and writes
// against a backing image file, per ยง2 and ยง6 of the specification.
// Unlike a memory-mapped read path, every access is a direct
// pread/pwrite against the file descriptor: the allocator grows the
// file on demand as new blocks are claimed, which does not compose
// with a fixed-size mmap the way the read-only cache device pattern
// this package is grounded on does.
package blockdevice

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DefaultBlockSize is the block size used when none is configured, per
// ยง6 of the specification.
const DefaultBlockSize = 4096

// Device is a raw block device backed by a regular file. Block 0 is
// reserved for the filesystem header and is never handed out by the
// allocator, but Device itself has no opinion about that — it merely
// performs block-aligned reads and writes against whatever block
// index it is given, growing the backing file as needed.
//
// Device is not safe for concurrent use; callers must serialize
// access themselves, per ยง5 of the specification.
type Device struct {
	fd        int
	blockSize int
	blocks    int64 // number of blocks currently backing the file
}

// Open opens or creates the image file at path and returns a Device
// with the given block size. If the file already exists, its current
// length (rounded down to a whole number of blocks) becomes the
// device's initial block count.
func Open(path string, blockSize int) (*Device, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("blockdevice: block size must be positive, got %d", blockSize)
	}

	fd, err := unix.Open(path, unix.O_CREAT|unix.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockdevice: opening %s: %w", path, err)
	}

	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("blockdevice: stating %s: %w", path, err)
	}

	return &Device{
		fd:        fd,
		blockSize: blockSize,
		blocks:    stat.Size / int64(blockSize),
	}, nil
}

// BlockSize returns the device's fixed block size in bytes.
func (d *Device) BlockSize() int { return d.blockSize }

// BlockCount returns the number of blocks currently backing the file.
func (d *Device) BlockCount() int64 { return d.blocks }

// EnsureBlocks grows the backing file, if necessary, so that it has
// at least n blocks. Growing never shrinks an existing file.
func (d *Device) EnsureBlocks(n int64) error {
	if n <= d.blocks {
		return nil
	}
	if err := unix.Ftruncate(d.fd, n*int64(d.blockSize)); err != nil {
		return fmt.Errorf("blockdevice: growing to %d blocks: %w", n, err)
	}
	d.blocks = n
	return nil
}

// ReadBlock reads the full contents of block index into a freshly
// allocated buffer of BlockSize() bytes. Reading beyond the current
// backing file length returns a zero-filled block, matching the
// semantics of a sparse file that has never been written.
func (d *Device) ReadBlock(index int64) ([]byte, error) {
	buf := make([]byte, d.blockSize)
	if index >= d.blocks {
		return buf, nil
	}
	if err := d.readExact(buf, index*int64(d.blockSize)); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteBlock writes the full contents of block index. data must be
// exactly BlockSize() bytes. The backing file is grown if index lies
// beyond its current block count.
func (d *Device) WriteBlock(index int64, data []byte) error {
	if len(data) != d.blockSize {
		return fmt.Errorf("blockdevice: WriteBlock: data length %d != block size %d", len(data), d.blockSize)
	}
	if err := d.EnsureBlocks(index + 1); err != nil {
		return err
	}
	return d.writeExact(data, index*int64(d.blockSize))
}

// ReadAt reads len(p) bytes starting at the given byte offset,
// spanning as many blocks as necessary. Reading beyond the allocated
// file length yields zero bytes.
func (d *Device) ReadAt(p []byte, offset int64) error {
	end := offset + int64(len(p))
	if end <= d.blocks*int64(d.blockSize) {
		return d.readExact(p, offset)
	}
	// Partially or fully beyond the backing file: zero-fill first,
	// then overlay whatever portion is actually backed.
	for i := range p {
		p[i] = 0
	}
	backed := d.blocks*int64(d.blockSize) - offset
	if backed <= 0 {
		return nil
	}
	return d.readExact(p[:backed], offset)
}

// WriteAt writes len(p) bytes starting at the given byte offset,
// growing the backing file as needed.
func (d *Device) WriteAt(p []byte, offset int64) error {
	end := offset + int64(len(p))
	neededBlocks := (end + int64(d.blockSize) - 1) / int64(d.blockSize)
	if err := d.EnsureBlocks(neededBlocks); err != nil {
		return err
	}
	return d.writeExact(p, offset)
}

func (d *Device) readExact(p []byte, offset int64) error {
	for len(p) > 0 {
		n, err := unix.Pread(d.fd, p, offset)
		if err != nil {
			return fmt.Errorf("blockdevice: pread at offset %d: %w", offset, err)
		}
		if n == 0 {
			for i := range p {
				p[i] = 0
			}
			return nil
		}
		p = p[n:]
		offset += int64(n)
	}
	return nil
}

func (d *Device) writeExact(p []byte, offset int64) error {
	for len(p) > 0 {
		n, err := unix.Pwrite(d.fd, p, offset)
		if err != nil {
			return fmt.Errorf("blockdevice: pwrite at offset %d: %w", offset, err)
		}
		p = p[n:]
		offset += int64(n)
	}
	return nil
}

// Sync flushes all pending writes to the underlying storage.
func (d *Device) Sync() error {
	if err := unix.Fsync(d.fd); err != nil {
		return fmt.Errorf("blockdevice: fsync: %w", err)
	}
	return nil
}

// Close releases the underlying file descriptor.
func (d *Device) Close() error {
	if err := unix.Close(d.fd); err != nil {
		return fmt.Errorf("blockdevice: close: %w", err)
	}
	d.fd = -1
	return nil
}
