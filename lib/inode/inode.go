// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Package inode implements the InodeTable described in §4.6 of the
// specification: a parallel sequence of fixed-size metadata records,
// indexed by FloudsTree node position.
package inode

import (
	"encoding/binary"
	"fmt"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/allocator"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/clock"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
)

// recordSize is the on-disk size of a single Inode record:
// {u64 handle, u64 size, u32 mode, i64 mtime, i64 atime, i64 ctime}.
const recordSize = 8 + 8 + 4 + 8 + 8 + 8

// Inode is the fixed-size metadata record attached to every tree
// node. AllocationHandle is meaningless for folders (it is left at
// its zero value).
type Inode struct {
	AllocationHandle allocator.Handle
	Size             uint64
	Mode             uint32
	Mtime            int64 // unix nanoseconds
	Atime            int64
	Ctime            int64
}

// Table is the InodeTable: a dense, index-addressed sequence of
// Inode records kept in lockstep with FloudsTree node positions.
// Table.Size() must equal FloudsTree.Size() after every operation,
// per the invariant in §8.
type Table struct {
	records []Inode
}

// New returns an empty Table.
func New() *Table {
	return &Table{}
}

// Size returns the number of inode records.
func (t *Table) Size() int {
	return len(t.records)
}

func (t *Table) checkIndex(i int) error {
	if i < 0 || i >= len(t.records) {
		return fmt.Errorf("inode: index %d: %w", i, fserr.ErrOutOfRange)
	}
	return nil
}

// Get returns the inode record at position i.
func (t *Table) Get(i int) (Inode, error) {
	if err := t.checkIndex(i); err != nil {
		return Inode{}, err
	}
	return t.records[i], nil
}

// Set overwrites the inode record at position i.
func (t *Table) Set(i int, rec Inode) error {
	if err := t.checkIndex(i); err != nil {
		return err
	}
	t.records[i] = rec
	return nil
}

// Insert inserts rec at position i, shifting existing records at and
// after i one place to the right. i may equal Size() to append.
func (t *Table) Insert(i int, rec Inode) error {
	if i < 0 || i > len(t.records) {
		return fmt.Errorf("inode: insert at %d: %w", i, fserr.ErrOutOfRange)
	}
	t.records = append(t.records, Inode{})
	copy(t.records[i+1:], t.records[i:])
	t.records[i] = rec
	return nil
}

// Remove deletes the record at position i, shifting later records
// one place to the left.
func (t *Table) Remove(i int) error {
	if err := t.checkIndex(i); err != nil {
		return err
	}
	copy(t.records[i:], t.records[i+1:])
	t.records = t.records[:len(t.records)-1]
	return nil
}

// NewInode builds an Inode stamped with the current time from clk,
// for use when a new tree node is created.
func NewInode(clk clock.Clock, handle allocator.Handle, mode uint32) Inode {
	now := clk.Now().UnixNano()
	return Inode{
		AllocationHandle: handle,
		Mode:             mode,
		Mtime:            now,
		Atime:            now,
		Ctime:            now,
	}
}

// SerializedSize returns the number of bytes Serialize produces.
func (t *Table) SerializedSize() int {
	return 8 + len(t.records)*recordSize
}

// Serialize encodes the table as `u64 count` followed by count fixed-
// size records, per §6.
func (t *Table) Serialize() []byte {
	buf := make([]byte, t.SerializedSize())
	binary.LittleEndian.PutUint64(buf, uint64(len(t.records)))
	off := 8
	for _, rec := range t.records {
		putRecord(buf[off:off+recordSize], rec)
		off += recordSize
	}
	return buf
}

// Deserialize reconstructs a Table from a blob previously produced by
// Serialize, returning the number of bytes consumed.
func Deserialize(data []byte) (*Table, int, error) {
	if len(data) < 8 {
		return nil, 0, fmt.Errorf("inode: deserialize: %w: need 8 bytes, got %d", fserr.ErrInvalidImage, len(data))
	}
	count := binary.LittleEndian.Uint64(data)
	need := 8 + int(count)*recordSize
	if len(data) < need {
		return nil, 0, fmt.Errorf("inode: deserialize: %w: need %d bytes, got %d", fserr.ErrInvalidImage, need, len(data))
	}
	records := make([]Inode, count)
	off := 8
	for i := range records {
		records[i] = getRecord(data[off : off+recordSize])
		off += recordSize
	}
	return &Table{records: records}, need, nil
}

func putRecord(buf []byte, rec Inode) {
	binary.LittleEndian.PutUint64(buf[0:8], uint64(rec.AllocationHandle))
	binary.LittleEndian.PutUint64(buf[8:16], rec.Size)
	binary.LittleEndian.PutUint32(buf[16:20], rec.Mode)
	binary.LittleEndian.PutUint64(buf[20:28], uint64(rec.Mtime))
	binary.LittleEndian.PutUint64(buf[28:36], uint64(rec.Atime))
	binary.LittleEndian.PutUint64(buf[36:44], uint64(rec.Ctime))
}

func getRecord(buf []byte) Inode {
	return Inode{
		AllocationHandle: allocator.Handle(binary.LittleEndian.Uint64(buf[0:8])),
		Size:             binary.LittleEndian.Uint64(buf[8:16]),
		Mode:             binary.LittleEndian.Uint32(buf[16:20]),
		Mtime:            int64(binary.LittleEndian.Uint64(buf[20:28])),
		Atime:            int64(binary.LittleEndian.Uint64(buf[28:36])),
		Ctime:            int64(binary.LittleEndian.Uint64(buf[36:44])),
	}
}
