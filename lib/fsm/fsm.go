// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Package fsm implements the FilesystemManager described in §4.1 and
// §6 of the specification: the component that owns the on-disk image
// (header, tree, inode table, allocator, block device) and exposes
// the adapter contract (navigation, mutation, lifecycle).
package fsm

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/allocator"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/blockdevice"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/clock"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/flouds"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/inode"
)

// RootNode is the node position of the filesystem root, re-exported
// from flouds for adapter convenience.
const RootNode = flouds.Root

// headerMagic is the 6-byte ASCII tag at the start of block 0.
var headerMagic = [6]byte{'F', 'L', 'O', 'U', 'D', 'S'}

// headerSize is the number of meaningful header bytes, per §6:
// magic (6) + 3 * (handle u64, size u64).
const headerSize = 6 + 3*16

// header mirrors the on-disk block-0 layout.
type header struct {
	allocatorHandle allocator.Handle
	allocatorSize   uint64
	treeHandle      allocator.Handle
	treeSize        uint64
	inodeHandle     allocator.Handle
	inodeSize       uint64
}

func (h header) encode(blockSize int) []byte {
	buf := make([]byte, blockSize)
	copy(buf[0:6], headerMagic[:])
	binary.LittleEndian.PutUint64(buf[6:14], uint64(h.allocatorHandle))
	binary.LittleEndian.PutUint64(buf[14:22], h.allocatorSize)
	binary.LittleEndian.PutUint64(buf[22:30], uint64(h.treeHandle))
	binary.LittleEndian.PutUint64(buf[30:38], h.treeSize)
	binary.LittleEndian.PutUint64(buf[38:46], uint64(h.inodeHandle))
	binary.LittleEndian.PutUint64(buf[46:54], h.inodeSize)
	return buf
}

func decodeHeader(buf []byte) (header, error) {
	if len(buf) < headerSize {
		return header{}, fmt.Errorf("fsm: header: %w: block too short", fserr.ErrInvalidImage)
	}
	if !bytes.Equal(buf[0:6], headerMagic[:]) {
		return header{}, fmt.Errorf("fsm: header: %w: magic mismatch", fserr.ErrInvalidImage)
	}
	return header{
		allocatorHandle: allocator.Handle(binary.LittleEndian.Uint64(buf[6:14])),
		allocatorSize:   binary.LittleEndian.Uint64(buf[14:22]),
		treeHandle:      allocator.Handle(binary.LittleEndian.Uint64(buf[22:30])),
		treeSize:        binary.LittleEndian.Uint64(buf[30:38]),
		inodeHandle:     allocator.Handle(binary.LittleEndian.Uint64(buf[38:46])),
		inodeSize:       binary.LittleEndian.Uint64(buf[46:54]),
	}, nil
}

func isZeroBlock(buf []byte) bool {
	for _, b := range buf {
		if b != 0 {
			return false
		}
	}
	return true
}

// Manager is the FilesystemManager: it owns the tree, inode table,
// allocator, and block device, and exposes the adapter contract of
// §6 (navigation, mutation, lifecycle).
type Manager struct {
	dev     *blockdevice.Device
	alloc   *allocator.Allocator
	tree    *flouds.Tree
	inodes  *inode.Table
	clk     clock.Clock
	log     *slog.Logger
	lastHdr header
}

// Options configures a new or mounted Manager.
type Options struct {
	// TreeConfig selects the strategies for the FLOUDS tree. It is
	// used both when creating and when mounting an image: the image
	// records no strategy of its own, so the caller must supply the
	// same Config every time an image is (re)opened.
	TreeConfig flouds.Config
	Clock      clock.Clock
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Create initializes a brand new image at path: a fresh tree
// containing only the root, an empty inode table seeded with one
// record for the root, and a fresh allocator, then calls Save to
// write everything including the header.
func Create(path string, blockSize int, opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	dev, err := blockdevice.Open(path, blockSize)
	if err != nil {
		return nil, fmt.Errorf("fsm: create: %w: %v", fserr.ErrIoFailure, err)
	}
	if err := dev.EnsureBlocks(1); err != nil {
		return nil, fmt.Errorf("fsm: create: %w: %v", fserr.ErrIoFailure, err)
	}

	m := &Manager{
		dev:    dev,
		alloc:  allocator.New(dev),
		tree:   flouds.New(opts.TreeConfig),
		inodes: inode.New(),
		clk:    opts.Clock,
		log:    opts.Logger,
	}
	rootInode := inode.NewInode(m.clk, 0, 0o755|ModeDir)
	if err := m.inodes.Insert(0, rootInode); err != nil {
		dev.Close()
		return nil, err
	}
	if err := m.Save(); err != nil {
		dev.Close()
		return nil, err
	}
	m.log.Info("filesystem image created", "path", path, "block_size", blockSize)
	return m, nil
}

// ModeDir is the single bit the manager sets on folder inodes, on top
// of whatever permission bits the caller requests. The adapter is
// free to interpret mode bits however its target filesystem API
// requires; the core only guarantees this bit distinguishes folders,
// and that it must be masked off before the mode is reported through
// a POSIX-facing API such as a FUSE Attr.
const ModeDir = 1 << 31

// Mount opens an existing image at path and reconstructs the tree,
// inode table, and allocator from the on-disk header and extents.
func Mount(path string, blockSize int, opts Options) (*Manager, error) {
	opts = opts.withDefaults()
	dev, err := blockdevice.Open(path, blockSize)
	if err != nil {
		return nil, fmt.Errorf("fsm: mount: %w: %v", fserr.ErrIoFailure, err)
	}

	block0, err := dev.ReadBlock(0)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("fsm: mount: %w: %v", fserr.ErrIoFailure, err)
	}
	if isZeroBlock(block0) {
		dev.Close()
		return nil, fmt.Errorf("fsm: mount: %w: empty image, use Create", fserr.ErrInvalidImage)
	}
	hdr, err := decodeHeader(block0)
	if err != nil {
		dev.Close()
		return nil, err
	}

	alloc := allocator.New(dev)

	treeBlob := make([]byte, hdr.treeSize)
	if err := alloc.Read(hdr.treeHandle, treeBlob, hdr.treeSize, 0); err != nil {
		dev.Close()
		return nil, err
	}
	tree, consumed, err := flouds.Deserialize(opts.TreeConfig, treeBlob)
	if err != nil {
		dev.Close()
		return nil, err
	}
	if uint64(consumed) != hdr.treeSize {
		dev.Close()
		return nil, fmt.Errorf("fsm: mount: %w: tree extent size disagreement", fserr.ErrInvalidImage)
	}

	inodeBlob := make([]byte, hdr.inodeSize)
	if err := alloc.Read(hdr.inodeHandle, inodeBlob, hdr.inodeSize, 0); err != nil {
		dev.Close()
		return nil, err
	}
	inodes, consumed, err := inode.Deserialize(inodeBlob)
	if err != nil {
		dev.Close()
		return nil, err
	}
	if uint64(consumed) != hdr.inodeSize {
		dev.Close()
		return nil, fmt.Errorf("fsm: mount: %w: inode extent size disagreement", fserr.ErrInvalidImage)
	}

	if tree.Size() != inodes.Size() {
		dev.Close()
		return nil, fmt.Errorf("fsm: mount: %w: tree size %d != inode table size %d",
			fserr.ErrInvariantViolation, tree.Size(), inodes.Size())
	}

	allocBlob := make([]byte, hdr.allocatorSize)
	if err := alloc.Read(hdr.allocatorHandle, allocBlob, hdr.allocatorSize, 0); err != nil {
		dev.Close()
		return nil, err
	}
	alloc, consumed, err = allocator.Deserialize(dev, allocBlob)
	if err != nil {
		dev.Close()
		return nil, err
	}
	if uint64(consumed) != hdr.allocatorSize {
		dev.Close()
		return nil, fmt.Errorf("fsm: mount: %w: allocator extent size disagreement", fserr.ErrInvalidImage)
	}

	m := &Manager{
		dev:     dev,
		alloc:   alloc,
		tree:    tree,
		inodes:  inodes,
		clk:     opts.Clock,
		log:     opts.Logger,
		lastHdr: hdr,
	}
	m.log.Info("filesystem image mounted", "path", path, "nodes", tree.Size())
	return m, nil
}

// Unmount releases the underlying block device. Callers should Save
// before Unmount if pending mutations must be persisted.
func (m *Manager) Unmount() error {
	m.log.Info("filesystem image unmounted")
	return m.dev.Close()
}

// Save persists the tree and inode table to their extents (each
// resized through the allocator, which may move it to a fresh
// extent), then the allocator's own state via its self-description
// fixpoint, then rewrites the block-0 header to point at the new
// extents. Order matters: the tree and inode table are written before
// the allocator's own self-description is finalized, since writing
// them may itself consume blocks that change the allocator's state.
func (m *Manager) Save() error {
	treeBlob := m.tree.Serialize()
	treeHandle, treeSize, err := m.saveExtent(m.lastHdr.treeHandle, m.lastHdr.treeSize, treeBlob)
	if err != nil {
		return fmt.Errorf("fsm: save: tree: %w", err)
	}

	inodeBlob := m.inodes.Serialize()
	inodeHandle, inodeSize, err := m.saveExtent(m.lastHdr.inodeHandle, m.lastHdr.inodeSize, inodeBlob)
	if err != nil {
		return fmt.Errorf("fsm: save: inode table: %w", err)
	}

	allocHandle, allocSize, err := m.alloc.Save(m.lastHdr.allocatorHandle, m.lastHdr.allocatorSize)
	if err != nil {
		return fmt.Errorf("fsm: save: allocator: %w", err)
	}

	hdr := header{
		allocatorHandle: allocHandle,
		allocatorSize:   allocSize,
		treeHandle:      treeHandle,
		treeSize:        uint64(treeSize),
		inodeHandle:     inodeHandle,
		inodeSize:       uint64(inodeSize),
	}
	if err := m.dev.WriteBlock(0, hdr.encode(m.dev.BlockSize())); err != nil {
		return fmt.Errorf("fsm: save: header: %w: %v", fserr.ErrIoFailure, err)
	}
	if err := m.dev.Sync(); err != nil {
		return fmt.Errorf("fsm: save: %w: %v", fserr.ErrIoFailure, err)
	}
	m.lastHdr = hdr
	m.log.Debug("filesystem image saved", "tree_size", treeSize, "inode_size", inodeSize, "allocator_size", allocSize)
	return nil
}

// saveExtent writes blob into an extent previously sized oldSize at
// oldHandle, resizing (without copy-on-grow, per §4.5) as needed.
func (m *Manager) saveExtent(oldHandle allocator.Handle, oldSize uint64, blob []byte) (allocator.Handle, int, error) {
	newSize := uint64(len(blob))
	handle, err := m.alloc.Resize(oldHandle, oldSize, newSize)
	if err != nil {
		return 0, 0, err
	}
	if err := m.alloc.Write(handle, blob, newSize, 0); err != nil {
		return 0, 0, err
	}
	return handle, len(blob), nil
}

// Navigation

func (m *Manager) ChildrenCount(v int) (int, error)  { return m.tree.ChildrenCount(v) }
func (m *Manager) Child(v, j int) (int, error)       { return m.tree.Child(v, j) }
func (m *Manager) GetName(v int) ([]byte, error)     { return m.tree.GetName(v) }
func (m *Manager) IsFolder(v int) (bool, error)      { return m.tree.IsFolder(v) }
func (m *Manager) IsFile(v int) (bool, error)        { return m.tree.IsFile(v) }
func (m *Manager) IsEmptyFolder(v int) (bool, error) { return m.tree.IsEmptyFolder(v) }
func (m *Manager) Path(p string) (int, error)        { return m.tree.Path(p) }

// GetInode returns the inode record for node v.
func (m *Manager) GetInode(v int) (inode.Inode, error) {
	return m.inodes.Get(v)
}

// Mutation

// AddNode creates a new child of parent named name and keeps tree and
// inode table in lockstep. Files are given a zero-size extent
// immediately (so that a later SetFileSize/WriteFile has something to
// resize from); folders carry no allocation (AllocationHandle stays
// 0, the reserved header block, which the allocator never hands out),
// per the inode record's documented convention.
func (m *Manager) AddNode(parent int, name []byte, isFolder bool) (int, error) {
	v, err := m.tree.Insert(parent, name, isFolder)
	if err != nil {
		return 0, err
	}
	var handle allocator.Handle
	mode := uint32(0o644)
	if isFolder {
		mode = 0o755 | ModeDir
	} else {
		handle, err = m.alloc.Allocate(0)
		if err != nil {
			return 0, err
		}
	}
	rec := inode.NewInode(m.clk, handle, mode)
	if err := m.inodes.Insert(v, rec); err != nil {
		return 0, err
	}
	return v, nil
}

// RemoveNode removes node v from the tree and its inode record.
func (m *Manager) RemoveNode(v int) error {
	if err := m.tree.Remove(v); err != nil {
		return err
	}
	return m.inodes.Remove(v)
}

// ReadFile reads size bytes at offset from node v's backing extent.
func (m *Manager) ReadFile(v int, buf []byte, size, offset uint64) error {
	rec, err := m.inodes.Get(v)
	if err != nil {
		return err
	}
	return m.alloc.Read(rec.AllocationHandle, buf, size, offset)
}

// WriteFile writes size bytes from buf to offset in node v's backing
// extent, growing the extent first if the write extends past its
// current footprint, and bumps its mtime.
func (m *Manager) WriteFile(v int, buf []byte, size, offset uint64) error {
	rec, err := m.inodes.Get(v)
	if err != nil {
		return err
	}
	newSize := rec.Size
	if offset+size > newSize {
		newSize = offset + size
	}
	if newSize > rec.Size {
		handle, err := m.alloc.Resize(rec.AllocationHandle, rec.Size, newSize)
		if err != nil {
			return err
		}
		rec.AllocationHandle = handle
	}
	if err := m.alloc.Write(rec.AllocationHandle, buf, size, offset); err != nil {
		return err
	}
	rec.Mtime = m.clk.Now().UnixNano()
	rec.Size = newSize
	return m.inodes.Set(v, rec)
}

// SetFileSize resizes node v's backing extent to size, per §4.6.
func (m *Manager) SetFileSize(v int, size uint64) error {
	rec, err := m.inodes.Get(v)
	if err != nil {
		return err
	}
	handle, err := m.alloc.Resize(rec.AllocationHandle, rec.Size, size)
	if err != nil {
		return err
	}
	rec.AllocationHandle = handle
	rec.Size = size
	return m.inodes.Set(v, rec)
}
