// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

package allocator

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/blockdevice"
)

func newDevice(t *testing.T, blockSize int) *blockdevice.Device {
	t.Helper()
	dev, err := blockdevice.Open(filepath.Join(t.TempDir(), "image"), blockSize)
	if err != nil {
		t.Fatalf("blockdevice.Open: %v", err)
	}
	t.Cleanup(func() { dev.Close() })
	return dev
}

func TestAllocateHandsOutIncreasingBlocks(t *testing.T) {
	dev := newDevice(t, 64)
	a := New(dev)

	h1, err := a.Allocate(100)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if h1 != 1 {
		t.Errorf("h1 = %d, want 1 (block 0 reserved)", h1)
	}

	h2, err := a.Allocate(10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	// 100 bytes over a 64-byte block size needs 2 blocks (ceil(100/64)=2),
	// so the next extent starts at block 1+2=3.
	if h2 != 3 {
		t.Errorf("h2 = %d, want 3", h2)
	}
}

func TestResizeWithinSameBlockCountReturnsSameHandle(t *testing.T) {
	dev := newDevice(t, 64)
	a := New(dev)

	h, err := a.Allocate(10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	resized, err := a.Resize(h, 10, 20)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if resized != h {
		t.Errorf("Resize within same block count returned %d, want %d (unchanged)", resized, h)
	}
}

func TestResizeBeyondBlockCountAllocatesFreshExtent(t *testing.T) {
	dev := newDevice(t, 64)
	a := New(dev)

	h, err := a.Allocate(10)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	resized, err := a.Resize(h, 10, 200)
	if err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if resized == h {
		t.Errorf("Resize across block-count boundary returned same handle %d, want a fresh one", h)
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dev := newDevice(t, 64)
	a := New(dev)

	h, err := a.Allocate(128)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	data := bytes.Repeat([]byte{0x9}, 128)
	if err := a.Write(h, data, 128, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := make([]byte, 128)
	if err := a.Read(h, got, 128, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Read = %x, want %x", got, data)
	}
}

func TestWritePartialRangePatchesInPlace(t *testing.T) {
	dev := newDevice(t, 64)
	a := New(dev)

	h, err := a.Allocate(64)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}
	if err := a.Write(h, bytes.Repeat([]byte{0x1}, 64), 64, 0); err != nil {
		t.Fatalf("Write: %v", err)
	}
	patch := []byte{0x2, 0x2}
	if err := a.Write(h, patch, 2, 10); err != nil {
		t.Fatalf("Write patch: %v", err)
	}

	got := make([]byte, 64)
	if err := a.Read(h, got, 64, 0); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got[10:12], patch) {
		t.Errorf("patched bytes = %x, want %x", got[10:12], patch)
	}
	if got[0] != 0x1 || got[63] != 0x1 {
		t.Error("bytes outside the patched range were disturbed")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	dev := newDevice(t, 64)
	a := New(dev)
	if _, err := a.Allocate(500); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	blob := a.Serialize()
	if uint64(len(blob)) != a.SerializedSize() {
		t.Fatalf("SerializedSize() = %d, len(Serialize()) = %d", a.SerializedSize(), len(blob))
	}

	decoded, consumed, err := Deserialize(dev, blob)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if consumed != len(blob) {
		t.Errorf("consumed %d, want %d", consumed, len(blob))
	}
	if decoded.nextBlock != a.nextBlock {
		t.Errorf("decoded.nextBlock = %d, want %d", decoded.nextBlock, a.nextBlock)
	}
}

func TestSaveFixpointConverges(t *testing.T) {
	dev := newDevice(t, 64)
	a := New(dev)
	if _, err := a.Allocate(500); err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	h, size, err := a.Save(0, 0)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if size != a.SerializedSize() {
		t.Errorf("Save size = %d, want %d", size, a.SerializedSize())
	}

	got := make([]byte, size)
	if err := a.Read(h, got, size, 0); err != nil {
		t.Fatalf("Read back self-description: %v", err)
	}
	if !bytes.Equal(got, a.Serialize()) {
		t.Errorf("persisted self-description = %x, want %x", got, a.Serialize())
	}

	// A second save with the same handle/size should be idempotent:
	// next_block does not change from a no-op resize.
	h2, size2, err := a.Save(h, size)
	if err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if h2 != h || size2 != size {
		t.Errorf("second Save moved extent: (%d,%d) -> (%d,%d)", h, size, h2, size2)
	}
}
