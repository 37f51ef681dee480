// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

package inode

import (
	"errors"
	"testing"
	"time"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/allocator"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/clock"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
)

func TestInsertAndGetRoundTrip(t *testing.T) {
	table := New()
	fc := clock.Fake(time.Unix(1000, 0))
	rec := NewInode(fc, allocator.Handle(5), 0o644)
	if err := table.Insert(0, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if table.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", table.Size())
	}
	got, err := table.Get(0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != rec {
		t.Errorf("Get(0) = %+v, want %+v", got, rec)
	}
}

func TestInsertShiftsLaterRecords(t *testing.T) {
	table := New()
	a := Inode{Size: 1}
	b := Inode{Size: 2}
	c := Inode{Size: 3}
	_ = table.Insert(0, a)
	_ = table.Insert(1, b)
	_ = table.Insert(1, c) // c goes between a and b

	got0, _ := table.Get(0)
	got1, _ := table.Get(1)
	got2, _ := table.Get(2)
	if got0.Size != 1 || got1.Size != 3 || got2.Size != 2 {
		t.Errorf("order after insert = [%d,%d,%d], want [1,3,2]", got0.Size, got1.Size, got2.Size)
	}
}

func TestRemoveShiftsRemaining(t *testing.T) {
	table := New()
	_ = table.Insert(0, Inode{Size: 1})
	_ = table.Insert(1, Inode{Size: 2})
	_ = table.Insert(2, Inode{Size: 3})
	if err := table.Remove(1); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if table.Size() != 2 {
		t.Fatalf("Size() = %d, want 2", table.Size())
	}
	got0, _ := table.Get(0)
	got1, _ := table.Get(1)
	if got0.Size != 1 || got1.Size != 3 {
		t.Errorf("order after remove = [%d,%d], want [1,3]", got0.Size, got1.Size)
	}
}

func TestOutOfRangeFails(t *testing.T) {
	table := New()
	if _, err := table.Get(0); !errors.Is(err, fserr.ErrOutOfRange) {
		t.Errorf("Get(0) on empty error = %v, want ErrOutOfRange", err)
	}
	if err := table.Remove(0); !errors.Is(err, fserr.ErrOutOfRange) {
		t.Errorf("Remove(0) on empty error = %v, want ErrOutOfRange", err)
	}
	if err := table.Insert(1, Inode{}); !errors.Is(err, fserr.ErrOutOfRange) {
		t.Errorf("Insert(1, ...) on empty error = %v, want ErrOutOfRange", err)
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	table := New()
	_ = table.Insert(0, Inode{AllocationHandle: 1, Size: 100, Mode: 0o644, Mtime: 10, Atime: 20, Ctime: 30})
	_ = table.Insert(1, Inode{AllocationHandle: 2, Size: 0, Mode: 0o755})

	blob := table.Serialize()
	if len(blob) != table.SerializedSize() {
		t.Fatalf("SerializedSize() = %d, len(Serialize()) = %d", table.SerializedSize(), len(blob))
	}

	decoded, consumed, err := Deserialize(blob)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if consumed != len(blob) {
		t.Errorf("consumed %d, want %d", consumed, len(blob))
	}
	if decoded.Size() != table.Size() {
		t.Fatalf("decoded.Size() = %d, want %d", decoded.Size(), table.Size())
	}
	for i := 0; i < table.Size(); i++ {
		want, _ := table.Get(i)
		got, _ := decoded.Get(i)
		if got != want {
			t.Errorf("record %d = %+v, want %+v", i, got, want)
		}
	}
}

func TestDeserializeTruncatedBlobFails(t *testing.T) {
	table := New()
	_ = table.Insert(0, Inode{Size: 1})
	blob := table.Serialize()
	if _, _, err := Deserialize(blob[:len(blob)-1]); !errors.Is(err, fserr.ErrInvalidImage) {
		t.Errorf("Deserialize(truncated) error = %v, want ErrInvalidImage", err)
	}
}
