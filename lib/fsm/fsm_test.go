// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

package fsm

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/bitvector"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/clock"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/flouds"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/nameseq"
)

func testConfig() flouds.Config {
	return flouds.Config{
		StructureStrategy: bitvector.Word,
		TypesStrategy:     bitvector.Word,
		NameStrategy:      nameseq.Packed,
		NameBitvector:     bitvector.Word,
	}
}

func TestCreateThenMountRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	fc := clock.Fake(time.Unix(1000, 0))

	m, err := Create(path, 512, Options{TreeConfig: testConfig(), Clock: fc})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	folder, err := m.AddNode(0, []byte("docs"), true)
	if err != nil {
		t.Fatalf("AddNode(folder): %v", err)
	}
	file, err := m.AddNode(folder, []byte("readme.txt"), false)
	if err != nil {
		t.Fatalf("AddNode(file): %v", err)
	}
	data := []byte("hello, succinct world")
	if err := m.WriteFile(file, data, uint64(len(data)), 0); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := m.SetFileSize(file, uint64(len(data))); err != nil {
		t.Fatalf("SetFileSize: %v", err)
	}

	if err := m.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Unmount(); err != nil {
		t.Fatalf("Unmount: %v", err)
	}

	reopened, err := Mount(path, 512, Options{TreeConfig: testConfig(), Clock: fc})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer reopened.Unmount()

	resolvedFolder, err := reopened.Path("/docs")
	if err != nil {
		t.Fatalf("Path(/docs): %v", err)
	}
	if resolvedFolder != folder {
		t.Errorf("Path(/docs) = %d, want %d", resolvedFolder, folder)
	}
	resolvedFile, err := reopened.Path("/docs/readme.txt")
	if err != nil {
		t.Fatalf("Path(/docs/readme.txt): %v", err)
	}
	if resolvedFile != file {
		t.Errorf("Path(/docs/readme.txt) = %d, want %d", resolvedFile, file)
	}

	rec, err := reopened.GetInode(resolvedFile)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	got := make([]byte, rec.Size)
	if err := reopened.ReadFile(resolvedFile, got, rec.Size, 0); err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadFile = %q, want %q", got, data)
	}
}

func TestRemoveNodeKeepsTreeAndInodesInLockstep(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	m, err := Create(path, 512, Options{TreeConfig: testConfig()})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Unmount()

	file, err := m.AddNode(0, []byte("temp.txt"), false)
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	if err := m.RemoveNode(file); err != nil {
		t.Fatalf("RemoveNode: %v", err)
	}
	if _, err := m.Path("/temp.txt"); err == nil {
		t.Error("Path(/temp.txt) succeeded after removal, want error")
	}
}

func TestMountEmptyImageFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	if _, err := Mount(path, 512, Options{TreeConfig: testConfig()}); err == nil {
		t.Error("Mount of a never-created image succeeded, want error")
	}
}

func TestWriteFileUpdatesSizeAndMtime(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	fc := clock.Fake(time.Unix(1000, 0))
	m, err := Create(path, 512, Options{TreeConfig: testConfig(), Clock: fc})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer m.Unmount()

	file, err := m.AddNode(0, []byte("a.txt"), false)
	if err != nil {
		t.Fatalf("AddNode: %v", err)
	}
	before, _ := m.GetInode(file)

	fc.Advance(5 * time.Second)
	if err := m.WriteFile(file, []byte("xy"), 2, 0); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	after, err := m.GetInode(file)
	if err != nil {
		t.Fatalf("GetInode: %v", err)
	}
	if after.Size != 2 {
		t.Errorf("Size = %d, want 2", after.Size)
	}
	if after.Mtime <= before.Mtime {
		t.Errorf("Mtime did not advance: before=%d after=%d", before.Mtime, after.Mtime)
	}
}
