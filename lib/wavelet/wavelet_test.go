// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

package wavelet

import (
	"errors"
	"testing"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/bitvector"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
)

func strategies() []bitvector.Strategy {
	return []bitvector.Strategy{bitvector.Word, bitvector.Tree}
}

func TestAccessMatchesSourceData(t *testing.T) {
	data := []Symbol{0, 1, 2, 3, 1, 0, 2, 1, 3, 0}
	for _, strat := range strategies() {
		tree, err := FromSymbols(strat, data)
		if err != nil {
			t.Fatalf("FromSymbols: %v", err)
		}
		for i, want := range data {
			got, err := tree.Access(i)
			if err != nil {
				t.Fatalf("Access(%d): %v", i, err)
			}
			if got != want {
				t.Errorf("Access(%d) = %d, want %d", i, got, want)
			}
		}
	}
}

func TestRankCountsOccurrencesUpToAndIncluding(t *testing.T) {
	data := []Symbol{0, 1, 2, 3, 1, 0, 2, 1, 3, 0}
	for _, strat := range strategies() {
		tree, _ := FromSymbols(strat, data)
		for i := range data {
			for s := Symbol(0); s <= MaxSymbol; s++ {
				want := 0
				for j := 0; j <= i; j++ {
					if data[j] == s {
						want++
					}
				}
				got, err := tree.Rank(s, i)
				if err != nil {
					t.Fatalf("Rank(%d, %d): %v", s, i, err)
				}
				if got != want {
					t.Errorf("Rank(%d, %d) = %d, want %d", s, i, got, want)
				}
			}
		}
	}
}

func TestSelectReturnsKthOccurrence(t *testing.T) {
	data := []Symbol{0, 1, 2, 3, 1, 0, 2, 1, 3, 0}
	for _, strat := range strategies() {
		tree, _ := FromSymbols(strat, data)
		for s := Symbol(0); s <= MaxSymbol; s++ {
			k := 0
			for i, v := range data {
				if v != s {
					continue
				}
				k++
				got, err := tree.Select(s, k)
				if err != nil {
					t.Fatalf("Select(%d, %d): %v", s, k, err)
				}
				if got != i {
					t.Errorf("Select(%d, %d) = %d, want %d", s, k, got, i)
				}
			}
		}
	}
}

func TestSelectZeroOrExceedingFails(t *testing.T) {
	tree, _ := FromSymbols(bitvector.Word, []Symbol{0, 1})
	if _, err := tree.Select(0, 0); !errors.Is(err, fserr.ErrOutOfRange) {
		t.Errorf("Select(0, 0) error = %v, want ErrOutOfRange", err)
	}
	if _, err := tree.Select(2, 1); !errors.Is(err, fserr.ErrOutOfRange) {
		t.Errorf("Select(2, 1) on absent symbol error = %v, want ErrOutOfRange", err)
	}
}

func TestInsertAtBoundaries(t *testing.T) {
	for _, strat := range strategies() {
		tree := New(strat)
		if err := tree.Insert(0, 1); err != nil {
			t.Fatalf("Insert at 0 on empty: %v", err)
		}
		if err := tree.Insert(1, 2); err != nil {
			t.Fatalf("Insert at n: %v", err)
		}
		if err := tree.Insert(0, 3); err != nil {
			t.Fatalf("Insert at 0: %v", err)
		}
		want := []Symbol{3, 1, 2}
		for i, w := range want {
			got, err := tree.Access(i)
			if err != nil {
				t.Fatalf("Access(%d): %v", i, err)
			}
			if got != w {
				t.Errorf("Access(%d) = %d, want %d", i, got, w)
			}
		}
	}
}

func TestInsertThenDeleteRestoresSequence(t *testing.T) {
	data := []Symbol{0, 1, 2, 3, 1, 0}
	for _, strat := range strategies() {
		tree, _ := FromSymbols(strat, data)
		if err := tree.Insert(3, 2); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		if err := tree.Delete(3); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		for i, want := range data {
			got, err := tree.Access(i)
			if err != nil {
				t.Fatalf("Access(%d): %v", i, err)
			}
			if got != want {
				t.Errorf("Access(%d) = %d, want %d", i, got, want)
			}
		}
	}
}

func TestSetChangesSymbolAcrossHighBitBoundary(t *testing.T) {
	tree, _ := FromSymbols(bitvector.Word, []Symbol{0, 1, 2, 1, 0})
	if err := tree.Set(1, 3); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := tree.Access(1)
	if err != nil {
		t.Fatalf("Access: %v", err)
	}
	if got != 3 {
		t.Errorf("Access(1) after Set = %d, want 3", got)
	}
	for i, want := range []Symbol{0, 3, 2, 1, 0} {
		got, err := tree.Access(i)
		if err != nil {
			t.Fatalf("Access(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("Access(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestInvalidSymbolRejected(t *testing.T) {
	tree := New(bitvector.Word)
	if err := tree.Insert(0, 4); !errors.Is(err, fserr.ErrInvalidSymbol) {
		t.Errorf("Insert with symbol 4 error = %v, want ErrInvalidSymbol", err)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	data := []Symbol{0, 1, 2, 3, 1, 0, 2, 1, 3, 0, 2, 2}
	for _, strat := range strategies() {
		tree, _ := FromSymbols(strat, data)
		blob := tree.Serialize()
		if len(blob) != tree.SerializedSize() {
			t.Fatalf("SerializedSize() = %d, len(Serialize()) = %d", tree.SerializedSize(), len(blob))
		}
		decoded, consumed, err := Deserialize(strat, blob)
		if err != nil {
			t.Fatalf("Deserialize: %v", err)
		}
		if consumed != len(blob) {
			t.Errorf("consumed %d bytes, want %d", consumed, len(blob))
		}
		if decoded.Size() != len(data) {
			t.Fatalf("decoded size = %d, want %d", decoded.Size(), len(data))
		}
		for i, want := range data {
			got, err := decoded.Access(i)
			if err != nil {
				t.Fatalf("Access(%d): %v", i, err)
			}
			if got != want {
				t.Errorf("decoded Access(%d) = %d, want %d", i, got, want)
			}
		}
	}
}

func TestEmptyTree(t *testing.T) {
	tree := New(bitvector.Word)
	if tree.Size() != 0 {
		t.Errorf("Size() = %d, want 0", tree.Size())
	}
	if _, err := tree.Access(0); !errors.Is(err, fserr.ErrOutOfRange) {
		t.Errorf("Access(0) on empty error = %v, want ErrOutOfRange", err)
	}
}
