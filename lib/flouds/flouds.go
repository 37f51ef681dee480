// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Package flouds implements the FLOUDS directory tree (Level-Order
// Unary Degree Sequence), per ยง4.4 of the specification: a structure
// bitvector, a two-bit types wavelet tree, and a name sequence
// composed into a navigable filesystem tree addressed by node
// position.
package flouds

import (
	"fmt"
	"strings"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/bitvector"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/nameseq"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/wavelet"
)

// Node type codes, per ยง4 of the specification.
const (
	TypeFile        wavelet.Symbol = 0
	TypeFolder      wavelet.Symbol = 1
	TypeEmptyFolder wavelet.Symbol = 2
	TypeReserved    wavelet.Symbol = 3
)

// Root is the node position of the synthetic root directory.
const Root = 0

// Tree is the FLOUDS-encoded directory hierarchy: a structure
// bitvector S, a types wavelet tree T, and a name sequence N, all of
// equal length addressed by a common node position v.
type Tree struct {
	structure bitvector.Bitvector
	types     *wavelet.Tree
	names     nameseq.Sequence
}

// Config selects the internal strategies for a new or deserialized
// Tree.
type Config struct {
	StructureStrategy bitvector.Strategy
	TypesStrategy     bitvector.Strategy
	NameStrategy      nameseq.Strategy
	NameBitvector     bitvector.Strategy
}

// New creates a tree containing only the root node: an empty folder
// named "root", per ยง4.3's factory convention.
func New(cfg Config) *Tree {
	t := &Tree{
		structure: bitvector.New(cfg.StructureStrategy),
		types:     wavelet.New(cfg.TypesStrategy),
		names:     nameseq.New(cfg.NameStrategy, cfg.NameBitvector),
	}
	// Seeded unconditionally: S[0] = 1 marks the root as its own
	// first-child position (ยง4.4).
	_ = t.structure.Insert(0, true)
	_ = t.types.Insert(0, TypeEmptyFolder)
	_ = t.names.Insert(0, []byte("root"))
	return t
}

// Size returns the number of nodes in the tree.
func (t *Tree) Size() int { return t.structure.Size() }

func (t *Tree) checkNode(v int) error {
	if v < 0 || v >= t.structure.Size() {
		return fmt.Errorf("flouds: node %d out of range [0, %d): %w", v, t.structure.Size(), fserr.ErrOutOfRange)
	}
	return nil
}

// GetType returns the raw type code of node v.
func (t *Tree) GetType(v int) (wavelet.Symbol, error) {
	if err := t.checkNode(v); err != nil {
		return 0, err
	}
	return t.types.Access(v)
}

// IsFolder reports whether node v is a folder (empty or non-empty).
func (t *Tree) IsFolder(v int) (bool, error) {
	typ, err := t.GetType(v)
	if err != nil {
		return false, err
	}
	return typ == TypeFolder || typ == TypeEmptyFolder, nil
}

// IsFile reports whether node v is a file.
func (t *Tree) IsFile(v int) (bool, error) {
	typ, err := t.GetType(v)
	if err != nil {
		return false, err
	}
	return typ == TypeFile, nil
}

// IsEmptyFolder reports whether node v is a folder with zero children.
func (t *Tree) IsEmptyFolder(v int) (bool, error) {
	typ, err := t.GetType(v)
	if err != nil {
		return false, err
	}
	return typ == TypeEmptyFolder, nil
}

// GetName returns the name of node v.
func (t *Tree) GetName(v int) ([]byte, error) {
	if err := t.checkNode(v); err != nil {
		return nil, err
	}
	return t.names.Access(v)
}

// folderIndex returns fidx(v): the 1-based rank of v among folder-typed
// nodes in level order, i.e. the inclusive count of TypeFolder symbols
// in T[0..v]. Root counts as folder index 1 once promoted out of
// empty_folder.
func (t *Tree) folderIndex(v int) (int, error) {
	return t.types.Rank(TypeFolder, v)
}

// folderStart returns fstart(k): the position of the first child of
// the folder with folder index k. S carries one extra permanent
// one-bit beyond the real first-child markers — the root's seed bit
// at position 0, which reserves select-ordinal 1 for itself without
// corresponding to any real folder's marker — so a folder index k
// maps to S's (k+1)-th one-bit.
func (t *Tree) folderStart(k int) (int, error) {
	return t.structure.Select1(k + 1)
}

// totalFolders returns the number of non-empty folders (rank1(S, n-1)
// minus one for the root's own seed bit, per the structure bitvector
// invariant: rank1(S, n-1) = non-empty folders + 1).
func (t *Tree) totalFolders() (int, error) {
	n := t.structure.Size()
	ones, err := t.structure.Rank1(n - 1)
	if err != nil {
		return 0, err
	}
	return ones - 1, nil
}

// ChildrenCount returns the number of children of node v. Zero if v is
// a file or an empty folder.
func (t *Tree) ChildrenCount(v int) (int, error) {
	isEmpty, err := t.IsEmptyFolder(v)
	if err != nil {
		return 0, err
	}
	if isEmpty {
		return 0, nil
	}
	isFolder, err := t.IsFolder(v)
	if err != nil {
		return 0, err
	}
	if !isFolder {
		return 0, nil
	}
	k, err := t.folderIndex(v)
	if err != nil {
		return 0, err
	}
	start, err := t.folderStart(k)
	if err != nil {
		return 0, err
	}
	total, err := t.totalFolders()
	if err != nil {
		return 0, err
	}
	if k+1 <= total {
		nextStart, err := t.folderStart(k + 1)
		if err != nil {
			return 0, err
		}
		return nextStart - start, nil
	}
	return t.structure.Size() - start, nil
}

// Child returns the position of the j-th child (0-based) of node v.
// Preconditions: v must be a folder and j < ChildrenCount(v).
func (t *Tree) Child(v, j int) (int, error) {
	count, err := t.ChildrenCount(v)
	if err != nil {
		return 0, err
	}
	if j < 0 || j >= count {
		return 0, fmt.Errorf("flouds: child index %d out of range [0, %d) for node %d: %w", j, count, v, fserr.ErrOutOfRange)
	}
	k, err := t.folderIndex(v)
	if err != nil {
		return 0, err
	}
	start, err := t.folderStart(k)
	if err != nil {
		return 0, err
	}
	return start + j, nil
}

// Parent returns the position of v's parent. Fails with
// fserr.ErrOutOfRange if v is the root.
func (t *Tree) Parent(v int) (int, error) {
	if v == Root {
		return 0, fmt.Errorf("flouds: root has no parent: %w", fserr.ErrOutOfRange)
	}
	if err := t.checkNode(v); err != nil {
		return 0, err
	}
	rank, err := t.structure.Rank1(v)
	if err != nil {
		return 0, err
	}
	// rank counts the root's permanent seed bit alongside every real
	// first-child marker at or before v, so the folder index it names
	// is one more than the parent's actual fidx.
	k := rank - 1
	parent, err := t.types.Select(TypeFolder, k)
	if err != nil {
		return 0, fmt.Errorf("flouds: parent of %d: %w: %v", v, fserr.ErrInvariantViolation, err)
	}
	return parent, nil
}

// Insert adds a new child named name under parent, either as a file
// or as a freshly empty folder, and returns the new node's position.
func (t *Tree) Insert(parent int, name []byte, isFolder bool) (int, error) {
	if err := t.checkNode(parent); err != nil {
		return 0, err
	}
	parentIsFolder, err := t.IsFolder(parent)
	if err != nil {
		return 0, err
	}
	if !parentIsFolder {
		return 0, fmt.Errorf("flouds: insert under non-folder node %d: %w", parent, fserr.ErrInvariantViolation)
	}

	wasEmpty, err := t.IsEmptyFolder(parent)
	if err != nil {
		return 0, err
	}
	if wasEmpty {
		if err := t.types.Set(parent, TypeFolder); err != nil {
			return 0, err
		}
	}

	var insertPos int
	if wasEmpty {
		// parent has no S marker of its own yet. Its fidx still names
		// the slot its first child will occupy: if a later folder
		// already holds that slot (k <= total), the new child is
		// spliced in right before that folder's existing children;
		// otherwise it goes at the very end.
		k, err := t.folderIndex(parent)
		if err != nil {
			return 0, err
		}
		total, err := t.totalFolders()
		if err != nil {
			return 0, err
		}
		if k <= total {
			insertPos, err = t.folderStart(k)
			if err != nil {
				return 0, err
			}
		} else {
			insertPos = t.structure.Size()
		}
	} else {
		c, err := t.ChildrenCount(parent)
		if err != nil {
			return 0, err
		}
		k, err := t.folderIndex(parent)
		if err != nil {
			return 0, err
		}
		start, err := t.folderStart(k)
		if err != nil {
			return 0, err
		}
		insertPos = start + c
	}

	childType := TypeFile
	if isFolder {
		childType = TypeEmptyFolder
	}
	if err := t.structure.Insert(insertPos, wasEmpty); err != nil {
		return 0, err
	}
	if err := t.types.Insert(insertPos, childType); err != nil {
		return 0, err
	}
	nameCopy := append([]byte(nil), name...)
	if err := t.names.Insert(insertPos, nameCopy); err != nil {
		return 0, err
	}
	return insertPos, nil
}

// Remove deletes node v, which must not be the root and, if a folder,
// must currently be empty.
func (t *Tree) Remove(v int) error {
	if v == Root {
		return fmt.Errorf("flouds: cannot remove root: %w", fserr.ErrOutOfRange)
	}
	if err := t.checkNode(v); err != nil {
		return err
	}
	isFolder, err := t.IsFolder(v)
	if err != nil {
		return err
	}
	if isFolder {
		isEmpty, err := t.IsEmptyFolder(v)
		if err != nil {
			return err
		}
		if !isEmpty {
			return fmt.Errorf("flouds: cannot remove non-empty folder %d: %w", v, fserr.ErrInvariantViolation)
		}
	}

	parent, err := t.Parent(v)
	if err != nil {
		return err
	}
	childCount, err := t.ChildrenCount(parent)
	if err != nil {
		return err
	}
	wasFirstChild, err := t.structure.Access(v)
	if err != nil {
		return err
	}

	if err := t.structure.Delete(v); err != nil {
		return err
	}
	if err := t.names.Delete(v); err != nil {
		return err
	}
	if err := t.types.Delete(v); err != nil {
		return err
	}

	if childCount == 1 {
		if err := t.types.Set(parent, TypeEmptyFolder); err != nil {
			return err
		}
	} else if wasFirstChild {
		if err := t.structure.Set(v, true); err != nil {
			return err
		}
	}
	return nil
}

// Path resolves a "/"-separated absolute path by repeated child
// lookup keyed on name equality. "/" alone returns Root. Fails with
// fserr.ErrNotFound if any component is missing.
func (t *Tree) Path(p string) (int, error) {
	if p == "/" || p == "" {
		return Root, nil
	}
	trimmed := strings.Trim(p, "/")
	components := strings.Split(trimmed, "/")

	current := Root
	for _, component := range components {
		isFolder, err := t.IsFolder(current)
		if err != nil {
			return 0, err
		}
		if !isFolder {
			return 0, fmt.Errorf("flouds: path %q: %q is not a folder: %w", p, component, fserr.ErrNotFound)
		}
		count, err := t.ChildrenCount(current)
		if err != nil {
			return 0, err
		}
		found := -1
		for j := 0; j < count; j++ {
			child, err := t.Child(current, j)
			if err != nil {
				return 0, err
			}
			name, err := t.GetName(child)
			if err != nil {
				return 0, err
			}
			if string(name) == component {
				found = child
				break
			}
		}
		if found < 0 {
			return 0, fmt.Errorf("flouds: path %q: component %q: %w", p, component, fserr.ErrNotFound)
		}
		current = found
	}
	return current, nil
}

// Serialize encodes the structure bitvector, the types wavelet tree,
// and the name sequence, in that order.
func (t *Tree) Serialize() []byte {
	s := t.structure.Serialize()
	ty := t.types.Serialize()
	n := t.names.Serialize()
	out := make([]byte, 0, len(s)+len(ty)+len(n))
	out = append(out, s...)
	out = append(out, ty...)
	out = append(out, n...)
	return out
}

// SerializedSize returns len(Serialize()) without performing the
// encoding.
func (t *Tree) SerializedSize() int {
	return t.structure.SerializedSize() + t.types.SerializedSize() + t.names.SerializedSize()
}

// Deserialize decodes a Tree previously produced by Serialize. Returns
// the tree and the number of bytes consumed from data.
func Deserialize(cfg Config, data []byte) (*Tree, int, error) {
	structure, sConsumed, err := bitvector.Deserialize(cfg.StructureStrategy, data)
	if err != nil {
		return nil, 0, fmt.Errorf("flouds: deserialize structure: %w", err)
	}
	data = data[sConsumed:]

	types, tConsumed, err := wavelet.Deserialize(cfg.TypesStrategy, data)
	if err != nil {
		return nil, 0, fmt.Errorf("flouds: deserialize types: %w", err)
	}
	data = data[tConsumed:]

	names, nConsumed, err := nameseq.Deserialize(cfg.NameStrategy, cfg.NameBitvector, data)
	if err != nil {
		return nil, 0, fmt.Errorf("flouds: deserialize names: %w", err)
	}

	if structure.Size() != types.Size() || types.Size() != names.Size() {
		return nil, 0, fmt.Errorf("flouds: deserialize: structure=%d types=%d names=%d: %w",
			structure.Size(), types.Size(), names.Size(), fserr.ErrInvariantViolation)
	}

	return &Tree{structure: structure, types: types, names: names}, sConsumed + tConsumed + nConsumed, nil
}
