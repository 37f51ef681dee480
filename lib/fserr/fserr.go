// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Package fserr defines the sentinel error kinds shared by every core
// succinct-filesystem package. Most operations that can fail return
// one of these (wrapped with fmt.Errorf and %w) so that callers can
// distinguish failure kinds with errors.Is, and the FUSE adapter can
// translate them to syscall.Errno values without string matching.
// lib/blockdevice returns plain errors; lib/allocator and lib/fsm wrap
// them in ErrIoFailure.
package fserr

import "errors"

var (
	// ErrOutOfRange is returned when an index, ordinal, or count falls
	// outside a sequence's current bounds, or when a select ordinal is
	// zero or exceeds the number of matching bits/symbols.
	ErrOutOfRange = errors.New("fserr: out of range")

	// ErrInvalidSymbol is returned when a wavelet-tree operation is
	// given a symbol outside {0,1,2,3}.
	ErrInvalidSymbol = errors.New("fserr: invalid symbol")

	// ErrInvalidImage is returned when the on-disk header magic does
	// not match "FLOUDS" on a non-empty device, or when an extent's
	// recorded size disagrees with the deserialized component's
	// reported size.
	ErrInvalidImage = errors.New("fserr: invalid image")

	// ErrIoFailure is returned when a block device read or write
	// fails.
	ErrIoFailure = errors.New("fserr: io failure")

	// ErrInvariantViolation is returned when internal cross-sequence
	// bookkeeping disagrees (e.g. name sequence and type sequence
	// sizes diverge), or when a select/rank result fails a structural
	// sanity check.
	ErrInvariantViolation = errors.New("fserr: invariant violation")

	// ErrNotFound is returned when a path component does not resolve
	// to a child node.
	ErrNotFound = errors.New("fserr: not found")
)
