// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Package fuseadapter plugs a *fsm.Manager into a kernel-level
// filesystem via github.com/hanwen/go-fuse/v2, per §6 of the
// specification's "Filesystem adapter contract": the core exposes
// navigation, mutation, and lifecycle operations; the adapter
// converts between its own inode-number space (fuse_ino = v + 1) and
// the core's node positions, invokes Save after mutations, and maps
// core error kinds to syscall.Errno values.
package fuseadapter

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/sebastianbrunnert/succinct-filesystem/lib/fserr"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fsm"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted.
	Mountpoint string

	// Manager owns the on-disk image. The adapter serializes all
	// access to it with WriteMu, since the core provides no
	// internal locking (§5).
	Manager *fsm.Manager

	// WriteMu serializes mutating calls into Manager. If nil, an
	// internal mutex is created.
	WriteMu *sync.Mutex

	// AllowOther permits other users (including root) to access
	// the mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a text logger
	// writing error-level messages to stderr is used.
	Logger *slog.Logger
}

// Mount mounts the succinct filesystem at the configured mountpoint.
// The caller must call Unmount on the returned Server when done. The
// mountpoint directory is created if it does not already exist.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, errors.New("fuseadapter: mountpoint is required")
	}
	if options.Manager == nil {
		return nil, errors.New("fuseadapter: manager is required")
	}
	if options.WriteMu == nil {
		options.WriteMu = &sync.Mutex{}
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, errors.New("fuseadapter: creating mountpoint: " + err.Error())
	}

	root := &treeNode{v: fsm.RootNode, opts: &options}

	entryTimeout := 1 * time.Second
	attrTimeout := 1 * time.Second

	server, err := gofuse.Mount(options.Mountpoint, root, &gofuse.Options{
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "succinctfs",
			Name:       "succinct",
			AllowOther: options.AllowOther,
		},
	})
	if err != nil {
		return nil, err
	}

	options.Logger.Info("succinct filesystem mounted", "mountpoint", options.Mountpoint)
	return server, nil
}

// treeNode is a go-fuse inode backed by a single FloudsTree node
// position. Per §6, fuse_ino = v + 1; go-fuse derives stable inode
// numbers from StableAttr.Ino, which this adapter sets directly from
// that formula so lookups and the kernel's own inode cache agree.
type treeNode struct {
	gofuse.Inode
	v    int
	opts *Options
}

var _ gofuse.InodeEmbedder = (*treeNode)(nil)
var _ gofuse.NodeLookuper = (*treeNode)(nil)
var _ gofuse.NodeReaddirer = (*treeNode)(nil)
var _ gofuse.NodeGetattrer = (*treeNode)(nil)
var _ gofuse.NodeOpener = (*treeNode)(nil)
var _ gofuse.NodeReader = (*treeNode)(nil)
var _ gofuse.NodeWriter = (*treeNode)(nil)
var _ gofuse.NodeCreater = (*treeNode)(nil)
var _ gofuse.NodeMkdirer = (*treeNode)(nil)
var _ gofuse.NodeUnlinker = (*treeNode)(nil)
var _ gofuse.NodeRmdirer = (*treeNode)(nil)
var _ gofuse.NodeSetattrer = (*treeNode)(nil)

// errnoFor maps a core error kind (§7) to the syscall.Errno the
// adapter reports to the kernel.
func errnoFor(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, fserr.ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, fserr.ErrOutOfRange):
		return syscall.ENOENT
	case errors.Is(err, fserr.ErrInvalidSymbol), errors.Is(err, fserr.ErrInvariantViolation):
		return syscall.EINVAL
	case errors.Is(err, fserr.ErrInvalidImage):
		return syscall.EIO
	case errors.Is(err, fserr.ErrIoFailure):
		return syscall.EIO
	default:
		return syscall.EIO
	}
}

func (n *treeNode) child(ctx context.Context, childV int, isDir bool) *gofuse.Inode {
	mode := uint32(syscall.S_IFREG)
	if isDir {
		mode = syscall.S_IFDIR
	}
	return n.NewInode(ctx, &treeNode{v: childV, opts: n.opts}, gofuse.StableAttr{
		Mode: mode,
		Ino:  uint64(childV) + 1,
	})
}

func (n *treeNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	m := n.opts.Manager
	count, err := m.ChildrenCount(n.v)
	if err != nil {
		return nil, errnoFor(err)
	}
	for j := 0; j < count; j++ {
		childV, err := m.Child(n.v, j)
		if err != nil {
			return nil, errnoFor(err)
		}
		childName, err := m.GetName(childV)
		if err != nil {
			return nil, errnoFor(err)
		}
		if string(childName) != name {
			continue
		}
		isFolder, err := m.IsFolder(childV)
		if err != nil {
			return nil, errnoFor(err)
		}
		fillAttrOut(&out.Attr, m, childV)
		return n.child(ctx, childV, isFolder), 0
	}
	return nil, syscall.ENOENT
}

func (n *treeNode) Readdir(ctx context.Context) (gofuse.DirStream, syscall.Errno) {
	m := n.opts.Manager
	count, err := m.ChildrenCount(n.v)
	if err != nil {
		return nil, errnoFor(err)
	}
	entries := make([]fuse.DirEntry, 0, count)
	for j := 0; j < count; j++ {
		childV, err := m.Child(n.v, j)
		if err != nil {
			return nil, errnoFor(err)
		}
		childName, err := m.GetName(childV)
		if err != nil {
			return nil, errnoFor(err)
		}
		isFolder, err := m.IsFolder(childV)
		if err != nil {
			return nil, errnoFor(err)
		}
		mode := uint32(syscall.S_IFREG)
		if isFolder {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: string(childName), Mode: mode, Ino: uint64(childV) + 1})
	}
	return &sliceDirStream{entries: entries}, 0
}

func (n *treeNode) Getattr(ctx context.Context, f gofuse.FileHandle, out *fuse.AttrOut) syscall.Errno {
	fillAttrOut(&out.Attr, n.opts.Manager, n.v)
	return 0
}

func (n *treeNode) Setattr(ctx context.Context, f gofuse.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	m := n.opts.Manager
	if size, ok := in.GetSize(); ok {
		n.opts.WriteMu.Lock()
		err := m.SetFileSize(n.v, size)
		if err == nil {
			err = m.Save()
		}
		n.opts.WriteMu.Unlock()
		if err != nil {
			return errnoFor(err)
		}
	}
	fillAttrOut(&out.Attr, m, n.v)
	return 0
}

func (n *treeNode) Open(ctx context.Context, flags uint32) (gofuse.FileHandle, uint32, syscall.Errno) {
	return nil, 0, 0
}

func (n *treeNode) Read(ctx context.Context, f gofuse.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	m := n.opts.Manager
	rec, err := m.GetInode(n.v)
	if err != nil {
		return nil, errnoFor(err)
	}
	if uint64(off) >= rec.Size {
		return fuse.ReadResultData(nil), 0
	}
	want := uint64(len(dest))
	if uint64(off)+want > rec.Size {
		want = rec.Size - uint64(off)
	}
	if err := m.ReadFile(n.v, dest[:want], want, uint64(off)); err != nil {
		return nil, errnoFor(err)
	}
	return fuse.ReadResultData(dest[:want]), 0
}

func (n *treeNode) Write(ctx context.Context, f gofuse.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	m := n.opts.Manager
	n.opts.WriteMu.Lock()
	defer n.opts.WriteMu.Unlock()
	if err := m.WriteFile(n.v, data, uint64(len(data)), uint64(off)); err != nil {
		return 0, errnoFor(err)
	}
	if err := m.Save(); err != nil {
		return 0, errnoFor(err)
	}
	return uint32(len(data)), 0
}

func (n *treeNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, gofuse.FileHandle, uint32, syscall.Errno) {
	_ = flags
	_ = mode
	m := n.opts.Manager
	n.opts.WriteMu.Lock()
	childV, err := m.AddNode(n.v, []byte(name), false)
	if err == nil {
		err = m.Save()
	}
	n.opts.WriteMu.Unlock()
	if err != nil {
		return nil, nil, 0, errnoFor(err)
	}
	fillAttrOut(&out.Attr, m, childV)
	return n.child(ctx, childV, false), nil, 0, 0
}

func (n *treeNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*gofuse.Inode, syscall.Errno) {
	_ = mode
	m := n.opts.Manager
	n.opts.WriteMu.Lock()
	childV, err := m.AddNode(n.v, []byte(name), true)
	if err == nil {
		err = m.Save()
	}
	n.opts.WriteMu.Unlock()
	if err != nil {
		return nil, errnoFor(err)
	}
	fillAttrOut(&out.Attr, m, childV)
	return n.child(ctx, childV, true), 0
}

func (n *treeNode) lookupChildV(name string) (int, bool, error) {
	m := n.opts.Manager
	count, err := m.ChildrenCount(n.v)
	if err != nil {
		return 0, false, err
	}
	for j := 0; j < count; j++ {
		childV, err := m.Child(n.v, j)
		if err != nil {
			return 0, false, err
		}
		childName, err := m.GetName(childV)
		if err != nil {
			return 0, false, err
		}
		if string(childName) == name {
			isFolder, err := m.IsFolder(childV)
			return childV, isFolder, err
		}
	}
	return 0, false, fserr.ErrNotFound
}

func (n *treeNode) Unlink(ctx context.Context, name string) syscall.Errno {
	m := n.opts.Manager
	childV, isFolder, err := n.lookupChildV(name)
	if err != nil {
		return errnoFor(err)
	}
	if isFolder {
		return syscall.EISDIR
	}
	n.opts.WriteMu.Lock()
	err = m.RemoveNode(childV)
	if err == nil {
		err = m.Save()
	}
	n.opts.WriteMu.Unlock()
	return errnoFor(err)
}

func (n *treeNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	m := n.opts.Manager
	childV, isFolder, err := n.lookupChildV(name)
	if err != nil {
		return errnoFor(err)
	}
	if !isFolder {
		return syscall.ENOTDIR
	}
	count, err := m.ChildrenCount(childV)
	if err != nil {
		return errnoFor(err)
	}
	if count > 0 {
		return syscall.ENOTEMPTY
	}
	n.opts.WriteMu.Lock()
	err = m.RemoveNode(childV)
	if err == nil {
		err = m.Save()
	}
	n.opts.WriteMu.Unlock()
	return errnoFor(err)
}

// fillAttrOut populates out from node v's inode record and type.
// Errors reading the inode leave out zeroed, matching go-fuse's
// convention of best-effort attribute reporting.
func fillAttrOut(out *fuse.Attr, m *fsm.Manager, v int) {
	isFolder, _ := m.IsFolder(v)
	rec, err := m.GetInode(v)
	if err != nil {
		return
	}
	out.Mode = rec.Mode &^ fsm.ModeDir
	if isFolder {
		out.Mode |= syscall.S_IFDIR
	} else {
		out.Mode |= syscall.S_IFREG
		out.Size = rec.Size
	}
	out.Mtime = uint64(rec.Mtime / int64(time.Second))
	out.Atime = uint64(rec.Atime / int64(time.Second))
	out.Ctime = uint64(rec.Ctime / int64(time.Second))
}

// sliceDirStream implements fs.DirStream from a slice of entries,
// adapted from the read-only directory listings of the teacher's
// FUSE mount.
type sliceDirStream struct {
	entries []fuse.DirEntry
	index   int
}

func (s *sliceDirStream) HasNext() bool { return s.index < len(s.entries) }

func (s *sliceDirStream) Next() (fuse.DirEntry, syscall.Errno) {
	if s.index >= len(s.entries) {
		return fuse.DirEntry{}, syscall.EINVAL
	}
	entry := s.entries[s.index]
	s.index++
	return entry, 0
}

func (s *sliceDirStream) Close() {}
