// Copyright (c) 2026 Sebastian Brunnert <mail@sebastianbrunnert.de>
// SPDX-License-Identifier: GPL-2.0-only

// Command succinctfs mounts a succinct-filesystem image at a
// directory via FUSE, per §6 of the specification's CLI surface: a
// hosting binary taking <image-path> <mount-point> and forwarding
// flags to the adapter.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sebastianbrunnert/succinct-filesystem/internal/fuseadapter"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/bitvector"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/blockdevice"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/flouds"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/fsm"
	"github.com/sebastianbrunnert/succinct-filesystem/lib/nameseq"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		blockSize      int
		create         bool
		bitvecStrategy string
		nameStrategy   string
		allowOther     bool
	)
	flag.IntVar(&blockSize, "block-size", blockdevice.DefaultBlockSize, "block size in bytes, used to create or mount the image")
	flag.BoolVar(&create, "create", false, "create a new image at the given path if it does not already exist")
	flag.StringVar(&bitvecStrategy, "bitvector-strategy", "tree", "bitvector strategy used to create or mount the image: word or tree")
	flag.StringVar(&nameStrategy, "name-strategy", "packed", "name sequence strategy used to create or mount the image: flat or packed")
	flag.BoolVar(&allowOther, "allow-other", false, "allow other users to access the mount (requires user_allow_other in /etc/fuse.conf)")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 {
		return fmt.Errorf("usage: succinctfs [flags] <image-path> <mount-point>")
	}
	imagePath, mountpoint := args[0], args[1]

	bvStrategy, err := parseBitvectorStrategy(bitvecStrategy)
	if err != nil {
		return err
	}
	nsStrategy, err := parseNameStrategy(nameStrategy)
	if err != nil {
		return err
	}

	logger := newLogger()

	cfg := treeConfig(bvStrategy, nsStrategy)
	opts := fsm.Options{TreeConfig: cfg, Logger: logger}

	var manager *fsm.Manager
	if _, statErr := os.Stat(imagePath); statErr != nil {
		if !create {
			return fmt.Errorf("opening %s: %w", imagePath, statErr)
		}
		manager, err = fsm.Create(imagePath, blockSize, opts)
	} else {
		manager, err = fsm.Mount(imagePath, blockSize, opts)
	}
	if err != nil {
		return fmt.Errorf("loading image: %w", err)
	}
	defer manager.Unmount()

	server, err := fuseadapter.Mount(fuseadapter.Options{
		Mountpoint: mountpoint,
		Manager:    manager,
		AllowOther: allowOther,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("mounting FUSE filesystem: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("signal received, unmounting", "mountpoint", mountpoint)
		if err := server.Unmount(); err != nil {
			logger.Error("unmount failed", "error", err)
		}
	}()

	server.Wait()
	if err := manager.Save(); err != nil {
		logger.Error("final save failed", "error", err)
	}
	return nil
}

func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger
}

func parseBitvectorStrategy(s string) (bitvector.Strategy, error) {
	switch s {
	case "word":
		return bitvector.Word, nil
	case "tree":
		return bitvector.Tree, nil
	default:
		return 0, fmt.Errorf("unknown bitvector strategy %q (want word or tree)", s)
	}
}

func parseNameStrategy(s string) (nameseq.Strategy, error) {
	switch s {
	case "flat":
		return nameseq.Flat, nil
	case "packed":
		return nameseq.Packed, nil
	default:
		return 0, fmt.Errorf("unknown name strategy %q (want flat or packed)", s)
	}
}

func treeConfig(bv bitvector.Strategy, ns nameseq.Strategy) flouds.Config {
	return flouds.Config{
		StructureStrategy: bv,
		TypesStrategy:     bv,
		NameStrategy:      ns,
		NameBitvector:     bv,
	}
}
