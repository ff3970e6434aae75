package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/multierr"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/config"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/session"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/treesync"
)

// listTree prints one line per entry, indented by depth.
func listTree(w io.Writer, s *session.Session, hash bool) error {
	t := s.Tree()
	fmt.Fprintf(w, "%s: %d entries, %s\n", s.Path(), t.Len(), human(t.TotalSize()))
	return t.Walk(func(n *treesync.Node, depth int) error {
		name := strings.Repeat("  ", depth) + n.Path[strings.LastIndexByte(n.Path, '/')+1:]
		if n.IsDir() {
			fmt.Fprintf(w, "  %-40s  %8s\n", name+"/", "")
			return nil
		}
		if !hash {
			fmt.Fprintf(w, "  %-40s  %8s\n", name, human(n.Size))
			return nil
		}
		sum, err := s.Checksum(n.Path)
		if err != nil {
			return fmt.Errorf("hash %s: %w", n.Path, err)
		}
		fmt.Fprintf(w, "  %-40s  %8s  %016x\n", name, human(n.Size), sum)
		return nil
	})
}

// reportBatch prints the summary and every failure, and turns failures
// into an error for the exit status.
func reportBatch(res treesync.BatchResult, verb string) error {
	fmt.Println(res.Summary(verb))
	for _, f := range res.Failures {
		fmt.Fprintf(os.Stderr, "  %s: %v\n", f.Path, f.Err)
	}
	if n := res.Failed(); n > 0 {
		return fmt.Errorf("%d of %d item(s) failed", n, res.Requested)
	}
	return nil
}

// finishBatch saves whatever the batch changed, then reports it.
func finishBatch(s *session.Session, res treesync.BatchResult, rebuildErr error, verb, out string) error {
	if err := saveIfChanged(s, out); err != nil {
		return err
	}
	if err := reportBatch(res, verb); err != nil {
		return err
	}
	if rebuildErr != nil {
		return fmt.Errorf("reload after %s: %w", strings.ToLower(verb), rebuildErr)
	}
	return nil
}

// mkdirAndSave creates p and saves the image. A directory that was created
// before the tree reload failed is still saved, and both errors are kept.
func mkdirAndSave(w io.Writer, s *session.Session, p, out string) error {
	if err := s.Mkdir(p); err != nil {
		if s.Dirty() {
			err = multierr.Append(err, saveIfChanged(s, out))
		}
		return err
	}
	fmt.Fprintf(w, "Created %s\n", lfs.Clean(p))
	return saveIfChanged(s, out)
}

// regionBlocks turns --blocks or --size into a block count.
func regionBlocks(blocks int64, size string, blockSize int64) (int64, error) {
	if size != "" {
		sz, err := config.ParseSize(size)
		if err != nil {
			return 0, err
		}
		if sz%blockSize != 0 {
			return 0, fmt.Errorf("size must be a multiple of the block size (%d)", blockSize)
		}
		blocks = sz / blockSize
	}
	if blocks <= 0 {
		return 0, fmt.Errorf("choose --blocks or --size")
	}
	return blocks, nil
}

func printInfo(w io.Writer, s *session.Session) {
	dev := s.Device()
	t := s.Tree()
	region := dev.BlockCount() * dev.BlockSize()
	fmt.Fprintln(w, "Image info")
	fmt.Fprintf(w, "  Path:       %s\n", s.Path())
	fmt.Fprintf(w, "  Size:       %s (%d bytes)\n", human(int64(len(s.Image()))), len(s.Image()))
	fmt.Fprintf(w, "  Offset:     0x%X\n", dev.Offset())
	fmt.Fprintf(w, "  Block size: %d\n", dev.BlockSize())
	fmt.Fprintf(w, "  Blocks:     %d (%s)\n", dev.BlockCount(), human(region))
	fmt.Fprintf(w, "  Entries:    %d\n", t.Len())
	fmt.Fprintf(w, "  File data:  %s\n", human(t.TotalSize()))
}
