//go:build cgo

package lfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"tinygo.org/x/tinyfs/littlefs"
)

// Available reports whether this build carries the LittleFS driver.
func Available() bool { return true }

// Mount attaches the LittleFS driver to dev.
func Mount(dev BlockDevice, g Geometry) (FS, error) {
	l := configure(dev, g)
	if err := l.Mount(); err != nil {
		return nil, fmt.Errorf("mount: %w", err)
	}
	return &driver{lfs: l}, nil
}

// Format writes an empty filesystem over every block of dev.
func Format(dev BlockDevice, g Geometry) error {
	l := configure(dev, g)
	if err := l.Format(); err != nil {
		return fmt.Errorf("format: %w", err)
	}
	return nil
}

func configure(dev BlockDevice, g Geometry) *littlefs.LFS {
	return littlefs.New(&byteDevice{dev: dev, progSize: int64(g.ProgSize)}).Configure(&littlefs.Config{
		CacheSize:     g.CacheSize,
		LookaheadSize: g.LookaheadSize,
		BlockCycles:   g.BlockCycles,
	})
}

// byteDevice adapts block addressing to the byte-addressed
// tinyfs.BlockDevice. The driver derives read and prog size from
// WriteBlockSize.
type byteDevice struct {
	dev      BlockDevice
	progSize int64
}

func (b *byteDevice) ReadAt(p []byte, off int64) (int, error) {
	return b.each(p, off, b.dev.Read)
}

func (b *byteDevice) WriteAt(p []byte, off int64) (int, error) {
	return b.each(p, off, b.dev.Program)
}

// each splits a byte range at block boundaries.
func (b *byteDevice) each(p []byte, off int64, op func(block, off int64, p []byte) error) (int, error) {
	bs := b.dev.BlockSize()
	done := 0
	for done < len(p) {
		pos := off + int64(done)
		block, intra := pos/bs, pos%bs
		n := int(bs - intra)
		if n > len(p)-done {
			n = len(p) - done
		}
		if err := op(block, intra, p[done:done+n]); err != nil {
			return done, err
		}
		done += n
	}
	return done, nil
}

func (b *byteDevice) Size() int64 { return b.dev.BlockSize() * b.dev.BlockCount() }

func (b *byteDevice) WriteBlockSize() int64 { return b.progSize }

func (b *byteDevice) EraseBlockSize() int64 { return b.dev.BlockSize() }

func (b *byteDevice) EraseBlocks(start, count int64) error {
	for i := start; i < start+count; i++ {
		if err := b.dev.Erase(i); err != nil {
			return err
		}
	}
	return nil
}

type driver struct {
	lfs *littlefs.LFS
}

func (d *driver) ListDir(p string) ([]string, error) {
	f, err := d.lfs.Open(p)
	if err != nil {
		return nil, wrapErr("open", p, err)
	}
	defer f.Close()
	if !f.IsDir() {
		return nil, fmt.Errorf("list %s: %w", p, ErrNotDir)
	}
	infos, err := f.Readdir(0)
	if err != nil && err != io.EOF {
		return nil, wrapErr("list", p, err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		switch info.Name() {
		case ".", "..":
		default:
			names = append(names, info.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *driver) Stat(p string) (Info, error) {
	fi, err := d.lfs.Stat(p)
	if err != nil {
		return Info{}, wrapErr("stat", p, err)
	}
	info := Info{Name: fi.Name(), Kind: KindFile, Size: fi.Size()}
	if fi.IsDir() {
		info.Kind = KindDir
		info.Size = 0
	}
	return info, nil
}

func (d *driver) OpenRead(p string) (io.ReadCloser, error) {
	f, err := d.lfs.Open(p)
	if err != nil {
		return nil, wrapErr("open", p, err)
	}
	if f.IsDir() {
		f.Close()
		return nil, fmt.Errorf("open %s: %w", p, ErrIsDir)
	}
	return f, nil
}

func (d *driver) OpenWrite(p string) (io.WriteCloser, error) {
	f, err := d.lfs.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return nil, wrapErr("create", p, err)
	}
	return f, nil
}

func (d *driver) Remove(p string) error {
	if err := d.lfs.Remove(p); err != nil {
		return wrapErr("remove", p, err)
	}
	return nil
}

func (d *driver) Mkdir(p string) error {
	if err := d.lfs.Mkdir(p, 0o777); err != nil {
		return wrapErr("mkdir", p, err)
	}
	return nil
}

func (d *driver) Unmount() error {
	return d.lfs.Unmount()
}

// LittleFS error codes (negated errno values).
const (
	codeNoEntry  = -2
	codeExists   = -17
	codeNotDir   = -20
	codeIsDir    = -21
	codeNotEmpty = -39
)

// wrapErr maps driver error codes onto the package sentinels, keeping the
// driver's own text.
func wrapErr(op, p string, err error) error {
	var le littlefs.Error
	if errors.As(err, &le) {
		var sentinel error
		switch int(le) {
		case codeNoEntry:
			sentinel = ErrNotFound
		case codeExists:
			sentinel = ErrExists
		case codeNotDir:
			sentinel = ErrNotDir
		case codeIsDir:
			sentinel = ErrIsDir
		case codeNotEmpty:
			sentinel = ErrNotEmpty
		}
		if sentinel != nil {
			return fmt.Errorf("%s %s: %w: %w", op, p, sentinel, err)
		}
	}
	return fmt.Errorf("%s %s: %w", op, p, err)
}
