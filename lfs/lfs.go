// Package lfs is the capability surface badgetool needs from a LittleFS
// driver: mount a block device, list, stat, stream files in and out, remove.
// The cgo build binds tinygo.org/x/tinyfs/littlefs; without cgo Mount and
// Format report ErrUnavailable.
package lfs

import (
	"errors"
	"io"
	"path"
	"strings"
)

var (
	// ErrUnavailable means the driver was not compiled in.
	ErrUnavailable = errors.New("lfs: littlefs driver unavailable (built without cgo)")
	// ErrNotFound is returned for paths that do not exist.
	ErrNotFound = errors.New("lfs: no such file or directory")
	// ErrExists is returned when creating a path that already exists.
	ErrExists = errors.New("lfs: already exists")
	// ErrIsDir is returned when a file operation targets a directory.
	ErrIsDir = errors.New("lfs: is a directory")
	// ErrNotDir is returned when a directory operation targets a file.
	ErrNotDir = errors.New("lfs: not a directory")
	// ErrNotEmpty is returned when removing a directory that has entries.
	ErrNotEmpty = errors.New("lfs: directory not empty")
)

// Kind is the type of a filesystem entry.
type Kind uint8

const (
	KindFile Kind = iota + 1
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "FILE"
	case KindDir:
		return "DIR"
	default:
		return "?"
	}
}

// Info describes one entry. Size is meaningful for files only.
type Info struct {
	Name string
	Kind Kind
	Size int64
}

// IsDir reports whether the entry is a directory.
func (i Info) IsDir() bool { return i.Kind == KindDir }

// FS is a mounted filesystem. Paths are absolute and slash separated.
// Implementations are not safe for concurrent use.
type FS interface {
	// ListDir returns the entry names of a directory, without "." and "..".
	ListDir(path string) ([]string, error)
	Stat(path string) (Info, error)
	OpenRead(path string) (io.ReadCloser, error)
	// OpenWrite creates or truncates a file.
	OpenWrite(path string) (io.WriteCloser, error)
	Remove(path string) error
	Mkdir(path string) error
	Unmount() error
}

// BlockDevice is what Mount and Format drive. flashbd.Device satisfies it.
type BlockDevice interface {
	Read(block, off int64, p []byte) error
	Program(block, off int64, data []byte) error
	Erase(block int64) error
	Sync() error
	BlockSize() int64
	BlockCount() int64
}

// Geometry holds the driver parameters that are not implied by the block
// device. Block size and count always come from the device. The driver
// uses one unit for reads and programs, so ReadSize must equal ProgSize.
type Geometry struct {
	ReadSize      uint32
	ProgSize      uint32
	LookaheadSize uint32
	CacheSize     uint32
	BlockCycles   int32
}

// DefaultGeometry matches the badge firmware's mount parameters.
func DefaultGeometry() Geometry {
	return Geometry{
		ReadSize:      16,
		ProgSize:      16,
		LookaheadSize: 16,
		CacheSize:     64,
		BlockCycles:   500,
	}
}

// Clean returns p as an absolute, cleaned slash path. "" becomes "/".
func Clean(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// Join appends name to the directory dir.
func Join(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}
