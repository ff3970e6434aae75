// Package treesync mirrors a mounted LittleFS volume into a display tree and
// runs the add, delete and extract batches against it. Every mutation is
// followed by a full rebuild; the tree is never patched in place.
//
// A Syncer is not safe for concurrent use.
package treesync

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
)

// DefaultChunkSize is the copy unit for file transfers.
const DefaultChunkSize = 64 * 1024

// ErrRebuild wraps every error returned by Rebuild, so callers can tell a
// failed refresh from a failed mutation.
var ErrRebuild = errors.New("treesync: rebuild")

// Syncer owns the current tree for one mounted filesystem.
type Syncer struct {
	fs    lfs.FS
	tree  *Tree
	chunk int
	log   *zap.Logger
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithChunkSize sets the copy chunk size used by add and extract.
func WithChunkSize(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.chunk = n
		}
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(l *zap.Logger) Option {
	return func(s *Syncer) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Syncer with an empty tree. Call Rebuild to populate it.
func New(fs lfs.FS, opts ...Option) *Syncer {
	s := &Syncer{
		fs:    fs,
		tree:  newTree(),
		chunk: DefaultChunkSize,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tree returns the snapshot produced by the last successful Rebuild.
func (s *Syncer) Tree() *Tree { return s.tree }

// Rebuild walks the filesystem from "/" into a fresh tree. The current tree
// is replaced only when the walk succeeds.
func (s *Syncer) Rebuild() error {
	t := newTree()
	if err := s.insertDir(t, t.Root()); err != nil {
		return fmt.Errorf("%w: %w", ErrRebuild, err)
	}
	s.tree = t
	s.log.Debug("tree rebuilt", zap.Int("entries", t.Len()), zap.Int64("bytes", t.TotalSize()))
	return nil
}

func (s *Syncer) insertDir(t *Tree, dir *Node) error {
	names, err := s.fs.ListDir(dir.Path)
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		full := lfs.Join(dir.Path, name)
		info, err := s.fs.Stat(full)
		if err != nil {
			return err
		}
		n := &Node{Path: full, Kind: info.Kind}
		t.nodes[full] = n
		dir.Children = append(dir.Children, full)
		if info.IsDir() {
			if err := s.insertDir(t, n); err != nil {
				return err
			}
		} else {
			n.Size = info.Size
		}
	}
	return nil
}

// Mkdir creates a directory and rebuilds.
func (s *Syncer) Mkdir(p string) error {
	p = lfs.Clean(p)
	if err := s.fs.Mkdir(p); err != nil {
		return err
	}
	s.log.Info("directory created", zap.String("path", p))
	return s.Rebuild()
}
