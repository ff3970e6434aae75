// Package lfstest provides an in-memory lfs.FS for tests.
package lfstest

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
)

// Op names an FS method for failure injection.
type Op string

const (
	OpList   Op = "list"
	OpStat   Op = "stat"
	OpRead   Op = "read"
	OpWrite  Op = "write"
	OpRemove Op = "remove"
	OpMkdir  Op = "mkdir"
)

type entry struct {
	dir  bool
	data []byte
}

// MemFS is a map-backed filesystem. The zero value is not usable; call New.
type MemFS struct {
	entries map[string]*entry
	fail    map[Op]map[string]error
	// Mutations counts successful writes, removes and mkdirs.
	Mutations int
}

var _ lfs.FS = (*MemFS)(nil)

// New returns an empty filesystem containing only "/".
func New() *MemFS {
	return &MemFS{
		entries: map[string]*entry{"/": {dir: true}},
		fail:    make(map[Op]map[string]error),
	}
}

// Fail makes op on p return err until cleared with a nil err.
func (m *MemFS) Fail(op Op, p string, err error) {
	if m.fail[op] == nil {
		m.fail[op] = make(map[string]error)
	}
	if err == nil {
		delete(m.fail[op], p)
		return
	}
	m.fail[op][p] = err
}

func (m *MemFS) injected(op Op, p string) error {
	return m.fail[op][p]
}

// WriteFile creates parents as needed and stores data at p.
func (m *MemFS) WriteFile(p string, data []byte) {
	p = lfs.Clean(p)
	m.mkdirAll(path.Dir(p))
	m.entries[p] = &entry{data: append([]byte(nil), data...)}
}

// MkdirAll creates p and its parents.
func (m *MemFS) MkdirAll(p string) {
	m.mkdirAll(lfs.Clean(p))
}

func (m *MemFS) mkdirAll(p string) {
	if p == "/" {
		return
	}
	m.mkdirAll(path.Dir(p))
	if _, ok := m.entries[p]; !ok {
		m.entries[p] = &entry{dir: true}
	}
}

// ReadFile returns a copy of the file at p, or nil.
func (m *MemFS) ReadFile(p string) []byte {
	e, ok := m.entries[lfs.Clean(p)]
	if !ok || e.dir {
		return nil
	}
	return append([]byte(nil), e.data...)
}

// Exists reports whether p exists.
func (m *MemFS) Exists(p string) bool {
	_, ok := m.entries[lfs.Clean(p)]
	return ok
}

func (m *MemFS) children(dir string) []string {
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var names []string
	for p := range m.entries {
		if p == "/" || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := p[len(prefix):]
		if rest != "" && !strings.Contains(rest, "/") {
			names = append(names, rest)
		}
	}
	sort.Strings(names)
	return names
}

func (m *MemFS) ListDir(p string) ([]string, error) {
	p = lfs.Clean(p)
	if err := m.injected(OpList, p); err != nil {
		return nil, err
	}
	e, ok := m.entries[p]
	if !ok {
		return nil, fmt.Errorf("list %s: %w", p, lfs.ErrNotFound)
	}
	if !e.dir {
		return nil, fmt.Errorf("list %s: %w", p, lfs.ErrNotDir)
	}
	return m.children(p), nil
}

func (m *MemFS) Stat(p string) (lfs.Info, error) {
	p = lfs.Clean(p)
	if err := m.injected(OpStat, p); err != nil {
		return lfs.Info{}, err
	}
	e, ok := m.entries[p]
	if !ok {
		return lfs.Info{}, fmt.Errorf("stat %s: %w", p, lfs.ErrNotFound)
	}
	if e.dir {
		return lfs.Info{Name: path.Base(p), Kind: lfs.KindDir}, nil
	}
	return lfs.Info{Name: path.Base(p), Kind: lfs.KindFile, Size: int64(len(e.data))}, nil
}

func (m *MemFS) OpenRead(p string) (io.ReadCloser, error) {
	p = lfs.Clean(p)
	if err := m.injected(OpRead, p); err != nil {
		return nil, err
	}
	e, ok := m.entries[p]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", p, lfs.ErrNotFound)
	}
	if e.dir {
		return nil, fmt.Errorf("open %s: %w", p, lfs.ErrIsDir)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), e.data...))), nil
}

// writer commits on Close, like a flash file that is only visible once synced.
type writer struct {
	fs   *MemFS
	path string
	buf  bytes.Buffer
}

func (w *writer) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *writer) Close() error {
	w.fs.entries[w.path] = &entry{data: w.buf.Bytes()}
	w.fs.Mutations++
	return nil
}

func (m *MemFS) OpenWrite(p string) (io.WriteCloser, error) {
	p = lfs.Clean(p)
	if err := m.injected(OpWrite, p); err != nil {
		return nil, err
	}
	parent, ok := m.entries[path.Dir(p)]
	if !ok || !parent.dir {
		return nil, fmt.Errorf("create %s: %w", p, lfs.ErrNotFound)
	}
	if e, ok := m.entries[p]; ok && e.dir {
		return nil, fmt.Errorf("create %s: %w", p, lfs.ErrIsDir)
	}
	return &writer{fs: m, path: p}, nil
}

func (m *MemFS) Remove(p string) error {
	p = lfs.Clean(p)
	if err := m.injected(OpRemove, p); err != nil {
		return err
	}
	e, ok := m.entries[p]
	if !ok || p == "/" {
		return fmt.Errorf("remove %s: %w", p, lfs.ErrNotFound)
	}
	if e.dir && len(m.children(p)) > 0 {
		return fmt.Errorf("remove %s: %w", p, lfs.ErrNotEmpty)
	}
	delete(m.entries, p)
	m.Mutations++
	return nil
}

func (m *MemFS) Mkdir(p string) error {
	p = lfs.Clean(p)
	if err := m.injected(OpMkdir, p); err != nil {
		return err
	}
	if _, ok := m.entries[p]; ok {
		return fmt.Errorf("mkdir %s: %w", p, lfs.ErrExists)
	}
	parent, ok := m.entries[path.Dir(p)]
	if !ok || !parent.dir {
		return fmt.Errorf("mkdir %s: %w", p, lfs.ErrNotFound)
	}
	m.entries[p] = &entry{dir: true}
	m.Mutations++
	return nil
}

func (m *MemFS) Unmount() error { return nil }
