package treesync

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
)

// RootName is the local name an extracted "/" selection is written under.
const RootName = "root"

// Failure records one entry that a batch could not process.
type Failure struct {
	Path string
	Err  error
}

// BatchResult aggregates a batch. Failures never stop a batch; Err combines
// them (nil when every entry succeeded). Mutated is set when the filesystem
// may have changed.
type BatchResult struct {
	Requested int
	Succeeded int
	Failures  []Failure
	Err       error
	Mutated   bool
}

func (r *BatchResult) fail(p string, err error) {
	r.Failures = append(r.Failures, Failure{Path: p, Err: err})
	r.Err = multierr.Append(r.Err, fmt.Errorf("%s: %w", p, err))
}

// Failed returns the number of recorded failures.
func (r BatchResult) Failed() int { return len(r.Failures) }

// LastError returns the text of the last failure, or "".
func (r BatchResult) LastError() string {
	if len(r.Failures) == 0 {
		return ""
	}
	last := r.Failures[len(r.Failures)-1]
	return fmt.Sprintf("%s: %v", last.Path, last.Err)
}

// Summary renders a one-line status such as "Deleted 2 of 3 item(s); 1 failed: /x: not found".
func (r BatchResult) Summary(verb string) string {
	msg := fmt.Sprintf("%s %d of %d item(s)", verb, r.Succeeded, r.Requested)
	if n := r.Failed(); n > 0 {
		msg += fmt.Sprintf("; %d failed: %s", n, r.LastError())
	}
	return msg
}

// AddResult describes one AddFile. PreClear is the outcome of the
// best-effort removal of an older file at the destination; an error there
// usually means there was nothing to replace and is safe to ignore.
type AddResult struct {
	Path     string
	Size     int64
	PreClear error
	Created  bool

	cleared bool
}

// Replaced reports whether an existing file was removed first.
func (r AddResult) Replaced() bool { return r.cleared && r.PreClear == nil }

// Mutated reports whether the filesystem may have changed, even if the
// add itself failed.
func (r AddResult) Mutated() bool { return r.Replaced() || r.Created }

// AddFile copies a local file into the filesystem root under its base name,
// replacing any file already there, then rebuilds.
func (s *Syncer) AddFile(localSource string) (AddResult, error) {
	res, err := s.addFile(localSource)
	if err != nil {
		if res.Mutated() {
			if rerr := s.Rebuild(); rerr != nil {
				err = multierr.Append(err, rerr)
			}
		}
		return res, err
	}
	s.log.Info("file added", zap.String("path", res.Path), zap.Int64("size", res.Size), zap.Bool("replaced", res.Replaced()))
	return res, s.Rebuild()
}

// AddFiles adds each source like AddFile and rebuilds once at the end.
func (s *Syncer) AddFiles(sources []string) (BatchResult, error) {
	res := BatchResult{Requested: len(sources)}
	for _, src := range sources {
		one, err := s.addFile(src)
		res.Mutated = res.Mutated || one.Mutated()
		if err != nil {
			s.log.Warn("add failed", zap.String("source", src), zap.Error(err))
			res.fail(src, err)
			continue
		}
		res.Succeeded++
		s.log.Info("file added", zap.String("path", one.Path), zap.Int64("size", one.Size), zap.Bool("replaced", one.Replaced()))
	}
	return res, s.Rebuild()
}

func (s *Syncer) addFile(localSource string) (AddResult, error) {
	res := AddResult{Path: "/" + filepath.Base(localSource)}

	src, err := os.Open(localSource)
	if err != nil {
		return res, err
	}
	defer src.Close()
	st, err := src.Stat()
	if err != nil {
		return res, err
	}
	if !st.Mode().IsRegular() {
		return res, fmt.Errorf("%s: not a regular file", localSource)
	}

	res.PreClear = s.fs.Remove(res.Path)
	res.cleared = true

	dst, err := s.fs.OpenWrite(res.Path)
	if err != nil {
		return res, err
	}
	res.Created = true
	n, err := copyChunks(dst, src, make([]byte, s.chunk))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = s.fs.Remove(res.Path)
		return res, fmt.Errorf("write %s: %w", res.Path, err)
	}
	res.Size = n
	return res, nil
}

// DeleteSelected removes each path. Deeper paths go first so a directory
// selected together with its contents can be removed in one batch. The tree
// is always rebuilt afterwards.
func (s *Syncer) DeleteSelected(paths []string) (BatchResult, error) {
	ordered := normalize(paths)
	sort.SliceStable(ordered, func(i, j int) bool {
		return strings.Count(ordered[i], "/") > strings.Count(ordered[j], "/")
	})

	res := BatchResult{Requested: len(ordered)}
	for _, p := range ordered {
		if err := s.fs.Remove(p); err != nil {
			s.log.Warn("delete failed", zap.String("path", p), zap.Error(err))
			res.fail(p, err)
			continue
		}
		res.Succeeded++
		res.Mutated = true
	}
	s.log.Info("delete batch", zap.Int("requested", res.Requested), zap.Int("deleted", res.Succeeded), zap.Int("failed", res.Failed()))
	return res, s.Rebuild()
}

// ExtractSelected mirrors each path into destDir on the local disk. A
// top-level selection is written under its base name, "/" under RootName.
// Nothing in the filesystem is modified.
func (s *Syncer) ExtractSelected(paths []string, destDir string) BatchResult {
	sel := normalize(paths)
	res := BatchResult{Requested: len(sel)}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		for _, p := range sel {
			res.fail(p, err)
		}
		return res
	}
	buf := make([]byte, s.chunk)
	for _, p := range sel {
		before := res.Failed()
		s.extract(p, filepath.Join(destDir, localName(p)), buf, &res)
		if res.Failed() == before {
			res.Succeeded++
		}
	}
	s.log.Info("extract batch", zap.String("dest", destDir), zap.Int("requested", res.Requested), zap.Int("extracted", res.Succeeded), zap.Int("failed", res.Failed()))
	return res
}

func (s *Syncer) extract(src, dst string, buf []byte, res *BatchResult) {
	info, err := s.fs.Stat(src)
	if err != nil {
		res.fail(src, err)
		return
	}
	if !info.IsDir() {
		if err := s.extractFile(src, dst, buf); err != nil {
			res.fail(src, err)
		}
		return
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		res.fail(src, err)
		return
	}
	names, err := s.fs.ListDir(src)
	if err != nil {
		res.fail(src, err)
		return
	}
	for _, name := range names {
		s.extract(lfs.Join(src, name), filepath.Join(dst, name), buf, res)
	}
}

func (s *Syncer) extractFile(src, dst string, buf []byte) error {
	in, err := s.fs.OpenRead(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := copyChunks(out, in, buf); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}

func localName(p string) string {
	name := path.Base(strings.Trim(p, "/"))
	if name == "." || name == "" {
		return RootName
	}
	return name
}

// normalize makes every path absolute and drops duplicates, keeping order.
func normalize(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = lfs.Clean(p)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// copyChunks moves src to dst one buffer at a time.
func copyChunks(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var total int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if err == io.EOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
}
