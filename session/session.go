// Package session owns one open flash image: the bytes, the block device
// mapped over them, the mounted filesystem and its tree. They are created
// together and replaced as a unit. A Session is not safe for concurrent use.
package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/flashbd"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/treesync"
)

// ErrMount wraps every failure to mount the filesystem of an image.
var ErrMount = errors.New("mount failed")

// Driver is the pair of filesystem entry points a session uses.
type Driver struct {
	Mount  func(dev lfs.BlockDevice, g lfs.Geometry) (lfs.FS, error)
	Format func(dev lfs.BlockDevice, g lfs.Geometry) error
}

// LittleFS is the default driver.
func LittleFS() Driver {
	return Driver{Mount: lfs.Mount, Format: lfs.Format}
}

type options struct {
	offset    int64
	blockSize int64
	geometry  lfs.Geometry
	chunk     int
	driver    Driver
	log       *zap.Logger
}

// Option configures Open, Load and Create.
type Option func(*options)

// WithLayout sets where the filesystem region starts and its erase block size.
func WithLayout(offset, blockSize int64) Option {
	return func(o *options) {
		o.offset = offset
		o.blockSize = blockSize
	}
}

func WithGeometry(g lfs.Geometry) Option {
	return func(o *options) { o.geometry = g }
}

func WithChunkSize(n int) Option {
	return func(o *options) { o.chunk = n }
}

func WithDriver(d Driver) Option {
	return func(o *options) { o.driver = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{
		offset:    flashbd.DefaultOffset,
		blockSize: flashbd.DefaultBlockSize,
		geometry:  lfs.DefaultGeometry(),
		chunk:     treesync.DefaultChunkSize,
		driver:    LittleFS(),
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Session is an open image.
type Session struct {
	path  string
	image []byte
	dev   *flashbd.Device
	fs    lfs.FS
	sync  *treesync.Syncer
	dirty bool
	opts  options
}

// Open reads a whole image file or raw block device into memory and mounts it.
func Open(path string, opts ...Option) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	size, err := DeviceSize(f)
	if err != nil {
		return nil, fmt.Errorf("get image size: %w", err)
	}
	image := make([]byte, size)
	if _, err := io.ReadFull(f, image); err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return Load(path, image, opts...)
}

// Load mounts an image that is already in memory. path is where Save writes
// by default. The session takes ownership of image.
func Load(path string, image []byte, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	dev, err := flashbd.New(image, o.offset, o.blockSize)
	if err != nil {
		return nil, err
	}
	fs, err := o.driver.Mount(dev, o.geometry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMount, err)
	}
	s, err := attach(path, image, dev, fs, o)
	if err != nil {
		return nil, err
	}
	o.log.Info("image opened",
		zap.String("path", path),
		zap.Int("bytes", len(image)),
		zap.Int64("blocks", dev.BlockCount()),
		zap.Int("entries", s.Tree().Len()))
	return s, nil
}

// Create builds a fresh image of blocks erase blocks: offset bytes of 0xFF
// followed by a newly formatted region. Nothing is written to disk until Save.
func Create(path string, blocks int64, opts ...Option) (*Session, error) {
	o := buildOptions(opts)
	if blocks <= 0 {
		return nil, fmt.Errorf("create image: block count must be positive")
	}
	image := bytes.Repeat([]byte{0xFF}, int(o.offset+blocks*o.blockSize))
	dev, err := flashbd.New(image, o.offset, o.blockSize)
	if err != nil {
		return nil, err
	}
	if err := o.driver.Format(dev, o.geometry); err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	fs, err := o.driver.Mount(dev, o.geometry)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMount, err)
	}
	s, err := attach(path, image, dev, fs, o)
	if err != nil {
		return nil, err
	}
	s.dirty = true
	o.log.Info("image created", zap.String("path", path), zap.Int64("blocks", blocks), zap.Int("bytes", len(image)))
	return s, nil
}

func attach(path string, image []byte, dev *flashbd.Device, fs lfs.FS, o options) (*Session, error) {
	s := &Session{
		path:  path,
		image: image,
		dev:   dev,
		fs:    fs,
		sync:  treesync.New(fs, treesync.WithChunkSize(o.chunk), treesync.WithLogger(o.log)),
		opts:  o,
	}
	if err := s.sync.Rebuild(); err != nil {
		_ = fs.Unmount()
		return nil, fmt.Errorf("%w: %w", ErrMount, err)
	}
	return s, nil
}

// Close unmounts the filesystem. Unsaved changes are discarded.
func (s *Session) Close() error {
	if s.fs == nil {
		return nil
	}
	err := s.fs.Unmount()
	s.fs = nil
	return err
}

func (s *Session) Path() string { return s.path }

// Image returns the live image bytes.
func (s *Session) Image() []byte { return s.image }

func (s *Session) Device() *flashbd.Device { return s.dev }

// Dirty reports whether the image changed since it was opened or last saved.
func (s *Session) Dirty() bool { return s.dirty }

func (s *Session) Tree() *treesync.Tree { return s.sync.Tree() }

// Reload re-reads the tree without touching the image.
func (s *Session) Reload() error { return s.sync.Rebuild() }

// Add copies one local file into the root of the image.
func (s *Session) Add(local string) (treesync.AddResult, error) {
	res, err := s.sync.AddFile(local)
	if res.Mutated() {
		s.dirty = true
	}
	return res, err
}

// AddFiles copies several local files into the root of the image.
func (s *Session) AddFiles(sources []string) (treesync.BatchResult, error) {
	res, err := s.sync.AddFiles(sources)
	if res.Mutated {
		s.dirty = true
	}
	return res, err
}

// Delete removes the selected paths.
func (s *Session) Delete(paths []string) (treesync.BatchResult, error) {
	res, err := s.sync.DeleteSelected(paths)
	if res.Mutated {
		s.dirty = true
	}
	return res, err
}

// Extract copies the selected paths to destDir. The image is not modified.
func (s *Session) Extract(paths []string, destDir string) treesync.BatchResult {
	return s.sync.ExtractSelected(paths, destDir)
}

func (s *Session) Mkdir(p string) error {
	err := s.sync.Mkdir(p)
	if err == nil || errors.Is(err, treesync.ErrRebuild) {
		s.dirty = true
	}
	return err
}

// ReadFile returns the contents of a file inside the image.
func (s *Session) ReadFile(p string) ([]byte, error) {
	in, err := s.fs.OpenRead(p)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	return io.ReadAll(in)
}

func (s *Session) Checksum(p string) (uint64, error) {
	return s.sync.Checksum(p)
}
