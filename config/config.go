// Package config loads badgetool settings from YAML. A missing file yields
// the defaults, which match the DC33 badge firmware layout.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/flashbd"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
)

// Size is a byte count that YAML may spell as 4096, 0x200000, 64k or 2M.
type Size int64

func (s *Size) UnmarshalYAML(value *yaml.Node) error {
	n, err := ParseSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = Size(n)
	return nil
}

func (s Size) MarshalYAML() (interface{}, error) {
	return int64(s), nil
}

// ParseSize accepts plain or 0x-prefixed integers and the k/m/g suffixes.
func ParseSize(str string) (int64, error) {
	ss := strings.TrimSpace(strings.ToLower(str))
	if ss == "" {
		return 0, fmt.Errorf("empty size")
	}
	if strings.HasPrefix(ss, "0x") {
		v, err := strconv.ParseInt(ss[2:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("bad size %q: %w", str, err)
		}
		return v, nil
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(ss, "k"):
		mult = 1024
		ss = strings.TrimSuffix(ss, "k")
	case strings.HasSuffix(ss, "m"):
		mult = 1024 * 1024
		ss = strings.TrimSuffix(ss, "m")
	case strings.HasSuffix(ss, "g"):
		mult = 1024 * 1024 * 1024
		ss = strings.TrimSuffix(ss, "g")
	case strings.HasSuffix(ss, "b"):
		ss = strings.TrimSuffix(ss, "b")
	}
	v, err := strconv.ParseFloat(ss, 64)
	if err != nil {
		return 0, fmt.Errorf("bad size %q: %w", str, err)
	}
	return int64(v * float64(mult)), nil
}

// Layout locates the filesystem inside the image and tunes the driver.
type Layout struct {
	Offset        Size   `yaml:"offset"`
	BlockSize     Size   `yaml:"block_size"`
	ReadSize      uint32 `yaml:"read_size"`
	ProgSize      uint32 `yaml:"prog_size"`
	LookaheadSize uint32 `yaml:"lookahead_size"`
	CacheSize     uint32 `yaml:"cache_size"`
	BlockCycles   int32  `yaml:"block_cycles"`
}

// Geometry returns the driver parameters of the layout.
func (l Layout) Geometry() lfs.Geometry {
	return lfs.Geometry{
		ReadSize:      l.ReadSize,
		ProgSize:      l.ProgSize,
		LookaheadSize: l.LookaheadSize,
		CacheSize:     l.CacheSize,
		BlockCycles:   l.BlockCycles,
	}
}

type Preview struct {
	Interval   time.Duration `yaml:"interval"`
	Size       int           `yaml:"size"`
	Extensions []string      `yaml:"extensions"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type Config struct {
	Layout    Layout  `yaml:"layout"`
	CopyChunk Size    `yaml:"copy_chunk"`
	Preview   Preview `yaml:"preview"`
	Log       Log     `yaml:"log"`
}

func DefaultConfig() *Config {
	g := lfs.DefaultGeometry()
	return &Config{
		Layout: Layout{
			Offset:        flashbd.DefaultOffset,
			BlockSize:     flashbd.DefaultBlockSize,
			ReadSize:      g.ReadSize,
			ProgSize:      g.ProgSize,
			LookaheadSize: g.LookaheadSize,
			CacheSize:     g.CacheSize,
			BlockCycles:   g.BlockCycles,
		},
		CopyChunk: 64 * 1024,
		Preview: Preview{
			Interval:   100 * time.Millisecond,
			Size:       128,
			Extensions: []string{".gif"},
		},
		Log: Log{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig decodes path over the defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the combinations the LittleFS driver would reject at mount.
func (c *Config) Validate() error {
	l := c.Layout
	var errs []error
	if l.Offset < 0 {
		errs = append(errs, fmt.Errorf("layout.offset must not be negative"))
	}
	if l.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("layout.block_size must be positive"))
	}
	if l.ReadSize == 0 || l.ProgSize == 0 {
		errs = append(errs, fmt.Errorf("layout.read_size and layout.prog_size must be positive"))
	} else if l.BlockSize > 0 {
		if l.ReadSize != l.ProgSize {
			// the driver derives both from a single write unit
			errs = append(errs, fmt.Errorf("layout.read_size must equal layout.prog_size, got %d and %d", l.ReadSize, l.ProgSize))
		}
		if int64(l.BlockSize)%int64(l.ReadSize) != 0 || int64(l.BlockSize)%int64(l.ProgSize) != 0 {
			errs = append(errs, fmt.Errorf("layout.block_size must be a multiple of read_size and prog_size"))
		}
		if l.CacheSize == 0 || l.CacheSize%l.ReadSize != 0 || l.CacheSize%l.ProgSize != 0 || int64(l.BlockSize)%int64(l.CacheSize) != 0 {
			errs = append(errs, fmt.Errorf("layout.cache_size must be a multiple of read_size and prog_size and divide block_size"))
		}
	}
	if l.LookaheadSize == 0 || l.LookaheadSize%8 != 0 {
		errs = append(errs, fmt.Errorf("layout.lookahead_size must be a positive multiple of 8"))
	}
	if c.CopyChunk <= 0 {
		errs = append(errs, fmt.Errorf("copy_chunk must be positive"))
	}
	if c.Preview.Interval <= 0 {
		errs = append(errs, fmt.Errorf("preview.interval must be positive"))
	}
	if c.Preview.Size <= 0 {
		errs = append(errs, fmt.Errorf("preview.size must be positive"))
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return multierr.Combine(errs...)
}
