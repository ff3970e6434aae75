package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs/lfstest"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/session"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/treesync"
)

func TestHuman(t *testing.T) {
	require.Equal(t, "512B", human(512))
	require.Equal(t, "4K", human(4096))
	require.Equal(t, "2M", human(2*1024*1024))
}

func TestRegionBlocks(t *testing.T) {
	n, err := regionBlocks(64, "", 4096)
	require.Nil(t, err)
	require.Equal(t, int64(64), n)

	n, err = regionBlocks(0, "256k", 4096)
	require.Nil(t, err)
	require.Equal(t, int64(64), n)

	_, err = regionBlocks(0, "1000", 4096)
	require.NotNil(t, err)
	_, err = regionBlocks(0, "", 4096)
	require.NotNil(t, err)
	_, err = regionBlocks(0, "lots", 4096)
	require.NotNil(t, err)
}

func testCommand(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{Use: "t", RunE: func(*cobra.Command, []string) error { return nil }}
	pf := cmd.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "")
	pf.StringVar(&g.offset, "offset", "", "")
	pf.StringVar(&g.blockSize, "block-size", "", "")
	pf.StringVar(&g.logLevel, "log-level", "", "")
	pf.StringVar(&g.logFile, "log-file", "", "")
	return cmd
}

func TestGlobalFlagsOverrideConfig(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "badgetool.yaml")
	require.Nil(t, os.WriteFile(cfgFile, []byte("layout:\n  offset: 0x100000\ncopy_chunk: 4k\n"), 0o644))

	var g globalFlags
	cmd := testCommand(&g)
	require.Nil(t, cmd.ParseFlags([]string{"--config", cfgFile, "--block-size", "8k", "--log-file", "off"}))
	require.Nil(t, g.load(cmd, false))

	require.Equal(t, int64(0x100000), int64(cfg.Layout.Offset))
	require.Equal(t, int64(8192), int64(cfg.Layout.BlockSize))
	require.Equal(t, int64(4096), int64(cfg.CopyChunk))
}

func TestGlobalFlagsRejectBadOffset(t *testing.T) {
	var g globalFlags
	cmd := testCommand(&g)
	require.Nil(t, cmd.ParseFlags([]string{"--offset", "nowhere", "--log-file", "off"}))
	err := g.load(cmd, false)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "--offset")
}

func memSession(t *testing.T, fs *lfstest.MemFS) *session.Session {
	drv := session.Driver{
		Mount:  func(lfs.BlockDevice, lfs.Geometry) (lfs.FS, error) { return fs, nil },
		Format: func(lfs.BlockDevice, lfs.Geometry) error { return nil },
	}
	s, err := session.Load("badge.bin", make([]byte, 1024+8*512), session.WithLayout(1024, 512), session.WithDriver(drv))
	require.Nil(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestListTree(t *testing.T) {
	fs := lfstest.New()
	fs.WriteFile("/apps/snake.py", []byte("print('snake')"))
	fs.WriteFile("/boot.gif", bytes.Repeat([]byte{1}, 2048))
	s := memSession(t, fs)

	var out bytes.Buffer
	require.Nil(t, listTree(&out, s, false))
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[0], "3 entries")
	require.Contains(t, lines[1], "apps/")
	require.Contains(t, lines[2], "    snake.py")
	require.Contains(t, lines[3], "boot.gif")
	require.Contains(t, lines[3], "2K")

	out.Reset()
	require.Nil(t, listTree(&out, s, true))
	sum, err := s.Checksum("/boot.gif")
	require.Nil(t, err)
	require.Contains(t, out.String(), fmt.Sprintf("%016x", sum))
}

func TestPrintInfo(t *testing.T) {
	fs := lfstest.New()
	fs.WriteFile("/a.txt", []byte("abc"))
	s := memSession(t, fs)

	var out bytes.Buffer
	printInfo(&out, s)
	require.Contains(t, out.String(), "Offset:     0x400")
	require.Contains(t, out.String(), "Blocks:     8 (4K)")
	require.Contains(t, out.String(), "Entries:    1")
}

func TestReportBatch(t *testing.T) {
	require.Nil(t, reportBatch(treesync.BatchResult{Requested: 2, Succeeded: 2}, "Added"))

	res := treesync.BatchResult{
		Requested: 2,
		Succeeded: 1,
		Failures:  []treesync.Failure{{Path: "/x", Err: errors.New("not found")}},
	}
	err := reportBatch(res, "Deleted")
	require.NotNil(t, err)
	require.Equal(t, "1 of 2 item(s) failed", err.Error())
}

func TestCopyRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	dev := filepath.Join(dir, "mtdblock0")
	require.Nil(t, os.WriteFile(dev, data, 0o600))

	img := filepath.Join(dir, "backup", "badge.bin")
	require.Nil(t, copyDeviceToImage(io.Discard, dev, img, 4096))
	got, err := os.ReadFile(img)
	require.Nil(t, err)
	require.Equal(t, data, got)

	// restore over a device filled with something else
	require.Nil(t, os.WriteFile(dev, make([]byte, 12000), 0o600))
	var progress bytes.Buffer
	require.Nil(t, copyImageToDevice(&progress, img, dev, 4096))
	require.Contains(t, progress.String(), "WARNING: device is")
	got, err = os.ReadFile(dev)
	require.Nil(t, err)
	require.Equal(t, data, got[:len(data)])
	require.Equal(t, make([]byte, 2000), got[len(data):])
}

func TestCopyRejectsSmallDevice(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "badge.bin")
	dev := filepath.Join(dir, "small")
	require.Nil(t, os.WriteFile(img, make([]byte, 4096), 0o600))
	require.Nil(t, os.WriteFile(dev, make([]byte, 1024), 0o600))

	err := copyImageToDevice(io.Discard, img, dev, 512)
	require.NotNil(t, err)
	require.Contains(t, err.Error(), "device too small")
}

func TestMkdirAndSave(t *testing.T) {
	dir := t.TempDir()
	s := memSession(t, lfstest.New())

	var out bytes.Buffer
	saved := filepath.Join(dir, "badge.bin")
	require.Nil(t, mkdirAndSave(&out, s, "apps", saved))
	require.Equal(t, "Created /apps\n", out.String())
	require.False(t, s.Dirty())
	_, err := os.Stat(saved)
	require.Nil(t, err)
}

func TestMkdirAndSaveKeepsSaveError(t *testing.T) {
	dir := t.TempDir()
	fs := lfstest.New()
	fs.Fail(lfstest.OpList, "/new", errors.New("corrupt dir"))
	s := memSession(t, fs)

	blocker := filepath.Join(dir, "plain")
	require.Nil(t, os.WriteFile(blocker, nil, 0o644))

	err := mkdirAndSave(io.Discard, s, "/new", filepath.Join(blocker, "badge.bin"))
	require.ErrorIs(t, err, treesync.ErrRebuild)
	require.Contains(t, err.Error(), "corrupt dir")
	require.Len(t, multierr.Errors(err), 2, "save failure is reported with the reload failure")
	require.True(t, fs.Exists("/new"))
	require.True(t, s.Dirty())
}
