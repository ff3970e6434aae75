//go:build cgo

package session

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLittleFSRoundTripThroughDisk(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "badge.bin")

	s, err := Create(img, 64, WithLayout(0x1000, 4096))
	require.Nil(t, err)
	require.Empty(t, s.Tree().Paths())

	payload := bytes.Repeat([]byte("nyan-cat-frame-"), 2000)
	local := filepath.Join(dir, "nyan.gif")
	require.Nil(t, os.WriteFile(local, payload, 0o644))

	res, err := s.Add(local)
	require.Nil(t, err)
	require.Equal(t, "/nyan.gif", res.Path)
	require.Nil(t, s.Mkdir("/apps"))
	require.Nil(t, s.Save(""))
	require.Nil(t, s.Close())

	reopened, err := Open(img, WithLayout(0x1000, 4096))
	require.Nil(t, err)
	defer reopened.Close()
	require.Equal(t, []string{"/apps", "/nyan.gif"}, reopened.Tree().Paths())
	require.Equal(t, int64(len(payload)), reopened.Tree().Node("/nyan.gif").Size)

	out := filepath.Join(dir, "out")
	batch := reopened.Extract([]string{"/nyan.gif"}, out)
	require.Nil(t, batch.Err)
	got, err := os.ReadFile(filepath.Join(out, "nyan.gif"))
	require.Nil(t, err)
	require.Equal(t, payload, got)
	require.False(t, reopened.Dirty())
}

func TestLittleFSUnformattedImageFailsMount(t *testing.T) {
	_, err := Load("blank.bin", bytes.Repeat([]byte{0xFF}, 0x1000+16*4096), WithLayout(0x1000, 4096))
	require.ErrorIs(t, err, ErrMount)
}
