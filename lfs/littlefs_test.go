//go:build cgo

package lfs

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"tinygo.org/x/tinyfs/littlefs"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/flashbd"
)

func formattedDevice(t *testing.T, blocks int) *flashbd.Device {
	image := bytes.Repeat([]byte{0xFF}, flashbd.DefaultOffset+flashbd.DefaultBlockSize*blocks)
	dev, err := flashbd.New(image, flashbd.DefaultOffset, flashbd.DefaultBlockSize)
	require.Nil(t, err)
	require.Nil(t, Format(dev, DefaultGeometry()))
	return dev
}

func TestMountFreshImageListsEmptyRoot(t *testing.T) {
	dev := formattedDevice(t, 64)
	require.Equal(t, int64(64), dev.BlockCount())

	fs, err := Mount(dev, DefaultGeometry())
	require.Nil(t, err)
	defer fs.Unmount()

	names, err := fs.ListDir("/")
	require.Nil(t, err)
	require.Empty(t, names)

	info, err := fs.Stat("/")
	require.Nil(t, err)
	require.True(t, info.IsDir())
}

func TestWriteReadRemove(t *testing.T) {
	dev := formattedDevice(t, 64)
	fs, err := Mount(dev, DefaultGeometry())
	require.Nil(t, err)
	defer fs.Unmount()

	payload := bytes.Repeat([]byte("badge"), 3000)
	w, err := fs.OpenWrite("/boot.gif")
	require.Nil(t, err)
	_, err = w.Write(payload)
	require.Nil(t, err)
	require.Nil(t, w.Close())

	require.Nil(t, fs.Mkdir("/apps"))

	names, err := fs.ListDir("/")
	require.Nil(t, err)
	require.Equal(t, []string{"apps", "boot.gif"}, names)

	info, err := fs.Stat("/boot.gif")
	require.Nil(t, err)
	require.Equal(t, KindFile, info.Kind)
	require.Equal(t, int64(len(payload)), info.Size)

	r, err := fs.OpenRead("/boot.gif")
	require.Nil(t, err)
	got, err := io.ReadAll(r)
	require.Nil(t, err)
	require.Nil(t, r.Close())
	require.Equal(t, payload, got)

	_, err = fs.OpenRead("/apps")
	require.ErrorIs(t, err, ErrIsDir)

	require.Nil(t, fs.Remove("/boot.gif"))
	require.ErrorIs(t, fs.Remove("/boot.gif"), ErrNotFound)
	names, err = fs.ListDir("/")
	require.Nil(t, err)
	require.Equal(t, []string{"apps"}, names)
}

func TestRemountSeesWrites(t *testing.T) {
	dev := formattedDevice(t, 16)
	fs, err := Mount(dev, DefaultGeometry())
	require.Nil(t, err)
	w, err := fs.OpenWrite("/hello.txt")
	require.Nil(t, err)
	_, err = w.Write([]byte("hello"))
	require.Nil(t, err)
	require.Nil(t, w.Close())
	require.Nil(t, fs.Unmount())

	fs, err = Mount(dev, DefaultGeometry())
	require.Nil(t, err)
	defer fs.Unmount()
	info, err := fs.Stat("/hello.txt")
	require.Nil(t, err)
	require.Equal(t, int64(5), info.Size)
}

func TestMountUnformattedFails(t *testing.T) {
	image := make([]byte, flashbd.DefaultOffset+flashbd.DefaultBlockSize*8)
	dev, err := flashbd.New(image, flashbd.DefaultOffset, flashbd.DefaultBlockSize)
	require.Nil(t, err)
	_, err = Mount(dev, DefaultGeometry())
	require.NotNil(t, err)
}

func TestByteDeviceSplitsAtBlockBoundary(t *testing.T) {
	image := make([]byte, 64)
	dev, err := flashbd.New(image, 16, 16)
	require.Nil(t, err)
	bd := &byteDevice{dev: dev, progSize: 4}
	require.Equal(t, int64(48), bd.Size())
	require.Equal(t, int64(4), bd.WriteBlockSize())
	require.Equal(t, int64(16), bd.EraseBlockSize())

	data := []byte("0123456789abcdefghij")
	n, err := bd.WriteAt(data, 10)
	require.Nil(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, image[26:46])

	got := make([]byte, len(data))
	n, err = bd.ReadAt(got, 10)
	require.Nil(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, got)

	require.Nil(t, bd.EraseBlocks(1, 2))
	require.Equal(t, bytes.Repeat([]byte{0xFF}, 32), image[32:64])

	_, err = bd.ReadAt(make([]byte, 4), 46)
	require.ErrorIs(t, err, flashbd.ErrOutOfRange)
}

func TestDriverErrorsMatchSentinels(t *testing.T) {
	dev := formattedDevice(t, 32)
	fs, err := Mount(dev, DefaultGeometry())
	require.Nil(t, err)
	defer fs.Unmount()

	require.ErrorIs(t, fs.Remove("/missing"), ErrNotFound)
	_, err = fs.Stat("/missing")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = fs.OpenRead("/missing")
	require.ErrorIs(t, err, ErrNotFound)

	require.Nil(t, fs.Mkdir("/d"))
	err = fs.Mkdir("/d")
	require.ErrorIs(t, err, ErrExists)
	require.Contains(t, err.Error(), "mkdir /d")

	w, err := fs.OpenWrite("/d/f.txt")
	require.Nil(t, err)
	_, err = w.Write([]byte("x"))
	require.Nil(t, err)
	require.Nil(t, w.Close())
	require.ErrorIs(t, fs.Remove("/d"), ErrNotEmpty)

	require.ErrorIs(t, fs.Mkdir("/d/f.txt/sub"), ErrNotDir)
	_, err = fs.OpenWrite("/d")
	require.ErrorIs(t, err, ErrIsDir)
}

func TestWrapErrKeepsDriverError(t *testing.T) {
	err := wrapErr("remove", "/x", littlefs.Error(codeNoEntry))
	require.ErrorIs(t, err, ErrNotFound)
	var le littlefs.Error
	require.True(t, errors.As(err, &le))
	require.Equal(t, codeNoEntry, int(le))

	other := errors.New("io failure")
	err = wrapErr("stat", "/y", other)
	require.ErrorIs(t, err, other)
	require.False(t, errors.Is(err, ErrNotFound))
	require.Equal(t, "stat /y: io failure", err.Error())
}
