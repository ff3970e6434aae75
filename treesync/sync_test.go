package treesync

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/require"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/lfs/lfstest"
)

func sampleFS() *lfstest.MemFS {
	fs := lfstest.New()
	fs.WriteFile("/zeta.txt", []byte("zzz"))
	fs.WriteFile("/alpha.gif", []byte("GIF89a"))
	fs.WriteFile("/apps/snake/main.py", []byte("print('snake')"))
	fs.WriteFile("/apps/snake/icon.gif", []byte("icon"))
	fs.MkdirAll("/empty")
	return fs
}

func localFile(t *testing.T, name string, data []byte) string {
	p := filepath.Join(t.TempDir(), name)
	require.Nil(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestRebuildOrderAndSizes(t *testing.T) {
	s := New(sampleFS())
	require.Nil(t, s.Rebuild())

	tree := s.Tree()
	require.Equal(t, []string{
		"/alpha.gif",
		"/apps",
		"/apps/snake",
		"/apps/snake/icon.gif",
		"/apps/snake/main.py",
		"/empty",
		"/zeta.txt",
	}, tree.Paths())
	require.Equal(t, 7, tree.Len())

	require.Equal(t, []string{"/alpha.gif", "/apps", "/empty", "/zeta.txt"}, tree.Root().Children)
	require.Equal(t, int64(6), tree.Node("/alpha.gif").Size)
	require.Equal(t, lfs.KindDir, tree.Node("/apps/snake").Kind)
	require.Equal(t, int64(0), tree.Node("/apps/snake").Size)
	require.Empty(t, tree.Node("/empty").Children)
	require.Nil(t, tree.Node("/missing"))
	require.Equal(t, int64(3+6+14+4), tree.TotalSize())

	depths := map[string]int{}
	require.Nil(t, tree.Walk(func(n *Node, depth int) error {
		depths[n.Path] = depth
		return nil
	}))
	require.Equal(t, 0, depths["/apps"])
	require.Equal(t, 2, depths["/apps/snake/main.py"])
}

func TestRebuildIdempotent(t *testing.T) {
	s := New(sampleFS())
	require.Nil(t, s.Rebuild())
	first := s.Tree()
	require.Nil(t, s.Rebuild())
	second := s.Tree()

	require.NotSame(t, first, second)
	require.Equal(t, first, second)
}

func TestRebuildFailureKeepsPreviousTree(t *testing.T) {
	fs := sampleFS()
	s := New(fs)
	require.Nil(t, s.Rebuild())
	before := s.Tree()

	fs.Fail(lfstest.OpList, "/apps/snake", errors.New("corrupt dir"))
	err := s.Rebuild()
	require.ErrorIs(t, err, ErrRebuild)
	require.Contains(t, err.Error(), "corrupt dir")
	require.Same(t, before, s.Tree())
}

func TestWalkStopsOnError(t *testing.T) {
	s := New(sampleFS())
	require.Nil(t, s.Rebuild())
	stop := errors.New("stop")
	visited := 0
	err := s.Tree().Walk(func(n *Node, _ int) error {
		visited++
		if n.Path == "/apps" {
			return stop
		}
		return nil
	})
	require.Equal(t, stop, err)
	require.Equal(t, 2, visited)
}

func TestMkdir(t *testing.T) {
	fs := lfstest.New()
	s := New(fs)
	require.Nil(t, s.Mkdir("music"))
	require.True(t, s.Tree().Node("/music").IsDir())
	err := s.Mkdir("/music")
	require.ErrorIs(t, err, lfs.ErrExists)
	require.NotErrorIs(t, err, ErrRebuild)
}

func TestChecksum(t *testing.T) {
	fs := sampleFS()
	s := New(fs, WithChunkSize(3))
	sum, err := s.Checksum("/apps/snake/main.py")
	require.Nil(t, err)
	require.Equal(t, xxhash.Sum64([]byte("print('snake')")), sum)

	_, err = s.Checksum("/apps")
	require.ErrorIs(t, err, lfs.ErrIsDir)
}
