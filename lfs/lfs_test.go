package lfs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClean(t *testing.T) {
	require.Equal(t, "/", Clean(""))
	require.Equal(t, "/", Clean("/"))
	require.Equal(t, "/foo.gif", Clean("foo.gif"))
	require.Equal(t, "/a/b", Clean("/a//b/"))
	require.Equal(t, "/b", Clean("/a/../b"))
}

func TestJoin(t *testing.T) {
	require.Equal(t, "/foo", Join("/", "foo"))
	require.Equal(t, "/a/foo", Join("/a", "foo"))
	require.Equal(t, "/a/foo", Join("/a/", "foo"))
}

func TestKindString(t *testing.T) {
	require.Equal(t, "DIR", KindDir.String())
	require.Equal(t, "FILE", KindFile.String())
	require.True(t, Info{Kind: KindDir}.IsDir())
	require.False(t, Info{Kind: KindFile}.IsDir())
}
