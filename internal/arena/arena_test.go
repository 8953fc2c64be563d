package arena

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDupIsolatesCallerBuffer(t *testing.T) {
	a := New(Options{})
	src := []byte("hello")
	got := a.Dup(src)
	require.Equal(t, src, got)

	src[0] = 'X'
	require.Equal(t, byte('h'), got[0], "arena copy must not alias the caller's buffer")
}

func TestDupEmpty(t *testing.T) {
	a := New(Options{})
	require.Nil(t, a.Dup(nil))
	require.Nil(t, a.DupString(""))
}

func TestTinyBufferThenPages(t *testing.T) {
	a := New(Options{PageSize: 64})
	var copies [][]byte
	for i := 0; i < 200; i++ {
		copies = append(copies, a.Dup([]byte{byte(i), byte(i + 1)}))
	}
	for i, c := range copies {
		require.Equal(t, []byte{byte(i), byte(i + 1)}, c)
	}
	require.Greater(t, a.Bytes(), 0)
}

func TestFreeResets(t *testing.T) {
	a := New(Options{PageSize: 16})
	a.Dup([]byte("0123456789abcdef0123456789abcdef"))
	require.Greater(t, a.Bytes(), 0)
	a.Free()
	require.Equal(t, 0, a.Bytes())
}

func TestStringSetInterns(t *testing.T) {
	a := New(Options{})
	set := NewStringSet(a)
	p1 := set.Get([]byte("data"))
	p2 := set.Get([]byte("data"))
	require.Equal(t, 1, set.Len())
	require.Same(t, &p1[0], &p2[0], "repeated Get of the same string must return the same backing array")

	set.Get([]byte("other"))
	require.Equal(t, 2, set.Len())
}
