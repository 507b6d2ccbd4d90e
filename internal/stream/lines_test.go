package stream

import (
	"io"
	"math/rand"
	"slices"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeed_NoNewlineIsAbsorbed(t *testing.T) {
	var a Assembler
	assert.Empty(t, a.Feed([]byte("https://abc-def.trycloud")))
	assert.Equal(t, "https://abc-def.trycloud", a.Pending())
}

func TestFeed_URLStraddlingChunks(t *testing.T) {
	var a Assembler
	require.Empty(t, a.Feed([]byte("INF |  https://abc-def.trycloud")))
	lines := a.Feed([]byte("flare.com\n"))
	require.Equal(t, []string{"INF |  https://abc-def.trycloudflare.com"}, lines)
	assert.Equal(t, "", a.Pending())
}

func TestFeed_KeepsEmptyLinesAndTrailingFragment(t *testing.T) {
	var a Assembler
	lines := a.Feed([]byte("one\n\ntwo\nthr"))
	assert.Equal(t, []string{"one", "", "two"}, lines)
	assert.Equal(t, "thr", a.Pending())
	assert.Equal(t, []string{"three"}, a.Feed([]byte("ee\n")))
}

func TestFeed_EmptyChunk(t *testing.T) {
	var a Assembler
	assert.Nil(t, a.Feed(nil))
	assert.Equal(t, "", a.Pending())
}

// Any split of the same stream yields the same lines in the same order.
func TestFeed_ChunkSplitInvariance(t *testing.T) {
	input := "2024 INF Requesting new quick Tunnel\n" +
		"2024 INF |  https://foo-bar.trycloudflare.com  |\n" +
		"\n" +
		"2024 INF Registered tunnel connection\n" +
		"partial tail without newline"
	want := []string{
		"2024 INF Requesting new quick Tunnel",
		"2024 INF |  https://foo-bar.trycloudflare.com  |",
		"",
		"2024 INF Registered tunnel connection",
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		var a Assembler
		var got []string
		rest := input
		for len(rest) > 0 {
			n := 1 + rng.Intn(len(rest))
			got = append(got, a.Feed([]byte(rest[:n]))...)
			rest = rest[n:]
		}
		require.Equal(t, want, got, "iteration %d", i)
		require.Equal(t, "partial tail without newline", a.Pending())
	}
}

func TestLines_OneByteReads(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader("a\nhttps://x-y.trycloudflare.com\ntail"))
	got := slices.Collect(Lines(r))
	assert.Equal(t, []string{"a", "https://x-y.trycloudflare.com"}, got)
}

func TestLines_StopsEarly(t *testing.T) {
	var got []string
	for line := range Lines(strings.NewReader("1\n2\n3\n")) {
		got = append(got, line)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestLines_ReadErrorEndsSequence(t *testing.T) {
	r := io.MultiReader(strings.NewReader("ok\npart"), iotest.ErrReader(io.ErrUnexpectedEOF))
	got := slices.Collect(Lines(r))
	assert.Equal(t, []string{"ok"}, got)
}

func TestLines_FreshAssemblerPerSequence(t *testing.T) {
	first := slices.Collect(Lines(strings.NewReader("left-over")))
	assert.Empty(t, first)
	second := slices.Collect(Lines(strings.NewReader("new\n")))
	assert.Equal(t, []string{"new"}, second)
}

func TestFeed_FragmentIsCapped(t *testing.T) {
	var a Assembler
	chunk := []byte(strings.Repeat("x", ChunkSize))
	for range 2 * MaxFragment / ChunkSize {
		require.Empty(t, a.Feed(chunk))
	}
	require.Len(t, a.Pending(), MaxFragment)

	tail := " https://abc-def.trycloudflare.com"
	lines := a.Feed([]byte(tail + "\nnext"))
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], tail))
	assert.Len(t, lines[0], MaxFragment+len(tail))
	assert.Equal(t, "next", a.Pending())
}
