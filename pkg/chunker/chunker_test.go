package chunker

import (
	"strings"
	"testing"
)

func opts() Options {
	return Options{Size: 6000, Overlap: 200}
}

func synthetic(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789 "
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[i%len(alphabet)])
	}
	return b.String()
}

func TestSplitShortContentSingleChunk(t *testing.T) {
	content := synthetic(6000)
	chunks := Split(content, opts())
	if len(chunks) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Content != content {
		t.Fatalf("single chunk does not equal input content")
	}
}

func TestSplitEmptyContentYieldsOneEmptyChunk(t *testing.T) {
	chunks := Split("", opts())
	if len(chunks) != 1 {
		t.Fatalf("Split(\"\") returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Content != "" {
		t.Fatalf("Split(\"\") chunk content = %q, want empty", chunks[0].Content)
	}
}

func TestSplitOverlapBoundaries(t *testing.T) {
	content := synthetic(7000)
	chunks := Split(content, opts())

	if len(chunks) != 2 {
		t.Fatalf("Split() returned %d chunks, want 2", len(chunks))
	}
	if chunks[0].Content != content[0:6000] {
		t.Fatalf("chunk 0 != content[0:6000]")
	}
	if chunks[1].Content != content[5800:7000] {
		t.Fatalf("chunk 1 != content[5800:7000]")
	}
	if chunks[0].Content[5800:] != chunks[1].Content[:200] {
		t.Fatalf("chunk 0 tail does not match chunk 1 head overlap")
	}
}

func TestSplitChunkCountFormula(t *testing.T) {
	cases := []struct {
		length int
		want   int
	}{
		{0, 1},
		{1, 1},
		{5999, 1},
		{6000, 1},
		{6001, 2},
		{7000, 2},
		{11600, 2},
		{11601, 3},
		{30000, 6},
	}
	for _, tc := range cases {
		chunks := Split(synthetic(tc.length), opts())
		if len(chunks) != tc.want {
			t.Errorf("length %d: got %d chunks, want %d", tc.length, len(chunks), tc.want)
		}
	}
}

func TestSplitReassembleRoundTrip(t *testing.T) {
	for _, n := range []int{0, 100, 6000, 7000, 11650, 25000} {
		content := synthetic(n)
		chunks := Split(content, opts())
		got := Reassemble(chunks, 200)
		if got != content {
			t.Fatalf("length %d: reassembled content does not match input", n)
		}
	}
}

func TestSplitOrderedIndexes(t *testing.T) {
	chunks := Split(synthetic(25000), opts())
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d has index %d", i, c.Index)
		}
	}
}
