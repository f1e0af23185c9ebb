package chunker

import (
	"errors"
	"strings"
	"testing"

	"github.com/askdoc/askdoc-go/internal/rag"
)

func Test_Split_ExactOverlap(t *testing.T) {
	t.Parallel()
	// 2600 characters with no sentence boundaries: cuts land at chunkSize
	// exactly and the overlap window reappears at the start of each chunk.
	text := strings.Repeat("A", 1000) + strings.Repeat("B", 1000) + strings.Repeat("C", 600)

	chunks, err := Split("doc", text, 1000, 200)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("want 4 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len(c.Text) > 1000 {
			t.Errorf("chunk %d length %d exceeds chunk size", i, len(c.Text))
		}
		if c.ChunkID != i {
			t.Errorf("chunk %d has id %d, want monotonic ids", i, c.ChunkID)
		}
	}
	// Chunk 2 begins at character 800: the last 200 characters of chunk 1.
	if got := chunks[1].Text[:200]; got != strings.Repeat("A", 200) {
		t.Errorf("chunk 2 does not start with the overlap window: %q...", got[:10])
	}
	if got := chunks[1].Text[200:]; got != strings.Repeat("B", 800) {
		t.Errorf("chunk 2 tail is not the next 800 characters")
	}
}

func Test_Split_PrefersSentenceBoundary(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 990) + ". " + strings.Repeat("b", 500)

	chunks, err := Split("doc", text, 1000, 200)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("want at least 2 chunks, got %d", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, ".") {
		t.Errorf("chunk 1 should end at the sentence boundary, got tail %q",
			chunks[0].Text[len(chunks[0].Text)-5:])
	}
	if len(chunks[0].Text) != 991 {
		t.Errorf("chunk 1 length = %d, want 991 (cut just after the period)", len(chunks[0].Text))
	}
}

func Test_Split_NoBoundaryCutsExactly(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("x", 1500)

	chunks, err := Split("doc", text, 1000, 100)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks[0].Text) != 1000 {
		t.Errorf("chunk 1 length = %d, want exactly 1000 when no boundary exists", len(chunks[0].Text))
	}
}

func Test_Split_InvalidConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		chunkSize int
		overlap   int
	}{
		{"zero chunk size", 0, 0},
		{"negative chunk size", -5, 0},
		{"overlap equals chunk size", 100, 100},
		{"overlap exceeds chunk size", 100, 150},
		{"negative overlap", 100, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Split("doc", "some text", tc.chunkSize, tc.overlap)
			if !errors.Is(err, rag.ErrInvalidConfig) {
				t.Errorf("want ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func Test_Split_EmptyInputYieldsNoChunks(t *testing.T) {
	t.Parallel()
	for _, text := range []string{"", "   ", "\n\t\n"} {
		chunks, err := Split("doc", text, 100, 10)
		if err != nil {
			t.Fatalf("split %q: %v", text, err)
		}
		if len(chunks) != 0 {
			t.Errorf("split %q: want no chunks, got %d", text, len(chunks))
		}
	}
}

func Test_Split_DropsWhitespaceOnlySpans(t *testing.T) {
	t.Parallel()
	// The tail window lands entirely in trailing spaces inside the text body.
	text := strings.Repeat("y", 95) + strings.Repeat(" ", 3) + "z"

	chunks, err := Split("doc", text, 50, 10)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			t.Errorf("chunk %d is whitespace only", i)
		}
		if c.Text != strings.TrimSpace(c.Text) {
			t.Errorf("chunk %d is not trimmed: %q", i, c.Text)
		}
	}
}

func Test_Split_ShortTextSingleChunk(t *testing.T) {
	t.Parallel()
	chunks, err := Split("doc", "short text", 1000, 200)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Text != "short text" {
		t.Fatalf("want one chunk with the full text, got %v", chunks)
	}
}

func Test_SplitRows_RowRangesAndHeader(t *testing.T) {
	t.Parallel()
	header := "id,name,amount"
	rows := make([]string, 45)
	for i := range rows {
		rows[i] = "row-" + strings.Repeat("x", i%3)
	}

	chunks, err := SplitRows("sheet", header, rows, 20, 10)
	if err != nil {
		t.Fatalf("split rows: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("want 3 chunks for 45 rows at 20/chunk, got %d", len(chunks))
	}

	wantHints := []string{"rows 1-20", "rows 21-40", "rows 41-45"}
	for i, c := range chunks {
		if c.PositionHint != wantHints[i] {
			t.Errorf("chunk %d hint = %q, want %q", i, c.PositionHint, wantHints[i])
		}
		if !strings.HasPrefix(c.Text, header) {
			t.Errorf("chunk %d does not start with the header", i)
		}
	}

	// 20 data rows at cadence 10: header at rows 0 and 10, so two occurrences.
	if got := strings.Count(chunks[0].Text, header); got != 2 {
		t.Errorf("chunk 1 repeats header %d times, want 2", got)
	}
}

func Test_SplitRows_SkipsBlankRows(t *testing.T) {
	t.Parallel()
	chunks, err := SplitRows("sheet", "h", []string{"a", "", "  ", "b"}, 10, 5)
	if err != nil {
		t.Fatalf("split rows: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(chunks))
	}
	if strings.Contains(chunks[0].Text, "\n\n") {
		t.Errorf("blank rows leaked into chunk text: %q", chunks[0].Text)
	}
}

func Test_SplitRows_AllBlankDropped(t *testing.T) {
	t.Parallel()
	chunks, err := SplitRows("sheet", "h", []string{"", "  "}, 10, 5)
	if err != nil {
		t.Fatalf("split rows: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("want no chunks for all-blank rows, got %d", len(chunks))
	}
}

func Test_SplitRows_InvalidConfig(t *testing.T) {
	t.Parallel()
	if _, err := SplitRows("sheet", "h", []string{"a"}, 0, 5); !errors.Is(err, rag.ErrInvalidConfig) {
		t.Errorf("rowsPerChunk=0: want ErrInvalidConfig, got %v", err)
	}
	if _, err := SplitRows("sheet", "h", []string{"a"}, 10, 0); !errors.Is(err, rag.ErrInvalidConfig) {
		t.Errorf("headerCadence=0: want ErrInvalidConfig, got %v", err)
	}
}

func Test_Split_Deterministic(t *testing.T) {
	t.Parallel()
	text := "First sentence. Second sentence! Third one? " + strings.Repeat("body ", 300)

	a, err := Split("doc", text, 400, 80)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	b, err := Split("doc", text, 400, 80)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Text != b[i].Text {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}
