package splitter

import (
	"strings"
	"testing"
)

func feed(lines []string) []DailyBlock {
	acc := NewAccumulator()
	var blocks []DailyBlock
	for _, l := range lines {
		if b, ok := acc.Add(l); ok {
			blocks = append(blocks, b)
		}
	}
	if b, ok := acc.Flush(); ok {
		blocks = append(blocks, b)
	}
	return blocks
}

func TestAccumulatorDateChangeFlushesOnce(t *testing.T) {
	acc := NewAccumulator()

	if _, ok := acc.Add("2024-01-01 10:00:00 A<1>"); ok {
		t.Fatal("first header must not flush")
	}
	if _, ok := acc.Add("hello"); ok {
		t.Fatal("continuation must not flush")
	}
	if _, ok := acc.Add("2024-01-01 11:00:00 A<1>"); ok {
		t.Fatal("same-date header must not flush")
	}

	b, ok := acc.Add("2024-01-02 09:00:00 B<2>")
	if !ok {
		t.Fatal("date change must flush")
	}
	if b.Date != "2024-01-01" {
		t.Errorf("flushed Date = %q, want 2024-01-01", b.Date)
	}
	want := "2024-01-01 10:00:00 A<1>\nhello\n2024-01-01 11:00:00 A<1>\n"
	if b.Content != want {
		t.Errorf("flushed Content = %q, want %q", b.Content, want)
	}
	if acc.CurrentDate() != "2024-01-02" {
		t.Errorf("CurrentDate = %q, want 2024-01-02", acc.CurrentDate())
	}

	last, ok := acc.Flush()
	if !ok {
		t.Fatal("final flush missing")
	}
	if last.Content != "2024-01-02 09:00:00 B<2>\n" {
		t.Errorf("final Content = %q", last.Content)
	}
	if _, ok := acc.Flush(); ok {
		t.Error("second Flush should be empty")
	}
}

func TestAccumulatorEmptyStream(t *testing.T) {
	if blocks := feed(nil); len(blocks) != 0 {
		t.Fatalf("expected no blocks, got %d", len(blocks))
	}
}

func TestAccumulatorNoHeaders(t *testing.T) {
	blocks := feed([]string{"just", "text"})
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	if blocks[0].Date != "" {
		t.Errorf("Date = %q, want empty", blocks[0].Date)
	}
	if blocks[0].Content != "just\ntext\n" {
		t.Errorf("Content = %q", blocks[0].Content)
	}
}

func TestAccumulatorLeadingContinuationJoinsFirstFlush(t *testing.T) {
	blocks := feed([]string{
		"exported chat",
		"2024-03-01 08:00:00 A<1>",
		"hi",
	})
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Date != "" || blocks[0].Content != "exported chat\n" {
		t.Errorf("preamble block = %+v", blocks[0])
	}
	if blocks[1].Date != "2024-03-01" {
		t.Errorf("second block Date = %q", blocks[1].Date)
	}
}

func TestAccumulatorRoundTrip(t *testing.T) {
	lines := []string{
		"2024-01-01 10:00:00 A<1>",
		"hello",
		"",
		"2024-01-02 09:00:00 B<2>",
		"2024-01-02 09:01:00 A<1>",
		"multi",
		"line",
		"2024-02-10 22:00:00 C(c@example.com)",
		"bye",
	}
	var b strings.Builder
	for _, blk := range feed(lines) {
		b.WriteString(blk.Content)
	}
	want := strings.Join(lines, "\n") + "\n"
	if b.String() != want {
		t.Fatalf("round trip mismatch:\n got %q\nwant %q", b.String(), want)
	}
}

func TestAccumulatorDateRevisited(t *testing.T) {
	// A date seen again after another date starts a new block; the writer
	// will replace the earlier file with the later block.
	blocks := feed([]string{
		"2024-01-01 10:00:00 A<1>",
		"2024-01-02 10:00:00 A<1>",
		"2024-01-01 10:00:00 A<1>",
	})
	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}
	dates := []string{blocks[0].Date, blocks[1].Date, blocks[2].Date}
	if dates[0] != "2024-01-01" || dates[1] != "2024-01-02" || dates[2] != "2024-01-01" {
		t.Errorf("dates = %v", dates)
	}
}
