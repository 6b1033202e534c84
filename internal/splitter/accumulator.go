package splitter

import "strings"

// DailyBlock is the run of lines belonging to one date in one source file.
// Content is newline-terminated. Date is empty when the lines were seen
// before any header.
type DailyBlock struct {
	Date    string
	Content string
}

// Accumulator groups lines into DailyBlocks. It is not safe for concurrent
// use; each split run owns a fresh one.
type Accumulator struct {
	currentDate string
	buf         strings.Builder
}

// NewAccumulator returns an empty accumulator with no current date.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Add feeds the next normalised line. When the line is a header for a date
// different from the current one, the block collected so far is returned
// with ok set; an empty block is never returned.
func (a *Accumulator) Add(line string) (block DailyBlock, ok bool) {
	c := Classify(line)
	if !c.Header || c.Date == a.currentDate {
		a.appendLine(line)
		return DailyBlock{}, false
	}

	block, ok = a.take()
	a.currentDate = c.Date
	a.appendLine(line)
	return block, ok
}

// Flush returns the block in progress at end of stream, if any.
func (a *Accumulator) Flush() (DailyBlock, bool) {
	return a.take()
}

// CurrentDate returns the date of the block in progress.
func (a *Accumulator) CurrentDate() string {
	return a.currentDate
}

func (a *Accumulator) appendLine(line string) {
	a.buf.WriteString(line)
	a.buf.WriteByte('\n')
}

func (a *Accumulator) take() (DailyBlock, bool) {
	if a.buf.Len() == 0 {
		return DailyBlock{}, false
	}
	block := DailyBlock{Date: a.currentDate, Content: a.buf.String()}
	a.buf.Reset()
	return block, true
}
