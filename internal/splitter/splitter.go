package splitter

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// ErrLocked reports that the source file is held exclusively by another
// process. It is expected while the exporting application is still writing
// and is retried naturally by the next modification event.
var ErrLocked = errors.New("source file is locked by another process")

// Result summarises one split run.
type Result struct {
	Name    string
	Days    []string // dates whose files were written, in source order
	Failed  int      // blocks that could not be written
	Skipped int      // blocks dropped because no header preceded them
	Locked  bool     // source was locked; nothing was read
}

// Splitter reads source files from an input root and hands their daily
// blocks to a Writer.
type Splitter struct {
	input  string
	writer *Writer
	open   func(path string) (io.ReadCloser, error)
}

// New creates a Splitter reading from input and writing through w.
func New(input string, w *Writer) *Splitter {
	return &Splitter{
		input:  input,
		writer: w,
		open: func(path string) (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}

// Split reprocesses the source file name (relative to the input root) from
// its first byte and rewrites every day file it produces.
//
// A locked source is not an error: Split logs it, sets Result.Locked and
// returns nil. Write failures for individual days do not stop the run; they
// are counted and returned joined once the whole file has been read.
func (s *Splitter) Split(name string) (Result, error) {
	res := Result{Name: name}

	f, err := s.open(filepath.Join(s.input, name))
	if err != nil {
		if isLocked(err) {
			log.Printf("splitter: %s in use, waiting for next change", name)
			res.Locked = true
			return res, nil
		}
		return res, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	var writeErrs []error
	emit := func(b DailyBlock) {
		if err := s.writer.Persist(name, b.Date, b.Content); err != nil {
			if errors.Is(err, ErrNoDate) {
				log.Printf("splitter: %s: %d bytes before first header not written", name, len(b.Content))
				res.Skipped++
				return
			}
			log.Printf("splitter: %s %s: %v", name, b.Date, err)
			res.Failed++
			writeErrs = append(writeErrs, err)
			return
		}
		res.Days = append(res.Days, b.Date)
	}

	acc := NewAccumulator()
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		// Lines may be arbitrarily long.
		raw, err := r.ReadString('\n')
		if raw != "" {
			raw = strings.TrimSuffix(raw, "\n")
			line := Normalize(strings.TrimSuffix(raw, "\r"))
			if block, ok := acc.Add(line); ok {
				emit(block)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if isLocked(err) {
				log.Printf("splitter: %s locked while reading, waiting for next change", name)
				res.Locked = true
				return res, nil
			}
			return res, fmt.Errorf("read %s: %w", name, err)
		}
	}
	if block, ok := acc.Flush(); ok {
		emit(block)
	}

	if len(writeErrs) > 0 {
		return res, errors.Join(writeErrs...)
	}
	return res, nil
}

func isLocked(err error) bool {
	return errors.Is(err, ErrLocked) || lockErrno(err)
}
