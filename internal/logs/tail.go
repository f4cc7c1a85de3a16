package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// Filter reports whether a line should be shown. A nil Filter keeps every
// line.
type Filter func(line string) bool

func (f Filter) keep(line string) bool { return f == nil || f(line) }

// Last returns up to limit trailing complete lines of path that pass filter,
// and the offset just past the last complete line, which is where Follow
// should resume. A missing file yields no lines and offset zero.
func Last(path string, limit int, filter Filter) ([]string, int64, error) {
	ring := newRing(max(limit, 0))
	offset, err := scanFrom(path, 0, filter, func(line string) error {
		ring.push(line)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ring.lines(), offset, nil
}

// Follow polls path every interval starting at offset and passes each new
// complete line that matches filter to emit. It returns when ctx ends or emit
// fails. A file that shrinks (truncated or replaced) is reread from the start.
func Follow(ctx context.Context, path string, offset int64, interval time.Duration, filter Filter, emit func(string) error) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		var err error
		if offset, err = scanFrom(path, offset, filter, emit); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// scanFrom emits complete lines after offset and returns the offset just past
// the last one. A trailing partial line is left for the next call.
func scanFrom(path string, offset int64, filter Filter, emit func(string) error) (int64, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	switch {
	case err != nil:
		return offset, fmt.Errorf("stat log file: %w", err)
	case info.IsDir():
		return offset, fmt.Errorf("log path %q is a directory", path)
	case offset < 0 || offset > info.Size():
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		chunk, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			return offset, nil
		}
		if err != nil {
			return offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(chunk))
		line := trimEOL(chunk)
		if !filter.keep(line) {
			continue
		}
		if err := emit(line); err != nil {
			return offset, err
		}
	}
}

func trimEOL(s string) string {
	s = s[:len(s)-1]
	if n := len(s); n > 0 && s[n-1] == '\r' {
		s = s[:n-1]
	}
	return s
}

// ring keeps the most recent n lines.
type ring struct {
	buf  []string
	next int
	full bool
}

func newRing(n int) *ring { return &ring{buf: make([]string, n)} }

func (r *ring) push(line string) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) lines() []string {
	if !r.full {
		return append([]string(nil), r.buf[:r.next]...)
	}
	return append(append([]string(nil), r.buf[r.next:]...), r.buf[:r.next]...)
}
