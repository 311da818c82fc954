package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

var _ ports.ResultSink = (*JSONLines)(nil)

// JSONLines writes one JSON object per result, newline separated.
// Results of a single Publish call are flushed together.
// It is safe for concurrent use.
type JSONLines struct {
	mu     sync.Mutex
	w      *bufio.Writer
	enc    *json.Encoder
	closer io.Closer
	closed bool
}

// NewJSONLines writes to w. Close flushes but does not close w unless it
// is an io.Closer.
func NewJSONLines(w io.Writer) *JSONLines {
	bw := bufio.NewWriter(w)
	s := &JSONLines{w: bw, enc: json.NewEncoder(bw)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenJSONLines opens path for appending, creating it and its parent
// directories when needed.
func OpenJSONLines(path string) (*JSONLines, error) {
	path = filepath.Clean(path)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return NewJSONLines(f), nil
}

// Publish encodes results and flushes them.
func (s *JSONLines) Publish(ctx context.Context, results ...domain.ResultScore) error {
	if err := ctx.Err(); err != nil {
		return ports.NewSinkError("jsonl", len(results), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ports.NewSinkError("jsonl", len(results), ports.ErrSinkClosed)
	}

	for _, r := range results {
		if err := s.enc.Encode(r); err != nil {
			return ports.NewSinkError("jsonl", len(results), err)
		}
	}
	if err := s.w.Flush(); err != nil {
		return ports.NewSinkError("jsonl", len(results), err)
	}
	return nil
}

// Close flushes buffered output and closes the underlying writer when it
// is closable. Closing twice is a no-op.
func (s *JSONLines) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.w.Flush(); err != nil {
		return ports.NewSinkError("jsonl", 0, err)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// ReadJSONLines decodes every result in r.
func ReadJSONLines(r io.Reader) ([]domain.ResultScore, error) {
	var out []domain.ResultScore
	dec := json.NewDecoder(r)
	for {
		var res domain.ResultScore
		err := dec.Decode(&res)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("failed to decode result %d: %w", len(out)+1, err)
		}
		out = append(out, res)
	}
}
