// Package sink provides ResultSink implementations that collect scored
// results in memory or append them to a JSON Lines file.
package sink

import (
	"context"
	"sync"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

var _ ports.ResultSink = (*Memory)(nil)

// Memory collects results in publish order. It is safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	results []domain.ResultScore
	closed  bool
}

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory { return &Memory{} }

// Publish appends results. It fails with ports.ErrSinkClosed after Close.
func (m *Memory) Publish(ctx context.Context, results ...domain.ResultScore) error {
	if err := ctx.Err(); err != nil {
		return ports.NewSinkError("memory", len(results), err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ports.NewSinkError("memory", len(results), ports.ErrSinkClosed)
	}
	m.results = append(m.results, results...)
	return nil
}

// Results returns a copy of everything published so far.
func (m *Memory) Results() []domain.ResultScore {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]domain.ResultScore(nil), m.results...)
}

// Len returns the number of results published so far.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.results)
}

// Close marks the sink closed. Results stay readable.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	return nil
}
