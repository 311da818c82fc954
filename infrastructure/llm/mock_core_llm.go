package llm

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/softscore/internal/domain"
)

// MockCoreLLM is a scriptable judge for middleware tests. It answers "4"
// with a one-position token table unless told to fail.
type MockCoreLLM struct {
	mu sync.Mutex

	Reply         domain.JudgeReply
	Model         string
	ResponseDelay time.Duration

	// Error is returned on every call, or only on the first
	// FailUntilAttempt calls when that is positive.
	Error            error
	FailUntilAttempt int

	CallCount   int
	LastPrompt  string
	LastOpts    map[string]any
	LastContext context.Context
	Contexts    []context.Context
	calledAt    []time.Time
}

// NewMockCoreLLM returns a mock that succeeds on every call.
func NewMockCoreLLM() *MockCoreLLM {
	return &MockCoreLLM{
		Model: "test-model",
		Reply: domain.JudgeReply{
			Text: "4",
			Tokens: []domain.TokenPosition{{
				Chosen: domain.TokenCandidate{Text: "4", LogProbability: -0.2},
				Alternatives: []domain.TokenCandidate{
					{Text: "4", LogProbability: -0.2},
					{Text: "3", LogProbability: -1.8},
				},
			}},
			TokensIn:  10,
			TokensOut: 1,
		},
	}
}

// DoRequest records the call, waits ResponseDelay and then answers.
func (m *MockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (domain.JudgeReply, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastPrompt, m.LastOpts, m.LastContext = prompt, opts, ctx
	m.Contexts = append(m.Contexts, ctx)
	m.calledAt = append(m.calledAt, time.Now())
	delay := m.ResponseDelay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.JudgeReply{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUntilAttempt > 0 {
		if call > m.FailUntilAttempt {
			return m.reply(), nil
		}
		if m.Error != nil {
			return domain.JudgeReply{}, m.Error
		}
		return domain.JudgeReply{}, &testError{message: "simulated failure"}
	}
	if m.Error != nil {
		return domain.JudgeReply{}, m.Error
	}
	return m.reply(), nil
}

func (m *MockCoreLLM) reply() domain.JudgeReply {
	r := m.Reply
	r.Model = m.Model
	return r
}

// GetModel returns the configured model name.
func (m *MockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

// SetModel updates the model name.
func (m *MockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

// GetCallCount returns the number of DoRequest calls so far.
func (m *MockCoreLLM) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Gaps returns the time between consecutive calls.
func (m *MockCoreLLM) Gaps() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	var gaps []time.Duration
	for i := 1; i < len(m.calledAt); i++ {
		gaps = append(gaps, m.calledAt[i].Sub(m.calledAt[i-1]))
	}
	return gaps
}

// testError reads as a temporary failure, so IsRetryableError retries it.
type testError struct {
	message string
}

func (e *testError) Error() string { return "temporary failure: " + e.message }
