package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ahrav/softscore/internal/domain"
	"github.com/ahrav/softscore/internal/ports"
)

var _ ports.JudgeClient = (*MockJudgeClient)(nil)

// JudgeCall records one Judge invocation.
type JudgeCall struct {
	Prompt  string
	Options map[string]any
}

// MockJudgeClient is a scripted ports.JudgeClient.
// Replies are returned in the order they were queued; once the queue is
// drained the fallback reply (or error) is returned for every call.
// Replies keyed by a prompt substring take precedence over the queue.
// It is safe for concurrent use.
type MockJudgeClient struct {
	mu sync.Mutex

	model    string
	queue    []scripted
	byPrompt []keyed
	fallback scripted
	calls    []JudgeCall
}

type scripted struct {
	reply domain.JudgeReply
	err   error
}

type keyed struct {
	substr string
	scripted
}

// NewMockJudgeClient creates a mock whose fallback reply is the plain
// text "3" with no token table.
func NewMockJudgeClient(model string) *MockJudgeClient {
	return &MockJudgeClient{
		model:    model,
		fallback: scripted{reply: domain.JudgeReply{Text: "3", Model: model}},
	}
}

// QueueReply appends reply to the queue.
func (m *MockJudgeClient) QueueReply(reply domain.JudgeReply) *MockJudgeClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{reply: reply})
	return m
}

// QueueError appends a failing call to the queue.
func (m *MockJudgeClient) QueueError(err error) *MockJudgeClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, scripted{err: err})
	return m
}

// OnPrompt returns reply for every prompt containing substr.
func (m *MockJudgeClient) OnPrompt(substr string, reply domain.JudgeReply) *MockJudgeClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPrompt = append(m.byPrompt, keyed{substr: substr, scripted: scripted{reply: reply}})
	return m
}

// OnPromptError fails every prompt containing substr with err.
func (m *MockJudgeClient) OnPromptError(substr string, err error) *MockJudgeClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byPrompt = append(m.byPrompt, keyed{substr: substr, scripted: scripted{err: err}})
	return m
}

// SetFallback sets the reply returned once the queue is empty.
func (m *MockJudgeClient) SetFallback(reply domain.JudgeReply, err error) *MockJudgeClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = scripted{reply: reply, err: err}
	return m
}

// Judge implements ports.JudgeClient.
func (m *MockJudgeClient) Judge(ctx context.Context, prompt string, options map[string]any) (domain.JudgeReply, error) {
	if err := ctx.Err(); err != nil {
		return domain.JudgeReply{}, err
	}
	if prompt == "" {
		return domain.JudgeReply{}, fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	opts := make(map[string]any, len(options))
	for k, v := range options {
		opts[k] = v
	}
	m.calls = append(m.calls, JudgeCall{Prompt: prompt, Options: opts})

	next := m.fallback
	matched := false
	for _, k := range m.byPrompt {
		if strings.Contains(prompt, k.substr) {
			next, matched = k.scripted, true
			break
		}
	}
	if !matched && len(m.queue) > 0 {
		next, m.queue = m.queue[0], m.queue[1:]
	}

	if next.err != nil {
		return domain.JudgeReply{}, next.err
	}
	reply := next.reply
	if reply.Model == "" {
		reply.Model = m.model
	}
	if reply.TokensIn == 0 {
		reply.TokensIn = estimate(prompt)
	}
	if reply.TokensOut == 0 {
		reply.TokensOut = max(len(reply.Tokens), estimate(reply.Text))
	}
	return reply, nil
}

// EstimateTokens approximates four characters per token.
func (m *MockJudgeClient) EstimateTokens(text string) (int, error) {
	return estimate(text), nil
}

// GetModel implements ports.JudgeClient.
func (m *MockJudgeClient) GetModel() string { return m.model }

// Calls returns a copy of the recorded calls.
func (m *MockJudgeClient) Calls() []JudgeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]JudgeCall(nil), m.calls...)
}

// CallCount returns the number of Judge calls made.
func (m *MockJudgeClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func estimate(text string) int {
	if text == "" {
		return 0
	}
	return max(len(text)/4, 1)
}
