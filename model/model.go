package model

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gridwise/diagmesh/core"
)

// MockGenerator is a lightweight in-memory Generator useful for tests and
// examples. Responses are matched by substring against the prompt so a single
// canned answer can serve templated prompts.
type MockGenerator struct {
	mu        sync.RWMutex
	info      core.GeneratorInfo
	responses map[string]string
	calls     []core.GenerateRequest
	err       error
}

// NewMockGenerator constructs a MockGenerator.
func NewMockGenerator(name, provider string) *MockGenerator {
	return &MockGenerator{
		info:      core.GeneratorInfo{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a canned completion returned whenever the prompt
// contains the given fragment.
func (m *MockGenerator) AddResponse(fragment, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[fragment] = response
}

// FailWith makes every subsequent Generate call return err.
func (m *MockGenerator) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns a copy of every request seen so far.
func (m *MockGenerator) Calls() []core.GenerateRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]core.GenerateRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements core.Generator.
func (m *MockGenerator) Generate(ctx context.Context, req core.GenerateRequest) (core.GenerateResponse, error) {
	if err := ctx.Err(); err != nil {
		return core.GenerateResponse{}, err
	}
	m.mu.Lock()
	m.calls = append(m.calls, req)
	err := m.err
	var text string
	for fragment, response := range m.responses {
		if strings.Contains(req.Prompt, fragment) {
			text = response
			break
		}
	}
	m.mu.Unlock()
	if err != nil {
		return core.GenerateResponse{}, err
	}
	if text == "" {
		text = fmt.Sprintf("Mock response to: %s", req.Prompt)
	}
	return core.GenerateResponse{Text: text, FinishReason: "stop"}, nil
}

// Info implements core.Generator.
func (m *MockGenerator) Info() core.GeneratorInfo { return m.info }

// TimeoutGenerator caps every Generate call with a deadline.
type TimeoutGenerator struct {
	inner   core.Generator
	timeout time.Duration
}

// WithTimeout wraps a Generator so each call runs under its own deadline.
func WithTimeout(inner core.Generator, timeout time.Duration) *TimeoutGenerator {
	return &TimeoutGenerator{inner: inner, timeout: timeout}
}

// Generate implements core.Generator.
func (g *TimeoutGenerator) Generate(ctx context.Context, req core.GenerateRequest) (core.GenerateResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := g.inner.Generate(ctx, req)
	if err != nil {
		return core.GenerateResponse{}, &core.GenerationError{Reason: "generate", Err: err}
	}
	return resp, nil
}

// Info implements core.Generator.
func (g *TimeoutGenerator) Info() core.GeneratorInfo { return g.inner.Info() }
