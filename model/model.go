// Package model defines the opaque language-model capability used by
// workflow nodes and agents: given instructions and a prompt, produce text.
// Structured outputs are requested through format instructions embedded in
// the prompt and decoded with Decode; providers stay plain text completion.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Request captures the normalized model input produced by nodes and agents.
type Request struct {
	// Instructions is the system-level role description.
	Instructions string `json:"instructions"`
	// Prompt is the user-level input, including any format instructions.
	Prompt string `json:"prompt"`
}

// Response is the completed model output.
type Response struct {
	Text string `json:"text"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock"
}

// Model is the minimal interface required to drive generation.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Decode unmarshals a structured model response into v. Models frequently
// wrap JSON in markdown fences or surrounding prose; Decode strips fences and
// trims to the outermost JSON object before unmarshalling.
func Decode(resp Response, v any) error {
	text := extractJSON(resp.Text)
	if text == "" {
		return fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
		text = strings.TrimSpace(text)
	}
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// MockModel is a lightweight in-memory Model useful for tests. Responses are
// registered against a substring of the expected prompt; the first match
// wins, falling back to a canned default.
type MockModel struct {
	info     Info
	keys     []string
	canned   map[string]string
	fallback string
	calls    []Request
}

// NewMockModel constructs a MockModel.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:   Info{Name: name, Provider: "mock"},
		canned: make(map[string]string),
	}
}

// AddResponse registers a deterministic completion for prompts containing match.
func (m *MockModel) AddResponse(match, response string) {
	if _, ok := m.canned[match]; !ok {
		m.keys = append(m.keys, match)
	}
	m.canned[match] = response
}

// SetFallback sets the response returned when no registered match applies.
func (m *MockModel) SetFallback(response string) { m.fallback = response }

// Calls returns every request seen, in order.
func (m *MockModel) Calls() []Request { return m.calls }

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	m.calls = append(m.calls, req)
	for _, k := range m.keys {
		if strings.Contains(req.Prompt, k) || strings.Contains(req.Instructions, k) {
			return Response{Text: m.canned[k]}, nil
		}
	}
	if m.fallback != "" {
		return Response{Text: m.fallback}, nil
	}
	return Response{Text: fmt.Sprintf("Mock response to: %s", req.Prompt)}, nil
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }
