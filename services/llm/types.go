package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Message is a single role-tagged chat message sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat requests a structured output mode from the backend.
type ResponseFormat struct {
	Type string `json:"type"`
}

// ReasoningConfig enables the reasoning extension on backends that support it
// (OpenRouter-style "reasoning" request field).
type ReasoningConfig struct {
	Enabled bool `json:"enabled"`
}

// ChatRequest is an OpenAI-compatible chat completions request.
// ResponseFormat and Reasoning are optional features; backends that do not
// understand them may reject the whole request (see Caller).
type ChatRequest struct {
	Model          string           `json:"model"`
	Messages       []Message        `json:"messages"`
	Stream         bool             `json:"stream,omitempty"`
	ResponseFormat *ResponseFormat  `json:"response_format,omitempty"`
	Reasoning      *ReasoningConfig `json:"reasoning,omitempty"`
}

// TextBlock is one element of a structured content list.
type TextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Fragment is a content value from the backend that arrives either as a plain
// string or as a list of typed text blocks, depending on the serving stack.
// It is the closed variant the rest of the code extracts text from.
type Fragment struct {
	text   string
	blocks []TextBlock
}

// UnmarshalJSON accepts null, a plain string, an object carrying a "text"
// field, or a list whose elements are strings or text-block objects.
// Anything else decodes to an empty fragment rather than an error.
func (f *Fragment) UnmarshalJSON(data []byte) error {
	*f = Fragment{}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}

	switch trimmed[0] {
	case '"':
		return json.Unmarshal(trimmed, &f.text)
	case '{':
		var block TextBlock
		if err := json.Unmarshal(trimmed, &block); err != nil {
			return nil
		}
		f.text = block.Text
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil
		}
		for _, item := range raw {
			item = bytes.TrimSpace(item)
			if len(item) == 0 {
				continue
			}
			if item[0] == '"' {
				var s string
				if err := json.Unmarshal(item, &s); err == nil {
					f.blocks = append(f.blocks, TextBlock{Type: "text", Text: s})
				}
				continue
			}
			var block TextBlock
			if err := json.Unmarshal(item, &block); err == nil {
				f.blocks = append(f.blocks, block)
			}
		}
		return nil
	}
	return nil
}

// Text extracts plain text from the fragment. Block lists are joined with
// newlines, skipping empty entries.
func (f Fragment) Text() string {
	if f.text != "" {
		return f.text
	}
	if len(f.blocks) == 0 {
		return ""
	}
	parts := make([]string, 0, len(f.blocks))
	for _, b := range f.blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// AssistantMessage is the message body of a non-streaming completion choice.
type AssistantMessage struct {
	Role      string   `json:"role"`
	Content   Fragment `json:"content"`
	Reasoning Fragment `json:"reasoning"`
}

// Choice is one completion alternative.
type Choice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
}

// Usage reports token accounting from the backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is a non-streaming chat completions response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Delta carries the incremental fields of a streamed chunk. Content and
// Reasoning are both optional; either may be plain text or typed blocks.
type Delta struct {
	Role      string   `json:"role,omitempty"`
	Content   Fragment `json:"content"`
	Reasoning Fragment `json:"reasoning"`
}

// ChunkChoice is one choice of a streamed chunk.
type ChunkChoice struct {
	Index        int    `json:"index"`
	Delta        Delta  `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

// ChatChunk is a single server-sent chunk of a streaming completion.
type ChatChunk struct {
	ID      string        `json:"id"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
}
