package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFragment_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name string
		json string
		want string
	}{
		{
			name: "null",
			json: `null`,
			want: "",
		},
		{
			name: "plain string",
			json: `"hello world"`,
			want: "hello world",
		},
		{
			name: "empty string",
			json: `""`,
			want: "",
		},
		{
			name: "object with text field",
			json: `{"type":"text","text":"from object"}`,
			want: "from object",
		},
		{
			name: "array of text blocks",
			json: `[{"type":"text","text":"first"},{"type":"text","text":"second"}]`,
			want: "first\nsecond",
		},
		{
			name: "array of strings",
			json: `["one","two"]`,
			want: "one\ntwo",
		},
		{
			name: "mixed array",
			json: `["plain",{"type":"text","text":"block"}]`,
			want: "plain\nblock",
		},
		{
			name: "array skips empty blocks",
			json: `[{"type":"text","text":""},{"type":"text","text":"kept"}]`,
			want: "kept",
		},
		{
			name: "unknown scalar decodes to empty",
			json: `42`,
			want: "",
		},
		{
			name: "boolean decodes to empty",
			json: `true`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Fragment
			require.NoError(t, json.Unmarshal([]byte(tt.json), &f))
			assert.Equal(t, tt.want, f.Text())
		})
	}
}

func TestFragment_InDelta(t *testing.T) {
	raw := `{"role":"assistant","content":"answer text","reasoning":[{"type":"text","text":"thinking"}]}`

	var delta Delta
	require.NoError(t, json.Unmarshal([]byte(raw), &delta))

	assert.Equal(t, "assistant", delta.Role)
	assert.Equal(t, "answer text", delta.Content.Text())
	assert.Equal(t, "thinking", delta.Reasoning.Text())
}

func TestChatRequest_OptionalFieldsOmitted(t *testing.T) {
	req := ChatRequest{
		Model:    "test-model",
		Messages: []Message{{Role: "user", Content: "hi"}},
	}

	data, err := json.Marshal(&req)
	require.NoError(t, err)

	assert.NotContains(t, string(data), "response_format")
	assert.NotContains(t, string(data), "reasoning")
	assert.NotContains(t, string(data), "stream")
}
