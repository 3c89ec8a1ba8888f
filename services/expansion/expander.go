// Package expansion turns one user question into a bounded set of additional
// search queries, grounded in a sample of passages already indexed so the
// generated queries reuse the corpus vocabulary instead of inventing new
// terms.
package expansion

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ragline/ragline/services/llm"
	"github.com/ragline/ragline/services/retrieval"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	// historyWindow bounds how many recent conversation turns are embedded in
	// the expansion prompt.
	historyWindow = 4
	// historyCharLimit truncates each embedded turn.
	historyCharLimit = 200
	// groundingLimit caps the passage sample used to anchor the queries.
	groundingLimit = 5
)

const systemPrompt = "You generate concise, to-the-point search queries that help retrieve" +
	" factual context for answering the user." +
	" Do not change the meaning of the question." +
	" Do not introduce any new information, words, concepts, or ideas." +
	" Do not add any new words." +
	" Prefer to reuse the provided context to stay on-topic." +
	" Return only valid JSON."

// Completer is the slice of the completion caller this package consumes.
type Completer interface {
	StreamCompletion(ctx context.Context, p llm.CompletionParams) (llm.Stream, error)
}

// Grounder fetches the passage sample that anchors query generation.
type Grounder interface {
	Fetch(ctx context.Context, query string, hits, k int) ([]retrieval.Passage, error)
}

// Params describes one expansion request.
type Params struct {
	Message    string
	Model      string
	NumQueries int
	Hits       int
	K          int
	History    []llm.Message
}

// Expander generates alternate search queries with the chat model.
type Expander struct {
	completer Completer
	grounder  Grounder
	logger    *zap.Logger
}

// NewExpander creates a query expander.
func NewExpander(completer Completer, grounder Grounder, logger *zap.Logger) *Expander {
	return &Expander{completer: completer, grounder: grounder, logger: logger}
}

// Generate produces up to NumQueries additional queries. Reasoning fragments
// streamed by the model are relayed through onThinking as they arrive. LLM
// failures propagate; a malformed model response is recovered locally by
// splitting the output into lines.
func (e *Expander) Generate(ctx context.Context, p Params, onThinking func(text string)) ([]string, error) {
	if p.NumQueries <= 0 {
		return []string{}, nil
	}

	grounding, err := e.grounder.Fetch(ctx, p.Message, p.Hits, p.K)
	if err != nil {
		return nil, fmt.Errorf("fetching grounding passages: %w", err)
	}
	if len(grounding) > groundingLimit {
		grounding = grounding[:groundingLimit]
	}

	stream, err := e.completer.StreamCompletion(ctx, llm.CompletionParams{
		Model: p.Model,
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(p, grounding)},
		},
		JSONMode:  true,
		Reasoning: true,
	})
	if err != nil {
		return nil, fmt.Errorf("generating search queries: %w", err)
	}
	defer stream.Close()

	var content strings.Builder
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("generating search queries: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if thinking := delta.Reasoning.Text(); thinking != "" && onThinking != nil {
			onThinking(thinking)
		}
		content.WriteString(delta.Content.Text())
	}

	queries := Normalize(parseQueries(content.String()), p.NumQueries)
	e.logger.Debug("generated search queries",
		zap.Int("requested", p.NumQueries),
		zap.Strings("queries", queries))
	return queries, nil
}

// Prepare builds the full retrieval query set: the original message first,
// then the generated queries, deduplicated case-insensitively.
func (e *Expander) Prepare(ctx context.Context, p Params, onThinking func(text string)) ([]string, error) {
	generated, err := e.Generate(ctx, p, onThinking)
	if err != nil {
		return nil, err
	}
	return Normalize(append([]string{p.Message}, generated...), 0), nil
}

// Normalize trims the candidates, drops empties, deduplicates them
// case-insensitively preserving first-seen order, and caps the list at limit
// when limit is positive.
func Normalize(candidates []string, limit int) []string {
	cleaned := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, candidate := range candidates {
		trimmed := strings.TrimSpace(candidate)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		cleaned = append(cleaned, trimmed)
		if limit > 0 && len(cleaned) >= limit {
			break
		}
	}
	return cleaned
}

func buildUserPrompt(p Params, grounding []retrieval.Passage) string {
	var b strings.Builder

	if len(p.History) > 0 {
		history := p.History
		if len(history) > historyWindow {
			history = history[len(history)-historyWindow:]
		}
		b.WriteString("Previous conversation:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, truncate(turn.Content, historyCharLimit))
		}
		b.WriteString("\n")
	}

	groundingText := "(no context found)"
	if len(grounding) > 0 {
		lines := make([]string, 0, len(grounding))
		for _, passage := range grounding {
			lines = append(lines, fmt.Sprintf("- [%s] %s", passage.Location, passage.Text))
		}
		groundingText = strings.Join(lines, "\n")
	}

	fmt.Fprintf(&b,
		"Create %d diverse, specific search queries (max 12 words each) that would retrieve evidence to answer:\n%q.\n",
		p.NumQueries, p.Message)
	fmt.Fprintf(&b, "Grounding context:\n%s\n", groundingText)
	b.WriteString(`Respond as a JSON object like {"queries": ["query 1", "query 2"]}.`)
	return b.String()
}

// parseQueries extracts the query list from the model output: a JSON object
// with a "queries" key, a bare JSON list, or, failing both, non-empty lines
// stripped of bullet prefixes.
func parseQueries(content string) []string {
	if gjson.Valid(content) {
		parsed := gjson.Parse(content)
		candidates := parsed
		if parsed.IsObject() {
			candidates = parsed.Get("queries")
		}
		if candidates.IsArray() {
			var queries []string
			for _, item := range candidates.Array() {
				if q := strings.TrimSpace(item.String()); q != "" {
					queries = append(queries, q)
				}
			}
			if len(queries) > 0 {
				return queries
			}
		}
	}

	var queries []string
	for _, line := range strings.Split(content, "\n") {
		if candidate := strings.Trim(line, " -•\t"); candidate != "" {
			queries = append(queries, candidate)
		}
	}
	return queries
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
