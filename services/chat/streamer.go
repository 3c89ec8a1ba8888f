package chat

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/ragline/ragline/services/expansion"
	"github.com/ragline/ragline/services/llm"
	"github.com/ragline/ragline/services/retrieval"
	"go.uber.org/zap"
)

const (
	statusExpanding  = "Generating search queries..."
	statusRetrieving = "Retrieving context..."
	statusGenerating = "Generating answer..."

	emptyContextAnswer = "No relevant context found."

	// historyWindow bounds how many prior turns are replayed to the model
	// for the final answer.
	historyWindow = 4
)

const answerSystemPrompt = "You are a helpful assistant. " +
	"Answer the user's question using ONLY the provided context chunks. " +
	"If the answer is not in the chunks, say so. " +
	"Do not hallucinate."

// QueryPlanner builds the retrieval query set for a user message.
type QueryPlanner interface {
	Prepare(ctx context.Context, p expansion.Params, onThinking func(text string)) ([]string, error)
}

// ContextFuser retrieves and fuses passages for a query set.
type ContextFuser interface {
	Fuse(ctx context.Context, queries []string, hits, k int) ([]retrieval.FusedPassage, error)
}

// Completer streams the final grounded answer.
type Completer interface {
	StreamCompletion(ctx context.Context, p llm.CompletionParams) (llm.Stream, error)
}

// Request describes one answer-stream invocation. All fields are resolved by
// the caller; defaults live at the HTTP layer.
type Request struct {
	Message        string
	History        []llm.Message
	Hits           int
	K              int
	QueryExpansion int
	Model          string
}

// Streamer runs the staged pipeline for one request and emits typed events.
// Stage transitions are strictly forward: expand, retrieve, generate, done.
// Once events have been emitted, any stage failure becomes a terminal error
// event rather than an abnormal stream termination.
type Streamer struct {
	planner   QueryPlanner
	fuser     ContextFuser
	completer Completer
	logger    *zap.Logger
}

// NewStreamer creates an answer streamer.
func NewStreamer(planner QueryPlanner, fuser ContextFuser, completer Completer, logger *zap.Logger) *Streamer {
	return &Streamer{
		planner:   planner,
		fuser:     fuser,
		completer: completer,
		logger:    logger,
	}
}

// Stream runs the pipeline in a goroutine and returns its event channel. The
// channel is closed when the pipeline finishes or the context is cancelled;
// no event is emitted after cancellation is observed.
func (s *Streamer) Stream(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event)
	go s.run(ctx, req, events)
	return events
}

func (s *Streamer) run(ctx context.Context, req Request, events chan<- Event) {
	defer close(events)

	pipelineID := uuid.New()
	logger := s.logger.With(zap.String("pipeline_id", pipelineID.String()))

	emit := func(kind EventKind, payload any) bool {
		select {
		case events <- Event{Kind: kind, Payload: payload}:
			return true
		case <-ctx.Done():
			return false
		}
	}

	// Stage 1: expand the question into search queries.
	if !emit(EventStatus, statusExpanding) {
		return
	}
	logger.Debug("stage 1: expanding queries", zap.String("model", req.Model), zap.Int("query_expansion", req.QueryExpansion))

	queries, err := s.planner.Prepare(ctx, expansion.Params{
		Message:    req.Message,
		Model:      req.Model,
		NumQueries: req.QueryExpansion,
		Hits:       req.Hits,
		K:          req.K,
		History:    req.History,
	}, func(text string) {
		emit(EventThinking, text)
	})
	if err != nil {
		logger.Error("query expansion failed", zap.Error(err))
		emit(EventError, err.Error())
		return
	}
	if !emit(EventQueries, queries) {
		return
	}

	// Stage 2: retrieve and fuse the supporting passages.
	if !emit(EventStatus, statusRetrieving) {
		return
	}
	logger.Debug("stage 2: retrieving context", zap.Int("queries", len(queries)))

	passages, err := s.fuser.Fuse(ctx, queries, req.Hits, req.K)
	if err != nil {
		logger.Error("retrieval failed", zap.Error(err))
		emit(EventError, err.Error())
		return
	}
	if !emit(EventSources, passages) {
		return
	}

	if len(passages) == 0 {
		logger.Info("no relevant context found", zap.String("message", req.Message))
		if emit(EventAnswer, emptyContextAnswer) {
			emit(EventDone, nil)
		}
		return
	}

	// Stage 3: stream the grounded answer.
	if !emit(EventStatus, statusGenerating) {
		return
	}
	logger.Debug("stage 3: generating answer", zap.Int("passages", len(passages)))

	stream, err := s.completer.StreamCompletion(ctx, llm.CompletionParams{
		Model:     req.Model,
		Messages:  buildAnswerMessages(req, passages),
		Reasoning: true,
	})
	if err != nil {
		logger.Error("answer generation failed", zap.Error(err))
		emit(EventError, err.Error())
		return
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Error("answer stream failed", zap.Error(err))
			emit(EventError, err.Error())
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if thinking := delta.Reasoning.Text(); thinking != "" {
			if !emit(EventThinking, thinking) {
				return
			}
		}
		if content := delta.Content.Text(); content != "" {
			if !emit(EventAnswer, content) {
				return
			}
		}
	}

	logger.Info("answer stream completed", zap.Int("passages", len(passages)), zap.Int("queries", len(queries)))
	emit(EventDone, nil)
}

// buildAnswerMessages assembles the generation conversation: the grounding
// system prompt, the recent history window, then the user turn combining the
// context block with the question.
func buildAnswerMessages(req Request, passages []retrieval.FusedPassage) []llm.Message {
	var contextBlock strings.Builder
	for _, p := range passages {
		fmt.Fprintf(&contextBlock, "Source: %s\nContent: %s\n\n", p.Location, p.Text)
	}

	messages := make([]llm.Message, 0, len(req.History)+2)
	messages = append(messages, llm.Message{Role: "system", Content: answerSystemPrompt})

	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	messages = append(messages, history...)

	messages = append(messages, llm.Message{
		Role:    "user",
		Content: fmt.Sprintf("Context:\n%s\nQuestion: %s", contextBlock.String(), req.Message),
	})
	return messages
}
