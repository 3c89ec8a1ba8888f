// Package retrieval fans search queries out against the backend and fuses the
// returned passages into a ranked context set.
package retrieval

import (
	"context"
	"errors"
	"sync"

	"github.com/ragline/ragline/services/search"
	"go.uber.org/zap"
)

// Searcher is the slice of the search client this package consumes.
type Searcher interface {
	Search(ctx context.Context, req search.Request) ([]search.Hit, error)
}

// Passage is one retrieved text fragment, tagged with the scores of its hit
// and the query that produced it.
type Passage struct {
	Location    string  `json:"loc"`
	Text        string  `json:"chunk"`
	Score       float64 `json:"score"`
	HitScore    float64 `json:"hit_score"`
	SourceQuery string  `json:"source_query"`
}

// Retriever issues retrieval queries and normalizes hits into passages.
type Retriever struct {
	searcher Searcher
	logger   *zap.Logger
}

// NewRetriever creates a retriever.
func NewRetriever(searcher Searcher, logger *zap.Logger) *Retriever {
	return &Retriever{searcher: searcher, logger: logger}
}

// Fetch runs one query and emits one passage per hit fragment. All fragments
// of a hit share the hit's scores and the issuing query string.
func (r *Retriever) Fetch(ctx context.Context, query string, hits, k int) ([]Passage, error) {
	results, err := r.searcher.Search(ctx, search.Request{Query: query, Hits: hits, K: k})
	if err != nil {
		return nil, err
	}

	var passages []Passage
	for _, hit := range results {
		for _, text := range hit.Chunks {
			passages = append(passages, Passage{
				Location:    hit.Location,
				Text:        text,
				Score:       hit.ChunkScore,
				HitScore:    hit.Relevance,
				SourceQuery: query,
			})
		}
	}

	r.logger.Debug("fetched passages",
		zap.String("query", query),
		zap.Int("hits", len(results)),
		zap.Int("passages", len(passages)))
	return passages, nil
}

// FetchAll runs one Fetch per query concurrently and concatenates the
// results in query order. The first failing query aborts the whole fan-out
// and cancels the remaining fetches; no partial results are returned.
func (r *Retriever) FetchAll(ctx context.Context, queries []string, hits, k int) ([]Passage, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([][]Passage, len(queries))
	errs := make([]error, len(queries))

	var wg sync.WaitGroup
	for i, query := range queries {
		wg.Add(1)
		go func(i int, query string) {
			defer wg.Done()
			passages, err := r.Fetch(ctx, query, hits, k)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			results[i] = passages
		}(i, query)
	}
	wg.Wait()

	// Prefer the root cause over the cancellations it triggered.
	var firstErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	var all []Passage
	for _, passages := range results {
		all = append(all, passages...)
	}
	return all, nil
}
