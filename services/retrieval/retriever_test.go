package retrieval

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ragline/ragline/services/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeSearcher serves canned hits per query and records calls.
type fakeSearcher struct {
	mu      sync.Mutex
	hits    map[string][]search.Hit
	errs    map[string]error
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, req search.Request) ([]search.Hit, error) {
	f.mu.Lock()
	f.queries = append(f.queries, req.Query)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := f.errs[req.Query]; err != nil {
		return nil, err
	}
	return f.hits[req.Query], nil
}

func TestRetriever_Fetch(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]search.Hit{
		"alpha": {
			{Location: "docs/a.md", Relevance: 0.9, ChunkScore: 0.95, Chunks: []string{"one", "two"}},
			{Location: "docs/b.md", Relevance: 0.4, ChunkScore: 0.4, Chunks: []string{"three"}},
		},
	}}
	retriever := NewRetriever(searcher, zap.NewNop())

	passages, err := retriever.Fetch(context.Background(), "alpha", 5, 3)
	require.NoError(t, err)
	require.Len(t, passages, 3)

	assert.Equal(t, Passage{
		Location:    "docs/a.md",
		Text:        "one",
		Score:       0.95,
		HitScore:    0.9,
		SourceQuery: "alpha",
	}, passages[0])
	assert.Equal(t, "two", passages[1].Text)
	assert.Equal(t, "docs/b.md", passages[2].Location)
	assert.Equal(t, 0.4, passages[2].Score)
}

func TestRetriever_Fetch_NoHits(t *testing.T) {
	retriever := NewRetriever(&fakeSearcher{}, zap.NewNop())

	passages, err := retriever.Fetch(context.Background(), "nothing", 5, 3)
	require.NoError(t, err)
	assert.Empty(t, passages)
}

func TestRetriever_FetchAll_PreservesQueryOrder(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]search.Hit{
		"first":  {{Location: "a", Relevance: 0.1, ChunkScore: 0.1, Chunks: []string{"a1"}}},
		"second": {{Location: "b", Relevance: 0.2, ChunkScore: 0.2, Chunks: []string{"b1", "b2"}}},
		"third":  {{Location: "c", Relevance: 0.3, ChunkScore: 0.3, Chunks: []string{"c1"}}},
	}}
	retriever := NewRetriever(searcher, zap.NewNop())

	passages, err := retriever.FetchAll(context.Background(), []string{"first", "second", "third"}, 5, 3)
	require.NoError(t, err)
	require.Len(t, passages, 4)

	// Concatenation follows query order regardless of goroutine completion.
	assert.Equal(t, "a1", passages[0].Text)
	assert.Equal(t, "b1", passages[1].Text)
	assert.Equal(t, "b2", passages[2].Text)
	assert.Equal(t, "c1", passages[3].Text)

	assert.Equal(t, "first", passages[0].SourceQuery)
	assert.Equal(t, "third", passages[3].SourceQuery)
}

func TestRetriever_FetchAll_FailureAbortsAll(t *testing.T) {
	backendErr := errors.New("rank profile missing")
	searcher := &fakeSearcher{
		hits: map[string][]search.Hit{
			"good": {{Location: "a", Chunks: []string{"a1"}}},
		},
		errs: map[string]error{"bad": backendErr},
	}
	retriever := NewRetriever(searcher, zap.NewNop())

	_, err := retriever.FetchAll(context.Background(), []string{"good", "bad"}, 5, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, backendErr)
}

func TestRetriever_FetchAll_NoQueries(t *testing.T) {
	retriever := NewRetriever(&fakeSearcher{}, zap.NewNop())

	passages, err := retriever.FetchAll(context.Background(), nil, 5, 3)
	require.NoError(t, err)
	assert.Empty(t, passages)
}
