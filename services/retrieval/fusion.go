package retrieval

import (
	"context"
	"sort"

	"go.uber.org/zap"
)

// FusedPassage is a deduplicated passage aggregated across queries. Score and
// HitScore are the arithmetic means of all contributing passages sharing the
// same (location, text) key; SourceQueries lists the contributing queries in
// first-seen order.
type FusedPassage struct {
	Location      string   `json:"loc"`
	Text          string   `json:"chunk"`
	Score         float64  `json:"score"`
	HitScore      float64  `json:"hit_score"`
	SourceQuery   string   `json:"source_query"`
	SourceQueries []string `json:"source_queries"`
}

type passageKey struct {
	location string
	text     string
}

type accumulator struct {
	scoreSum      float64
	hitScoreSum   float64
	count         int
	sourceQueries []string
}

// Fuse fans the queries out, deduplicates the returned passages by
// (location, text), averages their scores, and ranks the result. The context
// set is truncated to hits*k entries; when that budget is not positive, no
// truncation is applied. Ties keep first-seen order so results stay
// deterministic.
func (r *Retriever) Fuse(ctx context.Context, queries []string, hits, k int) ([]FusedPassage, error) {
	passages, err := r.FetchAll(ctx, queries, hits, k)
	if err != nil {
		return nil, err
	}
	if len(passages) == 0 {
		return []FusedPassage{}, nil
	}

	maxContext := hits * k
	if maxContext <= 0 {
		maxContext = len(passages)
	}

	groups := make(map[passageKey]*accumulator)
	var order []passageKey
	for _, p := range passages {
		key := passageKey{location: p.Location, text: p.Text}
		group, ok := groups[key]
		if !ok {
			group = &accumulator{}
			groups[key] = group
			order = append(order, key)
		}
		group.scoreSum += p.Score
		group.hitScoreSum += p.HitScore
		group.count++
		if p.SourceQuery != "" && !contains(group.sourceQueries, p.SourceQuery) {
			group.sourceQueries = append(group.sourceQueries, p.SourceQuery)
		}
	}

	fused := make([]FusedPassage, 0, len(groups))
	for _, key := range order {
		group := groups[key]
		count := group.count
		if count < 1 {
			count = 1
		}
		first := ""
		if len(group.sourceQueries) > 0 {
			first = group.sourceQueries[0]
		}
		fused = append(fused, FusedPassage{
			Location:      key.location,
			Text:          key.text,
			Score:         group.scoreSum / float64(count),
			HitScore:      group.hitScoreSum / float64(count),
			SourceQuery:   first,
			SourceQueries: group.sourceQueries,
		})
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if len(fused) > maxContext {
		fused = fused[:maxContext]
	}

	r.logger.Debug("fused passages",
		zap.Int("retrieved", len(passages)),
		zap.Int("fused", len(fused)),
		zap.Int("max_context", maxContext))
	return fused, nil
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
