package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/feiyangfan/search-hub/internal/core/domain"
)

// searchSemantic runs the embed → nearest-neighbor → rerank pipeline and
// returns the top SemanticK reranked chunks. Any error here is a soft
// failure: the caller records it on the breaker and falls back to the
// lexical-only response. The whole pipeline runs under a bounded timeout
// so a hung backend cannot stall the request.
func (uc *HybridSearchUseCase) searchSemantic(ctx context.Context, query domain.HybridSearchQuery) ([]domain.SemanticResult, error) {
	ctx, cancel := context.WithTimeout(ctx, uc.semanticTimeout)
	defer cancel()

	vector, err := uc.embedder.EmbedQuery(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	candidates, err := uc.chunks.NearestNeighbors(ctx, query.TenantID, vector, query.SemanticRecall)
	if err != nil {
		return nil, fmt.Errorf("nearest neighbors: %w", err)
	}
	if len(candidates) == 0 {
		return nil, errors.New("no semantic candidates")
	}

	contents := make([]string, len(candidates))
	for i, c := range candidates {
		contents[i] = c.Content
	}

	ranked, err := uc.reranker.Rerank(ctx, query.Query, contents)
	if err != nil {
		return nil, fmt.Errorf("rerank candidates: %w", err)
	}

	results := make([]domain.SemanticResult, 0, len(ranked))
	for _, r := range ranked {
		if r.Index < 0 || r.Index >= len(candidates) {
			return nil, fmt.Errorf("rerank index %d out of range [0,%d)", r.Index, len(candidates))
		}
		results = append(results, domain.SemanticResult{
			Candidate:   candidates[r.Index],
			RerankScore: r.Score,
		})
	}

	// Rerank backends return best-first; enforce it anyway since ranks
	// feed straight into RRF.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RerankScore > results[j].RerankScore
	})

	if len(results) > query.SemanticK {
		results = results[:query.SemanticK]
	}
	return results, nil
}
