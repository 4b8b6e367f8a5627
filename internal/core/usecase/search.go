package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/feiyangfan/search-hub/internal/core/domain"
	"github.com/feiyangfan/search-hub/internal/core/ports"
)

const (
	defaultLimit = 10
	maxLimit     = 50

	// maxFusionWindow bounds both the expanded lexical fetch and the
	// semantic result set. Beyond it, pagination degrades to plain
	// lexical order.
	maxFusionWindow = 50

	defaultRRFK = 60
	maxRRFK     = 100
)

// SemanticGate is the circuit breaker protecting the semantic backend.
// Satisfied by *resilience.CircuitBreaker.
type SemanticGate interface {
	CanExecute(now time.Time) bool
	RecordSuccess(now time.Time)
	RecordFailure(now time.Time)
}

// HybridSearchUseCase fuses tenant-scoped lexical full-text search with
// breaker-gated semantic retrieval. Lexical is the baseline: its failures
// propagate. Every failure on the semantic path is absorbed and the
// lexical-only response is returned instead.
type HybridSearchUseCase struct {
	lexical  ports.LexicalSearcher
	embedder ports.Embedder
	reranker ports.Reranker
	chunks   ports.ChunkIndex
	repo     ports.DocumentRepository
	breaker  SemanticGate

	semanticTimeout time.Duration
	now             func() time.Time
}

func NewHybridSearchUseCase(
	lexical ports.LexicalSearcher,
	embedder ports.Embedder,
	reranker ports.Reranker,
	chunks ports.ChunkIndex,
	repo ports.DocumentRepository,
	breaker SemanticGate,
	semanticTimeout time.Duration,
) *HybridSearchUseCase {
	if semanticTimeout <= 0 {
		semanticTimeout = 10 * time.Second
	}
	return &HybridSearchUseCase{
		lexical:         lexical,
		embedder:        embedder,
		reranker:        reranker,
		chunks:          chunks,
		repo:            repo,
		breaker:         breaker,
		semanticTimeout: semanticTimeout,
		now:             time.Now,
	}
}

func (uc *HybridSearchUseCase) HybridSearch(ctx context.Context, query domain.HybridSearchQuery) (*domain.SearchResponse, error) {
	if strings.TrimSpace(query.TenantID) == "" {
		return nil, domain.WrapError(domain.ErrTenantRequired, "hybrid search", errors.New("empty tenant id"))
	}
	if strings.TrimSpace(query.Query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "hybrid search", errors.New("empty query"))
	}
	query = normalizeQuery(query)

	fetchOffset, fetchLimit, expanded := lexicalWindow(query.Offset, query.Limit)
	lexical, err := uc.lexical.SearchLexical(ctx, query.TenantID, query.Query, fetchLimit, fetchOffset)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	if !uc.breaker.CanExecute(uc.now()) {
		// Expected under sustained degradation: decline, don't record.
		slog.Debug("semantic_search_skipped",
			"reason", "breaker_open",
			"tenant_id", query.TenantID,
			"query_hash", queryHash(query.Query),
		)
		return uc.lexicalOnly(lexical, query, expanded, true), nil
	}

	semantic, err := uc.searchSemantic(ctx, query)
	if err != nil {
		uc.breaker.RecordFailure(uc.now())
		slog.Warn("semantic_search_failed",
			"tenant_id", query.TenantID,
			"query_hash", queryHash(query.Query),
			"error", err,
		)
		return uc.lexicalOnly(lexical, query, expanded, true), nil
	}
	uc.breaker.RecordSuccess(uc.now())

	fused := fuseRRF(lexical.Items, semantic, query.RRFK)
	if err := uc.backfillMetadata(ctx, query.TenantID, fused); err != nil {
		slog.Warn("metadata_backfill_failed",
			"tenant_id", query.TenantID,
			"query_hash", queryHash(query.Query),
			"error", err,
		)
		return uc.lexicalOnly(lexical, query, expanded, true), nil
	}

	pageStart := query.Offset
	if len(fused) <= pageStart {
		return uc.lexicalOnly(lexical, query, expanded, false), nil
	}

	pageEnd := pageStart + query.Limit
	if pageEnd > len(fused) {
		pageEnd = len(fused)
	}

	items := make([]domain.SearchResultItem, 0, pageEnd-pageStart)
	for _, doc := range fused[pageStart:pageEnd] {
		items = append(items, doc.item())
	}

	total := lexical.Total
	if len(fused) > total {
		total = len(fused)
	}

	return &domain.SearchResponse{
		Total:    total,
		Items:    items,
		Page:     pageNumber(query.Offset, query.Limit),
		PageSize: query.Limit,
	}, nil
}

// lexicalWindow decides how much of the lexical ranking to fetch. When the
// requested page sits inside the first maxFusionWindow results and is not
// the first page, the fetch widens to [0, offset+limit) so fusion sees all
// lexical candidates ahead of the requested page.
func lexicalWindow(offset, limit int) (fetchOffset, fetchLimit int, expanded bool) {
	end := offset + limit
	if offset > 0 && end <= maxFusionWindow {
		return 0, end, true
	}
	return offset, limit, false
}

// lexicalOnly reshapes the lexical result into a SearchResponse, slicing
// the requested page out of an expanded fetch when needed.
func (uc *HybridSearchUseCase) lexicalOnly(lexical *domain.LexicalResult, query domain.HybridSearchQuery, expanded, degraded bool) *domain.SearchResponse {
	items := lexical.Items
	if expanded {
		start := query.Offset
		if start > len(items) {
			start = len(items)
		}
		end := start + query.Limit
		if end > len(items) {
			end = len(items)
		}
		items = items[start:end]
	}

	return &domain.SearchResponse{
		Total:    lexical.Total,
		Items:    items,
		Page:     pageNumber(query.Offset, query.Limit),
		PageSize: query.Limit,
		Degraded: degraded,
	}
}

// backfillMetadata resolves title/snippet for documents that surfaced only
// through the semantic path, in one batched lookup.
func (uc *HybridSearchUseCase) backfillMetadata(ctx context.Context, tenantID string, fused []*fusedDocument) error {
	var missing []string
	for _, doc := range fused {
		if doc.needsMetadata() {
			missing = append(missing, doc.ID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	metadata, err := uc.repo.FetchMetadata(ctx, tenantID, missing)
	if err != nil {
		return fmt.Errorf("fetch document metadata: %w", err)
	}

	byID := make(map[string]domain.DocumentMetadata, len(metadata))
	for _, m := range metadata {
		byID[m.ID] = m
	}
	for _, doc := range fused {
		if !doc.needsMetadata() {
			continue
		}
		m, ok := byID[doc.ID]
		if !ok {
			continue
		}
		doc.Title = m.Title
		if doc.Snippet == "" {
			doc.Snippet = truncateSnippet(m.Content)
		}
	}
	return nil
}

func normalizeQuery(query domain.HybridSearchQuery) domain.HybridSearchQuery {
	out := query

	if out.Limit <= 0 {
		out.Limit = defaultLimit
	}
	if out.Limit > maxLimit {
		out.Limit = maxLimit
	}
	if out.Offset < 0 {
		out.Offset = 0
	}
	if out.RRFK <= 0 {
		out.RRFK = defaultRRFK
	}
	if out.RRFK > maxRRFK {
		out.RRFK = maxRRFK
	}

	if out.SemanticK <= 0 {
		// Cover the requested page so fused ranking stays meaningful
		// on later pages.
		out.SemanticK = out.Offset + out.Limit
	}
	out.SemanticK = clamp(out.SemanticK, 1, maxFusionWindow)

	if out.SemanticRecall <= 0 {
		out.SemanticRecall = 3 * out.SemanticK
	}
	out.SemanticRecall = clamp(out.SemanticRecall, out.SemanticK, maxFusionWindow)

	return out
}

func pageNumber(offset, limit int) int {
	if limit <= 0 {
		return 1
	}
	return offset/limit + 1
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// queryHash keeps query text out of logs while staying correlatable.
func queryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:8])
}
