package usecase

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/feiyangfan/search-hub/internal/core/domain"
)

type lexicalFake struct {
	ranking []domain.SearchResultItem
	total   int
	err     error

	gotLimit  int
	gotOffset int
	calls     int
}

func (f *lexicalFake) SearchLexical(_ context.Context, _, _ string, limit, offset int) (*domain.LexicalResult, error) {
	f.calls++
	f.gotLimit = limit
	f.gotOffset = offset
	if f.err != nil {
		return nil, f.err
	}
	start := offset
	if start > len(f.ranking) {
		start = len(f.ranking)
	}
	end := start + limit
	if end > len(f.ranking) {
		end = len(f.ranking)
	}
	total := f.total
	if total == 0 {
		total = len(f.ranking)
	}
	return &domain.LexicalResult{Total: total, Items: f.ranking[start:end]}, nil
}

type embedderFake struct {
	err error
}

func (f *embedderFake) Embed(context.Context, []string) ([][]float32, error) { return nil, f.err }
func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type chunkIndexFake struct {
	candidates []domain.Candidate
	err        error
	gotK       int
	gotTenant  string
}

func (f *chunkIndexFake) IndexChunks(context.Context, *domain.Document, []string, [][]float32) error {
	return nil
}

func (f *chunkIndexFake) NearestNeighbors(_ context.Context, tenantID string, _ []float32, k int) ([]domain.Candidate, error) {
	f.gotTenant = tenantID
	f.gotK = k
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

type rerankerFake struct {
	ranked  []domain.RerankedDocument
	err     error
	gotDocs []string
}

func (f *rerankerFake) Rerank(_ context.Context, _ string, documents []string) ([]domain.RerankedDocument, error) {
	f.gotDocs = documents
	if f.err != nil {
		return nil, f.err
	}
	if f.ranked != nil {
		return f.ranked, nil
	}
	ranked := make([]domain.RerankedDocument, len(documents))
	for i := range documents {
		ranked[i] = domain.RerankedDocument{Index: i, Score: 1 - float64(i)*0.01}
	}
	return ranked, nil
}

type metadataRepoFake struct {
	metadata []domain.DocumentMetadata
	err      error
	gotIDs   []string
	calls    int
}

func (f *metadataRepoFake) Create(context.Context, *domain.Document) error { return nil }
func (f *metadataRepoFake) GetByID(context.Context, string, string) (*domain.Document, error) {
	return nil, domain.ErrDocumentNotFound
}
func (f *metadataRepoFake) GetForIndexing(context.Context, string) (*domain.Document, error) {
	return nil, domain.ErrDocumentNotFound
}
func (f *metadataRepoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return nil
}
func (f *metadataRepoFake) FetchMetadata(_ context.Context, _ string, ids []string) ([]domain.DocumentMetadata, error) {
	f.calls++
	f.gotIDs = ids
	if f.err != nil {
		return nil, f.err
	}
	return f.metadata, nil
}

type gateFake struct {
	allow     bool
	successes int
	failures  int
}

func (f *gateFake) CanExecute(time.Time) bool { return f.allow }
func (f *gateFake) RecordSuccess(time.Time)   { f.successes++ }
func (f *gateFake) RecordFailure(time.Time)   { f.failures++ }

type searchFixture struct {
	lexical  *lexicalFake
	embedder *embedderFake
	chunks   *chunkIndexFake
	reranker *rerankerFake
	repo     *metadataRepoFake
	gate     *gateFake
	uc       *HybridSearchUseCase
}

func newSearchFixture() *searchFixture {
	f := &searchFixture{
		lexical:  &lexicalFake{},
		embedder: &embedderFake{},
		chunks:   &chunkIndexFake{},
		reranker: &rerankerFake{},
		repo:     &metadataRepoFake{},
		gate:     &gateFake{allow: true},
	}
	f.uc = NewHybridSearchUseCase(f.lexical, f.embedder, f.reranker, f.chunks, f.repo, f.gate, time.Second)
	f.uc.now = func() time.Time { return time.Unix(1000, 0) }
	return f
}

func candidate(docID string, chunkIndex int) domain.Candidate {
	return domain.Candidate{
		DocumentID: docID,
		ChunkIndex: chunkIndex,
		Content:    "chunk-" + docID,
		Similarity: 0.9,
	}
}

func searchQuery(limit, offset int) domain.HybridSearchQuery {
	return domain.HybridSearchQuery{
		TenantID: "tenant-1",
		Query:    "invoice processing",
		Limit:    limit,
		Offset:   offset,
	}
}

func TestHybridSearchRejectsEmptyQuery(t *testing.T) {
	f := newSearchFixture()

	q := searchQuery(10, 0)
	q.Query = "   "
	if _, err := f.uc.HybridSearch(context.Background(), q); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	q = searchQuery(10, 0)
	q.TenantID = ""
	if _, err := f.uc.HybridSearch(context.Background(), q); !domain.IsKind(err, domain.ErrTenantRequired) {
		t.Fatalf("expected ErrTenantRequired, got %v", err)
	}
}

func TestHybridSearchLexicalErrorPropagates(t *testing.T) {
	f := newSearchFixture()
	f.lexical.err = errors.New("pg down")

	if _, err := f.uc.HybridSearch(context.Background(), searchQuery(10, 0)); err == nil {
		t.Fatalf("expected lexical failure to propagate")
	}
	if f.gate.failures != 0 {
		t.Fatalf("lexical failure must not touch the breaker, got %d failures", f.gate.failures)
	}
}

func TestHybridSearchBreakerOpenReturnsLexicalOnly(t *testing.T) {
	f := newSearchFixture()
	f.gate.allow = false
	f.lexical.ranking = lexicalItems("docA", "docB")

	resp, err := f.uc.HybridSearch(context.Background(), searchQuery(10, 0))
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}

	want := &domain.SearchResponse{
		Total:    2,
		Items:    lexicalItems("docA", "docB"),
		Page:     1,
		PageSize: 10,
		Degraded: true,
	}
	if !reflect.DeepEqual(resp, want) {
		t.Fatalf("expected pure lexical response %+v, got %+v", want, resp)
	}
	if f.gate.failures != 0 {
		t.Fatalf("breaker-blocked call must not record a failure, got %d", f.gate.failures)
	}
	if f.gate.successes != 0 {
		t.Fatalf("breaker-blocked call must not record a success, got %d", f.gate.successes)
	}
}

func TestHybridSearchSemanticFailureFallsBack(t *testing.T) {
	f := newSearchFixture()
	f.lexical.ranking = lexicalItems("docA", "docB")
	f.embedder.err = errors.New("embedding api 500")

	resp, err := f.uc.HybridSearch(context.Background(), searchQuery(10, 0))
	if err != nil {
		t.Fatalf("semantic failure must not surface, got %v", err)
	}
	if !resp.Degraded {
		t.Fatalf("expected degraded response")
	}
	if len(resp.Items) != 2 || resp.Items[0].ID != "docA" {
		t.Fatalf("expected lexical items, got %+v", resp.Items)
	}
	if f.gate.failures != 1 {
		t.Fatalf("expected exactly 1 recorded failure, got %d", f.gate.failures)
	}
}

func TestHybridSearchZeroCandidatesIsSoftFailure(t *testing.T) {
	f := newSearchFixture()
	f.lexical.ranking = lexicalItems("docA")
	f.chunks.candidates = nil

	resp, err := f.uc.HybridSearch(context.Background(), searchQuery(10, 0))
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if !resp.Degraded || f.gate.failures != 1 {
		t.Fatalf("zero candidates must degrade and record failure, degraded=%v failures=%d", resp.Degraded, f.gate.failures)
	}
}

func TestHybridSearchMalformedRerankIndexIsSoftFailure(t *testing.T) {
	f := newSearchFixture()
	f.lexical.ranking = lexicalItems("docA")
	f.chunks.candidates = []domain.Candidate{candidate("docB", 0)}
	f.reranker.ranked = []domain.RerankedDocument{{Index: 7, Score: 0.9}}

	resp, err := f.uc.HybridSearch(context.Background(), searchQuery(10, 0))
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if !resp.Degraded || f.gate.failures != 1 {
		t.Fatalf("out-of-range rerank index must degrade, degraded=%v failures=%d", resp.Degraded, f.gate.failures)
	}
}

func TestHybridSearchFusesKnownScenario(t *testing.T) {
	f := newSearchFixture()
	f.lexical.ranking = lexicalItems("docA", "docB")
	f.chunks.candidates = []domain.Candidate{candidate("docB", 0), candidate("docC", 1)}
	f.repo.metadata = []domain.DocumentMetadata{{ID: "docC", Title: "Doc C", Content: "doc c body"}}

	resp, err := f.uc.HybridSearch(context.Background(), searchQuery(10, 0))
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}
	if resp.Degraded {
		t.Fatalf("expected non-degraded response")
	}
	if f.gate.successes != 1 {
		t.Fatalf("expected 1 recorded success, got %d", f.gate.successes)
	}

	wantIDs := []string{"docB", "docA", "docC"}
	wantScores := []float64{0.032522, 0.016393, 0.016129}
	if len(resp.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(resp.Items))
	}
	for i, item := range resp.Items {
		if item.ID != wantIDs[i] {
			t.Fatalf("position %d: expected %s, got %s", i, wantIDs[i], item.ID)
		}
		if item.Score != wantScores[i] {
			t.Fatalf("%s: expected score %.6f, got %.6f", item.ID, wantScores[i], item.Score)
		}
	}

	if resp.Total != 3 {
		t.Fatalf("expected total=max(lexical,fused)=3, got %d", resp.Total)
	}

	// docC surfaced only semantically: metadata came from the batched lookup.
	if !reflect.DeepEqual(f.repo.gotIDs, []string{"docC"}) {
		t.Fatalf("expected backfill for [docC], got %v", f.repo.gotIDs)
	}
	if resp.Items[2].Title != "Doc C" {
		t.Fatalf("expected backfilled title, got %q", resp.Items[2].Title)
	}
}

func TestHybridSearchExpandedWindowSecondPage(t *testing.T) {
	f := newSearchFixture()
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("doc%02d", i)
	}
	f.lexical.ranking = lexicalItems(ids...)
	f.lexical.total = 45
	f.chunks.candidates = []domain.Candidate{candidate("doc00", 0)}

	resp, err := f.uc.HybridSearch(context.Background(), searchQuery(10, 10))
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}

	if f.lexical.gotOffset != 0 || f.lexical.gotLimit != 20 {
		t.Fatalf("expected expanded lexical fetch [0,20), got offset=%d limit=%d", f.lexical.gotOffset, f.lexical.gotLimit)
	}
	// semanticK = offset+limit = 20, recall = clamp(60, 20, 50) = 50
	if f.chunks.gotK != 50 {
		t.Fatalf("expected semantic recall 50, got %d", f.chunks.gotK)
	}

	if len(resp.Items) != 10 {
		t.Fatalf("expected 10 items on page 2, got %d", len(resp.Items))
	}
	if resp.Items[0].ID != "doc10" {
		t.Fatalf("expected page 2 to start at doc10, got %s", resp.Items[0].ID)
	}
	if resp.Page != 2 || resp.PageSize != 10 {
		t.Fatalf("expected page=2 pageSize=10, got page=%d pageSize=%d", resp.Page, resp.PageSize)
	}
	if resp.Total != 45 {
		t.Fatalf("expected total 45, got %d", resp.Total)
	}
}

func TestHybridSearchSemanticDefaults(t *testing.T) {
	f := newSearchFixture()
	f.lexical.ranking = lexicalItems("docA")
	f.chunks.candidates = []domain.Candidate{candidate("docA", 0)}

	if _, err := f.uc.HybridSearch(context.Background(), searchQuery(10, 0)); err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}

	// semanticK defaults to limit (10), recall to 3*K = 30.
	if f.chunks.gotK != 30 {
		t.Fatalf("expected default semantic recall 30, got %d", f.chunks.gotK)
	}
	if f.chunks.gotTenant != "tenant-1" {
		t.Fatalf("expected tenant-scoped KNN, got %q", f.chunks.gotTenant)
	}
}

func TestHybridSearchShortFusedSetFallsBackToLexicalPage(t *testing.T) {
	f := newSearchFixture()
	f.lexical.ranking = lexicalItems("docA", "docB", "docC", "docD", "docE")
	f.chunks.candidates = []domain.Candidate{candidate("docZ", 0)}
	f.repo.metadata = []domain.DocumentMetadata{{ID: "docZ", Title: "Z", Content: "z"}}

	resp, err := f.uc.HybridSearch(context.Background(), searchQuery(10, 30))
	if err != nil {
		t.Fatalf("HybridSearch() error = %v", err)
	}

	// Fused set (6 docs) is shorter than the page start (30): the page is
	// sliced from the expanded lexical fetch, which has nothing there.
	if len(resp.Items) != 0 {
		t.Fatalf("expected empty page, got %d items", len(resp.Items))
	}
	if resp.Total != 5 {
		t.Fatalf("expected lexical total 5, got %d", resp.Total)
	}
	if resp.Degraded {
		t.Fatalf("semantic path succeeded, response must not be degraded")
	}
}

func TestHybridSearchPagesDoNotOverlap(t *testing.T) {
	f := newSearchFixture()
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = fmt.Sprintf("L%02d", i)
	}
	f.lexical.ranking = lexicalItems(ids...)
	f.chunks.candidates = []domain.Candidate{candidate("docX", 0), candidate("L00", 0)}
	f.repo.metadata = []domain.DocumentMetadata{{ID: "docX", Title: "X", Content: "x"}}

	seen := map[string]int{}
	for page := 0; page < 2; page++ {
		resp, err := f.uc.HybridSearch(context.Background(), searchQuery(5, page*5))
		if err != nil {
			t.Fatalf("page %d error = %v", page, err)
		}
		for _, item := range resp.Items {
			seen[item.ID]++
			if seen[item.ID] > 1 {
				t.Fatalf("document %s appeared on more than one page", item.ID)
			}
		}
	}
}
