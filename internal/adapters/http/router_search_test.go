package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/feiyangfan/search-hub/internal/core/domain"
)

type searchServiceFake struct {
	gotQuery domain.HybridSearchQuery
	resp     *domain.SearchResponse
	err      error
}

func (f *searchServiceFake) HybridSearch(_ context.Context, query domain.HybridSearchQuery) (*domain.SearchResponse, error) {
	f.gotQuery = query
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type ingestorFake struct {
	gotTenant string
	gotTitle  string
	doc       *domain.Document
	err       error
}

func (f *ingestorFake) Upload(_ context.Context, tenantID, title, _ string, body io.Reader) (*domain.Document, error) {
	f.gotTenant = tenantID
	f.gotTitle = title
	_, _ = io.Copy(io.Discard, body)
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type readerFake struct {
	doc *domain.Document
	err error
}

func (f *readerFake) GetByID(_ context.Context, _, _ string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

func newTestRouter(search *searchServiceFake, ingest *ingestorFake, docs *readerFake) http.Handler {
	if search == nil {
		search = &searchServiceFake{resp: &domain.SearchResponse{}}
	}
	if ingest == nil {
		ingest = &ingestorFake{doc: &domain.Document{ID: "doc-1"}}
	}
	if docs == nil {
		docs = &readerFake{doc: &domain.Document{ID: "doc-1"}}
	}
	return NewRouter(search, ingest, docs).Handler()
}

func TestSearchRequiresTenantHeader(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=hello", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "X-Tenant-Id") {
		t.Fatalf("error should mention the tenant header, got %s", rec.Body.String())
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	handler := newTestRouter(nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchRejectsOutOfRangeParams(t *testing.T) {
	cases := map[string]string{
		"limit zero":         "/v1/search?q=x&limit=0",
		"limit too large":    "/v1/search?q=x&limit=51",
		"negative offset":    "/v1/search?q=x&offset=-1",
		"semantic_k too big": "/v1/search?q=x&semantic_k=51",
		"rrf_k too big":      "/v1/search?q=x&rrf_k=101",
		"limit not a number": "/v1/search?q=x&limit=ten",
	}
	handler := newTestRouter(nil, nil, nil)

	for name, target := range cases {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		req.Header.Set("X-Tenant-Id", "acme")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, rec.Code)
		}
	}
}

func TestSearchPlumbsParamsAndReturnsResponse(t *testing.T) {
	search := &searchServiceFake{
		resp: &domain.SearchResponse{
			Total:    3,
			Items:    []domain.SearchResultItem{{ID: "docB", Title: "B", Score: 0.032522}},
			Page:     1,
			PageSize: 1,
		},
	}
	handler := newTestRouter(search, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=quarterly+report&limit=1&offset=0&semantic_k=20&semantic_recall=40&rrf_k=75", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if search.gotQuery.TenantID != "acme" || search.gotQuery.Query != "quarterly report" {
		t.Fatalf("unexpected query plumbing: %+v", search.gotQuery)
	}
	if search.gotQuery.Limit != 1 || search.gotQuery.SemanticK != 20 || search.gotQuery.SemanticRecall != 40 || search.gotQuery.RRFK != 75 {
		t.Fatalf("unexpected knob plumbing: %+v", search.gotQuery)
	}

	var resp domain.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 || len(resp.Items) != 1 || resp.Items[0].ID != "docB" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchDegradedFlagSurvivesEncoding(t *testing.T) {
	search := &searchServiceFake{
		resp: &domain.SearchResponse{Total: 1, Items: []domain.SearchResultItem{{ID: "docA"}}, Page: 1, PageSize: 10, Degraded: true},
	}
	handler := newTestRouter(search, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), `"degraded":true`) {
		t.Fatalf("degraded flag missing: %s", rec.Body.String())
	}
}

func TestSearchMapsTemporaryErrorTo503(t *testing.T) {
	search := &searchServiceFake{err: domain.WrapError(domain.ErrTemporary, "lexical search", io.ErrUnexpectedEOF)}
	handler := newTestRouter(search, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestUploadDocumentAccepted(t *testing.T) {
	ingest := &ingestorFake{doc: &domain.Document{ID: "doc-9", Status: domain.StatusUploaded}}
	handler := newTestRouter(nil, ingest, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "report.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("quarterly numbers")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Tenant-Id", "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if ingest.gotTenant != "acme" || ingest.gotTitle != "report.txt" {
		t.Fatalf("unexpected upload plumbing: tenant=%q title=%q", ingest.gotTenant, ingest.gotTitle)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	docs := &readerFake{err: domain.WrapError(domain.ErrDocumentNotFound, "get document", io.EOF)}
	handler := newTestRouter(nil, nil, docs)

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	req.Header.Set("X-Tenant-Id", "acme")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
