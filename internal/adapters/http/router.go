package httpadapter

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/feiyangfan/search-hub/internal/core/domain"
	"github.com/feiyangfan/search-hub/internal/core/ports"
	"github.com/feiyangfan/search-hub/internal/observability/metrics"
)

const tenantIDHeader = "X-Tenant-Id"

type Router struct {
	search  ports.SearchService
	ingest  ports.DocumentIngestor
	docs    ports.DocumentReader
	service string
	metrics *metrics.HTTPServerMetrics
}

func NewRouter(search ports.SearchService, ingest ports.DocumentIngestor, docs ports.DocumentReader) *Router {
	return &Router{
		search: search,
		ingest: ingest,
		docs:   docs,
	}
}

// WithMetrics attaches search instrumentation. Without it the router
// serves requests unobserved, which keeps tests quiet.
func (rt *Router) WithMetrics(service string, m *metrics.HTTPServerMetrics) *Router {
	rt.service = service
	rt.metrics = m
	return rt
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/search", rt.searchDocuments)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	tenantID := strings.TrimSpace(r.Header.Get(tenantIDHeader))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "X-Tenant-Id header is required")
		return
	}

	params := r.URL.Query()
	query := domain.HybridSearchQuery{
		TenantID: tenantID,
		Query:    params.Get("q"),
	}
	if strings.TrimSpace(query.Query) == "" {
		writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	var err error
	if query.Limit, err = intParam(params.Get("limit"), "limit", 1, 50); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.Offset, err = intParam(params.Get("offset"), "offset", 0, 1_000_000); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.SemanticK, err = intParam(params.Get("semantic_k"), "semantic_k", 1, 50); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.SemanticRecall, err = intParam(params.Get("semantic_recall"), "semantic_recall", 1, 50); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.RRFK, err = intParam(params.Get("rrf_k"), "rrf_k", 1, 100); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	start := time.Now()
	resp, err := rt.search.HybridSearch(r.Context(), query)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(rt.service, resp.Degraded, len(resp.Items), time.Since(start))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	tenantID := strings.TrimSpace(r.Header.Get(tenantIDHeader))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "X-Tenant-Id header is required")
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	title := strings.TrimSpace(r.FormValue("title"))
	if title == "" {
		title = fileHeader.Filename
	}

	doc, err := rt.ingest.Upload(
		r.Context(),
		tenantID,
		title,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	tenantID := strings.TrimSpace(r.Header.Get(tenantIDHeader))
	if tenantID == "" {
		writeError(w, http.StatusBadRequest, "X-Tenant-Id header is required")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), tenantID, id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// intParam parses an optional integer query parameter. Empty means
// "unset" and returns zero so the use case applies its default.
func intParam(raw, name string, min, max int) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parameter %q must be an integer", name)
	}
	if n < min || n > max {
		return 0, fmt.Errorf("parameter %q must be between %d and %d", name, min, max)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
