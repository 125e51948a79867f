// Package chi exposes the retrieval core over HTTP: capture intake, unified
// search, item deletion, health, and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stashkit/retrieval/internal/domain"
	logpkg "github.com/stashkit/retrieval/internal/logger"
	healthuc "github.com/stashkit/retrieval/internal/usecase/health"
	searchuc "github.com/stashkit/retrieval/internal/usecase/search"
)

// Server wires the use cases into an HTTP API.
type Server struct {
	search   *searchuc.Service
	health   *healthuc.Service
	items    ItemStore
	pipeline Pipeline
	vectors  VectorDeleter
	logger   *zap.Logger
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	health *healthuc.Service,
	items ItemStore,
	pipeline Pipeline,
	vectors VectorDeleter,
	logger *zap.Logger,
) *Server {
	return &Server{
		search:   search,
		health:   health,
		items:    items,
		pipeline: pipeline,
		vectors:  vectors,
		logger:   logger,
	}
}

// Router builds the route tree with standard middleware attached.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/items", s.handleCreateItem)
		r.Get("/items/{id}", s.handleGetItem)
		r.Delete("/items/{id}", s.handleDeleteItem)
	})
	return r
}

type searchRequest struct {
	Query          string         `json:"query"`
	Limit          int            `json:"limit,omitempty"`
	UseFallback    *bool          `json:"useFallback,omitempty"`
	CombineResults bool           `json:"combineResults,omitempty"`
	Filters        *searchFilters `json:"filters,omitempty"`
}

type searchFilters struct {
	ContentTypes  []string   `json:"contentTypes,omitempty"`
	Tags          []string   `json:"tags,omitempty"`
	CreatedAfter  *time.Time `json:"createdAfter,omitempty"`
	CreatedBefore *time.Time `json:"createdBefore,omitempty"`
	Source        string     `json:"source,omitempty"`
}

type searchResponse struct {
	Results      []searchResultItem `json:"results"`
	SearchMethod string             `json:"searchMethod"`
	TotalResults int                `json:"totalResults"`
}

type searchResultItem struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Excerpt     string    `json:"excerpt,omitempty"`
	ContentType string    `json:"contentType"`
	Score       float64   `json:"score"`
	Method      string    `json:"method"`
	Tags        []string  `json:"tags,omitempty"`
	Source      string    `json:"source,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// handleSearch handles POST /v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "query is required")
		return
	}

	useFallback := true
	if req.UseFallback != nil {
		useFallback = *req.UseFallback
	}

	resp, err := s.search.Search(r.Context(), searchuc.Request{
		Query:          req.Query,
		Limit:          req.Limit,
		Filters:        filtersFromRequest(req.Filters),
		UseFallback:    useFallback,
		CombineResults: req.CombineResults,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]searchResultItem, len(resp.Results))
	for i := range resp.Results {
		items[i] = resultToItem(&resp.Results[i])
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Results:      items,
		SearchMethod: string(resp.Method),
		TotalResults: len(items),
	})
}

type createItemRequest struct {
	OwnerID          string   `json:"ownerId"`
	ContentType      string   `json:"contentType"`
	Title            string   `json:"title,omitempty"`
	Annotation       string   `json:"annotation,omitempty"`
	Tags             []string `json:"tags,omitempty"`
	Content          string   `json:"content,omitempty"`
	OriginalFilename string   `json:"originalFilename,omitempty"`
	Source           string   `json:"source,omitempty"`
}

type itemResponse struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId"`
	ContentType     string    `json:"contentType"`
	Title           string    `json:"title,omitempty"`
	Annotation      string    `json:"annotation,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
	Source          string    `json:"source,omitempty"`
	EmbeddingStatus string    `json:"embeddingStatus"`
	CreatedAt       time.Time `json:"createdAt"`
}

// handleCreateItem handles POST /v1/items. The item row is written
// synchronously; embedding happens in the background and is observable
// only through embeddingStatus.
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var req createItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body: "+err.Error())
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "ownerId is required")
		return
	}
	ct := domain.ContentType(req.ContentType)
	if !ct.Known() {
		writeError(w, http.StatusBadRequest, "validation_failed",
			"contentType must be one of text, image, pdf, audio")
		return
	}

	item := domain.CapturedItem{
		OwnerID:          req.OwnerID,
		ContentType:      ct,
		Title:            req.Title,
		Annotation:       req.Annotation,
		Tags:             req.Tags,
		ExtractedText:    req.Content,
		OriginalFilename: req.OriginalFilename,
		Source:           req.Source,
		EmbeddingStatus:  domain.EmbeddingPending,
	}
	if err := s.items.Create(r.Context(), &item); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	s.pipeline.ProcessAsync(item)

	writeJSON(w, http.StatusAccepted, itemToResponse(&item))
}

// handleGetItem handles GET /v1/items/{id}.
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.items.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, itemToResponse(item))
}

// handleDeleteItem handles DELETE /v1/items/{id}. The vector record removal
// is best-effort: a dangling vector only costs index space and is
// overwritten if the id is ever reused.
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.items.Delete(r.Context(), id); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	if err := s.vectors.Delete(r.Context(), id); err != nil {
		logpkg.FromContext(r.Context()).Warn("delete vector record",
			zap.String("item_id", id), zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

type healthResponse struct {
	Status     string            `json:"status"`
	Checks     map[string]string `json:"checks"`
	IndexCount int               `json:"indexCount"`
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Status:     string(report.Status),
		Checks:     checks,
		IndexCount: report.IndexCount,
	})
}

func filtersFromRequest(f *searchFilters) domain.SearchFilters {
	if f == nil {
		return domain.SearchFilters{}
	}
	out := domain.SearchFilters{
		Tags:   f.Tags,
		Source: f.Source,
	}
	for _, ct := range f.ContentTypes {
		out.ContentTypes = append(out.ContentTypes, domain.ContentType(ct))
	}
	if f.CreatedAfter != nil {
		out.CreatedAfter = *f.CreatedAfter
	}
	if f.CreatedBefore != nil {
		out.CreatedBefore = *f.CreatedBefore
	}
	return out
}

func resultToItem(r *domain.SearchResult) searchResultItem {
	return searchResultItem{
		ID:          r.ID,
		Title:       r.Title,
		Excerpt:     r.Excerpt,
		ContentType: string(r.ContentType),
		Score:       r.Score,
		Method:      string(r.Method),
		Tags:        r.Tags,
		Source:      r.Source,
		CreatedAt:   r.CreatedAt,
	}
}

func itemToResponse(item *domain.CapturedItem) itemResponse {
	return itemResponse{
		ID:              item.ID,
		OwnerID:         item.OwnerID,
		ContentType:     string(item.ContentType),
		Title:           item.Title,
		Annotation:      item.Annotation,
		Tags:            item.Tags,
		Source:          item.Source,
		EmbeddingStatus: string(item.EmbeddingStatus),
		CreatedAt:       item.CreatedAt,
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	switch {
	case errors.Is(err, domain.ErrEmptyInput), errors.Is(err, domain.ErrValidationFailed):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "item_not_found", "item not found")
	case errors.Is(err, domain.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable",
			"embedding provider is not configured")
	case errors.Is(err, domain.ErrProviderExhausted),
		errors.Is(err, domain.ErrIndexUnavailable):
		log.Warn("backend error", zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend_unavailable",
			"retrieval backend unavailable")
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
