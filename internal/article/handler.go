// Package article serves the paginated article listing fed by the agency parsers.
package article

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/codec-agences/admin-backend/internal/apperr"
	"github.com/codec-agences/admin-backend/internal/repository"
)

// Pagination describes the page returned by List
type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

// ListResponse is the List payload
type ListResponse struct {
	Articles   []repository.ArticleSummary `json:"articles"`
	Pagination Pagination                  `json:"pagination"`
}

// Handler handles HTTP requests for article endpoints
type Handler struct {
	articles repository.ArticleRepository
	render   apperr.Renderer
	logger   *slog.Logger
}

// NewHandler creates a new Handler instance
func NewHandler(articles repository.ArticleRepository, render apperr.Renderer, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{articles: articles, render: render, logger: logger}
}

// List handles GET /api/articles?page&limit&agency&search
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := repository.ListArticleParams{Search: q.Get("search")}

	if v := q.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			params.Page = page
		}
	}
	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			params.Limit = limit
		}
	}
	if v := q.Get("agency"); v != "" {
		agency, err := strconv.ParseInt(v, 10, 64)
		if err != nil || agency <= 0 {
			h.render.Write(w, r, apperr.Validation("Invalid agency", map[string][]string{"agency": {"agency must be a positive integer"}}))
			return
		}
		params.AgencyID = &agency
	}
	params = repository.NormalizeListParams(params)

	items, total, err := h.articles.List(r.Context(), params)
	if err != nil {
		h.render.Write(w, r, apperr.Upstream(err))
		return
	}
	if items == nil {
		items = []repository.ArticleSummary{}
	}

	totalPages := (total + params.Limit - 1) / params.Limit
	apperr.OK(w, http.StatusOK, "", ListResponse{
		Articles: items,
		Pagination: Pagination{
			Page:       params.Page,
			Limit:      params.Limit,
			Total:      total,
			TotalPages: totalPages,
		},
	})
}

// Get handles GET /api/articles/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.render.Write(w, r, apperr.Validation("Invalid id", nil))
		return
	}

	a, err := h.articles.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrArticleNotFound) {
			h.render.Write(w, r, apperr.NotFound("Article not found", err))
			return
		}
		h.render.Write(w, r, apperr.Upstream(err))
		return
	}
	apperr.OK(w, http.StatusOK, "", a)
}

// RegisterRoutes registers the article routes behind guard, which must
// authenticate the caller and require the Articles menu
func RegisterRoutes(r chi.Router, handler *Handler, guard func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		r.Use(guard)
		r.Get("/articles", handler.List)
		r.Get("/articles/{id}", handler.Get)
	})
}
