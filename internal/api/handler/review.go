package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/reviewrelay/internal/analysis"
	"github.com/kiranshivaraju/reviewrelay/internal/api/response"
	"github.com/kiranshivaraju/reviewrelay/internal/store"
	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// ReviewStore defines the store operations the review handlers depend on.
type ReviewStore interface {
	CreateReview(ctx context.Context, review models.NewReview) (int64, error)
	ListReviews(ctx context.Context) ([]models.ReviewItem, error)
	DeleteReview(ctx context.Context, id int64) error
}

// NewAddReviewHandler returns an http.HandlerFunc for POST /review/add.
func NewAddReviewHandler(s ReviewStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

		var req models.NewReview
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
			return
		}
		if req.Tags == nil {
			req.Tags = []string{}
		}

		id, err := s.CreateReview(r.Context(), req)
		if err != nil {
			slog.Error("saving review item failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to save review item")
			return
		}

		response.Created(w, id, "Saved to review list")
	}
}

// NewListReviewsHandler returns an http.HandlerFunc for GET /review/list.
// Optional query parameters: q (keyword) and tag.
func NewListReviewsHandler(s ReviewStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := s.ListReviews(r.Context())
		if err != nil {
			slog.Error("listing review items failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to list review items")
			return
		}

		q := r.URL.Query()
		if keyword, tag := q.Get("q"), q.Get("tag"); keyword != "" || tag != "" {
			items = analysis.Filter(items, keyword, tag)
		}

		response.JSON(w, items)
	}
}

// NewDeleteReviewHandler returns an http.HandlerFunc for DELETE /review/delete/{id}.
func NewDeleteReviewHandler(s ReviewStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "id must be an integer")
			return
		}

		if err := s.DeleteReview(r.Context(), id); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "NOT_FOUND", "Review item not found")
				return
			}
			slog.Error("deleting review item failed", "error", err, "id", id)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to delete review item")
			return
		}

		response.Success(w, "Deleted")
	}
}

// NewTagGraphHandler returns an http.HandlerFunc for GET /review/graph.
func NewTagGraphHandler(s ReviewStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := s.ListReviews(r.Context())
		if err != nil {
			slog.Error("listing review items failed", "error", err)
			response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to list review items")
			return
		}

		response.JSON(w, analysis.BuildTagGraph(items))
	}
}
