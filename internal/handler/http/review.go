package http

import (
	"context"
	"log/slog"
	"math"
	"net/http"

	"github.com/mcplist/directory/internal/domain"
	"github.com/mcplist/directory/internal/identity"
	"github.com/mcplist/directory/internal/service"
	apperrors "github.com/mcplist/directory/pkg/errors"
	"github.com/mcplist/directory/pkg/httputil"
	"github.com/mcplist/directory/pkg/pagination"
	"github.com/mcplist/directory/pkg/validator"
)

// ReviewService is the review behaviour the handlers depend on.
type ReviewService interface {
	Submit(ctx context.Context, input *service.SubmitReviewInput) (*service.SubmitReviewResult, error)
	Delete(ctx context.Context, itemID, userID string) (domain.ReviewStats, error)
	List(ctx context.Context, itemID string, page pagination.Params) (*service.ReviewPage, error)
	GetOwn(ctx context.Context, itemID, userID string) (*domain.Review, error)
}

// ReviewHandler handles HTTP requests for review endpoints.
type ReviewHandler struct {
	service ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request / response DTOs ---

// SubmitReviewRequest is the JSON body for POST /api/reviews. Rating is
// decoded as a number so fractional values get a validation error rather
// than a decode error.
type SubmitReviewRequest struct {
	ItemID   string   `json:"itemId"`
	ServerID string   `json:"serverId"`
	Rating   *float64 `json:"rating"`
	Title    string   `json:"title" validate:"max=100"`
	Content  string   `json:"content" validate:"max=1000"`
}

func (req SubmitReviewRequest) itemID() string {
	if req.ItemID != "" {
		return req.ItemID
	}
	return req.ServerID
}

// rating returns 0, which the service rejects, for anything that is not a
// whole star count.
func (req SubmitReviewRequest) rating() int {
	if req.Rating == nil {
		return 0
	}
	r := *req.Rating
	if r != math.Trunc(r) || r < domain.MinRating || r > domain.MaxRating {
		return 0
	}
	return int(r)
}

type reviewMutationResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Stats   domain.ReviewStats `json:"stats"`
}

type ownReviewResponse struct {
	Review *domain.Review `json:"review"`
}

// --- Handlers ---

// List handles GET /api/reviews?itemId=&page=&limit=. Storage failures are
// logged and served as an empty page.
func (h *ReviewHandler) List(w http.ResponseWriter, r *http.Request) {
	itemID := itemIDParam(r.URL.Query())
	page := pagination.FromRequest(r)

	result, err := h.service.List(r.Context(), itemID, page)
	if err != nil {
		if apperrors.HTTPStatus(err) < http.StatusInternalServerError {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		requestLogger(r, h.logger).ErrorContext(r.Context(), "list reviews failed, serving empty page",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		result = &service.ReviewPage{
			Reviews:    []domain.Review{},
			Stats:      domain.EmptyReviewStats(itemID),
			Pagination: pagination.NewMeta(page, 0),
		}
	}

	httputil.WriteJSON(w, http.StatusOK, result)
}

// Submit handles POST /api/reviews.
func (h *ReviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	author, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("Authentication required"), h.logger)
		return
	}

	var req SubmitReviewRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	result, err := h.service.Submit(r.Context(), &service.SubmitReviewInput{
		ItemID:  req.itemID(),
		Author:  author,
		Rating:  req.rating(),
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	message := "Review updated"
	if result.Created {
		message = "Review submitted"
	}

	httputil.WriteJSON(w, http.StatusOK, reviewMutationResponse{
		Success: true,
		Message: message,
		Stats:   result.Stats,
	})
}

// Delete handles DELETE /api/reviews?itemId=.
func (h *ReviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	author, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("Authentication required"), h.logger)
		return
	}

	stats, err := h.service.Delete(r.Context(), itemIDParam(r.URL.Query()), author.UserID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, reviewMutationResponse{
		Success: true,
		Message: "Review deleted",
		Stats:   stats,
	})
}

// GetOwn handles GET /api/reviews/self?itemId=. Anonymous callers get a null
// review.
func (h *ReviewHandler) GetOwn(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, ownReviewResponse{})
		return
	}

	itemID := itemIDParam(r.URL.Query())
	review, err := h.service.GetOwn(r.Context(), itemID, caller.UserID)
	if err != nil {
		if apperrors.HTTPStatus(err) < http.StatusInternalServerError {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		requestLogger(r, h.logger).ErrorContext(r.Context(), "get own review failed, serving null",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}

	httputil.WriteJSON(w, http.StatusOK, ownReviewResponse{Review: review})
}
