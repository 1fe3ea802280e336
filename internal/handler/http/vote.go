package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/mcplist/directory/internal/domain"
	"github.com/mcplist/directory/internal/identity"
	"github.com/mcplist/directory/internal/service"
	apperrors "github.com/mcplist/directory/pkg/errors"
	"github.com/mcplist/directory/pkg/httputil"
	"github.com/mcplist/directory/pkg/validator"
)

// VoteService is the vote behaviour the handlers depend on.
type VoteService interface {
	Cast(ctx context.Context, itemID, userID, voteType string) (*service.CastVoteResult, error)
	Counts(ctx context.Context, itemID string) (domain.VoteCounts, error)
	UserVote(ctx context.Context, itemID, userID string) (*domain.Direction, error)
}

// VoteHandler handles HTTP requests for vote endpoints.
type VoteHandler struct {
	service VoteService
	logger  *slog.Logger
}

// NewVoteHandler creates a new vote HTTP handler.
func NewVoteHandler(svc VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{
		service: svc,
		logger:  logger,
	}
}

// CastVoteRequest is the JSON body for POST /api/votes.
type CastVoteRequest struct {
	ItemID   string `json:"itemId"`
	ServerID string `json:"serverId"`
	VoteType string `json:"voteType"`
}

func (req CastVoteRequest) itemID() string {
	if req.ItemID != "" {
		return req.ItemID
	}
	return req.ServerID
}

type castVoteResponse struct {
	domain.VoteCounts
	UserVote *domain.Direction `json:"userVote"`
}

type userVoteResponse struct {
	UserVote *domain.Direction `json:"userVote"`
}

// Counts handles GET /api/votes?itemId=. Storage failures are logged and
// served as zero counts.
func (h *VoteHandler) Counts(w http.ResponseWriter, r *http.Request) {
	itemID := itemIDParam(r.URL.Query())

	counts, err := h.service.Counts(r.Context(), itemID)
	if err != nil {
		if apperrors.HTTPStatus(err) < http.StatusInternalServerError {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		requestLogger(r, h.logger).ErrorContext(r.Context(), "get vote counts failed, serving zeros",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
		counts = domain.NewVoteCounts(itemID, 0, 0)
	}

	httputil.WriteJSON(w, http.StatusOK, counts)
}

// Cast handles POST /api/votes.
func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("Authentication required"), h.logger)
		return
	}

	var req CastVoteRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	result, err := h.service.Cast(r.Context(), req.itemID(), caller.UserID, req.VoteType)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, castVoteResponse{
		VoteCounts: result.Counts,
		UserVote:   result.UserVote,
	})
}

// UserVote handles GET /api/votes/self?itemId=. Anonymous callers get a
// null vote.
func (h *VoteHandler) UserVote(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity.FromContext(r.Context())
	if !ok {
		httputil.WriteJSON(w, http.StatusOK, userVoteResponse{})
		return
	}

	itemID := itemIDParam(r.URL.Query())
	vote, err := h.service.UserVote(r.Context(), itemID, caller.UserID)
	if err != nil {
		if apperrors.HTTPStatus(err) < http.StatusInternalServerError {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		requestLogger(r, h.logger).ErrorContext(r.Context(), "get user vote failed, serving null",
			slog.String("item_id", itemID),
			slog.String("error", err.Error()),
		)
	}

	httputil.WriteJSON(w, http.StatusOK, userVoteResponse{UserVote: vote})
}
