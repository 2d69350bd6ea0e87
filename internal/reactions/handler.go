package reactions

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/realisereallies/anime/internal/activity"
	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/internal/policy"
	"github.com/realisereallies/anime/pkg/models"
)

type Store interface {
	ReviewExists(ctx context.Context, reviewID string) (bool, error)
	Counts(ctx context.Context, reviewID string) (likes, dislikes int, err error)
	State(ctx context.Context, userID, reviewID string) (policy.ReactionState, error)
	Set(ctx context.Context, userID, reviewID string, action policy.ReactionAction) (policy.ReactionState, error)
	Toggle(ctx context.Context, userID, reviewID string, kind policy.ReactionAction) (policy.ReactionState, error)
}

type Handler struct {
	Repo   Store
	Events activity.Publisher
}

func NewHandler(repo Store, events activity.Publisher) *Handler {
	return &Handler{Repo: repo, Events: activity.OrNop(events)}
}

// RegisterSoftRoutes expects the group to run the gate in soft mode.
func (h *Handler) RegisterSoftRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.summary)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.set)
	rg.POST("/toggle", h.toggle)
}

func (h *Handler) summary(c *gin.Context) {
	reviewID := strings.TrimSpace(c.Query("reviewId"))
	if reviewID == "" {
		apperr.Write(c, apperr.Validation("reviewId required"))
		return
	}

	ctx := c.Request.Context()
	out := models.ReactionSummary{ReviewID: reviewID}
	var err error
	out.Likes, out.Dislikes, err = h.Repo.Counts(ctx, reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("count failed", err))
		return
	}

	if id, ok := auth.IdentityFrom(c); ok {
		st, err := h.Repo.State(ctx, id.UserID, reviewID)
		if err != nil {
			apperr.Write(c, apperr.Internal("count failed", err))
			return
		}
		out.State = string(st)
	}
	c.JSON(http.StatusOK, out)
}

type setReq struct {
	ReviewID string `json:"reviewId"`
	Action   string `json:"action"`
}

type toggleReq struct {
	ReviewID string `json:"reviewId"`
	Kind     string `json:"kind"`
}

func (h *Handler) set(c *gin.Context) {
	var req setReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return
	}
	if strings.TrimSpace(req.ReviewID) == "" || strings.TrimSpace(req.Action) == "" {
		apperr.Write(c, apperr.Validation("reviewId and action are required"))
		return
	}
	action, err := policy.ParseAction(req.Action)
	if err != nil {
		apperr.Write(c, apperr.Validation("action must be like, dislike or remove"))
		return
	}

	h.mutate(c, strings.TrimSpace(req.ReviewID), func(ctx context.Context, userID, reviewID string) (policy.ReactionState, error) {
		return h.Repo.Set(ctx, userID, reviewID, action)
	})
}

func (h *Handler) toggle(c *gin.Context) {
	var req toggleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return
	}
	if strings.TrimSpace(req.ReviewID) == "" {
		apperr.Write(c, apperr.Validation("reviewId and kind are required"))
		return
	}
	kind, err := policy.ParseKind(req.Kind)
	if err != nil {
		apperr.Write(c, apperr.Validation("kind must be like or dislike"))
		return
	}

	h.mutate(c, strings.TrimSpace(req.ReviewID), func(ctx context.Context, userID, reviewID string) (policy.ReactionState, error) {
		return h.Repo.Toggle(ctx, userID, reviewID, kind)
	})
}

type mutation func(ctx context.Context, userID, reviewID string) (policy.ReactionState, error)

func (h *Handler) mutate(c *gin.Context, reviewID string, fn mutation) {
	id := auth.MustGetIdentity(c)
	if !policy.CanMutate(id, policy.ActionCreate, policy.ResourceRef{Kind: policy.KindLike}) {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	ctx := c.Request.Context()
	ok, err := h.Repo.ReviewExists(ctx, reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("reaction failed", err))
		return
	}
	if !ok {
		apperr.Write(c, apperr.NotFound("review not found"))
		return
	}

	st, err := fn(ctx, policy.OwnerOf(id), reviewID)
	if err != nil {
		if apperr.IsForeignKeyViolation(err) {
			apperr.Write(c, apperr.NotFound("review not found"))
			return
		}
		apperr.Write(c, apperr.Internal("reaction failed", err))
		return
	}

	out := models.ReactionSummary{ReviewID: reviewID, State: string(st)}
	out.Likes, out.Dislikes, err = h.Repo.Counts(ctx, reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("count failed", err))
		return
	}

	h.Events.Publish(activity.Event{
		Type:     activity.EventReactionChanged,
		UserID:   id.UserID,
		ReviewID: reviewID,
		State:    string(st),
	})
	c.JSON(http.StatusOK, out)
}
