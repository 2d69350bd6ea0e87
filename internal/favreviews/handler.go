package favreviews

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/realisereallies/anime/internal/activity"
	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/internal/policy"
	"github.com/realisereallies/anime/internal/reviews"
	"github.com/realisereallies/anime/pkg/models"
)

type Store interface {
	ReviewExists(ctx context.Context, reviewID string) (bool, error)
	IsFavorite(ctx context.Context, userID, reviewID string) (bool, error)
	Create(ctx context.Context, fr models.FavoriteReview) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.FavoriteReviewView, error)
	Owner(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, scope policy.Scope, column, value string) (int64, error)
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
	rg.GET("/check", h.check)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.POST("", h.add)
	rg.DELETE("", h.remove)
	rg.DELETE("/:id", h.remove)
}

type addReq struct {
	ReviewID string `json:"reviewId"`
}

func (h *Handler) list(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if id == nil {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	items, err := h.Repo.ListByUser(c.Request.Context(), id.UserID, reviews.ParseInt(c.Query("limit"), reviews.MaxLimit))
	if err != nil {
		apperr.Write(c, apperr.Internal("list failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) add(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if !policy.CanMutate(id, policy.ActionCreate, policy.ResourceRef{Kind: policy.KindFavoriteReview}) {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	var req addReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return
	}
	reviewID := strings.TrimSpace(req.ReviewID)
	if reviewID == "" {
		apperr.Write(c, apperr.Validation("reviewId required"))
		return
	}

	ctx := c.Request.Context()
	owner := policy.OwnerOf(id)

	ok, err := h.Repo.ReviewExists(ctx, reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("save failed", err))
		return
	}
	if !ok {
		apperr.Write(c, apperr.NotFound("review not found"))
		return
	}

	dup, err := h.Repo.IsFavorite(ctx, owner, reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("save failed", err))
		return
	}
	if dup {
		apperr.Write(c, apperr.Conflict("review already in favorites"))
		return
	}

	fr := models.FavoriteReview{
		ID:        uuid.NewString(),
		ReviewID:  reviewID,
		UserID:    owner,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.Repo.Create(ctx, fr); err != nil {
		if k := apperr.KindOf(err); k == apperr.KindConflict || k == apperr.KindNotFound {
			apperr.Write(c, err)
			return
		}
		apperr.Write(c, apperr.Internal("save failed", err))
		return
	}

	h.Events.Publish(activity.Event{Type: activity.EventFavReviewAdded, UserID: owner, ReviewID: reviewID, At: fr.CreatedAt})
	c.JSON(http.StatusOK, fr)
}

// remove accepts either the favorite id in the path or the review id in
// the query. Both are scoped to the caller.
func (h *Handler) remove(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if id == nil {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	column, value := "id", strings.TrimSpace(c.Param("id"))
	if value == "" {
		column, value = "review_id", strings.TrimSpace(c.Query("reviewId"))
	}
	if value == "" {
		apperr.Write(c, apperr.Validation("reviewId required"))
		return
	}

	ctx := c.Request.Context()
	// the reviewId form is keyed on the caller already; only a bare row
	// id needs its owner looked up
	if column == "id" {
		owner, err := h.Repo.Owner(ctx, value)
		if err != nil {
			apperr.Write(c, apperr.Internal("delete failed", err))
			return
		}
		if !policy.CanMutate(id, policy.ActionDelete, policy.ResourceRef{Kind: policy.KindFavoriteReview, ID: value, OwnerID: owner}) {
			apperr.Write(c, apperr.NotFound("favorite review not found"))
			return
		}
	}

	n, err := h.Repo.Delete(ctx, policy.ScopeQuery(id, policy.KindFavoriteReview), column, value)
	if err != nil {
		apperr.Write(c, apperr.Internal("delete failed", err))
		return
	}
	if n == 0 {
		apperr.Write(c, apperr.NotFound("favorite review not found"))
		return
	}

	h.Events.Publish(activity.Event{Type: activity.EventFavReviewRemoved, UserID: id.UserID})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) check(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"isFavorite": false})
		return
	}

	reviewID := strings.TrimSpace(c.Query("reviewId"))
	if reviewID == "" {
		apperr.Write(c, apperr.Validation("reviewId required"))
		return
	}

	fav, err := h.Repo.IsFavorite(c.Request.Context(), id.UserID, reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("check failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"isFavorite": fav})
}
