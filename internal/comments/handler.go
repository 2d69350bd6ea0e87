package comments

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

const maxContentLen = 2000

type Store interface {
	ReviewExists(ctx context.Context, reviewID string) (bool, error)
	Create(ctx context.Context, cm models.Comment) error
	ListByReview(ctx context.Context, reviewID string, limit, offset int) ([]models.Comment, error)
	Owner(ctx context.Context, id string) (string, error)
	Delete(ctx context.Context, scope policy.Scope, id string) (bool, error)
}

type Handler struct {
	Repo   Store
	Events activity.Publisher
}

func NewHandler(repo Store, events activity.Publisher) *Handler {
	return &Handler{Repo: repo, Events: activity.OrNop(events)}
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.add)
	rg.DELETE("/:id", h.delete)
}

type addReq struct {
	Content  string `json:"content"`
	ReviewID string `json:"reviewId"`
}

func (h *Handler) add(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if !policy.CanMutate(id, policy.ActionCreate, policy.ResourceRef{Kind: policy.KindComment}) {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	var req addReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return
	}
	content := strings.TrimSpace(req.Content)
	reviewID := strings.TrimSpace(req.ReviewID)
	if content == "" || reviewID == "" {
		apperr.Write(c, apperr.Validation("content and reviewId are required"))
		return
	}
	if len(content) > maxContentLen {
		apperr.Write(c, apperr.Validation("content must be at most 2000 chars"))
		return
	}

	ctx := c.Request.Context()
	ok, err := h.Repo.ReviewExists(ctx, reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("create failed", err))
		return
	}
	if !ok {
		apperr.Write(c, apperr.NotFound("review not found"))
		return
	}

	cm := models.Comment{
		ID:         uuid.NewString(),
		Content:    content,
		ReviewID:   reviewID,
		UserID:     policy.OwnerOf(id),
		AuthorName: id.Name,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Repo.Create(ctx, cm); err != nil {
		// review deleted between the check and the insert
		if apperr.IsForeignKeyViolation(err) {
			apperr.Write(c, apperr.NotFound("review not found"))
			return
		}
		apperr.Write(c, apperr.Internal("create failed", err))
		return
	}

	h.Events.Publish(activity.Event{
		Type:     activity.EventCommentCreated,
		UserID:   cm.UserID,
		ReviewID: cm.ReviewID,
		At:       cm.CreatedAt,
	})
	c.JSON(http.StatusOK, cm)
}

func (h *Handler) list(c *gin.Context) {
	reviewID := strings.TrimSpace(c.Query("reviewId"))
	if reviewID == "" {
		apperr.Write(c, apperr.Validation("reviewId required"))
		return
	}

	limit, offset := reviews.ClampPage(reviews.ParseInt(c.Query("limit"), 50), reviews.ParseInt(c.Query("offset"), 0))
	items, err := h.Repo.ListByReview(c.Request.Context(), reviewID, limit, offset)
	if err != nil {
		apperr.Write(c, apperr.Internal("list failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"limit":  limit,
		"offset": offset,
		"items":  items,
	})
}

func (h *Handler) delete(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if id == nil {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	commentID := strings.TrimSpace(c.Param("id"))
	ctx := c.Request.Context()
	owner, err := h.Repo.Owner(ctx, commentID)
	if err != nil {
		apperr.Write(c, apperr.Internal("delete failed", err))
		return
	}
	if !policy.CanMutate(id, policy.ActionDelete, policy.ResourceRef{Kind: policy.KindComment, ID: commentID, OwnerID: owner}) {
		apperr.Write(c, apperr.NotFound("comment not found"))
		return
	}

	ok, err := h.Repo.Delete(ctx, policy.ScopeQuery(id, policy.KindComment), commentID)
	if err != nil {
		apperr.Write(c, apperr.Internal("delete failed", err))
		return
	}
	if !ok {
		apperr.Write(c, apperr.NotFound("comment not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}
