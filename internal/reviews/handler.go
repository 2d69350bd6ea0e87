package reviews

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/realisereallies/anime/internal/activity"
	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/internal/policy"
	"github.com/realisereallies/anime/pkg/models"
)

type Store interface {
	Create(ctx context.Context, rv models.Review) error
	GetView(ctx context.Context, id string) (*models.ReviewView, error)
	List(ctx context.Context, f ListFilter) ([]models.ReviewView, error)
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
	rg.GET("/:id", h.get)
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.create)
	rg.DELETE("/:id", h.delete)
}

// createReq has no owner field; any userId in the body is dropped by
// the decoder.
type createReq struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	Rating     int    `json:"rating"`
	AnimeTitle string `json:"animeTitle"`
}

const (
	maxTitleLen = 200
	maxBodyLen  = 10000
)

func (req *createReq) validate() error {
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	req.AnimeTitle = strings.TrimSpace(req.AnimeTitle)

	if req.Title == "" || req.Body == "" || req.AnimeTitle == "" || req.Rating == 0 {
		return apperr.Validation("title, body, rating and animeTitle are required")
	}
	if req.Rating < 1 || req.Rating > 5 {
		return apperr.Validation("rating must be between 1 and 5")
	}
	if len(req.Title) > maxTitleLen || len(req.AnimeTitle) > maxTitleLen {
		return apperr.Validation("title must be at most 200 chars")
	}
	if len(req.Body) > maxBodyLen {
		return apperr.Validation("body must be at most 10000 chars")
	}
	return nil
}

func (h *Handler) create(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if !policy.CanMutate(id, policy.ActionCreate, policy.ResourceRef{Kind: policy.KindReview}) {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return
	}
	if err := req.validate(); err != nil {
		apperr.Write(c, err)
		return
	}

	rv := models.Review{
		ID:         uuid.NewString(),
		Title:      req.Title,
		Body:       req.Body,
		Rating:     req.Rating,
		AnimeTitle: req.AnimeTitle,
		UserID:     policy.OwnerOf(id),
		CreatedAt:  time.Now().UTC(),
	}
	ctx := c.Request.Context()
	if err := h.Repo.Create(ctx, rv); err != nil {
		if apperr.IsForeignKeyViolation(err) {
			apperr.Write(c, apperr.Unauthorized("invalid token"))
			return
		}
		apperr.Write(c, apperr.Internal("create failed", err))
		return
	}

	h.Events.Publish(activity.Event{
		Type:       activity.EventReviewCreated,
		UserID:     rv.UserID,
		ReviewID:   rv.ID,
		AnimeTitle: rv.AnimeTitle,
		At:         rv.CreatedAt,
	})

	c.JSON(http.StatusOK, models.ReviewView{Review: rv, AuthorName: id.Name})
}

func (h *Handler) get(c *gin.Context) {
	reviewID := strings.TrimSpace(c.Param("id"))
	v, err := h.Repo.GetView(c.Request.Context(), reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("get failed", err))
		return
	}
	if v == nil {
		apperr.Write(c, apperr.NotFound("review not found"))
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) list(c *gin.Context) {
	limit, offset := ClampPage(ParseInt(c.Query("limit"), DefaultLimit), ParseInt(c.Query("offset"), 0))

	items, err := h.Repo.List(c.Request.Context(), ListFilter{
		AnimeTitle: c.Query("anime"),
		Limit:      limit,
		Offset:     offset,
	})
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

	reviewID := strings.TrimSpace(c.Param("id"))
	if reviewID == "" {
		apperr.Write(c, apperr.Validation("id required"))
		return
	}

	ctx := c.Request.Context()
	owner, err := h.Repo.Owner(ctx, reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("delete failed", err))
		return
	}
	// a foreign review is reported exactly like a missing one
	if !policy.CanMutate(id, policy.ActionDelete, policy.ResourceRef{Kind: policy.KindReview, ID: reviewID, OwnerID: owner}) {
		apperr.Write(c, apperr.NotFound("review not found"))
		return
	}

	ok, err := h.Repo.Delete(ctx, policy.ScopeQuery(id, policy.KindReview), reviewID)
	if err != nil {
		apperr.Write(c, apperr.Internal("delete failed", err))
		return
	}
	if !ok {
		apperr.Write(c, apperr.NotFound("review not found"))
		return
	}

	h.Events.Publish(activity.Event{Type: activity.EventReviewDeleted, UserID: id.UserID, ReviewID: reviewID})
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ParseInt returns def when s is empty or not a number.
func ParseInt(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
