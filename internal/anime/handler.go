package anime

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/internal/reviews"
	"github.com/realisereallies/anime/pkg/models"
)

type Store interface {
	Get(ctx context.Context, title string) (*models.AnimeSummary, error)
	Count(ctx context.Context, q ListQuery) (int, error)
	List(ctx context.Context, q ListQuery) ([]models.AnimeSummary, error)
}

type Handler struct {
	Repo Store
}

func NewHandler(repo Store) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)       // GET /api/anime
	rg.GET("/:title", h.get) // GET /api/anime/:title
}

func (h *Handler) list(c *gin.Context) {
	q := ListQuery{
		Q:      c.Query("q"),
		Sort:   c.Query("sort"),
		Limit:  reviews.ParseInt(c.Query("limit"), reviews.DefaultLimit),
		Offset: reviews.ParseInt(c.Query("offset"), 0),
	}
	if s := strings.TrimSpace(c.Query("minRating")); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 || v > 5 {
			apperr.Write(c, apperr.Validation("minRating must be between 0 and 5"))
			return
		}
		q.MinRating = v
	}
	q.Limit, q.Offset = reviews.ClampPage(q.Limit, q.Offset)

	ctx := c.Request.Context()
	total, err := h.Repo.Count(ctx, q)
	if err != nil {
		apperr.Write(c, apperr.Internal("count failed", err))
		return
	}

	items, err := h.Repo.List(ctx, q)
	if err != nil {
		apperr.Write(c, apperr.Internal("list failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  total,
		"limit":  q.Limit,
		"offset": q.Offset,
		"items":  items,
	})
}

func (h *Handler) get(c *gin.Context) {
	s, err := h.Repo.Get(c.Request.Context(), c.Param("title"))
	if err != nil {
		apperr.Write(c, apperr.Internal("get failed", err))
		return
	}
	if s == nil {
		apperr.Write(c, apperr.NotFound("anime not found"))
		return
	}
	c.JSON(http.StatusOK, s)
}
