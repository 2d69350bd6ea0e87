package favorites

import (
	"context"
	"net/http"
	"net/url"
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
	ExistsByTitle(ctx context.Context, userID, animeTitle string) (bool, error)
	Create(ctx context.Context, f models.Favorite) error
	ListByUser(ctx context.Context, userID string) ([]models.Favorite, error)
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

// RegisterRoutes mounts every favorites route; the group must require
// an identity.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.list)
	rg.POST("", h.add)
	rg.DELETE("", h.remove)
	rg.DELETE("/:id", h.remove)
}

type addReq struct {
	AnimeTitle string `json:"animeTitle"`
	PosterURL  string `json:"posterUrl"`
}

func (h *Handler) list(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if id == nil {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	items, err := h.Repo.ListByUser(c.Request.Context(), id.UserID)
	if err != nil {
		apperr.Write(c, apperr.Internal("list failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (h *Handler) add(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if !policy.CanMutate(id, policy.ActionCreate, policy.ResourceRef{Kind: policy.KindFavorite}) {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	var req addReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return
	}
	title := strings.TrimSpace(req.AnimeTitle)
	if title == "" {
		apperr.Write(c, apperr.Validation("animeTitle required"))
		return
	}
	poster := strings.TrimSpace(req.PosterURL)
	if poster != "" {
		if u, err := url.Parse(poster); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			apperr.Write(c, apperr.Validation("posterUrl must be an http(s) url"))
			return
		}
	}

	ctx := c.Request.Context()
	owner := policy.OwnerOf(id)
	exists, err := h.Repo.ExistsByTitle(ctx, owner, title)
	if err != nil {
		apperr.Write(c, apperr.Internal("save failed", err))
		return
	}
	if exists {
		apperr.Write(c, apperr.Conflict("anime already in favorites"))
		return
	}

	f := models.Favorite{
		ID:         uuid.NewString(),
		AnimeTitle: title,
		PosterURL:  poster,
		UserID:     owner,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Repo.Create(ctx, f); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			apperr.Write(c, err)
			return
		}
		apperr.Write(c, apperr.Internal("save failed", err))
		return
	}

	h.Events.Publish(activity.Event{Type: activity.EventFavoriteAdded, UserID: owner, AnimeTitle: title, At: f.CreatedAt})
	c.JSON(http.StatusOK, f)
}

func (h *Handler) remove(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if id == nil {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	favID := strings.TrimSpace(c.Param("id"))
	if favID == "" {
		favID = strings.TrimSpace(c.Query("id"))
	}
	if favID == "" {
		apperr.Write(c, apperr.Validation("id required"))
		return
	}

	ctx := c.Request.Context()
	owner, err := h.Repo.Owner(ctx, favID)
	if err != nil {
		apperr.Write(c, apperr.Internal("delete failed", err))
		return
	}
	if !policy.CanMutate(id, policy.ActionDelete, policy.ResourceRef{Kind: policy.KindFavorite, ID: favID, OwnerID: owner}) {
		apperr.Write(c, apperr.NotFound("favorite not found"))
		return
	}

	ok, err := h.Repo.Delete(ctx, policy.ScopeQuery(id, policy.KindFavorite), favID)
	if err != nil {
		apperr.Write(c, apperr.Internal("delete failed", err))
		return
	}
	if !ok {
		apperr.Write(c, apperr.NotFound("favorite not found"))
		return
	}

	h.Events.Publish(activity.Event{Type: activity.EventFavoriteRemoved, UserID: id.UserID})
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}
