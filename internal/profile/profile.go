// Package profile assembles the signed-in user's profile page.
package profile

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/internal/reviews"
	"github.com/realisereallies/anime/pkg/models"
)

const recentLimit = 10

type Users interface {
	GetByID(ctx context.Context, id string) (*auth.User, error)
}

type Reviews interface {
	Summary(ctx context.Context, userID string) (int, float64, error)
	List(ctx context.Context, f reviews.ListFilter) ([]models.ReviewView, error)
}

type FavoriteReviews interface {
	ListByUser(ctx context.Context, userID string, limit int) ([]models.FavoriteReviewView, error)
}

type Favorites interface {
	Count(ctx context.Context, userID string) (int, error)
}

type Handler struct {
	Users           Users
	Reviews         Reviews
	FavoriteReviews FavoriteReviews
	Favorites       Favorites
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/profile", h.get)
}

func (h *Handler) Build(ctx context.Context, userID string) (*models.Profile, error) {
	u, err := h.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, apperr.Internal("profile failed", err)
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}

	p := &models.Profile{
		ID:       u.ID,
		Name:     u.Name,
		Email:    u.Email,
		JoinDate: u.CreatedAt,
	}

	var avg float64
	if p.TotalReviews, avg, err = h.Reviews.Summary(ctx, userID); err != nil {
		return nil, apperr.Internal("profile failed", err)
	}
	p.AverageRating = models.RoundRating(avg)

	if p.Reviews, err = h.Reviews.List(ctx, reviews.ListFilter{UserID: userID, Limit: recentLimit}); err != nil {
		return nil, apperr.Internal("profile failed", err)
	}
	if p.FavoriteReviews, err = h.FavoriteReviews.ListByUser(ctx, userID, recentLimit); err != nil {
		return nil, apperr.Internal("profile failed", err)
	}
	if p.FavoriteCount, err = h.Favorites.Count(ctx, userID); err != nil {
		return nil, apperr.Internal("profile failed", err)
	}
	return p, nil
}

func (h *Handler) get(c *gin.Context) {
	id := auth.MustGetIdentity(c)
	if id == nil {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	p, err := h.Build(c.Request.Context(), id.UserID)
	if err != nil {
		apperr.Write(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
