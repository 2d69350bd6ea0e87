// Package stats serves the site-wide counters shown on the landing page.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) Stats(ctx context.Context) (models.Stats, error) {
	var (
		s   models.Stats
		avg sql.NullFloat64
	)
	err := r.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM reviews),
			(SELECT COUNT(DISTINCT LOWER(anime_title)) FROM reviews),
			(SELECT AVG(rating) FROM reviews),
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM favorite_reviews)
	`).Scan(&s.TotalReviews, &s.AnimeCount, &avg, &s.UserCount, &s.FavoriteReviewCount)
	if err != nil {
		return models.Stats{}, fmt.Errorf("stats: %w", err)
	}
	s.AverageRating = models.RoundRating(avg.Float64)
	return s, nil
}

type Source interface {
	Stats(ctx context.Context) (models.Stats, error)
}

type Handler struct {
	Repo Source
}

func NewHandler(repo Source) *Handler {
	return &Handler{Repo: repo}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.get)
}

func (h *Handler) get(c *gin.Context) {
	s, err := h.Repo.Stats(c.Request.Context())
	if err != nil {
		apperr.Write(c, apperr.Internal("stats failed", err))
		return
	}
	c.JSON(http.StatusOK, s)
}
