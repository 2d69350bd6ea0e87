// Package server assembles the HTTP router for the review API.
package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"

	"github.com/realisereallies/anime/internal/activity"
	"github.com/realisereallies/anime/internal/anime"
	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/internal/comments"
	"github.com/realisereallies/anime/internal/favorites"
	"github.com/realisereallies/anime/internal/favreviews"
	"github.com/realisereallies/anime/internal/metrics"
	"github.com/realisereallies/anime/internal/profile"
	"github.com/realisereallies/anime/internal/ratelimit"
	"github.com/realisereallies/anime/internal/reactions"
	"github.com/realisereallies/anime/internal/reviews"
	"github.com/realisereallies/anime/internal/stats"
	"github.com/realisereallies/anime/pkg/logger"
)

type Deps struct {
	DB     *sql.DB
	Tokens auth.TokenService

	// Optional. A nil Hub gets a fresh one, a nil Limiter disables rate
	// limiting, a nil Metrics drops /metrics.
	Hub      *activity.Hub
	Limiter  *ratelimit.Limiter
	Metrics  *metrics.Metrics
	Upgrader *websocket.Upgrader
}

func New(d Deps) *gin.Engine {
	if d.Hub == nil {
		d.Hub = activity.NewHub()
	}
	if d.Upgrader == nil {
		d.Upgrader = activity.NewUpgrader(true)
	}

	var events activity.Publisher = d.Hub
	if d.Metrics != nil {
		events = d.Metrics.Publisher(d.Hub)
	}

	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware())
	if d.Metrics != nil {
		router.Use(d.Metrics.Middleware())
		router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	authRepo := auth.NewRepo(d.DB)
	gate := auth.NewGate(d.Tokens, authRepo)
	limit := d.Limiter.Middleware()

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", readyHandler(d.DB))
	router.GET("/ws", gate.Optional(), activity.WSHandler(d.Hub, d.Upgrader))

	api := router.Group("/api")

	// Auth
	authHandler := auth.NewHandler(authRepo, d.Tokens, gate)
	authHandler.RegisterRoutes(api.Group("/auth", limit))
	authHandler.RegisterMe(api.Group("/users", gate.Require()))

	// Public read models
	stats.NewHandler(stats.NewRepo(d.DB)).RegisterRoutes(api)
	anime.NewHandler(anime.NewRepo(d.DB)).RegisterRoutes(api.Group("/anime"))

	reviewRepo := reviews.NewRepo(d.DB)
	reviewHandler := reviews.NewHandler(reviewRepo, events)
	reviewGroup := api.Group("/reviews")
	reviewHandler.RegisterPublicRoutes(reviewGroup)
	reviewHandler.RegisterProtectedRoutes(reviewGroup.Group("", gate.Require(), limit))

	commentHandler := comments.NewHandler(comments.NewRepo(d.DB), events)
	commentGroup := api.Group("/comments")
	commentHandler.RegisterPublicRoutes(commentGroup)
	commentHandler.RegisterProtectedRoutes(commentGroup.Group("", gate.Require(), limit))

	reactionHandler := reactions.NewHandler(reactions.NewRepo(d.DB), events)
	reactionHandler.RegisterSoftRoutes(api.Group("/likes", gate.Optional()))
	reactionHandler.RegisterProtectedRoutes(api.Group("/likes", gate.Require(), limit))

	favoriteRepo := favorites.NewRepo(d.DB)
	favorites.NewHandler(favoriteRepo, events).RegisterRoutes(api.Group("/favorites", gate.Require(), limit))

	favReviewRepo := favreviews.NewRepo(d.DB)
	favReviewHandler := favreviews.NewHandler(favReviewRepo, events)
	favReviewHandler.RegisterSoftRoutes(api.Group("/favorite-reviews", gate.Optional()))
	favReviewHandler.RegisterProtectedRoutes(api.Group("/favorite-reviews", gate.Require(), limit))

	profileHandler := &profile.Handler{
		Users:           authRepo,
		Reviews:         reviewRepo,
		FavoriteReviews: favReviewRepo,
		Favorites:       favoriteRepo,
	}
	profileHandler.RegisterRoutes(api.Group("", gate.Require()))

	return router
}

// readyHandler pings the database. The failure cause is only logged.
func readyHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			logger.FromContext(c.Request.Context()).Error().Err(err).Msg("readiness check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}

// WithCORS wraps h so browsers on origins may call the API with a bearer
// token.
func WithCORS(h http.Handler, origins []string) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", logger.RequestIDHeader},
		ExposedHeaders: []string{logger.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
	}).Handler(h)
}
