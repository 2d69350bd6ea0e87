package stats

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/realisereallies/anime/internal/testutil"
	"github.com/realisereallies/anime/pkg/models"
)

func TestStatsEmpty(t *testing.T) {
	repo := NewRepo(testutil.NewDB(t))
	s, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s != (models.Stats{}) {
		t.Fatalf("expected zero stats, got %+v", s)
	}
}

func TestStatsEndpoint(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.CreateUser(t, db, "A", "a@x.com")
	b := testutil.CreateUser(t, db, "B", "b@x.com")
	rv := testutil.CreateReview(t, db, a.ID, "Frieren", 5, time.Now())
	testutil.CreateReview(t, db, b.ID, "FRIEREN", 4, time.Now())
	testutil.CreateReview(t, db, b.ID, "Akira", 4, time.Now())
	if _, err := db.Exec(`INSERT INTO favorite_reviews (id, review_id, user_id) VALUES ('f1', ?, ?)`, rv.ID, b.ID); err != nil {
		t.Fatalf("favorite: %v", err)
	}

	r := gin.New()
	NewHandler(NewRepo(db)).RegisterRoutes(r.Group("/api"))

	var s models.Stats
	if w := testutil.Do(r, http.MethodGet, "/api/stats", "", nil, &s); w.Code != http.StatusOK {
		t.Fatalf("stats: %d", w.Code)
	}
	want := models.Stats{TotalReviews: 3, AnimeCount: 2, AverageRating: 4.3, UserCount: 2, FavoriteReviewCount: 1}
	if s != want {
		t.Fatalf("got %+v, want %+v", s, want)
	}
}

func TestRoundRating(t *testing.T) {
	cases := map[float64]float64{0: 0, 4.333: 4.3, 4.26: 4.3, 4.96: 5, 2.04: 2}
	for in, want := range cases {
		if got := models.RoundRating(in); got != want {
			t.Fatalf("RoundRating(%v) = %v, want %v", in, got, want)
		}
	}
}
