package favreviews

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/realisereallies/anime/internal/policy"
	"github.com/realisereallies/anime/internal/testutil"
	"github.com/realisereallies/anime/pkg/models"
)

type countingStore struct {
	Store
	calls atomic.Int32
}

func (s *countingStore) Create(ctx context.Context, fr models.FavoriteReview) error {
	s.calls.Add(1)
	return s.Store.Create(ctx, fr)
}

func (s *countingStore) ReviewExists(ctx context.Context, reviewID string) (bool, error) {
	s.calls.Add(1)
	return s.Store.ReviewExists(ctx, reviewID)
}

func (s *countingStore) IsFavorite(ctx context.Context, userID, reviewID string) (bool, error) {
	s.calls.Add(1)
	return s.Store.IsFavorite(ctx, userID, reviewID)
}

func (s *countingStore) Delete(ctx context.Context, scope policy.Scope, column, value string) (int64, error) {
	s.calls.Add(1)
	return s.Store.Delete(ctx, scope, column, value)
}

func newRouter(t *testing.T) (*gin.Engine, *Repo, *countingStore) {
	t.Helper()
	repo := NewRepo(testutil.NewDB(t))
	store := &countingStore{Store: repo}
	h := NewHandler(store, nil)
	gate := testutil.Gate(repo.DB)

	r := gin.New()
	h.RegisterSoftRoutes(r.Group("/api/favorite-reviews", gate.Optional()))
	h.RegisterProtectedRoutes(r.Group("/api/favorite-reviews", gate.Require()))
	return r, repo, store
}

func TestAddListAndCheck(t *testing.T) {
	r, repo, _ := newRouter(t)
	alice := testutil.CreateUser(t, repo.DB, "Alice", "a@x.com")
	bob := testutil.CreateUser(t, repo.DB, "Bob", "b@x.com")
	rv := testutil.CreateReview(t, repo.DB, alice.ID, "X", 5, time.Now())
	tok := testutil.Token(t, bob)

	var fr models.FavoriteReview
	if w := testutil.Do(r, http.MethodPost, "/api/favorite-reviews", tok, map[string]string{"reviewId": rv.ID}, &fr); w.Code != http.StatusOK {
		t.Fatalf("add: %d %s", w.Code, w.Body.String())
	}
	if fr.UserID != bob.ID || fr.ReviewID != rv.ID {
		t.Fatalf("unexpected favorite %+v", fr)
	}

	if w := testutil.Do(r, http.MethodPost, "/api/favorite-reviews", tok, map[string]string{"reviewId": rv.ID}, nil); w.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", w.Code)
	}
	if w := testutil.Do(r, http.MethodPost, "/api/favorite-reviews", tok, map[string]string{"reviewId": "missing"}, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing review: expected 404, got %d", w.Code)
	}

	var list struct {
		Items []models.FavoriteReviewView `json:"items"`
	}
	testutil.Do(r, http.MethodGet, "/api/favorite-reviews", tok, nil, &list)
	if len(list.Items) != 1 || list.Items[0].FavoriteID != fr.ID || list.Items[0].AuthorName != "Alice" {
		t.Fatalf("unexpected list %+v", list.Items)
	}

	var check struct {
		IsFavorite bool `json:"isFavorite"`
	}
	testutil.Do(r, http.MethodGet, "/api/favorite-reviews/check?reviewId="+rv.ID, tok, nil, &check)
	if !check.IsFavorite {
		t.Fatal("expected isFavorite for bob")
	}
	check.IsFavorite = true
	testutil.Do(r, http.MethodGet, "/api/favorite-reviews/check?reviewId="+rv.ID, testutil.Token(t, alice), nil, &check)
	if check.IsFavorite {
		t.Fatal("expected alice not to have it favorited")
	}
}

func TestCheckIsSoft(t *testing.T) {
	r, repo, store := newRouter(t)
	alice := testutil.CreateUser(t, repo.DB, "Alice", "a@x.com")

	var check map[string]any
	for _, tok := range []string{"", "broken"} {
		w := testutil.Do(r, http.MethodGet, "/api/favorite-reviews/check?reviewId=x", tok, nil, &check)
		if w.Code != http.StatusOK || check["isFavorite"] != false {
			t.Fatalf("anonymous check %q: %d %v", tok, w.Code, check)
		}
	}
	if store.calls.Load() != 0 {
		t.Fatalf("anonymous check touched the store %d times", store.calls.Load())
	}

	if w := testutil.Do(r, http.MethodGet, "/api/favorite-reviews/check", testutil.Token(t, alice), nil, nil); w.Code != http.StatusBadRequest {
		t.Fatalf("check without reviewId: expected 400, got %d", w.Code)
	}
}

func TestDeleteForeignFavoriteReviewAffectsNothing(t *testing.T) {
	r, repo, _ := newRouter(t)
	alice := testutil.CreateUser(t, repo.DB, "Alice", "a@x.com")
	bob := testutil.CreateUser(t, repo.DB, "Bob", "b@x.com")
	rv := testutil.CreateReview(t, repo.DB, alice.ID, "X", 5, time.Now())

	var fr models.FavoriteReview
	testutil.Do(r, http.MethodPost, "/api/favorite-reviews", testutil.Token(t, alice), map[string]string{"reviewId": rv.ID}, &fr)

	bobTok := testutil.Token(t, bob)
	if w := testutil.Do(r, http.MethodDelete, "/api/favorite-reviews/"+fr.ID, bobTok, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete by id: expected 404, got %d", w.Code)
	}
	if w := testutil.Do(r, http.MethodDelete, "/api/favorite-reviews?reviewId="+rv.ID, bobTok, nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("foreign delete by review: expected 404, got %d", w.Code)
	}

	bobID := bob.Identity()
	n, err := repo.Delete(context.Background(), policy.ScopeQuery(&bobID, policy.KindFavoriteReview), "id", fr.ID)
	if err != nil || n != 0 {
		t.Fatalf("repo foreign delete: n=%d err=%v", n, err)
	}
	if c := testutil.Count(t, repo.DB, `SELECT COUNT(*) FROM favorite_reviews`); c != 1 {
		t.Fatalf("expected alice's row to survive, got %d rows", c)
	}

	if w := testutil.Do(r, http.MethodDelete, "/api/favorite-reviews?reviewId="+rv.ID, testutil.Token(t, alice), nil, nil); w.Code != http.StatusOK {
		t.Fatalf("owner delete: expected 200, got %d", w.Code)
	}
}

func TestProtectedRoutesRejectBeforeStore(t *testing.T) {
	r, _, store := newRouter(t)
	for _, tok := range []string{"", "x.y.z"} {
		if w := testutil.Do(r, http.MethodPost, "/api/favorite-reviews", tok, map[string]string{"reviewId": "r"}, nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("add %q: expected 401, got %d", tok, w.Code)
		}
		if w := testutil.Do(r, http.MethodDelete, "/api/favorite-reviews?reviewId=r", tok, nil, nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("delete %q: expected 401, got %d", tok, w.Code)
		}
	}
	if store.calls.Load() != 0 {
		t.Fatalf("expected 0 store calls, got %d", store.calls.Load())
	}
}
