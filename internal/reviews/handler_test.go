package reviews

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/realisereallies/anime/internal/activity"
	"github.com/realisereallies/anime/internal/policy"
	"github.com/realisereallies/anime/internal/testutil"
	"github.com/realisereallies/anime/pkg/models"
)

// countingStore counts every call that reaches the store.
type countingStore struct {
	Store
	calls   atomic.Int32
	deletes atomic.Int32
}

func (s *countingStore) Create(ctx context.Context, rv models.Review) error {
	s.calls.Add(1)
	return s.Store.Create(ctx, rv)
}

func (s *countingStore) GetView(ctx context.Context, id string) (*models.ReviewView, error) {
	s.calls.Add(1)
	return s.Store.GetView(ctx, id)
}

func (s *countingStore) List(ctx context.Context, f ListFilter) ([]models.ReviewView, error) {
	s.calls.Add(1)
	return s.Store.List(ctx, f)
}

func (s *countingStore) Owner(ctx context.Context, id string) (string, error) {
	s.calls.Add(1)
	return s.Store.Owner(ctx, id)
}

func (s *countingStore) Delete(ctx context.Context, scope policy.Scope, id string) (bool, error) {
	s.calls.Add(1)
	s.deletes.Add(1)
	return s.Store.Delete(ctx, scope, id)
}

func newRouter(t *testing.T) (*gin.Engine, *countingStore, *testutil.Recorder, *Repo) {
	t.Helper()
	db := testutil.NewDB(t)
	repo := NewRepo(db)
	store := &countingStore{Store: repo}
	rec := &testutil.Recorder{}
	h := NewHandler(store, rec)

	r := gin.New()
	g := r.Group("/api/reviews")
	h.RegisterPublicRoutes(g)
	h.RegisterProtectedRoutes(g.Group("", testutil.Gate(nil).Require()))
	return r, store, rec, repo
}

func TestCreateForcesOwnerFromIdentity(t *testing.T) {
	r, _, rec, repo := newRouter(t)
	alice := testutil.CreateUser(t, repo.DB, "Alice", "a@x.com")
	bob := testutil.CreateUser(t, repo.DB, "Bob", "b@x.com")

	var got models.ReviewView
	w := testutil.Do(r, http.MethodPost, "/api/reviews", testutil.Token(t, alice), map[string]any{
		"title": "T", "body": "B", "rating": 5, "animeTitle": "X",
		"userId": bob.ID, "user_id": bob.ID, "authorId": bob.ID,
	}, &got)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got.UserID != alice.ID || got.AuthorName != "Alice" {
		t.Fatalf("owner not forced: %+v", got)
	}

	stored, err := repo.GetView(context.Background(), got.ID)
	if err != nil || stored == nil || stored.UserID != alice.ID {
		t.Fatalf("stored review: %+v %v", stored, err)
	}
	if types := rec.Types(); len(types) != 1 || types[0] != activity.EventReviewCreated {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestCreateValidation(t *testing.T) {
	r, _, _, repo := newRouter(t)
	alice := testutil.CreateUser(t, repo.DB, "Alice", "a@x.com")
	tok := testutil.Token(t, alice)

	cases := []map[string]any{
		{"title": "T", "body": "B", "rating": 0, "animeTitle": "X"},
		{"title": "T", "body": "B", "rating": 6, "animeTitle": "X"},
		{"title": "T", "body": "B", "rating": -1, "animeTitle": "X"},
		{"title": "T", "body": "B", "rating": 3.5, "animeTitle": "X"},
		{"title": "", "body": "B", "rating": 3, "animeTitle": "X"},
		{"title": "T", "body": "  ", "rating": 3, "animeTitle": "X"},
		{"title": "T", "body": "B", "rating": 3},
	}
	for i, body := range cases {
		if w := testutil.Do(r, http.MethodPost, "/api/reviews", tok, body, nil); w.Code != http.StatusBadRequest {
			t.Fatalf("case %d: expected 400, got %d", i, w.Code)
		}
	}
	if n := testutil.Count(t, repo.DB, `SELECT COUNT(*) FROM reviews`); n != 0 {
		t.Fatalf("expected no reviews persisted, got %d", n)
	}
}

func TestMutationsWithoutTokenNeverReachStore(t *testing.T) {
	r, store, _, _ := newRouter(t)
	body := map[string]any{"title": "T", "body": "B", "rating": 5, "animeTitle": "X"}

	for _, tok := range []string{"", "garbage", "a.b.c"} {
		if w := testutil.Do(r, http.MethodPost, "/api/reviews", tok, body, nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("create %q: expected 401, got %d", tok, w.Code)
		}
		if w := testutil.Do(r, http.MethodDelete, "/api/reviews/some-id", tok, nil, nil); w.Code != http.StatusUnauthorized {
			t.Fatalf("delete %q: expected 401, got %d", tok, w.Code)
		}
	}
	if n := store.calls.Load(); n != 0 {
		t.Fatalf("expected 0 store calls, got %d", n)
	}
}

func TestDeleteByNonAuthorIsNotFound(t *testing.T) {
	r, store, _, repo := newRouter(t)
	alice := testutil.CreateUser(t, repo.DB, "Alice", "a@x.com")
	bob := testutil.CreateUser(t, repo.DB, "Bob", "b@x.com")
	rv := testutil.CreateReview(t, repo.DB, alice.ID, "X", 4, time.Now())

	if w := testutil.Do(r, http.MethodDelete, "/api/reviews/"+rv.ID, testutil.Token(t, bob), nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if n := testutil.Count(t, repo.DB, `SELECT COUNT(*) FROM reviews WHERE id = ?`, rv.ID); n != 1 {
		t.Fatal("foreign delete removed the review")
	}
	if w := testutil.Do(r, http.MethodDelete, "/api/reviews/missing", testutil.Token(t, bob), nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing review: expected 404, got %d", w.Code)
	}
	if n := store.deletes.Load(); n != 0 {
		t.Fatalf("denied deletes reached the store %d times", n)
	}
	if w := testutil.Do(r, http.MethodDelete, "/api/reviews/"+rv.ID, testutil.Token(t, alice), nil, nil); w.Code != http.StatusOK {
		t.Fatalf("owner delete: expected 200, got %d", w.Code)
	}
	if n := store.deletes.Load(); n != 1 {
		t.Fatalf("expected one store delete, got %d", n)
	}
}

func TestGetAndList(t *testing.T) {
	r, _, _, repo := newRouter(t)
	alice := testutil.CreateUser(t, repo.DB, "Alice", "a@x.com")
	rv := testutil.CreateReview(t, repo.DB, alice.ID, "X", 4, time.Now())

	var view models.ReviewView
	if w := testutil.Do(r, http.MethodGet, "/api/reviews/"+rv.ID, "", nil, &view); w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}
	if view.ID != rv.ID || view.AuthorName != "Alice" {
		t.Fatalf("unexpected view %+v", view)
	}
	if w := testutil.Do(r, http.MethodGet, "/api/reviews/missing", "", nil, nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing: expected 404, got %d", w.Code)
	}

	var page struct {
		Limit int                 `json:"limit"`
		Items []models.ReviewView `json:"items"`
	}
	if w := testutil.Do(r, http.MethodGet, "/api/reviews?limit=5&anime=X", "", nil, &page); w.Code != http.StatusOK {
		t.Fatalf("list: %d", w.Code)
	}
	if page.Limit != 5 || len(page.Items) != 1 {
		t.Fatalf("unexpected page %+v", page)
	}
}
