// Package testutil holds fixtures shared by handler and repo tests.
package testutil

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/realisereallies/anime/internal/activity"
	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/pkg/database"
	"github.com/realisereallies/anime/pkg/models"
)

var Tokens = auth.TokenService{
	Secret:   []byte("testutil-secret-0123456789"),
	Issuer:   "anime-test",
	Duration: time.Hour,
}

func init() {
	gin.SetMode(gin.TestMode)
}

func NewDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// CreateUser inserts a user with an unusable password hash.
func CreateUser(t testing.TB, db *sql.DB, name, email string) auth.User {
	t.Helper()
	u := auth.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: "x",
		CreatedAt:    time.Now().UTC(),
	}
	if err := auth.NewRepo(db).CreateUser(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func CreateReview(t testing.TB, db *sql.DB, userID, animeTitle string, rating int, at time.Time) models.Review {
	t.Helper()
	rv := models.Review{
		ID:         uuid.NewString(),
		Title:      "title " + animeTitle,
		Body:       "body",
		Rating:     rating,
		AnimeTitle: animeTitle,
		UserID:     userID,
		CreatedAt:  at.UTC(),
	}
	_, err := db.Exec(`
		INSERT INTO reviews (id, title, body, rating, anime_title, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rv.ID, rv.Title, rv.Body, rv.Rating, rv.AnimeTitle, rv.UserID, rv.CreatedAt)
	if err != nil {
		t.Fatalf("create review: %v", err)
	}
	return rv
}

func Token(t testing.TB, u auth.User) string {
	t.Helper()
	tok, _, err := Tokens.Sign(u.Identity())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

// Gate verifies Tokens and, when db is non-nil, token versions.
func Gate(db *sql.DB) *auth.Gate {
	if db == nil {
		return auth.NewGate(Tokens, nil)
	}
	return auth.NewGate(Tokens, auth.NewRepo(db))
}

// Do sends body as JSON and decodes the response into out when non-nil.
func Do(h http.Handler, method, path, token string, body any, out any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if out != nil {
		_ = json.Unmarshal(w.Body.Bytes(), out)
	}
	return w
}

func Count(t testing.TB, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

// Recorder is an activity publisher that keeps every event.
type Recorder struct {
	mu     sync.Mutex
	events []activity.Event
}

func (r *Recorder) Publish(ev activity.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}
