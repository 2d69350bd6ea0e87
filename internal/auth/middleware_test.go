package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type countingVersions struct {
	calls   atomic.Int32
	version int
	err     error
}

func (v *countingVersions) GetTokenVersion(ctx context.Context, userID string) (int, error) {
	v.calls.Add(1)
	return v.version, v.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func newGateRouter(g *Gate, mode Mode) *gin.Engine {
	r := gin.New()
	r.GET("/x", g.Middleware(mode), func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"anonymous": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id.UserID})
	})
	return r
}

func doGate(r http.Handler, header string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var body map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	return w, body
}

func mustSign(t *testing.T, ts TokenService, id Identity) string {
	t.Helper()
	tok, _, err := ts.Sign(id)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"bearer abc", "", false},
		{"Basic abc", "", false},
		{"abc", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := BearerToken(tc.header)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%q: got %q, %v", tc.header, got, err)
		}
		if !tc.ok && !errors.Is(err, ErrMissingToken) {
			t.Fatalf("%q: expected ErrMissingToken, got %v", tc.header, err)
		}
	}
}

func TestRequiredRejectsWithoutConsultingStore(t *testing.T) {
	versions := &countingVersions{version: 2}
	r := newGateRouter(NewGate(testTokens, versions), Required)

	expired := testTokens
	expired.Duration = -time.Minute

	cases := []struct {
		name   string
		header string
		code   string
	}{
		{"absent", "", "token_missing"},
		{"wrong scheme", "Token abc", "token_missing"},
		{"empty bearer", "Bearer ", "token_missing"},
		{"garbage", "Bearer not-a-jwt", "token_invalid"},
		{"expired", "Bearer " + mustSign(t, expired, sampleIdentity()), "token_expired"},
	}
	for _, tc := range cases {
		w, body := doGate(r, tc.header)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", tc.name, w.Code)
		}
		if body["code"] != tc.code {
			t.Fatalf("%s: expected code %q, got %v", tc.name, tc.code, body["code"])
		}
		if body["error"] == "" || body["error"] == nil {
			t.Fatalf("%s: expected error message", tc.name)
		}
	}
	if n := versions.calls.Load(); n != 0 {
		t.Fatalf("expected no version lookups for rejected tokens, got %d", n)
	}
}

func TestRequiredAcceptsValidToken(t *testing.T) {
	versions := &countingVersions{version: 2}
	r := newGateRouter(NewGate(testTokens, versions), Required)

	w, body := doGate(r, "Bearer "+mustSign(t, testTokens, sampleIdentity()))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if body["id"] != "u-1" {
		t.Fatalf("unexpected body %v", body)
	}
	if versions.calls.Load() != 1 {
		t.Fatalf("expected one version lookup, got %d", versions.calls.Load())
	}
}

func TestRequiredRejectsRevokedToken(t *testing.T) {
	tok := mustSign(t, testTokens, sampleIdentity())

	for name, versions := range map[string]*countingVersions{
		"bumped":  {version: 3},
		"deleted": {err: ErrUserNotFound},
	} {
		r := newGateRouter(NewGate(testTokens, versions), Required)
		w, body := doGate(r, "Bearer "+tok)
		if w.Code != http.StatusUnauthorized || body["code"] != "token_revoked" {
			t.Fatalf("%s: expected 401 token_revoked, got %d %v", name, w.Code, body)
		}
	}
}

func TestVersionStoreFailureIsServerError(t *testing.T) {
	tok := mustSign(t, testTokens, sampleIdentity())
	for _, mode := range []Mode{Required, Soft} {
		r := newGateRouter(NewGate(testTokens, &countingVersions{err: errors.New("db down")}), mode)
		w, body := doGate(r, "Bearer "+tok)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("mode %d: expected 500, got %d %v", mode, w.Code, body)
		}
		if _, ok := body["code"]; ok {
			t.Fatalf("mode %d: store failure must not carry a rejection code: %v", mode, body)
		}
	}
}

func TestSoftModeContinuesAnonymously(t *testing.T) {
	versions := &countingVersions{version: 2}
	r := newGateRouter(NewGate(testTokens, versions), Soft)

	for _, header := range []string{"", "Bearer junk", "Basic abc"} {
		w, body := doGate(r, header)
		if w.Code != http.StatusOK || body["anonymous"] != true {
			t.Fatalf("%q: expected anonymous 200, got %d %v", header, w.Code, body)
		}
	}
	if versions.calls.Load() != 0 {
		t.Fatalf("expected no version lookups, got %d", versions.calls.Load())
	}

	w, body := doGate(r, "Bearer "+mustSign(t, testTokens, sampleIdentity()))
	if w.Code != http.StatusOK || body["id"] != "u-1" {
		t.Fatalf("expected identity in soft mode, got %d %v", w.Code, body)
	}
}

func TestGateWithoutVersionSource(t *testing.T) {
	r := newGateRouter(NewGate(testTokens, nil), Required)
	w, _ := doGate(r, "Bearer "+mustSign(t, testTokens, sampleIdentity()))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
