package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/realisereallies/anime/internal/apperr"
)

const (
	CtxIdentityKey = "auth_identity"
	bearerPrefix   = "Bearer "

	// CtxRejectionKey holds the RejectionCode of a refused request.
	CtxRejectionKey = "auth_rejection_code"
)

// Mode selects how a route reacts to missing or bad credentials.
type Mode int

const (
	// Required rejects the request with 401.
	Required Mode = iota
	// Soft lets the request through anonymously.
	Soft
)

// ErrVersionLookup means the token could not be checked against the
// store. It is a server fault, not a rejection.
var ErrVersionLookup = errors.New("token version lookup failed")

// VersionSource reports the current token version of a user. A token
// carrying an older version was revoked by logout or password change.
type VersionSource interface {
	GetTokenVersion(ctx context.Context, userID string) (int, error)
}

type Gate struct {
	Tokens   TokenService
	Versions VersionSource
}

func NewGate(tokens TokenService, versions VersionSource) *Gate {
	return &Gate{Tokens: tokens, Versions: versions}
}

// BearerToken extracts the credential from an Authorization header value.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMissingToken
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	if raw == "" {
		return "", ErrMissingToken
	}
	return raw, nil
}

func (g *Gate) Authorize(r *http.Request) (*Identity, error) {
	raw, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}
	id, err := g.Tokens.Parse(raw)
	if err != nil {
		return nil, err
	}
	if g.Versions != nil {
		current, err := g.Versions.GetTokenVersion(r.Context(), id.UserID)
		switch {
		case errors.Is(err, ErrUserNotFound):
			return nil, ErrTokenRevoked
		case err != nil:
			return nil, fmt.Errorf("%w: %w", ErrVersionLookup, err)
		case current != id.TokenVersion:
			return nil, ErrTokenRevoked
		}
	}
	return id, nil
}

func (g *Gate) Middleware(mode Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := g.Authorize(c.Request)
		if errors.Is(err, ErrVersionLookup) {
			apperr.Write(c, apperr.Internal("auth check failed", err))
			return
		}
		if err != nil {
			if mode == Soft {
				c.Next()
				return
			}
			code := RejectionCode(err)
			c.Set(CtxRejectionKey, code)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": rejectionMessage(err),
				"code":  code,
			})
			return
		}
		c.Set(CtxIdentityKey, id)
		c.Next()
	}
}

func (g *Gate) Require() gin.HandlerFunc  { return g.Middleware(Required) }
func (g *Gate) Optional() gin.HandlerFunc { return g.Middleware(Soft) }

// RejectionCode is the machine-readable reason sent with a 401.
func RejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "token_missing"
	case errors.Is(err, ErrTokenExpired):
		return "token_expired"
	case errors.Is(err, ErrTokenRevoked):
		return "token_revoked"
	default:
		return "token_invalid"
	}
}

func rejectionMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing bearer token"
	case errors.Is(err, ErrTokenExpired):
		return "token expired, please log in again"
	case errors.Is(err, ErrTokenRevoked):
		return "token revoked, please log in again"
	default:
		return "invalid token"
	}
}

func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(CtxIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok && id != nil
}

func MustGetIdentity(c *gin.Context) *Identity {
	id, _ := IdentityFrom(c)
	return id
}
