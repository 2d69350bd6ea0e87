package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const DefaultTokenDuration = 7 * 24 * time.Hour

var (
	ErrMissingToken   = errors.New("missing bearer token")
	ErrTokenMalformed = errors.New("malformed token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenRevoked   = errors.New("token revoked")
)

// Identity is the authenticated subject carried by a verified token.
type Identity struct {
	UserID       string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	TokenVersion int    `json:"-"`
}

type TokenService struct {
	Secret   []byte
	Issuer   string
	Duration time.Duration
}

type Claims struct {
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	TokenVersion int    `json:"token_version"`
	jwt.RegisteredClaims
}

func (ts TokenService) duration() time.Duration {
	if ts.Duration == 0 {
		return DefaultTokenDuration
	}
	return ts.Duration
}

func (ts TokenService) Sign(id Identity) (string, time.Time, error) {
	if len(ts.Secret) == 0 {
		return "", time.Time{}, errors.New("sign token: empty secret")
	}
	now := time.Now()
	exp := now.Add(ts.duration())

	claims := Claims{
		UserID:       id.UserID,
		Email:        id.Email,
		Name:         id.Name,
		TokenVersion: id.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.Issuer,
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString(ts.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return s, exp, nil
}

// Parse verifies a token and returns the identity it asserts. The error is
// always one of ErrTokenMalformed, ErrTokenExpired or ErrTokenInvalid.
func (ts TokenService) Parse(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if ts.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.Issuer))
	}

	tok, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.Secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}

	claims, ok := tok.Claims.(*Claims)
	if !ok || !tok.Valid {
		return nil, ErrTokenInvalid
	}
	return claims.identity()
}

func (c *Claims) identity() (*Identity, error) {
	id := &Identity{
		UserID:       strings.TrimSpace(c.UserID),
		Email:        strings.TrimSpace(c.Email),
		Name:         strings.TrimSpace(c.Name),
		TokenVersion: c.TokenVersion,
	}
	if id.UserID == "" || id.Email == "" || id.Name == "" {
		return nil, fmt.Errorf("%w: identity fields missing", ErrTokenMalformed)
	}
	if c.Subject != "" && c.Subject != id.UserID {
		return nil, fmt.Errorf("%w: subject mismatch", ErrTokenMalformed)
	}
	return id, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
