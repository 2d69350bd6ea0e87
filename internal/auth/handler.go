package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/realisereallies/anime/internal/apperr"
)

const (
	minPasswordLen = 6
	maxPasswordLen = 72 // bcrypt input limit
)

type UserStore interface {
	CreateUser(ctx context.Context, u User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	UpdatePasswordAndBumpTokenVersion(ctx context.Context, id string, passwordHash string) error
	BumpTokenVersion(ctx context.Context, id string) error
}

type Handler struct {
	Repo     UserStore
	Tokens   TokenService
	Gate     *Gate
	HashCost int
}

func NewHandler(repo UserStore, tokens TokenService, gate *Gate) *Handler {
	return &Handler{Repo: repo, Tokens: tokens, Gate: gate, HashCost: bcrypt.DefaultCost}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.register)
	rg.POST("/login", h.login)
	rg.POST("/change-password", h.Gate.Require(), h.changePassword)
	rg.POST("/logout", h.Gate.Require(), h.logout)
}

// RegisterMe mounts GET /me on an already protected group.
func (h *Handler) RegisterMe(rg *gin.RouterGroup) {
	rg.GET("/me", h.me)
}

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.Name == "" || req.Email == "" || req.Password == "" {
		apperr.Write(c, apperr.Validation("name, email and password are required"))
		return
	}
	if len(req.Name) > 100 {
		apperr.Write(c, apperr.Validation("name must be at most 100 chars"))
		return
	}
	if !strings.Contains(req.Email, "@") || len(req.Email) > 255 {
		apperr.Write(c, apperr.Validation("invalid email"))
		return
	}
	if len(req.Password) < minPasswordLen || len(req.Password) > maxPasswordLen {
		apperr.Write(c, apperr.Validation("password must be 6-72 chars"))
		return
	}

	ctx := c.Request.Context()
	existing, err := h.Repo.GetByEmail(ctx, req.Email)
	if err != nil {
		apperr.Write(c, apperr.Internal("registration failed", err))
		return
	}
	if existing != nil {
		apperr.Write(c, apperr.Conflict("email already exists"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.HashCost)
	if err != nil {
		apperr.Write(c, apperr.Internal("registration failed", err))
		return
	}

	u := User{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := h.Repo.CreateUser(ctx, u); err != nil {
		// lost a race with a concurrent registration
		if apperr.IsUniqueViolation(err) {
			apperr.Write(c, apperr.Conflict("email already exists"))
			return
		}
		apperr.Write(c, apperr.Internal("registration failed", err))
		return
	}

	h.respondWithToken(c, &u)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		apperr.Write(c, apperr.Validation("email and password required"))
		return
	}

	u, err := h.Repo.GetByEmail(c.Request.Context(), email)
	if err != nil {
		apperr.Write(c, apperr.Internal("login failed", err))
		return
	}
	// same answer for unknown email and wrong password
	if u == nil || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		apperr.Write(c, apperr.Unauthorized("invalid credentials"))
		return
	}

	h.respondWithToken(c, u)
}

func (h *Handler) respondWithToken(c *gin.Context, u *User) {
	token, exp, err := h.Tokens.Sign(u.Identity())
	if err != nil {
		apperr.Write(c, apperr.Internal("token failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"id":    u.ID,
			"name":  u.Name,
			"email": u.Email,
		},
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) changePassword(c *gin.Context) {
	id := MustGetIdentity(c)
	if id == nil {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	var req changePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		apperr.Write(c, apperr.Validation("invalid json"))
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		apperr.Write(c, apperr.Validation("old and new password required"))
		return
	}
	if len(req.NewPassword) < minPasswordLen || len(req.NewPassword) > maxPasswordLen {
		apperr.Write(c, apperr.Validation("password must be 6-72 chars"))
		return
	}

	ctx := c.Request.Context()
	u, err := h.Repo.GetByID(ctx, id.UserID)
	if err != nil {
		apperr.Write(c, apperr.Internal("update password failed", err))
		return
	}
	if u == nil {
		apperr.Write(c, apperr.Unauthorized("invalid token"))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.OldPassword)); err != nil {
		apperr.Write(c, apperr.Unauthorized("invalid credentials"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), h.HashCost)
	if err != nil {
		apperr.Write(c, apperr.Internal("update password failed", err))
		return
	}
	if err := h.Repo.UpdatePasswordAndBumpTokenVersion(ctx, u.ID, string(hash)); err != nil {
		apperr.Write(c, apperr.Internal("update password failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "password updated"})
}

func (h *Handler) logout(c *gin.Context) {
	id := MustGetIdentity(c)
	if id == nil {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}

	if err := h.Repo.BumpTokenVersion(c.Request.Context(), id.UserID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			apperr.Write(c, apperr.Unauthorized("invalid token"))
			return
		}
		apperr.Write(c, apperr.Internal("logout failed", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}

func (h *Handler) me(c *gin.Context) {
	id := MustGetIdentity(c)
	if id == nil {
		apperr.Write(c, apperr.Unauthorized("unauthorized"))
		return
	}
	c.JSON(http.StatusOK, id)
}
