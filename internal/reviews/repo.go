package reviews

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/realisereallies/anime/internal/policy"
	"github.com/realisereallies/anime/pkg/models"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ViewColumns are the review view columns in the order ScanView expects.
// They reference the aliases r (reviews) and u (users) of ViewFrom.
const ViewColumns = `r.id, r.title, r.body, r.rating, r.anime_title, r.user_id, r.created_at,
		u.name,
		(SELECT COUNT(*) FROM likes l WHERE l.review_id = r.id),
		(SELECT COUNT(*) FROM dislikes d WHERE d.review_id = r.id),
		(SELECT COUNT(*) FROM comments c WHERE c.review_id = r.id)`

const ViewFrom = `
	FROM reviews r
	JOIN users u ON u.id = r.user_id`

const ViewSelect = `
	SELECT ` + ViewColumns + ViewFrom

type Scanner interface {
	Scan(dest ...any) error
}

func ScanView(s Scanner, extra ...any) (models.ReviewView, error) {
	var v models.ReviewView
	dest := []any{
		&v.ID, &v.Title, &v.Body, &v.Rating, &v.AnimeTitle, &v.UserID, &v.CreatedAt,
		&v.AuthorName,
		&v.Counts.Likes, &v.Counts.Dislikes, &v.Counts.Comments,
	}
	err := s.Scan(append(dest, extra...)...)
	return v, err
}

// ClampPage normalises limit and offset the same way for every listing.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Exists reports whether a review id is present.
func Exists(ctx context.Context, db *sql.DB, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM reviews WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("review exists: %w", err)
	}
	return true, nil
}

type ListFilter struct {
	AnimeTitle string
	UserID     string
	Limit      int
	Offset     int
}

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

func (r *Repo) Create(ctx context.Context, rv models.Review) error {
	if rv.CreatedAt.IsZero() {
		rv.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx, `
		INSERT INTO reviews (id, title, body, rating, anime_title, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rv.ID, rv.Title, rv.Body, rv.Rating, rv.AnimeTitle, rv.UserID, rv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (r *Repo) Exists(ctx context.Context, id string) (bool, error) {
	return Exists(ctx, r.DB, id)
}

func (r *Repo) GetView(ctx context.Context, id string) (*models.ReviewView, error) {
	v, err := ScanView(r.DB.QueryRowContext(ctx, ViewSelect+` WHERE r.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get review: %w", err)
	}
	return &v, nil
}

func (r *Repo) List(ctx context.Context, f ListFilter) ([]models.ReviewView, error) {
	limit, offset := ClampPage(f.Limit, f.Offset)

	var (
		where []string
		args  []any
	)
	if t := strings.TrimSpace(f.AnimeTitle); t != "" {
		where = append(where, "r.anime_title = ? COLLATE NOCASE")
		args = append(args, t)
	}
	if f.UserID != "" {
		where = append(where, "r.user_id = ?")
		args = append(args, f.UserID)
	}

	q := ViewSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY r.created_at DESC, r.id LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	out := make([]models.ReviewView, 0, limit)
	for rows.Next() {
		v, err := ScanView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

// Delete removes a review only when it falls inside scope.
// Owner returns the author id of row id, or "" when it does not exist.
func (r *Repo) Owner(ctx context.Context, id string) (string, error) {
	return policy.LookupOwner(ctx, r.DB, policy.KindReview, id)
}

func (r *Repo) Delete(ctx context.Context, scope policy.Scope, id string) (bool, error) {
	if !scope.Valid() {
		return false, nil
	}
	stmt, args := scope.DeleteBy("id", id)
	res, err := r.DB.ExecContext(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete review: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete review rows: %w", err)
	}
	return n > 0, nil
}

// Summary is the rating aggregate over one user's reviews.
func (r *Repo) Summary(ctx context.Context, userID string) (count int, avg float64, err error) {
	var a sql.NullFloat64
	err = r.DB.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(rating) FROM reviews WHERE user_id = ?
	`, userID).Scan(&count, &a)
	if err != nil {
		return 0, 0, fmt.Errorf("review summary: %w", err)
	}
	return count, a.Float64, nil
}
