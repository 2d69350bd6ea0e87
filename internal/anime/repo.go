package anime

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/realisereallies/anime/internal/reviews"
	"github.com/realisereallies/anime/pkg/models"
)

type Repo struct {
	DB *sql.DB
}

type ListQuery struct {
	Q         string // substring match on title
	MinRating float64
	Sort      string // title, reviews, rating or recent
	Limit     int
	Offset    int
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

var sortOrders = map[string]string{
	"title":   "title COLLATE NOCASE ASC",
	"reviews": "reviews DESC, title COLLATE NOCASE ASC",
	"rating":  "avg_rating DESC, reviews DESC, title COLLATE NOCASE ASC",
	"recent":  "last_at DESC, title COLLATE NOCASE ASC",
}

func (r *Repo) Get(ctx context.Context, title string) (*models.AnimeSummary, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT anime_title AS title, COUNT(*) AS reviews, AVG(rating) AS avg_rating, MAX(created_at) AS last_at
		FROM reviews
		WHERE anime_title = ? COLLATE NOCASE
		GROUP BY anime_title COLLATE NOCASE
	`, strings.TrimSpace(title))

	s, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get anime: %w", err)
	}
	return &s, nil
}

func (r *Repo) Count(ctx context.Context, q ListQuery) (int, error) {
	sqlStr, args := buildListSQL(q, true)
	var total int
	if err := r.DB.QueryRowContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count scan: %w", err)
	}
	return total, nil
}

func (r *Repo) List(ctx context.Context, q ListQuery) ([]models.AnimeSummary, error) {
	sqlStr, args := buildListSQL(q, false)

	rows, err := r.DB.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list query: %w", err)
	}
	defer rows.Close()

	out := []models.AnimeSummary{}
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("list scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows err: %w", err)
	}
	return out, nil
}

func scanSummary(s reviews.Scanner) (models.AnimeSummary, error) {
	var (
		out  models.AnimeSummary
		avg  sql.NullFloat64
		last sql.NullString
	)
	if err := s.Scan(&out.Title, &out.Reviews, &avg, &last); err != nil {
		return out, err
	}
	out.AverageRating = models.RoundRating(avg.Float64)
	out.LastReviewedAt = parseTimestamp(last.String)
	return out, nil
}

// parseTimestamp reads an aggregated DATETIME, which sqlite hands back as
// text because MAX() drops the column type.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range sqlite3.SQLiteTimestampFormats {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// buildListSQL groups reviews by title case-insensitively and builds
// either the COUNT over groups or the page SELECT.
func buildListSQL(q ListQuery, countOnly bool) (string, []any) {
	var where []string
	var args []any

	if kw := strings.TrimSpace(q.Q); kw != "" {
		where = append(where, "LOWER(anime_title) LIKE ?")
		args = append(args, "%"+strings.ToLower(kw)+"%")
	}

	grouped := `
		SELECT anime_title AS title, COUNT(*) AS reviews, AVG(rating) AS avg_rating, MAX(created_at) AS last_at
		FROM reviews`
	if len(where) > 0 {
		grouped += " WHERE " + strings.Join(where, " AND ")
	}
	grouped += " GROUP BY anime_title COLLATE NOCASE"
	if q.MinRating > 0 {
		grouped += " HAVING AVG(rating) >= ?"
		args = append(args, q.MinRating)
	}

	if countOnly {
		return "SELECT COUNT(*) FROM (" + grouped + ")", args
	}

	order, ok := sortOrders[strings.ToLower(strings.TrimSpace(q.Sort))]
	if !ok {
		order = sortOrders["title"]
	}
	limit, offset := reviews.ClampPage(q.Limit, q.Offset)

	sqlStr := "SELECT title, reviews, avg_rating, last_at FROM (" + grouped + ") ORDER BY " + order + " LIMIT ? OFFSET ?"
	args = append(args, limit, offset)
	return sqlStr, args
}
