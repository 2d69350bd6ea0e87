// Package maintenance holds the offline jobs behind reviewctl: CSV seed
// and export, and password resets.
package maintenance

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/realisereallies/anime/internal/apperr"
	"github.com/realisereallies/anime/internal/auth"
)

// SampleReviews is the demo data loaded by `reviewctl seed` without -file.
//
//go:embed sample_reviews.csv
var SampleReviews string

var exportHeader = []string{"id", "email", "name", "anime_title", "title", "body", "rating", "created_at"}

type ImportResult struct {
	UsersCreated   int
	ReviewsCreated int
	Skipped        int
}

// ImportReviews reads reviews from r. Authors are matched by email and
// created with the row's password when missing. A review whose author
// already has one with the same anime and title is skipped, so seeding
// twice is harmless. Everything is applied in one transaction.
func ImportReviews(ctx context.Context, db *sql.DB, r io.Reader, hashCost int) (res ImportResult, err error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := readHeader(cr)
	if err != nil {
		return res, fmt.Errorf("read header: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("begin import: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	users := make(map[string]string)
	line := 1
	for {
		row, rerr := cr.Read()
		if errors.Is(rerr, io.EOF) {
			break
		}
		line++
		if rerr != nil {
			return res, fmt.Errorf("line %d: %w", line, rerr)
		}

		email := strings.ToLower(valueAt(header, row, "email"))
		animeTitle := valueAt(header, row, "anime_title")
		title := valueAt(header, row, "title")
		body := valueAt(header, row, "body")
		if email == "" || animeTitle == "" || title == "" || body == "" {
			res.Skipped++
			continue
		}

		rating, perr := strconv.Atoi(valueAt(header, row, "rating"))
		if perr != nil || rating < 1 || rating > 5 {
			return res, fmt.Errorf("line %d: rating must be 1-5", line)
		}
		createdAt, perr := parseTime(valueAt(header, row, "created_at"))
		if perr != nil {
			return res, fmt.Errorf("line %d: created_at: %w", line, perr)
		}

		userID, ok := users[email]
		if !ok {
			var created bool
			userID, created, err = ensureUser(ctx, tx, email, valueAt(header, row, "name"), valueAt(header, row, "password"), hashCost)
			if err != nil {
				return res, fmt.Errorf("line %d: %w", line, err)
			}
			if created {
				res.UsersCreated++
			}
			users[email] = userID
		}

		var dup int
		if err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM reviews
			WHERE user_id = ? AND anime_title = ? AND title = ?
		`, userID, animeTitle, title).Scan(&dup); err != nil {
			return res, fmt.Errorf("line %d: %w", line, err)
		}
		if dup > 0 {
			res.Skipped++
			continue
		}

		if _, err = tx.ExecContext(ctx, `
			INSERT INTO reviews (id, title, body, rating, anime_title, user_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, uuid.NewString(), title, body, rating, animeTitle, userID, createdAt); err != nil {
			return res, fmt.Errorf("line %d: insert review: %w", line, err)
		}
		res.ReviewsCreated++
	}

	if err = tx.Commit(); err != nil {
		return res, fmt.Errorf("commit import: %w", err)
	}
	return res, nil
}

func ensureUser(ctx context.Context, tx *sql.Tx, email, name, password string, hashCost int) (string, bool, error) {
	var id string
	err := tx.QueryRowContext(ctx, `SELECT id FROM users WHERE LOWER(email) = ?`, email).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", false, fmt.Errorf("lookup user: %w", err)
	}

	if len(password) < 6 || len(password) > 72 {
		return "", false, fmt.Errorf("new user %s needs a 6-72 char password", email)
	}
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", false, fmt.Errorf("hash password: %w", err)
	}

	id = uuid.NewString()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, name, email, string(hash), time.Now().UTC()); err != nil {
		return "", false, fmt.Errorf("create user: %w", err)
	}
	return id, true, nil
}

// ExportReviews writes every review, oldest first, with its author.
func ExportReviews(ctx context.Context, db *sql.DB, w io.Writer) (int, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT r.id, u.email, u.name, r.anime_title, r.title, r.body, r.rating, r.created_at
		FROM reviews r
		JOIN users u ON u.id = r.user_id
		ORDER BY r.created_at, r.id
	`)
	if err != nil {
		return 0, fmt.Errorf("query reviews: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, err
	}

	n := 0
	for rows.Next() {
		var (
			id, email, name, animeTitle, title, body string
			rating                                   int
			createdAt                                time.Time
		)
		if err := rows.Scan(&id, &email, &name, &animeTitle, &title, &body, &rating, &createdAt); err != nil {
			return n, fmt.Errorf("scan review: %w", err)
		}
		if err := cw.Write([]string{
			id,
			email,
			name,
			animeTitle,
			title,
			body,
			strconv.Itoa(rating),
			createdAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}

	cw.Flush()
	return n, cw.Error()
}

// SetPassword replaces a user's password and revokes their tokens.
func SetPassword(ctx context.Context, db *sql.DB, email, password string, hashCost int) error {
	if len(password) < 6 || len(password) > 72 {
		return apperr.Validation("password must be 6-72 chars")
	}

	repo := auth.NewRepo(db)
	u, err := repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return apperr.NotFound("user not found")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return repo.UpdatePasswordAndBumpTokenVersion(ctx, u.ID, string(hash))
}

func readHeader(r *csv.Reader) (map[string]int, error) {
	row, err := r.Read()
	if err != nil {
		return nil, err
	}
	header := make(map[string]int, len(row))
	for idx, name := range row {
		header[strings.TrimSpace(strings.ToLower(name))] = idx
	}
	return header, nil
}

func valueAt(header map[string]int, row []string, key string) string {
	idx, ok := header[key]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
