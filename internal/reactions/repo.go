package reactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/realisereallies/anime/internal/policy"
	"github.com/realisereallies/anime/internal/reviews"
)

type Repo struct {
	DB *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{DB: db}
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repo) ReviewExists(ctx context.Context, reviewID string) (bool, error) {
	return reviews.Exists(ctx, r.DB, reviewID)
}

func (r *Repo) Counts(ctx context.Context, reviewID string) (likes, dislikes int, err error) {
	err = r.DB.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM likes WHERE review_id = ?),
			(SELECT COUNT(*) FROM dislikes WHERE review_id = ?)
	`, reviewID, reviewID).Scan(&likes, &dislikes)
	if err != nil {
		return 0, 0, fmt.Errorf("count reactions: %w", err)
	}
	return likes, dislikes, nil
}

func (r *Repo) State(ctx context.Context, userID, reviewID string) (policy.ReactionState, error) {
	return state(ctx, r.DB, userID, reviewID)
}

func state(ctx context.Context, q querier, userID, reviewID string) (policy.ReactionState, error) {
	var kind string
	err := q.QueryRowContext(ctx, `
		SELECT 'liked' FROM likes WHERE user_id = ? AND review_id = ?
		UNION ALL
		SELECT 'disliked' FROM dislikes WHERE user_id = ? AND review_id = ?
		LIMIT 1
	`, userID, reviewID, userID, reviewID).Scan(&kind)
	if errors.Is(err, sql.ErrNoRows) {
		return policy.StateNone, nil
	}
	if err != nil {
		return "", fmt.Errorf("reaction state: %w", err)
	}
	return policy.ReactionState(kind), nil
}

// Set applies action for (userID, reviewID) and returns the new state.
// Both reaction rows are cleared and at most one is re-inserted inside a
// single transaction.
func (r *Repo) Set(ctx context.Context, userID, reviewID string, action policy.ReactionAction) (policy.ReactionState, error) {
	var next policy.ReactionState
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		next, err = apply(ctx, tx, userID, reviewID, policy.StateNone, action)
		return err
	})
	return next, err
}

// Toggle reads the current state and applies the toggle outcome in the
// same transaction, so concurrent toggles serialize.
func (r *Repo) Toggle(ctx context.Context, userID, reviewID string, kind policy.ReactionAction) (policy.ReactionState, error) {
	var next policy.ReactionState
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := state(ctx, tx, userID, reviewID)
		if err != nil {
			return err
		}
		next, err = apply(ctx, tx, userID, reviewID, cur, policy.Toggle(cur, kind))
		return err
	})
	return next, err
}

func (r *Repo) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit reaction: %w", err)
	}
	return nil
}

func apply(ctx context.Context, tx *sql.Tx, userID, reviewID string, cur policy.ReactionState, action policy.ReactionAction) (policy.ReactionState, error) {
	next := policy.Next(cur, action)

	for _, table := range []string{"likes", "dislikes"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE user_id = ? AND review_id = ?`, userID, reviewID); err != nil {
			return "", fmt.Errorf("clear %s: %w", table, err)
		}
	}

	var table string
	switch next {
	case policy.StateLiked:
		table = "likes"
	case policy.StateDisliked:
		table = "dislikes"
	default:
		return next, nil
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO `+table+` (id, review_id, user_id, created_at)
		VALUES (?, ?, ?, ?)
	`, uuid.NewString(), reviewID, userID, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", table, err)
	}
	return next, nil
}
