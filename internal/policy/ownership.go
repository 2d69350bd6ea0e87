// Package policy decides which identity may mutate which resource and
// builds the owner-scoped filters the repos delete through.
package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/realisereallies/anime/internal/auth"
)

type Action int

const (
	ActionCreate Action = iota
	ActionDelete
)

type ResourceKind string

const (
	KindReview         ResourceKind = "review"
	KindComment        ResourceKind = "comment"
	KindLike           ResourceKind = "like"
	KindDislike        ResourceKind = "dislike"
	KindFavorite       ResourceKind = "favorite"
	KindFavoriteReview ResourceKind = "favorite_review"
)

var tables = map[ResourceKind]string{
	KindReview:         "reviews",
	KindComment:        "comments",
	KindLike:           "likes",
	KindDislike:        "dislikes",
	KindFavorite:       "favorites",
	KindFavoriteReview: "favorite_reviews",
}

// ResourceRef names a stored row and, for existing rows, its owner.
type ResourceRef struct {
	Kind    ResourceKind
	ID      string
	OwnerID string
}

func CanMutate(id *auth.Identity, action Action, ref ResourceRef) bool {
	if id == nil || id.UserID == "" {
		return false
	}
	if _, ok := tables[ref.Kind]; !ok {
		return false
	}
	switch action {
	case ActionCreate:
		return true
	case ActionDelete:
		return ref.OwnerID != "" && ref.OwnerID == id.UserID
	default:
		return false
	}
}

// OwnerOf is the owner id stamped on rows created by id. Request bodies
// never supply it.
func OwnerOf(id *auth.Identity) string {
	if id == nil {
		return ""
	}
	return id.UserID
}

// RowQuerier is satisfied by *sql.DB and *sql.Tx.
type RowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// LookupOwner returns the owner of the row of kind with primary key id,
// or "" when there is no such row.
func LookupOwner(ctx context.Context, q RowQuerier, kind ResourceKind, id string) (string, error) {
	table, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("unknown resource kind %q", kind)
	}
	var owner string
	err := q.QueryRowContext(ctx, "SELECT user_id FROM "+table+" WHERE id = ?", id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup %s owner: %w", kind, err)
	}
	return owner, nil
}

// Scope restricts a statement to rows owned by one user.
type Scope struct {
	Table       string
	OwnerColumn string
	OwnerID     string
}

func ScopeQuery(id *auth.Identity, kind ResourceKind) Scope {
	return Scope{
		Table:       tables[kind],
		OwnerColumn: "user_id",
		OwnerID:     OwnerOf(id),
	}
}

// Valid reports whether the scope can match anything. An anonymous or
// unknown-kind scope must never reach the store.
func (s Scope) Valid() bool {
	return s.Table != "" && s.OwnerID != ""
}

// ByID filters on the primary key and the owner together.
func (s Scope) ByID(id string) (string, []any) {
	return s.By("id", id)
}

// By filters on a natural key column and the owner together.
func (s Scope) By(column, value string) (string, []any) {
	return column + " = ? AND " + s.OwnerColumn + " = ?", []any{value, s.OwnerID}
}

// DeleteBy renders the full scoped DELETE statement.
func (s Scope) DeleteBy(column, value string) (string, []any) {
	where, args := s.By(column, value)
	return "DELETE FROM " + s.Table + " WHERE " + where, args
}
