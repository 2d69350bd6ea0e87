package policy

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/realisereallies/anime/internal/auth"
	"github.com/realisereallies/anime/internal/testutil"
)

var alice = &auth.Identity{UserID: "u-alice", Email: "a@x.com", Name: "Alice"}

func TestCanMutate(t *testing.T) {
	cases := []struct {
		name   string
		id     *auth.Identity
		action Action
		ref    ResourceRef
		want   bool
	}{
		{"anonymous create", nil, ActionCreate, ResourceRef{Kind: KindReview}, false},
		{"create review", alice, ActionCreate, ResourceRef{Kind: KindReview}, true},
		{"create favorite", alice, ActionCreate, ResourceRef{Kind: KindFavorite}, true},
		{"unknown kind", alice, ActionCreate, ResourceRef{Kind: "user"}, false},
		{"delete own", alice, ActionDelete, ResourceRef{Kind: KindFavorite, ID: "f1", OwnerID: "u-alice"}, true},
		{"delete foreign", alice, ActionDelete, ResourceRef{Kind: KindFavoriteReview, ID: "f1", OwnerID: "u-bob"}, false},
		{"delete unknown owner", alice, ActionDelete, ResourceRef{Kind: KindFavorite, ID: "f1"}, false},
		{"anonymous delete", nil, ActionDelete, ResourceRef{Kind: KindFavorite, OwnerID: ""}, false},
	}
	for _, tc := range cases {
		if got := CanMutate(tc.id, tc.action, tc.ref); got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestLookupOwnerFeedsCanMutate(t *testing.T) {
	db := testutil.NewDB(t)
	a := testutil.CreateUser(t, db, "Alice", "a@x.com")
	b := testutil.CreateUser(t, db, "Bob", "b@x.com")
	rv := testutil.CreateReview(t, db, a.ID, "X", 4, time.Now())

	owner, err := LookupOwner(context.Background(), db, KindReview, rv.ID)
	if err != nil || owner != a.ID {
		t.Fatalf("owner: %q %v", owner, err)
	}
	ref := ResourceRef{Kind: KindReview, ID: rv.ID, OwnerID: owner}
	if !CanMutate(&auth.Identity{UserID: a.ID}, ActionDelete, ref) {
		t.Fatal("author should be allowed to delete")
	}
	if CanMutate(&auth.Identity{UserID: b.ID}, ActionDelete, ref) {
		t.Fatal("other user must not delete")
	}

	missing, err := LookupOwner(context.Background(), db, KindReview, "nope")
	if err != nil || missing != "" {
		t.Fatalf("missing row: %q %v", missing, err)
	}
	if _, err := LookupOwner(context.Background(), db, "user", rv.ID); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestOwnerOf(t *testing.T) {
	if OwnerOf(alice) != "u-alice" {
		t.Fatalf("unexpected owner %q", OwnerOf(alice))
	}
	if OwnerOf(nil) != "" {
		t.Fatal("anonymous identity must not own anything")
	}
}

func TestScopeQuery(t *testing.T) {
	s := ScopeQuery(alice, KindFavoriteReview)
	if !s.Valid() || s.Table != "favorite_reviews" {
		t.Fatalf("unexpected scope %+v", s)
	}

	where, args := s.ByID("fr-1")
	if where != "id = ? AND user_id = ?" {
		t.Fatalf("unexpected filter %q", where)
	}
	if !reflect.DeepEqual(args, []any{"fr-1", "u-alice"}) {
		t.Fatalf("unexpected args %v", args)
	}

	stmt, args := s.DeleteBy("review_id", "r-1")
	if stmt != "DELETE FROM favorite_reviews WHERE review_id = ? AND user_id = ?" {
		t.Fatalf("unexpected statement %q", stmt)
	}
	if !reflect.DeepEqual(args, []any{"r-1", "u-alice"}) {
		t.Fatalf("unexpected args %v", args)
	}

	if ScopeQuery(nil, KindFavorite).Valid() {
		t.Fatal("anonymous scope must be invalid")
	}
	if ScopeQuery(alice, "nope").Valid() {
		t.Fatal("unknown kind scope must be invalid")
	}
}

func TestNextFollowsStateTable(t *testing.T) {
	want := map[ReactionState]map[ReactionAction]ReactionState{
		StateNone:     {ReactionLike: StateLiked, ReactionDislike: StateDisliked, ReactionRemove: StateNone},
		StateLiked:    {ReactionLike: StateLiked, ReactionDislike: StateDisliked, ReactionRemove: StateNone},
		StateDisliked: {ReactionLike: StateLiked, ReactionDislike: StateDisliked, ReactionRemove: StateNone},
	}
	for cur, row := range want {
		for action, next := range row {
			if got := Next(cur, action); got != next {
				t.Fatalf("Next(%s, %s) = %s, want %s", cur, action, got, next)
			}
		}
	}
}

func TestToggleTwiceReturnsToNone(t *testing.T) {
	for _, kind := range []ReactionAction{ReactionLike, ReactionDislike} {
		s := StateNone
		s = Next(s, Toggle(s, kind))
		if s == StateNone {
			t.Fatalf("%s: first toggle should set a reaction", kind)
		}
		s = Next(s, Toggle(s, kind))
		if s != StateNone {
			t.Fatalf("%s: second toggle should clear, got %s", kind, s)
		}
	}
}

func TestToggleSwitchesReaction(t *testing.T) {
	s := Next(StateNone, Toggle(StateNone, ReactionLike))
	s = Next(s, Toggle(s, ReactionDislike))
	if s != StateDisliked {
		t.Fatalf("expected disliked, got %s", s)
	}
}

func TestParseAction(t *testing.T) {
	for _, in := range []string{"like", " Dislike ", "REMOVE"} {
		if _, err := ParseAction(in); err != nil {
			t.Fatalf("%q: %v", in, err)
		}
	}
	for _, in := range []string{"", "love", "toggle"} {
		if _, err := ParseAction(in); err == nil {
			t.Fatalf("%q: expected error", in)
		}
	}
	if _, err := ParseKind("remove"); err == nil {
		t.Fatal("remove is not a toggle kind")
	}
}
