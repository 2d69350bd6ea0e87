package activity

import "time"

const (
	EventReviewCreated    = "review.created"
	EventReviewDeleted    = "review.deleted"
	EventCommentCreated   = "comment.created"
	EventReactionChanged  = "reaction.changed"
	EventFavoriteAdded    = "favorite.added"
	EventFavoriteRemoved  = "favorite.removed"
	EventFavReviewAdded   = "favorite_review.added"
	EventFavReviewRemoved = "favorite_review.removed"
)

type Event struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	ReviewID   string    `json:"review_id,omitempty"`
	AnimeTitle string    `json:"anime_title,omitempty"`
	State      string    `json:"state,omitempty"`
	At         time.Time `json:"at"`
}

// Public reports whether ev may be shown to anyone. Reactions and
// favorites are only sent back to the user who made them.
func (ev Event) Public() bool {
	switch ev.Type {
	case EventReviewCreated, EventReviewDeleted, EventCommentCreated:
		return true
	}
	return false
}

// Publisher receives domain events after the write they describe has
// been committed.
type Publisher interface {
	Publish(ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Event) {}

// Nop discards events.
var Nop Publisher = nopPublisher{}

// OrNop returns p, or Nop when p is nil.
func OrNop(p Publisher) Publisher {
	if p == nil {
		return Nop
	}
	return p
}
