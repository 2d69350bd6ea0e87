package policy

import (
	"fmt"
	"strings"
)

type ReactionState string

const (
	StateNone     ReactionState = "none"
	StateLiked    ReactionState = "liked"
	StateDisliked ReactionState = "disliked"
)

type ReactionAction string

const (
	ReactionLike    ReactionAction = "like"
	ReactionDislike ReactionAction = "dislike"
	ReactionRemove  ReactionAction = "remove"
)

func ParseAction(s string) (ReactionAction, error) {
	switch a := ReactionAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ReactionLike, ReactionDislike, ReactionRemove:
		return a, nil
	default:
		return "", fmt.Errorf("unknown reaction action %q", s)
	}
}

// ParseKind accepts only the two toggleable reactions.
func ParseKind(s string) (ReactionAction, error) {
	a, err := ParseAction(s)
	if err != nil || a == ReactionRemove {
		return "", fmt.Errorf("unknown reaction kind %q", s)
	}
	return a, nil
}

// Next is the resulting state after applying action. Reactions are set,
// not counted, so repeating the current reaction is a no-op.
func Next(current ReactionState, action ReactionAction) ReactionState {
	switch action {
	case ReactionLike:
		return StateLiked
	case ReactionDislike:
		return StateDisliked
	case ReactionRemove:
		return StateNone
	default:
		return current
	}
}

// Toggle maps a button press to the action it sends: pressing the
// reaction that is already active removes it.
func Toggle(current ReactionState, kind ReactionAction) ReactionAction {
	if Next(StateNone, kind) == current {
		return ReactionRemove
	}
	return kind
}
