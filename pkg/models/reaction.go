package models

type ReactionSummary struct {
	ReviewID string `json:"reviewId"`
	Likes    int    `json:"likes"`
	Dislikes int    `json:"dislikes"`
	// State is the caller's reaction; empty for anonymous callers.
	State string `json:"state,omitempty"`
}
