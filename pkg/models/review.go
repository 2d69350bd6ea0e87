package models

import "time"

type Review struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Rating     int       `json:"rating"`
	AnimeTitle string    `json:"animeTitle"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ReviewCounts struct {
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
	Comments int `json:"comments"`
}

// ReviewView is a review joined with its author and engagement counts,
// the shape every listing endpoint returns.
type ReviewView struct {
	Review
	AuthorName string       `json:"authorName"`
	Counts     ReviewCounts `json:"_count"`
}
