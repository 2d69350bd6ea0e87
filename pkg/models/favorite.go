package models

import "time"

type Favorite struct {
	ID         string    `json:"id"`
	AnimeTitle string    `json:"animeTitle"`
	PosterURL  string    `json:"posterUrl,omitempty"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
}

type FavoriteReview struct {
	ID        string    `json:"id"`
	ReviewID  string    `json:"reviewId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type FavoriteReviewView struct {
	ReviewView
	FavoriteID string `json:"favoriteId"`
}
