package models

import "time"

type Stats struct {
	TotalReviews        int     `json:"totalReviews"`
	AnimeCount          int     `json:"animeCount"`
	AverageRating       float64 `json:"averageRating"`
	UserCount           int     `json:"userCount"`
	FavoriteReviewCount int     `json:"favoriteReviewCount"`
}

// AnimeSummary aggregates the reviews written about one anime title.
type AnimeSummary struct {
	Title          string    `json:"title"`
	Reviews        int       `json:"reviews"`
	AverageRating  float64   `json:"averageRating"`
	LastReviewedAt time.Time `json:"lastReviewedAt"`
}

type Profile struct {
	ID              string               `json:"id"`
	Name            string               `json:"name"`
	Email           string               `json:"email"`
	JoinDate        time.Time            `json:"joinDate"`
	TotalReviews    int                  `json:"totalReviews"`
	AverageRating   float64              `json:"averageRating"`
	FavoriteCount   int                  `json:"favoriteAnime"`
	Reviews         []ReviewView         `json:"reviews"`
	FavoriteReviews []FavoriteReviewView `json:"favoriteReviews"`
}

// RoundRating rounds to one decimal place.
func RoundRating(v float64) float64 {
	if v < 0 {
		return -RoundRating(-v)
	}
	return float64(int64(v*10+0.5)) / 10
}
