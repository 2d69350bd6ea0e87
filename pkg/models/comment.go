package models

import "time"

type Comment struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	ReviewID   string    `json:"reviewId"`
	UserID     string    `json:"userId"`
	AuthorName string    `json:"authorName,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
