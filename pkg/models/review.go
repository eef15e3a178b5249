package models

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the text format created_at is persisted and served in.
const TimestampLayout = "2006-01-02 15:04:05"

// ReviewItem is a StructuredAnswer the user saved to their review list.
// ID and CreatedAt are assigned by the store; items are never updated.
type ReviewItem struct {
	ID        int64     `db:"id"         json:"id"`
	Title     string    `db:"title"      json:"title"`
	Answer    string    `db:"answer"     json:"answer"`
	Analysis  string    `db:"analysis"   json:"analysis"`
	Tags      []string  `db:"tags"       json:"tags"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MarshalJSON renders CreatedAt in TimestampLayout and Tags as [] when empty.
func (r ReviewItem) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID        int64    `json:"id"`
		Title     string   `json:"title"`
		Answer    string   `json:"answer"`
		Analysis  string   `json:"analysis"`
		Tags      []string `json:"tags"`
		CreatedAt string   `json:"created_at"`
	}
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.Marshal(wire{
		ID:        r.ID,
		Title:     r.Title,
		Answer:    r.Answer,
		Analysis:  r.Analysis,
		Tags:      tags,
		CreatedAt: r.CreatedAt.Format(TimestampLayout),
	})
}

// NewReview is the caller-supplied part of a ReviewItem.
type NewReview struct {
	Title    string   `json:"title"`
	Answer   string   `json:"answer"`
	Analysis string   `json:"analysis"`
	Tags     []string `json:"tags"`
}
