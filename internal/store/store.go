package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

var ErrNotFound = errors.New("resource not found")

// StorageError wraps a backend failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// CreateReview inserts a review item and returns its id. The store assigns id and created_at.
	CreateReview(ctx context.Context, review models.NewReview) (int64, error)
	// ListReviews returns every review item, most recently inserted first.
	ListReviews(ctx context.Context) ([]models.ReviewItem, error)
	// DeleteReview removes one item. Returns ErrNotFound if no item has that id.
	DeleteReview(ctx context.Context, id int64) error
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeTags tolerates rows written by other clients: a malformed value yields no tags.
func decodeTags(raw string) []string {
	tags := []string{}
	if raw == "" {
		return tags
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil || tags == nil {
		return []string{}
	}
	return tags
}

func formatTimestamp(t time.Time) string {
	return t.Format(models.TimestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.ParseInLocation(models.TimestampLayout, s, time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}
