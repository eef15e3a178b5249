package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// SQLiteStore implements the Store interface on database/sql. It is the default
// local record store; any database/sql handle speaking SQLite syntax works.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore. The caller owns db.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) CreateReview(ctx context.Context, review models.NewReview) (int64, error) {
	tags, err := encodeTags(review.Tags)
	if err != nil {
		return 0, storageErr("create review", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO mistakes (title, answer, analysis, tags, created_at) VALUES (?, ?, ?, ?, ?)`,
		review.Title, review.Answer, review.Analysis, tags, formatTimestamp(time.Now()))
	if err != nil {
		return 0, storageErr("create review", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("create review", err)
	}
	return id, nil
}

func (s *SQLiteStore) ListReviews(ctx context.Context) ([]models.ReviewItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, answer, analysis, tags, created_at FROM mistakes ORDER BY id DESC`)
	if err != nil {
		return nil, storageErr("list reviews", err)
	}
	defer rows.Close()

	items := []models.ReviewItem{}
	for rows.Next() {
		var (
			item      models.ReviewItem
			tags      sql.NullString
			createdAt sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.Answer, &item.Analysis, &tags, &createdAt); err != nil {
			return nil, storageErr("scan review", err)
		}
		item.Tags = decodeTags(tags.String)
		item.CreatedAt = parseTimestamp(createdAt.String)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list reviews", err)
	}
	return items, nil
}

func (s *SQLiteStore) DeleteReview(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM mistakes WHERE id = ?`, id)
	if err != nil {
		return storageErr("delete review", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete review", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*SQLiteStore)(nil)
