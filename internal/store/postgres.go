package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/reviewrelay/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateReview(ctx context.Context, review models.NewReview) (int64, error) {
	tags, err := encodeTags(review.Tags)
	if err != nil {
		return 0, storageErr("create review", err)
	}

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO mistakes (title, answer, analysis, tags, created_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		review.Title, review.Answer, review.Analysis, tags, formatTimestamp(time.Now()),
	).Scan(&id)
	if err != nil {
		return 0, storageErr("create review", err)
	}
	return id, nil
}

func (s *PostgresStore) ListReviews(ctx context.Context) ([]models.ReviewItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, answer, analysis, tags, created_at FROM mistakes ORDER BY id DESC`)
	if err != nil {
		return nil, storageErr("list reviews", err)
	}
	defer rows.Close()

	items := []models.ReviewItem{}
	for rows.Next() {
		var (
			item      models.ReviewItem
			tags      string
			createdAt string
		)
		if err := rows.Scan(&item.ID, &item.Title, &item.Answer, &item.Analysis, &tags, &createdAt); err != nil {
			return nil, storageErr("scan review", err)
		}
		item.Tags = decodeTags(tags)
		item.CreatedAt = parseTimestamp(createdAt)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list reviews", err)
	}
	return items, nil
}

func (s *PostgresStore) DeleteReview(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM mistakes WHERE id = $1`, id)
	if err != nil {
		return storageErr("delete review", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
