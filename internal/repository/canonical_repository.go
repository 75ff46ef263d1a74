package repository

import (
	"context"
	"errors"
	"time"

	"chunkstore/internal/domain/file"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresCanonicalObjectRepository struct {
	db *gorm.DB
}

func NewCanonicalObjectRepository(db *gorm.DB) CanonicalObjectRepository {
	return &PostgresCanonicalObjectRepository{db: db}
}

func (r *PostgresCanonicalObjectRepository) FindByHash(ctx context.Context, contentHash string) (*file.CanonicalObject, error) {
	var obj file.CanonicalObject
	err := r.db.WithContext(ctx).Where("content_hash = ?", contentHash).First(&obj).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &obj, nil
}

// CreateIfAbsent relies on the unique index on content_hash: the insert is
// ON CONFLICT DO NOTHING, and a zero rows-affected result means another
// writer won the race, so the stored row is returned instead.
func (r *PostgresCanonicalObjectRepository) CreateIfAbsent(ctx context.Context, candidate *file.CanonicalObject) (*file.CanonicalObject, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "content_hash"}},
			DoNothing: true,
		}).
		Create(candidate)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected > 0 {
		return candidate, true, nil
	}

	existing, err := r.FindByHash(ctx, candidate.ContentHash)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, gorm.ErrRecordNotFound
	}
	return existing, false, nil
}

func (r *PostgresCanonicalObjectRepository) IncrementRef(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&file.CanonicalObject{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reference_count": gorm.Expr("reference_count + 1"),
			"updated_at":      time.Now(),
		}).Error
}
