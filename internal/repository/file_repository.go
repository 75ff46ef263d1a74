package repository

import (
	"context"
	"errors"

	"chunkstore/internal/domain/file"
	upload_errors "chunkstore/pkg/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PostgresFileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) FileRepository {
	return &PostgresFileRepository{db: db}
}

// Create inserts the terminal record. Repeated finalize calls for the same
// session insert the same primary key, so conflicts are ignored and reported
// through created.
func (r *PostgresFileRepository) Create(ctx context.Context, f *file.StoredFile) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(f)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *PostgresFileRepository) GetByID(ctx context.Context, id uuid.UUID) (file.StoredFile, error) {
	var f file.StoredFile
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return file.StoredFile{}, upload_errors.ErrSessionNotFound
		}
		return file.StoredFile{}, err
	}
	return f, nil
}

func (r *PostgresFileRepository) ListByOwner(ctx context.Context, owner string) ([]file.StoredFile, error) {
	var files []file.StoredFile
	err := r.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("completed_at DESC").
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}
