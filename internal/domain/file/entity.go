package file

import (
	"time"

	"github.com/google/uuid"
)

// CanonicalObject represents canonical_objects: the single stored copy of a
// given content hash, shared across sessions that uploaded identical bytes.
type CanonicalObject struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	ContentHash    string    `gorm:"uniqueIndex;size:64;not null"`
	StoragePath    string    `gorm:"not null"`
	ByteSize       int64     `gorm:"not null"`
	// ReferenceCount equals the number of stored_files rows referencing this
	// object; rows start at zero and are bumped as terminal records land.
	ReferenceCount int64     `gorm:"not null;default:0"`
	CreatedAt      time.Time `gorm:"default:now()"`
	UpdatedAt      time.Time `gorm:"default:now()"`
}

func (CanonicalObject) TableName() string {
	return "canonical_objects"
}

// StoredFile represents stored_files: the durable terminal record of a
// completed upload session, kept for audit after the cached session is gone.
type StoredFile struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"`
	Owner       string    `gorm:"index;not null"`
	ByteSize    int64     `gorm:"not null"`
	ContentHash string    `gorm:"index;size:64;not null"`
	StoragePath string    `gorm:"not null"`
	CompletedAt time.Time `gorm:"default:now()"`
	CreatedAt   time.Time `gorm:"default:now()"`
}

func (StoredFile) TableName() string {
	return "stored_files"
}
