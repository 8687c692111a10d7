package models

import (
	"time"

	"github.com/google/uuid"
)

// GeneratedMedia is one cached artifact. Rows are append-only: concurrent
// requests for the same prompt may both insert, and readers always pick the
// newest non-expired row for a (prompt_hash, endpoint_path) pair.
type GeneratedMedia struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey"`
	EndpointPath  string    `gorm:"type:varchar(255);not null;index:idx_media_lookup"`
	Prompt        string    `gorm:"type:text;not null"`
	PromptHash    string    `gorm:"type:varchar(64);not null;index:idx_media_lookup"`
	StorageKey    string    `gorm:"type:varchar(512);not null"`
	PublicURL     string    `gorm:"type:text;not null"`
	MediaType     string    `gorm:"type:varchar(20);not null"`
	FileSizeBytes int64     `gorm:"not null;default:0"`
	PayerAddress  *string   `gorm:"type:varchar(64)"`
	PaymentTx     *string   `gorm:"type:varchar(128)"`
	CreatedAt     time.Time `gorm:"index;not null"`
	ExpiresAt     time.Time `gorm:"index;not null"`
}

type AccessLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `gorm:"index;not null"`
	Method    string    `gorm:"type:varchar(10);not null"`
	Path      string    `gorm:"type:text;not null;index:,length:256"`
	Status    int       `gorm:"not null;index"`
	Duration  time.Duration
	ClientIP  string `gorm:"type:varchar(45);not null"`
	UserAgent string `gorm:"type:text"`
	BytesSent int    `gorm:"not null;default:0"`
}

func (GeneratedMedia) TableName() string {
	return "generated_media"
}

func (AccessLog) TableName() string {
	return "access_logs"
}
