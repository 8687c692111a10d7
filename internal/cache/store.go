// Package cache maps prompt fingerprints to previously generated artifacts.
//
// The table is the coordination point between concurrent requests: writes are
// append-only and reads pick the newest non-expired row, so two requests that
// race through a miss may both insert without corrupting anything.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/starkbot-labs/media-gateway/internal/models"
)

type Store struct {
	db  *gorm.DB
	ttl time.Duration
	log *logrus.Entry
}

func NewStore(logger *logrus.Logger, db *gorm.DB, ttl time.Duration) *Store {
	return &Store{
		db:  db,
		ttl: ttl,
		log: logger.WithField("component", "cache_store"),
	}
}

// Lookup returns the newest non-expired entry for a fingerprint+endpoint
// pair, or nil when there is none. A store failure is returned as an error;
// callers must not treat it as a miss.
func (s *Store) Lookup(ctx context.Context, promptHash, endpointPath string) (*models.GeneratedMedia, error) {
	var entry models.GeneratedMedia
	err := s.db.WithContext(ctx).
		Where("prompt_hash = ? AND endpoint_path = ? AND expires_at > ?", promptHash, endpointPath, time.Now()).
		Order("created_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache lookup failed: %w", err)
	}
	return &entry, nil
}

// Insert appends a new entry. Existing rows for the same key are left alone.
func (s *Store) Insert(ctx context.Context, entry *models.GeneratedMedia) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = entry.CreatedAt.Add(s.ttl)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("cache insert failed: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"endpoint":    entry.EndpointPath,
		"prompt_hash": entry.PromptHash,
		"expires_at":  entry.ExpiresAt,
	}).Debug("Cache entry inserted")
	return nil
}
