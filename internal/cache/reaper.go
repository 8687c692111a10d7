package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/starkbot-labs/media-gateway/internal/models"
	"github.com/starkbot-labs/media-gateway/internal/storage"
)

// Reaper deletes expired media rows and their blobs. Expired rows are
// already invisible to lookups; this reclaims the storage behind them.
type Reaper struct {
	logger   *logrus.Logger
	db       *gorm.DB
	storage  storage.Store
	interval time.Duration
}

func NewReaper(logger *logrus.Logger, db *gorm.DB, storage storage.Store) *Reaper {
	return &Reaper{
		logger:   logger,
		db:       db,
		storage:  storage,
		interval: time.Hour,
	}
}

func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	logEntry := r.logger.WithField("component", "cache_reaper")
	logEntry.Info("Starting cache reaper")

	for {
		select {
		case <-ticker.C:
			r.reapExpired(ctx, logEntry)
		case <-ctx.Done():
			logEntry.Info("Stopping cache reaper")
			return
		}
	}
}

func (r *Reaper) reapExpired(ctx context.Context, log *logrus.Entry) {
	var expired []models.GeneratedMedia
	if err := r.db.WithContext(ctx).
		Where("expires_at <= ?", time.Now()).
		Find(&expired).Error; err != nil {
		log.WithError(err).Error("Expired media query failed")
		return
	}

	if len(expired) == 0 {
		log.Debug("No expired media to reap")
		return
	}

	log.WithField("count", len(expired)).Info("Reaping expired media entries")

	for _, entry := range expired {
		if err := r.storage.Delete(ctx, entry.StorageKey); err != nil {
			log.WithFields(logrus.Fields{"key": entry.StorageKey, "error": err}).Error("Failed to delete media object")
			continue
		}
		if err := r.db.WithContext(ctx).Delete(&entry).Error; err != nil {
			log.WithFields(logrus.Fields{"id": entry.ID, "error": err}).Error("Failed to delete media record")
		}
	}
}
