package handlers

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/starkbot-labs/media-gateway/internal/catalog"
	"github.com/starkbot-labs/media-gateway/internal/config"
	"github.com/starkbot-labs/media-gateway/internal/models"
	"github.com/starkbot-labs/media-gateway/internal/payment"
	"github.com/starkbot-labs/media-gateway/internal/storage"
)

// CacheStore is the request-deduplication cache consulted before any payment
// or generation work.
type CacheStore interface {
	Lookup(ctx context.Context, promptHash, endpointPath string) (*models.GeneratedMedia, error)
	Insert(ctx context.Context, entry *models.GeneratedMedia) error
}

// Verifier checks and settles a payment proof against a challenge.
type Verifier interface {
	Verify(ctx context.Context, proof *payment.Proof, ch payment.Challenge) (*payment.Receipt, error)
}

// Generator invokes the external model provider.
type Generator interface {
	Generate(ctx context.Context, ep *catalog.Endpoint, prompt string) ([]byte, error)
}

// Transcoder applies the endpoint's optional post-process step.
type Transcoder interface {
	Apply(ctx context.Context, step *catalog.PostProcess, name string, input []byte, outputExt string) ([]byte, error)
}

// Uploader is the artifact store's write path.
type Uploader interface {
	Upload(ctx context.Context, key string, content []byte, contentType string) (string, error)
}

type MediaHandler struct {
	cfg       *config.Config
	catalog   *catalog.Catalog
	cache     CacheStore
	verifier  Verifier
	generator Generator
	transcode Transcoder
	artifacts Uploader
	pinger    storage.Store
	db        *gorm.DB
	log       *logrus.Entry

	// retryBase spaces retry attempts for generation and upload.
	retryBase time.Duration
}

func NewMediaHandler(
	logger *logrus.Logger,
	cfg *config.Config,
	cat *catalog.Catalog,
	cache CacheStore,
	verifier Verifier,
	generator Generator,
	transcode Transcoder,
	artifacts storage.Store,
	db *gorm.DB,
) *MediaHandler {
	return &MediaHandler{
		cfg:       cfg,
		catalog:   cat,
		cache:     cache,
		verifier:  verifier,
		generator: generator,
		transcode: transcode,
		artifacts: artifacts,
		pinger:    artifacts,
		db:        db,
		log:       logger.WithField("component", "media_handler"),
		retryBase: time.Second,
	}
}
