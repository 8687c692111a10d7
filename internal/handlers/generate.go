package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starkbot-labs/media-gateway/internal/catalog"
	"github.com/starkbot-labs/media-gateway/internal/fingerprint"
	"github.com/starkbot-labs/media-gateway/internal/models"
	"github.com/starkbot-labs/media-gateway/internal/payment"
	"github.com/starkbot-labs/media-gateway/internal/provider"
)

const (
	generateAttempts = 3
	uploadAttempts   = 3
)

// Generate returns the handler for one catalog route. Per-request flow:
// cache lookup, paywall, generation, post-process, upload, cache insert.
func (h *MediaHandler) Generate(route string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.handleGenerate(w, r, route)
	}
}

func (h *MediaHandler) handleGenerate(w http.ResponseWriter, r *http.Request, route string) {
	qm, ok := h.catalog.Route(route)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown_endpoint", "unknown endpoint")
		return
	}

	quality := r.URL.Query().Get("quality")
	if quality == "" {
		quality = catalog.DefaultQuality
	}
	ep, ok := qm[quality]
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_quality",
			"invalid quality "+quality+", valid options: "+strings.Join(qm.Qualities(), ", "))
		return
	}

	prompt := strings.TrimSpace(r.URL.Query().Get("prompt"))
	if prompt == "" {
		prompt = ep.DefaultPrompt
	}
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "missing_prompt", "prompt query parameter is required")
		return
	}

	ctx := r.Context()
	hash := fingerprint.Sum(ep.Path, prompt)
	log := h.log.WithFields(logrus.Fields{
		"endpoint":    ep.Path,
		"quality":     quality,
		"prompt_hash": hash,
	})

	// The cache is consulted before any payment work: a fresh hit costs the
	// client nothing and never touches the facilitator or provider. A cache
	// outage fails the request outright rather than skipping the paywall.
	cached, err := h.cache.Lookup(ctx, hash, ep.Path)
	if err != nil {
		log.WithError(err).Error("Cache lookup failed")
		writeError(w, http.StatusServiceUnavailable, "cache_unavailable", "cache unavailable, try again later")
		return
	}
	if cached != nil {
		log.Info("Serving from cache")
		writeJSON(w, http.StatusOK, generateResponse{
			URL:       cached.PublicURL,
			Prompt:    prompt,
			Cached:    true,
			MediaType: ep.MediaType,
			Quality:   quality,
		})
		return
	}

	var receipt *payment.Receipt
	if h.cfg.PaymentBypassEnabled {
		receipt = &payment.Receipt{Bypassed: true}
	} else {
		ch := payment.NewChallenge(h.cfg, ep.RawCost, ep.Path, ep.Description)

		header := r.Header.Get("X-PAYMENT")
		if header == "" {
			writeJSON(w, http.StatusPaymentRequired, ch)
			return
		}

		proof, err := payment.DecodeProof(header)
		if err != nil {
			log.WithError(err).Warn("Malformed payment header")
			writeError(w, http.StatusBadRequest, "payment_malformed", "X-PAYMENT header could not be decoded")
			return
		}

		receipt, err = h.verifier.Verify(ctx, proof, ch)
		if err != nil {
			log.WithError(err).Warn("Payment not accepted")
			writeJSON(w, http.StatusPaymentRequired, ch)
			return
		}
	}

	// Payment has settled (or compute is about to be spent under bypass);
	// from here the pipeline runs to completion even if the client leaves,
	// otherwise a paid-for artifact would be dropped.
	ctx = context.WithoutCancel(ctx)

	log.Info("Generating media")
	raw, err := h.generateWithRetry(ctx, ep, prompt)
	if err != nil {
		h.writeProviderError(w, log, receipt, err)
		return
	}

	final, err := h.transcode.Apply(ctx, ep.PostProcess, hash, raw, ep.OutputExtension)
	if err != nil {
		// The paid-for artifact could not be produced; the strongest
		// compensation case, so it gets its own code in logs and body.
		log.WithError(err).Error("Post-processing failed after payment")
		h.failAfterPayment(w, receipt, http.StatusBadGateway, "post_process_failed", "media post-processing failed")
		return
	}

	key := ep.PathSegment() + "/" + hash + "." + ep.OutputExtension
	url, err := h.uploadWithRetry(ctx, key, final, ep.ContentType())
	if err != nil {
		log.WithError(err).Error("Artifact upload failed after payment")
		h.failAfterPayment(w, receipt, http.StatusBadGateway, "storage_upload_failed", "artifact upload failed")
		return
	}

	entry := &models.GeneratedMedia{
		EndpointPath:  ep.Path,
		Prompt:        prompt,
		PromptHash:    hash,
		StorageKey:    key,
		PublicURL:     url,
		MediaType:     ep.MediaType,
		FileSizeBytes: int64(len(final)),
	}
	if !receipt.Bypassed {
		if receipt.Payer != "" {
			entry.PayerAddress = &receipt.Payer
		}
		if receipt.Transaction != "" {
			entry.PaymentTx = &receipt.Transaction
		}
	}

	// The artifact is already uploaded; losing the cache row only costs a
	// future regeneration, so this is logged rather than failed.
	if err := h.cache.Insert(ctx, entry); err != nil {
		log.WithError(err).Error("Failed to insert cache entry")
	}

	log.WithField("url", url).Info("Media generated")
	writeJSON(w, http.StatusOK, generateResponse{
		URL:       url,
		Prompt:    prompt,
		Cached:    false,
		MediaType: ep.MediaType,
		Quality:   quality,
	})
}

func (h *MediaHandler) generateWithRetry(ctx context.Context, ep *catalog.Endpoint, prompt string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= generateAttempts; attempt++ {
		raw, err := h.generator.Generate(ctx, ep, prompt)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		var provErr *provider.Error
		if errors.As(err, &provErr) && provErr.Kind == provider.KindInvalidPrompt {
			return nil, err
		}
		if attempt < generateAttempts {
			h.sleep(ctx, attempt)
		}
	}
	return nil, lastErr
}

func (h *MediaHandler) uploadWithRetry(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= uploadAttempts; attempt++ {
		url, err := h.artifacts.Upload(ctx, key, content, contentType)
		if err == nil {
			return url, nil
		}
		lastErr = err
		if attempt < uploadAttempts {
			h.sleep(ctx, attempt)
		}
	}
	return "", lastErr
}

func (h *MediaHandler) sleep(ctx context.Context, attempt int) {
	delay := h.retryBase * time.Duration(1<<(attempt-1))
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

func (h *MediaHandler) writeProviderError(w http.ResponseWriter, log *logrus.Entry, receipt *payment.Receipt, err error) {
	var provErr *provider.Error
	if errors.As(err, &provErr) {
		switch provErr.Kind {
		case provider.KindRateLimited:
			log.WithError(err).Warn("Provider rate limited")
			w.Header().Set("Retry-After", "30")
			h.failAfterPayment(w, receipt, http.StatusServiceUnavailable, "provider_rate_limited", "generation provider is rate limited")
			return
		case provider.KindInvalidPrompt:
			log.WithError(err).Warn("Provider rejected prompt")
			h.failAfterPayment(w, receipt, http.StatusUnprocessableEntity, "provider_invalid_prompt", "the provider rejected this prompt")
			return
		}
	}
	log.WithError(err).Error("Generation failed after payment")
	h.failAfterPayment(w, receipt, http.StatusBadGateway, "provider_unavailable", "generation provider unavailable")
}

// failAfterPayment reports a post-paywall failure, flagging that payment was
// already accepted whenever a real settlement happened.
func (h *MediaHandler) failAfterPayment(w http.ResponseWriter, receipt *payment.Receipt, status int, code, message string) {
	if receipt != nil && !receipt.Bypassed {
		writePaidError(w, status, code, message, receipt.Transaction)
		return
	}
	writeError(w, status, code, message)
}
