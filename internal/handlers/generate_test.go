package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starkbot-labs/media-gateway/internal/catalog"
	"github.com/starkbot-labs/media-gateway/internal/config"
	"github.com/starkbot-labs/media-gateway/internal/fingerprint"
	"github.com/starkbot-labs/media-gateway/internal/models"
	"github.com/starkbot-labs/media-gateway/internal/payment"
	"github.com/starkbot-labs/media-gateway/internal/postprocess"
	"github.com/starkbot-labs/media-gateway/internal/provider"
)

const testCatalogYAML = `
endpoints:
  - route: generate_image
    quality: low
    path: /generate_image
    model: fal-ai/flux/schnell
    cost: "1000"
    description: Generate an AI image
    response_url_path: images.0.url
    default_prompt: a fun colorful surreal meme illustration
    media_type: image
    output_extension: png
  - route: generate_image
    quality: high
    path: /generate_image_high
    model: fal-ai/flux/dev
    cost: "2000"
    description: Generate a high quality AI image
    response_url_path: images.0.url
    default_prompt: a fun colorful surreal meme illustration
    media_type: image
    output_extension: png
`

type fakeCache struct {
	mu        sync.Mutex
	entries   []*models.GeneratedMedia
	lookupErr error
}

func (f *fakeCache) Lookup(ctx context.Context, promptHash, endpointPath string) (*models.GeneratedMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	var newest *models.GeneratedMedia
	for _, e := range f.entries {
		if e.PromptHash != promptHash || e.EndpointPath != endpointPath {
			continue
		}
		if !e.ExpiresAt.After(time.Now()) {
			continue
		}
		if newest == nil || e.CreatedAt.After(newest.CreatedAt) {
			newest = e
		}
	}
	return newest, nil
}

func (f *fakeCache) Insert(ctx context.Context, entry *models.GeneratedMedia) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.ExpiresAt.IsZero() {
		entry.ExpiresAt = entry.CreatedAt.Add(30 * 24 * time.Hour)
	}
	f.entries = append(f.entries, entry)
	return nil
}

func (f *fakeCache) all() []*models.GeneratedMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*models.GeneratedMedia(nil), f.entries...)
}

type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeGenerator) Generate(ctx context.Context, ep *catalog.Endpoint, prompt string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []byte("media-bytes-for:" + prompt), nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeArtifacts struct {
	mu       sync.Mutex
	calls    int
	failures int
}

func (f *fakeArtifacts) Upload(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return "", fmt.Errorf("s3 upload failed: transient")
	}
	return "https://cdn.example/" + key, nil
}

func (f *fakeArtifacts) Delete(ctx context.Context, key string) error { return nil }
func (f *fakeArtifacts) Ping(ctx context.Context) error               { return nil }

func (f *fakeArtifacts) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeVerifier struct {
	mu      sync.Mutex
	calls   int
	receipt *payment.Receipt
	err     error
}

func (f *fakeVerifier) Verify(ctx context.Context, proof *payment.Proof, ch payment.Challenge) (*payment.Receipt, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

func (f *fakeVerifier) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type testEnv struct {
	router    *mux.Router
	cfg       *config.Config
	cache     *fakeCache
	generator *fakeGenerator
	artifacts *fakeArtifacts
	verifier  *fakeVerifier
}

func newTestEnv(t *testing.T, bypass bool) *testEnv {
	t.Helper()

	cat, err := catalog.Parse([]byte(testCatalogYAML), 18)
	require.NoError(t, err)

	cfg := &config.Config{
		PaymentNetwork:       "base",
		TokenAddress:         "0x587Cd533F418825521f3A1daa7CCd1E7339A1B07",
		TokenSymbol:          "STARKBOT",
		TokenDecimals:        18,
		TokenName:            "StarkBot",
		TokenVersion:         "1",
		WalletAddress:        "0xWallet",
		FacilitatorSigner:    "0xSigner",
		PaymentBypassEnabled: bypass,
		CacheTTL:             30 * 24 * time.Hour,
	}

	env := &testEnv{
		cfg:       cfg,
		cache:     &fakeCache{},
		generator: &fakeGenerator{},
		artifacts: &fakeArtifacts{},
		verifier:  &fakeVerifier{receipt: &payment.Receipt{Payer: "0xOwner", Transaction: "0xtx"}},
	}

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	h := NewMediaHandler(logger, cfg, cat, env.cache, env.verifier, env.generator,
		postprocess.NewTranscoder(logger), env.artifacts, nil)
	h.retryBase = time.Millisecond

	env.router = mux.NewRouter()
	RegisterRoutes(env.router, h)
	return env
}

func (env *testEnv) get(t *testing.T, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func paymentHeader(t *testing.T) string {
	t.Helper()
	proof := payment.Proof{
		X402Version: payment.X402Version,
		Scheme:      payment.Scheme,
		Network:     "base",
		Payload: payment.ProofPayload{
			Signature: "0xsig",
			Permit: payment.Permit{
				Owner:    "0xOwner",
				Spender:  "0xSigner",
				Value:    "1000000000000000000000",
				Deadline: time.Now().Add(time.Minute).Unix(),
				Nonce:    "1",
			},
		},
	}
	raw, err := json.Marshal(proof)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}

func promptHashFor(endpointPath, prompt string) string {
	return fingerprint.Sum(endpointPath, prompt)
}

func TestNoPaymentReturns402Challenge(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	ch := decodeBody[payment.Challenge](t, rec)
	assert.Equal(t, "1000000000000000000000", ch.Amount)
	assert.Equal(t, "STARKBOT", ch.TokenSymbol)
	assert.Equal(t, "/generate_image", ch.Resource)
	assert.NotEmpty(t, ch.Nonce)
	assert.Greater(t, ch.ExpiresAt, time.Now().Unix())

	assert.Zero(t, env.generator.callCount())
	assert.Zero(t, env.verifier.callCount())
}

func TestChallengeAmountTracksQuality(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/generate_image?prompt=a+cat&quality=high", nil)
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	ch := decodeBody[payment.Challenge](t, rec)
	assert.Equal(t, "2000000000000000000000", ch.Amount)
	assert.Equal(t, "/generate_image_high", ch.Resource)
}

func TestMalformedPaymentHeader(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/generate_image?prompt=a+cat", map[string]string{"X-PAYMENT": "%%%not-base64%%%"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "payment_malformed", body.Code)
	assert.Zero(t, env.verifier.callCount())
}

func TestVerifierRejectionReturns402(t *testing.T) {
	env := newTestEnv(t, false)
	env.verifier.err = fmt.Errorf("%w: permit value too low", payment.ErrRejected)

	rec := env.get(t, "/generate_image?prompt=a+cat", map[string]string{"X-PAYMENT": paymentHeader(t)})
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	ch := decodeBody[payment.Challenge](t, rec)
	assert.Equal(t, "1000000000000000000000", ch.Amount)
	assert.Zero(t, env.generator.callCount())
}

func TestInvalidQuality(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/generate_image?prompt=a+cat&quality=ultra", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "invalid_quality", body.Code)
	assert.Contains(t, body.Error, "high")
	assert.Contains(t, body.Error, "low")
}

func TestBypassGeneratesThenServesCached(t *testing.T) {
	env := newTestEnv(t, true)

	first := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusOK, first.Code)

	resp := decodeBody[generateResponse](t, first)
	assert.NotEmpty(t, resp.URL)
	assert.False(t, resp.Cached)
	assert.Equal(t, "image", resp.MediaType)
	assert.Equal(t, "a cat", resp.Prompt)

	second := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusOK, second.Code)

	resp = decodeBody[generateResponse](t, second)
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, env.generator.callCount())
}

func TestWhitespaceVariantsShareCacheEntry(t *testing.T) {
	env := newTestEnv(t, true)

	first := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := env.get(t, "/generate_image?prompt=++a+cat++", nil)
	require.Equal(t, http.StatusOK, second.Code)

	resp := decodeBody[generateResponse](t, second)
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, env.generator.callCount())
}

func TestCacheHitSkipsPaymentAndProvider(t *testing.T) {
	env := newTestEnv(t, false)
	env.cache.Insert(context.Background(), &models.GeneratedMedia{
		EndpointPath: "/generate_image",
		Prompt:       "a cat",
		PromptHash:   promptHashFor("/generate_image", "a cat"),
		PublicURL:    "https://cdn.example/generate_image/abc.png",
		MediaType:    "image",
	})

	rec := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[generateResponse](t, rec)
	assert.True(t, resp.Cached)
	assert.Equal(t, "https://cdn.example/generate_image/abc.png", resp.URL)
	assert.Zero(t, env.verifier.callCount())
	assert.Zero(t, env.generator.callCount())
}

func TestExpiredCacheEntryIsMiss(t *testing.T) {
	env := newTestEnv(t, true)
	env.cache.entries = append(env.cache.entries, &models.GeneratedMedia{
		ID:           uuid.New(),
		EndpointPath: "/generate_image",
		Prompt:       "a cat",
		PromptHash:   promptHashFor("/generate_image", "a cat"),
		PublicURL:    "https://cdn.example/stale.png",
		MediaType:    "image",
		CreatedAt:    time.Now().Add(-31 * 24 * time.Hour),
		ExpiresAt:    time.Now().Add(-24 * time.Hour),
	})

	rec := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[generateResponse](t, rec)
	assert.False(t, resp.Cached)
	assert.NotEqual(t, "https://cdn.example/stale.png", resp.URL)
	assert.Equal(t, 1, env.generator.callCount())
}

func TestCacheOutageFailsRequest(t *testing.T) {
	env := newTestEnv(t, true)
	env.cache.lookupErr = errors.New("connection refused")

	rec := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "cache_unavailable", body.Code)
	assert.Zero(t, env.generator.callCount())
}

func TestUploadRetriesThenSucceeds(t *testing.T) {
	env := newTestEnv(t, false)
	env.artifacts.failures = 1

	rec := env.get(t, "/generate_image?prompt=a+cat", map[string]string{"X-PAYMENT": paymentHeader(t)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, env.artifacts.callCount())
}

func TestUploadFailureReportsPaymentAccepted(t *testing.T) {
	env := newTestEnv(t, false)
	env.artifacts.failures = 100

	rec := env.get(t, "/generate_image?prompt=a+cat", map[string]string{"X-PAYMENT": paymentHeader(t)})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "storage_upload_failed", body.Code)
	assert.True(t, body.PaymentAccepted)
	assert.Equal(t, "0xtx", body.PaymentTx)
	assert.GreaterOrEqual(t, env.artifacts.callCount(), 2)
}

func TestProviderInvalidPromptNotRetried(t *testing.T) {
	env := newTestEnv(t, true)
	env.generator.err = &provider.Error{Kind: provider.KindInvalidPrompt, Status: 422, Detail: "unsafe prompt"}

	rec := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "provider_invalid_prompt", body.Code)
	assert.Equal(t, 1, env.generator.callCount())
}

func TestProviderRateLimited(t *testing.T) {
	env := newTestEnv(t, true)
	env.generator.err = &provider.Error{Kind: provider.KindRateLimited, Status: 429}

	rec := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))

	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "provider_rate_limited", body.Code)
}

func TestProviderUnavailableRetriedThenFails(t *testing.T) {
	env := newTestEnv(t, true)
	env.generator.err = &provider.Error{Kind: provider.KindUnavailable, Status: 502}

	rec := env.get(t, "/generate_image?prompt=a+cat", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "provider_unavailable", body.Code)
	assert.Equal(t, generateAttempts, env.generator.callCount())
}

func TestConcurrentIdenticalRequests(t *testing.T) {
	env := newTestEnv(t, true)

	var wg sync.WaitGroup
	codes := make([]int, 2)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := env.get(t, "/generate_image?prompt=a+cat", nil)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, codes)

	entries := env.cache.all()
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.True(t, e.ExpiresAt.After(e.CreatedAt), "entry must expire after creation")
	}
}

func TestDefaultPromptUsedWhenAbsent(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.get(t, "/generate_image", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[generateResponse](t, rec)
	assert.Equal(t, "a fun colorful surreal meme illustration", resp.Prompt)
}

func TestAPIListsEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/api", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[apiResponse](t, rec)
	assert.Equal(t, "media-gateway", resp.Service)
	assert.Equal(t, "STARKBOT", resp.Symbol)
	assert.Equal(t, "base", resp.Network)
	assert.Len(t, resp.Endpoints, 2)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.get(t, "/api/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
