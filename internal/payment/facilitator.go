package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// FacilitatorClient talks to the external x402 facilitator, which checks the
// permit signature and moves the funds. This service never holds custody.
type FacilitatorClient struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Entry
}

func NewFacilitatorClient(logger *logrus.Logger, baseURL string) *FacilitatorClient {
	return &FacilitatorClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: logger.WithField("component", "facilitator_client"),
	}
}

func (c *FacilitatorClient) Verify(ctx context.Context, proof *Proof, reqs Requirements) (*verifyResponse, error) {
	var resp verifyResponse
	if err := c.post(ctx, "/verify", proof, reqs, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *FacilitatorClient) Settle(ctx context.Context, proof *Proof, reqs Requirements) (*settleResponse, error) {
	var resp settleResponse
	if err := c.post(ctx, "/settle", proof, reqs, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *FacilitatorClient) post(ctx context.Context, path string, proof *Proof, reqs Requirements, out any) error {
	start := time.Now()
	log := c.log.WithFields(logrus.Fields{
		"operation": path,
		"resource":  reqs.Resource,
	})

	body, err := json.Marshal(verifyRequest{
		X402Version:         X402Version,
		PaymentPayload:      proof,
		PaymentRequirements: reqs,
	})
	if err != nil {
		return fmt.Errorf("encode facilitator request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build facilitator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Error("Facilitator request failed")
		return fmt.Errorf("%w: %v", ErrFacilitatorUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.WithField("status_code", resp.StatusCode).Error("Facilitator returned error")
		return fmt.Errorf("%w: status %d: %s", ErrFacilitatorUnavailable, resp.StatusCode, detail)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrFacilitatorUnavailable, err)
	}

	log.WithField("duration", time.Since(start)).Debug("Facilitator call completed")
	return nil
}
