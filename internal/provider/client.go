// Package provider dispatches generation requests to the fal.run inference
// API and downloads the resulting media. No retries happen here; retry
// policy belongs to the orchestrator.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starkbot-labs/media-gateway/internal/catalog"
)

const DefaultBaseURL = "https://fal.run"

// maxMediaBytes bounds how much generated media we will buffer from the
// provider's CDN.
const maxMediaBytes = 256 << 20

type Client struct {
	httpClient *http.Client
	baseURL    string
	key        string
	log        *logrus.Entry
}

type loggingTransport struct {
	log *logrus.Entry
}

func NewClient(logger *logrus.Logger, key, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: &http.Client{
			// Generation can take a while; generous but bounded.
			Timeout:   180 * time.Second,
			Transport: &loggingTransport{log: logger.WithField("component", "provider_transport")},
		},
		baseURL: baseURL,
		key:     key,
		log:     logger.WithField("component", "provider_client"),
	}
}

// Generate invokes the endpoint's model with its configured parameters plus
// the prompt, then downloads the media the provider produced.
func (c *Client) Generate(ctx context.Context, ep *catalog.Endpoint, prompt string) ([]byte, error) {
	body := make(map[string]any, len(ep.RequestParams)+1)
	for k, v := range ep.RequestParams {
		body[k] = v
	}
	body["prompt"] = prompt

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Detail: fmt.Sprintf("encode request: %v", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+ep.Model, bytes.NewReader(payload))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Detail: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &Error{Kind: classify(resp.StatusCode), Status: resp.StatusCode, Detail: string(detail)}
	}

	var doc any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, &Error{Kind: KindUnavailable, Detail: fmt.Sprintf("parse response: %v", err)}
	}

	resultURL, err := catalog.ExtractURL(doc, ep.ResponseURLPath)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Detail: fmt.Sprintf("no result URL in response: %v", err)}
	}

	c.log.WithFields(logrus.Fields{
		"model":    ep.Model,
		"endpoint": ep.Path,
	}).Info("Generation complete, downloading result")

	return c.download(ctx, resultURL)
}

func (c *Client) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Detail: err.Error()}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Detail: fmt.Sprintf("download %s: %v", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Kind: KindUnavailable, Status: resp.StatusCode, Detail: fmt.Sprintf("download %s failed", url)}
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Detail: fmt.Sprintf("read download: %v", err)}
	}
	return content, nil
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	log := t.log.WithFields(logrus.Fields{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	resp, err := http.DefaultTransport.RoundTrip(req)
	if err != nil {
		log.WithError(err).Error("HTTP request failed")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"status_code": resp.StatusCode,
		"duration":    time.Since(start),
	}).Debug("HTTP request completed")
	return resp, nil
}
