package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type endpointInfo struct {
	Path        string `json:"path"`
	Route       string `json:"route"`
	Quality     string `json:"quality"`
	Description string `json:"description"`
	Cost        string `json:"cost"`
	MediaType   string `json:"media_type"`
}

type apiResponse struct {
	Service   string         `json:"service"`
	Endpoints []endpointInfo `json:"endpoints"`
	Token     string         `json:"token"`
	Symbol    string         `json:"symbol"`
	Network   string         `json:"network"`
}

func (h *MediaHandler) Info(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "media-gateway: pay-per-call AI media generation\n\n")
	for _, ep := range h.catalog.All() {
		fmt.Fprintf(w, "GET %s?prompt=...&quality=%s  %s %s  (%s)\n",
			"/"+ep.Route, ep.Quality, ep.Cost, h.cfg.TokenSymbol, ep.Description)
	}
	fmt.Fprintf(w, "\nPayment: x402, token %s on %s. Retry with the X-PAYMENT header after a 402.\n",
		h.cfg.TokenSymbol, h.cfg.PaymentNetwork)
}

func (h *MediaHandler) API(w http.ResponseWriter, r *http.Request) {
	endpoints := make([]endpointInfo, 0, len(h.catalog.All()))
	for _, ep := range h.catalog.All() {
		endpoints = append(endpoints, endpointInfo{
			Path:        ep.Path,
			Route:       "/" + ep.Route,
			Quality:     ep.Quality,
			Description: ep.Description,
			Cost:        ep.Cost + " " + h.cfg.TokenSymbol,
			MediaType:   ep.MediaType,
		})
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Service:   "media-gateway",
		Endpoints: endpoints,
		Token:     h.cfg.TokenAddress,
		Symbol:    h.cfg.TokenSymbol,
		Network:   h.cfg.PaymentNetwork,
	})
}

// Health reports liveness: the service is healthy when its database and
// blob store are both reachable.
func (h *MediaHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"storage":  "ok",
	}
	healthy := true

	if h.db != nil {
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			checks["database"] = err.Error()
			healthy = false
		}
	}

	if h.pinger != nil {
		if err := h.pinger.Ping(ctx); err != nil {
			checks["storage"] = err.Error()
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy": healthy,
		"checks":  checks,
	})
}
