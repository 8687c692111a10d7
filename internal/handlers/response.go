package handlers

import (
	"encoding/json"
	"net/http"
)

type generateResponse struct {
	URL       string `json:"url"`
	Prompt    string `json:"prompt"`
	Cached    bool   `json:"cached"`
	MediaType string `json:"type"`
	Quality   string `json:"quality"`
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	// Set after settlement so a post-payment failure is never reported as if
	// the client owed nothing.
	PaymentAccepted bool   `json:"payment_accepted,omitempty"`
	PaymentTx       string `json:"payment_tx,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

func writePaidError(w http.ResponseWriter, status int, code, message, tx string) {
	writeJSON(w, status, errorBody{
		Error:           message,
		Code:            code,
		PaymentAccepted: true,
		PaymentTx:       tx,
	})
}
