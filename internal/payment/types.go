// Package payment implements the x402 paywall: building 402 challenges,
// decoding client payment proofs, and verifying/settling them against the
// facilitator.
package payment

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const (
	// Scheme is the only payment scheme this service accepts: an off-chain
	// signed permit the facilitator redeems on the payer's behalf.
	Scheme = "permit"

	// X402Version is the protocol version sent to the facilitator.
	X402Version = 1

	// ChallengeWindow bounds how long a challenge (and the permit signed
	// against it) stays acceptable.
	ChallengeWindow = 300 * time.Second
)

// Challenge is the machine-readable payment requirement returned with a 402.
// It is regenerated per request and never persisted; freshness comes from
// the nonce and expiry window.
type Challenge struct {
	Scheme            string `json:"scheme"`
	Network           string `json:"network"`
	Amount            string `json:"amount"`
	Resource          string `json:"resource"`
	Description       string `json:"description"`
	PayTo             string `json:"pay_to"`
	MaxTimeoutSeconds int    `json:"max_timeout_seconds"`
	TokenAddress      string `json:"token_address"`
	TokenSymbol       string `json:"token_symbol"`
	TokenDecimals     int    `json:"token_decimals"`
	TokenName         string `json:"token_name"`
	TokenVersion      string `json:"token_version"`
	FacilitatorSigner string `json:"facilitator_signer"`
	Nonce             string `json:"nonce"`
	ExpiresAt         int64  `json:"expires_at"`
}

// Proof is the client-supplied payment, carried base64-encoded in the
// X-PAYMENT header. Consumed exactly once per request.
type Proof struct {
	X402Version int          `json:"x402Version"`
	Scheme      string       `json:"scheme"`
	Network     string       `json:"network"`
	Resource    string       `json:"resource,omitempty"`
	Payload     ProofPayload `json:"payload"`
}

type ProofPayload struct {
	Signature string `json:"signature"`
	Permit    Permit `json:"permit"`
}

// Permit is the EIP-712-style authorization the payer signed: the
// facilitator signer may move Value tokens from Owner until Deadline.
type Permit struct {
	Owner    string `json:"owner"`
	Spender  string `json:"spender"`
	Value    string `json:"value"`
	Deadline int64  `json:"deadline"`
	Nonce    string `json:"nonce"`
}

// DecodeProof parses an X-PAYMENT header value. Any failure here is a
// malformed payment, distinct from a rejected one.
func DecodeProof(header string) (*Proof, error) {
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		return nil, fmt.Errorf("invalid payment encoding: %w", err)
	}
	var proof Proof
	if err := json.Unmarshal(raw, &proof); err != nil {
		return nil, fmt.Errorf("invalid payment JSON: %w", err)
	}
	return &proof, nil
}

// Requirements is the camelCase x402 wire form of a challenge, sent to the
// facilitator on verify and settle.
type Requirements struct {
	Scheme            string         `json:"scheme"`
	Network           string         `json:"network"`
	MaxAmountRequired string         `json:"maxAmountRequired"`
	Resource          string         `json:"resource"`
	Description       string         `json:"description"`
	MimeType          string         `json:"mimeType"`
	PayTo             string         `json:"payTo"`
	MaxTimeoutSeconds int            `json:"maxTimeoutSeconds"`
	Asset             string         `json:"asset"`
	Extra             map[string]any `json:"extra,omitempty"`
}

type verifyRequest struct {
	X402Version         int          `json:"x402Version"`
	PaymentPayload      *Proof       `json:"paymentPayload"`
	PaymentRequirements Requirements `json:"paymentRequirements"`
}

type verifyResponse struct {
	IsValid       bool   `json:"isValid"`
	InvalidReason string `json:"invalidReason,omitempty"`
	Payer         string `json:"payer,omitempty"`
}

type settleResponse struct {
	Success     bool   `json:"success"`
	Network     string `json:"network"`
	Transaction string `json:"transaction,omitempty"`
	ErrorReason string `json:"errorReason,omitempty"`
	Payer       string `json:"payer,omitempty"`
}

// Receipt records a completed (or bypassed) payment for a request.
type Receipt struct {
	Payer       string
	Transaction string
	Bypassed    bool
}
