package payment

import (
	"time"

	"github.com/google/uuid"

	"github.com/starkbot-labs/media-gateway/internal/config"
)

// NewChallenge builds the payment requirement for one request against one
// resource. Pure function of endpoint cost plus process configuration, apart
// from the freshness nonce and expiry.
func NewChallenge(cfg *config.Config, rawAmount, resource, description string) Challenge {
	return Challenge{
		Scheme:            Scheme,
		Network:           cfg.PaymentNetwork,
		Amount:            rawAmount,
		Resource:          resource,
		Description:       description,
		PayTo:             cfg.WalletAddress,
		MaxTimeoutSeconds: int(ChallengeWindow.Seconds()),
		TokenAddress:      cfg.TokenAddress,
		TokenSymbol:       cfg.TokenSymbol,
		TokenDecimals:     cfg.TokenDecimals,
		TokenName:         cfg.TokenName,
		TokenVersion:      cfg.TokenVersion,
		FacilitatorSigner: cfg.FacilitatorSigner,
		Nonce:             uuid.NewString(),
		ExpiresAt:         time.Now().Add(ChallengeWindow).Unix(),
	}
}

// Requirements converts the challenge into the facilitator wire format.
func (c Challenge) Requirements() Requirements {
	return Requirements{
		Scheme:            c.Scheme,
		Network:           c.Network,
		MaxAmountRequired: c.Amount,
		Resource:          c.Resource,
		Description:       c.Description,
		MimeType:          "application/json",
		PayTo:             c.PayTo,
		MaxTimeoutSeconds: c.MaxTimeoutSeconds,
		Asset:             c.TokenAddress,
		Extra: map[string]any{
			"token":             c.TokenSymbol,
			"address":           c.TokenAddress,
			"decimals":          c.TokenDecimals,
			"name":              c.TokenName,
			"version":           c.TokenVersion,
			"facilitatorSigner": c.FacilitatorSigner,
			"minimum_amount":    true,
		},
	}
}
