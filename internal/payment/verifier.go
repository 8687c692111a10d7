package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/starkbot-labs/media-gateway/internal/token"
)

var (
	// ErrRejected means the proof does not satisfy the challenge, either by
	// local checks or by the facilitator's verdict. The client should fix
	// the payment and retry; it maps back to a 402.
	ErrRejected = errors.New("payment rejected")

	// ErrFacilitatorUnavailable means the facilitator could not be reached
	// or answered unusably. Treated as "payment not yet valid", also a 402.
	ErrFacilitatorUnavailable = errors.New("facilitator unavailable")
)

// Verifier checks a decoded proof against a challenge and, when it passes,
// settles the payment through the facilitator.
type Verifier struct {
	facilitator *FacilitatorClient
	log         *logrus.Entry
}

func NewVerifier(logger *logrus.Logger, facilitator *FacilitatorClient) *Verifier {
	return &Verifier{
		facilitator: facilitator,
		log:         logger.WithField("component", "payment_verifier"),
	}
}

// Verify runs the proof through local checks, facilitator verification, and
// settlement. Local checks run first so an obviously wrong proof never
// reaches the facilitator. Settlement idempotence for a replayed proof is
// the facilitator's contract; this service calls it at most once per request.
func (v *Verifier) Verify(ctx context.Context, proof *Proof, ch Challenge) (*Receipt, error) {
	if err := validateProof(proof, ch); err != nil {
		v.log.WithError(err).Warn("Payment failed local validation")
		return nil, err
	}

	reqs := ch.Requirements()

	verdict, err := v.facilitator.Verify(ctx, proof, reqs)
	if err != nil {
		return nil, err
	}
	if !verdict.IsValid {
		v.log.WithField("reason", verdict.InvalidReason).Warn("Payment invalid")
		return nil, fmt.Errorf("%w: %s", ErrRejected, verdict.InvalidReason)
	}

	settled, err := v.facilitator.Settle(ctx, proof, reqs)
	if err != nil {
		return nil, err
	}
	if !settled.Success {
		v.log.WithField("reason", settled.ErrorReason).Error("Settlement failed")
		return nil, fmt.Errorf("%w: settlement failed: %s", ErrRejected, settled.ErrorReason)
	}

	payer := settled.Payer
	if payer == "" {
		payer = verdict.Payer
	}

	v.log.WithFields(logrus.Fields{
		"payer":    payer,
		"tx":       settled.Transaction,
		"resource": ch.Resource,
	}).Info("Payment settled")

	return &Receipt{
		Payer:       payer,
		Transaction: settled.Transaction,
	}, nil
}

// validateProof enforces what can be checked without the facilitator: the
// proof must target this exact resource, cover the required amount, name the
// expected spender, and not be expired. A proof for a different endpoint or
// price never authorizes this one.
func validateProof(proof *Proof, ch Challenge) error {
	if proof.Scheme != "" && proof.Scheme != ch.Scheme {
		return fmt.Errorf("%w: scheme %q does not match %q", ErrRejected, proof.Scheme, ch.Scheme)
	}
	if proof.Network != "" && proof.Network != ch.Network {
		return fmt.Errorf("%w: network %q does not match %q", ErrRejected, proof.Network, ch.Network)
	}
	if proof.Resource != "" && proof.Resource != ch.Resource {
		return fmt.Errorf("%w: proof is for resource %q, not %q", ErrRejected, proof.Resource, ch.Resource)
	}

	permit := proof.Payload.Permit
	if proof.Payload.Signature == "" || permit.Owner == "" {
		return fmt.Errorf("%w: proof carries no signed permit", ErrRejected)
	}
	if permit.Spender != "" && !strings.EqualFold(permit.Spender, ch.FacilitatorSigner) {
		return fmt.Errorf("%w: permit spender %q is not the facilitator signer", ErrRejected, permit.Spender)
	}
	if permit.Deadline <= time.Now().Unix() {
		return fmt.Errorf("%w: permit expired at %d", ErrRejected, permit.Deadline)
	}

	covers, err := token.Covers(permit.Value, ch.Amount)
	if err != nil {
		return fmt.Errorf("%w: bad permit value: %v", ErrRejected, err)
	}
	if !covers {
		return fmt.Errorf("%w: permit value %s is below required %s", ErrRejected, permit.Value, ch.Amount)
	}
	return nil
}
