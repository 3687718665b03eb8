/**
 * @description
 * Stripe adapter for the payment gateway: create, retrieve and cancel payment intents,
 * and verify webhook deliveries against the endpoint signing secret.
 *
 * @notes
 * - The client is built per Gateway instance and injected into the app layer; there is
 *   no package-level Stripe key.
 * - Webhook payloads are verified over the raw body before any field is trusted.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v74: Stripe API client and webhook signature helpers.
 */
package stripegateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

const (
	MetadataContractID = "contractId"
	MetadataTenantID   = "tenantId"
	MetadataListerID   = "listerId"
	MetadataLeg        = "leg"
)

// ErrInvalidSignature is returned when a webhook delivery fails signature verification.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// paymentIntentAPI is satisfied by *paymentintent.Client.
type paymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Cancel(id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
}

// Gateway talks to Stripe on behalf of the contract-service.
type Gateway struct {
	intents       paymentIntentAPI
	webhookSecret string
}

// New creates a Gateway with its own API client.
func New(secretKey, webhookSecret string) *Gateway {
	sc := client.New(strings.TrimSpace(secretKey), nil)
	return &Gateway{intents: sc.PaymentIntents, webhookSecret: strings.TrimSpace(webhookSecret)}
}

// CreateIntent opens a new payment intent carrying the contract metadata.
func (g *Gateway) CreateIntent(ctx context.Context, input domain.CreateIntentInput) (*domain.GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(input.AmountCents),
		Currency:           stripe.String(strings.ToLower(input.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{input.PaymentMethod}),
	}
	params.Context = ctx
	params.AddMetadata(MetadataContractID, input.ContractID)
	params.AddMetadata(MetadataTenantID, input.TenantID)
	params.AddMetadata(MetadataListerID, input.ListerID)
	params.AddMetadata(MetadataLeg, string(input.Leg))
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return toGatewayIntent(pi), nil
}

// RetrieveIntent returns the live state of a payment intent.
func (g *Gateway) RetrieveIntent(ctx context.Context, intentID string) (*domain.GatewayIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.intents.Get(intentID, params)
	if err != nil {
		return nil, fmt.Errorf("stripe retrieve payment intent %s: %w", intentID, err)
	}
	return toGatewayIntent(pi), nil
}

// CancelIntent cancels a payment intent.
func (g *Gateway) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := g.intents.Cancel(intentID, params); err != nil {
		return fmt.Errorf("stripe cancel payment intent %s: %w", intentID, err)
	}
	return nil
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseWebhook verifies the Stripe-Signature header over the raw payload and extracts
// the payment intent fields the reconciler needs. Events that are not about payment
// intents come back with an empty IntentID.
func (g *Gateway) ParseWebhook(payload []byte, signatureHeader string) (*domain.GatewayEvent, error) {
	if g.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrInvalidSignature)
	}
	if err := webhook.ValidatePayload(payload, signatureHeader, g.webhookSecret); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	var envelope eventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode webhook event: %w", err)
	}

	event := &domain.GatewayEvent{ID: envelope.ID, Type: envelope.Type}
	if !strings.HasPrefix(envelope.Type, "payment_intent.") || len(envelope.Data.Object) == 0 {
		return event, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(envelope.Data.Object, &pi); err != nil {
		return nil, fmt.Errorf("decode payment intent: %w", err)
	}
	event.IntentID = pi.ID
	event.ContractID = strings.TrimSpace(pi.Metadata[MetadataContractID])
	event.Leg = domain.PaymentLegName(strings.ToLower(strings.TrimSpace(pi.Metadata[MetadataLeg])))
	if event.Leg != domain.PaymentLegLister {
		event.Leg = domain.PaymentLegTenant
	}
	event.Status = domain.StatusForEvent(envelope.Type)
	return event, nil
}

// NormalizeStatus folds Stripe's intent statuses onto the reconciler's vocabulary.
func NormalizeStatus(pi *stripe.PaymentIntent) string {
	if pi == nil {
		return ""
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return domain.GatewayStatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return domain.GatewayStatusProcessing
	case stripe.PaymentIntentStatusCanceled:
		return domain.GatewayStatusCanceled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		if pi.LastPaymentError != nil {
			return domain.GatewayStatusPaymentFailed
		}
	}
	return string(pi.Status)
}

func toGatewayIntent(pi *stripe.PaymentIntent) *domain.GatewayIntent {
	return &domain.GatewayIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		AmountCents:  pi.Amount,
		RawStatus:    string(pi.Status),
		Status:       NormalizeStatus(pi),
	}
}
