/**
 * @description
 * This file contains the core business logic for the contract-service. The `Service`
 * struct owns the contract state machine, the payment intent coordinator and both
 * reconciliation paths (gateway webhook and poll-on-read).
 *
 * Key features:
 * - Role-gated contract transitions with optimistic status guards in the store.
 * - Fee snapshots and at most one active payment intent per contract.
 * - Convergent payment status updates shared by webhook and poll reconciliation.
 * - Best-effort side effects (notifications, emails, listing status) that never roll
 *   back the primary transition.
 *
 * @dependencies
 * - internal/domain, internal/store, internal/fees: domain models, data access, fee math.
 * - pkg/rabbitmq: email queueing.
 */

package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/fees"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
	"github.com/sbalsara05/Burrow-Housing-sub000/pkg/rabbitmq"
)

// PaymentGateway creates, inspects and cancels payment intents.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, input domain.CreateIntentInput) (*domain.GatewayIntent, error)
	RetrieveIntent(ctx context.Context, intentID string) (*domain.GatewayIntent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// WebhookVerifier authenticates a raw gateway webhook delivery.
type WebhookVerifier interface {
	ParseWebhook(payload []byte, signatureHeader string) (*domain.GatewayEvent, error)
}

// ObjectStorage uploads bytes and returns a public URL.
type ObjectStorage interface {
	Upload(ctx context.Context, data []byte, key, contentType string) (string, error)
}

// DocumentRenderer turns contract HTML and both signatures into a PDF.
type DocumentRenderer interface {
	RenderContractPDF(ctx context.Context, html, tenantSignatureURL, listerSignatureURL string) ([]byte, error)
}

// PropertyUpdater changes the listing status on the property service.
type PropertyUpdater interface {
	UpdateProperty(ctx context.Context, propertyID uuid.UUID, update domain.PropertyUpdate) error
}

// PaymentIntentLimiter caps payment intent requests per tenant. It returns a
// *RateLimitError when the tenant is over the limit.
type PaymentIntentLimiter interface {
	AllowPaymentIntent(ctx context.Context, tenantID uuid.UUID) error
}

// EventGuard claims webhook event ids so a redelivered event is processed once.
type EventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// Dependencies groups the collaborators of the Service. Gateway, Verifier, Limiter and
// Guard may be nil: without a gateway credential payment operations are unavailable and
// poll reconciliation is skipped.
type Dependencies struct {
	Repo       store.Repository
	Gateway    PaymentGateway
	Verifier   WebhookVerifier
	Storage    ObjectStorage
	Renderer   DocumentRenderer
	Properties PropertyUpdater
	Publisher  rabbitmq.Publisher
	Limiter    PaymentIntentLimiter
	Guard      EventGuard
}

// Options holds the tunable business settings.
type Options struct {
	Fees            fees.Schedule
	Currency        string
	PaymentWindow   time.Duration
	FrontendBaseURL string
	Now             func() time.Time
}

// Service provides the core business logic for contracts and their payments.
type Service struct {
	repo       store.Repository
	gateway    PaymentGateway
	verifier   WebhookVerifier
	storage    ObjectStorage
	renderer   DocumentRenderer
	properties PropertyUpdater
	limiter    PaymentIntentLimiter
	guard      EventGuard
	effects    *SideEffectDispatcher

	fees          fees.Schedule
	currency      string
	paymentWindow time.Duration
	now           func() time.Time
}

// NewService creates a new contract service instance.
func NewService(deps Dependencies, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PaymentWindow <= 0 {
		opts.PaymentWindow = 48 * time.Hour
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.Fees == (fees.Schedule{}) {
		opts.Fees = fees.DefaultSchedule()
	}
	guard := deps.Guard
	if guard == nil {
		guard = NewMemoryEventGuard(24*time.Hour, opts.Now)
	}

	return &Service{
		repo:          deps.Repo,
		gateway:       deps.Gateway,
		verifier:      deps.Verifier,
		storage:       deps.Storage,
		renderer:      deps.Renderer,
		properties:    deps.Properties,
		limiter:       deps.Limiter,
		guard:         guard,
		effects:       NewSideEffectDispatcher(deps.Repo, deps.Publisher, opts.FrontendBaseURL),
		fees:          opts.Fees,
		currency:      opts.Currency,
		paymentWindow: opts.PaymentWindow,
		now:           opts.Now,
	}
}

// ResolveInternalUserID converts a Clerk user id string (e.g., "user_abc123") into the
// internal UUID used by our database.
func (s *Service) ResolveInternalUserID(ctx context.Context, clerkUserID string) (string, error) {
	return s.repo.FindUserIDByClerkUserID(ctx, clerkUserID)
}

// GatewayConfigured reports whether payment operations are available.
func (s *Service) GatewayConfigured() bool {
	return s.gateway != nil
}
