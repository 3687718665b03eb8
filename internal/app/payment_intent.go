package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/fees"
)

// CreatePaymentIntent creates or reuses the tenant's payment intent for a completed
// contract. Retrying with the same method returns the same intent; switching method
// cancels the old intent and opens a new one with a fresh snapshot.
func (s *Service) CreatePaymentIntent(ctx context.Context, actorID uuid.UUID, req domain.CreatePaymentIntentRequest) (*domain.PaymentIntentResult, error) {
	if s.gateway == nil {
		return nil, externalError("create payment intent", errors.New("payment gateway not configured"))
	}
	method := fees.NormalizeMethod(req.PaymentMethod)
	if !fees.IsSupportedMethod(method) {
		return nil, validationError("unsupported payment method %q", req.PaymentMethod)
	}
	if req.ContractID == uuid.Nil {
		return nil, validationError("contract_id is required")
	}
	if err := s.consumeIntentRateLimit(ctx, actorID); err != nil {
		return nil, err
	}

	contract, err := s.repo.GetContract(ctx, req.ContractID)
	if err != nil {
		return nil, err
	}
	if actorID != contract.TenantID {
		return nil, ErrForbidden
	}
	if contract.Status != domain.ContractStatusCompleted {
		return nil, conflictError("payment is only possible on a COMPLETED contract (current status %s)", contract.Status)
	}
	leg := &contract.Payment.Tenant
	if leg.Status == domain.PaymentStatusSucceeded {
		return nil, conflictError("contract is already paid")
	}
	rent := fees.RentCents(contract.Variables)
	if rent <= 0 {
		return nil, validationError("contract rent is missing or not a valid amount")
	}

	if err := s.enforcePaymentWindow(ctx, contract); err != nil {
		return nil, err
	}

	previousIntent := "none"
	if leg.IntentID != nil && *leg.IntentID != "" {
		previousIntent = *leg.IntentID
	}

	if leg.HasActiveIntent() {
		sameMethod := contract.Payment.Snapshot == nil || contract.Payment.Snapshot.PaymentMethod == method
		if sameMethod {
			result, reuseErr := s.reuseActiveIntent(ctx, contract, rent, method)
			if result != nil || reuseErr != nil {
				return result, reuseErr
			}
			// the gateway cancelled the intent; fall through and open a new one
		} else {
			s.cancelIntentBestEffort(ctx, contract.ID, *leg.IntentID, "payment method changed")
			leg.IntentID = nil
			leg.GatewayStatus = domain.GatewayStatusCanceled
			leg.Status = domain.PaymentStatusCanceled
		}
	}

	return s.openIntent(ctx, contract, rent, method, previousIntent)
}

// enforcePaymentWindow expires the payment when the window has passed.
func (s *Service) enforcePaymentWindow(ctx context.Context, contract *domain.Contract) error {
	if contract.Payment.Tenant.Status == domain.PaymentStatusExpired {
		return ErrPaymentWindowExpired
	}
	changed, tr := s.expireIfDue(ctx, contract)
	if !changed {
		return nil
	}
	if err := s.repo.SavePayment(ctx, contract.ID, &contract.Payment); err != nil {
		log.Printf("level=error component=payments msg=\"persist payment expiry failed\" contract_id=%s err=%v", contract.ID, err)
		return mapStoreError(err)
	}
	log.Printf("level=info component=payments msg=\"payment window expired\" contract_id=%s", contract.ID)
	s.dispatchTransitions(ctx, contract, []*legTransition{tr})
	return ErrPaymentWindowExpired
}

// reuseActiveIntent returns the existing intent's client secret. It returns (nil, nil)
// when the gateway reports the intent as cancelled so the caller opens a new one.
func (s *Service) reuseActiveIntent(ctx context.Context, contract *domain.Contract, rent int64, method string) (*domain.PaymentIntentResult, error) {
	leg := &contract.Payment.Tenant
	intent, err := s.gateway.RetrieveIntent(ctx, *leg.IntentID)
	if err != nil {
		return nil, externalError("retrieve payment intent", err)
	}

	changed, tr := applyGatewayStatus(contract, domain.PaymentLegTenant, intent.ID, intent.Status, intent.RawStatus, s.now())
	snapshotFilled := false
	if contract.Payment.Snapshot == nil {
		snapshot := s.fees.ComputeSnapshot(rent, method, s.now())
		contract.Payment.Snapshot = &snapshot
		snapshotFilled = true
	}
	if changed || snapshotFilled {
		if err := s.repo.SavePayment(ctx, contract.ID, &contract.Payment); err != nil {
			return nil, mapStoreError(err)
		}
		if tr != nil {
			s.dispatchTransitions(ctx, contract, []*legTransition{tr})
		}
	}

	switch leg.Status {
	case domain.PaymentStatusSucceeded:
		return nil, conflictError("contract is already paid")
	case domain.PaymentStatusCanceled:
		leg.IntentID = nil
		return nil, nil
	}

	log.Printf("level=info component=payments msg=\"reusing active payment intent\" contract_id=%s intent_id=%s", contract.ID, intent.ID)
	return &domain.PaymentIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		AmountCents:     s.fees.ChargeAmount(*contract.Payment.Snapshot),
		PaymentStatus:   leg.Status,
		Snapshot:        contract.Payment.Snapshot,
	}, nil
}

// openIntent creates a new gateway intent. previousIntent feeds the idempotency key:
// concurrent first attempts collapse onto one intent while a replacement gets a new key.
func (s *Service) openIntent(ctx context.Context, contract *domain.Contract, rent int64, method, previousIntent string) (*domain.PaymentIntentResult, error) {
	leg := &contract.Payment.Tenant

	snapshot := s.fees.ComputeSnapshot(rent, method, s.now())
	amount := s.fees.ChargeAmount(snapshot)
	intent, err := s.gateway.CreateIntent(ctx, domain.CreateIntentInput{
		AmountCents:    amount,
		Currency:       s.currency,
		PaymentMethod:  method,
		ContractID:     contract.ID.String(),
		TenantID:       contract.TenantID.String(),
		ListerID:       contract.ListerID.String(),
		Leg:            domain.PaymentLegTenant,
		IdempotencyKey: fmt.Sprintf("contract:%s:tenant:%s:%d:%s", contract.ID, method, amount, previousIntent),
	})
	if err != nil {
		return nil, externalError("create payment intent", err)
	}

	intentID := intent.ID
	leg.IntentID = &intentID
	leg.GatewayStatus = domain.GatewayStatusPending
	leg.Status = domain.PaymentStatusPending
	contract.Payment.Snapshot = &snapshot

	if err := s.repo.SavePayment(ctx, contract.ID, &contract.Payment); err != nil {
		log.Printf("level=error component=payments msg=\"persist new payment intent failed; cancelling orphan\" contract_id=%s intent_id=%s err=%v", contract.ID, intentID, err)
		s.cancelIntentBestEffort(ctx, contract.ID, intentID, "persist failed")
		return nil, mapStoreError(err)
	}
	log.Printf("level=info component=payments msg=\"payment intent created\" contract_id=%s intent_id=%s amount_cents=%d method=%s", contract.ID, intentID, amount, method)

	return &domain.PaymentIntentResult{
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intentID,
		AmountCents:     amount,
		PaymentStatus:   leg.Status,
		Snapshot:        &snapshot,
	}, nil
}

func (s *Service) cancelIntentBestEffort(ctx context.Context, contractID uuid.UUID, intentID, reason string) {
	if err := s.gateway.CancelIntent(ctx, intentID); err != nil {
		log.Printf("level=warn component=payments msg=\"cancel payment intent failed\" contract_id=%s intent_id=%s reason=%q err=%v", contractID, intentID, reason, err)
	}
}

func (s *Service) consumeIntentRateLimit(ctx context.Context, actorID uuid.UUID) error {
	if s.limiter == nil {
		return nil
	}
	err := s.limiter.AllowPaymentIntent(ctx, actorID)
	if err == nil {
		return nil
	}
	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		log.Printf("level=info component=payments msg=\"payment intent rate limited\" user_id=%s retry_after=%d", actorID, rateErr.RetryAfterSeconds)
		return rateErr
	}
	log.Printf("level=warn component=payments msg=\"rate limiter unavailable; allowing request\" user_id=%s err=%v", actorID, err)
	return nil
}
