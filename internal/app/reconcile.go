package app

import (
	"context"
	"log"
	"time"

	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

// legTransition describes one payment leg changing local status.
type legTransition struct {
	leg      domain.PaymentLegName
	intentID string
	from     domain.PaymentStatus
	to       domain.PaymentStatus
	// firstProcessing is set only on the first move into PROCESSING for the leg.
	firstProcessing bool
}

// applyGatewayStatus converges one leg with the gateway's view. It is shared by the
// webhook and poll paths so both reach the same state from the same gateway truth.
// SUCCEEDED never regresses, and only a success may replace the leg's intent id.
func applyGatewayStatus(contract *domain.Contract, legName domain.PaymentLegName, intentID, gatewayStatus, rawStatus string, now time.Time) (changed bool, transition *legTransition) {
	if contract.Status != domain.ContractStatusCompleted {
		return false, nil
	}
	leg := contract.Payment.Leg(legName)
	if leg.Status == domain.PaymentStatusSucceeded {
		return false, nil
	}

	target, ok := domain.PaymentStatusForGateway(gatewayStatus)
	currentIntent := ""
	if leg.IntentID != nil {
		currentIntent = *leg.IntentID
	}
	if intentID != "" && currentIntent != "" && intentID != currentIntent && target != domain.PaymentStatusSucceeded {
		// late event for an intent that was already replaced
		return false, nil
	}

	if intentID != "" && intentID != currentIntent {
		id := intentID
		leg.IntentID = &id
		changed = true
	}
	if rawStatus != "" && leg.GatewayStatus != rawStatus {
		leg.GatewayStatus = rawStatus
		changed = true
	}
	if !ok || leg.Status == target {
		return changed, nil
	}

	transition = &legTransition{leg: legName, intentID: intentID, from: leg.Status, to: target}
	if transition.intentID == "" {
		transition.intentID = currentIntent
	}
	leg.Status = target
	if target == domain.PaymentStatusProcessing && leg.ProcessingNotifiedAt == nil {
		at := now.UTC()
		leg.ProcessingNotifiedAt = &at
		transition.firstProcessing = true
	}
	return true, transition
}

// expireIfDue marks the tenant leg EXPIRED once the payment window has passed without
// success. An active intent is cancelled best-effort.
func (s *Service) expireIfDue(ctx context.Context, contract *domain.Contract) (changed bool, transition *legTransition) {
	leg := &contract.Payment.Tenant
	if contract.Status != domain.ContractStatusCompleted || contract.Payment.ExpiresAt == nil {
		return false, nil
	}
	if leg.Status == domain.PaymentStatusSucceeded || leg.Status == domain.PaymentStatusExpired {
		return false, nil
	}
	if !s.now().After(*contract.Payment.ExpiresAt) {
		return false, nil
	}

	intentID := ""
	if leg.IntentID != nil {
		intentID = *leg.IntentID
	}
	if leg.HasActiveIntent() && s.gateway != nil {
		if err := s.gateway.CancelIntent(ctx, intentID); err != nil {
			log.Printf("level=warn component=payments msg=\"cancel on expiry failed\" contract_id=%s intent_id=%s err=%v", contract.ID, intentID, err)
		}
	}
	transition = &legTransition{leg: domain.PaymentLegTenant, intentID: intentID, from: leg.Status, to: domain.PaymentStatusExpired}
	leg.Status = domain.PaymentStatusExpired
	return true, transition
}

// dispatchTransitions fires the one-time side effects for persisted transitions, then
// runs the lease hand-over check.
func (s *Service) dispatchTransitions(ctx context.Context, contract *domain.Contract, transitions []*legTransition) {
	for _, tr := range transitions {
		if tr == nil {
			continue
		}
		payer, counterparty := contract.Payer(tr.leg)
		data := map[string]interface{}{"leg": string(tr.leg), "payment_intent_id": tr.intentID}
		switch tr.to {
		case domain.PaymentStatusSucceeded:
			if snap := contract.Payment.Snapshot; snap != nil && tr.leg == domain.PaymentLegTenant {
				data["amount_cents"] = snap.AmountToChargeCents
				data["payout_cents"] = snap.AmountToPayoutCents
			}
			s.effects.Notify(ctx, contract, payer, domain.NotificationPaymentSucceeded, "Your sublease payment succeeded.", tr.intentID, data)
			s.effects.Notify(ctx, contract, counterparty, domain.NotificationPaymentReceived, "The sublease payment has been received.", tr.intentID, data)
		case domain.PaymentStatusProcessing:
			if tr.firstProcessing {
				s.effects.Notify(ctx, contract, payer, domain.NotificationPaymentProcessing, "Your sublease payment is processing.", tr.intentID, data)
			}
		case domain.PaymentStatusFailed:
			s.effects.Notify(ctx, contract, payer, domain.NotificationPaymentFailed, "Your sublease payment failed. Please try another payment method.", tr.intentID, data)
		case domain.PaymentStatusExpired:
			s.effects.Notify(ctx, contract, payer, domain.NotificationPaymentExpired, "The payment window for your sublease has expired.", tr.intentID, data)
		}
		log.Printf("level=info component=reconcile msg=\"payment leg transition\" contract_id=%s leg=%s from=%s to=%s intent_id=%s", contract.ID, tr.leg, tr.from, tr.to, tr.intentID)
	}

	if contract.FullyPaid() && contract.PropertyLeasedAt == nil {
		_ = s.completeLease(ctx, contract)
	}
}
