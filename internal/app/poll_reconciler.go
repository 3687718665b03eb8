package app

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

// ReconcileContract converges the stored payment state of a completed contract with the
// live gateway status of each leg, and applies the payment window. When the save fails
// the authoritative stored state is returned instead of the in-memory mutation.
func (s *Service) ReconcileContract(ctx context.Context, contract *domain.Contract) *domain.Contract {
	if s.gateway == nil || contract == nil || contract.Status != domain.ContractStatusCompleted {
		return contract
	}

	working := *contract
	var transitions []*legTransition
	dirty := false

	for _, legName := range []domain.PaymentLegName{domain.PaymentLegTenant, domain.PaymentLegLister} {
		leg := working.Payment.Leg(legName)
		if leg.IntentID == nil || *leg.IntentID == "" || leg.Status == domain.PaymentStatusSucceeded {
			continue
		}
		intent, err := s.gateway.RetrieveIntent(ctx, *leg.IntentID)
		if err != nil {
			log.Printf("level=warn component=reconcile msg=\"gateway retrieve failed\" contract_id=%s leg=%s intent_id=%s err=%v", working.ID, legName, *leg.IntentID, err)
			continue
		}
		changed, tr := applyGatewayStatus(&working, legName, intent.ID, intent.Status, intent.RawStatus, s.now())
		dirty = dirty || changed
		if tr != nil {
			transitions = append(transitions, tr)
		}
	}

	if changed, tr := s.expireIfDue(ctx, &working); changed {
		dirty = true
		transitions = append(transitions, tr)
	}

	if !dirty {
		return contract
	}

	if err := s.repo.SavePayment(ctx, working.ID, &working.Payment); err != nil {
		log.Printf("level=error component=reconcile msg=\"persist reconciled payment failed; returning stored state\" contract_id=%s err=%v", working.ID, err)
		fresh, fetchErr := s.repo.GetContract(ctx, working.ID)
		if fetchErr != nil {
			log.Printf("level=error component=reconcile msg=\"re-fetch after failed persist failed\" contract_id=%s err=%v", working.ID, fetchErr)
			return contract
		}
		return fresh
	}

	s.dispatchTransitions(ctx, &working, transitions)
	return &working
}

// ReconcileContractByID runs poll reconciliation for one contract without an actor check.
// It backs the internal endpoint and the operator CLI.
func (s *Service) ReconcileContractByID(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error) {
	contract, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	return s.ReconcileContract(ctx, contract), nil
}
