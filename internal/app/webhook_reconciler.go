package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
)

// HandleGatewayWebhook verifies a raw webhook delivery and applies it. A redelivered
// event id is acknowledged without processing; a processing failure releases the claim
// so the gateway's retry is handled.
func (s *Service) HandleGatewayWebhook(ctx context.Context, payload []byte, signatureHeader string) error {
	if s.verifier == nil {
		return externalError("verify webhook", errors.New("payment gateway webhook secret not configured"))
	}
	event, err := s.verifier.ParseWebhook(payload, signatureHeader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWebhook, err)
	}

	if event.ID != "" {
		claimed, claimErr := s.guard.Claim(ctx, event.ID)
		if claimErr != nil {
			log.Printf("level=warn component=webhook msg=\"event guard unavailable; processing anyway\" event_id=%s err=%v", event.ID, claimErr)
		} else if !claimed {
			log.Printf("level=info component=webhook msg=\"duplicate event ignored\" event_id=%s type=%s", event.ID, event.Type)
			return nil
		}
	}

	if err := s.ProcessGatewayEvent(ctx, event); err != nil {
		if event.ID != "" {
			if releaseErr := s.guard.Release(ctx, event.ID); releaseErr != nil {
				log.Printf("level=warn component=webhook msg=\"event guard release failed\" event_id=%s err=%v", event.ID, releaseErr)
			}
		}
		return err
	}
	return nil
}

// maxEventApplyAttempts bounds how often an event is re-applied after losing the payment
// version race to a concurrent writer.
const maxEventApplyAttempts = 3

// ProcessGatewayEvent applies a verified gateway event to its contract. Events without a
// contract id, for unknown contracts, or for contracts that are not COMPLETED are no-ops.
func (s *Service) ProcessGatewayEvent(ctx context.Context, event *domain.GatewayEvent) error {
	if event == nil || event.Status == "" {
		return nil
	}
	if event.ContractID == "" {
		log.Printf("level=info component=webhook msg=\"event without contract id ignored\" event_id=%s type=%s", event.ID, event.Type)
		return nil
	}
	contractID, err := uuid.Parse(event.ContractID)
	if err != nil {
		log.Printf("level=warn component=webhook msg=\"event with malformed contract id ignored\" event_id=%s contract_id=%q", event.ID, event.ContractID)
		return nil
	}

	for attempt := 1; ; attempt++ {
		err := s.applyGatewayEvent(ctx, event, contractID)
		if err == nil {
			return nil
		}
		if errors.Is(err, store.ErrContractConflict) && attempt < maxEventApplyAttempts {
			log.Printf("level=info component=webhook msg=\"payment changed concurrently; re-applying event\" event_id=%s contract_id=%s attempt=%d", event.ID, contractID, attempt)
			continue
		}
		log.Printf("level=error component=webhook msg=\"persist payment update failed\" event_id=%s contract_id=%s err=%v", event.ID, contractID, err)
		return mapStoreError(err)
	}
}

// applyGatewayEvent reads the contract, applies the event and saves it at the version read.
func (s *Service) applyGatewayEvent(ctx context.Context, event *domain.GatewayEvent, contractID uuid.UUID) error {
	contract, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		if errors.Is(err, store.ErrContractNotFound) {
			log.Printf("level=warn component=webhook msg=\"event for unknown contract ignored\" event_id=%s contract_id=%s", event.ID, contractID)
			return nil
		}
		return err
	}
	if contract.Status != domain.ContractStatusCompleted {
		log.Printf("level=warn component=webhook msg=\"event for non-completed contract ignored\" event_id=%s contract_id=%s status=%s", event.ID, contractID, contract.Status)
		return nil
	}

	legName := event.Leg
	if legName != domain.PaymentLegLister {
		legName = domain.PaymentLegTenant
	}
	changed, transition := applyGatewayStatus(contract, legName, event.IntentID, event.Status, event.Status, s.now())
	if !changed {
		return nil
	}

	if err := s.repo.SavePayment(ctx, contract.ID, &contract.Payment); err != nil {
		return err
	}
	s.dispatchTransitions(ctx, contract, []*legTransition{transition})
	return nil
}
