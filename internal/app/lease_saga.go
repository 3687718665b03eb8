package app

import (
	"context"
	"log"

	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

const leaseRepairBatchSize = 100

// deactivateListing hides the listing once the contract completes. The contract stays
// COMPLETED whatever happens here.
func (s *Service) deactivateListing(ctx context.Context, contract *domain.Contract) {
	if s.properties == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	err := s.properties.UpdateProperty(ctx, contract.PropertyID, domain.PropertyUpdate{Status: domain.PropertyStatusInactive})
	if err != nil {
		log.Printf("level=error component=side_effects saga_step=deactivate_listing msg=\"listing deactivation failed\" contract_id=%s property_id=%s err=%v", contract.ID, contract.PropertyID, err)
	}
}

// completeLease flips the property to leased and records it on the contract. Both steps
// are idempotent, so a failed run is repaired by running it again.
func (s *Service) completeLease(ctx context.Context, contract *domain.Contract) error {
	if contract.PropertyLeasedAt != nil || !contract.FullyPaid() {
		return nil
	}
	if s.properties == nil {
		log.Printf("level=warn component=side_effects saga_step=mark_property_leased msg=\"property client not configured\" contract_id=%s", contract.ID)
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	update := domain.PropertyUpdate{Status: domain.PropertyStatusLeased, LeaseTakenOver: true}
	if err := s.properties.UpdateProperty(ctx, contract.PropertyID, update); err != nil {
		log.Printf("level=error component=side_effects saga_step=mark_property_leased msg=\"property lease update failed; will be repaired\" contract_id=%s property_id=%s err=%v", contract.ID, contract.PropertyID, err)
		return externalError("mark property leased", err)
	}

	leasedAt := s.now().UTC()
	recorded, err := s.repo.MarkPropertyLeased(ctx, contract.ID, leasedAt)
	if err != nil {
		log.Printf("level=error component=side_effects saga_step=record_property_leased msg=\"property leased but not recorded; will be repaired\" contract_id=%s err=%v", contract.ID, err)
		return err
	}
	if recorded {
		contract.PropertyLeasedAt = &leasedAt
		log.Printf("level=info component=side_effects saga_step=record_property_leased msg=\"property leased\" contract_id=%s property_id=%s", contract.ID, contract.PropertyID)
	}
	return nil
}

// RepairPendingLeases re-runs the lease hand-over for paid contracts where it never
// finished.
func (s *Service) RepairPendingLeases(ctx context.Context) (repaired int, failed int, err error) {
	contracts, err := s.repo.ListContractsAwaitingLease(ctx, leaseRepairBatchSize)
	if err != nil {
		return 0, 0, err
	}
	for i := range contracts {
		contract := &contracts[i]
		if !contract.FullyPaid() {
			continue
		}
		if err := s.completeLease(ctx, contract); err != nil {
			failed++
			continue
		}
		if contract.PropertyLeasedAt != nil {
			repaired++
		}
	}
	if repaired > 0 || failed > 0 {
		log.Printf("level=info component=lease_repair msg=\"lease repair pass finished\" repaired=%d failed=%d", repaired, failed)
	}
	return repaired, failed, nil
}
