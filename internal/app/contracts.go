package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/fees"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
)

const maxTemplateBytes = 512 << 10

// CreateContract drafts a new contract owned by the lister.
func (s *Service) CreateContract(ctx context.Context, listerID uuid.UUID, req domain.CreateContractRequest) (*domain.Contract, error) {
	if req.PropertyID == uuid.Nil {
		return nil, validationError("property_id is required")
	}
	if req.TenantID == uuid.Nil {
		return nil, validationError("tenant_id is required")
	}
	if req.TenantID == listerID {
		return nil, validationError("lister and tenant must be different users")
	}
	if err := validateTemplate(req.TemplateHTML); err != nil {
		return nil, err
	}

	contract := &domain.Contract{
		ID:           uuid.New(),
		PropertyID:   req.PropertyID,
		ListerID:     listerID,
		TenantID:     req.TenantID,
		Status:       domain.ContractStatusDraft,
		TemplateHTML: req.TemplateHTML,
		Variables:    req.Variables.Clone(),
		Payment: domain.Payment{
			Tenant: domain.PaymentLeg{Status: domain.PaymentStatusNotStarted},
			Lister: domain.PaymentLeg{Status: domain.PaymentStatusNotStarted},
		},
	}
	if err := s.repo.CreateContract(ctx, contract); err != nil {
		return nil, fmt.Errorf("failed to create contract: %w", err)
	}
	log.Printf("level=info component=contracts msg=\"contract drafted\" contract_id=%s lister_id=%s tenant_id=%s", contract.ID, listerID, req.TenantID)
	return contract, nil
}

// EditContract replaces the template and/or variables of a draft.
func (s *Service) EditContract(ctx context.Context, actorID, contractID uuid.UUID, req domain.UpdateContractRequest) (*domain.Contract, error) {
	contract, err := s.loadForLister(ctx, actorID, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != domain.ContractStatusDraft {
		return nil, conflictError("contract can only be edited while DRAFT (current status %s)", contract.Status)
	}

	templateHTML := contract.TemplateHTML
	if req.TemplateHTML != nil {
		templateHTML = *req.TemplateHTML
	}
	if err := validateTemplate(templateHTML); err != nil {
		return nil, err
	}
	variables := contract.Variables
	if req.Variables != nil {
		variables = req.Variables.Clone()
	}

	updated, err := s.repo.UpdateContractContent(ctx, contractID, templateHTML, variables)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return updated, nil
}

// ListContracts returns the contracts the user is a party to.
func (s *Service) ListContracts(ctx context.Context, userID uuid.UUID) ([]domain.Contract, error) {
	return s.repo.ListContractsForUser(ctx, userID)
}

// GetContract loads a contract for one of its parties and converges its payment state
// with the gateway before returning it.
func (s *Service) GetContract(ctx context.Context, actorID, contractID uuid.UUID) (*domain.Contract, error) {
	contract, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !contract.IsParty(actorID) {
		return nil, ErrForbidden
	}
	return s.ReconcileContract(ctx, contract), nil
}

// LockContract sends a draft to the tenant for signature.
func (s *Service) LockContract(ctx context.Context, actorID, contractID uuid.UUID) (*domain.Contract, error) {
	contract, err := s.loadForLister(ctx, actorID, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != domain.ContractStatusDraft {
		return nil, conflictError("only a DRAFT contract can be locked (current status %s)", contract.Status)
	}

	updated, err := s.repo.UpdateContractStatus(ctx, contractID, domain.ContractStatusDraft, domain.ContractStatusPendingTenantSignature)
	if err != nil {
		return nil, mapStoreError(err)
	}
	log.Printf("level=info component=contracts msg=\"contract locked\" contract_id=%s", contractID)

	// each lock is a new revision for the tenant, so it is keyed by the lock's write time
	s.effects.Notify(ctx, updated, updated.TenantID, domain.NotificationContractReadyToSign,
		"A sublease contract is ready for your signature.", strconv.FormatInt(updated.UpdatedAt.UnixNano(), 10), nil)
	return updated, nil
}

// RecallContract pulls a contract awaiting the tenant back into DRAFT.
func (s *Service) RecallContract(ctx context.Context, actorID, contractID uuid.UUID) (*domain.Contract, error) {
	contract, err := s.loadForLister(ctx, actorID, contractID)
	if err != nil {
		return nil, err
	}
	if contract.Status != domain.ContractStatusPendingTenantSignature {
		return nil, conflictError("only a contract awaiting the tenant can be recalled (current status %s)", contract.Status)
	}

	updated, err := s.repo.UpdateContractStatus(ctx, contractID, domain.ContractStatusPendingTenantSignature, domain.ContractStatusDraft)
	if err != nil {
		return nil, mapStoreError(err)
	}
	log.Printf("level=info component=contracts msg=\"contract recalled\" contract_id=%s", contractID)
	return updated, nil
}

// DeleteContract hard-deletes a contract before any signature is attached. The lister
// may delete a DRAFT or a contract awaiting the tenant; the tenant may only decline a
// contract awaiting their signature.
func (s *Service) DeleteContract(ctx context.Context, actorID, contractID uuid.UUID) error {
	contract, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return err
	}
	if !contract.IsParty(actorID) {
		return ErrForbidden
	}
	if contract.Status != domain.ContractStatusDraft && contract.Status != domain.ContractStatusPendingTenantSignature {
		return conflictError("only a DRAFT or a contract awaiting the tenant can be deleted (current status %s)", contract.Status)
	}

	isLister := actorID == contract.ListerID
	if !isLister && contract.Status != domain.ContractStatusPendingTenantSignature {
		return conflictError("tenant can only decline a contract awaiting their signature (current status %s)", contract.Status)
	}

	if err := s.repo.DeleteContract(ctx, contractID, []domain.ContractStatus{contract.Status}); err != nil {
		return mapStoreError(err)
	}
	log.Printf("level=info component=contracts msg=\"contract deleted\" contract_id=%s actor_id=%s status=%s", contractID, actorID, contract.Status)

	if contract.Status == domain.ContractStatusDraft {
		return nil
	}
	if isLister {
		s.effects.Notify(ctx, contract, contract.TenantID, domain.NotificationContractCancelled,
			"The lister cancelled the sublease contract.", "", nil)
	} else {
		s.effects.Notify(ctx, contract, contract.ListerID, domain.NotificationContractDeclined,
			"The tenant declined the sublease contract.", "", nil)
	}
	return nil
}

// PreviewFees computes the snapshot a payment would use, without side effects.
func (s *Service) PreviewFees(ctx context.Context, actorID, contractID uuid.UUID, method string) (*domain.FeeSnapshot, error) {
	method = fees.NormalizeMethod(method)
	if !fees.IsSupportedMethod(method) {
		return nil, validationError("unsupported payment method %q", method)
	}
	contract, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if !contract.IsParty(actorID) {
		return nil, ErrForbidden
	}
	rent := fees.RentCents(contract.Variables)
	if rent <= 0 {
		return nil, validationError("contract rent is missing or not a valid amount")
	}
	snapshot := s.fees.ComputeSnapshot(rent, method, s.now())
	return &snapshot, nil
}

func (s *Service) loadForLister(ctx context.Context, actorID, contractID uuid.UUID) (*domain.Contract, error) {
	contract, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if actorID != contract.ListerID {
		return nil, ErrForbidden
	}
	return contract, nil
}

func validateTemplate(templateHTML string) error {
	if strings.TrimSpace(templateHTML) == "" {
		return validationError("template_html is required")
	}
	if len(templateHTML) > maxTemplateBytes {
		return validationError("template_html exceeds %d bytes", maxTemplateBytes)
	}
	return nil
}

// IsNotFound reports whether err means the contract does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrContractNotFound)
}
