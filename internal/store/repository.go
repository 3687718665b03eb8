/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the contract-service. The application layer only
 * depends on this interface, so reconciliation and lifecycle logic can be tested with
 * in-memory stubs.
 *
 * @notes
 * - Every status-changing write is guarded by the expected current status. A write that
 *   loses a race returns ErrContractConflict instead of silently overwriting.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Resolve internal UUID from Clerk user id (e.g., "user_abc123").
	FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (string, error)

	// Contract lifecycle methods
	CreateContract(ctx context.Context, contract *domain.Contract) error
	GetContract(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error)
	ListContractsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Contract, error)
	UpdateContractContent(ctx context.Context, contractID uuid.UUID, templateHTML string, variables domain.Variables) (*domain.Contract, error)
	UpdateContractStatus(ctx context.Context, contractID uuid.UUID, from, to domain.ContractStatus) (*domain.Contract, error)
	AttachTenantSignature(ctx context.Context, contractID uuid.UUID, signature domain.Signature) (*domain.Contract, error)
	CompleteContract(ctx context.Context, contractID uuid.UUID, signature domain.Signature, finalPDFURL string, paymentExpiresAt time.Time) (*domain.Contract, error)
	DeleteContract(ctx context.Context, contractID uuid.UUID, allowed []domain.ContractStatus) error

	// Payment methods. SavePayment is a compare-and-swap on payment.Version.
	SavePayment(ctx context.Context, contractID uuid.UUID, payment *domain.Payment) error
	MarkPropertyLeased(ctx context.Context, contractID uuid.UUID, leasedAt time.Time) (bool, error)
	ListContractsAwaitingLease(ctx context.Context, limit int) ([]domain.Contract, error)

	// In-app notification methods
	CreateInAppNotification(ctx context.Context, item domain.InAppNotification) (bool, error)
}
