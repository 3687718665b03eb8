/**
 * @description
 * This file defines the core domain models for the contract-service.
 * The Contract aggregate carries the document lifecycle (draft → signed → completed)
 * and the payment sub-record that is reconciled against the payment gateway.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (cents), which avoids
 *   floating-point inaccuracies with financial data.
 * - Payment fields stay at their defaults until the contract reaches COMPLETED.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// ContractStatus is the document lifecycle state of a contract.
type ContractStatus string

const (
	ContractStatusDraft                  ContractStatus = "DRAFT"
	ContractStatusPendingTenantSignature ContractStatus = "PENDING_TENANT_SIGNATURE"
	ContractStatusPendingListerSignature ContractStatus = "PENDING_LISTER_SIGNATURE"
	ContractStatusCompleted              ContractStatus = "COMPLETED"
	ContractStatusCancelled              ContractStatus = "CANCELLED"
)

// PaymentStatus is the local view of one payment leg.
type PaymentStatus string

const (
	PaymentStatusNotStarted PaymentStatus = "NOT_STARTED"
	PaymentStatusPending    PaymentStatus = "PENDING"
	PaymentStatusProcessing PaymentStatus = "PROCESSING"
	PaymentStatusSucceeded  PaymentStatus = "SUCCEEDED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusCanceled   PaymentStatus = "CANCELED"
	PaymentStatusExpired    PaymentStatus = "EXPIRED"
)

// PaymentLegName identifies which party a payment leg belongs to.
type PaymentLegName string

const (
	PaymentLegTenant PaymentLegName = "tenant"
	PaymentLegLister PaymentLegName = "lister"
)

// Signature is an append-only signature record.
type Signature struct {
	URL       string    `json:"url"`
	SignedAt  time.Time `json:"signed_at"`
	IPAddress string    `json:"ip_address"`
}

// PaymentLeg mirrors one gateway payment intent.
type PaymentLeg struct {
	IntentID             *string       `json:"payment_intent_id,omitempty"`
	GatewayStatus        string        `json:"gateway_status,omitempty"`
	Status               PaymentStatus `json:"payment_status"`
	ProcessingNotifiedAt *time.Time    `json:"-"`
}

// HasActiveIntent reports whether the leg references an intent that can still be paid.
func (l PaymentLeg) HasActiveIntent() bool {
	if l.IntentID == nil || *l.IntentID == "" {
		return false
	}
	switch l.Status {
	case PaymentStatusSucceeded, PaymentStatusCanceled, PaymentStatusExpired:
		return false
	default:
		return true
	}
}

// Settled reports whether the leg no longer blocks the lease hand-over. A leg that never
// had an intent attached is settled because its fee is netted from the payout.
func (l PaymentLeg) Settled() bool {
	if l.Status == PaymentStatusSucceeded {
		return true
	}
	return l.IntentID == nil && (l.Status == "" || l.Status == PaymentStatusNotStarted)
}

// FeeSnapshot is the immutable record of the amounts computed when an intent was created.
type FeeSnapshot struct {
	BaseAmountCents     int64     `json:"base_amount_cents"`
	TenantFeeCents      int64     `json:"tenant_fee_cents"`
	ListerFeeCents      int64     `json:"lister_fee_cents"`
	CardSurchargeCents  int64     `json:"card_surcharge_cents"`
	PaymentMethod       string    `json:"payment_method"`
	AmountToChargeCents int64     `json:"amount_to_charge_cents"`
	AmountToPayoutCents int64     `json:"amount_to_payout_cents"`
	TenantFeeBps        int64     `json:"tenant_fee_bps"`
	ListerFeeBps        int64     `json:"lister_fee_bps"`
	CardSurchargeBps    int64     `json:"card_surcharge_bps"`
	ComputedAt          time.Time `json:"computed_at"`
}

// Payment is the payment sub-record of a contract.
type Payment struct {
	Tenant    PaymentLeg   `json:"tenant"`
	Lister    PaymentLeg   `json:"lister"`
	ExpiresAt *time.Time   `json:"payment_expires_at,omitempty"`
	Snapshot  *FeeSnapshot `json:"snapshot,omitempty"`
	// Version is the stored payment_version this copy was read at.
	Version   int64        `json:"-"`
}

// Leg returns a pointer to the named leg so callers can mutate it in place.
func (p *Payment) Leg(name PaymentLegName) *PaymentLeg {
	if name == PaymentLegLister {
		return &p.Lister
	}
	return &p.Tenant
}

// Contract is the sublease agreement between a lister and a tenant.
// This struct maps directly to the `contracts` table in the database.
type Contract struct {
	ID               uuid.UUID      `json:"id"`
	PropertyID       uuid.UUID      `json:"property_id"`
	ListerID         uuid.UUID      `json:"lister_id"`
	TenantID         uuid.UUID      `json:"tenant_id"`
	Status           ContractStatus `json:"status"`
	TemplateHTML     string         `json:"template_html"`
	Variables        Variables      `json:"variables"`
	TenantSignature  *Signature     `json:"tenant_signature,omitempty"`
	ListerSignature  *Signature     `json:"lister_signature,omitempty"`
	FinalPDFURL      *string        `json:"final_pdf_url,omitempty"`
	Payment          Payment        `json:"payment"`
	PropertyLeasedAt *time.Time     `json:"property_leased_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsParty reports whether the user is the lister or the tenant of the contract.
func (c *Contract) IsParty(userID uuid.UUID) bool {
	return c.ListerID == userID || c.TenantID == userID
}

// FullyPaid reports whether both legs are settled on a completed contract.
func (c *Contract) FullyPaid() bool {
	return c.Status == ContractStatusCompleted &&
		c.Payment.Tenant.Status == PaymentStatusSucceeded &&
		c.Payment.Lister.Settled()
}

// Payer returns the user who pays on the given leg, and the counterparty.
func (c *Contract) Payer(leg PaymentLegName) (payer uuid.UUID, counterparty uuid.UUID) {
	if leg == PaymentLegLister {
		return c.ListerID, c.TenantID
	}
	return c.TenantID, c.ListerID
}

// CreateContractRequest is the DTO for drafting a new contract.
type CreateContractRequest struct {
	PropertyID   uuid.UUID `json:"property_id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	TemplateHTML string    `json:"template_html"`
	Variables    Variables `json:"variables"`
}

// UpdateContractRequest is the DTO for editing a draft.
type UpdateContractRequest struct {
	TemplateHTML *string   `json:"template_html,omitempty"`
	Variables    Variables `json:"variables,omitempty"`
}

// SignContractRequest carries a base64 encoded signature image.
type SignContractRequest struct {
	Signature string `json:"signature"`
}

// CreatePaymentIntentRequest is the DTO for starting (or resuming) the tenant payment.
type CreatePaymentIntentRequest struct {
	ContractID    uuid.UUID `json:"contract_id"`
	PaymentMethod string    `json:"payment_method"`
}

// PaymentIntentResult is returned to the client-side payment form.
type PaymentIntentResult struct {
	ClientSecret    string        `json:"client_secret"`
	PaymentIntentID string        `json:"payment_intent_id"`
	AmountCents     int64         `json:"amount_cents"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Snapshot        *FeeSnapshot  `json:"snapshot"`
}
