package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification types emitted by the contract lifecycle and payment reconciliation.
const (
	NotificationContractReadyToSign  = "contract_ready_to_sign"
	NotificationContractTenantSigned = "contract_tenant_signed"
	NotificationContractCompleted    = "contract_completed"
	NotificationContractCancelled    = "contract_cancelled"
	NotificationContractDeclined     = "contract_declined"
	NotificationPaymentProcessing    = "payment_processing"
	NotificationPaymentSucceeded     = "payment_succeeded"
	NotificationPaymentReceived      = "payment_received"
	NotificationPaymentFailed        = "payment_failed"
	NotificationPaymentExpired       = "payment_expired"
)

// InAppNotification is a row of the in-app inbox. DedupeKey makes repeated writes of the
// same side effect a no-op.
type InAppNotification struct {
	ID                uuid.UUID              `json:"id"`
	UserID            uuid.UUID              `json:"user_id"`
	Type              string                 `json:"type"`
	Message           string                 `json:"message"`
	Link              string                 `json:"link,omitempty"`
	RelatedEntityType string                 `json:"related_entity_type,omitempty"`
	RelatedEntityID   *uuid.UUID             `json:"related_entity_id,omitempty"`
	Data              map[string]interface{} `json:"data,omitempty"`
	DedupeKey         *string                `json:"-"`
	ReadAt            *time.Time             `json:"read_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// EmailMessage is the payload queued for the email worker.
type EmailMessage struct {
	UserID    uuid.UUID              `json:"user_id"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	QueuedAt  time.Time              `json:"queued_at"`
	DedupeKey string                 `json:"dedupe_key,omitempty"`
}

// PropertyUpdate is sent to the property collaborator.
type PropertyUpdate struct {
	Status         string `json:"status"`
	LeaseTakenOver bool   `json:"leaseTakenOver"`
}

const (
	PropertyStatusInactive = "inactive"
	PropertyStatusLeased   = "leased"
)
