package domain

// Gateway event types delivered by the payment gateway webhook.
const (
	GatewayEventSucceeded     = "payment_intent.succeeded"
	GatewayEventProcessing    = "payment_intent.processing"
	GatewayEventCanceled      = "payment_intent.canceled"
	GatewayEventPaymentFailed = "payment_intent.payment_failed"
)

// Normalized gateway intent statuses.
const (
	GatewayStatusPending       = "pending"
	GatewayStatusSucceeded     = "succeeded"
	GatewayStatusProcessing    = "processing"
	GatewayStatusCanceled      = "canceled"
	GatewayStatusPaymentFailed = "payment_failed"
)

// GatewayEvent represents a verified webhook event from the payment gateway.
type GatewayEvent struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	IntentID   string         `json:"payment_intent_id"`
	ContractID string         `json:"contract_id"`
	Leg        PaymentLegName `json:"leg"`
	Status     string         `json:"status"`
}

// StatusForEvent maps a webhook event type onto the normalized gateway status.
func StatusForEvent(eventType string) string {
	switch eventType {
	case GatewayEventSucceeded:
		return GatewayStatusSucceeded
	case GatewayEventProcessing:
		return GatewayStatusProcessing
	case GatewayEventCanceled:
		return GatewayStatusCanceled
	case GatewayEventPaymentFailed:
		return GatewayStatusPaymentFailed
	default:
		return ""
	}
}

// PaymentStatusForGateway maps a normalized gateway status onto the local payment status.
// The boolean is false when the gateway status carries no transition.
func PaymentStatusForGateway(gatewayStatus string) (PaymentStatus, bool) {
	switch gatewayStatus {
	case GatewayStatusSucceeded:
		return PaymentStatusSucceeded, true
	case GatewayStatusProcessing:
		return PaymentStatusProcessing, true
	case GatewayStatusCanceled:
		return PaymentStatusCanceled, true
	case GatewayStatusPaymentFailed:
		return PaymentStatusFailed, true
	default:
		return "", false
	}
}

// GatewayIntent is the gateway's view of a payment intent.
type GatewayIntent struct {
	ID           string
	ClientSecret string
	AmountCents  int64
	// RawStatus is the unmodified gateway status; Status is its normalized form.
	RawStatus string
	Status    string
}

// CreateIntentInput carries what the gateway needs to open a new payment intent.
type CreateIntentInput struct {
	AmountCents    int64
	Currency       string
	PaymentMethod  string
	ContractID     string
	TenantID       string
	ListerID       string
	Leg            PaymentLegName
	IdempotencyKey string
}
