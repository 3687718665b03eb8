package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
	"github.com/sbalsara05/Burrow-Housing-sub000/pkg/rabbitmq"
)

const sideEffectTimeout = 10 * time.Second

// SideEffectDispatcher writes in-app notifications and queues emails. Every failure is
// logged and swallowed.
type SideEffectDispatcher struct {
	repo            store.Repository
	publisher       rabbitmq.Publisher
	frontendBaseURL string
}

func NewSideEffectDispatcher(repo store.Repository, publisher rabbitmq.Publisher, frontendBaseURL string) *SideEffectDispatcher {
	if publisher == nil {
		publisher = &rabbitmq.EventProducerFallback{}
	}
	return &SideEffectDispatcher{
		repo:            repo,
		publisher:       publisher,
		frontendBaseURL: strings.TrimRight(strings.TrimSpace(frontendBaseURL), "/"),
	}
}

// NotificationDedupeKey identifies one side effect for one user. discriminator separates
// repeated effects of the same type, e.g. two different payment intents failing.
func NotificationDedupeKey(contractID uuid.UUID, notifType string, userID uuid.UUID, discriminator string) string {
	key := fmt.Sprintf("contract:%s:%s:%s", contractID, notifType, userID)
	if discriminator != "" {
		key += ":" + discriminator
	}
	return key
}

// Notify records an in-app notification and, when it was newly inserted, queues the
// matching email.
func (d *SideEffectDispatcher) Notify(ctx context.Context, contract *domain.Contract, userID uuid.UUID, notifType, message, discriminator string, data map[string]interface{}) {
	if d == nil || contract == nil {
		return
	}
	// detach from the request so a client disconnect does not drop the side effect
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	payload := map[string]interface{}{
		"contract_id": contract.ID.String(),
		"property_id": contract.PropertyID.String(),
	}
	for k, v := range data {
		payload[k] = v
	}

	dedupeKey := NotificationDedupeKey(contract.ID, notifType, userID, discriminator)
	contractID := contract.ID
	inserted, err := d.repo.CreateInAppNotification(ctx, domain.InAppNotification{
		ID:                uuid.New(),
		UserID:            userID,
		Type:              notifType,
		Message:           message,
		Link:              d.contractLink(contract.ID),
		RelatedEntityType: "contract",
		RelatedEntityID:   &contractID,
		Data:              payload,
		DedupeKey:         &dedupeKey,
	})
	if err != nil {
		log.Printf("level=error component=side_effects msg=\"in-app notification failed\" contract_id=%s user_id=%s type=%s err=%v", contract.ID, userID, notifType, err)
		return
	}
	if !inserted {
		log.Printf("level=info component=side_effects msg=\"duplicate notification skipped\" contract_id=%s user_id=%s type=%s", contract.ID, userID, notifType)
		return
	}

	payload["message"] = message
	payload["link"] = d.contractLink(contract.ID)
	if err := d.publisher.PublishEmail(ctx, domain.EmailMessage{
		UserID:    userID,
		Type:      notifType,
		Data:      payload,
		QueuedAt:  time.Now().UTC(),
		DedupeKey: dedupeKey,
	}); err != nil {
		log.Printf("level=error component=side_effects msg=\"email queue failed\" contract_id=%s user_id=%s type=%s err=%v", contract.ID, userID, notifType, err)
	}
}

func (d *SideEffectDispatcher) contractLink(contractID uuid.UUID) string {
	return fmt.Sprintf("%s/contracts/%s", d.frontendBaseURL, contractID)
}
