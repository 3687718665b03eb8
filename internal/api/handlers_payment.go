package api

import (
	"io"
	"log"
	"net/http"

	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

const maxWebhookBodyBytes = 1 << 20

type webhookAckResponse struct {
	Received bool `json:"received"`
}

type leaseRepairResponse struct {
	Repaired int `json:"repaired"`
	Failed   int `json:"failed"`
}

// CreatePaymentIntentHandler creates or resumes the tenant payment for a contract.
func (h *Handlers) CreatePaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	var req domain.CreatePaymentIntentRequest
	if !h.decodeBody(w, r, maxContractBodyBytes, &req) {
		return
	}

	result, err := h.service.CreatePaymentIntent(r.Context(), actorID, req)
	if err != nil {
		h.writeServiceError(w, "create_payment_intent", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// GatewayWebhookHandler receives payment gateway events. The raw body is needed for
// signature verification, so it is read before any decoding.
func (h *Handlers) GatewayWebhookHandler(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Unable to read request body", "validation_error")
		return
	}

	if err := h.service.HandleGatewayWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		log.Printf("level=warn component=webhook outcome=failed err=%v", err)
		h.writeServiceError(w, "gateway_webhook", err)
		return
	}
	h.writeJSON(w, http.StatusOK, webhookAckResponse{Received: true})
}

// RepairLeasesHandler runs one lease repair pass.
func (h *Handlers) RepairLeasesHandler(w http.ResponseWriter, r *http.Request) {
	repaired, failed, err := h.service.RepairPendingLeases(r.Context())
	if err != nil {
		h.writeServiceError(w, "repair_leases", err)
		return
	}
	h.writeJSON(w, http.StatusOK, leaseRepairResponse{Repaired: repaired, Failed: failed})
}

// ReconcileContractHandler converges one contract's payment state with the gateway.
func (h *Handlers) ReconcileContractHandler(w http.ResponseWriter, r *http.Request) {
	contractID, ok := h.contractIDParam(w, r)
	if !ok {
		return
	}
	contract, err := h.service.ReconcileContractByID(r.Context(), contractID)
	if err != nil {
		h.writeServiceError(w, "reconcile_contract", err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}
