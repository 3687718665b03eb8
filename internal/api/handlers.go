/**
 * @description
 * This file contains the HTTP handlers for the contract lifecycle endpoints. Handlers
 * parse the request, resolve the authenticated user, call the application service and
 * translate its errors into HTTP status codes.
 *
 * @dependencies
 * - internal/app, internal/domain, internal/store: service logic, models and errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/app"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
)

const (
	maxContractBodyBytes  = 1 << 20
	maxSignatureBodyBytes = 4 << 20
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service *app.Service
	// production hides upstream error detail from clients.
	production bool
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service *app.Service, production bool) *Handlers {
	return &Handlers{service: service, production: production}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type contractListResponse struct {
	Contracts []domain.Contract `json:"contracts"`
}

// CreateContractHandler drafts a new contract for the authenticated lister.
func (h *Handlers) CreateContractHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	var req domain.CreateContractRequest
	if !h.decodeBody(w, r, maxContractBodyBytes, &req) {
		return
	}

	contract, err := h.service.CreateContract(r.Context(), actorID, req)
	if err != nil {
		h.writeServiceError(w, "create_contract", err)
		return
	}
	h.writeJSON(w, http.StatusCreated, contract)
}

// ListContractsHandler returns the contracts the user is a party to.
func (h *Handlers) ListContractsHandler(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actorID(w, r)
	if !ok {
		return
	}
	contracts, err := h.service.ListContracts(r.Context(), actorID)
	if err != nil {
		h.writeServiceError(w, "list_contracts", err)
		return
	}
	if contracts == nil {
		contracts = []domain.Contract{}
	}
	h.writeJSON(w, http.StatusOK, contractListResponse{Contracts: contracts})
}

// GetContractHandler returns one contract with its payment state reconciled.
func (h *Handlers) GetContractHandler(w http.ResponseWriter, r *http.Request) {
	actorID, contractID, ok := h.actorAndContract(w, r)
	if !ok {
		return
	}
	contract, err := h.service.GetContract(r.Context(), actorID, contractID)
	if err != nil {
		h.writeServiceError(w, "get_contract", err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

// EditContractHandler updates a draft.
func (h *Handlers) EditContractHandler(w http.ResponseWriter, r *http.Request) {
	actorID, contractID, ok := h.actorAndContract(w, r)
	if !ok {
		return
	}
	var req domain.UpdateContractRequest
	if !h.decodeBody(w, r, maxContractBodyBytes, &req) {
		return
	}
	contract, err := h.service.EditContract(r.Context(), actorID, contractID, req)
	if err != nil {
		h.writeServiceError(w, "edit_contract", err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

// LockContractHandler sends a draft to the tenant.
func (h *Handlers) LockContractHandler(w http.ResponseWriter, r *http.Request) {
	actorID, contractID, ok := h.actorAndContract(w, r)
	if !ok {
		return
	}
	contract, err := h.service.LockContract(r.Context(), actorID, contractID)
	if err != nil {
		h.writeServiceError(w, "lock_contract", err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

// RecallContractHandler returns a contract awaiting the tenant to DRAFT.
func (h *Handlers) RecallContractHandler(w http.ResponseWriter, r *http.Request) {
	actorID, contractID, ok := h.actorAndContract(w, r)
	if !ok {
		return
	}
	contract, err := h.service.RecallContract(r.Context(), actorID, contractID)
	if err != nil {
		h.writeServiceError(w, "recall_contract", err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

// SignContractHandler signs as the tenant or the lister, depending on the caller.
func (h *Handlers) SignContractHandler(w http.ResponseWriter, r *http.Request) {
	actorID, contractID, ok := h.actorAndContract(w, r)
	if !ok {
		return
	}
	var req domain.SignContractRequest
	if !h.decodeBody(w, r, maxSignatureBodyBytes, &req) {
		return
	}
	contract, err := h.service.SignContract(r.Context(), actorID, contractID, req.Signature, clientIP(r))
	if err != nil {
		h.writeServiceError(w, "sign_contract", err)
		return
	}
	h.writeJSON(w, http.StatusOK, contract)
}

// DeleteContractHandler deletes (lister) or declines (tenant) a contract.
func (h *Handlers) DeleteContractHandler(w http.ResponseWriter, r *http.Request) {
	actorID, contractID, ok := h.actorAndContract(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteContract(r.Context(), actorID, contractID); err != nil {
		h.writeServiceError(w, "delete_contract", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PreviewFeesHandler returns the fee breakdown for a payment method.
func (h *Handlers) PreviewFeesHandler(w http.ResponseWriter, r *http.Request) {
	actorID, contractID, ok := h.actorAndContract(w, r)
	if !ok {
		return
	}
	snapshot, err := h.service.PreviewFees(r.Context(), actorID, contractID, r.URL.Query().Get("method"))
	if err != nil {
		h.writeServiceError(w, "preview_fees", err)
		return
	}
	h.writeJSON(w, http.StatusOK, snapshot)
}

// actorID resolves the authenticated Clerk user to the internal user id.
func (h *Handlers) actorID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	clerkUserID, ok := GetClerkUserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Could not get user ID from context", "unauthenticated")
		return uuid.Nil, false
	}
	internalID, err := h.service.ResolveInternalUserID(r.Context(), clerkUserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			log.Printf("level=warn component=api outcome=reject reason=user_not_found clerk_user_id=%s", clerkUserID)
			h.writeError(w, http.StatusUnauthorized, "User not found", "user_not_found")
			return uuid.Nil, false
		}
		log.Printf("level=error component=api msg=\"user resolution failed\" clerk_user_id=%s err=%v", clerkUserID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error", "internal_error")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(internalID)
	if err != nil {
		log.Printf("level=error component=api outcome=reject reason=invalid_user_id internal_user_id=%s", internalID)
		h.writeError(w, http.StatusInternalServerError, "Invalid user ID format", "internal_error")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handlers) actorAndContract(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	contractID, ok := h.contractIDParam(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	actorID, ok := h.actorID(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return actorID, contractID, true
}

func (h *Handlers) contractIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	contractID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid contract ID", "validation_error")
		return uuid.Nil, false
	}
	return contractID, true
}

func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, limit int64, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "Request body too large", "validation_error")
			return false
		}
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err), "validation_error")
		return false
	}
	return true
}

// writeServiceError maps application errors onto HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var rateErr *app.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please wait and try again.", "rate_limited")
	case errors.Is(err, app.ErrValidation), errors.Is(err, app.ErrInvalidWebhook):
		h.writeError(w, http.StatusBadRequest, err.Error(), "validation_error")
	case errors.Is(err, app.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "You are not allowed to perform this action on the contract", "forbidden")
	case errors.Is(err, store.ErrContractNotFound):
		h.writeError(w, http.StatusNotFound, "Contract not found", "not_found")
	case errors.Is(err, app.ErrPaymentWindowExpired):
		h.writeError(w, http.StatusGone, "The payment window for this contract has expired", "payment_window_expired")
	case errors.Is(err, app.ErrStateConflict):
		h.writeError(w, http.StatusConflict, err.Error(), "state_conflict")
	case errors.Is(err, app.ErrExternalService):
		log.Printf("level=error component=api endpoint=%s outcome=failed reason=external_service err=%v", endpoint, err)
		message := err.Error()
		if h.production {
			message = "An upstream service is unavailable. Please try again."
		}
		h.writeError(w, http.StatusBadGateway, message, "external_service_error")
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error", "internal_error")
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// clientIP returns the remote address without the port. RealIP has already applied
// the proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
