/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the SQL needed for the contract lifecycle, the payment sub-record
 * and the in-app notification inbox.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrContractNotFound = errors.New("contract not found")
	// ErrContractConflict means the guarded write matched no row: the contract moved on
	// to another status, or its payment record was rewritten, between read and write.
	ErrContractConflict = errors.New("contract status changed concurrently")
)

const contractColumns = `
    id, property_id, lister_id, tenant_id, status, template_html, variables,
    tenant_signature_url, tenant_signed_at, tenant_signature_ip,
    lister_signature_url, lister_signed_at, lister_signature_ip,
    final_pdf_url,
    tenant_payment_intent_id, tenant_gateway_status, tenant_payment_status, tenant_processing_notified_at,
    lister_payment_intent_id, lister_gateway_status, lister_payment_status, lister_processing_notified_at,
    payment_expires_at, payment_snapshot, property_leased_at, payment_version,
    created_at, updated_at`

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// FindUserIDByClerkUserID resolves the internal UUID from a Clerk user id.
func (r *PostgresRepository) FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (string, error) {
	var id string
	// users table is managed by auth-service during onboarding
	err := r.db.QueryRow(ctx, "SELECT id FROM users WHERE clerk_user_id = $1", clerkUserID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return id, nil
}

// CreateContract inserts a new DRAFT contract.
func (r *PostgresRepository) CreateContract(ctx context.Context, contract *domain.Contract) error {
	variablesJSON, err := marshalVariables(contract.Variables)
	if err != nil {
		return err
	}

	query := `
        INSERT INTO contracts (id, property_id, lister_id, tenant_id, status, template_html, variables)
        VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)
        RETURNING created_at, updated_at
    `
	return r.db.QueryRow(ctx, query,
		contract.ID,
		contract.PropertyID,
		contract.ListerID,
		contract.TenantID,
		string(contract.Status),
		contract.TemplateHTML,
		variablesJSON,
	).Scan(&contract.CreatedAt, &contract.UpdatedAt)
}

// GetContract retrieves a single contract by id.
func (r *PostgresRepository) GetContract(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`
	return scanContract(r.db.QueryRow(ctx, query, contractID))
}

// ListContractsForUser returns contracts where the user is lister or tenant, newest first.
func (r *PostgresRepository) ListContractsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Contract, error) {
	query := `SELECT ` + contractColumns + `
        FROM contracts
        WHERE lister_id = $1 OR tenant_id = $1
        ORDER BY created_at DESC
        LIMIT 200`
	return r.queryContracts(ctx, query, userID)
}

// UpdateContractContent replaces template and variables while the contract is still a draft.
func (r *PostgresRepository) UpdateContractContent(ctx context.Context, contractID uuid.UUID, templateHTML string, variables domain.Variables) (*domain.Contract, error) {
	variablesJSON, err := marshalVariables(variables)
	if err != nil {
		return nil, err
	}
	query := `
        UPDATE contracts
        SET template_html = $2, variables = $3::jsonb, updated_at = NOW()
        WHERE id = $1 AND status = 'DRAFT'
        RETURNING ` + contractColumns
	return r.guardedUpdate(ctx, contractID, query, contractID, templateHTML, variablesJSON)
}

// UpdateContractStatus moves a contract from one status to another.
func (r *PostgresRepository) UpdateContractStatus(ctx context.Context, contractID uuid.UUID, from, to domain.ContractStatus) (*domain.Contract, error) {
	query := `
        UPDATE contracts
        SET status = $3, updated_at = NOW()
        WHERE id = $1 AND status = $2
        RETURNING ` + contractColumns
	return r.guardedUpdate(ctx, contractID, query, contractID, string(from), string(to))
}

// AttachTenantSignature records the tenant signature and hands the contract to the lister.
func (r *PostgresRepository) AttachTenantSignature(ctx context.Context, contractID uuid.UUID, signature domain.Signature) (*domain.Contract, error) {
	query := `
        UPDATE contracts
        SET tenant_signature_url = $2,
            tenant_signed_at = $3,
            tenant_signature_ip = $4,
            status = 'PENDING_LISTER_SIGNATURE',
            updated_at = NOW()
        WHERE id = $1
          AND status = 'PENDING_TENANT_SIGNATURE'
          AND tenant_signature_url IS NULL
        RETURNING ` + contractColumns
	return r.guardedUpdate(ctx, contractID, query, contractID, signature.URL, signature.SignedAt, signature.IPAddress)
}

// CompleteContract records the lister signature and final PDF and opens the payment window
// in a single statement, so no intermediate state is ever visible.
func (r *PostgresRepository) CompleteContract(ctx context.Context, contractID uuid.UUID, signature domain.Signature, finalPDFURL string, paymentExpiresAt time.Time) (*domain.Contract, error) {
	query := `
        UPDATE contracts
        SET lister_signature_url = $2,
            lister_signed_at = $3,
            lister_signature_ip = $4,
            final_pdf_url = $5,
            status = 'COMPLETED',
            payment_expires_at = $6,
            tenant_payment_status = 'NOT_STARTED',
            lister_payment_status = 'NOT_STARTED',
            updated_at = NOW()
        WHERE id = $1
          AND status = 'PENDING_LISTER_SIGNATURE'
          AND lister_signature_url IS NULL
          AND final_pdf_url IS NULL
        RETURNING ` + contractColumns
	return r.guardedUpdate(ctx, contractID, query,
		contractID, signature.URL, signature.SignedAt, signature.IPAddress, finalPDFURL, paymentExpiresAt)
}

// DeleteContract hard-deletes a contract if its current status is one of allowed.
func (r *PostgresRepository) DeleteContract(ctx context.Context, contractID uuid.UUID, allowed []domain.ContractStatus) error {
	statuses := make([]string, 0, len(allowed))
	for _, s := range allowed {
		statuses = append(statuses, string(s))
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM contracts WHERE id = $1 AND status = ANY($2)`, contractID, statuses)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missingOrConflict(ctx, contractID)
	}
	return nil
}

// savePaymentQuery writes both legs at the version the caller read. A SUCCEEDED leg keeps
// its intent id, gateway status and status whatever the caller sends.
const savePaymentQuery = `
        UPDATE contracts
        SET tenant_payment_intent_id = CASE WHEN tenant_payment_status = 'SUCCEEDED' THEN tenant_payment_intent_id ELSE $2 END,
            tenant_gateway_status = CASE WHEN tenant_payment_status = 'SUCCEEDED' THEN tenant_gateway_status ELSE $3 END,
            tenant_payment_status = CASE WHEN tenant_payment_status = 'SUCCEEDED' THEN 'SUCCEEDED' ELSE $4 END,
            tenant_processing_notified_at = COALESCE(tenant_processing_notified_at, $5),
            lister_payment_intent_id = CASE WHEN lister_payment_status = 'SUCCEEDED' THEN lister_payment_intent_id ELSE $6 END,
            lister_gateway_status = CASE WHEN lister_payment_status = 'SUCCEEDED' THEN lister_gateway_status ELSE $7 END,
            lister_payment_status = CASE WHEN lister_payment_status = 'SUCCEEDED' THEN 'SUCCEEDED' ELSE $8 END,
            lister_processing_notified_at = COALESCE(lister_processing_notified_at, $9),
            payment_expires_at = $10,
            payment_snapshot = $11::jsonb,
            payment_version = payment_version + 1,
            updated_at = NOW()
        WHERE id = $1 AND status = 'COMPLETED' AND payment_version = $12
        RETURNING payment_version
    `

// SavePayment persists both payment legs, the window and the snapshot. The write is a
// compare-and-swap on payment.Version, the version the caller read: a concurrent payment
// write makes it return ErrContractConflict. On success payment.Version is advanced.
// Only completed contracts carry payment state, and a leg that already succeeded keeps
// its status and its intent id.
func (r *PostgresRepository) SavePayment(ctx context.Context, contractID uuid.UUID, payment *domain.Payment) error {
	var snapshotJSON *string
	if payment.Snapshot != nil {
		raw, err := json.Marshal(payment.Snapshot)
		if err != nil {
			return err
		}
		s := string(raw)
		snapshotJSON = &s
	}

	var version int64
	err := r.db.QueryRow(ctx, savePaymentQuery,
		contractID,
		payment.Tenant.IntentID,
		payment.Tenant.GatewayStatus,
		string(payment.Tenant.Status),
		payment.Tenant.ProcessingNotifiedAt,
		payment.Lister.IntentID,
		payment.Lister.GatewayStatus,
		string(payment.Lister.Status),
		payment.Lister.ProcessingNotifiedAt,
		payment.ExpiresAt,
		snapshotJSON,
		payment.Version,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.missingOrConflict(ctx, contractID)
		}
		return err
	}
	payment.Version = version
	return nil
}

// MarkPropertyLeased records that the lease hand-over step finished. It returns false when
// another writer already recorded it.
func (r *PostgresRepository) MarkPropertyLeased(ctx context.Context, contractID uuid.UUID, leasedAt time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
        UPDATE contracts
        SET property_leased_at = $2, updated_at = NOW()
        WHERE id = $1 AND property_leased_at IS NULL
    `, contractID, leasedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListContractsAwaitingLease finds paid contracts whose property hand-over never completed.
func (r *PostgresRepository) ListContractsAwaitingLease(ctx context.Context, limit int) ([]domain.Contract, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + contractColumns + `
        FROM contracts
        WHERE status = 'COMPLETED'
          AND tenant_payment_status = 'SUCCEEDED'
          AND property_leased_at IS NULL
          AND (
            lister_payment_status = 'SUCCEEDED'
            OR (lister_payment_intent_id IS NULL AND lister_payment_status = 'NOT_STARTED')
          )
        ORDER BY updated_at ASC
        LIMIT $1`
	return r.queryContracts(ctx, query, limit)
}

// CreateInAppNotification writes a new inbox notification. With a dedupe key, a repeated
// write is a no-op and reports inserted=false.
func (r *PostgresRepository) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) (bool, error) {
	data := item.Data
	if data == nil {
		data = map[string]interface{}{}
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return false, err
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}

	var dedupeKey *string
	if item.DedupeKey != nil && strings.TrimSpace(*item.DedupeKey) != "" {
		dedupeKey = item.DedupeKey
	}

	query := `
        INSERT INTO in_app_notifications (
            id, user_id, type, message, link, related_entity_type, related_entity_id, data, dedupe_key
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9)
        ON CONFLICT (dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING
    `
	tag, err := r.db.Exec(ctx, query,
		item.ID,
		item.UserID,
		item.Type,
		item.Message,
		nullableString(item.Link),
		nullableString(item.RelatedEntityType),
		item.RelatedEntityID,
		string(dataJSON),
		dedupeKey,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) guardedUpdate(ctx context.Context, contractID uuid.UUID, query string, args ...interface{}) (*domain.Contract, error) {
	contract, err := scanContract(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, ErrContractNotFound) {
		return nil, r.missingOrConflict(ctx, contractID)
	}
	return contract, err
}

// missingOrConflict tells a missing row apart from a lost status guard.
func (r *PostgresRepository) missingOrConflict(ctx context.Context, contractID uuid.UUID) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM contracts WHERE id = $1)`, contractID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrContractNotFound
	}
	return ErrContractConflict
}

func (r *PostgresRepository) queryContracts(ctx context.Context, query string, args ...interface{}) ([]domain.Contract, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contracts := make([]domain.Contract, 0)
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *contract)
	}
	return contracts, rows.Err()
}

func scanContract(row pgx.Row) (*domain.Contract, error) {
	var (
		c                                        domain.Contract
		status                                   string
		variablesJSON, snapshotJSON              []byte
		tenantSigURL, tenantSigIP                *string
		listerSigURL, listerSigIP                *string
		tenantSignedAt, listerSignedAt           *time.Time
		tenantPaymentStatus, listerPaymentStatus string
	)

	err := row.Scan(
		&c.ID, &c.PropertyID, &c.ListerID, &c.TenantID, &status, &c.TemplateHTML, &variablesJSON,
		&tenantSigURL, &tenantSignedAt, &tenantSigIP,
		&listerSigURL, &listerSignedAt, &listerSigIP,
		&c.FinalPDFURL,
		&c.Payment.Tenant.IntentID, &c.Payment.Tenant.GatewayStatus, &tenantPaymentStatus, &c.Payment.Tenant.ProcessingNotifiedAt,
		&c.Payment.Lister.IntentID, &c.Payment.Lister.GatewayStatus, &listerPaymentStatus, &c.Payment.Lister.ProcessingNotifiedAt,
		&c.Payment.ExpiresAt, &snapshotJSON, &c.PropertyLeasedAt, &c.Payment.Version,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrContractNotFound
		}
		return nil, err
	}

	c.Status = domain.ContractStatus(status)
	c.Payment.Tenant.Status = domain.PaymentStatus(tenantPaymentStatus)
	c.Payment.Lister.Status = domain.PaymentStatus(listerPaymentStatus)
	c.TenantSignature = buildSignature(tenantSigURL, tenantSignedAt, tenantSigIP)
	c.ListerSignature = buildSignature(listerSigURL, listerSignedAt, listerSigIP)

	c.Variables = domain.Variables{}
	if len(variablesJSON) > 0 {
		if err := json.Unmarshal(variablesJSON, &c.Variables); err != nil {
			return nil, fmt.Errorf("decode contract variables: %w", err)
		}
	}
	if len(snapshotJSON) > 0 {
		var snapshot domain.FeeSnapshot
		if err := json.Unmarshal(snapshotJSON, &snapshot); err != nil {
			return nil, fmt.Errorf("decode payment snapshot: %w", err)
		}
		c.Payment.Snapshot = &snapshot
	}
	return &c, nil
}

func buildSignature(url *string, signedAt *time.Time, ip *string) *domain.Signature {
	if url == nil || *url == "" {
		return nil
	}
	sig := &domain.Signature{URL: *url}
	if signedAt != nil {
		sig.SignedAt = *signedAt
	}
	if ip != nil {
		sig.IPAddress = *ip
	}
	return sig
}

func marshalVariables(variables domain.Variables) (string, error) {
	if variables == nil {
		variables = domain.Variables{}
	}
	raw, err := json.Marshal(variables)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
