package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
)

const maxSignatureBytes = 2 << 20

var errObjectStorageMissing = errors.New("object storage not configured")

// Signer performs one party's signature transition. CanSign reports the status
// precondition so it is checked before the signature payload is decoded.
type Signer interface {
	CanSign(contract *domain.Contract) error
	Sign(ctx context.Context, contract *domain.Contract, image SignatureImage, ipAddress string) (*domain.Contract, error)
}

// SignatureImage is a decoded signature upload.
type SignatureImage struct {
	Data        []byte
	ContentType string
}

// TenantSigner attaches the tenant signature and hands the contract to the lister.
type TenantSigner struct {
	svc *Service
}

// ListerSigner attaches the lister signature, renders and stores the final PDF, and
// completes the contract.
type ListerSigner struct {
	svc *Service
}

// SignerFor selects the signer variant for the actor, or ErrForbidden for outsiders.
func (s *Service) SignerFor(contract *domain.Contract, actorID uuid.UUID) (Signer, error) {
	switch actorID {
	case contract.TenantID:
		return &TenantSigner{svc: s}, nil
	case contract.ListerID:
		return &ListerSigner{svc: s}, nil
	default:
		return nil, ErrForbidden
	}
}

// SignContract signs the contract as the actor.
func (s *Service) SignContract(ctx context.Context, actorID, contractID uuid.UUID, signaturePayload, ipAddress string) (*domain.Contract, error) {
	contract, err := s.repo.GetContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	signer, err := s.SignerFor(contract, actorID)
	if err != nil {
		return nil, err
	}
	if err := signer.CanSign(contract); err != nil {
		return nil, err
	}
	image, err := DecodeSignatureImage(signaturePayload)
	if err != nil {
		return nil, err
	}
	return signer.Sign(ctx, contract, image, ipAddress)
}

func (t *TenantSigner) CanSign(contract *domain.Contract) error {
	if contract.Status != domain.ContractStatusPendingTenantSignature {
		return conflictError("tenant can only sign a contract awaiting their signature (current status %s)", contract.Status)
	}
	if contract.TenantSignature != nil {
		return conflictError("tenant signature already attached")
	}
	return nil
}

func (t *TenantSigner) Sign(ctx context.Context, contract *domain.Contract, image SignatureImage, ipAddress string) (*domain.Contract, error) {
	s := t.svc
	if err := t.CanSign(contract); err != nil {
		return nil, err
	}

	if s.storage == nil {
		return nil, externalError("upload tenant signature", errObjectStorageMissing)
	}

	now := s.now().UTC()
	url, err := s.storage.Upload(ctx, image.Data, signatureKey(contract.ID, domain.PaymentLegTenant, now.Unix(), image.ContentType), image.ContentType)
	if err != nil {
		return nil, externalError("upload tenant signature", err)
	}

	updated, err := s.repo.AttachTenantSignature(ctx, contract.ID, domain.Signature{URL: url, SignedAt: now, IPAddress: ipAddress})
	if err != nil {
		return nil, mapStoreError(err)
	}
	log.Printf("level=info component=contracts msg=\"tenant signed\" contract_id=%s", contract.ID)

	s.effects.Notify(ctx, updated, updated.ListerID, domain.NotificationContractTenantSigned,
		"The tenant signed the sublease contract. It is ready for your signature.", "", nil)
	return updated, nil
}

func (l *ListerSigner) CanSign(contract *domain.Contract) error {
	if contract.Status != domain.ContractStatusPendingListerSignature {
		return conflictError("lister can only sign after the tenant (current status %s)", contract.Status)
	}
	if contract.TenantSignature == nil || contract.ListerSignature != nil {
		return conflictError("contract signatures are not in a signable state")
	}
	return nil
}

func (l *ListerSigner) Sign(ctx context.Context, contract *domain.Contract, image SignatureImage, ipAddress string) (*domain.Contract, error) {
	s := l.svc
	if err := l.CanSign(contract); err != nil {
		return nil, err
	}

	if s.storage == nil {
		return nil, externalError("upload lister signature", errObjectStorageMissing)
	}
	if s.renderer == nil {
		return nil, externalError("render contract pdf", errors.New("render service not configured"))
	}

	// Nothing below changes status until CompleteContract; any failure leaves the
	// contract in PENDING_LISTER_SIGNATURE and the call can be retried.
	now := s.now().UTC()
	listerURL, err := s.storage.Upload(ctx, image.Data, signatureKey(contract.ID, domain.PaymentLegLister, now.Unix(), image.ContentType), image.ContentType)
	if err != nil {
		return nil, externalError("upload lister signature", err)
	}

	html := domain.RenderTemplate(contract.TemplateHTML, contract.Variables)
	pdf, err := s.renderer.RenderContractPDF(ctx, html, contract.TenantSignature.URL, listerURL)
	if err != nil {
		return nil, externalError("render contract pdf", err)
	}

	pdfURL, err := s.storage.Upload(ctx, pdf, fmt.Sprintf("contracts/%s/final-%d.pdf", contract.ID, now.Unix()), "application/pdf")
	if err != nil {
		return nil, externalError("upload contract pdf", err)
	}

	expiresAt := now.Add(s.paymentWindow)
	completed, err := s.repo.CompleteContract(ctx, contract.ID, domain.Signature{URL: listerURL, SignedAt: now, IPAddress: ipAddress}, pdfURL, expiresAt)
	if err != nil {
		return nil, mapStoreError(err)
	}
	log.Printf("level=info component=contracts msg=\"contract completed\" contract_id=%s payment_expires_at=%s", contract.ID, expiresAt.Format(time.RFC3339))

	s.deactivateListing(ctx, completed)
	message := "The sublease contract is fully signed. The tenant can now complete payment."
	s.effects.Notify(ctx, completed, completed.TenantID, domain.NotificationContractCompleted, message, "", map[string]interface{}{"final_pdf_url": pdfURL})
	s.effects.Notify(ctx, completed, completed.ListerID, domain.NotificationContractCompleted, message, "", map[string]interface{}{"final_pdf_url": pdfURL})
	return completed, nil
}

// DecodeSignatureImage decodes a base64 signature, with or without a data URL prefix,
// and requires the bytes to be an image.
func DecodeSignatureImage(payload string) (SignatureImage, error) {
	raw := strings.TrimSpace(payload)
	if raw == "" {
		return SignatureImage{}, validationError("signature is required")
	}
	if strings.HasPrefix(raw, "data:") {
		comma := strings.Index(raw, ",")
		if comma < 0 {
			return SignatureImage{}, validationError("signature data url is malformed")
		}
		raw = raw[comma+1:]
	}
	if base64.StdEncoding.DecodedLen(len(raw)) > maxSignatureBytes {
		return SignatureImage{}, validationError("signature exceeds %d bytes", maxSignatureBytes)
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
		if err != nil {
			return SignatureImage{}, validationError("signature is not valid base64")
		}
	}
	if len(data) == 0 {
		return SignatureImage{}, validationError("signature image is empty")
	}

	contentType := http.DetectContentType(data)
	if !strings.HasPrefix(contentType, "image/") {
		return SignatureImage{}, validationError("signature must be an image (got %s)", contentType)
	}
	return SignatureImage{Data: data, ContentType: contentType}, nil
}

func signatureKey(contractID uuid.UUID, party domain.PaymentLegName, unix int64, contentType string) string {
	ext := "png"
	switch contentType {
	case "image/jpeg":
		ext = "jpg"
	case "image/gif":
		ext = "gif"
	case "image/webp":
		ext = "webp"
	}
	return fmt.Sprintf("contracts/%s/%s-signature-%d.%s", contractID, party, unix, ext)
}
