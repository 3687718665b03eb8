package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/fees"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
)

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// contractRepoStub is an in-memory store that enforces the same status guards as the
// postgres repository.
type contractRepoStub struct {
	store.Repository

	mu            sync.Mutex
	contracts     map[uuid.UUID]domain.Contract
	notifications []domain.InAppNotification
	dedupe        map[string]bool

	savePaymentErr   error
	savePaymentCalls int
	markLeasedCalls  int
	// racePaymentWrite advances the stored payment version once, as if another writer
	// saved between the caller's read and its SavePayment.
	racePaymentWrite bool
}

func newContractRepoStub(contracts ...domain.Contract) *contractRepoStub {
	repo := &contractRepoStub{contracts: map[uuid.UUID]domain.Contract{}, dedupe: map[string]bool{}}
	for _, c := range contracts {
		repo.contracts[c.ID] = c
	}
	return repo
}

func (r *contractRepoStub) get(id uuid.UUID) (domain.Contract, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[id]
	return c, ok
}

func (r *contractRepoStub) notificationTypesFor(userID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.notifications {
		if n.UserID == userID {
			out = append(out, n.Type)
		}
	}
	return out
}

func (r *contractRepoStub) CreateContract(ctx context.Context, contract *domain.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	contract.CreatedAt = testNow
	contract.UpdatedAt = testNow
	r.contracts[contract.ID] = *contract
	return nil
}

func (r *contractRepoStub) GetContract(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error) {
	c, ok := r.get(contractID)
	if !ok {
		return nil, store.ErrContractNotFound
	}
	return &c, nil
}

func (r *contractRepoStub) ListContractsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Contract
	for _, c := range r.contracts {
		if c.IsParty(userID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *contractRepoStub) guarded(contractID uuid.UUID, from domain.ContractStatus, mutate func(c *domain.Contract)) (*domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[contractID]
	if !ok {
		return nil, store.ErrContractNotFound
	}
	if c.Status != from {
		return nil, store.ErrContractConflict
	}
	mutate(&c)
	// mirrors updated_at = NOW() on every guarded write
	c.UpdatedAt = c.UpdatedAt.Add(time.Second)
	r.contracts[contractID] = c
	out := c
	return &out, nil
}

func (r *contractRepoStub) UpdateContractContent(ctx context.Context, contractID uuid.UUID, templateHTML string, variables domain.Variables) (*domain.Contract, error) {
	return r.guarded(contractID, domain.ContractStatusDraft, func(c *domain.Contract) {
		c.TemplateHTML = templateHTML
		c.Variables = variables
	})
}

func (r *contractRepoStub) UpdateContractStatus(ctx context.Context, contractID uuid.UUID, from, to domain.ContractStatus) (*domain.Contract, error) {
	return r.guarded(contractID, from, func(c *domain.Contract) { c.Status = to })
}

func (r *contractRepoStub) AttachTenantSignature(ctx context.Context, contractID uuid.UUID, signature domain.Signature) (*domain.Contract, error) {
	return r.guarded(contractID, domain.ContractStatusPendingTenantSignature, func(c *domain.Contract) {
		sig := signature
		c.TenantSignature = &sig
		c.Status = domain.ContractStatusPendingListerSignature
	})
}

func (r *contractRepoStub) CompleteContract(ctx context.Context, contractID uuid.UUID, signature domain.Signature, finalPDFURL string, paymentExpiresAt time.Time) (*domain.Contract, error) {
	return r.guarded(contractID, domain.ContractStatusPendingListerSignature, func(c *domain.Contract) {
		sig := signature
		url := finalPDFURL
		exp := paymentExpiresAt
		c.ListerSignature = &sig
		c.FinalPDFURL = &url
		c.Status = domain.ContractStatusCompleted
		c.Payment.ExpiresAt = &exp
		c.Payment.Tenant.Status = domain.PaymentStatusNotStarted
		c.Payment.Lister.Status = domain.PaymentStatusNotStarted
	})
}

func (r *contractRepoStub) DeleteContract(ctx context.Context, contractID uuid.UUID, allowed []domain.ContractStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[contractID]
	if !ok {
		return store.ErrContractNotFound
	}
	for _, s := range allowed {
		if c.Status == s {
			delete(r.contracts, contractID)
			return nil
		}
	}
	return store.ErrContractConflict
}

func (r *contractRepoStub) SavePayment(ctx context.Context, contractID uuid.UUID, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.savePaymentCalls++
	if r.savePaymentErr != nil {
		return r.savePaymentErr
	}
	c, ok := r.contracts[contractID]
	if !ok {
		return store.ErrContractNotFound
	}
	if r.racePaymentWrite {
		r.racePaymentWrite = false
		c.Payment.Version++
		r.contracts[contractID] = c
	}
	if c.Status != domain.ContractStatusCompleted || c.Payment.Version != payment.Version {
		return store.ErrContractConflict
	}
	next := *payment
	if c.Payment.Tenant.Status == domain.PaymentStatusSucceeded {
		next.Tenant = c.Payment.Tenant
	}
	if c.Payment.Lister.Status == domain.PaymentStatusSucceeded {
		next.Lister = c.Payment.Lister
	}
	next.Version = c.Payment.Version + 1
	c.Payment = next
	r.contracts[contractID] = c
	payment.Version = next.Version
	return nil
}

func (r *contractRepoStub) MarkPropertyLeased(ctx context.Context, contractID uuid.UUID, leasedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markLeasedCalls++
	c, ok := r.contracts[contractID]
	if !ok || c.PropertyLeasedAt != nil {
		return false, nil
	}
	at := leasedAt
	c.PropertyLeasedAt = &at
	r.contracts[contractID] = c
	return true, nil
}

func (r *contractRepoStub) ListContractsAwaitingLease(ctx context.Context, limit int) ([]domain.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Contract
	for _, c := range r.contracts {
		if c.FullyPaid() && c.PropertyLeasedAt == nil {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *contractRepoStub) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if item.DedupeKey != nil {
		if r.dedupe[*item.DedupeKey] {
			return false, nil
		}
		r.dedupe[*item.DedupeKey] = true
	}
	r.notifications = append(r.notifications, item)
	return true, nil
}

type gatewayStub struct {
	mu        sync.Mutex
	created   []domain.CreateIntentInput
	canceled  []string
	intents   map[string]*domain.GatewayIntent
	createErr error
	getErr    error
	cancelErr error
	seq       int
	// byKey mimics gateway idempotency keys
	byKey map[string]string
	// onCancel and onRetrieve run once, outside the lock, before the call returns. They
	// let a test interleave another payment write with an in-flight gateway call.
	onCancel   func(intentID string)
	onRetrieve func(intentID string)
}

func (g *gatewayStub) takeHook(hook *func(intentID string)) func(intentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn := *hook
	*hook = nil
	return fn
}

func newGatewayStub() *gatewayStub {
	return &gatewayStub{intents: map[string]*domain.GatewayIntent{}, byKey: map[string]string{}}
}

func (g *gatewayStub) CreateIntent(ctx context.Context, input domain.CreateIntentInput) (*domain.GatewayIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	if id, ok := g.byKey[input.IdempotencyKey]; ok && input.IdempotencyKey != "" {
		intent := *g.intents[id]
		return &intent, nil
	}
	g.seq++
	g.created = append(g.created, input)
	id := fmt.Sprintf("pi_%d", g.seq)
	intent := &domain.GatewayIntent{
		ID:           id,
		ClientSecret: id + "_secret",
		AmountCents:  input.AmountCents,
		RawStatus:    "requires_payment_method",
		Status:       "requires_payment_method",
	}
	g.intents[id] = intent
	g.byKey[input.IdempotencyKey] = id
	out := *intent
	return &out, nil
}

func (g *gatewayStub) RetrieveIntent(ctx context.Context, intentID string) (*domain.GatewayIntent, error) {
	if hook := g.takeHook(&g.onRetrieve); hook != nil {
		hook(intentID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.getErr != nil {
		return nil, g.getErr
	}
	intent, ok := g.intents[intentID]
	if !ok {
		return nil, errors.New("no such intent")
	}
	out := *intent
	return &out, nil
}

func (g *gatewayStub) CancelIntent(ctx context.Context, intentID string) error {
	if hook := g.takeHook(&g.onCancel); hook != nil {
		hook(intentID)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.canceled = append(g.canceled, intentID)
	if g.cancelErr != nil {
		return g.cancelErr
	}
	if intent, ok := g.intents[intentID]; ok {
		intent.Status = domain.GatewayStatusCanceled
		intent.RawStatus = "canceled"
	}
	return nil
}

func (g *gatewayStub) setStatus(intentID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intents[intentID].Status = status
	g.intents[intentID].RawStatus = status
}

type storageStub struct {
	uploads []string
	err     error
	// failOn fails only uploads whose content type matches
	failOn string
}

func (s *storageStub) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
	if s.err != nil && (s.failOn == "" || s.failOn == contentType) {
		return "", s.err
	}
	s.uploads = append(s.uploads, key)
	return "https://cdn.test/" + key, nil
}

type rendererStub struct {
	html  string
	calls int
	err   error
}

func (r *rendererStub) RenderContractPDF(ctx context.Context, html, tenantSignatureURL, listerSignatureURL string) ([]byte, error) {
	r.calls++
	r.html = html
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.7"), nil
}

type propertyStub struct {
	mu      sync.Mutex
	updates []domain.PropertyUpdate
	err     error
}

func (p *propertyStub) UpdateProperty(ctx context.Context, propertyID uuid.UUID, update domain.PropertyUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.updates = append(p.updates, update)
	return nil
}

func (p *propertyStub) count(status string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, u := range p.updates {
		if u.Status == status {
			n++
		}
	}
	return n
}

type publisherStub struct {
	mu     sync.Mutex
	emails []domain.EmailMessage
	err    error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *publisherStub) PublishEmail(ctx context.Context, msg domain.EmailMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.emails = append(p.emails, msg)
	return nil
}

func (p *publisherStub) Close() {}

type verifierStub struct {
	event *domain.GatewayEvent
	err   error
}

func (v *verifierStub) ParseWebhook(payload []byte, signatureHeader string) (*domain.GatewayEvent, error) {
	if v.err != nil {
		return nil, v.err
	}
	return v.event, nil
}

type testHarness struct {
	svc        *Service
	repo       *contractRepoStub
	gateway    *gatewayStub
	storage    *storageStub
	renderer   *rendererStub
	properties *propertyStub
	publisher  *publisherStub
	verifier   *verifierStub
	now        time.Time
}

func newTestHarness(contracts ...domain.Contract) *testHarness {
	h := &testHarness{
		repo:       newContractRepoStub(contracts...),
		gateway:    newGatewayStub(),
		storage:    &storageStub{},
		renderer:   &rendererStub{},
		properties: &propertyStub{},
		publisher:  &publisherStub{},
		verifier:   &verifierStub{},
		now:        testNow,
	}
	h.svc = NewService(Dependencies{
		Repo:       h.repo,
		Gateway:    h.gateway,
		Verifier:   h.verifier,
		Storage:    h.storage,
		Renderer:   h.renderer,
		Properties: h.properties,
		Publisher:  h.publisher,
	}, Options{
		Fees:            fees.DefaultSchedule(),
		PaymentWindow:   48 * time.Hour,
		FrontendBaseURL: "https://burrow.test",
		Now:             func() time.Time { return h.now },
	})
	return h
}

func draftContract() domain.Contract {
	return domain.Contract{
		ID:           uuid.New(),
		PropertyID:   uuid.New(),
		ListerID:     uuid.New(),
		TenantID:     uuid.New(),
		Status:       domain.ContractStatusDraft,
		TemplateHTML: "<p>{{tenantName}} pays {{rent}}</p>",
		Variables:    domain.Variables{"tenantName": "Ana", "rent": "$1,200"},
		Payment: domain.Payment{
			Tenant: domain.PaymentLeg{Status: domain.PaymentStatusNotStarted},
			Lister: domain.PaymentLeg{Status: domain.PaymentStatusNotStarted},
		},
	}
}

func completedContract() domain.Contract {
	c := draftContract()
	c.Status = domain.ContractStatusCompleted
	c.TenantSignature = &domain.Signature{URL: "https://cdn.test/t.png", SignedAt: testNow}
	c.ListerSignature = &domain.Signature{URL: "https://cdn.test/l.png", SignedAt: testNow}
	pdf := "https://cdn.test/final.pdf"
	c.FinalPDFURL = &pdf
	exp := testNow.Add(48 * time.Hour)
	c.Payment.ExpiresAt = &exp
	return c
}

// tiny valid PNG
const pngSignature = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="
