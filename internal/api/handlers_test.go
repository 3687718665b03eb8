package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/app"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/domain"
	"github.com/sbalsara05/Burrow-Housing-sub000/internal/store"
)

const testInternalKey = "internal-secret"

type apiRepoStub struct {
	store.Repository

	mu        sync.Mutex
	users     map[string]uuid.UUID
	contracts map[uuid.UUID]domain.Contract
}

func newAPIRepoStub() *apiRepoStub {
	return &apiRepoStub{users: map[string]uuid.UUID{}, contracts: map[uuid.UUID]domain.Contract{}}
}

func (s *apiRepoStub) FindUserIDByClerkUserID(ctx context.Context, clerkUserID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.users[clerkUserID]
	if !ok {
		return "", store.ErrUserNotFound
	}
	return id.String(), nil
}

func (s *apiRepoStub) CreateContract(ctx context.Context, contract *domain.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[contract.ID] = *contract
	return nil
}

func (s *apiRepoStub) GetContract(ctx context.Context, contractID uuid.UUID) (*domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[contractID]
	if !ok {
		return nil, store.ErrContractNotFound
	}
	return &c, nil
}

func (s *apiRepoStub) ListContractsForUser(ctx context.Context, userID uuid.UUID) ([]domain.Contract, error) {
	return nil, nil
}

func (s *apiRepoStub) UpdateContractStatus(ctx context.Context, contractID uuid.UUID, from, to domain.ContractStatus) (*domain.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contracts[contractID]
	if !ok {
		return nil, store.ErrContractNotFound
	}
	if c.Status != from {
		return nil, store.ErrContractConflict
	}
	c.Status = to
	s.contracts[contractID] = c
	return &c, nil
}

func (s *apiRepoStub) SavePayment(ctx context.Context, contractID uuid.UUID, payment *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.contracts[contractID]
	if c.Payment.Version != payment.Version {
		return store.ErrContractConflict
	}
	payment.Version++
	c.Payment = *payment
	s.contracts[contractID] = c
	return nil
}

func (s *apiRepoStub) ListContractsAwaitingLease(ctx context.Context, limit int) ([]domain.Contract, error) {
	return nil, nil
}

func (s *apiRepoStub) CreateInAppNotification(ctx context.Context, item domain.InAppNotification) (bool, error) {
	return true, nil
}

type apiGatewayStub struct{}

func (apiGatewayStub) CreateIntent(ctx context.Context, input domain.CreateIntentInput) (*domain.GatewayIntent, error) {
	return &domain.GatewayIntent{ID: "pi_test", ClientSecret: "pi_test_secret", AmountCents: input.AmountCents, Status: "requires_payment_method"}, nil
}

func (apiGatewayStub) RetrieveIntent(ctx context.Context, intentID string) (*domain.GatewayIntent, error) {
	return &domain.GatewayIntent{ID: intentID, Status: "requires_payment_method"}, nil
}

func (apiGatewayStub) CancelIntent(ctx context.Context, intentID string) error { return nil }

type apiVerifierStub struct{ err error }

func (v apiVerifierStub) ParseWebhook(payload []byte, signatureHeader string) (*domain.GatewayEvent, error) {
	if v.err != nil {
		return nil, v.err
	}
	return &domain.GatewayEvent{ID: "evt_test", Type: "customer.created"}, nil
}

type apiLimiterStub struct{}

func (apiLimiterStub) AllowPaymentIntent(ctx context.Context, tenantID uuid.UUID) error {
	return &app.RateLimitError{RetryAfterSeconds: 30}
}

// testAuth stands in for Clerk: the user comes from a header.
func testAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get("X-Test-User")
		if user == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClerkUserID(r.Context(), user)))
	})
}

type apiFixture struct {
	repo     *apiRepoStub
	router   http.Handler
	lister   uuid.UUID
	tenant   uuid.UUID
	outsider uuid.UUID
}

func newAPIFixture(t *testing.T, deps app.Dependencies, opts app.Options, production bool) *apiFixture {
	t.Helper()
	repo := newAPIRepoStub()
	f := &apiFixture{repo: repo, lister: uuid.New(), tenant: uuid.New(), outsider: uuid.New()}
	repo.users["user_lister"] = f.lister
	repo.users["user_tenant"] = f.tenant
	repo.users["user_outsider"] = f.outsider

	deps.Repo = repo
	svc := app.NewService(deps, opts)
	f.router = NewRouter(NewHandlers(svc, production), testAuth, testInternalKey)
	return f
}

func (f *apiFixture) addContract(status domain.ContractStatus) domain.Contract {
	c := domain.Contract{
		ID:           uuid.New(),
		PropertyID:   uuid.New(),
		ListerID:     f.lister,
		TenantID:     f.tenant,
		Status:       status,
		TemplateHTML: "<p>{{rent}}</p>",
		Variables:    domain.Variables{"rent": "1200"},
		Payment: domain.Payment{
			Tenant: domain.PaymentLeg{Status: domain.PaymentStatusNotStarted},
			Lister: domain.PaymentLeg{Status: domain.PaymentStatusNotStarted},
		},
	}
	f.repo.contracts[c.ID] = c
	return c
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp
}

func TestHealth(t *testing.T) {
	f := newAPIFixture(t, app.Dependencies{}, app.Options{}, false)
	rec := f.do(t, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestContractEndpointsRequireAuth(t *testing.T) {
	f := newAPIFixture(t, app.Dependencies{}, app.Options{}, false)
	rec := f.do(t, http.MethodGet, "/contracts", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/contracts", "user_unknown", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unknown user, got %d", rec.Code)
	}
}

func TestCreateContractHandler(t *testing.T) {
	f := newAPIFixture(t, app.Dependencies{}, app.Options{}, false)

	rec := f.do(t, http.MethodPost, "/contracts", "user_lister", domain.CreateContractRequest{
		PropertyID:   uuid.New(),
		TenantID:     f.tenant,
		TemplateHTML: "<p>{{rent}}</p>",
		Variables:    domain.Variables{"rent": "900"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Contract
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != domain.ContractStatusDraft || created.ListerID != f.lister {
		t.Fatalf("unexpected contract: %+v", created)
	}

	rec = f.do(t, http.MethodPost, "/contracts", "user_lister", domain.CreateContractRequest{TenantID: f.tenant})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "validation_error" {
		t.Fatalf("expected validation_error, got %q", code)
	}
}

func TestGetContractHandlerStatusCodes(t *testing.T) {
	f := newAPIFixture(t, app.Dependencies{}, app.Options{}, false)
	contract := f.addContract(domain.ContractStatusDraft)

	cases := []struct {
		name   string
		path   string
		user   string
		status int
	}{
		{name: "party", path: "/contracts/" + contract.ID.String(), user: "user_tenant", status: http.StatusOK},
		{name: "outsider", path: "/contracts/" + contract.ID.String(), user: "user_outsider", status: http.StatusForbidden},
		{name: "unknown contract", path: "/contracts/" + uuid.NewString(), user: "user_tenant", status: http.StatusNotFound},
		{name: "malformed id", path: "/contracts/not-a-uuid", user: "user_tenant", status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, tc.path, tc.user, nil)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestLockContractConflict(t *testing.T) {
	f := newAPIFixture(t, app.Dependencies{}, app.Options{}, false)
	contract := f.addContract(domain.ContractStatusDraft)
	path := "/contracts/" + contract.ID.String() + "/lock"

	if rec := f.do(t, http.MethodPost, path, "user_lister", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec := f.do(t, http.MethodPost, path, "user_lister", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "state_conflict" {
		t.Fatalf("expected state_conflict, got %q", code)
	}
}

func TestCreatePaymentIntentHandlerErrors(t *testing.T) {
	t.Run("gateway missing hides detail in production", func(t *testing.T) {
		f := newAPIFixture(t, app.Dependencies{}, app.Options{}, true)
		contract := f.addContract(domain.ContractStatusCompleted)

		rec := f.do(t, http.MethodPost, "/payments/intent", "user_tenant", domain.CreatePaymentIntentRequest{ContractID: contract.ID})
		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected 502, got %d", rec.Code)
		}
		if msg := decodeError(t, rec).Error; msg != "An upstream service is unavailable. Please try again." {
			t.Fatalf("expected generic message, got %q", msg)
		}
	})

	t.Run("expired window", func(t *testing.T) {
		f := newAPIFixture(t, app.Dependencies{Gateway: apiGatewayStub{}}, app.Options{}, false)
		contract := f.addContract(domain.ContractStatusCompleted)
		past := time.Now().Add(-time.Hour)
		contract.Payment.ExpiresAt = &past
		f.repo.contracts[contract.ID] = contract

		rec := f.do(t, http.MethodPost, "/payments/intent", "user_tenant", domain.CreatePaymentIntentRequest{ContractID: contract.ID, PaymentMethod: "card"})
		if rec.Code != http.StatusGone {
			t.Fatalf("expected 410, got %d: %s", rec.Code, rec.Body.String())
		}
		if code := decodeError(t, rec).Code; code != "payment_window_expired" {
			t.Fatalf("expected payment_window_expired, got %q", code)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		f := newAPIFixture(t, app.Dependencies{Gateway: apiGatewayStub{}, Limiter: apiLimiterStub{}}, app.Options{}, false)
		contract := f.addContract(domain.ContractStatusCompleted)

		rec := f.do(t, http.MethodPost, "/payments/intent", "user_tenant", domain.CreatePaymentIntentRequest{ContractID: contract.ID})
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "30" {
			t.Fatalf("expected Retry-After 30, got %q", got)
		}
	})

	t.Run("success", func(t *testing.T) {
		f := newAPIFixture(t, app.Dependencies{Gateway: apiGatewayStub{}}, app.Options{}, false)
		contract := f.addContract(domain.ContractStatusCompleted)
		future := time.Now().Add(time.Hour)
		contract.Payment.ExpiresAt = &future
		f.repo.contracts[contract.ID] = contract

		rec := f.do(t, http.MethodPost, "/payments/intent", "user_tenant", domain.CreatePaymentIntentRequest{ContractID: contract.ID, PaymentMethod: "card"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var result domain.PaymentIntentResult
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if result.ClientSecret != "pi_test_secret" || result.AmountCents != 124200 {
			t.Fatalf("unexpected result: %+v", result)
		}
	})
}

func TestGatewayWebhookHandler(t *testing.T) {
	bad := newAPIFixture(t, app.Dependencies{Verifier: apiVerifierStub{err: errors.New("no valid signature")}}, app.Options{}, false)
	rec := bad.do(t, http.MethodPost, "/payments/webhook", "", map[string]string{"id": "evt_1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad signature, got %d", rec.Code)
	}

	good := newAPIFixture(t, app.Dependencies{Verifier: apiVerifierStub{}}, app.Options{}, false)
	rec = good.do(t, http.MethodPost, "/payments/webhook", "", map[string]string{"id": "evt_1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestInternalEndpointsRequireKey(t *testing.T) {
	f := newAPIFixture(t, app.Dependencies{}, app.Options{}, false)

	rec := f.do(t, http.MethodPost, "/internal/contracts/leases/repair", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/internal/contracts/leases/repair", nil)
	req.Header.Set("X-Internal-API-Key", testInternalKey)
	ok := httptest.NewRecorder()
	f.router.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", ok.Code)
	}
	var resp leaseRepairResponse
	if err := json.Unmarshal(ok.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Repaired != 0 || resp.Failed != 0 {
		t.Fatalf("unexpected repair response: %+v", resp)
	}
}
