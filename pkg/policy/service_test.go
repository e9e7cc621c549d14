package policy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type memPolicyStore struct {
	policies map[string][]*Policy
}

func newMemPolicyStore() *memPolicyStore {
	return &memPolicyStore{policies: make(map[string][]*Policy)}
}

func (s *memPolicyStore) GetActivePolicy(_ context.Context, primaryAddress string) (*Policy, error) {
	for _, p := range s.policies[strings.ToLower(primaryAddress)] {
		if p.SupersededAt == nil {
			return p, nil
		}
	}
	return nil, ErrPolicyNotFound
}

func (s *memPolicyStore) SetPolicy(_ context.Context, policy *Policy) error {
	addr := strings.ToLower(policy.PrimaryAddress)
	now := time.Now()
	version := 0
	for _, p := range s.policies[addr] {
		if p.SupersededAt == nil {
			p.SupersededAt = &now
		}
		if p.Version > version {
			version = p.Version
		}
	}
	policy.ID = uuid.New()
	policy.Version = version + 1
	policy.CreatedAt = now
	s.policies[addr] = append(s.policies[addr], policy)
	return nil
}

func (s *memPolicyStore) History(_ context.Context, primaryAddress string) ([]*Policy, error) {
	return s.policies[strings.ToLower(primaryAddress)], nil
}

const testAddr = "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa"

func newTestRouter(store Store) *chi.Mux {
	r := chi.NewRouter()
	RegisterRoutes(r, store, zap.NewNop())
	return r
}

func TestSetAndGetPolicy(t *testing.T) {
	router := newTestRouter(newMemPolicyStore())

	body := `{"taxPct":20,"liquidityPct":30,"yieldPct":10}`
	req := httptest.NewRequest(http.MethodPut, "/policies/"+testAddr, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/policies/"+testAddr, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp PolicyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.TaxPct != 20 || resp.LiquidityPct != 30 || resp.YieldPct != 10 {
		t.Errorf("unexpected policy %+v", resp)
	}
	if resp.PrimaryPct != 40 {
		t.Errorf("expected primary pct 40, got %d", resp.PrimaryPct)
	}
	if resp.Version != 1 {
		t.Errorf("expected version 1, got %d", resp.Version)
	}
}

func TestSetPolicyRejectsOverAllocation(t *testing.T) {
	router := newTestRouter(newMemPolicyStore())

	body := `{"taxPct":50,"liquidityPct":40,"yieldPct":20}`
	req := httptest.NewRequest(http.MethodPut, "/policies/"+testAddr, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSetPolicyRejectsInvalidAddress(t *testing.T) {
	router := newTestRouter(newMemPolicyStore())

	req := httptest.NewRequest(http.MethodPut, "/policies/not-an-address", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGetPolicyNotFound(t *testing.T) {
	router := newTestRouter(newMemPolicyStore())

	req := httptest.NewRequest(http.MethodGet, "/policies/"+testAddr, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestPolicyHistorySupersedes(t *testing.T) {
	store := newMemPolicyStore()
	router := newTestRouter(store)

	for _, body := range []string{
		`{"taxPct":10,"liquidityPct":10,"yieldPct":10}`,
		`{"taxPct":20,"liquidityPct":20,"yieldPct":20}`,
	} {
		req := httptest.NewRequest(http.MethodPut, "/policies/"+testAddr, strings.NewReader(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/policies/"+testAddr+"/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var history []PolicyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &history); err != nil {
		t.Fatalf("failed to decode history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(history))
	}

	// Exactly one active version.
	active := 0
	for _, p := range history {
		if p.SupersededAt == nil {
			active++
		}
	}
	if active != 1 {
		t.Errorf("expected exactly 1 active version, got %d", active)
	}
}
