package safes

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func newOnboardServer(t *testing.T, store Store) *httptest.Server {
	t.Helper()

	client := &mockChainClient{
		ProxyCreationCodeFunc: func(context.Context, common.Address) ([]byte, error) {
			return []byte{0x60, 0x80}, nil
		},
		CodeAtFunc: func(context.Context, common.Address) ([]byte, error) {
			return nil, nil
		},
		SubmitFunc: func(context.Context, common.Address, []byte, *big.Int) (common.Hash, error) {
			return common.HexToHash("0x01"), nil
		},
		WaitMinedFunc: func(context.Context, common.Hash) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
		},
	}
	deployer := NewDeployer(store, map[int64]ChainClient{8453: client}, testOpts, nil, zap.NewNop())

	r := chi.NewRouter()
	RegisterRoutes(r, store, deployer, zap.NewNop())

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestOnboardEndpoint(t *testing.T) {
	store := &memStore{}
	srv := newOnboardServer(t, store)

	body, _ := json.Marshal(OnboardRequest{
		PrimaryAddress: testPrimary.Hex(),
		ChainID:        8453,
	})
	resp, err := http.Post(srv.URL+"/safes", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	var out []*SafeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	// Primary record plus tax, liquidity and yield.
	if len(out) != 4 {
		t.Fatalf("expected 4 safes, got %d", len(out))
	}
	categories := make(map[string]bool)
	for _, s := range out {
		categories[s.Category] = true
		if s.Status != string(DeploymentDeployed) {
			t.Errorf("safe %s: expected status deployed, got %s", s.Category, s.Status)
		}
	}
	for _, want := range []string{"primary", "tax", "liquidity", "yield"} {
		if !categories[want] {
			t.Errorf("missing %s safe in response", want)
		}
	}
}

func TestOnboardEndpointIdempotent(t *testing.T) {
	store := &memStore{}
	srv := newOnboardServer(t, store)

	body, _ := json.Marshal(OnboardRequest{
		PrimaryAddress: testPrimary.Hex(),
		ChainID:        8453,
	})

	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/safes", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("call %d: expected status 200, got %d", i+1, resp.StatusCode)
		}
	}

	if len(store.safes) != 4 {
		t.Errorf("expected 4 safe records after repeat onboarding, got %d", len(store.safes))
	}
}

func TestOnboardEndpointRejectsBadAddress(t *testing.T) {
	srv := newOnboardServer(t, &memStore{})

	body, _ := json.Marshal(OnboardRequest{
		PrimaryAddress: "not-an-address",
		ChainID:        8453,
	})
	resp, err := http.Post(srv.URL+"/safes", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", resp.StatusCode)
	}
}

func TestListSafesEndpointNotFound(t *testing.T) {
	srv := newOnboardServer(t, &memStore{})

	resp, err := http.Get(srv.URL + "/safes/" + testPrimary.Hex())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", resp.StatusCode)
	}
}
