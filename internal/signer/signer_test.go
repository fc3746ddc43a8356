package signer

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"flywheel-mm/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestSigner(baseURL, authKey string) *Client {
	return New(config.SignerConfig{
		BaseURL: baseURL,
		AuthKey: authKey,
		ChainID: "mainnet-beta",
		Timeout: 2 * time.Second,
	}, testLogger())
}

func TestUnconfiguredSignerIsUnavailableWithoutNetwork(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := newTestSigner(srv.URL, "")
	_, err := c.SignAndSend(context.Background(), "wallet-1", "tx")
	if KindOf(err) != KindUnavailable {
		t.Errorf("kind = %s, want SIGNER_UNAVAILABLE", KindOf(err))
	}
	if hits.Load() != 0 {
		t.Errorf("unconfigured signer made %d network calls", hits.Load())
	}
}

func TestSignAndSendSuccess(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/sign-and-send" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"hash":"abc123"}`))
	}))
	defer srv.Close()

	c := newTestSigner(srv.URL, "test-key")
	hash, err := c.SignAndSend(context.Background(), "wallet-1", "tx-base58")
	if err != nil {
		t.Fatalf("SignAndSend: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("hash = %q, want abc123", hash)
	}
}

func TestErrorCodeClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		code string
		want Kind
	}{
		{"BLOCKHASH_EXPIRED", KindBlockhashExpired},
		{"SIGNATURE_VERIFICATION_FAILED", KindSignatureVerification},
		{"BROADCAST_FAILED", KindBroadcastFailed},
		{"SOMETHING_ELSE", KindOther},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":{"code":"` + tc.code + `","message":"rejected"}}`))
			}))
			defer srv.Close()

			c := newTestSigner(srv.URL, "k")
			_, err := c.SignAndSend(context.Background(), "w", "tx")
			if KindOf(err) != tc.want {
				t.Errorf("kind = %s, want %s", KindOf(err), tc.want)
			}
		})
	}
}

func TestServerErrorsAreUnavailable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestSigner(srv.URL, "k")
	_, err := c.TransferSol(context.Background(), "w", "addr", 1000)
	if KindOf(err) != KindUnavailable {
		t.Errorf("kind = %s, want SIGNER_UNAVAILABLE", KindOf(err))
	}
}

func TestBreakerOpensOnUnavailableStreak(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestSigner(srv.URL, "k")
	for i := 0; i < 5; i++ {
		_, err := c.SignAndSend(context.Background(), "w", "tx")
		if KindOf(err) != KindUnavailable {
			t.Fatalf("call %d kind = %s, want SIGNER_UNAVAILABLE", i, KindOf(err))
		}
	}

	before := hits.Load()
	_, err := c.SignAndSend(context.Background(), "w", "tx")
	if KindOf(err) != KindUnavailable {
		t.Errorf("open breaker kind = %s, want SIGNER_UNAVAILABLE", KindOf(err))
	}
	if hits.Load() != before {
		t.Error("open breaker should not reach the signer")
	}
}

func TestChainRejectionsDoNotOpenBreaker(t *testing.T) {
	t.Parallel()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"code":"BROADCAST_FAILED","message":"node rejected"}}`))
	}))
	defer srv.Close()

	c := newTestSigner(srv.URL, "k")
	for i := 0; i < 10; i++ {
		_, err := c.SignAndSend(context.Background(), "w", "tx")
		if KindOf(err) != KindBroadcastFailed {
			t.Fatalf("call %d kind = %s, want BROADCAST_FAILED", i, KindOf(err))
		}
	}
	// All ten calls reached the server: the breaker only counts
	// availability failures.
	if hits.Load() != 10 {
		t.Errorf("hits = %d, want 10", hits.Load())
	}
}
