package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
	"github.com/angelmondragon/smm-storefront/pkg/redis"
)

const checkoutBody = `{"package_id":1,"quantity":1000,"target_link":"https://youtu.be/abc","guest_email":"Buyer@Example.com"}`

func TestRateLimit_AllowsUnderLimitAndKeepsBody(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("checkout", time.Minute, 2, 2)
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if string(body) != checkoutBody {
			t.Fatalf("unexpected body: %s", string(body))
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(checkoutBody))
	req.RemoteAddr = "1.2.3.4:5678"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_EmailLimitTriggersAcrossCase(t *testing.T) {
	store := newFakeRateStore()
	policy := NewRateLimitPolicy("checkout", time.Minute, 0, 2)
	handler := RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	bodies := []string{
		checkoutBody,
		strings.Replace(checkoutBody, "Buyer@Example.com", "buyer@example.com", 1),
		strings.Replace(checkoutBody, "Buyer@Example.com", " BUYER@example.com ", 1),
	}
	for i, body := range bodies {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(body))
		req.RemoteAddr = "1.2.3.4:5678"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if i < 2 && rec.Code != http.StatusOK {
			t.Fatalf("expected success before limit, got %d", rec.Code)
		}
		if i == 2 {
			if rec.Code != http.StatusTooManyRequests {
				t.Fatalf("expected 429, got %d", rec.Code)
			}
			var payload struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("decode error: %v", err)
			}
			if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
				t.Fatalf("unexpected code: %s", payload.Error.Code)
			}
		}
	}
}

func TestRateLimit_IPLimitUsesForwardedFor(t *testing.T) {
	policy := NewRateLimitPolicy("checkout", time.Minute, 1, 0)
	handler := RateLimit(policy, redis.NewMemory(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	for _, forwarded := range []string{"9.9.9.9", "9.9.9.9, 10.0.0.1", "8.8.8.8"} {
		req := httptest.NewRequest(http.MethodPost, "/api/checkout", strings.NewReader(`{}`))
		req.Header.Set("X-Forwarded-For", forwarded)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	want := []int{http.StatusOK, http.StatusTooManyRequests, http.StatusOK}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request %d: expected %d got %d", i, want[i], codes[i])
		}
	}
}

func TestRateLimit_DisabledPolicyPassesThrough(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	handler := RateLimit(NewRateLimitPolicy("checkout", 0, 1, 1), newFakeRateStore(), nil)(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/checkout", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}
