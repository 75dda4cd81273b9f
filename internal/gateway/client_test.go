package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kreativelabske/lipia-backend/internal/models"
)

func newTestClient(handler http.HandlerFunc) (*HTTPClient, *httptest.Server) {
	srv := httptest.NewServer(handler)
	return NewHTTPClient(srv.URL, "test-key", 5*time.Second), srv
}

func TestInitiateSTKPushAccepted(t *testing.T) {
	var gotAuth string
	var gotBody map[string]string
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/request/stk" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "payment initiated",
			"data":    map[string]any{"CheckoutRequestID": "ws_CO_123", "status": "pending"},
		})
	})
	defer srv.Close()

	resp, err := c.InitiateSTKPush(context.Background(), PushRequest{
		AccountReference: "user1", Amount: 20, CallbackURL: "https://app.example/cb",
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if resp.CheckoutRequestID != "ws_CO_123" {
		t.Fatalf("checkout id = %q", resp.CheckoutRequestID)
	}
	if resp.InstantSuccess {
		t.Fatal("pending response flagged as instant success")
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotBody["account_reference"] != "user1" || gotBody["amount"] != "20" || gotBody["callback_url"] != "https://app.example/cb" {
		t.Fatalf("unexpected request body: %v", gotBody)
	}
}

func TestInitiateSTKPushInstantSuccess(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "callback received successfully",
			"data":    map[string]any{"CheckoutRequestID": "ws_CO_9", "refference": "MPESA42"},
		})
	})
	defer srv.Close()

	resp, err := c.InitiateSTKPush(context.Background(), PushRequest{AccountReference: "u", Amount: 20})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !resp.InstantSuccess {
		t.Fatal("expected instant success")
	}
	// misspelled reference field must still be picked up
	if resp.Reference != "MPESA42" {
		t.Fatalf("reference = %q", resp.Reference)
	}
}

func TestInitiateSTKPushInstantSuccessDefaultReference(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": "callback received successfully",
			"data":    map[string]any{"CheckoutRequestID": "ws_CO_10"},
		})
	})
	defer srv.Close()

	resp, err := c.InitiateSTKPush(context.Background(), PushRequest{AccountReference: "u", Amount: 20})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if resp.Reference != "DIRECT" {
		t.Fatalf("expected DIRECT placeholder, got %q", resp.Reference)
	}
}

func TestInitiateSTKPushRejected(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "invalid account"})
	})
	defer srv.Close()

	_, err := c.InitiateSTKPush(context.Background(), PushRequest{AccountReference: "u", Amount: 20})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if errors.Is(err, ErrUnavailable) {
		t.Fatal("rejection must not look retryable")
	}
}

func TestInitiateSTKPushServerError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := c.InitiateSTKPush(context.Background(), PushRequest{AccountReference: "u", Amount: 20})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestInitiateSTKPushConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // port now refuses connections
	c := NewHTTPClient(srv.URL, "k", time.Second)

	_, err := c.InitiateSTKPush(context.Background(), PushRequest{AccountReference: "u", Amount: 20})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestInitiateSTKPushMissingCheckoutID(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"message": "insufficient funds", "data": map[string]any{}})
	})
	defer srv.Close()

	_, err := c.InitiateSTKPush(context.Background(), PushRequest{AccountReference: "u", Amount: 20})
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
}

func TestQueryStatusOutcomes(t *testing.T) {
	cases := []struct {
		status string
		want   models.Outcome
	}{
		{"completed", models.OutcomeCompleted},
		{"success", models.OutcomeCompleted},
		{"failed", models.OutcomeFailed},
		{"cancelled", models.OutcomeCancelled},
		{"pending", models.OutcomePending},
		{"processing", models.OutcomePending},
		{"something-new", models.OutcomeError},
	}
	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/transaction/status/ws_CO_1" {
					t.Fatalf("unexpected path %s", r.URL.Path)
				}
				_ = json.NewEncoder(w).Encode(map[string]any{
					"data": map[string]any{"status": tc.status, "reference": "MPESA1"},
				})
			})
			defer srv.Close()

			st, err := c.QueryStatus(context.Background(), "ws_CO_1")
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			if st.Outcome != tc.want {
				t.Fatalf("status %q: outcome = %s, want %s", tc.status, st.Outcome, tc.want)
			}
			if st.Reference != "MPESA1" {
				t.Fatalf("reference = %q", st.Reference)
			}
		})
	}
}

func TestQueryStatusServerError(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := c.QueryStatus(context.Background(), "ws_CO_1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
