package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/kreativelabske/lipia-backend/internal/models"
)

var (
	// ErrUnavailable covers network failures and 5xx answers; the dispatcher
	// retries these with backoff.
	ErrUnavailable = errors.New("gateway unavailable")
	// ErrRejected covers explicit 4xx rejections; never retried.
	ErrRejected = errors.New("gateway rejected request")
)

type PushRequest struct {
	AccountReference string
	Amount           int64
	CallbackURL      string
}

type PushResponse struct {
	CheckoutRequestID string
	Reference         string
	// InstantSuccess is set when the provider confirms the payment inside the
	// initiation response itself, without a later callback.
	InstantSuccess bool
	Message        string
}

type StatusResponse struct {
	Outcome   models.Outcome
	Reference string
	Message   string
}

type Client interface {
	InitiateSTKPush(ctx context.Context, req PushRequest) (*PushResponse, error)
	QueryStatus(ctx context.Context, remoteCheckoutID string) (*StatusResponse, error)
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// envelope is the provider's response shape. Some responses spell the
// settlement reference "refference"; both spellings are accepted.
type envelope struct {
	Message string `json:"message"`
	Data    struct {
		CheckoutRequestID string `json:"CheckoutRequestID"`
		Reference         string `json:"reference"`
		Refference        string `json:"refference"`
		Status            string `json:"status"`
		Reason            string `json:"reason"`
	} `json:"data"`
}

func (e *envelope) reference() string {
	if e.Data.Reference != "" {
		return e.Data.Reference
	}
	return e.Data.Refference
}

func (c *HTTPClient) InitiateSTKPush(ctx context.Context, req PushRequest) (*PushResponse, error) {
	payload := map[string]string{
		"account_reference": req.AccountReference,
		"amount":            strconv.FormatInt(req.Amount, 10),
		"callback_url":      req.CallbackURL,
	}
	env, status, err := c.post(ctx, "/request/stk", payload)
	if err != nil {
		return nil, err
	}

	switch {
	case status >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, status)
	case status >= 400:
		return nil, fmt.Errorf("%w: %s", ErrRejected, orDefault(env.Message, "status "+strconv.Itoa(status)))
	}

	if env.Message == "callback received successfully" && env.Data.CheckoutRequestID != "" {
		ref := env.reference()
		if ref == "" {
			ref = "DIRECT"
		}
		return &PushResponse{
			CheckoutRequestID: env.Data.CheckoutRequestID,
			Reference:         ref,
			InstantSuccess:    true,
			Message:           env.Message,
		}, nil
	}
	if env.Data.CheckoutRequestID != "" {
		return &PushResponse{CheckoutRequestID: env.Data.CheckoutRequestID, Message: env.Message}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRejected, orDefault(env.Message, "unknown payment error"))
}

func (c *HTTPClient) QueryStatus(ctx context.Context, remoteCheckoutID string) (*StatusResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/transaction/status/"+remoteCheckoutID, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: malformed status response: %v", ErrRejected, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s", ErrRejected, orDefault(env.Message, "status "+strconv.Itoa(resp.StatusCode)))
	}

	out := &StatusResponse{Reference: env.reference(), Message: orDefault(env.Data.Reason, env.Message)}
	switch env.Data.Status {
	case "completed", "success":
		out.Outcome = models.OutcomeCompleted
	case "failed":
		out.Outcome = models.OutcomeFailed
	case "cancelled":
		out.Outcome = models.OutcomeCancelled
	case "pending", "processing":
		out.Outcome = models.OutcomePending
	default:
		out.Outcome = models.OutcomeError
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) (*envelope, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil && resp.StatusCode < 400 {
		return nil, resp.StatusCode, fmt.Errorf("%w: malformed response: %v", ErrRejected, err)
	}
	return &env, resp.StatusCode, nil
}

func orDefault(s, def string) string {
	if s != "" {
		return s
	}
	return def
}
