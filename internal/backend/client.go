package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	engerrors "github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/errors"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/storekit"
)

// DefaultTimeout bounds every backend call.
const DefaultTimeout = 10 * time.Second

// Client talks to the subscription backend over JSON/HTTPS with bearer auth.
type Client struct {
	baseURL    string
	httpClient *http.Client

	// token is replaced at runtime by config reloads while requests are in
	// flight on other goroutines.
	mu    sync.RWMutex
	token string
}

// NewClient creates a backend client. A zero timeout uses DefaultTimeout.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SetToken replaces the bearer token, e.g. after a config reload.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Verify reports a store transaction to the backend and returns the updated
// authoritative record. Idempotent on the server, safe to retry.
func (c *Client) Verify(ctx context.Context, txn storekit.VerifiedTransaction) (*Record, error) {
	payload, err := json.Marshal(map[string]any{
		"productId":     txn.ProductID,
		"transactionId": txn.TransactionID,
		"purchaseDate":  txn.PurchaseDate.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("encode transaction %s: %w", txn.TransactionID, err)
	}

	req := verifyRequest{
		TransactionData: base64.StdEncoding.EncodeToString(payload),
		ProductID:       txn.ProductID,
		TransactionID:   txn.TransactionID,
	}

	var resp verifyResponse
	if err := c.do(ctx, "backend_verify", http.MethodPost, "/subscriptions/verify", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, engerrors.WrapBackendError("backend_verify", fmt.Errorf("verify declined for transaction %s", txn.TransactionID), http.StatusOK)
	}

	rec := resp.toRecord()
	log.Debug().
		Str("transaction_id", txn.TransactionID).
		Str("status", string(rec.Status)).
		Msg("Backend verified transaction")
	return rec, nil
}

// Status fetches the authoritative subscription record.
func (c *Client) Status(ctx context.Context) (*Record, error) {
	var resp statusResponse
	if err := c.do(ctx, "backend_status", http.MethodGet, "/subscriptions/status", nil, &resp); err != nil {
		return nil, err
	}
	return resp.toRecord(), nil
}

// Sync asks the backend to reconcile against its own webhook processing.
// statusChanged=true means the caller must force an uncached Status refresh.
func (c *Client) Sync(ctx context.Context) (*Record, bool, error) {
	var resp syncResponse
	if err := c.do(ctx, "backend_sync", http.MethodPost, "/subscriptions/sync", nil, &resp); err != nil {
		return nil, false, err
	}
	return resp.toRecord(), resp.StatusChanged, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return engerrors.New(engerrors.ErrorTypeTimeout, op, err)
		}
		return engerrors.WrapNetworkError(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return engerrors.New(engerrors.ErrorTypeRateLimited, op, errors.New("rate limited")).WithStatusCode(resp.StatusCode)
	case resp.StatusCode >= 500:
		// Server faults are recoverable; the cached entitlement stays
		// authoritative until staleness forces a denial.
		return engerrors.New(engerrors.ErrorTypeNetwork, op, errors.New("server error")).WithStatusCode(resp.StatusCode)
	case resp.StatusCode >= 400:
		return engerrors.WrapBackendError(op, fmt.Errorf("request rejected"), resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return engerrors.WrapDecodeError(op, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
