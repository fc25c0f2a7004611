package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Retries    int
	HTTPClient *http.Client
}

// HTTPClient talks to the hosted payment provider over its JSON API. Every
// call carries a bounded timeout; transient transport errors are retried a
// small number of times with linear backoff.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	timeout time.Duration
	retries int
}

func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("payment base url required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	}
	return &HTTPClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
		timeout: timeout,
		retries: retries,
	}, nil
}

type createIntentRequest struct {
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	MethodHint string `json:"methodHint,omitempty"`
}

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Status       string `json:"status"`
}

func (c *HTTPClient) CreateIntent(ctx context.Context, amountMinorUnits int64, currency, methodHint string) (Intent, error) {
	body, err := json.Marshal(createIntentRequest{
		Amount:     amountMinorUnits,
		Currency:   currency,
		MethodHint: methodHint,
	})
	if err != nil {
		return Intent{}, fmt.Errorf("payment marshal request: %w", err)
	}
	var resp intentResponse
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", body, &resp); err != nil {
		return Intent{}, err
	}
	if resp.ID == "" || resp.ClientSecret == "" {
		return Intent{}, fmt.Errorf("payment create intent: incomplete response")
	}
	return Intent{ID: resp.ID, ClientSecret: resp.ClientSecret}, nil
}

func (c *HTTPClient) RetrieveIntent(ctx context.Context, intentID string) (IntentStatus, error) {
	if intentID == "" {
		return "", fmt.Errorf("payment intent id required")
	}
	var resp intentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payment_intents/"+intentID, nil, &resp); err != nil {
		return "", err
	}
	return IntentStatus(resp.Status), nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	attempts := c.retries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
		var reader *bytes.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(reqCtx, method, c.baseURL+path, reader)
		if err != nil {
			cancel()
			return fmt.Errorf("payment build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
		resp, err := c.client.Do(req)
		cancel()
		if err != nil {
			lastErr = err
		} else {
			parseErr := decodeIntent(resp, out)
			resp.Body.Close()
			if parseErr == nil {
				return nil
			}
			lastErr = parseErr
		}
		if i < attempts-1 {
			time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
		}
	}
	return fmt.Errorf("payment request failed: %w", lastErr)
}

func decodeIntent(resp *http.Response, out interface{}) error {
	if resp.StatusCode >= 500 {
		return fmt.Errorf("payment provider unavailable: %s", resp.Status)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("payment provider rejected request: %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("payment decode response: %w", err)
	}
	return nil
}
