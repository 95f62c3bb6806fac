package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPConfig configures an HTTPSender.
type HTTPConfig struct {
	Endpoint  string
	APIKey    string
	APISecret string
	Timeout   time.Duration
}

// HTTPSender posts messages to a JSON mail API authenticated with an
// "sso-key key:secret" authorization header.
type HTTPSender struct {
	endpoint string
	auth     string
	client   *http.Client
}

// NewHTTPSender validates cfg and builds an HTTPSender with a traced transport.
func NewHTTPSender(cfg HTTPConfig) (*HTTPSender, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("mail api endpoint is required")
	}
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("mail api key and secret are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPSender{
		endpoint: endpoint,
		auth:     fmt.Sprintf("sso-key %s:%s", cfg.APIKey, cfg.APISecret),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type sendResponse struct {
	MessageID string `json:"messageId"`
	ID        string `json:"id"`
}

// Send posts msg to the configured endpoint. Any non-2xx status is an error.
func (s *HTTPSender) Send(ctx context.Context, msg Message) (string, error) {
	if err := msg.Validate(); err != nil {
		return "", err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", s.auth)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("mail api returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out sendResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
	}
	if out.MessageID == "" {
		out.MessageID = out.ID
	}
	return out.MessageID, nil
}
