package gateway_service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"helper-push-service/tool"
)

const (
	// Max tokens per multicast request
	MaxTokensPerRequest = 500

	// 响应体读取上限
	maxResponseBytes = 4 << 20
)

// Gateway error codes that prove a token is permanently invalid
const (
	ErrorCodeInvalidToken  = "invalid-registration-token"
	ErrorCodeNotRegistered = "registration-token-not-registered"
)

// 网关未返回对应位置结果时使用
const errorCodeMissingResponse = "missing-response"

// IsPermanentTokenError reports whether the gateway error code means the token must be deactivated
func IsPermanentTokenError(code string) bool {
	return code == ErrorCodeInvalidToken || code == ErrorCodeNotRegistered
}

// TransportError is returned when a batch could not be delivered to the gateway at all
type TransportError struct {
	StatusCode int // 0 when the request never got a response
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("gateway transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is a batch-level transport failure
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Notification visible part of the push
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// AndroidOverride android specific delivery options
type AndroidOverride struct {
	Priority  string `json:"priority"`
	ChannelID string `json:"channel_id,omitempty"`
	Sound     string `json:"sound,omitempty"`
}

// IOSOverride ios specific delivery options
type IOSOverride struct {
	Priority   string `json:"priority"`
	Expiration int64  `json:"expiration,omitempty"` // unix seconds
}

// PlatformOverrides per platform options
type PlatformOverrides struct {
	Android *AndroidOverride `json:"android,omitempty"`
	IOS     *IOSOverride     `json:"ios,omitempty"`
}

// MulticastRequest is the wire body of one multicast call
type MulticastRequest struct {
	Tokens            []string          `json:"tokens"`
	Notification      Notification      `json:"notification"`
	Data              map[string]string `json:"data,omitempty"`
	PlatformOverrides PlatformOverrides `json:"platform_overrides"`
}

// TokenResponse is the per token result, positional to MulticastRequest.Tokens
type TokenResponse struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// MulticastResponse is the wire body returned by the gateway
type MulticastResponse struct {
	Responses []TokenResponse `json:"responses"`
}

// Client represents the push gateway HTTP client
type Client struct {
	httpClient  *http.Client
	endpoint    string
	accessToken string
	gzip        bool
}

// NewClient creates a gateway client. The config is validated once here and the
// client is immutable afterwards, safe for concurrent use.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("gateway config is nil")
	}
	c := *cfg
	c.ApplyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("gateway config: %w", err)
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: c.Timeout,
		},
		endpoint:    c.Endpoint,
		accessToken: c.AccessToken,
		gzip:        c.GzipRequests,
	}, nil
}

// Send performs one multicast call. Non-2xx answers and network errors come back as *TransportError.
func (c *Client) Send(ctx context.Context, request *MulticastRequest) (*MulticastResponse, error) {
	if len(request.Tokens) == 0 {
		return nil, errors.New("no tokens to send")
	}
	if len(request.Tokens) > MaxTokensPerRequest {
		return nil, fmt.Errorf("too many tokens: %d (max %d)", len(request.Tokens), MaxTokensPerRequest)
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal multicast request: %w", err)
	}
	if c.gzip {
		if jsonData, err = tool.GzipBytes(jsonData); err != nil {
			return nil, fmt.Errorf("failed to compress multicast request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var multicastResponse MulticastResponse
	if err := json.Unmarshal(body, &multicastResponse); err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to parse response: %w", err)}
	}
	return &multicastResponse, nil
}
