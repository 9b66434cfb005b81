package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/foxzi/relaydesk/internal/apperr"
)

const maxResponseBytes = 1 << 20

// Client talks to the external SMTP relay over HTTP/JSON. Calls are never
// retried; the caller decides what to do with a classified Error.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a relay client. A zero timeout means 30 seconds.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// BaseURL returns the relay base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do performs the HTTP exchange. Only transport failures are returned as
// errors; HTTP statuses are left to the caller.
func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("relay request failed",
			"method", method,
			"path", path,
			"duration", time.Since(start),
			"error", err,
		)
		if isTimeout(err) {
			return 0, nil, timeoutError(err)
		}
		return 0, nil, connectivityError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return resp.StatusCode, nil, timeoutError(err)
		}
		return resp.StatusCode, nil, connectivityError(err)
	}

	c.logger.Debug("relay request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	return resp.StatusCode, data, nil
}

// check classifies a non-2xx status.
func check(status int, data []byte) error {
	if isSuccess(status) {
		return nil
	}
	var errResp ErrorResponse
	_ = json.Unmarshal(data, &errResp)
	return classifyStatus(status, string(data), errResp.text())
}

// Send submits a send request to the endpoint matching its mode.
func (c *Client) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	if req.Variables == nil {
		req.Variables = map[string]string{}
	}

	status, data, err := c.do(ctx, http.MethodPost, req.Path(), req)
	if err != nil {
		return nil, err
	}
	if err := check(status, data); err != nil {
		return nil, err
	}

	resp, err := decodeSendResponse(status, data, MsgSendFailed)
	if err != nil {
		return nil, err
	}
	return resp.result(), nil
}

// decodeSendResponse reads a 2xx send-style body. An empty body counts as
// success; an undecodable one is an application error.
func decodeSendResponse(status int, data []byte, message string) (*sendResponse, error) {
	var resp sendResponse
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, &Error{
				Kind:    KindApplication,
				Status:  status,
				Message: message,
				Detail:  fmt.Sprintf("decode response: %v", err),
				Err:     err,
			}
		}
	}
	if resp.Success != nil && !*resp.Success {
		return nil, classifyPayload(status, resp.Error)
	}
	return &resp, nil
}

// SaveSMTPConfig pushes a project configuration to the relay.
func (c *Client) SaveSMTPConfig(ctx context.Context, projectID string, cfg *SMTPConfig) error {
	status, data, err := c.do(ctx, http.MethodPost, configPath(projectID, ""), cfg)
	if err != nil {
		return err
	}
	return check(status, data)
}

// DeleteSMTPConfig removes the relay's copy. A missing copy is not an error.
func (c *Client) DeleteSMTPConfig(ctx context.Context, projectID string) error {
	status, data, err := c.do(ctx, http.MethodDelete, configPath(projectID, ""), nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return nil
	}
	return check(status, data)
}

// TestSMTPConfig asks the relay to send a test message to testEmail using
// the stored credentials. Failures are classified like a regular send.
func (c *Client) TestSMTPConfig(ctx context.Context, projectID, testEmail string) (*TestResult, error) {
	status, data, err := c.do(ctx, http.MethodPost, configPath(projectID, "/test"), &TestRequest{TestEmail: testEmail})
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, fmt.Errorf("%w: project %s", apperr.ErrNotConfigured, projectID)
	}
	if err := check(status, data); err != nil {
		return nil, err
	}

	resp, err := decodeSendResponse(status, data, MsgTestFailed)
	if err != nil {
		return nil, err
	}
	return &TestResult{Success: true, Message: resp.Message}, nil
}

// Health checks relay health
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	status, data, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	if err := check(status, data); err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &resp, nil
}

func configPath(projectID, suffix string) string {
	return pathSMTPConfig + url.PathEscape(projectID) + suffix
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
