package license

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"convertercli/internal/config"
)

// verifyRequest is the wire request to the license authority. Field
// names and the action value are fixed for server compatibility.
type verifyRequest struct {
	LicenseKey  string `json:"license_key"`
	MachineCode string `json:"machine_code"`
	AppName     string `json:"app_name"`
	AppVersion  string `json:"app_version"`
	Action      string `json:"action"`
}

// verifyResponse is the wire response on HTTP 200.
type verifyResponse struct {
	Success     bool              `json:"success"`
	Message     string            `json:"message"`
	ExpiryDate  string            `json:"expiry_date,omitempty"`
	LicenseType string            `json:"license_type,omitempty"`
	UserInfo    map[string]string `json:"user_info,omitempty"`
	ErrorCode   string            `json:"error_code,omitempty"`
}

// errorResponse is the wire response on HTTP 4xx/5xx.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Client executes the verification exchange against the license
// authority. Transport and server failures become typed outcomes, never
// errors; the caller always receives a VerificationOutcome.
type Client struct {
	httpClient *http.Client
	serverURL  string
	appName    string
	appVersion string
	timeout    time.Duration
	clock      Clock
	logger     *slog.Logger

	maxAttempts int
	backoffBase time.Duration
}

// NewClient creates a license client from the license configuration.
func NewClient(cfg config.LicenseConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		serverURL:   strings.TrimRight(cfg.ServerURL, "/"),
		appName:     cfg.AppName,
		appVersion:  cfg.AppVersion,
		timeout:     cfg.RequestTimeout,
		clock:       SystemClock,
		logger:      logger.With(slog.String("component", "license_client")),
		maxAttempts: config.MaxVerifyAttempts,
		backoffBase: config.VerifyBackoffBase,
	}
}

// WithClock replaces the clock. Tests only.
func (c *Client) WithClock(clock Clock) *Client {
	c.clock = clock
	return c
}

// Verify runs the verification exchange with bounded retry. Transient
// failures (network, 4xx/5xx, malformed bodies) are retried up to the
// attempt cap with exponential backoff; an authoritative answer from
// the server, accept or reject, ends the loop immediately. Context
// cancellation aborts between attempts without sleeping out the
// remaining backoff.
func (c *Client) Verify(ctx context.Context, machineCode, licenseKey string) VerificationOutcome {
	var outcome VerificationOutcome

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		start := c.clock.Now()
		outcome = c.verifyOnce(ctx, machineCode, licenseKey)

		c.logger.InfoContext(ctx, "license verification attempt finished",
			slog.Int("attempt", attempt),
			slog.Bool("success", outcome.Success),
			slog.String("error_code", outcome.ErrorCode),
			slog.Duration("duration", c.clock.Now().Sub(start)),
		)

		if !outcome.Transient() {
			return outcome
		}

		if attempt == c.maxAttempts {
			break
		}

		if err := c.sleep(ctx, c.backoffFor(attempt)); err != nil {
			c.logger.WarnContext(ctx, "license verification aborted during backoff",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return outcome
		}
	}

	return outcome
}

// backoffFor returns the delay before the next attempt: base doubled
// per attempt, capped at the request timeout.
func (c *Client) backoffFor(attempt int) time.Duration {
	delay := c.backoffBase << (attempt - 1)
	if delay > c.timeout {
		delay = c.timeout
	}
	return delay
}

// sleep waits for the delay or until the context is done.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.clock.After(d):
		return nil
	}
}

// verifyOnce performs a single request/response cycle.
func (c *Client) verifyOnce(ctx context.Context, machineCode, licenseKey string) VerificationOutcome {
	reqBody := verifyRequest{
		LicenseKey:  licenseKey,
		MachineCode: machineCode,
		AppName:     c.appName,
		AppVersion:  c.appVersion,
		Action:      "verify",
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		// Marshalling plain strings cannot fail in practice; classify as
		// a server-side path so the caller still gets a typed outcome.
		return transportFailure(CodeServerError, fmt.Sprintf("failed to encode request: %v", err))
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.serverURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return transportFailure(CodeNetworkError, fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.appName+"/"+c.appVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "license authority unreachable",
			slog.String("url", c.serverURL+"/verify"),
			slog.String("error", err.Error()),
		)
		return transportFailure(CodeNetworkError, "unable to reach license server")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return transportFailure(CodeNetworkError, "failed to read license server response")
	}

	if resp.StatusCode != http.StatusOK {
		var serverErr errorResponse
		message := fmt.Sprintf("license server returned status %d", resp.StatusCode)
		if json.Unmarshal(body, &serverErr) == nil && serverErr.Message != "" {
			message = serverErr.Message
		}
		c.logger.WarnContext(ctx, "license authority returned error status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("message", message),
		)
		return transportFailure(CodeServerError, message)
	}

	var wire verifyResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		c.logger.WarnContext(ctx, "license authority returned malformed body",
			slog.String("error", err.Error()),
		)
		return transportFailure(CodeServerError, "malformed license server response")
	}

	return outcomeFromWire(wire)
}

// outcomeFromWire maps a 200 response body onto an outcome.
func outcomeFromWire(wire verifyResponse) VerificationOutcome {
	outcome := VerificationOutcome{
		Success:     wire.Success,
		Message:     wire.Message,
		ErrorCode:   wire.ErrorCode,
		LicenseType: wire.LicenseType,
		UserInfo:    wire.UserInfo,
	}

	if wire.ExpiryDate != "" {
		if expiry, ok := parseExpiry(wire.ExpiryDate); ok {
			outcome.ExpiryDate = expiry
		}
	}

	// An explicit denial without a code still must not look transient.
	if !outcome.Success && outcome.ErrorCode == "" {
		outcome.ErrorCode = "INVALID_LICENSE"
	}

	return outcome
}

// parseExpiry accepts the ISO-8601 variants authorities send in the
// wild: full RFC 3339, timestamp without zone, and date only.
func parseExpiry(value string) (time.Time, bool) {
	for _, layout := range []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// transportFailure synthesizes an outcome for a failed exchange.
func transportFailure(code, message string) VerificationOutcome {
	return VerificationOutcome{
		Success:   false,
		Message:   message,
		ErrorCode: code,
	}
}
