// Package cardvault is the HTTP client for the external card vault that
// tokenises and validates credit cards.
package cardvault

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

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTimeout means the vault did not answer within the configured timeout
	ErrTimeout = errors.New("card vault timed out")
	// ErrUnavailable means the vault could not be reached
	ErrUnavailable = errors.New("card vault unavailable")
)

// RejectedError carries the vault's reason for refusing a card
type RejectedError struct {
	StatusCode int
	Reason     string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("card rejected by vault (%d): %s", e.StatusCode, e.Reason)
}

// Card is what the vault needs to validate a card. The CVV is only ever forwarded here.
type Card struct {
	Number     string
	CVV        string
	Brand      string
	HolderName string
	Expiry     time.Time
}

type tokenRequest struct {
	Number       string `json:"number"`
	Expiry       string `json:"expiry"` // YYYY-MM
	SecurityCode string `json:"security_code"`
	Name         string `json:"name"`
	Brand        string `json:"brand"`
}

type tokenResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// Client talks to the vault
type Client struct {
	baseURL string
	timeout time.Duration
	http    *retryablehttp.Client
}

// New creates a vault client; transient failures are retried within timeout
func New(baseURL string, timeout time.Duration) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 50 * time.Millisecond
	rc.RetryWaitMax = 500 * time.Millisecond
	rc.HTTPClient.Timeout = timeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = logrus.StandardLogger()
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		http:    rc,
	}
}

// Validate asks the vault to tokenise the card and returns the vault token
func (c *Client) Validate(ctx context.Context, card Card) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(tokenRequest{
		Number:       card.Number,
		Expiry:       card.Expiry.Format("2006-01"),
		SecurityCode: card.CVV,
		Name:         card.HolderName,
		Brand:        strings.ToUpper(card.Brand),
	})
	if err != nil {
		return "", err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/cards", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("read response: %w", err)
	}
	var out tokenResponse
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode != http.StatusCreated {
		reason := out.Message
		if reason == "" {
			reason = strings.TrimSpace(string(raw))
		}
		if reason == "" {
			reason = http.StatusText(resp.StatusCode)
		}
		return "", &RejectedError{StatusCode: resp.StatusCode, Reason: reason}
	}
	return out.ID, nil
}
