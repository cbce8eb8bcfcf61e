// Package pi calls the Pi Network payments API for the server-side approval and
// completion steps of the two-phase payment flow.
package pi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const (
	defaultTimeout  = 10 * time.Second
	maxErrorBodyLen = 512
)

// Client is a thin REST client over the Pi payments endpoints.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	logg    *logger.Logger
}

// NewClient builds a Pi client. A single attempt is made per call; the
// configured timeout bounds the whole round trip.
func NewClient(cfg config.PiConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIURL) == "" {
		return nil, fmt.Errorf("pi api url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("pi api key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		apiKey:  cfg.APIKey,
		logg:    logg,
	}, nil
}

// Name identifies the provider on payment rows.
func (c *Client) Name() enums.PaymentProvider {
	return enums.PaymentProviderPi
}

// Approve tells Pi the server accepts the payment identified by paymentID.
func (c *Client) Approve(ctx context.Context, paymentID string) error {
	return c.post(ctx, paymentID, "approve", struct{}{})
}

// Complete confirms the blockchain transaction for the payment.
func (c *Client) Complete(ctx context.Context, paymentID, txid string) error {
	if strings.TrimSpace(txid) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "txid is required")
	}
	return c.post(ctx, paymentID, "complete", completeRequest{TxID: txid})
}

type completeRequest struct {
	TxID string `json:"txid"`
}

type errorResponse struct {
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

func (c *Client) post(ctx context.Context, paymentID, action string, body any) error {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}

	endpoint, err := url.JoinPath(c.baseURL, "payments", paymentID, action)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build pi url")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode pi request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build pi request")
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		c.logFailure(ctx, action, paymentID, 0, err)
		return pkgerrors.Wrap(pkgerrors.CodeExternalProvider, err, fmt.Sprintf("pi %s request failed", action))
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		if c.logg != nil {
			logCtx := c.logg.WithFields(ctx, map[string]any{
				"provider":    "pi",
				"action":      action,
				"payment_id":  paymentID,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			c.logg.Info(logCtx, "pi payment call succeeded")
		}
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
	providerErr := fmt.Errorf("pi %s returned %d: %s", action, resp.StatusCode, describeError(raw))
	c.logFailure(ctx, action, paymentID, resp.StatusCode, providerErr)
	return pkgerrors.Wrap(pkgerrors.CodeExternalProvider, providerErr, fmt.Sprintf("pi %s rejected", action)).
		WithDetails(map[string]any{"status": resp.StatusCode})
}

func describeError(raw []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(raw, &parsed); err == nil {
		if parsed.ErrorMessage != "" {
			return parsed.ErrorMessage
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) logFailure(ctx context.Context, action, paymentID string, status int, err error) {
	if c.logg == nil {
		return
	}
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"provider":    "pi",
		"action":      action,
		"payment_id":  paymentID,
		"http_status": status,
	})
	c.logg.Error(logCtx, "pi payment call failed", err)
}
