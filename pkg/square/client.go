// Package square settles delayed-capture card payments through the Square
// SDK. It is the alternative to Pi behind the same approve/complete contract.
package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/gigmarket-backend/pkg/config"
	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/gigmarket-backend/pkg/errors"
	"github.com/angelmondragon/gigmarket-backend/pkg/logger"
)

const (
	sandboxEnv    = "sandbox"
	productionEnv = "production"
)

var (
	errAccessTokenRequired = errors.New("square access token is required")
	errInvalidSquareEnv    = fmt.Errorf("square environment must be %q or %q", sandboxEnv, productionEnv)
	errLoggerRequired      = errors.New("square logger is required")
)

var hosts = map[string]string{
	sandboxEnv:    "https://connect.squareupsandbox.com",
	productionEnv: "https://connect.squareup.com",
}

// Client approves a payment by checking the card authorization is held and
// completes it by capturing the funds.
type Client struct {
	sdk         *sqclient.Client
	environment string
	baseURL     string
	logg        *logger.Logger
}

type Option func(*Client)

// WithBaseURL points the client at another host, e.g. an httptest server.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url = strings.TrimSpace(url); url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger, opts ...Option) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	env, err := normalizeEnv(cfg.Environment())
	if err != nil {
		return nil, err
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errAccessTokenRequired
	}

	c := &Client{environment: env, baseURL: hosts[env], logg: logg}
	for _, opt := range opts {
		opt(c)
	}
	c.sdk = sqclient.NewClient(sqoption.WithBaseURL(c.baseURL), sqoption.WithToken(token))

	logg.Info(logg.WithField(ctx, "square_env", env), "square client ready")
	return c, nil
}

func (c *Client) Name() enums.PaymentProvider { return enums.PaymentProviderSquare }

func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.environment
}

// Approve succeeds while the payment is APPROVED, or already COMPLETED by an
// earlier capture.
func (c *Client) Approve(ctx context.Context, paymentID string) error {
	return c.call(ctx, "get_payment", paymentID, func(id string) (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: id})
		return resp.GetPayment(), err
	}, "APPROVED", "COMPLETED")
}

// Complete captures the authorization. Square keys the capture on the payment
// id, so txid is only logged; the caller stores it on the payment row.
func (c *Client) Complete(ctx context.Context, paymentID, txid string) error {
	ctx = c.logg.WithField(ctx, "transaction_id", txid)
	return c.call(ctx, "complete_payment", paymentID, func(id string) (*sq.Payment, error) {
		resp, err := c.sdk.Payments.Complete(ctx, &sq.CompletePaymentRequest{PaymentID: id})
		return resp.GetPayment(), err
	}, "COMPLETED")
}

// call runs one SDK operation and requires the returned payment to be in one
// of the accepted statuses.
func (c *Client) call(ctx context.Context, op, paymentID string, do func(string) (*sq.Payment, error), accepted ...string) error {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id is required")
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"provider":   "square",
		"operation":  op,
		"payment_id": paymentID,
	})

	start := time.Now()
	payment, err := do(paymentID)
	ctx = c.logg.WithField(ctx, "duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		mapped := mapSquareError(err, op)
		c.logg.Error(ctx, "square call failed", mapped)
		return mapped
	}

	status := payment.GetStatus()
	var got string
	if status != nil {
		got = *status
	}
	c.logg.Info(c.logg.WithField(ctx, "status", got), "square call ok")
	if !slices.Contains(accepted, got) {
		return pkgerrors.Newf(pkgerrors.CodeExternalProvider, "square payment is %s, want %s", orUnknown(got), strings.Join(accepted, " or ")).
			WithDetails(map[string]any{"status": got})
	}
	return nil
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// mapSquareError reports every Square failure as an external provider error.
// The HTTP status and Square error codes ride along as details.
func mapSquareError(err error, op string) error {
	details := map[string]any{}
	var apiErr *sqcore.APIError
	if errors.As(err, &apiErr) {
		details["status"] = apiErr.StatusCode
		var codes []string
		for _, e := range squareErrors(apiErr) {
			if e != nil {
				codes = append(codes, string(e.Code))
			}
		}
		if len(codes) > 0 {
			details["square_codes"] = codes
		}
		if apiErr.StatusCode == http.StatusUnauthorized {
			details["reason"] = "credentials rejected"
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeExternalProvider, err, "square "+op+" failed").WithDetails(details)
}

// squareErrors decodes the {"errors":[...]} body the SDK keeps inside APIError.
func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(inner.Error()), &body) != nil {
		return nil
	}
	return body.Errors
}

func normalizeEnv(raw string) (string, error) {
	env := strings.ToLower(strings.TrimSpace(raw))
	if env == "" {
		return sandboxEnv, nil
	}
	if _, ok := hosts[env]; !ok {
		return "", errInvalidSquareEnv
	}
	return env, nil
}
