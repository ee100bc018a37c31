package shipping

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

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/returns-engine/pkg/config"
	pkgerrors "github.com/angelmondragon/returns-engine/pkg/errors"
	"github.com/angelmondragon/returns-engine/pkg/logger"
	"github.com/angelmondragon/returns-engine/pkg/metrics"
	"github.com/angelmondragon/returns-engine/pkg/types"
)

const bookPath = "/shipments/book"

// maxResponseBytes bounds how much of a partner response is kept for triage.
const maxResponseBytes = 64 << 10

// BookingRequest is the normalized payload sent to the partner.
type BookingRequest struct {
	IdempotencyKey string        `json:"idempotency_key"`
	ReturnNumber   string        `json:"return_number"`
	OrderNumber    string        `json:"order_number"`
	PickupAddress  types.Address `json:"pickup_address"`
	ZoneHint       *string       `json:"zone_hint,omitempty"`
	ParcelCount    int           `json:"parcel_count"`
}

// BookingResponse is the partner's confirmation of a pickup booking.
type BookingResponse struct {
	TrackingNumber string `json:"trackingNumber"`
	ShipmentID     string `json:"shipmentId"`
}

// PartnerError preserves the partner's raw response for the failure log.
type PartnerError struct {
	StatusCode int
	Body       []byte
	cause      error
}

func (e *PartnerError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("shipping partner call failed: %v", e.cause)
	}
	return fmt.Sprintf("shipping partner returned status %d", e.StatusCode)
}

func (e *PartnerError) Unwrap() error { return e.cause }

// PartnerClient books pickups with the external shipping service.
type PartnerClient interface {
	BookPickup(ctx context.Context, req BookingRequest) (*BookingResponse, error)
	Partner() string
}

// Client calls the partner HTTP API with centralized auth, logging, retries,
// and error mapping.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	partner    string
	maxRetries uint64
	logger     *logger.Logger
	metrics    *metrics.EngineMetrics
}

// NewClient validates the partner configuration and builds the client.
func NewClient(cfg config.ShippingConfig, logg *logger.Logger, m *metrics.EngineMetrics) (*Client, error) {
	if logg == nil {
		return nil, errors.New("shipping logger is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("shipping base url is required")
	}
	token := strings.TrimSpace(cfg.InternalToken)
	if token == "" {
		return nil, errors.New("shipping internal token is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
		partner:    cfg.Partner,
		maxRetries: uint64(cfg.MaxRetries),
		logger:     logg,
		metrics:    m,
	}, nil
}

// Partner returns the configured partner label.
func (c *Client) Partner() string { return c.partner }

// BookPickup posts the booking to the partner. Transient failures (network
// errors, 5xx) are retried with the same idempotency key, so a retry can
// never double-book. Non-2xx terminal responses surface as UPSTREAM_FAILURE
// with the raw partner body attached for the failure log.
func (c *Client) BookPickup(ctx context.Context, req BookingRequest) (*BookingResponse, error) {
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking idempotency key required")
	}
	if err := req.PickupAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid pickup address")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal booking request")
	}

	ctx = c.logger.WithPartner(ctx, c.partner)
	ctx = c.logger.WithFields(ctx, map[string]any{
		"idempotency_key": req.IdempotencyKey,
		"return_number":   req.ReturnNumber,
	})
	c.logger.Info(ctx, "booking pickup with shipping partner")

	var out *BookingResponse
	backoff := retry.WithMaxRetries(c.maxRetries, retry.NewFibonacci(500*time.Millisecond))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, callErr := c.post(ctx, payload)
		if callErr != nil {
			return callErr
		}
		out = resp
		return nil
	})
	if err != nil {
		c.logger.Error(ctx, "shipping partner booking failed", err)
		var partnerErr *PartnerError
		if errors.As(err, &partnerErr) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, partnerErr, "shipping partner rejected booking")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "shipping partner unreachable")
	}

	c.logger.Info(c.logger.WithField(ctx, "tracking_number", out.TrackingNumber), "pickup booked")
	return out, nil
}

func (c *Client) post(ctx context.Context, payload []byte) (*BookingResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+bookPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-internal-token", c.token)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	c.metrics.ObservePartnerLatency(c.partner, "book", time.Since(start))
	if err != nil {
		// Network errors are safe to retry; the idempotency key dedupes.
		return nil, retry.RetryableError(&PartnerError{cause: err})
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, retry.RetryableError(&PartnerError{StatusCode: resp.StatusCode, cause: err})
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out BookingResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, &PartnerError{StatusCode: resp.StatusCode, Body: body, cause: err}
		}
		if out.TrackingNumber == "" {
			return nil, &PartnerError{StatusCode: resp.StatusCode, Body: body, cause: errors.New("response missing tracking number")}
		}
		return &out, nil
	case resp.StatusCode >= 500:
		return nil, retry.RetryableError(&PartnerError{StatusCode: resp.StatusCode, Body: body})
	default:
		return nil, &PartnerError{StatusCode: resp.StatusCode, Body: body}
	}
}

// ResponseSnapshot extracts the partner body from an error chain for the
// append-only failure log. Nil when the failure never reached the partner.
func ResponseSnapshot(err error) json.RawMessage {
	var partnerErr *PartnerError
	if !errors.As(err, &partnerErr) || len(partnerErr.Body) == 0 {
		return nil
	}
	if json.Valid(partnerErr.Body) {
		return json.RawMessage(partnerErr.Body)
	}
	quoted, marshalErr := json.Marshal(string(partnerErr.Body))
	if marshalErr != nil {
		return nil
	}
	return json.RawMessage(quoted)
}
