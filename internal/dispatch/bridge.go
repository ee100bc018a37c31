package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/returns-engine/pkg/config"
	"github.com/angelmondragon/returns-engine/pkg/logger"
)

const assignmentsPath = "/driver-jobs/assignments"

// Bridge pushes last-mile assignment state to the driver dispatch service.
// It is strictly best effort: a disabled or unreachable dispatch service
// never affects the return lifecycle.
type Bridge struct {
	httpClient *http.Client
	baseURL    string
	token      string
	enabled    bool
	log        *logger.Logger
}

type assignmentPush struct {
	ReturnID       string    `json:"return_id"`
	TrackingNumber string    `json:"tracking_number"`
	Kind           string    `json:"kind"`
	PushedAt       time.Time `json:"pushed_at"`
}

// NewBridge builds the dispatch bridge. When disabled, every method is a
// no-op.
func NewBridge(cfg config.DispatchConfig, log *logger.Logger) *Bridge {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	enabled := cfg.Enabled && baseURL != ""
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Bridge{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		enabled:    enabled,
		log:        log,
	}
}

// Enabled reports whether pushes will actually be sent.
func (b *Bridge) Enabled() bool {
	return b != nil && b.enabled
}

// PickupBooked notifies dispatch that a pickup was booked with the partner.
func (b *Bridge) PickupBooked(ctx context.Context, returnID uuid.UUID, trackingNumber string) {
	b.push(ctx, assignmentPush{
		ReturnID:       returnID.String(),
		TrackingNumber: trackingNumber,
		Kind:           "pickup_booked",
		PushedAt:       time.Now().UTC(),
	})
}

func (b *Bridge) push(ctx context.Context, payload assignmentPush) {
	if !b.Enabled() {
		return
	}

	ctx = b.log.WithFields(ctx, map[string]any{
		"return_id": payload.ReturnID,
		"kind":      payload.Kind,
	})

	body, err := json.Marshal(payload)
	if err != nil {
		b.log.Error(ctx, "failed to marshal dispatch push", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+assignmentsPath, bytes.NewReader(body))
	if err != nil {
		b.log.Error(ctx, "failed to build dispatch request", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if b.token != "" {
		req.Header.Set("x-internal-token", b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		b.log.Warn(ctx, "dispatch push failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b.log.Warn(b.log.WithField(ctx, "status_code", resp.StatusCode), "dispatch push rejected")
		return
	}
	b.log.Info(ctx, "dispatch assignment pushed")
}
