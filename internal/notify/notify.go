package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/arctic-media-solutions/soundwave/internal/model"
	"github.com/arctic-media-solutions/soundwave/pkg/logger"
)

// Status values carried in webhook payloads.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// ProcessingEvent reports an intermediate pipeline checkpoint.
type ProcessingEvent struct {
	JobID         string        `json:"job_id"`
	InternalID    string        `json:"internal_id,omitempty"`
	Status        string        `json:"status"`
	Progress      int           `json:"progress"`
	Stage         string        `json:"stage"`
	CurrentOutput *model.Output `json:"current_output,omitempty"`
}

// CompletedEvent carries the full result payload.
type CompletedEvent struct {
	JobID      string                 `json:"job_id"`
	InternalID string                 `json:"internal_id,omitempty"`
	Status     string                 `json:"status"`
	Outputs    []model.Output         `json:"outputs"`
	Waveform   *model.Waveform        `json:"waveform,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// FailedEvent reports a terminal stage failure.
type FailedEvent struct {
	JobID      string                 `json:"job_id"`
	InternalID string                 `json:"internal_id,omitempty"`
	Status     string                 `json:"status"`
	Error      string                 `json:"error"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Dispatcher delivers status payloads to webhook endpoints. Delivery is
// best-effort: failures must never escalate into a pipeline failure.
type Dispatcher interface {
	Notify(ctx context.Context, endpoint string, payload interface{}) bool
}

// WebhookDispatcher posts JSON payloads over HTTP.
type WebhookDispatcher struct {
	httpClient *http.Client
	log        *logger.Logger
}

// NewWebhookDispatcher creates a dispatcher with the given per-delivery
// timeout.
func NewWebhookDispatcher(timeout time.Duration, log *logger.Logger) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &WebhookDispatcher{
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Notify posts the payload to endpoint. Returns false on any failure;
// the failure is logged and swallowed, never retried here.
func (d *WebhookDispatcher) Notify(ctx context.Context, endpoint string, payload interface{}) bool {
	if endpoint == "" {
		return false
	}

	body, err := json.Marshal(payload)
	if err != nil {
		d.log.Warn("webhook payload marshal failed", zap.String("endpoint", endpoint), zap.Error(err))
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		d.log.Warn("webhook request build failed", zap.String("endpoint", endpoint), zap.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.log.Warn("webhook delivery failed", zap.String("endpoint", endpoint), zap.Error(err))
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		d.log.Warn("webhook delivery rejected",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return false
	}

	return true
}
