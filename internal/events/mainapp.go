package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"warehouse.dev/monitor/internal/auth"
)

// NotifyPath is the main application's internal alert endpoint.
const NotifyPath = "/api/alerts/notify"

// MainAppConfig configures the MainAppNotifier.
type MainAppConfig struct {
	Logger  *slog.Logger
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// MainAppNotifier forwards alert events to the API service, which
// rebroadcasts them to its websocket subscribers. It is used when the
// evaluation engine runs as its own process.
type MainAppNotifier struct {
	logger *slog.Logger
	client *http.Client
	url    string
	apiKey string
}

// NewMainAppNotifier creates a MainAppNotifier.
func NewMainAppNotifier(cfg *MainAppConfig) (*MainAppNotifier, error) {
	if cfg == nil {
		return nil, errors.New("main app config cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("main app url cannot be empty")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("internal api key cannot be empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &MainAppNotifier{
		logger: cfg.Logger,
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(cfg.BaseURL, "/") + NotifyPath,
		apiKey: cfg.APIKey,
	}, nil
}

// PublishAlert implements Publisher.
func (n *MainAppNotifier) PublishAlert(ctx context.Context, e AlertEvent) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode alert event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(auth.InternalKeyHeader, n.apiKey)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to notify main app: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("main app responded with status %d", resp.StatusCode)
	}

	n.logger.Debug("main app notified", "alert_id", e.Alert.ID, "event_id", e.ID)
	return nil
}
