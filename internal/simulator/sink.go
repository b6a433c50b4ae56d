package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"warehouse.dev/monitor/internal/ingest"
	"warehouse.dev/monitor/internal/store"
	"warehouse.dev/monitor/pkg/mq"
)

// Sink delivers a generated reading.
type Sink interface {
	Send(ctx context.Context, r *store.Reading) error
}

// QueueSink publishes readings to RabbitMQ in the ingest wire format.
type QueueSink struct {
	client mq.ClientInterface
}

// NewQueueSink wraps a queue client.
func NewQueueSink(client mq.ClientInterface) *QueueSink {
	return &QueueSink{client: client}
}

// Send implements Sink.
func (s *QueueSink) Send(ctx context.Context, r *store.Reading) error {
	data, err := ingest.Encode(r)
	if err != nil {
		return err
	}
	return s.client.Push(ctx, data)
}

// HTTPSink posts readings to the api service's ingest endpoint.
type HTTPSink struct {
	client   *http.Client
	endpoint string
	token    string
}

// NewHTTPSink creates an HTTPSink authenticated with a bearer token.
func NewHTTPSink(endpoint, token string) *HTTPSink {
	return &HTTPSink{
		client:   &http.Client{Timeout: 10 * time.Second},
		endpoint: endpoint,
		token:    token,
	}
}

type ingestRequest struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	SensorID    string   `json:"sensorId"`
	WarehouseID string   `json:"warehouseId"`
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, r *store.Reading) error {
	body, err := json.Marshal(ingestRequest{
		SensorID:    r.SensorID,
		WarehouseID: r.WarehouseID,
		Temperature: r.Temperature,
		Humidity:    r.Humidity,
	})
	if err != nil {
		return fmt.Errorf("failed to encode reading: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post reading: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("ingest responded with status %d", resp.StatusCode)
	}
	return nil
}
