// Package ingest moves sensor readings from RabbitMQ into the reading store.
package ingest

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"warehouse.dev/monitor/internal/store"
)

// Field names of the reading message.
const (
	fieldSensorID    = "sensorId"
	fieldWarehouseID = "warehouseId"
	fieldTemperature = "temperature"
	fieldHumidity    = "humidity"
	fieldTimestamp   = "timestamp"
)

// ErrMalformed is returned by Decode for messages that can never be stored.
var ErrMalformed = errors.New("malformed reading message")

// Encode serialises r as a protobuf Struct. Missing metrics are omitted.
func Encode(r *store.Reading) ([]byte, error) {
	fields := map[string]any{
		fieldSensorID:    r.SensorID,
		fieldWarehouseID: r.WarehouseID,
	}
	if r.Temperature != nil {
		fields[fieldTemperature] = *r.Temperature
	}
	if r.Humidity != nil {
		fields[fieldHumidity] = *r.Humidity
	}
	if !r.Timestamp.IsZero() {
		fields[fieldTimestamp] = r.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build reading message: %w", err)
	}
	return proto.Marshal(msg)
}

// Decode parses a reading message. A null or absent metric decodes as nil.
func Decode(data []byte) (*store.Reading, error) {
	var msg structpb.Struct
	if err := proto.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	f := msg.GetFields()

	r := &store.Reading{
		SensorID:    f[fieldSensorID].GetStringValue(),
		WarehouseID: f[fieldWarehouseID].GetStringValue(),
	}
	if r.SensorID == "" {
		return nil, fmt.Errorf("%w: sensorId is required", ErrMalformed)
	}

	var err error
	if r.Temperature, err = number(f, fieldTemperature); err != nil {
		return nil, err
	}
	if r.Humidity, err = number(f, fieldHumidity); err != nil {
		return nil, err
	}

	if ts := f[fieldTimestamp].GetStringValue(); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid timestamp %q", ErrMalformed, ts)
		}
		r.Timestamp = t.UTC()
	}
	return r, nil
}

func number(f map[string]*structpb.Value, name string) (*float64, error) {
	v, ok := f[name]
	if !ok {
		return nil, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return nil, nil
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, fmt.Errorf("%w: %s is not a finite number", ErrMalformed, name)
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a number", ErrMalformed, name)
	}
}
