// Package stream implements the telemetry ingestion engine: a socket
// listener feeding a bounded hand-off channel, per-stream capacity-bounded
// buffers with FIFO eviction, and the streaming lifecycle controller that
// owns the running flag and the supervised worker processes.
package stream

import (
	"encoding/json"

	"github.com/nominal-io/connect/errors"
)

// Buffer capacity bounds by record kind.
const (
	// MaxChannelPoints bounds scalar channel buffers.
	MaxChannelPoints = 100
	// MaxFlightPoints bounds flight sample buffers. Also sizes the
	// hand-off channel between the listener and the store.
	MaxFlightPoints = 10_000
)

// FlightPositionStream is the stream id carrying full flight samples.
// Every other recognized stream id carries scalar channel data.
const FlightPositionStream = "flight_position"

// Data is the wire-format telemetry message published by streaming
// workers. All numeric fields except timestamp are optional and default
// to 0.0 when absent. Transient: consumed once and converted to a Record.
type Data struct {
	StreamID  string  `json:"stream_id"`
	Timestamp float64 `json:"timestamp"`
	Value     float64 `json:"value"`
	RelLat    float64 `json:"rel_lat"`
	RelLon    float64 `json:"rel_lon"`
	Altitude  float64 `json:"altitude"`
	Pitch     float64 `json:"pitch"`
	Roll      float64 `json:"roll"`
	Yaw       float64 `json:"yaw"`
}

// ParseData decodes a wire telemetry message.
func ParseData(raw []byte) (Data, error) {
	var d Data
	if err := json.Unmarshal(raw, &d); err != nil {
		return Data{}, errors.WrapInvalid(err, "Data", "ParseData", "decode telemetry")
	}
	if d.StreamID == "" {
		return Data{}, errors.WrapInvalid(errors.ErrInvalidData, "Data", "ParseData", "missing stream_id")
	}
	return d, nil
}
