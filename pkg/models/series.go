package models

import (
	"encoding/json"
	"fmt"
)

// UnitKWh is the only unit the portal exports.
const UnitKWh = "kWh"

// Series is the canonical time series for a single metering point
type Series struct {
	Name string    `json:"name"`
	Unit string    `json:"unit"`
	Data []Reading `json:"data"`
}

// Reading is one interval value. It is encoded as a
// [epoch_millis, value, status] triple.
type Reading struct {
	Timestamp int64 // Unix epoch milliseconds
	Value     float64
	Status    string
}

// MarshalJSON encodes the reading as a three element array
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{r.Timestamp, r.Value, r.Status})
}

// UnmarshalJSON decodes a [epoch_millis, value, status] triple
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding reading: %w", err)
	}
	if len(raw) != 3 {
		return fmt.Errorf("decoding reading: expected 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &r.Timestamp); err != nil {
		return fmt.Errorf("decoding reading timestamp: %w", err)
	}
	if err := json.Unmarshal(raw[1], &r.Value); err != nil {
		return fmt.Errorf("decoding reading value: %w", err)
	}
	if err := json.Unmarshal(raw[2], &r.Status); err != nil {
		return fmt.Errorf("decoding reading status: %w", err)
	}
	return nil
}
