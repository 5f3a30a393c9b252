// Package types holds small shared value types with serialization quirks.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration so config and status payloads carry
// human-readable strings ("10s", "3h") instead of nanosecond integers.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("types: invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ToDuration unwraps to the stdlib type.
func (d Duration) ToDuration() time.Duration {
	return time.Duration(d)
}

// FromDuration wraps a stdlib duration.
func FromDuration(td time.Duration) Duration {
	return Duration(td)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}
