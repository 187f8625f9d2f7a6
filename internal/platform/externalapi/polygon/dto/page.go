// Package dto contains the JSON payloads of the Polygon REST API.
package dto

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Page is the envelope shared by every list endpoint.
type Page[T any] struct {
	Status    string `json:"status"`
	RequestID string `json:"request_id"`
	Count     int    `json:"count"`
	NextURL   string `json:"next_url,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	Results   []T    `json:"results"`
}

// ErrorMessage returns whichever of error or message the provider filled in.
func (p Page[T]) ErrorMessage() string {
	if p.Error != "" {
		return p.Error
	}
	return p.Message
}

// FlexibleFloat64 parses a JSON number, a numeric string or scientific notation.
type FlexibleFloat64 float64

// UnmarshalJSON parses number or string
func (f *FlexibleFloat64) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		val, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return fmt.Errorf("cannot parse %q as number: %w", str, err)
		}
		*f = FlexibleFloat64(val)
		return nil
	}

	var val float64
	if err := json.Unmarshal(data, &val); err != nil {
		return fmt.Errorf("cannot parse as number: %s", s)
	}
	*f = FlexibleFloat64(val)
	return nil
}

// Ptr returns the value as *float64, or nil for a missing field.
func (f *FlexibleFloat64) Ptr() *float64 {
	if f == nil {
		return nil
	}
	v := float64(*f)
	return &v
}
