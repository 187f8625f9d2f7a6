// Package domain defines domain-level errors for the marketdata feature.
package domain

import (
	"errors"
	"fmt"
	"strings"

	"market_ingest/internal/feature/marketdata/domain/entity"
)

// Domain errors for validation.
var (
	// ErrMissingRequiredField indicates that no record in a batch carries a structurally required field.
	// The whole batch is rejected instead of defaulting the field.
	ErrMissingRequiredField = errors.New("batch is missing a required field")

	// ErrNoValidRecords indicates that every record of a batch was rejected.
	ErrNoValidRecords = errors.New("no valid records")

	// ErrUnsupportedAssetClass indicates that an operation does not handle the given asset class.
	ErrUnsupportedAssetClass = errors.New("unsupported asset class")
)

// ValidationError lists every rejected record of a batch that ended up empty.
type ValidationError struct {
	AssetClass entity.AssetClass
	Symbol     string
	Records    []entity.RecordError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "validation failed for %s %s: %d invalid records", e.AssetClass, e.Symbol, len(e.Records))
	for i, r := range e.Records {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(r.Key)
		b.WriteString(" (")
		b.WriteString(r.Reason)
		b.WriteString(")")
	}
	return b.String()
}

// Is reports ErrNoValidRecords so callers can match with errors.Is.
func (e *ValidationError) Is(target error) bool {
	return target == ErrNoValidRecords
}
