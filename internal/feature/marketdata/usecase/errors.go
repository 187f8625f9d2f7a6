// Package usecase implements the ingestion, import and query logic for the marketdata feature.
package usecase

import (
	"errors"
	"fmt"

	"market_ingest/internal/feature/marketdata/domain/entity"
)

var (
	// ErrNoData is returned when the provider has nothing for the requested key and range.
	ErrNoData = errors.New("no data returned")

	// ErrNotFound is returned when a query matches no stored rows.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRange is returned when a query range ends before it starts.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrNothingImported is returned when a directory import did not import a single file.
	ErrNothingImported = errors.New("no files were imported")
)

// PersistError は一つの永続化先（csv, parquet, db, metadata）での書き込み失敗です。
// 他の永続化先の結果は巻き戻されません。
type PersistError struct {
	Sink string
	Key  entity.FileKey
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s %s/%s [%s..%s]: %v",
		e.Sink, e.Key.AssetClass, e.Key.Symbol,
		e.Key.Start.Format("2006-01-02"), e.Key.End.Format("2006-01-02"), e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
