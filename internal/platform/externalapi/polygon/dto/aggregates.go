package dto

import (
	"time"

	"market_ingest/internal/feature/marketdata/domain/entity"
)

// BarRaw is one aggregate bar. Pointers distinguish a missing field from zero.
type BarRaw struct {
	Timestamp    *int64           `json:"t"` // Unix timestamp in milliseconds
	Open         *float64         `json:"o"`
	High         *float64         `json:"h"`
	Low          *float64         `json:"l"`
	Close        *float64         `json:"c"`
	Volume       *FlexibleFloat64 `json:"v"`
	VWAP         *float64         `json:"vw,omitempty"`
	Transactions *FlexibleFloat64 `json:"n,omitempty"`
}

// ToRaw converts BarRaw to an unvalidated entity.RawBar.
func (b BarRaw) ToRaw(symbol string) entity.RawBar {
	r := entity.RawBar{
		Symbol:       symbol,
		Open:         b.Open,
		High:         b.High,
		Low:          b.Low,
		Close:        b.Close,
		Volume:       b.Volume.Ptr(),
		VWAP:         b.VWAP,
		Transactions: b.Transactions.Ptr(),
	}
	if b.Timestamp != nil {
		ts := time.UnixMilli(*b.Timestamp).UTC()
		r.Timestamp = &ts
	}
	return r
}

// AggregatesResponse is the /v2/aggs response with next_url.
type AggregatesResponse struct {
	Page[BarRaw]
	Ticker       string `json:"ticker"`
	QueryCount   int    `json:"queryCount"`
	ResultsCount int    `json:"resultsCount"`
	Adjusted     bool   `json:"adjusted"`
}
