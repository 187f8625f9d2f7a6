package adapters

import (
	"time"

	"market_ingest/internal/feature/marketdata/domain/entity"
)

// StockAggregationModel は株式の日足テーブルです。
type StockAggregationModel struct {
	Timestamp time.Time `gorm:"primaryKey"`
	Symbol    string    `gorm:"primaryKey;size:64"`
	Open      float64   `gorm:"not null"`
	High      float64   `gorm:"not null"`
	Low       float64   `gorm:"not null"`
	Close     float64   `gorm:"not null"`
	Volume    int64     `gorm:"not null;default:0"`
	VWAP      float64   `gorm:"column:vwap"`
}

func (StockAggregationModel) TableName() string { return "stock_aggregation" }

// FutureAggregationModel は先物の日足テーブルです。
type FutureAggregationModel struct {
	Timestamp       time.Time `gorm:"primaryKey"`
	Symbol          string    `gorm:"primaryKey;size:64"`
	Open            float64   `gorm:"not null"`
	High            float64   `gorm:"not null"`
	Low             float64   `gorm:"not null"`
	Close           float64   `gorm:"not null"`
	Volume          int64     `gorm:"not null;default:0"`
	OpenInterest    int64     `gorm:"not null;default:0"`
	SettlementPrice float64   `gorm:"not null"`
}

func (FutureAggregationModel) TableName() string { return "future_aggregation" }

// IndexAggregationModel は指数の日足テーブルです。
type IndexAggregationModel struct {
	Timestamp time.Time `gorm:"primaryKey"`
	Symbol    string    `gorm:"primaryKey;size:64"`
	Open      float64   `gorm:"not null"`
	High      float64   `gorm:"not null"`
	Low       float64   `gorm:"not null"`
	Close     float64   `gorm:"not null"`
	Volume    int64     `gorm:"not null;default:0"`
}

func (IndexAggregationModel) TableName() string { return "index_aggregation" }

// OptionContractModel はオプションコントラクトの参照テーブルです。
type OptionContractModel struct {
	Symbol           string    `gorm:"primaryKey;size:64"`
	StrikePrice      float64   `gorm:"not null"`
	ExpirationDate   time.Time `gorm:"not null;index"`
	OptionType       string    `gorm:"size:8;not null"`
	UnderlyingSymbol string    `gorm:"size:32;not null;index"`

	// 子テーブルの symbol に外部キー制約を張るための関連です。書き込みでは使いません。
	Aggregations []OptionAggregationModel `gorm:"foreignKey:Symbol;references:Symbol"`
	Snapshots    []OptionSnapshotModel    `gorm:"foreignKey:Symbol;references:Symbol"`
}

func (OptionContractModel) TableName() string { return "option_contract" }

// OptionAggregationModel はオプションコントラクトの日足テーブルです。
type OptionAggregationModel struct {
	Timestamp time.Time `gorm:"primaryKey"`
	Symbol    string    `gorm:"primaryKey;size:64"`
	Open      float64   `gorm:"not null"`
	High      float64   `gorm:"not null"`
	Low       float64   `gorm:"not null"`
	Close     float64   `gorm:"not null"`
	Volume    int64     `gorm:"not null;default:0"`
	VWAP      float64   `gorm:"column:vwap"`
}

func (OptionAggregationModel) TableName() string { return "option_aggregation" }

// OptionSnapshotModel はオプションの気配とグリークスのテーブルです。
type OptionSnapshotModel struct {
	Timestamp         time.Time `gorm:"primaryKey"`
	Symbol            string    `gorm:"primaryKey;size:64"`
	Bid               float64   `gorm:"not null"`
	Ask               float64   `gorm:"not null"`
	LastPrice         float64   `gorm:"not null"`
	OpenInterest      int64
	ImpliedVolatility float64
	Delta             float64
	Gamma             float64
	Theta             float64
	Vega              float64
	Rho               float64
}

func (OptionSnapshotModel) TableName() string { return "option_snapshot" }

// Models はマイグレーション対象の全モデルを返します。参照先のテーブルが先に並びます。
func Models() []any {
	return []any{
		&OptionContractModel{},
		&StockAggregationModel{},
		&FutureAggregationModel{},
		&IndexAggregationModel{},
		&OptionAggregationModel{},
		&OptionSnapshotModel{},
	}
}

// barRow はどのテーブルからでも読み出せる列の和集合です。
type barRow struct {
	Timestamp       time.Time
	Symbol          string
	Open            float64
	High            float64
	Low             float64
	Close           float64
	Volume          int64
	VWAP            float64 `gorm:"column:vwap"`
	OpenInterest    int64
	SettlementPrice float64
}

func (r barRow) toEntity(ac entity.AssetClass) entity.Bar {
	return entity.Bar{
		AssetClass:      ac,
		Symbol:          r.Symbol,
		Timestamp:       r.Timestamp.UTC(),
		Open:            r.Open,
		High:            r.High,
		Low:             r.Low,
		Close:           r.Close,
		Volume:          r.Volume,
		VWAP:            r.VWAP,
		OpenInterest:    r.OpenInterest,
		SettlementPrice: r.SettlementPrice,
	}
}

func toContractModel(c entity.OptionContract) OptionContractModel {
	return OptionContractModel{
		Symbol:           c.Symbol,
		StrikePrice:      c.StrikePrice,
		ExpirationDate:   c.ExpirationDate.UTC(),
		OptionType:       string(c.OptionType),
		UnderlyingSymbol: c.UnderlyingSymbol,
	}
}

func toSnapshotModel(s entity.OptionSnapshot) OptionSnapshotModel {
	return OptionSnapshotModel{
		Timestamp:         s.Timestamp.UTC(),
		Symbol:            s.Symbol,
		Bid:               s.Bid,
		Ask:               s.Ask,
		LastPrice:         s.LastPrice,
		OpenInterest:      s.OpenInterest,
		ImpliedVolatility: s.ImpliedVolatility,
		Delta:             s.Delta,
		Gamma:             s.Gamma,
		Theta:             s.Theta,
		Vega:              s.Vega,
		Rho:               s.Rho,
	}
}
