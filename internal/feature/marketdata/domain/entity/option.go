package entity

import "time"

// OptionType はコール/プットの区別です。
type OptionType string

const (
	OptionCall OptionType = "CALL"
	OptionPut  OptionType = "PUT"
)

// OptionContract はオプションコントラクトの参照データです。Symbol が識別キーです。
type OptionContract struct {
	Symbol           string
	StrikePrice      float64
	ExpirationDate   time.Time
	OptionType       OptionType
	UnderlyingSymbol string
}

// OptionSnapshot はある時点のオプション気配とグリークスです。
type OptionSnapshot struct {
	Timestamp         time.Time
	Symbol            string
	Bid               float64
	Ask               float64
	LastPrice         float64
	OpenInterest      int64
	ImpliedVolatility float64
	Delta             float64
	Gamma             float64
	Theta             float64
	Vega              float64
	Rho               float64
}

// Key はバリデーションエラーで使う識別キーを返します。
func (s OptionSnapshot) Key() string {
	return s.Symbol + "@" + s.Timestamp.UTC().Format(time.RFC3339)
}

// OptionQuote はスナップショットにコントラクト情報を結合したものです（オプションチェーン用）。
type OptionQuote struct {
	OptionSnapshot
	StrikePrice      float64
	ExpirationDate   time.Time
	OptionType       OptionType
	UnderlyingSymbol string
}

// ContractQuery はオプションコントラクト一覧取得の条件です。
type ContractQuery struct {
	Underlying     string
	ExpirationDate *time.Time
	AsOf           *time.Time
	Expired        bool
	Limit          int // 0 は無制限
}

// RawOptionContract は未検証のコントラクトです。
type RawOptionContract struct {
	Symbol           string
	StrikePrice      *float64
	ExpirationDate   *time.Time
	OptionType       string
	UnderlyingSymbol string
}

// RawOptionSnapshot は未検証のスナップショットです。
type RawOptionSnapshot struct {
	Timestamp         *time.Time
	Symbol            string
	Bid               *float64
	Ask               *float64
	LastPrice         *float64
	OpenInterest      *float64
	ImpliedVolatility *float64
	Delta             *float64
	Gamma             *float64
	Theta             *float64
	Vega              *float64
	Rho               *float64
}
