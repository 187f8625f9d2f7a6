// Package dto はmarketdataフィーチャーのレスポンスDTOを定義します。
package dto

// ErrorResponse はエラー時のレスポンスDTOです。
type ErrorResponse struct {
	Error string `json:"error"`
}

// BarResponse は集計足のレスポンスDTOです。
type BarResponse struct {
	Time            string  `json:"time"` // RFC3339 (UTC)
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          int64   `json:"volume"`
	VWAP            float64 `json:"vwap,omitempty"`
	Transactions    int64   `json:"transactions,omitempty"`
	OpenInterest    int64   `json:"open_interest,omitempty"`    // 先物のみ
	SettlementPrice float64 `json:"settlement_price,omitempty"` // 先物のみ
}

// MetricsResponse は価格・出来高の集計値のレスポンスDTOです。
type MetricsResponse struct {
	Symbol         string  `json:"symbol"`
	Count          int64   `json:"count"`
	AvgPrice       float64 `json:"avg_price"`
	MaxPrice       float64 `json:"max_price"`
	MinPrice       float64 `json:"min_price"`
	TotalVolume    int64   `json:"total_volume"`
	AvgVolume      float64 `json:"avg_volume"`
	AvgDailyChange float64 `json:"avg_daily_change"`
}

// VolatilityResponse はボラティリティ指標のレスポンスDTOです。
type VolatilityResponse struct {
	Symbol             string  `json:"symbol"`
	AvgDailyVolatility float64 `json:"avg_daily_volatility"`
	MaxDailyVolatility float64 `json:"max_daily_volatility"`
	MinDailyVolatility float64 `json:"min_daily_volatility"`
	AvgDailyReturn     float64 `json:"avg_daily_return"`
}

// CorrelationResponse は銘柄ペアの相関係数のレスポンスDTOです。
type CorrelationResponse struct {
	Symbol1     string  `json:"symbol1"`
	Symbol2     string  `json:"symbol2"`
	Correlation float64 `json:"correlation"`
	Samples     int     `json:"samples"`
}

// OptionQuoteResponse はオプション気配のレスポンスDTOです。
type OptionQuoteResponse struct {
	Time              string  `json:"time"`
	Symbol            string  `json:"symbol"`
	Underlying        string  `json:"underlying,omitempty"`
	OptionType        string  `json:"option_type,omitempty"`
	StrikePrice       float64 `json:"strike_price,omitempty"`
	ExpirationDate    string  `json:"expiration_date,omitempty"` // YYYY-MM-DD
	Bid               float64 `json:"bid"`
	Ask               float64 `json:"ask"`
	LastPrice         float64 `json:"last_price"`
	OpenInterest      int64   `json:"open_interest"`
	ImpliedVolatility float64 `json:"implied_volatility"`
	Delta             float64 `json:"delta"`
	Gamma             float64 `json:"gamma"`
	Theta             float64 `json:"theta"`
	Vega              float64 `json:"vega"`
	Rho               float64 `json:"rho"`
}

// GreeksResponse はオプション種別ごとのグリークス平均のレスポンスDTOです。
type GreeksResponse struct {
	Underlying string  `json:"underlying"`
	OptionType string  `json:"option_type"`
	AvgIV      float64 `json:"avg_iv"`
	AvgDelta   float64 `json:"avg_delta"`
	AvgGamma   float64 `json:"avg_gamma"`
	AvgTheta   float64 `json:"avg_theta"`
	AvgVega    float64 `json:"avg_vega"`
	AvgRho     float64 `json:"avg_rho"`
}
