package entity

// PriceMetrics は期間内の価格・出来高の集計値です。
type PriceMetrics struct {
	Symbol         string
	Count          int64
	AvgPrice       float64
	MaxPrice       float64
	MinPrice       float64
	TotalVolume    int64
	AvgVolume      float64
	AvgDailyChange float64
}

// VolatilityMetrics は (high-low)/low を日次ボラティリティの代理指標とした集計値です。
type VolatilityMetrics struct {
	Symbol             string
	AvgDailyVolatility float64
	MaxDailyVolatility float64
	MinDailyVolatility float64
	AvgDailyReturn     float64
}

// Correlation は二銘柄間の日次リターンの相関係数です。
type Correlation struct {
	Symbol1     string
	Symbol2     string
	Coefficient float64
	Samples     int
}

// GreeksSummary は原資産・オプション種別ごとのグリークス平均です。
type GreeksSummary struct {
	UnderlyingSymbol string
	OptionType       OptionType
	AvgIV            float64
	AvgDelta         float64
	AvgGamma         float64
	AvgTheta         float64
	AvgVega          float64
	AvgRho           float64
}
