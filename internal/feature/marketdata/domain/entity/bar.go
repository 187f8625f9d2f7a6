package entity

import "time"

// Bar は一定期間（ここでは日足）の OHLCV 集計足です。
// 株式・先物・指数・オプションで共通の形を持ち、資産クラス固有の列は該当しない場合ゼロ値です。
type Bar struct {
	AssetClass   AssetClass
	Symbol       string    // 銘柄コード（オプションの場合はコントラクトのティッカー）
	Timestamp    time.Time // 足の開始時刻（UTC）
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
	VWAP         float64 // 株式・オプションのみ
	Transactions int64

	OpenInterest    int64   // 先物のみ
	SettlementPrice float64 // 先物のみ
}

// Key はバリデーションエラーで使う識別キーを返します。
func (b Bar) Key() string {
	return b.Symbol + "@" + b.Timestamp.UTC().Format(time.RFC3339)
}

// RawBar はプロバイダーやファイルから読み込んだ直後の未検証の足です。
// 数値は欠損を区別するためにポインタで保持します。
type RawBar struct {
	Symbol       string
	Timestamp    *time.Time
	Open         *float64
	High         *float64
	Low          *float64
	Close        *float64
	Volume       *float64
	VWAP         *float64
	Transactions *float64

	OpenInterest    *float64
	SettlementPrice *float64
}
