// Package entity defines the domain models for the marketdata feature.
package entity

import (
	"fmt"
	"strings"
	"time"
)

// AssetClass は取得・保存の単位となる資産クラスです。
// 値はファイルレイアウトのディレクトリ名とメタデータキーの接頭辞にそのまま使われます。
type AssetClass string

const (
	AssetStock          AssetClass = "stock"
	AssetFuture         AssetClass = "future"
	AssetIndex          AssetClass = "index"
	AssetOption         AssetClass = "option"
	AssetOptionContract AssetClass = "option_contract"
	AssetOptionSnapshot AssetClass = "option_snapshot"
	AssetDividends      AssetClass = "dividends"
	AssetSplits         AssetClass = "splits"
	AssetNews           AssetClass = "news"
)

// FileAssetClasses はファイルとして永続化される資産クラスの一覧です。
var FileAssetClasses = []AssetClass{
	AssetStock, AssetFuture, AssetIndex, AssetOption,
	AssetDividends, AssetSplits, AssetNews,
}

// ParseAssetClass は文字列を AssetClass に変換します。大文字小文字は区別しません。
func ParseAssetClass(s string) (AssetClass, error) {
	ac := AssetClass(strings.ToLower(strings.TrimSpace(s)))
	switch ac {
	case AssetStock, AssetFuture, AssetIndex, AssetOption,
		AssetOptionContract, AssetOptionSnapshot,
		AssetDividends, AssetSplits, AssetNews:
		return ac, nil
	}
	return "", fmt.Errorf("unknown asset class %q", s)
}

// IsBar は資産クラスが OHLCV の集計足を扱うかどうかを返します。
func (a AssetClass) IsBar() bool {
	switch a {
	case AssetStock, AssetFuture, AssetIndex, AssetOption:
		return true
	}
	return false
}

// HasTable はリレーショナルストアに専用テーブルを持つかどうかを返します。
// 配当・分割・ニュースはファイルにのみ保存されます。
func (a AssetClass) HasTable() bool {
	return a.IsBar() || a == AssetOptionContract || a == AssetOptionSnapshot
}

// HasVWAP は VWAP 列を持つ資産クラスかどうかを返します。
func (a AssetClass) HasVWAP() bool {
	return a == AssetStock || a == AssetOption
}

// SeriesKey は (資産クラス, 銘柄) の組でメタデータを識別します。
type SeriesKey struct {
	AssetClass AssetClass
	Symbol     string
}

// String は "stock_AAPL" 形式のキー文字列を返します。
func (k SeriesKey) String() string {
	return string(k.AssetClass) + "_" + k.Symbol
}

// FileKey はファイル永続化の単位です。
type FileKey struct {
	AssetClass AssetClass
	Symbol     string
	Start      time.Time
	End        time.Time
}

// Series は FileKey に対応する SeriesKey を返します。
func (k FileKey) Series() SeriesKey {
	return SeriesKey{AssetClass: k.AssetClass, Symbol: k.Symbol}
}

// BaseName は "{symbol}_{YYYYMMDD}_{YYYYMMDD}" 形式のファイル名（拡張子なし）を返します。
func (k FileKey) BaseName() string {
	return fmt.Sprintf("%s_%s_%s", k.Symbol, k.Start.UTC().Format("20060102"), k.End.UTC().Format("20060102"))
}
