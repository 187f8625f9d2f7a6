package entity

import "time"

// RawBatch は一つの資産クラス・銘柄について取得した未検証レコードの集合です。
// 資産クラスに応じていずれか（オプションは Contracts と Bars の両方）が埋まります。
type RawBatch struct {
	AssetClass AssetClass
	Symbol     string
	Bars       []RawBar
	Contracts  []RawOptionContract
	Snapshots  []RawOptionSnapshot
	Actions    []CorporateAction
	News       []NewsItem
}

// Len はバッチ内のレコード総数を返します。
func (b RawBatch) Len() int {
	return len(b.Bars) + len(b.Contracts) + len(b.Snapshots) + len(b.Actions) + len(b.News)
}

// RecordError は検証で除外されたレコードとその理由です。
type RecordError struct {
	Key    string
	Reason string
}

// Batch は検証済みのレコード集合です。Rejected には除外されたレコードが入ります。
type Batch struct {
	AssetClass AssetClass
	Symbol     string
	Bars       []Bar
	Contracts  []OptionContract
	Snapshots  []OptionSnapshot
	Actions    []CorporateAction
	News       []NewsItem
	Rejected   []RecordError
}

// Len は有効レコードの総数を返します。
func (b Batch) Len() int {
	return len(b.Bars) + len(b.Contracts) + len(b.Snapshots) + len(b.Actions) + len(b.News)
}

// DateRange は閉区間 [Start, End] です。
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Cover は r を other まで広げた区間を返します。区間が縮むことはありません。
func (r DateRange) Cover(other DateRange) DateRange {
	out := r
	if other.Start.Before(out.Start) {
		out.Start = other.Start
	}
	if other.End.After(out.End) {
		out.End = other.End
	}
	return out
}

// FetchMetadata は SeriesKey ごとの取得状況です。
type FetchMetadata struct {
	LastUpdate time.Time
	DataRange  DateRange
}
