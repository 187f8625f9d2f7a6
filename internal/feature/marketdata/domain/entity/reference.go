package entity

import "time"

// ActionKind はコーポレートアクションの種別です。
type ActionKind string

const (
	ActionDividend ActionKind = "dividend"
	ActionSplit    ActionKind = "split"
)

// CorporateAction は配当または株式分割のイベントです。
// EventDate は配当なら権利落ち日、分割なら実施日です。
type CorporateAction struct {
	Kind        ActionKind
	Symbol      string
	EventDate   time.Time
	PayDate     time.Time // 配当のみ
	CashAmount  float64   // 配当のみ
	Currency    string
	Frequency   int
	SplitFrom   float64 // 分割のみ
	SplitTo     float64 // 分割のみ
	ProviderID  string
	Declaration time.Time
}

// Key はバリデーションエラーで使う識別キーを返します。
func (c CorporateAction) Key() string {
	return string(c.Kind) + ":" + c.Symbol + "@" + c.EventDate.UTC().Format("2006-01-02")
}

// NewsItem は銘柄に紐づくニュース記事です。
type NewsItem struct {
	ID          string
	Symbol      string
	PublishedAt time.Time
	Title       string
	Author      string
	Publisher   string
	ArticleURL  string
	Description string
	Tickers     []string
}

// Key はバリデーションエラーで使う識別キーを返します。
func (n NewsItem) Key() string {
	if n.ID != "" {
		return n.ID
	}
	return n.Symbol + "@" + n.PublishedAt.UTC().Format(time.RFC3339)
}
