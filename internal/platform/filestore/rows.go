package filestore

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
)

const (
	timeLayout = time.RFC3339Nano
	dateLayout = "2006-01-02"
)

// BarRow は株式・オプションの足のファイル上の行です。
type BarRow struct {
	Timestamp    time.Time `parquet:"timestamp,timestamp(millisecond)"`
	Symbol       string    `parquet:"symbol"`
	Open         float64   `parquet:"open"`
	High         float64   `parquet:"high"`
	Low          float64   `parquet:"low"`
	Close        float64   `parquet:"close"`
	Volume       int64     `parquet:"volume"`
	VWAP         float64   `parquet:"vwap"`
	Transactions int64     `parquet:"transactions"`
}

// IndexRow は指数の足の行です。指数には出来高加重平均がありません。
type IndexRow struct {
	Timestamp time.Time `parquet:"timestamp,timestamp(millisecond)"`
	Symbol    string    `parquet:"symbol"`
	Open      float64   `parquet:"open"`
	High      float64   `parquet:"high"`
	Low       float64   `parquet:"low"`
	Close     float64   `parquet:"close"`
	Volume    int64     `parquet:"volume"`
}

// FutureRow は先物の足の行です。
type FutureRow struct {
	Timestamp       time.Time `parquet:"timestamp,timestamp(millisecond)"`
	Symbol          string    `parquet:"symbol"`
	Open            float64   `parquet:"open"`
	High            float64   `parquet:"high"`
	Low             float64   `parquet:"low"`
	Close           float64   `parquet:"close"`
	Volume          int64     `parquet:"volume"`
	OpenInterest    int64     `parquet:"open_interest"`
	SettlementPrice float64   `parquet:"settlement_price"`
}

// ActionRow は配当・株式分割の行です。
type ActionRow struct {
	Kind            string  `parquet:"kind"`
	Symbol          string  `parquet:"symbol"`
	EventDate       string  `parquet:"event_date"`
	PayDate         string  `parquet:"pay_date"`
	DeclarationDate string  `parquet:"declaration_date"`
	CashAmount      float64 `parquet:"cash_amount"`
	Currency        string  `parquet:"currency"`
	Frequency       int32   `parquet:"frequency"`
	SplitFrom       float64 `parquet:"split_from"`
	SplitTo         float64 `parquet:"split_to"`
	ProviderID      string  `parquet:"provider_id"`
}

// NewsRow はニュース記事の行です。Tickers はカンマ区切りです。
type NewsRow struct {
	ID          string    `parquet:"id"`
	Symbol      string    `parquet:"symbol"`
	PublishedAt time.Time `parquet:"published_at,timestamp(millisecond)"`
	Title       string    `parquet:"title"`
	Author      string    `parquet:"author"`
	Publisher   string    `parquet:"publisher"`
	ArticleURL  string    `parquet:"article_url"`
	Description string    `parquet:"description"`
	Tickers     string    `parquet:"tickers"`
}

var (
	barColumns    = []string{"timestamp", "symbol", "open", "high", "low", "close", "volume", "vwap", "transactions"}
	indexColumns  = []string{"timestamp", "symbol", "open", "high", "low", "close", "volume"}
	futureColumns = []string{"timestamp", "symbol", "open", "high", "low", "close", "volume", "open_interest", "settlement_price"}
	actionColumns = []string{"kind", "symbol", "event_date", "pay_date", "declaration_date", "cash_amount", "currency", "frequency", "split_from", "split_to", "provider_id"}
	newsColumns   = []string{"id", "symbol", "published_at", "title", "author", "publisher", "article_url", "description", "tickers"}
)

func toBarRow(b entity.Bar) BarRow {
	return BarRow{
		Timestamp: b.Timestamp.UTC(), Symbol: b.Symbol,
		Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
		Volume: b.Volume, VWAP: b.VWAP, Transactions: b.Transactions,
	}
}

func (r BarRow) record() []string {
	return []string{
		formatTime(r.Timestamp), r.Symbol,
		formatFloat(r.Open), formatFloat(r.High), formatFloat(r.Low), formatFloat(r.Close),
		strconv.FormatInt(r.Volume, 10), formatFloat(r.VWAP), strconv.FormatInt(r.Transactions, 10),
	}
}

func toIndexRow(b entity.Bar) IndexRow {
	return IndexRow{
		Timestamp: b.Timestamp.UTC(), Symbol: b.Symbol,
		Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
	}
}

func (r IndexRow) record() []string {
	return []string{
		formatTime(r.Timestamp), r.Symbol,
		formatFloat(r.Open), formatFloat(r.High), formatFloat(r.Low), formatFloat(r.Close),
		strconv.FormatInt(r.Volume, 10),
	}
}

func toFutureRow(b entity.Bar) FutureRow {
	return FutureRow{
		Timestamp: b.Timestamp.UTC(), Symbol: b.Symbol,
		Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume,
		OpenInterest: b.OpenInterest, SettlementPrice: b.SettlementPrice,
	}
}

func (r FutureRow) record() []string {
	return []string{
		formatTime(r.Timestamp), r.Symbol,
		formatFloat(r.Open), formatFloat(r.High), formatFloat(r.Low), formatFloat(r.Close),
		strconv.FormatInt(r.Volume, 10), strconv.FormatInt(r.OpenInterest, 10), formatFloat(r.SettlementPrice),
	}
}

func toActionRow(a entity.CorporateAction) ActionRow {
	return ActionRow{
		Kind: string(a.Kind), Symbol: a.Symbol,
		EventDate: formatDate(a.EventDate), PayDate: formatDate(a.PayDate), DeclarationDate: formatDate(a.Declaration),
		CashAmount: a.CashAmount, Currency: a.Currency, Frequency: int32(a.Frequency),
		SplitFrom: a.SplitFrom, SplitTo: a.SplitTo, ProviderID: a.ProviderID,
	}
}

func (r ActionRow) record() []string {
	return []string{
		r.Kind, r.Symbol, r.EventDate, r.PayDate, r.DeclarationDate,
		formatFloat(r.CashAmount), r.Currency, strconv.FormatInt(int64(r.Frequency), 10),
		formatFloat(r.SplitFrom), formatFloat(r.SplitTo), r.ProviderID,
	}
}

func toNewsRow(n entity.NewsItem) NewsRow {
	return NewsRow{
		ID: n.ID, Symbol: n.Symbol, PublishedAt: n.PublishedAt.UTC(),
		Title: n.Title, Author: n.Author, Publisher: n.Publisher,
		ArticleURL: n.ArticleURL, Description: n.Description, Tickers: strings.Join(n.Tickers, ","),
	}
}

func (r NewsRow) record() []string {
	return []string{
		r.ID, r.Symbol, formatTime(r.PublishedAt), r.Title, r.Author,
		r.Publisher, r.ArticleURL, r.Description, r.Tickers,
	}
}

// table は一つの資産クラスの行集合を CSV と Parquet の両方に書き出せる形で保持します。
type table interface {
	header() []string
	records() [][]string
	writeParquet(w io.Writer, opts ...parquet.WriterOption) error
	len() int
}

type recorder interface {
	record() []string
}

type rowTable[T recorder] struct {
	columns []string
	rows    []T
}

func newRowTable[S any, T recorder](columns []string, src []S, conv func(S) T) rowTable[T] {
	rows := make([]T, len(src))
	for i, s := range src {
		rows[i] = conv(s)
	}
	return rowTable[T]{columns: columns, rows: rows}
}

func (t rowTable[T]) header() []string { return t.columns }

func (t rowTable[T]) len() int { return len(t.rows) }

func (t rowTable[T]) records() [][]string {
	out := make([][]string, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.record()
	}
	return out
}

func (t rowTable[T]) writeParquet(w io.Writer, opts ...parquet.WriterOption) error {
	pw := parquet.NewGenericWriter[T](w, opts...)
	if _, err := pw.Write(t.rows); err != nil {
		_ = pw.Close()
		return fmt.Errorf("write parquet rows: %w", err)
	}
	return pw.Close()
}

// tableFor はバッチの資産クラスに対応する行型を選びます。
func tableFor(batch entity.Batch) (table, error) {
	switch batch.AssetClass {
	case entity.AssetStock, entity.AssetOption:
		return newRowTable(barColumns, batch.Bars, toBarRow), nil
	case entity.AssetIndex:
		return newRowTable(indexColumns, batch.Bars, toIndexRow), nil
	case entity.AssetFuture:
		return newRowTable(futureColumns, batch.Bars, toFutureRow), nil
	case entity.AssetDividends, entity.AssetSplits:
		return newRowTable(actionColumns, batch.Actions, toActionRow), nil
	case entity.AssetNews:
		return newRowTable(newsColumns, batch.News, toNewsRow), nil
	}
	return nil, fmt.Errorf("%w: %s has no file format", domain.ErrUnsupportedAssetClass, batch.AssetClass)
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	// Parquet 側の timestamp(millisecond) と同じ精度に揃える
	return t.UTC().Truncate(time.Millisecond).Format(timeLayout)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateLayout)
}
