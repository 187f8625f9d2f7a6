package dto

import (
	"strings"
	"time"

	"market_ingest/internal/feature/marketdata/domain/entity"
)

const dateLayout = "2006-01-02"

func parseDate(s string) time.Time {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t
}

// ContractRaw is one item of /v3/reference/options/contracts.
type ContractRaw struct {
	Ticker            string   `json:"ticker"`
	UnderlyingTicker  string   `json:"underlying_ticker"`
	ContractType      string   `json:"contract_type"`
	ExpirationDate    string   `json:"expiration_date"`
	StrikePrice       *float64 `json:"strike_price"`
	ExerciseStyle     string   `json:"exercise_style"`
	SharesPerContract int      `json:"shares_per_contract"`
	PrimaryExchange   string   `json:"primary_exchange"`
}

// ToRaw converts ContractRaw to an unvalidated entity.RawOptionContract.
func (c ContractRaw) ToRaw() entity.RawOptionContract {
	r := entity.RawOptionContract{
		Symbol:           c.Ticker,
		StrikePrice:      c.StrikePrice,
		OptionType:       c.ContractType,
		UnderlyingSymbol: c.UnderlyingTicker,
	}
	if exp := parseDate(c.ExpirationDate); !exp.IsZero() {
		r.ExpirationDate = &exp
	}
	return r
}

// DividendRaw is one item of /v3/reference/dividends.
type DividendRaw struct {
	ID              string  `json:"id"`
	Ticker          string  `json:"ticker"`
	CashAmount      float64 `json:"cash_amount"`
	Currency        string  `json:"currency"`
	DeclarationDate string  `json:"declaration_date"`
	ExDividendDate  string  `json:"ex_dividend_date"`
	PayDate         string  `json:"pay_date"`
	RecordDate      string  `json:"record_date"`
	Frequency       int     `json:"frequency"`
	DividendType    string  `json:"dividend_type"`
}

// ToAction converts DividendRaw to an entity.CorporateAction keyed on the ex-dividend date.
func (d DividendRaw) ToAction() entity.CorporateAction {
	return entity.CorporateAction{
		Kind:        entity.ActionDividend,
		Symbol:      d.Ticker,
		EventDate:   parseDate(d.ExDividendDate),
		PayDate:     parseDate(d.PayDate),
		CashAmount:  d.CashAmount,
		Currency:    d.Currency,
		Frequency:   d.Frequency,
		ProviderID:  d.ID,
		Declaration: parseDate(d.DeclarationDate),
	}
}

// SplitRaw is one item of /v3/reference/splits.
type SplitRaw struct {
	ID            string  `json:"id"`
	Ticker        string  `json:"ticker"`
	ExecutionDate string  `json:"execution_date"`
	SplitFrom     float64 `json:"split_from"`
	SplitTo       float64 `json:"split_to"`
}

// ToAction converts SplitRaw to an entity.CorporateAction keyed on the execution date.
func (s SplitRaw) ToAction() entity.CorporateAction {
	return entity.CorporateAction{
		Kind:       entity.ActionSplit,
		Symbol:     s.Ticker,
		EventDate:  parseDate(s.ExecutionDate),
		SplitFrom:  s.SplitFrom,
		SplitTo:    s.SplitTo,
		ProviderID: s.ID,
	}
}

// Publisher is the news source.
type Publisher struct {
	Name        string `json:"name"`
	HomepageURL string `json:"homepage_url"`
}

// NewsRaw is one item of /v2/reference/news.
type NewsRaw struct {
	ID           string    `json:"id"`
	Publisher    Publisher `json:"publisher"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	PublishedUTC string    `json:"published_utc"`
	ArticleURL   string    `json:"article_url"`
	Tickers      []string  `json:"tickers"`
	Description  string    `json:"description"`
}

// ToItem converts NewsRaw to an entity.NewsItem for symbol.
func (n NewsRaw) ToItem(symbol string) entity.NewsItem {
	published, err := time.Parse(time.RFC3339, n.PublishedUTC)
	if err != nil {
		published = time.Time{}
	}
	return entity.NewsItem{
		ID:          n.ID,
		Symbol:      symbol,
		PublishedAt: published.UTC(),
		Title:       n.Title,
		Author:      n.Author,
		Publisher:   n.Publisher.Name,
		ArticleURL:  n.ArticleURL,
		Description: n.Description,
		Tickers:     n.Tickers,
	}
}
