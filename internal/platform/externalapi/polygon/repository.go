package polygon

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
	"market_ingest/internal/platform/externalapi/polygon/dto"
)

const (
	aggregatesLimit = 50000
	referenceLimit  = 1000
	dateLayout      = "2006-01-02"
)

// PolygonMarket はPolygon外部APIから市場データを取得するMarketRepository実装です。
type PolygonMarket struct {
	cfg    Config
	client *Client
}

// PolygonMarketがMarketRepositoryを実装していることをコンパイル時に検証します。
var _ usecase.MarketRepository = (*PolygonMarket)(nil)

// NewPolygonMarket は指定された設定とHTTPクライアントでPolygonMarketの新しいインスタンスを生成します。
func NewPolygonMarket(cfg Config, httpClient *http.Client) *PolygonMarket {
	cfg = cfg.withDefaults()
	return &PolygonMarket{cfg: cfg, client: NewClient(cfg, httpClient)}
}

// GetAggregates は [from, to] の集計足を昇順で取得します。next_url がある限りページを辿ります。
func (p *PolygonMarket) GetAggregates(ctx context.Context, symbol string, from, to time.Time) ([]entity.RawBar, error) {
	endpoint := fmt.Sprintf("/v2/aggs/ticker/%s/range/%d/%s/%s/%s",
		url.PathEscape(symbol), p.cfg.Multiplier, p.cfg.Timespan,
		from.UTC().Format(dateLayout), to.UTC().Format(dateLayout))
	q := url.Values{}
	q.Set("adjusted", "true")
	q.Set("sort", "asc")
	q.Set("limit", strconv.Itoa(aggregatesLimit))

	rows, err := collect(ctx, p.client, endpoint, q, 0, func(body []byte) (dto.Page[dto.BarRaw], error) {
		var res dto.AggregatesResponse
		err := json.Unmarshal(body, &res)
		return res.Page, err
	})
	if err != nil {
		return nil, err
	}

	bars := make([]entity.RawBar, 0, len(rows))
	for _, r := range rows {
		bars = append(bars, r.ToRaw(symbol))
	}
	return bars, nil
}

// ListOptionContracts は原資産のオプションコントラクトを列挙します。q.Limit が正なら総件数の上限です。
func (p *PolygonMarket) ListOptionContracts(ctx context.Context, cq entity.ContractQuery) ([]entity.RawOptionContract, error) {
	q := url.Values{}
	q.Set("underlying_ticker", cq.Underlying)
	q.Set("expired", strconv.FormatBool(cq.Expired))
	q.Set("limit", strconv.Itoa(pageSize(cq.Limit)))
	if cq.ExpirationDate != nil {
		q.Set("expiration_date", cq.ExpirationDate.UTC().Format(dateLayout))
	}
	if cq.AsOf != nil {
		q.Set("as_of", cq.AsOf.UTC().Format(dateLayout))
	}

	rows, err := collect(ctx, p.client, "/v3/reference/options/contracts", q, cq.Limit, decodePage[dto.ContractRaw])
	if err != nil {
		return nil, err
	}
	out := make([]entity.RawOptionContract, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToRaw())
	}
	return out, nil
}

// ListDividends は銘柄の配当履歴を取得します。
func (p *PolygonMarket) ListDividends(ctx context.Context, symbol string) ([]entity.CorporateAction, error) {
	q := url.Values{}
	q.Set("ticker", symbol)
	q.Set("limit", strconv.Itoa(referenceLimit))
	rows, err := collect(ctx, p.client, "/v3/reference/dividends", q, 0, decodePage[dto.DividendRaw])
	if err != nil {
		return nil, err
	}
	out := make([]entity.CorporateAction, 0, len(rows))
	for _, r := range rows {
		a := r.ToAction()
		if a.Symbol == "" {
			a.Symbol = symbol
		}
		out = append(out, a)
	}
	return out, nil
}

// ListSplits は銘柄の株式分割履歴を取得します。
func (p *PolygonMarket) ListSplits(ctx context.Context, symbol string) ([]entity.CorporateAction, error) {
	q := url.Values{}
	q.Set("ticker", symbol)
	q.Set("limit", strconv.Itoa(referenceLimit))
	rows, err := collect(ctx, p.client, "/v3/reference/splits", q, 0, decodePage[dto.SplitRaw])
	if err != nil {
		return nil, err
	}
	out := make([]entity.CorporateAction, 0, len(rows))
	for _, r := range rows {
		a := r.ToAction()
		if a.Symbol == "" {
			a.Symbol = symbol
		}
		out = append(out, a)
	}
	return out, nil
}

// ListNews は銘柄に関するニュースを新しい順に最大 limit 件取得します。
func (p *PolygonMarket) ListNews(ctx context.Context, symbol string, limit int) ([]entity.NewsItem, error) {
	q := url.Values{}
	q.Set("ticker", symbol)
	q.Set("order", "desc")
	q.Set("sort", "published_utc")
	q.Set("limit", strconv.Itoa(pageSize(limit)))
	rows, err := collect(ctx, p.client, "/v2/reference/news", q, limit, decodePage[dto.NewsRaw])
	if err != nil {
		return nil, err
	}
	out := make([]entity.NewsItem, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToItem(symbol))
	}
	return out, nil
}

func decodePage[T any](body []byte) (dto.Page[T], error) {
	var page dto.Page[T]
	err := json.Unmarshal(body, &page)
	return page, err
}

// collect は最初のページを取得し、next_url を辿って結果を連結します。
// limit が正の場合はその件数に達した時点で打ち切ります。
func collect[T any](ctx context.Context, c *Client, endpoint string, q url.Values, limit int, decode func([]byte) (dto.Page[T], error)) ([]T, error) {
	body, err := c.Call(ctx, endpoint, q)
	if err != nil {
		return nil, err
	}
	var out []T
	for {
		page, err := decode(body)
		if err != nil {
			return nil, fmt.Errorf("polygon %s: decode: %w", endpoint, err)
		}
		if strings.EqualFold(page.Status, "ERROR") {
			return nil, &ProviderError{Endpoint: endpoint, Status: page.Status, Message: page.ErrorMessage()}
		}
		out = append(out, page.Results...)
		if limit > 0 && len(out) >= limit {
			return out[:limit], nil
		}
		if page.NextURL == "" || len(page.Results) == 0 {
			return out, nil
		}
		if body, err = c.CallURL(ctx, page.NextURL); err != nil {
			return nil, err
		}
	}
}

func pageSize(limit int) int {
	if limit > 0 && limit < referenceLimit {
		return limit
	}
	return referenceLimit
}
