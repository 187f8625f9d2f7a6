// Package handler はmarketdataフィーチャーのHTTPハンドラーを提供します。
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/transport/http/dto"
	"market_ingest/internal/feature/marketdata/usecase"
)

const defaultLookback = 30 * 24 * time.Hour

// MarketQueryUsecase は保存済み市場データを参照するユースケースインターフェースを定義します。
// Goの慣例に従い、インターフェースは利用者（handler）側で定義します。
type MarketQueryUsecase interface {
	GetBars(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error)
	Metrics(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) (entity.PriceMetrics, error)
	Volatility(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) (entity.VolatilityMetrics, error)
	Correlation(ctx context.Context, asset entity.AssetClass, from, to time.Time) ([]entity.Correlation, error)
	Snapshots(ctx context.Context, symbol string, from, to time.Time) ([]entity.OptionQuote, error)
	OptionChain(ctx context.Context, underlying string, day, expiration time.Time) ([]entity.OptionQuote, error)
	OptionGreeks(ctx context.Context, underlying string, from, to time.Time) ([]entity.GreeksSummary, error)
}

// MarketHandler は保存済み市場データのHTTPリクエストを処理します。
type MarketHandler struct {
	uc  MarketQueryUsecase
	now func() time.Time
}

// NewMarketHandler は指定されたusecaseでMarketHandlerの新しいインスタンスを生成します。
func NewMarketHandler(uc MarketQueryUsecase) *MarketHandler {
	return &MarketHandler{uc: uc, now: time.Now}
}

// GetBars は資産クラスと銘柄の集計足を時刻順に返します。
//
// エンドポイント例:
// GET /bars/stock/AAPL?from=2024-01-01&to=2024-01-31
func (h *MarketHandler) GetBars(c *gin.Context) {
	asset, ok := h.assetParam(c)
	if !ok {
		return
	}
	from, to, ok := h.rangeQuery(c)
	if !ok {
		return
	}

	bars, err := h.uc.GetBars(c.Request.Context(), asset, symbolParam(c, "symbol"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]dto.BarResponse, 0, len(bars))
	for _, b := range bars {
		out = append(out, dto.BarResponse{
			Time:            b.Timestamp.UTC().Format(time.RFC3339),
			Open:            b.Open,
			High:            b.High,
			Low:             b.Low,
			Close:           b.Close,
			Volume:          b.Volume,
			VWAP:            b.VWAP,
			Transactions:    b.Transactions,
			OpenInterest:    b.OpenInterest,
			SettlementPrice: b.SettlementPrice,
		})
	}
	c.JSON(http.StatusOK, out)
}

// GetMetrics は期間内の価格・出来高の集計値を返します。
//
// GET /metrics/:asset/:symbol?from=&to=
func (h *MarketHandler) GetMetrics(c *gin.Context) {
	asset, ok := h.assetParam(c)
	if !ok {
		return
	}
	from, to, ok := h.rangeQuery(c)
	if !ok {
		return
	}

	m, err := h.uc.Metrics(c.Request.Context(), asset, symbolParam(c, "symbol"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MetricsResponse{
		Symbol:         m.Symbol,
		Count:          m.Count,
		AvgPrice:       m.AvgPrice,
		MaxPrice:       m.MaxPrice,
		MinPrice:       m.MinPrice,
		TotalVolume:    m.TotalVolume,
		AvgVolume:      m.AvgVolume,
		AvgDailyChange: m.AvgDailyChange,
	})
}

// GetVolatility は (high-low)/low を代理指標としたボラティリティを返します。
//
// GET /volatility/:asset/:symbol?from=&to=
func (h *MarketHandler) GetVolatility(c *gin.Context) {
	asset, ok := h.assetParam(c)
	if !ok {
		return
	}
	from, to, ok := h.rangeQuery(c)
	if !ok {
		return
	}

	v, err := h.uc.Volatility(c.Request.Context(), asset, symbolParam(c, "symbol"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.VolatilityResponse{
		Symbol:             v.Symbol,
		AvgDailyVolatility: v.AvgDailyVolatility,
		MaxDailyVolatility: v.MaxDailyVolatility,
		MinDailyVolatility: v.MinDailyVolatility,
		AvgDailyReturn:     v.AvgDailyReturn,
	})
}

// GetCorrelation は資産クラス内の銘柄ペアごとの日次リターン相関を返します。
//
// GET /correlation/:asset?from=&to=
func (h *MarketHandler) GetCorrelation(c *gin.Context) {
	asset, ok := h.assetParam(c)
	if !ok {
		return
	}
	from, to, ok := h.rangeQuery(c)
	if !ok {
		return
	}

	pairs, err := h.uc.Correlation(c.Request.Context(), asset, from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]dto.CorrelationResponse, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, dto.CorrelationResponse{
			Symbol1:     p.Symbol1,
			Symbol2:     p.Symbol2,
			Correlation: p.Coefficient,
			Samples:     p.Samples,
		})
	}
	c.JSON(http.StatusOK, out)
}

// GetSnapshots はオプションコントラクトのスナップショットを返します。
//
// GET /snapshots/:symbol?from=&to=
func (h *MarketHandler) GetSnapshots(c *gin.Context) {
	from, to, ok := h.rangeQuery(c)
	if !ok {
		return
	}
	quotes, err := h.uc.Snapshots(c.Request.Context(), symbolParam(c, "symbol"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuoteResponses(quotes))
}

// GetOptionChain は原資産のある日のオプションチェーンを満期で絞り込んで返します。
//
// GET /options/:underlying/chain?date=2024-01-02&expiration=2024-01-19
func (h *MarketHandler) GetOptionChain(c *gin.Context) {
	day, err := parseRequiredDate(c, "date")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	exp, err := parseRequiredDate(c, "expiration")
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}

	quotes, err := h.uc.OptionChain(c.Request.Context(), symbolParam(c, "underlying"), day, exp)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toQuoteResponses(quotes))
}

// GetOptionGreeks は原資産のコール/プットごとのグリークス平均を返します。
//
// GET /options/:underlying/greeks?from=&to=
func (h *MarketHandler) GetOptionGreeks(c *gin.Context) {
	from, to, ok := h.rangeQuery(c)
	if !ok {
		return
	}
	sums, err := h.uc.OptionGreeks(c.Request.Context(), symbolParam(c, "underlying"), from, to)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]dto.GreeksResponse, 0, len(sums))
	for _, s := range sums {
		out = append(out, dto.GreeksResponse{
			Underlying: s.UnderlyingSymbol,
			OptionType: string(s.OptionType),
			AvgIV:      s.AvgIV,
			AvgDelta:   s.AvgDelta,
			AvgGamma:   s.AvgGamma,
			AvgTheta:   s.AvgTheta,
			AvgVega:    s.AvgVega,
			AvgRho:     s.AvgRho,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *MarketHandler) assetParam(c *gin.Context) (entity.AssetClass, bool) {
	asset, err := entity.ParseAssetClass(c.Param("asset"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return "", false
	}
	return asset, true
}

// rangeQuery は from/to クエリを読み取ります。to の既定値は現在時刻、from の既定値は to の30日前です。
func (h *MarketHandler) rangeQuery(c *gin.Context) (time.Time, time.Time, bool) {
	to := h.now().UTC()
	if s := c.Query("to"); s != "" {
		t, err := parseTimeParam(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: fmt.Sprintf("invalid to: %v", err)})
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	from := to.Add(-defaultLookback)
	if s := c.Query("from"); s != "" {
		t, err := parseTimeParam(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: fmt.Sprintf("invalid from: %v", err)})
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	return from, to, true
}

func symbolParam(c *gin.Context, name string) string {
	return strings.ToUpper(strings.TrimSpace(c.Param(name)))
}

// parseTimeParam は YYYY-MM-DD か RFC3339 を受け付けます。
func parseTimeParam(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither YYYY-MM-DD nor RFC3339", s)
	}
	return t.UTC(), nil
}

func parseRequiredDate(c *gin.Context, name string) (time.Time, error) {
	s := c.Query(name)
	if s == "" {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s: %q is not YYYY-MM-DD", name, s)
	}
	return t, nil
}

func toQuoteResponses(quotes []entity.OptionQuote) []dto.OptionQuoteResponse {
	out := make([]dto.OptionQuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		r := dto.OptionQuoteResponse{
			Time:              q.Timestamp.UTC().Format(time.RFC3339),
			Symbol:            q.Symbol,
			Underlying:        q.UnderlyingSymbol,
			OptionType:        string(q.OptionType),
			StrikePrice:       q.StrikePrice,
			Bid:               q.Bid,
			Ask:               q.Ask,
			LastPrice:         q.LastPrice,
			OpenInterest:      q.OpenInterest,
			ImpliedVolatility: q.ImpliedVolatility,
			Delta:             q.Delta,
			Gamma:             q.Gamma,
			Theta:             q.Theta,
			Vega:              q.Vega,
			Rho:               q.Rho,
		}
		if !q.ExpirationDate.IsZero() {
			r.ExpirationDate = q.ExpirationDate.UTC().Format("2006-01-02")
		}
		out = append(out, r)
	}
	return out
}

// writeError はユースケースのエラーをHTTPステータスに変換します。
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, usecase.ErrInvalidRange), errors.Is(err, domain.ErrUnsupportedAssetClass):
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
	case errors.Is(err, usecase.ErrNotFound):
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: err.Error()})
	default:
		slog.Error("market query failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "internal server error"})
	}
}
