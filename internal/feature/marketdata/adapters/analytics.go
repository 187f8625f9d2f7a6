package adapters

import (
	"context"
	"math"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
)

const day = 24 * time.Hour

type priceAgg struct {
	Symbol         string
	Count          int64
	AvgPrice       float64
	MaxPrice       float64
	MinPrice       float64
	TotalVolume    int64
	AvgVolume      float64
	AvgDailyChange float64
}

// PriceMetrics は期間内の終値平均・高値最大・安値最小・出来高などを集計します。
func (s *marketStore) PriceMetrics(ctx context.Context, ac entity.AssetClass, symbol string, from, to time.Time) (entity.PriceMetrics, error) {
	model, err := barModel(ac)
	if err != nil {
		return entity.PriceMetrics{}, err
	}
	var rows []priceAgg
	err = s.barScope(ctx, model, symbol, from, to).
		Select(`symbol,
			COUNT(*) AS count,
			AVG(close) AS avg_price,
			MAX(high) AS max_price,
			MIN(low) AS min_price,
			SUM(volume) AS total_volume,
			AVG(volume) AS avg_volume,
			AVG(close - open) AS avg_daily_change`).
		Group("symbol").
		Scan(&rows).Error
	if err != nil {
		return entity.PriceMetrics{}, err
	}
	if len(rows) == 0 || rows[0].Count == 0 {
		return entity.PriceMetrics{}, usecase.ErrNotFound
	}
	r := rows[0]
	return entity.PriceMetrics{
		Symbol:         r.Symbol,
		Count:          r.Count,
		AvgPrice:       r.AvgPrice,
		MaxPrice:       r.MaxPrice,
		MinPrice:       r.MinPrice,
		TotalVolume:    r.TotalVolume,
		AvgVolume:      r.AvgVolume,
		AvgDailyChange: r.AvgDailyChange,
	}, nil
}

type volatilityAgg struct {
	Symbol             string
	AvgDailyVolatility float64
	MaxDailyVolatility float64
	MinDailyVolatility float64
	AvgDailyReturn     float64
}

// Volatility は (high-low)/low を日次ボラティリティ、|close-open|/open を日次リターンとして集計します。
// 安値や始値が0の足は除外します。
func (s *marketStore) Volatility(ctx context.Context, ac entity.AssetClass, symbol string, from, to time.Time) (entity.VolatilityMetrics, error) {
	model, err := barModel(ac)
	if err != nil {
		return entity.VolatilityMetrics{}, err
	}
	var rows []volatilityAgg
	err = s.barScope(ctx, model, symbol, from, to).
		Where("low > 0 AND open > 0").
		Select(`symbol,
			AVG((high - low) / low) AS avg_daily_volatility,
			MAX((high - low) / low) AS max_daily_volatility,
			MIN((high - low) / low) AS min_daily_volatility,
			AVG(ABS(close - open) / open) AS avg_daily_return`).
		Group("symbol").
		Scan(&rows).Error
	if err != nil {
		return entity.VolatilityMetrics{}, err
	}
	if len(rows) == 0 {
		return entity.VolatilityMetrics{}, usecase.ErrNotFound
	}
	r := rows[0]
	return entity.VolatilityMetrics{
		Symbol:             r.Symbol,
		AvgDailyVolatility: r.AvgDailyVolatility,
		MaxDailyVolatility: r.MaxDailyVolatility,
		MinDailyVolatility: r.MinDailyVolatility,
		AvgDailyReturn:     r.AvgDailyReturn,
	}, nil
}

type closeRow struct {
	Symbol    string
	Timestamp time.Time
	Close     float64
}

// Correlation は資産クラス内の全銘柄ペアについて、日次リターンのピアソン相関を返します。
// 共通する日付が2未満、または分散が0のペアは含めません。
func (s *marketStore) Correlation(ctx context.Context, ac entity.AssetClass, from, to time.Time) ([]entity.Correlation, error) {
	model, err := barModel(ac)
	if err != nil {
		return nil, err
	}
	var rows []closeRow
	err = s.db.WithContext(ctx).Model(model).
		Select("symbol", "timestamp", "close").
		Where(between(clause.Column{Name: "timestamp"}, from, to)).
		Order(clause.OrderBy{Columns: []clause.OrderByColumn{
			{Column: clause.Column{Name: "symbol"}},
			{Column: clause.Column{Name: "timestamp"}},
		}}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	returns := dailyReturns(rows)
	symbols := make([]string, 0, len(returns))
	for sym := range returns {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out []entity.Correlation
	for i := 0; i < len(symbols); i++ {
		for j := i + 1; j < len(symbols); j++ {
			a, b := returns[symbols[i]], returns[symbols[j]]
			var xs, ys []float64
			for ts, ra := range a {
				if rb, ok := b[ts]; ok {
					xs = append(xs, ra)
					ys = append(ys, rb)
				}
			}
			coef, ok := pearson(xs, ys)
			if !ok {
				continue
			}
			out = append(out, entity.Correlation{
				Symbol1:     symbols[i],
				Symbol2:     symbols[j],
				Coefficient: coef,
				Samples:     len(xs),
			})
		}
	}
	return out, nil
}

// dailyReturns は銘柄ごとに時刻順の終値から変化率を求めます。rows は (symbol, timestamp) 順である必要があります。
func dailyReturns(rows []closeRow) map[string]map[int64]float64 {
	out := make(map[string]map[int64]float64)
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if prev.Symbol != cur.Symbol || prev.Close == 0 {
			continue
		}
		m, ok := out[cur.Symbol]
		if !ok {
			m = make(map[int64]float64)
			out[cur.Symbol] = m
		}
		m[cur.Timestamp.UTC().Unix()] = cur.Close/prev.Close - 1
	}
	return out
}

func pearson(xs, ys []float64) (float64, bool) {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return 0, false
	}
	var mx, my float64
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= float64(n)
	my /= float64(n)

	var cov, vx, vy float64
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		cov += dx * dy
		vx += dx * dx
		vy += dy * dy
	}
	if vx == 0 || vy == 0 {
		return 0, false
	}
	return cov / math.Sqrt(vx*vy), true
}

type quoteRow struct {
	Timestamp         time.Time
	Symbol            string
	Bid               float64
	Ask               float64
	LastPrice         float64
	OpenInterest      int64
	ImpliedVolatility float64
	Delta             float64
	Gamma             float64
	Theta             float64
	Vega              float64
	Rho               float64
	StrikePrice       float64
	ExpirationDate    *time.Time
	OptionType        *string
	UnderlyingSymbol  *string
}

func (r quoteRow) toEntity() entity.OptionQuote {
	q := entity.OptionQuote{
		OptionSnapshot: entity.OptionSnapshot{
			Timestamp:         r.Timestamp.UTC(),
			Symbol:            r.Symbol,
			Bid:               r.Bid,
			Ask:               r.Ask,
			LastPrice:         r.LastPrice,
			OpenInterest:      r.OpenInterest,
			ImpliedVolatility: r.ImpliedVolatility,
			Delta:             r.Delta,
			Gamma:             r.Gamma,
			Theta:             r.Theta,
			Vega:              r.Vega,
			Rho:               r.Rho,
		},
		StrikePrice: r.StrikePrice,
	}
	if r.ExpirationDate != nil {
		q.ExpirationDate = r.ExpirationDate.UTC()
	}
	if r.OptionType != nil {
		q.OptionType = entity.OptionType(*r.OptionType)
	}
	if r.UnderlyingSymbol != nil {
		q.UnderlyingSymbol = *r.UnderlyingSymbol
	}
	return q
}

const quoteColumns = `s.timestamp, s.symbol, s.bid, s.ask, s.last_price, s.open_interest,
	s.implied_volatility, s.delta, s.gamma, s.theta, s.vega, s.rho,
	c.strike_price, c.expiration_date, c.option_type, c.underlying_symbol`

var (
	snapSymbol     = clause.Column{Table: "s", Name: "symbol"}
	snapTimestamp  = clause.Column{Table: "s", Name: "timestamp"}
	contractUnder  = clause.Column{Table: "c", Name: "underlying_symbol"}
	contractExpiry = clause.Column{Table: "c", Name: "expiration_date"}
)

// GetSnapshotsByRange はコントラクトのスナップショットを時刻順に返します。
// コントラクト情報が未登録のスナップショットも返し、その場合は参照列がゼロ値になります。
func (s *marketStore) GetSnapshotsByRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.OptionQuote, error) {
	var rows []quoteRow
	err := s.db.WithContext(ctx).
		Table("option_snapshot AS s").
		Select(quoteColumns).
		Joins("LEFT JOIN option_contract AS c ON c.symbol = s.symbol").
		Where(clause.Eq{Column: snapSymbol, Value: symbol}).
		Where(between(snapTimestamp, from, to)).
		Order(clause.OrderByColumn{Column: snapTimestamp}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toQuotes(rows), nil
}

// OptionChain は原資産の指定日のスナップショットを行使価格順に返します。
// expiration がゼロ値でなければその満期日のコントラクトに限定します。
func (s *marketStore) OptionChain(ctx context.Context, underlying string, date, expiration time.Time) ([]entity.OptionQuote, error) {
	dayStart := date.UTC().Truncate(day)
	q := s.db.WithContext(ctx).
		Table("option_snapshot AS s").
		Select(quoteColumns).
		Joins("JOIN option_contract AS c ON c.symbol = s.symbol").
		Where(clause.Eq{Column: contractUnder, Value: underlying}).
		Where(halfOpen(snapTimestamp, dayStart, dayStart.Add(day)))
	if !expiration.IsZero() {
		exp := expiration.UTC().Truncate(day)
		q = q.Where(halfOpen(contractExpiry, exp, exp.Add(day)))
	}

	var rows []quoteRow
	err := q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Table: "c", Name: "strike_price"}},
		{Column: clause.Column{Table: "c", Name: "option_type"}},
		{Column: snapSymbol},
	}}).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return toQuotes(rows), nil
}

type greeksAgg struct {
	UnderlyingSymbol string
	OptionType       string
	AvgIV            float64 `gorm:"column:avg_iv"`
	AvgDelta         float64
	AvgGamma         float64
	AvgTheta         float64
	AvgVega          float64
	AvgRho           float64
}

// OptionGreeks は原資産のスナップショットをオプション種別ごとに平均します。
func (s *marketStore) OptionGreeks(ctx context.Context, underlying string, from, to time.Time) ([]entity.GreeksSummary, error) {
	var rows []greeksAgg
	err := s.db.WithContext(ctx).
		Table("option_snapshot AS s").
		Select(`c.underlying_symbol AS underlying_symbol,
			c.option_type AS option_type,
			AVG(s.implied_volatility) AS avg_iv,
			AVG(s.delta) AS avg_delta,
			AVG(s.gamma) AS avg_gamma,
			AVG(s.theta) AS avg_theta,
			AVG(s.vega) AS avg_vega,
			AVG(s.rho) AS avg_rho`).
		Joins("JOIN option_contract AS c ON c.symbol = s.symbol").
		Where(clause.Eq{Column: contractUnder, Value: underlying}).
		Where(between(snapTimestamp, from, to)).
		Group("c.underlying_symbol").
		Group("c.option_type").
		Order("c.option_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]entity.GreeksSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, entity.GreeksSummary{
			UnderlyingSymbol: r.UnderlyingSymbol,
			OptionType:       entity.OptionType(r.OptionType),
			AvgIV:            r.AvgIV,
			AvgDelta:         r.AvgDelta,
			AvgGamma:         r.AvgGamma,
			AvgTheta:         r.AvgTheta,
			AvgVega:          r.AvgVega,
			AvgRho:           r.AvgRho,
		})
	}
	return out, nil
}

func toQuotes(rows []quoteRow) []entity.OptionQuote {
	out := make([]entity.OptionQuote, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntity())
	}
	return out
}

// barScope は足テーブルを銘柄と期間で絞り込みます。
func (s *marketStore) barScope(ctx context.Context, model any, symbol string, from, to time.Time) *gorm.DB {
	return s.db.WithContext(ctx).Model(model).
		Where(clause.Eq{Column: clause.Column{Name: "symbol"}, Value: symbol}).
		Where(between(clause.Column{Name: "timestamp"}, from, to))
}

func halfOpen(col clause.Column, from, to time.Time) clause.Expression {
	return clause.And(
		clause.Gte{Column: col, Value: from.UTC()},
		clause.Lt{Column: col, Value: to.UTC()},
	)
}
