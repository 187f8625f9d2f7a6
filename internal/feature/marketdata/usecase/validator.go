package usecase

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
)

// Validator は未検証バッチの重複除去・欠損補完・不変条件チェックを行います。
// 状態を持たないため、複数のワーカーから同時に使用できます。
type Validator struct{}

// NewValidator は新しい Validator を生成します。
func NewValidator() *Validator {
	return &Validator{}
}

// Validate は raw を検証済みの Batch に変換します。
//
// 必須フィールドがバッチ内のどのレコードにも存在しない場合はバッチ全体を失敗させます。
// 不変条件に違反したレコードは除外して Batch.Rejected に記録し、
// 有効レコードが一件も残らなければ *domain.ValidationError を返します。
// 足を含むバッチで有効な足が一件も残らない場合も同様です。
// 同じ主キーを持つレコードが複数ある場合は後に現れたものを採用します。
func (v *Validator) Validate(raw entity.RawBatch) (entity.Batch, error) {
	out := entity.Batch{AssetClass: raw.AssetClass, Symbol: raw.Symbol}

	switch raw.AssetClass {
	case entity.AssetStock, entity.AssetFuture, entity.AssetIndex, entity.AssetOption:
		if len(raw.Contracts) > 0 {
			if err := v.validateContracts(&out, raw); err != nil {
				return entity.Batch{}, err
			}
		}
		if len(raw.Bars) > 0 {
			if err := v.validateBars(&out, raw); err != nil {
				return entity.Batch{}, err
			}
			// コントラクトだけが残ったオプションバッチは成功扱いにしない
			if len(out.Bars) == 0 {
				return entity.Batch{}, &domain.ValidationError{
					AssetClass: raw.AssetClass,
					Symbol:     raw.Symbol,
					Records:    out.Rejected,
				}
			}
		}
	case entity.AssetOptionContract:
		if err := v.validateContracts(&out, raw); err != nil {
			return entity.Batch{}, err
		}
	case entity.AssetOptionSnapshot:
		if err := v.validateSnapshots(&out, raw); err != nil {
			return entity.Batch{}, err
		}
	case entity.AssetDividends, entity.AssetSplits:
		v.validateActions(&out, raw)
	case entity.AssetNews:
		v.validateNews(&out, raw)
	default:
		return entity.Batch{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedAssetClass, raw.AssetClass)
	}

	if out.Len() == 0 {
		return entity.Batch{}, &domain.ValidationError{
			AssetClass: raw.AssetClass,
			Symbol:     raw.Symbol,
			Records:    out.Rejected,
		}
	}
	return out, nil
}

// issues は一レコード分の違反理由を集めます。
type issues []string

func (is *issues) check(ok bool, reason string) {
	if !ok {
		*is = append(*is, reason)
	}
}

func (is issues) String() string { return strings.Join(is, ", ") }

func (v *Validator) validateBars(out *entity.Batch, raw entity.RawBatch) error {
	if err := requireBarFields(raw.Bars); err != nil {
		return err
	}

	// オプションの足は同じバッチで検証を通ったコントラクトに属する必要がある
	var known map[string]struct{}
	if len(raw.Contracts) > 0 {
		known = make(map[string]struct{}, len(out.Contracts))
		for _, c := range out.Contracts {
			known[c.Symbol] = struct{}{}
		}
	}

	seen := make(map[string]struct{}, len(raw.Bars))
	index := make(map[string]int, len(raw.Bars))
	bars := make([]entity.Bar, 0, len(raw.Bars))
	for _, r := range raw.Bars {
		fp := barFingerprint(r)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}

		symbol := r.Symbol
		if symbol == "" {
			symbol = raw.Symbol
		}
		if r.Timestamp == nil {
			out.Rejected = append(out.Rejected, entity.RecordError{Key: symbol + "@?", Reason: "missing timestamp"})
			continue
		}

		b := entity.Bar{
			AssetClass:   raw.AssetClass,
			Symbol:       symbol,
			Timestamp:    r.Timestamp.UTC(),
			Open:         num(r.Open),
			High:         num(r.High),
			Low:          num(r.Low),
			Close:        num(r.Close),
			Transactions: int64(num(r.Transactions)),
		}

		var is issues
		volume := num(r.Volume)
		is.check(volume >= 0, "volume must be >= 0")
		b.Volume = int64(math.Round(volume))

		is.check(symbol != "", "missing symbol")
		if known != nil {
			_, ok := known[symbol]
			is.check(ok, "unknown option contract")
		}
		is.check(b.Open > 0, "open must be > 0")
		is.check(b.High > 0, "high must be > 0")
		is.check(b.Low > 0, "low must be > 0")
		is.check(b.Close > 0, "close must be > 0")
		is.check(b.High >= b.Low, "high must be >= low")

		if raw.AssetClass.HasVWAP() {
			b.VWAP = b.Close
			if r.VWAP != nil {
				b.VWAP = *r.VWAP
			}
			is.check(b.VWAP > 0, "vwap must be > 0")
		}
		if raw.AssetClass == entity.AssetFuture {
			oi := num(r.OpenInterest)
			is.check(oi >= 0, "open_interest must be >= 0")
			b.OpenInterest = int64(math.Round(oi))
			b.SettlementPrice = b.Close
			if r.SettlementPrice != nil {
				b.SettlementPrice = *r.SettlementPrice
			}
			is.check(b.SettlementPrice > 0, "settlement_price must be > 0")
		}

		if len(is) > 0 {
			out.Rejected = append(out.Rejected, entity.RecordError{Key: b.Key(), Reason: is.String()})
			continue
		}
		if i, ok := index[b.Key()]; ok {
			bars[i] = b
			continue
		}
		index[b.Key()] = len(bars)
		bars = append(bars, b)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		if !bars[i].Timestamp.Equal(bars[j].Timestamp) {
			return bars[i].Timestamp.Before(bars[j].Timestamp)
		}
		return bars[i].Symbol < bars[j].Symbol
	})
	out.Bars = bars
	return nil
}

// requireBarFields は必須列がバッチ内に少なくとも一つ存在することを確認します。
func requireBarFields(rows []entity.RawBar) error {
	var ts, o, h, l, c bool
	for _, r := range rows {
		ts = ts || r.Timestamp != nil
		o = o || r.Open != nil
		h = h || r.High != nil
		l = l || r.Low != nil
		c = c || r.Close != nil
	}
	return missingField(map[string]bool{"timestamp": ts, "open": o, "high": h, "low": l, "close": c})
}

func (v *Validator) validateContracts(out *entity.Batch, raw entity.RawBatch) error {
	var sym, strike, exp, typ bool
	for _, r := range raw.Contracts {
		sym = sym || r.Symbol != ""
		strike = strike || r.StrikePrice != nil
		exp = exp || r.ExpirationDate != nil
		typ = typ || r.OptionType != ""
	}
	if err := missingField(map[string]bool{"symbol": sym, "strike_price": strike, "expiration_date": exp, "option_type": typ}); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(raw.Contracts))
	index := make(map[string]int, len(raw.Contracts))
	for _, r := range raw.Contracts {
		fp := fmt.Sprintf("%s|%s|%s|%s|%s", r.Symbol, fpFloat(r.StrikePrice), fpTime(r.ExpirationDate), r.OptionType, r.UnderlyingSymbol)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}

		c := entity.OptionContract{
			Symbol:           r.Symbol,
			StrikePrice:      num(r.StrikePrice),
			OptionType:       entity.OptionType(strings.ToUpper(strings.TrimSpace(r.OptionType))),
			UnderlyingSymbol: r.UnderlyingSymbol,
		}
		if c.UnderlyingSymbol == "" && raw.AssetClass == entity.AssetOption {
			c.UnderlyingSymbol = raw.Symbol
		}

		var is issues
		is.check(c.Symbol != "", "missing symbol")
		is.check(c.StrikePrice > 0, "strike_price must be > 0")
		is.check(c.OptionType == entity.OptionCall || c.OptionType == entity.OptionPut, "option_type must be CALL or PUT")
		if r.ExpirationDate == nil {
			is = append(is, "missing expiration_date")
		} else {
			c.ExpirationDate = r.ExpirationDate.UTC()
		}

		if len(is) > 0 {
			key := c.Symbol
			if key == "" {
				key = "?"
			}
			out.Rejected = append(out.Rejected, entity.RecordError{Key: key, Reason: is.String()})
			continue
		}
		if i, ok := index[c.Symbol]; ok {
			out.Contracts[i] = c
			continue
		}
		index[c.Symbol] = len(out.Contracts)
		out.Contracts = append(out.Contracts, c)
	}
	return nil
}

func (v *Validator) validateSnapshots(out *entity.Batch, raw entity.RawBatch) error {
	var ts, sym, bid, ask, last bool
	for _, r := range raw.Snapshots {
		ts = ts || r.Timestamp != nil
		sym = sym || r.Symbol != ""
		bid = bid || r.Bid != nil
		ask = ask || r.Ask != nil
		last = last || r.LastPrice != nil
	}
	if err := missingField(map[string]bool{"timestamp": ts, "symbol": sym, "bid": bid, "ask": ask, "last_price": last}); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(raw.Snapshots))
	index := make(map[string]int, len(raw.Snapshots))
	for _, r := range raw.Snapshots {
		fp := strings.Join([]string{
			fpTime(r.Timestamp), r.Symbol, fpFloat(r.Bid), fpFloat(r.Ask), fpFloat(r.LastPrice),
			fpFloat(r.OpenInterest), fpFloat(r.ImpliedVolatility), fpFloat(r.Delta), fpFloat(r.Gamma),
			fpFloat(r.Theta), fpFloat(r.Vega), fpFloat(r.Rho),
		}, "|")
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}

		if r.Timestamp == nil {
			out.Rejected = append(out.Rejected, entity.RecordError{Key: r.Symbol + "@?", Reason: "missing timestamp"})
			continue
		}
		s := entity.OptionSnapshot{
			Timestamp:         r.Timestamp.UTC(),
			Symbol:            r.Symbol,
			Bid:               num(r.Bid),
			Ask:               num(r.Ask),
			LastPrice:         num(r.LastPrice),
			ImpliedVolatility: num(r.ImpliedVolatility),
			Delta:             num(r.Delta),
			Gamma:             num(r.Gamma),
			Theta:             num(r.Theta),
			Vega:              num(r.Vega),
			Rho:               num(r.Rho),
		}
		oi := num(r.OpenInterest)
		s.OpenInterest = int64(math.Round(oi))

		var is issues
		is.check(s.Symbol != "", "missing symbol")
		is.check(s.Bid > 0, "bid must be > 0")
		is.check(s.Ask > 0, "ask must be > 0")
		is.check(s.LastPrice > 0, "last_price must be > 0")
		is.check(s.Ask >= s.Bid, "ask must be >= bid")
		is.check(oi >= 0, "open_interest must be >= 0")
		is.check(s.ImpliedVolatility >= 0, "implied_volatility must be >= 0")
		is.check(s.Delta >= -1 && s.Delta <= 1, "delta must be within [-1, 1]")
		is.check(s.Gamma >= 0, "gamma must be >= 0")
		is.check(s.Theta <= 0, "theta must be <= 0")
		is.check(s.Vega >= 0, "vega must be >= 0")
		is.check(s.Rho >= 0, "rho must be >= 0")

		if len(is) > 0 {
			out.Rejected = append(out.Rejected, entity.RecordError{Key: s.Key(), Reason: is.String()})
			continue
		}
		if i, ok := index[s.Key()]; ok {
			out.Snapshots[i] = s
			continue
		}
		index[s.Key()] = len(out.Snapshots)
		out.Snapshots = append(out.Snapshots, s)
	}
	sort.SliceStable(out.Snapshots, func(i, j int) bool {
		return out.Snapshots[i].Timestamp.Before(out.Snapshots[j].Timestamp)
	})
	return nil
}

func (v *Validator) validateActions(out *entity.Batch, raw entity.RawBatch) {
	seen := make(map[string]struct{}, len(raw.Actions))
	for _, a := range raw.Actions {
		if a.Symbol == "" {
			a.Symbol = raw.Symbol
		}
		fp := fmt.Sprintf("%+v", a)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		if a.EventDate.IsZero() {
			out.Rejected = append(out.Rejected, entity.RecordError{Key: string(a.Kind) + ":" + a.Symbol + "@?", Reason: "missing event date"})
			continue
		}
		a.EventDate = a.EventDate.UTC()
		out.Actions = append(out.Actions, a)
	}
	sort.SliceStable(out.Actions, func(i, j int) bool {
		return out.Actions[i].EventDate.Before(out.Actions[j].EventDate)
	})
}

func (v *Validator) validateNews(out *entity.Batch, raw entity.RawBatch) {
	seen := make(map[string]struct{}, len(raw.News))
	for _, n := range raw.News {
		if n.Symbol == "" {
			n.Symbol = raw.Symbol
		}
		fp := fmt.Sprintf("%+v", n)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		if n.PublishedAt.IsZero() {
			out.Rejected = append(out.Rejected, entity.RecordError{Key: n.Key(), Reason: "missing published date"})
			continue
		}
		n.PublishedAt = n.PublishedAt.UTC()
		out.News = append(out.News, n)
	}
	sort.SliceStable(out.News, func(i, j int) bool {
		return out.News[i].PublishedAt.Before(out.News[j].PublishedAt)
	})
}

// missingField は存在しない必須列を名前順で報告します。
func missingField(present map[string]bool) error {
	var missing []string
	for name, ok := range present {
		if !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s", domain.ErrMissingRequiredField, strings.Join(missing, ", "))
}

// num は欠損値または非数をゼロとして扱います。
func num(p *float64) float64 {
	if p == nil || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return 0
	}
	return *p
}

func fpFloat(p *float64) string {
	if p == nil {
		return "-"
	}
	return strconv.FormatFloat(*p, 'g', -1, 64)
}

func fpTime(p *time.Time) string {
	if p == nil {
		return "-"
	}
	return p.UTC().Format(time.RFC3339Nano)
}

func barFingerprint(r entity.RawBar) string {
	return strings.Join([]string{
		r.Symbol, fpTime(r.Timestamp), fpFloat(r.Open), fpFloat(r.High), fpFloat(r.Low), fpFloat(r.Close),
		fpFloat(r.Volume), fpFloat(r.VWAP), fpFloat(r.Transactions), fpFloat(r.OpenInterest), fpFloat(r.SettlementPrice),
	}, "|")
}
