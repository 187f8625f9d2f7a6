package filestore

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
)

var _ usecase.RecordSource = (*Reader)(nil)

// ErrUnsupportedFile はファイル拡張子から形式を判定できないことを示します。
var ErrUnsupportedFile = errors.New("unsupported file type")

// 外部ツールが出力する列名を正規の列名に揃えます。
var columnAliases = map[string]string{
	"t": "timestamp", "date": "timestamp", "time": "timestamp", "datetime": "timestamp",
	"o": "open", "h": "high", "l": "low", "c": "close", "v": "volume", "vw": "vwap", "n": "transactions",
	"ticker": "symbol", "oi": "open_interest", "settlement": "settlement_price",
	"strike": "strike_price", "expiration": "expiration_date", "type": "option_type", "contract_type": "option_type",
	"underlying": "underlying_symbol", "underlying_ticker": "underlying_symbol",
	"last": "last_price", "iv": "implied_volatility",
}

// Reader は CSV（各圧縮方式）・JSON・Parquet ファイルを未検証バッチとして読み込みます。
type Reader struct{}

func NewReader() *Reader { return &Reader{} }

// ReadFile は path を asset として読み込みます。
// 銘柄列が無い場合はファイル名の先頭の大文字の語を銘柄として扱います。
func (r *Reader) ReadFile(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error) {
	if err := ctx.Err(); err != nil {
		return entity.RawBatch{}, err
	}
	if !asset.HasTable() {
		return entity.RawBatch{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedAssetClass, asset)
	}

	header, records, err := readRecords(path, asset)
	if err != nil {
		return entity.RawBatch{}, err
	}
	return buildBatch(asset, symbolFromName(path), header, records), nil
}

func readRecords(path string, asset entity.AssetClass) ([]string, [][]string, error) {
	codec, inner := codecFromPath(path)
	switch strings.ToLower(filepath.Ext(inner)) {
	case ".parquet":
		return readParquet(path, asset)
	case ".csv", ".json":
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rc, err := newDecompressor(f, codec)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer rc.Close()

	if strings.EqualFold(filepath.Ext(inner), ".json") {
		return readJSON(rc)
	}
	all, err := csv.NewReader(rc).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv %s: %w", path, err)
	}
	if len(all) == 0 {
		return nil, nil, nil
	}
	return all[0], all[1:], nil
}

func readParquet(path string, asset entity.AssetClass) ([]string, [][]string, error) {
	var (
		t   table
		err error
	)
	switch asset {
	case entity.AssetStock, entity.AssetOption:
		var rows []BarRow
		rows, err = parquet.ReadFile[BarRow](path)
		t = rowTable[BarRow]{columns: barColumns, rows: rows}
	case entity.AssetIndex:
		var rows []IndexRow
		rows, err = parquet.ReadFile[IndexRow](path)
		t = rowTable[IndexRow]{columns: indexColumns, rows: rows}
	case entity.AssetFuture:
		var rows []FutureRow
		rows, err = parquet.ReadFile[FutureRow](path)
		t = rowTable[FutureRow]{columns: futureColumns, rows: rows}
	default:
		return nil, nil, fmt.Errorf("%w: parquet import of %s", domain.ErrUnsupportedAssetClass, asset)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return t.header(), t.records(), nil
}

// readJSON はオブジェクトの配列、または results/data キーに配列を持つオブジェクトを読み込みます。
func readJSON(r io.Reader) ([]string, [][]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("parse json: %w", err)
	}
	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		for _, k := range []string{"results", "data"} {
			if arr, ok := v[k].([]any); ok {
				items = arr
				break
			}
		}
	}

	cols := map[string]struct{}{}
	objs := make([]map[string]any, 0, len(items))
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			continue
		}
		for k := range obj {
			cols[k] = struct{}{}
		}
		objs = append(objs, obj)
	}
	header := make([]string, 0, len(cols))
	for k := range cols {
		header = append(header, k)
	}
	sort.Strings(header)

	records := make([][]string, len(objs))
	for i, obj := range objs {
		rec := make([]string, len(header))
		for j, k := range header {
			rec[j] = jsonString(obj[k])
		}
		records[i] = rec
	}
	return header, records, nil
}

func jsonString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, e := range x {
			parts = append(parts, jsonString(e))
		}
		return strings.Join(parts, ",")
	}
	return fmt.Sprint(v)
}

// fields は一レコードの列名による参照です。空文字や解釈できない値は欠損（nil）になります。
type fields struct {
	idx map[string]int
	rec []string
}

func (f fields) str(name string) string {
	i, ok := f.idx[name]
	if !ok || i >= len(f.rec) {
		return ""
	}
	return strings.TrimSpace(f.rec[i])
}

func (f fields) float(name string) *float64 {
	s := f.str(name)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func (f fields) time(name string) *time.Time {
	t, ok := parseTime(f.str(name))
	if !ok {
		return nil
	}
	return &t
}

// parseTime は RFC3339、日付、"YYYY-MM-DD hh:mm:ss"、Unix 秒・ミリ秒を受け付けます。
func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e11 || n < -1e11 {
			return time.UnixMilli(n).UTC(), true
		}
		return time.Unix(n, 0).UTC(), true
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05", dateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func buildBatch(asset entity.AssetClass, symbol string, header []string, records [][]string) entity.RawBatch {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		if alias, ok := columnAliases[name]; ok {
			name = alias
		}
		if _, dup := idx[name]; !dup {
			idx[name] = i
		}
	}

	batch := entity.RawBatch{AssetClass: asset, Symbol: symbol}
	for _, rec := range records {
		f := fields{idx: idx, rec: rec}
		switch asset {
		case entity.AssetOptionContract:
			batch.Contracts = append(batch.Contracts, entity.RawOptionContract{
				Symbol:           f.str("symbol"),
				StrikePrice:      f.float("strike_price"),
				ExpirationDate:   f.time("expiration_date"),
				OptionType:       f.str("option_type"),
				UnderlyingSymbol: f.str("underlying_symbol"),
			})
		case entity.AssetOptionSnapshot:
			batch.Snapshots = append(batch.Snapshots, entity.RawOptionSnapshot{
				Timestamp:         f.time("timestamp"),
				Symbol:            f.str("symbol"),
				Bid:               f.float("bid"),
				Ask:               f.float("ask"),
				LastPrice:         f.float("last_price"),
				OpenInterest:      f.float("open_interest"),
				ImpliedVolatility: f.float("implied_volatility"),
				Delta:             f.float("delta"),
				Gamma:             f.float("gamma"),
				Theta:             f.float("theta"),
				Vega:              f.float("vega"),
				Rho:               f.float("rho"),
			})
		default:
			batch.Bars = append(batch.Bars, entity.RawBar{
				Symbol:          f.str("symbol"),
				Timestamp:       f.time("timestamp"),
				Open:            f.float("open"),
				High:            f.float("high"),
				Low:             f.float("low"),
				Close:           f.float("close"),
				Volume:          f.float("volume"),
				VWAP:            f.float("vwap"),
				Transactions:    f.float("transactions"),
				OpenInterest:    f.float("open_interest"),
				SettlementPrice: f.float("settlement_price"),
			})
		}
	}
	return batch
}

// symbolFromName は "AAPL_20240101_20240110.csv.gz" や "stock_AAPL.json" から銘柄を取り出します。
func symbolFromName(path string) string {
	name := filepath.Base(path)
	if i := strings.Index(name, "."); i > 0 {
		name = name[:i]
	}
	for _, part := range strings.Split(name, "_") {
		if part != "" && part == strings.ToUpper(part) && strings.ToLower(part) != part {
			return part
		}
	}
	return ""
}
