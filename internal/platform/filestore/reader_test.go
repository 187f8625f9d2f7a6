package filestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReader_ReadsPersistedFiles(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	batch := stockBatch("AAPL", 4)
	key := fileKey(entity.AssetStock, "AAPL")

	var paths []string
	for _, codec := range []Codec{CodecGzip, CodecZstd, CodecSnappy, CodecNone} {
		path, err := NewCSVPersister(filepath.Join(base, string(codec)), codec).Persist(context.Background(), key, batch)
		require.NoError(t, err)
		paths = append(paths, path)
	}
	pq, err := NewParquetPersister(base, CodecGzip).Persist(context.Background(), key, batch)
	require.NoError(t, err)
	paths = append(paths, pq)

	r := NewReader()
	for _, path := range paths {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			raw, err := r.ReadFile(context.Background(), path, entity.AssetStock)

			require.NoError(t, err)
			assert.Equal(t, entity.AssetStock, raw.AssetClass)
			assert.Equal(t, "AAPL", raw.Symbol)
			require.Len(t, raw.Bars, 4)

			first := raw.Bars[0]
			assert.Equal(t, "AAPL", first.Symbol)
			require.NotNil(t, first.Timestamp)
			assert.True(t, startDay.Equal(*first.Timestamp))
			assert.Equal(t, 99.5, *first.Open)
			assert.Equal(t, 101.25, *first.High)
			assert.Equal(t, 1000.0, *first.Volume)
			assert.Equal(t, 100.1, *first.VWAP)
			assert.Nil(t, first.OpenInterest)
		})
	}
}

func TestReader_ReadFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	tests := []struct {
		name        string
		file        string
		content     string
		asset       entity.AssetClass
		expectedErr error
		validate    func(t *testing.T, raw entity.RawBatch)
	}{
		{
			name:    "success: short column names and unix millis",
			file:    "SPY_daily.csv",
			content: "t,o,h,l,c,v,vw,n\n1704067200000,470,472,469,471,1e6,470.5,100\n",
			asset:   entity.AssetStock,
			validate: func(t *testing.T, raw entity.RawBatch) {
				assert.Equal(t, "SPY", raw.Symbol)
				require.Len(t, raw.Bars, 1)
				assert.True(t, startDay.Equal(*raw.Bars[0].Timestamp))
				assert.Equal(t, 1e6, *raw.Bars[0].Volume)
				assert.Equal(t, "", raw.Bars[0].Symbol)
			},
		},
		{
			name:    "success: json array of futures",
			file:    "future_ES.json",
			content: `[{"timestamp":"2024-01-01","symbol":"ES","open":4700,"high":4710,"low":4690,"close":4705,"volume":"12","open_interest":300}]`,
			asset:   entity.AssetFuture,
			validate: func(t *testing.T, raw entity.RawBatch) {
				assert.Equal(t, "ES", raw.Symbol)
				require.Len(t, raw.Bars, 1)
				assert.Equal(t, 300.0, *raw.Bars[0].OpenInterest)
				assert.Nil(t, raw.Bars[0].SettlementPrice)
				assert.Equal(t, 12.0, *raw.Bars[0].Volume)
			},
		},
		{
			name:    "success: json object with results",
			file:    "option_contract_AAPL.json",
			content: `{"results":[{"ticker":"O:AAPL240119C00150000","strike_price":150,"expiration_date":"2024-01-19","contract_type":"call","underlying_ticker":"AAPL"}]}`,
			asset:   entity.AssetOptionContract,
			validate: func(t *testing.T, raw entity.RawBatch) {
				require.Len(t, raw.Contracts, 1)
				c := raw.Contracts[0]
				assert.Equal(t, "O:AAPL240119C00150000", c.Symbol)
				assert.Equal(t, "call", c.OptionType)
				assert.Equal(t, "AAPL", c.UnderlyingSymbol)
				assert.Equal(t, 150.0, *c.StrikePrice)
			},
		},
		{
			name:    "success: option snapshots",
			file:    "snapshots.csv",
			content: "timestamp,symbol,bid,ask,last,iv,delta\n2024-01-02 15:30:00,O:X,1.1,1.2,1.15,0.25,0.5\n",
			asset:   entity.AssetOptionSnapshot,
			validate: func(t *testing.T, raw entity.RawBatch) {
				require.Len(t, raw.Snapshots, 1)
				s := raw.Snapshots[0]
				assert.Equal(t, time.Date(2024, 1, 2, 15, 30, 0, 0, time.UTC), *s.Timestamp)
				assert.Equal(t, 1.15, *s.LastPrice)
				assert.Equal(t, 0.25, *s.ImpliedVolatility)
				assert.Nil(t, s.Gamma)
			},
		},
		{
			name:    "edge case: unparseable numbers are missing",
			file:    "MSFT.csv",
			content: "timestamp,open,high,low,close\n2024-01-01,abc,2,1,1.5\n",
			asset:   entity.AssetStock,
			validate: func(t *testing.T, raw entity.RawBatch) {
				require.Len(t, raw.Bars, 1)
				assert.Nil(t, raw.Bars[0].Open)
				assert.NotNil(t, raw.Bars[0].High)
			},
		},
		{
			name:    "edge case: header only",
			file:    "EMPTY.csv",
			content: "timestamp,open\n",
			asset:   entity.AssetStock,
			validate: func(t *testing.T, raw entity.RawBatch) {
				assert.Zero(t, raw.Len())
			},
		},
		{
			name:        "error: unsupported extension",
			file:        "AAPL.txt",
			content:     "x",
			asset:       entity.AssetStock,
			expectedErr: ErrUnsupportedFile,
		},
		{
			name:        "error: file-only asset class",
			file:        "AAPL_news.json",
			content:     "[]",
			asset:       entity.AssetNews,
			expectedErr: domain.ErrUnsupportedAssetClass,
		},
	}

	r := NewReader()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.file, tt.content)

			raw, err := r.ReadFile(context.Background(), path, tt.asset)

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				return
			}
			require.NoError(t, err)
			tt.validate(t, raw)
		})
	}
}

func TestReader_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewReader().ReadFile(context.Background(), filepath.Join(t.TempDir(), "none.csv"), entity.AssetStock)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"2024-01-01", "2024-01-01T00:00:00Z", "2024-01-01 00:00:00", "1704067200", "1704067200000", "2024-01-01T09:00:00+09:00"} {
		got, ok := parseTime(s)
		require.True(t, ok, s)
		assert.True(t, want.Equal(got), s)
		assert.Equal(t, time.UTC, got.Location(), s)
	}

	_, ok := parseTime("yesterday")
	assert.False(t, ok)
	_, ok = parseTime("")
	assert.False(t, ok)
}

func TestSymbolFromName(t *testing.T) {
	t.Parallel()

	cases := []struct{ path, want string }{
		{"/data/stock/csv/AAPL_20240101_20240110.csv.gz", "AAPL"},
		{"stock_MSFT.json", "MSFT"},
		{"option_contract_SPY.csv", "SPY"},
		{"daily.csv", ""},
		{"/tmp/future/ES_2024.csv", "ES"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, symbolFromName(c.path), c.path)
	}
}
