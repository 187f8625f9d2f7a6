package filestore

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
)

var (
	startDay = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	endDay   = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
)

func stockBatch(symbol string, n int) entity.Batch {
	b := entity.Batch{AssetClass: entity.AssetStock, Symbol: symbol}
	for i := 0; i < n; i++ {
		c := 100 + float64(i)
		b.Bars = append(b.Bars, entity.Bar{
			AssetClass: entity.AssetStock, Symbol: symbol,
			Timestamp: startDay.AddDate(0, 0, i),
			Open:      c - 0.5, High: c + 1.25, Low: c - 1, Close: c,
			Volume: int64(1000 * (i + 1)), VWAP: c + 0.1, Transactions: int64(10 + i),
		})
	}
	return b
}

func fileKey(asset entity.AssetClass, symbol string) entity.FileKey {
	return entity.FileKey{AssetClass: asset, Symbol: symbol, Start: startDay, End: endDay}
}

// readCSVFile は圧縮を解いた CSV のヘッダーとレコードを返します。
func readCSVFile(t *testing.T, path string) ([]string, [][]string) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	codec, _ := codecFromPath(path)
	rc, err := newDecompressor(f, codec)
	require.NoError(t, err)
	defer rc.Close()

	all, err := csv.NewReader(rc).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	return all[0], all[1:]
}

func TestParseCodec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Codec
		wantExt string
		wantErr bool
	}{
		{name: "success: gzip", input: "gzip", want: CodecGzip, wantExt: ".csv.gz"},
		{name: "success: zstd is case-insensitive", input: " ZSTD ", want: CodecZstd, wantExt: ".csv.zst"},
		{name: "success: snappy", input: "snappy", want: CodecSnappy, wantExt: ".csv.sz"},
		{name: "success: none", input: "none", want: CodecNone, wantExt: ".csv"},
		{name: "edge case: empty defaults to gzip", input: "", want: CodecGzip, wantExt: ".csv.gz"},
		{name: "error: unknown codec", input: "lz4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseCodec(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantExt, got.CSVExt())
		})
	}
}

func TestEnsureLayout(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	require.NoError(t, EnsureLayout(base))
	require.NoError(t, EnsureLayout(base), "second call is a no-op")

	for _, ac := range entity.FileAssetClasses {
		for _, format := range []string{FormatCSV, FormatParquet} {
			info, err := os.Stat(filepath.Join(base, string(ac), format))
			require.NoError(t, err)
			assert.True(t, info.IsDir())
		}
	}
}

func TestEnsureLayout_BaseIsAFile(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "data")
	require.NoError(t, os.WriteFile(base, []byte("x"), 0o644))

	assert.Error(t, EnsureLayout(base))
}

func TestWriteFileAtomic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "out.txt")

	require.NoError(t, WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write([]byte("first"))
		return err
	}))

	errWrite := errors.New("disk full")
	err := WriteFileAtomic(path, func(w io.Writer) error {
		_, _ = w.Write([]byte("partial"))
		return errWrite
	})
	assert.ErrorIs(t, err, errWrite)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "first", string(got), "failed write keeps the previous file")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are removed")
}

func TestCSVPersister_Persist(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{CodecGzip, CodecZstd, CodecSnappy, CodecNone} {
		t.Run(string(codec), func(t *testing.T) {
			t.Parallel()

			base := t.TempDir()
			p := NewCSVPersister(base, codec)
			assert.Equal(t, FormatCSV, p.Format())

			path, err := p.Persist(context.Background(), fileKey(entity.AssetStock, "AAPL"), stockBatch("AAPL", 3))

			require.NoError(t, err)
			assert.Equal(t, filepath.Join(base, "stock", "csv", "AAPL_20240101_20240110"+codec.CSVExt()), path)

			header, records := readCSVFile(t, path)
			assert.Equal(t, barColumns, header)
			require.Len(t, records, 3)
			assert.Equal(t, []string{"2024-01-01T00:00:00Z", "AAPL", "99.5", "101.25", "99", "100", "1000", "100.1", "10"}, records[0])
		})
	}
}

func TestCSVPersister_Overwrites(t *testing.T) {
	t.Parallel()

	p := NewCSVPersister(t.TempDir(), CodecGzip)
	key := fileKey(entity.AssetStock, "AAPL")

	_, err := p.Persist(context.Background(), key, stockBatch("AAPL", 5))
	require.NoError(t, err)
	path, err := p.Persist(context.Background(), key, stockBatch("AAPL", 2))
	require.NoError(t, err)

	_, records := readCSVFile(t, path)
	assert.Len(t, records, 2, "rewrites never append")
}

func TestPersisters_AssetSchemas(t *testing.T) {
	t.Parallel()

	ts := startDay
	tests := []struct {
		name       string
		batch      entity.Batch
		wantHeader []string
		wantFirst  []string
	}{
		{
			name: "success: futures carry open interest and settlement",
			batch: entity.Batch{AssetClass: entity.AssetFuture, Symbol: "ES", Bars: []entity.Bar{
				{Symbol: "ES", Timestamp: ts, Open: 4700, High: 4710, Low: 4690, Close: 4705, Volume: 10, OpenInterest: 250, SettlementPrice: 4704.5},
			}},
			wantHeader: futureColumns,
			wantFirst:  []string{"2024-01-01T00:00:00Z", "ES", "4700", "4710", "4690", "4705", "10", "250", "4704.5"},
		},
		{
			name: "success: index has no vwap",
			batch: entity.Batch{AssetClass: entity.AssetIndex, Symbol: "SPX", Bars: []entity.Bar{
				{Symbol: "SPX", Timestamp: ts, Open: 1, High: 2, Low: 0.5, Close: 1.5},
			}},
			wantHeader: indexColumns,
			wantFirst:  []string{"2024-01-01T00:00:00Z", "SPX", "1", "2", "0.5", "1.5", "0"},
		},
		{
			name: "success: dividends",
			batch: entity.Batch{AssetClass: entity.AssetDividends, Symbol: "AAPL", Actions: []entity.CorporateAction{
				{Kind: entity.ActionDividend, Symbol: "AAPL", EventDate: ts, CashAmount: 0.24, Currency: "USD", Frequency: 4},
			}},
			wantHeader: actionColumns,
			wantFirst:  []string{"dividend", "AAPL", "2024-01-01", "", "", "0.24", "USD", "4", "0", "0", ""},
		},
		{
			name: "success: news joins tickers",
			batch: entity.Batch{AssetClass: entity.AssetNews, Symbol: "AAPL", News: []entity.NewsItem{
				{ID: "n1", Symbol: "AAPL", PublishedAt: ts.Add(90 * time.Minute), Title: "T", Tickers: []string{"AAPL", "MSFT"}},
			}},
			wantHeader: newsColumns,
			wantFirst:  []string{"n1", "AAPL", "2024-01-01T01:30:00Z", "T", "", "", "", "", "AAPL,MSFT"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			base := t.TempDir()
			key := fileKey(tt.batch.AssetClass, tt.batch.Symbol)

			csvPath, err := NewCSVPersister(base, CodecNone).Persist(context.Background(), key, tt.batch)
			require.NoError(t, err)
			header, records := readCSVFile(t, csvPath)
			assert.Equal(t, tt.wantHeader, header)
			require.Len(t, records, 1)
			assert.Equal(t, tt.wantFirst, records[0])

			pqPath, err := NewParquetPersister(base, CodecZstd).Persist(context.Background(), key, tt.batch)
			require.NoError(t, err)
			f, err := os.Open(pqPath)
			require.NoError(t, err)
			defer f.Close()
			info, err := f.Stat()
			require.NoError(t, err)
			pf, err := parquet.OpenFile(f, info.Size())
			require.NoError(t, err)
			assert.Equal(t, int64(1), pf.NumRows())

			var names []string
			for _, field := range pf.Schema().Fields() {
				names = append(names, field.Name())
			}
			assert.Equal(t, tt.wantHeader, names, "parquet columns follow the row type")
		})
	}
}

func TestPersisters_Errors(t *testing.T) {
	t.Parallel()

	persisters := []interface {
		Persist(ctx context.Context, key entity.FileKey, batch entity.Batch) (string, error)
	}{
		NewCSVPersister(t.TempDir(), CodecGzip),
		NewParquetPersister(t.TempDir(), CodecGzip),
	}

	for _, p := range persisters {
		_, err := p.Persist(context.Background(), fileKey(entity.AssetOptionSnapshot, "X"), entity.Batch{AssetClass: entity.AssetOptionSnapshot})
		assert.ErrorIs(t, err, domain.ErrUnsupportedAssetClass)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = p.Persist(ctx, fileKey(entity.AssetStock, "AAPL"), stockBatch("AAPL", 1))
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestPersisters_CSVMatchesParquet(t *testing.T) {
	t.Parallel()

	for _, codec := range []Codec{CodecGzip, CodecZstd, CodecSnappy, CodecNone} {
		t.Run(string(codec), func(t *testing.T) {
			t.Parallel()

			base := t.TempDir()
			batch := stockBatch("MSFT", 10)
			key := fileKey(entity.AssetStock, "MSFT")

			csvPath, err := NewCSVPersister(base, codec).Persist(context.Background(), key, batch)
			require.NoError(t, err)
			pqPath, err := NewParquetPersister(base, codec).Persist(context.Background(), key, batch)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(base, "stock", "parquet", "MSFT_20240101_20240110.parquet"), pqPath)

			_, csvRecords := readCSVFile(t, csvPath)

			rows, err := parquet.ReadFile[BarRow](pqPath)
			require.NoError(t, err)
			pqRecords := rowTable[BarRow]{columns: barColumns, rows: rows}.records()

			assert.ElementsMatch(t, csvRecords, pqRecords)
		})
	}
}

func TestPersisters_SubSecondTimestamps(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	batch := stockBatch("MSFT", 2)
	batch.Bars[0].Timestamp = startDay.Add(9*time.Hour + 30*time.Minute + 250*time.Millisecond + 700*time.Microsecond)
	batch.Bars[1].Timestamp = startDay.Add(9*time.Hour + 30*time.Minute + time.Second)
	key := fileKey(entity.AssetStock, "MSFT")

	csvPath, err := NewCSVPersister(base, CodecNone).Persist(context.Background(), key, batch)
	require.NoError(t, err)
	pqPath, err := NewParquetPersister(base, CodecNone).Persist(context.Background(), key, batch)
	require.NoError(t, err)

	_, csvRecords := readCSVFile(t, csvPath)
	require.Len(t, csvRecords, 2)
	assert.Equal(t, "2024-01-01T09:30:00.25Z", csvRecords[0][0])
	assert.Equal(t, "2024-01-01T09:30:01Z", csvRecords[1][0])

	rows, err := parquet.ReadFile[BarRow](pqPath)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for i, row := range rows {
		got, ok := parseTime(csvRecords[i][0])
		require.True(t, ok)
		assert.True(t, row.Timestamp.Equal(got), "csv and parquet keep the same instant")
	}
}
