package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
)

// mockRecordSource is a mock implementation of the RecordSource interface.
type mockRecordSource struct {
	mu            sync.Mutex
	ReadFileFunc  func(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error)
	ReadFileCalls int
	Paths         []string
}

func (m *mockRecordSource) ReadFile(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error) {
	m.mu.Lock()
	m.ReadFileCalls++
	m.Paths = append(m.Paths, path)
	m.mu.Unlock()
	if m.ReadFileFunc != nil {
		return m.ReadFileFunc(ctx, path, asset)
	}
	return entity.RawBatch{}, errors.New("ReadFileFunc is not implemented")
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
}

func TestImportUsecase_ImportFile(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		asset        entity.AssetClass
		readFunc     func(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error)
		upsertFunc   func(ctx context.Context, batch entity.Batch) (int64, error)
		expectedErr  error
		expectedRows int64
	}{
		{
			name:  "success: rows are validated and upserted",
			asset: entity.AssetStock,
			readFunc: func(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error) {
				bars := goodBars(3)
				bars = append(bars, goodBars(1)...)
				return entity.RawBatch{AssetClass: asset, Symbol: "AAPL", Bars: bars}, nil
			},
			expectedRows: 3,
		},
		{
			name:        "error: asset class without a table",
			asset:       entity.AssetNews,
			expectedErr: domain.ErrUnsupportedAssetClass,
		},
		{
			name:  "error: empty file",
			asset: entity.AssetStock,
			readFunc: func(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error) {
				return entity.RawBatch{AssetClass: asset}, nil
			},
			expectedErr: ErrNoData,
		},
		{
			name:  "error: store failure is returned",
			asset: entity.AssetIndex,
			readFunc: func(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error) {
				return entity.RawBatch{AssetClass: asset, Symbol: "SPX", Bars: goodBars(1)}, nil
			},
			upsertFunc: func(ctx context.Context, batch entity.Batch) (int64, error) {
				return 0, ErrDB
			},
			expectedErr: ErrDB,
		},
		{
			name:  "error: missing column fails the file",
			asset: entity.AssetStock,
			readFunc: func(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error) {
				bars := goodBars(1)
				bars[0].Close = nil
				return entity.RawBatch{AssetClass: asset, Symbol: "AAPL", Bars: bars}, nil
			},
			expectedErr: domain.ErrMissingRequiredField,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			source := &mockRecordSource{ReadFileFunc: tc.readFunc}
			store := &mockBatchWriter{UpsertBatchFunc: tc.upsertFunc}
			uc := NewImportUsecase(source, store, nil)

			res, err := uc.ImportFile(context.Background(), "/data/stock/csv/AAPL.csv", tc.asset)

			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectedRows, res.Rows)
			assert.Equal(t, tc.asset, res.AssetClass)
		})
	}
}

func TestImportUsecase_ImportDirectory(t *testing.T) {
	t.Parallel()

	t.Run("success: files are imported by detected asset class", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "stock", "csv", "AAPL_20240101_20240110.csv.gz"))
		touch(t, filepath.Join(dir, "index", "csv", "SPX_20240101_20240110.csv"))
		touch(t, filepath.Join(dir, "stock", "parquet", "AAPL_20240101_20240110.parquet"))
		touch(t, filepath.Join(dir, "misc", "notes.csv"))

		var assets []entity.AssetClass
		var mu sync.Mutex
		source := &mockRecordSource{ReadFileFunc: func(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error) {
			mu.Lock()
			assets = append(assets, asset)
			mu.Unlock()
			return entity.RawBatch{AssetClass: asset, Symbol: "X", Bars: goodBars(2)}, nil
		}}
		uc := NewImportUsecase(source, &mockBatchWriter{}, nil)

		results, err := uc.ImportDirectory(context.Background(), dir, "")

		require.NoError(t, err)
		assert.Len(t, results, 2)
		assert.ElementsMatch(t, []entity.AssetClass{entity.AssetStock, entity.AssetIndex}, assets)
	})

	t.Run("success: a failing file does not stop the import", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "stocks", "AAPL.csv"))
		touch(t, filepath.Join(dir, "stocks", "BAD.csv"))

		source := &mockRecordSource{ReadFileFunc: func(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error) {
			if filepath.Base(path) == "BAD.csv" {
				return entity.RawBatch{}, errors.New("malformed csv")
			}
			return entity.RawBatch{AssetClass: asset, Symbol: "AAPL", Bars: goodBars(1)}, nil
		}}
		uc := NewImportUsecase(source, &mockBatchWriter{}, nil)

		results, err := uc.ImportDirectory(context.Background(), dir, "*.csv")

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, int64(1), results[0].Rows)
	})

	t.Run("error: nothing imported", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "stock", "AAPL.csv"))

		source := &mockRecordSource{ReadFileFunc: func(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error) {
			return entity.RawBatch{}, errors.New("malformed csv")
		}}
		uc := NewImportUsecase(source, &mockBatchWriter{}, nil)

		_, err := uc.ImportDirectory(context.Background(), dir, "")

		assert.ErrorIs(t, err, ErrNothingImported)
	})

	t.Run("error: empty directory", func(t *testing.T) {
		uc := NewImportUsecase(&mockRecordSource{}, &mockBatchWriter{}, nil)

		_, err := uc.ImportDirectory(context.Background(), t.TempDir(), "")

		assert.ErrorIs(t, err, ErrNothingImported)
	})
}

func TestDetectAssetClass(t *testing.T) {
	root := filepath.FromSlash("/data")
	tests := []struct {
		name   string
		path   string
		want   entity.AssetClass
		wantOK bool
	}{
		{name: "success: layout directory", path: "/data/stock/csv/AAPL_20240101_20240110.csv.gz", want: entity.AssetStock, wantOK: true},
		{name: "success: plural directory", path: "/data/futures/ES.csv", want: entity.AssetFuture, wantOK: true},
		{name: "success: deepest directory wins", path: "/data/stock/snapshots/x.csv", want: entity.AssetOptionSnapshot, wantOK: true},
		{name: "success: file name prefix", path: "/data/option_contracts_2024.csv", want: entity.AssetOptionContract, wantOK: true},
		{name: "success: longest prefix wins", path: "/data/option_snapshot.json", want: entity.AssetOptionSnapshot, wantOK: true},
		{name: "edge case: unknown", path: "/data/misc/notes.csv", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectAssetClass(root, filepath.FromSlash(tt.path))
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
