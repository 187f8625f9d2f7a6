package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"

	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
)

// mockMarketStore はテスト用の MarketQueryRepository モック実装です。
// 埋め込んだインターフェイスは nil のため、テストで使わないメソッドを呼ぶと panic します。
type mockMarketStore struct {
	usecase.MarketQueryRepository

	getByRangeFn  func(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error)
	upsertBatchFn func(ctx context.Context, batch entity.Batch) (int64, error)
	cleanupFn     func(ctx context.Context, asset entity.AssetClass, cutoff time.Time) (int64, error)
	compactCalls  int
}

func (m *mockMarketStore) CleanupBefore(ctx context.Context, asset entity.AssetClass, cutoff time.Time) (int64, error) {
	if m.cleanupFn != nil {
		return m.cleanupFn(ctx, asset, cutoff)
	}
	return 0, nil
}

func (m *mockMarketStore) GetByRange(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error) {
	if m.getByRangeFn != nil {
		return m.getByRangeFn(ctx, asset, symbol, from, to)
	}
	return nil, nil
}

func (m *mockMarketStore) UpsertBatch(ctx context.Context, batch entity.Batch) (int64, error) {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, batch)
	}
	return int64(batch.Len()), nil
}

func (m *mockMarketStore) Compact(ctx context.Context) error {
	m.compactCalls++
	return nil
}

var (
	from     = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to       = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rangeKey = "bars:stock:AAPL:20240101T000000:20240110T000000"
	aaplBars = []entity.Bar{
		{AssetClass: entity.AssetStock, Symbol: "AAPL", Timestamp: from, Open: 150, High: 156, Low: 149, Close: 155, Volume: 1000},
	}
)

// TestNewCachingMarketStore_Defaults はデフォルトの namespace と TTL の扱いを検証します。
func TestNewCachingMarketStore_Defaults(t *testing.T) {
	t.Parallel()

	repo := NewCachingMarketStore(nil, 0, &mockMarketStore{}, "")
	if repo.namespace != "bars" {
		t.Errorf("expected namespace %q, got %q", "bars", repo.namespace)
	}

	repo.now = func() time.Time { return time.Date(2024, 1, 10, 5, 0, 0, 0, time.UTC) }
	if got := repo.expiry(); got != time.Hour {
		t.Errorf("expected expiry at next refresh (1h), got %v", got)
	}

	custom := NewCachingMarketStore(nil, 10*time.Minute, &mockMarketStore{}, "custom")
	if custom.namespace != "custom" || custom.expiry() != 10*time.Minute {
		t.Errorf("custom values not preserved: %q %v", custom.namespace, custom.expiry())
	}
}

// TestCachingMarketStore_GetByRange_NilRedis はRedisがnilの場合にキャッシュをバイパスすることを検証します。
func TestCachingMarketStore_GetByRange_NilRedis(t *testing.T) {
	t.Parallel()

	inner := &mockMarketStore{
		getByRangeFn: func(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error) {
			return aaplBars, nil
		},
	}

	repo := NewCachingMarketStore(nil, 5*time.Minute, inner, "bars")
	bars, err := repo.GetByRange(context.Background(), entity.AssetStock, "AAPL", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 1 {
		t.Errorf("expected 1 bar, got %d", len(bars))
	}
}

// TestCachingMarketStore_GetByRange_CacheHit はキャッシュヒット時に内部リポジトリを呼ばないことを検証します。
func TestCachingMarketStore_GetByRange_CacheHit(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	cachedJSON, _ := json.Marshal(aaplBars)
	mock.ExpectGet(rangeKey).SetVal(string(cachedJSON))

	innerCalled := false
	inner := &mockMarketStore{
		getByRangeFn: func(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error) {
			innerCalled = true
			return nil, nil
		},
	}

	repo := NewCachingMarketStore(rdb, 5*time.Minute, inner, "bars")
	bars, err := repo.GetByRange(context.Background(), entity.AssetStock, "AAPL", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if innerCalled {
		t.Error("inner repository should not be called on cache hit")
	}
	if len(bars) != 1 || !bars[0].Timestamp.Equal(from) || bars[0].Close != 155 {
		t.Errorf("unexpected bars from cache: %+v", bars)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingMarketStore_GetByRange_CacheMiss はキャッシュミス時にDBから取得してキャッシュに保存することを検証します。
func TestCachingMarketStore_GetByRange_CacheMiss(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expectedJSON, _ := json.Marshal(aaplBars)
	mock.ExpectGet(rangeKey).RedisNil()
	mock.ExpectSet(rangeKey, expectedJSON, 5*time.Minute).SetVal("OK")

	inner := &mockMarketStore{
		getByRangeFn: func(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error) {
			return aaplBars, nil
		},
	}

	repo := NewCachingMarketStore(rdb, 5*time.Minute, inner, "bars")
	bars, err := repo.GetByRange(context.Background(), entity.AssetStock, "AAPL", from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bars) != 1 {
		t.Errorf("expected 1 bar, got %d", len(bars))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingMarketStore_GetByRange_InnerError は内部リポジトリのエラーが伝播し、キャッシュされないことを検証します。
func TestCachingMarketStore_GetByRange_InnerError(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expectedErr := errors.New("database error")
	mock.ExpectGet(rangeKey).RedisNil()

	inner := &mockMarketStore{
		getByRangeFn: func(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error) {
			return nil, expectedErr
		},
	}

	repo := NewCachingMarketStore(rdb, 5*time.Minute, inner, "bars")
	_, err := repo.GetByRange(context.Background(), entity.AssetStock, "AAPL", from, to)

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingMarketStore_GetByRange_CorruptedCache は破損したキャッシュを削除してDBにフォールバックすることを検証します。
func TestCachingMarketStore_GetByRange_CorruptedCache(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expectedJSON, _ := json.Marshal(aaplBars)
	mock.ExpectGet(rangeKey).SetVal("invalid json")
	mock.ExpectDel(rangeKey).SetVal(1)
	mock.ExpectSet(rangeKey, expectedJSON, 5*time.Minute).SetVal("OK")

	inner := &mockMarketStore{
		getByRangeFn: func(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error) {
			return aaplBars, nil
		},
	}

	repo := NewCachingMarketStore(rdb, 5*time.Minute, inner, "bars")
	if _, err := repo.GetByRange(context.Background(), entity.AssetStock, "AAPL", from, to); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingMarketStore_UpsertBatch_CacheInvalidation は upsert 後に銘柄ごとのキャッシュが一度だけ無効化されることを検証します。
func TestCachingMarketStore_UpsertBatch_CacheInvalidation(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	mock.ExpectScan(0, "bars:option:O_AAPL240119C00150000:*", 200).SetVal([]string{"bars:option:O_AAPL240119C00150000:a", "bars:option:O_AAPL240119C00150000:b"}, 0)
	mock.ExpectDel("bars:option:O_AAPL240119C00150000:a", "bars:option:O_AAPL240119C00150000:b").SetVal(2)
	mock.ExpectScan(0, "bars:option:O_AAPL240119P00140000:*", 200).SetVal([]string{}, 0)

	repo := NewCachingMarketStore(rdb, 5*time.Minute, &mockMarketStore{}, "bars")
	n, err := repo.UpsertBatch(context.Background(), entity.Batch{
		AssetClass: entity.AssetOption,
		Bars: []entity.Bar{
			{Symbol: "O:AAPL240119C00150000", Timestamp: from},
			{Symbol: "O:AAPL240119C00150000", Timestamp: to},
			{Symbol: "O:AAPL240119P00140000", Timestamp: from},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingMarketStore_UpsertBatch_InnerError は内部リポジトリのエラー時にキャッシュへ触れないことを検証します。
func TestCachingMarketStore_UpsertBatch_InnerError(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	expectedErr := errors.New("upsert error")
	inner := &mockMarketStore{
		upsertBatchFn: func(ctx context.Context, batch entity.Batch) (int64, error) {
			return 0, expectedErr
		},
	}

	repo := NewCachingMarketStore(rdb, 5*time.Minute, inner, "bars")
	_, err := repo.UpsertBatch(context.Background(), entity.Batch{AssetClass: entity.AssetStock, Bars: aaplBars})

	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected redis calls: %v", err)
	}
}

// TestCachingMarketStore_DelegatesOtherMethods はキャッシュ対象外のメソッドが内部リポジトリに委譲されることを検証します。
func TestCachingMarketStore_DelegatesOtherMethods(t *testing.T) {
	t.Parallel()

	inner := &mockMarketStore{}
	repo := NewCachingMarketStore(nil, 0, inner, "")

	if err := repo.Compact(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.compactCalls != 1 {
		t.Errorf("expected Compact to reach the inner repository once, got %d", inner.compactCalls)
	}
}

// TestSafe はsafe関数がRedisキーで問題となる文字を正しくエスケープすることを検証します。
func TestSafe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"AAPL", "AAPL"},
		{"BRK A", "BRK_A"},
		{"O:AAPL240119C00150000", "O_AAPL240119C00150000"},
		{"a*b?[c]", "a_b__c_"},
		{"", ""},
		{"::", "__"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			result := safe(tt.input)
			if result != tt.expected {
				t.Errorf("safe(%q) = %q, expected %q", tt.input, result, tt.expected)
			}
		})
	}
}

// TestCachingMarketStore_CleanupBefore_InvalidatesAssetClass は削除後に資産クラス全体のキャッシュを破棄することを検証します。
func TestCachingMarketStore_CleanupBefore_InvalidatesAssetClass(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	mock.ExpectScan(0, "bars:stock:*", 200).SetVal([]string{rangeKey, "bars:stock:MSFT:x"}, 7)
	mock.ExpectDel(rangeKey, "bars:stock:MSFT:x").SetVal(2)
	mock.ExpectScan(7, "bars:stock:*", 200).SetVal([]string{}, 0)

	cutoff := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	var gotAsset entity.AssetClass
	inner := &mockMarketStore{
		cleanupFn: func(ctx context.Context, asset entity.AssetClass, c time.Time) (int64, error) {
			gotAsset = asset
			if !c.Equal(cutoff) {
				t.Errorf("unexpected cutoff: %v", c)
			}
			return 4, nil
		},
	}

	repo := NewCachingMarketStore(rdb, 5*time.Minute, inner, "bars")
	n, err := repo.CleanupBefore(context.Background(), entity.AssetStock, cutoff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 4 || gotAsset != entity.AssetStock {
		t.Errorf("unexpected result: n=%d asset=%q", n, gotAsset)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled mock expectations: %v", err)
	}
}

// TestCachingMarketStore_CleanupBefore_InnerError は削除失敗時にキャッシュへ触れないことを検証します。
func TestCachingMarketStore_CleanupBefore_InnerError(t *testing.T) {
	t.Parallel()

	rdb, mock := redismock.NewClientMock()
	defer func() { _ = rdb.Close() }()

	dbErr := errors.New("db error")
	inner := &mockMarketStore{
		cleanupFn: func(ctx context.Context, asset entity.AssetClass, c time.Time) (int64, error) {
			return 0, dbErr
		},
	}

	repo := NewCachingMarketStore(rdb, 5*time.Minute, inner, "bars")
	_, err := repo.CleanupBefore(context.Background(), entity.AssetStock, to)
	if !errors.Is(err, dbErr) {
		t.Fatalf("expected db error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unexpected redis calls: %v", err)
	}
}
