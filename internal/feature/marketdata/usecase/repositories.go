package usecase

import (
	"context"
	"time"

	"market_ingest/internal/feature/marketdata/domain/entity"
)

// MarketRepository は外部プロバイダーから市場データを取得するリポジトリのインターフェイスです。
// 実装は応答を受け取った時点で型付きの Raw レコードに変換して返します。
// Following Go convention: interfaces are defined by the consumer (usecase), not the provider (adapters).
type MarketRepository interface {
	GetAggregates(ctx context.Context, symbol string, from, to time.Time) ([]entity.RawBar, error)
	ListOptionContracts(ctx context.Context, q entity.ContractQuery) ([]entity.RawOptionContract, error)
	ListDividends(ctx context.Context, symbol string) ([]entity.CorporateAction, error)
	ListSplits(ctx context.Context, symbol string) ([]entity.CorporateAction, error)
	ListNews(ctx context.Context, symbol string, limit int) ([]entity.NewsItem, error)
}

// BatchWriter は検証済みバッチをリレーショナルストアに upsert します。
type BatchWriter interface {
	UpsertBatch(ctx context.Context, batch entity.Batch) (int64, error)
}

// MarketQueryRepository はリレーショナルストアへの参照・保守操作です。
type MarketQueryRepository interface {
	BatchWriter
	GetByRange(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error)
	GetSnapshotsByRange(ctx context.Context, symbol string, from, to time.Time) ([]entity.OptionQuote, error)
	PriceMetrics(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) (entity.PriceMetrics, error)
	Volatility(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) (entity.VolatilityMetrics, error)
	Correlation(ctx context.Context, asset entity.AssetClass, from, to time.Time) ([]entity.Correlation, error)
	OptionChain(ctx context.Context, underlying string, day, expiration time.Time) ([]entity.OptionQuote, error)
	OptionGreeks(ctx context.Context, underlying string, from, to time.Time) ([]entity.GreeksSummary, error)
	CleanupBefore(ctx context.Context, asset entity.AssetClass, cutoff time.Time) (int64, error)
	Compact(ctx context.Context) error
}

// FilePersister は検証済みバッチを一つのファイル形式で書き出します。
type FilePersister interface {
	Format() string
	Persist(ctx context.Context, key entity.FileKey, batch entity.Batch) (string, error)
}

// MetadataTracker は (資産クラス, 銘柄) ごとの取得状況を記録します。
type MetadataTracker interface {
	ShouldSkip(key entity.SeriesKey, now time.Time, daysBack int) bool
	RecordSuccess(key entity.SeriesKey, start, end, now time.Time) error
}

// RecordSource はファイルを読み込み、未検証バッチとして返します。
type RecordSource interface {
	ReadFile(ctx context.Context, path string, asset entity.AssetClass) (entity.RawBatch, error)
}
