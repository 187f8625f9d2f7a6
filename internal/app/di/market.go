// Package di provides dependency injection factories for creating application components.
package di

import (
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"market_ingest/internal/app/config"
	"market_ingest/internal/feature/marketdata/adapters"
	"market_ingest/internal/feature/marketdata/usecase"
	"market_ingest/internal/platform/cache"
	"market_ingest/internal/platform/externalapi/polygon"
	"market_ingest/internal/platform/filestore"
	infrahttp "market_ingest/internal/platform/http"
	"market_ingest/internal/platform/metadata"
)

// NewMarket creates a fully configured PolygonMarket whose HTTP pool is sized for the worker pool.
func NewMarket(cfg polygon.Config, workers int) *polygon.PolygonMarket {
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout, workers)
	return polygon.NewPolygonMarket(cfg, httpClient)
}

// NewQueryRepository creates the relational store used by the query and ingest paths.
// If Redis is available, range queries are cached and writes invalidate the cached ranges.
// Otherwise, it returns the gorm store directly.
func NewQueryRepository(db *gorm.DB, rdb *redis.Client, cfg config.Config) usecase.MarketQueryRepository {
	store := adapters.NewMarketStore(db)
	if rdb != nil {
		return cache.NewCachingMarketStore(rdb, cfg.CacheTTL, store, "bars")
	}
	return store
}

// NewPersisters creates the row-file and columnar persisters rooted at cfg.DataDir.
func NewPersisters(cfg config.Config) []usecase.FilePersister {
	codec := cfg.Codec()
	return []usecase.FilePersister{
		filestore.NewCSVPersister(cfg.DataDir, codec),
		filestore.NewParquetPersister(cfg.DataDir, codec),
	}
}

// NewIngestUsecase prepares the data directory layout, loads the metadata side file
// and wires the provider, persisters and store into an IngestUsecase.
func NewIngestUsecase(cfg config.Config, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) (*usecase.IngestUsecase, *metadata.Tracker, error) {
	if err := filestore.EnsureLayout(cfg.DataDir); err != nil {
		return nil, nil, err
	}
	tracker, err := metadata.Open(cfg.DataDir, logger)
	if err != nil {
		return nil, nil, err
	}
	uc := usecase.NewIngestUsecase(
		NewMarket(cfg.Polygon, cfg.Ingest.MaxWorkers),
		NewQueryRepository(db, rdb, cfg),
		tracker,
		NewPersisters(cfg),
		cfg.Ingest,
		logger,
	)
	return uc, tracker, nil
}

// NewImportUsecase wires the file reader and the store into an ImportUsecase.
func NewImportUsecase(cfg config.Config, db *gorm.DB, rdb *redis.Client, logger *slog.Logger) *usecase.ImportUsecase {
	return usecase.NewImportUsecase(filestore.NewReader(), NewQueryRepository(db, rdb, cfg), logger)
}

// NewQueryUsecase wires the (optionally cached) store into a QueryUsecase.
func NewQueryUsecase(cfg config.Config, db *gorm.DB, rdb *redis.Client) *usecase.QueryUsecase {
	return usecase.NewQueryUsecase(NewQueryRepository(db, rdb, cfg))
}
