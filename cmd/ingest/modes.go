package main

import (
	"context"
	"log/slog"

	redisv9 "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"market_ingest/internal/app/config"
	"market_ingest/internal/app/di"
	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
)

func runFetch(ctx context.Context, log *slog.Logger, cfg config.Config, opts options, db *gorm.DB, rdb *redisv9.Client) int {
	uc, _, err := di.NewIngestUsecase(cfg, db, rdb, log)
	if err != nil {
		log.Error("failed to prepare ingestion", "error", err)
		return 1
	}

	var report *usecase.RunReport
	if opts.mode == modeFull {
		report = uc.Run(ctx, cfg.Symbols, opts.start, opts.end, cfg.Ingest.MaxWorkers)
	} else {
		report = uc.FetchIncremental(ctx, cfg.Symbols, cfg.DaysBack)
	}
	return summarize(log, report)
}

// summarize は実行結果をログに出力し、終了コードを返します。一つでも失敗したタスクがあれば 1 です。
func summarize(log *slog.Logger, report *usecase.RunReport) int {
	failed := report.Failed()
	for _, o := range failed {
		log.Error("task failed",
			"run_id", report.RunID,
			"asset_class", o.Key.AssetClass,
			"symbol", o.Key.Symbol,
			"error", o.Err,
		)
	}
	log.Info("ingest finished",
		"run_id", report.RunID,
		"succeeded", report.Count(usecase.TaskSucceeded),
		"failed", len(failed),
		"skipped", report.Count(usecase.TaskSkipped),
		"no_data", report.Count(usecase.TaskNoData),
		"duration", report.FinishedAt.Sub(report.StartedAt),
	)
	if len(failed) > 0 {
		return 1
	}
	return 0
}

func runImport(ctx context.Context, log *slog.Logger, cfg config.Config, opts options, db *gorm.DB, rdb *redisv9.Client) int {
	uc := di.NewImportUsecase(cfg, db, rdb, log)

	if opts.file != "" {
		asset, err := entity.ParseAssetClass(opts.asset)
		if err != nil {
			log.Error("invalid -asset", "error", err)
			return 2
		}
		res, err := uc.ImportFile(ctx, opts.file, asset)
		if err != nil {
			log.Error("import failed", "path", opts.file, "error", err)
			return 1
		}
		log.Info("import finished", "files", 1, "rows", res.Rows, "rejected", res.Rejected)
		return 0
	}

	results, err := uc.ImportDirectory(ctx, opts.dir, opts.pattern)
	if err != nil {
		log.Error("import failed", "dir", opts.dir, "error", err)
		return 1
	}
	var rows int64
	for _, r := range results {
		rows += r.Rows
	}
	log.Info("import finished", "files", len(results), "rows", rows)
	return 0
}

func runCleanup(ctx context.Context, log *slog.Logger, cfg config.Config, opts options, db *gorm.DB, rdb *redisv9.Client) int {
	deleted, err := di.NewQueryUsecase(cfg, db, rdb).Cleanup(ctx, opts.assets, opts.before, opts.compact)
	for asset, n := range deleted {
		log.Info("old rows deleted", "asset_class", asset, "rows", n, "before", opts.before.Format(dateLayout))
	}
	if err != nil {
		log.Error("cleanup failed", "error", err)
		return 1
	}
	return 0
}
