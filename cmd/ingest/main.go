package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	redisv9 "github.com/redis/go-redis/v9"

	"market_ingest/internal/app/config"
	"market_ingest/internal/app/di"
	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
	infradb "market_ingest/internal/platform/db"
	"market_ingest/internal/platform/logger"
	infraredis "market_ingest/internal/platform/redis"
)

const (
	modeFull        = "full"
	modeIncremental = "incremental"
	modeImport      = "import"
	modeCleanup     = "cleanup"
	modeCompact     = "compact"

	dateLayout = "2006-01-02"
)

// options はコマンドライン引数です。環境変数の設定を上書きするものだけを持ちます。
type options struct {
	mode     string
	start    time.Time
	end      time.Time
	daysBack int
	workers  int

	dir     string
	pattern string
	file    string
	asset   string

	before   time.Time
	keepDays int
	assets   []entity.AssetClass
	compact  bool
}

func parseOptions(args []string, now time.Time, out io.Writer) (options, error) {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(out)

	var (
		opts                       options
		start, end, before, assets string
	)
	fs.StringVar(&opts.mode, "mode", modeIncremental, "full | incremental | import | cleanup | compact")
	fs.StringVar(&start, "start", "", "full: first day to fetch (YYYY-MM-DD)")
	fs.StringVar(&end, "end", "", "full: last day to fetch (YYYY-MM-DD, default today)")
	fs.IntVar(&opts.daysBack, "days-back", 0, "incremental: days to look back (default DAYS_BACK)")
	fs.IntVar(&opts.workers, "workers", 0, "worker pool size (default MAX_WORKERS)")
	fs.StringVar(&opts.dir, "dir", "", "import: directory to walk")
	fs.StringVar(&opts.pattern, "pattern", "", "import: file name glob (default *.csv*)")
	fs.StringVar(&opts.file, "file", "", "import: single file to import (requires -asset)")
	fs.StringVar(&opts.asset, "asset", "", "import: asset class of -file")
	fs.StringVar(&before, "before", "", "cleanup: delete rows older than this day (YYYY-MM-DD)")
	fs.IntVar(&opts.keepDays, "keep-days", 0, "cleanup: delete rows older than N days")
	fs.StringVar(&assets, "assets", "stock,future,index,option", "cleanup: comma separated asset classes")
	fs.BoolVar(&opts.compact, "compact", false, "cleanup: reclaim space afterwards")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	var err error
	switch opts.mode {
	case modeFull:
		if start == "" {
			return options{}, errors.New("-start is required in full mode")
		}
		if opts.start, err = time.Parse(dateLayout, start); err != nil {
			return options{}, fmt.Errorf("invalid -start: %w", err)
		}
		opts.end = now.UTC().Truncate(24 * time.Hour)
		if end != "" {
			if opts.end, err = time.Parse(dateLayout, end); err != nil {
				return options{}, fmt.Errorf("invalid -end: %w", err)
			}
		}
		if opts.end.Before(opts.start) {
			return options{}, usecase.ErrInvalidRange
		}
	case modeIncremental, modeCompact:
	case modeImport:
		if opts.dir == "" && opts.file == "" {
			return options{}, errors.New("-dir or -file is required in import mode")
		}
		if opts.file != "" && opts.asset == "" {
			return options{}, errors.New("-asset is required with -file")
		}
	case modeCleanup:
		switch {
		case before != "":
			if opts.before, err = time.Parse(dateLayout, before); err != nil {
				return options{}, fmt.Errorf("invalid -before: %w", err)
			}
		case opts.keepDays > 0:
			opts.before = now.UTC().AddDate(0, 0, -opts.keepDays)
		default:
			return options{}, errors.New("-before or -keep-days is required in cleanup mode")
		}
		for _, s := range strings.Split(assets, ",") {
			if strings.TrimSpace(s) == "" {
				continue
			}
			ac, err := entity.ParseAssetClass(s)
			if err != nil {
				return options{}, err
			}
			opts.assets = append(opts.assets, ac)
		}
	default:
		return options{}, fmt.Errorf("unknown mode %q", opts.mode)
	}
	return opts, nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// .envを読み込む
	if err := godotenv.Load(); err != nil {
		slog.Info(".env not found; using system environment variables")
	}

	cfg := config.Load()
	log, err := logger.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		slog.Error("invalid logging configuration", "error", err)
		return 2
	}

	opts, err := parseOptions(args, time.Now(), os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		log.Error("invalid arguments", "error", err)
		return 2
	}
	if opts.workers > 0 {
		cfg.Ingest.MaxWorkers = opts.workers
	}
	if opts.daysBack > 0 {
		cfg.DaysBack = opts.daysBack
	}

	validate := cfg.Validate
	if opts.mode == modeFull || opts.mode == modeIncremental {
		validate = cfg.ValidateFetch
	}
	if err := validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := infradb.OpenDB(cfg.DB)
	if err != nil {
		log.Error("failed to open database", "error", err)
		return 1
	}
	if sqlDB, err := db.DB(); err == nil {
		defer func() { _ = sqlDB.Close() }()
	}

	// Redisが使える場合は書き込み時に参照キャッシュを無効化する
	var rdb *redisv9.Client
	if tmp, err := infraredis.NewRedisClient(ctx, cfg.Redis); err != nil {
		if !errors.Is(err, infraredis.ErrNotConfigured) {
			log.Warn("Redis unavailable. Cached ranges will not be invalidated.", "error", err)
		}
	} else {
		rdb = tmp
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error("failed to close Redis client", "error", err)
			}
		}()
	}

	switch opts.mode {
	case modeFull, modeIncremental:
		return runFetch(ctx, log, cfg, opts, db, rdb)
	case modeImport:
		return runImport(ctx, log, cfg, opts, db, rdb)
	case modeCleanup:
		return runCleanup(ctx, log, cfg, opts, db, rdb)
	default:
		if err := di.NewQueryUsecase(cfg, db, rdb).Compact(ctx); err != nil {
			log.Error("compact failed", "error", err)
			return 1
		}
		log.Info("compact finished")
		return 0
	}
}
