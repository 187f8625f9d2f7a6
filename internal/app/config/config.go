// Package config はパイプライン全体の設定を環境変数から読み込みます。
// 設定の読み込みはこのパッケージだけが行い、各コンポーネントには明示的に渡します。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
	"market_ingest/internal/platform/db"
	"market_ingest/internal/platform/externalapi/polygon"
	"market_ingest/internal/platform/filestore"
	"market_ingest/internal/platform/redis"
)

var (
	// ErrMissingAPIKey はプロバイダーの API キーが設定されていない場合に返されます。
	ErrMissingAPIKey = errors.New("POLYGON_API_KEY is not set")

	// ErrNoSymbols は取得対象の銘柄が一つも設定されていない場合に返されます。
	ErrNoSymbols = errors.New("no symbols configured (set STOCK_SYMBOLS, FUTURE_SYMBOLS, INDEX_SYMBOLS or OPTION_SYMBOLS)")
)

// Config はパイプラインの設定です。
type Config struct {
	Polygon polygon.Config
	DB      db.Config
	Redis   redis.Config
	Ingest  usecase.IngestConfig

	DataDir     string
	Compression string
	DaysBack    int
	Symbols     map[entity.AssetClass][]string

	CacheTTL  time.Duration // 0 以下は毎日の更新時刻まで
	HTTPAddr  string
	LogLevel  string
	LogFormat string
}

// Load は環境変数から設定を読み込みます。未設定の値には既定値を使います。
func Load() Config {
	return Config{
		Polygon: polygon.LoadConfig(),
		DB:      db.LoadConfigFromEnv(),
		Redis:   redis.LoadConfigFromEnv(),
		Ingest: usecase.IngestConfig{
			MaxWorkers:              envInt("MAX_WORKERS", 5),
			OptionRequestDelay:      envDuration("OPTION_REQUEST_DELAY", time.Second),
			OptionContractLimit:     envInt("OPTION_CONTRACT_LIMIT", 0),
			IncludeCorporateActions: envBool("INCLUDE_CORPORATE_ACTIONS", true),
			NewsLimit:               envInt("NEWS_LIMIT", 1000),
		},
		DataDir:     envString("DATA_DIR", filepath.Join(".", "data")),
		Compression: envString("COMPRESSION", string(filestore.CodecGzip)),
		DaysBack:    envInt("DAYS_BACK", 1),
		Symbols: map[entity.AssetClass][]string{
			entity.AssetStock:  SplitList(os.Getenv("STOCK_SYMBOLS")),
			entity.AssetFuture: SplitList(os.Getenv("FUTURE_SYMBOLS")),
			entity.AssetIndex:  SplitList(os.Getenv("INDEX_SYMBOLS")),
			entity.AssetOption: SplitList(os.Getenv("OPTION_SYMBOLS")),
		},
		CacheTTL:  envDuration("CACHE_TTL", 0),
		HTTPAddr:  envString("HTTP_ADDR", ":8080"),
		LogLevel:  os.Getenv("LOG_LEVEL"),
		LogFormat: os.Getenv("LOG_FORMAT"),
	}
}

// Validate は起動時に検出できる設定の誤りを返します。
func (c Config) Validate() error {
	var errs []error
	if _, err := filestore.ParseCodec(c.Compression); err != nil {
		errs = append(errs, err)
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR must not be empty"))
	}
	if c.Ingest.MaxWorkers <= 0 {
		errs = append(errs, fmt.Errorf("MAX_WORKERS must be positive, got %d", c.Ingest.MaxWorkers))
	}
	if c.DaysBack <= 0 {
		errs = append(errs, fmt.Errorf("DAYS_BACK must be positive, got %d", c.DaysBack))
	}
	if c.Ingest.OptionContractLimit < 0 {
		errs = append(errs, fmt.Errorf("OPTION_CONTRACT_LIMIT must not be negative, got %d", c.Ingest.OptionContractLimit))
	}
	return errors.Join(errs...)
}

// ValidateFetch は取得モードで必要な設定を検証します。
func (c Config) ValidateFetch() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Polygon.APIKey) == "" {
		return ErrMissingAPIKey
	}
	for _, syms := range c.Symbols {
		if len(syms) > 0 {
			return nil
		}
	}
	return ErrNoSymbols
}

// Codec は Compression を filestore.Codec に変換します。Validate 済みであることが前提です。
func (c Config) Codec() filestore.Codec {
	codec, err := filestore.ParseCodec(c.Compression)
	if err != nil {
		return filestore.CodecGzip
	}
	return codec
}

// SplitList はカンマ区切りの銘柄リストを分割します。空要素と重複は取り除き、大文字に揃えます。
func SplitList(s string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, p := range strings.Split(s, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// envDuration は Go の duration 形式 ("1.5s") か秒数 ("2") を受け付けます。
func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
