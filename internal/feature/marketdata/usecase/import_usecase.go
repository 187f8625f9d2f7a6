package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
)

// ImportResult は一ファイル分の取り込み結果です。
type ImportResult struct {
	Path       string
	AssetClass entity.AssetClass
	Rows       int64
	Rejected   int
}

// ImportUsecase はローカルの CSV/JSON ファイルをフェッチと同じ検証経路でリレーショナルストアに取り込みます。
type ImportUsecase struct {
	source    RecordSource
	validator *Validator
	store     BatchWriter
	logger    *slog.Logger
}

// NewImportUsecase は新しい ImportUsecase を作成します。
func NewImportUsecase(source RecordSource, store BatchWriter, logger *slog.Logger) *ImportUsecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImportUsecase{source: source, validator: NewValidator(), store: store, logger: logger}
}

// ImportFile は path を asset として読み込み、検証してから upsert します。
func (u *ImportUsecase) ImportFile(ctx context.Context, path string, asset entity.AssetClass) (ImportResult, error) {
	res := ImportResult{Path: path, AssetClass: asset}
	if !asset.HasTable() {
		return res, fmt.Errorf("%w: %s cannot be imported", domain.ErrUnsupportedAssetClass, asset)
	}

	raw, err := u.source.ReadFile(ctx, path, asset)
	if err != nil {
		return res, fmt.Errorf("read %s: %w", path, err)
	}
	if raw.Len() == 0 {
		return res, fmt.Errorf("%s: %w", path, ErrNoData)
	}

	batch, err := u.validator.Validate(raw)
	if err != nil {
		return res, fmt.Errorf("%s: %w", path, err)
	}
	res.Rejected = len(batch.Rejected)

	n, err := u.store.UpsertBatch(ctx, batch)
	if err != nil {
		return res, fmt.Errorf("%s: upsert: %w", path, err)
	}
	res.Rows = n
	u.logger.Info("file imported", "path", path, "asset_class", asset, "rows", n, "rejected", res.Rejected)
	return res, nil
}

// ImportDirectory は dir 以下で pattern に一致するファイルを全て取り込みます。
// 資産クラスはディレクトリ名またはファイル名の接頭辞から推定します。
// 一部のファイルの失敗はログに残して続行し、一件も取り込めなかった場合のみエラーを返します。
func (u *ImportUsecase) ImportDirectory(ctx context.Context, dir, pattern string) ([]ImportResult, error) {
	if pattern == "" {
		pattern = "*.csv*"
	}
	var (
		results []ImportResult
		errs    []error
	)
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ok, _ := filepath.Match(pattern, d.Name()); !ok {
			return nil
		}
		asset, ok := DetectAssetClass(dir, path)
		if !ok {
			u.logger.Debug("skipping file with unknown asset class", "path", path)
			return nil
		}
		res, err := u.ImportFile(ctx, path, asset)
		if err != nil {
			u.logger.Error("failed to import file", "path", path, "asset_class", asset, "error", err)
			errs = append(errs, err)
			return nil
		}
		results = append(results, res)
		return ctx.Err()
	})
	if walkErr != nil {
		return results, fmt.Errorf("walk %s: %w", dir, walkErr)
	}
	if len(results) == 0 {
		if len(errs) == 0 {
			return nil, ErrNothingImported
		}
		return nil, fmt.Errorf("%w: %w", ErrNothingImported, errors.Join(errs...))
	}
	return results, nil
}

var assetAliases = map[string]entity.AssetClass{
	"stock":            entity.AssetStock,
	"stocks":           entity.AssetStock,
	"future":           entity.AssetFuture,
	"futures":          entity.AssetFuture,
	"index":            entity.AssetIndex,
	"indices":          entity.AssetIndex,
	"indexes":          entity.AssetIndex,
	"option":           entity.AssetOption,
	"options":          entity.AssetOption,
	"option_contract":  entity.AssetOptionContract,
	"option_contracts": entity.AssetOptionContract,
	"contracts":        entity.AssetOptionContract,
	"option_snapshot":  entity.AssetOptionSnapshot,
	"option_snapshots": entity.AssetOptionSnapshot,
	"snapshots":        entity.AssetOptionSnapshot,
}

// DetectAssetClass は root からの相対パスのディレクトリ名（深い方から）を、
// 次にファイル名の接頭辞を見て、取り込み可能な資産クラスを推定します。
func DetectAssetClass(root, path string) (entity.AssetClass, bool) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := len(parts) - 2; i >= 0; i-- {
		if ac, ok := assetAliases[strings.ToLower(parts[i])]; ok {
			return ac, true
		}
	}

	name := strings.ToLower(parts[len(parts)-1])
	if i := strings.IndexAny(name, "."); i >= 0 {
		name = name[:i]
	}
	// 長い別名を優先する（"option_contract" を "option" より先に）
	best := ""
	for alias := range assetAliases {
		if (name == alias || strings.HasPrefix(name, alias+"_")) && len(alias) > len(best) {
			best = alias
		}
	}
	if best == "" {
		return "", false
	}
	return assetAliases[best], true
}
