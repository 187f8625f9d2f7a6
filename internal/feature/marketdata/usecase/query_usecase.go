package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
)

// QueryUsecase は保存済みデータの参照と保守を提供します。
type QueryUsecase struct {
	repo MarketQueryRepository
}

// NewQueryUsecase は新しい QueryUsecase を作成します。
func NewQueryUsecase(repo MarketQueryRepository) *QueryUsecase {
	return &QueryUsecase{repo: repo}
}

func checkBarQuery(asset entity.AssetClass, from, to time.Time) error {
	if !asset.IsBar() {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedAssetClass, asset)
	}
	if to.Before(from) {
		return ErrInvalidRange
	}
	return nil
}

// GetBars は [from, to] の足を時刻順に返します。
func (u *QueryUsecase) GetBars(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error) {
	if err := checkBarQuery(asset, from, to); err != nil {
		return nil, err
	}
	return u.repo.GetByRange(ctx, asset, strings.TrimSpace(symbol), from, to)
}

// Metrics は価格・出来高の集計値を返します。
func (u *QueryUsecase) Metrics(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) (entity.PriceMetrics, error) {
	if err := checkBarQuery(asset, from, to); err != nil {
		return entity.PriceMetrics{}, err
	}
	return u.repo.PriceMetrics(ctx, asset, strings.TrimSpace(symbol), from, to)
}

// Volatility はボラティリティの代理指標を返します。
func (u *QueryUsecase) Volatility(ctx context.Context, asset entity.AssetClass, symbol string, from, to time.Time) (entity.VolatilityMetrics, error) {
	if err := checkBarQuery(asset, from, to); err != nil {
		return entity.VolatilityMetrics{}, err
	}
	return u.repo.Volatility(ctx, asset, strings.TrimSpace(symbol), from, to)
}

// Correlation は同一資産クラス内の銘柄ペアごとのリターン相関を返します。
func (u *QueryUsecase) Correlation(ctx context.Context, asset entity.AssetClass, from, to time.Time) ([]entity.Correlation, error) {
	if err := checkBarQuery(asset, from, to); err != nil {
		return nil, err
	}
	return u.repo.Correlation(ctx, asset, from, to)
}

// Snapshots はオプションコントラクトのスナップショットを返します。
func (u *QueryUsecase) Snapshots(ctx context.Context, symbol string, from, to time.Time) ([]entity.OptionQuote, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	return u.repo.GetSnapshotsByRange(ctx, symbol, from, to)
}

// OptionChain は原資産・日付・満期で絞り込んだオプションチェーンを返します。
func (u *QueryUsecase) OptionChain(ctx context.Context, underlying string, day, expiration time.Time) ([]entity.OptionQuote, error) {
	return u.repo.OptionChain(ctx, underlying, day, expiration)
}

// OptionGreeks は種別ごとのグリークス平均を返します。
func (u *QueryUsecase) OptionGreeks(ctx context.Context, underlying string, from, to time.Time) ([]entity.GreeksSummary, error) {
	if to.Before(from) {
		return nil, ErrInvalidRange
	}
	return u.repo.OptionGreeks(ctx, underlying, from, to)
}

// Cleanup は cutoff より古い行を資産クラスごとに削除し、削除件数を返します。
// compact が true の場合は削除後に領域を回収します。
func (u *QueryUsecase) Cleanup(ctx context.Context, assets []entity.AssetClass, cutoff time.Time, compact bool) (map[entity.AssetClass]int64, error) {
	deleted := make(map[entity.AssetClass]int64, len(assets))
	for _, a := range assets {
		n, err := u.repo.CleanupBefore(ctx, a, cutoff)
		if err != nil {
			return deleted, fmt.Errorf("cleanup %s: %w", a, err)
		}
		deleted[a] = n
	}
	if compact {
		if err := u.repo.Compact(ctx); err != nil {
			return deleted, fmt.Errorf("compact: %w", err)
		}
	}
	return deleted, nil
}

// Compact はデータベースの領域を回収します。
func (u *QueryUsecase) Compact(ctx context.Context) error {
	return u.repo.Compact(ctx)
}
