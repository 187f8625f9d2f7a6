package adapters

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
)

const defaultChunkSize = 500

type marketStore struct {
	db    *gorm.DB
	chunk int
}

var _ usecase.MarketQueryRepository = (*marketStore)(nil)

// NewMarketStore は資産クラスごとのテーブルを扱うリレーショナルストアを生成します。
func NewMarketStore(db *gorm.DB) *marketStore {
	return &marketStore{db: db, chunk: defaultChunkSize}
}

// UpsertBatch は検証済みバッチを insert-or-replace で書き込み、書き込んだ行数を返します。
// 同じ (timestamp, symbol) の再投入は上書きされるため、何度実行しても結果は変わりません。
// コントラクトは参照される側なので足やスナップショットより先に書き込みます。
func (s *marketStore) UpsertBatch(ctx context.Context, b entity.Batch) (int64, error) {
	if b.Len() == 0 {
		return 0, nil
	}
	var total int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(b.Contracts) > 0 {
			ms := make([]OptionContractModel, 0, len(b.Contracts))
			for _, c := range b.Contracts {
				ms = append(ms, toContractModel(c))
			}
			if err := s.upsert(tx, &ms); err != nil {
				return fmt.Errorf("option_contract: %w", err)
			}
			total += int64(len(ms))
		}

		if len(b.Bars) > 0 {
			n, err := s.upsertBars(tx, b.AssetClass, b.Bars)
			if err != nil {
				return err
			}
			total += n
		}

		if len(b.Snapshots) > 0 {
			ms := make([]OptionSnapshotModel, 0, len(b.Snapshots))
			for _, sn := range b.Snapshots {
				ms = append(ms, toSnapshotModel(sn))
			}
			if err := s.upsert(tx, &ms); err != nil {
				return fmt.Errorf("option_snapshot: %w", err)
			}
			total += int64(len(ms))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (s *marketStore) upsertBars(tx *gorm.DB, ac entity.AssetClass, bars []entity.Bar) (int64, error) {
	var err error
	switch ac {
	case entity.AssetStock:
		ms := make([]StockAggregationModel, 0, len(bars))
		for _, b := range bars {
			ms = append(ms, StockAggregationModel{
				Timestamp: b.Timestamp.UTC(), Symbol: b.Symbol,
				Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
				Volume: b.Volume, VWAP: b.VWAP,
			})
		}
		err = s.upsert(tx, &ms)
	case entity.AssetFuture:
		ms := make([]FutureAggregationModel, 0, len(bars))
		for _, b := range bars {
			ms = append(ms, FutureAggregationModel{
				Timestamp: b.Timestamp.UTC(), Symbol: b.Symbol,
				Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
				Volume: b.Volume, OpenInterest: b.OpenInterest, SettlementPrice: b.SettlementPrice,
			})
		}
		err = s.upsert(tx, &ms)
	case entity.AssetIndex:
		ms := make([]IndexAggregationModel, 0, len(bars))
		for _, b := range bars {
			ms = append(ms, IndexAggregationModel{
				Timestamp: b.Timestamp.UTC(), Symbol: b.Symbol,
				Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
				Volume: b.Volume,
			})
		}
		err = s.upsert(tx, &ms)
	case entity.AssetOption:
		ms := make([]OptionAggregationModel, 0, len(bars))
		for _, b := range bars {
			ms = append(ms, OptionAggregationModel{
				Timestamp: b.Timestamp.UTC(), Symbol: b.Symbol,
				Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
				Volume: b.Volume, VWAP: b.VWAP,
			})
		}
		err = s.upsert(tx, &ms)
	default:
		return 0, fmt.Errorf("%w: %s has no bar table", domain.ErrUnsupportedAssetClass, ac)
	}
	if err != nil {
		return 0, fmt.Errorf("%s bars: %w", ac, err)
	}
	return int64(len(bars)), nil
}

// upsert は主キー衝突時に全列を置き換えます。関連モデルは保存しません。
func (s *marketStore) upsert(tx *gorm.DB, models any) error {
	return tx.Omit(clause.Associations).
		Clauses(clause.OnConflict{UpdateAll: true}).
		CreateInBatches(models, s.chunk).Error
}

// GetByRange は [from, to] の足を時刻の昇順で返します。
func (s *marketStore) GetByRange(ctx context.Context, ac entity.AssetClass, symbol string, from, to time.Time) ([]entity.Bar, error) {
	model, err := barModel(ac)
	if err != nil {
		return nil, err
	}
	var rows []barRow
	err = s.db.WithContext(ctx).Model(model).
		Where(clause.Eq{Column: clause.Column{Name: "symbol"}, Value: symbol}).
		Where(between(clause.Column{Name: "timestamp"}, from, to)).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "timestamp"}}).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]entity.Bar, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toEntity(ac))
	}
	return out, nil
}

// CleanupBefore は cutoff より古い行を削除します。オプションはスナップショットも対象です。
func (s *marketStore) CleanupBefore(ctx context.Context, ac entity.AssetClass, cutoff time.Time) (int64, error) {
	older := clause.Lt{Column: clause.Column{Name: "timestamp"}, Value: cutoff.UTC()}
	db := s.db.WithContext(ctx)

	var targets []any
	switch ac {
	case entity.AssetOption:
		targets = []any{&OptionAggregationModel{}, &OptionSnapshotModel{}}
	case entity.AssetOptionSnapshot:
		targets = []any{&OptionSnapshotModel{}}
	default:
		model, err := barModel(ac)
		if err != nil {
			return 0, err
		}
		targets = []any{model}
	}

	var deleted int64
	for _, m := range targets {
		res := db.Where(older).Delete(m)
		if res.Error != nil {
			return deleted, res.Error
		}
		deleted += res.RowsAffected
	}
	return deleted, nil
}

// Compact は一括削除後の領域を回収します。
func (s *marketStore) Compact(ctx context.Context) error {
	return s.db.WithContext(ctx).Exec("VACUUM").Error
}

func barModel(ac entity.AssetClass) (any, error) {
	switch ac {
	case entity.AssetStock:
		return &StockAggregationModel{}, nil
	case entity.AssetFuture:
		return &FutureAggregationModel{}, nil
	case entity.AssetIndex:
		return &IndexAggregationModel{}, nil
	case entity.AssetOption:
		return &OptionAggregationModel{}, nil
	}
	return nil, fmt.Errorf("%w: %s has no bar table", domain.ErrUnsupportedAssetClass, ac)
}

// between は col BETWEEN from AND to を方言に依存しない引用符付きで組み立てます。
func between(col clause.Column, from, to time.Time) clause.Expression {
	return clause.Expr{SQL: "? BETWEEN ? AND ?", Vars: []any{col, from.UTC(), to.UTC()}}
}
