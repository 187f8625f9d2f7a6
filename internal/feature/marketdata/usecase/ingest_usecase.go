package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"market_ingest/internal/feature/marketdata/domain"
	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/shared/ratelimiter"
)

const (
	defaultMaxWorkers = 5
	defaultNewsLimit  = 1000
	dateLayout        = "2006-01-02"
)

// IngestConfig はオーケストレーターの動作設定です。値は呼び出し側で読み込み、明示的に渡します。
type IngestConfig struct {
	MaxWorkers              int           // ワーカープールのサイズ
	OptionRequestDelay      time.Duration // オプションのコントラクトごとの取得間隔
	OptionContractLimit     int           // 原資産あたりのコントラクト数の上限（0は無制限）
	IncludeCorporateActions bool          // 株式の銘柄について配当・分割・ニュースも取得する
	NewsLimit               int
}

// TaskStatus はタスクの最終状態です。
type TaskStatus string

const (
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
	TaskNoData    TaskStatus = "no_data"
)

// TaskOutcome は一つの (資産クラス, 銘柄) タスクの結果です。
type TaskOutcome struct {
	Key      entity.SeriesKey
	Start    time.Time
	End      time.Time
	Status   TaskStatus
	Records  int
	Rejected int
	Files    []string
	Err      error
	Duration time.Duration
}

// RunReport は一回の実行で処理した全タスクの結果です。
type RunReport struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcomes   []TaskOutcome
}

// Count は指定した状態のタスク数を返します。
func (r *RunReport) Count(status TaskStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// Failed は失敗したタスクの結果を返します。
func (r *RunReport) Failed() []TaskOutcome {
	var out []TaskOutcome
	for _, o := range r.Outcomes {
		if o.Status == TaskFailed {
			out = append(out, o)
		}
	}
	return out
}

// Outcome は key のタスク結果を返します。
func (r *RunReport) Outcome(key entity.SeriesKey) (TaskOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Key == key {
			return o, true
		}
	}
	return TaskOutcome{}, false
}

type fetchFunc func(ctx context.Context, log *slog.Logger, symbol string, start, end time.Time) (entity.RawBatch, error)

// IngestUsecase は外部APIからデータを取得し、検証してファイルとデータベースに永続化するユースケースです。
// (資産クラス, 銘柄) ごとに独立したタスクを作り、上限付きのワーカープールで並行に実行します。
type IngestUsecase struct {
	market     MarketRepository
	validator  *Validator
	persisters []FilePersister
	store      BatchWriter
	tracker    MetadataTracker
	cfg        IngestConfig
	logger     *slog.Logger

	fetchers map[entity.AssetClass]fetchFunc
	now      func() time.Time
	newPacer func(delay time.Duration) ratelimiter.RateLimiterInterface
}

// NewIngestUsecase は新しい IngestUsecase を作成します。logger が nil の場合は slog.Default() を使います。
func NewIngestUsecase(
	market MarketRepository,
	store BatchWriter,
	tracker MetadataTracker,
	persisters []FilePersister,
	cfg IngestConfig,
	logger *slog.Logger,
) *IngestUsecase {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if cfg.NewsLimit <= 0 {
		cfg.NewsLimit = defaultNewsLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	u := &IngestUsecase{
		market:     market,
		validator:  NewValidator(),
		persisters: persisters,
		store:      store,
		tracker:    tracker,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		newPacer: func(d time.Duration) ratelimiter.RateLimiterInterface {
			return ratelimiter.NewFixedDelay(d)
		},
	}
	u.fetchers = map[entity.AssetClass]fetchFunc{
		entity.AssetStock:     u.fetchAggregates(entity.AssetStock),
		entity.AssetFuture:    u.fetchAggregates(entity.AssetFuture),
		entity.AssetIndex:     u.fetchAggregates(entity.AssetIndex),
		entity.AssetOption:    u.fetchOptions,
		entity.AssetDividends: u.fetchDividends,
		entity.AssetSplits:    u.fetchSplits,
		entity.AssetNews:      u.fetchNews,
	}
	return u
}

// Run は assets の全 (資産クラス, 銘柄) について [start, end] のデータを取得・永続化します。
// 個々のタスクの失敗は他のタスクを止めず、RunReport に記録されます。
// maxWorkers が0以下の場合は IngestConfig.MaxWorkers を使います。
func (u *IngestUsecase) Run(ctx context.Context, assets map[entity.AssetClass][]string, start, end time.Time, maxWorkers int) *RunReport {
	return u.execute(ctx, u.plan(assets), start.UTC(), end.UTC(), maxWorkers, nil)
}

// FetchIncremental は直近 daysBack 日分を取得します。
// 最終更新から daysBack 日経過していないキーはタスクを作らずにスキップします。
func (u *IngestUsecase) FetchIncremental(ctx context.Context, assets map[entity.AssetClass][]string, daysBack int) *RunReport {
	now := u.now().UTC()
	start := now.AddDate(0, 0, -daysBack)
	skip := func(key entity.SeriesKey) bool {
		return u.tracker.ShouldSkip(key, now, daysBack)
	}
	return u.execute(ctx, u.plan(assets), start, now, 0, skip)
}

// plan はタスクのキーを決定的な順序で列挙します。
func (u *IngestUsecase) plan(assets map[entity.AssetClass][]string) []entity.SeriesKey {
	seen := map[entity.SeriesKey]struct{}{}
	var keys []entity.SeriesKey
	add := func(ac entity.AssetClass, sym string) {
		k := entity.SeriesKey{AssetClass: ac, Symbol: sym}
		if _, ok := seen[k]; ok || sym == "" {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for ac, symbols := range assets {
		for _, s := range symbols {
			add(ac, s)
			if ac == entity.AssetStock && u.cfg.IncludeCorporateActions {
				add(entity.AssetDividends, s)
				add(entity.AssetSplits, s)
				add(entity.AssetNews, s)
			}
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].AssetClass != keys[j].AssetClass {
			return keys[i].AssetClass < keys[j].AssetClass
		}
		return keys[i].Symbol < keys[j].Symbol
	})
	return keys
}

func (u *IngestUsecase) execute(ctx context.Context, keys []entity.SeriesKey, start, end time.Time, maxWorkers int, skip func(entity.SeriesKey) bool) *RunReport {
	if maxWorkers <= 0 {
		maxWorkers = u.cfg.MaxWorkers
	}
	report := &RunReport{
		RunID:     uuid.NewString(),
		StartedAt: u.now(),
		Outcomes:  make([]TaskOutcome, len(keys)),
	}
	log := u.logger.With("run_id", report.RunID)
	log.Info("ingest run started",
		"tasks", len(keys), "workers", maxWorkers,
		"start", start.Format(dateLayout), "end", end.Format(dateLayout))

	var g errgroup.Group
	g.SetLimit(maxWorkers)
	for i, key := range keys {
		if skip != nil && skip(key) {
			log.Info("skipping up-to-date series", "asset_class", key.AssetClass, "symbol", key.Symbol)
			report.Outcomes[i] = TaskOutcome{Key: key, Start: start, End: end, Status: TaskSkipped}
			continue
		}
		if err := ctx.Err(); err != nil {
			report.Outcomes[i] = TaskOutcome{Key: key, Start: start, End: end, Status: TaskFailed, Err: err}
			continue
		}
		g.Go(func() error {
			report.Outcomes[i] = u.runTask(ctx, log, key, start, end)
			return nil
		})
	}
	_ = g.Wait()

	report.FinishedAt = u.now()
	log.Info("ingest run finished",
		"succeeded", report.Count(TaskSucceeded),
		"failed", report.Count(TaskFailed),
		"skipped", report.Count(TaskSkipped),
		"no_data", report.Count(TaskNoData),
		"elapsed", report.FinishedAt.Sub(report.StartedAt))
	return report
}

// runTask は fetch → validate → persist → metadata の順に一つのタスクを実行します。
// どの段階のエラーもここで捕捉し、TaskOutcome として返します。
func (u *IngestUsecase) runTask(ctx context.Context, log *slog.Logger, key entity.SeriesKey, start, end time.Time) (out TaskOutcome) {
	began := time.Now()
	out = TaskOutcome{Key: key, Start: start, End: end}
	log = log.With("asset_class", key.AssetClass, "symbol", key.Symbol,
		"start", start.Format(dateLayout), "end", end.Format(dateLayout))

	defer func() {
		if r := recover(); r != nil {
			out.Status = TaskFailed
			out.Err = fmt.Errorf("panic: %v", r)
		}
		out.Duration = time.Since(began)
		if out.Status == TaskFailed {
			log.Error("ingest task failed", "error", out.Err)
		}
	}()

	fetch, ok := u.fetchers[key.AssetClass]
	if !ok {
		out.Status, out.Err = TaskFailed, fmt.Errorf("%w: %s", domain.ErrUnsupportedAssetClass, key.AssetClass)
		return out
	}

	raw, err := fetch(ctx, log, key.Symbol, start, end)
	if err != nil {
		out.Status, out.Err = TaskFailed, fmt.Errorf("fetch: %w", err)
		return out
	}
	if raw.Len() == 0 {
		log.Warn("no data found")
		out.Status, out.Err = TaskNoData, ErrNoData
		return out
	}

	batch, err := u.validator.Validate(raw)
	if err != nil {
		out.Status, out.Err = TaskFailed, fmt.Errorf("validate: %w", err)
		return out
	}
	out.Rejected = len(batch.Rejected)
	if len(batch.Rejected) > 0 {
		log.Warn("records rejected by validation", "rejected", len(batch.Rejected), "first", batch.Rejected[0].Key+": "+batch.Rejected[0].Reason)
	}
	batch = filterEvents(batch, start, end)
	if batch.Len() == 0 {
		log.Warn("no data within range")
		out.Status, out.Err = TaskNoData, ErrNoData
		return out
	}
	out.Records = batch.Len()

	fk := entity.FileKey{AssetClass: key.AssetClass, Symbol: key.Symbol, Start: start, End: end}
	files, err := u.persist(ctx, log, fk, batch)
	out.Files = files
	if err != nil {
		out.Status, out.Err = TaskFailed, err
		return out
	}

	if err := u.tracker.RecordSuccess(key, start, end, u.now()); err != nil {
		out.Status, out.Err = TaskFailed, &PersistError{Sink: "metadata", Key: fk, Err: err}
		return out
	}

	out.Status = TaskSucceeded
	log.Info("ingest task succeeded", "records", out.Records, "files", len(files))
	return out
}

// persist は全ての永続化先に書き込みます。各永続化先は独立しており、
// 一つの失敗が他の書き込みを取り消すことはありません。
func (u *IngestUsecase) persist(ctx context.Context, log *slog.Logger, key entity.FileKey, batch entity.Batch) ([]string, error) {
	var (
		files []string
		errs  []error
	)
	for _, p := range u.persisters {
		path, err := p.Persist(ctx, key, batch)
		if err != nil {
			log.Error("file persist failed", "format", p.Format(), "error", err)
			errs = append(errs, &PersistError{Sink: p.Format(), Key: key, Err: err})
			continue
		}
		files = append(files, path)
	}

	if key.AssetClass.HasTable() && u.store != nil {
		n, err := u.store.UpsertBatch(ctx, batch)
		if err != nil {
			log.Error("database upsert failed", "error", err)
			errs = append(errs, &PersistError{Sink: "db", Key: key, Err: err})
		} else {
			log.Debug("database upsert done", "rows", n)
		}
	}
	return files, errors.Join(errs...)
}

func (u *IngestUsecase) fetchAggregates(ac entity.AssetClass) fetchFunc {
	return func(ctx context.Context, _ *slog.Logger, symbol string, start, end time.Time) (entity.RawBatch, error) {
		bars, err := u.market.GetAggregates(ctx, symbol, start, end)
		if err != nil {
			return entity.RawBatch{}, err
		}
		return entity.RawBatch{AssetClass: ac, Symbol: symbol, Bars: bars}, nil
	}
}

// fetchOptions は原資産のコントラクトを列挙し、コントラクトごとの足を一定間隔で取得します。
// 個々のコントラクトの失敗はログに残してスキップします。
func (u *IngestUsecase) fetchOptions(ctx context.Context, log *slog.Logger, underlying string, start, end time.Time) (entity.RawBatch, error) {
	asOf := end
	contracts, err := u.market.ListOptionContracts(ctx, entity.ContractQuery{
		Underlying: underlying,
		AsOf:       &asOf,
		Expired:    false,
		Limit:      u.cfg.OptionContractLimit,
	})
	if err != nil {
		return entity.RawBatch{}, fmt.Errorf("list option contracts: %w", err)
	}

	raw := entity.RawBatch{AssetClass: entity.AssetOption, Symbol: underlying}
	pacer := u.newPacer(u.cfg.OptionRequestDelay)
	var errs []error
	for _, c := range contracts {
		if c.Symbol == "" {
			continue
		}
		if err := pacer.WaitIfNeeded(ctx); err != nil {
			return entity.RawBatch{}, err
		}
		bars, err := u.market.GetAggregates(ctx, c.Symbol, start, end)
		if err != nil {
			log.Warn("option contract fetch failed", "contract", c.Symbol, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.Symbol, err))
			continue
		}
		for i := range bars {
			if bars[i].Symbol == "" {
				bars[i].Symbol = c.Symbol
			}
		}
		raw.Bars = append(raw.Bars, bars...)
	}

	if len(raw.Bars) == 0 {
		if len(errs) > 0 {
			return entity.RawBatch{}, errors.Join(errs...)
		}
		return entity.RawBatch{AssetClass: entity.AssetOption, Symbol: underlying}, nil
	}
	raw.Contracts = contracts
	return raw, nil
}

func (u *IngestUsecase) fetchDividends(ctx context.Context, _ *slog.Logger, symbol string, _, _ time.Time) (entity.RawBatch, error) {
	actions, err := u.market.ListDividends(ctx, symbol)
	if err != nil {
		return entity.RawBatch{}, err
	}
	return entity.RawBatch{AssetClass: entity.AssetDividends, Symbol: symbol, Actions: actions}, nil
}

func (u *IngestUsecase) fetchSplits(ctx context.Context, _ *slog.Logger, symbol string, _, _ time.Time) (entity.RawBatch, error) {
	actions, err := u.market.ListSplits(ctx, symbol)
	if err != nil {
		return entity.RawBatch{}, err
	}
	return entity.RawBatch{AssetClass: entity.AssetSplits, Symbol: symbol, Actions: actions}, nil
}

func (u *IngestUsecase) fetchNews(ctx context.Context, _ *slog.Logger, symbol string, _, _ time.Time) (entity.RawBatch, error) {
	news, err := u.market.ListNews(ctx, symbol, u.cfg.NewsLimit)
	if err != nil {
		return entity.RawBatch{}, err
	}
	return entity.RawBatch{AssetClass: entity.AssetNews, Symbol: symbol, News: news}, nil
}

// filterEvents はイベント日付が [start, end] の日付範囲外のコーポレートアクションとニュースを除外します。
func filterEvents(b entity.Batch, start, end time.Time) entity.Batch {
	if len(b.Actions) == 0 && len(b.News) == 0 {
		return b
	}
	actions := b.Actions[:0:0]
	for _, a := range b.Actions {
		if withinDays(a.EventDate, start, end) {
			actions = append(actions, a)
		}
	}
	news := b.News[:0:0]
	for _, n := range b.News {
		if withinDays(n.PublishedAt, start, end) {
			news = append(news, n)
		}
	}
	b.Actions, b.News = actions, news
	return b
}

func withinDays(t, start, end time.Time) bool {
	day := t.UTC().Truncate(24 * time.Hour)
	return !day.Before(start.UTC().Truncate(24*time.Hour)) && !day.After(end.UTC().Truncate(24*time.Hour))
}
