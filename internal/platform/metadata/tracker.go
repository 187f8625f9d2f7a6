// Package metadata は (資産クラス, 銘柄) ごとの最終取得時刻と取得済み期間を JSON ファイルに記録します。
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"market_ingest/internal/feature/marketdata/domain/entity"
	"market_ingest/internal/feature/marketdata/usecase"
	"market_ingest/internal/platform/filestore"
)

var _ usecase.MetadataTracker = (*Tracker)(nil)

const day = 24 * time.Hour

// fileState はメタデータファイルの形式です。
type fileState struct {
	LastUpdate map[string]time.Time        `json:"last_update"`
	DataRanges map[string]entity.DateRange `json:"data_ranges"`
}

// Tracker は取得メタデータを保持し、更新のたびにファイル全体を書き直します。
// 同じキーへの読み取り・更新・書き込みはキーごとのロックで直列化され、異なるキーは並行に進みます。
type Tracker struct {
	path   string
	logger *slog.Logger

	keyLocks sync.Map // string -> *sync.Mutex

	mu    sync.RWMutex
	state fileState

	fileMu sync.Mutex
}

// Open は base/metadata.json を読み込みます。ファイルが無ければ空の状態で開始します。
func Open(base string, logger *slog.Logger) (*Tracker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		path:   filepath.Join(base, filestore.MetadataFile),
		logger: logger,
		state: fileState{
			LastUpdate: map[string]time.Time{},
			DataRanges: map[string]entity.DateRange{},
		},
	}

	data, err := os.ReadFile(t.path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("metadata file not found, starting empty", "path", t.path)
		return t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	if len(data) == 0 {
		return t, nil
	}

	var loaded fileState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse metadata %s: %w", t.path, err)
	}
	for k, v := range loaded.LastUpdate {
		t.state.LastUpdate[k] = v.UTC()
	}
	for k, v := range loaded.DataRanges {
		t.state.DataRanges[k] = entity.DateRange{Start: v.Start.UTC(), End: v.End.UTC()}
	}
	logger.Info("metadata loaded", "path", t.path, "keys", len(t.state.LastUpdate))
	return t, nil
}

// Path はメタデータファイルのパスを返します。
func (t *Tracker) Path() string { return t.path }

// ShouldSkip は key が記録済みで、最終取得から daysBack 日経っていない場合に true を返します。
func (t *Tracker) ShouldSkip(key entity.SeriesKey, now time.Time, daysBack int) bool {
	t.mu.RLock()
	last, ok := t.state.LastUpdate[key.String()]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	return now.Sub(last) < time.Duration(daysBack)*day
}

// RecordSuccess は key の取得済み期間を [start, end] まで広げ、最終取得時刻を now にして
// ファイルに書き込みます。書き込みに失敗した場合はメモリ上の状態も元に戻します。
func (t *Tracker) RecordSuccess(key entity.SeriesKey, start, end, now time.Time) error {
	k := key.String()
	unlock := t.lockKey(k)
	defer unlock()

	rng := entity.DateRange{Start: start.UTC(), End: end.UTC()}

	t.mu.Lock()
	prevUpdate, hadUpdate := t.state.LastUpdate[k]
	prevRange, hadRange := t.state.DataRanges[k]
	if hadRange {
		rng = prevRange.Cover(rng)
	}
	t.state.LastUpdate[k] = now.UTC()
	t.state.DataRanges[k] = rng
	t.mu.Unlock()

	if err := t.save(); err != nil {
		t.mu.Lock()
		if hadUpdate {
			t.state.LastUpdate[k] = prevUpdate
		} else {
			delete(t.state.LastUpdate, k)
		}
		if hadRange {
			t.state.DataRanges[k] = prevRange
		} else {
			delete(t.state.DataRanges, k)
		}
		t.mu.Unlock()
		return err
	}
	return nil
}

// Get は key の記録を返します。
func (t *Tracker) Get(key entity.SeriesKey) (entity.FetchMetadata, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	last, ok := t.state.LastUpdate[key.String()]
	if !ok {
		return entity.FetchMetadata{}, false
	}
	return entity.FetchMetadata{LastUpdate: last, DataRange: t.state.DataRanges[key.String()]}, true
}

// Keys は記録済みのキー文字列を昇順で返します。
func (t *Tracker) Keys() []string {
	t.mu.RLock()
	keys := make([]string, 0, len(t.state.LastUpdate))
	for k := range t.state.LastUpdate {
		keys = append(keys, k)
	}
	t.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Remove は key の記録を削除してファイルに書き込みます。記録が無ければ何もしません。
func (t *Tracker) Remove(key entity.SeriesKey) error {
	k := key.String()
	unlock := t.lockKey(k)
	defer unlock()

	t.mu.Lock()
	_, ok := t.state.LastUpdate[k]
	delete(t.state.LastUpdate, k)
	delete(t.state.DataRanges, k)
	t.mu.Unlock()
	if !ok {
		return nil
	}
	return t.save()
}

func (t *Tracker) lockKey(k string) func() {
	v, _ := t.keyLocks.LoadOrStore(k, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}

// save は現在の状態全体をファイルに書き込みます。
// スナップショットの取得と書き込みを fileMu の下で行うため、後に書かれたファイルほど新しい状態を持ちます。
func (t *Tracker) save() error {
	t.fileMu.Lock()
	defer t.fileMu.Unlock()

	t.mu.RLock()
	data, err := json.MarshalIndent(t.state, "", "  ")
	t.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	err = filestore.WriteFileAtomic(t.path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		t.logger.Error("failed to write metadata", "path", t.path, "error", err)
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}
