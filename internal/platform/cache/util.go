package cache

import (
	"time"
)

// DefaultRefreshHour は日次取り込みが完了している想定の時刻（UTC）です。
const DefaultRefreshHour = 6

// TimeUntilNextRefresh は now から次の hour 時（loc）までの期間を返します。
// 日足は日次取り込みでしか変わらないため、キャッシュの有効期限をその時刻に揃えます。
func TimeUntilNextRefresh(now time.Time, hour int, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, loc)

	// 今日の更新時刻を過ぎている場合は翌日の更新時刻を使用
	if !now.Before(next) {
		next = next.Add(24 * time.Hour)
	}

	return next.Sub(now)
}
