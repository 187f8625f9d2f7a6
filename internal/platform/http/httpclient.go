// Package http はプロバイダー呼び出し用の HTTP クライアントを提供します。
package http

import (
	"net"
	"net/http"
	"time"
)

// NewHTTPClient はプロバイダー呼び出し用に設定されたHTTPクライアントを作成します。
//
// ワーカープールの各タスクが同じホストへ並行にリクエストするため、
// ホストあたりのアイドル接続数をワーカー数に合わせて再利用率を上げます。
// workers が0以下の場合は1として扱います。
//
// 注意:
//   - http.DefaultClientにはタイムアウトがないため、常にこのクライアントを使用すること
//   - timeout はバックオフ待機を含まない、一回のリクエスト全体の上限です
func NewHTTPClient(timeout time.Duration, workers int) *http.Client {
	if workers <= 0 {
		workers = 1
	}
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   workers,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Timeout: timeout, Transport: t}
}
