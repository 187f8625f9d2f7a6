package polygon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"market_ingest/internal/shared/ratelimiter"
)

// MaxBackoff は 429 リトライ時の待機時間の上限です。
const MaxBackoff = 300 * time.Second

const maxErrorBody = 512

// Client はAPIキー付きのGETリクエストを送り、429 に対して指数バックオフで再試行するクライアントです。
// バックオフ中にブロックされるのは呼び出し元のゴルーチンだけです。
type Client struct {
	cfg     Config
	http    *http.Client
	limiter ratelimiter.RateLimiterInterface
	logger  *slog.Logger

	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewClient は指定された設定とHTTPクライアントで Client を生成します。
// cfg.RequestsPerMinute が正の場合はクライアント側でもリクエスト頻度を制限します。
func NewClient(cfg Config, httpClient *http.Client) *Client {
	cfg = cfg.withDefaults()
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:     cfg,
		http:    httpClient,
		limiter: ratelimiter.NewRateLimiter(cfg.RequestsPerMinute, time.Minute),
		logger:  slog.Default(),
		sleep:   sleepContext,
		jitter:  func() time.Duration { return rand.N(cfg.MaxJitter) },
	}
}

// BackoffDelay は attempt 回目（0始まり）の失敗後の待機時間 min(MaxBackoff, base·2^attempt + jitter) を返します。
func BackoffDelay(attempt int, base, jitter time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base < 0 {
		base = 0
	}
	d := base
	for i := 0; i < attempt && d < MaxBackoff; i++ {
		d *= 2
	}
	if d >= MaxBackoff {
		return MaxBackoff
	}
	d += jitter
	if d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

// Call は BaseURL+endpoint に params と apiKey を付けて GET し、レスポンスボディを返します。
func (c *Client) Call(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = append([]string(nil), vs...)
	}
	q.Set("apiKey", c.cfg.APIKey)
	u := fmt.Sprintf("%s%s?%s", c.cfg.BaseURL, endpoint, q.Encode())
	return c.do(ctx, endpoint, u)
}

// CallURL はページングの next_url をそのまま GET します。apiKey が無ければ付与します。
func (c *Client) CallURL(ctx context.Context, next string) ([]byte, error) {
	u, err := url.Parse(next)
	if err != nil {
		return nil, fmt.Errorf("parse next_url: %w", err)
	}
	q := u.Query()
	if q.Get("apiKey") == "" {
		q.Set("apiKey", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	return c.do(ctx, u.Path, u.String())
}

func (c *Client) do(ctx context.Context, endpoint, rawURL string) ([]byte, error) {
	attempts := max(c.cfg.MaxRetries, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		if err := c.limiter.WaitIfNeeded(ctx); err != nil {
			return nil, err
		}

		status, body, err := c.get(ctx, rawURL)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &NetworkError{Endpoint: endpoint, Err: err}
		}

		if status == http.StatusTooManyRequests {
			if attempt == attempts-1 {
				break
			}
			delay := BackoffDelay(attempt, c.cfg.BaseDelay, c.jitter())
			c.logger.Warn("rate limited, backing off",
				"endpoint", endpoint, "attempt", attempt+1, "max_attempts", attempts, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}
		if status >= 400 {
			return nil, &HTTPError{Endpoint: endpoint, StatusCode: status, Body: truncate(body, maxErrorBody)}
		}
		return body, nil
	}
	return nil, &RateLimitedError{Endpoint: endpoint, Attempts: attempts}
}

func (c *Client) get(ctx context.Context, rawURL string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() {
		if err := res.Body.Close(); err != nil {
			slog.Warn("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return res.StatusCode, body, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
