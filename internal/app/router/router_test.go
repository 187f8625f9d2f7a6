package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"market_ingest/internal/feature/marketdata/adapters"
	"market_ingest/internal/feature/marketdata/domain/entity"
	markethandler "market_ingest/internal/feature/marketdata/transport/handler"
	"market_ingest/internal/feature/marketdata/usecase"
	platformhandler "market_ingest/internal/platform/http/handler"
)

func newTestRouter(t *testing.T, deps map[string]platformhandler.Pinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(adapters.Models()...))

	store := adapters.NewMarketStore(db)
	day := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	_, err = store.UpsertBatch(context.Background(), entity.Batch{
		AssetClass: entity.AssetStock,
		Symbol:     "AAPL",
		Bars: []entity.Bar{
			{AssetClass: entity.AssetStock, Symbol: "AAPL", Timestamp: day, Open: 100, High: 105, Low: 99, Close: 104, Volume: 1000},
			{AssetClass: entity.AssetStock, Symbol: "AAPL", Timestamp: day.AddDate(0, 0, 1), Open: 104, High: 108, Low: 103, Close: 107, Volume: 1200},
		},
	})
	require.NoError(t, err)

	return NewRouter(
		platformhandler.NewHealthHandler(deps),
		markethandler.NewMarketHandler(usecase.NewQueryUsecase(store)),
	)
}

func TestNewRouter_Routes(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		name           string
		method         string
		url            string
		expectedStatus int
	}{
		{name: "success: healthz", method: http.MethodGet, url: "/healthz", expectedStatus: http.StatusOK},
		{name: "success: healthz head", method: http.MethodHead, url: "/healthz", expectedStatus: http.StatusOK},
		{name: "success: readyz without dependencies", method: http.MethodGet, url: "/readyz", expectedStatus: http.StatusOK},
		{name: "success: bars", method: http.MethodGet, url: "/bars/stock/AAPL?from=2024-01-01&to=2024-01-10", expectedStatus: http.StatusOK},
		{name: "success: metrics", method: http.MethodGet, url: "/metrics/stock/AAPL?from=2024-01-01&to=2024-01-10", expectedStatus: http.StatusOK},
		{name: "success: volatility", method: http.MethodGet, url: "/volatility/stock/AAPL?from=2024-01-01&to=2024-01-10", expectedStatus: http.StatusOK},
		{name: "success: correlation", method: http.MethodGet, url: "/correlation/stock?from=2024-01-01&to=2024-01-10", expectedStatus: http.StatusOK},
		{name: "success: greeks", method: http.MethodGet, url: "/options/SPY/greeks?from=2024-01-01&to=2024-01-10", expectedStatus: http.StatusOK},
		{name: "error: metrics of unknown symbol", method: http.MethodGet, url: "/metrics/stock/MSFT?from=2024-01-01&to=2024-01-10", expectedStatus: http.StatusNotFound},
		{name: "error: write methods are not routed", method: http.MethodPost, url: "/bars/stock/AAPL", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(tt.method, tt.url, nil)
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestNewRouter_BarsFromStore(t *testing.T) {
	r := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/bars/stock/aapl?from=2024-01-01&to=2024-01-10", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var bars []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bars))
	require.Len(t, bars, 2)
	assert.Equal(t, "2024-01-02T00:00:00Z", bars[0]["time"])
	assert.Equal(t, float64(107), bars[1]["close"])
}

func TestNewRouter_ReadyzReportsFailingDependency(t *testing.T) {
	r := newTestRouter(t, map[string]platformhandler.Pinger{
		"redis": platformhandler.PingerFunc(func(ctx context.Context) error { return errors.New("connection refused") }),
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/readyz", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"redis":"connection refused"}}`, w.Body.String())
}
