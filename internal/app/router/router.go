package router

import (
	"github.com/gin-gonic/gin"

	markethandler "market_ingest/internal/feature/marketdata/transport/handler"
	platformhandler "market_ingest/internal/platform/http/handler"
)

func NewRouter(health *platformhandler.HealthHandler, market *markethandler.MarketHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// 導通確認用
	r.GET("/healthz", health.Health)
	r.HEAD("/healthz", health.Health)
	// 依存先（DB・Redis）の疎通確認
	r.GET("/readyz", health.Ready)

	// 参照専用。書き込みは cmd/ingest のみが行う
	r.GET("/bars/:asset/:symbol", market.GetBars)
	r.GET("/metrics/:asset/:symbol", market.GetMetrics)
	r.GET("/volatility/:asset/:symbol", market.GetVolatility)
	r.GET("/correlation/:asset", market.GetCorrelation)
	r.GET("/snapshots/:symbol", market.GetSnapshots)

	options := r.Group("/options/:underlying")
	{
		options.GET("/chain", market.GetOptionChain)
		options.GET("/greeks", market.GetOptionGreeks)
	}

	return r
}
