// Package admin registers the card-center admin API.
package admin

import (
	"net/http"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/campus-card/cardledger/internal/config"
	"github.com/campus-card/cardledger/internal/holders"
	"github.com/campus-card/cardledger/internal/http/api/admin/handlers"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps carries everything the admin routes need.
type Deps struct {
	DB       *gorm.DB
	Ledger   *cardledger.Service
	Holders  *holders.Directory
	JWT      config.JWTConfig
	Gatherer prometheus.Gatherer // Defaults to prometheus.DefaultGatherer.
}

// RegisterAdminRoutes registers health, metrics and the /v0/admin API.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil || deps.Ledger == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	admin := r.Group("/v0/admin")
	admin.Use(operatorAuthMiddleware(deps.JWT))
	admin.Use(adminPermissionMiddleware())

	cardHandler := handlers.NewCardHandler(deps.Ledger)
	admin.GET("/cards", cardHandler.List)
	admin.POST("/cards", cardHandler.Issue)
	admin.POST("/card-batches", cardHandler.BatchIssue)
	admin.GET("/cards/:cardNo", cardHandler.Balance)
	admin.GET("/cards/:cardNo/transactions", cardHandler.Transactions)
	admin.GET("/cards/:cardNo/reconcile", cardHandler.Reconcile)
	admin.POST("/cards/:cardNo/recharge", cardHandler.Recharge)
	admin.POST("/cards/:cardNo/consume", cardHandler.Consume)
	admin.POST("/cards/:cardNo/report-loss", cardHandler.ReportLoss)
	admin.POST("/cards/:cardNo/unloss", cardHandler.Unloss)
	admin.POST("/cards/:cardNo/freeze", cardHandler.Freeze)
	admin.POST("/cards/:cardNo/unfreeze", cardHandler.Unfreeze)
	admin.POST("/cards/:cardNo/cancel", cardHandler.Cancel)
	admin.POST("/cards/:cardNo/replace", cardHandler.Replace)

	cardTypeHandler := handlers.NewCardTypeHandler(deps.Ledger)
	admin.GET("/card-types", cardTypeHandler.List)
	admin.POST("/card-types", cardTypeHandler.Create)
	admin.PUT("/card-types/:id", cardTypeHandler.Update)
	admin.DELETE("/card-types/:id", cardTypeHandler.Delete)

	reportHandler := handlers.NewReportHandler(deps.Ledger)
	admin.GET("/transactions/report", reportHandler.KindTotals)

	if deps.Holders != nil {
		holderHandler := handlers.NewHolderHandler(deps.Holders)
		admin.PUT("/holders/:type/:id", holderHandler.Put)
		admin.DELETE("/holders/:type/:id", holderHandler.Delete)
	}

	settingsHandler := handlers.NewSettingsHandler(deps.DB)
	admin.GET("/settings", settingsHandler.List)
	admin.PUT("/settings/:key", settingsHandler.Put)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
