package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clickview/clickview/internal/clickhouse"
	"github.com/clickview/clickview/internal/config"
	"github.com/clickview/clickview/internal/engine"
	"github.com/clickview/clickview/internal/handlers"
	"github.com/clickview/clickview/internal/logger"
	"github.com/clickview/clickview/internal/middleware"
	"github.com/clickview/clickview/internal/services"
	"github.com/clickview/clickview/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// Initialize store connection
	db, err := clickhouse.NewDB(cfg.ClickHouse)
	if err != nil {
		logger.Error("Failed to connect to clickhouse", "error", err.Error())
		os.Exit(1)
	}
	defer db.Close()

	store, err := storage.NewClient(cfg.Storage)
	if err != nil {
		logger.Error("Failed to initialize storage client", "error", err.Error())
		os.Exit(1)
	}

	// Initialize engine
	exec := engine.NewExecutor(db.Conn, cfg.ClickHouse.QueryTimeout)
	registry := engine.NewSchemaRegistry(exec)
	if err := registry.Refresh(context.Background()); err != nil {
		logger.Error("Failed to load schema registry", "error", err.Error())
		os.Exit(1)
	}

	// Initialize services
	tableService := services.NewTableService(exec, registry)
	dataService := services.NewDataService(exec, registry, tableService, store)
	dashboardService := services.NewDashboardService(exec)
	dimensionService := services.NewDimensionService(exec, registry)

	// Initialize handlers
	dataHandler := handlers.NewDataHandler(dataService)
	tableHandler := handlers.NewTableHandler(tableService)
	dashboardHandler := handlers.NewDashboardHandler(dashboardService)
	dimensionHandler := handlers.NewDimensionHandler(dimensionService)
	exportsHandler := handlers.NewExportsHandler(store)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORSMiddleware(cfg.Server.CORSOrigin))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		if err := exec.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(cfg.Server.RequestsPerMinute, cfg.Server.RateBurst))

	// Data query routes
	dataAPI := api.Group("/data")
	dataAPI.POST("/query", dataHandler.Query)
	dataAPI.POST("/aggregate", dataHandler.Aggregate)
	dataAPI.POST("/chart", dataHandler.Chart)
	dataAPI.POST("/export", dataHandler.Export)

	// Table metadata routes
	api.GET("/tables", tableHandler.ListTables)
	api.GET("/tables/:name", tableHandler.GetTable)
	api.GET("/tables/:name/sample", tableHandler.SampleTable)
	api.POST("/schema/refresh", tableHandler.RefreshSchema)

	// Data source routes
	api.GET("/datasources", tableHandler.ListDataSources)
	api.POST("/datasources", tableHandler.CreateDataSource)
	api.GET("/datasources/:id", tableHandler.GetDataSource)
	api.DELETE("/datasources/:id", tableHandler.DeleteDataSource)

	// Dashboard routes
	api.GET("/dashboards", dashboardHandler.ListDashboards)
	api.POST("/dashboards", dashboardHandler.CreateDashboard)
	api.GET("/dashboards/:id", dashboardHandler.GetDashboard)
	api.PUT("/dashboards/:id", dashboardHandler.UpdateDashboard)
	api.DELETE("/dashboards/:id", dashboardHandler.DeleteDashboard)
	api.GET("/dashboards/:id/widgets", dashboardHandler.ListWidgets)
	api.POST("/dashboards/:id/widgets", dashboardHandler.CreateWidget)
	api.DELETE("/dashboards/:id/widgets/:widgetId", dashboardHandler.DeleteWidget)

	// Export file routes
	api.GET("/exports", exportsHandler.ListExports)
	api.GET("/exports/:name", exportsHandler.DownloadExport)
	api.DELETE("/exports/:name", exportsHandler.DeleteExport)

	// Dimension routes
	api.GET("/dimensions", dimensionHandler.ListDimensions)
	api.GET("/dimensions/:name", dimensionHandler.GetDimensionValues)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	go func() {
		logger.Info("ClickView API server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err.Error())
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Forced shutdown", "error", err.Error())
	}
	logger.Info("Server stopped")
}
