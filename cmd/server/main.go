package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"honeypot-agent/internal/agent"
	"honeypot-agent/internal/collector"
	"honeypot-agent/internal/config"
	"honeypot-agent/internal/detect"
	"honeypot-agent/internal/gemini"
	"honeypot-agent/internal/handler"
	"honeypot-agent/internal/intel"
	"honeypot-agent/internal/keypool"
	"honeypot-agent/internal/report"
	"honeypot-agent/internal/repository"
	"honeypot-agent/internal/service"
	"honeypot-agent/internal/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("Starting Honeypot Agent...")

	// Load configuration
	cfg, err := config.LoadConfig("configs/config.yml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Credential pool and Gemini client
	pool, err := keypool.New(cfg.Gemini.APIKeys, logger)
	if err != nil {
		logger.Fatal("Failed to initialize credential pool", zap.Error(err))
	}

	llmClient, err := gemini.NewClient(gemini.Config{
		APIKeys:           cfg.Gemini.APIKeys,
		ModelName:         cfg.Gemini.ModelName,
		RequestsPerMinute: cfg.Gemini.RequestsPerMinute,
		CallTimeout:       time.Duration(cfg.Gemini.CallTimeoutSecs) * time.Second,
	}, pool, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Gemini client", zap.Error(err))
	}
	defer llmClient.Close()

	// Detection and extraction
	detector := detect.NewDetector(llmClient, cfg.Gemini.ClassifierModel, logger)
	entityExtractor := intel.NewNLPExtractor(llmClient, cfg.Gemini.ClassifierModel, logger)

	// Persona responder
	responder := agent.NewResponder(llmClient, agent.Config{
		ModelName:  cfg.Gemini.ModelName,
		MaxRetries: cfg.Gemini.MaxRetries,
		RetryDelay: time.Duration(cfg.Gemini.RetryDelaySeconds) * time.Second,
	}, logger)

	// Report archive
	os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755)

	repo, err := repository.NewReportRepository(cfg.Database.Path, logger)
	if err != nil {
		logger.Fatal("Failed to initialize report repository", zap.Error(err))
	}
	defer repo.Close()

	// Delivery and finalization
	collectorClient := collector.NewClient(collector.Config{
		Endpoint:  cfg.Report.CollectorURL,
		AuthToken: cfg.Report.CollectorToken,
		Timeout:   time.Duration(cfg.Report.DeliveryTimeoutSeconds) * time.Second,
	}, logger)

	finalizer := report.NewFinalizer(collectorClient, repo, report.Config{
		MaxTurns:        cfg.Report.MaxTurns,
		DeliveryDelay:   time.Duration(cfg.Report.DeliveryDelaySeconds) * time.Second,
		DeliveryTimeout: time.Duration(cfg.Report.DeliveryTimeoutSeconds) * time.Second,
	}, logger)

	// Session store with background sweeper
	store := session.NewStore(time.Duration(cfg.Session.MaxIdleSeconds)*time.Second, logger)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go store.Run(sweepCtx, time.Duration(cfg.Session.SweepIntervalSeconds)*time.Second)

	// Orchestration engine
	engine := service.NewEngine(store, detector, responder, entityExtractor, finalizer, logger)

	// Initialize HTTP handler
	apiHandler := handler.NewHandler(engine, repo, llmClient, cfg.Server.APIKey, logger)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, x-api-key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register routes
	apiHandler.RegisterRoutes(router)

	// Start server
	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	logger.Info("Honeypot Agent is running",
		zap.String("port", cfg.Server.Port),
		zap.String("model", cfg.Gemini.ModelName),
		zap.Int("credentials", pool.Size()))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
