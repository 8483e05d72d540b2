package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/savaki/sentiment-bot/pkg/app"
	"github.com/savaki/sentiment-bot/pkg/bus"
	appconfig "github.com/savaki/sentiment-bot/pkg/config"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"go.uber.org/zap"
)

const (
	busSize         = 256
	shutdownTimeout = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateLocal(); err != nil {
		log.Fatalf("Invalid local config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	l := logger.GetLogger()

	awsCfg, err := app.LoadAWSConfig(ctx, cfg)
	if err != nil {
		l.Fatal("Failed to load AWS config", zap.Error(err))
	}

	dispatcher, err := app.NewDispatcher(cfg, awsCfg)
	if err != nil {
		l.Fatal("Failed to create dispatcher", zap.Error(err))
	}

	mem := bus.NewMemory(busSize)
	gateway, pool := app.NewGateway(cfg, mem)

	var workers sync.WaitGroup
	for i := 0; i < cfg.LocalWorkers; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			dispatcher.Consume(ctx, mem)
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware())
	router.POST("/", gateway.GinHandler())
	router.POST("/slack/events", gateway.GinHandler())
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}
	go func() {
		l.Info("Listening", zap.String("addr", cfg.ListenAddr), zap.Int("workers", cfg.LocalWorkers))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("Server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("Server shutdown", zap.Error(err))
	}
	pool.Close()
	mem.Close()
	workers.Wait()
	dispatcher.Close()
}
