package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/savaki/sentiment-bot/pkg/app"
	appconfig "github.com/savaki/sentiment-bot/pkg/config"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateDispatcher(); err != nil {
		log.Fatalf("Invalid dispatcher config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	awsCfg, err := app.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.GetLogger().Fatal("Failed to load AWS config", zap.Error(err))
	}

	dispatcher, err := app.NewDispatcher(cfg, awsCfg)
	if err != nil {
		logger.GetLogger().Fatal("Failed to create dispatcher", zap.Error(err))
	}
	defer dispatcher.Close()

	logger.GetLogger().Info("Starting dispatcher",
		zap.String("store", cfg.StoreDriver),
		zap.String("sentiment", cfg.SentimentBackend))
	lambda.Start(dispatcher.HandleSNS)
}
