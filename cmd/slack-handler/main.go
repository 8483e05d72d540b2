package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/savaki/sentiment-bot/pkg/app"
	"github.com/savaki/sentiment-bot/pkg/bus"
	appconfig "github.com/savaki/sentiment-bot/pkg/config"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	// Load configuration once per container
	cfg, err := appconfig.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.ValidateIngress(); err != nil {
		log.Fatalf("Invalid ingress config: %v", err)
	}

	if err := logger.Init(cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	awsCfg, err := app.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.GetLogger().Fatal("Failed to load AWS config", zap.Error(err))
	}

	publisher := bus.NewSNSPublisher(bus.NewSNSClient(awsCfg), cfg.SNSTopicARN)
	gateway, pool := app.NewGateway(cfg, publisher)
	defer pool.Close()

	logger.GetLogger().Info("Starting slack-handler", zap.String("topic", cfg.SNSTopicARN))
	lambda.Start(gateway.HandleAPIGateway)
}
