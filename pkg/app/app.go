// Package app builds the runtime components from configuration. Every
// binary goes through it so the Lambdas and the local server wire the same
// way.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/savaki/sentiment-bot/pkg/bedrock"
	"github.com/savaki/sentiment-bot/pkg/bus"
	"github.com/savaki/sentiment-bot/pkg/config"
	"github.com/savaki/sentiment-bot/pkg/dynamodb"
	"github.com/savaki/sentiment-bot/pkg/handler"
	"github.com/savaki/sentiment-bot/pkg/sentiment"
	"github.com/savaki/sentiment-bot/pkg/slack"
	"github.com/savaki/sentiment-bot/pkg/sqlstore"
)

// publishQueueSize bounds the gateway's pending background publishes
const publishQueueSize = 64

// LoadAWSConfig loads the default AWS config for the configured region
func LoadAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

// NewMessageStore returns the store selected by STORE_DRIVER
func NewMessageStore(cfg *config.Config, awsCfg aws.Config) (handler.MessageStore, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		return sqlstore.NewMySQL(sqlstore.MySQLOptions{
			Host:           cfg.RDSHost,
			Username:       cfg.DBUsername,
			Password:       cfg.DBPassword,
			Database:       cfg.DBName,
			Table:          cfg.DBTable,
			ConnectTimeout: cfg.DBConnectTimeout,
		})
	case config.DriverSQLite:
		return sqlstore.NewSQLite(cfg.DBPath, cfg.DBTable)
	case config.DriverDynamoDB:
		client := dynamodb.NewClientWithConfig(awsCfg)
		return dynamodb.NewMessageRepository(client, cfg.MessagesTable), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// NewScorer returns the scorer selected by SENTIMENT_BACKEND
func NewScorer(cfg *config.Config, awsCfg aws.Config) sentiment.Scorer {
	if cfg.SentimentBackend == config.SentimentBedrock {
		return bedrock.NewClient(awsCfg, cfg.BedrockModelID)
	}
	return sentiment.NewAnalyzer()
}

// NewDispatcher wires the dispatcher with its persister and command processor
func NewDispatcher(cfg *config.Config, awsCfg aws.Config) (*handler.Dispatcher, error) {
	store, err := NewMessageStore(cfg, awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create message store: %w", err)
	}

	persister := handler.NewPersister(store)
	commands := handler.NewCommandProcessor(store, NewScorer(cfg, awsCfg), slack.NewResponder(cfg.CallbackTimeout))
	return handler.NewDispatcher(persister, commands, cfg.DedupTTL), nil
}

// NewGateway wires the gateway onto publisher. The returned pool must be
// closed on shutdown.
func NewGateway(cfg *config.Config, publisher bus.Publisher) (*handler.Gateway, *bus.Pool) {
	pool := bus.NewPool(publisher, publishQueueSize, cfg.PublishTimeout)
	gw := handler.NewGateway(handler.GatewayOptions{
		SigningSecret:  cfg.SlackSigningSecret,
		MaxRequestAge:  cfg.MaxRequestAge,
		Publisher:      publisher,
		Pool:           pool,
		PublishTimeout: cfg.PublishTimeout,
		PublishWait:    cfg.PublishWait,
	})
	return gw, pool
}
