package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Storage drivers
const (
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

// Sentiment backends
const (
	SentimentLexicon = "lexicon"
	SentimentBedrock = "bedrock"
)

// Config holds application configuration loaded from environment variables
type Config struct {
	// AWS
	AWSRegion string `koanf:"aws_region"`

	// Slack
	SlackSigningSecret string        `koanf:"slack_signing_secret"`
	MaxRequestAge      time.Duration `koanf:"slack_max_request_age"`

	// Bus
	SNSTopicARN    string        `koanf:"sns_topic_arn"`
	PublishTimeout time.Duration `koanf:"publish_timeout"`
	PublishWait    time.Duration `koanf:"publish_wait"`

	// Storage
	StoreDriver      string        `koanf:"store_driver"`
	RDSHost          string        `koanf:"rds_host"`
	DBUsername       string        `koanf:"db_username"`
	DBPassword       string        `koanf:"db_pw"`
	DBName           string        `koanf:"db_name"`
	DBTable          string        `koanf:"db_table"`
	DBPath           string        `koanf:"db_path"`
	MessagesTable    string        `koanf:"messages_table"`
	DBConnectTimeout time.Duration `koanf:"db_connect_timeout"`

	// Commands
	SentimentBackend string        `koanf:"sentiment_backend"`
	BedrockModelID   string        `koanf:"bedrock_model_id"`
	CallbackTimeout  time.Duration `koanf:"callback_timeout"`
	DedupTTL         time.Duration `koanf:"dedup_ttl"`

	// Local server
	ListenAddr   string `koanf:"listen_socket"`
	LocalWorkers int    `koanf:"local_workers"`

	LogLevel string `koanf:"log_level"`
}

// Default returns a Config populated with default values
func Default() *Config {
	return &Config{
		AWSRegion:        "us-east-1",
		MaxRequestAge:    5 * time.Minute,
		PublishTimeout:   3 * time.Second,
		PublishWait:      2 * time.Second,
		StoreDriver:      DriverMySQL,
		DBPath:           "./db/messages.db",
		MessagesTable:    "slack-messages",
		DBConnectTimeout: 5 * time.Second,
		SentimentBackend: SentimentLexicon,
		BedrockModelID:   "anthropic.claude-3-5-sonnet-20241022-v2:0",
		CallbackTimeout:  5 * time.Second,
		DedupTTL:         10 * time.Minute,
		ListenAddr:       ":3000",
		LocalWorkers:     2,
		LogLevel:         "info",
	}
}

// Load reads configuration from environment variables. Keys are the
// lowercased variable names, e.g. SLACK_SIGNING_SECRET -> slack_signing_secret.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", strings.ToLower), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks values every binary depends on
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverMySQL, DriverSQLite, DriverDynamoDB:
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: must be one of mysql, sqlite, dynamodb", c.StoreDriver)
	}
	switch c.SentimentBackend {
	case SentimentLexicon, SentimentBedrock:
	default:
		return fmt.Errorf("invalid SENTIMENT_BACKEND %q: must be one of lexicon, bedrock", c.SentimentBackend)
	}
	if c.MaxRequestAge < 0 {
		return fmt.Errorf("SLACK_MAX_REQUEST_AGE must be non-negative")
	}
	if c.DBConnectTimeout <= 0 {
		return fmt.Errorf("DB_CONNECT_TIMEOUT must be positive")
	}
	return nil
}

// ValidateIngress checks configuration required by the slack-handler Lambda
func (c *Config) ValidateIngress() error {
	var missing []string
	if c.SlackSigningSecret == "" {
		missing = append(missing, "SLACK_SIGNING_SECRET")
	}
	if c.SNSTopicARN == "" {
		missing = append(missing, "SNS_TOPIC_ARN")
	}
	return missingErr(missing)
}

// ValidateDispatcher checks configuration required by the dispatcher Lambda
func (c *Config) ValidateDispatcher() error {
	var missing []string
	switch c.StoreDriver {
	case DriverMySQL:
		required := []struct{ env, val string }{
			{"RDS_HOST", c.RDSHost},
			{"DB_USERNAME", c.DBUsername},
			{"DB_PW", c.DBPassword},
			{"DB_NAME", c.DBName},
			{"DB_TABLE", c.DBTable},
		}
		for _, r := range required {
			if r.val == "" {
				missing = append(missing, r.env)
			}
		}
	case DriverSQLite:
		if c.DBPath == "" {
			missing = append(missing, "DB_PATH")
		}
		if c.DBTable == "" {
			missing = append(missing, "DB_TABLE")
		}
	case DriverDynamoDB:
		if c.MessagesTable == "" {
			missing = append(missing, "MESSAGES_TABLE")
		}
	}
	if c.SentimentBackend == SentimentBedrock && c.BedrockModelID == "" {
		missing = append(missing, "BEDROCK_MODEL_ID")
	}
	return missingErr(missing)
}

// ValidateLocal checks configuration for the single-process local server,
// which runs both roles over the in-memory bus and never publishes to SNS.
func (c *Config) ValidateLocal() error {
	if c.SlackSigningSecret == "" {
		return missingErr([]string{"SLACK_SIGNING_SECRET"})
	}
	if err := c.ValidateDispatcher(); err != nil {
		return err
	}
	if c.LocalWorkers < 1 {
		return fmt.Errorf("LOCAL_WORKERS must be at least 1")
	}
	return nil
}

func missingErr(missing []string) error {
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}
