package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/savaki/sentiment-bot/pkg/bedrock"
	"github.com/savaki/sentiment-bot/pkg/bus"
	"github.com/savaki/sentiment-bot/pkg/config"
	"github.com/savaki/sentiment-bot/pkg/dynamodb"
	"github.com/savaki/sentiment-bot/pkg/handler"
	"github.com/savaki/sentiment-bot/pkg/models"
	"github.com/savaki/sentiment-bot/pkg/sentiment"
	"github.com/savaki/sentiment-bot/pkg/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageStore(t *testing.T) {
	awsCfg := aws.Config{Region: "us-east-1"}

	t.Run("sqlite", func(t *testing.T) {
		cfg := config.Default()
		cfg.StoreDriver = config.DriverSQLite
		cfg.DBPath = filepath.Join(t.TempDir(), "messages.db")
		cfg.DBTable = "messages"

		store, err := NewMessageStore(cfg, awsCfg)
		require.NoError(t, err)
		assert.IsType(t, &sqlstore.Store{}, store)
	})

	t.Run("dynamodb", func(t *testing.T) {
		cfg := config.Default()
		cfg.StoreDriver = config.DriverDynamoDB

		store, err := NewMessageStore(cfg, awsCfg)
		require.NoError(t, err)
		assert.IsType(t, &dynamodb.MessageRepository{}, store)
	})

	t.Run("unknown", func(t *testing.T) {
		cfg := config.Default()
		cfg.StoreDriver = "cassandra"

		_, err := NewMessageStore(cfg, awsCfg)
		assert.Error(t, err)
	})
}

func TestNewScorer(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, &sentiment.Analyzer{}, NewScorer(cfg, aws.Config{}))

	cfg.SentimentBackend = config.SentimentBedrock
	assert.IsType(t, &bedrock.Client{}, NewScorer(cfg, aws.Config{Region: "us-east-1"}))
}

// TestLocalPipeline runs a signed command through the gateway, the memory
// bus and the dispatcher, ending at the response_url.
func TestLocalPipeline(t *testing.T) {
	responses := make(chan string, 1)
	srv := newCallbackServer(t, responses)

	cfg := config.Default()
	cfg.SlackSigningSecret = "secret"
	cfg.StoreDriver = config.DriverSQLite
	cfg.DBPath = filepath.Join(t.TempDir(), "messages.db")
	cfg.DBTable = "messages"
	cfg.CallbackTimeout = time.Second

	mem := bus.NewMemory(8)
	defer mem.Close()

	gw, pool := NewGateway(cfg, mem)
	defer pool.Close()

	d, err := NewDispatcher(cfg, aws.Config{})
	require.NoError(t, err)
	defer d.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Consume(ctx, mem)

	body := "command=%2Fdo&user_id=U1&response_url=" + url.QueryEscape(srv.URL)
	ts := "1700000000"
	resp := gw.Handle(ctx, models.InboundRequest{
		Body: body,
		Headers: map[string]string{
			handler.HeaderTimestamp: ts,
			handler.HeaderSignature: handler.Sign(ts, body, cfg.SlackSigningSecret),
		},
		ReceivedAt: time.Unix(1700000010, 0),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case text := <-responses:
		assert.Equal(t, handler.DoText, text)
	case <-time.After(2 * time.Second):
		t.Fatal("no callback received")
	}
}

func newCallbackServer(t *testing.T, responses chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var resp models.CommandResponse
		if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
			t.Errorf("decode callback: %v", err)
		}
		responses <- resp.Text
	}))
	t.Cleanup(srv.Close)
	return srv
}
