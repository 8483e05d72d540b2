package handler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/savaki/sentiment-bot/pkg/apperr"
	"github.com/savaki/sentiment-bot/pkg/models"
	"github.com/savaki/sentiment-bot/pkg/sentiment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockStore implements MessageStore for testing
type mockStore struct {
	InsertFunc       func(ctx context.Context, record models.MessageRecord) error
	RecentByUserFunc func(ctx context.Context, userID string, since time.Time) ([]models.MessageRecord, error)
}

func (m *mockStore) Insert(ctx context.Context, record models.MessageRecord) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, record)
	}
	return nil
}

func (m *mockStore) RecentByUser(ctx context.Context, userID string, since time.Time) ([]models.MessageRecord, error) {
	if m.RecentByUserFunc != nil {
		return m.RecentByUserFunc(ctx, userID, since)
	}
	return nil, nil
}

// mockScorer implements sentiment.Scorer for testing
type mockScorer struct {
	PolarityScoresFunc func(ctx context.Context, text string) (sentiment.Scores, error)
}

func (m *mockScorer) PolarityScores(ctx context.Context, text string) (sentiment.Scores, error) {
	return m.PolarityScoresFunc(ctx, text)
}

// mockResponder records every delivered response
type mockResponder struct {
	mu    sync.Mutex
	calls []models.CommandResponse
	urls  []string
	err   error
}

func (m *mockResponder) Respond(_ context.Context, responseURL string, resp models.CommandResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, resp)
	m.urls = append(m.urls, responseURL)
	return m.err
}

func scoresByText(scores map[string]float64) *mockScorer {
	return &mockScorer{
		PolarityScoresFunc: func(_ context.Context, text string) (sentiment.Scores, error) {
			return sentiment.Scores{Compound: scores[text]}, nil
		},
	}
}

func recordsFor(texts ...string) []models.MessageRecord {
	records := make([]models.MessageRecord, 0, len(texts))
	for i, text := range texts {
		records = append(records, models.MessageRecord{EventID: string(rune('a' + i)), UserID: "U1", Text: text})
	}
	return records
}

func TestCommandGrammar(t *testing.T) {
	tests := []struct {
		name    string
		command string
		args    string
		want    string
	}{
		{name: "do", command: "/do", want: DoText},
		{name: "do prefix", command: "/dothething", args: "now", want: DoText},
		{name: "do without slash", command: "do", want: DoText},
		{name: "unknown", command: "/weather", args: "boston", want: HelpText},
		{name: "case sensitive", command: "/Do", want: HelpText},
		{name: "sentiment prefix is not sentiment", command: "/sentiments", want: HelpText},
		{name: "empty", command: "", want: HelpText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{
				RecentByUserFunc: func(context.Context, string, time.Time) ([]models.MessageRecord, error) {
					t.Error("unexpected storage access")
					return nil, nil
				},
			}
			responder := &mockResponder{}
			p := NewCommandProcessor(store, sentiment.NewAnalyzer(), responder)

			resp := p.Run(context.Background(), models.Command{
				Name:        tt.command,
				UserID:      "U1",
				RawArgs:     tt.args,
				ResponseURL: "https://hooks.slack.com/commands/1",
			})

			assert.Equal(t, tt.want, resp.Text)
			assert.Equal(t, models.ResponseEphemeral, resp.ResponseType)
			require.Len(t, responder.calls, 1)
			assert.Equal(t, resp, responder.calls[0])
			assert.Equal(t, "https://hooks.slack.com/commands/1", responder.urls[0])
		})
	}
}

func TestCommandPolarity(t *testing.T) {
	store := &mockStore{
		RecentByUserFunc: func(context.Context, string, time.Time) ([]models.MessageRecord, error) {
			t.Error("unexpected storage access")
			return nil, nil
		},
	}
	var scored string
	scorer := &mockScorer{
		PolarityScoresFunc: func(ctx context.Context, text string) (sentiment.Scores, error) {
			scored = text
			return sentiment.NewAnalyzer().PolarityScores(ctx, text)
		},
	}
	responder := &mockResponder{}
	p := NewCommandProcessor(store, scorer, responder)

	resp := p.Run(context.Background(), models.Command{Name: "/$", RawArgs: "I love this", ResponseURL: "u"})
	assert.Equal(t, "I love this", scored)

	var scores sentiment.Scores
	require.NoError(t, json.Unmarshal([]byte(resp.Text), &scores))
	assert.GreaterOrEqual(t, scores.Compound, -1.0)
	assert.LessOrEqual(t, scores.Compound, 1.0)
	assert.Greater(t, scores.Compound, 0.0)
	require.Len(t, responder.calls, 1)

	p.Run(context.Background(), models.Command{Name: "/$I", RawArgs: "love this", ResponseURL: "u"})
	assert.Equal(t, "I love this", scored)
}

func TestCommandSentiment(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		args      string
		records   []models.MessageRecord
		scores    map[string]float64
		wantSince time.Time
		want      string
	}{
		{
			name:      "sums compound scores",
			args:      "3",
			records:   recordsFor("a", "b", "c"),
			scores:    map[string]float64{"a": 0.5, "b": -0.2, "c": 0.1},
			wantSince: fixed.Add(-3 * time.Hour),
			want:      "Sentiment: 0.4",
		},
		{
			name:      "empty args default to one hour",
			args:      "",
			records:   recordsFor("a"),
			scores:    map[string]float64{"a": 0.6369},
			wantSince: fixed.Add(-time.Hour),
			want:      "Sentiment: 0.64",
		},
		{
			name:      "whole number keeps a decimal",
			args:      "1",
			records:   recordsFor("a", "b"),
			scores:    map[string]float64{"a": 0.5, "b": 0.5},
			wantSince: fixed.Add(-time.Hour),
			want:      "Sentiment: 1.0",
		},
		{
			name:      "negative zero",
			args:      "1",
			records:   recordsFor("a"),
			scores:    map[string]float64{"a": -0.001},
			wantSince: fixed.Add(-time.Hour),
			want:      "Sentiment: 0.0",
		},
		{
			name:      "no messages",
			args:      "24",
			wantSince: fixed.Add(-24 * time.Hour),
			want:      NotEnoughText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSince time.Time
			store := &mockStore{
				RecentByUserFunc: func(_ context.Context, userID string, since time.Time) ([]models.MessageRecord, error) {
					assert.Equal(t, "U1", userID)
					gotSince = since
					return tt.records, nil
				},
			}
			responder := &mockResponder{}
			p := NewCommandProcessor(store, scoresByText(tt.scores), responder)
			p.now = func() time.Time { return fixed }

			resp := p.Run(context.Background(), models.Command{Name: "/sentiment", UserID: "U1", RawArgs: tt.args, ResponseURL: "u"})
			assert.Equal(t, tt.want, resp.Text)
			assert.True(t, gotSince.Equal(tt.wantSince), "since = %v, want %v", gotSince, tt.wantSince)
			assert.Len(t, responder.calls, 1)
		})
	}
}

func TestCommandSentimentBadArgs(t *testing.T) {
	for _, args := range []string{"abc", "0", "-2", "1.5"} {
		t.Run(args, func(t *testing.T) {
			store := &mockStore{
				RecentByUserFunc: func(context.Context, string, time.Time) ([]models.MessageRecord, error) {
					t.Error("unexpected storage access")
					return nil, nil
				},
			}
			responder := &mockResponder{}
			p := NewCommandProcessor(store, sentiment.NewAnalyzer(), responder)

			resp := p.Run(context.Background(), models.Command{Name: "/sentiment", UserID: "U1", RawArgs: args, ResponseURL: "u"})
			assert.Equal(t, NotEnoughText, resp.Text)
			assert.Len(t, responder.calls, 1)
		})
	}
}

func TestCommandFailuresStillRespond(t *testing.T) {
	tests := []struct {
		name   string
		store  *mockStore
		scorer *mockScorer
		cmd    models.Command
	}{
		{
			name: "storage error",
			store: &mockStore{
				RecentByUserFunc: func(context.Context, string, time.Time) ([]models.MessageRecord, error) {
					return nil, apperr.Storage("test", errors.New("connection refused"))
				},
			},
			scorer: scoresByText(nil),
			cmd:    models.Command{Name: "/sentiment", UserID: "U1", ResponseURL: "u"},
		},
		{
			name: "scoring error",
			store: &mockStore{
				RecentByUserFunc: func(context.Context, string, time.Time) ([]models.MessageRecord, error) {
					return recordsFor("a"), nil
				},
			},
			scorer: &mockScorer{
				PolarityScoresFunc: func(context.Context, string) (sentiment.Scores, error) {
					return sentiment.Scores{}, errors.New("throttled")
				},
			},
			cmd: models.Command{Name: "/sentiment", UserID: "U1", ResponseURL: "u"},
		},
		{
			name:  "polarity scoring error",
			store: &mockStore{},
			scorer: &mockScorer{
				PolarityScoresFunc: func(context.Context, string) (sentiment.Scores, error) {
					return sentiment.Scores{}, errors.New("throttled")
				},
			},
			cmd: models.Command{Name: "/$", RawArgs: "hi", ResponseURL: "u"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responder := &mockResponder{}
			p := NewCommandProcessor(tt.store, tt.scorer, responder)

			resp := p.Run(context.Background(), tt.cmd)
			assert.Equal(t, ErrorText, resp.Text)
			require.Len(t, responder.calls, 1)
			assert.Equal(t, ErrorText, responder.calls[0].Text)
		})
	}
}

func TestCommandCallbackFailureSwallowed(t *testing.T) {
	responder := &mockResponder{err: apperr.Callback("test", errors.New("410 gone"))}
	p := NewCommandProcessor(&mockStore{}, sentiment.NewAnalyzer(), responder)

	resp := p.Run(context.Background(), models.Command{Name: "/do", ResponseURL: "u"})
	assert.Equal(t, DoText, resp.Text)
	assert.Len(t, responder.calls, 1)
}

func TestFormatScore(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0.4, "0.4"},
		{0.39999999, "0.4"},
		{1, "1.0"},
		{-1.256, "-1.26"},
		{0, "0.0"},
		{-0.004, "0.0"},
		{12.3456, "12.35"},
		{0.125, "0.12"},
		{-0.125, "-0.12"},
		{0.375, "0.38"},
	}

	for _, tt := range tests {
		if got := formatScore(tt.in); got != tt.want {
			t.Errorf("formatScore(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
