package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/savaki/sentiment-bot/pkg/apperr"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"github.com/savaki/sentiment-bot/pkg/models"
	"github.com/savaki/sentiment-bot/pkg/sentiment"
	"go.uber.org/zap"
)

// Command replies
const (
	DoText         = "Sure...write some more code then I can do that!"
	HelpText       = "Not sure what you mean. Try *do*."
	NotEnoughText  = "Not enough messages in that timeframe to give a sentiment score, or incorrect command arguments"
	ErrorText      = "Sorry, something went wrong processing that command."
	sentimentName  = "sentiment"
	defaultHours   = 1
	polarityPrefix = "$"
	doPrefix       = "do"
)

// MessageStore reads and writes persisted chat messages
type MessageStore interface {
	Insert(ctx context.Context, record models.MessageRecord) error
	RecentByUser(ctx context.Context, userID string, since time.Time) ([]models.MessageRecord, error)
}

// Responder delivers a command result to its response_url
type Responder interface {
	Respond(ctx context.Context, responseURL string, resp models.CommandResponse) error
}

// CommandProcessor executes slash commands and posts exactly one reply per
// command to its response_url.
type CommandProcessor struct {
	store     MessageStore
	scorer    sentiment.Scorer
	responder Responder
	now       func() time.Time
}

// NewCommandProcessor creates a new command processor
func NewCommandProcessor(store MessageStore, scorer sentiment.Scorer, responder Responder) *CommandProcessor {
	return &CommandProcessor{
		store:     store,
		scorer:    scorer,
		responder: responder,
		now:       time.Now,
	}
}

// Run executes cmd and delivers the result. Storage and scoring failures
// become a generic error reply; a failed delivery is logged and dropped.
func (p *CommandProcessor) Run(ctx context.Context, cmd models.Command) models.CommandResponse {
	log := logger.FromContext(ctx).With(
		zap.String("command", cmd.Name),
		zap.String("user_id", cmd.UserID))

	text, err := p.execute(ctx, cmd)
	if err != nil {
		log.Error("Command failed", zap.Stringer("kind", apperr.KindOf(err)), zap.Error(err))
		text = ErrorText
	}

	resp := models.NewCommandResponse(text, models.ResponseEphemeral)
	if err := p.responder.Respond(ctx, cmd.ResponseURL, resp); err != nil {
		log.Warn("Failed to deliver command response",
			zap.Stringer("kind", apperr.KindOf(err)),
			zap.Error(err))
	}
	return resp
}

func (p *CommandProcessor) execute(ctx context.Context, cmd models.Command) (string, error) {
	name := strings.TrimPrefix(cmd.Name, "/")

	switch {
	case strings.HasPrefix(name, doPrefix):
		return DoText, nil
	case strings.HasPrefix(name, polarityPrefix):
		return p.polarity(ctx, strings.TrimSpace(name[len(polarityPrefix):]+" "+cmd.RawArgs))
	case name == sentimentName:
		return p.sentiment(ctx, cmd.UserID, cmd.RawArgs)
	default:
		return HelpText, nil
	}
}

func (p *CommandProcessor) polarity(ctx context.Context, text string) (string, error) {
	scores, err := p.scorer.PolarityScores(ctx, text)
	if err != nil {
		return "", fmt.Errorf("score text: %w", err)
	}
	data, err := json.Marshal(scores)
	if err != nil {
		return "", fmt.Errorf("marshal scores: %w", err)
	}
	return string(data), nil
}

func (p *CommandProcessor) sentiment(ctx context.Context, userID, rawArgs string) (string, error) {
	hours, ok := parseHours(rawArgs)
	if !ok {
		return NotEnoughText, nil
	}

	since := p.now().Add(-time.Duration(hours) * time.Hour)
	records, err := p.store.RecentByUser(ctx, userID, since)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return NotEnoughText, nil
	}

	var total float64
	for _, r := range records {
		scores, err := p.scorer.PolarityScores(ctx, r.Text)
		if err != nil {
			return "", fmt.Errorf("score message %s: %w", r.EventID, err)
		}
		total += scores.Compound
	}

	return "Sentiment: " + formatScore(total), nil
}

// parseHours reads the hour window; empty means one hour
func parseHours(rawArgs string) (int, bool) {
	arg := strings.TrimSpace(rawArgs)
	if arg == "" {
		return defaultHours, true
	}
	n, err := strconv.Atoi(arg)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// formatScore rounds half to even at two decimals and always keeps one
// fractional digit, so 1 prints as "1.0", 0.4 as "0.4" and 0.125 as "0.12".
func formatScore(v float64) string {
	v = math.RoundToEven(v*100) / 100
	if v == 0 {
		v = 0 // normalizes -0
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
