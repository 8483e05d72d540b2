package handler

import (
	"context"
	"errors"

	"github.com/savaki/sentiment-bot/pkg/apperr"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"github.com/savaki/sentiment-bot/pkg/models"
	"go.uber.org/zap"
)

// Persister writes chat messages to storage
type Persister struct {
	store MessageStore
}

// NewPersister creates a new persister
func NewPersister(store MessageStore) *Persister {
	return &Persister{store: store}
}

// Write stores event as a message record. A record that already exists is
// left untouched and reported as success.
func (p *Persister) Write(ctx context.Context, event models.SlackEvent) error {
	log := logger.FromContext(ctx).With(
		zap.String("event_id", event.EventID),
		zap.String("user_id", event.UserID))

	err := p.store.Insert(ctx, models.NewMessageRecord(event))
	switch {
	case err == nil:
		log.Info("Persisted message")
		return nil
	case errors.Is(err, apperr.ErrDuplicate):
		log.Info("Message already persisted")
		return nil
	default:
		if apperr.KindOf(err) != apperr.KindStorage {
			err = apperr.Storage("persister.Write", err)
		}
		log.Error("Failed to persist message", zap.Stringer("kind", apperr.KindStorage), zap.Error(err))
		return err
	}
}
