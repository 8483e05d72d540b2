package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jellydator/ttlcache/v3"
	"github.com/savaki/sentiment-bot/pkg/apperr"
	"github.com/savaki/sentiment-bot/pkg/bus"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"github.com/savaki/sentiment-bot/pkg/models"
	"go.uber.org/zap"
)

// MessageWriter persists a chat message
type MessageWriter interface {
	Write(ctx context.Context, event models.SlackEvent) error
}

// CommandRunner executes a slash command
type CommandRunner interface {
	Run(ctx context.Context, cmd models.Command) models.CommandResponse
}

// Dispatcher routes bus messages to the persister or the command processor
type Dispatcher struct {
	persister MessageWriter
	commands  CommandRunner
	seen      *ttlcache.Cache[string, struct{}]
	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher that skips messages it has already
// handled within dedupTTL. A zero dedupTTL disables de-duplication.
// Expired keys are purged by a background goroutine until Close is called.
func NewDispatcher(persister MessageWriter, commands CommandRunner, dedupTTL time.Duration) *Dispatcher {
	d := &Dispatcher{
		persister: persister,
		commands:  commands,
	}
	if dedupTTL > 0 {
		d.seen = ttlcache.New(
			ttlcache.WithTTL[string, struct{}](dedupTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		)
		go d.seen.Start()
	}
	return d
}

// Close stops the de-duplication cleanup goroutine. It is safe to call more
// than once.
func (d *Dispatcher) Close() {
	if d.seen == nil {
		return
	}
	d.closeOnce.Do(d.seen.Stop)
}

// Dispatch handles a single bus message. Malformed messages are logged and
// acknowledged; storage failures are returned so the bus redelivers.
func (d *Dispatcher) Dispatch(ctx context.Context, msg bus.Message) error {
	log := logger.FromContext(ctx).With(
		zap.String("message_id", msg.ID),
		zap.String("event_type", string(msg.EventType)),
		zap.String("request_id", msg.Attributes[bus.AttributeRequestID]))

	if d.handled(msg.ID) {
		log.Info("Skipping redelivered message")
		return nil
	}

	var err error
	switch msg.EventType {
	case bus.EventSimpleMessage:
		err = d.dispatchMessage(ctx, log, msg)
	case bus.EventSimpleCommand:
		err = d.dispatchCommand(ctx, msg)
	default:
		err = apperr.Malformed("dispatcher.Dispatch", fmt.Errorf("unknown event type %q", msg.EventType))
	}

	if apperr.Is(err, apperr.KindMalformedPayload) {
		log.Warn("Dropping malformed message", zap.Stringer("kind", apperr.KindMalformedPayload), zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}

	d.remember(msg.ID)
	return nil
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, log *zap.Logger, msg bus.Message) error {
	var event models.SlackEvent
	if err := msg.Decode(&event); err != nil {
		return apperr.Malformed("dispatcher.Message", err)
	}

	key := "event:" + event.EventID
	if d.handled(key) {
		log.Info("Skipping duplicate event", zap.String("event_id", event.EventID))
		return nil
	}
	if err := d.persister.Write(ctx, event); err != nil {
		return err
	}
	d.remember(key)
	return nil
}

func (d *Dispatcher) dispatchCommand(ctx context.Context, msg bus.Message) error {
	var cmd models.Command
	if err := msg.Decode(&cmd); err != nil {
		return apperr.Malformed("dispatcher.Command", err)
	}
	d.commands.Run(ctx, cmd)
	return nil
}

// HandleSNS is the Lambda entry point for SNS deliveries. Each record is
// dispatched independently and failures are joined.
func (d *Dispatcher) HandleSNS(ctx context.Context, event events.SNSEvent) error {
	var errs []error
	for _, record := range event.Records {
		msg, err := bus.FromSNS(record)
		if err != nil {
			logger.FromContext(ctx).Warn("Dropping undecodable SNS record",
				zap.String("message_id", record.SNS.MessageID),
				zap.Stringer("kind", apperr.KindMalformedPayload),
				zap.Error(err))
			continue
		}
		if err := d.dispatchSafely(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("message %s: %w", msg.ID, err))
		}
	}
	return errors.Join(errs...)
}

// Consume dispatches messages from an in-process bus until ctx is done or
// the bus is closed.
func (d *Dispatcher) Consume(ctx context.Context, src *bus.Memory) {
	for {
		msg, ok := src.Consume(ctx)
		if !ok {
			return
		}
		if err := d.dispatchSafely(ctx, msg); err != nil {
			logger.FromContext(ctx).Error("Dispatch failed",
				zap.String("message_id", msg.ID),
				zap.Stringer("kind", apperr.KindOf(err)),
				zap.Error(err))
		}
	}
}

func (d *Dispatcher) dispatchSafely(ctx context.Context, msg bus.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.FromContext(ctx).Error("Dispatch panicked", zap.Any("panic", r), zap.String("message_id", msg.ID))
			err = fmt.Errorf("dispatch panicked: %v", r)
		}
	}()
	return d.Dispatch(ctx, msg)
}

func (d *Dispatcher) handled(key string) bool {
	return d.seen != nil && key != "" && d.seen.Has(key)
}

func (d *Dispatcher) remember(key string) {
	if d.seen != nil && key != "" && key != "event:" {
		d.seen.Set(key, struct{}{}, ttlcache.DefaultTTL)
	}
}
