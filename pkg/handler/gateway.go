package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/savaki/sentiment-bot/pkg/apperr"
	"github.com/savaki/sentiment-bot/pkg/bus"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"github.com/savaki/sentiment-bot/pkg/models"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"
)

// Slack request headers
const (
	HeaderSignature   = "X-Slack-Signature"
	HeaderTimestamp   = "X-Slack-Request-Timestamp"
	HeaderRetryNum    = "X-Slack-Retry-Num"
	HeaderRetryReason = "X-Slack-Retry-Reason"
)

// AckText is the provisional reply to every accepted slash command
const AckText = "Give me a minute..."

type ack struct {
	Text         string              `json:"text"`
	ResponseType models.ResponseType `json:"response_type"`
}

// Submitter queues a bus message for background publishing
type Submitter interface {
	Submit(ctx context.Context, msg bus.Message) *bus.Handle
}

// GatewayOptions configures a Gateway
type GatewayOptions struct {
	SigningSecret  string
	MaxRequestAge  time.Duration
	Publisher      bus.Publisher
	Pool           Submitter
	PublishTimeout time.Duration
	PublishWait    time.Duration
}

// Gateway receives every webhook call: it verifies the sender, answers
// handshakes directly and hands everything else to the bus.
type Gateway struct {
	secret         string
	maxAge         time.Duration
	publisher      bus.Publisher
	pool           Submitter
	publishTimeout time.Duration
	publishWait    time.Duration
	now            func() time.Time
}

// NewGateway creates a new gateway
func NewGateway(opts GatewayOptions) *Gateway {
	return &Gateway{
		secret:         opts.SigningSecret,
		maxAge:         opts.MaxRequestAge,
		publisher:      opts.Publisher,
		pool:           opts.Pool,
		publishTimeout: opts.PublishTimeout,
		publishWait:    opts.PublishWait,
		now:            time.Now,
	}
}

// Handle processes one inbound request and always returns a well-formed
// response; failures map to 400.
func (g *Gateway) Handle(ctx context.Context, req models.InboundRequest) (resp models.HTTPResponse) {
	requestID := bus.NewID()
	log := logger.FromContext(ctx).With(zap.String("request_id", requestID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Gateway panicked", zap.Any("panic", r))
			resp = badRequest("internal error")
		}
	}()

	payload, err := ParsePayload(req.Body)
	if err != nil {
		return g.fail(log, apperr.Malformed("gateway.Parse", err))
	}

	if t, _ := payload.String("type"); t == slackevents.URLVerification {
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal([]byte(req.Body), &challenge); err != nil {
			return g.fail(log, apperr.Malformed("gateway.Challenge", err))
		}
		log.Info("Responding to Slack URL verification challenge")
		return okResponse(map[string]string{"challenge": challenge.Challenge})
	}

	if err := g.authenticate(req); err != nil {
		return g.fail(log, err)
	}

	if n := req.Header(HeaderRetryNum); n != "" {
		log.Info("Slack retry delivery",
			zap.String("retry_num", n),
			zap.String("retry_reason", req.Header(HeaderRetryReason)))
	}

	if !payload.Has("event") {
		return g.handleCommand(ctx, log, requestID, req.Body)
	}
	return g.handleEvent(ctx, log, requestID, req.Body, payload)
}

func (g *Gateway) authenticate(req models.InboundRequest) error {
	const op = "gateway.Verify"

	signature := req.Header(HeaderSignature)
	timestamp := req.Header(HeaderTimestamp)
	if signature == "" || timestamp == "" {
		return apperr.Auth(op, errors.New("missing signature headers"))
	}

	now := req.ReceivedAt
	if now.IsZero() {
		now = g.now()
	}
	if err := checkRequestAge(timestamp, now, g.maxAge); err != nil {
		return apperr.Auth(op, err)
	}

	if !Verify(signature, timestamp, req.Body, g.secret) {
		return apperr.Auth(op, errors.New("signature mismatch"))
	}
	return nil
}

func (g *Gateway) handleCommand(ctx context.Context, log *zap.Logger, requestID, body string) models.HTTPResponse {
	cmd, err := commandFromForm(body)
	if err != nil {
		return g.fail(log, err)
	}

	msg, err := bus.NewMessage(bus.EventSimpleCommand, cmd)
	if err != nil {
		return g.fail(log, apperr.Malformed("gateway.Command", err))
	}
	msg = msg.WithAttribute(bus.AttributeRequestID, requestID)

	log = log.With(zap.String("message_id", msg.ID), zap.String("command", cmd.Name))
	handle := g.pool.Submit(ctx, msg)

	waitCtx := ctx
	if g.publishWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, g.publishWait)
		defer cancel()
	}
	switch err := handle.Wait(waitCtx); {
	case err == nil:
		log.Info("Published command")
	case errors.Is(err, context.DeadlineExceeded):
		log.Warn("Command publish still in flight")
	default:
		log.Error("Failed to publish command", zap.Error(err))
	}

	return okResponse(ack{Text: AckText, ResponseType: models.ResponseEphemeral})
}

func (g *Gateway) handleEvent(ctx context.Context, log *zap.Logger, requestID, body string, payload Payload) models.HTTPResponse {
	event, forward, err := eventFromPayload(body, payload)
	if err != nil {
		return g.fail(log, err)
	}

	log = log.With(
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.Type))
	if !forward {
		log.Debug("Ignoring event", zap.String("subtype", event.SubType))
		return okResponse(map[string]bool{"ok": true})
	}

	msg, err := bus.NewMessage(bus.EventSimpleMessage, event)
	if err != nil {
		return g.fail(log, apperr.Malformed("gateway.Event", err))
	}
	msg = msg.WithAttribute(bus.AttributeRequestID, requestID)

	publishCtx := ctx
	if g.publishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = context.WithTimeout(ctx, g.publishTimeout)
		defer cancel()
	}
	if err := g.publisher.Publish(publishCtx, msg); err != nil {
		return g.fail(log, fmt.Errorf("publish message: %w", err))
	}

	log.Info("Published message", zap.String("message_id", msg.ID))
	return okResponse(map[string]bool{"ok": true})
}

func (g *Gateway) fail(log *zap.Logger, err error) models.HTTPResponse {
	kind := apperr.KindOf(err)
	log.Warn("Rejecting request", zap.Stringer("kind", kind), zap.Error(err))
	return badRequest(kind.String())
}

// commandFromForm builds the canonical command from a slash-command form
func commandFromForm(body string) (models.Command, error) {
	const op = "gateway.Command"

	r, err := http.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if err != nil {
		return models.Command{}, apperr.Malformed(op, err)
	}
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	sc, err := slack.SlashCommandParse(r)
	if err != nil {
		return models.Command{}, apperr.Malformed(op, err)
	}

	var missing []string
	for _, f := range []struct{ key, val string }{
		{"command", sc.Command},
		{"user_id", sc.UserID},
		{"response_url", sc.ResponseURL},
	} {
		if f.val == "" {
			missing = append(missing, f.key)
		}
	}
	if len(missing) > 0 {
		return models.Command{}, apperr.Malformed(op, fmt.Errorf("missing fields %v", missing))
	}

	return models.Command{
		Name:        sc.Command,
		UserID:      sc.UserID,
		RawArgs:     sc.Text,
		ResponseURL: sc.ResponseURL,
		ChannelID:   sc.ChannelID,
		TriggerID:   sc.TriggerID,
	}, nil
}

// eventFromPayload extracts the inner event of an event_callback. forward is
// true only for message events without a subtype; everything else is
// acknowledged without being parsed further.
func eventFromPayload(body string, p Payload) (event models.SlackEvent, forward bool, err error) {
	const op = "gateway.Event"

	raw, _ := p.Raw("event")
	var inner map[string]json.RawMessage
	if err := json.Unmarshal(raw, &inner); err != nil || inner == nil {
		return models.SlackEvent{}, false, apperr.Malformed(op, errors.New("event is not an object"))
	}

	// subtype presence matters even when null, which MessageEvent cannot tell apart
	var innerType, subtype string
	if t, ok := inner["type"]; ok {
		_ = json.Unmarshal(t, &innerType)
	}
	st, hasSubtype := inner["subtype"]
	if hasSubtype {
		_ = json.Unmarshal(st, &subtype)
	}
	if innerType != models.EventTypeMessage || hasSubtype {
		return models.SlackEvent{Type: innerType, SubType: subtype}, false, nil
	}

	apiEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return models.SlackEvent{}, false, apperr.Malformed(op, fmt.Errorf("parse event: %w", err))
	}
	if apiEvent.Type != slackevents.CallbackEvent {
		return models.SlackEvent{}, false, apperr.Malformed(op, fmt.Errorf("unexpected envelope %q", apiEvent.Type))
	}
	callback, ok := apiEvent.Data.(*slackevents.EventsAPICallbackEvent)
	if !ok {
		return models.SlackEvent{}, false, apperr.Malformed(op, errors.New("missing callback envelope"))
	}
	msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return models.SlackEvent{}, false, apperr.Malformed(op, fmt.Errorf("unexpected inner event %T", apiEvent.InnerEvent.Data))
	}
	if callback.EventID == "" {
		return models.SlackEvent{}, false, apperr.Malformed(op, errors.New("missing event_id"))
	}

	return models.SlackEvent{
		EventID:   callback.EventID,
		EventTime: int64(callback.EventTime),
		Type:      msg.Type,
		UserID:    msg.User,
		Text:      msg.Text,
		Channel:   msg.Channel,
	}, true, nil
}

// badRequest returns a 400 error response
func badRequest(message string) models.HTTPResponse {
	data, _ := json.Marshal(map[string]string{"error": message})
	return models.HTTPResponse{
		StatusCode: http.StatusBadRequest,
		Body:       string(data),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}

// okResponse returns a successful response
func okResponse(body interface{}) models.HTTPResponse {
	data, _ := json.Marshal(body)
	return models.HTTPResponse{
		StatusCode: http.StatusOK,
		Body:       string(data),
		Headers:    map[string]string{"Content-Type": "application/json"},
	}
}
