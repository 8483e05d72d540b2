package models

import (
	"strings"
	"time"
)

// InboundRequest is a single webhook call as received from the platform
type InboundRequest struct {
	Body       string
	Headers    map[string]string
	ReceivedAt time.Time
}

// Header returns the value of the named header, matching case-insensitively
// since API Gateway HTTP APIs lowercase header names.
func (r InboundRequest) Header(name string) string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HTTPResponse is the proxy-integration response returned to the caller
type HTTPResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
}

// SlackEvent is a normalized conversational event taken from an
// event_callback payload.
type SlackEvent struct {
	EventID   string `json:"event_id"`
	EventTime int64  `json:"event_time"`
	Type      string `json:"type"`
	SubType   string `json:"subtype,omitempty"`
	UserID    string `json:"user"`
	Text      string `json:"text"`
	Channel   string `json:"channel,omitempty"`
}

// EventTypeMessage is the Slack inner event type for channel messages
const EventTypeMessage = "message"

// MessageRecord is a persisted chat message
type MessageRecord struct {
	EventID string    `dynamodbav:"event_id"`
	UserID  string    `dynamodbav:"user_id"`
	Text    string    `dynamodbav:"text"`
	Ts      time.Time `dynamodbav:"ts,unixtime"`
}

// NewMessageRecord maps an event onto the persisted record shape
func NewMessageRecord(event SlackEvent) MessageRecord {
	return MessageRecord{
		EventID: event.EventID,
		UserID:  event.UserID,
		Text:    event.Text,
	}
}
