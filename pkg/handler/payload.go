package handler

import (
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

// PayloadKind records which encoding a request body was parsed from
type PayloadKind int

const (
	PayloadJSON PayloadKind = iota + 1
	PayloadForm
)

func (k PayloadKind) String() string {
	switch k {
	case PayloadJSON:
		return "json"
	case PayloadForm:
		return "form"
	default:
		return "unknown"
	}
}

var errEmptyPayload = errors.New("empty payload")

// Payload is a request body parsed either as a JSON object (event callbacks,
// handshakes) or as a URL-encoded form (slash commands).
type Payload struct {
	Kind   PayloadKind
	fields map[string]json.RawMessage
	form   url.Values
}

// ParsePayload tries a JSON object first and falls back to form encoding
func ParsePayload(body string) (Payload, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return Payload{}, errEmptyPayload
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &fields); err == nil && fields != nil {
		return Payload{Kind: PayloadJSON, fields: fields}, nil
	}

	form, err := url.ParseQuery(trimmed)
	if err != nil {
		return Payload{}, err
	}
	if len(form) == 0 {
		return Payload{}, errEmptyPayload
	}
	return Payload{Kind: PayloadForm, form: form}, nil
}

// Has reports whether key is present, regardless of its value
func (p Payload) Has(key string) bool {
	switch p.Kind {
	case PayloadJSON:
		_, ok := p.fields[key]
		return ok
	case PayloadForm:
		_, ok := p.form[key]
		return ok
	}
	return false
}

// String returns the value of key when it is a string
func (p Payload) String(key string) (string, bool) {
	switch p.Kind {
	case PayloadJSON:
		raw, ok := p.fields[key]
		if !ok {
			return "", false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case PayloadForm:
		if _, ok := p.form[key]; !ok {
			return "", false
		}
		return p.form.Get(key), true
	}
	return "", false
}

// Raw returns the JSON encoding of key. Form values are expected to hold
// JSON text themselves.
func (p Payload) Raw(key string) (json.RawMessage, bool) {
	switch p.Kind {
	case PayloadJSON:
		raw, ok := p.fields[key]
		return raw, ok
	case PayloadForm:
		if _, ok := p.form[key]; !ok {
			return nil, false
		}
		return json.RawMessage(p.form.Get(key)), true
	}
	return nil, false
}
