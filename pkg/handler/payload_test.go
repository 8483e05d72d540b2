package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind PayloadKind
		wantErr  bool
	}{
		{name: "json object", body: `{"type":"url_verification","challenge":"abc"}`, wantKind: PayloadJSON},
		{name: "form", body: "command=%2Fsentiment&user_id=U1&text=2", wantKind: PayloadForm},
		{name: "json array falls back to form", body: `["a"]`, wantKind: PayloadForm},
		{name: "json null", body: `null`, wantKind: PayloadForm},
		{name: "empty", body: "", wantErr: true},
		{name: "whitespace", body: "  \n", wantErr: true},
		{name: "bad escape", body: "a=%zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParsePayload(tt.body)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, p.Kind)
		})
	}
}

func TestPayloadAccessors(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		p, err := ParsePayload(`{"type":"event_callback","event":{"type":"message"},"n":3}`)
		require.NoError(t, err)

		assert.True(t, p.Has("event"))
		assert.False(t, p.Has("command"))

		s, ok := p.String("type")
		assert.True(t, ok)
		assert.Equal(t, "event_callback", s)

		_, ok = p.String("n")
		assert.False(t, ok, "non-string value")

		raw, ok := p.Raw("event")
		assert.True(t, ok)
		assert.JSONEq(t, `{"type":"message"}`, string(raw))
	})

	t.Run("form", func(t *testing.T) {
		p, err := ParsePayload("command=%2Fdo&text=&user_id=U1")
		require.NoError(t, err)

		assert.True(t, p.Has("text"))
		assert.False(t, p.Has("event"))

		s, ok := p.String("command")
		assert.True(t, ok)
		assert.Equal(t, "/do", s)

		s, ok = p.String("text")
		assert.True(t, ok)
		assert.Empty(t, s)

		_, ok = p.String("response_url")
		assert.False(t, ok)
	})
}
