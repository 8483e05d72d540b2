package models

// Command is a slash-command invocation. It is the canonical payload carried
// on the bus for Simple_Command messages.
type Command struct {
	Name        string `json:"command"`
	UserID      string `json:"user_id"`
	RawArgs     string `json:"text"`
	ResponseURL string `json:"response_url"`
	ChannelID   string `json:"channel_id,omitempty"`
	TriggerID   string `json:"trigger_id,omitempty"`
}

// ResponseType controls who sees a command response
type ResponseType string

const (
	ResponseEphemeral ResponseType = "ephemeral"
	ResponseInChannel ResponseType = "in_channel"
)

// CommandResponse is POSTed to a command's response_url
type CommandResponse struct {
	StatusCode   int               `json:"statusCode"`
	Headers      map[string]string `json:"headers"`
	Text         string            `json:"text"`
	ResponseType ResponseType      `json:"response_type"`
}

// NewCommandResponse builds a response with the JSON envelope fields set
func NewCommandResponse(text string, responseType ResponseType) CommandResponse {
	return CommandResponse{
		StatusCode:   200,
		Headers:      map[string]string{"Content-Type": "application/json"},
		Text:         text,
		ResponseType: responseType,
	}
}
