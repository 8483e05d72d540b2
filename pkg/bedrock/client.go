package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/savaki/sentiment-bot/pkg/sentiment"
)

const (
	// DefaultModelID is used when no model is configured
	DefaultModelID = "anthropic.claude-3-5-sonnet-20241022-v2:0"

	anthropicVersion = "bedrock-2023-05-31"
	maxTokens        = 256
)

// InvokeModelAPI is the subset of the Bedrock runtime client used here
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Client scores text by asking a Claude model on Bedrock for polarity scores
type Client struct {
	api     InvokeModelAPI
	modelID string
}

// NewClient creates a new Bedrock client
func NewClient(cfg aws.Config, modelID string) *Client {
	return NewClientWithAPI(bedrockruntime.NewFromConfig(cfg), modelID)
}

// NewClientWithAPI creates a client around an existing runtime API
func NewClientWithAPI(api InvokeModelAPI, modelID string) *Client {
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &Client{
		api:     api,
		modelID: modelID,
	}
}

// Message is a single turn in the Claude Messages API
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents a request to Bedrock (Claude Messages API format)
type Request struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []Message `json:"messages"`
	System           string    `json:"system,omitempty"`
	Temperature      float64   `json:"temperature"`
}

// Response represents a response from Bedrock
type Response struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// PolarityScores implements sentiment.Scorer
func (c *Client) PolarityScores(ctx context.Context, text string) (sentiment.Scores, error) {
	req := Request{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		Messages:         []Message{{Role: "user", Content: text}},
		System:           systemPrompt,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return sentiment.Scores{}, fmt.Errorf("marshal request: %w", err)
	}

	output, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return sentiment.Scores{}, fmt.Errorf("invoke bedrock model: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return sentiment.Scores{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(resp.Content) == 0 {
		return sentiment.Scores{}, fmt.Errorf("empty response from bedrock")
	}

	return parseScores(resp.Content[0].Text)
}

// parseScores pulls the first JSON object out of the model's reply
func parseScores(text string) (sentiment.Scores, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return sentiment.Scores{}, fmt.Errorf("no scores in model reply: %q", text)
	}

	var s sentiment.Scores
	if err := json.Unmarshal([]byte(text[start:end+1]), &s); err != nil {
		return sentiment.Scores{}, fmt.Errorf("decode scores: %w", err)
	}

	s.Compound = clamp(s.Compound, -1, 1)
	s.Negative = clamp(s.Negative, 0, 1)
	s.Neutral = clamp(s.Neutral, 0, 1)
	s.Positive = clamp(s.Positive, 0, 1)
	return s, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

const systemPrompt = `You are a sentiment analysis engine. Rate the sentiment of the user's message.

Reply with a single JSON object and nothing else, using exactly these keys:
{"neg": <0..1>, "neu": <0..1>, "pos": <0..1>, "compound": <-1..1>}

neg, neu and pos are proportions that sum to 1. compound is the overall polarity,
where -1 is most negative, 0 is neutral and 1 is most positive.`
