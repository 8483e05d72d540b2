package bus

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used by SNSPublisher
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSPublisher publishes messages to an SNS topic
type SNSPublisher struct {
	client   SNSAPI
	topicARN string
}

// NewSNSClient creates an SNS client from existing AWS config
func NewSNSClient(cfg aws.Config) *sns.Client {
	return sns.NewFromConfig(cfg)
}

// NewSNSPublisher creates a publisher for the given topic
func NewSNSPublisher(client SNSAPI, topicARN string) *SNSPublisher {
	return &SNSPublisher{
		client:   client,
		topicARN: topicARN,
	}
}

// Publish sends msg wrapped in the {"default": ...} envelope with its event
// type as a message attribute so subscriptions can filter on it.
func (p *SNSPublisher) Publish(ctx context.Context, msg Message) error {
	body, err := wrap(msg.Payload)
	if err != nil {
		return fmt.Errorf("wrap message: %w", err)
	}

	attrs := map[string]types.MessageAttributeValue{
		AttributeEventType: stringAttribute(string(msg.EventType)),
	}
	for k, v := range msg.Attributes {
		if k == AttributeEventType || v == "" {
			continue
		}
		attrs[k] = stringAttribute(v)
	}
	if _, ok := attrs[AttributeRequestID]; !ok && msg.ID != "" {
		attrs[AttributeRequestID] = stringAttribute(msg.ID)
	}

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn:          aws.String(p.topicARN),
		Message:           aws.String(body),
		MessageStructure:  aws.String("json"),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", msg.EventType, err)
	}
	return nil
}

func stringAttribute(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}

// FromSNS decodes a Lambda SNS delivery into a Message. The SNS message id
// becomes the message id, so redeliveries share it.
func FromSNS(record events.SNSEventRecord) (Message, error) {
	entity := record.SNS
	attrs := make(map[string]string, len(entity.MessageAttributes))
	for name, raw := range entity.MessageAttributes {
		if v, ok := snsAttributeValue(raw); ok {
			attrs[name] = v
		}
	}

	eventType := EventType(attrs[AttributeEventType])
	if eventType == "" {
		return Message{}, fmt.Errorf("sns message %s: missing %s attribute", entity.MessageID, AttributeEventType)
	}

	return Message{
		ID:         entity.MessageID,
		EventType:  eventType,
		Payload:    unwrap(entity.Message),
		Attributes: attrs,
	}, nil
}

// snsAttributeValue reads {"Type": "String", "Value": "..."} as delivered to Lambda
func snsAttributeValue(raw interface{}) (string, bool) {
	switch v := raw.(type) {
	case map[string]interface{}:
		s, ok := v["Value"].(string)
		return s, ok
	case string:
		return v, true
	}
	return "", false
}
