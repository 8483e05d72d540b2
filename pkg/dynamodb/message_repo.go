package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/savaki/sentiment-bot/pkg/apperr"
	"github.com/savaki/sentiment-bot/pkg/logger"
	"github.com/savaki/sentiment-bot/pkg/models"
	"go.uber.org/zap"
)

// UserIndex is the GSI keyed on user_id (hash) and ts (range)
const UserIndex = "UserIndex"

// MessageRepository stores chat messages in a DynamoDB table keyed on event_id
type MessageRepository struct {
	client    API
	tableName string
	now       func() time.Time
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(client API, tableName string) *MessageRepository {
	return &MessageRepository{
		client:    client,
		tableName: tableName,
		now:       time.Now,
	}
}

// Insert stores a message. A second insert of the same event_id fails the
// condition check and is reported as apperr.ErrDuplicate.
func (r *MessageRepository) Insert(ctx context.Context, record models.MessageRecord) error {
	const op = "dynamodb.Insert"

	if record.Ts.IsZero() {
		record.Ts = r.now()
	}
	record.Ts = record.Ts.UTC()

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return apperr.Storage(op, fmt.Errorf("marshal message: %w", err))
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(event_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return apperr.Storage(op, apperr.ErrDuplicate)
		}
		return apperr.Storage(op, fmt.Errorf("put item: %w", err))
	}

	logger.FromContext(ctx).Debug("Saved message to DynamoDB",
		zap.String("event_id", record.EventID),
		zap.String("table", r.tableName))
	return nil
}

// RecentByUser returns the user's messages with ts >= since, oldest first
func (r *MessageRepository) RecentByUser(ctx context.Context, userID string, since time.Time) ([]models.MessageRecord, error) {
	const op = "dynamodb.RecentByUser"

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String(UserIndex),
		KeyConditionExpression: aws.String("user_id = :uid AND #ts >= :since"),
		ExpressionAttributeNames: map[string]string{
			"#ts": "ts",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid":   &types.AttributeValueMemberS{Value: userID},
			":since": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", since.Unix())},
		},
		ScanIndexForward: aws.Bool(true),
	})

	var records []models.MessageRecord
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperr.Storage(op, fmt.Errorf("query by user: %w", err))
		}

		var batch []models.MessageRecord
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, apperr.Storage(op, fmt.Errorf("unmarshal messages: %w", err))
		}
		records = append(records, batch...)
	}

	return records, nil
}
