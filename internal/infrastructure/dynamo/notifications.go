package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-hr-sync/internal/domain"
	"golang.org/x/sync/errgroup"
)

const markAllConcurrency = 8

// NotificationRepo provides typed DynamoDB operations for the notifications table.
type NotificationRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewNotificationRepo(client *dynamodb.Client, tableName string) *NotificationRepo {
	return &NotificationRepo{client: client, tableName: tableName}
}

func (r *NotificationRepo) Put(ctx context.Context, n *domain.Notification) error {
	item, err := attributevalue.MarshalMap(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListRecent returns the newest limit notifications of userID, newest first.
func (r *NotificationRepo) ListRecent(ctx context.Context, userID string, limit int32) ([]domain.Notification, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("user_id-created_at-index"),
		KeyConditionExpression: aws.String("user_id = :uid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(limit),
	})
	if err != nil {
		return nil, err
	}
	notifications := make([]domain.Notification, 0, len(out.Items))
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &notifications); err != nil {
		return nil, err
	}
	return notifications, nil
}

// CountUnread counts every unread notification of userID across all pages.
func (r *NotificationRepo) CountUnread(ctx context.Context, userID string) (int, error) {
	p := dynamodb.NewQueryPaginator(r.client, r.unreadQuery(userID, types.SelectCount))
	total := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		total += int(page.Count)
	}
	return total, nil
}

// MarkAsRead flips one notification owned by userID. It is idempotent.
func (r *NotificationRepo) MarkAsRead(ctx context.Context, userID, notificationID string) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldIsRead:    true,
		fieldUpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	ue.Names["#owner"] = fieldUserID
	ue.Values[":owner"] = &types.AttributeValueMemberS{Value: userID}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       strKey("notification_id", notificationID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#owner = :owner"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	return notFoundIfConditionFailed(err, "notification")
}

// MarkAllRead flips every unread notification of userID and reports how
// many were changed.
func (r *NotificationRepo) MarkAllRead(ctx context.Context, userID string) (int, error) {
	in := r.unreadQuery(userID, types.SelectSpecificAttributes)
	in.ProjectionExpression = aws.String("notification_id")
	p := dynamodb.NewQueryPaginator(r.client, in)

	var ids []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		for _, item := range page.Items {
			if v, ok := item["notification_id"].(*types.AttributeValueMemberS); ok {
				ids = append(ids, v.Value)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(markAllConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			return r.MarkAsRead(gctx, userID, id)
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (r *NotificationRepo) unreadQuery(userID string, sel types.Select) *dynamodb.QueryInput {
	return &dynamodb.QueryInput{
		TableName:                aws.String(r.tableName),
		IndexName:                aws.String("user_id-created_at-index"),
		KeyConditionExpression:   aws.String("user_id = :uid"),
		FilterExpression:         aws.String("#r = :f"),
		ExpressionAttributeNames: map[string]string{"#r": fieldIsRead},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uid": &types.AttributeValueMemberS{Value: userID},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
		},
		Select: sel,
	}
}
