package dynamo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-hr-sync/internal/config"
)

// Bootstrap creates all portal tables and GSIs that don't exist yet. It is
// safe to call on every startup.
func Bootstrap(ctx context.Context, client *dynamodb.Client, tables config.DynamoTables, logger *slog.Logger) {
	logger = logger.With("component", "dynamo.bootstrap")
	for _, in := range tableSpecs(tables) {
		createTable(ctx, client, in, logger)
	}
	enableTTL(ctx, client, tables.UserVerifications, "expires_at", logger)
}

func tableSpecs(tables config.DynamoTables) []*dynamodb.CreateTableInput {
	return []*dynamodb.CreateTableInput{
		{
			TableName:   aws.String(tables.Users),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				strAttr("user_id"), strAttr("employee_code"), strAttr("email"), strAttr("mobile"),
			},
			KeySchema: hashKey("user_id"),
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi("employee_code-index", "employee_code", ""),
				gsi("email-index", "email", ""),
				gsi("mobile-index", "mobile", ""),
			},
		},
		{
			TableName:            aws.String(tables.Sessions),
			BillingMode:          types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{strAttr("session_id"), strAttr("user_id")},
			KeySchema:            hashKey("session_id"),
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi("user_id-index", "user_id", ""),
			},
		},
		{
			TableName:   aws.String(tables.Devices),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				strAttr("device_id"), strAttr("user_id"), strAttr("device_uuid"),
			},
			KeySchema: hashKey("device_id"),
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi("user_id-index", "user_id", ""),
				gsi("device_uuid-index", "device_uuid", ""),
			},
		},
		{
			TableName:   aws.String(tables.Notifications),
			BillingMode: types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{
				strAttr("notification_id"), strAttr("user_id"), strAttr("created_at"),
			},
			KeySchema: hashKey("notification_id"),
			GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
				gsi("user_id-created_at-index", "user_id", "created_at"),
			},
		},
		{
			TableName:            aws.String(tables.Offers),
			BillingMode:          types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{strAttr("offer_id")},
			KeySchema:            hashKey("offer_id"),
		},
		{
			TableName:            aws.String(tables.UserVerifications),
			BillingMode:          types.BillingModePayPerRequest,
			AttributeDefinitions: []types.AttributeDefinition{strAttr("user_id"), strAttr("type")},
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("user_id"), KeyType: types.KeyTypeHash},
				{AttributeName: aws.String("type"), KeyType: types.KeyTypeRange},
			},
		},
	}
}

func strAttr(name string) types.AttributeDefinition {
	return types.AttributeDefinition{AttributeName: aws.String(name), AttributeType: types.ScalarAttributeTypeS}
}

func hashKey(name string) []types.KeySchemaElement {
	return []types.KeySchemaElement{{AttributeName: aws.String(name), KeyType: types.KeyTypeHash}}
}

// gsi builds a GSI descriptor. If sortKey is empty, only a hash key is added.
func gsi(indexName, hashKey, sortKey string) types.GlobalSecondaryIndex {
	ks := []types.KeySchemaElement{
		{AttributeName: aws.String(hashKey), KeyType: types.KeyTypeHash},
	}
	if sortKey != "" {
		ks = append(ks, types.KeySchemaElement{
			AttributeName: aws.String(sortKey), KeyType: types.KeyTypeRange,
		})
	}
	return types.GlobalSecondaryIndex{
		IndexName:  aws.String(indexName),
		KeySchema:  ks,
		Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
	}
}

func createTable(ctx context.Context, client *dynamodb.Client, input *dynamodb.CreateTableInput, logger *slog.Logger) {
	_, err := client.CreateTable(ctx, input)
	if err == nil {
		logger.Info("created table", "table", *input.TableName)
		return
	}
	var riue *types.ResourceInUseException
	if !errors.As(err, &riue) {
		logger.Warn("could not create table", "table", *input.TableName, "err", err)
	}
}

func enableTTL(ctx context.Context, client *dynamodb.Client, tableName, ttlAttr string, logger *slog.Logger) {
	_, err := client.UpdateTimeToLive(ctx, &dynamodb.UpdateTimeToLiveInput{
		TableName: aws.String(tableName),
		TimeToLiveSpecification: &types.TimeToLiveSpecification{
			Enabled:       aws.Bool(true),
			AttributeName: aws.String(ttlAttr),
		},
	})
	if err != nil {
		logger.Warn("could not enable TTL", "table", tableName, "err", err)
	}
}
