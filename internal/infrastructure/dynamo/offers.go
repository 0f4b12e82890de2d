package dynamo

import (
	"context"
	"fmt"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-hr-sync/internal/domain"
)

// OfferRepo provides typed DynamoDB operations for the offers table.
type OfferRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewOfferRepo(client *dynamodb.Client, tableName string) *OfferRepo {
	return &OfferRepo{client: client, tableName: tableName}
}

func (r *OfferRepo) Put(ctx context.Context, o *domain.Offer) error {
	item, err := attributevalue.MarshalMap(o)
	if err != nil {
		return fmt.Errorf("marshal offer: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListActive returns active offers, newest first. The table is small, so
// a filtered scan is enough.
func (r *OfferRepo) ListActive(ctx context.Context) ([]domain.Offer, error) {
	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#a = :t"),
		ExpressionAttributeNames: map[string]string{"#a": fieldIsActive},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberBOOL{Value: true},
		},
	})
	offers := []domain.Offer{}
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var batch []domain.Offer
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, err
		}
		offers = append(offers, batch...)
	}
	sortOffersNewestFirst(offers)
	return offers, nil
}

func sortOffersNewestFirst(offers []domain.Offer) {
	sort.SliceStable(offers, func(i, j int) bool {
		return offers[i].CreatedAt.After(offers[j].CreatedAt)
	})
}
