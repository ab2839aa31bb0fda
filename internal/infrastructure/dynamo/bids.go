package dynamo

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/auction-sentry/internal/domain"
)

// BidRepo archives confirmed bids to the bids table.
type BidRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewBidRepo(client *dynamodb.Client, tableName string) *BidRepo {
	return &BidRepo{client: client, tableName: tableName}
}

func (r *BidRepo) ArchiveBid(ctx context.Context, bid *domain.Bid) error {
	item, err := attributevalue.MarshalMap(bid)
	if err != nil {
		return fmt.Errorf("marshal bid: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListByAsset returns all archived bids for an asset in placement order.
func (r *BidRepo) ListByAsset(ctx context.Context, assetID string) ([]domain.Bid, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("asset_id-placed_at-index"),
		KeyConditionExpression: aws.String("asset_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: assetID},
		},
	})
	if err != nil {
		return nil, err
	}
	bids := make([]domain.Bid, 0, len(out.Items))
	for _, item := range out.Items {
		var b domain.Bid
		if err := attributevalue.UnmarshalMap(item, &b); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, nil
}
