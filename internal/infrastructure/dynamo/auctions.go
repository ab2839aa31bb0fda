package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/auction-sentry/internal/domain"
)

// auctionRecord is the archived shape of a post: the post itself plus the
// epoch attribute DynamoDB's TTL sweeper reads.
type auctionRecord struct {
	domain.AuctionPost
	ExpiresAt int64 `dynamodbav:"expires_at"`
}

// AuctionRepo archives admitted posts to the auctions table. The registry
// stays authoritative; the table is the durable copy that survives restarts.
type AuctionRepo struct {
	client    *dynamodb.Client
	tableName string
	retention time.Duration
}

func NewAuctionRepo(client *dynamodb.Client, tableName string, retention time.Duration) *AuctionRepo {
	return &AuctionRepo{client: client, tableName: tableName, retention: retention}
}

func (r *AuctionRepo) ArchivePost(ctx context.Context, post *domain.AuctionPost) error {
	ref := post.ReceivedAt
	if post.EndsAt != nil {
		ref = *post.EndsAt
	}
	item, err := attributevalue.MarshalMap(auctionRecord{
		AuctionPost: *post,
		ExpiresAt:   ref.Add(r.retention).Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal auction post: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	return err
}

// ListByAsset returns all archived posts for an asset, oldest first.
func (r *AuctionRepo) ListByAsset(ctx context.Context, assetID string) ([]domain.AuctionPost, error) {
	out, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		IndexName:              aws.String("asset_id-received_at-index"),
		KeyConditionExpression: aws.String("asset_id = :aid"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid": &types.AttributeValueMemberS{Value: assetID},
		},
	})
	if err != nil {
		return nil, err
	}
	posts := make([]domain.AuctionPost, 0, len(out.Items))
	for _, item := range out.Items {
		var rec auctionRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			return nil, err
		}
		posts = append(posts, rec.AuctionPost)
	}
	return posts, nil
}
