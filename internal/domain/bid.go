package domain

import "time"

// Bid is a confirmed bid on a tracked auction.
type Bid struct {
	BidID    string    `json:"id" dynamodbav:"bid_id"`
	AssetID  string    `json:"asset_id" dynamodbav:"asset_id"`
	UserID   string    `json:"user_id" dynamodbav:"user_id"`
	Amount   int64     `json:"amount" dynamodbav:"amount"`
	PlacedAt time.Time `json:"placed_at" dynamodbav:"placed_at"`
}
