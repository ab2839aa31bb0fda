package domain

import "time"

// ValidationState is the tri-state outcome of the summarization gate.
type ValidationState string

const (
	ValidationPending     ValidationState = "pending"
	ValidationValid       ValidationState = "valid"
	ValidationUnvalidated ValidationState = "unvalidated-after-error"
)

// AuctionPost is a correlated auction announcement. Immutable after admission.
type AuctionPost struct {
	AssetID      string          `json:"asset_id" dynamodbav:"asset_id"`
	SourcePostID string          `json:"source_post_id" dynamodbav:"source_post_id"`
	ChannelID    string          `json:"channel_id" dynamodbav:"channel_id"`
	Summary      string          `json:"summary,omitempty" dynamodbav:"summary"`
	Validation   ValidationState `json:"validation" dynamodbav:"validation"`
	EndsAt       *time.Time      `json:"ends_at,omitempty" dynamodbav:"ends_at,omitempty"`
	ReceivedAt   time.Time       `json:"received_at" dynamodbav:"received_at"`
}

// Judgment is the summarization collaborator's verdict on a post.
type Judgment struct {
	Summary string `json:"summary"`
	Valid   bool   `json:"valid"`
}
