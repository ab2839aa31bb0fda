package domain

import "time"

// ReminderState tracks a reminder through its lifecycle.
// Transitions: scheduled → fired (exactly once) or scheduled → cancelled.
type ReminderState string

const (
	ReminderScheduled ReminderState = "scheduled"
	ReminderFired     ReminderState = "fired"
	ReminderCancelled ReminderState = "cancelled"
)

// ReminderKey is the composite identity of a reminder. At most one reminder
// per key is in state scheduled at any time.
type ReminderKey struct {
	UserID  string
	AssetID string
}

// Reminder is a user-owned request to be notified at DueAt about an asset.
type Reminder struct {
	ReminderID string        `json:"id"`
	UserID     string        `json:"user_id"`
	AssetID    string        `json:"asset_id"`
	ChannelID  string        `json:"channel_id"`
	DueAt      time.Time     `json:"due_at"`
	State      ReminderState `json:"state"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (r *Reminder) Key() ReminderKey {
	return ReminderKey{UserID: r.UserID, AssetID: r.AssetID}
}

// Notification is a message to be delivered to the messaging platform.
type Notification struct {
	ChannelID string
	UserID    string
	AssetID   string
	Text      string
}
