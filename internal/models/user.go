package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a recognized member of one tenant.
// TokensReceived and TokensSent are recomputed from the ledger and may lag it briefly.
type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	SlackUserID    string    `json:"slack_user_id" db:"slack_user_id"`
	DisplayName    *string   `json:"display_name" db:"display_name"`
	TokensReceived int       `json:"tokens_received" db:"tokens_received"`
	TokensSent     int       `json:"tokens_sent" db:"tokens_sent"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
