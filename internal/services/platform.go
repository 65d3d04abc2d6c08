package services

import (
	"context"

	"goodnoodle/internal/models"
)

// ChatPlatform is the outbound side of the chat platform. Every call acts with the
// bot token of the tenant the event came from.
type ChatPlatform interface {
	AddReaction(ctx context.Context, botToken, channel, timestamp, name string) error
	UserDisplayName(ctx context.Context, botToken, userID string) (string, error)
	PublishHome(ctx context.Context, botToken, userID string, dashboard *models.Dashboard) error
}
