package models

import (
	"encoding/json"
	"time"
)

// Installation is the credential record that lets the bot act inside one tenant.
// Payload holds the serialized install response as received from the platform.
type Installation struct {
	EnterpriseID        string          `json:"enterprise_id,omitempty"`
	TeamID              string          `json:"team_id,omitempty"`
	IsEnterpriseInstall bool            `json:"is_enterprise_install"`
	AppID               string          `json:"app_id,omitempty"`
	BotUserID           string          `json:"bot_user_id,omitempty"`
	BotToken            string          `json:"bot_token,omitempty"`
	BotScopes           string          `json:"bot_scopes,omitempty"`
	InstallerUserID     string          `json:"installer_user_id,omitempty"`
	Payload             json.RawMessage `json:"payload,omitempty"`
	InstalledAt         time.Time       `json:"installed_at"`
}

// InstallationQuery carries the scoping identifiers found on an inbound event.
type InstallationQuery struct {
	EnterpriseID        string
	TeamID              string
	IsEnterpriseInstall bool
}
