// Package slackclient is the outbound side of the Slack integration.
package slackclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"goodnoodle/internal/models"

	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// APIURL overrides https://slack.com/api/ for Web API calls. Must end in "/".
	APIURL     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client acts on behalf of whichever installation's bot token it is handed.
type Client struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{cfg: cfg, logger: cfg.Logger}
}

func (c *Client) api(token string) *slack.Client {
	opts := []slack.Option{slack.OptionHTTPClient(c.cfg.HTTPClient)}
	if c.cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(c.cfg.APIURL))
	}
	return slack.New(token, opts...)
}

func (c *Client) AddReaction(ctx context.Context, botToken, channel, timestamp, name string) error {
	err := c.api(botToken).AddReactionContext(ctx, name, slack.ItemRef{Channel: channel, Timestamp: timestamp})
	if err != nil {
		// Platform retries can land the same reaction twice.
		if err.Error() == "already_reacted" {
			return nil
		}
		return fmt.Errorf("reactions.add %s: %w", name, err)
	}
	return nil
}

// UserDisplayName prefers the profile display name and falls back to the real name.
func (c *Client) UserDisplayName(ctx context.Context, botToken, userID string) (string, error) {
	profile, err := c.api(botToken).GetUserProfileContext(ctx, &slack.GetUserProfileParameters{UserID: userID})
	if err != nil {
		return "", fmt.Errorf("users.profile.get %s: %w", userID, err)
	}
	if profile.DisplayName != "" {
		return profile.DisplayName, nil
	}
	return profile.RealName, nil
}

func (c *Client) PublishHome(ctx context.Context, botToken, userID string, dashboard *models.Dashboard) error {
	view := slack.HomeTabViewRequest{
		Type:   slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: RenderHome(dashboard)},
	}
	if _, err := c.api(botToken).PublishViewContext(ctx, userID, view, ""); err != nil {
		return fmt.Errorf("views.publish %s: %w", userID, err)
	}
	return nil
}

// BotUserID runs auth.test for token and returns the bot's own user id.
func (c *Client) BotUserID(ctx context.Context, token string) (string, error) {
	resp, err := c.api(token).AuthTestContext(ctx)
	if err != nil {
		return "", fmt.Errorf("auth.test: %w", err)
	}
	if resp.UserID == "" {
		return "", errors.New("auth.test returned no user id")
	}
	return resp.UserID, nil
}

// AuthorizeURL is where /slack/install sends the browser.
func (c *Client) AuthorizeURL(state string, scopes []string) string {
	return authorizeURL(c.cfg.ClientID, c.cfg.RedirectURL, state, scopes)
}

// ExchangeCode trades an OAuth code for the installation it grants.
func (c *Client) ExchangeCode(ctx context.Context, code string) (*models.Installation, error) {
	resp, err := slack.GetOAuthV2ResponseContext(ctx, c.cfg.HTTPClient, c.cfg.ClientID, c.cfg.ClientSecret, code, c.cfg.RedirectURL)
	if err != nil {
		return nil, fmt.Errorf("oauth.v2.access: %w", err)
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode install payload: %w", err)
	}

	return &models.Installation{
		EnterpriseID:        resp.Enterprise.ID,
		TeamID:              resp.Team.ID,
		IsEnterpriseInstall: resp.IsEnterpriseInstall,
		AppID:               resp.AppID,
		BotUserID:           resp.BotUserID,
		BotToken:            resp.AccessToken,
		BotScopes:           resp.Scope,
		InstallerUserID:     resp.AuthedUser.ID,
		Payload:             payload,
		InstalledAt:         time.Now().UTC(),
	}, nil
}
