package handlers

import (
	"context"
	"net/http"
	"time"

	"goodnoodle/internal/common"
	"goodnoodle/internal/models"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Outlives any state the signer issues.
const stateReplayWindow = 15 * time.Minute

// StateSigner issues and checks the OAuth state parameter.
type StateSigner interface {
	Issue() (string, error)
	Verify(state string) (string, error)
}

// OAuthExchanger talks to the platform's OAuth endpoints.
type OAuthExchanger interface {
	AuthorizeURL(state string, scopes []string) string
	ExchangeCode(ctx context.Context, code string) (*models.Installation, error)
}

// InstallationStore persists what a completed install grants.
type InstallationStore interface {
	StoreInstallation(ctx context.Context, inst *models.Installation) error
}

// OAuthHandlers handles the install flow
type OAuthHandlers struct {
	signer    StateSigner
	exchanger OAuthExchanger
	store     InstallationStore
	// used rejects a state that has already completed an install. May be nil.
	used   EventDeduper
	scopes []string
	logger *zap.Logger
}

func NewOAuthHandlers(signer StateSigner, exchanger OAuthExchanger, store InstallationStore, used EventDeduper, scopes []string, logger *zap.Logger) *OAuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OAuthHandlers{signer: signer, exchanger: exchanger, store: store, used: used, scopes: scopes, logger: logger}
}

// Install handles GET /slack/install
func (h *OAuthHandlers) Install(c echo.Context) error {
	state, err := h.signer.Issue()
	if err != nil {
		h.logger.Error("Failed to issue oauth state", zap.Error(err))
		return common.SendServerError(c, "Failed to start installation")
	}
	return c.Redirect(http.StatusFound, h.exchanger.AuthorizeURL(state, h.scopes))
}

// Callback handles GET /slack/oauth_redirect
func (h *OAuthHandlers) Callback(c echo.Context) error {
	if reason := c.QueryParam("error"); reason != "" {
		h.logger.Info("Installation declined", zap.String("reason", reason))
		return c.String(http.StatusOK, "Installation was cancelled.")
	}

	code := c.QueryParam("code")
	if code == "" {
		return common.SendValidationError(c, "code", "code is required")
	}

	nonce, err := h.signer.Verify(c.QueryParam("state"))
	if err != nil {
		h.logger.Warn("Rejected oauth callback", zap.Error(err))
		return common.SendValidationError(c, "state", "state is invalid or expired")
	}

	ctx := c.Request().Context()
	if h.used != nil {
		fresh, err := h.used.MarkEventSeen(ctx, "oauth-state:"+nonce, stateReplayWindow)
		if err != nil {
			h.logger.Warn("OAuth state replay check unavailable", zap.Error(err))
		} else if !fresh {
			return common.SendValidationError(c, "state", "state was already used")
		}
	}

	inst, err := h.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		h.logger.Error("OAuth code exchange failed", zap.Error(err))
		return c.JSON(http.StatusBadGateway, common.CreateErrorResponse("OAUTH_FAILED", "Could not complete installation", nil))
	}

	if err := h.store.StoreInstallation(ctx, inst); err != nil {
		h.logger.Error("Failed to store installation",
			zap.String("enterprise_id", inst.EnterpriseID),
			zap.String("team_id", inst.TeamID),
			zap.Error(err))
		return common.SendServerError(c, "Could not complete installation")
	}

	h.logger.Info("App installed",
		zap.String("enterprise_id", inst.EnterpriseID),
		zap.String("team_id", inst.TeamID),
		zap.Bool("enterprise_install", inst.IsEnterpriseInstall))
	return c.String(http.StatusOK, "Good Noodle is installed. You can close this window.")
}
