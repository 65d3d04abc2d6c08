package middleware

import (
	"bytes"
	"io"
	"net/http"

	"goodnoodle/internal/common"

	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

// Slack bodies are small; anything larger is not a platform callback.
const maxSlackBody = 1 << 20

// SlackSignature rejects requests whose X-Slack-Signature does not match the signing secret.
// The verified body is stored under common.RawBodyKey and restored on the request.
func SlackSignature(signingSecret string, logger *zap.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			body, err := io.ReadAll(io.LimitReader(req.Body, maxSlackBody+1))
			if err != nil {
				return common.SendClientError(c, "Failed to read request body")
			}
			if len(body) > maxSlackBody {
				return c.JSON(http.StatusRequestEntityTooLarge, common.CreateErrorResponse("TOO_LARGE", "Request body too large", nil))
			}

			verifier, err := slack.NewSecretsVerifier(req.Header, signingSecret)
			if err != nil {
				logger.Warn("Slack request without valid signature headers", zap.String("path", req.URL.Path), zap.Error(err))
				return common.SendUnauthorizedError(c)
			}
			if _, err := verifier.Write(body); err != nil {
				return common.SendServerError(c, "Failed to verify request")
			}
			if err := verifier.Ensure(); err != nil {
				logger.Warn("Slack signature mismatch", zap.String("path", req.URL.Path))
				return common.SendUnauthorizedError(c)
			}

			req.Body = io.NopCloser(bytes.NewReader(body))
			c.Set(common.RawBodyKey, body)
			return next(c)
		}
	}
}
