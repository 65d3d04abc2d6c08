package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"goodnoodle/internal/common"
	"goodnoodle/internal/metrics"
	"goodnoodle/internal/models"
	"goodnoodle/internal/services"
	"goodnoodle/internal/workerpool"

	"github.com/labstack/echo/v4"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"
)

// Platform retries arrive within minutes; an hour covers them with margin.
const eventDedupeTTL = time.Hour

// TaskSubmitter queues work off the request path.
type TaskSubmitter interface {
	Submit(task workerpool.Task) error
}

// EventDeduper records event ids and reports whether one is new.
type EventDeduper interface {
	MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
}

// SlackEventsHandlers handles the Events API callback
type SlackEventsHandlers struct {
	gifting services.GiftingService
	pool    TaskSubmitter
	dedupe  EventDeduper
	runtime services.Runtime
	logger  *zap.Logger
}

// NewSlackEventsHandlers wires the events endpoint. dedupe may be nil.
func NewSlackEventsHandlers(gifting services.GiftingService, pool TaskSubmitter, dedupe EventDeduper, runtime services.Runtime, logger *zap.Logger) *SlackEventsHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackEventsHandlers{gifting: gifting, pool: pool, dedupe: dedupe, runtime: runtime, logger: logger}
}

// envelope carries the outer fields slackevents does not expose.
type envelope struct {
	EventID        string `json:"event_id"`
	TeamID         string `json:"team_id"`
	EnterpriseID   string `json:"enterprise_id"`
	Authorizations []struct {
		EnterpriseID        string `json:"enterprise_id"`
		TeamID              string `json:"team_id"`
		IsEnterpriseInstall bool   `json:"is_enterprise_install"`
	} `json:"authorizations"`
}

func (e envelope) query() models.InstallationQuery {
	q := models.InstallationQuery{EnterpriseID: e.EnterpriseID, TeamID: e.TeamID}
	if len(e.Authorizations) > 0 {
		a := e.Authorizations[0]
		q.IsEnterpriseInstall = a.IsEnterpriseInstall
		if q.EnterpriseID == "" {
			q.EnterpriseID = a.EnterpriseID
		}
		if q.TeamID == "" {
			q.TeamID = a.TeamID
		}
	}
	return q
}

// HandleEvents handles POST /slack/events
func (h *SlackEventsHandlers) HandleEvents(c echo.Context) error {
	body, ok := common.RawBody(c)
	if !ok {
		var err error
		if body, err = io.ReadAll(c.Request().Body); err != nil {
			return common.SendClientError(c, "Failed to read request body")
		}
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		var outer struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(body, &outer) == nil && outer.Type == slackevents.CallbackEvent {
			// Inner event types we do not model are acknowledged so they are not retried.
			h.logger.Debug("Ignoring unsupported inner event", zap.Error(err))
			return c.NoContent(http.StatusOK)
		}
		return common.SendClientError(c, "Malformed event payload")
	}

	switch event.Type {
	case slackevents.URLVerification:
		challenge, ok := event.Data.(*slackevents.EventsAPIURLVerificationEvent)
		if !ok {
			return common.SendClientError(c, "Malformed url_verification payload")
		}
		return c.JSON(http.StatusOK, map[string]string{"challenge": challenge.Challenge})

	case slackevents.CallbackEvent:
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return common.SendClientError(c, "Malformed event envelope")
		}
		return h.enqueue(c, env, event.InnerEvent)

	default:
		h.logger.Debug("Ignoring events API payload", zap.String("type", event.Type))
		return c.NoContent(http.StatusOK)
	}
}

func (h *SlackEventsHandlers) enqueue(c echo.Context, env envelope, inner slackevents.EventsAPIInnerEvent) error {
	fn := h.taskFor(env.query(), inner)
	if fn == nil {
		metrics.ObserveEvent(inner.Type, "skipped")
		return c.NoContent(http.StatusOK)
	}

	task := workerpool.Task{
		ID:   env.EventID,
		Kind: inner.Type,
		Fn: func(ctx context.Context) error {
			if !h.firstDelivery(ctx, env.EventID) {
				metrics.ObserveEvent(inner.Type, "duplicate")
				return nil
			}
			if err := fn(ctx); err != nil {
				metrics.ObserveEvent(inner.Type, "failed")
				return err
			}
			metrics.ObserveEvent(inner.Type, "handled")
			return nil
		},
	}
	if err := h.pool.Submit(task); err != nil {
		// Not acknowledged, so the platform retries later.
		h.logger.Error("Event rejected by worker pool",
			zap.String("event_id", env.EventID),
			zap.String("type", inner.Type),
			zap.Error(err))
		metrics.ObserveEvent(inner.Type, "rejected")
		return c.JSON(http.StatusServiceUnavailable, common.CreateErrorResponse("BUSY", "Event queue is full", nil))
	}
	return c.NoContent(http.StatusOK)
}

// taskFor returns the work for an inner event, or nil when there is nothing to do.
func (h *SlackEventsHandlers) taskFor(q models.InstallationQuery, inner slackevents.EventsAPIInnerEvent) func(context.Context) error {
	switch ev := inner.Data.(type) {
	case *slackevents.MessageEvent:
		if ev.SubType != "" || ev.BotID != "" || ev.User == "" || ev.User == h.runtime.BotUserID {
			return nil
		}
		msg := services.MessageEvent{
			Text:      ev.Text,
			AuthorID:  ev.User,
			ChannelID: ev.Channel,
			Timestamp: ev.TimeStamp,
			Tenant:    q,
		}
		return func(ctx context.Context) error {
			result, err := h.gifting.HandleMessage(ctx, msg)
			if err != nil {
				return fmt.Errorf("message %s/%s: %w", msg.ChannelID, msg.Timestamp, err)
			}
			h.logger.Debug("Message handled",
				zap.String("channel", msg.ChannelID),
				zap.String("ts", msg.Timestamp),
				zap.String("outcome", string(result.Outcome)))
			return nil
		}

	case *slackevents.AppHomeOpenedEvent:
		if ev.Tab != "" && ev.Tab != "home" {
			return nil
		}
		home := services.HomeOpenedEvent{UserID: ev.User, Tenant: q}
		return func(ctx context.Context) error {
			_, err := h.gifting.HandleHomeOpened(ctx, home)
			return err
		}

	case *slackevents.AppUninstalledEvent:
		return func(ctx context.Context) error {
			return h.gifting.HandleUninstall(ctx, q)
		}

	case *slackevents.TokensRevokedEvent:
		if len(ev.Tokens.Bot) == 0 {
			return nil
		}
		return func(ctx context.Context) error {
			return h.gifting.HandleUninstall(ctx, q)
		}

	default:
		return nil
	}
}

// firstDelivery reports whether eventID has not been processed yet.
// Without a working cache every delivery is processed.
func (h *SlackEventsHandlers) firstDelivery(ctx context.Context, eventID string) bool {
	if h.dedupe == nil || eventID == "" {
		return true
	}
	fresh, err := h.dedupe.MarkEventSeen(ctx, eventID, eventDedupeTTL)
	if err != nil {
		h.logger.Warn("Event dedupe unavailable", zap.String("event_id", eventID), zap.Error(err))
		return true
	}
	if !fresh {
		h.logger.Info("Dropping redelivered event", zap.String("event_id", eventID))
	}
	return fresh
}
