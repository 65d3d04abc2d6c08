package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"goodnoodle/internal/interpreter"
	"goodnoodle/internal/metrics"
	"goodnoodle/internal/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("goodnoodle/internal/services")

// Outcome is the terminal state of one gifting message.
type Outcome string

const (
	OutcomeIgnored   Outcome = "ignored"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCommitted Outcome = "committed"
)

// MessageEvent is a chat message that may carry a gift.
type MessageEvent struct {
	Text      string
	AuthorID  string
	ChannelID string
	Timestamp string
	Tenant    models.InstallationQuery
}

// HomeOpenedEvent is a user opening their dashboard.
type HomeOpenedEvent struct {
	UserID string
	Tenant models.InstallationQuery
}

type GiftResult struct {
	Outcome            Outcome
	Recipients         []string
	TokensPerRecipient int
	TotalRequested     int
	Remaining          int
	Entries            []*models.LedgerEntry
}

// Runtime is process-wide identity resolved once at startup.
type Runtime struct {
	BotUserID string
}

type GiftingConfig struct {
	SuccessReaction   string
	OverLimitReaction string
	Runtime           Runtime
}

type GiftingDeps struct {
	Interpreter *interpreter.Interpreter
	Directory   TenantDirectory
	Registry    UserRegistry
	Quota       QuotaService
	Writer      LedgerWriter
	Platform    ChatPlatform
	Logger      *zap.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type GiftingService interface {
	HandleMessage(ctx context.Context, ev MessageEvent) (*GiftResult, error)
	HandleHomeOpened(ctx context.Context, ev HomeOpenedEvent) (*models.Dashboard, error)
	HandleUninstall(ctx context.Context, q models.InstallationQuery) error
}

type giftingService struct {
	GiftingDeps
	cfg     GiftingConfig
	senders *keyedMutex
}

func NewGiftingService(deps GiftingDeps, cfg GiftingConfig) GiftingService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Interpreter == nil {
		deps.Interpreter = interpreter.New("")
	}
	if cfg.SuccessReaction == "" {
		cfg.SuccessReaction = "thumbsup"
	}
	if cfg.OverLimitReaction == "" {
		cfg.OverLimitReaction = "eyes"
	}
	return &giftingService{GiftingDeps: deps, cfg: cfg, senders: newKeyedMutex()}
}

func (s *giftingService) HandleMessage(ctx context.Context, ev MessageEvent) (result *GiftResult, err error) {
	ctx, span := tracer.Start(ctx, "gifting.HandleMessage")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.String("gift.outcome", string(result.Outcome)))
		}
		span.End()
	}()

	ignored := &GiftResult{Outcome: OutcomeIgnored}
	if !s.Interpreter.ContainsMention(ev.Text) {
		metrics.ObserveGift(string(OutcomeIgnored), 0)
		return ignored, nil
	}
	perRecipient := s.Interpreter.CountTokenMarkers(ev.Text)
	if perRecipient == 0 || ev.AuthorID == "" {
		metrics.ObserveGift(string(OutcomeIgnored), 0)
		return ignored, nil
	}

	tenant, err := s.Directory.Resolve(ctx, ev.Tenant)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}
	span.SetAttributes(attribute.String("tenant.id", tenant.ID()))

	mentioned := s.Interpreter.ExtractMentionedUsers(ev.Text, ev.AuthorID, tenant.BotUserID(), s.cfg.Runtime.BotUserID)
	if len(mentioned) == 0 {
		metrics.ObserveGift(string(OutcomeIgnored), 0)
		return ignored, nil
	}
	s.Logger.Debug("Gift parsed",
		zap.String("tenant", tenant.ID()),
		zap.String("sender", ev.AuthorID),
		zap.Strings("recipients", mentioned),
		zap.Int("tokens_per_recipient", perRecipient))

	// Quota check and commit for one sender must not interleave.
	unlock := s.senders.Lock(tenant.ID() + "/" + ev.AuthorID)
	defer unlock()

	sender, recipients, err := s.resolveParticipants(ctx, tenant, ev.AuthorID, mentioned)
	if err != nil {
		return nil, err
	}

	result = &GiftResult{
		Recipients:         mentioned,
		TokensPerRecipient: perRecipient,
		TotalRequested:     len(recipients) * perRecipient,
	}

	now := s.Now()
	remaining, err := s.Quota.RemainingWeeklyTokens(ctx, tenant.ID(), sender.ID, now)
	if err != nil {
		return nil, err
	}
	result.Remaining = remaining

	if remaining-result.TotalRequested < 0 {
		result.Outcome = OutcomeRejected
		metrics.ObserveGift(string(OutcomeRejected), 0)
		s.Logger.Info("Gift rejected",
			zap.String("tenant", tenant.ID()),
			zap.String("sender", ev.AuthorID),
			zap.Int("requested", result.TotalRequested),
			zap.Int("remaining", remaining),
			zap.NamedError("reason", ErrQuotaExceeded))
		if err := s.Platform.AddReaction(ctx, tenant.BotToken(), ev.ChannelID, ev.Timestamp, s.cfg.OverLimitReaction); err != nil {
			return result, fmt.Errorf("add over-limit reaction: %w", err)
		}
		return result, nil
	}

	transfers := make([]models.Transfer, 0, len(recipients))
	for _, r := range recipients {
		transfers = append(transfers, models.Transfer{Sender: sender, Recipient: r, Amount: perRecipient})
	}
	entries, err := s.Writer.CommitTransfers(ctx, tenant.ID(), transfers, now)
	if err != nil {
		return nil, err
	}
	result.Entries = entries
	result.Remaining = remaining - result.TotalRequested
	result.Outcome = OutcomeCommitted
	metrics.ObserveGift(string(OutcomeCommitted), result.TotalRequested)

	s.refreshTotals(ctx, tenant, sender, recipients)

	if err := s.Platform.AddReaction(ctx, tenant.BotToken(), ev.ChannelID, ev.Timestamp, s.cfg.SuccessReaction); err != nil {
		return result, fmt.Errorf("add success reaction: %w", err)
	}
	return result, nil
}

// resolveParticipants registers the sender and every recipient, keeping recipient order.
func (s *giftingService) resolveParticipants(ctx context.Context, tenant models.Tenant, authorID string, mentioned []string) (*models.User, []*models.User, error) {
	ids := append([]string{authorID}, mentioned...)
	users := make([]*models.User, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			u, err := s.Registry.ResolveOrCreate(gctx, tenant, id)
			if err != nil {
				return fmt.Errorf("resolve user %s: %w", id, err)
			}
			users[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return users[0], users[1:], nil
}

func (s *giftingService) refreshTotals(ctx context.Context, tenant models.Tenant, sender *models.User, recipients []*models.User) {
	ids := make([]uuid.UUID, 0, len(recipients)+1)
	ids = append(ids, sender.ID)
	for _, r := range recipients {
		ids = append(ids, r.ID)
	}
	if err := s.Registry.RecomputeTotals(ctx, tenant.ID(), ids); err != nil {
		// The scheduled reconciliation catches up.
		s.Logger.Warn("Counter refresh after gift failed", zap.String("tenant", tenant.ID()), zap.Error(err))
	}
}

func (s *giftingService) HandleHomeOpened(ctx context.Context, ev HomeOpenedEvent) (*models.Dashboard, error) {
	ctx, span := tracer.Start(ctx, "gifting.HandleHomeOpened")
	defer span.End()

	tenant, err := s.Directory.Resolve(ctx, ev.Tenant)
	if err != nil {
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}

	viewer, err := s.Registry.ResolveOrCreate(ctx, tenant, ev.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve viewer: %w", err)
	}

	users, err := s.Registry.ListUsers(ctx, tenant.ID())
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	remaining, err := s.Quota.RemainingWeeklyTokens(ctx, tenant.ID(), viewer.ID, s.Now())
	if err != nil {
		return nil, err
	}

	dashboard := BuildDashboard(viewer, users, remaining, s.Quota.Allowance(), s.Interpreter.Marker())
	if err := s.Platform.PublishHome(ctx, tenant.BotToken(), ev.UserID, dashboard); err != nil {
		return dashboard, fmt.Errorf("publish home: %w", err)
	}
	return dashboard, nil
}

func (s *giftingService) HandleUninstall(ctx context.Context, q models.InstallationQuery) error {
	if err := s.Directory.DeleteInstallation(ctx, q); err != nil {
		if errors.Is(err, ErrInstallationNotFound) {
			s.Logger.Info("Uninstall for unknown installation", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// BuildDashboard ranks users by tokens received, highest first, ties by first seen.
func BuildDashboard(viewer *models.User, users []*models.User, remaining, allowance int, marker string) *models.Dashboard {
	ranked := make([]*models.User, len(users))
	copy(ranked, users)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].TokensReceived != ranked[j].TokensReceived {
			return ranked[i].TokensReceived > ranked[j].TokensReceived
		}
		return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
	})

	d := &models.Dashboard{
		Viewer:      viewer,
		Remaining:   remaining,
		Allowance:   allowance,
		Marker:      marker,
		Leaderboard: make([]models.LeaderboardRow, 0, len(ranked)),
	}
	for i, u := range ranked {
		if u.ID == viewer.ID {
			d.Viewer = u
		}
		d.Leaderboard = append(d.Leaderboard, models.LeaderboardRow{Rank: i + 1, User: u})
	}
	return d
}
