package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goodnoodle/internal/metrics"
	"goodnoodle/internal/models"
	"goodnoodle/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// sharedLookupTimeout bounds a lookup-or-insert that no single caller owns.
const sharedLookupTimeout = 30 * time.Second

type UserRegistry interface {
	// ResolveOrCreate returns the stored user for (tenant, slackUserID), creating it on first sight.
	// A failed display name lookup does not abort creation; the user is stored without a name.
	ResolveOrCreate(ctx context.Context, tenant models.Tenant, slackUserID string) (*models.User, error)
	ListUsers(ctx context.Context, tenantID string) ([]*models.User, error)
	RecomputeTotals(ctx context.Context, tenantID string, ids []uuid.UUID) error
	// ReconcileAll recomputes the counters of every known tenant and returns how many were processed.
	ReconcileAll(ctx context.Context) (int, error)
}

type userRegistry struct {
	repo     repositories.UserRepository
	platform ChatPlatform
	logger   *zap.Logger
	group    singleflight.Group
	now      func() time.Time
}

func NewUserRegistry(repo repositories.UserRepository, platform ChatPlatform, logger *zap.Logger) UserRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userRegistry{repo: repo, platform: platform, logger: logger, now: time.Now}
}

func (s *userRegistry) ResolveOrCreate(ctx context.Context, tenant models.Tenant, slackUserID string) (*models.User, error) {
	if slackUserID == "" {
		return nil, errors.New("slack user id is required")
	}
	// Concurrent first contacts for the same key share one lookup-or-insert.
	// The shared call must outlive any one caller, so it ignores their cancellation.
	ch := s.group.DoChan(tenant.ID()+"/"+slackUserID, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedLookupTimeout)
		defer cancel()
		return s.resolveOrCreate(sctx, tenant, slackUserID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.User), nil
	}
}

func (s *userRegistry) resolveOrCreate(ctx context.Context, tenant models.Tenant, slackUserID string) (*models.User, error) {
	existing, err := s.repo.GetBySlackID(ctx, tenant.ID(), slackUserID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Errorf("lookup user %s: %w", slackUserID, err)
	}

	user := &models.User{
		ID:          uuid.New(),
		TenantID:    tenant.ID(),
		SlackUserID: slackUserID,
		DisplayName: s.fetchName(ctx, tenant, slackUserID),
		CreatedAt:   s.now().UTC(),
	}

	inserted, err := s.repo.Insert(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%w: insert user %s: %w", ErrStoreWriteFailed, slackUserID, err)
	}
	if inserted {
		s.logger.Info("User registered",
			zap.String("tenant", tenant.ID()),
			zap.String("slack_user_id", slackUserID))
		return user, nil
	}

	// Another process inserted the same user first; its row is the record.
	stored, err := s.repo.GetBySlackID(ctx, tenant.ID(), slackUserID)
	if err != nil {
		return nil, fmt.Errorf("refetch user %s: %w", slackUserID, err)
	}
	return stored, nil
}

func (s *userRegistry) fetchName(ctx context.Context, tenant models.Tenant, slackUserID string) *string {
	name, err := s.platform.UserDisplayName(ctx, tenant.BotToken(), slackUserID)
	if err != nil {
		metrics.ObserveNameFetchFailure()
		s.logger.Warn("Creating user without a display name",
			zap.String("tenant", tenant.ID()),
			zap.String("slack_user_id", slackUserID),
			zap.Error(fmt.Errorf("%w: %w", ErrNameFetchFailed, err)))
		return nil
	}
	if name == "" {
		return nil
	}
	return &name
}

func (s *userRegistry) ListUsers(ctx context.Context, tenantID string) ([]*models.User, error) {
	return s.repo.ListByTenant(ctx, tenantID)
}

func (s *userRegistry) RecomputeTotals(ctx context.Context, tenantID string, ids []uuid.UUID) error {
	if _, err := s.repo.RecomputeTotals(ctx, tenantID, ids); err != nil {
		return fmt.Errorf("%w: recompute totals for %s: %w", ErrStoreWriteFailed, tenantID, err)
	}
	return nil
}

func (s *userRegistry) ReconcileAll(ctx context.Context) (int, error) {
	tenantIDs, err := s.repo.ListTenantIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list tenants: %w", err)
	}

	var errs []error
	processed := 0
	for _, tenantID := range tenantIDs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		n, err := s.repo.RecomputeTotals(ctx, tenantID, nil)
		if err != nil {
			s.logger.Error("Counter reconciliation failed", zap.String("tenant", tenantID), zap.Error(err))
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenantID, err))
			continue
		}
		processed++
		s.logger.Debug("Counters reconciled", zap.String("tenant", tenantID), zap.Int64("users", n))
	}
	return processed, errors.Join(errs...)
}
