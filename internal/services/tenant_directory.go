package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goodnoodle/internal/caching"
	"goodnoodle/internal/models"
	"goodnoodle/internal/repositories"

	"go.uber.org/zap"
)

const installationCacheTTL = 10 * time.Minute

type TenantDirectory interface {
	StoreInstallation(ctx context.Context, inst *models.Installation) error
	FetchInstallation(ctx context.Context, q models.InstallationQuery) (*models.Installation, error)
	DeleteInstallation(ctx context.Context, q models.InstallationQuery) error
	// Resolve fetches the installation and returns it with its scope.
	Resolve(ctx context.Context, q models.InstallationQuery) (models.Tenant, error)
}

type tenantDirectory struct {
	repo   repositories.InstallationRepository
	cache  caching.CacheService
	logger *zap.Logger
}

// NewTenantDirectory builds the directory. cache may be nil.
func NewTenantDirectory(repo repositories.InstallationRepository, cache caching.CacheService, logger *zap.Logger) TenantDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &tenantDirectory{repo: repo, cache: cache, logger: logger}
}

// ScopeForInstallation keys an installation by enterprise when it is enterprise-wide, else by team.
func ScopeForInstallation(inst *models.Installation) (models.TenantScope, error) {
	switch {
	case inst == nil:
		return models.TenantScope{}, ErrInvalidInstallation
	case inst.IsEnterpriseInstall && inst.EnterpriseID != "":
		return models.EnterpriseScope(inst.EnterpriseID), nil
	case inst.TeamID != "":
		return models.TeamScope(inst.TeamID), nil
	default:
		return models.TenantScope{}, ErrInvalidInstallation
	}
}

// ScopeForQuery picks the scope an inbound event should be resolved against.
func ScopeForQuery(q models.InstallationQuery) (models.TenantScope, error) {
	switch {
	case q.IsEnterpriseInstall && q.EnterpriseID != "":
		return models.EnterpriseScope(q.EnterpriseID), nil
	case q.TeamID != "":
		return models.TeamScope(q.TeamID), nil
	case q.EnterpriseID != "":
		return models.EnterpriseScope(q.EnterpriseID), nil
	default:
		return models.TenantScope{}, ErrInvalidQuery
	}
}

func (d *tenantDirectory) StoreInstallation(ctx context.Context, inst *models.Installation) error {
	scope, err := ScopeForInstallation(inst)
	if err != nil {
		return err
	}
	if inst.InstalledAt.IsZero() {
		inst.InstalledAt = time.Now().UTC()
	}
	if err := d.repo.Upsert(ctx, scope, inst); err != nil {
		return fmt.Errorf("%w: store installation %s: %w", ErrStoreWriteFailed, scope, err)
	}
	d.invalidate(ctx, scope)

	d.logger.Info("Installation stored", zap.String("tenant", scope.Key()))
	return nil
}

func (d *tenantDirectory) FetchInstallation(ctx context.Context, q models.InstallationQuery) (*models.Installation, error) {
	scope, err := ScopeForQuery(q)
	if err != nil {
		return nil, err
	}
	return d.fetch(ctx, scope)
}

func (d *tenantDirectory) Resolve(ctx context.Context, q models.InstallationQuery) (models.Tenant, error) {
	scope, err := ScopeForQuery(q)
	if err != nil {
		return models.Tenant{}, err
	}
	inst, err := d.fetch(ctx, scope)
	if err != nil {
		return models.Tenant{}, err
	}
	return models.Tenant{Scope: scope, Installation: inst}, nil
}

func (d *tenantDirectory) fetch(ctx context.Context, scope models.TenantScope) (*models.Installation, error) {
	if d.cache != nil {
		cached, err := d.cache.GetInstallation(ctx, scope)
		if err != nil {
			d.logger.Warn("Installation cache read failed", zap.String("tenant", scope.Key()), zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	inst, err := d.repo.Get(ctx, scope)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrInstallationNotFound, scope)
		}
		return nil, fmt.Errorf("fetch installation %s: %w", scope, err)
	}

	if d.cache != nil {
		if err := d.cache.SetInstallation(ctx, scope, inst, installationCacheTTL); err != nil {
			d.logger.Warn("Installation cache write failed", zap.String("tenant", scope.Key()), zap.Error(err))
		}
	}
	return inst, nil
}

func (d *tenantDirectory) DeleteInstallation(ctx context.Context, q models.InstallationQuery) error {
	scope, err := ScopeForQuery(q)
	if err != nil {
		return err
	}
	// A cached copy must never outlive the stored row.
	d.invalidate(ctx, scope)

	if err := d.repo.Delete(ctx, scope); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrInstallationNotFound, scope)
		}
		return fmt.Errorf("%w: delete installation %s: %w", ErrStoreWriteFailed, scope, err)
	}

	d.logger.Info("Installation deleted", zap.String("tenant", scope.Key()))
	return nil
}

func (d *tenantDirectory) invalidate(ctx context.Context, scope models.TenantScope) {
	if d.cache == nil {
		return
	}
	if err := d.cache.DeleteInstallation(ctx, scope); err != nil {
		d.logger.Warn("Installation cache invalidation failed", zap.String("tenant", scope.Key()), zap.Error(err))
	}
}
