package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"goodnoodle/internal/models"
)

type InstallationRepository interface {
	Upsert(ctx context.Context, scope models.TenantScope, inst *models.Installation) error
	Get(ctx context.Context, scope models.TenantScope) (*models.Installation, error)
	Delete(ctx context.Context, scope models.TenantScope) error
}

type installationRepo struct {
	db Database
}

func NewInstallationRepo(db Database) InstallationRepository {
	return &installationRepo{db: db}
}

// Upsert replaces the whole record stored for scope.
func (r *installationRepo) Upsert(ctx context.Context, scope models.TenantScope, inst *models.Installation) error {
	payload, err := json.Marshal(inst)
	if err != nil {
		return fmt.Errorf("encode installation: %w", err)
	}
	query := `
		INSERT INTO installations (scope_kind, scope_id, enterprise_id, team_id, is_enterprise_install, bot_user_id, payload, installed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (scope_kind, scope_id) DO UPDATE
		SET enterprise_id = EXCLUDED.enterprise_id,
			team_id = EXCLUDED.team_id,
			is_enterprise_install = EXCLUDED.is_enterprise_install,
			bot_user_id = EXCLUDED.bot_user_id,
			payload = EXCLUDED.payload,
			installed_at = EXCLUDED.installed_at
	`
	_, err = r.db.Exec(ctx, query,
		string(scope.Kind()), scope.ID(), inst.EnterpriseID, inst.TeamID,
		inst.IsEnterpriseInstall, inst.BotUserID, payload, inst.InstalledAt)
	return err
}

func (r *installationRepo) Get(ctx context.Context, scope models.TenantScope) (*models.Installation, error) {
	query := `
		SELECT payload
		FROM installations
		WHERE scope_kind = $1 AND scope_id = $2
	`
	var payload []byte
	if err := r.db.QueryRow(ctx, query, string(scope.Kind()), scope.ID()).Scan(&payload); err != nil {
		return nil, notFound(err)
	}

	inst := &models.Installation{}
	if err := json.Unmarshal(payload, inst); err != nil {
		return nil, fmt.Errorf("decode installation %s: %w", scope, err)
	}
	return inst, nil
}

func (r *installationRepo) Delete(ctx context.Context, scope models.TenantScope) error {
	query := `DELETE FROM installations WHERE scope_kind = $1 AND scope_id = $2`
	tag, err := r.db.Exec(ctx, query, string(scope.Kind()), scope.ID())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
