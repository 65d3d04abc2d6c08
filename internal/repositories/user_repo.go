package repositories

import (
	"context"

	"goodnoodle/internal/models"

	"github.com/google/uuid"
)

type UserRepository interface {
	// Insert creates the user unless (tenant_id, slack_user_id) already exists.
	// It reports whether a row was written.
	Insert(ctx context.Context, user *models.User) (bool, error)
	GetBySlackID(ctx context.Context, tenantID, slackUserID string) (*models.User, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.User, error)
	ListTenantIDs(ctx context.Context) ([]string, error)
	// RecomputeTotals rewrites the denormalized counters from ledger sums.
	// A nil ids slice recomputes every user of the tenant.
	RecomputeTotals(ctx context.Context, tenantID string, ids []uuid.UUID) (int64, error)
}

type userRepo struct {
	db Database
}

func NewUserRepo(db Database) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) Insert(ctx context.Context, user *models.User) (bool, error) {
	query := `
		INSERT INTO users (id, tenant_id, slack_user_id, display_name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, slack_user_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query, user.ID, user.TenantID, user.SlackUserID, user.DisplayName, user.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *userRepo) GetBySlackID(ctx context.Context, tenantID, slackUserID string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, tenant_id, slack_user_id, display_name, tokens_received, tokens_sent, created_at
		FROM users
		WHERE tenant_id = $1 AND slack_user_id = $2
	`
	err := r.db.QueryRow(ctx, query, tenantID, slackUserID).Scan(&user.ID, &user.TenantID, &user.SlackUserID, &user.DisplayName, &user.TokensReceived, &user.TokensSent, &user.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

func (r *userRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.User, error) {
	query := `
		SELECT id, tenant_id, slack_user_id, display_name, tokens_received, tokens_sent, created_at
		FROM users
		WHERE tenant_id = $1
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user := &models.User{}
		if err := rows.Scan(&user.ID, &user.TenantID, &user.SlackUserID, &user.DisplayName, &user.TokensReceived, &user.TokensSent, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (r *userRepo) ListTenantIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT tenant_id FROM users ORDER BY tenant_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const recomputeTotalsSQL = `
		UPDATE users u
		SET tokens_received = COALESCE((
				SELECT SUM(l.amount) FROM ledger_entries l
				WHERE l.tenant_id = u.tenant_id AND l.recipient_id = u.id), 0),
			tokens_sent = COALESCE((
				SELECT SUM(l.amount) FROM ledger_entries l
				WHERE l.tenant_id = u.tenant_id AND l.sender_id = u.id), 0)
		WHERE u.tenant_id = $1`

func (r *userRepo) RecomputeTotals(ctx context.Context, tenantID string, ids []uuid.UUID) (int64, error) {
	query := recomputeTotalsSQL
	args := []any{tenantID}
	if ids != nil {
		query += ` AND u.id = ANY($2)`
		args = append(args, ids)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
