package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"goodnoodle/internal/models"

	"github.com/google/uuid"
)

// MaxBatchSize is the largest number of ledger rows one CreateBatch call accepts.
const MaxBatchSize = 10

var ErrBatchTooLarge = fmt.Errorf("batch exceeds %d records", MaxBatchSize)

type LedgerRepository interface {
	// CreateBatch appends up to MaxBatchSize entries in a single statement.
	CreateBatch(ctx context.Context, entries []*models.LedgerEntry) error
	SumSent(ctx context.Context, tenantID string, senderID uuid.UUID, period models.QuotaPeriod) (int, error)
}

type ledgerRepo struct {
	db Database
}

func NewLedgerRepo(db Database) LedgerRepository {
	return &ledgerRepo{db: db}
}

const ledgerColumns = 8

func (r *ledgerRepo) CreateBatch(ctx context.Context, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if len(entries) > MaxBatchSize {
		return ErrBatchTooLarge
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ledger_entries (id, tenant_id, sender_id, recipient_id, amount, week, year, created_at) VALUES ")
	args := make([]any, 0, len(entries)*ledgerColumns)
	for i, e := range entries {
		if e.Amount <= 0 {
			return errors.New("ledger entry amount must be positive")
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * ledgerColumns
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)", base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8)
		args = append(args, e.ID, e.TenantID, e.SenderID, e.RecipientID, e.Amount, e.Week, e.Year, createdAt)
	}

	_, err := r.db.Exec(ctx, sb.String(), args...)
	return err
}

func (r *ledgerRepo) SumSent(ctx context.Context, tenantID string, senderID uuid.UUID, period models.QuotaPeriod) (int, error) {
	query := `
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE tenant_id = $1 AND sender_id = $2 AND week = $3 AND year = $4
	`
	var sum int64
	if err := r.db.QueryRow(ctx, query, tenantID, senderID, period.Week, period.Year).Scan(&sum); err != nil {
		return 0, err
	}
	return int(sum), nil
}
