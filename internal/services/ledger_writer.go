package services

import (
	"context"
	"errors"
	"time"

	"goodnoodle/internal/metrics"
	"goodnoodle/internal/models"
	"goodnoodle/internal/repositories"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LedgerWriter interface {
	// CommitTransfers writes one entry per transfer, stamped with the ISO week of now.
	// Writes go out in chunks of repositories.MaxBatchSize; a failing chunk ends the commit
	// with a *PartialWriteError and earlier chunks stay committed.
	CommitTransfers(ctx context.Context, tenantID string, transfers []models.Transfer, now time.Time) ([]*models.LedgerEntry, error)
}

type ledgerWriter struct {
	repo   repositories.LedgerRepository
	logger *zap.Logger
}

func NewLedgerWriter(repo repositories.LedgerRepository, logger *zap.Logger) LedgerWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ledgerWriter{repo: repo, logger: logger}
}

func (w *ledgerWriter) CommitTransfers(ctx context.Context, tenantID string, transfers []models.Transfer, now time.Time) ([]*models.LedgerEntry, error) {
	period := models.PeriodOf(now)
	entries := make([]*models.LedgerEntry, 0, len(transfers))
	for _, t := range transfers {
		if t.Sender == nil || t.Recipient == nil {
			return nil, errors.New("transfer needs a sender and a recipient")
		}
		if t.Amount <= 0 {
			return nil, errors.New("transfer amount must be positive")
		}
		entries = append(entries, &models.LedgerEntry{
			ID:          uuid.New(),
			TenantID:    tenantID,
			SenderID:    t.Sender.ID,
			RecipientID: t.Recipient.ID,
			Amount:      t.Amount,
			Week:        period.Week,
			Year:        period.Year,
			CreatedAt:   now.UTC(),
		})
	}

	committed := 0
	for start := 0; start < len(entries); start += repositories.MaxBatchSize {
		end := min(start+repositories.MaxBatchSize, len(entries))
		if err := w.repo.CreateBatch(ctx, entries[start:end]); err != nil {
			metrics.ObserveLedgerWrite("failed")
			w.logger.Error("Ledger chunk write failed",
				zap.String("tenant", tenantID),
				zap.Int("committed", committed),
				zap.Int("requested", len(entries)),
				zap.Error(err))
			return entries[:committed], &PartialWriteError{Committed: committed, Requested: len(entries), Err: err}
		}
		committed = end
	}

	metrics.ObserveLedgerWrite("committed")
	return entries, nil
}
