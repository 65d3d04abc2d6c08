package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goodnoodle/internal/models"
	"goodnoodle/internal/repositories"

	"github.com/google/uuid"
)

// DefaultWeeklyAllowance is the number of tokens a sender may give per ISO week.
const DefaultWeeklyAllowance = 5

type QuotaService interface {
	// RemainingWeeklyTokens derives the sender's allowance for the ISO week containing now.
	// The result is never negative.
	RemainingWeeklyTokens(ctx context.Context, tenantID string, senderID uuid.UUID, now time.Time) (int, error)
	Allowance() int
}

type quotaService struct {
	ledger    repositories.LedgerRepository
	allowance int
}

func NewQuotaService(ledger repositories.LedgerRepository, allowance int) (QuotaService, error) {
	if allowance <= 0 {
		return nil, errors.New("weekly allowance must be positive")
	}
	return &quotaService{ledger: ledger, allowance: allowance}, nil
}

func (s *quotaService) Allowance() int { return s.allowance }

func (s *quotaService) RemainingWeeklyTokens(ctx context.Context, tenantID string, senderID uuid.UUID, now time.Time) (int, error) {
	sent, err := s.ledger.SumSent(ctx, tenantID, senderID, models.PeriodOf(now))
	if err != nil {
		return 0, fmt.Errorf("sum sent tokens: %w", err)
	}
	return max(0, s.allowance-sent), nil
}
