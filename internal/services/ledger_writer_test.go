package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"goodnoodle/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func makeTransfers(n, amount int) []models.Transfer {
	sender := &models.User{ID: uuid.New()}
	out := make([]models.Transfer, n)
	for i := range out {
		out[i] = models.Transfer{Sender: sender, Recipient: &models.User{ID: uuid.New()}, Amount: amount}
	}
	return out
}

func TestCommitTransfers_StampsISOWeek(t *testing.T) {
	ledger := &fakeLedger{}
	w := NewLedgerWriter(ledger, nil)
	now := time.Date(2025, 1, 8, 12, 0, 0, 0, time.UTC)

	entries, err := w.CommitTransfers(context.Background(), "T:T1", makeTransfers(2, 3), now)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "T:T1", e.TenantID)
		assert.Equal(t, 3, e.Amount)
		assert.Equal(t, 2, e.Week)
		assert.Equal(t, 2025, e.Year)
		assert.NotEqual(t, uuid.Nil, e.ID)
	}
	assert.Len(t, ledger.all(), 2)
}

func TestCommitTransfers_ChunksLargeGifts(t *testing.T) {
	ledger := &fakeLedger{}
	w := NewLedgerWriter(ledger, nil)

	entries, err := w.CommitTransfers(context.Background(), "T:T1", makeTransfers(23, 1), time.Now())
	require.NoError(t, err)
	assert.Len(t, entries, 23)
	assert.Equal(t, []int{10, 10, 3}, ledger.batches)
}

func TestCommitTransfers_PartialFailure(t *testing.T) {
	repo := &MockLedgerRepository{}
	repo.On("CreateBatch", mock.Anything, mock.MatchedBy(func(e []*models.LedgerEntry) bool { return len(e) == 10 })).Return(nil).Once()
	repo.On("CreateBatch", mock.Anything, mock.Anything).Return(errors.New("connection reset")).Once()

	w := NewLedgerWriter(repo, nil)
	entries, err := w.CommitTransfers(context.Background(), "T:T1", makeTransfers(15, 1), time.Now())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreWriteFailed)
	var partial *PartialWriteError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 10, partial.Committed)
	assert.Equal(t, 15, partial.Requested)
	assert.Len(t, entries, 10)
	repo.AssertExpectations(t)
}

func TestCommitTransfers_RejectsInvalidTransfers(t *testing.T) {
	ledger := &fakeLedger{}
	w := NewLedgerWriter(ledger, nil)

	_, err := w.CommitTransfers(context.Background(), "T:T1", makeTransfers(1, 0), time.Now())
	assert.Error(t, err)

	_, err = w.CommitTransfers(context.Background(), "T:T1", []models.Transfer{{Sender: &models.User{}, Amount: 1}}, time.Now())
	assert.Error(t, err)
	assert.Empty(t, ledger.all())
}
