package models

import (
	"time"

	"github.com/google/uuid"
)

// LedgerEntry is one immutable sender to recipient transfer.
type LedgerEntry struct {
	ID          uuid.UUID `json:"id" db:"id"`
	TenantID    string    `json:"tenant_id" db:"tenant_id"`
	SenderID    uuid.UUID `json:"sender_id" db:"sender_id"`
	RecipientID uuid.UUID `json:"recipient_id" db:"recipient_id"`
	Amount      int       `json:"amount" db:"amount"`
	Week        int       `json:"week" db:"week"`
	Year        int       `json:"year" db:"year"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Transfer is a requested movement of tokens before it is stamped and stored.
type Transfer struct {
	Sender    *User
	Recipient *User
	Amount    int
}

// QuotaPeriod is an ISO week of an ISO year.
type QuotaPeriod struct {
	Week int
	Year int
}

// PeriodOf returns the ISO week and ISO year containing t.
func PeriodOf(t time.Time) QuotaPeriod {
	year, week := t.ISOWeek()
	return QuotaPeriod{Week: week, Year: year}
}
