package ports

import (
	"context"
	"time"

	"logitdash/domain/core"
)

// FitRecord is one journal entry for a successful fit
type FitRecord struct {
	ID        core.ID        `json:"id" db:"id"`
	SessionID core.SessionID `json:"session_id" db:"session_id"`
	Dataset   string         `json:"dataset" db:"dataset"`
	Formula   string         `json:"formula" db:"formula"`
	NObs      int            `json:"nobs" db:"nobs"`
	AIC       float64        `json:"aic" db:"aic"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

// FitJournalPort appends fit records. It is write-only from the dashboard.
type FitJournalPort interface {
	Record(ctx context.Context, rec FitRecord) error
	Recent(ctx context.Context, limit int) ([]FitRecord, error)
	Close() error
}
