package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"logitdash/domain/core"
	"logitdash/internal/errors"
	"logitdash/ports"
)

// FitJournal implements ports.FitJournalPort for PostgreSQL
type FitJournal struct {
	db *sqlx.DB
}

// NewFitJournal creates a journal on an open connection
func NewFitJournal(db *sqlx.DB) *FitJournal {
	return &FitJournal{db: db}
}

// Record appends a successful fit. Missing ID and timestamp are filled in.
func (j *FitJournal) Record(ctx context.Context, rec ports.FitRecord) error {
	if rec.ID.IsEmpty() {
		rec.ID = core.NewID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var sessionID interface{}
	if rec.SessionID != "" {
		sessionID = rec.SessionID.String()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO fit_journal (id, session_id, dataset, formula, nobs, aic, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID.String(), sessionID, rec.Dataset, rec.Formula, rec.NObs, rec.AIC, rec.CreatedAt)
	if err != nil {
		return errors.DatabaseError("failed to record fit", err)
	}
	return nil
}

// Recent returns the latest entries, newest first
func (j *FitJournal) Recent(ctx context.Context, limit int) ([]ports.FitRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var records []ports.FitRecord
	err := j.db.SelectContext(ctx, &records, `
		SELECT id, COALESCE(session_id::text, '') AS session_id, dataset, formula, nobs, aic, created_at
		FROM fit_journal
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.DatabaseError("failed to list fits", err)
	}
	return records, nil
}

// Close closes the underlying connection pool
func (j *FitJournal) Close() error {
	return j.db.Close()
}

// NopJournal discards records; used when no database is configured
type NopJournal struct{}

func (NopJournal) Record(context.Context, ports.FitRecord) error { return nil }

func (NopJournal) Recent(context.Context, int) ([]ports.FitRecord, error) { return nil, nil }

func (NopJournal) Close() error { return nil }
