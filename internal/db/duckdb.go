// Package db keeps a local DuckDB ledger of assessment runs.
// Conversation messages are never stored locally.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/strrl/ng12-assist/pkg/models"
)

const schema = `
	CREATE TABLE IF NOT EXISTS assessments (
		patient_id VARCHAR NOT NULL,
		label      VARCHAR NOT NULL,
		reasoning  VARCHAR,
		citations  VARCHAR,
		ran_at     TIMESTAMP NOT NULL
	)
`

// Ledger records assessment results
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if needed) the ledger at path. An empty path opens an in-memory ledger.
func Open(path string) (*Ledger, error) {
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	// DuckDB works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create assessments table: %w", err)
	}

	return &Ledger{db: db}, nil
}

// Close closes the underlying database
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends one assessment
func (l *Ledger) Record(ctx context.Context, a models.Assessment) error {
	citations, err := json.Marshal(a.Citations)
	if err != nil {
		return fmt.Errorf("failed to encode citations: %w", err)
	}
	ranAt := a.RanAt
	if ranAt.IsZero() {
		ranAt = time.Now()
	}

	_, err = l.db.ExecContext(ctx,
		`INSERT INTO assessments (patient_id, label, reasoning, citations, ran_at) VALUES (?, ?, ?, ?, ?)`,
		a.PatientID, a.Label, a.Reasoning, string(citations), ranAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record assessment: %w", err)
	}
	return nil
}

// Recent returns up to limit assessments, newest first
func (l *Ledger) Recent(ctx context.Context, limit int) ([]models.Assessment, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT patient_id, label, reasoning, citations, ran_at
		FROM assessments
		ORDER BY ran_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query assessments: %w", err)
	}
	defer rows.Close()

	var out []models.Assessment
	for rows.Next() {
		var a models.Assessment
		var reasoning, citations sql.NullString
		if err := rows.Scan(&a.PatientID, &a.Label, &reasoning, &citations, &a.RanAt); err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		a.Reasoning = reasoning.String
		if citations.Valid && citations.String != "" {
			if err := json.Unmarshal([]byte(citations.String), &a.Citations); err != nil {
				return nil, fmt.Errorf("failed to decode citations: %w", err)
			}
		}
		a.RanAt = a.RanAt.Local()
		out = append(out, a)
	}
	return out, rows.Err()
}
