package surgeries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is one confirmed surgery booking.
type Record struct {
	ID               string    `json:"id"`
	OrgID            string    `json:"org_id"`
	ConversationID   string    `json:"conversation_id"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	Location         string    `json:"location"`
	Surgeon          string    `json:"surgeon"`
	Procedure        string    `json:"procedure"`
	Quantity         int       `json:"quantity"`
	Anesthesiologist string    `json:"anesthesiologist,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store persists confirmed surgery records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id string) (*Record, error)
	ListByOrg(ctx context.Context, orgID string, from, to time.Time) ([]Record, error)
}

// PostgresStore implements Store using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store backed by PostgreSQL.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("surgeries: db cannot be nil")
	}
	return &PostgresStore{db: db}
}

// Save inserts a record, assigning ID and CreatedAt when unset.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	anesthesiologist := sql.NullString{String: rec.Anesthesiologist, Valid: rec.Anesthesiologist != ""}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO surgeries (id, org_id, conversation_id, scheduled_at, location, surgeon, procedure, quantity, anesthesiologist, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, rec.ID, rec.OrgID, rec.ConversationID, rec.ScheduledAt, rec.Location, rec.Surgeon,
		rec.Procedure, rec.Quantity, anesthesiologist, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("surgeries: failed to save record: %w", err)
	}
	return nil
}

// GetByID fetches one record. Returns nil when not found.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, conversation_id, scheduled_at, location, surgeon, procedure, quantity, anesthesiologist, created_at
		FROM surgeries
		WHERE id = $1
	`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("surgeries: failed to get record: %w", err)
	}
	return rec, nil
}

// ListByOrg returns an org's records scheduled inside [from, to), newest
// first.
func (s *PostgresStore) ListByOrg(ctx context.Context, orgID string, from, to time.Time) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, conversation_id, scheduled_at, location, surgeon, procedure, quantity, anesthesiologist, created_at
		FROM surgeries
		WHERE org_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		ORDER BY scheduled_at DESC
	`, orgID, from, to)
	if err != nil {
		return nil, fmt.Errorf("surgeries: failed to list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("surgeries: failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("surgeries: failed to iterate records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var anesthesiologist sql.NullString
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.ConversationID, &rec.ScheduledAt,
		&rec.Location, &rec.Surgeon, &rec.Procedure, &rec.Quantity,
		&anesthesiologist, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	rec.Anesthesiologist = anesthesiologist.String
	return &rec, nil
}
