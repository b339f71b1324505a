package share

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteStore implements Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(db *sql.DB) (Store, error) {
	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		return nil, err
	}
	return store, nil
}

// initialize creates the invitations and acceptances tables
func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS invitations (
		id TEXT PRIMARY KEY,
		issuer_bucket TEXT NOT NULL,
		token TEXT NOT NULL UNIQUE,
		roots TEXT NOT NULL,
		attachments TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS acceptances (
		recipient_principal TEXT NOT NULL,
		invitation_id TEXT NOT NULL,
		accepted_at INTEGER NOT NULL,
		PRIMARY KEY (recipient_principal, invitation_id)
	);

	CREATE INDEX IF NOT EXISTS idx_invitations_token ON invitations(token);
	CREATE INDEX IF NOT EXISTS idx_invitations_issuer ON invitations(issuer_bucket);
	CREATE INDEX IF NOT EXISTS idx_acceptances_principal ON acceptances(recipient_principal);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateInvitation persists a new invitation
func (s *SQLiteStore) CreateInvitation(ctx context.Context, inv *Invitation) error {
	roots, err := json.Marshal(inv.Roots)
	if err != nil {
		return fmt.Errorf("failed to marshal roots: %w", err)
	}

	var attachments interface{}
	if len(inv.Attachments) > 0 {
		data, err := json.Marshal(inv.Attachments)
		if err != nil {
			return fmt.Errorf("failed to marshal attachments: %w", err)
		}
		attachments = string(data)
	}

	query := `
		INSERT INTO invitations (id, issuer_bucket, token, roots, attachments, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		inv.ID,
		inv.IssuerBucket,
		inv.Token,
		string(roots),
		attachments,
		inv.CreatedAt.Unix(),
	)

	return err
}

// GetInvitation retrieves an invitation by ID
func (s *SQLiteStore) GetInvitation(ctx context.Context, invitationID string) (*Invitation, error) {
	query := `
		SELECT id, issuer_bucket, token, roots, attachments, created_at
		FROM invitations
		WHERE id = ?
	`

	row := s.db.QueryRowContext(ctx, query, invitationID)
	return s.scanInvitation(row)
}

// GetInvitationByToken retrieves an invitation by its share token
func (s *SQLiteStore) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	query := `
		SELECT id, issuer_bucket, token, roots, attachments, created_at
		FROM invitations
		WHERE token = ?
	`

	row := s.db.QueryRowContext(ctx, query, token)
	return s.scanInvitation(row)
}

// ListInvitations lists all invitations issued from a bucket
func (s *SQLiteStore) ListInvitations(ctx context.Context, issuerBucket string) ([]*Invitation, error) {
	query := `
		SELECT id, issuer_bucket, token, roots, attachments, created_at
		FROM invitations
		WHERE issuer_bucket = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, issuerBucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv, err := s.scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}

	return invitations, rows.Err()
}

// DeleteInvitation deletes an invitation and its acceptance records
func (s *SQLiteStore) DeleteInvitation(ctx context.Context, invitationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM invitations WHERE id = ?`, invitationID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrInvitationNotFound
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM acceptances WHERE invitation_id = ?`, invitationID); err != nil {
		return err
	}

	return tx.Commit()
}

// UpsertAcceptance creates the acceptance record if absent. The conditional
// insert makes concurrent duplicate redemptions converge on one row without
// an in-process lock.
func (s *SQLiteStore) UpsertAcceptance(ctx context.Context, rec *AcceptanceRecord) error {
	query := `
		INSERT INTO acceptances (recipient_principal, invitation_id, accepted_at)
		VALUES (?, ?, ?)
		ON CONFLICT(recipient_principal, invitation_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.RecipientPrincipal,
		rec.InvitationID,
		rec.AcceptedAt.Unix(),
	)

	return err
}

// GetAcceptance retrieves one acceptance record
func (s *SQLiteStore) GetAcceptance(ctx context.Context, principal, invitationID string) (*AcceptanceRecord, error) {
	query := `
		SELECT recipient_principal, invitation_id, accepted_at
		FROM acceptances
		WHERE recipient_principal = ? AND invitation_id = ?
	`

	var rec AcceptanceRecord
	var acceptedAt int64

	err := s.db.QueryRowContext(ctx, query, principal, invitationID).Scan(
		&rec.RecipientPrincipal,
		&rec.InvitationID,
		&acceptedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAcceptanceNotFound
		}
		return nil, fmt.Errorf("failed to scan acceptance: %w", err)
	}

	rec.AcceptedAt = time.Unix(acceptedAt, 0).UTC()
	return &rec, nil
}

// ListAcceptances lists all acceptance records for a principal
func (s *SQLiteStore) ListAcceptances(ctx context.Context, principal string) ([]*AcceptanceRecord, error) {
	query := `
		SELECT recipient_principal, invitation_id, accepted_at
		FROM acceptances
		WHERE recipient_principal = ?
		ORDER BY accepted_at ASC, invitation_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, principal)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*AcceptanceRecord
	for rows.Next() {
		var rec AcceptanceRecord
		var acceptedAt int64
		if err := rows.Scan(&rec.RecipientPrincipal, &rec.InvitationID, &acceptedAt); err != nil {
			return nil, fmt.Errorf("failed to scan acceptance: %w", err)
		}
		rec.AcceptedAt = time.Unix(acceptedAt, 0).UTC()
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// DeleteAcceptance removes a recipient's acceptance of an invitation
func (s *SQLiteStore) DeleteAcceptance(ctx context.Context, principal, invitationID string) error {
	query := `DELETE FROM acceptances WHERE recipient_principal = ? AND invitation_id = ?`
	result, err := s.db.ExecContext(ctx, query, principal, invitationID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAcceptanceNotFound
	}

	return nil
}

// scanInvitation scans an invitation from a database row
func (s *SQLiteStore) scanInvitation(scanner interface {
	Scan(dest ...interface{}) error
}) (*Invitation, error) {
	var inv Invitation
	var roots string
	var attachments sql.NullString
	var createdAt int64

	err := scanner.Scan(
		&inv.ID,
		&inv.IssuerBucket,
		&inv.Token,
		&roots,
		&attachments,
		&createdAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvitationNotFound
		}
		return nil, fmt.Errorf("failed to scan invitation: %w", err)
	}

	if err := json.Unmarshal([]byte(roots), &inv.Roots); err != nil {
		return nil, fmt.Errorf("failed to unmarshal roots: %w", err)
	}

	if attachments.Valid {
		if err := json.Unmarshal([]byte(attachments.String), &inv.Attachments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attachments: %w", err)
		}
	}

	inv.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &inv, nil
}
