package share

import (
	"context"
)

// Store defines the interface for invitation and acceptance persistence
type Store interface {
	CreateInvitation(ctx context.Context, inv *Invitation) error
	GetInvitation(ctx context.Context, invitationID string) (*Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	ListInvitations(ctx context.Context, issuerBucket string) ([]*Invitation, error)
	DeleteInvitation(ctx context.Context, invitationID string) error

	// UpsertAcceptance creates the acceptance record if it does not exist.
	// Concurrent duplicate calls for the same pair are safe and converge on
	// one row.
	UpsertAcceptance(ctx context.Context, rec *AcceptanceRecord) error
	GetAcceptance(ctx context.Context, principal, invitationID string) (*AcceptanceRecord, error)
	ListAcceptances(ctx context.Context, principal string) ([]*AcceptanceRecord, error)
	DeleteAcceptance(ctx context.Context, principal, invitationID string) error
}
