package share

import (
	"context"
	"errors"
	"time"

	"github.com/convoshare/convoshare/internal/resource"
	"github.com/sirupsen/logrus"
)

// Resolver redeems share tokens into acceptance records.
type Resolver struct {
	store     Store
	resources resource.Store
}

// NewResolver creates a new invitation resolver.
func NewResolver(store Store, resources resource.Store) *Resolver {
	return &Resolver{
		store:     store,
		resources: resources,
	}
}

// Redeem looks up the invitation behind a token and records the principal's
// acceptance. Redeeming an already-accepted token is a no-op that returns
// success. Unknown tokens and invitations whose every root is orphaned fail
// with ErrInvitationNotFound; a fully-orphaned invitation is deleted on the
// way out so its token converges to a hard not-found.
func (r *Resolver) Redeem(ctx context.Context, token, principal string) (*Invitation, error) {
	if token == "" {
		return nil, ErrInvitationNotFound
	}

	inv, err := r.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	live, _, err := LiveRoots(ctx, r.resources, inv)
	if err != nil {
		return nil, err
	}
	if len(live) == 0 {
		if delErr := r.store.DeleteInvitation(ctx, inv.ID); delErr != nil && !errors.Is(delErr, ErrInvitationNotFound) {
			logrus.WithError(delErr).WithField("invitation_id", inv.ID).Warn("Failed to delete orphaned invitation")
		}
		return nil, ErrInvitationNotFound
	}

	rec := &AcceptanceRecord{
		RecipientPrincipal: principal,
		InvitationID:       inv.ID,
		AcceptedAt:         time.Now().UTC(),
	}
	if err := r.store.UpsertAcceptance(ctx, rec); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"principal":     principal,
	}).Info("Invitation redeemed")

	return inv, nil
}

// Remove deletes the principal's acceptance of an invitation. This is a
// local-only removal: the invitation and its token stay valid, and a later
// redeem of the same token rebuilds the full shared structure.
func (r *Resolver) Remove(ctx context.Context, principal, invitationID string) error {
	return r.store.DeleteAcceptance(ctx, principal, invitationID)
}
