package share

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/convoshare/convoshare/internal/resource"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Issuer turns an owner's selection of resources into a durable invitation
// with an opaque redeemable token.
type Issuer struct {
	store     Store
	resources resource.Store
	publicURL string
}

// NewIssuer creates a new share-link issuer. publicURL is the externally
// reachable base URL used to render invitation links.
func NewIssuer(store Store, resources resource.Store, publicURL string) *Issuer {
	return &Issuer{
		store:     store,
		resources: resources,
		publicURL: publicURL,
	}
}

// Issue creates an invitation for the given refs. Every ref must exist in
// issuerBucket; if any does not, nothing is issued. Conversations contribute
// their message attachments as opaque companion resources so recipients can
// fetch embedded binary content without wider access to the owner's
// attachment namespace. Issuing twice for the same refs produces independent
// invitations.
func (i *Issuer) Issue(ctx context.Context, issuerBucket string, refs []resource.Ref, includeSubtree bool, displayRootName string) (*Invitation, error) {
	if len(refs) == 0 {
		return nil, ErrEmptyShare
	}

	var roots []Root
	var attachments []string
	seen := make(map[string]bool)

	for _, ref := range refs {
		if ref.OwnerBucket != issuerBucket {
			return nil, ErrNotOwner
		}

		res, err := i.resources.Get(ctx, ref.OwnerBucket, ref.Path)
		if err != nil {
			return nil, err
		}

		roots = append(roots, Root{
			ResourceID:     res.ID,
			OwnerBucket:    res.OwnerBucket,
			Path:           res.Path,
			Kind:           res.Kind,
			IncludeSubtree: includeSubtree && res.Kind == resource.KindFolder,
			DisplayName:    displayRootName,
		})

		companions, err := i.collectAttachments(ctx, res, includeSubtree)
		if err != nil {
			return nil, err
		}
		for _, p := range companions {
			if !seen[p] {
				seen[p] = true
				attachments = append(attachments, p)
			}
		}
	}

	token, err := generateShareToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate share token: %w", err)
	}

	inv := &Invitation{
		ID:           uuid.New().String(),
		IssuerBucket: issuerBucket,
		Token:        token,
		Roots:        roots,
		Attachments:  attachments,
		CreatedAt:    time.Now().UTC(),
	}

	if err := i.store.CreateInvitation(ctx, inv); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"invitation_id": inv.ID,
		"issuer_bucket": issuerBucket,
		"roots":         len(roots),
		"attachments":   len(attachments),
	}).Info("Invitation issued")

	return inv, nil
}

// collectAttachments gathers attachment content paths referenced by a
// conversation's messages. Subtree folder shares collect from every
// conversation below the root so embedded content stays fetchable.
func (i *Issuer) collectAttachments(ctx context.Context, res *resource.Resource, includeSubtree bool) ([]string, error) {
	switch res.Kind {
	case resource.KindConversation:
		var out []string
		for _, msg := range res.Messages {
			out = append(out, msg.Attachments...)
		}
		return out, nil

	case resource.KindFolder:
		if !includeSubtree {
			return nil, nil
		}
		children, err := i.resources.ListChildren(ctx, res.OwnerBucket, res.Path)
		if err != nil {
			return nil, err
		}
		var out []string
		for _, child := range children {
			companions, err := i.collectAttachments(ctx, child, includeSubtree)
			if err != nil {
				return nil, err
			}
			out = append(out, companions...)
		}
		return out, nil
	}

	return nil, nil
}

// Link renders the shareable URL whose path encodes the opaque token.
func (i *Issuer) Link(inv *Invitation) string {
	u, err := url.Parse(i.publicURL)
	if err != nil {
		return i.publicURL + "/share/" + inv.Token
	}
	return u.JoinPath("share", inv.Token).String()
}

// Revoke deletes an invitation. Only the issuing bucket may revoke.
func (i *Issuer) Revoke(ctx context.Context, issuerBucket, invitationID string) error {
	inv, err := i.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}

	if inv.IssuerBucket != issuerBucket {
		return ErrForbidden
	}

	return i.store.DeleteInvitation(ctx, invitationID)
}

// ListIssued lists invitations issued from a bucket.
func (i *Issuer) ListIssued(ctx context.Context, issuerBucket string) ([]*Invitation, error) {
	return i.store.ListInvitations(ctx, issuerBucket)
}

func generateShareToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
