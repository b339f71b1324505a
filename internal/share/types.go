package share

import (
	"errors"
	"time"

	"github.com/convoshare/convoshare/internal/resource"
)

// Root is one shared entry point of an invitation. ResourceID is the stable
// identity used for resolution; Path is kept as issued so the rename rule can
// compare name segments later. DisplayName optionally overrides the name
// shown to recipients for the synthetic top-level node.
type Root struct {
	ResourceID     string        `json:"resourceId"`
	OwnerBucket    string        `json:"ownerBucket"`
	Path           string        `json:"path"`
	Kind           resource.Kind `json:"kind"`
	IncludeSubtree bool          `json:"includeSubtree"`
	DisplayName    string        `json:"displayName,omitempty"`
}

// IssuedName returns the final path segment the root had at issuance.
func (r Root) IssuedName() string {
	return resource.Ref{Path: r.Path}.Name()
}

// Invitation is the durable record of what was shared and how. It is never
// mutated after creation; revocation deletes it.
type Invitation struct {
	ID           string    `json:"id"`
	IssuerBucket string    `json:"issuerBucket"`
	Token        string    `json:"-"` // Never expose in JSON
	Roots        []Root    `json:"roots"`
	Attachments  []string  `json:"attachments,omitempty"` // companion content paths
	CreatedAt    time.Time `json:"createdAt"`
}

// AcceptanceRecord links a recipient principal to an invitation. At most one
// record exists per (recipient, invitation) pair.
type AcceptanceRecord struct {
	RecipientPrincipal string    `json:"recipientPrincipal"`
	InvitationID       string    `json:"invitationId"`
	AcceptedAt         time.Time `json:"acceptedAt"`
}

// Common share errors
var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrAcceptanceNotFound = errors.New("acceptance not found")
	ErrEmptyShare         = errors.New("share must reference at least one resource")
	ErrNotOwner           = errors.New("caller does not own the referenced resource")
	ErrForbidden          = errors.New("operation not permitted")
	ErrRootOrphaned       = errors.New("shared root no longer resolves")
)
