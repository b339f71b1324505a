// Package mirror computes the recipient-facing "Shared with me" view. The
// view is derived: every query re-resolves the principal's acceptance
// records against the live resource store, so there is no stored copy to
// invalidate when owners rename, move, extend, or delete shared resources.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/convoshare/convoshare/internal/resource"
	"github.com/convoshare/convoshare/internal/share"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned when the resource store fails transiently
// during mirror computation. A partial result would silently hide shares, so
// the whole read fails instead.
var ErrUnavailable = errors.New("shared view temporarily unavailable")

// Node is the recipient-visible projection of a shared resource. It is
// computed per query and never persisted. InvitationID is set only on
// top-level nodes: those are the removal points offered to the recipient.
type Node struct {
	Ref          resource.Ref  `json:"ref"`
	ResourceID   string        `json:"resourceId,omitempty"`
	Name         string        `json:"name"`
	Kind         resource.Kind `json:"kind"`
	InvitationID string        `json:"invitationId,omitempty"`
	Breadcrumb   bool          `json:"breadcrumb,omitempty"`
	Children     []*Node       `json:"children,omitempty"`
}

// Manager computes mirror views for recipients.
type Manager struct {
	shares    share.Store
	resources resource.Store
}

// NewManager creates a new mirror manager.
func NewManager(shares share.Store, resources resource.Store) *Manager {
	return &Manager{
		shares:    shares,
		resources: resources,
	}
}

// ListSharedWithMe computes the principal's full shared view, ordered by
// acceptance time. Orphaned roots and revoked invitations are omitted, not
// surfaced as broken entries.
func (m *Manager) ListSharedWithMe(ctx context.Context, principal string) ([]*Node, error) {
	records, err := m.shares.ListAcceptances(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	nodes := []*Node{}
	for _, rec := range records {
		inv, err := m.shares.GetInvitation(ctx, rec.InvitationID)
		if errors.Is(err, share.ErrInvitationNotFound) {
			// Invitation revoked since acceptance
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		roots, resources, err := share.LiveRoots(ctx, m.resources, inv)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for idx, root := range roots {
			node, err := m.rootNode(ctx, inv, root, resources[idx])
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
	}

	logrus.WithFields(logrus.Fields{
		"principal": principal,
		"roots":     len(nodes),
	}).Debug("Computed shared-with-me view")

	return nodes, nil
}

// rootNode projects one live invitation root into a mirror tree.
func (m *Manager) rootNode(ctx context.Context, inv *share.Invitation, root share.Root, res *resource.Resource) (*Node, error) {
	name := res.Name()
	if root.DisplayName != "" {
		name = root.DisplayName
	}

	node := &Node{
		Ref:          res.Ref(),
		ResourceID:   res.ID,
		Name:         name,
		Kind:         res.Kind,
		InvitationID: inv.ID,
	}

	if root.IncludeSubtree && res.Kind == resource.KindFolder {
		children, err := m.expand(ctx, res.OwnerBucket, res.Path)
		if err != nil {
			return nil, err
		}
		node.Children = children
		return node, nil
	}

	// A leaf conversation nested in a folder gets a cosmetic ancestor
	// breadcrumb named after the folder's current name. It grants no access
	// to siblings and is not independently removable.
	if res.Kind == resource.KindConversation && res.ParentPath() != "" {
		breadcrumb := &Node{
			Ref: resource.Ref{
				OwnerBucket: res.OwnerBucket,
				Path:        res.ParentPath(),
				Kind:        resource.KindFolder,
			},
			Name:         path.Base(res.ParentPath()),
			Kind:         resource.KindFolder,
			InvitationID: inv.ID,
			Breadcrumb:   true,
		}
		node.InvitationID = ""
		breadcrumb.Children = []*Node{node}
		return breadcrumb, nil
	}

	return node, nil
}

// expand recursively projects the live descendants of a subtree-shared
// folder. No per-child allow-list: whatever is under the folder right now is
// visible.
func (m *Manager) expand(ctx context.Context, bucket, folderPath string) ([]*Node, error) {
	children, err := m.resources.ListChildren(ctx, bucket, folderPath)
	if err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) || errors.Is(err, resource.ErrNotAFolder) {
			// Vanished mid-read; absent on this read is acceptable
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var nodes []*Node
	for _, child := range children {
		node := &Node{
			Ref:        child.Ref(),
			ResourceID: child.ID,
			Name:       child.Name(),
			Kind:       child.Kind,
		}
		if child.Kind == resource.KindFolder {
			sub, err := m.expand(ctx, bucket, child.Path)
			if err != nil {
				return nil, err
			}
			node.Children = sub
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// ListFolderChildren lists the current children of a folder the principal
// can see through a subtree share. Folders reachable only as breadcrumbs are
// not listable.
func (m *Manager) ListFolderChildren(ctx context.Context, principal string, ref resource.Ref) ([]*Node, error) {
	covered, err := m.coveredBySubtree(ctx, principal, ref)
	if err != nil {
		return nil, err
	}
	if !covered {
		return nil, share.ErrForbidden
	}

	return m.expandShallow(ctx, ref)
}

func (m *Manager) expandShallow(ctx context.Context, ref resource.Ref) ([]*Node, error) {
	children, err := m.resources.ListChildren(ctx, ref.OwnerBucket, ref.Path)
	if err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) || errors.Is(err, resource.ErrNotAFolder) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var nodes []*Node
	for _, child := range children {
		nodes = append(nodes, &Node{
			Ref:        child.Ref(),
			ResourceID: child.ID,
			Name:       child.Name(),
			Kind:       child.Kind,
		})
	}
	return nodes, nil
}

// coveredBySubtree reports whether ref lies at or below a live subtree root
// of one of the principal's accepted invitations.
func (m *Manager) coveredBySubtree(ctx context.Context, principal string, ref resource.Ref) (bool, error) {
	records, err := m.shares.ListAcceptances(ctx, principal)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, rec := range records {
		inv, err := m.shares.GetInvitation(ctx, rec.InvitationID)
		if errors.Is(err, share.ErrInvitationNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for _, root := range inv.Roots {
			if !root.IncludeSubtree || root.OwnerBucket != ref.OwnerBucket {
				continue
			}
			res, err := share.ResolveRoot(ctx, m.resources, root)
			if errors.Is(err, share.ErrRootOrphaned) {
				continue
			}
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			if ref.Path == res.Path || strings.HasPrefix(ref.Path, res.Path+"/") {
				return true, nil
			}
		}
	}

	return false, nil
}

// ConversationVisible reports whether the principal can currently see the
// conversation at ref through any accepted share, either as a direct leaf
// root or inside a live subtree.
func (m *Manager) ConversationVisible(ctx context.Context, principal string, ref resource.Ref) (bool, error) {
	covered, err := m.coveredBySubtree(ctx, principal, ref)
	if err != nil {
		return false, err
	}
	if covered {
		return true, nil
	}

	records, err := m.shares.ListAcceptances(ctx, principal)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, rec := range records {
		inv, err := m.shares.GetInvitation(ctx, rec.InvitationID)
		if errors.Is(err, share.ErrInvitationNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		for _, root := range inv.Roots {
			if root.Kind != resource.KindConversation || root.OwnerBucket != ref.OwnerBucket {
				continue
			}
			res, err := share.ResolveRoot(ctx, m.resources, root)
			if errors.Is(err, share.ErrRootOrphaned) {
				continue
			}
			if err != nil {
				return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			if res.Path == ref.Path {
				return true, nil
			}
		}
	}

	return false, nil
}

// OpenAttachment returns the bytes of an attachment companion resource.
// Companions are addressed by content path, independent of the owning
// conversation's mutable location; access holds as long as the invitation
// that named them still has a live root.
func (m *Manager) OpenAttachment(ctx context.Context, principal, contentPath string) ([]byte, error) {
	records, err := m.shares.ListAcceptances(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	for _, rec := range records {
		inv, err := m.shares.GetInvitation(ctx, rec.InvitationID)
		if errors.Is(err, share.ErrInvitationNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		if !containsString(inv.Attachments, contentPath) {
			continue
		}

		live, _, err := share.LiveRoots(ctx, m.resources, inv)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(live) == 0 {
			continue
		}

		data, err := m.resources.GetAttachment(ctx, inv.IssuerBucket, contentPath)
		if err != nil {
			if errors.Is(err, resource.ErrAttachmentNotFound) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return data, nil
	}

	return nil, resource.ErrAttachmentNotFound
}

// RemoveFromView deletes the principal's acceptance of an invitation. The
// invitation itself and the owner's resources are untouched; the same token
// can be redeemed again later to rebuild the view.
func (m *Manager) RemoveFromView(ctx context.Context, principal, invitationID string) error {
	return m.shares.DeleteAcceptance(ctx, principal, invitationID)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
