package share

import (
	"context"
	"errors"

	"github.com/convoshare/convoshare/internal/resource"
)

// Propagation/invalidation rules. A root is resolved by its stable resource
// ID so that moves are followed, then checked against the rename rule:
//
//   - root deleted from the store        -> orphaned
//   - root's name segment changed        -> orphaned (rename severs the share)
//   - root relocated but name unchanged  -> still live (move keeps the share)
//
// Changes below a subtree root never orphan anything; they only alter the
// recomputed children set of the mirror.

// ResolveRoot resolves an invitation root against the resource store.
// Returns ErrRootOrphaned when the root no longer resolves under the rules
// above.
func ResolveRoot(ctx context.Context, store resource.Store, root Root) (*resource.Resource, error) {
	res, err := store.GetByID(ctx, root.ResourceID)
	if err != nil {
		if errors.Is(err, resource.ErrResourceNotFound) {
			return nil, ErrRootOrphaned
		}
		return nil, err
	}

	if res.Name() != root.IssuedName() {
		return nil, ErrRootOrphaned
	}

	return res, nil
}

// LiveRoots resolves every root of an invitation, dropping orphaned ones.
// The returned slices are parallel: roots[i] resolved to resources[i].
// A store failure other than not-found aborts the whole resolution.
func LiveRoots(ctx context.Context, store resource.Store, inv *Invitation) (roots []Root, resources []*resource.Resource, err error) {
	for _, root := range inv.Roots {
		res, err := ResolveRoot(ctx, store, root)
		if errors.Is(err, ErrRootOrphaned) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		roots = append(roots, root)
		resources = append(resources, res)
	}
	return roots, resources, nil
}
