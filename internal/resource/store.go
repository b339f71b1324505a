package resource

import (
	"context"
)

// Store is the hierarchical conversation/folder store. Resources are
// addressed by (bucket, path); every resource also carries a stable ID that
// survives rename and move, which GetByID resolves.
type Store interface {
	CreateFolder(ctx context.Context, bucket, p string) (*Resource, error)
	CreateConversation(ctx context.Context, bucket, p string, messages []Message) (*Resource, error)
	Get(ctx context.Context, bucket, p string) (*Resource, error)
	GetByID(ctx context.Context, id string) (*Resource, error)

	// ListChildren returns the immediate children of a folder path, sorted
	// by path. An empty path lists the bucket roots.
	ListChildren(ctx context.Context, bucket, p string) ([]*Resource, error)

	// Rename changes the final path segment, keeping the parent. Descendant
	// paths of a renamed folder are rewritten.
	Rename(ctx context.Context, bucket, p, newName string) (*Resource, error)

	// Move relocates a resource under a different parent folder, keeping its
	// name. Descendant paths of a moved folder are rewritten.
	Move(ctx context.Context, bucket, p, newParent string) (*Resource, error)

	// Delete removes a resource; folders are removed recursively.
	Delete(ctx context.Context, bucket, p string) error

	AppendMessage(ctx context.Context, bucket, p string, msg Message) error

	PutAttachment(ctx context.Context, bucket, contentPath string, data []byte) error
	GetAttachment(ctx context.Context, bucket, contentPath string) ([]byte, error)

	Close() error
}
