package resource

import (
	"errors"
	"path"
	"time"
)

// Kind identifies what a resource is.
type Kind string

const (
	KindFolder       Kind = "folder"
	KindConversation Kind = "conversation"
)

// Ref addresses a resource by its owner bucket and path. The (OwnerBucket,
// Path) pair is the external identity of a resource; it changes when the
// resource is renamed or moved.
type Ref struct {
	OwnerBucket string `json:"ownerBucket"`
	Path        string `json:"path"`
	Kind        Kind   `json:"kind"`
}

// Name returns the final path segment.
func (r Ref) Name() string {
	return path.Base(r.Path)
}

// ParentPath returns the path of the containing folder, or "" for a
// top-level resource.
func (r Ref) ParentPath() string {
	dir := path.Dir(r.Path)
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}

// Message is a single exchange entry in a conversation. Attachments are
// content paths into the owner's attachment namespace.
type Message struct {
	Role        string    `json:"role"` // "user" or "assistant"
	Content     string    `json:"content"`
	Attachments []string  `json:"attachments,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Resource is a folder or conversation stored in a bucket. ID is a stable
// identifier that survives rename and move; Path is the current location.
type Resource struct {
	ID          string    `json:"id"`
	OwnerBucket string    `json:"ownerBucket"`
	Path        string    `json:"path"`
	Kind        Kind      `json:"kind"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// Messages is populated for conversations only.
	Messages []Message `json:"messages,omitempty"`
}

// Ref returns the resource's current address.
func (r *Resource) Ref() Ref {
	return Ref{OwnerBucket: r.OwnerBucket, Path: r.Path, Kind: r.Kind}
}

// Name returns the final path segment.
func (r *Resource) Name() string {
	return path.Base(r.Path)
}

// ParentPath returns the path of the containing folder, or "" for a
// top-level resource.
func (r *Resource) ParentPath() string {
	return r.Ref().ParentPath()
}

// Common resource errors
var (
	ErrResourceNotFound   = errors.New("resource not found")
	ErrResourceExists     = errors.New("resource already exists")
	ErrAttachmentNotFound = errors.New("attachment not found")
	ErrInvalidPath        = errors.New("invalid resource path")
	ErrNotAFolder         = errors.New("resource is not a folder")
	ErrNotAConversation   = errors.New("resource is not a conversation")
)
