package resource

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestStore(t *testing.T) *BadgerStore {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	store, err := NewBadgerStore(BadgerOptions{
		DataDir: t.TempDir(),
		Logger:  logger,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestCreateFolder(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	folder, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)
	assert.NotEmpty(t, folder.ID)
	assert.Equal(t, "alice", folder.OwnerBucket)
	assert.Equal(t, "projects", folder.Path)
	assert.Equal(t, KindFolder, folder.Kind)
}

func TestCreateConversation(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	messages := []Message{
		{Role: "user", Content: "hello", CreatedAt: time.Now().UTC()},
		{Role: "assistant", Content: "hi there", CreatedAt: time.Now().UTC()},
	}

	conv, err := store.CreateConversation(ctx, "alice", "chat-1", messages)
	require.NoError(t, err)
	assert.Equal(t, KindConversation, conv.Kind)
	assert.Len(t, conv.Messages, 2)
}

func TestCreate_DuplicatePath(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)

	_, err = store.CreateFolder(ctx, "alice", "projects")
	assert.ErrorIs(t, err, ErrResourceExists)
}

func TestCreate_MissingParent(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateConversation(ctx, "alice", "missing/chat-1", nil)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestCreate_ParentNotAFolder(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)

	_, err = store.CreateConversation(ctx, "alice", "chat-1/nested", nil)
	assert.ErrorIs(t, err, ErrNotAFolder)
}

func TestCreate_InvalidPath(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"", "/abs", "trailing/", "a//b", "a/../b", "."} {
		_, err := store.CreateFolder(ctx, "alice", p)
		assert.ErrorIs(t, err, ErrInvalidPath, "path %q", p)
	}
}

func TestGetByID_FollowsRelocation(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)

	_, err = store.CreateFolder(ctx, "alice", "archive")
	require.NoError(t, err)

	_, err = store.Move(ctx, "alice", "chat-1", "archive")
	require.NoError(t, err)

	got, err := store.GetByID(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "archive/chat-1", got.Path)
	assert.Equal(t, conv.ID, got.ID)
}

func TestListChildren(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "projects/chat-b", nil)
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "projects/chat-a", nil)
	require.NoError(t, err)
	_, err = store.CreateFolder(ctx, "alice", "projects/sub")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "projects/sub/deep", nil)
	require.NoError(t, err)

	children, err := store.ListChildren(ctx, "alice", "projects")
	require.NoError(t, err)
	require.Len(t, children, 3)
	assert.Equal(t, "projects/chat-a", children[0].Path)
	assert.Equal(t, "projects/chat-b", children[1].Path)
	assert.Equal(t, "projects/sub", children[2].Path)
}

func TestListChildren_TopLevel(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "projects/nested", nil)
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)

	roots, err := store.ListChildren(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "chat-1", roots[0].Path)
	assert.Equal(t, "projects", roots[1].Path)
}

func TestListChildren_NotAFolder(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)

	_, err = store.ListChildren(ctx, "alice", "chat-1")
	assert.ErrorIs(t, err, ErrNotAFolder)
}

func TestRename(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	conv, err := store.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)

	renamed, err := store.Rename(ctx, "alice", "chat-1", "chat-renamed")
	require.NoError(t, err)
	assert.Equal(t, "chat-renamed", renamed.Path)
	assert.Equal(t, conv.ID, renamed.ID)

	_, err = store.Get(ctx, "alice", "chat-1")
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestRename_FolderRewritesDescendants(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)
	_, err = store.CreateFolder(ctx, "alice", "projects/sub")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "projects/sub/chat", nil)
	require.NoError(t, err)

	_, err = store.Rename(ctx, "alice", "projects", "work")
	require.NoError(t, err)

	got, err := store.Get(ctx, "alice", "work/sub/chat")
	require.NoError(t, err)
	assert.Equal(t, KindConversation, got.Kind)

	_, err = store.Get(ctx, "alice", "projects/sub/chat")
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestMove(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)
	conv, err := store.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)

	moved, err := store.Move(ctx, "alice", "chat-1", "projects")
	require.NoError(t, err)
	assert.Equal(t, "projects/chat-1", moved.Path)
	assert.Equal(t, conv.ID, moved.ID)
	assert.Equal(t, "chat-1", moved.Name())
}

func TestMove_ToTopLevel(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "projects/chat-1", nil)
	require.NoError(t, err)

	moved, err := store.Move(ctx, "alice", "projects/chat-1", "")
	require.NoError(t, err)
	assert.Equal(t, "chat-1", moved.Path)
}

func TestMove_TargetExists(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "projects/chat-1", nil)
	require.NoError(t, err)

	_, err = store.Move(ctx, "alice", "chat-1", "projects")
	assert.ErrorIs(t, err, ErrResourceExists)
}

func TestMove_FolderIntoOwnSubtree(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "f")
	require.NoError(t, err)
	_, err = store.CreateFolder(ctx, "alice", "f/sub")
	require.NoError(t, err)
	_, err = store.CreateConversation(ctx, "alice", "f/chat", nil)
	require.NoError(t, err)

	_, err = store.Move(ctx, "alice", "f", "f")
	assert.ErrorIs(t, err, ErrInvalidPath)

	_, err = store.Move(ctx, "alice", "f", "f/sub")
	assert.ErrorIs(t, err, ErrInvalidPath)

	// The tree is untouched and still reachable from the top level
	roots, err := store.ListChildren(ctx, "alice", "")
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "f", roots[0].Path)

	children, err := store.ListChildren(ctx, "alice", "f")
	require.NoError(t, err)
	assert.Len(t, children, 2)
}

func TestMove_SharedNamePrefixIsNotAncestry(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "f")
	require.NoError(t, err)
	_, err = store.CreateFolder(ctx, "alice", "fx")
	require.NoError(t, err)

	// "fx" merely shares a name prefix with "f"; the move is legal
	moved, err := store.Move(ctx, "alice", "f", "fx")
	require.NoError(t, err)
	assert.Equal(t, "fx/f", moved.Path)
}

func TestDelete_FolderRecursive(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)
	conv, err := store.CreateConversation(ctx, "alice", "projects/chat", nil)
	require.NoError(t, err)

	err = store.Delete(ctx, "alice", "projects")
	require.NoError(t, err)

	_, err = store.Get(ctx, "alice", "projects/chat")
	assert.ErrorIs(t, err, ErrResourceNotFound)

	// ID index entries must vanish with the rows
	_, err = store.GetByID(ctx, conv.ID)
	assert.ErrorIs(t, err, ErrResourceNotFound)
}

func TestAppendMessage(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)

	err = store.AppendMessage(ctx, "alice", "chat-1", Message{
		Role: "user", Content: "hello", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	got, err := store.Get(ctx, "alice", "chat-1")
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestAppendMessage_NotAConversation(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)

	err = store.AppendMessage(ctx, "alice", "projects", Message{Role: "user", Content: "x"})
	assert.ErrorIs(t, err, ErrNotAConversation)
}

func TestAttachments(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	payload := []byte{0x89, 0x50, 0x4e, 0x47}
	err := store.PutAttachment(ctx, "alice", "attachments/img-1.png", payload)
	require.NoError(t, err)

	data, err := store.GetAttachment(ctx, "alice", "attachments/img-1.png")
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = store.GetAttachment(ctx, "alice", "attachments/absent.png")
	assert.ErrorIs(t, err, ErrAttachmentNotFound)
}

func TestBucketIsolation(t *testing.T) {
	store := createTestStore(t)
	ctx := context.Background()

	_, err := store.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)

	_, err = store.Get(ctx, "bob", "chat-1")
	assert.ErrorIs(t, err, ErrResourceNotFound)
}
