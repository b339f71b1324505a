package share

import (
	"context"
	"testing"

	"github.com/convoshare/convoshare/internal/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedeem(t *testing.T) {
	store, resources := setupTestStores(t)
	issuer := NewIssuer(store, resources, "http://localhost:8080")
	resolver := NewResolver(store, resources)
	ctx := context.Background()

	conv, err := resources.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)
	inv, err := issuer.Issue(ctx, "alice", []resource.Ref{conv.Ref()}, false, "")
	require.NoError(t, err)

	redeemed, err := resolver.Redeem(ctx, inv.Token, "bob")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, redeemed.ID)

	rec, err := store.GetAcceptance(ctx, "bob", inv.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.RecipientPrincipal)
}

func TestRedeem_Idempotent(t *testing.T) {
	store, resources := setupTestStores(t)
	issuer := NewIssuer(store, resources, "http://localhost:8080")
	resolver := NewResolver(store, resources)
	ctx := context.Background()

	conv, err := resources.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)
	inv, err := issuer.Issue(ctx, "alice", []resource.Ref{conv.Ref()}, false, "")
	require.NoError(t, err)

	_, err = resolver.Redeem(ctx, inv.Token, "bob")
	require.NoError(t, err)
	first, err := store.GetAcceptance(ctx, "bob", inv.ID)
	require.NoError(t, err)

	_, err = resolver.Redeem(ctx, inv.Token, "bob")
	require.NoError(t, err)
	second, err := store.GetAcceptance(ctx, "bob", inv.ID)
	require.NoError(t, err)

	// Same record, no duplication
	assert.Equal(t, first.AcceptedAt, second.AcceptedAt)

	records, err := store.ListAcceptances(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRedeem_UnknownToken(t *testing.T) {
	store, resources := setupTestStores(t)
	resolver := NewResolver(store, resources)

	_, err := resolver.Redeem(context.Background(), "no-such-token", "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = resolver.Redeem(context.Background(), "", "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestRedeem_DeletedRoot(t *testing.T) {
	store, resources := setupTestStores(t)
	issuer := NewIssuer(store, resources, "http://localhost:8080")
	resolver := NewResolver(store, resources)
	ctx := context.Background()

	conv, err := resources.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)
	inv, err := issuer.Issue(ctx, "alice", []resource.Ref{conv.Ref()}, false, "")
	require.NoError(t, err)

	require.NoError(t, resources.Delete(ctx, "alice", "chat-1"))

	_, err = resolver.Redeem(ctx, inv.Token, "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)

	// The orphaned invitation is gone for good
	_, err = store.GetInvitation(ctx, inv.ID)
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestRedeem_RenamedRoot(t *testing.T) {
	store, resources := setupTestStores(t)
	issuer := NewIssuer(store, resources, "http://localhost:8080")
	resolver := NewResolver(store, resources)
	ctx := context.Background()

	conv, err := resources.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)
	inv, err := issuer.Issue(ctx, "alice", []resource.Ref{conv.Ref()}, false, "")
	require.NoError(t, err)

	_, err = resources.Rename(ctx, "alice", "chat-1", "chat-2")
	require.NoError(t, err)

	_, err = resolver.Redeem(ctx, inv.Token, "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestRedeem_MovedRootStaysLive(t *testing.T) {
	store, resources := setupTestStores(t)
	issuer := NewIssuer(store, resources, "http://localhost:8080")
	resolver := NewResolver(store, resources)
	ctx := context.Background()

	conv, err := resources.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)
	_, err = resources.CreateFolder(ctx, "alice", "archive")
	require.NoError(t, err)

	inv, err := issuer.Issue(ctx, "alice", []resource.Ref{conv.Ref()}, false, "")
	require.NoError(t, err)

	_, err = resources.Move(ctx, "alice", "chat-1", "archive")
	require.NoError(t, err)

	_, err = resolver.Redeem(ctx, inv.Token, "bob")
	assert.NoError(t, err)
}

func TestRedeem_PartiallyOrphanedInvitation(t *testing.T) {
	store, resources := setupTestStores(t)
	issuer := NewIssuer(store, resources, "http://localhost:8080")
	resolver := NewResolver(store, resources)
	ctx := context.Background()

	convA, err := resources.CreateConversation(ctx, "alice", "chat-a", nil)
	require.NoError(t, err)
	convB, err := resources.CreateConversation(ctx, "alice", "chat-b", nil)
	require.NoError(t, err)

	inv, err := issuer.Issue(ctx, "alice", []resource.Ref{convA.Ref(), convB.Ref()}, false, "")
	require.NoError(t, err)

	require.NoError(t, resources.Delete(ctx, "alice", "chat-a"))

	// One surviving root is enough to redeem
	_, err = resolver.Redeem(ctx, inv.Token, "bob")
	assert.NoError(t, err)
}

func TestRedeem_AfterRevoke(t *testing.T) {
	store, resources := setupTestStores(t)
	issuer := NewIssuer(store, resources, "http://localhost:8080")
	resolver := NewResolver(store, resources)
	ctx := context.Background()

	conv, err := resources.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)
	inv, err := issuer.Issue(ctx, "alice", []resource.Ref{conv.Ref()}, false, "")
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(ctx, "alice", inv.ID))

	_, err = resolver.Redeem(ctx, inv.Token, "bob")
	assert.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestRemove_ThenRedeemRecreatesAcceptance(t *testing.T) {
	store, resources := setupTestStores(t)
	issuer := NewIssuer(store, resources, "http://localhost:8080")
	resolver := NewResolver(store, resources)
	ctx := context.Background()

	conv, err := resources.CreateConversation(ctx, "alice", "chat-1", nil)
	require.NoError(t, err)
	inv, err := issuer.Issue(ctx, "alice", []resource.Ref{conv.Ref()}, false, "")
	require.NoError(t, err)

	_, err = resolver.Redeem(ctx, inv.Token, "bob")
	require.NoError(t, err)

	// Local removal is not a block-list
	require.NoError(t, resolver.Remove(ctx, "bob", inv.ID))
	_, err = store.GetAcceptance(ctx, "bob", inv.ID)
	assert.ErrorIs(t, err, ErrAcceptanceNotFound)

	_, err = resolver.Redeem(ctx, inv.Token, "bob")
	require.NoError(t, err)

	_, err = store.GetAcceptance(ctx, "bob", inv.ID)
	assert.NoError(t, err)
}

func TestRemove_Unknown(t *testing.T) {
	store, resources := setupTestStores(t)
	resolver := NewResolver(store, resources)

	err := resolver.Remove(context.Background(), "bob", "no-such-invitation")
	assert.ErrorIs(t, err, ErrAcceptanceNotFound)
}

func TestResolveRoot_RenameBelowSubtreeRootDoesNotOrphan(t *testing.T) {
	store, resources := setupTestStores(t)
	issuer := NewIssuer(store, resources, "http://localhost:8080")
	ctx := context.Background()

	folder, err := resources.CreateFolder(ctx, "alice", "projects")
	require.NoError(t, err)
	_, err = resources.CreateConversation(ctx, "alice", "projects/chat", nil)
	require.NoError(t, err)

	inv, err := issuer.Issue(ctx, "alice", []resource.Ref{folder.Ref()}, true, "")
	require.NoError(t, err)

	// Renaming a descendant only changes the recomputed children set
	_, err = resources.Rename(ctx, "alice", "projects/chat", "chat-renamed")
	require.NoError(t, err)

	res, err := ResolveRoot(ctx, resources, inv.Roots[0])
	require.NoError(t, err)
	assert.Equal(t, "projects", res.Path)
}
