// Package replay converts mirrored, foreign-owned conversations into new
// conversations owned by the recipient. The copies are ordinary resource
// creates with no ongoing relationship to the share they came from.
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/convoshare/convoshare/internal/mirror"
	"github.com/convoshare/convoshare/internal/resource"
	"github.com/sirupsen/logrus"
)

// ErrNotVisible is returned when the requested conversation is not currently
// visible to the principal through any accepted share.
var ErrNotVisible = errors.New("conversation is not shared with this principal")

// Manager creates owned copies of shared conversations.
type Manager struct {
	mirror    *mirror.Manager
	resources resource.Store
}

// NewManager creates a new replay manager.
func NewManager(m *mirror.Manager, resources resource.Store) *Manager {
	return &Manager{
		mirror:    m,
		resources: resources,
	}
}

// Replay creates a conversation in the principal's own bucket seeded with
// the shared conversation's user messages, ready to be re-sent against a
// model.
func (m *Manager) Replay(ctx context.Context, principal string, ref resource.Ref) (*resource.Resource, error) {
	src, err := m.visibleConversation(ctx, principal, ref)
	if err != nil {
		return nil, err
	}

	var seed []resource.Message
	for _, msg := range src.Messages {
		if msg.Role == "user" {
			seed = append(seed, msg)
		}
	}

	return m.createCopy(ctx, principal, src.Name(), seed)
}

// Playback creates a conversation in the principal's own bucket carrying the
// shared conversation's full recorded message stack, to be stepped through
// without contacting a model.
func (m *Manager) Playback(ctx context.Context, principal string, ref resource.Ref) (*resource.Resource, error) {
	src, err := m.visibleConversation(ctx, principal, ref)
	if err != nil {
		return nil, err
	}

	messages := make([]resource.Message, len(src.Messages))
	copy(messages, src.Messages)

	return m.createCopy(ctx, principal, src.Name(), messages)
}

func (m *Manager) visibleConversation(ctx context.Context, principal string, ref resource.Ref) (*resource.Resource, error) {
	visible, err := m.mirror.ConversationVisible(ctx, principal, ref)
	if err != nil {
		return nil, err
	}
	if !visible {
		return nil, ErrNotVisible
	}

	src, err := m.resources.Get(ctx, ref.OwnerBucket, ref.Path)
	if err != nil {
		return nil, err
	}
	if src.Kind != resource.KindConversation {
		return nil, resource.ErrNotAConversation
	}

	return src, nil
}

// createCopy creates the owned conversation, suffixing the name on collision
// so repeated derivations never fail on an existing path.
func (m *Manager) createCopy(ctx context.Context, principal, name string, messages []resource.Message) (*resource.Resource, error) {
	target := name
	for attempt := 1; ; attempt++ {
		created, err := m.resources.CreateConversation(ctx, principal, target, messages)
		if errors.Is(err, resource.ErrResourceExists) {
			target = fmt.Sprintf("%s (%d)", name, attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"principal": principal,
			"path":      created.Path,
			"messages":  len(messages),
		}).Info("Derived conversation created")

		return created, nil
	}
}
