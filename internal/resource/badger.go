package resource

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// BadgerStore implements the Store interface using BadgerDB
type BadgerStore struct {
	db     *badger.DB
	logger *logrus.Logger
}

// BadgerOptions contains configuration options for BadgerStore
type BadgerOptions struct {
	DataDir    string
	SyncWrites bool // If true, every write is synced to disk (slower but safer)
	InMemory   bool // In-memory mode, used by tests
	Logger     *logrus.Logger
}

// NewBadgerStore creates a new BadgerDB-backed resource store
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbPath := filepath.Join(opts.DataDir, "resources")
		badgerOpts = badger.DefaultOptions(dbPath).WithSyncWrites(opts.SyncWrites)
	}
	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger(opts.Logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	store := &BadgerStore{
		db:     db,
		logger: opts.Logger,
	}

	if !opts.InMemory {
		opts.Logger.WithField("path", filepath.Join(opts.DataDir, "resources")).Info("BadgerDB resource store initialized")
	}

	return store, nil
}

// ==================== Key Naming Scheme ====================
// This defines how we structure keys in BadgerDB for efficient lookups

func resourceKey(bucket, p string) []byte {
	return []byte(fmt.Sprintf("res:%s:%s", bucket, p))
}

func resourceIDKey(id string) []byte {
	return []byte(fmt.Sprintf("resid:%s", id))
}

func resourceListPrefix(bucket string) []byte {
	return []byte(fmt.Sprintf("res:%s:", bucket))
}

func attachmentKey(bucket, contentPath string) []byte {
	return []byte(fmt.Sprintf("att:%s:%s", bucket, contentPath))
}

// extractPathFromKey extracts the resource path from a BadgerDB key
func extractPathFromKey(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}

func validatePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return ErrInvalidPath
	}
	if p != path.Clean(p) || strings.Contains(p, "//") {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return ErrInvalidPath
		}
	}
	return nil
}

// ==================== Resource Operations ====================

func (s *BadgerStore) create(ctx context.Context, res *Resource) (*Resource, error) {
	if err := validatePath(res.Path); err != nil {
		return nil, err
	}

	key := resourceKey(res.OwnerBucket, res.Path)

	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key); err == nil {
			return ErrResourceExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		// A nested path requires its parent folder to exist
		if parent := res.ParentPath(); parent != "" {
			item, err := txn.Get(resourceKey(res.OwnerBucket, parent))
			if err == badger.ErrKeyNotFound {
				return ErrResourceNotFound
			}
			if err != nil {
				return err
			}
			var parentRes Resource
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &parentRes)
			}); err != nil {
				return err
			}
			if parentRes.Kind != KindFolder {
				return ErrNotAFolder
			}
		}

		return s.writeResource(txn, res)
	})
	if err != nil {
		return nil, err
	}

	return res, nil
}

// writeResource stores the resource row and its id index entry
func (s *BadgerStore) writeResource(txn *badger.Txn, res *Resource) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal resource: %w", err)
	}
	if err := txn.Set(resourceKey(res.OwnerBucket, res.Path), data); err != nil {
		return err
	}
	return txn.Set(resourceIDKey(res.ID), data)
}

// CreateFolder creates a new folder
func (s *BadgerStore) CreateFolder(ctx context.Context, bucket, p string) (*Resource, error) {
	now := time.Now().UTC()
	return s.create(ctx, &Resource{
		ID:          uuid.New().String(),
		OwnerBucket: bucket,
		Path:        p,
		Kind:        KindFolder,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

// CreateConversation creates a new conversation with an initial message stack
func (s *BadgerStore) CreateConversation(ctx context.Context, bucket, p string, messages []Message) (*Resource, error) {
	now := time.Now().UTC()
	return s.create(ctx, &Resource{
		ID:          uuid.New().String(),
		OwnerBucket: bucket,
		Path:        p,
		Kind:        KindConversation,
		CreatedAt:   now,
		UpdatedAt:   now,
		Messages:    messages,
	})
}

// Get retrieves a resource by bucket and path
func (s *BadgerStore) Get(ctx context.Context, bucket, p string) (*Resource, error) {
	var res Resource
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resourceKey(bucket, p))
		if err == badger.ErrKeyNotFound {
			return ErrResourceNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// GetByID retrieves a resource by its stable ID
func (s *BadgerStore) GetByID(ctx context.Context, id string) (*Resource, error) {
	var res Resource
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(resourceIDKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrResourceNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		})
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ListChildren lists the immediate children of a folder path. An empty path
// lists the bucket's top-level resources.
func (s *BadgerStore) ListChildren(ctx context.Context, bucket, p string) ([]*Resource, error) {
	if p != "" {
		folder, err := s.Get(ctx, bucket, p)
		if err != nil {
			return nil, err
		}
		if folder.Kind != KindFolder {
			return nil, ErrNotAFolder
		}
	}

	prefix := resourceListPrefix(bucket)
	if p != "" {
		prefix = []byte(fmt.Sprintf("res:%s:%s/", bucket, p))
	}

	var children []*Resource
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()

			// Skip grandchildren: only paths exactly one segment below p
			rel := extractPathFromKey(string(item.Key()))
			if p != "" {
				rel = strings.TrimPrefix(rel, p+"/")
			}
			if strings.Contains(rel, "/") {
				continue
			}

			var res Resource
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &res)
			})
			if err != nil {
				s.logger.WithError(err).Warn("Failed to unmarshal resource")
				continue
			}

			children = append(children, &res)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(children, func(i, j int) bool {
		return children[i].Path < children[j].Path
	})

	return children, nil
}

// Rename changes a resource's final path segment in place
func (s *BadgerStore) Rename(ctx context.Context, bucket, p, newName string) (*Resource, error) {
	if newName == "" || strings.Contains(newName, "/") {
		return nil, ErrInvalidPath
	}

	newPath := newName
	if dir := path.Dir(p); dir != "." {
		newPath = path.Join(dir, newName)
	}

	return s.relocate(ctx, bucket, p, newPath)
}

// Move relocates a resource under a different parent, keeping its name
func (s *BadgerStore) Move(ctx context.Context, bucket, p, newParent string) (*Resource, error) {
	newPath := path.Base(p)
	if newParent != "" {
		if err := validatePath(newParent); err != nil {
			return nil, err
		}
		// A folder cannot become its own ancestor: moving into itself or
		// any of its descendants would detach the subtree
		if newParent == p || strings.HasPrefix(newParent, p+"/") {
			return nil, ErrInvalidPath
		}
		newPath = path.Join(newParent, path.Base(p))
	}

	return s.relocate(ctx, bucket, p, newPath)
}

// relocate rewrites a resource (and, for folders, every descendant) from its
// current path to newPath within one transaction.
func (s *BadgerStore) relocate(ctx context.Context, bucket, p, newPath string) (*Resource, error) {
	if err := validatePath(newPath); err != nil {
		return nil, err
	}
	if newPath == p {
		res, err := s.Get(ctx, bucket, p)
		return res, err
	}

	var moved *Resource
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(resourceKey(bucket, p))
		if err == badger.ErrKeyNotFound {
			return ErrResourceNotFound
		}
		if err != nil {
			return err
		}

		var res Resource
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		}); err != nil {
			return err
		}

		if _, err := txn.Get(resourceKey(bucket, newPath)); err == nil {
			return ErrResourceExists
		} else if err != badger.ErrKeyNotFound {
			return err
		}

		// The destination parent must exist and be a folder
		if parent := (Ref{Path: newPath}).ParentPath(); parent != "" {
			pItem, err := txn.Get(resourceKey(bucket, parent))
			if err == badger.ErrKeyNotFound {
				return ErrResourceNotFound
			}
			if err != nil {
				return err
			}
			var parentRes Resource
			if err := pItem.Value(func(val []byte) error {
				return json.Unmarshal(val, &parentRes)
			}); err != nil {
				return err
			}
			if parentRes.Kind != KindFolder {
				return ErrNotAFolder
			}
		}

		rewrite := func(old *Resource, target string) error {
			if err := txn.Delete(resourceKey(bucket, old.Path)); err != nil {
				return err
			}
			old.Path = target
			old.UpdatedAt = time.Now().UTC()
			return s.writeResource(txn, old)
		}

		if res.Kind == KindFolder {
			descendants, err := collectDescendants(txn, bucket, p)
			if err != nil {
				return err
			}
			for _, d := range descendants {
				target := newPath + strings.TrimPrefix(d.Path, p)
				if err := rewrite(d, target); err != nil {
					return err
				}
			}
		}

		if err := rewrite(&res, newPath); err != nil {
			return err
		}
		moved = &res
		return nil
	})
	if err != nil {
		return nil, err
	}

	return moved, nil
}

// collectDescendants reads every resource strictly below folder path p
func collectDescendants(txn *badger.Txn, bucket, p string) ([]*Resource, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(fmt.Sprintf("res:%s:%s/", bucket, p))

	it := txn.NewIterator(opts)
	defer it.Close()

	var out []*Resource
	for it.Rewind(); it.Valid(); it.Next() {
		var res Resource
		err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		})
		if err != nil {
			return nil, err
		}
		out = append(out, &res)
	}
	return out, nil
}

// Delete removes a resource; folders are removed recursively
func (s *BadgerStore) Delete(ctx context.Context, bucket, p string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(resourceKey(bucket, p))
		if err == badger.ErrKeyNotFound {
			return ErrResourceNotFound
		}
		if err != nil {
			return err
		}

		var res Resource
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		}); err != nil {
			return err
		}

		if res.Kind == KindFolder {
			descendants, err := collectDescendants(txn, bucket, p)
			if err != nil {
				return err
			}
			for _, d := range descendants {
				if err := txn.Delete(resourceKey(bucket, d.Path)); err != nil {
					return err
				}
				if err := txn.Delete(resourceIDKey(d.ID)); err != nil {
					return err
				}
			}
		}

		if err := txn.Delete(resourceKey(bucket, p)); err != nil {
			return err
		}
		return txn.Delete(resourceIDKey(res.ID))
	})
}

// AppendMessage appends a message to a conversation
func (s *BadgerStore) AppendMessage(ctx context.Context, bucket, p string, msg Message) error {
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(resourceKey(bucket, p))
		if err == badger.ErrKeyNotFound {
			return ErrResourceNotFound
		}
		if err != nil {
			return err
		}

		var res Resource
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &res)
		}); err != nil {
			return err
		}

		if res.Kind != KindConversation {
			return ErrNotAConversation
		}

		res.Messages = append(res.Messages, msg)
		res.UpdatedAt = time.Now().UTC()
		return s.writeResource(txn, &res)
	})
}

// ==================== Attachment Operations ====================

// PutAttachment stores attachment bytes under a content path
func (s *BadgerStore) PutAttachment(ctx context.Context, bucket, contentPath string, data []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(attachmentKey(bucket, contentPath), data)
	})
}

// GetAttachment retrieves attachment bytes by content path
func (s *BadgerStore) GetAttachment(ctx context.Context, bucket, contentPath string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(attachmentKey(bucket, contentPath))
		if err == badger.ErrKeyNotFound {
			return ErrAttachmentNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close closes the underlying BadgerDB
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger adapts logrus to BadgerDB's logger interface
type badgerLogger struct {
	logger *logrus.Logger
}

func newBadgerLogger(logger *logrus.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef("[BadgerDB] "+format, args...)
}
