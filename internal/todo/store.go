// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hyperledger-labs/orion-httpauth/config"
	ierrors "github.com/hyperledger-labs/orion-httpauth/internal/errors"
	"github.com/hyperledger-labs/orion-httpauth/pkg/logger"
	"github.com/pkg/errors"
)

// Item is a todo item. Items are scoped to the principal that created them.
type Item struct {
	ID        uint32 `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Update holds the fields to change on an item; nil fields are left untouched.
type Update struct {
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
}

func (u *Update) apply(item *Item) {
	if u.Title != nil {
		item.Title = *u.Title
	}
	if u.Completed != nil {
		item.Completed = *u.Completed
	}
}

// Store keeps the todo items of every owner. Owners are textual principals. Implementations
// are safe for concurrent use.
type Store interface {
	// List returns the owner's items ordered by id.
	List(ctx context.Context, owner string) ([]*Item, error)
	// Get returns an *ierrors.NotFoundErr when the owner has no item with that id.
	Get(ctx context.Context, owner string, id uint32) (*Item, error)
	// Create stores a new, not completed, item under the next free id of the owner.
	Create(ctx context.Context, owner, title string) (*Item, error)
	// Update returns an *ierrors.NotFoundErr when the owner has no item with that id.
	Update(ctx context.Context, owner string, id uint32, u *Update) (*Item, error)
	// Delete removes the item. Deleting a missing item is not an error.
	Delete(ctx context.Context, owner string, id uint32) error
	Close() error
}

func notFound(owner string, id uint32) error {
	return &ierrors.NotFoundErr{Message: fmt.Sprintf("todo item %d of %s not found", id, owner)}
}

// New opens the store backend selected by the configuration.
func New(c *config.StorageConf, logger *logger.SugarLogger) (Store, error) {
	switch c.Backend {
	case config.MemoryBackend, "":
		return NewMemoryStore(), nil
	case config.LevelDBBackend:
		return OpenLevelDBStore(&LevelDBConfig{
			Dir:         c.LevelDB.Dir,
			CacheSizeMB: c.LevelDB.CacheSizeMB,
			Logger:      logger,
		})
	case config.RedisBackend:
		return OpenRedisStore(&RedisConfig{
			Address:   c.Redis.Address,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			KeyPrefix: c.Redis.KeyPrefix,
			Logger:    logger,
		})
	default:
		return nil, errors.Errorf("unsupported storage backend [%s]", c.Backend)
	}
}

func marshalItem(item *Item) ([]byte, error) {
	b, err := json.Marshal(item)
	if err != nil {
		return nil, errors.Wrapf(err, "error while marshaling todo item %d", item.ID)
	}
	return b, nil
}

func unmarshalItem(b []byte) (*Item, error) {
	item := &Item{}
	if err := json.Unmarshal(b, item); err != nil {
		return nil, errors.Wrap(err, "error while unmarshaling todo item")
	}
	return item, nil
}

func sortItems(items []*Item) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].ID < items[j].ID
	})
}
