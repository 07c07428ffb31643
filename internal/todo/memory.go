// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package todo

import (
	"context"
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

type ownerTodos struct {
	mu     sync.Mutex
	nextID uint32
	items  map[uint32]*Item
}

// MemoryStore keeps items in memory, sharded by owner.
type MemoryStore struct {
	owners cmap.ConcurrentMap[string, *ownerTodos]
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{owners: cmap.New[*ownerTodos]()}
}

func (s *MemoryStore) owner(owner string) *ownerTodos {
	return s.owners.Upsert(owner, nil, func(exist bool, inMap, _ *ownerTodos) *ownerTodos {
		if exist {
			return inMap
		}
		return &ownerTodos{items: make(map[uint32]*Item)}
	})
}

func (s *MemoryStore) List(_ context.Context, owner string) ([]*Item, error) {
	o, ok := s.owners.Get(owner)
	if !ok {
		return []*Item{}, nil
	}

	o.mu.Lock()
	items := make([]*Item, 0, len(o.items))
	for _, item := range o.items {
		copied := *item
		items = append(items, &copied)
	}
	o.mu.Unlock()

	sortItems(items)
	return items, nil
}

func (s *MemoryStore) Get(_ context.Context, owner string, id uint32) (*Item, error) {
	o, ok := s.owners.Get(owner)
	if !ok {
		return nil, notFound(owner, id)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return nil, notFound(owner, id)
	}
	copied := *item
	return &copied, nil
}

func (s *MemoryStore) Create(_ context.Context, owner, title string) (*Item, error) {
	o := s.owner(owner)

	o.mu.Lock()
	defer o.mu.Unlock()
	item := &Item{ID: o.nextID, Title: title}
	o.nextID++
	o.items[item.ID] = item

	copied := *item
	return &copied, nil
}

func (s *MemoryStore) Update(_ context.Context, owner string, id uint32, u *Update) (*Item, error) {
	o, ok := s.owners.Get(owner)
	if !ok {
		return nil, notFound(owner, id)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	item, ok := o.items[id]
	if !ok {
		return nil, notFound(owner, id)
	}
	u.apply(item)

	copied := *item
	return &copied, nil
}

func (s *MemoryStore) Delete(_ context.Context, owner string, id uint32) error {
	o, ok := s.owners.Get(owner)
	if !ok {
		return nil
	}

	o.mu.Lock()
	delete(o.items, id)
	o.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	s.owners.Clear()
	return nil
}
