// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package todo

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/golang/snappy"
	"github.com/hyperledger-labs/orion-httpauth/pkg/logger"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/multierr"
)

var (
	itemKeyPrefix   = []byte("item/")
	nextIDKeyPrefix = []byte("nextid/")
	keySep          = []byte{0x00}
)

// LevelDBConfig configures a LevelDBStore.
type LevelDBConfig struct {
	Dir string
	// CacheSizeMB is the size of the item cache. fastcache rounds it up to a multiple of 32 MB.
	CacheSizeMB int
	Logger      *logger.SugarLogger
}

// LevelDBStore persists snappy compressed items in leveldb and keeps recently read items in a
// fastcache.
type LevelDBStore struct {
	dir       string
	file      *leveldb.DB
	readOpts  *opt.ReadOptions
	writeOpts *opt.WriteOptions
	cache     *fastcache.Cache
	locks     cmap.ConcurrentMap[string, *sync.RWMutex]
	logger    *logger.SugarLogger
}

// OpenLevelDBStore opens the store in c.Dir, creating the directory when it does not exist.
func OpenLevelDBStore(c *LevelDBConfig) (*LevelDBStore, error) {
	if c.Dir == "" {
		return nil, errors.New("leveldb directory is not set")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is not set")
	}
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(c.Dir)), 0755); err != nil {
		return nil, errors.Wrapf(err, "error while creating the parent directory of %s", c.Dir)
	}

	file, err := leveldb.OpenFile(c.Dir, &opt.Options{})
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to open leveldb file for todo store at %s", c.Dir)
	}

	cacheSize := c.CacheSizeMB
	if cacheSize <= 0 {
		cacheSize = 32
	}

	c.Logger.Debugf("todo store opened at %s", c.Dir)
	return &LevelDBStore{
		dir:       c.Dir,
		file:      file,
		readOpts:  &opt.ReadOptions{},
		writeOpts: &opt.WriteOptions{Sync: true},
		cache:     fastcache.New(cacheSize * 1024 * 1024),
		locks:     cmap.New[*sync.RWMutex](),
		logger:    c.Logger,
	}, nil
}

// ownerLock returns the lock guarding the items and the cache entries of an owner. Writers
// hold it exclusively so that a concurrent Get cannot put a stale value back in the cache.
func (s *LevelDBStore) ownerLock(owner string) *sync.RWMutex {
	return s.locks.Upsert(owner, nil, func(exist bool, inMap, _ *sync.RWMutex) *sync.RWMutex {
		if exist {
			return inMap
		}
		return &sync.RWMutex{}
	})
}

func (s *LevelDBStore) lock(owner string) func() {
	m := s.ownerLock(owner)
	m.Lock()
	return m.Unlock
}

func (s *LevelDBStore) rlock(owner string) func() {
	m := s.ownerLock(owner)
	m.RLock()
	return m.RUnlock
}

func (s *LevelDBStore) List(_ context.Context, owner string) ([]*Item, error) {
	itr := s.file.NewIterator(util.BytesPrefix(ownerPrefix(owner)), s.readOpts)
	defer itr.Release()

	items := []*Item{}
	for itr.Next() {
		item, err := decodeItem(itr.Value())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := itr.Error(); err != nil {
		return nil, errors.Wrapf(err, "error while listing todo items of %s", owner)
	}

	// keys carry big endian ids, so the iteration order is the id order
	return items, nil
}

func (s *LevelDBStore) Get(_ context.Context, owner string, id uint32) (*Item, error) {
	unlock := s.rlock(owner)
	defer unlock()

	return s.get(owner, id)
}

// get must be called with the owner lock held.
func (s *LevelDBStore) get(owner string, id uint32) (*Item, error) {
	key := itemKey(owner, id)
	if v, ok := s.cache.HasGet(nil, key); ok {
		return decodeItem(v)
	}

	v, err := s.file.Get(key, s.readOpts)
	if err == leveldb.ErrNotFound {
		return nil, notFound(owner, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error while reading todo item %d of %s", id, owner)
	}

	s.cache.Set(key, v)
	return decodeItem(v)
}

func (s *LevelDBStore) Create(_ context.Context, owner, title string) (*Item, error) {
	unlock := s.lock(owner)
	defer unlock()

	counterKey := nextIDKey(owner)
	var id uint32
	v, err := s.file.Get(counterKey, s.readOpts)
	switch {
	case err == leveldb.ErrNotFound:
	case err != nil:
		return nil, errors.Wrapf(err, "error while reading the next todo id of %s", owner)
	default:
		next, n := binary.Uvarint(v)
		if n <= 0 {
			return nil, errors.Errorf("stored next todo id of %s is corrupted", owner)
		}
		id = uint32(next)
	}

	item := &Item{ID: id, Title: title}
	encoded, err := encodeItem(item)
	if err != nil {
		return nil, err
	}

	batch := &leveldb.Batch{}
	batch.Put(itemKey(owner, id), encoded)
	batch.Put(counterKey, binary.AppendUvarint(nil, uint64(id)+1))
	if err := s.file.Write(batch, s.writeOpts); err != nil {
		return nil, errors.Wrapf(err, "error while storing todo item %d of %s", id, owner)
	}
	return item, nil
}

func (s *LevelDBStore) Update(_ context.Context, owner string, id uint32, u *Update) (*Item, error) {
	unlock := s.lock(owner)
	defer unlock()

	item, err := s.get(owner, id)
	if err != nil {
		return nil, err
	}
	u.apply(item)

	encoded, err := encodeItem(item)
	if err != nil {
		return nil, err
	}
	key := itemKey(owner, id)
	if err := s.file.Put(key, encoded, s.writeOpts); err != nil {
		return nil, errors.Wrapf(err, "error while updating todo item %d of %s", id, owner)
	}

	s.cache.Set(key, encoded)
	return item, nil
}

func (s *LevelDBStore) Delete(_ context.Context, owner string, id uint32) error {
	unlock := s.lock(owner)
	defer unlock()

	key := itemKey(owner, id)
	if err := s.file.Delete(key, s.writeOpts); err != nil {
		return errors.Wrapf(err, "error while deleting todo item %d of %s", id, owner)
	}
	s.cache.Del(key)
	return nil
}

// Close closes the database and releases the cache.
func (s *LevelDBStore) Close() error {
	var errs []error
	if err := s.file.Close(); err != nil && err != leveldb.ErrClosed {
		errs = append(errs, errors.Wrapf(err, "error while closing todo store at %s", s.dir))
	}
	s.cache.Reset()
	return multierr.Combine(errs...)
}

func ownerPrefix(owner string) []byte {
	key := append([]byte{}, itemKeyPrefix...)
	key = append(key, owner...)
	return append(key, keySep...)
}

func itemKey(owner string, id uint32) []byte {
	return binary.BigEndian.AppendUint32(ownerPrefix(owner), id)
}

func nextIDKey(owner string) []byte {
	key := append([]byte{}, nextIDKeyPrefix...)
	return append(key, owner...)
}

func encodeItem(item *Item) ([]byte, error) {
	b, err := marshalItem(item)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, b), nil
}

func decodeItem(v []byte) (*Item, error) {
	b, err := snappy.Decode(nil, v)
	if err != nil {
		return nil, errors.Wrap(err, "error while decoding the todo item using snappy compression")
	}
	return unmarshalItem(b)
}
