// Copyright IBM Corp. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package todo

import (
	"context"
	"strconv"
	"time"

	"github.com/hyperledger-labs/orion-httpauth/pkg/logger"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds optimistic retries when an item changes while it is being updated.
const maxUpdateRetries = 10

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	Logger    *logger.SugarLogger
}

// RedisStore keeps each owner's items in a redis hash keyed by id, next to a counter that
// allocates ids.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *logger.SugarLogger
}

// OpenRedisStore connects to redis and checks that the server is reachable.
func OpenRedisStore(c *RedisConfig) (*RedisStore, error) {
	if c.Address == "" {
		return nil, errors.New("redis address is not set")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is not set")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.Address,
		Password: c.Password,
		DB:       c.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "error while connecting to redis at %s", c.Address)
	}

	prefix := c.KeyPrefix
	if prefix == "" {
		prefix = "authd"
	}
	c.Logger.Debugf("todo store connected to redis at %s", c.Address)
	return &RedisStore{client: client, prefix: prefix, logger: c.Logger}, nil
}

func (s *RedisStore) itemsKey(owner string) string {
	return s.prefix + ":todos:" + owner
}

func (s *RedisStore) nextIDKey(owner string) string {
	return s.prefix + ":nextid:" + owner
}

func (s *RedisStore) List(ctx context.Context, owner string) ([]*Item, error) {
	values, err := s.client.HGetAll(ctx, s.itemsKey(owner)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "error while listing todo items of %s", owner)
	}

	items := make([]*Item, 0, len(values))
	for _, v := range values {
		item, err := unmarshalItem([]byte(v))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	sortItems(items)
	return items, nil
}

func (s *RedisStore) Get(ctx context.Context, owner string, id uint32) (*Item, error) {
	return s.get(ctx, s.client, owner, id)
}

func (s *RedisStore) get(ctx context.Context, c redis.Cmdable, owner string, id uint32) (*Item, error) {
	v, err := c.HGet(ctx, s.itemsKey(owner), field(id)).Bytes()
	if err == redis.Nil {
		return nil, notFound(owner, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "error while reading todo item %d of %s", id, owner)
	}
	return unmarshalItem(v)
}

func (s *RedisStore) Create(ctx context.Context, owner, title string) (*Item, error) {
	next, err := s.client.Incr(ctx, s.nextIDKey(owner)).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "error while allocating a todo id for %s", owner)
	}

	item := &Item{ID: uint32(next - 1), Title: title}
	b, err := marshalItem(item)
	if err != nil {
		return nil, err
	}
	if err := s.client.HSet(ctx, s.itemsKey(owner), field(item.ID), b).Err(); err != nil {
		return nil, errors.Wrapf(err, "error while storing todo item %d of %s", item.ID, owner)
	}
	return item, nil
}

func (s *RedisStore) Update(ctx context.Context, owner string, id uint32, u *Update) (*Item, error) {
	key := s.itemsKey(owner)

	var updated *Item
	txf := func(tx *redis.Tx) error {
		item, err := s.get(ctx, tx, owner, id)
		if err != nil {
			return err
		}
		u.apply(item)

		b, err := marshalItem(item)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field(id), b)
			return nil
		})
		if err == nil {
			updated = item
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == redis.TxFailedErr {
			s.logger.Debugf("todo item %d of %s changed during update, retrying", id, owner)
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, errors.Errorf("todo item %d of %s kept changing, update gave up after %d attempts", id, owner, maxUpdateRetries)
}

func (s *RedisStore) Delete(ctx context.Context, owner string, id uint32) error {
	if err := s.client.HDel(ctx, s.itemsKey(owner), field(id)).Err(); err != nil {
		return errors.Wrapf(err, "error while deleting todo item %d of %s", id, owner)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func field(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}
