package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Predefinied Queue IDs.
const (
	CreateQueue = "creation"
	UpdateQueue = "updating"
	DeleteQueue = "deletion"
)

// popWaitTimeout bounds each blocking pop so that a cancelled
// context is noticed even when the queues stay empty.
const popWaitTimeout = time.Second

// Ensure *redisQueue implements Queuer.
var _ Queuer = (*redisQueue)(nil)

// Queuer describes a queue of book change events.
type Queuer interface {
	Push(ctx context.Context, qid string, book Book) error
	Pop(ctx context.Context, qids ...string) (string, Book, error)
}

// redisQueue represents a queue which implements the Queuer interface.
type redisQueue struct {
	client *redis.Client
	prefix string
}

// NewRedisQueue provides a redis lists based queue. Each queue id
// maps to the list named `prefix:qid`.
func NewRedisQueue(client *redis.Client, prefix string) Queuer {
	return &redisQueue{client: client, prefix: prefix}
}

func (q *redisQueue) key(qid string) string {
	if q.prefix == "" {
		return qid
	}
	return q.prefix + ":" + qid
}

// Push enqueues a book onto the queue identified by qid.
func (q *redisQueue) Push(ctx context.Context, qid string, book Book) error {
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key(qid), bookBytes).Err()
}

// Pop blocks until a book is available on one of the queues then returns
// the queue id it came from and the dequeued book.
func (q *redisQueue) Pop(ctx context.Context, qids ...string) (string, Book, error) {
	var book Book
	keys := make([]string, 0, len(qids))
	byKey := make(map[string]string, len(qids))
	for _, qid := range qids {
		k := q.key(qid)
		keys = append(keys, k)
		byKey[k] = qid
	}

	var infos []string
	for {
		var err error
		infos, err = q.client.BLPop(ctx, popWaitTimeout, keys...).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return "", book, ctx.Err()
			}
			continue
		}
		if err != nil {
			return "", book, err
		}
		break
	}

	if err := json.Unmarshal([]byte(infos[1]), &book); err != nil {
		return "", book, err
	}
	return byKey[infos[0]], book, nil
}
