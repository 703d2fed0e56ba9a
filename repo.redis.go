package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const HBooks string = "books"

// maxUpdateAttempts bounds the retries of an update transaction aborted by
// a write to another book of the watched hash.
const maxUpdateAttempts = 10

var _ BookStorage = (*redisBookStorage)(nil)

type redisBookStorage struct {
	logger *zap.Logger
	client *redis.Client
}

// NewRedisBookStorage provides an instance of redis-based book storage.
// The client stays open on Close since it is shared with the queues.
func NewRedisBookStorage(logger *zap.Logger, client *redis.Client) BookStorage {
	return &redisBookStorage{
		logger: logger,
		client: client,
	}
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

// Close is a no-op. The shared client is closed by the App on shutdown.
func (rs *redisBookStorage) Close() error {
	return nil
}

// Add inserts a new book record. It fails if the id is already taken.
func (rs *redisBookStorage) Add(ctx context.Context, id string, book Book) error {
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	created, err := rs.client.HSetNX(ctx, HBooks, id, bookBytes).Result()
	if err != nil {
		return err
	}
	if !created {
		return ErrBookExists
	}
	return nil
}

// GetOne retrieves a book record based on its ID.
func (rs *redisBookStorage) GetOne(ctx context.Context, id string) (Book, error) {
	var book Book
	bookJSONString, err := rs.client.HGet(ctx, HBooks, id).Result()
	if errors.Is(err, redis.Nil) {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, err
	}
	err = json.Unmarshal([]byte(bookJSONString), &book)
	return book, err
}

// Delete removes a book record based on its ID.
func (rs *redisBookStorage) Delete(ctx context.Context, id string) error {
	n, err := rs.client.HDel(ctx, HBooks, id).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBookNotFound
	}
	return nil
}

// Update replaces existing book record data when the stored concurrency stamp
// matches. The whole books hash is watched, so an aborted transaction is
// retried and only a stamp mismatch reports a concurrency conflict.
func (rs *redisBookStorage) Update(ctx context.Context, id string, book Book, stamp string) (Book, error) {
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return Book{}, err
	}

	txf := func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, HBooks, id).Result()
		if errors.Is(err, redis.Nil) {
			return ErrBookNotFound
		}
		if err != nil {
			return err
		}
		var stored Book
		if err = json.Unmarshal([]byte(current), &stored); err != nil {
			return err
		}
		if stored.ConcurrencyStamp != stamp {
			return ErrConcurrencyConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, HBooks, id, bookBytes)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err = rs.client.Watch(ctx, txf, HBooks)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		rs.logger.Debug("redis: update transaction aborted, retrying", zap.String("book.id", id), zap.Int("attempt", i+1))
	}
	if errors.Is(err, redis.TxFailedErr) {
		return Book{}, fmt.Errorf("redis: update of book %s kept aborting: %w", id, err)
	}
	if err != nil {
		return Book{}, err
	}
	return book, nil
}

// GetAll retrieves a list of all books stored in the redis database.
func (rs *redisBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	mapBooks, err := rs.client.HVals(ctx, HBooks).Result()
	if err != nil {
		return nil, err
	}
	books := []Book{}
	for _, bookJSONString := range mapBooks {
		var book Book
		if err = json.Unmarshal([]byte(bookJSONString), &book); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}
