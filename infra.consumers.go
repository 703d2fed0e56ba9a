package main

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Consumer interface {
	Consume(ctx context.Context, qids ...string) error
}

// replicaConsumer mirrors every book change event into a replica store.
type replicaConsumer struct {
	logger  *zap.Logger
	queue   Queuer
	replica BookReplicator
	backoff time.Duration
}

func NewReplicaConsumer(logger *zap.Logger, q Queuer, replica BookReplicator, backoff time.Duration) Consumer {
	return &replicaConsumer{logger: logger, queue: q, replica: replica, backoff: backoff}
}

// Consume pops events until the context is done. Failures are logged
// and the loop moves on to the next event.
func (rc *replicaConsumer) Consume(ctx context.Context, qids ...string) error {
	for {
		qid, book, err := rc.queue.Pop(ctx, qids...)
		if err != nil && ctx.Err() != nil {
			rc.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if err != nil {
			rc.logger.Error("consumer: error on queue pop call", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(rc.backoff):
			}
			continue
		}

		switch qid {
		case CreateQueue, UpdateQueue:
			if err = rc.replica.Save(ctx, book); err != nil {
				rc.logger.Error("consumer: failed to save", zap.String("qid", qid), zap.String("book.id", book.ID), zap.Error(err))
			}
		case DeleteQueue:
			if err = rc.replica.Remove(ctx, book.ID); err != nil {
				rc.logger.Error("consumer: failed to delete", zap.String("book.id", book.ID), zap.Error(err))
			}
		default:
			rc.logger.Warn("consumer: received book on unknown queue id", zap.String("qid", qid), zap.String("book.id", book.ID))
		}
	}
}
