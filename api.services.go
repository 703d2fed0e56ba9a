package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Supported values of the books list ordering.
const (
	SortByName             = "name"
	SortByNameDesc         = "-name"
	SortByCreationTime     = "creationTime"
	SortByCreationTimeDesc = "-creationTime"
)

type BookServiceProvider interface {
	List(ctx context.Context, order string) ([]Book, error)
	Get(ctx context.Context, id string) (Book, error)
	Insert(ctx context.Context, name string) (Book, error)
	Update(ctx context.Context, id, name, stamp string) (Book, error)
	Delete(ctx context.Context, id string) error
}

// BookService implements the book repository on top of a BookStorage.
// The queue is optional and receives every successful write.
type BookService struct {
	logger  *zap.Logger
	config  *Config
	clock   Clocker
	ids     UIDHandler
	storage BookStorage
	queue   Queuer
}

func NewBookService(logger *zap.Logger, config *Config, clock Clocker, ids UIDHandler, storage BookStorage, queue Queuer) BookServiceProvider {
	return &BookService{
		logger:  logger,
		config:  config,
		clock:   clock,
		ids:     ids,
		storage: storage,
		queue:   queue,
	}
}

// List returns all stored books, ordered when a supported order is provided.
func (bs *BookService) List(ctx context.Context, order string) ([]Book, error) {
	less, err := bookOrdering(strings.TrimSpace(order))
	if err != nil {
		return nil, err
	}
	books, err := bs.storage.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []Book{}
	}
	if less != nil {
		sort.SliceStable(books, func(i, j int) bool { return less(books[i], books[j]) })
	}
	return books, nil
}

// Get returns the book identified by id.
func (bs *BookService) Get(ctx context.Context, id string) (Book, error) {
	return bs.storage.GetOne(ctx, id)
}

// Insert validates the name then creates and persists a new book.
func (bs *BookService) Insert(ctx context.Context, name string) (Book, error) {
	name, err := ValidateBookName(name)
	if err != nil {
		return Book{}, err
	}
	book := Book{
		ID:               bs.ids.Generate(""),
		Name:             name,
		CreationTime:     bs.clock.UTCNow(),
		ConcurrencyStamp: bs.ids.Stamp(),
		ExtraProperties:  map[string]interface{}{},
	}
	if err = bs.storage.Add(ctx, book.ID, book); err != nil {
		return Book{}, err
	}
	bs.publish(ctx, CreateQueue, book)
	return book, nil
}

// Update renames an existing book. An empty stamp means the caller
// accepts the currently stored version. The name is checked before
// the lookup so an invalid name always reports a validation error.
func (bs *BookService) Update(ctx context.Context, id, name, stamp string) (Book, error) {
	name, err := ValidateBookName(name)
	if err != nil {
		return Book{}, err
	}
	current, err := bs.storage.GetOne(ctx, id)
	if err != nil {
		return Book{}, err
	}
	if stamp == "" {
		stamp = current.ConcurrencyStamp
	}
	if stamp != current.ConcurrencyStamp {
		return Book{}, ErrConcurrencyConflict
	}

	now := bs.clock.UTCNow()
	book := current
	book.Name = name
	book.LastModificationTime = &now
	book.ConcurrencyStamp = bs.ids.Stamp()
	if book.ExtraProperties == nil {
		book.ExtraProperties = map[string]interface{}{}
	}

	book, err = bs.storage.Update(ctx, id, book, stamp)
	if err != nil {
		return Book{}, err
	}
	bs.publish(ctx, UpdateQueue, book)
	return book, nil
}

// Delete removes the book identified by id.
func (bs *BookService) Delete(ctx context.Context, id string) error {
	if err := bs.storage.Delete(ctx, id); err != nil {
		return err
	}
	bs.publish(ctx, DeleteQueue, Book{ID: id})
	return nil
}

func (bs *BookService) publish(ctx context.Context, qid string, book Book) {
	if bs.queue == nil {
		return
	}
	if err := bs.queue.Push(ctx, qid, book); err != nil {
		bs.logger.Error("service: failed to push book to queue", zap.String("qid", qid), zap.String("book.id", book.ID), zap.Error(err))
	}
}

func bookOrdering(order string) (func(a, b Book) bool, error) {
	switch order {
	case "":
		return nil, nil
	case SortByName:
		return func(a, b Book) bool { return a.Name < b.Name }, nil
	case SortByNameDesc:
		return func(a, b Book) bool { return a.Name > b.Name }, nil
	case SortByCreationTime:
		return func(a, b Book) bool { return a.CreationTime.Before(b.CreationTime) }, nil
	case SortByCreationTimeDesc:
		return func(a, b Book) bool { return a.CreationTime.After(b.CreationTime) }, nil
	}
	return nil, &ValidationError{Field: "sort", Reason: fmt.Sprintf("must be one of %s", strings.Join(
		[]string{SortByName, SortByNameDesc, SortByCreationTime, SortByCreationTimeDesc}, ", "))}
}

// IsValidationError reports whether err is caused by an invalid input.
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
