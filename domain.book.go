package main

import (
	"context"
	"errors"
	"time"
)

var (
	ErrBookNotFound        = errors.New("book not found")
	ErrBookExists          = errors.New("book already exists")
	ErrConcurrencyConflict = errors.New("book was modified by another request")
)

// MaxBookNameLength is the maximum number of characters allowed for a book name.
const MaxBookNameLength = 128

// Book represents a book entity. Audit fields and the concurrency
// stamp are set by the BookService at creation and update time.
type Book struct {
	ID                   string                 `json:"id"`
	Name                 string                 `json:"name"`
	CreationTime         time.Time              `json:"creationTime"`
	CreatorID            string                 `json:"creatorId"`
	LastModificationTime *time.Time             `json:"lastModificationTime"`
	LastModifierID       string                 `json:"lastModifierId"`
	ConcurrencyStamp     string                 `json:"concurrencyStamp"`
	ExtraProperties      map[string]interface{} `json:"extraProperties"`
}

// BookStorage defines possible operations on book entity.
// Update replaces the stored record only when its concurrency
// stamp still equals the provided stamp.
type BookStorage interface {
	Add(ctx context.Context, id string, book Book) error
	GetOne(ctx context.Context, id string) (Book, error)
	GetAll(ctx context.Context) ([]Book, error)
	Update(ctx context.Context, id string, book Book, stamp string) (Book, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// BookReplicator defines the write operations used to mirror
// books into a secondary store without any concurrency check.
type BookReplicator interface {
	Save(ctx context.Context, book Book) error
	Remove(ctx context.Context, id string) error
}
