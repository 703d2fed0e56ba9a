package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestBoltStore returns a new instance of bolt store in a temporary path.
func newTestBoltStore(t *testing.T) *boltBookStorage {
	t.Helper()
	config := &BoltDBConfig{
		FilePath:   filepath.Join(t.TempDir(), "books.bolt.db"),
		Timeout:    5 * time.Second,
		BucketName: "test.books",
	}
	client, err := GetBoltDBClient(config)
	require.NoError(t, err, "failed in creating a test bolt store")
	bs := NewBoltBookStorage(zap.NewNop(), config, client)
	t.Cleanup(func() { _ = bs.Close() })
	return bs
}

// Ensure bolt store can insert a new book.
func TestBoltStore_AddBook(t *testing.T) {
	bs := newTestBoltStore(t)
	b := testBook("b0", "Bolt test book", "s0")

	err := bs.Add(context.TODO(), b.ID, b)
	assert.NoError(t, err)

	// Verify book can be retrieved.
	book, err := bs.GetOne(context.TODO(), b.ID)
	assert.NoError(t, err)
	assert.Equal(t, b, book)

	// Verify the id cannot be reused.
	assert.ErrorIs(t, bs.Add(context.TODO(), b.ID, b), ErrBookExists)
}

// Ensure bolt store fails with not found on unknown book.
func TestBoltStore_GetUnknownBook(t *testing.T) {
	bs := newTestBoltStore(t)
	book, err := bs.GetOne(context.TODO(), "b:unknown")
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.Equal(t, Book{}, book)
}

// Ensure bolt store can list all books.
func TestBoltStore_GetAllBooks(t *testing.T) {
	bs := newTestBoltStore(t)
	books, err := bs.GetAll(context.TODO())
	require.NoError(t, err)
	assert.Len(t, books, 0)

	require.NoError(t, bs.Add(context.TODO(), "b0", testBook("b0", "Dune", "s0")))
	require.NoError(t, bs.Add(context.TODO(), "b1", testBook("b1", "Emma", "s1")))
	books, err = bs.GetAll(context.TODO())
	require.NoError(t, err)
	assert.Len(t, books, 2)
}

// Ensure bolt store only updates a book with its current stamp.
func TestBoltStore_UpdateBook(t *testing.T) {
	bs := newTestBoltStore(t)
	b := testBook("b0", "Dune", "s0")
	require.NoError(t, bs.Add(context.TODO(), b.ID, b))

	next := b
	next.Name = "Dune Messiah"
	next.ConcurrencyStamp = "s1"

	book, err := bs.Update(context.TODO(), b.ID, next, "s0")
	require.NoError(t, err)
	assert.Equal(t, next, book)

	_, err = bs.Update(context.TODO(), b.ID, next, "s0")
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	_, err = bs.Update(context.TODO(), "b:unknown", next, "s1")
	assert.ErrorIs(t, err, ErrBookNotFound)

	stored, err := bs.GetOne(context.TODO(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, next, stored)
}

// Ensure bolt store can delete a book.
func TestBoltStore_DeleteBook(t *testing.T) {
	bs := newTestBoltStore(t)
	require.NoError(t, bs.Add(context.TODO(), "b0", testBook("b0", "Dune", "s0")))

	assert.NoError(t, bs.Delete(context.TODO(), "b0"))
	_, err := bs.GetOne(context.TODO(), "b0")
	assert.ErrorIs(t, err, ErrBookNotFound)
	assert.ErrorIs(t, bs.Delete(context.TODO(), "b0"), ErrBookNotFound)
}

// Ensure bolt store mirrors books without any checks when used as replica.
func TestBoltStore_Replicator(t *testing.T) {
	bs := newTestBoltStore(t)
	b := testBook("b0", "Dune", "s0")

	require.NoError(t, bs.Save(context.TODO(), b))
	b.ConcurrencyStamp = "s9"
	require.NoError(t, bs.Save(context.TODO(), b))

	book, err := bs.GetOne(context.TODO(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, "s9", book.ConcurrencyStamp)

	require.NoError(t, bs.Remove(context.TODO(), b.ID))
	require.NoError(t, bs.Remove(context.TODO(), b.ID))
	_, err = bs.GetOne(context.TODO(), b.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
}
