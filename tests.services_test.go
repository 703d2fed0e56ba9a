package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBookService(t *testing.T, queue Queuer) BookServiceProvider {
	t.Helper()
	return NewBookService(zap.NewNop(), &Config{}, NewMockClocker(), NewIDsHandler(), newTestSQLiteStore(t), queue)
}

func TestBookService_Insert(t *testing.T) {
	bs := newTestBookService(t, nil)
	ctx := context.Background()

	t.Run("should pass: valid name", func(t *testing.T) {
		book, err := bs.Insert(ctx, "Dune")
		require.NoError(t, err)
		assert.NotEmpty(t, book.ID)
		assert.True(t, NewIDsHandler().IsValid(book.ID, ""))
		assert.Equal(t, "Dune", book.Name)
		assert.Len(t, book.ConcurrencyStamp, 32)
		assert.Equal(t, NewMockClocker().Now(), book.CreationTime)
		assert.Nil(t, book.LastModificationTime)
	})

	t.Run("should pass: creation time in utc", func(t *testing.T) {
		clock := &MockClocker{NewMockClocker().Now().In(time.FixedZone("WAT", 3600))}
		bs := NewBookService(zap.NewNop(), &Config{}, clock, NewIDsHandler(), newTestSQLiteStore(t), nil)
		book, err := bs.Insert(ctx, "Dune")
		require.NoError(t, err)
		assert.Equal(t, time.UTC, book.CreationTime.Location())
		assert.True(t, clock.Now().Equal(book.CreationTime))
	})

	t.Run("should pass: name is trimmed", func(t *testing.T) {
		book, err := bs.Insert(ctx, "  Emma ")
		require.NoError(t, err)
		assert.Equal(t, "Emma", book.Name)
	})

	t.Run("should pass: name with max length", func(t *testing.T) {
		book, err := bs.Insert(ctx, strings.Repeat("é", MaxBookNameLength))
		require.NoError(t, err)
		assert.Equal(t, MaxBookNameLength, len([]rune(book.Name)))
	})

	t.Run("should fail: empty name", func(t *testing.T) {
		_, err := bs.Insert(ctx, "")
		assert.True(t, IsValidationError(err))
	})

	t.Run("should fail: blank name", func(t *testing.T) {
		_, err := bs.Insert(ctx, "   ")
		assert.True(t, IsValidationError(err))
	})

	t.Run("should fail: name too long", func(t *testing.T) {
		_, err := bs.Insert(ctx, strings.Repeat("a", MaxBookNameLength+1))
		assert.True(t, IsValidationError(err))
	})
}

func TestBookService_Get(t *testing.T) {
	bs := newTestBookService(t, nil)
	ctx := context.Background()

	created, err := bs.Insert(ctx, "Dune")
	require.NoError(t, err)

	book, err := bs.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, book)

	_, err = bs.Get(ctx, NewIDsHandler().Generate(""))
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestBookService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("should pass: current stamp", func(t *testing.T) {
		bs := newTestBookService(t, nil)
		created, err := bs.Insert(ctx, "Dune")
		require.NoError(t, err)

		book, err := bs.Update(ctx, created.ID, "Dune Messiah", created.ConcurrencyStamp)
		require.NoError(t, err)
		assert.Equal(t, created.ID, book.ID)
		assert.Equal(t, "Dune Messiah", book.Name)
		assert.Equal(t, created.CreationTime, book.CreationTime)
		assert.NotEqual(t, created.ConcurrencyStamp, book.ConcurrencyStamp)
		require.NotNil(t, book.LastModificationTime)
		assert.Equal(t, NewMockClocker().Now(), *book.LastModificationTime)

		fetched, err := bs.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, book, fetched)
	})

	t.Run("should pass: empty stamp", func(t *testing.T) {
		bs := newTestBookService(t, nil)
		created, err := bs.Insert(ctx, "Dune")
		require.NoError(t, err)

		book, err := bs.Update(ctx, created.ID, "Dune Messiah", "")
		require.NoError(t, err)
		assert.NotEqual(t, created.ConcurrencyStamp, book.ConcurrencyStamp)
	})

	t.Run("should fail: stale stamp after concurrent update", func(t *testing.T) {
		bs := newTestBookService(t, nil)
		created, err := bs.Insert(ctx, "Dune")
		require.NoError(t, err)
		fetched, err := bs.Get(ctx, created.ID)
		require.NoError(t, err)

		_, err = bs.Update(ctx, created.ID, "Children of Dune", fetched.ConcurrencyStamp)
		require.NoError(t, err)

		_, err = bs.Update(ctx, created.ID, "God Emperor of Dune", fetched.ConcurrencyStamp)
		assert.ErrorIs(t, err, ErrConcurrencyConflict)

		current, err := bs.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Children of Dune", current.Name)
	})

	t.Run("should fail: unknown id", func(t *testing.T) {
		bs := newTestBookService(t, nil)
		_, err := bs.Update(ctx, NewIDsHandler().Generate(""), "Dune", "")
		assert.ErrorIs(t, err, ErrBookNotFound)
	})

	t.Run("should fail: invalid name", func(t *testing.T) {
		bs := newTestBookService(t, nil)
		created, err := bs.Insert(ctx, "Dune")
		require.NoError(t, err)
		_, err = bs.Update(ctx, created.ID, "", created.ConcurrencyStamp)
		assert.True(t, IsValidationError(err))
	})

	t.Run("should fail: storage detects conflict", func(t *testing.T) {
		mockRepo := &MockBookStorage{
			GetOneFunc: func(ctx context.Context, id string) (Book, error) {
				return Book{ID: id, Name: "Dune", ConcurrencyStamp: "s0"}, nil
			},
			UpdateFunc: func(ctx context.Context, id string, book Book, stamp string) (Book, error) {
				assert.Equal(t, "s0", stamp)
				return Book{}, ErrConcurrencyConflict
			},
		}
		bs := NewBookService(zap.NewNop(), nil, NewMockClocker(), NewMockUIDHandler("abc", true), mockRepo, nil)
		_, err := bs.Update(ctx, "b0", "Emma", "s0")
		assert.ErrorIs(t, err, ErrConcurrencyConflict)
	})
}

func TestBookService_Delete(t *testing.T) {
	bs := newTestBookService(t, nil)
	ctx := context.Background()

	created, err := bs.Insert(ctx, "Dune")
	require.NoError(t, err)

	require.NoError(t, bs.Delete(ctx, created.ID))
	_, err = bs.Get(ctx, created.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)

	assert.ErrorIs(t, bs.Delete(ctx, created.ID), ErrBookNotFound)
	assert.ErrorIs(t, bs.Delete(ctx, NewIDsHandler().Generate("")), ErrBookNotFound)
}

func TestBookService_List(t *testing.T) {
	ctx := context.Background()
	clock := NewMockClocker()
	bs := NewBookService(zap.NewNop(), nil, clock, NewIDsHandler(), newTestSQLiteStore(t), nil)

	for i, name := range []string{"Emma", "Dune", "Walden"} {
		clock.MockNow = NewMockClocker().Now().Add(time.Duration(i) * time.Minute)
		_, err := bs.Insert(ctx, name)
		require.NoError(t, err)
	}

	names := func(books []Book) []string {
		out := make([]string, 0, len(books))
		for _, b := range books {
			out = append(out, b.Name)
		}
		return out
	}

	testCases := []struct {
		order    string
		expected []string
	}{
		{SortByName, []string{"Dune", "Emma", "Walden"}},
		{SortByNameDesc, []string{"Walden", "Emma", "Dune"}},
		{SortByCreationTime, []string{"Emma", "Dune", "Walden"}},
		{SortByCreationTimeDesc, []string{"Walden", "Dune", "Emma"}},
	}

	for _, tc := range testCases {
		t.Run("order "+tc.order, func(t *testing.T) {
			books, err := bs.List(ctx, tc.order)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, names(books))
		})
	}

	t.Run("no order", func(t *testing.T) {
		books, err := bs.List(ctx, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"Dune", "Emma", "Walden"}, names(books))
	})

	t.Run("invalid order", func(t *testing.T) {
		_, err := bs.List(ctx, "price")
		assert.True(t, IsValidationError(err))
	})

	t.Run("empty storage", func(t *testing.T) {
		mockRepo := &MockBookStorage{
			GetAllFunc: func(ctx context.Context) ([]Book, error) {
				return nil, nil
			},
		}
		books, err := NewBookService(zap.NewNop(), nil, clock, NewIDsHandler(), mockRepo, nil).List(ctx, "")
		require.NoError(t, err)
		assert.NotNil(t, books)
		assert.Len(t, books, 0)
	})
}

func TestBookService_PublishesChanges(t *testing.T) {
	ctx := context.Background()
	var pushed []string
	mockQueue := &MockQueuer{
		PushFunc: func(ctx context.Context, qid string, book Book) error {
			pushed = append(pushed, qid+"="+book.ID)
			return nil
		},
	}
	bs := newTestBookService(t, mockQueue)

	created, err := bs.Insert(ctx, "Dune")
	require.NoError(t, err)
	_, err = bs.Update(ctx, created.ID, "Emma", "")
	require.NoError(t, err)
	_, err = bs.Update(ctx, created.ID, "Walden", "stale")
	require.Error(t, err)
	require.NoError(t, bs.Delete(ctx, created.ID))

	assert.Equal(t, []string{
		CreateQueue + "=" + created.ID,
		UpdateQueue + "=" + created.ID,
		DeleteQueue + "=" + created.ID,
	}, pushed)

	t.Run("queue failure does not fail the write", func(t *testing.T) {
		failing := &MockQueuer{
			PushFunc: func(ctx context.Context, qid string, book Book) error {
				return errors.New("queue unavailable")
			},
		}
		bs := newTestBookService(t, failing)
		_, err := bs.Insert(ctx, "Dune")
		assert.NoError(t, err)
	})
}
