package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const bookColumns = `Id, Name, ExtraProperties, ConcurrencyStamp, CreationTime, CreatorId, LastModificationTime, LastModifierId`

type sqliteBookStorage struct {
	logger *zap.Logger
	client *sql.DB
}

// GetSQLiteClient opens the sqlite database file and applies the embedded
// migrations then provides a ready to use client.
func GetSQLiteClient(config *Config) (*sql.DB, error) {
	if strings.TrimSpace(config.SQLite.FilePath) == "" {
		return nil, errors.New("sqlite file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(config.SQLite.FilePath), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database folder: %v", err)
	}
	busy := config.SQLite.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_txlock=immediate",
		filepath.Clean(config.SQLite.FilePath), busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping the database: %v", err)
	}
	if err = ApplyMigrations(context.Background(), db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %v", err)
	}
	return db, nil
}

// NewSQLiteBookStorage provides an instance of sqlite-based book storage.
func NewSQLiteBookStorage(logger *zap.Logger, client *sql.DB) BookStorage {
	return &sqliteBookStorage{
		logger: logger,
		client: client,
	}
}

// Close shuts down the sqlite-based book storage.
func (ss *sqliteBookStorage) Close() error {
	return ss.client.Close()
}

// Add inserts a new book record into the Books table.
func (ss *sqliteBookStorage) Add(ctx context.Context, id string, book Book) error {
	extra, err := marshalExtraProperties(book.ExtraProperties)
	if err != nil {
		return err
	}
	_, err = ss.client.ExecContext(ctx,
		`INSERT INTO Books (`+bookColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		book.Name,
		extra,
		book.ConcurrencyStamp,
		formatTime(book.CreationTime),
		nullString(book.CreatorID),
		formatNullTime(book.LastModificationTime),
		nullString(book.LastModifierID),
	)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint") {
		return ErrBookExists
	}
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

// GetOne retrieves a book record based on its ID.
func (ss *sqliteBookStorage) GetOne(ctx context.Context, id string) (Book, error) {
	row := ss.client.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM Books WHERE Id = ?`, id)
	book, err := scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	return book, err
}

// GetAll retrieves a list of all books stored in the Books table.
func (ss *sqliteBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	rows, err := ss.client.QueryContext(ctx, `SELECT `+bookColumns+` FROM Books`)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// Update replaces the book record when its concurrency stamp still matches.
func (ss *sqliteBookStorage) Update(ctx context.Context, id string, book Book, stamp string) (Book, error) {
	extra, err := marshalExtraProperties(book.ExtraProperties)
	if err != nil {
		return Book{}, err
	}
	tx, err := ss.client.BeginTx(ctx, nil)
	if err != nil {
		return Book{}, fmt.Errorf("begin update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `
UPDATE Books SET
	Name = ?,
	ExtraProperties = ?,
	ConcurrencyStamp = ?,
	LastModificationTime = ?,
	LastModifierId = ?
WHERE Id = ? AND ConcurrencyStamp = ?`,
		book.Name,
		extra,
		book.ConcurrencyStamp,
		formatNullTime(book.LastModificationTime),
		nullString(book.LastModifierID),
		id,
		stamp,
	)
	if err != nil {
		return Book{}, fmt.Errorf("update book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Book{}, fmt.Errorf("update book: %w", err)
	}
	if n == 0 {
		var found int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM Books WHERE Id = ?`, id).Scan(&found)
		if errors.Is(err, sql.ErrNoRows) {
			return Book{}, ErrBookNotFound
		}
		if err != nil {
			return Book{}, fmt.Errorf("update book: %w", err)
		}
		return Book{}, ErrConcurrencyConflict
	}

	updated, err := scanBook(tx.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM Books WHERE Id = ?`, id))
	if err != nil {
		return Book{}, err
	}
	if err = tx.Commit(); err != nil {
		return Book{}, fmt.Errorf("commit update: %w", err)
	}
	return updated, nil
}

// Delete removes a book record based on its ID.
func (ss *sqliteBookStorage) Delete(ctx context.Context, id string) error {
	res, err := ss.client.ExecContext(ctx, `DELETE FROM Books WHERE Id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if n == 0 {
		return ErrBookNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBook(row rowScanner) (Book, error) {
	var (
		book                          Book
		extra, stamp                  sql.NullString
		creator, modifier, modifiedAt sql.NullString
		createdAt                     string
	)
	if err := row.Scan(&book.ID, &book.Name, &extra, &stamp, &createdAt, &creator, &modifiedAt, &modifier); err != nil {
		return Book{}, err
	}
	book.ConcurrencyStamp = stamp.String
	book.CreatorID = creator.String
	book.LastModifierID = modifier.String

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Book{}, fmt.Errorf("parse creation time of book %s: %w", book.ID, err)
	}
	book.CreationTime = created
	if modifiedAt.Valid && modifiedAt.String != "" {
		modified, err := time.Parse(time.RFC3339Nano, modifiedAt.String)
		if err != nil {
			return Book{}, fmt.Errorf("parse modification time of book %s: %w", book.ID, err)
		}
		book.LastModificationTime = &modified
	}

	book.ExtraProperties = map[string]interface{}{}
	if extra.Valid && extra.String != "" {
		if err = json.Unmarshal([]byte(extra.String), &book.ExtraProperties); err != nil {
			return Book{}, fmt.Errorf("decode extra properties of book %s: %w", book.ID, err)
		}
	}
	return book, nil
}

func marshalExtraProperties(props map[string]interface{}) (string, error) {
	if props == nil {
		return "{}", nil
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("encode extra properties: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
