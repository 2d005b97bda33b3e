package database

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var ddl string

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Database struct {
	db            *sql.DB
	conn          dbtx
	encryptionKey []byte
}

func Open(databasePath string) (*Database, error) {
	ctx := context.Background()

	db, err := sql.Open("sqlite3", databasePath)
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db, conn: db}, nil
}

func (database *Database) SetEncryptionKey(key []byte) error {
	if database.encryptionKey != nil {
		return fmt.Errorf("encryption key already set")
	}
	database.encryptionKey = key

	return nil
}

func (database *Database) WithTx(f func(transaction *Database) error) error {
	tx, err := database.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	err = f(&Database{db: nil, conn: tx, encryptionKey: database.encryptionKey})
	if err != nil {
		return fmt.Errorf("failed to execute transaction: %w", err)
	}

	return tx.Commit()
}

func (database *Database) Close() error {
	return database.db.Close()
}
