package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        chat_id INTEGER PRIMARY KEY,
        username TEXT NOT NULL DEFAULT '',
        first_seen DATETIME NOT NULL,
        last_seen DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS data_chunks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        content TEXT NOT NULL,
        embedding_json TEXT -- Storing as JSON string of []float32
    );

    CREATE TABLE IF NOT EXISTS insurance_categories (
        id INTEGER PRIMARY KEY,
        category_name TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS insurance_products (
        id INTEGER PRIMARY KEY,
        category_id INTEGER NOT NULL,
        product_name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        FOREIGN KEY (category_id) REFERENCES insurance_categories (id)
    );

    CREATE TABLE IF NOT EXISTS agents (
        id INTEGER PRIMARY KEY,
        first_name TEXT NOT NULL,
        last_name TEXT NOT NULL DEFAULT '',
        bio TEXT NOT NULL DEFAULT '',
        yoe INTEGER NOT NULL DEFAULT 0,
        telegram TEXT NOT NULL DEFAULT '',
        picture_url TEXT NOT NULL DEFAULT ''
    );

    CREATE TABLE IF NOT EXISTS financial_categories (
        id INTEGER PRIMARY KEY,
        category_name TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS banks (
        id INTEGER PRIMARY KEY,
        bank_name TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS financial_products (
        id INTEGER PRIMARY KEY,
        category_id INTEGER NOT NULL,
        bank_id INTEGER, -- NULL for government-backed products
        product_name TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        FOREIGN KEY (category_id) REFERENCES financial_categories (id),
        FOREIGN KEY (bank_id) REFERENCES banks (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

// UpsertUser records that chatID has talked to the bot, keeping the first
// sighting and refreshing the username and last sighting.
func (s *SQLiteStore) UpsertUser(chatID int64, username string, seenAt time.Time) error {
	_, err := s.db.Exec(`
        INSERT INTO users (chat_id, username, first_seen, last_seen) VALUES (?, ?, ?, ?)
        ON CONFLICT(chat_id) DO UPDATE SET username = excluded.username, last_seen = excluded.last_seen`,
		chatID, username, seenAt.UTC(), seenAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(chatID int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT chat_id, username, first_seen, last_seen FROM users WHERE chat_id = ?", chatID).
		Scan(&user.ChatID, &user.Username, &user.FirstSeen, &user.LastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) ListUsers() ([]User, error) {
	rows, err := s.db.Query("SELECT chat_id, username, first_seen, last_seen FROM users ORDER BY chat_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ChatID, &user.Username, &user.FirstSeen, &user.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
