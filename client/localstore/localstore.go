// Package localstore is the client's persistent key-value store: namespaced
// keys mapping to JSON documents, backed by a single sqlite file. It is the
// durable local state the sync layer falls back to when the network fails.
package localstore

import (
	"database/sql"
	"encoding/json"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
	// Serializes read-modify-write cycles so two concurrent fallback
	// operations cannot lose each other's writes.
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		doc TEXT NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get unmarshals the document under key into v. Missing keys leave v
// untouched and return false.
func (s *Store) Get(key string, v any) (bool, error) {
	var doc string
	err := s.db.QueryRow(`SELECT doc FROM kv WHERE key = ?`, key).Scan(&doc)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(doc), v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) Put(key string, v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO kv (key, doc) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET doc = excluded.doc`,
		key, string(doc))
	return err
}

func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// Update runs a read-modify-write cycle under the store lock.
func (s *Store) Update(key string, v any, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.Get(key, v); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	return s.Put(key, v)
}
