package localstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/matst80/dataview-sample/pkg/common/jsoncompat"
	_ "modernc.org/sqlite" // pure go sqlite driver
)

const bucketPrefix = "namespace:"

// SQLiteStore snapshots a namespace to a single SQLite row as JSON after every
// successful mutation and restores all namespaces on open. A mutation whose
// snapshot cannot be written is rolled back to the last written state.
type SQLiteStore struct {
	*Store
	db        *sql.DB
	mu        sync.Mutex
	path      string
	persisted map[string]*Snapshot
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "dataview.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &SQLiteStore{Store: NewStore(), db: db, path: path, persisted: make(map[string]*Snapshot)}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.Store.onChange = s.persist
	return s, nil
}

func (s *SQLiteStore) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		namespace, ok := strings.CutPrefix(bucket, bucketPrefix)
		if !ok {
			continue
		}
		snap := &Snapshot{}
		if err := jsoncompat.Unmarshal(payload, snap); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
		s.ImportNamespace(namespace, snap)
		s.persisted[namespace] = snap
	}
	return rows.Err()
}

func (s *SQLiteStore) persist(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, err := s.write(namespace)
	if err != nil {
		s.ImportNamespace(namespace, s.persisted[namespace])
		return err
	}
	if snap == nil {
		delete(s.persisted, namespace)
	} else {
		s.persisted[namespace] = snap
	}
	return nil
}

func (s *SQLiteStore) write(namespace string) (*Snapshot, error) {
	bucket := bucketPrefix + namespace
	snap := s.ExportNamespace(namespace)
	if snap == nil {
		if _, err := s.db.Exec(`DELETE FROM state WHERE bucket = ?`, bucket); err != nil {
			return nil, fmt.Errorf("delete %s: %w", bucket, err)
		}
		return nil, nil
	}
	data, err := jsoncompat.Marshal(snap)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
		return nil, fmt.Errorf("upsert %s: %w", bucket, err)
	}
	return snap, nil
}

func (s *SQLiteStore) Path() string { return s.path }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
