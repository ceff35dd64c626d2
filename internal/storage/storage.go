// Package storage provides the SQLite-backed persistence gate for normalized
// seismic events.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tectonica/quakewatch/internal/logger"
	"github.com/tectonica/quakewatch/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for all persistence operations.
type Storage struct {
	db *sql.DB
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/quakewatch/data.db.
func New(dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "quakewatch", "data.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quakes (
			id          TEXT PRIMARY KEY,
			location    TEXT NOT NULL,
			event_time  INTEGER NOT NULL,
			mag         REAL NOT NULL,
			source      TEXT NOT NULL,
			lat         REAL NOT NULL,
			lng         REAL NOT NULL,
			depth       REAL NOT NULL,
			ingested_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_quakes_event_time ON quakes(event_time DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Exists reports whether a record with the given id is already persisted.
//
// Fail-open on store errors: an unreachable store reports false. Ingestion
// keeps going and at worst re-issues an idempotent write.
func (s *Storage) Exists(id string) bool {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM quakes WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		logger.Error("Existence check failed for %s, assuming not persisted: %v", id, err)
		return false
	}
	return true
}

// Save writes the event under id with a store-assigned ingestion timestamp.
// The write is idempotent: saving an id that already exists is a no-op.
// There is no retry; a failed save surfaces as an error and the event is
// simply not marked newly-saved.
//
// Persistence is best-effort: events are stored as the feeds reported them,
// even with out-of-range coordinates. Rejecting them here would make a
// glitched upstream record unpersistable and re-attempted every tick.
func (s *Storage) Save(id string, event models.Event) error {
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO quakes
			(id, location, event_time, mag, source, lat, lng, depth, ingested_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		id, event.Location, event.OccurredAt.UnixMilli(), event.Magnitude,
		event.Source, event.Latitude, event.Longitude, event.DepthKm,
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert quake: %w", err)
	}
	return nil
}

// Recent returns the newest limit records ordered by event time descending.
func (s *Storage) Recent(limit int) ([]models.Record, error) {
	rows, err := s.db.Query(`
		SELECT id, location, event_time, mag, source, lat, lng, depth, ingested_at
		FROM quakes ORDER BY event_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query quakes: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var r models.Record
		var eventMillis, ingestedMillis int64
		err := rows.Scan(
			&r.ID, &r.Event.Location, &eventMillis, &r.Event.Magnitude,
			&r.Event.Source, &r.Event.Latitude, &r.Event.Longitude, &r.Event.DepthKm,
			&ingestedMillis,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quake: %w", err)
		}
		r.Event.OccurredAt = time.UnixMilli(eventMillis).UTC()
		r.IngestedAt = time.UnixMilli(ingestedMillis).UTC()
		records = append(records, r)
	}
	if records == nil {
		records = []models.Record{}
	}
	return records, rows.Err()
}

// Count returns the number of persisted records.
func (s *Storage) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM quakes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count quakes: %w", err)
	}
	return n, nil
}
