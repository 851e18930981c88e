package torrentinfo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"streamgate/addonservice/internal/domain"
	"streamgate/addonservice/internal/metrics"
)

// Store is the durable mapping of a torrent id to its resolution inputs.
// File-backed so selections survive process restarts; entries are evicted by
// a periodic sweep once they exceed the retention window.
type Store struct {
	db        *sql.DB
	retention time.Duration

	putStmt *sql.Stmt
	getStmt *sql.Stmt
}

const defaultRetention = 48 * time.Hour

func Open(path string, retention time.Duration) (*Store, error) {
	if retention <= 0 {
		retention = defaultRetention
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open torrent info db: %w", err)
	}

	// WAL allows concurrent readers alongside the upsert path.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS torrent_info (
			torrent_id TEXT PRIMARY KEY,
			link       TEXT NOT NULL DEFAULT '',
			magnet_uri TEXT NOT NULL DEFAULT '',
			info_hash  TEXT NOT NULL DEFAULT '',
			name       TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create torrent_info table: %w", err)
	}
	if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_torrent_info_created_at ON torrent_info (created_at)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create created_at index: %w", err)
	}

	store := &Store{db: db, retention: retention}
	if err := store.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) prepareStatements() error {
	var err error

	// Upsert keeps the original created_at so retention counts from first
	// selection, and Put stays idempotent.
	s.putStmt, err = s.db.Prepare(`
		INSERT INTO torrent_info (torrent_id, link, magnet_uri, info_hash, name, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(torrent_id) DO UPDATE SET
			link = excluded.link,
			magnet_uri = excluded.magnet_uri,
			info_hash = excluded.info_hash,
			name = excluded.name,
			size_bytes = excluded.size_bytes
	`)
	if err != nil {
		return fmt.Errorf("prepare put: %w", err)
	}

	s.getStmt, err = s.db.Prepare(`
		SELECT torrent_id, link, magnet_uri, info_hash, name, size_bytes, created_at
		FROM torrent_info WHERE torrent_id = ?
	`)
	if err != nil {
		return fmt.Errorf("prepare get: %w", err)
	}
	return nil
}

// Put stores the resolution inputs for a torrent id. Idempotent upsert.
func (s *Store) Put(ctx context.Context, record domain.TorrentInfoRecord) error {
	if record.TorrentID == "" {
		return errors.New("torrent id is required")
	}
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.putStmt.ExecContext(ctx,
		record.TorrentID,
		record.Link,
		record.MagnetURI,
		record.InfoHash,
		record.Name,
		record.SizeBytes,
		createdAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("put torrent info %s: %w", record.TorrentID, err)
	}
	return nil
}

// Get returns the record for a torrent id, or domain.ErrNotFound.
func (s *Store) Get(ctx context.Context, torrentID string) (domain.TorrentInfoRecord, error) {
	var (
		record    domain.TorrentInfoRecord
		createdAt int64
	)
	err := s.getStmt.QueryRowContext(ctx, torrentID).Scan(
		&record.TorrentID,
		&record.Link,
		&record.MagnetURI,
		&record.InfoHash,
		&record.Name,
		&record.SizeBytes,
		&createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TorrentInfoRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TorrentInfoRecord{}, fmt.Errorf("get torrent info %s: %w", torrentID, err)
	}
	record.CreatedAt = time.Unix(createdAt, 0).UTC()
	return record, nil
}

// Sweep removes entries created before the retention cutoff and returns how
// many were evicted. Best-effort with respect to in-flight reads: the sweep
// interval is long relative to a resolution call, and a read racing a delete
// degrades to a NotFound the client can act on.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int64, error) {
	cutoff := now.Add(-s.retention).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM torrent_info WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep torrent info: %w", err)
	}
	evicted, _ := result.RowsAffected()
	return evicted, nil
}

// RunSweeper evicts stale entries on the given interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evicted, err := s.Sweep(ctx, time.Now())
			if err != nil {
				slog.Warn("torrent info sweep failed", slog.String("error", err.Error()))
				continue
			}
			if evicted > 0 {
				slog.Info("torrent info sweep evicted entries", slog.Int64("count", evicted))
				metrics.StoreSweepEvictions.Add(float64(evicted))
			}
		}
	}
}

func (s *Store) Close() error {
	if s.putStmt != nil {
		s.putStmt.Close()
	}
	if s.getStmt != nil {
		s.getStmt.Close()
	}
	return s.db.Close()
}
