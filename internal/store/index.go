package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"slidecast/internal/fingerprint"
	"slidecast/internal/services"
)

// Index is the SQLite catalog of committed artifacts. It exists to answer the
// questions the filesystem cannot answer cheaply: how big is each namespace,
// and which artifacts were read least recently.
type Index struct {
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	namespace    TEXT NOT NULL,
	key          TEXT NOT NULL,
	ext          TEXT NOT NULL,
	size_bytes   INTEGER NOT NULL,
	created_at   TEXT NOT NULL,
	last_read_at TEXT NOT NULL,
	PRIMARY KEY (namespace, key)
);
CREATE INDEX IF NOT EXISTS idx_artifacts_last_read ON artifacts(last_read_at);
`

// OpenIndex opens (creating if needed) the artifact index database.
func OpenIndex(path string) (*Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "store", "index", "open database", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, services.Wrap(services.ErrCacheIO, "store", "index", fmt.Sprintf("apply %s", pragma), err)
		}
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, services.Wrap(services.ErrCacheIO, "store", "index", "apply schema", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database.
func (ix *Index) Close() error {
	return ix.db.Close()
}

// Record upserts the row for a freshly committed artifact.
func (ix *Index) Record(ctx context.Context, namespace string, key fingerprint.Key, ext string, sizeBytes int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := ix.db.ExecContext(ctx, `
		INSERT INTO artifacts (namespace, key, ext, size_bytes, created_at, last_read_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (namespace, key) DO UPDATE SET
			ext = excluded.ext,
			size_bytes = excluded.size_bytes,
			last_read_at = excluded.last_read_at`,
		namespace, string(key), ext, sizeBytes, now, now)
	if err != nil {
		return services.Wrap(services.ErrCacheIO, "store", "index", "record artifact", err)
	}
	return nil
}

// Touch refreshes an artifact's last-read time. Missing rows are ignored so a
// cache populated before the index existed still serves hits.
func (ix *Index) Touch(ctx context.Context, namespace string, key fingerprint.Key) error {
	_, err := ix.db.ExecContext(ctx,
		`UPDATE artifacts SET last_read_at = ? WHERE namespace = ? AND key = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), namespace, string(key))
	if err != nil {
		return services.Wrap(services.ErrCacheIO, "store", "index", "touch artifact", err)
	}
	return nil
}

// Forget drops one artifact row.
func (ix *Index) Forget(ctx context.Context, namespace string, key fingerprint.Key) error {
	_, err := ix.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE namespace = ? AND key = ?`, namespace, string(key))
	if err != nil {
		return services.Wrap(services.ErrCacheIO, "store", "index", "forget artifact", err)
	}
	return nil
}

// ForgetNamespace drops every row in a namespace.
func (ix *Index) ForgetNamespace(ctx context.Context, namespace string) error {
	_, err := ix.db.ExecContext(ctx, `DELETE FROM artifacts WHERE namespace = ?`, namespace)
	if err != nil {
		return services.Wrap(services.ErrCacheIO, "store", "index", "forget namespace", err)
	}
	return nil
}

// Ext returns the recorded extension for an artifact, if indexed.
func (ix *Index) Ext(ctx context.Context, namespace string, key fingerprint.Key) (string, bool, error) {
	var ext string
	err := ix.db.QueryRowContext(ctx,
		`SELECT ext FROM artifacts WHERE namespace = ? AND key = ?`,
		namespace, string(key)).Scan(&ext)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, services.Wrap(services.ErrCacheIO, "store", "index", "query artifact ext", err)
	}
	return ext, true, nil
}

// Entry is one indexed artifact.
type Entry struct {
	Namespace  string
	Key        fingerprint.Key
	Ext        string
	SizeBytes  int64
	CreatedAt  time.Time
	LastReadAt time.Time
}

// List returns every indexed artifact ordered by last read time, oldest
// first. This is the eviction order.
func (ix *Index) List(ctx context.Context) ([]Entry, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT namespace, key, ext, size_bytes, created_at, last_read_at
		FROM artifacts ORDER BY last_read_at ASC, namespace ASC, key ASC`)
	if err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "store", "index", "list artifacts", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var key, created, lastRead string
		if err := rows.Scan(&entry.Namespace, &key, &entry.Ext, &entry.SizeBytes, &created, &lastRead); err != nil {
			return nil, services.Wrap(services.ErrCacheIO, "store", "index", "scan artifact row", err)
		}
		entry.Key = fingerprint.Key(key)
		entry.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		entry.LastReadAt, _ = time.Parse(time.RFC3339Nano, lastRead)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "store", "index", "iterate artifact rows", err)
	}
	return entries, nil
}

// NamespaceStats summarizes one namespace.
type NamespaceStats struct {
	Namespace  string
	Count      int64
	TotalBytes int64
}

// Stats returns per-namespace counts and sizes for every known namespace,
// including namespaces with no artifacts.
func (ix *Index) Stats(ctx context.Context) ([]NamespaceStats, error) {
	rows, err := ix.db.QueryContext(ctx, `
		SELECT namespace, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM artifacts GROUP BY namespace`)
	if err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "store", "index", "query stats", err)
	}
	defer rows.Close()

	byNamespace := make(map[string]NamespaceStats, len(Namespaces))
	for rows.Next() {
		var stat NamespaceStats
		if err := rows.Scan(&stat.Namespace, &stat.Count, &stat.TotalBytes); err != nil {
			return nil, services.Wrap(services.ErrCacheIO, "store", "index", "scan stats row", err)
		}
		byNamespace[stat.Namespace] = stat
	}
	if err := rows.Err(); err != nil {
		return nil, services.Wrap(services.ErrCacheIO, "store", "index", "iterate stats rows", err)
	}

	stats := make([]NamespaceStats, 0, len(Namespaces))
	for _, ns := range Namespaces {
		stat, ok := byNamespace[ns]
		if !ok {
			stat = NamespaceStats{Namespace: ns}
		}
		stats = append(stats, stat)
	}
	return stats, nil
}
