// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver
)

const gallerySchema = `
CREATE TABLE IF NOT EXISTS gallery (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	request_id TEXT NOT NULL UNIQUE,
	package_name TEXT NOT NULL,
	url TEXT NOT NULL,
	taken_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gallery_user ON gallery(user_id, taken_at DESC);
`

// SqliteGallery implements Gallery on a local SQLite file.
type SqliteGallery struct {
	db *sql.DB
}

// OpenSqliteGallery opens (or creates) the gallery database. An empty path
// uses an in-memory database, which is handy for tests.
func OpenSqliteGallery(path string) (*SqliteGallery, error) {
	if path == "" {
		path = ":memory:"
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open gallery db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(gallerySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("gallery schema: %w", err)
	}
	return &SqliteGallery{db: db}, nil
}

func (g *SqliteGallery) Close() error { return g.db.Close() }

func (g *SqliteGallery) Add(ctx context.Context, entry *GalleryEntry) error {
	res, err := g.db.ExecContext(ctx,
		`INSERT INTO gallery (user_id, request_id, package_name, url, taken_at) VALUES (?, ?, ?, ?, ?)`,
		entry.UserID, entry.RequestID, entry.PackageName, entry.URL, entry.TakenAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("gallery insert: %w", err)
	}
	entry.ID, _ = res.LastInsertId()
	return nil
}

func (g *SqliteGallery) ListByUser(ctx context.Context, userID string) ([]*GalleryEntry, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, user_id, request_id, package_name, url, taken_at FROM gallery WHERE user_id = ? ORDER BY taken_at DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("gallery query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*GalleryEntry
	for rows.Next() {
		var e GalleryEntry
		var takenAt int64
		if err := rows.Scan(&e.ID, &e.UserID, &e.RequestID, &e.PackageName, &e.URL, &takenAt); err != nil {
			return nil, err
		}
		e.TakenAt = time.UnixMilli(takenAt)
		out = append(out, &e)
	}
	return out, rows.Err()
}
