// Package catalog keeps a SQLite record of every generated PBR material.
package catalog

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const (
	// DefaultBatchSize is the number of materials buffered before flushing to the database.
	DefaultBatchSize = 32
)

// Material is one base-color texture and its generated channels.
type Material struct {
	GeneratedAt   time.Time `json:"generated_at"`
	Base          string    `json:"base"`
	Name          string    `json:"name"`
	ColorPath     string    `json:"color"`
	NormalPath    string    `json:"normal,omitempty"`
	MetalnessPath string    `json:"metalness,omitempty"`
	RoughnessPath string    `json:"roughness,omitempty"`
	Swatch        string    `json:"swatch,omitempty"`
	Resolution    int       `json:"resolution"`
}

// Catalog writes and reads material records.
type Catalog struct {
	db        *sql.DB
	path      string
	batch     []Material
	batchSize int
	mu        sync.Mutex
}

// Open opens (or creates) a catalog database and initializes its schema.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Catalog{
		db:        db,
		path:      path,
		batch:     make([]Material, 0, DefaultBatchSize),
		batchSize: DefaultBatchSize,
	}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS materials (
			base TEXT NOT NULL PRIMARY KEY,
			name TEXT NOT NULL,
			color_path TEXT NOT NULL,
			normal_path TEXT,
			metalness_path TEXT,
			roughness_path TEXT,
			swatch TEXT,
			resolution INTEGER NOT NULL,
			generated_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS materials_name ON materials (name);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Record buffers a material. A full batch is flushed automatically.
func (c *Catalog) Record(m Material) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.GeneratedAt.IsZero() {
		m.GeneratedAt = time.Now()
	}
	c.batch = append(c.batch, m)

	if len(c.batch) >= c.batchSize {
		return c.flushLocked()
	}
	return nil
}

// Flush writes buffered materials to the database.
func (c *Catalog) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushLocked()
}

// flushLocked writes buffered materials. Must be called with lock held.
func (c *Catalog) flushLocked() error {
	if len(c.batch) == 0 {
		return nil
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO materials
		(base, name, color_path, normal_path, metalness_path, roughness_path, swatch, resolution, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range c.batch {
		if _, err := stmt.Exec(m.Base, m.Name, m.ColorPath, m.NormalPath, m.MetalnessPath, m.RoughnessPath,
			m.Swatch, m.Resolution, m.GeneratedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert material %s: %w", m.Base, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.batch = c.batch[:0]
	return nil
}

// List returns all materials ordered by name, flushing pending records first.
func (c *Catalog) List() ([]Material, error) {
	if err := c.Flush(); err != nil {
		return nil, err
	}

	rows, err := c.db.Query(`SELECT base, name, color_path, normal_path, metalness_path, roughness_path,
		swatch, resolution, generated_at FROM materials ORDER BY name, base`)
	if err != nil {
		return nil, fmt.Errorf("failed to query materials: %w", err)
	}
	defer rows.Close()

	materials := []Material{}
	for rows.Next() {
		var (
			m                                    Material
			normal, metalness, roughness, swatch sql.NullString
			generatedAt                          int64
		)
		if err := rows.Scan(&m.Base, &m.Name, &m.ColorPath, &normal, &metalness, &roughness,
			&swatch, &m.Resolution, &generatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		m.NormalPath = normal.String
		m.MetalnessPath = metalness.String
		m.RoughnessPath = roughness.String
		m.Swatch = swatch.String
		m.GeneratedAt = time.Unix(generatedAt, 0)
		materials = append(materials, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate materials: %w", err)
	}

	return materials, nil
}

// Delete removes the material with the given base path.
func (c *Catalog) Delete(base string) (int64, error) {
	if err := c.Flush(); err != nil {
		return 0, err
	}

	res, err := c.db.Exec(`DELETE FROM materials WHERE base = ?`, base)
	if err != nil {
		return 0, fmt.Errorf("failed to delete material %s: %w", base, err)
	}
	return res.RowsAffected()
}

// DeleteUnder removes every material whose base lies below prefix and
// returns the number of rows removed.
func (c *Catalog) DeleteUnder(prefix string) (int64, error) {
	if err := c.Flush(); err != nil {
		return 0, err
	}

	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	res, err := c.db.Exec(`DELETE FROM materials WHERE base = ? OR base LIKE ? ESCAPE '\'`, prefix, escaped+"%")
	if err != nil {
		return 0, fmt.Errorf("failed to delete materials under %s: %w", prefix, err)
	}
	return res.RowsAffected()
}

// Path returns the database file path.
func (c *Catalog) Path() string {
	return c.path
}

// Close flushes pending materials and closes the database.
func (c *Catalog) Close() error {
	if err := c.Flush(); err != nil {
		c.db.Close()
		return err
	}

	if err := c.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
