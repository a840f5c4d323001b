package engine

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/hearthgrid/hearth/internal/tree"
	_ "modernc.org/sqlite"
)

// SnapshotRow is one tree entry in persisted form. Rows are emitted
// parents-before-children so a restore can replay them in order through
// the normal create path.
type SnapshotRow struct {
	Path   string
	Kind   string // "dir", "file", or "formula"
	Value  string // literal value; formulas recompute on restore
	Source string // formula source text
}

// SnapshotRows captures the whole tree under the read lock.
func (e *Engine) SnapshotRows() []SnapshotRow {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var rows []SnapshotRow
	e.tree.WalkAll(
		func(p tree.Path) {
			rows = append(rows, SnapshotRow{Path: p.String(), Kind: "dir"})
		},
		func(p tree.Path, s *tree.Slot) {
			if s.Kind == tree.SlotFormula {
				rows = append(rows, SnapshotRow{Path: p.String(), Kind: "formula", Source: s.Source})
			} else {
				rows = append(rows, SnapshotRow{Path: p.String(), Kind: "file", Value: s.Value.String()})
			}
		},
	)
	return rows
}

// Restore replays snapshot rows into an empty engine. Formulas pass
// back through compile and cycle checking; a row that no longer
// compiles is logged and skipped rather than poisoning the boot.
func (e *Engine) Restore(rows []SnapshotRow) error {
	for _, row := range rows {
		p, err := tree.ParsePath(row.Path)
		if err != nil {
			return fmt.Errorf("snapshot row %q: %w", row.Path, err)
		}
		parent := p.Parent().String()
		switch row.Kind {
		case "dir":
			err = e.CreateDirectory(parent, p.Base())
		case "file":
			_, err = e.CreateFile(parent, p.Base(), row.Value)
		case "formula":
			if _, ferr := e.CreateFormula(parent, p.Base(), row.Source); ferr != nil {
				glog.Errorf("snapshot: dropping formula %s: %v", row.Path, ferr)
			}
		default:
			return fmt.Errorf("snapshot row %q: unknown kind %q", row.Path, row.Kind)
		}
		if err != nil {
			return fmt.Errorf("snapshot row %q: %w", row.Path, err)
		}
	}
	return nil
}

// SnapshotStore persists snapshots in a single sqlite file. Each save
// replaces the previous image inside one transaction, so a crash mid-
// save leaves the prior snapshot intact.
type SnapshotStore struct {
	db *sql.DB
}

func OpenSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		path TEXT NOT NULL UNIQUE,
		kind TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT ''
	);
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create snapshot schema: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error { return s.db.Close() }

// Save replaces the stored snapshot with rows.
func (s *SnapshotStore) Save(rows []SnapshotRow) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // no-op after commit

	if _, err := tx.Exec("DELETE FROM nodes"); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	stmt, err := tx.Prepare("INSERT INTO nodes (path, kind, value, source) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()
	for _, row := range rows {
		if _, err := stmt.Exec(row.Path, row.Kind, row.Value, row.Source); err != nil {
			return fmt.Errorf("insert snapshot row %q: %w", row.Path, err)
		}
	}
	return tx.Commit()
}

// Load returns the stored snapshot in replay order.
func (s *SnapshotStore) Load() ([]SnapshotRow, error) {
	rows, err := s.db.Query("SELECT path, kind, value, source FROM nodes ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("query snapshot: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []SnapshotRow
	for rows.Next() {
		var row SnapshotRow
		if err := rows.Scan(&row.Path, &row.Kind, &row.Value, &row.Source); err != nil {
			return nil, fmt.Errorf("scan snapshot row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// RunPeriodic snapshots the engine every interval until ctx is
// canceled, then takes one final snapshot on the way out.
func (s *SnapshotStore) RunPeriodic(ctx context.Context, e *Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := s.Save(e.SnapshotRows()); err != nil {
				glog.Errorf("final snapshot failed: %v", err)
			}
			return
		case <-ticker.C:
			if err := s.Save(e.SnapshotRows()); err != nil {
				glog.Errorf("periodic snapshot failed: %v", err)
			}
		}
	}
}
