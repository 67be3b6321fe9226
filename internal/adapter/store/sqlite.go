package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"bimbridge/internal/domain"
)

// SQLiteStore persists a model in SQLite. Each OpenCurrentModel call reads a
// fresh snapshot into memory.
type SQLiteStore struct {
	db *sql.DB
}

var _ domain.ModelStore = (*SQLiteStore)(nil)

// Relation kinds as stored in the relations table.
const (
	relationType        = "type"
	relationContainedIn = "contained_in"
	relationDecomposes  = "decomposes"
	relationNestedIn    = "nested_in"
)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and runs the
// schema migration.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open model db: %w", err)
	}
	// WAL mode lets the bridge read while an import is running.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate model db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS elements (
			local_id      INTEGER PRIMARY KEY,
			position      INTEGER NOT NULL,
			unique_id     TEXT,
			category      TEXT NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			spatial       INTEGER NOT NULL DEFAULT 0,
			property_sets TEXT NOT NULL DEFAULT '[]'
		);
		CREATE UNIQUE INDEX IF NOT EXISTS elements_unique_id ON elements(unique_id);
		CREATE TABLE IF NOT EXISTS type_objects (
			local_id      INTEGER PRIMARY KEY,
			category      TEXT NOT NULL,
			name          TEXT NOT NULL DEFAULT '',
			property_sets TEXT NOT NULL DEFAULT '[]'
		);
		CREATE TABLE IF NOT EXISTS relations (
			element_id INTEGER NOT NULL,
			kind       TEXT NOT NULL,
			position   INTEGER NOT NULL,
			target_id  INTEGER NOT NULL,
			PRIMARY KEY (element_id, kind, position)
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Import replaces the stored model with f in one transaction and returns the
// number of elements written.
func (s *SQLiteStore) Import(ctx context.Context, f *Fixture) (int, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"relations", "elements", "type_objects"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return 0, fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, t := range f.Types {
		sets, err := json.Marshal(t.PropertySets)
		if err != nil {
			return 0, fmt.Errorf("marshal type %d property sets: %w", t.LocalID, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO type_objects (local_id, category, name, property_sets) VALUES (?, ?, ?, ?)",
			t.LocalID, t.Category, t.Name, string(sets),
		); err != nil {
			return 0, fmt.Errorf("insert type %d: %w", t.LocalID, err)
		}
	}

	for i, e := range f.Elements {
		sets, err := json.Marshal(e.PropertySets)
		if err != nil {
			return 0, fmt.Errorf("marshal element %d property sets: %w", e.LocalID, err)
		}
		var uid any
		if e.UniqueID != "" {
			uid = e.UniqueID
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO elements (local_id, position, unique_id, category, name, spatial, property_sets) VALUES (?, ?, ?, ?, ?, ?, ?)",
			e.LocalID, i, uid, e.Category, e.Name, e.Spatial, string(sets),
		); err != nil {
			return 0, fmt.Errorf("insert element %d: %w", e.LocalID, err)
		}
		for kind, targets := range map[string][]int64{
			relationType:        e.Types,
			relationContainedIn: e.ContainedIn,
			relationDecomposes:  e.Decomposes,
			relationNestedIn:    e.NestedIn,
		} {
			for pos, target := range targets {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO relations (element_id, kind, position, target_id) VALUES (?, ?, ?, ?)",
					e.LocalID, kind, pos, target,
				); err != nil {
					return 0, fmt.Errorf("insert %s relation of %d: %w", kind, e.LocalID, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return len(f.Elements), nil
}

// OpenCurrentModel loads the stored model. An empty database has no model
// and yields ErrModelNotFound.
func (s *SQLiteStore) OpenCurrentModel(ctx context.Context) (domain.Model, error) {
	f, err := s.Export(ctx)
	if err != nil {
		return nil, err
	}
	if len(f.Elements) == 0 {
		return nil, domain.ErrModelNotFound
	}
	return NewModel(f)
}

// Export reads the stored model back into a Fixture.
func (s *SQLiteStore) Export(ctx context.Context) (*Fixture, error) {
	f := &Fixture{}

	typeRows, err := s.db.QueryContext(ctx, "SELECT local_id, category, name, property_sets FROM type_objects ORDER BY local_id")
	if err != nil {
		return nil, storeError("query types", err)
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var t TypeSpec
		var sets string
		if err := typeRows.Scan(&t.LocalID, &t.Category, &t.Name, &sets); err != nil {
			return nil, storeError("scan type", err)
		}
		if t.PropertySets, err = decodeSets(sets); err != nil {
			return nil, storeError(fmt.Sprintf("decode type %d property sets", t.LocalID), err)
		}
		f.Types = append(f.Types, t)
	}
	if err := typeRows.Err(); err != nil {
		return nil, storeError("iterate types", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT local_id, unique_id, category, name, spatial, property_sets FROM elements ORDER BY position")
	if err != nil {
		return nil, storeError("query elements", err)
	}
	defer rows.Close()
	index := make(map[int64]int)
	for rows.Next() {
		var e ElementSpec
		var uid sql.NullString
		var sets string
		if err := rows.Scan(&e.LocalID, &uid, &e.Category, &e.Name, &e.Spatial, &sets); err != nil {
			return nil, storeError("scan element", err)
		}
		e.UniqueID = uid.String
		if e.PropertySets, err = decodeSets(sets); err != nil {
			return nil, storeError(fmt.Sprintf("decode element %d property sets", e.LocalID), err)
		}
		index[e.LocalID] = len(f.Elements)
		f.Elements = append(f.Elements, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("iterate elements", err)
	}

	relRows, err := s.db.QueryContext(ctx, "SELECT element_id, kind, target_id FROM relations ORDER BY element_id, kind, position")
	if err != nil {
		return nil, storeError("query relations", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var elementID, target int64
		var kind string
		if err := relRows.Scan(&elementID, &kind, &target); err != nil {
			return nil, storeError("scan relation", err)
		}
		i, ok := index[elementID]
		if !ok {
			continue
		}
		e := &f.Elements[i]
		switch kind {
		case relationType:
			e.Types = append(e.Types, target)
		case relationContainedIn:
			e.ContainedIn = append(e.ContainedIn, target)
		case relationDecomposes:
			e.Decomposes = append(e.Decomposes, target)
		case relationNestedIn:
			e.NestedIn = append(e.NestedIn, target)
		}
	}
	if err := relRows.Err(); err != nil {
		return nil, storeError("iterate relations", err)
	}
	return f, nil
}

// decodeSets keeps numbers as json.Number so integers survive the round trip.
func decodeSets(data string) ([]PropertySetSpec, error) {
	var sets []PropertySetSpec
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()
	if err := dec.Decode(&sets); err != nil {
		return nil, err
	}
	return sets, nil
}

func storeError(detail string, err error) error {
	return domain.NewSubSystemError("store", "SQLiteStore.Export", domain.ErrModelUnavailable, fmt.Sprintf("%s: %v", detail, err))
}
