package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aretw0/flowline/pkg/domain"
	"github.com/aretw0/flowline/pkg/ports"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Store is a ports.Store backed by SQLite.
//
// Graphs and runs are stored as JSON documents next to the columns needed
// for lookups and ordering.
type Store struct {
	db *sql.DB
}

// Ensure Store implements ports.Store.
var _ ports.Store = (*Store)(nil)

// Open opens (or creates) the database at path and initializes the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New initializes the required schema in the given database and returns a
// new Store. The caller owns db.
func New(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init sqlite schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS graphs (
			id TEXT PRIMARY KEY,
			definition BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			graph_id TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			record BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS runs_by_graph ON runs (graph_id, created_at);`,
	)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateGraph(ctx context.Context, graph *domain.Graph) error {
	def, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO graphs (id, definition) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING`,
		graph.ID(), def,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrGraphExists, graph.ID())
	}
	return nil
}

func (s *Store) GetGraph(ctx context.Context, graphID string) (*domain.Graph, error) {
	var def []byte
	err := s.db.QueryRowContext(ctx, `SELECT definition FROM graphs WHERE id = ?`, graphID).Scan(&def)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrGraphNotFound
		}
		return nil, err
	}

	var g domain.Graph
	if err := json.Unmarshal(def, &g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return &g, nil
}

func (s *Store) ListGraphs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM graphs ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CreateRun(ctx context.Context, run *domain.Run) error {
	record, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, graph_id, status, created_at, record) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		run.ID, run.GraphID, string(run.Status), run.CreatedAt.UnixNano(), record,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRunExists, run.ID)
	}
	return nil
}

func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	record, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, record = ? WHERE id = ?`,
		string(run.Status), record, run.ID,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrRunNotFound
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (*domain.Run, error) {
	var record []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM runs WHERE id = ?`, runID).Scan(&record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, err
	}
	return decodeRun(record)
}

func (s *Store) ListRuns(ctx context.Context, filter ports.RunFilter) ([]*domain.Run, error) {
	query := `SELECT record FROM runs`
	var args []any
	if filter.GraphID != "" {
		query += ` WHERE graph_id = ?`
		args = append(args, filter.GraphID)
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*domain.Run{}
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		run, err := decodeRun(record)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func decodeRun(record []byte) (*domain.Run, error) {
	var run domain.Run
	if err := json.Unmarshal(record, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	if run.State == nil {
		run.State = domain.State{}
	}
	if run.Iterations == nil {
		run.Iterations = make(map[string]int)
	}
	return &run, nil
}
