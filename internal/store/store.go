// Package store keeps a SQLite ledger of reconciliation runs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/touchsync/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// timeLayout sorts lexically in chronological order for UTC times.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store wraps SQLite access for run data.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			session TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			primary_path TEXT NOT NULL,
			reference_path TEXT NOT NULL,
			output_path TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT NOT NULL,
			block_set_mismatch INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS block_offsets (
			run_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			block_id TEXT NOT NULL,
			primary_rows INTEGER NOT NULL,
			reference_rows INTEGER NOT NULL,
			low INTEGER NOT NULL,
			high INTEGER NOT NULL,
			step INTEGER NOT NULL,
			best_offset INTEGER NOT NULL,
			score REAL,
			degenerate INTEGER NOT NULL,
			skipped INTEGER NOT NULL,
			skip_reason TEXT NOT NULL,
			PRIMARY KEY (run_id, position)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_session ON runs(session);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertRun stores a session result and its block offsets. A missing run id
// is generated; the stored id is returned.
func (s *Store) InsertRun(ctx context.Context, res model.SessionResult) (id string, err error) {
	id = res.RunID
	if id == "" {
		id = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, session, started_at, ended_at, primary_path, reference_path, output_path, status, message, block_set_mismatch)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		res.Session,
		res.StartedAt.UTC().Format(timeLayout),
		res.EndedAt.UTC().Format(timeLayout),
		res.PrimaryPath,
		res.ReferencePath,
		res.OutputPath,
		res.Status,
		res.Message,
		boolInt(res.BlockSetMismatch),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	if len(res.Blocks) > 0 {
		stmt, perr := tx.PrepareContext(ctx,
			`INSERT INTO block_offsets (run_id, position, block_id, primary_rows, reference_rows, low, high, step, best_offset, score, degenerate, skipped, skip_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if perr != nil {
			err = perr
			return "", err
		}
		defer func() {
			if cerr := stmt.Close(); cerr != nil {
				// Best-effort statement close.
				_ = cerr
			}
		}()
		for i, b := range res.Blocks {
			_, err = stmt.ExecContext(ctx, id, i, b.BlockID, b.PrimaryRows, b.ReferenceRows,
				b.Low, b.High, b.Step, b.Offset, finiteOrNull(b.Score),
				boolInt(b.Degenerate), boolInt(b.Skipped), b.SkipReason)
			if err != nil {
				return "", fmt.Errorf("insert block %s: %w", b.BlockID, err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return "", err
	}
	return id, nil
}

// ListRuns returns recorded runs, newest first.
func (s *Store) ListRuns(ctx context.Context, cfg model.RunsConfig) ([]model.RunAggregate, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Session != "" {
		clauses = append(clauses, "r.session = ?")
		args = append(args, cfg.Session)
	}
	limit := ""
	if cfg.Last > 0 {
		limit = "LIMIT ?"
		args = append(args, cfg.Last)
	}
	query := fmt.Sprintf(`SELECT r.id, r.session, r.status, r.message, r.output_path, r.started_at, r.ended_at,
			COALESCE(SUM(CASE WHEN b.skipped = 0 THEN 1 ELSE 0 END), 0) AS aligned,
			COALESCE(SUM(CASE WHEN b.skipped = 1 THEN 1 ELSE 0 END), 0) AS skipped
		FROM runs r
		LEFT JOIN block_offsets b ON b.run_id = r.id
		WHERE %s
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC
		%s`, strings.Join(clauses, " AND "), limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var runs []model.RunAggregate
	for rows.Next() {
		var agg model.RunAggregate
		var startedAt, endedAt string
		if err := rows.Scan(&agg.RunID, &agg.Session, &agg.Status, &agg.Message, &agg.OutputPath,
			&startedAt, &endedAt, &agg.AlignedBlocks, &agg.SkippedBlocks); err != nil {
			return nil, err
		}
		if agg.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, err
		}
		if agg.EndedAt, err = time.Parse(timeLayout, endedAt); err != nil {
			return nil, err
		}
		runs = append(runs, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// LatestRun returns the most recent run of a session.
func (s *Store) LatestRun(ctx context.Context, session string) (model.RunAggregate, bool, error) {
	runs, err := s.ListRuns(ctx, model.RunsConfig{Session: session, Last: 1})
	if err != nil || len(runs) == 0 {
		return model.RunAggregate{}, false, err
	}
	return runs[0], true, nil
}

// ListBlocks returns the block offsets of a run in processing order.
func (s *Store) ListBlocks(ctx context.Context, runID string) ([]model.BlockResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT block_id, primary_rows, reference_rows, low, high, step, best_offset, score, degenerate, skipped, skip_reason
		FROM block_offsets
		WHERE run_id = ?
		ORDER BY position ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var blocks []model.BlockResult
	for rows.Next() {
		var b model.BlockResult
		var score sql.NullFloat64
		var degenerate, skipped int
		if err := rows.Scan(&b.BlockID, &b.PrimaryRows, &b.ReferenceRows, &b.Low, &b.High, &b.Step,
			&b.Offset, &score, &degenerate, &skipped, &b.SkipReason); err != nil {
			return nil, err
		}
		b.Score = math.Inf(-1)
		if score.Valid {
			b.Score = score.Float64
		}
		b.Degenerate = degenerate != 0
		b.Skipped = skipped != 0
		blocks = append(blocks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blocks, nil
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// finiteOrNull stores undefined scores as NULL.
func finiteOrNull(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
