package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/movemate/internal/model"
)

// MemoryPath keeps the log in memory for the lifetime of the process.
const MemoryPath = ":memory:"

// fixed width so lexical order matches time order
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Log using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string

	idMu    sync.Mutex // guards entropy
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
// MemoryPath (or "") gives a private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = MemoryPath
	}
	inMemory := dbPath == MemoryPath

	if !inMemory {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=foreign_keys(on)"
	if !inMemory {
		dsn += "&_pragma=journal_mode(wal)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if inMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{
		db:      db,
		path:    dbPath,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) newID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS rounds (
		id          TEXT PRIMARY KEY,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		frame_bytes INTEGER NOT NULL DEFAULT 0,
		provider    TEXT NOT NULL DEFAULT '',
		outcome     TEXT NOT NULL,
		error       TEXT,
		candidates  INTEGER NOT NULL DEFAULT 0,
		admitted    INTEGER NOT NULL DEFAULT 0,
		added       TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_rounds_started ON rounds(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_rounds_outcome ON rounds(outcome);

	CREATE TABLE IF NOT EXISTS detections (
		id          TEXT PRIMARY KEY,
		round_id    TEXT NOT NULL REFERENCES rounds(id),
		seq         INTEGER NOT NULL,
		name        TEXT NOT NULL,
		category    TEXT NOT NULL,
		fragility   TEXT NOT NULL,
		admitted    INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_detections_round ON detections(round_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) RecordRound(ctx context.Context, p RoundParams) (*model.Round, error) {
	id := s.newID()

	outcome := model.RoundOK
	var errMsg *string
	if p.Err != nil {
		outcome = model.RoundFailed
		m := p.Err.Error()
		errMsg = &m
	}
	var added *string
	if p.Added != "" {
		added = &p.Added
	}

	admitted := 0
	for _, a := range p.Admitted {
		if a {
			admitted++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO rounds (id, started_at, finished_at, frame_bytes, provider, outcome, error, candidates, admitted, added)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.StartedAt.UTC().Format(tsLayout), p.FinishedAt.UTC().Format(tsLayout),
		p.FrameBytes, p.Provider, outcome, errMsg, len(p.Candidates), admitted, added)
	if err != nil {
		return nil, fmt.Errorf("insert round: %w", err)
	}

	dets := make([]model.DetectionRecord, 0, len(p.Candidates))
	for i, c := range p.Candidates {
		d := model.DetectionRecord{
			ID:        s.newID(),
			RoundID:   id,
			Seq:       i,
			Name:      c.Name,
			Category:  c.Category,
			Fragility: c.Fragility,
			Admitted:  i < len(p.Admitted) && p.Admitted[i],
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO detections (id, round_id, seq, name, category, fragility, admitted)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.RoundID, d.Seq, d.Name, d.Category, d.Fragility, d.Admitted)
		if err != nil {
			return nil, fmt.Errorf("insert detection: %w", err)
		}
		dets = append(dets, d)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	r := &model.Round{
		ID:         id,
		StartedAt:  p.StartedAt.UTC(),
		FinishedAt: p.FinishedAt.UTC(),
		FrameBytes: p.FrameBytes,
		Provider:   p.Provider,
		Outcome:    outcome,
		Candidates: len(p.Candidates),
		Admitted:   admitted,
		Added:      p.Added,
		Detections: dets,
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return r, nil
}

const roundColumns = `id, started_at, finished_at, frame_bytes, provider, outcome, error, candidates, admitted, added`

func (s *SQLiteStore) GetRound(ctx context.Context, id string) (*model.Round, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roundColumns+` FROM rounds WHERE id = ?`, id)
	r, err := scanRound(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("round not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	dets, err := s.detections(ctx, []string{r.ID})
	if err != nil {
		return nil, err
	}
	r.Detections = dets[r.ID]
	return &r, nil
}

func (s *SQLiteStore) ListRounds(ctx context.Context, p ListParams) ([]model.Round, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"1 = 1"}
	var args []interface{}
	if p.FailedOnly {
		where = append(where, "outcome = ?")
		args = append(args, model.RoundFailed)
	}

	query := fmt.Sprintf(`SELECT %s FROM rounds WHERE %s ORDER BY started_at DESC, id DESC LIMIT ?`,
		roundColumns, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []model.Round
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		rounds = append(rounds, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if p.WithDetections && len(rounds) > 0 {
		ids := make([]string, len(rounds))
		for i, r := range rounds {
			ids[i] = r.ID
		}
		dets, err := s.detections(ctx, ids)
		if err != nil {
			return nil, err
		}
		for i := range rounds {
			rounds[i].Detections = dets[rounds[i].ID]
		}
	}

	return rounds, nil
}

func (s *SQLiteStore) detections(ctx context.Context, roundIDs []string) (map[string][]model.DetectionRecord, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(roundIDs)), ",")
	args := make([]interface{}, len(roundIDs))
	for i, id := range roundIDs {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, round_id, seq, name, category, fragility, admitted
		 FROM detections WHERE round_id IN (`+placeholders+`) ORDER BY round_id, seq`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]model.DetectionRecord)
	for rows.Next() {
		var d model.DetectionRecord
		if err := rows.Scan(&d.ID, &d.RoundID, &d.Seq, &d.Name, &d.Category, &d.Fragility, &d.Admitted); err != nil {
			return nil, err
		}
		out[d.RoundID] = append(out[d.RoundID], d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRound(row scanner) (model.Round, error) {
	var r model.Round
	var startedAt, finishedAt string
	var errMsg, added sql.NullString

	err := row.Scan(
		&r.ID, &startedAt, &finishedAt, &r.FrameBytes, &r.Provider,
		&r.Outcome, &errMsg, &r.Candidates, &r.Admitted, &added,
	)
	if err != nil {
		return r, err
	}

	r.StartedAt, _ = time.Parse(tsLayout, startedAt)
	r.FinishedAt, _ = time.Parse(tsLayout, finishedAt)
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	if added.Valid {
		r.Added = added.String
	}
	return r, nil
}
