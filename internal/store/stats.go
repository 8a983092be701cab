package store

import (
	"context"
	"database/sql"
	"os"
	"time"
)

// Stats holds scan log statistics.
type Stats struct {
	DBPath          string          `json:"db_path"`
	DBSizeBytes     int64           `json:"db_size_bytes"`
	TotalRounds     int             `json:"total_rounds"`
	FailedRounds    int             `json:"failed_rounds"`
	TotalCandidates int             `json:"total_candidates"`
	TotalAdmitted   int             `json:"total_admitted"`
	AvgLatencyMS    float64         `json:"avg_latency_ms"`
	FirstRoundAt    *time.Time      `json:"first_round_at,omitempty"`
	LastRoundAt     *time.Time      `json:"last_round_at,omitempty"`
	Categories      []CategoryStats `json:"categories"`
}

// CategoryStats holds per-category candidate counts.
type CategoryStats struct {
	Category string `json:"category"`
	Seen     int    `json:"seen"`
	Admitted int    `json:"admitted"`
}

// Stats returns scan log statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	if s.path != MemoryPath {
		if info, err := os.Stat(s.path); err == nil {
			st.DBSizeBytes = info.Size()
		}
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rounds`).Scan(&st.TotalRounds)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rounds WHERE outcome = 'failed'`).Scan(&st.FailedRounds)
	s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(candidates), 0), COALESCE(SUM(admitted), 0) FROM rounds`).
		Scan(&st.TotalCandidates, &st.TotalAdmitted)

	var first, last sql.NullString
	s.db.QueryRowContext(ctx, `SELECT MIN(started_at), MAX(started_at) FROM rounds`).Scan(&first, &last)
	if first.Valid {
		t, _ := time.Parse(tsLayout, first.String)
		st.FirstRoundAt = &t
	}
	if last.Valid {
		t, _ := time.Parse(tsLayout, last.String)
		st.LastRoundAt = &t
	}

	if st.TotalRounds > 0 {
		rows, err := s.db.QueryContext(ctx, `SELECT started_at, finished_at FROM rounds`)
		if err != nil {
			return st, err
		}
		var total time.Duration
		var n int
		for rows.Next() {
			var a, b string
			if err := rows.Scan(&a, &b); err != nil {
				continue
			}
			ta, _ := time.Parse(tsLayout, a)
			tb, _ := time.Parse(tsLayout, b)
			total += tb.Sub(ta)
			n++
		}
		rows.Close()
		if n > 0 {
			st.AvgLatencyMS = float64(total.Milliseconds()) / float64(n)
		}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*) AS seen, SUM(admitted) AS admitted
		FROM detections GROUP BY category ORDER BY seen DESC, category`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var c CategoryStats
		rows.Scan(&c.Category, &c.Seen, &c.Admitted)
		st.Categories = append(st.Categories, c)
	}

	return st, nil
}
