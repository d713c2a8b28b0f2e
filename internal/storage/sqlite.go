package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/mpataki/anvil/internal/models"
	_ "modernc.org/sqlite"
)

// Storage is the local run ledger. Writes are best-effort from the caller's
// point of view: a broken ledger never fails a run, it only loses history.
type Storage struct {
	db *sql.DB
}

func New(dbPath string) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		goal TEXT NOT NULL,
		workspace_path TEXT NOT NULL,
		outcome TEXT NOT NULL,
		duration_sec REAL NOT NULL DEFAULT 0,
		tool_uses INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		summary TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_outcome ON runs(outcome);
	`

	_, err := s.db.Exec(schema)
	return err
}

func (s *Storage) CreateRecord(rec *models.Record) (int64, error) {
	result, err := s.db.Exec(
		`INSERT INTO runs (goal, workspace_path, outcome, duration_sec, tool_uses, error, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Goal, rec.Workspace, string(rec.Outcome), rec.DurationSec, rec.ToolUses, rec.Error, rec.Summary,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *Storage) GetRecord(id int64) (*models.Record, error) {
	row := s.db.QueryRow(
		`SELECT id, created_at, goal, workspace_path, outcome, duration_sec, tool_uses, error, summary
		 FROM runs WHERE id = ?`, id,
	)
	rec, err := scanRecord(row.Scan)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Storage) ListRecords(limit int) ([]*models.Record, error) {
	rows, err := s.db.Query(
		`SELECT id, created_at, goal, workspace_path, outcome, duration_sec, tool_uses, error, summary
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

func (s *Storage) DeleteRecord(id int64) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("storage: no run with id %d", id)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error) (*models.Record, error) {
	var rec models.Record
	var outcome string
	var errMsg, summary sql.NullString

	err := scan(
		&rec.ID, &rec.CreatedAt, &rec.Goal, &rec.Workspace, &outcome,
		&rec.DurationSec, &rec.ToolUses, &errMsg, &summary,
	)
	if err != nil {
		return nil, err
	}

	rec.Outcome = models.RecordOutcome(outcome)
	if errMsg.Valid {
		rec.Error = errMsg.String
	}
	if summary.Valid {
		rec.Summary = summary.String
	}
	return &rec, nil
}

// FormatTimeAgo renders a ledger timestamp for the history view.
func FormatTimeAgo(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2")
	}
}
