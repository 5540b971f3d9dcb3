package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"wablast/internal/model"
)

// ErrNotFound is returned when a template id does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

// Open opens/initializes SQLite database with WAL and foreign keys, then migrates schema.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; progress is written after every recipient.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		// continue; non-fatal
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		// continue; non-fatal
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes underlying DB.
func (s *Store) Close() error { return s.DB.Close() }

func migrate(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS templates (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			attachments_json TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS contact_progress (
			group_name TEXT PRIMARY KEY,
			last_index INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS daily_stats (
			day TEXT PRIMARY KEY,
			sent INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_templates_created ON templates(created_at);`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListTemplates returns all templates in creation order.
func (s *Store) ListTemplates(ctx context.Context) ([]model.Template, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id,name,message,attachments_json,created_at,updated_at FROM templates ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []model.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// GetTemplate returns one template or ErrNotFound.
func (s *Store) GetTemplate(ctx context.Context, id string) (model.Template, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT id,name,message,attachments_json,created_at,updated_at FROM templates WHERE id=?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Template{}, ErrNotFound
	}
	return t, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(sc scanner) (model.Template, error) {
	var t model.Template
	var attachments string
	if err := sc.Scan(&t.ID, &t.Name, &t.Message, &attachments, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Template{}, err
	}
	t.Attachments = parseJSONArray(attachments)
	return t, nil
}

// CreateTemplate inserts a template and returns it with its generated ID.
func (s *Store) CreateTemplate(ctx context.Context, t model.Template) (model.Template, error) {
	t.ID = uuid.NewString()
	now := time.Now()
	t.CreatedAt, t.UpdatedAt = now, now
	if t.Attachments == nil {
		t.Attachments = []string{}
	}
	_, err := s.DB.ExecContext(ctx, `INSERT INTO templates (id,name,message,attachments_json,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		t.ID, t.Name, t.Message, toJSONArray(t.Attachments), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return model.Template{}, err
	}
	return t, nil
}

// UpdateTemplate replaces name, message and attachments of an existing template.
func (s *Store) UpdateTemplate(ctx context.Context, t model.Template) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE templates SET name=?, message=?, attachments_json=?, updated_at=CURRENT_TIMESTAMP WHERE id=?`,
		t.Name, t.Message, toJSONArray(t.Attachments), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM templates WHERE id=?`, id)
	return err
}

// RenameAttachment rewrites references to a renamed media file in every template.
func (s *Store) RenameAttachment(ctx context.Context, oldName, newName string) error {
	list, err := s.ListTemplates(ctx)
	if err != nil {
		return err
	}
	for _, t := range list {
		changed := false
		for i, ref := range t.Attachments {
			if ref == oldName {
				t.Attachments[i] = newName
				changed = true
			}
		}
		if changed {
			if err := s.UpdateTemplate(ctx, t); err != nil {
				return err
			}
		}
	}
	return nil
}

// Progress returns the saved last-processed index for a contact group, 0 if none.
func (s *Store) Progress(ctx context.Context, group string) (int, error) {
	var idx int
	err := s.DB.QueryRowContext(ctx, `SELECT last_index FROM contact_progress WHERE group_name=?`, group).Scan(&idx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return idx, err
}

// SaveProgress upserts the last-processed index for a contact group.
func (s *Store) SaveProgress(ctx context.Context, group string, idx int) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO contact_progress (group_name, last_index, updated_at)
		VALUES (?,?,CURRENT_TIMESTAMP)
		ON CONFLICT(group_name) DO UPDATE SET
			last_index=excluded.last_index,
			updated_at=excluded.updated_at
	`, group, idx)
	return err
}

// ResetProgress forgets the saved index of a contact group.
func (s *Store) ResetProgress(ctx context.Context, group string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM contact_progress WHERE group_name=?`, group)
	return err
}

// AllProgress returns every saved group index.
func (s *Store) AllProgress(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT group_name, last_index FROM contact_progress`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var g string
		var idx int
		if err := rows.Scan(&g, &idx); err != nil {
			return nil, err
		}
		out[g] = idx
	}
	return out, rows.Err()
}

// AddSent adds n to the counter of day (YYYY-MM-DD), creating the entry if needed.
func (s *Store) AddSent(ctx context.Context, day string, n int) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO daily_stats (day, sent) VALUES (?,?)
		ON CONFLICT(day) DO UPDATE SET sent = daily_stats.sent + excluded.sent
	`, day, n)
	return err
}

// Stats returns the aggregate counters with per-day entries in date order.
func (s *Store) Stats(ctx context.Context) (model.Stats, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT day, sent FROM daily_stats ORDER BY day`)
	if err != nil {
		return model.Stats{}, err
	}
	defer rows.Close()
	st := model.Stats{Daily: []model.DailyStat{}}
	for rows.Next() {
		var d model.DailyStat
		if err := rows.Scan(&d.Date, &d.Sent); err != nil {
			return model.Stats{}, err
		}
		st.TotalSent += d.Sent
		st.Daily = append(st.Daily, d)
	}
	return st, rows.Err()
}

// ResetStats clears every daily counter.
func (s *Store) ResetStats(ctx context.Context) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM daily_stats`)
	return err
}

func parseJSONArray(s string) []string {
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func toJSONArray(arr []string) string {
	if arr == nil {
		arr = []string{}
	}
	b, _ := json.Marshal(arr)
	return string(b)
}
