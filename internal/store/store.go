// Package store is the persistence adapter: sqlite-backed form template
// catalogue, session records, and an append-only answer log.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/dkarpov/intake/internal/graph"
	"github.com/dkarpov/intake/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS form_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		job_type TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS questions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		template_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		type TEXT NOT NULL,
		text TEXT NOT NULL DEFAULT '',
		options TEXT NOT NULL DEFAULT '[]',
		conditional_shows TEXT NOT NULL DEFAULT '[]',
		skip_logic TEXT NOT NULL DEFAULT '[]',
		field_mappings TEXT NOT NULL DEFAULT '[]',
		standards TEXT NOT NULL DEFAULT '[]',
		UNIQUE (template_id, question_id),
		FOREIGN KEY (template_id) REFERENCES form_templates(id)
	);

	CREATE TABLE IF NOT EXISTS interview_sessions (
		id TEXT PRIMARY KEY,
		template_id TEXT NOT NULL,
		job_type TEXT NOT NULL DEFAULT '',
		tier_level TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'in_progress',
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (template_id) REFERENCES form_templates(id)
	);

	CREATE TABLE IF NOT EXISTS answer_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		value TEXT NOT NULL,
		confidence INTEGER NOT NULL DEFAULT 100,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (session_id) REFERENCES interview_sessions(id)
	);

	CREATE TABLE IF NOT EXISTS import_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertTemplate stores a form template header, replacing its questions.
func (s *Store) UpsertTemplate(ti model.TemplateImport) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO form_templates (id, name, job_type) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = ?, job_type = ?`,
		ti.ID, ti.Name, ti.JobType, ti.Name, ti.JobType,
	)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM questions WHERE template_id = ?`, ti.ID); err != nil {
		return err
	}

	for _, q := range ti.Questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		conditions, err := json.Marshal(q.ConditionalShows)
		if err != nil {
			return err
		}
		skips, err := json.Marshal(q.SkipLogic)
		if err != nil {
			return err
		}
		mappings, err := json.Marshal(q.FieldMappings)
		if err != nil {
			return err
		}
		standards, err := json.Marshal(q.Standards)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO questions (template_id, question_id, sequence, type, text,
			 options, conditional_shows, skip_logic, field_mappings, standards)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ti.ID, q.ID, q.Sequence, q.Type, q.Text,
			string(options), string(conditions), string(skips), string(mappings), string(standards),
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTemplate returns a template header by id.
func (s *Store) GetTemplate(id string) (model.FormTemplate, error) {
	var t model.FormTemplate
	err := s.db.QueryRow(
		`SELECT id, name, job_type FROM form_templates WHERE id = ?`, id,
	).Scan(&t.ID, &t.Name, &t.JobType)
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("%w: form template %q", model.ErrNotFound, id)
	}
	return t, err
}

// ListTemplates returns all template headers.
func (s *Store) ListTemplates() ([]model.FormTemplate, error) {
	rows, err := s.db.Query(`SELECT id, name, job_type FROM form_templates ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []model.FormTemplate
	for rows.Next() {
		var t model.FormTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.JobType); err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

// GetGraph resolves a template id to its validated question graph.
func (s *Store) GetGraph(templateID string) (*graph.Graph, error) {
	t, err := s.GetTemplate(templateID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT question_id, sequence, type, text, options, conditional_shows, skip_logic,
		 field_mappings, standards
		 FROM questions WHERE template_id = ? ORDER BY sequence`, templateID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options, conditions, skips, mappings, standards string
		if err := rows.Scan(&q.ID, &q.Sequence, &q.Type, &q.Text,
			&options, &conditions, &skips, &mappings, &standards); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("question %s options: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(conditions), &q.ConditionalShows); err != nil {
			return nil, fmt.Errorf("question %s conditions: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(skips), &q.SkipLogic); err != nil {
			return nil, fmt.Errorf("question %s skip logic: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(mappings), &q.FieldMappings); err != nil {
			return nil, fmt.Errorf("question %s field mappings: %w", q.ID, err)
		}
		if err := json.Unmarshal([]byte(standards), &q.Standards); err != nil {
			return nil, fmt.Errorf("question %s standards: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return graph.New(t.ID, t.Name, t.JobType, questions)
}

// CreateSession stores a new session record.
func (s *Store) CreateSession(sess model.Session) error {
	_, err := s.db.Exec(
		`INSERT INTO interview_sessions (id, template_id, job_type, tier_level, status, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.TemplateID, sess.JobType, sess.TierLevel, sess.Status, time.Now(),
	)
	return err
}

// GetSession returns a session by id.
func (s *Store) GetSession(id string) (model.Session, error) {
	var sess model.Session
	err := s.db.QueryRow(
		`SELECT id, template_id, job_type, tier_level, status, started_at, completed_at
		 FROM interview_sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.TemplateID, &sess.JobType, &sess.TierLevel, &sess.Status,
		&sess.StartedAt, &sess.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return sess, fmt.Errorf("%w: session %q", model.ErrNotFound, id)
	}
	return sess, err
}

// UpdateSessionStatus updates the session status; completion stamps the
// completed_at time.
func (s *Store) UpdateSessionStatus(id string, status model.SessionStatus) error {
	query := `UPDATE interview_sessions SET status = ? WHERE id = ?`
	args := []any{status, id}
	if status == model.StatusCompleted {
		query = `UPDATE interview_sessions SET status = ?, completed_at = ? WHERE id = ?`
		args = []any{status, time.Now(), id}
	}
	_, err := s.db.Exec(query, args...)
	return err
}

// ListSessions returns all sessions, newest first.
func (s *Store) ListSessions() ([]model.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, template_id, job_type, tier_level, status, started_at, completed_at
		 FROM interview_sessions ORDER BY started_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		var sess model.Session
		if err := rows.Scan(&sess.ID, &sess.TemplateID, &sess.JobType, &sess.TierLevel,
			&sess.Status, &sess.StartedAt, &sess.CompletedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// AppendAnswer durably appends an answer record. The log is append-only;
// re-answered questions produce additional rows.
func (s *Store) AppendAnswer(ctx context.Context, sessionID string, rec model.AnswerRecord) error {
	encoded, err := model.EncodeValue(rec.Value)
	if err != nil {
		return fmt.Errorf("encode answer for %s: %w", rec.QuestionID, err)
	}
	at := rec.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answer_log (session_id, question_id, value, confidence, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, rec.QuestionID, encoded, rec.Confidence, at,
	)
	return err
}

// ListAnswers returns a session's answer records in append order. Records
// whose values fail to parse degrade to their raw string form.
func (s *Store) ListAnswers(sessionID string) ([]model.AnswerRecord, error) {
	rows, err := s.db.Query(
		`SELECT question_id, value, confidence, created_at FROM answer_log
		 WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.AnswerRecord
	for rows.Next() {
		var rec model.AnswerRecord
		var raw string
		if err := rows.Scan(&rec.QuestionID, &raw, &rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Value = model.DecodeValue(raw)
		records = append(records, rec)
	}
	return records, rows.Err()
}
