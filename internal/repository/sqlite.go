// Package repository persists configurations and sessions in SQLite.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/xiaot623/deskrelay/internal/domain"
)

// SQLiteStore implements session storage using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	// Keep a single connection to avoid schema/data disappearing across goroutines.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS configurations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT,
			parameters TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL UNIQUE,
			configuration_id INTEGER NOT NULL,
			status TEXT NOT NULL DEFAULT 'created',
			last_active_at DATETIME NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (configuration_id) REFERENCES configurations(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_last_active ON sessions(last_active_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}

	// Add new columns for existing DBs (SQLite has limited ALTER TABLE support).
	if err := s.ensureColumn("sessions", "metadata", "ALTER TABLE sessions ADD COLUMN metadata TEXT"); err != nil {
		return err
	}

	return nil
}

func (s *SQLiteStore) ensureColumn(tableName, columnName, ddl string) error {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if name == columnName {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	_, err = s.db.Exec(ddl)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateConfiguration inserts cfg and sets its ID.
func (s *SQLiteStore) CreateConfiguration(ctx context.Context, cfg *domain.Configuration) error {
	params := cfg.Parameters
	if params == nil {
		params = map[string]any{}
	}
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO configurations (name, description, parameters, created_at) VALUES (?, ?, ?, ?)`,
		cfg.Name, nullStringPtr(cfg.Description), string(encoded), cfg.CreatedAt)
	if err != nil {
		return err
	}
	cfg.ID, err = res.LastInsertId()
	return err
}

// GetConfiguration retrieves a configuration by ID.
func (s *SQLiteStore) GetConfiguration(ctx context.Context, id int64) (*domain.Configuration, error) {
	var cfg domain.Configuration
	var description sql.NullString
	var params string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, parameters, created_at FROM configurations WHERE id = ?`,
		id).Scan(&cfg.ID, &cfg.Name, &description, &params, &cfg.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if description.Valid {
		cfg.Description = &description.String
	}
	if err := decodeParameters(params, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CreateSession creates a new session and sets its ID.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActiveAt.IsZero() {
		session.LastActiveAt = now
	}
	if session.Status == "" {
		session.Status = domain.SessionStatusCreated
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (session_id, configuration_id, status, metadata, last_active_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.ConfigurationID, string(session.Status), nullStringBytes(session.Metadata),
		session.LastActiveAt, session.CreatedAt)
	if err != nil {
		return err
	}
	session.ID, err = res.LastInsertId()
	return err
}

const sessionColumns = `s.id, s.session_id, s.configuration_id, s.status, s.metadata, s.last_active_at, s.created_at`

func scanSession(row interface{ Scan(...any) error }, session *domain.Session, extra ...any) error {
	var status string
	var metadata sql.NullString
	dest := append([]any{
		&session.ID, &session.SessionID, &session.ConfigurationID, &status, &metadata,
		&session.LastActiveAt, &session.CreatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return err
	}
	session.Status = domain.SessionStatus(status)
	if metadata.Valid {
		session.Metadata = json.RawMessage(metadata.String)
	}
	return nil
}

// GetSession retrieves a session by its public id. It returns nil, nil when
// no session matches.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions s WHERE s.session_id = ?`, sessionID)
	err := scanSession(row, &session)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessionDetail retrieves a session together with its configuration.
func (s *SQLiteStore) GetSessionDetail(ctx context.Context, sessionID string) (*domain.SessionDetail, error) {
	var detail domain.SessionDetail
	var description sql.NullString
	var params string
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+`, c.id, c.name, c.description, c.parameters, c.created_at
		FROM sessions s JOIN configurations c ON c.id = s.configuration_id
		WHERE s.session_id = ?`, sessionID)
	err := scanSession(row, &detail.Session,
		&detail.Configuration.ID, &detail.Configuration.Name, &description, &params, &detail.Configuration.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if description.Valid {
		detail.Configuration.Description = &description.String
	}
	if err := decodeParameters(params, &detail.Configuration); err != nil {
		return nil, err
	}
	return &detail, nil
}

// UpdateSessionStatus sets status and last_active_at unconditionally.
func (s *SQLiteStore) UpdateSessionStatus(ctx context.Context, sessionID string, status domain.SessionStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, last_active_at = ? WHERE session_id = ?`,
		string(status), at.UTC(), sessionID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TransitionSessionStatus moves a session from one status to another only if
// it is still in from. It reports whether the row changed.
func (s *SQLiteStore) TransitionSessionStatus(ctx context.Context, sessionID string, from, to domain.SessionStatus, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, last_active_at = ? WHERE session_id = ? AND status = ?`,
		string(to), at.UTC(), sessionID, string(from))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// TouchSession refreshes last_active_at.
func (s *SQLiteStore) TouchSession(ctx context.Context, sessionID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET last_active_at = ? WHERE session_id = ?`,
		at.UTC(), sessionID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListSessions returns every session with its configuration name, most
// recently active first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.session_id, c.name, s.status, s.last_active_at
		FROM sessions s JOIN configurations c ON c.id = s.configuration_id
		ORDER BY s.last_active_at DESC, s.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []domain.SessionSummary{}
	for rows.Next() {
		var summary domain.SessionSummary
		var status string
		if err := rows.Scan(&summary.ID, &summary.SessionID, &summary.Name, &status, &summary.LastActiveAt); err != nil {
			return nil, err
		}
		summary.Status = domain.SessionStatus(status)
		sessions = append(sessions, summary)
	}
	return sessions, rows.Err()
}

func decodeParameters(raw string, cfg *domain.Configuration) error {
	if raw == "" {
		cfg.Parameters = map[string]any{}
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &cfg.Parameters); err != nil {
		return fmt.Errorf("decode parameters for configuration %d: %w", cfg.ID, err)
	}
	if cfg.Parameters == nil {
		cfg.Parameters = map[string]any{}
	}
	return nil
}

func nullStringPtr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullStringBytes(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(b), Valid: true}
}
