package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/core"
)

// Timestamps are stored as fixed-width RFC 3339 UTC strings so that
// lexicographic range scans on normalized_ts match chronological order.
const sqliteTimeLayout = time.RFC3339

// SQLiteStore is a SQLite implementation of the Store interface.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS account_configs (
			config_id TEXT PRIMARY KEY,
			user_scope TEXT NOT NULL,
			email TEXT NOT NULL,
			credential_secret TEXT NOT NULL,
			notify_target TEXT NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(user_scope, email)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id TEXT PRIMARY KEY,
			user_scope TEXT NOT NULL,
			source_account TEXT NOT NULL,
			raw_timestamp TEXT NOT NULL DEFAULT '',
			normalized_ts TEXT NOT NULL,
			sender TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			emotion TEXT NOT NULL,
			confidence REAL NOT NULL,
			priority TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_normalized_ts ON messages(normalized_ts)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_scope_ts ON messages(user_scope, normalized_ts)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			alert_id TEXT PRIMARY KEY,
			message_id TEXT NOT NULL,
			severity TEXT NOT NULL,
			emotion TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_status ON alerts(status)`,
		`CREATE TABLE IF NOT EXISTS cursors (
			account_key TEXT PRIMARY KEY,
			cursor_value TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// scopeOf maps a nullable user id onto the stored scope column, where
// the empty string is the global scope.
func scopeOf(userID *string) string {
	return core.ScopeKey(userID)
}

func userIDOf(scope string) *string {
	if scope == "" {
		return nil
	}
	return &scope
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func (s *SQLiteStore) parseTime(raw string) time.Time {
	t, err := time.Parse(sqliteTimeLayout, raw)
	if err != nil {
		s.logger.Error("Failed to parse stored timestamp", zap.String("value", raw), zap.Error(err))
		return time.Time{}
	}
	return t
}

// PutConfig upserts a config keyed on (user_scope, email).
func (s *SQLiteStore) PutConfig(ctx context.Context, cfg *core.AccountConfig) (string, error) {
	now := formatTime(time.Now())
	configID := cfg.ConfigID
	if configID == "" {
		configID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_configs
			(config_id, user_scope, email, credential_secret, notify_target, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_scope, email) DO UPDATE SET
			credential_secret = excluded.credential_secret,
			notify_target = excluded.notify_target,
			active = excluded.active,
			updated_at = excluded.updated_at
	`, configID, scopeOf(cfg.UserID), cfg.Email, cfg.CredentialSecret, cfg.NotifyTarget, cfg.Active, now, now)
	if err != nil {
		return "", fmt.Errorf("failed to upsert config: %w", err)
	}

	var stored string
	err = s.db.QueryRowContext(ctx, `
		SELECT config_id FROM account_configs WHERE user_scope = ? AND email = ?
	`, scopeOf(cfg.UserID), cfg.Email).Scan(&stored)
	if err != nil {
		return "", fmt.Errorf("failed to read back config id: %w", err)
	}
	return stored, nil
}

func (s *SQLiteStore) scanConfig(row *sql.Row) (*core.AccountConfig, error) {
	var cfg core.AccountConfig
	var scope, createdAt, updatedAt string
	err := row.Scan(&cfg.ConfigID, &scope, &cfg.Email, &cfg.CredentialSecret,
		&cfg.NotifyTarget, &cfg.Active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	cfg.UserID = userIDOf(scope)
	cfg.CreatedAt = s.parseTime(createdAt)
	cfg.UpdatedAt = s.parseTime(updatedAt)
	return &cfg, nil
}

// GetConfig resolves the config for a scope with global fallback.
func (s *SQLiteStore) GetConfig(ctx context.Context, userID *string) (*core.AccountConfig, error) {
	const q = `
		SELECT config_id, user_scope, email, credential_secret, notify_target, active, created_at, updated_at
		FROM account_configs WHERE user_scope = ? ORDER BY email LIMIT 1`

	cfg, err := s.scanConfig(s.db.QueryRowContext(ctx, q, scopeOf(userID)))
	if err == nil {
		return cfg, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	if userID != nil {
		cfg, err = s.scanConfig(s.db.QueryRowContext(ctx, q, ""))
		if err == nil {
			return cfg, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to query global config: %w", err)
		}
	}
	return nil, core.ErrNotConfigured
}

// ListActiveConfigs returns every active config.
func (s *SQLiteStore) ListActiveConfigs(ctx context.Context) ([]*core.AccountConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT config_id, user_scope, email, credential_secret, notify_target, active, created_at, updated_at
		FROM account_configs WHERE active = 1 ORDER BY user_scope, email
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	var out []*core.AccountConfig
	for rows.Next() {
		var cfg core.AccountConfig
		var scope, createdAt, updatedAt string
		if err := rows.Scan(&cfg.ConfigID, &scope, &cfg.Email, &cfg.CredentialSecret,
			&cfg.NotifyTarget, &cfg.Active, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		cfg.UserID = userIDOf(scope)
		cfg.CreatedAt = s.parseTime(createdAt)
		cfg.UpdatedAt = s.parseTime(updatedAt)
		out = append(out, &cfg)
	}
	return out, rows.Err()
}

// UpsertMessage inserts msg unless its id already exists; concurrent
// upserts of the same id are commutative.
func (s *SQLiteStore) UpsertMessage(ctx context.Context, msg *core.Message) (*core.Message, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages
			(message_id, user_scope, source_account, raw_timestamp, normalized_ts,
			 sender, body, emotion, confidence, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.MessageID, scopeOf(msg.UserID), msg.SourceAccount, msg.RawTimestamp,
		formatTime(msg.NormalizedTimestamp), msg.Sender, msg.Text, string(msg.Emotion),
		msg.Confidence, msg.Priority, msg.Status, formatTime(msg.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert message: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read upsert result: %w", err)
	}

	stored, err := s.GetMessage(ctx, msg.MessageID)
	if err != nil {
		return nil, false, err
	}
	return stored, affected > 0, nil
}

const messageColumns = `message_id, user_scope, source_account, raw_timestamp, normalized_ts,
	sender, body, emotion, confidence, priority, status, created_at`

func (s *SQLiteStore) scanMessage(scan func(dest ...any) error) (*core.Message, error) {
	var msg core.Message
	var scope, emotion, normalizedTS, createdAt string
	err := scan(&msg.MessageID, &scope, &msg.SourceAccount, &msg.RawTimestamp,
		&normalizedTS, &msg.Sender, &msg.Text, &emotion, &msg.Confidence,
		&msg.Priority, &msg.Status, &createdAt)
	if err != nil {
		return nil, err
	}
	msg.UserID = userIDOf(scope)
	msg.Emotion = core.Emotion(emotion)
	msg.NormalizedTimestamp = s.parseTime(normalizedTS)
	msg.CreatedAt = s.parseTime(createdAt)
	return &msg, nil
}

// GetMessage fetches one message by id.
func (s *SQLiteStore) GetMessage(ctx context.Context, messageID string) (*core.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = ?`, messageID)
	msg, err := s.scanMessage(row.Scan)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return msg, nil
}

// ListMessages returns matching messages, newest first.
func (s *SQLiteStore) ListMessages(ctx context.Context, filter core.MessageFilter) ([]*core.Message, error) {
	var conds []string
	var args []any
	if filter.UserID != nil {
		conds = append(conds, "user_scope = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Emotion != nil {
		conds = append(conds, "emotion = ?")
		args = append(args, string(*filter.Emotion))
	}
	if filter.SourceAccount != "" {
		conds = append(conds, "source_account = ?")
		args = append(args, filter.SourceAccount)
	}
	if filter.Sender != "" {
		conds = append(conds, "sender = ?")
		args = append(args, filter.Sender)
	}

	q := `SELECT ` + messageColumns + ` FROM messages`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY normalized_ts DESC"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var out []*core.Message
	for rows.Next() {
		msg, err := s.scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// UpdateTriage mutates a message's status and priority.
func (s *SQLiteStore) UpdateTriage(ctx context.Context, messageID, status, priority string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET status = ?, priority = ? WHERE message_id = ?`,
		status, priority, messageID)
	if err != nil {
		return fmt.Errorf("failed to update message triage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// EmotionCountsByHour groups messages by hour directly in SQL.
func (s *SQLiteStore) EmotionCountsByHour(ctx context.Context, from, to time.Time, userID *string) (map[time.Time]map[core.Emotion]int, error) {
	q := `
		SELECT strftime('%Y-%m-%dT%H:00:00Z', normalized_ts), emotion, COUNT(*)
		FROM messages
		WHERE normalized_ts >= ? AND normalized_ts <= ?`
	args := []any{formatTime(from), formatTime(to)}
	if userID != nil {
		q += " AND user_scope = ?"
		args = append(args, *userID)
	}
	q += " GROUP BY 1, 2"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate messages: %w", err)
	}
	defer rows.Close()

	out := make(map[time.Time]map[core.Emotion]int)
	for rows.Next() {
		var bucketRaw, emotion string
		var count int
		if err := rows.Scan(&bucketRaw, &emotion, &count); err != nil {
			return nil, fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		bucket, err := time.Parse(time.RFC3339, bucketRaw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse bucket %q: %w", bucketRaw, err)
		}
		if out[bucket] == nil {
			out[bucket] = make(map[core.Emotion]int)
		}
		out[bucket][core.Emotion(emotion)] = count
	}
	return out, rows.Err()
}

// CreateAlert stores a new alert.
func (s *SQLiteStore) CreateAlert(ctx context.Context, alert *core.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, message_id, severity, emotion, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alert.AlertID, alert.MessageID, string(alert.Severity), string(alert.Emotion),
		string(alert.Status), formatTime(alert.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanAlert(scan func(dest ...any) error) (*core.Alert, error) {
	var alert core.Alert
	var severity, emotion, status, createdAt string
	if err := scan(&alert.AlertID, &alert.MessageID, &severity, &emotion, &status, &createdAt); err != nil {
		return nil, err
	}
	alert.Severity = core.Severity(severity)
	alert.Emotion = core.Emotion(emotion)
	alert.Status = core.AlertStatus(status)
	alert.CreatedAt = s.parseTime(createdAt)
	return &alert, nil
}

// GetAlert fetches one alert by id.
func (s *SQLiteStore) GetAlert(ctx context.Context, alertID string) (*core.Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT alert_id, message_id, severity, emotion, status, created_at
		FROM alerts WHERE alert_id = ?`, alertID)
	alert, err := s.scanAlert(row.Scan)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	return alert, nil
}

// ListActiveAlerts returns alerts still awaiting triage, oldest first.
func (s *SQLiteStore) ListActiveAlerts(ctx context.Context) ([]*core.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_id, message_id, severity, emotion, status, created_at
		FROM alerts WHERE status = ? ORDER BY created_at`, string(core.AlertActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*core.Alert
	for rows.Next() {
		alert, err := s.scanAlert(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// UpdateAlertStatus moves an alert through its triage lifecycle.
func (s *SQLiteStore) UpdateAlertStatus(ctx context.Context, alertID string, status core.AlertStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET status = ? WHERE alert_id = ?`, string(status), alertID)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// GetCursor returns the stored cursor, empty when none exists.
func (s *SQLiteStore) GetCursor(ctx context.Context, accountKey string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE account_key = ?`, accountKey).Scan(&cursor)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query cursor: %w", err)
	}
	return cursor, nil
}

// SetCursor persists the per-account cursor.
func (s *SQLiteStore) SetCursor(ctx context.Context, accountKey, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cursors (account_key, cursor_value, updated_at)
		VALUES (?, ?, ?)`, accountKey, cursor, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
