package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AgamJK/sentinel-final/internal/core"
)

const mysqlTimeLayout = "2006-01-02 15:04:05"

// MySQLStore is a MySQL implementation of the Store interface.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore connects to MySQL using dsn and ensures the schema.
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	ddl := []string{
		`CREATE TABLE IF NOT EXISTS account_configs (
			config_id VARCHAR(64) PRIMARY KEY,
			user_scope VARCHAR(255) NOT NULL,
			email VARCHAR(255) NOT NULL,
			credential_secret TEXT NOT NULL,
			notify_target VARCHAR(255) NOT NULL DEFAULT '',
			active BOOLEAN NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE KEY uniq_scope_email (user_scope, email)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			message_id VARCHAR(255) PRIMARY KEY,
			user_scope VARCHAR(255) NOT NULL,
			source_account VARCHAR(255) NOT NULL,
			raw_timestamp VARCHAR(255) NOT NULL DEFAULT '',
			normalized_ts DATETIME NOT NULL,
			sender VARCHAR(255) NOT NULL DEFAULT '',
			body MEDIUMTEXT NOT NULL,
			emotion VARCHAR(32) NOT NULL,
			confidence DOUBLE NOT NULL,
			priority VARCHAR(16) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at DATETIME NOT NULL,
			INDEX idx_normalized_ts (normalized_ts),
			INDEX idx_scope_ts (user_scope, normalized_ts)
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			alert_id VARCHAR(64) PRIMARY KEY,
			message_id VARCHAR(255) NOT NULL,
			severity VARCHAR(16) NOT NULL,
			emotion VARCHAR(32) NOT NULL,
			status VARCHAR(16) NOT NULL,
			created_at DATETIME NOT NULL,
			INDEX idx_status (status)
		)`,
		`CREATE TABLE IF NOT EXISTS cursors (
			account_key VARCHAR(512) PRIMARY KEY,
			cursor_value VARCHAR(1024) NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

func mysqlTime(t time.Time) string {
	return t.UTC().Format(mysqlTimeLayout)
}

func (s *MySQLStore) parseTime(raw string) time.Time {
	t, err := time.ParseInLocation(mysqlTimeLayout, raw, time.UTC)
	if err != nil {
		s.logger.Error("Failed to parse stored timestamp", zap.String("value", raw), zap.Error(err))
		return time.Time{}
	}
	return t
}

// PutConfig upserts a config keyed on (user_scope, email).
func (s *MySQLStore) PutConfig(ctx context.Context, cfg *core.AccountConfig) (string, error) {
	now := mysqlTime(time.Now())
	configID := cfg.ConfigID
	if configID == "" {
		configID = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO account_configs
			(config_id, user_scope, email, credential_secret, notify_target, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			credential_secret = VALUES(credential_secret),
			notify_target = VALUES(notify_target),
			active = VALUES(active),
			updated_at = VALUES(updated_at)
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

// GetConfig resolves the config for a scope with global fallback.
func (s *MySQLStore) GetConfig(ctx context.Context, userID *string) (*core.AccountConfig, error) {
	const q = `
		SELECT config_id, user_scope, email, credential_secret, notify_target, active, created_at, updated_at
		FROM account_configs WHERE user_scope = ? ORDER BY email LIMIT 1`

	cfg, err := s.queryConfig(ctx, q, scopeOf(userID))
	if err == nil {
		return cfg, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to query config: %w", err)
	}
	if userID != nil {
		cfg, err = s.queryConfig(ctx, q, "")
		if err == nil {
			return cfg, nil
		}
		if err != sql.ErrNoRows {
			return nil, fmt.Errorf("failed to query global config: %w", err)
		}
	}
	return nil, core.ErrNotConfigured
}

func (s *MySQLStore) queryConfig(ctx context.Context, q string, args ...any) (*core.AccountConfig, error) {
	var cfg core.AccountConfig
	var scope, createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&cfg.ConfigID, &scope, &cfg.Email,
		&cfg.CredentialSecret, &cfg.NotifyTarget, &cfg.Active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	cfg.UserID = userIDOf(scope)
	cfg.CreatedAt = s.parseTime(createdAt)
	cfg.UpdatedAt = s.parseTime(updatedAt)
	return &cfg, nil
}

// ListActiveConfigs returns every active config.
func (s *MySQLStore) ListActiveConfigs(ctx context.Context) ([]*core.AccountConfig, error) {
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

// UpsertMessage inserts msg unless its id already exists.
func (s *MySQLStore) UpsertMessage(ctx context.Context, msg *core.Message) (*core.Message, bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT IGNORE INTO messages
			(message_id, user_scope, source_account, raw_timestamp, normalized_ts,
			 sender, body, emotion, confidence, priority, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.MessageID, scopeOf(msg.UserID), msg.SourceAccount, msg.RawTimestamp,
		mysqlTime(msg.NormalizedTimestamp), msg.Sender, msg.Text, string(msg.Emotion),
		msg.Confidence, msg.Priority, msg.Status, mysqlTime(msg.CreatedAt))
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

func (s *MySQLStore) scanMessage(scan func(dest ...any) error) (*core.Message, error) {
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
func (s *MySQLStore) GetMessage(ctx context.Context, messageID string) (*core.Message, error) {
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
func (s *MySQLStore) ListMessages(ctx context.Context, filter core.MessageFilter) ([]*core.Message, error) {
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
	q += " ORDER BY normalized_ts DESC LIMIT ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
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
func (s *MySQLStore) UpdateTriage(ctx context.Context, messageID, status, priority string) error {
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
func (s *MySQLStore) EmotionCountsByHour(ctx context.Context, from, to time.Time, userID *string) (map[time.Time]map[core.Emotion]int, error) {
	q := `
		SELECT DATE_FORMAT(normalized_ts, '%Y-%m-%d %H:00:00'), emotion, COUNT(*)
		FROM messages
		WHERE normalized_ts >= ? AND normalized_ts <= ?`
	args := []any{mysqlTime(from), mysqlTime(to)}
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
		bucket, err := time.ParseInLocation(mysqlTimeLayout, bucketRaw, time.UTC)
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
func (s *MySQLStore) CreateAlert(ctx context.Context, alert *core.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (alert_id, message_id, severity, emotion, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alert.AlertID, alert.MessageID, string(alert.Severity), string(alert.Emotion),
		string(alert.Status), mysqlTime(alert.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// GetAlert fetches one alert by id.
func (s *MySQLStore) GetAlert(ctx context.Context, alertID string) (*core.Alert, error) {
	var alert core.Alert
	var severity, emotion, status, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT alert_id, message_id, severity, emotion, status, created_at
		FROM alerts WHERE alert_id = ?`, alertID).Scan(
		&alert.AlertID, &alert.MessageID, &severity, &emotion, &status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alert: %w", err)
	}
	alert.Severity = core.Severity(severity)
	alert.Emotion = core.Emotion(emotion)
	alert.Status = core.AlertStatus(status)
	alert.CreatedAt = s.parseTime(createdAt)
	return &alert, nil
}

// ListActiveAlerts returns alerts still awaiting triage, oldest first.
func (s *MySQLStore) ListActiveAlerts(ctx context.Context) ([]*core.Alert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_id, message_id, severity, emotion, status, created_at
		FROM alerts WHERE status = ? ORDER BY created_at`, string(core.AlertActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []*core.Alert
	for rows.Next() {
		var alert core.Alert
		var severity, emotion, status, createdAt string
		if err := rows.Scan(&alert.AlertID, &alert.MessageID, &severity, &emotion,
			&status, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alert.Severity = core.Severity(severity)
		alert.Emotion = core.Emotion(emotion)
		alert.Status = core.AlertStatus(status)
		alert.CreatedAt = s.parseTime(createdAt)
		out = append(out, &alert)
	}
	return out, rows.Err()
}

// UpdateAlertStatus moves an alert through its triage lifecycle.
func (s *MySQLStore) UpdateAlertStatus(ctx context.Context, alertID string, status core.AlertStatus) error {
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
func (s *MySQLStore) GetCursor(ctx context.Context, accountKey string) (string, error) {
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
func (s *MySQLStore) SetCursor(ctx context.Context, accountKey, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (account_key, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE cursor_value = VALUES(cursor_value), updated_at = VALUES(updated_at)
	`, accountKey, cursor, mysqlTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to persist cursor: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
