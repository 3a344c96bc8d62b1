// Package secondary is the client for the durable relational store: the
// fallback backend holding chat_messages and profiles rows.
package secondary

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatsync/internal/errors"

	_ "github.com/mattn/go-sqlite3"
)

// MessageRow mirrors one chat_messages row.
type MessageRow struct {
	ID            int64      `db:"id"`
	SenderID      string     `db:"sender_id"`
	RecipientID   string     `db:"recipient_id"`
	Content       string     `db:"content"`
	IsRead        bool       `db:"is_read"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
	FileURL       *string    `db:"file_url"`
	FileType      *string    `db:"file_type"`
	FileName      *string    `db:"file_name"`
	FileSize      *int64     `db:"file_size"`
	DurationSec   *int       `db:"duration_sec"`
	CorrelationID *string    `db:"correlation_id"`
}

// ProfileRow mirrors one profiles row.
type ProfileRow struct {
	ID        string `db:"id"`
	FullName  string `db:"full_name"`
	AvatarURL string `db:"avatar_url"`
}

// ThreadRow is the joined fast-path shape: a message row with the sender and
// recipient names pre-joined from profiles.
type ThreadRow struct {
	MessageRow
	SenderName    string
	RecipientName string
}

// Client wraps the relational store connection.
type Client struct {
	db           *sql.DB
	joinedQuery  bool
}

// Open connects to the store and applies the schema.
func Open(path string) (*Client, error) {
	if path == "" {
		return nil, errors.NewConfigError("secondary.path", "missing secondary store path")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open secondary store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapRetryable(err, errors.ErrCodeSourceUnavailable, "secondary store unreachable")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply secondary schema: %w", err)
	}

	return &Client{db: db, joinedQuery: true}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

// InsertMessage stores a message row and returns its assigned id.
func (c *Client) InsertMessage(ctx context.Context, row MessageRow) (int64, error) {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO chat_messages (
			sender_id, recipient_id, content, is_read, created_at, updated_at,
			file_url, file_type, file_name, file_size, duration_sec, correlation_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := c.db.ExecContext(ctx, query,
		row.SenderID, row.RecipientID, row.Content, row.IsRead,
		row.CreatedAt, row.CreatedAt,
		row.FileURL, row.FileType, row.FileName, row.FileSize,
		row.DurationSec, row.CorrelationID,
	)
	if err != nil {
		return 0, errors.NewQueryError("insert message", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.NewQueryError("insert message", err)
	}
	return id, nil
}

const messageColumns = `
	id, sender_id, recipient_id, content, is_read, created_at, updated_at,
	file_url, file_type, file_name, file_size, duration_sec, correlation_id
`

// GetMessagesBetween returns every message exchanged between two users,
// oldest first.
func (c *Client) GetMessagesBetween(ctx context.Context, userA, userB string) ([]MessageRow, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY created_at ASC, id ASC
	`
	rows, err := c.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, errors.NewQueryError("messages between", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// GetThreadWithProfiles is the joined fast-path query: message rows with
// sender and recipient names attached. It returns NOT_FOUND when the joined
// query is disabled; callers fall back to GetMessagesBetween.
func (c *Client) GetThreadWithProfiles(ctx context.Context, userA, userB string) ([]ThreadRow, error) {
	if !c.joinedQuery {
		return nil, errors.New(errors.ErrCodeNotFound, "joined thread query unavailable")
	}

	query := `
		SELECT m.id, m.sender_id, m.recipient_id, m.content, m.is_read,
		       m.created_at, m.updated_at, m.file_url, m.file_type, m.file_name,
		       m.file_size, m.duration_sec, m.correlation_id,
		       COALESCE(sp.full_name, ''), COALESCE(rp.full_name, '')
		FROM chat_messages m
		LEFT JOIN profiles sp ON sp.id = m.sender_id
		LEFT JOIN profiles rp ON rp.id = m.recipient_id
		WHERE (m.sender_id = ? AND m.recipient_id = ?) OR (m.sender_id = ? AND m.recipient_id = ?)
		ORDER BY m.created_at ASC, m.id ASC
	`
	rows, err := c.db.QueryContext(ctx, query, userA, userB, userB, userA)
	if err != nil {
		return nil, errors.NewQueryError("joined thread", err)
	}
	defer rows.Close()

	var result []ThreadRow
	for rows.Next() {
		var tr ThreadRow
		if err := rows.Scan(
			&tr.ID, &tr.SenderID, &tr.RecipientID, &tr.Content, &tr.IsRead,
			&tr.CreatedAt, &tr.UpdatedAt, &tr.FileURL, &tr.FileType, &tr.FileName,
			&tr.FileSize, &tr.DurationSec, &tr.CorrelationID,
			&tr.SenderName, &tr.RecipientName,
		); err != nil {
			return nil, errors.NewQueryError("joined thread scan", err)
		}
		result = append(result, tr)
	}
	return result, rows.Err()
}

// ListMessagesForUser returns every message the user sent or received,
// newest first, for conversation-list aggregation.
func (c *Client) ListMessagesForUser(ctx context.Context, userID string) ([]MessageRow, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE sender_id = ? OR recipient_id = ?
		ORDER BY created_at DESC, id DESC
	`
	rows, err := c.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, errors.NewQueryError("messages for user", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// MarkMessagesRead flips is_read on every unread message from counterpartID
// to readerID and returns the number of rows changed.
func (c *Client) MarkMessagesRead(ctx context.Context, readerID, counterpartID string) (int64, error) {
	query := `
		UPDATE chat_messages
		SET is_read = 1, updated_at = ?
		WHERE recipient_id = ? AND sender_id = ? AND is_read = 0
	`
	res, err := c.db.ExecContext(ctx, query, time.Now().UTC(), readerID, counterpartID)
	if err != nil {
		return 0, errors.NewQueryError("mark read", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewQueryError("mark read", err)
	}
	return n, nil
}

// CountUnreadMessages returns the user's total unread message count.
func (c *Client) CountUnreadMessages(ctx context.Context, userID string) (int, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chat_messages WHERE recipient_id = ? AND is_read = 0`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, errors.NewQueryError("unread count", err)
	}
	return count, nil
}

// GetProfile fetches a profile row. Returns (nil, nil) when absent.
func (c *Client) GetProfile(ctx context.Context, id string) (*ProfileRow, error) {
	var p ProfileRow
	err := c.db.QueryRowContext(ctx,
		`SELECT id, COALESCE(full_name, ''), COALESCE(avatar_url, '') FROM profiles WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.FullName, &p.AvatarURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewQueryError("get profile", err)
	}
	return &p, nil
}

// UpsertProfile inserts or replaces a profile row.
func (c *Client) UpsertProfile(ctx context.Context, p ProfileRow) error {
	query := `
		INSERT INTO profiles (id, full_name, avatar_url) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET full_name = excluded.full_name, avatar_url = excluded.avatar_url
	`
	if _, err := c.db.ExecContext(ctx, query, p.ID, p.FullName, p.AvatarURL); err != nil {
		return errors.NewQueryError("upsert profile", err)
	}
	return nil
}

// changedSince returns message rows whose updated_at is strictly after the
// given time, for the change watcher.
func (c *Client) changedSince(ctx context.Context, since time.Time) ([]MessageRow, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM chat_messages
		WHERE updated_at > ?
		ORDER BY updated_at ASC, id ASC
	`
	rows, err := c.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, errors.NewQueryError("changed since", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]MessageRow, error) {
	var result []MessageRow
	for rows.Next() {
		var m MessageRow
		if err := rows.Scan(
			&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.IsRead,
			&m.CreatedAt, &m.UpdatedAt, &m.FileURL, &m.FileType, &m.FileName,
			&m.FileSize, &m.DurationSec, &m.CorrelationID,
		); err != nil {
			return nil, errors.NewQueryError("scan message", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}
