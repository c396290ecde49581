package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

var _ repository.MessageRepository = (*DB)(nil)

// messageSelect joins the author so every listed message can render its
// avatar and username without a second query per row. The author's password
// column is deliberately not selected.
const messageSelect = `
	SELECT m.id, m.text, m.timestamp, m.user_id,
	       u.id, u.username, u.email, u.image_url, u.header_image_url, u.bio, u.location
	FROM messages m
	JOIN users u ON u.id = m.user_id`

func scanMessage(row rowScanner) (*model.Message, error) {
	var (
		m             model.Message
		author        model.User
		bio, location sql.NullString
	)
	if err := row.Scan(
		&m.ID,
		&m.Text,
		&m.Timestamp,
		&m.UserID,
		&author.ID,
		&author.Username,
		&author.Email,
		&author.ImageURL,
		&author.HeaderImageURL,
		&bio,
		&location,
	); err != nil {
		return nil, err
	}
	author.Bio = bio.String
	author.Location = location.String
	m.Author = &author
	return &m, nil
}

func collectMessages(rows *sql.Rows) ([]model.Message, error) {
	var msgs []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message rows: %w", err)
	}
	return msgs, nil
}

// CreateMessage inserts msg and sets its ID. A zero Timestamp is replaced by
// the current UTC time.
//
// The author must exist: a foreign-key violation means the user was deleted
// between the session lookup and the insert, and is reported as not found.
func (db *DB) CreateMessage(ctx context.Context, msg *model.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO messages (text, timestamp, user_id) VALUES (?, ?, ?)`,
		msg.Text,
		msg.Timestamp,
		msg.UserID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("user", msg.UserID)
		}
		return fmt.Errorf("sqlite: inserting message for user %d: %w", msg.UserID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading id of new message: %w", err)
	}
	msg.ID = id
	return nil
}

// GetMessage returns the message with its Author populated.
func (db *DB) GetMessage(ctx context.Context, id int64) (*model.Message, error) {
	m, err := scanMessage(db.conn.QueryRowContext(ctx, messageSelect+` WHERE m.id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("message", id)
		}
		return nil, fmt.Errorf("sqlite: getting message %d: %w", id, err)
	}
	return m, nil
}

// DeleteMessage reports Unchanged when the row was already gone. Likes on
// the message are removed by ON DELETE CASCADE.
func (db *DB) DeleteMessage(ctx context.Context, id int64) (repository.Change, error) {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting message %d: %w", id, err)
	}
	change, err := changeOf(res)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting message %d: %w", id, err)
	}
	return change, nil
}

// ListMessagesByUser returns the user's messages newest first.
func (db *DB) ListMessagesByUser(ctx context.Context, userID int64, opts repository.ListOptions) ([]model.Message, error) {
	limit, offset := clampList(opts)

	rows, err := db.conn.QueryContext(ctx,
		messageSelect+`
		WHERE m.user_id = ?
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages of user %d: %w", userID, err)
	}
	defer rows.Close()

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages of user %d: %w", userID, err)
	}
	return msgs, nil
}

// Timeline returns the newest messages by userID or anyone userID follows.
//
// ORDERING:
// timestamp DESC alone is not a total order: two messages written in the
// same instant could swap between page loads. id DESC breaks the tie, and
// since ids grow with insertion it agrees with the write order.
func (db *DB) Timeline(ctx context.Context, userID int64, limit int) ([]model.Message, error) {
	if limit <= 0 {
		limit = repository.TimelineLimit
	}

	rows, err := db.conn.QueryContext(ctx,
		messageSelect+`
		WHERE m.user_id = ?
		   OR m.user_id IN (SELECT followed_id FROM follows WHERE follower_id = ?)
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?`,
		userID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading timeline of user %d: %w", userID, err)
	}
	defer rows.Close()

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading timeline of user %d: %w", userID, err)
	}
	return msgs, nil
}
