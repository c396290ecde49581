package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, username, email, password, image_url, header_image_url, bio, location`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	var (
		u             model.User
		bio, location sql.NullString
	)
	if err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PasswordHash,
		&u.ImageURL,
		&u.HeaderImageURL,
		&bio,
		&location,
	); err != nil {
		return nil, err
	}
	u.Bio = bio.String
	u.Location = location.String
	return &u, nil
}

// CreateUser inserts a user and sets user.ID from the generated rowid.
//
// Username and email are UNIQUE. A violation on either is reported as a
// single conflict because the sign-up form shows one message for both.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	user.ApplyImageDefaults()

	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, password, image_url, header_image_url, bio, location)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.ImageURL,
		user.HeaderImageURL,
		nullString(user.Bio),
		nullString(user.Location),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Username and/or email already taken")
		}
		return fmt.Errorf("sqlite: inserting user %q: %w", user.Username, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading id of user %q: %w", user.Username, err)
	}
	user.ID = id
	return nil
}

// GetUserByID returns apperror.ErrNotFound if no user has that id.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}
	return u, nil
}

// GetUserByUsername matches the username exactly.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", username)
		}
		return nil, fmt.Errorf("sqlite: getting user %q: %w", username, err)
	}
	return u, nil
}

// SearchUsers does a case-insensitive substring match on username.
// LIKE wildcards in query are escaped so "%" and "_" match literally.
func (db *DB) SearchUsers(ctx context.Context, query string, opts repository.ListOptions) ([]model.User, error) {
	limit, offset := clampList(opts)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE LOWER(username) LIKE '%' || LOWER(?) || '%' ESCAPE '\'
		 ORDER BY username
		 LIMIT ? OFFSET ?`,
		escapeLike(query), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users %q: %w", query, err)
	}
	defer rows.Close()

	users, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: searching users %q: %w", query, err)
	}
	return users, nil
}

// UpdateUser writes every editable profile column. The password column is
// left alone.
func (db *DB) UpdateUser(ctx context.Context, user *model.User) error {
	user.ApplyImageDefaults()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE users
		 SET username = ?, email = ?, image_url = ?, header_image_url = ?, bio = ?, location = ?
		 WHERE id = ?`,
		user.Username,
		user.Email,
		user.ImageURL,
		user.HeaderImageURL,
		nullString(user.Bio),
		nullString(user.Location),
		user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("Username and/or email already taken")
		}
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}

	change, err := changeOf(res)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
	}
	if change == repository.Unchanged {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// DeleteUser removes the user's messages and then the user in one
// transaction. Follows and likes go with them through ON DELETE CASCADE.
func (db *DB) DeleteUser(ctx context.Context, id int64) (repository.Change, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: beginning delete of user %d: %w", id, err)
	}
	// Rollback after Commit is a no-op.
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE user_id = ?`, id); err != nil {
		return 0, fmt.Errorf("sqlite: deleting messages of user %d: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}
	change, err := changeOf(res)
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting user %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: committing delete of user %d: %w", id, err)
	}
	return change, nil
}

// UserStats counts in one round trip. It does not check that the user
// exists; callers load the user first.
func (db *DB) UserStats(ctx context.Context, id int64) (model.UserStats, error) {
	var s model.UserStats
	err := db.conn.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM messages WHERE user_id = ?),
			(SELECT COUNT(*) FROM follows WHERE follower_id = ?),
			(SELECT COUNT(*) FROM follows WHERE followed_id = ?),
			(SELECT COUNT(*) FROM likes WHERE user_id = ?)`,
		id, id, id, id,
	).Scan(&s.Messages, &s.Following, &s.Followers, &s.Likes)
	if err != nil {
		return model.UserStats{}, fmt.Errorf("sqlite: counting stats of user %d: %w", id, err)
	}
	return s, nil
}

func collectUsers(rows *sql.Rows) ([]model.User, error) {
	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
