package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/warbler/internal/apperror"
	"github.com/sakif/warbler/internal/model"
	"github.com/sakif/warbler/internal/repository"
)

var (
	_ repository.FollowRepository = (*DB)(nil)
	_ repository.LikeRepository   = (*DB)(nil)
)

// IDEMPOTENT EDGES:
// Follows and likes are rows keyed by (a, b). Inserting uses
// ON CONFLICT DO NOTHING and deleting is a plain DELETE, so repeating either
// operation is harmless. RowsAffected tells the caller whether anything
// actually changed, which keeps double-submitted forms from surfacing as
// errors.

// Follow inserts the edge. A foreign-key violation means one side does not
// exist (anymore) and is reported as the followed user not being found.
func (db *DB) Follow(ctx context.Context, edge model.Follow) (repository.Change, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO follows (follower_id, followed_id) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`,
		edge.FollowerID, edge.FollowedID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, apperror.NotFound("user", edge.FollowedID)
		}
		return 0, fmt.Errorf("sqlite: following %d -> %d: %w", edge.FollowerID, edge.FollowedID, err)
	}
	change, err := changeOf(res)
	if err != nil {
		return 0, fmt.Errorf("sqlite: following %d -> %d: %w", edge.FollowerID, edge.FollowedID, err)
	}
	return change, nil
}

// Unfollow deletes the edge if present.
func (db *DB) Unfollow(ctx context.Context, edge model.Follow) (repository.Change, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM follows WHERE follower_id = ? AND followed_id = ?`,
		edge.FollowerID, edge.FollowedID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: unfollowing %d -> %d: %w", edge.FollowerID, edge.FollowedID, err)
	}
	change, err := changeOf(res)
	if err != nil {
		return 0, fmt.Errorf("sqlite: unfollowing %d -> %d: %w", edge.FollowerID, edge.FollowedID, err)
	}
	return change, nil
}

// ListFollowing returns the users userID follows, ordered by username.
func (db *DB) ListFollowing(ctx context.Context, userID int64) ([]model.User, error) {
	return db.listUsers(ctx,
		`SELECT `+prefixed("u", userColumns)+` FROM users u
		 JOIN follows f ON f.followed_id = u.id
		 WHERE f.follower_id = ?
		 ORDER BY u.username`,
		userID, "following")
}

// ListFollowers returns the users following userID, ordered by username.
func (db *DB) ListFollowers(ctx context.Context, userID int64) ([]model.User, error) {
	return db.listUsers(ctx,
		`SELECT `+prefixed("u", userColumns)+` FROM users u
		 JOIN follows f ON f.follower_id = u.id
		 WHERE f.followed_id = ?
		 ORDER BY u.username`,
		userID, "followers")
}

func (db *DB) listUsers(ctx context.Context, query string, userID int64, what string) ([]model.User, error) {
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s of user %d: %w", what, userID, err)
	}
	defer rows.Close()

	users, err := collectUsers(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s of user %d: %w", what, userID, err)
	}
	return users, nil
}

// FollowingIDs returns the ids userID follows, for "is followed" checks when
// rendering lists.
func (db *DB) FollowingIDs(ctx context.Context, userID int64) ([]int64, error) {
	return db.listIDs(ctx,
		`SELECT followed_id FROM follows WHERE follower_id = ?`, userID, "followed ids")
}

// Like inserts the edge. A foreign-key violation means the message was
// deleted after the page rendered.
func (db *DB) Like(ctx context.Context, edge model.Like) (repository.Change, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO likes (user_id, message_id) VALUES (?, ?)
		 ON CONFLICT DO NOTHING`,
		edge.UserID, edge.MessageID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return 0, apperror.NotFound("message", edge.MessageID)
		}
		return 0, fmt.Errorf("sqlite: liking message %d by user %d: %w", edge.MessageID, edge.UserID, err)
	}
	change, err := changeOf(res)
	if err != nil {
		return 0, fmt.Errorf("sqlite: liking message %d by user %d: %w", edge.MessageID, edge.UserID, err)
	}
	return change, nil
}

func (db *DB) Unlike(ctx context.Context, edge model.Like) (repository.Change, error) {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM likes WHERE user_id = ? AND message_id = ?`,
		edge.UserID, edge.MessageID,
	)
	if err != nil {
		return 0, fmt.Errorf("sqlite: unliking message %d by user %d: %w", edge.MessageID, edge.UserID, err)
	}
	change, err := changeOf(res)
	if err != nil {
		return 0, fmt.Errorf("sqlite: unliking message %d by user %d: %w", edge.MessageID, edge.UserID, err)
	}
	return change, nil
}

// ListLikedMessages returns the messages userID liked, newest message first.
func (db *DB) ListLikedMessages(ctx context.Context, userID int64) ([]model.Message, error) {
	rows, err := db.conn.QueryContext(ctx,
		messageSelect+`
		JOIN likes l ON l.message_id = m.id
		WHERE l.user_id = ?
		ORDER BY m.timestamp DESC, m.id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing likes of user %d: %w", userID, err)
	}
	defer rows.Close()

	msgs, err := collectMessages(rows)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing likes of user %d: %w", userID, err)
	}
	return msgs, nil
}

func (db *DB) LikedMessageIDs(ctx context.Context, userID int64) ([]int64, error) {
	return db.listIDs(ctx,
		`SELECT message_id FROM likes WHERE user_id = ?`, userID, "liked message ids")
}

func (db *DB) listIDs(ctx context.Context, query string, userID int64, what string) ([]int64, error) {
	rows, err := db.conn.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s of user %d: %w", what, userID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning %s of user %d: %w", what, userID, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating %s of user %d: %w", what, userID, err)
	}
	return ids, nil
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ",")
	for i, col := range cols {
		cols[i] = alias + "." + strings.TrimSpace(col)
	}
	return strings.Join(cols, ", ")
}
