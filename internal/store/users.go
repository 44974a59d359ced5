package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNoRows is returned by point lookups that match nothing.
var ErrNoRows = errors.New("store: no rows")

// User is a row of the user table.
type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// GetUserByEmail returns the user with exactly this email.
func (c Conn) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var u User
	err := c.q.QueryRowContext(ctx,
		`SELECT `+idColumn+`, `+emailColumn+` FROM `+userTable+` WHERE `+emailColumn+` = ? LIMIT 1`,
		email,
	).Scan(&u.ID, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNoRows
	}
	if err != nil {
		return User{}, fmt.Errorf("store: get user: %w", err)
	}
	return u, nil
}

// InsertUser inserts a user and returns it with the generated id.
func (c Conn) InsertUser(ctx context.Context, email string) (User, error) {
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO `+userTable+` (`+emailColumn+`) VALUES (?)`, email)
	if err != nil {
		return User{}, fmt.Errorf("store: insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return User{}, fmt.Errorf("store: insert user id: %w", err)
	}
	return User{ID: id, Email: email}, nil
}

// DeleteUserByEmail deletes users with this email and returns the affected count.
func (c Conn) DeleteUserByEmail(ctx context.Context, email string) (int64, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM `+userTable+` WHERE `+emailColumn+` = ?`, email)
	if err != nil {
		return 0, fmt.Errorf("store: delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: delete user rows affected: %w", err)
	}
	return n, nil
}
