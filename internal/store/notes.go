package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Note is a row of the note table.
type Note struct {
	ID                int64  `json:"id"`
	UserID            int64  `json:"user_id"`
	Text              string `json:"text"`
	IsSyncedWithCloud bool   `json:"is_synced_with_cloud"`
}

const noteColumns = idColumn + `, ` + userIDColumn + `, ` + textColumn + `, ` + isSyncedWithCloudColumn

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (Note, error) {
	var (
		n      Note
		text   sql.NullString
		synced int64
	)
	if err := r.Scan(&n.ID, &n.UserID, &text, &synced); err != nil {
		return Note{}, err
	}
	n.Text = text.String
	n.IsSyncedWithCloud = synced == 1
	return n, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// InsertNote inserts a note for userID and returns it with the generated id.
func (c Conn) InsertNote(ctx context.Context, userID int64, text string, synced bool) (Note, error) {
	res, err := c.q.ExecContext(ctx,
		`INSERT INTO `+noteTable+` (`+userIDColumn+`, `+textColumn+`, `+isSyncedWithCloudColumn+`) VALUES (?, ?, ?)`,
		userID, text, boolInt(synced))
	if err != nil {
		return Note{}, fmt.Errorf("store: insert note: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Note{}, fmt.Errorf("store: insert note id: %w", err)
	}
	return Note{ID: id, UserID: userID, Text: text, IsSyncedWithCloud: synced}, nil
}

// GetNote returns the note with id.
func (c Conn) GetNote(ctx context.Context, id int64) (Note, error) {
	n, err := scanNote(c.q.QueryRowContext(ctx,
		`SELECT `+noteColumns+` FROM `+noteTable+` WHERE `+idColumn+` = ? LIMIT 1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNoRows
	}
	if err != nil {
		return Note{}, fmt.Errorf("store: get note: %w", err)
	}
	return n, nil
}

// ListNotes returns every note ordered by id.
func (c Conn) ListNotes(ctx context.Context) ([]Note, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+noteColumns+` FROM `+noteTable+` ORDER BY `+idColumn)
	if err != nil {
		return nil, fmt.Errorf("store: list notes: %w", err)
	}
	defer rows.Close()

	out := []Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// UpdateNote sets text and the sync flag of note id and returns the affected count.
func (c Conn) UpdateNote(ctx context.Context, id int64, text string, synced bool) (int64, error) {
	res, err := c.q.ExecContext(ctx,
		`UPDATE `+noteTable+` SET `+textColumn+` = ?, `+isSyncedWithCloudColumn+` = ? WHERE `+idColumn+` = ?`,
		text, boolInt(synced), id)
	if err != nil {
		return 0, fmt.Errorf("store: update note: %w", err)
	}
	return rowsAffected(res)
}

// DeleteNote deletes note id and returns the affected count.
func (c Conn) DeleteNote(ctx context.Context, id int64) (int64, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM `+noteTable+` WHERE `+idColumn+` = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("store: delete note: %w", err)
	}
	return rowsAffected(res)
}

// DeleteNotesByUser deletes every note owned by userID.
func (c Conn) DeleteNotesByUser(ctx context.Context, userID int64) (int64, error) {
	res, err := c.q.ExecContext(ctx,
		`DELETE FROM `+noteTable+` WHERE `+userIDColumn+` = ?`, userID)
	if err != nil {
		return 0, fmt.Errorf("store: delete user notes: %w", err)
	}
	return rowsAffected(res)
}

// DeleteAllNotes empties the note table.
func (c Conn) DeleteAllNotes(ctx context.Context) (int64, error) {
	res, err := c.q.ExecContext(ctx, `DELETE FROM `+noteTable)
	if err != nil {
		return 0, fmt.Errorf("store: delete all notes: %w", err)
	}
	return rowsAffected(res)
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: rows affected: %w", err)
	}
	return n, nil
}
