package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"taskdash/internal/core"
)

var ErrDraftNotFound = errors.New("draft not found")

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (s *Store) InsertDraft(ctx context.Context, draft *core.Draft) error {
	state, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	now := s.now()
	draft.CreatedAt = now
	draft.UpdatedAt = now
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO drafts (id, task_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, draft.ID, nullableString(draft.TaskID), string(state), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

func (s *Store) UpdateDraft(ctx context.Context, draft *core.Draft) error {
	state, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	draft.UpdatedAt = s.now()
	res, err := s.DB.ExecContext(ctx, `
		UPDATE drafts
		SET state = ?, updated_at = ?
		WHERE id = ?
	`, string(state), formatTime(draft.UpdatedAt), draft.ID)
	if err != nil {
		return fmt.Errorf("update draft: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update draft rows: %w", err)
	}
	if rows == 0 {
		return ErrDraftNotFound
	}
	return nil
}

func (s *Store) GetDraft(ctx context.Context, id string) (*core.Draft, error) {
	var (
		taskID    sql.NullString
		state     string
		createdAt string
		updatedAt string
	)
	err := s.DB.QueryRowContext(ctx, `
		SELECT task_id, state, created_at, updated_at
		FROM drafts WHERE id = ?
	`, id).Scan(&taskID, &state, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDraftNotFound
		}
		return nil, fmt.Errorf("get draft: %w", err)
	}
	var draft core.Draft
	if err := json.Unmarshal([]byte(state), &draft); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}
	draft.ID = id
	draft.TaskID = taskID.String
	if t, err := time.Parse(timeLayout, createdAt); err == nil {
		draft.CreatedAt = t
	}
	if t, err := time.Parse(timeLayout, updatedAt); err == nil {
		draft.UpdatedAt = t
	}
	return &draft, nil
}

func (s *Store) DeleteDraft(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM drafts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrDraftNotFound
	}
	return nil
}

// PruneDrafts deletes drafts not touched since before and returns how many went.
func (s *Store) PruneDrafts(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM drafts WHERE updated_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("prune drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune drafts rows: %w", err)
	}
	return n, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
