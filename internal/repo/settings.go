package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"reactboard/internal/domain"
)

func (r Repo) GetWorkspaceSettings(ctx context.Context, workspace string) (domain.WorkspaceSettings, error) {
	var s domain.WorkspaceSettings
	var payload string
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,workspace_name,emoji_mappings,created_at,updated_at FROM workspace_settings WHERE workspace_name=?`, workspace).
		Scan(&s.ID, &s.WorkspaceName, &payload, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal([]byte(payload), &s.EmojiMapping); err != nil {
		// Corrupt settings fall back to defaults rather than breaking ingestion.
		s.EmojiMapping = domain.DefaultEmojiMapping()
	}
	return s, nil
}

// EnsureWorkspaceSettings returns the stored settings, seeding the given
// mapping on first touch.
func (r Repo) EnsureWorkspaceSettings(ctx context.Context, workspace string, seed domain.EmojiMapping) (domain.WorkspaceSettings, error) {
	s, err := r.GetWorkspaceSettings(ctx, workspace)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.WorkspaceSettings{}, err
	}
	now := nowRFC3339()
	s = domain.WorkspaceSettings{
		ID:            newID(),
		WorkspaceName: workspace,
		EmojiMapping:  seed,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	payload, err := json.Marshal(s.EmojiMapping)
	if err != nil {
		return domain.WorkspaceSettings{}, err
	}
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO workspace_settings(id,workspace_name,emoji_mappings,created_at,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(workspace_name) DO NOTHING`,
		s.ID, s.WorkspaceName, string(payload), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return domain.WorkspaceSettings{}, err
	}
	return r.GetWorkspaceSettings(ctx, workspace)
}

// UpdateEmojiMapping replaces the stored mapping for a workspace.
func (r Repo) UpdateEmojiMapping(ctx context.Context, workspace string, mapping domain.EmojiMapping) (domain.WorkspaceSettings, error) {
	if _, err := r.EnsureWorkspaceSettings(ctx, workspace, mapping); err != nil {
		return domain.WorkspaceSettings{}, err
	}
	payload, err := json.Marshal(mapping)
	if err != nil {
		return domain.WorkspaceSettings{}, fmt.Errorf("marshal emoji mapping: %w", err)
	}
	_, err = r.DB.ExecContext(ctx,
		`UPDATE workspace_settings SET emoji_mappings=?, updated_at=? WHERE workspace_name=?`,
		string(payload), nowRFC3339(), workspace)
	if err != nil {
		return domain.WorkspaceSettings{}, err
	}
	return r.GetWorkspaceSettings(ctx, workspace)
}
