package engine

import (
	"context"
	"fmt"

	"reactboard/internal/domain"
	"reactboard/internal/repo"
)

// EmojiMapping returns the effective mapping for a workspace.
func (e *Engine) EmojiMapping(workspace string) (domain.EmojiMapping, error) {
	mapping, ok := e.Registry.Mapping(workspace)
	if !ok {
		return domain.EmojiMapping{}, fmt.Errorf("workspace %s: %w", workspace, repo.ErrNotFound)
	}
	return mapping, nil
}

// UpdateEmojiMapping persists a new mapping and swaps it into the
// registry. The next processed event sees the new mapping; no reconnect.
func (e *Engine) UpdateEmojiMapping(ctx context.Context, workspace string, mapping domain.EmojiMapping) (domain.WorkspaceSettings, error) {
	if !e.Registry.Has(workspace) {
		return domain.WorkspaceSettings{}, fmt.Errorf("workspace %s: %w", workspace, repo.ErrNotFound)
	}
	if len(mapping.InProgress)+len(mapping.Blocked)+len(mapping.Completed) == 0 {
		return domain.WorkspaceSettings{}, fmt.Errorf("emoji mapping is empty")
	}
	settings, err := e.Repo.UpdateEmojiMapping(ctx, workspace, mapping)
	if err != nil {
		return domain.WorkspaceSettings{}, err
	}
	e.Registry.UpdateMapping(workspace, settings.EmojiMapping)
	return settings, nil
}

// LoadStoredMappings pulls persisted settings into the registry at
// startup, seeding defaults for workspaces never touched before.
func (e *Engine) LoadStoredMappings(ctx context.Context) error {
	for _, name := range e.Registry.Names() {
		seed, _ := e.Registry.Mapping(name)
		settings, err := e.Repo.EnsureWorkspaceSettings(ctx, name, seed)
		if err != nil {
			return fmt.Errorf("settings for %s: %w", name, err)
		}
		e.Registry.UpdateMapping(name, settings.EmojiMapping)
	}
	return nil
}
