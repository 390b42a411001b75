package engine

import (
	"context"
	"errors"
	"fmt"

	"reactboard/internal/domain"
	"reactboard/internal/repo"
)

// WorkspaceEntry is one configured workspace annotated with the calling
// person's link state.
type WorkspaceEntry struct {
	Name     string  `json:"name"`
	IsLinked bool    `json:"is_linked"`
	IsActive bool    `json:"is_active"`
	MemberID *string `json:"member_id,omitempty"`
}

// ListWorkspaces returns every registered workspace with the person's
// link/active flags.
func (e *Engine) ListWorkspaces(ctx context.Context, personID string) ([]WorkspaceEntry, error) {
	links, err := e.Repo.ListLinksByPerson(ctx, personID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]domain.WorkspaceLink, len(links))
	for _, l := range links {
		byName[l.WorkspaceName] = l
	}
	var out []WorkspaceEntry
	for _, name := range e.Registry.Names() {
		entry := WorkspaceEntry{Name: name}
		if l, ok := byName[name]; ok {
			entry.IsLinked = l.IsLinked
			entry.IsActive = l.IsActive
			entry.MemberID = l.MemberID
		}
		out = append(out, entry)
	}
	return out, nil
}

// Link binds a person to a workspace after verifying their email resolves
// to a member there. The first link a person makes becomes active.
func (e *Engine) Link(ctx context.Context, personID, workspace string) (domain.WorkspaceLink, error) {
	creds, ok := e.Registry.Credentials(workspace)
	if !ok {
		return domain.WorkspaceLink{}, fmt.Errorf("workspace %s: %w", workspace, repo.ErrNotFound)
	}
	person, err := e.Repo.GetPerson(ctx, personID)
	if err != nil {
		return domain.WorkspaceLink{}, err
	}
	memberID, _, err := e.Slack.ResolveMemberByEmail(ctx, creds.BotToken, person.Email)
	if err != nil {
		return domain.WorkspaceLink{}, fmt.Errorf("email %s is not a member of workspace %s: %w", person.Email, workspace, err)
	}
	return e.Repo.LinkWorkspace(ctx, personID, workspace, memberID)
}

// Unlink clears the person's link. Tasks and history remain.
func (e *Engine) Unlink(ctx context.Context, personID, workspace string) error {
	if err := e.Repo.UnlinkWorkspace(ctx, personID, workspace); err != nil {
		return err
	}
	// If the unlinked workspace was active, promote another linked one.
	active, err := e.Repo.GetActiveWorkspace(ctx, personID)
	if err == nil && active.WorkspaceName == workspace {
		links, err := e.Repo.ListLinksByPerson(ctx, personID)
		if err != nil {
			return err
		}
		for _, l := range links {
			if l.IsLinked && l.WorkspaceName != workspace {
				_, err := e.Repo.SetActiveWorkspace(ctx, personID, l.WorkspaceName)
				return err
			}
		}
		// Nothing left to promote; the person has no active workspace.
		return e.Repo.ClearActiveWorkspace(ctx, personID)
	} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	return nil
}

// Switch moves the person's active workspace. It touches only link rows;
// no task, change or message is affected.
func (e *Engine) Switch(ctx context.Context, personID, workspace string) (domain.WorkspaceLink, error) {
	return e.Repo.SetActiveWorkspace(ctx, personID, workspace)
}

// ActiveWorkspace returns the person's active link, if any.
func (e *Engine) ActiveWorkspace(ctx context.Context, personID string) (domain.WorkspaceLink, error) {
	return e.Repo.GetActiveWorkspace(ctx, personID)
}
