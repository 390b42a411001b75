package repo

import (
	"context"
	"database/sql"
	"fmt"

	"reactboard/internal/domain"
)

func scanLink(scanner interface{ Scan(...any) error }) (domain.WorkspaceLink, error) {
	var l domain.WorkspaceLink
	var member, updated sql.NullString
	err := scanner.Scan(&l.ID, &l.PersonID, &l.WorkspaceName, &member, &l.IsLinked, &l.IsActive, &l.CreatedAt, &updated)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if member.Valid {
		l.MemberID = &member.String
	}
	if updated.Valid {
		l.UpdatedAt = &updated.String
	}
	return l, err
}

const linkCols = `id,person_id,workspace_name,member_id,is_linked,is_active,created_at,updated_at`

func (r Repo) GetLink(ctx context.Context, personID, workspace string) (domain.WorkspaceLink, error) {
	return scanLink(r.DB.QueryRowContext(ctx,
		`SELECT `+linkCols+` FROM workspace_links WHERE person_id=? AND workspace_name=?`, personID, workspace))
}

func (r Repo) ListLinksByPerson(ctx context.Context, personID string) ([]domain.WorkspaceLink, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+linkCols+` FROM workspace_links WHERE person_id=? ORDER BY created_at`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkspaceLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) ListLinksByWorkspace(ctx context.Context, workspace string) ([]domain.WorkspaceLink, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+linkCols+` FROM workspace_links WHERE workspace_name=? AND is_linked=1 ORDER BY created_at DESC`, workspace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.WorkspaceLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

// GetLinkByMember resolves a workspace member id to its linked person.
// Unlinked rows never match; this is the identity resolver's read.
func (r Repo) GetLinkByMember(ctx context.Context, workspace, memberID string) (domain.WorkspaceLink, error) {
	return scanLink(r.DB.QueryRowContext(ctx,
		`SELECT `+linkCols+` FROM workspace_links WHERE workspace_name=? AND member_id=? AND is_linked=1`, workspace, memberID))
}

// LinkWorkspace creates or re-activates a person's link to a workspace.
// The first link a person establishes becomes their active workspace.
func (r Repo) LinkWorkspace(ctx context.Context, personID, workspace, memberID string) (domain.WorkspaceLink, error) {
	now := nowRFC3339()
	existing, err := r.GetLink(ctx, personID, workspace)
	if err == nil {
		_, err = r.DB.ExecContext(ctx,
			`UPDATE workspace_links SET member_id=?, is_linked=1, updated_at=? WHERE id=?`, memberID, now, existing.ID)
		if err != nil {
			return domain.WorkspaceLink{}, err
		}
		return r.GetLink(ctx, personID, workspace)
	}
	if err != ErrNotFound {
		return domain.WorkspaceLink{}, err
	}
	// is_active is decided inside the insert statement; at most one of the
	// person's links ends up active even when first links race.
	_, err = r.DB.ExecContext(ctx,
		`INSERT INTO workspace_links(id,person_id,workspace_name,member_id,is_linked,is_active,created_at,updated_at)
		 VALUES (?,?,?,?,1,NOT EXISTS(SELECT 1 FROM workspace_links WHERE person_id=?),?,NULL)`,
		newID(), personID, workspace, memberID, personID, now)
	if err != nil {
		return domain.WorkspaceLink{}, err
	}
	return r.GetLink(ctx, personID, workspace)
}

// UnlinkWorkspace clears the linked flag and member id. Tasks and messages
// created through the link are untouched.
func (r Repo) UnlinkWorkspace(ctx context.Context, personID, workspace string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE workspace_links SET is_linked=0, member_id=NULL, updated_at=? WHERE person_id=? AND workspace_name=?`,
		nowRFC3339(), personID, workspace)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActiveWorkspace atomically moves the person's active flag to the named
// workspace. The link must exist and be linked.
func (r Repo) SetActiveWorkspace(ctx context.Context, personID, workspace string) (domain.WorkspaceLink, error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.WorkspaceLink{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE workspace_links SET is_active=1, updated_at=? WHERE person_id=? AND workspace_name=? AND is_linked=1`,
		nowRFC3339(), personID, workspace)
	if err != nil {
		return domain.WorkspaceLink{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WorkspaceLink{}, fmt.Errorf("workspace %s not linked: %w", workspace, ErrNotFound)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE workspace_links SET is_active=0 WHERE person_id=? AND workspace_name<>?`, personID, workspace); err != nil {
		return domain.WorkspaceLink{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.WorkspaceLink{}, err
	}
	return r.GetLink(ctx, personID, workspace)
}

// ClearActiveWorkspace drops the person's active flag everywhere.
func (r Repo) ClearActiveWorkspace(ctx context.Context, personID string) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE workspace_links SET is_active=0 WHERE person_id=?`, personID)
	return err
}

func (r Repo) GetActiveWorkspace(ctx context.Context, personID string) (domain.WorkspaceLink, error) {
	return scanLink(r.DB.QueryRowContext(ctx,
		`SELECT `+linkCols+` FROM workspace_links WHERE person_id=? AND is_active=1`, personID))
}
