package repo

import (
	"context"
	"database/sql"

	"reactboard/internal/domain"
)

const messageCols = `id,workspace_name,external_id,content,channel,ts,permalink,author_person_id`

func scanMessage(scanner interface{ Scan(...any) error }) (domain.Message, error) {
	var m domain.Message
	var permalink, author sql.NullString
	err := scanner.Scan(&m.ID, &m.WorkspaceName, &m.ExternalID, &m.Content, &m.Channel, &m.Timestamp, &permalink, &author)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if permalink.Valid {
		m.Permalink = permalink.String
	}
	if author.Valid {
		m.AuthorID = &author.String
	}
	return m, err
}

func (r Repo) GetMessage(ctx context.Context, id string) (domain.Message, error) {
	return scanMessage(r.DB.QueryRowContext(ctx, `SELECT `+messageCols+` FROM messages WHERE id=?`, id))
}

func (r Repo) GetMessageByExternalID(ctx context.Context, workspace, externalID string) (domain.Message, error) {
	return scanMessage(r.DB.QueryRowContext(ctx,
		`SELECT `+messageCols+` FROM messages WHERE workspace_name=? AND external_id=?`, workspace, externalID))
}

// EnsureMessage captures a message snapshot on first sight. Repeat calls
// for the same (workspace, external id) return the stored row unchanged.
func (r Repo) EnsureMessage(ctx context.Context, m domain.Message) (domain.Message, error) {
	if m.ID == "" {
		m.ID = newID()
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO messages(id,workspace_name,external_id,content,channel,ts,permalink,author_person_id) VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(workspace_name,external_id) DO NOTHING`,
		m.ID, m.WorkspaceName, m.ExternalID, m.Content, m.Channel, m.Timestamp, nullable(m.Permalink), nullableStringPtr(m.AuthorID))
	if err != nil {
		return domain.Message{}, err
	}
	return r.GetMessageByExternalID(ctx, m.WorkspaceName, m.ExternalID)
}

// ListMessagesByWorkspace returns every captured message for one
// workspace, oldest first. Used by the startup backfill.
func (r Repo) ListMessagesByWorkspace(ctx context.Context, workspace string) ([]domain.Message, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+messageCols+` FROM messages WHERE workspace_name=? ORDER BY ts`, workspace)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}
