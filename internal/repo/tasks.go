package repo

import (
	"context"
	"database/sql"

	"reactboard/internal/domain"
)

const taskCols = `id,workspace_name,message_id,person_id,assigned_by,status,created_at`

func scanTask(scanner interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var assignedBy sql.NullString
	var status string
	err := scanner.Scan(&t.ID, &t.WorkspaceName, &t.MessageID, &t.PersonID, &assignedBy, &status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Status = domain.Status(status)
	if assignedBy.Valid {
		t.AssignedBy = &assignedBy.String
	}
	return t, err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id))
}

func (r Repo) GetTaskByMessageAndPerson(ctx context.Context, tx *sql.Tx, messageID, personID string) (domain.Task, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE message_id=? AND person_id=?`, messageID, personID)
	return scanTask(row)
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tasks(id,workspace_name,message_id,person_id,assigned_by,status,created_at) VALUES (?,?,?,?,?,?,?)`,
		t.ID, t.WorkspaceName, t.MessageID, t.PersonID, nullableStringPtr(t.AssignedBy), string(t.Status), t.CreatedAt)
	return err
}

// UpdateTaskStatusGuarded swaps the task status only if the current value
// still matches expected. Returns false when another writer got there
// first; the ledger retries its transaction in that case.
func (r Repo) UpdateTaskStatusGuarded(ctx context.Context, tx *sql.Tx, taskID string, expected, next domain.Status) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status=? WHERE id=? AND status=?`, string(next), taskID, string(expected))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) CountChanges(ctx context.Context, tx *sql.Tx, taskID string) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM changes WHERE task_id=?`, taskID).Scan(&n)
	return n, err
}

// LastChange returns the highest-index change for a task.
func (r Repo) LastChange(ctx context.Context, tx *sql.Tx, taskID string) (domain.Change, error) {
	var c domain.Change
	var old, next string
	err := tx.QueryRowContext(ctx,
		`SELECT id,task_id,old,new,idx,created_at FROM changes WHERE task_id=? ORDER BY idx DESC LIMIT 1`, taskID).
		Scan(&c.ID, &c.TaskID, &old, &next, &c.Idx, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	c.Old = domain.Status(old)
	c.New = domain.Status(next)
	return c, err
}

func (r Repo) InsertChange(ctx context.Context, tx *sql.Tx, c domain.Change) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO changes(id,task_id,old,new,idx,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.TaskID, string(c.Old), string(c.New), c.Idx, c.CreatedAt)
	return err
}

func (r Repo) ListChanges(ctx context.Context, taskID string) ([]domain.Change, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,task_id,old,new,idx,created_at FROM changes WHERE task_id=? ORDER BY idx`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Change
	for rows.Next() {
		var c domain.Change
		var old, next string
		if err := rows.Scan(&c.ID, &c.TaskID, &old, &next, &c.Idx, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.Old = domain.Status(old)
		c.New = domain.Status(next)
		res = append(res, c)
	}
	return res, rows.Err()
}

// ListBoardEntries returns a person's tasks in one workspace with their
// messages, filtered by board mode. The workspace predicate is the tenant
// boundary; every board read goes through it.
func (r Repo) ListBoardEntries(ctx context.Context, workspace, personID string, mode domain.BoardMode) ([]domain.BoardEntry, error) {
	where := `t.workspace_name=? AND t.person_id=?`
	if mode == domain.BoardInitiated {
		where = `t.workspace_name=? AND t.assigned_by=? AND t.person_id<>t.assigned_by`
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT t.id,t.workspace_name,t.message_id,t.person_id,t.assigned_by,t.status,t.created_at,
		        m.id,m.workspace_name,m.external_id,m.content,m.channel,m.ts,m.permalink,m.author_person_id
		 FROM tasks t JOIN messages m ON m.id=t.message_id
		 WHERE `+where+` ORDER BY t.created_at DESC`, workspace, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.BoardEntry
	for rows.Next() {
		var e domain.BoardEntry
		var assignedBy, permalink, author sql.NullString
		var status string
		if err := rows.Scan(&e.Task.ID, &e.Task.WorkspaceName, &e.Task.MessageID, &e.Task.PersonID, &assignedBy, &status, &e.Task.CreatedAt,
			&e.Message.ID, &e.Message.WorkspaceName, &e.Message.ExternalID, &e.Message.Content, &e.Message.Channel, &e.Message.Timestamp, &permalink, &author); err != nil {
			return nil, err
		}
		e.Task.Status = domain.Status(status)
		if assignedBy.Valid {
			e.Task.AssignedBy = &assignedBy.String
		}
		if permalink.Valid {
			e.Message.Permalink = permalink.String
		}
		if author.Valid {
			e.Message.AuthorID = &author.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
