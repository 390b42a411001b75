package engine

import (
	"context"
	"fmt"

	"reactboard/internal/domain"
)

// Board groups one person's tasks in one workspace by status. Mode
// "assigned" shows tasks from their own reactions; "initiated" shows tasks
// they assigned to others through messages they authored.
func (e *Engine) Board(ctx context.Context, personID, workspace string, mode domain.BoardMode) (domain.Board, error) {
	if mode == "" {
		mode = domain.BoardAssigned
	}
	if mode != domain.BoardAssigned && mode != domain.BoardInitiated {
		return domain.Board{}, fmt.Errorf("invalid board mode %q", mode)
	}
	entries, err := e.Repo.ListBoardEntries(ctx, workspace, personID, mode)
	if err != nil {
		return domain.Board{}, err
	}
	var board domain.Board
	for _, entry := range entries {
		switch entry.Task.Status {
		case domain.StatusInProgress:
			board.InProgress = append(board.InProgress, entry)
		case domain.StatusBlocked:
			board.Blocked = append(board.Blocked, entry)
		case domain.StatusCompleted:
			board.Completed = append(board.Completed, entry)
		default:
			// Unknown persisted value renders nowhere; surface it in logs.
			e.log.Warn().Str("task", entry.Task.ID).Str("status", string(entry.Task.Status)).
				Msg("task has unmapped status")
		}
	}
	return board, nil
}

// TaskDetail is a task with its message and full ordered change history.
type TaskDetail struct {
	Task    domain.Task     `json:"task"`
	Message domain.Message  `json:"message"`
	Changes []domain.Change `json:"changes"`
}

func (e *Engine) TaskDetail(ctx context.Context, taskID string) (TaskDetail, error) {
	task, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return TaskDetail{}, err
	}
	msg, err := e.Repo.GetMessage(ctx, task.MessageID)
	if err != nil {
		return TaskDetail{}, fmt.Errorf("message for task %s: %w", taskID, err)
	}
	changes, err := e.Repo.ListChanges(ctx, taskID)
	if err != nil {
		return TaskDetail{}, err
	}
	return TaskDetail{Task: task, Message: msg, Changes: changes}, nil
}
