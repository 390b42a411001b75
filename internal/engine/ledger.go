package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"reactboard/internal/domain"
	"reactboard/internal/repo"
)

// UpsertResult reports what the ledger did with a target status.
type UpsertResult string

const (
	UpsertCreated      UpsertResult = "created"
	UpsertTransitioned UpsertResult = "transitioned"
	UpsertNoOp         UpsertResult = "noop"
)

// upsertAttempts bounds retries when the status guard loses a race.
const upsertAttempts = 5

// Upsert applies a target status to the task for (message, person),
// creating the task on first sight. A transition appends a Change and
// swaps the status in one transaction; the conditional status update is
// the guard that keeps two racing writers from appending the same index.
func (e *Engine) Upsert(ctx context.Context, workspace, messageID, personID string, assignedBy *string, target domain.Status) (UpsertResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 2 * time.Millisecond
	policy.MaxInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 0
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		res, retry, err := e.tryUpsert(ctx, workspace, messageID, personID, assignedBy, target)
		if err != nil {
			return "", err
		}
		if !retry {
			return res, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(policy.NextBackOff()):
		}
	}
	return "", fmt.Errorf("task upsert for message %s person %s: too much contention", messageID, personID)
}

func (e *Engine) tryUpsert(ctx context.Context, workspace, messageID, personID string, assignedBy *string, target domain.Status) (UpsertResult, bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", false, err
	}
	defer tx.Rollback()

	task, err := e.Repo.GetTaskByMessageAndPerson(ctx, tx, messageID, personID)
	if errors.Is(err, repo.ErrNotFound) {
		task = domain.Task{
			ID:            uuid.NewString(),
			WorkspaceName: workspace,
			MessageID:     messageID,
			PersonID:      personID,
			AssignedBy:    assignedBy,
			Status:        target,
			CreatedAt:     e.nowRFC3339(),
		}
		// A first status is not "from" anything, so no change row.
		if err := e.Repo.InsertTask(ctx, tx, task); err != nil {
			if repo.IsUniqueViolation(err) {
				// UNIQUE(message_id, person_id) lost to a concurrent creator.
				return "", true, nil
			}
			return "", false, err
		}
		if err := tx.Commit(); err != nil {
			return "", false, err
		}
		return UpsertCreated, false, nil
	}
	if err != nil {
		return "", false, err
	}

	if task.Status == target {
		return UpsertNoOp, false, nil
	}

	count, err := e.Repo.CountChanges(ctx, tx, task.ID)
	if err != nil {
		return "", false, err
	}
	if count > 0 {
		last, err := e.Repo.LastChange(ctx, tx, task.ID)
		if err != nil {
			return "", false, err
		}
		if last.New != task.Status {
			// Persisted status wins; keep going with it as ground truth.
			e.log.Warn().Str("task", task.ID).Str("status", string(task.Status)).
				Str("last_change", string(last.New)).Msg("task status disagrees with change history")
		}
	}

	change := domain.Change{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		Old:       task.Status,
		New:       target,
		Idx:       count,
		CreatedAt: e.nowRFC3339(),
	}
	if err := e.Repo.InsertChange(ctx, tx, change); err != nil {
		if repo.IsUniqueViolation(err) {
			// UNIQUE(task_id, idx) lost to a concurrent appender.
			return "", true, nil
		}
		return "", false, err
	}
	swapped, err := e.Repo.UpdateTaskStatusGuarded(ctx, tx, task.ID, task.Status, target)
	if err != nil {
		return "", false, err
	}
	if !swapped {
		// Another writer moved the status first; roll back and re-read.
		return "", true, nil
	}
	if err := tx.Commit(); err != nil {
		return "", false, err
	}
	return UpsertTransitioned, false, nil
}
