package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"reactboard/internal/domain"
	"reactboard/internal/engine"
)

func startLanes(t *testing.T, env testEnv, n int) *engine.Lanes {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	lanes := engine.NewLanes(env.Engine, n)
	lanes.Start(ctx)
	t.Cleanup(func() {
		cancel()
		lanes.Wait()
	})
	return lanes
}

func TestLanesKeepTupleOrder(t *testing.T) {
	env := newTestEnv(t)
	person := linkPerson(t, env, "ada", "ada@acme.test", "U100")
	env.Slack.addMessage("C1", "1700.0001", "U999", "ship it")
	lanes := startLanes(t, env, 4)

	// A strict alternation: the final state and change count are only
	// right if every step ran in dispatch order.
	emojis := []string{"eyes", "hourglass", "eyes", "hourglass", "eyes", "white_check_mark"}
	for _, emoji := range emojis {
		_, err := lanes.DispatchWait(env.Ctx, testWorkspace, reactionEvent("reaction_added", "U100", emoji, "C1", "1700.0001"))
		require.NoError(t, err)
	}

	task := taskFor(t, env, person.ID, "C1", "1700.0001")
	require.Equal(t, domain.StatusCompleted, task.Status)
	changes, err := env.Engine.Repo.ListChanges(env.Ctx, task.ID)
	require.NoError(t, err)
	require.Len(t, changes, len(emojis)-1)
	for i, ch := range changes {
		require.Equal(t, i, ch.Idx)
	}
}

func TestLanesIsolateTuples(t *testing.T) {
	env := newTestEnv(t)
	people := make([]domain.Person, 8)
	for i := range people {
		member := fmt.Sprintf("U%03d", i)
		people[i] = linkPerson(t, env, fmt.Sprintf("p%d", i), fmt.Sprintf("p%d@acme.test", i), member)
	}
	for i := 0; i < 4; i++ {
		env.Slack.addMessage("C1", fmt.Sprintf("1700.%04d", i), "U999", fmt.Sprintf("msg %d", i))
	}
	lanes := startLanes(t, env, 4)

	// Every (message, person) tuple gets the same transition sequence,
	// dispatched from competing goroutines.
	var wg sync.WaitGroup
	for p := range people {
		for m := 0; m < 4; m++ {
			wg.Add(1)
			go func(p, m int) {
				defer wg.Done()
				ts := fmt.Sprintf("1700.%04d", m)
				member := fmt.Sprintf("U%03d", p)
				for _, emoji := range []string{"eyes", "hourglass", "white_check_mark"} {
					out, err := lanes.DispatchWait(env.Ctx, testWorkspace, reactionEvent("reaction_added", member, emoji, "C1", ts))
					if err != nil {
						t.Error(err)
						return
					}
					// Contention between lanes must resolve, never drop.
					if out != engine.Applied {
						t.Errorf("person %d message %d emoji %s: outcome %s", p, m, emoji, out)
						return
					}
				}
			}(p, m)
		}
	}
	wg.Wait()

	for p, person := range people {
		for m := 0; m < 4; m++ {
			ts := fmt.Sprintf("1700.%04d", m)
			task := taskFor(t, env, person.ID, "C1", ts)
			require.Equal(t, domain.StatusCompleted, task.Status, "person %d message %d", p, m)
			changes, err := env.Engine.Repo.ListChanges(env.Ctx, task.ID)
			require.NoError(t, err)
			require.Len(t, changes, 2)
			require.Equal(t, 0, changes[0].Idx)
			require.Equal(t, 1, changes[1].Idx)
		}
	}
}

func TestDispatchWaitReportsOutcome(t *testing.T) {
	env := newTestEnv(t)
	linkPerson(t, env, "ada", "ada@acme.test", "U100")
	env.Slack.addMessage("C1", "1700.0001", "U999", "ship it")
	lanes := startLanes(t, env, 2)

	outcome, err := lanes.DispatchWait(env.Ctx, testWorkspace, reactionEvent("reaction_added", "U100", "eyes", "C1", "1700.0001"))
	require.NoError(t, err)
	require.Equal(t, engine.Applied, outcome)

	outcome, err = lanes.DispatchWait(env.Ctx, testWorkspace, reactionEvent("reaction_added", "U100", "eyes", "C1", "1700.0001"))
	require.NoError(t, err)
	require.Equal(t, engine.SkippedNoOp, outcome)
}
