package engine_test

import (
	"errors"
	"testing"

	"reactboard/internal/domain"
	"reactboard/internal/engine"
	"reactboard/internal/registry"
	"reactboard/internal/repo"
)

func addWorkspace(env testEnv, name string) {
	env.Engine.Registry.Add(name, registry.Credentials{AppToken: "xapp-" + name, BotToken: "xoxb-" + name}, domain.DefaultEmojiMapping(), nil)
}

func TestFirstLinkBecomesActive(t *testing.T) {
	env := newTestEnv(t)
	env.Slack.members["ada@acme.test"] = "U100"
	person, err := env.Engine.Repo.EnsurePerson(env.Ctx, "ada", "ada@acme.test")
	if err != nil {
		t.Fatal(err)
	}

	link, err := env.Engine.Link(env.Ctx, person.ID, testWorkspace)
	if err != nil {
		t.Fatalf("link: %v", err)
	}
	if !link.IsLinked || !link.IsActive {
		t.Fatalf("first link = %+v, want linked and active", link)
	}
	if link.MemberID == nil || *link.MemberID != "U100" {
		t.Fatalf("member id %v", link.MemberID)
	}
}

func TestSecondLinkIsNotActive(t *testing.T) {
	env := newTestEnv(t)
	addWorkspace(env, "beta")
	env.Slack.members["ada@acme.test"] = "U100"
	person, _ := env.Engine.Repo.EnsurePerson(env.Ctx, "ada", "ada@acme.test")

	if _, err := env.Engine.Link(env.Ctx, person.ID, testWorkspace); err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.Link(env.Ctx, person.ID, "beta")
	if err != nil {
		t.Fatal(err)
	}
	if second.IsActive {
		t.Fatalf("second link should not steal the active slot")
	}

	active, err := env.Engine.ActiveWorkspace(env.Ctx, person.ID)
	if err != nil {
		t.Fatal(err)
	}
	if active.WorkspaceName != testWorkspace {
		t.Fatalf("active %s, want %s", active.WorkspaceName, testWorkspace)
	}
}

func TestLinkRejectsNonMember(t *testing.T) {
	env := newTestEnv(t)
	person, _ := env.Engine.Repo.EnsurePerson(env.Ctx, "ada", "ada@acme.test")

	if _, err := env.Engine.Link(env.Ctx, person.ID, testWorkspace); err == nil {
		t.Fatalf("expected lookup failure for unknown email")
	}
}

func TestSwitchActiveWorkspace(t *testing.T) {
	env := newTestEnv(t)
	addWorkspace(env, "beta")
	env.Slack.members["ada@acme.test"] = "U100"
	person, _ := env.Engine.Repo.EnsurePerson(env.Ctx, "ada", "ada@acme.test")
	_, _ = env.Engine.Link(env.Ctx, person.ID, testWorkspace)
	_, _ = env.Engine.Link(env.Ctx, person.ID, "beta")

	link, err := env.Engine.Switch(env.Ctx, person.ID, "beta")
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if !link.IsActive {
		t.Fatalf("switched link not active")
	}

	entries, err := env.Engine.ListWorkspaces(env.Ctx, person.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		wantActive := entry.Name == "beta"
		if entry.IsActive != wantActive {
			t.Fatalf("entry %s active=%v", entry.Name, entry.IsActive)
		}
	}
}

func TestUnlinkPromotesRemainingWorkspace(t *testing.T) {
	env := newTestEnv(t)
	addWorkspace(env, "beta")
	env.Slack.members["ada@acme.test"] = "U100"
	person, _ := env.Engine.Repo.EnsurePerson(env.Ctx, "ada", "ada@acme.test")
	_, _ = env.Engine.Link(env.Ctx, person.ID, testWorkspace)
	_, _ = env.Engine.Link(env.Ctx, person.ID, "beta")

	if err := env.Engine.Unlink(env.Ctx, person.ID, testWorkspace); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	active, err := env.Engine.ActiveWorkspace(env.Ctx, person.ID)
	if err != nil {
		t.Fatalf("active after unlink: %v", err)
	}
	if active.WorkspaceName != "beta" {
		t.Fatalf("active %s, want beta", active.WorkspaceName)
	}
}

func TestUnlinkKeepsTasks(t *testing.T) {
	env := newTestEnv(t)
	person := linkPerson(t, env, "ada", "ada@acme.test", "U100")
	env.Slack.addMessage("C1", "1700.0001", "U999", "ship it")
	mustHandle(t, env, reactionEvent("reaction_added", "U100", "eyes", "C1", "1700.0001"), engine.Applied)

	task := taskFor(t, env, person.ID, "C1", "1700.0001")
	if err := env.Engine.Unlink(env.Ctx, person.ID, testWorkspace); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := env.Engine.Repo.GetTask(env.Ctx, task.ID); err != nil {
		t.Fatalf("task gone after unlink: %v", err)
	}

	// Events from the now-unlinked member are skipped again.
	mustHandle(t, env, reactionEvent("reaction_added", "U100", "white_check_mark", "C1", "1700.0001"), engine.SkippedUnlinkedUser)
}

func TestUnlinkingLastWorkspaceClearsActive(t *testing.T) {
	env := newTestEnv(t)
	env.Slack.members["ada@acme.test"] = "U100"
	person, _ := env.Engine.Repo.EnsurePerson(env.Ctx, "ada", "ada@acme.test")
	_, _ = env.Engine.Link(env.Ctx, person.ID, testWorkspace)

	if err := env.Engine.Unlink(env.Ctx, person.ID, testWorkspace); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := env.Engine.ActiveWorkspace(env.Ctx, person.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("active after last unlink: %v", err)
	}
}

func TestActiveWorkspaceNotFoundWhenUnlinked(t *testing.T) {
	env := newTestEnv(t)
	person, _ := env.Engine.Repo.EnsurePerson(env.Ctx, "ada", "ada@acme.test")
	_, err := env.Engine.ActiveWorkspace(env.Ctx, person.ID)
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
