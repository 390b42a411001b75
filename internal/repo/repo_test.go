package repo_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"reactboard/internal/db"
	"reactboard/internal/domain"
	"reactboard/internal/migrate"
	"reactboard/internal/repo"
)

func newTestRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}, context.Background()
}

func TestEnsurePersonIsIdempotent(t *testing.T) {
	r, ctx := newTestRepo(t)
	first, err := r.EnsurePerson(ctx, "ada", "ada@acme.test")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := r.EnsurePerson(ctx, "ada again", "ada@acme.test")
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same email created two persons")
	}
}

func TestMessagesAreScopedByWorkspace(t *testing.T) {
	r, ctx := newTestRepo(t)
	externalID := "slack:C1:1700.0001"
	a, err := r.EnsureMessage(ctx, domain.Message{
		WorkspaceName: "acme", ExternalID: externalID,
		Content: "from acme", Channel: "C1", Timestamp: "1700.0001",
	})
	if err != nil {
		t.Fatalf("ensure acme: %v", err)
	}
	b, err := r.EnsureMessage(ctx, domain.Message{
		WorkspaceName: "beta", ExternalID: externalID,
		Content: "from beta", Channel: "C1", Timestamp: "1700.0001",
	})
	if err != nil {
		t.Fatalf("ensure beta: %v", err)
	}
	if a.ID == b.ID {
		t.Fatalf("same external id across workspaces shares a row")
	}
	got, err := r.GetMessageByExternalID(ctx, "beta", externalID)
	if err != nil {
		t.Fatalf("get beta: %v", err)
	}
	if got.Content != "from beta" {
		t.Fatalf("beta lookup returned %q", got.Content)
	}
}

func TestEnsureMessageKeepsFirstSnapshot(t *testing.T) {
	r, ctx := newTestRepo(t)
	msg := domain.Message{
		WorkspaceName: "acme", ExternalID: "slack:C1:1700.0001",
		Content: "original", Channel: "C1", Timestamp: "1700.0001",
	}
	first, err := r.EnsureMessage(ctx, msg)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	msg.Content = "edited later"
	second, err := r.EnsureMessage(ctx, msg)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if second.ID != first.ID || second.Content != "original" {
		t.Fatalf("snapshot changed: %+v", second)
	}
}

func TestLinkLookupIgnoresUnlinkedRows(t *testing.T) {
	r, ctx := newTestRepo(t)
	person, _ := r.EnsurePerson(ctx, "ada", "ada@acme.test")
	if _, err := r.LinkWorkspace(ctx, person.ID, "acme", "U100"); err != nil {
		t.Fatalf("link: %v", err)
	}

	link, err := r.GetLinkByMember(ctx, "acme", "U100")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if link.PersonID != person.ID {
		t.Fatalf("lookup resolved %s", link.PersonID)
	}

	if err := r.UnlinkWorkspace(ctx, person.ID, "acme"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if _, err := r.GetLinkByMember(ctx, "acme", "U100"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unlinked member still resolves: %v", err)
	}
}

func TestMemberLookupIsWorkspaceScoped(t *testing.T) {
	r, ctx := newTestRepo(t)
	ada, _ := r.EnsurePerson(ctx, "ada", "ada@acme.test")
	bob, _ := r.EnsurePerson(ctx, "bob", "bob@beta.test")
	// The same member id belongs to different persons in different
	// workspaces.
	if _, err := r.LinkWorkspace(ctx, ada.ID, "acme", "U100"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.LinkWorkspace(ctx, bob.ID, "beta", "U100"); err != nil {
		t.Fatal(err)
	}

	link, err := r.GetLinkByMember(ctx, "beta", "U100")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if link.PersonID != bob.ID {
		t.Fatalf("beta U100 resolved to %s, want %s", link.PersonID, bob.ID)
	}
}

func TestRelinkReusesRow(t *testing.T) {
	r, ctx := newTestRepo(t)
	person, _ := r.EnsurePerson(ctx, "ada", "ada@acme.test")
	first, err := r.LinkWorkspace(ctx, person.ID, "acme", "U100")
	if err != nil {
		t.Fatal(err)
	}
	if err := r.UnlinkWorkspace(ctx, person.ID, "acme"); err != nil {
		t.Fatal(err)
	}
	second, err := r.LinkWorkspace(ctx, person.ID, "acme", "U101")
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("relink created a second row")
	}
	if second.MemberID == nil || *second.MemberID != "U101" {
		t.Fatalf("relink member = %v", second.MemberID)
	}
}

func TestChangeIndexIsUniquePerTask(t *testing.T) {
	r, ctx := newTestRepo(t)
	person, _ := r.EnsurePerson(ctx, "ada", "ada@acme.test")
	msg, err := r.EnsureMessage(ctx, domain.Message{
		WorkspaceName: "acme", ExternalID: "slack:C1:1700.0001",
		Content: "x", Channel: "C1", Timestamp: "1700.0001",
	})
	if err != nil {
		t.Fatal(err)
	}

	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	task := domain.Task{
		ID: uuid.NewString(), WorkspaceName: "acme", MessageID: msg.ID,
		PersonID: person.ID, Status: domain.StatusInProgress, CreatedAt: "2026-02-01T00:00:00Z",
	}
	if err := r.InsertTask(ctx, tx, task); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	change := domain.Change{
		ID: uuid.NewString(), TaskID: task.ID,
		Old: domain.StatusInProgress, New: domain.StatusBlocked,
		Idx: 0, CreatedAt: "2026-02-01T00:00:01Z",
	}
	if err := r.InsertChange(ctx, tx, change); err != nil {
		t.Fatalf("insert change: %v", err)
	}
	dup := change
	dup.ID = uuid.NewString()
	if err := r.InsertChange(ctx, tx, dup); err == nil {
		t.Fatalf("duplicate change index accepted")
	}
	tx.Rollback()
}

func TestSettingsSeedAndUpdate(t *testing.T) {
	r, ctx := newTestRepo(t)
	seed := domain.DefaultEmojiMapping()

	s, err := r.EnsureWorkspaceSettings(ctx, "acme", seed)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if len(s.EmojiMapping.InProgress) != len(seed.InProgress) {
		t.Fatalf("seeded mapping = %+v", s.EmojiMapping)
	}

	// Ensure with a different seed must not overwrite stored settings.
	again, err := r.EnsureWorkspaceSettings(ctx, "acme", domain.EmojiMapping{InProgress: []string{"fire"}})
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if again.ID != s.ID || len(again.EmojiMapping.InProgress) != len(seed.InProgress) {
		t.Fatalf("second seed overwrote settings: %+v", again.EmojiMapping)
	}

	custom := domain.EmojiMapping{InProgress: []string{"fire"}, Completed: []string{"rocket"}}
	updated, err := r.UpdateEmojiMapping(ctx, "acme", custom)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.EmojiMapping.InProgress) != 1 || updated.EmojiMapping.InProgress[0] != "fire" {
		t.Fatalf("updated mapping = %+v", updated.EmojiMapping)
	}
}

func TestCorruptSettingsFallBackToDefaults(t *testing.T) {
	r, ctx := newTestRepo(t)
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO workspace_settings(id,workspace_name,emoji_mappings,created_at,updated_at) VALUES (?,?,?,?,?)`,
		uuid.NewString(), "acme", "{not json", "2026-02-01T00:00:00Z", "2026-02-01T00:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	s, err := r.GetWorkspaceSettings(ctx, "acme")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	def := domain.DefaultEmojiMapping()
	if len(s.EmojiMapping.Completed) != len(def.Completed) {
		t.Fatalf("corrupt settings did not fall back: %+v", s.EmojiMapping)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	r, ctx := newTestRepo(t)
	if _, err := r.GetTask(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUniqueViolationIsDetected(t *testing.T) {
	r, ctx := newTestRepo(t)
	person := domain.Person{ID: uuid.NewString(), Name: "ada", Email: "ada@acme.test", CreatedAt: "2026-02-01T00:00:00Z"}
	if err := r.InsertPerson(ctx, person); err != nil {
		t.Fatalf("insert: %v", err)
	}
	person.ID = uuid.NewString()
	err := r.InsertPerson(ctx, person)
	if err == nil {
		t.Fatal("duplicate email accepted")
	}
	if !repo.IsUniqueViolation(err) {
		t.Fatalf("err = %v, not classified as unique violation", err)
	}
	if repo.IsUniqueViolation(errors.New("boom")) {
		t.Fatal("plain error classified as unique violation")
	}
}

func TestConcurrentFirstLinksKeepOneActive(t *testing.T) {
	r, ctx := newTestRepo(t)
	person, err := r.EnsurePerson(ctx, "ada", "ada@acme.test")
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	workspaces := []string{"acme", "beta", "gamma", "delta"}
	var wg sync.WaitGroup
	for _, ws := range workspaces {
		wg.Add(1)
		go func(ws string) {
			defer wg.Done()
			if _, err := r.LinkWorkspace(ctx, person.ID, ws, "U-"+ws); err != nil {
				t.Errorf("link %s: %v", ws, err)
			}
		}(ws)
	}
	wg.Wait()

	var active int
	err = r.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workspace_links WHERE person_id=? AND is_active=1`, person.ID).Scan(&active)
	if err != nil {
		t.Fatal(err)
	}
	if active != 1 {
		t.Fatalf("active links = %d, want exactly 1", active)
	}
}
