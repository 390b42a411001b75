package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reactboard/internal/config"
	"reactboard/internal/domain"
)

func testCreds(name string) Credentials {
	return Credentials{AppToken: "xapp-" + name, BotToken: "xoxb-" + name}
}

func TestAddRemoveNames(t *testing.T) {
	r := New()
	r.Add("zulu", testCreds("zulu"), domain.DefaultEmojiMapping(), nil)
	r.Add("beta", testCreds("beta"), domain.DefaultEmojiMapping(), nil)
	r.Add("acme", testCreds("acme"), domain.DefaultEmojiMapping(), []string{"C1"})

	// Insertion order must not leak through; Names is sorted.
	require.Equal(t, []string{"acme", "beta", "zulu"}, r.Names())
	require.True(t, r.Has("acme"))
	require.Equal(t, []string{"C1"}, r.ChannelsFor("acme"))

	r.Remove("acme")
	require.False(t, r.Has("acme"))
	require.Equal(t, []string{"beta", "zulu"}, r.Names())
}

func TestFromConfig(t *testing.T) {
	custom := domain.EmojiMapping{Completed: []string{"rocket"}}
	cfg := &config.Config{Workspaces: map[string]config.WorkspaceConfig{
		"acme": {AppToken: "xapp-1", BotToken: "xoxb-1"},
		"beta": {AppToken: "xapp-2", BotToken: "xoxb-2", Emoji: &custom},
	}}
	r := FromConfig(cfg)

	mapping, ok := r.Mapping("acme")
	require.True(t, ok)
	assert.NotEmpty(t, mapping.InProgress, "acme gets the default mapping")

	mapping, ok = r.Mapping("beta")
	require.True(t, ok)
	assert.Equal(t, []string{"rocket"}, mapping.Completed)
	assert.Empty(t, mapping.InProgress, "override replaces the default wholesale")
}

func TestStatusLifecycle(t *testing.T) {
	r := New()
	r.Add("acme", testCreds("acme"), domain.DefaultEmojiMapping(), nil)

	st, ok := r.Status("acme")
	require.True(t, ok)
	assert.Equal(t, domain.ConnDisconnected, st.State)

	r.SetConnecting("acme")
	st, _ = r.Status("acme")
	assert.Equal(t, domain.ConnConnecting, st.State)

	r.SetConnected("acme")
	st, _ = r.Status("acme")
	assert.Equal(t, domain.ConnConnected, st.State)
	assert.NotNil(t, st.ConnectedAt)

	r.Heartbeat("acme")
	st, _ = r.Status("acme")
	assert.NotNil(t, st.LastHeartbeat)

	r.SetError("acme", "socket closed")
	st, _ = r.Status("acme")
	assert.Equal(t, domain.ConnError, st.State)
	assert.Equal(t, "socket closed", st.Error)

	// Reconnecting clears the previous error.
	r.SetConnected("acme")
	st, _ = r.Status("acme")
	assert.Empty(t, st.Error)
}

func TestSyncProgress(t *testing.T) {
	r := New()
	r.Add("acme", testCreds("acme"), domain.DefaultEmojiMapping(), nil)

	r.SetSyncing("acme", "channel 1/3: 42 messages")
	st, _ := r.Status("acme")
	assert.True(t, st.IsSyncing)
	assert.Equal(t, "channel 1/3: 42 messages", st.SyncProgress)

	r.SetSyncDone("acme")
	st, _ = r.Status("acme")
	assert.False(t, st.IsSyncing)
	assert.Empty(t, st.SyncProgress)
}

func TestUpdateMappingSwapsWholeValue(t *testing.T) {
	r := New()
	r.Add("acme", testCreds("acme"), domain.DefaultEmojiMapping(), nil)

	ok := r.UpdateMapping("acme", domain.EmojiMapping{InProgress: []string{"fire"}})
	require.True(t, ok)
	mapping, _ := r.Mapping("acme")
	assert.Equal(t, []string{"fire"}, mapping.InProgress)
	assert.Empty(t, mapping.Completed)

	assert.False(t, r.UpdateMapping("ghost", domain.EmojiMapping{}))
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	for i := 0; i < 4; i++ {
		r.Add(fmt.Sprintf("ws%d", i), testCreds("x"), domain.DefaultEmojiMapping(), nil)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("ws%d", i%4)
			for j := 0; j < 100; j++ {
				r.SetConnecting(name)
				r.SetConnected(name)
				r.Heartbeat(name)
				r.Statuses()
				r.Mapping(name)
				r.Credentials(name)
				r.SetSyncing(name, "x")
				r.SetSyncDone(name)
			}
		}(i)
	}
	wg.Wait()

	require.Len(t, r.Statuses(), 4)
}
