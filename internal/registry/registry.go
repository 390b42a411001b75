package registry

import (
	"sort"
	"sync"
	"time"

	"reactboard/internal/config"
	"reactboard/internal/domain"
)

// Credentials is the opaque handle supervisors use to reach a workspace.
type Credentials struct {
	AppToken string
	BotToken string
}

// Workspace is one registry entry. Status fields are mutated by the
// supervisor and syncer; the mapping is swapped whole on settings updates
// so in-flight readers keep a consistent view.
type Workspace struct {
	Name     string
	Channels []string

	creds   Credentials
	mapping domain.EmojiMapping
	status  domain.WorkspaceStatus
}

// Registry is the process-wide table of configured workspaces. Reads vastly
// outnumber writes; everything is served from memory under one RWMutex and
// returned by value.
type Registry struct {
	mu         sync.RWMutex
	workspaces map[string]*Workspace
	now        func() time.Time
}

func New() *Registry {
	return &Registry{
		workspaces: make(map[string]*Workspace),
		now:        time.Now,
	}
}

// FromConfig builds a registry from workspaces.yaml entries.
func FromConfig(cfg *config.Config) *Registry {
	r := New()
	for name, ws := range cfg.Workspaces {
		mapping := domain.DefaultEmojiMapping()
		if ws.Emoji != nil {
			mapping = *ws.Emoji
		}
		r.Add(name, Credentials{AppToken: ws.AppToken, BotToken: ws.BotToken}, mapping, ws.Channels)
	}
	return r
}

// Add registers a workspace. Adding an existing name replaces credentials
// and mapping but keeps live status.
func (r *Registry) Add(name string, creds Credentials, mapping domain.EmojiMapping, channels []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.workspaces[name]; ok {
		existing.creds = creds
		existing.mapping = mapping
		existing.Channels = channels
		return
	}
	r.workspaces[name] = &Workspace{
		Name:     name,
		Channels: channels,
		creds:    creds,
		mapping:  mapping,
		status: domain.WorkspaceStatus{
			WorkspaceName: name,
			State:         domain.ConnDisconnected,
		},
	}
}

// Remove drops a workspace from the table. The caller is responsible for
// stopping its supervisor.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.workspaces, name)
}

// Names lists registered workspaces in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.workspaces))
	for name := range r.workspaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has reports whether a workspace is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workspaces[name]
	return ok
}

// Credentials returns the token handle for a workspace.
func (r *Registry) Credentials(name string) (Credentials, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return Credentials{}, false
	}
	return ws.creds, true
}

// Mapping returns the current emoji mapping for a workspace. Each event is
// resolved against the mapping as of processing time, so settings updates
// take effect on the next event without a reconnect.
func (r *Registry) Mapping(name string) (domain.EmojiMapping, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return domain.EmojiMapping{}, false
	}
	return ws.mapping, true
}

// UpdateMapping replaces the emoji mapping for a workspace.
func (r *Registry) UpdateMapping(name string, mapping domain.EmojiMapping) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return false
	}
	ws.mapping = mapping
	return true
}

// Channels returns the configured channel allowlist; empty means all.
func (r *Registry) ChannelsFor(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return nil
	}
	out := make([]string, len(ws.Channels))
	copy(out, ws.Channels)
	return out
}

// Status returns a copy of the workspace's operator-facing status.
func (r *Registry) Status(name string) (domain.WorkspaceStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[name]
	if !ok {
		return domain.WorkspaceStatus{}, false
	}
	return ws.status, true
}

// Statuses returns the status of every registered workspace.
func (r *Registry) Statuses() []domain.WorkspaceStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.WorkspaceStatus, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		out = append(out, ws.status)
	}
	return out
}

func (r *Registry) nowRFC3339() string {
	return r.now().UTC().Format(time.RFC3339)
}

// SetConnecting marks a workspace as attempting its connection.
func (r *Registry) SetConnecting(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[name]; ok {
		ws.status.State = domain.ConnConnecting
		ws.status.Error = ""
	}
}

// SetConnected records a successful connection and seeds the heartbeat.
func (r *Registry) SetConnected(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[name]; ok {
		now := r.nowRFC3339()
		ws.status.State = domain.ConnConnected
		ws.status.ConnectedAt = &now
		hb := now
		ws.status.LastHeartbeat = &hb
		ws.status.Error = ""
	}
}

// SetError records a connection failure with a human-readable cause.
func (r *Registry) SetError(name, cause string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[name]; ok {
		ws.status.State = domain.ConnError
		ws.status.ConnectedAt = nil
		ws.status.Error = cause
	}
}

// SetDisconnected records a clean shutdown of the connection.
func (r *Registry) SetDisconnected(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[name]; ok {
		ws.status.State = domain.ConnDisconnected
		ws.status.ConnectedAt = nil
		ws.status.Error = ""
	}
}

// Heartbeat refreshes the liveness timestamp after any successful exchange.
func (r *Registry) Heartbeat(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[name]; ok {
		now := r.nowRFC3339()
		ws.status.LastHeartbeat = &now
	}
}

// SetSyncing publishes initial-sync progress for a workspace.
func (r *Registry) SetSyncing(name, progress string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[name]; ok {
		ws.status.IsSyncing = true
		ws.status.SyncProgress = progress
	}
}

// SetSyncDone clears sync state back to idle.
func (r *Registry) SetSyncDone(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[name]; ok {
		ws.status.IsSyncing = false
		ws.status.SyncProgress = ""
	}
}

// SetSyncFailed clears sync state and records the failure cause on the
// workspace status. The connection state is left alone; a failed sync
// does not mean the socket is down.
func (r *Registry) SetSyncFailed(name, cause string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[name]; ok {
		ws.status.IsSyncing = false
		ws.status.SyncProgress = ""
		ws.status.Error = cause
	}
}
