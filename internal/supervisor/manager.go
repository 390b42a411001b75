package supervisor

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"reactboard/internal/engine"
	"reactboard/internal/logging"
	"reactboard/internal/registry"
	"reactboard/internal/slack"
)

// Manager runs one supervisor per registered workspace, each independently
// cancellable. Workspaces can be added and removed at runtime.
type Manager struct {
	Registry *registry.Registry
	Client   slack.Client
	Lanes    *engine.Lanes

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
	log     zerolog.Logger
}

func NewManager(reg *registry.Registry, client slack.Client, lanes *engine.Lanes) *Manager {
	return &Manager{
		Registry: reg,
		Client:   client,
		Lanes:    lanes,
		cancels:  make(map[string]context.CancelFunc),
		log:      logging.Component("supervisor"),
	}
}

// StartAll spawns a supervisor for every registered workspace.
func (m *Manager) StartAll(ctx context.Context) {
	for _, name := range m.Registry.Names() {
		m.Add(ctx, name)
	}
}

// Add spawns a supervisor for one workspace. Adding a running workspace is
// a no-op.
func (m *Manager) Add(ctx context.Context, workspace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, running := m.cancels[workspace]; running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancels[workspace] = cancel
	sup := New(workspace, m.Registry, m.Client, m.Lanes)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.log.Info().Str("workspace", workspace).Msg("starting supervisor")
		sup.Run(runCtx)
	}()
}

// Remove cancels a workspace's supervisor and drops it from the table. It
// will not be restarted.
func (m *Manager) Remove(workspace string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[workspace]; ok {
		cancel()
		delete(m.cancels, workspace)
	}
}

// Shutdown cancels every supervisor and waits for them to exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	for name, cancel := range m.cancels {
		cancel()
		delete(m.cancels, name)
	}
	m.mu.Unlock()
	m.wg.Wait()
}
