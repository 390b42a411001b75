package domain

import "strings"

// Status is the tracked state of a task. There is no persisted "blank"
// status; unmapped values render as Blank on boards only.
type Status string

const (
	StatusInProgress Status = "InProgress"
	StatusBlocked    Status = "Blocked"
	StatusCompleted  Status = "Completed"
)

// ParseStatus accepts the persisted spelling case-insensitively.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(s) {
	case "inprogress", "in_progress":
		return StatusInProgress, true
	case "blocked":
		return StatusBlocked, true
	case "completed":
		return StatusCompleted, true
	}
	return "", false
}

type Person struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// WorkspaceLink binds a person to their member identity inside one
// workspace. At most one link per person is active at a time.
type WorkspaceLink struct {
	ID            string  `json:"id"`
	PersonID      string  `json:"person_id"`
	WorkspaceName string  `json:"workspace_name"`
	MemberID      *string `json:"member_id,omitempty"`
	IsLinked      bool    `json:"is_linked"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     *string `json:"updated_at,omitempty" format:"date-time"`
}

// Message is an immutable snapshot of the chat message a reaction landed
// on, captured on first reference.
type Message struct {
	ID            string  `json:"id"`
	WorkspaceName string  `json:"workspace_name"`
	ExternalID    string  `json:"external_id"`
	Content       string  `json:"content"`
	Channel       string  `json:"channel"`
	Timestamp     string  `json:"timestamp"`
	Permalink     string  `json:"permalink,omitempty"`
	AuthorID      *string `json:"author_id,omitempty"`
}

type Task struct {
	ID            string  `json:"id"`
	WorkspaceName string  `json:"workspace_name"`
	MessageID     string  `json:"message_id"`
	PersonID      string  `json:"person_id"`
	AssignedBy    *string `json:"assigned_by,omitempty"`
	Status        Status  `json:"status" enum:"InProgress,Blocked,Completed"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

// Change is one accepted status transition. Idx is 0-based and strictly
// increasing per task, assigned at append time.
type Change struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Old       Status `json:"old"`
	New       Status `json:"new"`
	Idx       int    `json:"index"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// EmojiMapping maps emoji names to target statuses, one list per status.
type EmojiMapping struct {
	InProgress []string `json:"in_progress" yaml:"in_progress"`
	Blocked    []string `json:"blocked" yaml:"blocked"`
	Completed  []string `json:"completed" yaml:"completed"`
}

// DefaultEmojiMapping is applied to workspaces with no stored settings.
func DefaultEmojiMapping() EmojiMapping {
	return EmojiMapping{
		InProgress: []string{"eyes"},
		Blocked:    []string{"arrows_counterclockwise", "loading", "hourglass"},
		Completed:  []string{"white_check_mark", "heavy_check_mark"},
	}
}

// Resolve returns the status a reaction emoji maps to. Matching is
// case-insensitive on the exact emoji name.
func (m EmojiMapping) Resolve(emoji string) (Status, bool) {
	e := strings.ToLower(strings.TrimSpace(emoji))
	for _, name := range m.InProgress {
		if strings.ToLower(name) == e {
			return StatusInProgress, true
		}
	}
	for _, name := range m.Blocked {
		if strings.ToLower(name) == e {
			return StatusBlocked, true
		}
	}
	for _, name := range m.Completed {
		if strings.ToLower(name) == e {
			return StatusCompleted, true
		}
	}
	return "", false
}

type WorkspaceSettings struct {
	ID            string       `json:"id"`
	WorkspaceName string       `json:"workspace_name"`
	EmojiMapping  EmojiMapping `json:"emoji_mappings"`
	CreatedAt     string       `json:"created_at" format:"date-time"`
	UpdatedAt     string       `json:"updated_at" format:"date-time"`
}

// ConnState is the supervisor-owned connection lifecycle of a workspace.
type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnError        ConnState = "error"
)

// WorkspaceStatus is the operator-facing health of one workspace bot.
type WorkspaceStatus struct {
	WorkspaceName string    `json:"workspace_name"`
	State         ConnState `json:"state" enum:"disconnected,connecting,connected,error"`
	ConnectedAt   *string   `json:"connected_at,omitempty" format:"date-time"`
	LastHeartbeat *string   `json:"last_heartbeat,omitempty" format:"date-time"`
	Error         string    `json:"error,omitempty"`
	IsSyncing     bool      `json:"is_syncing"`
	SyncProgress  string    `json:"sync_progress,omitempty"`
}

// BoardEntry is a task joined with its message for board views.
type BoardEntry struct {
	Task    Task    `json:"task"`
	Message Message `json:"message"`
}

// Board groups one person's tasks in one workspace by status.
type Board struct {
	InProgress []BoardEntry `json:"in_progress"`
	Blocked    []BoardEntry `json:"blocked"`
	Completed  []BoardEntry `json:"completed"`
}

// BoardMode selects whose tasks a board shows.
type BoardMode string

const (
	BoardAssigned  BoardMode = "assigned"  // tasks created by the person's own reactions
	BoardInitiated BoardMode = "initiated" // tasks the person assigned to others
)
