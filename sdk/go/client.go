package reactboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Reactboard HTTP API client. PersonID identifies the
// acting person on person-scoped calls.
type Client struct {
	BaseURL    string
	PersonID   string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8080/v1.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Task represents the API task model.
type Task struct {
	ID            string  `json:"id"`
	WorkspaceName string  `json:"workspace_name"`
	MessageID     string  `json:"message_id"`
	PersonID      string  `json:"person_id"`
	AssignedBy    *string `json:"assigned_by,omitempty"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
}

// Message is the captured chat message a task points at.
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

// Change is one recorded status transition.
type Change struct {
	ID        string `json:"id"`
	TaskID    string `json:"task_id"`
	Old       string `json:"old"`
	New       string `json:"new"`
	Index     int    `json:"index"`
	CreatedAt string `json:"created_at"`
}

// BoardEntry pairs a task with its message.
type BoardEntry struct {
	Task    Task    `json:"task"`
	Message Message `json:"message"`
}

// Board groups tasks by status.
type Board struct {
	InProgress []BoardEntry `json:"in_progress"`
	Blocked    []BoardEntry `json:"blocked"`
	Completed  []BoardEntry `json:"completed"`
}

// BoardResponse is the board endpoint payload.
type BoardResponse struct {
	Workspace string `json:"workspace"`
	Mode      string `json:"mode"`
	Board     Board  `json:"board"`
}

// TaskDetail is a task with its message and ordered change history.
type TaskDetail struct {
	Task    Task     `json:"task"`
	Message Message  `json:"message"`
	Changes []Change `json:"changes"`
}

// WorkspaceStatus reports one workspace's connection and sync state.
type WorkspaceStatus struct {
	WorkspaceName string  `json:"workspace_name"`
	State         string  `json:"state"`
	ConnectedAt   *string `json:"connected_at,omitempty"`
	LastHeartbeat *string `json:"last_heartbeat,omitempty"`
	Error         string  `json:"error,omitempty"`
	IsSyncing     bool    `json:"is_syncing"`
	SyncProgress  string  `json:"sync_progress,omitempty"`
}

// WorkspaceLink is a person's link to one workspace.
type WorkspaceLink struct {
	ID            string  `json:"id"`
	PersonID      string  `json:"person_id"`
	WorkspaceName string  `json:"workspace_name"`
	MemberID      *string `json:"member_id,omitempty"`
	IsLinked      bool    `json:"is_linked"`
	IsActive      bool    `json:"is_active"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     *string `json:"updated_at,omitempty"`
}

// WorkspaceEntry is a configured workspace with the person's link state.
type WorkspaceEntry struct {
	Name     string  `json:"name"`
	IsLinked bool    `json:"is_linked"`
	IsActive bool    `json:"is_active"`
	MemberID *string `json:"member_id,omitempty"`
}

// EmojiMapping maps emoji names to statuses, one list per status.
type EmojiMapping struct {
	InProgress []string `json:"in_progress"`
	Blocked    []string `json:"blocked"`
	Completed  []string `json:"completed"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Health checks the server is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// Statuses returns the status of every registered workspace.
func (c *Client) Statuses(ctx context.Context) ([]WorkspaceStatus, error) {
	var resp struct {
		Workspaces []WorkspaceStatus `json:"workspaces"`
	}
	err := c.do(ctx, http.MethodGet, "status", nil, &resp)
	return resp.Workspaces, err
}

// Status returns one workspace's status.
func (c *Client) Status(ctx context.Context, workspace string) (WorkspaceStatus, error) {
	var resp WorkspaceStatus
	err := c.do(ctx, http.MethodGet, "status/"+url.PathEscape(workspace), nil, &resp)
	return resp, err
}

// Board fetches the person's board. workspace and mode may be empty for
// the server-side defaults.
func (c *Client) Board(ctx context.Context, workspace, mode string) (BoardResponse, error) {
	q := url.Values{"person_id": {c.PersonID}}
	if workspace != "" {
		q.Set("workspace", workspace)
	}
	if mode != "" {
		q.Set("mode", mode)
	}
	var resp BoardResponse
	err := c.do(ctx, http.MethodGet, "board?"+q.Encode(), nil, &resp)
	return resp, err
}

// TaskDetail fetches one task with its change history.
func (c *Client) TaskDetail(ctx context.Context, taskID string) (TaskDetail, error) {
	var resp TaskDetail
	err := c.do(ctx, http.MethodGet, "tasks/"+url.PathEscape(taskID), nil, &resp)
	return resp, err
}

// Workspaces lists configured workspaces with the person's link state.
func (c *Client) Workspaces(ctx context.Context) ([]WorkspaceEntry, error) {
	var resp struct {
		Workspaces []WorkspaceEntry `json:"workspaces"`
	}
	err := c.do(ctx, http.MethodGet, "workspaces?"+c.personQuery(), nil, &resp)
	return resp.Workspaces, err
}

type linkResponse struct {
	Message string         `json:"message"`
	Link    *WorkspaceLink `json:"link,omitempty"`
}

// Link links the person to a workspace and starts an initial sync.
func (c *Client) Link(ctx context.Context, workspace string) (*WorkspaceLink, error) {
	body := map[string]any{"workspace_name": workspace}
	var resp linkResponse
	err := c.do(ctx, http.MethodPost, "workspaces/link?"+c.personQuery(), body, &resp)
	return resp.Link, err
}

// Unlink removes the person's link to a workspace.
func (c *Client) Unlink(ctx context.Context, workspace string) error {
	body := map[string]any{"workspace_name": workspace}
	return c.do(ctx, http.MethodPost, "workspaces/unlink?"+c.personQuery(), body, nil)
}

// Switch makes a linked workspace the person's active one.
func (c *Client) Switch(ctx context.Context, workspace string) (*WorkspaceLink, error) {
	body := map[string]any{"workspace_name": workspace}
	var resp linkResponse
	err := c.do(ctx, http.MethodPost, "workspaces/switch?"+c.personQuery(), body, &resp)
	return resp.Link, err
}

// ActiveWorkspace returns the person's active link, or nil if none.
func (c *Client) ActiveWorkspace(ctx context.Context) (*WorkspaceLink, error) {
	var resp struct {
		Link *WorkspaceLink `json:"link,omitempty"`
	}
	err := c.do(ctx, http.MethodGet, "workspaces/active?"+c.personQuery(), nil, &resp)
	return resp.Link, err
}

// EmojiMapping returns the effective mapping for a workspace.
func (c *Client) EmojiMapping(ctx context.Context, workspace string) (EmojiMapping, error) {
	var resp struct {
		Workspace string       `json:"workspace"`
		Mapping   EmojiMapping `json:"emoji_mappings"`
	}
	err := c.do(ctx, http.MethodGet, "workspaces/"+url.PathEscape(workspace)+"/emoji", nil, &resp)
	return resp.Mapping, err
}

// UpdateEmojiMapping replaces a workspace's mapping. The new mapping takes
// effect for the next event.
func (c *Client) UpdateEmojiMapping(ctx context.Context, workspace string, mapping EmojiMapping) error {
	return c.do(ctx, http.MethodPut, "workspaces/"+url.PathEscape(workspace)+"/emoji", mapping, nil)
}

func (c *Client) personQuery() string {
	return url.Values{"person_id": {c.PersonID}}.Encode()
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
