package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"reactboard/internal/domain"
	"reactboard/internal/engine"
	"reactboard/internal/logging"
	"reactboard/internal/repo"
	"reactboard/internal/syncer"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Syncer   *syncer.Syncer
	BasePath string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"task was not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Reactboard API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}

	router := chi.NewRouter()
	hcfg := huma.DefaultConfig("Reactboard API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group)
	registerStatus(group, cfg.Engine)
	registerBoard(group, cfg.Engine)
	registerTasks(group, cfg.Engine)
	registerWorkspaces(group, cfg.Engine, cfg.Syncer)
	registerSettings(group, cfg.Engine)

	return router, nil
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*healthOutput, error) {
		out := &healthOutput{}
		out.Body.Status = "ok"
		return out, nil
	})
}

func registerStatus(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "workspace-status-list",
		Method:      http.MethodGet,
		Path:        "/status",
		Summary:     "Connection and sync status of every workspace",
	}, func(ctx context.Context, _ *struct{}) (*statusListOutput, error) {
		out := &statusListOutput{}
		out.Body.Workspaces = e.Registry.Statuses()
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-status",
		Method:      http.MethodGet,
		Path:        "/status/{workspace}",
		Summary:     "Status of one workspace",
	}, func(ctx context.Context, in *statusInput) (*statusOutput, error) {
		status, ok := e.Registry.Status(in.Workspace)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "workspace not found", nil)
		}
		return &statusOutput{Body: status}, nil
	})
}

func registerBoard(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Tasks grouped by status for one person",
	}, func(ctx context.Context, in *boardInput) (*boardOutput, error) {
		workspace := in.Workspace
		if workspace == "" {
			link, err := e.ActiveWorkspace(ctx, in.PersonID)
			if err != nil {
				return nil, handleError(err)
			}
			workspace = link.WorkspaceName
		}
		board, err := e.Board(ctx, in.PersonID, workspace, domain.BoardMode(in.Mode))
		if err != nil {
			return nil, handleError(err)
		}
		out := &boardOutput{}
		out.Body.Workspace = workspace
		out.Body.Mode = string(domain.BoardMode(in.Mode))
		if in.Mode == "" {
			out.Body.Mode = string(domain.BoardAssigned)
		}
		out.Body.Board = board
		return out, nil
	})
}

func registerTasks(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "task-detail",
		Method:      http.MethodGet,
		Path:        "/tasks/{taskId}",
		Summary:     "Task with message and ordered change history",
	}, func(ctx context.Context, in *taskDetailInput) (*taskDetailOutput, error) {
		detail, err := e.TaskDetail(ctx, in.TaskID)
		if err != nil {
			return nil, handleError(err)
		}
		return &taskDetailOutput{Body: detail}, nil
	})
}

func registerWorkspaces(api huma.API, e *engine.Engine, s *syncer.Syncer) {
	huma.Register(api, huma.Operation{
		OperationID: "workspace-list",
		Method:      http.MethodGet,
		Path:        "/workspaces",
		Summary:     "Configured workspaces with the person's link state",
	}, func(ctx context.Context, in *workspaceListInput) (*workspaceListOutput, error) {
		entries, err := e.ListWorkspaces(ctx, in.PersonID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &workspaceListOutput{}
		out.Body.Workspaces = entries
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-link",
		Method:      http.MethodPost,
		Path:        "/workspaces/link",
		Summary:     "Link the person to a workspace and start an initial sync",
	}, func(ctx context.Context, in *linkInput) (*linkOutput, error) {
		link, err := e.Link(ctx, in.PersonID, in.Body.WorkspaceName)
		if err != nil {
			return nil, handleError(err)
		}
		if s != nil {
			// Backfill runs detached; progress is visible on the status
			// endpoint.
			go func() {
				if err := s.Run(context.WithoutCancel(ctx), link.WorkspaceName); err != nil {
					log := logging.Component("server")
					log.Error().Err(err).
						Str("workspace", link.WorkspaceName).Msg("initial sync after link failed")
				}
			}()
		}
		out := &linkOutput{}
		out.Body.Message = "linked to workspace " + link.WorkspaceName
		out.Body.Link = &link
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-unlink",
		Method:      http.MethodPost,
		Path:        "/workspaces/unlink",
		Summary:     "Unlink the person from a workspace",
	}, func(ctx context.Context, in *linkInput) (*linkOutput, error) {
		if err := e.Unlink(ctx, in.PersonID, in.Body.WorkspaceName); err != nil {
			return nil, handleError(err)
		}
		out := &linkOutput{}
		out.Body.Message = "unlinked from workspace " + in.Body.WorkspaceName
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-switch",
		Method:      http.MethodPost,
		Path:        "/workspaces/switch",
		Summary:     "Switch the person's active workspace",
	}, func(ctx context.Context, in *linkInput) (*linkOutput, error) {
		link, err := e.Switch(ctx, in.PersonID, in.Body.WorkspaceName)
		if err != nil {
			return nil, handleError(err)
		}
		out := &linkOutput{}
		out.Body.Message = "switched to workspace " + link.WorkspaceName
		out.Body.Link = &link
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "workspace-active",
		Method:      http.MethodGet,
		Path:        "/workspaces/active",
		Summary:     "The person's active workspace, if any",
	}, func(ctx context.Context, in *workspaceListInput) (*activeWorkspaceOutput, error) {
		out := &activeWorkspaceOutput{}
		link, err := e.ActiveWorkspace(ctx, in.PersonID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return out, nil
			}
			return nil, handleError(err)
		}
		out.Body.Link = &link
		return out, nil
	})
}

func registerSettings(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "emoji-mapping-get",
		Method:      http.MethodGet,
		Path:        "/workspaces/{workspace}/emoji",
		Summary:     "Effective emoji mapping for a workspace",
	}, func(ctx context.Context, in *mappingInput) (*mappingOutput, error) {
		mapping, err := e.EmojiMapping(in.Workspace)
		if err != nil {
			return nil, handleError(err)
		}
		out := &mappingOutput{}
		out.Body.Workspace = in.Workspace
		out.Body.Mapping = mapping
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "emoji-mapping-update",
		Method:      http.MethodPut,
		Path:        "/workspaces/{workspace}/emoji",
		Summary:     "Replace the emoji mapping; effective for the next event",
	}, func(ctx context.Context, in *mappingUpdateInput) (*mappingUpdateOutput, error) {
		settings, err := e.UpdateEmojiMapping(ctx, in.Workspace, in.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &mappingUpdateOutput{Body: settings}, nil
	})
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "not a member"),
		strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "empty"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}
