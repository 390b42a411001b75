package server

import (
	"reactboard/internal/domain"
	"reactboard/internal/engine"
)

type healthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok"`
	}
}

type statusListOutput struct {
	Body struct {
		Workspaces []domain.WorkspaceStatus `json:"workspaces"`
	}
}

type statusInput struct {
	Workspace string `path:"workspace" doc:"Workspace name"`
}

type statusOutput struct {
	Body domain.WorkspaceStatus
}

type boardInput struct {
	// PersonID is injected by the session layer in front of this API.
	PersonID  string `query:"person_id" required:"true" doc:"Requesting person"`
	Workspace string `query:"workspace" doc:"Workspace override; defaults to the person's active workspace"`
	Mode      string `query:"mode" enum:"assigned,initiated" doc:"Board mode"`
}

type boardOutput struct {
	Body struct {
		Workspace string       `json:"workspace"`
		Mode      string       `json:"mode"`
		Board     domain.Board `json:"board"`
	}
}

type taskDetailInput struct {
	TaskID string `path:"taskId" doc:"Task id"`
}

type taskDetailOutput struct {
	Body engine.TaskDetail
}

type workspaceListInput struct {
	PersonID string `query:"person_id" required:"true"`
}

type workspaceListOutput struct {
	Body struct {
		Workspaces []engine.WorkspaceEntry `json:"workspaces"`
	}
}

type linkInput struct {
	PersonID string `query:"person_id" required:"true"`
	Body     struct {
		WorkspaceName string `json:"workspace_name" required:"true"`
	}
}

type linkOutput struct {
	Body struct {
		Message string               `json:"message"`
		Link    *domain.WorkspaceLink `json:"link,omitempty"`
	}
}

type activeWorkspaceOutput struct {
	Body struct {
		Link *domain.WorkspaceLink `json:"link,omitempty"`
	}
}

type mappingInput struct {
	Workspace string `path:"workspace"`
}

type mappingOutput struct {
	Body struct {
		Workspace string              `json:"workspace"`
		Mapping   domain.EmojiMapping `json:"emoji_mappings"`
	}
}

type mappingUpdateInput struct {
	Workspace string `path:"workspace"`
	Body      domain.EmojiMapping
}

type mappingUpdateOutput struct {
	Body domain.WorkspaceSettings
}
