package assistant

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest   = errors.New("missing required fields")
	ErrUnknownProvider  = errors.New("unknown AI provider")
	ErrMissingAPIKey    = errors.New("API key required")
	ErrMissingEndpoint  = errors.New("endpoint URL required")
	ErrUnknownAction    = errors.New("unknown action")
	ErrImageUnsupported = errors.New("image generation not supported by provider")
)

// RequestType selects the system prompt, or image generation.
type RequestType string

const (
	TypeChat  RequestType = "chat"
	TypeCode  RequestType = "code"
	TypeImage RequestType = "image"
)

// ProviderConfig carries the caller's credentials and overrides for one call.
type ProviderConfig struct {
	Provider string `json:"provider,omitempty"`
	APIKey   string `json:"apiKey,omitempty"`
	Model    string `json:"model,omitempty"`
	Endpoint string `json:"endpoint,omitempty"`
}

// Request is a chat panel prompt.
type Request struct {
	Provider string         `json:"provider"`
	Content  string         `json:"content"`
	Type     RequestType    `json:"type"`
	Config   ProviderConfig `json:"config"`
}

// Response is relayed back to the chat panel.
type Response struct {
	Response string `json:"response"`
	ImageURL string `json:"imageUrl,omitempty"`
}

// Edit actions.
const (
	ActionReadProject = "read_project"
	ActionEditFile    = "edit_file"
	ActionCreateFile  = "create_file"
)

// EditRequest asks the model to read or change project files.
type EditRequest struct {
	Action       string         `json:"action"`
	ProjectID    string         `json:"projectId"`
	FileID       string         `json:"fileId"`
	Instructions string         `json:"instructions"`
	AIConfig     ProviderConfig `json:"aiConfig"`
}

// FileChange records a file the assistant created or modified.
type FileChange struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Action   string `json:"action"`
}

type EditResponse struct {
	Response    string       `json:"response"`
	FileChanges []FileChange `json:"fileChanges"`
}

// ProviderError is returned when an upstream provider answers with a non-2xx status.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: %d - %s", e.Provider, e.StatusCode, e.Body)
}
