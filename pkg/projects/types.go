package projects

import (
	"errors"
	"time"
)

const (
	DefaultVersion    = "1.0.0"
	DefaultTargetSDK  = "Android 13 (API 33)"
	DefaultEntryPoint = "main.py"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrFileNotFound    = errors.New("file not found")
	// ErrInvalid wraps every input validation failure.
	ErrInvalid = errors.New("invalid input")
)

// Project is an uploaded Python application to be packaged.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PackageName string    `json:"packageName"`
	Version     string    `json:"version"`
	TargetSDK   string    `json:"targetSdk"`
	EntryPoint  string    `json:"entryPoint"`
	CreatedAt   time.Time `json:"createdAt"`
}

// File is a source or asset file belonging to a project.
type File struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateProjectInput captures the payload needed to register a project.
type CreateProjectInput struct {
	Name        string `json:"name"`
	PackageName string `json:"packageName"`
	Version     string `json:"version,omitempty"`
	TargetSDK   string `json:"targetSdk,omitempty"`
	EntryPoint  string `json:"entryPoint,omitempty"`
}

// ProjectPatch updates the non-nil fields of a project.
type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	PackageName *string `json:"packageName,omitempty"`
	Version     *string `json:"version,omitempty"`
	TargetSDK   *string `json:"targetSdk,omitempty"`
	EntryPoint  *string `json:"entryPoint,omitempty"`
}

// CreateFileInput captures a new project file.
type CreateFileInput struct {
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Content   string `json:"content"`
	Type      string `json:"type"`
	Size      int64  `json:"size,omitempty"`
}

// FilePatch updates the non-nil fields of a file.
type FilePatch struct {
	Name    *string `json:"name,omitempty"`
	Content *string `json:"content,omitempty"`
	Type    *string `json:"type,omitempty"`
	Size    *int64  `json:"size,omitempty"`
}
