package projects

// Repository defines the storage operations required by the studio server and
// the assistant.
type Repository interface {
	CreateProject(input CreateProjectInput) (Project, error)
	ListProjects() []Project
	GetProject(id string) (Project, error)
	UpdateProject(id string, patch ProjectPatch) (Project, error)
	DeleteProject(id string) error
	ListFiles(projectID string) []File
	GetFile(id string) (File, error)
	CreateFile(input CreateFileInput) (File, error)
	UpdateFile(id string, patch FilePatch) (File, error)
	DeleteFile(id string) error
}

var _ Repository = (*Store)(nil)
