package projects

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store keeps projects and their files in memory. When path is set every
// mutation is snapshotted to a JSON file and reloaded on start.
type Store struct {
	path     string
	mu       sync.RWMutex
	projects map[string]*Project
	files    map[string]*File
}

type persistContainer struct {
	Projects []*Project `json:"projects"`
	Files    []*File    `json:"files"`
}

func NewStore(path string) (*Store, error) {
	s := &Store{
		path:     path,
		projects: make(map[string]*Project),
		files:    make(map[string]*File),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	if s.path == "" {
		return nil
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var container persistContainer
	if err := json.Unmarshal(data, &container); err != nil {
		return fmt.Errorf("parse project store: %w", err)
	}
	for _, p := range container.Projects {
		if p == nil {
			continue
		}
		s.projects[p.ID] = p
	}
	for _, f := range container.Files {
		if f == nil {
			continue
		}
		s.files[f.ID] = f
	}
	return nil
}

func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	container := persistContainer{
		Projects: make([]*Project, 0, len(s.projects)),
		Files:    make([]*File, 0, len(s.files)),
	}
	for _, p := range s.projects {
		container.Projects = append(container.Projects, p)
	}
	for _, f := range s.files {
		container.Files = append(container.Files, f)
	}
	payload, err := json.MarshalIndent(container, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

func (s *Store) CreateProject(input CreateProjectInput) (Project, error) {
	if strings.TrimSpace(input.Name) == "" {
		return Project{}, invalid("name is required")
	}
	if strings.TrimSpace(input.PackageName) == "" {
		return Project{}, invalid("packageName is required")
	}

	p := &Project{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(input.Name),
		PackageName: strings.TrimSpace(input.PackageName),
		Version:     valueOrDefault(input.Version, DefaultVersion),
		TargetSDK:   valueOrDefault(input.TargetSDK, DefaultTargetSDK),
		EntryPoint:  valueOrDefault(input.EntryPoint, DefaultEntryPoint),
		CreatedAt:   time.Now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
	if err := s.save(); err != nil {
		delete(s.projects, p.ID)
		return Project{}, err
	}
	return *p, nil
}

// ListProjects returns every project, newest first.
func (s *Store) ListProjects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Project, 0, len(s.projects))
	for _, p := range s.projects {
		result = append(result, *p)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

func (s *Store) GetProject(id string) (Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	return *p, nil
}

func (s *Store) UpdateProject(id string, patch ProjectPatch) (Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return Project{}, ErrProjectNotFound
	}
	next := *p
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return Project{}, invalid("name must not be empty")
		}
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.PackageName != nil {
		if strings.TrimSpace(*patch.PackageName) == "" {
			return Project{}, invalid("packageName must not be empty")
		}
		next.PackageName = strings.TrimSpace(*patch.PackageName)
	}
	if patch.Version != nil {
		next.Version = valueOrDefault(*patch.Version, DefaultVersion)
	}
	if patch.TargetSDK != nil {
		next.TargetSDK = valueOrDefault(*patch.TargetSDK, DefaultTargetSDK)
	}
	if patch.EntryPoint != nil {
		next.EntryPoint = valueOrDefault(*patch.EntryPoint, DefaultEntryPoint)
	}

	prev := *p
	*p = next
	if err := s.save(); err != nil {
		*p = prev
		return Project{}, err
	}
	return next, nil
}

// DeleteProject removes the project and every file that belongs to it.
func (s *Store) DeleteProject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return ErrProjectNotFound
	}
	delete(s.projects, id)
	for fileID, f := range s.files {
		if f.ProjectID == id {
			delete(s.files, fileID)
		}
	}
	return s.save()
}

// ListFiles returns the files of a project sorted by name.
func (s *Store) ListFiles(projectID string) []File {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]File, 0)
	for _, f := range s.files {
		if f.ProjectID == projectID {
			result = append(result, *f)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

func (s *Store) GetFile(id string) (File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.files[id]
	if !ok {
		return File{}, ErrFileNotFound
	}
	return *f, nil
}

func (s *Store) CreateFile(input CreateFileInput) (File, error) {
	if strings.TrimSpace(input.Name) == "" {
		return File{}, invalid("name is required")
	}
	if strings.TrimSpace(input.Type) == "" {
		return File{}, invalid("type is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[input.ProjectID]; !ok {
		return File{}, ErrProjectNotFound
	}
	size := input.Size
	if size == 0 {
		size = int64(len(input.Content))
	}
	f := &File{
		ID:        uuid.NewString(),
		ProjectID: input.ProjectID,
		Name:      strings.TrimSpace(input.Name),
		Content:   input.Content,
		Type:      input.Type,
		Size:      size,
		CreatedAt: time.Now().UTC(),
	}
	s.files[f.ID] = f
	if err := s.save(); err != nil {
		delete(s.files, f.ID)
		return File{}, err
	}
	return *f, nil
}

func (s *Store) UpdateFile(id string, patch FilePatch) (File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return File{}, ErrFileNotFound
	}
	next := *f
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return File{}, invalid("name must not be empty")
		}
		next.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Type != nil {
		next.Type = *patch.Type
	}
	if patch.Content != nil {
		next.Content = *patch.Content
		next.Size = int64(len(next.Content))
	}
	if patch.Size != nil {
		next.Size = *patch.Size
	}

	prev := *f
	*f = next
	if err := s.save(); err != nil {
		*f = prev
		return File{}, err
	}
	return next, nil
}

func (s *Store) DeleteFile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return ErrFileNotFound
	}
	delete(s.files, id)
	return s.save()
}

func valueOrDefault(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return strings.TrimSpace(val)
}
