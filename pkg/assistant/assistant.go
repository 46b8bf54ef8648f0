package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/vyvo/apkforge/backend/pkg/metrics"
	"github.com/vyvo/apkforge/backend/pkg/projects"
)

const (
	chatPrompt = "You are a helpful assistant for developers packaging Python applications " +
		"as Android APKs. Answer questions about Python, Android packaging and mobile " +
		"app development with concise, practical guidance."
	codePrompt = "You are an expert Python and Android developer. Review, explain or write " +
		"code for Python applications that will be packaged as Android APKs. Return " +
		"working code with short explanations."
	readProjectPrompt = "You are reviewing a Python project that will be packaged as an Android " +
		"APK. Answer the user's question using the project files provided."
	editFilePrompt = "You are editing a single file of a Python project. Apply the requested " +
		"change and return only the complete new file content, without markdown fences " +
		"or commentary."
	createFilePrompt = "You are adding a file to a Python project. Respond exactly in the form:\n" +
		"FILENAME: <name>\nCONTENT:\n<file content>"
)

var createFilePattern = regexp.MustCompile(`(?s)FILENAME:\s*(.+?)\s*\n\s*CONTENT:[ \t]*\n?(.*)`)

type Option func(*Assistant)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(c *http.Client) Option {
	return func(a *Assistant) {
		if c != nil {
			a.httpClient = c
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(a *Assistant) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTimeout bounds a single provider call.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Assistant) {
		if timeout > 0 {
			a.httpClient.Timeout = timeout
		}
	}
}

// Assistant relays prompts to the configured provider and applies file edits
// the model proposes.
type Assistant struct {
	registry   *Registry
	files      projects.Repository
	httpClient *http.Client
	logger     *zap.Logger
	tracer     trace.Tracer
}

func New(registry *Registry, files projects.Repository, opts ...Option) *Assistant {
	if registry == nil {
		registry = DefaultRegistry()
	}
	a := &Assistant{
		registry: registry,
		files:    files,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
		tracer: otel.Tracer("github.com/vyvo/apkforge/backend/pkg/assistant"),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "assistant"))
	return a
}

// Registry exposes the provider table.
func (a *Assistant) Registry() *Registry {
	return a.registry
}

func (a *Assistant) resolve(provider string, cfg ProviderConfig) (Entry, error) {
	entry, ok := a.registry.Get(provider)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if entry.RequiresKey && cfg.APIKey == "" {
		return Entry{}, fmt.Errorf("%w for %s", ErrMissingAPIKey, entry.DisplayName)
	}
	if entry.Kind == KindPrompt && cfg.Endpoint == "" && entry.Endpoint == "" {
		return Entry{}, ErrMissingEndpoint
	}
	return entry, nil
}

// Ask relays a chat panel request. Image requests go to the provider's image
// endpoint; everything else is a text completion.
func (a *Assistant) Ask(ctx context.Context, req Request) (Response, error) {
	if req.Provider == "" || strings.TrimSpace(req.Content) == "" {
		return Response{}, ErrInvalidRequest
	}
	entry, err := a.resolve(req.Provider, req.Config)
	if err != nil {
		return Response{}, err
	}

	ctx, span := a.tracer.Start(ctx, "assistant.ask", trace.WithAttributes(
		attribute.String("assistant.provider", entry.Name),
		attribute.String("assistant.type", string(req.Type)),
	))
	defer span.End()

	started := time.Now()
	var resp Response
	if req.Type == TypeImage {
		var url string
		url, err = a.image(ctx, entry, req.Config, req.Content)
		resp = Response{Response: "Image generated successfully", ImageURL: url}
	} else {
		system := chatPrompt
		if req.Type == TypeCode {
			system = codePrompt
		}
		resp.Response, err = a.call(ctx, entry, req.Config, system, req.Content)
	}
	a.observe(span, entry.Name, err, started)
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

// Edit runs one of the file-aware assistant actions against a project.
func (a *Assistant) Edit(ctx context.Context, req EditRequest) (EditResponse, error) {
	if req.Action == "" || req.ProjectID == "" || strings.TrimSpace(req.Instructions) == "" {
		return EditResponse{}, ErrInvalidRequest
	}
	provider := req.AIConfig.Provider
	if provider == "" {
		return EditResponse{}, ErrInvalidRequest
	}
	entry, err := a.resolve(provider, req.AIConfig)
	if err != nil {
		return EditResponse{}, err
	}
	if _, err := a.files.GetProject(req.ProjectID); err != nil {
		return EditResponse{}, err
	}

	ctx, span := a.tracer.Start(ctx, "assistant.edit", trace.WithAttributes(
		attribute.String("assistant.provider", entry.Name),
		attribute.String("assistant.action", req.Action),
		attribute.String("project.id", req.ProjectID),
	))
	defer span.End()

	switch req.Action {
	case ActionReadProject:
		return a.readProject(ctx, span, entry, req)
	case ActionEditFile:
		return a.editFile(ctx, span, entry, req)
	case ActionCreateFile:
		return a.createFile(ctx, span, entry, req)
	default:
		return EditResponse{}, fmt.Errorf("%w: %s", ErrUnknownAction, req.Action)
	}
}

func (a *Assistant) readProject(ctx context.Context, span trace.Span, entry Entry, req EditRequest) (EditResponse, error) {
	files := a.files.ListFiles(req.ProjectID)

	var b strings.Builder
	b.WriteString(req.Instructions)
	b.WriteString("\n\nProject files:\n")
	for _, f := range files {
		fmt.Fprintf(&b, "\n=== %s ===\n%s\n", f.Name, f.Content)
	}

	started := time.Now()
	text, err := a.call(ctx, entry, req.AIConfig, readProjectPrompt, b.String())
	a.observe(span, entry.Name, err, started)
	if err != nil {
		return EditResponse{}, err
	}
	return EditResponse{Response: text, FileChanges: []FileChange{}}, nil
}

func (a *Assistant) editFile(ctx context.Context, span trace.Span, entry Entry, req EditRequest) (EditResponse, error) {
	if req.FileID == "" {
		return EditResponse{}, ErrInvalidRequest
	}
	file, err := a.files.GetFile(req.FileID)
	if err != nil {
		return EditResponse{}, err
	}
	if file.ProjectID != req.ProjectID {
		return EditResponse{}, projects.ErrFileNotFound
	}

	prompt := fmt.Sprintf("File: %s\n\nCurrent content:\n%s\n\nRequested change:\n%s", file.Name, file.Content, req.Instructions)
	started := time.Now()
	content, err := a.call(ctx, entry, req.AIConfig, editFilePrompt, prompt)
	a.observe(span, entry.Name, err, started)
	if err != nil {
		return EditResponse{}, err
	}

	if _, err := a.files.UpdateFile(file.ID, projects.FilePatch{Content: &content}); err != nil {
		return EditResponse{}, fmt.Errorf("update %s: %w", file.Name, err)
	}
	a.logger.Info("file updated by assistant",
		zap.String("project_id", req.ProjectID),
		zap.String("file", file.Name),
	)
	return EditResponse{
		Response:    fmt.Sprintf("Updated %s.", file.Name),
		FileChanges: []FileChange{{FileID: file.ID, FileName: file.Name, Action: "modified"}},
	}, nil
}

func (a *Assistant) createFile(ctx context.Context, span trace.Span, entry Entry, req EditRequest) (EditResponse, error) {
	started := time.Now()
	text, err := a.call(ctx, entry, req.AIConfig, createFilePrompt, req.Instructions)
	a.observe(span, entry.Name, err, started)
	if err != nil {
		return EditResponse{}, err
	}

	name, content, ok := ParseCreatedFile(text)
	if !ok {
		return EditResponse{Response: text, FileChanges: []FileChange{}}, nil
	}

	file, err := a.files.CreateFile(projects.CreateFileInput{
		ProjectID: req.ProjectID,
		Name:      name,
		Content:   content,
		Type:      projects.DetectType(name),
	})
	if err != nil {
		return EditResponse{}, fmt.Errorf("create %s: %w", name, err)
	}
	a.logger.Info("file created by assistant",
		zap.String("project_id", req.ProjectID),
		zap.String("file", file.Name),
	)
	return EditResponse{
		Response:    fmt.Sprintf("Created %s.", file.Name),
		FileChanges: []FileChange{{FileID: file.ID, FileName: file.Name, Action: "created"}},
	}, nil
}

// ParseCreatedFile extracts the FILENAME and CONTENT sections of a create_file reply.
func ParseCreatedFile(text string) (name, content string, ok bool) {
	m := createFilePattern.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	name = strings.TrimSpace(m[1])
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimRight(m[2], "\n"), true
}

func (a *Assistant) observe(span trace.Span, provider string, err error, started time.Time) {
	metrics.ObserveAssistantRequest(provider, err, time.Since(started))
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var perr *ProviderError
	if errors.As(err, &perr) {
		a.logger.Warn("provider returned error",
			zap.String("provider", provider),
			zap.Int("status", perr.StatusCode),
		)
		return
	}
	a.logger.Warn("provider call failed", zap.String("provider", provider), zap.Error(err))
}
