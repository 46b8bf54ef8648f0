package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vyvo/apkforge/backend/pkg/assistant"
	"github.com/vyvo/apkforge/backend/pkg/builder"
	"github.com/vyvo/apkforge/backend/pkg/projects"
)

// ErrNotFound is returned when the server reports a missing resource.
var ErrNotFound = errors.New("resource not found")

// APIError carries a non-2xx response from the studio server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// Client talks to the studio server over HTTP.
type Client struct {
	baseURL      string
	accessKey    string
	httpClient   *http.Client
	streamClient *http.Client
}

// NewClient creates a studio client. Streaming requests ignore timeout.
func NewClient(baseURL, accessKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		accessKey:    accessKey,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{},
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if c.accessKey != "" {
		req.Header.Set("Authorization", "Key "+c.accessKey)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any, want int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(payload))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(payload, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: msg}
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, apiErr)
	}
	return apiErr
}

func buildPath(projectID string) string {
	return "/api/projects/" + url.PathEscape(projectID) + "/build"
}

// StartBuild starts or restarts the build of projectID.
func (c *Client) StartBuild(ctx context.Context, projectID string) (builder.Record, error) {
	var rec builder.Record
	err := c.doJSON(ctx, http.MethodPost, buildPath(projectID), nil, &rec, http.StatusOK)
	return rec, err
}

// GetBuild fetches the current build record of projectID.
func (c *Client) GetBuild(ctx context.Context, projectID string) (builder.Record, error) {
	var rec builder.Record
	err := c.doJSON(ctx, http.MethodGet, buildPath(projectID), nil, &rec, http.StatusOK)
	return rec, err
}

// StreamBuild follows the SSE stream of projectID until the server closes it
// or fn returns an error.
func (c *Client) StreamBuild(ctx context.Context, projectID string, fn func(builder.Record) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, buildPath(projectID)+"/stream", nil)
	if err != nil {
		return fmt.Errorf("create stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("stream build: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	return ReadEvents(resp.Body, func(payload json.RawMessage) error {
		var rec builder.Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			return fmt.Errorf("decode build event: %w", err)
		}
		return fn(rec)
	})
}

func (c *Client) ListProjects(ctx context.Context) ([]projects.Project, error) {
	var out []projects.Project
	err := c.doJSON(ctx, http.MethodGet, "/api/projects", nil, &out, http.StatusOK)
	return out, err
}

func (c *Client) CreateProject(ctx context.Context, input projects.CreateProjectInput) (projects.Project, error) {
	var out projects.Project
	err := c.doJSON(ctx, http.MethodPost, "/api/projects", input, &out, http.StatusCreated)
	return out, err
}

func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(projectID), nil, nil, http.StatusNoContent)
}

func (c *Client) ListFiles(ctx context.Context, projectID string) ([]projects.File, error) {
	var out []projects.File
	err := c.doJSON(ctx, http.MethodGet, "/api/projects/"+url.PathEscape(projectID)+"/files", nil, &out, http.StatusOK)
	return out, err
}

// UploadFiles sends local files as one multipart upload.
func (c *Client) UploadFiles(ctx context.Context, projectID string, paths []string) ([]projects.File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, p := range paths {
		if err := addFilePart(mw, p); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/projects/"+url.PathEscape(projectID)+"/files/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload files: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var out []projects.File
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return out, nil
}

func addFilePart(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s: %w", path, err)
	}
	return nil
}

// Ask relays a prompt through the server's assistant endpoint.
func (c *Client) Ask(ctx context.Context, req assistant.Request) (assistant.Response, error) {
	var out assistant.Response
	err := c.doJSON(ctx, http.MethodPost, "/api/ai", req, &out, http.StatusOK)
	return out, err
}

// ParseSSEEvent extracts JSON payloads from SSE streams.
func ParseSSEEvent(lines []string) (json.RawMessage, bool) {
	for _, line := range lines {
		if strings.HasPrefix(line, "data:") {
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			return json.RawMessage(payload), true
		}
	}
	return nil, false
}

// ReadEvents streams SSE events, invoking callback for each completed event.
func ReadEvents(body io.Reader, eventFn func(json.RawMessage) error) error {
	reader := bufio.NewReader(body)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(lines) > 0 {
					if err := dispatchEvent(lines, eventFn); err != nil {
						return err
					}
				}
				return nil
			}
			return err
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			if err := dispatchEvent(lines, eventFn); err != nil {
				return err
			}
			lines = lines[:0]
			continue
		}
		lines = append(lines, trimmed)
	}
}

func dispatchEvent(lines []string, eventFn func(json.RawMessage) error) error {
	if len(lines) == 0 {
		return nil
	}
	payload, ok := ParseSSEEvent(lines)
	if !ok {
		return nil
	}
	return eventFn(payload)
}
