package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyvo/apkforge/backend/pkg/projects"
)

type upstream struct {
	server  *httptest.Server
	headers http.Header
	body    map[string]any
}

func newUpstream(t *testing.T, status int, reply any) *upstream {
	t.Helper()
	u := &upstream{}
	u.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.headers = r.Header.Clone()
		u.body = map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&u.body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(reply)
	}))
	t.Cleanup(u.server.Close)
	return u
}

func newTestAssistant(t *testing.T, entries ...Entry) (*Assistant, *projects.Store) {
	t.Helper()
	store, err := projects.NewStore("")
	require.NoError(t, err)
	reg := NewRegistry()
	for _, e := range entries {
		reg.Set(e)
	}
	return New(reg, store, WithHTTPClient(http.DefaultClient)), store
}

func chatReply(text string) map[string]any {
	return map[string]any{
		"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": text}}},
	}
}

func TestAskValidatesRequest(t *testing.T) {
	a, _ := newTestAssistant(t, Entry{Name: "openai", Kind: KindChat, RequiresKey: true, Endpoint: "http://unused"})

	_, err := a.Ask(context.Background(), Request{Provider: "openai"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = a.Ask(context.Background(), Request{Provider: "nope", Content: "hi"})
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = a.Ask(context.Background(), Request{Provider: "openai", Content: "hi"})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestAskChatCompletions(t *testing.T) {
	u := newUpstream(t, http.StatusOK, chatReply("use buildozer"))
	a, _ := newTestAssistant(t, Entry{Name: "openai", DisplayName: "OpenAI", Kind: KindChat, Endpoint: u.server.URL, DefaultModel: "gpt-4", RequiresKey: true})

	resp, err := a.Ask(context.Background(), Request{
		Provider: "openai",
		Content:  "how do I package?",
		Type:     TypeCode,
		Config:   ProviderConfig{APIKey: "sk-test"},
	})
	require.NoError(t, err)
	assert.Equal(t, "use buildozer", resp.Response)
	assert.Equal(t, "Bearer sk-test", u.headers.Get("Authorization"))
	assert.Equal(t, "gpt-4", u.body["model"])

	msgs, ok := u.body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, codePrompt, msgs[0].(map[string]any)["content"])
	assert.Equal(t, "how do I package?", msgs[1].(map[string]any)["content"])
}

func TestAskEmptyChoicesFallsBack(t *testing.T) {
	u := newUpstream(t, http.StatusOK, map[string]any{"choices": []any{}})
	a, _ := newTestAssistant(t, Entry{Name: "mistral", DisplayName: "Mistral", Kind: KindChat, Endpoint: u.server.URL, RequiresKey: true})

	resp, err := a.Ask(context.Background(), Request{Provider: "mistral", Content: "hi", Config: ProviderConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "No response from Mistral", resp.Response)
}

func TestAskMessagesUsesAPIKeyHeader(t *testing.T) {
	u := newUpstream(t, http.StatusOK, map[string]any{"content": []any{map[string]any{"type": "text", "text": "hello"}}})
	a, _ := newTestAssistant(t, Entry{Name: "anthropic", Kind: KindMessages, Endpoint: u.server.URL, DefaultModel: "claude", RequiresKey: true})

	resp, err := a.Ask(context.Background(), Request{Provider: "anthropic", Content: "hi", Config: ProviderConfig{APIKey: "ak", Model: "override"}})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Response)
	assert.Equal(t, "ak", u.headers.Get("x-api-key"))
	assert.Equal(t, anthropicVer, u.headers.Get("anthropic-version"))
	assert.Empty(t, u.headers.Get("Authorization"))
	assert.Equal(t, "override", u.body["model"])
	assert.Equal(t, chatPrompt, u.body["system"])
}

func TestAskGenerateWithoutKey(t *testing.T) {
	u := newUpstream(t, http.StatusOK, map[string]any{"response": "local answer"})
	a, _ := newTestAssistant(t, Entry{Name: "ollama", Kind: KindGenerate, Endpoint: "http://unused", DefaultModel: "llama2"})

	resp, err := a.Ask(context.Background(), Request{Provider: "ollama", Content: "hi", Config: ProviderConfig{Endpoint: u.server.URL, APIKey: "ignored"}})
	require.NoError(t, err)
	assert.Equal(t, "local answer", resp.Response)
	assert.Empty(t, u.headers.Get("Authorization"))
	assert.Equal(t, false, u.body["stream"])
	assert.Contains(t, u.body["prompt"], "hi")
}

func TestAskCustomRequiresEndpoint(t *testing.T) {
	a, _ := newTestAssistant(t, Entry{Name: "custom", Kind: KindPrompt, SendsKey: true})

	_, err := a.Ask(context.Background(), Request{Provider: "custom", Content: "hi"})
	assert.ErrorIs(t, err, ErrMissingEndpoint)

	u := newUpstream(t, http.StatusOK, map[string]any{"text": "from text"})
	resp, err := a.Ask(context.Background(), Request{Provider: "custom", Content: "hi", Config: ProviderConfig{Endpoint: u.server.URL, APIKey: "tok"}})
	require.NoError(t, err)
	assert.Equal(t, "from text", resp.Response)
	assert.Equal(t, "Bearer tok", u.headers.Get("Authorization"))
}

func TestAskProviderErrorIsTyped(t *testing.T) {
	u := newUpstream(t, http.StatusUnauthorized, map[string]any{"error": "bad key"})
	a, _ := newTestAssistant(t, Entry{Name: "openai", Kind: KindChat, Endpoint: u.server.URL, RequiresKey: true})

	_, err := a.Ask(context.Background(), Request{Provider: "openai", Content: "hi", Config: ProviderConfig{APIKey: "bad"}})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Contains(t, perr.Body, "bad key")
	assert.Contains(t, err.Error(), "openai API error: 401")
}

func TestAskImage(t *testing.T) {
	u := newUpstream(t, http.StatusOK, map[string]any{"data": []any{map[string]any{"url": "https://img/1.png"}}})
	a, _ := newTestAssistant(t,
		Entry{Name: "openai", Kind: KindChat, Endpoint: "http://unused", ImageURL: u.server.URL, RequiresKey: true},
		Entry{Name: "mistral", Kind: KindChat, Endpoint: "http://unused", RequiresKey: true},
	)

	resp, err := a.Ask(context.Background(), Request{Provider: "openai", Content: "an icon", Type: TypeImage, Config: ProviderConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, "https://img/1.png", resp.ImageURL)
	assert.Equal(t, imageModel, u.body["model"])

	_, err = a.Ask(context.Background(), Request{Provider: "mistral", Content: "an icon", Type: TypeImage, Config: ProviderConfig{APIKey: "k"}})
	assert.ErrorIs(t, err, ErrImageUnsupported)
}

func TestEditReadProject(t *testing.T) {
	u := newUpstream(t, http.StatusOK, chatReply("looks fine"))
	a, store := newTestAssistant(t, Entry{Name: "openai", Kind: KindChat, Endpoint: u.server.URL, RequiresKey: true})
	p, err := store.CreateProject(projects.CreateProjectInput{Name: "demo", PackageName: "com.demo"})
	require.NoError(t, err)
	_, err = store.CreateFile(projects.CreateFileInput{ProjectID: p.ID, Name: "main.py", Content: "print('hi')", Type: "python"})
	require.NoError(t, err)

	resp, err := a.Edit(context.Background(), EditRequest{
		Action:       ActionReadProject,
		ProjectID:    p.ID,
		Instructions: "review",
		AIConfig:     ProviderConfig{Provider: "openai", APIKey: "k"},
	})
	require.NoError(t, err)
	assert.Equal(t, "looks fine", resp.Response)
	assert.Empty(t, resp.FileChanges)

	msgs := u.body["messages"].([]any)
	assert.Contains(t, msgs[1].(map[string]any)["content"], "=== main.py ===\nprint('hi')")
}

func TestEditFileRewritesContent(t *testing.T) {
	u := newUpstream(t, http.StatusOK, chatReply("print('bye')"))
	a, store := newTestAssistant(t, Entry{Name: "openai", Kind: KindChat, Endpoint: u.server.URL, RequiresKey: true})
	p, err := store.CreateProject(projects.CreateProjectInput{Name: "demo", PackageName: "com.demo"})
	require.NoError(t, err)
	f, err := store.CreateFile(projects.CreateFileInput{ProjectID: p.ID, Name: "main.py", Content: "print('hi')", Type: "python"})
	require.NoError(t, err)

	resp, err := a.Edit(context.Background(), EditRequest{
		Action:       ActionEditFile,
		ProjectID:    p.ID,
		FileID:       f.ID,
		Instructions: "say bye",
		AIConfig:     ProviderConfig{Provider: "openai", APIKey: "k"},
	})
	require.NoError(t, err)
	require.Len(t, resp.FileChanges, 1)
	assert.Equal(t, FileChange{FileID: f.ID, FileName: "main.py", Action: "modified"}, resp.FileChanges[0])

	got, err := store.GetFile(f.ID)
	require.NoError(t, err)
	assert.Equal(t, "print('bye')", got.Content)
	assert.Equal(t, int64(len("print('bye')")), got.Size)
}

func TestEditCreateFile(t *testing.T) {
	u := newUpstream(t, http.StatusOK, chatReply("FILENAME: utils.py\nCONTENT:\ndef add(a, b):\n    return a + b\n"))
	a, store := newTestAssistant(t, Entry{Name: "openai", Kind: KindChat, Endpoint: u.server.URL, RequiresKey: true})
	p, err := store.CreateProject(projects.CreateProjectInput{Name: "demo", PackageName: "com.demo"})
	require.NoError(t, err)

	resp, err := a.Edit(context.Background(), EditRequest{
		Action:       ActionCreateFile,
		ProjectID:    p.ID,
		Instructions: "add helper",
		AIConfig:     ProviderConfig{Provider: "openai", APIKey: "k"},
	})
	require.NoError(t, err)
	require.Len(t, resp.FileChanges, 1)
	assert.Equal(t, "created", resp.FileChanges[0].Action)

	files := store.ListFiles(p.ID)
	require.Len(t, files, 1)
	assert.Equal(t, "utils.py", files[0].Name)
	assert.Equal(t, "python", files[0].Type)
	assert.Equal(t, "def add(a, b):\n    return a + b", files[0].Content)
}

func TestEditErrors(t *testing.T) {
	a, store := newTestAssistant(t, Entry{Name: "openai", Kind: KindChat, Endpoint: "http://unused", RequiresKey: true})
	p, err := store.CreateProject(projects.CreateProjectInput{Name: "demo", PackageName: "com.demo"})
	require.NoError(t, err)
	cfg := ProviderConfig{Provider: "openai", APIKey: "k"}

	_, err = a.Edit(context.Background(), EditRequest{Action: ActionReadProject, ProjectID: "missing", Instructions: "x", AIConfig: cfg})
	assert.ErrorIs(t, err, projects.ErrProjectNotFound)

	_, err = a.Edit(context.Background(), EditRequest{Action: ActionEditFile, ProjectID: p.ID, FileID: "missing", Instructions: "x", AIConfig: cfg})
	assert.ErrorIs(t, err, projects.ErrFileNotFound)

	_, err = a.Edit(context.Background(), EditRequest{Action: "delete_everything", ProjectID: p.ID, Instructions: "x", AIConfig: cfg})
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = a.Edit(context.Background(), EditRequest{Action: ActionReadProject, ProjectID: p.ID, Instructions: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestParseCreatedFile(t *testing.T) {
	name, content, ok := ParseCreatedFile("Sure!\nFILENAME: app/config.json\nCONTENT:\n{\"a\": 1}")
	require.True(t, ok)
	assert.Equal(t, "app/config.json", name)
	assert.Equal(t, "{\"a\": 1}", content)

	_, _, ok = ParseCreatedFile("I could not decide on a file.")
	assert.False(t, ok)
}

func TestDefaultRegistryProviders(t *testing.T) {
	reg := DefaultRegistry()
	assert.Equal(t, []string{"anthropic", "custom", "llama-maverick", "mistral", "ollama", "openai", "together"}, reg.Names())

	openai, ok := reg.Get("openai")
	require.True(t, ok)
	assert.True(t, openai.RequiresKey)
	assert.NotEmpty(t, openai.ImageURL)

	ollama, ok := reg.Get("ollama")
	require.True(t, ok)
	assert.False(t, ollama.RequiresKey)
}
