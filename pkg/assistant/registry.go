package assistant

import (
	"sort"
	"sync"
)

// Kind selects the wire format a provider speaks.
type Kind string

const (
	// KindChat is the OpenAI-style /chat/completions format.
	KindChat Kind = "chat"
	// KindMessages is the Anthropic messages format.
	KindMessages Kind = "messages"
	// KindGenerate is the Ollama-style /api/generate format.
	KindGenerate Kind = "generate"
	// KindPrompt is a bare {model, prompt} endpoint supplied by the caller.
	KindPrompt Kind = "prompt"
)

// Entry describes one upstream text generation provider.
type Entry struct {
	Name         string
	DisplayName  string
	Kind         Kind
	Endpoint     string
	ImageURL     string
	DefaultModel string
	RequiresKey  bool
	// SendsKey forwards an optional key as a bearer token on keyless providers.
	SendsKey bool
}

// Registry offers a threadsafe provider lookup.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]Entry{}}
}

// DefaultRegistry returns the public providers the studio proxies to.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Set(Entry{
		Name:         "openai",
		DisplayName:  "OpenAI",
		Kind:         KindChat,
		Endpoint:     "https://api.openai.com/v1/chat/completions",
		ImageURL:     "https://api.openai.com/v1/images/generations",
		DefaultModel: "gpt-4",
		RequiresKey:  true,
	})
	r.Set(Entry{
		Name:         "mistral",
		DisplayName:  "Mistral",
		Kind:         KindChat,
		Endpoint:     "https://api.mistral.ai/v1/chat/completions",
		DefaultModel: "mistral-large-latest",
		RequiresKey:  true,
	})
	r.Set(Entry{
		Name:         "together",
		DisplayName:  "Together AI",
		Kind:         KindChat,
		Endpoint:     "https://api.together.xyz/v1/chat/completions",
		DefaultModel: "mistralai/Mixtral-8x7B-Instruct-v0.1",
		RequiresKey:  true,
	})
	r.Set(Entry{
		Name:         "anthropic",
		DisplayName:  "Anthropic",
		Kind:         KindMessages,
		Endpoint:     "https://api.anthropic.com/v1/messages",
		DefaultModel: "claude-3-sonnet-20240229",
		RequiresKey:  true,
	})
	r.Set(Entry{
		Name:         "ollama",
		DisplayName:  "Ollama",
		Kind:         KindGenerate,
		Endpoint:     "http://localhost:11434/api/generate",
		DefaultModel: "llama2",
	})
	r.Set(Entry{
		Name:         "llama-maverick",
		DisplayName:  "LLaMA Maverick",
		Kind:         KindGenerate,
		Endpoint:     "http://localhost:11434/api/generate",
		DefaultModel: "maverick-4",
		SendsKey:     true,
	})
	r.Set(Entry{
		Name:        "custom",
		DisplayName: "custom AI",
		Kind:        KindPrompt,
		SendsKey:    true,
	})
	return r
}

// Set stores or updates a registry entry.
func (r *Registry) Set(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Name] = entry
}

// Get retrieves a registry entry by name and a boolean indicating its presence.
func (r *Registry) Get(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[name]
	return entry, ok
}

// Names lists registered providers in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
