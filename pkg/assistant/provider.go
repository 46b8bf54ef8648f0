package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	maxTokens     = 1000
	temperature   = 0.7
	anthropicVer  = "2023-06-01"
	imageSize     = "1024x1024"
	imageModel    = "dall-e-3"
	errBodyLimit  = 4 << 10
	respBodyLimit = 8 << 20
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type messagesRequest struct {
	Model     string        `json:"model"`
	System    string        `json:"system,omitempty"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type promptRequest struct {
	Model       string  `json:"model,omitempty"`
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

type textResponse struct {
	Response string `json:"response"`
	Content  string `json:"content"`
	Text     string `json:"text"`
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// call sends one completion request in the wire format of entry.Kind.
func (a *Assistant) call(ctx context.Context, entry Entry, cfg ProviderConfig, system, user string) (string, error) {
	endpoint := entry.Endpoint
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
	}
	if endpoint == "" {
		return "", ErrMissingEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = entry.DefaultModel
	}

	headers := map[string]string{}
	if cfg.APIKey != "" && (entry.RequiresKey || entry.SendsKey) {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	switch entry.Kind {
	case KindChat:
		req := chatRequest{
			Model: model,
			Messages: []chatMessage{
				{Role: "system", Content: system},
				{Role: "user", Content: user},
			},
			MaxTokens:   maxTokens,
			Temperature: temperature,
		}
		var out chatResponse
		if err := a.postJSON(ctx, entry.Name, endpoint, headers, req, &out); err != nil {
			return "", err
		}
		if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
			return fmt.Sprintf("No response from %s", entry.DisplayName), nil
		}
		return out.Choices[0].Message.Content, nil

	case KindMessages:
		delete(headers, "Authorization")
		headers["x-api-key"] = cfg.APIKey
		headers["anthropic-version"] = anthropicVer
		req := messagesRequest{
			Model:     model,
			System:    system,
			Messages:  []chatMessage{{Role: "user", Content: user}},
			MaxTokens: maxTokens,
		}
		var out messagesResponse
		if err := a.postJSON(ctx, entry.Name, endpoint, headers, req, &out); err != nil {
			return "", err
		}
		if len(out.Content) == 0 || out.Content[0].Text == "" {
			return fmt.Sprintf("No response from %s", entry.DisplayName), nil
		}
		return out.Content[0].Text, nil

	case KindGenerate:
		req := generateRequest{
			Model:   model,
			Prompt:  joinPrompt(system, user),
			Options: generateOptions{Temperature: temperature, NumPredict: maxTokens},
		}
		var out textResponse
		if err := a.postJSON(ctx, entry.Name, endpoint, headers, req, &out); err != nil {
			return "", err
		}
		return firstNonEmpty(fmt.Sprintf("No response from %s", entry.DisplayName), out.Response, out.Content), nil

	case KindPrompt:
		req := promptRequest{
			Model:       model,
			Prompt:      joinPrompt(system, user),
			MaxTokens:   maxTokens,
			Temperature: temperature,
		}
		var out textResponse
		if err := a.postJSON(ctx, entry.Name, endpoint, headers, req, &out); err != nil {
			return "", err
		}
		return firstNonEmpty(fmt.Sprintf("No response from %s", entry.DisplayName), out.Response, out.Content, out.Text), nil
	}

	return "", fmt.Errorf("%w: unsupported kind %q", ErrUnknownProvider, entry.Kind)
}

// image requests one generated image and returns its URL.
func (a *Assistant) image(ctx context.Context, entry Entry, cfg ProviderConfig, prompt string) (string, error) {
	if entry.ImageURL == "" {
		return "", fmt.Errorf("%w: %s", ErrImageUnsupported, entry.Name)
	}
	headers := map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	req := imageRequest{Model: imageModel, Prompt: prompt, N: 1, Size: imageSize}

	var out imageResponse
	if err := a.postJSON(ctx, entry.Name, entry.ImageURL, headers, req, &out); err != nil {
		return "", err
	}
	if len(out.Data) == 0 {
		return "", &ProviderError{Provider: entry.Name, StatusCode: http.StatusBadGateway, Body: "no image returned"}
	}
	return out.Data[0].URL, nil
}

func (a *Assistant) postJSON(ctx context.Context, provider, endpoint string, headers map[string]string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
		return &ProviderError{
			Provider:   provider,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(payload)),
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, respBodyLimit)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", provider, err)
	}
	return nil
}

func joinPrompt(system, user string) string {
	if system == "" {
		return user
	}
	return system + "\n\n" + user
}

func firstNonEmpty(fallback string, values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return fallback
}
