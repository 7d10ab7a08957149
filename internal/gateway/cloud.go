package gateway

import (
	"context"
	"fmt"
	"net/http"
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
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CloudProvider talks to a hosted chat-completion API
type CloudProvider struct {
	url        string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewCloudProvider creates a new chat-completion client
func NewCloudProvider(url, model, apiKey string, httpClient *http.Client) *CloudProvider {
	return &CloudProvider{
		url:        url,
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

// Name returns the provider name
func (p *CloudProvider) Name() string {
	return "cloud"
}

// Complete sends prompt as a single user message
func (p *CloudProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: 0,
	}

	var resp chatResponse
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	if err := postJSON(ctx, p.httpClient, p.url, headers, body, &resp); err != nil {
		return "", err
	}

	if resp.Error != nil {
		return "", &providerError{provider: p.Name(), message: resp.Error.Message}
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from %s provider", p.Name())
	}
	return resp.Choices[0].Message.Content, nil
}

// providerError is an error reported in a provider's response body
type providerError struct {
	provider string
	message  string
}

func (e *providerError) Error() string {
	return fmt.Sprintf("%s provider error: %s", e.provider, e.message)
}
