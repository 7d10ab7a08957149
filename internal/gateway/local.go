package gateway

import (
	"context"
	"net/http"
	"strings"
)

type localOptions struct {
	Temperature   float64 `json:"temperature"`
	NumPredict    int     `json:"num_predict"`
	TopK          int     `json:"top_k"`
	TopP          float64 `json:"top_p"`
	RepeatPenalty float64 `json:"repeat_penalty"`
	NumCtx        int     `json:"num_ctx"`
}

type localRequest struct {
	Model   string       `json:"model"`
	Prompt  string       `json:"prompt"`
	Stream  bool         `json:"stream"`
	Options localOptions `json:"options"`
}

type localResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// LocalProvider talks to a local model server's generate endpoint
type LocalProvider struct {
	baseURL    string
	model      string
	numCtx     int
	httpClient *http.Client
}

// NewLocalProvider creates a new local model server client
func NewLocalProvider(baseURL, model string, numCtx int, httpClient *http.Client) *LocalProvider {
	if numCtx <= 0 {
		numCtx = 4096
	}
	return &LocalProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		numCtx:     numCtx,
		httpClient: httpClient,
	}
}

// Name returns the provider name
func (p *LocalProvider) Name() string {
	return "local"
}

// Complete sends prompt to the generate endpoint with greedy decoding
func (p *LocalProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body := localRequest{
		Model:  p.model,
		Prompt: prompt,
		Stream: false,
		Options: localOptions{
			Temperature:   0,
			NumPredict:    maxTokens,
			TopK:          1,
			TopP:          0.1,
			RepeatPenalty: 1.0,
			NumCtx:        p.numCtx,
		},
	}

	var resp localResponse
	if err := postJSON(ctx, p.httpClient, p.baseURL+"/api/generate", nil, body, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", &providerError{provider: p.Name(), message: resp.Error}
	}
	return resp.Response, nil
}
