package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/leadscout/hiring-feed-collector/internal/config"
	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// ErrMissingCredential is returned when the selected provider needs a credential that is not configured
var ErrMissingCredential = errors.New("gateway: missing provider credential")

// Provider completes a prompt with deterministic decoding
type Provider interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
	Name() string
}

// NewProvider builds the provider named by selection. Selection values
// override the configured defaults.
func NewProvider(selection models.ProviderSelection, cfg config.GatewayConfig) (Provider, error) {
	httpClient := &http.Client{}

	switch selection.Kind {
	case models.ProviderLocal:
		model := selection.Model
		if model == "" {
			model = cfg.LocalModel
		}
		return NewLocalProvider(cfg.LocalURL, model, cfg.NumCtx, httpClient), nil
	case models.ProviderCloud:
		apiKey := selection.APIKey
		if apiKey == "" {
			apiKey = cfg.CloudAPIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("%w: cloud provider requires an API key", ErrMissingCredential)
		}
		model := selection.Model
		if model == "" {
			model = cfg.CloudModel
		}
		return NewCloudProvider(cfg.CloudURL, model, apiKey, httpClient), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", selection.Kind)
	}
}

// postJSON sends body to url and decodes a 200 response into out
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
