package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/leadscout/hiring-feed-collector/internal/config"
	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// MockProvider is a mock implementation of the Provider interface
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	args := m.Called(ctx, prompt, maxTokens)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) Name() string {
	return "mock"
}

// newKeywordLocalServer answers YES to classification prompts whose post mentions hiring
func newKeywordLocalServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/generate", r.URL.Path)

		var req localRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, 0.0, req.Options.Temperature)
		assert.Equal(t, 1, req.Options.TopK)
		assert.Equal(t, 4096, req.Options.NumCtx)

		post := req.Prompt[strings.Index(req.Prompt, "Post:"):]
		answer := " no\n"
		if strings.Contains(strings.ToLower(post), "we are hiring") {
			answer = " yes \n"
		}
		json.NewEncoder(w).Encode(localResponse{Response: answer})
	}))
}

func TestClassify_HiringScenarios(t *testing.T) {
	var calls atomic.Int32
	server := newKeywordLocalServer(t, &calls)
	defer server.Close()

	g := NewGateway(NewLocalProvider(server.URL, "llama3.2", 4096, server.Client()), "", time.Second)

	hiring, err := g.Classify(context.Background(), models.Item{
		BodyText: "We are hiring a Senior Software Engineer, apply now!",
	})
	require.NoError(t, err)
	assert.True(t, hiring)

	hiring, err = g.Classify(context.Background(), models.Item{
		BodyText: "I'm open to work, laid off last month",
	})
	require.NoError(t, err)
	assert.False(t, hiring)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClassify_OnlyExactYes(t *testing.T) {
	tests := []struct {
		answer string
		want   bool
	}{
		{"YES", true},
		{"  yes\n", true},
		{"Yes", true},
		{"YES.", false},
		{"Yes, this is hiring", false},
		{"NO", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.answer, func(t *testing.T) {
			provider := new(MockProvider)
			provider.On("Complete", mock.Anything, mock.Anything, ClassifyMaxTokens).Return(tt.answer, nil)

			got, err := NewGateway(provider, "", 0).Classify(context.Background(), models.Item{BodyText: "post"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_ProviderErrorPropagates(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

	_, err := NewGateway(provider, "", 0).Classify(context.Background(), models.Item{BodyText: "post"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestClassify_CallTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	g := NewGateway(NewLocalProvider(server.URL, "m", 0, server.Client()), "", 50*time.Millisecond)

	start := time.Now()
	_, err := g.Classify(context.Background(), models.Item{BodyText: "post"})
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestEnrich_CompanyAccount(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Complete", mock.Anything, mock.Anything, PositionsMaxTokens).Return(" Backend Engineer, SRE ", nil)

	g := NewGateway(provider, "", 0)
	enrichment, err := g.Enrich(context.Background(), models.Item{
		DisplayName: "Acme Corp",
		Headline:    "Acme Corp • 1,234 followers",
		BodyText:    "We're growing! Join our platform team.",
	})
	require.NoError(t, err)

	assert.Equal(t, "Company Account", enrichment.RoleTitle)
	assert.Equal(t, "Acme Corp", enrichment.Organization)
	assert.Equal(t, "Backend Engineer, SRE", enrichment.PositionsMentioned)
	provider.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything, TitleMaxTokens)
}

func TestEnrich_TitleCompanyAndEmptyBody(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Complete", mock.Anything, mock.Anything, TitleMaxTokens).
		Return("```json\n{\"title\": \"Head of Talent\", \"company\": \"Globex\"}\n```", nil)

	g := NewGateway(provider, "", 0)
	enrichment, err := g.Enrich(context.Background(), models.Item{
		DisplayName: "Jane Doe",
		Headline:    "Head of Talent at Globex",
	})
	require.NoError(t, err)

	assert.Equal(t, "Head of Talent", enrichment.RoleTitle)
	assert.Equal(t, "Globex", enrichment.Organization)
	assert.Equal(t, "", enrichment.PositionsMentioned)
	provider.AssertNumberOfCalls(t, "Complete", 1)
}

func TestEnrich_PositionsError(t *testing.T) {
	provider := new(MockProvider)
	provider.On("Complete", mock.Anything, mock.Anything, TitleMaxTokens).Return(`{"title":"CTO","company":"Initech"}`, nil)
	provider.On("Complete", mock.Anything, mock.Anything, PositionsMaxTokens).Return("", errors.New("rate limited"))

	_, err := NewGateway(provider, "", 0).Enrich(context.Background(), models.Item{BodyText: "hiring"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "position extraction")
}

func TestDetectCompanyAccount(t *testing.T) {
	tests := []struct {
		headline string
		want     string
		ok       bool
	}{
		{"Acme Corp • 1,234 followers", "Acme Corp", true},
		{"Globex · 12K followers", "Globex", true},
		{"Initech • 1.2M followers", "Initech", true},
		{"Umbrella • 1 follower", "Umbrella", true},
		{"Senior Recruiter at Acme Corp", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.headline, func(t *testing.T) {
			got, ok := DetectCompanyAccount(tt.headline)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTitleCompany(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantTitle   string
		wantCompany string
	}{
		{"plain json", `{"title":"CTO","company":"Initech"}`, "CTO", "Initech"},
		{"fenced json", "```json\n{\"title\":\"CTO\",\"company\":\"Initech\"}\n```", "CTO", "Initech"},
		{"chatty prefix", `Sure! {"title": "VP Eng", "company": "Hooli"}`, "VP Eng", "Hooli"},
		{"regex fallback", `{"title": "Lead Dev", "company": "Pied Piper",}`, "Lead Dev", "Pied Piper"},
		{"partial fields", `"title": "Recruiter" and nothing else`, "Recruiter", "Unknown"},
		{"empty values", `{"title":"","company":" "}`, "Unknown", "Unknown"},
		{"garbage", `I cannot help with that`, "Unknown", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, company := ParseTitleCompany(tt.raw)
			assert.Equal(t, tt.wantTitle, title)
			assert.Equal(t, tt.wantCompany, company)
		})
	}
}

func TestBuildClassifyPrompt(t *testing.T) {
	item := models.Item{Headline: "Recruiter", BodyText: "Join us"}

	prompt := BuildClassifyPrompt("H={{headline}} P={{post}}", item)
	assert.Equal(t, "H=Recruiter P=Join us", prompt)

	prompt = BuildClassifyPrompt("Is this hiring?", item)
	assert.True(t, strings.HasPrefix(prompt, "Is this hiring?"))
	assert.Contains(t, prompt, "Join us")
}

func TestCloudProvider_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama-3.3-70b-versatile", req.Model)
		assert.Equal(t, 50, req.MaxTokens)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Write([]byte(`{"choices":[{"message":{"content":"YES"}}]}`))
	}))
	defer server.Close()

	p := NewCloudProvider(server.URL, "llama-3.3-70b-versatile", "secret", server.Client())
	out, err := p.Complete(context.Background(), "prompt", ClassifyMaxTokens)
	require.NoError(t, err)
	assert.Equal(t, "YES", out)
}

func TestCloudProvider_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	p := NewCloudProvider(server.URL, "m", "k", server.Client())
	_, err := p.Complete(context.Background(), "prompt", 10)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestNewProvider(t *testing.T) {
	cfg := config.GatewayConfig{
		LocalURL:   "http://localhost:11434",
		LocalModel: "llama3.2",
		CloudURL:   "https://example.com/v1/chat/completions",
		CloudModel: "big-model",
	}

	p, err := NewProvider(models.ProviderSelection{Kind: models.ProviderLocal}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name())

	_, err = NewProvider(models.ProviderSelection{Kind: models.ProviderCloud}, cfg)
	assert.ErrorIs(t, err, ErrMissingCredential)

	p, err = NewProvider(models.ProviderSelection{Kind: models.ProviderCloud, APIKey: "k"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "cloud", p.Name())

	_, err = NewProvider(models.ProviderSelection{Kind: "psychic"}, cfg)
	assert.Error(t, err)
}
