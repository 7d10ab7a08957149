package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/leadscout/hiring-feed-collector/internal/models"
)

// Output caps per call kind
const (
	ClassifyMaxTokens  = 50
	TitleMaxTokens     = 150
	PositionsMaxTokens = 100
)

const (
	// UnknownField is used when a title or company cannot be extracted
	UnknownField = "Unknown"
	// CompanyAccountTitle is the title given to posts made by company pages
	CompanyAccountTitle = "Company Account"
	// NoPositionsFound is the answer the positions prompt asks for when nothing matches
	NoPositionsFound = "None found in post"
)

// DefaultPromptTemplate is the classification prompt used when none is stored
const DefaultPromptTemplate = `You are screening social media posts for recruiting leads.
Answer YES only if the author is actively hiring or announcing an open role
at their company. Answer NO for job seekers, people celebrating a new job,
generic advice, or promotional content.

Author headline: {{headline}}

Post:
{{post}}

Answer with exactly one word: YES or NO.`

const titlePrompt = `Extract the author's job title and company from this social media post.
Respond with JSON only, in the form {"title": "...", "company": "..."}.
Use "Unknown" for anything you cannot determine.

Author: %s
Headline: %s

Post:
%s`

const positionsPrompt = `List the job titles this post is hiring for, as a comma-separated list.
If the post does not name any specific position, reply exactly: None found in post

Post:
%s`

var (
	companyAccountRe = regexp.MustCompile(`^\s*(.+?)\s*[•·]\s*[\d.,]+\s*[KkMm]?\s+followers?\b`)
	titleFieldRe     = regexp.MustCompile(`"title"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	companyFieldRe   = regexp.MustCompile(`"company"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// Gateway classifies and enriches items through a single provider
type Gateway struct {
	provider    Provider
	template    string
	callTimeout time.Duration
}

// NewGateway creates a new gateway. An empty template uses DefaultPromptTemplate.
func NewGateway(provider Provider, template string, callTimeout time.Duration) *Gateway {
	if strings.TrimSpace(template) == "" {
		template = DefaultPromptTemplate
	}
	return &Gateway{
		provider:    provider,
		template:    template,
		callTimeout: callTimeout,
	}
}

// Classify reports whether the item is a hiring signal
func (g *Gateway) Classify(ctx context.Context, item models.Item) (bool, error) {
	out, err := g.complete(ctx, BuildClassifyPrompt(g.template, item), ClassifyMaxTokens)
	if err != nil {
		return false, err
	}
	return normalizeAnswer(out) == "YES", nil
}

// Enrich extracts title, company and positions for a hiring item
func (g *Gateway) Enrich(ctx context.Context, item models.Item) (models.Enrichment, error) {
	var enrichment models.Enrichment

	if company, ok := DetectCompanyAccount(item.Headline); ok {
		enrichment.RoleTitle = CompanyAccountTitle
		enrichment.Organization = company
	} else {
		prompt := fmt.Sprintf(titlePrompt, item.DisplayName, item.Headline, item.BodyText)
		out, err := g.complete(ctx, prompt, TitleMaxTokens)
		if err != nil {
			return models.Enrichment{}, fmt.Errorf("title extraction: %w", err)
		}
		enrichment.RoleTitle, enrichment.Organization = ParseTitleCompany(out)
	}

	positions, err := g.positions(ctx, item.BodyText)
	if err != nil {
		return models.Enrichment{}, fmt.Errorf("position extraction: %w", err)
	}
	enrichment.PositionsMentioned = positions

	return enrichment, nil
}

func (g *Gateway) positions(ctx context.Context, body string) (string, error) {
	if strings.TrimSpace(body) == "" {
		return "", nil
	}
	out, err := g.complete(ctx, fmt.Sprintf(positionsPrompt, body), PositionsMaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (g *Gateway) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.callTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := g.provider.Complete(ctx, prompt, maxTokens)
	zap.L().Debug("gateway: provider call",
		zap.String("provider", g.provider.Name()),
		zap.Int("max_tokens", maxTokens),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	if err != nil {
		return "", fmt.Errorf("%s provider: %w", g.provider.Name(), err)
	}
	return out, nil
}

// BuildClassifyPrompt fills the headline and post placeholders of template.
// A template without a post placeholder gets the item appended.
func BuildClassifyPrompt(template string, item models.Item) string {
	headline := item.Headline
	if headline == "" {
		headline = "(none)"
	}

	hasPost := strings.Contains(template, "{{post}}")
	prompt := strings.NewReplacer(
		"{{headline}}", headline,
		"{{post}}", item.BodyText,
	).Replace(template)

	if !hasPost {
		prompt += "\n\nAuthor headline: " + headline + "\n\nPost:\n" + item.BodyText
	}
	return prompt
}

// DetectCompanyAccount recognises headlines of the form "<name> • <n> followers"
func DetectCompanyAccount(headline string) (string, bool) {
	m := companyAccountRe.FindStringSubmatch(headline)
	if m == nil {
		return "", false
	}
	name := strings.TrimSpace(m[1])
	return name, name != ""
}

// ParseTitleCompany reads a {title, company} answer, tolerating markdown
// fences and malformed JSON. Missing values become UnknownField.
func ParseTitleCompany(raw string) (title, company string) {
	cleaned := cleanMarkdownJSON(raw)

	var parsed struct {
		Title   string `json:"title"`
		Company string `json:"company"`
	}
	if err := json.Unmarshal([]byte(extractObject(cleaned)), &parsed); err == nil {
		title, company = parsed.Title, parsed.Company
	} else {
		if m := titleFieldRe.FindStringSubmatch(cleaned); m != nil {
			title = unescape(m[1])
		}
		if m := companyFieldRe.FindStringSubmatch(cleaned); m != nil {
			company = unescape(m[1])
		}
	}

	return orUnknown(title), orUnknown(company)
}

// cleanMarkdownJSON removes backticks and "json" prefix if the model wraps its answer
func cleanMarkdownJSON(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```json") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimSuffix(content, "```")
	} else if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
	}
	return strings.TrimSpace(content)
}

// extractObject returns the outermost {...} span of s, or s itself
func extractObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return UnknownField
	}
	return s
}

// normalizeAnswer trims and upper-cases a provider answer. Casers hold state,
// so one is created per call.
func normalizeAnswer(out string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(out))
}
