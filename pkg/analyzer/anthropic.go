// Package analyzer implements the analyzer port against the Anthropic
// messages API.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/painscope/painscope/pkg/config"
	"github.com/painscope/painscope/pkg/models"
)

const systemPrompt = `You are a product researcher. You receive Hacker News stories and
comments about a topic and respond with STRICT JSON only, no prose, no
markdown fences, matching exactly this shape:
{"summary": string,
 "problemClusters": [{"title": string, "description": string,
   "severity": number 0-10, "mentionCount": integer,
   "examples": [string]}],
 "productIdeas": [{"title": string, "description": string,
   "targetProblem": string, "impactScore": number 0-10}]}
Each examples entry must be a verbatim excerpt of a provided comment.
Group complaints into at most 10 clusters ordered by severity.`

// Client calls the Anthropic API to cluster discussions into pain-point
// themes.
type Client struct {
	client    sdk.Client
	model     string
	maxTokens int64
}

// NewClient creates a Client from configuration.
func NewClient(cfg config.AnalyzerConfig) *Client {
	return &Client{
		client:    sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}
}

// Analyze runs one analysis call. A malformed response is returned as an
// error; the caller owns retry policy.
func (c *Client) Analyze(ctx context.Context, topic string, payload models.AnalysisPayload) (*models.Analysis, error) {
	userPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("analyzer: marshal payload: %w", err)
	}

	prompt := fmt.Sprintf("Topic: %s\n\nDiscussions:\n%s", topic, userPayload)

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analyzer: create message: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		text.WriteString(block.Text)
	}

	analysis, err := ParseAnalysis(text.String())
	if err != nil {
		return nil, err
	}
	analysis.Model = string(msg.Model)
	analysis.TokensUsed = int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	return analysis, nil
}

// ParseAnalysis decodes and validates the model's JSON response. Markdown
// fences and surrounding prose are tolerated; structural violations are
// not.
func ParseAnalysis(raw string) (*models.Analysis, error) {
	jsonText := extractJSON(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("analyzer: response contains no JSON object")
	}

	var analysis models.Analysis
	dec := json.NewDecoder(strings.NewReader(jsonText))
	if err := dec.Decode(&analysis); err != nil {
		return nil, fmt.Errorf("analyzer: invalid response JSON: %w", err)
	}

	if strings.TrimSpace(analysis.Summary) == "" {
		return nil, fmt.Errorf("analyzer: response missing summary")
	}
	for i := range analysis.ProblemClusters {
		c := &analysis.ProblemClusters[i]
		if strings.TrimSpace(c.Title) == "" {
			return nil, fmt.Errorf("analyzer: cluster %d missing title", i)
		}
		c.Severity = clamp(c.Severity, 0, 10)
		if c.MentionCount < 0 {
			c.MentionCount = 0
		}
	}
	for i := range analysis.ProductIdeas {
		idea := &analysis.ProductIdeas[i]
		if strings.TrimSpace(idea.Title) == "" {
			return nil, fmt.Errorf("analyzer: idea %d missing title", i)
		}
		idea.ImpactScore = clamp(idea.ImpactScore, 0, 10)
	}
	return &analysis, nil
}

// extractJSON returns the outermost JSON object in raw, tolerating
// ```json fences and leading/trailing prose.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
