// Package classify labels ingested cases with industry categories using an
// LLM collaborator.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/peer-digital/medla-projects/internal/config"
	"github.com/peer-digital/medla-projects/internal/errors"
	"github.com/peer-digital/medla-projects/internal/logging"
	"github.com/peer-digital/medla-projects/internal/models"
)

// Categories is the closed category set. Replies outside it clamp to "Other".
var Categories = []string{"Energy", "Manufacturing", "Infrastructure", "Resource Extraction", "Other"}

// CategoryError marks a record whose classification failed; it never counts
// as a successful label and the record stays eligible for re-classification.
const CategoryError = "Error"

// Classification is one case's label set
type Classification struct {
	PrimaryCategory string
	Confidence      float64
	Reasoning       string
	ProjectPhase    *string
	IsMedlaSuitable *bool
	PotentialJobs   []string
	Metadata        map[string]interface{}
}

// Failed reports whether the classification is an error marker
func (c *Classification) Failed() bool {
	return c.PrimaryCategory == CategoryError
}

// Classifier labels one case
type Classifier interface {
	Classify(ctx context.Context, c *models.Case) (*Classification, error)
}

// OpenAIClassifier classifies cases through the OpenAI chat API. A shared
// rate limiter paces requests across concurrent workers.
type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// NewOpenAIClassifier creates a classifier from configuration
func NewOpenAIClassifier(cfg *config.ClassifyConfig) (*OpenAIClassifier, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewInvalidInputError("OPENAI_API_KEY is not set")
	}

	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = 50
	}

	return &OpenAIClassifier{
		client:  openai.NewClient(cfg.APIKey),
		model:   cfg.Model,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 5),
	}, nil
}

// Classify labels one case. A quota-exhausted upstream returns a quota error
// the caller must treat as terminal for the whole run; a malformed reply
// returns an Error-marked classification, not an error.
func (o *OpenAIClassifier) Classify(ctx context.Context, c *models.Case) (*Classification, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You categorize industrial projects. Be concise.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(c),
			},
		},
		Temperature: 0.3,
		MaxTokens:   150,
	})
	if err != nil {
		if isQuotaExhausted(err) {
			return nil, errors.NewQuotaExceededError(err)
		}
		return nil, errors.NewTransientError("classification request failed", err)
	}

	if len(resp.Choices) == 0 {
		return parseFailure("empty completion", ""), nil
	}

	content := resp.Choices[0].Message.Content
	classification, err := parseReply(content)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("caseNumber", c.CaseNumber).
			Warn("Unparseable classification reply")
		return parseFailure("failed to parse response", content), nil
	}

	return classification, nil
}

// buildPrompt assembles a compact prompt from the case's text fields
func buildPrompt(c *models.Case) string {
	text := c.Title
	if c.Description != nil {
		text += ". " + *c.Description
	}
	if c.DecisionSummary != nil {
		text += ". " + *c.DecisionSummary
	}

	return fmt.Sprintf(`Categorize as one of: %s. Return JSON only:
%s

Format: {"primary_category": "category", "confidence": 0.0-1.0, "reasoning": "brief", "project_phase": "planning|construction|operation|unknown", "is_medla_suitable": true|false, "potential_jobs": ["job", ...]}`,
		strings.Join(Categories, ", "), text)
}

type classificationReply struct {
	PrimaryCategory string   `json:"primary_category"`
	Confidence      float64  `json:"confidence"`
	Reasoning       string   `json:"reasoning"`
	ProjectPhase    string   `json:"project_phase"`
	IsMedlaSuitable *bool    `json:"is_medla_suitable"`
	PotentialJobs   []string `json:"potential_jobs"`
}

func parseReply(content string) (*Classification, error) {
	cleaned := stripFences(content)

	var reply classificationReply
	if err := json.Unmarshal([]byte(cleaned), &reply); err != nil {
		return nil, err
	}

	classification := &Classification{
		PrimaryCategory: clampCategory(reply.PrimaryCategory),
		Confidence:      clampConfidence(reply.Confidence),
		Reasoning:       reply.Reasoning,
		IsMedlaSuitable: reply.IsMedlaSuitable,
		PotentialJobs:   reply.PotentialJobs,
		Metadata:        map[string]interface{}{"reasoning": reply.Reasoning},
	}
	if reply.ProjectPhase != "" && reply.ProjectPhase != "unknown" {
		phase := reply.ProjectPhase
		classification.ProjectPhase = &phase
	}

	return classification, nil
}

// stripFences removes a surrounding markdown code fence, with or without a
// "json" language tag.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasPrefix(content, "```") {
		if idx := strings.Index(content, "\n"); idx >= 0 {
			content = content[idx+1:]
		} else {
			content = strings.TrimPrefix(content, "```")
		}
		if idx := strings.LastIndex(content, "```"); idx >= 0 {
			content = content[:idx]
		}
		content = strings.TrimSpace(content)
	}
	content = strings.TrimPrefix(content, "json")
	return strings.TrimSpace(content)
}

func clampCategory(category string) string {
	for _, known := range Categories {
		if category == known {
			return category
		}
	}
	return "Other"
}

func clampConfidence(confidence float64) float64 {
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

func parseFailure(message, raw string) *Classification {
	metadata := map[string]interface{}{"error": message}
	if raw != "" {
		metadata["raw_response"] = raw
	}
	return &Classification{
		PrimaryCategory: CategoryError,
		Confidence:      0,
		Metadata:        metadata,
	}
}

// isQuotaExhausted distinguishes a hard quota condition from an ordinary
// rate-limit reply, which the caller may retry.
func isQuotaExhausted(err error) bool {
	message := err.Error()
	return strings.Contains(message, "insufficient_quota") ||
		strings.Contains(message, "exceeded your current quota")
}
