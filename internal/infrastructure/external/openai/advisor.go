package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Config holds the OpenAI advisor settings
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Policy is the plain-text expense policy given to the model
	Policy string
}

// chatClient is the part of *openai.Client the advisor uses
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Advisor implements port.ClaimAdvisor using OpenAI chat completions
type Advisor struct {
	client  chatClient
	model   string
	policy  string
	prompts *PromptConfig
	logger  *zap.Logger
}

// NewAdvisor creates a new OpenAI advisor. A nil prompts uses DefaultPrompts.
func NewAdvisor(cfg Config, prompts *PromptConfig, logger *zap.Logger) *Advisor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return newAdvisor(openai.NewClientWithConfig(clientCfg), cfg, prompts, logger)
}

func newAdvisor(client chatClient, cfg Config, prompts *PromptConfig, logger *zap.Logger) *Advisor {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Advisor{
		client:  client,
		model:   model,
		policy:  cfg.Policy,
		prompts: prompts,
		logger:  logger,
	}
}

type promptData struct {
	Claim         *entity.Claim
	Policy        string
	SubmitterName string
	SubmitterRole string
	Amount        string
	ExpenseDate   string
}

// Advise asks the model for a risk assessment of the claim
func (a *Advisor) Advise(ctx context.Context, claim *entity.Claim, submitter *entity.User) (*port.Advisory, error) {
	data := promptData{
		Claim:       claim,
		Policy:      a.policy,
		Amount:      claim.Amount.StringFixed(2),
		ExpenseDate: claim.ExpenseDate.Format("2006-01-02"),
	}
	if data.Policy == "" {
		data.Policy = "No written policy. Use common business travel and expense norms."
	}
	if submitter != nil {
		data.SubmitterName = submitter.Name
		if data.SubmitterName == "" {
			data.SubmitterName = submitter.Email
		}
		data.SubmitterRole = string(submitter.Role)
	}

	prompt, err := renderTemplate(a.prompts.Advisory.UserTemplate, data)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Requesting advisory review",
		zap.Int64("claim_id", claim.ID),
		zap.String("model", a.model))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: a.prompts.Advisory.Temperature,
		MaxTokens:   a.prompts.Advisory.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: a.prompts.Advisory.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		a.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	advisory, err := parseAdvisory(content)
	if err != nil {
		a.logger.Error("Failed to parse OpenAI response",
			zap.Error(err),
			zap.String("content", content))
		return nil, err
	}

	a.logger.Info("Advisory review completed",
		zap.Int64("claim_id", claim.ID),
		zap.String("risk", advisory.Risk))
	return advisory, nil
}

// parseAdvisory accepts a bare JSON object or one wrapped in prose or code fences
func parseAdvisory(content string) (*port.Advisory, error) {
	var advisory port.Advisory
	if err := json.Unmarshal([]byte(content), &advisory); err != nil {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start < 0 || end <= start {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if err := json.Unmarshal([]byte(content[start:end+1]), &advisory); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	switch risk := strings.ToLower(strings.TrimSpace(advisory.Risk)); risk {
	case "low", "medium", "high":
		advisory.Risk = risk
	default:
		advisory.Risk = "medium"
	}
	advisory.Notes = strings.TrimSpace(advisory.Notes)
	return &advisory, nil
}

var _ port.ClaimAdvisor = (*Advisor)(nil)
