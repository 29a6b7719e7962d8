package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptConfig holds the prompt and model parameters of the advisory review
type PromptConfig struct {
	Advisory struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"advisory"`
}

const defaultSystemPrompt = `You review employee expense claims against company policy before human approval.
You never approve or reject. Respond with a JSON object {"risk": "low"|"medium"|"high", "notes": "..."}.`

const defaultUserTemplate = `Company policy:
{{.Policy}}

Claim #{{.Claim.ID}}
Submitter: {{.SubmitterName}} ({{.SubmitterRole}})
Category: {{.Claim.Category}}
Amount: {{.Amount}}
Expense date: {{.ExpenseDate}}
Description: {{.Claim.Description}}`

// DefaultPrompts returns the built-in advisory prompts
func DefaultPrompts() *PromptConfig {
	var p PromptConfig
	p.Advisory.Temperature = 0.2
	p.Advisory.MaxTokens = 400
	p.Advisory.System = defaultSystemPrompt
	p.Advisory.UserTemplate = defaultUserTemplate
	return &p
}

// LoadPrompts loads prompt configuration from a YAML file.
// Missing fields keep their defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	prompts := DefaultPrompts()
	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	return prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
