package similarity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/erazemk/najdeno/internal/config"
	"github.com/erazemk/najdeno/internal/model"
)

const judgePrompt = `You compare a lost item report with a found item report and judge how likely they describe the same physical object.
Consider the object kind, brand, distinguishing marks, contents and colour. Ignore differences in wording.
Reply with a JSON object {"score": n} where n is an integer from 0 (different objects) to 100 (certainly the same object).`

// OpenAI asks a chat model to judge whether two reports describe the same
// object. Responses are requested at temperature 0 and rounded to integers,
// but remain a source of non-determinism across model versions.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(cfg config.OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = openai.GPT4oMini
	}

	return &OpenAI{
		client: openai.NewClientWithConfig(clientConfig),
		model:  modelName,
	}, nil
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Score(ctx context.Context, a, b model.Item) (float64, error) {
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: judgePrompt},
			{Role: openai.ChatMessageRoleUser, Content: describe(a) + "\n\n" + describe(b)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		MaxTokens:   20,
		Temperature: 0,
	})
	if err != nil {
		return 0, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return 0, errors.New("no response from OpenAI")
	}

	var verdict struct {
		Score *float64 `json:"score"`
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &verdict); err != nil {
		return 0, fmt.Errorf("parsing verdict %q: %w", content, err)
	}
	if verdict.Score == nil {
		return 0, fmt.Errorf("verdict %q has no score", content)
	}

	return math.Round(math.Max(0, math.Min(100, *verdict.Score))), nil
}

// describe renders an item without its owner or precise location.
func describe(item model.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Report (%s): %s\n", item.Type, item.Name)
	if item.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", item.Description)
	}
	if len(item.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(item.Tags, ", "))
	}
	if item.Color != "" {
		fmt.Fprintf(&b, "Colour: %s\n", item.Color)
	}
	return strings.TrimRight(b.String(), "\n")
}
