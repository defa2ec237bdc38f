// Package llm wraps an OpenAI-compatible chat completion API.
package llm

import (
	"context"
	"net/http"
	"time"

	"voicedesk/app/config"
	"voicedesk/app/service/fault"

	"github.com/sashabaranov/go-openai"
)

const requestTimeout = 30 * time.Second

const (
	RoleSystem = openai.ChatMessageRoleSystem
	RoleUser   = openai.ChatMessageRoleUser
)

type Message struct {
	Role    string
	Content string
}

type Options struct {
	Temperature float32
	MaxTokens   int
}

type Client struct {
	api   *openai.Client
	model string
}

func New(cfg config.ModelConfig) *Client {
	clientConfig := openai.DefaultConfig(cfg.Token)

	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: requestTimeout,
	}

	return &Client{
		api:   openai.NewClientWithConfig(clientConfig),
		model: cfg.Model,
	}
}

func (c *Client) Complete(ctx context.Context, messages []Message, opts Options) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	apiMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		apiMessages = append(apiMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := c.api.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model:               c.model,
			Messages:            apiMessages,
			Temperature:         opts.Temperature,
			MaxCompletionTokens: opts.MaxTokens,
		},
	)
	if err != nil {
		return "", fault.New(fault.CodeCompletion, "failed to create chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fault.New(fault.CodeCompletion, "no chat completion found")
	}

	return resp.Choices[0].Message.Content, nil
}
