// Package stt wraps an OpenAI-compatible audio transcription API.
package stt

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"voicedesk/app/config"
	"voicedesk/app/service/fault"

	"github.com/samber/do"
	"github.com/sashabaranov/go-openai"
)

const requestTimeout = 60 * time.Second

type Client struct {
	api   *openai.Client
	model string
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	clientConfig := openai.DefaultConfig(cfg.STT.Token)
	clientConfig.BaseURL = cfg.STT.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Timeout: requestTimeout,
	}

	return &Client{
		api:   openai.NewClientWithConfig(clientConfig),
		model: cfg.STT.Model,
	}, nil
}

// Transcribe submits one WAV blob and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", fault.New(fault.CodeTranscription, "failed to transcribe audio: %w", err)
	}

	return strings.TrimSpace(resp.Text), nil
}
