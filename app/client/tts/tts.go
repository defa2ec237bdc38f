// Package tts speaks text through a Deepgram-style synthesis API.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"voicedesk/app/config"
	"voicedesk/app/service/fault"

	"github.com/samber/do"
)

const requestTimeout = 60 * time.Second

type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	model      string
	sampleRate int
}

func NewClient(di *do.Injector) (*Client, error) {
	cfg := do.MustInvoke[*config.Config](di)

	return &Client{
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		baseURL:    strings.TrimSuffix(cfg.TTS.BaseURL, "/"),
		token:      cfg.TTS.Token,
		model:      cfg.TTS.Model,
		sampleRate: cfg.TTS.SampleRate,
	}, nil
}

// Synthesize converts text into a complete WAV buffer.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	body, err := c.SynthesizeStream(ctx, text)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	pcm, err := io.ReadAll(body)
	if err != nil {
		return nil, fault.New(fault.CodeSynthesis, "failed to read synthesized audio: %w", err)
	}

	return WrapWAV(pcm, c.sampleRate), nil
}

// SynthesizeStream returns the raw PCM byte stream as it is produced.
// The caller owns the reader.
func (c *Client) SynthesizeStream(ctx context.Context, text string) (io.ReadCloser, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fault.New(fault.CodeSynthesis, "failed to encode request: %w", err)
	}

	params := url.Values{}
	params.Set("model", c.model)
	params.Set("encoding", "linear16")
	params.Set("sample_rate", strconv.Itoa(c.sampleRate))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/speak?%s", c.baseURL, params.Encode()), bytes.NewReader(payload))
	if err != nil {
		return nil, fault.New(fault.CodeSynthesis, "failed to build request: %w", err)
	}

	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fault.New(fault.CodeSynthesis, "synthesis request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fault.New(fault.CodeSynthesis, "synthesis returned status %d", resp.StatusCode)
	}

	if contentType := resp.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "audio/") {
		resp.Body.Close()
		return nil, fault.New(fault.CodeSynthesis, "synthesis returned non-audio content type %q", contentType)
	}

	return resp.Body, nil
}

func (c *Client) SampleRate() int {
	return c.sampleRate
}
