package config

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log     Log     `yaml:"log"`
	Server  Server  `yaml:"server"`
	Auth    Auth    `yaml:"auth"`
	DB      DB      `yaml:"db"`
	LLM     LLM     `yaml:"llm"`
	STT     STT     `yaml:"stt"`
	TTS     TTS     `yaml:"tts"`
	Storage Storage `yaml:"storage"`
}

type Server struct {
	// Listen address of the HTTP/WebSocket server
	Addr string `yaml:"addr" example:":8080"`
}

type Auth struct {
	// HMAC secret for bearer token verification
	Secret string `yaml:"secret" validate:"required"`
}

type LLM struct {
	Refine   ModelConfig `yaml:"refine" validate:"required"`
	Classify ModelConfig `yaml:"classify" validate:"required"`
	Handle   ModelConfig `yaml:"handle" validate:"required"`
	Validate ModelConfig `yaml:"validate" validate:"required"`
}

type ModelConfig struct {
	// OpenAI-compatible base url
	BaseURL string `yaml:"base_url" example:"https://api.cerebras.ai/v1" validate:"required"`
	// API token
	Token string `yaml:"token" validate:"required"`
	// Model name
	Model string `yaml:"model" example:"llama-3.3-70b" validate:"required"`
}

type STT struct {
	// OpenAI-compatible base url of the transcription API
	BaseURL string `yaml:"base_url" example:"https://api.groq.com/openai/v1" validate:"required"`
	// API token
	Token string `yaml:"token" validate:"required"`
	// Transcription model
	Model string `yaml:"model" example:"whisper-large-v3-turbo"`
}

type TTS struct {
	// Base url of the speech synthesis API
	BaseURL string `yaml:"base_url" example:"https://api.deepgram.com"`
	// API token
	Token string `yaml:"token" validate:"required"`
	// Voice model
	Model string `yaml:"model" example:"aura-luna-en"`
	// PCM sample rate of synthesized audio
	SampleRate int `yaml:"sample_rate" example:"16000"`
}

type Storage struct {
	// S3 bucket for synthesized audio
	Bucket string `yaml:"bucket" validate:"required"`
	// AWS region of the bucket
	Region string `yaml:"region" example:"eu-central-1" validate:"required"`
}

type Log struct {
	// Minimum console level, one of debug/info/warn/error
	Level string `yaml:"level" example:"debug" validate:"omitempty,oneof=debug info warn error"`
	// Telegram logging config
	Telegram TelegramLog `yaml:"telegram"`
}

type TelegramLog struct {
	// Chat bot token, obtain it via BotFather
	Token string `yaml:"token"`
	// Chat ID to send messages to
	ChatID string `yaml:"chat_id"`
}

type DB struct {
	// Postgres username
	User string `yaml:"user" example:"postgres" validate:"required"`
	// Postgres password
	Pass string `yaml:"pass" validate:"required"`
	// Postgres host
	Host string `yaml:"host" example:"localhost:5432" validate:"required"`
	// Postgres database name
	Database string `yaml:"database" example:"voicedesk" validate:"required"`
}

func Load() (*Config, error) {
	var result Config

	data, err := os.ReadFile("config.yaml")
	if err != nil {
		return nil, oops.Errorf("failed to read config file: %w", err)
	}

	if err = yaml.Unmarshal(data, &result); err != nil {
		return nil, oops.Errorf("failed to parse YAML config: %w", err)
	}

	if result.Server.Addr == "" {
		result.Server.Addr = ":8080"
	}
	if result.DB.User == "" {
		result.DB.User = "postgres"
	}
	if result.DB.Pass == "" {
		result.DB.Pass = "postgres"
	}
	if result.DB.Host == "" {
		result.DB.Host = "localhost:5432"
	}
	if result.DB.Database == "" {
		result.DB.Database = "voicedesk"
	}
	if result.STT.Model == "" {
		result.STT.Model = "whisper-large-v3-turbo"
	}
	if result.TTS.BaseURL == "" {
		result.TTS.BaseURL = "https://api.deepgram.com"
	}
	if result.TTS.Model == "" {
		result.TTS.Model = "aura-luna-en"
	}
	if result.TTS.SampleRate == 0 {
		result.TTS.SampleRate = 16000
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(result); err != nil {
		return nil, oops.Errorf("failed to validate config: %w", err)
	}

	return &result, nil
}
