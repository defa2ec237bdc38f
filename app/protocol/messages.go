// Package protocol defines the JSON frames of the realtime voice channel.
package protocol

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"voicedesk/app/service/fault"
)

// Inbound frame types.
const (
	TypeInit             = "init"
	TypeAudioChunk       = "audio_chunk"
	TypeRecordingStopped = "recording_stopped"
)

// Outbound frame types.
const (
	TypeInitAck            = "init_ack"
	TypeTranscription      = "transcription"
	TypeResponse           = "response"
	TypeAudio              = "audio"
	TypeError              = "error"
	TypeConversationStored = "conversation_stored"
)

type Init struct {
	ConversationID string
	CallerID       string
}

type AudioChunk struct {
	Data []byte
}

type RecordingStopped struct{}

type rawClientFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	CallerID       string `json:"callerId"`
	Audio          string `json:"audio"`
}

// ParseClient decodes an inbound frame into one of Init, AudioChunk or
// RecordingStopped.
func ParseClient(data []byte) (any, error) {
	var raw rawClientFrame
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fault.New(fault.CodeProtocol, "malformed frame: %w", err)
	}

	switch raw.Type {
	case TypeInit:
		return Init{
			ConversationID: raw.ConversationID,
			CallerID:       raw.CallerID,
		}, nil

	case TypeAudioChunk:
		if raw.Audio == "" {
			return nil, fault.New(fault.CodeProtocol, "audio_chunk frame without audio")
		}

		audio, err := DecodeAudio(raw.Audio)
		if err != nil {
			return nil, err
		}

		return AudioChunk{Data: audio}, nil

	case TypeRecordingStopped:
		return RecordingStopped{}, nil

	default:
		return nil, fault.New(fault.CodeProtocol, "unknown frame type %q", raw.Type)
	}
}

// DecodeAudio accepts raw base64 or a data URI ("data:...;base64,....").
func DecodeAudio(encoded string) ([]byte, error) {
	if idx := strings.Index(encoded, "base64,"); idx >= 0 {
		encoded = encoded[idx+len("base64,"):]
	}

	audio, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fault.New(fault.CodeDecode, "invalid base64 audio: %w", err)
	}

	return audio, nil
}

type ServerFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId,omitempty"`
	Text           string `json:"text,omitempty"`
	Data           string `json:"data,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Sender delivers outbound frames to one client, in order.
type Sender interface {
	Send(frame ServerFrame) error
}

func InitAck(conversationID string) ServerFrame {
	return ServerFrame{Type: TypeInitAck, ConversationID: conversationID}
}

func Transcription(text string) ServerFrame {
	return ServerFrame{Type: TypeTranscription, Text: text}
}

func Response(text string) ServerFrame {
	return ServerFrame{Type: TypeResponse, Text: text}
}

func Audio(data []byte) ServerFrame {
	return ServerFrame{Type: TypeAudio, Data: base64.StdEncoding.EncodeToString(data)}
}

func ErrorFrame(message string) ServerFrame {
	return ServerFrame{Type: TypeError, Error: message}
}

func ConversationStored() ServerFrame {
	return ServerFrame{Type: TypeConversationStored}
}
