package server

import (
	"bufio"
	"encoding/base64"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"voicedesk/app/protocol"
	"voicedesk/app/service/session"
)

type voiceChatRequest struct {
	AudioData       string `json:"audioData"`
	CallerID        string `json:"callerId"`
	AudioEnabled    bool   `json:"audioEnabled"`
	Streaming       bool   `json:"streaming"`
	ConversationID  string `json:"conversationId"`
	EndConversation bool   `json:"endConversation"`
}

type transcriptionPayload struct {
	Text    string `json:"text"`
	Refined string `json:"refined,omitempty"`
}

type voiceChatResponse struct {
	Success        bool                  `json:"success"`
	Response       string                `json:"response,omitempty"`
	Transcription  *transcriptionPayload `json:"transcription,omitempty"`
	AudioURL       string                `json:"audioUrl,omitempty"`
	AudioBase64    string                `json:"audioBase64,omitempty"`
	ConversationID string                `json:"conversationId"`
	Category       string                `json:"category,omitempty"`
	Stored         bool                  `json:"stored,omitempty"`
	Errors         []string              `json:"errors,omitempty"`
}

// handleVoiceChat runs one full turn over a single request. With
// streaming enabled the response body becomes the raw audio stream once
// synthesis starts producing data; otherwise everything comes back as JSON.
func (s *Server) handleVoiceChat(c *fiber.Ctx) error {
	var req voiceChatRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	if req.AudioData == "" {
		return fiber.NewError(fiber.StatusBadRequest, "audioData is required")
	}

	if req.CallerID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "callerId is required")
	}

	audio, err := protocol.DecodeAudio(req.AudioData)
	if err != nil {
		return err
	}

	if len(audio) < session.MinAudioBytes {
		return fiber.NewError(fiber.StatusBadRequest, "Audio payload too short")
	}

	sess, err := s.sessions.Resolve(req.CallerID, req.ConversationID)
	if err != nil {
		return err
	}

	if !sess.TryBegin() {
		return fiber.NewError(fiber.StatusConflict, "Conversation is already processing a request")
	}

	if req.Streaming && req.AudioEnabled {
		// ownership of the processing claim moves to the streaming turn
		return s.streamingTurn(c, sess, audio, req)
	}
	defer sess.End()

	res, err := s.sessions.ProcessAudio(c.UserContext(), sess, audio, session.TurnOptions{
		Persist:    req.EndConversation,
		WantsAudio: req.AudioEnabled,
	})
	if err != nil {
		return err
	}

	return c.JSON(buildVoiceChatResponse(sess.ID, res))
}

// streamingTurn commits the raw audio stream only after the first chunk
// of synthesized audio exists; until then a JSON response stays possible.
func (s *Server) streamingTurn(c *fiber.Ctx, sess *session.Session, audio []byte, req voiceChatRequest) error {
	chunks := make(chan []byte, 16)

	type outcome struct {
		res *session.TurnResult
		err error
	}

	done := make(chan outcome, 1)

	go func() {
		defer sess.End()

		res, err := s.sessions.ProcessAudio(s.appCtx, sess, audio, session.TurnOptions{
			Persist:         req.EndConversation,
			WantsAudio:      true,
			PreferStreaming: true,
			Sink: func(chunk []byte) error {
				buf := make([]byte, len(chunk))
				copy(buf, chunk)

				chunks <- buf

				return nil
			},
		})

		close(chunks)

		done <- outcome{res, err}
	}()

	first, ok := <-chunks
	if !ok {
		// no audio streamed, the pipeline already finished
		out := <-done
		if out.err != nil {
			return out.err
		}

		return c.JSON(buildVoiceChatResponse(sess.ID, out.res))
	}

	c.Set("X-Conversation-Id", sess.ID)
	c.Set(fiber.HeaderContentType, fmt.Sprintf("audio/l16; rate=%d", s.cfg.TTS.SampleRate))

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		failed := false

		write := func(b []byte) {
			if failed {
				return
			}

			if _, err := w.Write(b); err != nil {
				failed = true

				return
			}

			if err := w.Flush(); err != nil {
				failed = true
			}
		}

		write(first)

		// keep draining even after a write failure so the pipeline
		// goroutine can finish
		for chunk := range chunks {
			write(chunk)
		}

		<-done
	})

	return nil
}

func buildVoiceChatResponse(conversationID string, res *session.TurnResult) voiceChatResponse {
	out := voiceChatResponse{
		Success:        true,
		Response:       res.Response,
		ConversationID: conversationID,
		Category:       res.Category,
		Stored:         res.Stored,
		Errors:         res.Errors,
	}

	if res.Transcription != "" {
		out.Transcription = &transcriptionPayload{
			Text:    res.Transcription,
			Refined: res.Refined,
		}
	}

	if res.Delivery != nil {
		out.AudioURL = res.Delivery.AudioURL

		if out.AudioURL == "" && len(res.Delivery.Audio) > 0 {
			out.AudioBase64 = base64.StdEncoding.EncodeToString(res.Delivery.Audio)
		}
	}

	return out
}
