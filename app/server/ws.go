package server

import (
	"context"
	"log/slog"

	"github.com/gofiber/contrib/websocket"

	"voicedesk/app/protocol"
	"voicedesk/app/service/session"
)

// handleWS runs one realtime conversation connection. The first frame
// must be init; everything else is rejected until then.
func (s *Server) handleWS(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(s.appCtx)
	defer cancel()

	pump := newPump(conn)
	go pump.run()
	defer pump.close()

	var sess *session.Session

	defer func() {
		if sess != nil {
			s.sessions.OnClose(sess)
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		msg, err := protocol.ParseClient(data)
		if err != nil {
			slog.Warn("Bad client frame", "error", err)

			_ = pump.Send(protocol.ErrorFrame("Invalid message"))

			continue
		}

		switch msg := msg.(type) {
		case protocol.Init:
			if sess != nil {
				_ = pump.Send(protocol.ErrorFrame("Already initialized"))

				continue
			}

			sess = s.sessions.Init(msg.CallerID, msg.ConversationID, pump)

			go s.sessions.RunSilenceWatch(ctx, sess)

			_ = pump.Send(protocol.InitAck(sess.ID))

		case protocol.AudioChunk:
			if sess == nil {
				_ = pump.Send(protocol.ErrorFrame("Not initialized. Send init message first."))

				continue
			}

			s.sessions.OnAudioFragment(ctx, sess, msg.Data)

		case protocol.RecordingStopped:
			if sess == nil {
				_ = pump.Send(protocol.ErrorFrame("Not initialized. Send init message first."))

				continue
			}

			s.sessions.OnExplicitStop(ctx, sess)
		}
	}
}
