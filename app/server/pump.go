package server

import (
	"log/slog"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"voicedesk/app/protocol"
	"voicedesk/app/service/fault"
)

const pumpBuffer = 64

// wsPump serializes all outbound frames through a single writer
// goroutine so concurrent senders never interleave on the socket.
type wsPump struct {
	conn   *websocket.Conn
	frames chan protocol.ServerFrame
	done   chan struct{}
	once   sync.Once
}

func newPump(conn *websocket.Conn) *wsPump {
	return &wsPump{
		conn:   conn,
		frames: make(chan protocol.ServerFrame, pumpBuffer),
		done:   make(chan struct{}),
	}
}

func (p *wsPump) Send(frame protocol.ServerFrame) error {
	select {
	case p.frames <- frame:
		return nil
	case <-p.done:
		return fault.New(fault.CodeProtocol, "connection is closed")
	}
}

func (p *wsPump) run() {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.frames:
			if err := p.conn.WriteJSON(frame); err != nil {
				slog.Warn("Websocket write failed", "error", err)

				p.close()

				return
			}
		}
	}
}

func (p *wsPump) close() {
	p.once.Do(func() {
		close(p.done)
	})
}
