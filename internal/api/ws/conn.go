package ws

import (
	"context"

	"github.com/coder/websocket"
)

// maxCommandBytes bounds one client command. Create commands carry a whole
// object, so this is generous.
const maxCommandBytes = 1 << 20

// socket adapts a websocket connection to session.Conn. Every message is
// sent as text; the type of incoming messages is ignored.
type socket struct {
	conn *websocket.Conn
}

func newSocket(conn *websocket.Conn) *socket {
	conn.SetReadLimit(maxCommandBytes)
	return &socket{conn: conn}
}

func (s *socket) Read(ctx context.Context) ([]byte, error) {
	_, payload, err := s.conn.Read(ctx)
	return payload, err
}

func (s *socket) Write(ctx context.Context, payload []byte) error {
	return s.conn.Write(ctx, websocket.MessageText, payload)
}
