package transport

import (
	"bufio"
	"net"

	"github.com/tobi-tobsen/netmq/msg"
)

// Engine is the protocol framer of one connection: it owns the buffered
// reader/writer over the raw conn and speaks the frame codec, nothing
// else. The session around it decides what the frames mean.
type Engine struct {
	conn net.Conn
	br   *bufio.Reader
	bw   *bufio.Writer
}

func NewEngine(conn net.Conn) *Engine {
	return &Engine{
		conn: conn,
		br:   bufio.NewReader(conn),
		bw:   bufio.NewWriter(conn),
	}
}

func (e *Engine) ReadFrame() (*msg.Msg, error) {
	return ReadFrame(e.br)
}

func (e *Engine) WriteFrame(m *msg.Msg) error {
	return WriteFrame(e.bw, m)
}

// Flush pushes buffered outbound bytes onto the wire.
func (e *Engine) Flush() error {
	return e.bw.Flush()
}

func (e *Engine) Close() error {
	return e.conn.Close()
}

// RemoteAddr reports the peer address, for logging.
func (e *Engine) RemoteAddr() string {
	if a := e.conn.RemoteAddr(); a != nil {
		return a.String()
	}
	return ""
}
