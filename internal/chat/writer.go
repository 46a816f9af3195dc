package chat

import (
	"bufio"
	"net"
	"time"

	"github.com/andy6609/tickchat/internal/protocol"
)

func (p *peer) writePump() {
	defer p.conn.Close()

	w := bufio.NewWriter(p.conn)
	for frame := range p.out {
		// Best-effort. If the connection breaks, the read pump reports it.
		_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
		if _, err := w.Write(frame); err != nil {
			return
		}
		if len(p.out) > 0 {
			continue
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

// rejectConn tells a connection that never got a slot why it is being
// dropped, then closes it.
func rejectConn(conn net.Conn, timeout time.Duration) {
	defer conn.Close()
	_ = conn.SetWriteDeadline(time.Now().Add(timeout))
	_ = protocol.Write(conn, connectionFailedEvent)
}
