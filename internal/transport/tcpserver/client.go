package tcpserver

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
)

// client wraps one connection with a buffered reader and a write lock so the
// match lifecycle and the connection's own loop can both send lines.
type client struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex
}

func newClient(conn net.Conn) *client {
	return &client{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// SendLine - writes one response line. Safe for concurrent use.
func (that *client) SendLine(line string) error {
	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if _, err := fmt.Fprintf(that.conn, "%s\n", line); err != nil {
		return fmt.Errorf("failed to write line: %w", err)
	}

	return nil
}

// ReadLine - blocks until the next request line arrives.
func (that *client) ReadLine() (string, error) {
	line, err := that.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read line: %w", err)
	}

	return strings.TrimSpace(line), nil
}
