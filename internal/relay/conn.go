package relay

import (
	"bufio"
	"net"
	"time"

	"github.com/horgh/irc"
	"github.com/pkg/errors"
)

// conn wraps a raw network connection with buffered IO and a per-operation
// deadline, so a stalled peer eventually gives up its goroutines rather than
// blocking them forever.
type conn struct {
	nc net.Conn
	rw *bufio.ReadWriter

	ioTimeout time.Duration

	IP net.IP
}

func newConn(nc net.Conn, ioTimeout time.Duration) *conn {
	ip := net.IP(nil)
	if addr, ok := nc.RemoteAddr().(*net.TCPAddr); ok {
		ip = addr.IP
	}

	return &conn{
		nc:        nc,
		rw:        bufio.NewReadWriter(bufio.NewReader(nc), bufio.NewWriter(nc)),
		ioTimeout: ioTimeout,
		IP:        ip,
	}
}

func (c *conn) Close() error {
	return c.nc.Close()
}

// readLine reads up to and including the next LF, so the returned line ends
// in CRLF only if the peer sent one.
func (c *conn) readLine() (string, error) {
	if err := c.nc.SetReadDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return "", errors.Wrap(err, "unable to set read deadline")
	}

	line, err := c.rw.ReadString('\n')
	if err != nil {
		return "", err
	}

	return line, nil
}

// writeLine writes a raw line, which must already be CRLF-terminated.
func (c *conn) writeLine(s string) error {
	if err := c.nc.SetWriteDeadline(time.Now().Add(c.ioTimeout)); err != nil {
		return errors.Wrap(err, "unable to set write deadline")
	}

	sz, err := c.rw.WriteString(s)
	if err != nil {
		return err
	}
	if sz != len(s) {
		return errors.New("short write")
	}

	if err := c.rw.Flush(); err != nil {
		return errors.Wrap(err, "flush error")
	}

	return nil
}

// writeMessage encodes and writes a single protocol message.
func (c *conn) writeMessage(m irc.Message) error {
	buf, err := m.Encode()
	if err != nil && err != irc.ErrTruncated {
		return errors.Wrap(err, "unable to encode message")
	}

	return c.writeLine(buf)
}
