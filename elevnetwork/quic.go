package elevnetwork

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	quic "github.com/quic-go/quic-go"
)

const (
	QUIC_ALPN = "elevdispatch-quic"

	openStreamTimeout = 2 * time.Second
)

func NewQUICClientTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{QUIC_ALPN},
		MinVersion:         tls.VersionTLS13,
	}
}

func DefaultQUICConfig() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:      2 * time.Second,
		HandshakeIdleTimeout: 3 * time.Second,
		MaxIdleTimeout:       10 * time.Second,
	}
}

// QUICDialer opens one QUIC connection with a single bidirectional stream.
// Nil TLS and Config fall back to the defaults above.
type QUICDialer struct {
	Addr    string
	Timeout time.Duration
	TLS     *tls.Config
	Config  *quic.Config
}

func (d QUICDialer) Dial(ctx context.Context) (Conn, error) {
	tlsConf := d.TLS
	if tlsConf == nil {
		tlsConf = NewQUICClientTLSConfig()
	}
	quicConf := d.Config
	if quicConf == nil {
		quicConf = DefaultQUICConfig()
	}

	dialCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	conn, err := quic.DialAddr(dialCtx, d.Addr, tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("quic dial: %w", err)
	}

	stCtx, cancel := context.WithTimeout(ctx, openStreamTimeout)
	defer cancel()
	stream, err := conn.OpenStreamSync(stCtx)
	if err != nil {
		_ = conn.CloseWithError(0, "open stream failed")
		return nil, fmt.Errorf("open stream: %w", err)
	}

	// The peer only learns about a stream once data flows on it, and the
	// server speaks first. An empty frame announces the stream.
	if err := WriteFrame(stream, nil); err != nil {
		CloseQUIC(conn, stream, "announce failed")
		return nil, fmt.Errorf("announce stream: %w", err)
	}

	return &quicConn{conn: conn, stream: stream}, nil
}

type quicConn struct {
	conn   *quic.Conn
	stream *quic.Stream
}

func (c *quicConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *quicConn) Write(p []byte) (int, error) { return c.stream.Write(p) }

func (c *quicConn) SetReadDeadline(t time.Time) error {
	return c.stream.SetReadDeadline(t)
}

func (c *quicConn) Close() error {
	CloseQUIC(c.conn, c.stream, "bye")
	return nil
}

func CloseQUIC(conn *quic.Conn, stream *quic.Stream, reason string) {
	if stream != nil {
		stream.CancelRead(0)
		_ = stream.Close()
	}
	if conn != nil {
		_ = conn.CloseWithError(0, reason)
	}
}
