package elevnetwork

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"
)

// Conn is the byte stream a Session runs on. net.Conn satisfies it, and so
// does the QUIC stream wrapper.
type Conn interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
}

type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// DialerFunc adapts a plain function to Dialer.
type DialerFunc func(ctx context.Context) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context) (Conn, error) { return f(ctx) }

type TCPDialer struct {
	Addr    string
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context) (Conn, error) {
	nd := net.Dialer{Timeout: d.Timeout, KeepAlive: 15 * time.Second}
	conn, err := nd.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", d.Addr, err)
	}
	return conn, nil
}
