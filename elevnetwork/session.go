// session.go
// Purpose: One persistent connection to the simulation server. Reads and
// writes are serialized independently; a hard I/O failure triggers a
// single-flight, bounded reconnection shared by every caller that saw it.
package elevnetwork

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrSessionClosed   = errors.New("session closed")
	ErrReconnectFailed = errors.New("reconnect failed")
)

// maxOpReconnects bounds how many reconnects a single Send or Receive
// rides through before giving up on the call.
const maxOpReconnects = 3

type ConnState int

const (
	StateConnected ConnState = iota
	StateReconnecting
	StateFailed
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Options struct {
	// SoftTimeout bounds the wait for the next frame before timeout
	// listeners are notified. Zero waits forever.
	SoftTimeout       time.Duration
	// ReconnectAttempts below 1 is treated as 1.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
	Logger            *slog.Logger
}

type Session struct {
	dialer Dialer
	opts   Options
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	readMu  sync.Mutex
	writeMu sync.Mutex

	// mu guards everything below. It is never held across I/O.
	mu       sync.Mutex
	conn     Conn
	reader   *bufio.Reader
	gen      uint64
	state    ConnState
	timeouts []func(time.Duration)

	flight singleflight.Group
}

// Dial connects through d, retrying like a reconnect would, and returns a
// session on the new connection.
func Dial(ctx context.Context, d Dialer, opts Options) (*Session, error) {
	s := newSession(d, opts)
	conn, err := s.dialWithRetry(ctx, max(1, opts.ReconnectAttempts))
	if err != nil {
		s.cancel()
		return nil, err
	}
	s.install(conn)
	return s, nil
}

// NewSession wraps an already open connection. d is used for reconnects.
func NewSession(conn Conn, d Dialer, opts Options) *Session {
	s := newSession(d, opts)
	s.install(conn)
	return s
}

func newSession(d Dialer, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		dialer: d,
		opts:   opts,
		log:    logger,
		ctx:    ctx,
		cancel: cancel,
		state:  StateConnected,
	}
}

// install must be called with mu held or before the session is shared.
func (s *Session) install(conn Conn) {
	s.conn = conn
	s.reader = bufio.NewReader(conn)
	s.gen++
	s.state = StateConnected
}

// OnTimeout registers a listener for soft read timeouts. Listeners run on
// the reading goroutine and must not block.
func (s *Session) OnTimeout(fn func(waited time.Duration)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts = append(s.timeouts, fn)
}

func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation counts successful connects, starting at 1.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// Send writes one frame, re-encoding payload as modified UTF-8.
func (s *Session) Send(payload []byte) error {
	payload = toModifiedUTF8(payload)
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), MaxFrameSize)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	for attempt := 0; ; attempt++ {
		conn, _, gen, err := s.current()
		if err != nil {
			return err
		}
		err = WriteFrame(conn, payload)
		if err == nil {
			return nil
		}
		if attempt == maxOpReconnects {
			return fmt.Errorf("send: %w", err)
		}
		if err := s.recover(gen, err); err != nil {
			return err
		}
	}
}

// Receive blocks until the next non-empty frame arrives and returns its
// payload as standard UTF-8.
func (s *Session) Receive() ([]byte, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()

	for attempt := 0; ; {
		conn, r, gen, err := s.current()
		if err != nil {
			return nil, err
		}
		payload, err := s.readFrame(conn, r)
		if err == nil {
			if len(payload) == 0 {
				continue
			}
			return fromModifiedUTF8(payload), nil
		}
		if attempt == maxOpReconnects {
			return nil, fmt.Errorf("receive: %w", err)
		}
		attempt++
		if err := s.recover(gen, err); err != nil {
			return nil, err
		}
	}
}

// readFrame waits up to SoftTimeout for the frame to start. On expiry the
// listeners hear about it and the read is retried once without a deadline.
// The timed-out wait only peeks, so no frame bytes are lost.
func (s *Session) readFrame(conn Conn, r *bufio.Reader) ([]byte, error) {
	soft := s.opts.SoftTimeout
	if soft > 0 && r.Buffered() == 0 {
		_ = conn.SetReadDeadline(time.Now().Add(soft))
		_, err := r.Peek(1)
		_ = conn.SetReadDeadline(time.Time{})
		if err != nil {
			if !isTimeout(err) {
				return nil, err
			}
			s.notifyTimeout(soft)
		}
	}
	return ReadFrame(r)
}

func (s *Session) notifyTimeout(waited time.Duration) {
	s.mu.Lock()
	listeners := slices.Clone(s.timeouts)
	s.mu.Unlock()

	s.log.Debug("read timed out, retrying", "waited", waited)
	for _, fn := range listeners {
		fn(waited)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func (s *Session) current() (Conn, *bufio.Reader, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return nil, nil, s.gen, ErrSessionClosed
	case StateFailed:
		return nil, nil, s.gen, ErrReconnectFailed
	}
	// While reconnecting this hands out the old connection. Using it
	// fails fast and lands the caller in recover, where it waits on the
	// flight already in progress.
	return s.conn, s.reader, s.gen, nil
}

// recover handles a hard failure seen on connection generation gen. A nil
// return means a newer connection is in place and the caller may retry.
func (s *Session) recover(gen uint64, cause error) error {
	s.mu.Lock()
	state, current := s.state, s.gen
	s.mu.Unlock()

	switch {
	case state == StateClosed:
		return fmt.Errorf("%w: %w", ErrSessionClosed, cause)
	case state == StateFailed:
		return ErrReconnectFailed
	case current != gen:
		// Someone else already reconnected.
		return nil
	}

	s.log.Warn("connection lost", "gen", gen, "err", cause)
	_, err, shared := s.flight.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		return nil, s.reconnect(gen)
	})
	if shared {
		s.log.Debug("waited on shared reconnect", "gen", gen, "err", err)
	}
	return err
}

func (s *Session) reconnect(gen uint64) error {
	s.mu.Lock()
	switch {
	case s.state == StateClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case s.state == StateFailed:
		s.mu.Unlock()
		return ErrReconnectFailed
	case s.gen != gen:
		s.mu.Unlock()
		return nil
	}
	s.state = StateReconnecting
	old := s.conn
	s.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	attempts := max(1, s.opts.ReconnectAttempts)
	conn, err := s.dialWithRetry(s.ctx, attempts)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		if conn != nil {
			_ = conn.Close()
		}
		return ErrSessionClosed
	}
	if err != nil {
		s.state = StateFailed
		s.log.Error("giving up on connection", "attempts", attempts, "err", err)
		return err
	}
	s.install(conn)
	s.log.Info("reconnected", "gen", s.gen)
	return nil
}

// dialWithRetry makes up to attempts dials, sleeping ReconnectDelay between
// them.
func (s *Session) dialWithRetry(ctx context.Context, attempts int) (Conn, error) {
	if s.dialer == nil {
		return nil, fmt.Errorf("%w: no dialer", ErrReconnectFailed)
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 && s.opts.ReconnectDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrReconnectFailed, ctx.Err())
			case <-time.After(s.opts.ReconnectDelay):
			}
		}
		conn, err := s.dialer.Dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		s.log.Warn("dial failed", "attempt", attempt, "of", attempts, "err", err)
	}
	if lastErr == nil {
		return nil, ErrReconnectFailed
	}
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrReconnectFailed, attempts, lastErr)
}

// Close is idempotent. Blocked reads and writes fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	conn := s.conn
	s.mu.Unlock()

	s.cancel()
	if conn != nil {
		return conn.Close()
	}
	return nil
}
