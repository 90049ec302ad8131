// Package tcplink serves the host side of the bridge over TCP. One client is
// attached at a time; the Server itself is the byte stream the relay reads
// and writes, independent of which client is behind it.
package tcplink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-uart-bridge/internal/logging"
	"github.com/kstaniek/go-uart-bridge/internal/metrics"
)

// Server owns the TCP listener and the attached client.
type Server struct {
	mu       sync.RWMutex
	addr     string
	listener net.Listener

	connMu   sync.Mutex
	conn     net.Conn
	connLog  *slog.Logger
	attached chan struct{}

	readyOnce sync.Once
	readyCh   chan struct{}
	doneOnce  sync.Once
	done      chan struct{}

	keepAlive  time.Duration
	logger     *slog.Logger
	nextConnID uint64

	totalAccepted     atomic.Uint64
	totalRejected     atomic.Uint64
	totalDisconnected atomic.Uint64
}

const defaultKeepAlive = 30 * time.Second

type ServerOption func(*Server)

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		keepAlive: defaultKeepAlive,
		attached:  make(chan struct{}, 1),
		readyCh:   make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func WithListenAddr(a string) ServerOption { return func(s *Server) { s.addr = a } }

func WithKeepAlive(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.keepAlive = d
		}
	}
}

func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }

// Connected reports whether a client is attached.
func (s *Server) Connected() bool { return s.current() != nil }

// Serve accepts clients until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", s.Addr())
	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		_ = ln.Close()
	}()
	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil || s.closed() {
				return nil
			}
			return err
		}
	}
}

// acceptOnce accepts a single connection and attaches it, or rejects it when
// a client is already attached.
func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if s.closed() {
			return net.ErrClosed
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		return wrap
	}
	s.totalAccepted.Add(1)
	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(s.keepAlive)
	}
	s.connMu.Lock()
	if s.conn != nil {
		s.connMu.Unlock()
		s.totalRejected.Add(1)
		connLogger.Warn("client_reject_busy")
		_ = conn.Close()
		return nil
	}
	s.conn = conn
	s.connLog = connLogger
	s.connMu.Unlock()
	select {
	case s.attached <- struct{}{}:
	default:
	}
	connLogger.Info("client_connected")
	return nil
}

func (s *Server) current() net.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *Server) detach(c net.Conn, reason error) {
	s.connMu.Lock()
	if s.conn != c {
		s.connMu.Unlock()
		return
	}
	s.conn = nil
	l := s.connLog
	s.connMu.Unlock()
	_ = c.Close()
	s.totalDisconnected.Add(1)
	l.Info("client_disconnected", "reason", reason)
}

func (s *Server) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Read blocks until the attached client sends data. A client disconnect is
// not an error: Read waits for the next client. It returns net.ErrClosed
// after Close.
func (s *Server) Read(p []byte) (int, error) {
	for {
		c := s.current()
		if c == nil {
			select {
			case <-s.attached:
				continue
			case <-s.done:
				return 0, net.ErrClosed
			}
		}
		n, err := c.Read(p)
		if err != nil {
			s.detach(c, err)
			if n > 0 {
				return n, nil
			}
			if s.closed() {
				return 0, net.ErrClosed
			}
			continue
		}
		return n, nil
	}
}

// Write sends p to the attached client. Without a client it returns
// ErrNoClient and the bytes are lost.
func (s *Server) Write(p []byte) (int, error) {
	c := s.current()
	if c == nil {
		return 0, ErrNoClient
	}
	n, err := c.Write(p)
	if err != nil {
		s.detach(c, err)
		wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
		metrics.IncError(mapErrToMetric(wrap))
		return n, wrap
	}
	return n, nil
}

// Close stops accepting, drops the attached client and unblocks Read.
func (s *Server) Close() error {
	s.doneOnce.Do(func() { close(s.done) })
	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()
	if ln != nil {
		_ = ln.Close()
	}
	if c := s.current(); c != nil {
		s.detach(c, net.ErrClosed)
	}
	s.logger.Info("tcp_summary", "accepted", s.totalAccepted.Load(), "rejected", s.totalRejected.Load(), "disconnected", s.totalDisconnected.Load())
	return nil
}
