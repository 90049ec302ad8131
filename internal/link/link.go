// Package link exposes the two serial channels to the relay as non-blocking
// single-byte endpoints.
package link

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kstaniek/go-uart-bridge/internal/logging"
	"github.com/kstaniek/go-uart-bridge/internal/metrics"
	"github.com/kstaniek/go-uart-bridge/internal/transport"
)

// Endpoint is one side of the bridge. Neither method blocks. A false return
// means "not ready"; transport errors are reported the same way.
type Endpoint interface {
	TryRead() (byte, bool)
	TryWrite(b byte) bool
}

// ErrTxOverflow is returned internally when the write buffer is full.
var ErrTxOverflow = errors.New("link tx overflow")

const (
	defaultRxBuffer = 256
	defaultTxBuffer = 16
	readChunk       = 256
	rxBackoffMin    = 20 * time.Millisecond
	rxBackoffMax    = 500 * time.Millisecond
	// zeroReadWait throttles ports that return (0, nil) or io.EOF without
	// blocking for their read timeout.
	zeroReadWait = time.Millisecond
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

// Config describes a Stream.
type Config struct {
	Name          string // used in logs
	RxBuffer      int    // bytes read ahead from the port
	TxBuffer      int    // bytes accepted before TryWrite reports not ready
	ReadErrLabel  string // metrics.Err* label
	WriteErrLabel string
	Logger        *slog.Logger
}

// Stream adapts a blocking io.ReadWriteCloser (serial port, pty, socket) to
// an Endpoint. A reader goroutine fills a bounded channel that TryRead polls;
// writes go through a single-goroutine AsyncTx that TryWrite offers bytes to.
type Stream struct {
	name   string
	rw     io.ReadWriteCloser
	rx     chan byte
	tx     *transport.AsyncTx[byte]
	logger *slog.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// NewStream starts the reader and writer goroutines for rw.
func NewStream(parent context.Context, rw io.ReadWriteCloser, cfg Config) *Stream {
	if cfg.RxBuffer <= 0 {
		cfg.RxBuffer = defaultRxBuffer
	}
	if cfg.TxBuffer <= 0 {
		cfg.TxBuffer = defaultTxBuffer
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.L()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Stream{
		name:   cfg.Name,
		rw:     rw,
		rx:     make(chan byte, cfg.RxBuffer),
		logger: cfg.Logger.With("link", cfg.Name),
		cancel: cancel,
	}
	var one [1]byte
	send := func(b byte) error {
		one[0] = b
		_, err := rw.Write(one[:])
		return err
	}
	hooks := transport.Hooks{
		OnError: func(err error) {
			if cfg.WriteErrLabel != "" {
				metrics.IncError(cfg.WriteErrLabel)
			}
			s.logger.Debug("link_write_error", "error", err)
		},
		OnDrop: func() error { return ErrTxOverflow },
	}
	s.tx = transport.NewAsyncTx(ctx, cfg.TxBuffer, send, hooks)
	s.wg.Add(1)
	go s.readLoop(ctx, cfg.ReadErrLabel)
	return s
}

func (s *Stream) readLoop(ctx context.Context, errLabel string) {
	defer s.wg.Done()
	defer s.logger.Info("link_rx_end")
	buf := make([]byte, readChunk)
	backoff := rxBackoffMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		n, err := s.rw.Read(buf)
		for _, b := range buf[:n] {
			select {
			case s.rx <- b:
			case <-ctx.Done():
				return
			}
		}
		if n > 0 {
			backoff = rxBackoffMin
		}
		if err != nil {
			if ctx.Err() != nil { // shutting down
				return
			}
			var perr *os.PathError
			if errors.As(err, &perr) {
				s.logger.Error("link_device_lost", "error", err)
				return
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if n == 0 {
					sleepFn(zeroReadWait)
				}
				continue
			}
			if errLabel != "" {
				metrics.IncError(errLabel)
			}
			s.logger.Warn("link_read_error", "error", err, "backoff", backoff)
			sleepFn(backoff)
			backoff *= 2
			if backoff > rxBackoffMax {
				backoff = rxBackoffMax
			}
			continue
		}
		if n == 0 {
			sleepFn(zeroReadWait)
		}
	}
}

// TryRead returns the next received byte, if any.
func (s *Stream) TryRead() (byte, bool) {
	select {
	case b := <-s.rx:
		return b, true
	default:
		return 0, false
	}
}

// TryWrite offers b to the writer. It returns false when the write buffer is
// full or the stream is closed.
func (s *Stream) TryWrite(b byte) bool { return s.tx.Send(b) == nil }

// Close stops both goroutines and closes the underlying port.
func (s *Stream) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.rw.Close()
		s.tx.Close()
		s.wg.Wait()
	})
	return err
}

var _ Endpoint = (*Stream)(nil)
