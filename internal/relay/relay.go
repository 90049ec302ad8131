// Package relay moves bytes between the host link and the co-processor link.
//
// One Step polls each endpoint once: host ingress, device ingress, host
// egress, device egress, then the busy indicator. Steps never block, so a
// slow or silent link cannot stall the other direction. Each direction has a
// fixed 128-byte queue; bytes arriving while it is full are dropped.
package relay

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-uart-bridge/internal/link"
	"github.com/kstaniek/go-uart-bridge/internal/logging"
	"github.com/kstaniek/go-uart-bridge/internal/metrics"
	"github.com/kstaniek/go-uart-bridge/internal/queue"
)

const (
	cr = 0x0D
	lf = 0x0A
)

// sleepFn allows tests to intercept idle waits.
var sleepFn = time.Sleep

// Indicator receives the busy flag after every step.
type Indicator interface {
	Update(busy bool)
}

// Config is fixed for the lifetime of a Relay.
type Config struct {
	// FixCRLF expands CR from the host into CR LF and discards LF from the
	// host. It has no effect in programming mode.
	FixCRLF bool
	// ProgrammingMode is the boot mode sampled by the boot sequencer.
	ProgrammingMode bool
}

// Relay owns both queues. It is driven by a single goroutine.
type Relay struct {
	host   link.Endpoint
	device link.Endpoint

	toDevice queue.Queue
	toHost   queue.Queue

	translate bool
	indicator Indicator
	idle      time.Duration
	logger    *slog.Logger
	running   atomic.Bool
}

type Option func(*Relay)

func WithIndicator(i Indicator) Option { return func(r *Relay) { r.indicator = i } }

// WithIdleSleep makes Run wait d after a step that moved nothing and left
// both queues empty. Zero keeps Run spinning.
func WithIdleSleep(d time.Duration) Option {
	return func(r *Relay) {
		if d >= 0 {
			r.idle = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a relay between the host-facing and the co-processor endpoints.
func New(host, device link.Endpoint, cfg Config, opts ...Option) *Relay {
	r := &Relay{
		host:      host,
		device:    device,
		translate: cfg.FixCRLF && !cfg.ProgrammingMode,
		logger:    logging.L(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Translating reports whether CR/LF translation is active.
func (r *Relay) Translating() bool { return r.translate }

// Running reports whether Run is executing.
func (r *Relay) Running() bool { return r.running.Load() }

// Pending returns the queued byte counts. Only call it from the goroutine
// that drives the relay.
func (r *Relay) Pending() (toDevice, toHost int) { return r.toDevice.Len(), r.toHost.Len() }

// Run steps the relay until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r.translate {
		r.logger.Info("relay_start", "crlf_translation", "active")
	} else {
		r.logger.Info("relay_start", "crlf_translation", "not active")
	}
	r.running.Store(true)
	defer r.running.Store(false)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay_stop")
			return ctx.Err()
		default:
		}
		busy, moved := r.step()
		if !busy && !moved && r.idle > 0 {
			sleepFn(r.idle)
		}
	}
}

// Step runs one iteration and returns the busy flag it reported.
func (r *Relay) Step() bool {
	busy, _ := r.step()
	return busy
}

func (r *Relay) step() (busy, moved bool) {
	if b, ok := r.host.TryRead(); ok {
		moved = true
		r.ingressHost(b)
	}
	if b, ok := r.device.TryRead(); ok {
		moved = true
		enqueue(&r.toHost, b, metrics.DirToHost)
	}

	if !r.toHost.Empty() {
		busy = true
		if drain(&r.toHost, r.host) {
			metrics.IncOut(metrics.DirToHost)
		}
	}
	if !r.toDevice.Empty() {
		busy = true
		if drain(&r.toDevice, r.device) {
			metrics.IncOut(metrics.DirToDevice)
		}
	}

	if busy || moved {
		metrics.SetQueueDepth(r.toDevice.Len(), r.toHost.Len())
	}
	if r.indicator != nil {
		r.indicator.Update(busy)
	}
	return busy, moved
}

func (r *Relay) ingressHost(b byte) {
	switch {
	case r.translate && b == cr:
		if r.toDevice.PushPair(cr, lf) {
			metrics.AddIn(metrics.DirToDevice, 2)
			metrics.IncCRLFExpanded()
		} else {
			metrics.AddDropped(metrics.DirToDevice, 2)
		}
	case r.translate && b == lf:
		// Every LF is dropped, including one not preceded by CR.
		metrics.IncLFDiscarded()
	default:
		enqueue(&r.toDevice, b, metrics.DirToDevice)
	}
}

func enqueue(q *queue.Queue, b byte, dir string) {
	if q.Push(b) {
		metrics.AddIn(dir, 1)
		return
	}
	metrics.AddDropped(dir, 1)
}

// drain offers the head byte to ep and consumes it if accepted.
func drain(q *queue.Queue, ep link.Endpoint) bool {
	b, ok := q.Peek()
	if !ok || !ep.TryWrite(b) {
		return false
	}
	q.Advance()
	return true
}
