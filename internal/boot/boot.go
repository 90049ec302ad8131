// Package boot power-cycles the co-processor into normal or programming mode.
package boot

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"periph.io/x/conn/v3/gpio"

	"github.com/kstaniek/go-uart-bridge/internal/logging"
	"github.com/kstaniek/go-uart-bridge/internal/pins"
)

// SettleDelay is how long the co-processor is held powered down before the
// mode lines are configured. It is a hardware timing requirement.
const SettleDelay = 100 * time.Millisecond

var (
	// ErrPinWrite wraps any control-line failure during the sequence.
	ErrPinWrite = errors.New("boot pin write")
	// ErrAlreadyBooted is returned when Run is called a second time.
	ErrAlreadyBooted = errors.New("boot sequence already ran")
)

// PinDriver is the control-pin contract the sequencer needs.
type PinDriver interface {
	Set(r pins.Role, level gpio.Level) error
	ReadSelector() bool
}

// ModeIndicator displays the sampled boot mode.
type ModeIndicator interface {
	ShowMode(programming bool)
}

// Sequencer runs the boot procedure exactly once.
type Sequencer struct {
	pins      PinDriver
	indicator ModeIndicator
	sleep     func(time.Duration)
	logger    *slog.Logger
	ran       atomic.Bool
}

type Option func(*Sequencer)

// WithModeIndicator sets the indicator updated right after the selector is sampled.
func WithModeIndicator(mi ModeIndicator) Option { return func(s *Sequencer) { s.indicator = mi } }

// WithSleep replaces the blocking delay (tests only; production must sleep
// in wall-clock time).
func WithSleep(fn func(time.Duration)) Option {
	return func(s *Sequencer) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(p PinDriver, opts ...Option) *Sequencer {
	s := &Sequencer{pins: p, sleep: time.Sleep, logger: logging.L()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ModeName returns the log label for a boot mode.
func ModeName(programming bool) string {
	if programming {
		return "programming"
	}
	return "normal"
}

// Run samples the mode selector and boots the co-processor:
// power-down, settle, configure mode lines, power-up. It returns the sampled
// programming mode. The sequence cannot be re-entered.
func (s *Sequencer) Run() (bool, error) {
	if s.ran.Swap(true) {
		return false, ErrAlreadyBooted
	}
	programming := s.pins.ReadSelector()
	if s.indicator != nil {
		s.indicator.ShowMode(programming)
	}
	s.logger.Info("boot_start", "mode", ModeName(programming))

	// power down first
	if err := s.set(pins.Enable, gpio.Low); err != nil {
		return programming, err
	}
	if err := s.set(pins.Reset, gpio.Low); err != nil {
		return programming, err
	}

	s.sleep(SettleDelay)

	m0 := gpio.High // boot from flash
	if programming {
		m0 = gpio.Low // bootloader
	}
	if err := s.set(pins.Mode0, m0); err != nil {
		return programming, err
	}
	if err := s.set(pins.Mode1, gpio.High); err != nil {
		return programming, err
	}

	if err := s.set(pins.Enable, gpio.High); err != nil {
		return programming, err
	}
	if err := s.set(pins.Reset, gpio.High); err != nil {
		return programming, err
	}
	s.logger.Info("boot_done", "mode", ModeName(programming))
	return programming, nil
}

func (s *Sequencer) set(r pins.Role, l gpio.Level) error {
	if err := s.pins.Set(r, l); err != nil {
		return fmt.Errorf("%w: %v", ErrPinWrite, err)
	}
	return nil
}
