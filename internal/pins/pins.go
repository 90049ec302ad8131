// Package pins acquires and drives the co-processor control lines and the
// status indicator lines through periph.io.
package pins

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/kstaniek/go-uart-bridge/internal/board"
)

// Role names one of the four control outputs.
type Role int

const (
	Enable Role = iota
	Reset
	Mode0
	Mode1
)

func (r Role) String() string {
	switch r {
	case Enable:
		return "enable"
	case Reset:
		return "reset"
	case Mode0:
		return "mode0"
	case Mode1:
		return "mode1"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Output is the part of gpio.PinOut the bridge uses.
type Output interface {
	Out(l gpio.Level) error
}

// Input is the part of gpio.PinIn the bridge uses.
type Input interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
}

var (
	ErrHostInit    = errors.New("gpio host init")
	ErrPinNotFound = errors.New("gpio line not found")
	ErrPinConfig   = errors.New("gpio line config")
	ErrUnknownRole = errors.New("unknown control role")
)

// Lines owns every line the bridge touches. Each physical line is acquired
// once, by Open, and handed to the components that drive it.
type Lines struct {
	Enable   Output
	Reset    Output
	Mode0    Output
	Mode1    Output
	Selector Input

	SelectorActiveLow bool

	BusyLED Output
	ModeLED Output // nil when the board has no mode indicator
}

// Hooks for tests.
var (
	hostInit  = func() error { _, err := host.Init(); return err }
	lookupPin = func(name string) gpio.PinIO { return gpioreg.ByName(name) }
)

// Open initializes the periph host drivers and resolves the variant's lines.
// Any failure is fatal for the caller: the co-processor must not be booted
// with control lines in an unknown state.
func Open(v board.Variant) (*Lines, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHostInit, err)
	}
	get := func(role, name string) (gpio.PinIO, error) {
		p := lookupPin(name)
		if p == nil {
			return nil, fmt.Errorf("%w: %s=%q", ErrPinNotFound, role, name)
		}
		return p, nil
	}
	l := &Lines{SelectorActiveLow: v.SelectorActiveLow}
	outs := []struct {
		role string
		name string
		dst  *Output
	}{
		{"enable", v.Enable, &l.Enable},
		{"reset", v.Reset, &l.Reset},
		{"mode0", v.Mode0, &l.Mode0},
		{"mode1", v.Mode1, &l.Mode1},
		{"busy_led", v.BusyLED, &l.BusyLED},
	}
	for _, o := range outs {
		p, err := get(o.role, o.name)
		if err != nil {
			return nil, err
		}
		*o.dst = p
	}
	if v.HasModeLED() {
		p, err := get("mode_led", v.ModeLED)
		if err != nil {
			return nil, err
		}
		l.ModeLED = p
	}
	sel, err := get("selector", v.Selector)
	if err != nil {
		return nil, err
	}
	if err := sel.In(v.SelectorPull, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("%w: selector=%q: %v", ErrPinConfig, v.Selector, err)
	}
	l.Selector = sel
	return l, nil
}

// Driver is the control-pin driver used by the boot sequencer.
type Driver struct {
	lines *Lines
}

func NewDriver(l *Lines) *Driver { return &Driver{lines: l} }

// Set drives one control output. Errors are returned as-is (wrapped with the
// role) so the caller can treat them as fatal.
func (d *Driver) Set(r Role, level gpio.Level) error {
	var out Output
	switch r {
	case Enable:
		out = d.lines.Enable
	case Reset:
		out = d.lines.Reset
	case Mode0:
		out = d.lines.Mode0
	case Mode1:
		out = d.lines.Mode1
	}
	if out == nil {
		return fmt.Errorf("%w: %s", ErrUnknownRole, r)
	}
	if err := out.Out(level); err != nil {
		return fmt.Errorf("%s=%s: %w", r, level, err)
	}
	return nil
}

// ReadSelector reports whether the selector requests programming mode.
func (d *Driver) ReadSelector() bool {
	lvl := d.lines.Selector.Read()
	if d.lines.SelectorActiveLow {
		return lvl == gpio.Low
	}
	return lvl == gpio.High
}
