// Package status drives the busy and boot-mode indicators. Indicator writes
// are cosmetic: failures are counted and otherwise ignored.
package status

import (
	"periph.io/x/conn/v3/gpio"

	"github.com/kstaniek/go-uart-bridge/internal/metrics"
	"github.com/kstaniek/go-uart-bridge/internal/pins"
)

// Indicator owns the busy LED and the optional mode LED.
type Indicator struct {
	busy pins.Output
	mode pins.Output
}

// New returns an Indicator. Either output may be nil.
func New(busy, mode pins.Output) *Indicator { return &Indicator{busy: busy, mode: mode} }

// Update sets the busy LED level. It is called every relay iteration.
func (i *Indicator) Update(busy bool) {
	metrics.SetBusy(busy)
	write(i.busy, busy)
}

// ShowMode sets the mode LED once at boot.
func (i *Indicator) ShowMode(programming bool) {
	metrics.SetProgrammingMode(programming)
	write(i.mode, programming)
}

func write(o pins.Output, on bool) {
	if o == nil {
		return
	}
	l := gpio.Low
	if on {
		l = gpio.High
	}
	if err := o.Out(l); err != nil {
		metrics.IncError(metrics.ErrIndicator)
	}
}
