package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/kstaniek/go-uart-bridge/internal/metrics"
)

func TestUpdateIsLevelDriven(t *testing.T) {
	busy := &gpiotest.Pin{N: "busy"}
	ind := New(busy, nil)

	ind.Update(true)
	assert.Equal(t, gpio.High, busy.L)
	ind.Update(true)
	assert.Equal(t, gpio.High, busy.L)
	ind.Update(false)
	assert.Equal(t, gpio.Low, busy.L)
}

func TestShowModeOnlyTouchesModeLED(t *testing.T) {
	busy := &gpiotest.Pin{N: "busy"}
	mode := &gpiotest.Pin{N: "mode"}
	ind := New(busy, mode)
	ind.ShowMode(true)
	assert.Equal(t, gpio.High, mode.L)
	assert.Equal(t, gpio.Low, busy.L)
}

func TestNilOutputsAreSkipped(t *testing.T) {
	ind := New(nil, nil)
	assert.NotPanics(t, func() {
		ind.Update(true)
		ind.ShowMode(true)
	})
}

type brokenLED struct{ calls int }

func (b *brokenLED) Out(gpio.Level) error { b.calls++; return errors.New("i/o error") }

func TestWriteErrorsAreIgnored(t *testing.T) {
	led := &brokenLED{}
	before := metrics.Snap().Errors
	ind := New(led, nil)
	ind.Update(true)
	ind.Update(false)
	assert.Equal(t, 2, led.calls, "every iteration writes the level")
	assert.Equal(t, before+2, metrics.Snap().Errors)
}
