// Package board maps a board variant name to the physical lines and default
// devices used by the bridge. Variants only differ in configuration; the
// boot and relay logic is identical for all of them.
package board

import (
	"errors"
	"fmt"
	"sort"

	"periph.io/x/conn/v3/gpio"
)

// ErrUnknownVariant is returned by Lookup for a name not in the table.
var ErrUnknownVariant = errors.New("unknown board variant")

// Variant describes one board wiring.
type Variant struct {
	Name string

	// Co-processor control lines (gpioreg names).
	Enable string
	Reset  string
	Mode0  string
	Mode1  string

	// Mode selector input. When SelectorActiveLow is set a low level
	// requests programming mode.
	Selector          string
	SelectorPull      gpio.Pull
	SelectorActiveLow bool

	// Indicators. ModeLED is empty on boards with a single LED.
	BusyLED string
	ModeLED string

	// DeviceSerial is the UART wired to the co-processor.
	DeviceSerial string
	Baud         int
}

// HasModeLED reports whether the variant has a boot-mode indicator.
func (v Variant) HasModeLED() bool { return v.ModeLED != "" }

var variants = map[string]Variant{
	"pi-esp01": {
		Name:         "pi-esp01",
		Enable:       "GPIO17",
		Reset:        "GPIO27",
		Mode0:        "GPIO22",
		Mode1:        "GPIO23",
		Selector:     "GPIO24",
		SelectorPull: gpio.PullDown,
		BusyLED:      "GPIO25",
		ModeLED:      "GPIO5",
		DeviceSerial: "/dev/ttyAMA0",
		Baud:         115200,
	},
	"pi-esp01-lite": {
		Name:              "pi-esp01-lite",
		Enable:            "GPIO17",
		Reset:             "GPIO27",
		Mode0:             "GPIO22",
		Mode1:             "GPIO23",
		Selector:          "GPIO26",
		SelectorPull:      gpio.PullUp,
		SelectorActiveLow: true,
		BusyLED:           "GPIO25",
		DeviceSerial:      "/dev/serial0",
		Baud:              115200,
	},
}

// Lookup returns the variant registered under name.
func Lookup(name string) (Variant, error) {
	v, ok := variants[name]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return v, nil
}

// Names returns the registered variant names, sorted.
func Names() []string {
	out := make([]string, 0, len(variants))
	for n := range variants {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
