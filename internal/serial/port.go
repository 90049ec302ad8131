package serial

import (
	"fmt"
	"sort"
	"time"

	tarm "github.com/tarm/serial"
	bugst "go.bug.st/serial"
)

// Port abstracts the serial libraries for testability.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// OpenFunc opens a port at baud, 8N1, with the given read timeout.
type OpenFunc func(name string, baud int, readTimeout time.Duration) (Port, error)

// Driver names accepted by Opener.
const (
	DriverTarm  = "tarm"
	DriverBugst = "bugst"
)

// Open opens name with tarm/serial.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &tarm.Config{
		Name:        name,
		Baud:        baud,
		ReadTimeout: readTimeout,
		Size:        8,
		Parity:      tarm.ParityNone,
		StopBits:    tarm.Stop1,
	}
	return tarm.OpenPort(cfg)
}

// OpenBugst opens name with go.bug.st/serial.
func OpenBugst(name string, baud int, readTimeout time.Duration) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	p, err := bugst.Open(name, mode)
	if err != nil {
		return nil, err
	}
	if readTimeout > 0 {
		if err := p.SetReadTimeout(readTimeout); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("set read timeout: %w", err)
		}
	}
	return p, nil
}

// Opener returns the open function for a driver name.
func Opener(driver string) (OpenFunc, error) {
	switch driver {
	case DriverTarm, "":
		return Open, nil
	case DriverBugst:
		return OpenBugst, nil
	default:
		return nil, fmt.Errorf("unknown serial driver %q (use %s|%s)", driver, DriverTarm, DriverBugst)
	}
}

// ListPorts returns the serial ports present on the host, sorted.
func ListPorts() ([]string, error) {
	ports, err := bugst.GetPortsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}
