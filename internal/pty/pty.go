// Package pty allocates a pseudo-terminal that host programs open as the
// bridge's virtual serial port.
package pty

import "errors"

// ErrUnsupported is returned on platforms without /dev/ptmx support.
var ErrUnsupported = errors.New("pty host link unsupported on this platform")
