//go:build !linux

package pty

// PTY is a placeholder so non-linux builds compile.
type PTY struct{}

func Open(link string) (*PTY, error) { return nil, ErrUnsupported }

func (p *PTY) SlaveName() string           { return "" }
func (p *PTY) Read(b []byte) (int, error)  { return 0, ErrUnsupported }
func (p *PTY) Write(b []byte) (int, error) { return 0, ErrUnsupported }
func (p *PTY) Close() error                { return nil }
