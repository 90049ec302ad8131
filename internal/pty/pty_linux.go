//go:build linux

package pty

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// PTY is the master side of a pseudo-terminal. The bridge reads and writes
// the master; host programs open SlaveName. The slave is held open so the
// master never sees EIO while no program is attached.
type PTY struct {
	master *os.File
	slave  *os.File
	name   string
	link   string
}

// Open allocates a pty, puts the slave in raw mode and, when link is not
// empty, points a symlink at the slave.
func Open(link string) (*PTY, error) {
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/ptmx: %w", err)
	}
	// Non-blocking so the runtime poller owns the fd and Close unblocks a
	// pending Read.
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("nonblock /dev/ptmx: %w", err)
	}
	master := os.NewFile(uintptr(fd), "/dev/ptmx")
	fail := func(err error) (*PTY, error) {
		_ = master.Close()
		return nil, err
	}
	if err := unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0); err != nil {
		return fail(fmt.Errorf("unlockpt: %w", err))
	}
	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		return fail(fmt.Errorf("ptsname: %w", err))
	}
	name := fmt.Sprintf("/dev/pts/%d", n)
	slave, err := os.OpenFile(name, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return fail(fmt.Errorf("open %s: %w", name, err))
	}
	if err := makeRaw(int(slave.Fd())); err != nil {
		_ = slave.Close()
		return fail(fmt.Errorf("raw mode %s: %w", name, err))
	}
	p := &PTY{master: master, slave: slave, name: name}
	if link != "" {
		_ = os.Remove(link)
		if err := os.Symlink(name, link); err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("symlink %s: %w", link, err)
		}
		p.link = link
	}
	return p, nil
}

// makeRaw disables echo, line buffering and CR/NL mapping on fd.
func makeRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}

// SlaveName returns the /dev/pts path host programs should open.
func (p *PTY) SlaveName() string { return p.name }

func (p *PTY) Read(b []byte) (int, error)  { return p.master.Read(b) }
func (p *PTY) Write(b []byte) (int, error) { return p.master.Write(b) }

// Close releases both sides and removes the symlink.
func (p *PTY) Close() error {
	if p.link != "" {
		_ = os.Remove(p.link)
	}
	_ = p.slave.Close()
	return p.master.Close()
}
