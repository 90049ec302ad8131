package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/kstaniek/go-uart-bridge/internal/board"
	"github.com/kstaniek/go-uart-bridge/internal/link"
	"github.com/kstaniek/go-uart-bridge/internal/metrics"
	"github.com/kstaniek/go-uart-bridge/internal/pty"
	"github.com/kstaniek/go-uart-bridge/internal/serial"
	"github.com/kstaniek/go-uart-bridge/internal/tcplink"
)

// Hooks for tests.
var (
	serialOpener = serial.Opener
	openPTY      = defaultOpenPTY
)

func defaultOpenPTY(symlink string) (io.ReadWriteCloser, string, error) {
	p, err := pty.Open(symlink)
	if err != nil {
		return nil, "", err
	}
	return p, p.SlaveName(), nil
}

var errUnknownHostLink = errors.New("unknown host link")

// bridgeLinks holds both relay endpoints and whatever sits under them.
type bridgeLinks struct {
	host   *link.Stream
	device *link.Stream
	// hostAddr is the slave path (pty), device path (serial) or bound
	// address (tcp) the host side is reachable at.
	hostAddr string
	tcp      *tcplink.Server
}

// Close stops both streams. Safe to call more than once.
func (b *bridgeLinks) Close() {
	if b.host != nil {
		_ = b.host.Close()
	}
	if b.device != nil {
		_ = b.device.Close()
	}
}

// initLinks opens the co-processor UART and the host-facing link.
func initLinks(ctx context.Context, cfg *appConfig, v board.Variant, l *slog.Logger, wg *sync.WaitGroup) (*bridgeLinks, error) {
	open, err := serialOpener(cfg.serialDriver)
	if err != nil {
		return nil, err
	}
	devPath := cfg.deviceSerial
	if devPath == "" {
		devPath = v.DeviceSerial
	}
	devBaud := cfg.deviceBaud
	if devBaud <= 0 {
		devBaud = v.Baud
	}
	dev, err := open(devPath, devBaud, cfg.serialReadTO)
	if err != nil {
		return nil, fmt.Errorf("open device serial: %w", err)
	}
	l.Info("serial_open", "link", "device", "path", devPath, "baud", devBaud, "driver", cfg.serialDriver)

	b := &bridgeLinks{}
	var hostRW io.ReadWriteCloser
	switch cfg.hostLink {
	case "serial":
		p, err := open(cfg.hostSerial, cfg.hostBaud, cfg.serialReadTO)
		if err != nil {
			_ = dev.Close()
			return nil, fmt.Errorf("open host serial: %w", err)
		}
		hostRW = p
		b.hostAddr = cfg.hostSerial
		l.Info("serial_open", "link", "host", "path", cfg.hostSerial, "baud", cfg.hostBaud, "driver", cfg.serialDriver)
	case "pty":
		p, name, err := openPTY(cfg.ptyLink)
		if err != nil {
			_ = dev.Close()
			return nil, fmt.Errorf("open host pty: %w", err)
		}
		hostRW = p
		b.hostAddr = name
		l.Info("pty_open", "slave", name, "symlink", cfg.ptyLink)
	case "tcp":
		srv := tcplink.NewServer(tcplink.WithListenAddr(cfg.hostListen), tcplink.WithLogger(l))
		serveErr := make(chan error, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := srv.Serve(ctx)
			if err != nil {
				l.Error("tcp_serve_error", "error", err)
			}
			serveErr <- err
		}()
		select {
		case <-srv.Ready():
		case err := <-serveErr:
			_ = dev.Close()
			if err == nil {
				err = ctx.Err()
			}
			return nil, fmt.Errorf("host tcp listen: %w", err)
		case <-ctx.Done():
			_ = srv.Close()
			_ = dev.Close()
			return nil, ctx.Err()
		}
		hostRW = srv
		b.hostAddr = srv.Addr()
		b.tcp = srv
	default:
		_ = dev.Close()
		return nil, fmt.Errorf("%w: %q", errUnknownHostLink, cfg.hostLink)
	}

	b.device = link.NewStream(ctx, dev, link.Config{
		Name:          "device",
		ReadErrLabel:  metrics.ErrDeviceRead,
		WriteErrLabel: metrics.ErrDeviceWrite,
		Logger:        l,
	})
	b.host = link.NewStream(ctx, hostRW, link.Config{
		Name:          "host",
		ReadErrLabel:  metrics.ErrHostRead,
		WriteErrLabel: metrics.ErrHostWrite,
		Logger:        l,
	})
	return b, nil
}
