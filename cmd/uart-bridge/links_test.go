package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-uart-bridge/internal/board"
	"github.com/kstaniek/go-uart-bridge/internal/serial"
)

// fakeSerialPort implements serial.Port for tests.
type fakeSerialPort struct {
	mu     sync.Mutex
	reads  [][]byte
	idx    int
	wrote  []byte
	closed bool
}

func (f *fakeSerialPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	if f.idx >= len(f.reads) {
		f.mu.Unlock()
		// emulate the read timeout of an idle port
		time.Sleep(5 * time.Millisecond)
		return 0, nil
	}
	chunk := f.reads[f.idx]
	f.idx++
	f.mu.Unlock()
	return copy(p, chunk), nil
}

func (f *fakeSerialPort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wrote = append(f.wrote, p...)
	return len(p), nil
}

func (f *fakeSerialPort) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeSerialPort) written() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.wrote...)
}

// testLogger returns a no-op slog.Logger for tests.
func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func testVariant(t *testing.T) board.Variant {
	t.Helper()
	v, err := board.Lookup("pi-esp01")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	return v
}

// stubOpener installs an opener returning ports from the given map by path.
func stubOpener(t *testing.T, ports map[string]*fakeSerialPort, opened *[]string) {
	t.Helper()
	serialOpener = func(driver string) (serial.OpenFunc, error) {
		return func(name string, baud int, to time.Duration) (serial.Port, error) {
			*opened = append(*opened, name)
			p, ok := ports[name]
			if !ok {
				return nil, errors.New("no such port")
			}
			return p, nil
		}, nil
	}
	t.Cleanup(func() { serialOpener = serial.Opener })
}

func readWithin(t *testing.T, r interface{ TryRead() (byte, bool) }, n int, d time.Duration) []byte {
	t.Helper()
	var got []byte
	deadline := time.Now().Add(d)
	for len(got) < n && time.Now().Before(deadline) {
		if b, ok := r.TryRead(); ok {
			got = append(got, b)
			continue
		}
		time.Sleep(time.Millisecond)
	}
	return got
}

func TestInitLinksSerialHost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dev := &fakeSerialPort{reads: [][]byte{[]byte("OK\r\n")}}
	host := &fakeSerialPort{reads: [][]byte{[]byte("AT")}}
	var opened []string
	stubOpener(t, map[string]*fakeSerialPort{"/dev/ttyAMA0": dev, "/dev/ttyGS0": host}, &opened)

	cfg := baseConfig()
	cfg.hostLink = "serial"
	var wg sync.WaitGroup
	b, err := initLinks(ctx, cfg, testVariant(t), testLogger(), &wg)
	if err != nil {
		t.Fatalf("initLinks: %v", err)
	}
	defer b.Close()
	if len(opened) != 2 || opened[0] != "/dev/ttyAMA0" {
		t.Fatalf("expected variant device path opened first, got %v", opened)
	}
	if b.hostAddr != "/dev/ttyGS0" {
		t.Fatalf("hostAddr=%q", b.hostAddr)
	}
	if got := readWithin(t, b.device, 4, time.Second); string(got) != "OK\r\n" {
		t.Fatalf("device read %q", got)
	}
	if got := readWithin(t, b.host, 2, time.Second); string(got) != "AT" {
		t.Fatalf("host read %q", got)
	}
	if !b.host.TryWrite('x') {
		t.Fatalf("host TryWrite should accept")
	}
	deadline := time.Now().Add(time.Second)
	for string(host.written()) != "x" && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if string(host.written()) != "x" {
		t.Fatalf("host wrote %q", host.written())
	}
	b.Close()
	b.Close()
	if !dev.closed || !host.closed {
		t.Fatalf("ports should be closed")
	}
}

func TestInitLinksDeviceOverride(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dev := &fakeSerialPort{}
	var opened []string
	stubOpener(t, map[string]*fakeSerialPort{"/dev/ttyUSB3": dev}, &opened)
	openPTY = func(string) (io.ReadWriteCloser, string, error) {
		return &fakeSerialPort{}, "/dev/pts/7", nil
	}
	defer func() { openPTY = defaultOpenPTY }()

	cfg := baseConfig()
	cfg.deviceSerial = "/dev/ttyUSB3"
	var wg sync.WaitGroup
	b, err := initLinks(ctx, cfg, testVariant(t), testLogger(), &wg)
	if err != nil {
		t.Fatalf("initLinks: %v", err)
	}
	defer b.Close()
	if b.hostAddr != "/dev/pts/7" {
		t.Fatalf("hostAddr=%q", b.hostAddr)
	}
	if len(opened) != 1 || opened[0] != "/dev/ttyUSB3" {
		t.Fatalf("opened=%v", opened)
	}
}

func TestInitLinksTCPHost(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dev := &fakeSerialPort{}
	var opened []string
	stubOpener(t, map[string]*fakeSerialPort{"/dev/ttyAMA0": dev}, &opened)

	cfg := baseConfig()
	cfg.hostLink = "tcp"
	cfg.hostListen = "127.0.0.1:0"
	var wg sync.WaitGroup
	b, err := initLinks(ctx, cfg, testVariant(t), testLogger(), &wg)
	if err != nil {
		t.Fatalf("initLinks: %v", err)
	}
	conn, err := net.Dial("tcp", b.hostAddr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readWithin(t, b.host, 2, 2*time.Second); string(got) != "hi" {
		t.Fatalf("host read %q", got)
	}
	b.Close()
	cancel()
	wg.Wait()
}

func TestInitLinksErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup

	var opened []string
	stubOpener(t, map[string]*fakeSerialPort{}, &opened)
	if _, err := initLinks(ctx, baseConfig(), testVariant(t), testLogger(), &wg); err == nil {
		t.Fatalf("expected device open error")
	}

	dev := &fakeSerialPort{}
	stubOpener(t, map[string]*fakeSerialPort{"/dev/ttyAMA0": dev}, &opened)
	cfg := baseConfig()
	cfg.hostLink = "usb"
	_, err := initLinks(ctx, cfg, testVariant(t), testLogger(), &wg)
	if !errors.Is(err, errUnknownHostLink) {
		t.Fatalf("expected errUnknownHostLink, got %v", err)
	}
	if !dev.closed {
		t.Fatalf("device port should be closed on host link failure")
	}

	dev.closed = false
	cfg.hostLink = "serial"
	if _, err := initLinks(ctx, cfg, testVariant(t), testLogger(), &wg); err == nil {
		t.Fatalf("expected host serial open error")
	}
	if !dev.closed {
		t.Fatalf("device port should be closed on host serial failure")
	}
}
