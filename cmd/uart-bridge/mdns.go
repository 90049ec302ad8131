package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/kstaniek/go-uart-bridge/internal/boot"
)

const mdnsServiceType = "_uart-bridge._tcp"

// mdnsRegister is a hook for tests.
var mdnsRegister = zeroconf.Register

func mdnsInstance(cfg *appConfig) string {
	if cfg.mdnsName != "" {
		return cfg.mdnsName
	}
	host, _ := os.Hostname()
	return fmt.Sprintf("uart-bridge-%s", host)
}

func mdnsMeta(cfg *appConfig, programming bool) []string {
	return []string{
		"variant=" + cfg.variant,
		"host_link=" + cfg.hostLink,
		"mode=" + boot.ModeName(programming),
		"version=" + version,
	}
}

// portOf extracts the numeric port from host:port or :port.
func portOf(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(p)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("bad port in %q", addr)
	}
	return n, nil
}

// startMDNS advertises the metrics endpoint and returns a cleanup function.
// It is a no-op when disabled.
func startMDNS(ctx context.Context, cfg *appConfig, port int, programming bool) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	svc, err := mdnsRegister(mdnsInstance(cfg), mdnsServiceType, "local.", port, mdnsMeta(cfg, programming), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); time.Sleep(50 * time.Millisecond) }, nil
}
