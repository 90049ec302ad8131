package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/kstaniek/go-uart-bridge/internal/board"
	"github.com/kstaniek/go-uart-bridge/internal/boot"
	"github.com/kstaniek/go-uart-bridge/internal/logging"
	"github.com/kstaniek/go-uart-bridge/internal/metrics"
	"github.com/kstaniek/go-uart-bridge/internal/pins"
	"github.com/kstaniek/go-uart-bridge/internal/relay"
	"github.com/kstaniek/go-uart-bridge/internal/serial"
	"github.com/kstaniek/go-uart-bridge/internal/status"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("uart-bridge %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	if cfg.listPorts {
		os.Exit(listPorts())
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	v, err := board.Lookup(cfg.variant)
	if err != nil {
		l.Error("boot_failed", "error", err)
		os.Exit(1)
	}

	lines, err := pins.Open(v)
	if err != nil {
		l.Error("boot_failed", "stage", "pins", "variant", v.Name, "error", err)
		os.Exit(1)
	}
	ind := status.New(lines.BusyLED, lines.ModeLED)
	ind.Update(false)

	seq := boot.New(pins.NewDriver(lines), boot.WithModeIndicator(ind), boot.WithLogger(l))
	programming, err := seq.Run()
	if err != nil {
		l.Error("boot_failed", "stage", "sequence", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	links, err := initLinks(ctx, cfg, v, l, &wg)
	if err != nil {
		l.Error("link_init_error", "error", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}
	l.Info("host_link_ready", "kind", cfg.hostLink, "addr", links.hostAddr)

	r := relay.New(links.host, links.device,
		relay.Config{FixCRLF: cfg.fixCRLF, ProgrammingMode: programming},
		relay.WithIndicator(ind),
		relay.WithIdleSleep(cfg.idleSleep),
		relay.WithLogger(l),
	)
	metrics.SetReadinessFunc(func() bool { return r.Running() && ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
		if cfg.mdnsEnable {
			if cleanupMDNS, merr := advertise(ctx, cfg, programming); merr != nil {
				l.Warn("mdns_start_failed", "error", merr)
			} else {
				defer cleanupMDNS()
			}
		}
	}

	relayDone := make(chan error, 1)
	go func() { relayDone <- r.Run(ctx) }()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
		<-relayDone
	case err := <-relayDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("relay_error", "error", err)
		}
		cancel()
	}
	links.Close()
	ind.Update(false)
	wg.Wait()
	logSnapshot(l, metrics.Snap())
}

func listPorts() int {
	ports, err := serial.ListPorts()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list ports: %v\n", err)
		return 1
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return 0
	}
	for _, p := range ports {
		fmt.Println(p)
	}
	return 0
}

func advertise(ctx context.Context, cfg *appConfig, programming bool) (func(), error) {
	port, err := portOf(cfg.metricsAddr)
	if err != nil {
		return nil, err
	}
	cleanup, err := startMDNS(ctx, cfg, port, programming)
	if err != nil {
		return nil, err
	}
	logging.L().Info("mdns_started", "service", mdnsServiceType, "name", mdnsInstance(cfg), "port", port)
	return cleanup, nil
}
