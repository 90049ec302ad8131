package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-uart-bridge/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				logSnapshot(l, metrics.Snap())
			case <-ctx.Done():
				return
			}
		}
	}()
}

func logSnapshot(l *slog.Logger, snap metrics.Snapshot) {
	l.Info("metrics_snapshot",
		"in_to_device", snap.InToDevice,
		"in_to_host", snap.InToHost,
		"out_to_device", snap.OutToDevice,
		"out_to_host", snap.OutToHost,
		"drop_to_device", snap.DropToDevice,
		"drop_to_host", snap.DropToHost,
		"crlf_expanded", snap.CRLFExpanded,
		"lf_discarded", snap.LFDiscarded,
		"depth_device", snap.DepthDevice,
		"depth_host", snap.DepthHost,
		"busy", snap.Busy,
		"errors", snap.Errors,
	)
}
