package main

import (
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := baseConfig()

	t.Setenv("UART_BRIDGE_DEVICE_BAUD", "230400")
	t.Setenv("UART_BRIDGE_FIX_CRLF", "yes")
	t.Setenv("UART_BRIDGE_HOST_LINK", "tcp")
	t.Setenv("UART_BRIDGE_SERIAL_READ_TIMEOUT", "100ms")
	t.Setenv("UART_BRIDGE_IDLE_SLEEP", "0s")
	t.Setenv("UART_BRIDGE_LOG_METRICS_INTERVAL", "5s")
	t.Setenv("UART_BRIDGE_VARIANT", " pi-esp01-lite ")
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.deviceBaud != 230400 {
		t.Fatalf("expected baud override, got %d", base.deviceBaud)
	}
	if !base.fixCRLF {
		t.Fatalf("expected fixCRLF true")
	}
	if base.hostLink != "tcp" || base.variant != "pi-esp01-lite" {
		t.Fatalf("string overrides not applied: %+v", base)
	}
	if base.serialReadTO != 100*time.Millisecond {
		t.Fatalf("expected serialReadTO 100ms got %v", base.serialReadTO)
	}
	if base.idleSleep != 0 {
		t.Fatalf("expected idleSleep 0 got %v", base.idleSleep)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{deviceBaud: 115200, hostLink: "pty"}
	t.Setenv("UART_BRIDGE_DEVICE_BAUD", "230400")
	t.Setenv("UART_BRIDGE_HOST_LINK", "tcp")
	// Simulate user passed flags (so env should be ignored)
	if err := applyEnvOverrides(base, map[string]struct{}{"device-baud": {}, "host-link": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.deviceBaud != 115200 || base.hostLink != "pty" {
		t.Fatalf("flags should win over env: %+v", base)
	}
}

func TestApplyEnvOverrides_MetricsCanBeCleared(t *testing.T) {
	base := &appConfig{metricsAddr: ":9100"}
	t.Setenv("UART_BRIDGE_METRICS", "")
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.metricsAddr != "" {
		t.Fatalf("expected metrics disabled, got %q", base.metricsAddr)
	}
}

func TestApplyEnvOverrides_BadValues(t *testing.T) {
	tests := []struct{ key, val string }{
		{"UART_BRIDGE_HOST_BAUD", "notint"},
		{"UART_BRIDGE_DEVICE_BAUD", "-5"},
		{"UART_BRIDGE_IDLE_SLEEP", "soon"},
		{"UART_BRIDGE_FIX_CRLF", "maybe"},
	}
	for _, tc := range tests {
		t.Run(tc.key, func(t *testing.T) {
			base := baseConfig()
			t.Setenv(tc.key, tc.val)
			if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
				t.Fatalf("expected error for %s=%q", tc.key, tc.val)
			}
		})
	}
}
