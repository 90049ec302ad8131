package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-uart-bridge/internal/board"
	"github.com/kstaniek/go-uart-bridge/internal/serial"
)

type appConfig struct {
	variant         string
	deviceSerial    string
	deviceBaud      int
	hostLink        string
	hostSerial      string
	hostBaud        int
	hostListen      string
	ptyLink         string
	serialDriver    string
	serialReadTO    time.Duration
	fixCRLF         bool
	idleSleep       time.Duration
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
	listPorts       bool
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	variant := flag.String("variant", "pi-esp01", "Board variant: "+strings.Join(board.Names(), "|"))
	deviceSerial := flag.String("device-serial", "", "Co-processor serial device (default from variant)")
	deviceBaud := flag.Int("device-baud", 115200, "Co-processor serial baud rate")
	hostLink := flag.String("host-link", "pty", "Host-facing link: serial|pty|tcp")
	hostSerial := flag.String("host-serial", "/dev/ttyGS0", "Host-facing serial device (when --host-link=serial)")
	hostBaud := flag.Int("host-baud", 115200, "Host-facing serial baud rate")
	hostListen := flag.String("host-listen", ":2323", "TCP listen address (when --host-link=tcp)")
	ptyLink := flag.String("pty-link", "", "Symlink to create for the pty slave (when --host-link=pty)")
	serialDriver := flag.String("serial-driver", serial.DriverTarm, "Serial library: tarm|bugst")
	serialReadTO := flag.Duration("serial-read-timeout", 50*time.Millisecond, "Serial read timeout")
	fixCRLF := flag.Bool("fix-crlf", false, "Send CR LF to the co-processor when the host sends CR (normal mode only)")
	idleSleep := flag.Duration("idle-sleep", 50*time.Microsecond, "Relay wait after an idle iteration (0 = spin)")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	mdnsEnable := flag.Bool("mdns-enable", false, "Advertise the metrics endpoint via mDNS")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default uart-bridge-<hostname>)")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	cfg.variant = *variant
	cfg.deviceSerial = *deviceSerial
	cfg.deviceBaud = *deviceBaud
	cfg.hostLink = *hostLink
	cfg.hostSerial = *hostSerial
	cfg.hostBaud = *hostBaud
	cfg.hostListen = *hostListen
	cfg.ptyLink = *ptyLink
	cfg.serialDriver = *serialDriver
	cfg.serialReadTO = *serialReadTO
	cfg.fixCRLF = *fixCRLF
	cfg.idleSleep = *idleSleep
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.listPorts = *listPorts

	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Fprintf(os.Stderr, "environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices, pins or listeners.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if _, err := board.Lookup(c.variant); err != nil {
		return err
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.hostLink {
	case "serial":
		if c.hostSerial == "" {
			return errors.New("host-serial is required with host-link=serial")
		}
	case "pty", "tcp":
	default:
		return fmt.Errorf("invalid host-link: %s", c.hostLink)
	}
	if _, err := serial.Opener(c.serialDriver); err != nil {
		return err
	}
	if c.deviceBaud <= 0 {
		return fmt.Errorf("device-baud must be > 0 (got %d)", c.deviceBaud)
	}
	if c.hostBaud <= 0 {
		return fmt.Errorf("host-baud must be > 0 (got %d)", c.hostBaud)
	}
	if c.serialReadTO <= 0 {
		return fmt.Errorf("serial-read-timeout must be > 0")
	}
	if c.idleSleep < 0 {
		return fmt.Errorf("idle-sleep must be >= 0")
	}
	if c.mdnsEnable && c.metricsAddr == "" {
		return errors.New("mdns-enable requires metrics-addr")
	}
	return nil
}

// applyEnvOverrides maps UART_BRIDGE_* environment variables to config fields
// unless a corresponding flag was explicitly set. Empty values are ignored.
// Duration accepts Go time.ParseDuration format.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	setErr := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s: %w", key, err)
		}
	}
	lookup := func(flagName, key string) (string, bool) {
		if _, ok := set[flagName]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(flagName, key string, dst *string) {
		if v, ok := lookup(flagName, key); ok {
			*dst = v
		}
	}
	positiveInt := func(flagName, key string, dst *int) {
		if v, ok := lookup(flagName, key); ok {
			n, err := strconv.Atoi(v)
			switch {
			case err != nil:
				setErr(key, err)
			case n <= 0:
				setErr(key, fmt.Errorf("must be > 0 (got %d)", n))
			default:
				*dst = n
			}
		}
	}
	duration := func(flagName, key string, dst *time.Duration) {
		if v, ok := lookup(flagName, key); ok {
			d, err := time.ParseDuration(v)
			switch {
			case err != nil:
				setErr(key, err)
			case d < 0:
				setErr(key, fmt.Errorf("must be >= 0 (got %v)", d))
			default:
				*dst = d
			}
		}
	}
	boolean := func(flagName, key string, dst *bool) {
		if v, ok := lookup(flagName, key); ok {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				*dst = true
			case "0", "false", "no", "off":
				*dst = false
			default:
				setErr(key, fmt.Errorf("not a boolean: %q", v))
			}
		}
	}

	str("variant", "UART_BRIDGE_VARIANT", &c.variant)
	str("device-serial", "UART_BRIDGE_DEVICE_SERIAL", &c.deviceSerial)
	positiveInt("device-baud", "UART_BRIDGE_DEVICE_BAUD", &c.deviceBaud)
	str("host-link", "UART_BRIDGE_HOST_LINK", &c.hostLink)
	str("host-serial", "UART_BRIDGE_HOST_SERIAL", &c.hostSerial)
	positiveInt("host-baud", "UART_BRIDGE_HOST_BAUD", &c.hostBaud)
	str("host-listen", "UART_BRIDGE_HOST_LISTEN", &c.hostListen)
	str("pty-link", "UART_BRIDGE_PTY_LINK", &c.ptyLink)
	str("serial-driver", "UART_BRIDGE_SERIAL_DRIVER", &c.serialDriver)
	duration("serial-read-timeout", "UART_BRIDGE_SERIAL_READ_TIMEOUT", &c.serialReadTO)
	boolean("fix-crlf", "UART_BRIDGE_FIX_CRLF", &c.fixCRLF)
	duration("idle-sleep", "UART_BRIDGE_IDLE_SLEEP", &c.idleSleep)
	str("log-format", "UART_BRIDGE_LOG_FORMAT", &c.logFormat)
	str("log-level", "UART_BRIDGE_LOG_LEVEL", &c.logLevel)
	if _, ok := set["metrics-addr"]; !ok {
		// an explicitly empty value disables metrics
		if v, ok := os.LookupEnv("UART_BRIDGE_METRICS"); ok {
			c.metricsAddr = strings.TrimSpace(v)
		}
	}
	duration("log-metrics-interval", "UART_BRIDGE_LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	boolean("mdns-enable", "UART_BRIDGE_MDNS_ENABLE", &c.mdnsEnable)
	str("mdns-name", "UART_BRIDGE_MDNS_NAME", &c.mdnsName)
	return firstErr
}
