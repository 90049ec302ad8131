package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/go-uart-bridge/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Direction label values.
const (
	DirToDevice = "to_device" // host link -> co-processor
	DirToHost   = "to_host"   // co-processor -> host link
)

// Prometheus collectors
var (
	BytesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_bytes_in_total",
		Help: "Bytes accepted into a relay queue, by direction.",
	}, []string{"dir"})
	BytesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_bytes_out_total",
		Help: "Bytes handed to the destination link, by direction.",
	}, []string{"dir"})
	BytesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_bytes_dropped_total",
		Help: "Bytes dropped because the relay queue was full, by direction.",
	}, []string{"dir"})
	CRLFExpanded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_crlf_expanded_total",
		Help: "Carriage returns expanded to CR LF on the way to the device.",
	})
	LFDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_lf_discarded_total",
		Help: "Line feeds from the host discarded by CR/LF translation.",
	})
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_queue_depth",
		Help: "Pending bytes in the relay queue, by direction.",
	}, []string{"dir"})
	Busy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_busy",
		Help: "1 when a relay queue had pending bytes in the last iteration.",
	})
	ProgrammingMode = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "boot_programming_mode",
		Help: "1 when the co-processor was booted into programming mode.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrDeviceRead  = "device_read"
	ErrDeviceWrite = "device_write"
	ErrHostRead    = "host_read"
	ErrHostWrite   = "host_write"
	ErrIndicator   = "indicator_write"
	ErrHostAccept  = "host_accept"
)

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid Prometheus scraping in-process)
var (
	localInToDevice   uint64
	localInToHost     uint64
	localOutToDevice  uint64
	localOutToHost    uint64
	localDropToDevice uint64
	localDropToHost   uint64
	localCRLF         uint64
	localLF           uint64
	localErrors       uint64
	localDepthDevice  uint64
	localDepthHost    uint64
	localBusy         uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	InToDevice   uint64
	InToHost     uint64
	OutToDevice  uint64
	OutToHost    uint64
	DropToDevice uint64
	DropToHost   uint64
	CRLFExpanded uint64
	LFDiscarded  uint64
	Errors       uint64 // sum across error labels
	DepthDevice  uint64
	DepthHost    uint64
	Busy         bool
}

func Snap() Snapshot {
	return Snapshot{
		InToDevice:   atomic.LoadUint64(&localInToDevice),
		InToHost:     atomic.LoadUint64(&localInToHost),
		OutToDevice:  atomic.LoadUint64(&localOutToDevice),
		OutToHost:    atomic.LoadUint64(&localOutToHost),
		DropToDevice: atomic.LoadUint64(&localDropToDevice),
		DropToHost:   atomic.LoadUint64(&localDropToHost),
		CRLFExpanded: atomic.LoadUint64(&localCRLF),
		LFDiscarded:  atomic.LoadUint64(&localLF),
		Errors:       atomic.LoadUint64(&localErrors),
		DepthDevice:  atomic.LoadUint64(&localDepthDevice),
		DepthHost:    atomic.LoadUint64(&localDepthHost),
		Busy:         atomic.LoadUint64(&localBusy) == 1,
	}
}

// Collectors are resolved once so the per-iteration path avoids label lookups.
var (
	inToDevice   = BytesIn.WithLabelValues(DirToDevice)
	inToHost     = BytesIn.WithLabelValues(DirToHost)
	outToDevice  = BytesOut.WithLabelValues(DirToDevice)
	outToHost    = BytesOut.WithLabelValues(DirToHost)
	dropToDevice = BytesDropped.WithLabelValues(DirToDevice)
	dropToHost   = BytesDropped.WithLabelValues(DirToHost)
	depthDevice  = QueueDepth.WithLabelValues(DirToDevice)
	depthHost    = QueueDepth.WithLabelValues(DirToHost)
)

// AddIn counts n bytes accepted into the queue for dir.
func AddIn(dir string, n int) {
	switch dir {
	case DirToDevice:
		inToDevice.Add(float64(n))
		atomic.AddUint64(&localInToDevice, uint64(n))
	case DirToHost:
		inToHost.Add(float64(n))
		atomic.AddUint64(&localInToHost, uint64(n))
	}
}

// IncOut counts one byte written to the destination link for dir.
func IncOut(dir string) {
	switch dir {
	case DirToDevice:
		outToDevice.Inc()
		atomic.AddUint64(&localOutToDevice, 1)
	case DirToHost:
		outToHost.Inc()
		atomic.AddUint64(&localOutToHost, 1)
	}
}

// AddDropped counts n bytes lost to queue overflow for dir.
func AddDropped(dir string, n int) {
	switch dir {
	case DirToDevice:
		dropToDevice.Add(float64(n))
		atomic.AddUint64(&localDropToDevice, uint64(n))
	case DirToHost:
		dropToHost.Add(float64(n))
		atomic.AddUint64(&localDropToHost, uint64(n))
	}
}

func IncCRLFExpanded() {
	CRLFExpanded.Inc()
	atomic.AddUint64(&localCRLF, 1)
}

func IncLFDiscarded() {
	LFDiscarded.Inc()
	atomic.AddUint64(&localLF, 1)
}

// SetQueueDepth records the pending byte count of both queues.
func SetQueueDepth(toDevice, toHost int) {
	depthDevice.Set(float64(toDevice))
	depthHost.Set(float64(toHost))
	atomic.StoreUint64(&localDepthDevice, uint64(toDevice))
	atomic.StoreUint64(&localDepthHost, uint64(toHost))
}

func SetBusy(b bool) {
	var v uint64
	if b {
		v = 1
	}
	if atomic.SwapUint64(&localBusy, v) != v {
		Busy.Set(float64(v))
	}
}

func SetProgrammingMode(b bool) {
	if b {
		ProgrammingMode.Set(1)
		return
	}
	ProgrammingMode.Set(0)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	// Pre-register error label series so the first error does not create them.
	for _, lbl := range []string{
		ErrDeviceRead, ErrDeviceWrite, ErrHostRead, ErrHostWrite, ErrIndicator, ErrHostAccept,
	} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil { // if not set yet, treat as ready so metrics endpoint doesn't flap
		return true
	}
	return fn()
}
