package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSnapshotMirrorsCounters(t *testing.T) {
	before := Snap()
	AddIn(DirToDevice, 2)
	AddIn(DirToHost, 1)
	IncOut(DirToHost)
	AddDropped(DirToDevice, 3)
	IncCRLFExpanded()
	IncLFDiscarded()
	IncError(ErrIndicator)
	SetQueueDepth(5, 7)
	SetBusy(true)
	after := Snap()

	if after.InToDevice-before.InToDevice != 2 || after.InToHost-before.InToHost != 1 {
		t.Fatalf("in counters: before=%+v after=%+v", before, after)
	}
	if after.OutToHost-before.OutToHost != 1 || after.OutToDevice != before.OutToDevice {
		t.Fatalf("out counters: before=%+v after=%+v", before, after)
	}
	if after.DropToDevice-before.DropToDevice != 3 {
		t.Fatalf("drop counter: before=%+v after=%+v", before, after)
	}
	if after.CRLFExpanded-before.CRLFExpanded != 1 || after.LFDiscarded-before.LFDiscarded != 1 {
		t.Fatalf("translation counters: before=%+v after=%+v", before, after)
	}
	if after.Errors-before.Errors != 1 {
		t.Fatalf("errors: before=%d after=%d", before.Errors, after.Errors)
	}
	if after.DepthDevice != 5 || after.DepthHost != 7 || !after.Busy {
		t.Fatalf("gauges: %+v", after)
	}
	SetBusy(false)
	if Snap().Busy {
		t.Fatalf("busy should clear")
	}
}

func TestReadinessFunc(t *testing.T) {
	defer SetReadinessFunc(nil)
	if !IsReady() {
		t.Fatalf("unset readiness should report ready")
	}
	SetReadinessFunc(func() bool { return false })
	if IsReady() {
		t.Fatalf("expected not ready")
	}
}

func TestReadyHandlerViaMux(t *testing.T) {
	defer SetReadinessFunc(nil)
	SetReadinessFunc(func() bool { return false })
	srv := StartHTTP("127.0.0.1:0")
	defer srv.Close()
	// Exercise the handler directly; the listener address is not exposed.
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}
