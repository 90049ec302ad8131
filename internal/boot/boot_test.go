package boot

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"

	"github.com/kstaniek/go-uart-bridge/internal/logging"
	"github.com/kstaniek/go-uart-bridge/internal/pins"
)

// recorder logs every pin write, selector read, sleep and indicator update in order.
type recorder struct {
	selector bool
	reads    int
	events   []string
	failOn   string
}

func (r *recorder) Set(role pins.Role, l gpio.Level) error {
	ev := fmt.Sprintf("%s=%s", role, l)
	if ev == r.failOn {
		return errors.New("line stuck")
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) ReadSelector() bool {
	r.reads++
	r.events = append(r.events, "sample")
	return r.selector
}

func (r *recorder) ShowMode(p bool) { r.events = append(r.events, fmt.Sprintf("show=%v", p)) }

func (r *recorder) sleep(d time.Duration) { r.events = append(r.events, "sleep="+d.String()) }

func newSeq(r *recorder) *Sequencer {
	return New(r, WithSleep(r.sleep), WithModeIndicator(r), WithLogger(logging.Discard()))
}

func TestRunNormalOrder(t *testing.T) {
	r := &recorder{}
	prog, err := newSeq(r).Run()
	require.NoError(t, err)
	assert.False(t, prog)
	assert.Equal(t, []string{
		"sample", "show=false",
		"enable=Low", "reset=Low",
		"sleep=100ms",
		"mode0=High", "mode1=High",
		"enable=High", "reset=High",
	}, r.events)
}

func TestRunProgrammingOrder(t *testing.T) {
	r := &recorder{selector: true}
	prog, err := newSeq(r).Run()
	require.NoError(t, err)
	assert.True(t, prog)
	assert.Equal(t, []string{
		"sample", "show=true",
		"enable=Low", "reset=Low",
		"sleep=100ms",
		"mode0=Low", "mode1=High",
		"enable=High", "reset=High",
	}, r.events)
}

func TestRunSamplesOnceAndNeverReenters(t *testing.T) {
	r := &recorder{selector: true}
	s := newSeq(r)
	_, err := s.Run()
	require.NoError(t, err)
	n := len(r.events)

	r.selector = false
	_, err = s.Run()
	require.ErrorIs(t, err, ErrAlreadyBooted)
	assert.Equal(t, 1, r.reads)
	assert.Len(t, r.events, n, "second run must not touch pins")
}

func TestRunPinFailureIsFatal(t *testing.T) {
	r := &recorder{failOn: "mode0=High"}
	_, err := newSeq(r).Run()
	require.ErrorIs(t, err, ErrPinWrite)
	assert.NotContains(t, r.events, "enable=High", "must not power up after a failed write")
}

func TestRunRealDelay(t *testing.T) {
	if testing.Short() {
		t.Skip("wall-clock delay")
	}
	r := &recorder{}
	start := time.Now()
	_, err := New(r, WithLogger(logging.Discard())).Run()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), SettleDelay)
}

func TestModeName(t *testing.T) {
	assert.Equal(t, "programming", ModeName(true))
	assert.Equal(t, "normal", ModeName(false))
}
