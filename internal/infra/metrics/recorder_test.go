package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/routinetimer/internal/domain/cue"
)

func TestRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	r := NewRecorder(reg)

	r.IncOperation("pause")
	r.IncOperation("pause")
	r.SetState("running")
	r.SetState("paused")
	r.SetRemaining(1500 * time.Millisecond)
	r.IncStepCompleted()
	r.IncSessionCompleted()
	r.IncSessionLoaded("routine")
	r.CueDelivered("beep", cue.KindStep, nil)
	r.CueDelivered("beep", cue.KindStep, errors.New("no device"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues("pause")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.state.WithLabelValues("paused")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.state), "only the current state is exported")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("running")))
	assert.Equal(t, 1.5, testutil.ToFloat64(r.remaining))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sessionsCompleted))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cues.WithLabelValues("beep", "step", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cues.WithLabelValues("beep", "step", "success")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.IncOperation("start")
	r.SetState("running")
	r.SetRemaining(time.Second)
	r.IncStepCompleted()
	r.IncSessionCompleted()
	r.IncSessionLoaded("duration")
	r.CueDelivered("log", cue.KindSession, nil)
}

func TestHTTPHandler(t *testing.T) {
	reg := NewRegistry()
	r := NewRecorder(reg)
	r.IncStepCompleted()

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "routinetimer_steps_completed_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
