package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry())

	r.Attempt("fast", "schema_invalid", 100)
	r.Attempt("strong", "accepted", 250)
	r.JudgeCall("strong", true, 40)
	r.Result("accepted", 0.97, 3*time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(r.attempts.WithLabelValues("fast", "schema_invalid")))
	assert.Equal(t, 290.0, testutil.ToFloat64(r.tokens.WithLabelValues("strong")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.judgeCalls.WithLabelValues("passed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.results.WithLabelValues("accepted")))
}

func TestRecorderKeyWait(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.KeyWait(40 * time.Second)

	count, err := testutil.GatherAndCount(reg, "legalstruct_llm_key_wait_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Attempt("m", "accepted", 1)
		r.JudgeCall("m", false, 1)
		r.Result("exhausted", 0, time.Second)
		r.KeyWait(time.Second)
	})
}
