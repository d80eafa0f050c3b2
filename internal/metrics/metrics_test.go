package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveQuery(t *testing.T) {
	okBefore := testutil.ToFloat64(queriesTotal.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(queriesTotal.WithLabelValues("error"))

	ObserveQuery(nil)
	ObserveQuery(nil)
	ObserveQuery(errors.New("boom"))

	if got := testutil.ToFloat64(queriesTotal.WithLabelValues("ok")) - okBefore; got != 2 {
		t.Errorf("Expected 2 ok queries, got %v", got)
	}
	if got := testutil.ToFloat64(queriesTotal.WithLabelValues("error")) - errBefore; got != 1 {
		t.Errorf("Expected 1 failed query, got %v", got)
	}
}

func TestObserveStage(t *testing.T) {
	ObserveStage(StageExecute, time.Now().Add(-time.Second), nil)
	ObserveStage(StageExecute, time.Now(), errors.New("rejected"))

	if count := testutil.CollectAndCount(stageDurationSeconds); count < 2 {
		t.Errorf("Expected at least 2 stage series, got %d", count)
	}
}

func TestTraceDropped(t *testing.T) {
	before := testutil.ToFloat64(tracesDroppedTotal)
	TraceDropped()
	if got := testutil.ToFloat64(tracesDroppedTotal) - before; got != 1 {
		t.Errorf("Expected 1 dropped trace, got %v", got)
	}
}
