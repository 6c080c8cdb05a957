package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordIngest(t *testing.T) {
	before := testutil.ToFloat64(SegmentsIndexed)
	okBefore := testutil.ToFloat64(VideosProcessed.WithLabelValues("success"))
	errBefore := testutil.ToFloat64(VideosProcessed.WithLabelValues("error"))

	RecordIngest(3, time.Now(), nil)
	RecordIngest(7, time.Now(), errors.New("boom"))

	if got := testutil.ToFloat64(SegmentsIndexed) - before; got != 3 {
		t.Errorf("segments indexed delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(VideosProcessed.WithLabelValues("success")) - okBefore; got != 1 {
		t.Errorf("success delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(VideosProcessed.WithLabelValues("error")) - errBefore; got != 1 {
		t.Errorf("error delta = %v, want 1", got)
	}
}

func TestRecordPersistence(t *testing.T) {
	before := testutil.ToFloat64(PersistenceOps.WithLabelValues("save", "error"))
	RecordPersistence("save", errors.New("disk full"))
	if got := testutil.ToFloat64(PersistenceOps.WithLabelValues("save", "error")) - before; got != 1 {
		t.Errorf("save error delta = %v, want 1", got)
	}
}

func TestSetStoreSize(t *testing.T) {
	SetStoreSize(42)
	if got := testutil.ToFloat64(StoreSize); got != 42 {
		t.Errorf("store size = %v, want 42", got)
	}
}
