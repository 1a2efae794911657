package monitoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordMonitor struct {
	errs    []error
	tags    []map[string]string
	flushed time.Duration
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.errs = append(r.errs, err)
	r.tags = append(r.tags, tags)
}
func (r *recordMonitor) Recover()              {}
func (r *recordMonitor) Flush(d time.Duration) { r.flushed = d }

func TestCaptureRun(t *testing.T) {
	mon := &recordMonitor{}
	Init(mon)
	defer Init(NopMonitor{})

	CaptureRun(errors.New("infeasible"), "r1", "d1")
	CaptureException(nil, nil)
	Init(nil)
	Flush(time.Second)

	assert.Len(t, mon.errs, 1)
	assert.Equal(t, map[string]string{"module": "simulation", "run_id": "r1", "instance": "d1"}, mon.tags[0])
	assert.Equal(t, time.Second, mon.flushed)
}
