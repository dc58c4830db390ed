package lanenet

import (
	"sync/atomic"
	"time"
)

type atomicTime struct {
	val int64
}

func newAtomicTime(t time.Time) *atomicTime {
	return &atomicTime{t.UnixNano()}
}

func (at *atomicTime) Set(t time.Time) {
	atomic.StoreInt64(&at.val, t.UnixNano())
}

func (at *atomicTime) Get() time.Time {
	return time.Unix(0, atomic.LoadInt64(&at.val))
}

func durSeconds(d time.Duration) float64 {
	return d.Seconds()
}
