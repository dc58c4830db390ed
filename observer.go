package lanenet

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yulon/go-lanenet/sim"
)

// Observer receives session lifecycle callbacks on the goroutine that calls
// Tick. Implementations must not block.
type Observer interface {
	OnConnected()
	OnDisconnected(reason string)
	OnSnapshotApplied(st *sim.State)
}

type nopObserver struct{}

func (nopObserver) OnConnected()                 {}
func (nopObserver) OnDisconnected(string)        {}
func (nopObserver) OnSnapshotApplied(*sim.State) {}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	Connected       func()
	Disconnected    func(reason string)
	SnapshotApplied func(st *sim.State)
}

func (o ObserverFuncs) OnConnected() {
	if o.Connected != nil {
		o.Connected()
	}
}

func (o ObserverFuncs) OnDisconnected(reason string) {
	if o.Disconnected != nil {
		o.Disconnected(reason)
	}
}

func (o ObserverFuncs) OnSnapshotApplied(st *sim.State) {
	if o.SnapshotApplied != nil {
		o.SnapshotApplied(st)
	}
}

// MatchResult is what the host records once a match has an outcome.
type MatchResult struct {
	SessionID uuid.UUID
	Outcome   sim.Outcome
	Duration  time.Duration
	LeftHP    float64
	RightHP   float64
	Peer      string
	EndedAt   time.Time
}

type ResultSink interface {
	SaveResult(ctx context.Context, r MatchResult) error
}
