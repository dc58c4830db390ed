package lanenet

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const instrumentationName = "github.com/yulon/go-lanenet"

type instruments struct {
	sent         metric.Int64Counter
	retransmits  metric.Int64Counter
	failed       metric.Int64Counter
	duplicates   metric.Int64Counter
	reorderDrops metric.Int64Counter
	gapSkips     metric.Int64Counter
	decodeErrors metric.Int64Counter
	inboxDrops   metric.Int64Counter
	rtt          metric.Float64Histogram
}

var (
	instsOnce sync.Once
	insts     *instruments
)

// metrics returns the package instruments, created from the global meter
// provider the first time they are needed (no-op unless one is installed).
func metrics() *instruments {
	instsOnce.Do(func() {
		var err error
		insts, err = newInstruments(otel.Meter(instrumentationName))
		if err != nil {
			otel.Handle(err)
			insts, _ = newInstruments(noop.Meter{})
		}
	})
	return insts
}

func newInstruments(m metric.Meter) (*instruments, error) {
	var (
		in  instruments
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&in.sent, "lanenet.messages.sent", "Messages written, retransmissions excluded"},
		{&in.retransmits, "lanenet.messages.retransmitted", "Sequenced messages written again"},
		{&in.failed, "lanenet.messages.failed", "Sequenced messages dropped after exhausting retries"},
		{&in.duplicates, "lanenet.messages.duplicate", "Stale or duplicate sequenced messages discarded"},
		{&in.reorderDrops, "lanenet.reorder.dropped", "Out-of-order messages dropped because the reorder buffer was full"},
		{&in.gapSkips, "lanenet.reorder.gap_skipped", "Sequence gaps abandoned by the receiver"},
		{&in.decodeErrors, "lanenet.messages.malformed", "Frames that failed to decode"},
		{&in.inboxDrops, "lanenet.inbox.dropped", "Decoded messages dropped because the inbox was full"},
	}
	for _, c := range counters {
		*c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	in.rtt, err = m.Float64Histogram("lanenet.rtt",
		metric.WithDescription("Round trip time measured from acks"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func typeAttr(typ string) metric.AddOption {
	return metric.WithAttributes(attribute.String("type", typ))
}

func (in *instruments) add(c metric.Int64Counter, opts ...metric.AddOption) {
	c.Add(context.Background(), 1, opts...)
}
