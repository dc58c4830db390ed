package lanenet

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FrameWriter is where a Conn puts encoded envelopes. *Channel implements it.
type FrameWriter interface {
	WriteEncoded(b []byte) error
}

type seqPayload struct {
	Seq uint64 `cbor:"s"`
}

type sendPktCtx struct {
	seq        uint64
	typ        string
	pkt        []byte
	wFirstTime time.Time
	wLastTime  time.Time
	wCount     int
}

type histEntry struct {
	seq uint64
	pkt []byte
}

type connConfig struct {
	ack            AckPolicy
	reorderLimit   int
	historySize    int
	gapTimeout     time.Duration
	maxGapRequests int
	now            func() time.Time
	log            zerolog.Logger
}

type ConnOption func(*connConfig)

func WithAckPolicy(p AckPolicy) ConnOption {
	return func(c *connConfig) {
		c.ack = p
	}
}

func WithReorderLimit(n int) ConnOption {
	return func(c *connConfig) {
		c.reorderLimit = n
	}
}

func WithHistorySize(n int) ConnOption {
	return func(c *connConfig) {
		c.historySize = n
	}
}

// WithGapPolicy sets how long a receive gap may stay open before the missing
// sequences are requested, and how many requests are made before giving up.
func WithGapPolicy(timeout time.Duration, maxRequests int) ConnOption {
	return func(c *connConfig) {
		c.gapTimeout = timeout
		c.maxGapRequests = maxRequests
	}
}

func WithClock(now func() time.Time) ConnOption {
	return func(c *connConfig) {
		c.now = now
	}
}

func WithLogger(log zerolog.Logger) ConnOption {
	return func(c *connConfig) {
		c.log = log
	}
}

// maxGapFill bounds the retransmit requests sent for one gap per sweep.
const maxGapFill = 16

// Conn layers sequencing, acknowledgement, retransmission and in-order
// delivery over a FrameWriter. It never reads: the owner feeds every received
// envelope to HandleRecv and calls Sweep periodically.
type Conn struct {
	w   FrameWriter
	cfg connConfig
	mtx sync.Mutex

	wSeq    uint64
	pending map[uint64]*sendPktCtx
	hist    []histEntry

	rSorter   *sorter
	delivered []Envelope

	gapMark     time.Time
	gapRequests int

	rttSamples []time.Duration

	retransmits  uint64
	failed       uint64
	duplicates   uint64
	reorderDrops uint64
	gapSkips     uint64
}

func NewConn(w FrameWriter, opts ...ConnOption) *Conn {
	cfg := connConfig{
		ack:            DefaultAckPolicy(),
		reorderLimit:   DefaultReorderLimit,
		historySize:    DefaultHistorySize,
		gapTimeout:     DefaultGapTimeout,
		maxGapRequests: DefaultMaxGapRequests,
		now:            time.Now,
		log:            zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.historySize <= 0 {
		cfg.historySize = DefaultHistorySize
	}
	con := &Conn{
		w:       w,
		cfg:     cfg,
		pending: map[uint64]*sendPktCtx{},
		hist:    make([]histEntry, cfg.historySize),
	}
	con.rSorter = newSorter(cfg.reorderLimit, con.onAppend)
	return con
}

func (con *Conn) onAppend(run []indexedEnv) {
	for _, d := range run {
		con.delivered = append(con.delivered, d.env)
	}
	con.gapRequests = 0
	if con.rSorter.Len() > 0 {
		con.gapMark = con.cfg.now()
	} else {
		con.gapMark = time.Time{}
	}
}

func (con *Conn) takeDelivered() []Envelope {
	out := con.delivered
	con.delivered = nil
	return out
}

func (con *Conn) write(pkt []byte) error {
	return con.w.WriteEncoded(pkt)
}

// Send wraps payload in an envelope of type typ and writes it. Sequenced
// types are assigned the next sequence number and kept until acknowledged;
// the returned sequence is meaningless for control types.
func (con *Conn) Send(typ string, payload interface{}) (uint64, error) {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		return 0, err
	}

	con.mtx.Lock()
	defer con.mtx.Unlock()

	return con.send(env)
}

func (con *Conn) send(env Envelope) (uint64, error) {
	now := con.cfg.now()
	env.Timestamp = now.UnixNano()
	isSequenced := IsSequenced(env.Type)
	if isSequenced {
		env.Seq = con.wSeq
	}

	pkt, err := Encode(env)
	if err != nil {
		return 0, err
	}

	if isSequenced {
		con.wSeq++
		con.pending[env.Seq] = &sendPktCtx{
			seq:        env.Seq,
			typ:        env.Type,
			pkt:        pkt,
			wFirstTime: now,
			wLastTime:  now,
		}
		con.hist[env.Seq%uint64(len(con.hist))] = histEntry{env.Seq, pkt}
	}
	metrics().add(metrics().sent, typeAttr(env.Type))
	return env.Seq, con.write(pkt)
}

func (con *Conn) sendControl(typ string, seq uint64) error {
	env, err := NewEnvelope(typ, seqPayload{seq})
	if err != nil {
		return err
	}
	_, err = con.send(env)
	return err
}

// HandleRecv processes one received envelope and returns the sequenced
// envelopes that became deliverable, in sequence order. The error is a
// write failure while answering.
func (con *Conn) HandleRecv(env Envelope) ([]Envelope, error) {
	con.mtx.Lock()
	defer con.mtx.Unlock()

	switch env.Type {
	case MsgAck:
		p, err := DecodePayload[seqPayload](env)
		if err != nil {
			con.cfg.log.Warn().Err(err).Msg("bad ack")
			return nil, nil
		}
		con.handleAck(p.Seq)
		return nil, nil

	case MsgRetransmitRequest:
		p, err := DecodePayload[seqPayload](env)
		if err != nil {
			con.cfg.log.Warn().Err(err).Msg("bad retransmit request")
			return nil, nil
		}
		return nil, con.retransmit(p.Seq)
	}

	if !IsSequenced(env.Type) {
		con.cfg.log.Warn().Str("type", env.Type).Msg("ignoring unknown message type")
		return nil, nil
	}

	if err := con.sendControl(MsgAck, env.Seq); err != nil {
		return nil, err
	}

	switch con.rSorter.TryAdd(env.Seq, env) {
	case addBuffered:
		if con.gapMark.IsZero() {
			con.gapMark = con.cfg.now()
		}
	case addDuplicate:
		con.duplicates++
		metrics().add(metrics().duplicates, typeAttr(env.Type))
		con.cfg.log.Debug().Str("type", env.Type).Uint64("seq", env.Seq).Msg("duplicate")
	case addDropped:
		con.reorderDrops++
		metrics().add(metrics().reorderDrops, typeAttr(env.Type))
		con.cfg.log.Warn().
			Str("type", env.Type).
			Uint64("seq", env.Seq).
			Uint64("expected", con.rSorter.Expected()).
			Msg("reorder buffer full, message dropped")
	}
	return con.takeDelivered(), nil
}

func (con *Conn) handleAck(seq uint64) {
	spc, ok := con.pending[seq]
	if !ok {
		return
	}
	delete(con.pending, seq)
	if spc.wCount > 0 {
		return
	}
	rtt := con.cfg.now().Sub(spc.wFirstTime)
	if rtt < 0 {
		return
	}
	con.rttSamples = append(con.rttSamples, rtt)
	if len(con.rttSamples) > rttSamplesMax {
		con.rttSamples = con.rttSamples[len(con.rttSamples)-rttSamplesMax:]
	}
	metrics().rtt.Record(context.Background(), durSeconds(rtt))
}

func (con *Conn) retransmit(seq uint64) error {
	if spc, ok := con.pending[seq]; ok {
		spc.wCount++
		spc.wLastTime = con.cfg.now()
		con.retransmits++
		metrics().add(metrics().retransmits, typeAttr(spc.typ))
		return con.write(spc.pkt)
	}
	he := con.hist[seq%uint64(len(con.hist))]
	if he.pkt == nil || he.seq != seq {
		con.cfg.log.Warn().Uint64("seq", seq).Msg("cannot serve retransmit request, not in history")
		return nil
	}
	con.retransmits++
	metrics().add(metrics().retransmits)
	return con.write(he.pkt)
}

// RequestRetransmit asks the remote side to send seq again.
func (con *Conn) RequestRetransmit(seq uint64) error {
	con.mtx.Lock()
	defer con.mtx.Unlock()

	return con.sendControl(MsgRetransmitRequest, seq)
}

// Sweep retransmits unacknowledged messages older than the ack timeout and
// abandons the ones out of retries. It also chases receive gaps, first by
// requesting the missing sequences, then by skipping past them; envelopes
// released by a skip are returned.
func (con *Conn) Sweep(now time.Time) ([]Envelope, error) {
	con.mtx.Lock()
	defer con.mtx.Unlock()

	var wErr error
	keepErr := func(err error) {
		if err != nil && wErr == nil {
			wErr = err
		}
	}

	for _, seq := range slices.Sorted(maps.Keys(con.pending)) {
		spc := con.pending[seq]
		if now.Sub(spc.wLastTime) <= con.cfg.ack.Timeout {
			continue
		}
		if spc.wCount >= con.cfg.ack.MaxRetries {
			delete(con.pending, seq)
			con.failed++
			metrics().add(metrics().failed, typeAttr(spc.typ))
			con.cfg.log.Warn().
				Str("type", spc.typ).
				Uint64("seq", seq).
				Int("retries", spc.wCount).
				Msg("message failed, giving up")
			continue
		}
		spc.wCount++
		spc.wLastTime = now
		con.retransmits++
		metrics().add(metrics().retransmits, typeAttr(spc.typ))
		keepErr(con.write(spc.pkt))
	}

	if con.rSorter.Len() == 0 || now.Sub(con.gapMark) <= con.cfg.gapTimeout {
		return nil, wErr
	}
	if con.gapRequests < con.cfg.maxGapRequests {
		con.gapRequests++
		con.gapMark = now
		missing := con.missing(maxGapFill)
		con.cfg.log.Debug().
			Uint64("expected", con.rSorter.Expected()).
			Int("count", len(missing)).
			Int("attempt", con.gapRequests).
			Msg("requesting missing messages")
		for _, seq := range missing {
			keepErr(con.sendControl(MsgRetransmitRequest, seq))
		}
		return nil, wErr
	}

	from := con.rSorter.Expected()
	skipped := con.rSorter.SkipGap()
	con.gapSkips++
	metrics().add(metrics().gapSkips)
	con.cfg.log.Warn().Uint64("from", from).Uint64("skipped", skipped).Msg("abandoning sequence gap")
	return con.takeDelivered(), wErr
}

func (con *Conn) missing(limit int) []uint64 {
	if con.rSorter.Len() == 0 {
		return nil
	}
	var seqs []uint64
	for seq := con.rSorter.Expected(); seq < con.rSorter.discretes[0].ix && len(seqs) < limit; seq++ {
		seqs = append(seqs, seq)
	}
	return seqs
}

// Pending lists the sequences still waiting for an ack.
func (con *Conn) Pending() []uint64 {
	con.mtx.Lock()
	defer con.mtx.Unlock()

	return slices.Sorted(maps.Keys(con.pending))
}

type Stats struct {
	AverageRTT   time.Duration
	Pending      int
	LossRate     float64
	Sent         uint64
	Retransmits  uint64
	Failed       uint64
	Duplicates   uint64
	ReorderDrops uint64
	GapSkips     uint64
	Buffered     int
	Expected     uint64
}

func (s Stats) MarshalZerologObject(e *zerolog.Event) {
	e.Dur("avg_rtt", s.AverageRTT).
		Int("pending", s.Pending).
		Float64("loss_rate", s.LossRate).
		Uint64("sent", s.Sent).
		Uint64("retransmits", s.Retransmits).
		Uint64("failed", s.Failed).
		Uint64("duplicates", s.Duplicates).
		Uint64("reorder_drops", s.ReorderDrops).
		Uint64("gap_skips", s.GapSkips).
		Int("buffered", s.Buffered).
		Uint64("expected", s.Expected)
}

func (con *Conn) Stats() Stats {
	con.mtx.Lock()
	defer con.mtx.Unlock()

	s := Stats{
		Pending:      len(con.pending),
		Sent:         con.wSeq,
		Retransmits:  con.retransmits,
		Failed:       con.failed,
		Duplicates:   con.duplicates,
		ReorderDrops: con.reorderDrops,
		GapSkips:     con.gapSkips,
		Buffered:     con.rSorter.Len(),
		Expected:     con.rSorter.Expected(),
	}
	if len(con.rttSamples) > 0 {
		var sum time.Duration
		for _, rtt := range con.rttSamples {
			sum += rtt
		}
		s.AverageRTT = sum / time.Duration(len(con.rttSamples))
	}
	s.LossRate = float64(s.Pending) / float64(max(1, s.Sent))
	return s
}
