package lanenet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/yulon/go-lanenet/sim"
)

type Role uint8

const (
	RoleHost Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleClient {
		return "client"
	}
	return "host"
}

// Side is the side a role plays: the host is left, the client is right.
func (r Role) Side() sim.Side {
	if r == RoleClient {
		return sim.SideRight
	}
	return sim.SideLeft
}

type ConnState uint8

const (
	StateIdle ConnState = iota
	StateListening
	StateConnecting
	StateConnected
	StateDisconnected
)

func (cs ConnState) String() string {
	switch cs {
	case StateListening:
		return "listening"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	}
	return "idle"
}

const (
	ReasonConnectionLost   = "Connection Lost"
	ReasonConnectionFailed = "Connection Failed"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrBadState     = errors.New("session already started")
	ErrWrongSide    = errors.New("cannot spawn for the other side")
)

type sessionConfig struct {
	log            zerolog.Logger
	observer       Observer
	stepper        sim.Stepper
	decider        sim.SpawnDecider
	deciderSide    sim.Side
	simCfg         sim.Config
	roster         sim.Roster
	assets         AssetTable
	connect        ConnectPolicy
	connOpts       []ConnOption
	chOpts         []ChannelOption
	snapshotHz     float64
	fullEvery      int
	spawnRate      float64
	spawnBurst     int
	errorCountdown time.Duration
	results        ResultSink
	now            func() time.Time
}

type SessionOption func(*sessionConfig)

func WithSessionLogger(log zerolog.Logger) SessionOption {
	return func(c *sessionConfig) {
		c.log = log
	}
}

func WithObserver(o Observer) SessionOption {
	return func(c *sessionConfig) {
		c.observer = o
	}
}

// WithSimulation replaces the rules the host runs. stepper may be nil, in
// which case the default combat stepper is built from cfg and roster.
func WithSimulation(cfg sim.Config, roster sim.Roster, stepper sim.Stepper) SessionOption {
	return func(c *sessionConfig) {
		c.simCfg = cfg
		c.roster = roster
		c.stepper = stepper
	}
}

// WithSpawnDecider lets a local collaborator pick spawns for side on the host.
func WithSpawnDecider(side sim.Side, d sim.SpawnDecider) SessionOption {
	return func(c *sessionConfig) {
		c.deciderSide = side
		c.decider = d
	}
}

func WithAssets(assets AssetTable) SessionOption {
	return func(c *sessionConfig) {
		c.assets = assets
	}
}

func WithConnectPolicy(p ConnectPolicy) SessionOption {
	return func(c *sessionConfig) {
		c.connect = p
	}
}

func WithConnOptions(opts ...ConnOption) SessionOption {
	return func(c *sessionConfig) {
		c.connOpts = append(c.connOpts, opts...)
	}
}

func WithChannelOptions(opts ...ChannelOption) SessionOption {
	return func(c *sessionConfig) {
		c.chOpts = append(c.chOpts, opts...)
	}
}

// WithSnapshotRate sets how many snapshots per second the host sends and how
// many sends pass between two full snapshots.
func WithSnapshotRate(hz float64, fullEvery int) SessionOption {
	return func(c *sessionConfig) {
		c.snapshotHz = hz
		c.fullEvery = fullEvery
	}
}

// WithSpawnLimit bounds how fast the host accepts spawn requests from the peer.
func WithSpawnLimit(perSecond float64, burst int) SessionOption {
	return func(c *sessionConfig) {
		c.spawnRate = perSecond
		c.spawnBurst = burst
	}
}

func WithErrorCountdown(d time.Duration) SessionOption {
	return func(c *sessionConfig) {
		c.errorCountdown = d
	}
}

func WithResultSink(rs ResultSink) SessionOption {
	return func(c *sessionConfig) {
		c.results = rs
	}
}

func WithSessionClock(now func() time.Time) SessionOption {
	return func(c *sessionConfig) {
		c.now = now
	}
}

type dialResult struct {
	ch  *Channel
	err error
}

// Session runs one side of a match. Every method must be called from the
// goroutine that drives Tick; network reads happen on the channel's own
// goroutine and are only ever polled here.
type Session struct {
	id   uuid.UUID
	role Role
	cfg  sessionConfig
	log  zerolog.Logger

	state ConnState
	pr    *Peer
	ch    *Channel
	con   *Conn

	dialCh     chan dialResult
	cancelDial context.CancelFunc

	st     *sim.State
	ref    *sim.State
	refSeq uint64
	sent   int

	snapLim  *rate.Limiter
	spawnLim *rate.Limiter
	spawns   []sim.SpawnCommand
	sendNow  bool
	saved    bool

	reason    string
	countdown time.Duration
	home      bool
}

func NewSession(role Role, opts ...SessionOption) *Session {
	cfg := sessionConfig{
		log:            zerolog.Nop(),
		observer:       nopObserver{},
		simCfg:         sim.DefaultConfig(),
		roster:         sim.DefaultRoster(),
		connect:        DefaultConnectPolicy(),
		snapshotHz:     DefaultSnapshotHz,
		fullEvery:      DefaultFullStateInterval,
		spawnRate:      DefaultSpawnRate,
		spawnBurst:     DefaultSpawnBurst,
		errorCountdown: DefaultErrorCountdown,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.stepper == nil {
		cfg.stepper = sim.NewCombat(cfg.simCfg, cfg.roster)
	}
	if cfg.fullEvery <= 0 {
		cfg.fullEvery = DefaultFullStateInterval
	}

	id := uuid.New()
	s := &Session{
		id:       id,
		role:     role,
		cfg:      cfg,
		log:      cfg.log.With().Str("session", id.String()).Str("role", role.String()).Logger(),
		st:       sim.NewState(cfg.simCfg),
		snapLim:  rate.NewLimiter(rate.Limit(cfg.snapshotHz), 1),
		spawnLim: rate.NewLimiter(rate.Limit(cfg.spawnRate), cfg.spawnBurst),
	}
	return s
}

func (s *Session) ID() uuid.UUID {
	return s.id
}

func (s *Session) Role() Role {
	return s.role
}

func (s *Session) ConnState() ConnState {
	return s.state
}

// State is the local copy of the match: authoritative on the host, the
// latest applied snapshot on the client.
func (s *Session) State() *sim.State {
	return s.st
}

func (s *Session) Stats() Stats {
	if s.con == nil {
		return Stats{}
	}
	return s.con.Stats()
}

// Addr is the listening address of a hosting session.
func (s *Session) Addr() net.Addr {
	if s.pr == nil {
		return nil
	}
	return s.pr.Addr()
}

// LastActivity reports when the current connection last received and last
// sent a frame.
func (s *Session) LastActivity() (read, write time.Time) {
	if s.ch == nil {
		return
	}
	return s.ch.LastReadTime(), s.ch.LastWriteTime()
}

func (s *Session) Reason() string {
	return s.reason
}

// Countdown is the time left before a disconnected session returns home.
func (s *Session) Countdown() time.Duration {
	return s.countdown
}

// ReturnHome reports whether the UI should leave the match.
func (s *Session) ReturnHome() bool {
	return s.home
}

// Host starts listening. The first peer to connect becomes the opponent.
func (s *Session) Host(ctx context.Context, addr string) error {
	if s.role != RoleHost || s.state != StateIdle {
		return ErrBadState
	}
	var lc net.ListenConfig
	lnr, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	s.pr = ListenListener(lnr, s.log, s.cfg.chOpts...)
	s.state = StateListening
	s.log.Info().Str("addr", lnr.Addr().String()).Msg("hosting")
	return nil
}

// Join starts connecting in the background; Tick picks up the result.
func (s *Session) Join(ctx context.Context, addr string) error {
	if s.role != RoleClient || s.state != StateIdle {
		return ErrBadState
	}
	ctx, s.cancelDial = context.WithCancel(ctx)
	s.dialCh = make(chan dialResult, 1)
	s.state = StateConnecting
	s.log.Info().Str("addr", addr).Msg("joining")

	go func() {
		ch, err := Dial(ctx, addr, s.cfg.connect, s.log, s.cfg.chOpts...)
		if err == nil && ctx.Err() != nil {
			ch.Close()
			ch, err = nil, ctx.Err()
		}
		s.dialCh <- dialResult{ch, err}
	}()
	return nil
}

func (s *Session) attach(ch *Channel) {
	s.ch = ch
	opts := append([]ConnOption{
		WithLogger(s.log.With().Str("peer", ch.RemoteAddr().String()).Logger()),
		WithClock(s.cfg.now),
	}, s.cfg.connOpts...)
	s.con = NewConn(ch, opts...)
	s.state = StateConnected
	s.log.Info().Str("peer", ch.RemoteAddr().String()).Msg("connected")
	s.cfg.observer.OnConnected()

	if s.role == RoleHost {
		s.ref = nil
		s.sent = 0
		s.sendSnapshot()
	}
}

// Tick advances the session by dt: it drains the network, runs the
// simulation on the host and handles timeouts. It never blocks on I/O.
func (s *Session) Tick(dt time.Duration) {
	switch s.state {
	case StateListening:
		select {
		case ch, ok := <-s.pr.Accepted():
			if !ok {
				s.disconnect(ReasonConnectionLost, errPeerWasClosed)
				return
			}
			s.attach(ch)
		default:
			return
		}

	case StateConnecting:
		select {
		case r := <-s.dialCh:
			s.dialCh = nil
			if r.err != nil {
				s.disconnect(ReasonConnectionFailed, r.err)
				return
			}
			s.attach(r.ch)
		default:
			return
		}

	case StateDisconnected:
		if s.home {
			return
		}
		s.countdown -= dt
		if s.countdown <= 0 {
			s.countdown = 0
			s.home = true
		}
		return

	case StateIdle:
		return
	}

	if !s.pump() {
		return
	}
	if s.role == RoleHost {
		s.step(dt)
		if s.state != StateConnected {
			return
		}
		if s.sendNow || s.snapLim.AllowN(s.cfg.now(), 1) {
			s.sendSnapshot()
		}
	}
}

// pump drains received envelopes and runs the retransmission sweep. It
// reports false once the session has dropped.
func (s *Session) pump() bool {
	for {
		env, ok, err := s.ch.Poll()
		if err != nil {
			s.disconnect(ReasonConnectionLost, err)
			return false
		}
		if !ok {
			break
		}
		envs, err := s.con.HandleRecv(env)
		if err != nil {
			s.disconnect(ReasonConnectionLost, err)
			return false
		}
		for _, env := range envs {
			s.dispatch(env)
		}
	}

	envs, err := s.con.Sweep(s.cfg.now())
	if err != nil {
		s.disconnect(ReasonConnectionLost, err)
		return false
	}
	for _, env := range envs {
		s.dispatch(env)
	}
	return s.state == StateConnected
}

func (s *Session) dispatch(env Envelope) {
	switch {
	case env.Type == MsgSpawnRequest && s.role == RoleHost:
		s.handleSpawnRequest(env)
	case env.Type == MsgGameState && s.role == RoleClient:
		s.applyFull(env)
	case env.Type == MsgDeltaState && s.role == RoleClient:
		s.applyDelta(env)
	default:
		s.log.Warn().Str("type", env.Type).Uint64("seq", env.Seq).Msg("unexpected message for role")
	}
}

func (s *Session) handleSpawnRequest(env Envelope) {
	typ, err := DecodePayload[string](env)
	if err != nil {
		s.log.Warn().Err(err).Uint64("seq", env.Seq).Msg("bad spawn request")
		return
	}
	if !s.spawnLim.AllowN(s.cfg.now(), 1) {
		s.log.Debug().Str("unit", typ).Msg("spawn request over rate limit")
		return
	}
	s.spawns = append(s.spawns, sim.SpawnCommand{Side: RoleClient.Side(), Type: typ})
}

func (s *Session) applyFull(env Envelope) {
	st, err := Deserialize(env.Payload, s.cfg.assets)
	if err != nil {
		s.degrade(env, err)
		return
	}
	s.ref, s.refSeq = st.Clone(), env.Seq
	s.st = st
	s.cfg.observer.OnSnapshotApplied(s.st)
}

func (s *Session) applyDelta(env Envelope) {
	if s.ref == nil {
		s.log.Debug().Uint64("seq", env.Seq).Msg("delta before any full snapshot")
		return
	}
	next := s.ref.Clone()
	if err := MergeFrom(next, env.Payload, s.cfg.assets, s.refSeq); err != nil {
		s.degrade(env, err)
		return
	}
	s.st = next
	s.cfg.observer.OnSnapshotApplied(s.st)
}

// degrade drops the delta reference so nothing is merged until the next
// full snapshot arrives.
func (s *Session) degrade(env Envelope, err error) {
	s.ref = nil
	s.log.Error().Err(err).Str("type", env.Type).Uint64("seq", env.Seq).Msg("discarding snapshot")
}

func (s *Session) step(dt time.Duration) {
	spawns := s.spawns
	s.spawns = nil
	if s.cfg.decider != nil && !s.st.Outcome.Over() {
		spawns = append(spawns, s.cfg.decider.Decide(s.st, s.cfg.deciderSide)...)
	}

	res := s.cfg.stepper.Step(s.st, durSeconds(dt), s.st.Elapsed, spawns)
	for _, rj := range res.Rejected {
		s.log.Debug().
			Err(rj.Err).
			Str("side", rj.Command.Side.String()).
			Str("unit", rj.Command.Type).
			Msg("spawn ignored")
	}
	for _, u := range res.Spawned {
		s.log.Debug().Uint32("id", u.ID).Str("side", u.Side.String()).Str("unit", u.Type).Msg("spawned")
	}
	if len(res.Spawned) > 0 {
		s.sendNow = true
	}
	if res.Outcome.Over() && !s.saved {
		s.saved = true
		s.sendNow = true
		s.saveResult()
	}
}

func (s *Session) saveResult() {
	r := MatchResult{
		SessionID: s.id,
		Outcome:   s.st.Outcome,
		Duration:  time.Duration(s.st.Elapsed * float64(time.Second)),
		LeftHP:    s.st.Left.HP,
		RightHP:   s.st.Right.HP,
		EndedAt:   s.cfg.now(),
	}
	if s.ch != nil {
		r.Peer = s.ch.RemoteAddr().String()
	}
	s.log.Info().
		Str("outcome", r.Outcome.String()).
		Dur("duration", r.Duration).
		Float64("left_hp", r.LeftHP).
		Float64("right_hp", r.RightHP).
		Msg("match over")
	if s.cfg.results == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cfg.results.SaveResult(ctx, r); err != nil {
		s.log.Error().Err(err).Msg("saving match result")
	}
}

func (s *Session) sendSnapshot() {
	s.sendNow = false
	cur := s.st.Clone()
	typ := MsgDeltaState
	var (
		b   []byte
		err error
	)
	full := s.ref == nil || s.sent%s.cfg.fullEvery == 0
	if full {
		typ = MsgGameState
		b, err = Serialize(cur)
	} else {
		b, err = SerializeDeltaFrom(s.ref, cur, s.refSeq)
	}
	if err != nil {
		s.log.Error().Err(err).Msg("serializing snapshot")
		return
	}
	s.sent++
	seq, err := s.con.Send(typ, cbor.RawMessage(b))
	if err != nil {
		s.disconnect(ReasonConnectionLost, err)
		return
	}
	if full {
		s.ref, s.refSeq = cur, seq
	}
}

// RequestSpawn asks for a unit on side. The host queues it for the next
// step; the client forwards it and never touches its mirror.
func (s *Session) RequestSpawn(side sim.Side, unitType string) error {
	if s.role == RoleHost {
		if s.state != StateConnected {
			return ErrNotConnected
		}
		s.spawns = append(s.spawns, sim.SpawnCommand{Side: side, Type: unitType})
		return nil
	}

	if s.state != StateConnected {
		return ErrNotConnected
	}
	if side != s.role.Side() {
		return ErrWrongSide
	}
	if _, err := s.con.Send(MsgSpawnRequest, unitType); err != nil {
		s.disconnect(ReasonConnectionLost, err)
		return err
	}
	return nil
}

func (s *Session) teardown() {
	if s.cancelDial != nil {
		s.cancelDial()
	}
	if s.dialCh != nil {
		// the dial goroutine always reports once, possibly after a late connect
		go func(dialCh <-chan dialResult) {
			if r := <-dialCh; r.ch != nil {
				r.ch.Close()
			}
		}(s.dialCh)
		s.dialCh = nil
	}
	if s.ch != nil {
		s.ch.Close()
	}
	if s.pr != nil {
		s.pr.Close()
	}
	s.spawns = nil
}

func (s *Session) disconnect(reason string, err error) {
	if s.state == StateDisconnected {
		return
	}
	s.teardown()
	s.state = StateDisconnected
	s.reason = reason
	s.countdown = s.cfg.errorCountdown
	s.log.Warn().Err(err).Str("reason", reason).Dur("countdown", s.countdown).Msg("session dropped")
	s.cfg.observer.OnDisconnected(reason)
}

// Dismiss skips the error countdown.
func (s *Session) Dismiss() {
	if s.state == StateDisconnected {
		s.countdown = 0
		s.home = true
	}
}

// Close ends the session from the local side. Observers are not notified.
func (s *Session) Close() error {
	if s.state == StateDisconnected {
		return nil
	}
	s.teardown()
	s.state = StateDisconnected
	s.reason = ""
	s.home = true
	s.log.Info().Msg("session closed")
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("%s %s (%s)", s.role, s.id, s.state)
}
