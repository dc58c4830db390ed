package lanenet

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrConnectionLost = errors.New("connection lost")
	ErrClosedByLocal  = errors.New("closed by local")
)

type channelConfig struct {
	maxFrame     int
	inboxSize    int
	outboxSize   int
	writeTimeout time.Duration
	log          zerolog.Logger
}

type ChannelOption func(*channelConfig)

func WithMaxFrameSize(n int) ChannelOption {
	return func(c *channelConfig) {
		c.maxFrame = n
	}
}

func WithInboxSize(n int) ChannelOption {
	return func(c *channelConfig) {
		c.inboxSize = n
	}
}

// WithOutboxSize bounds how many frames may wait for the writer goroutine.
// A peer that lets the outbox fill up is treated as lost.
func WithOutboxSize(n int) ChannelOption {
	return func(c *channelConfig) {
		c.outboxSize = n
	}
}

func WithWriteTimeout(d time.Duration) ChannelOption {
	return func(c *channelConfig) {
		c.writeTimeout = d
	}
}

func WithChannelLogger(log zerolog.Logger) ChannelOption {
	return func(c *channelConfig) {
		c.log = log
	}
}

// Channel owns one TCP stream. A background goroutine reads frames, decodes
// them and queues envelopes; the owner drains them with Poll. Another one
// drains the outbox onto the socket, so neither Poll nor WriteEncoded blocks.
type Channel struct {
	conn net.Conn
	cfg  channelConfig
	ib   *inbox
	outs chan []byte

	isClosing uint32
	done      chan struct{}
	wDone     chan struct{}

	rLastTime *atomicTime
	wLastTime *atomicTime
}

func NewChannel(conn net.Conn, opts ...ChannelOption) *Channel {
	cfg := channelConfig{
		maxFrame:     DefaultMaxFrameSize,
		inboxSize:    DefaultInboxSize,
		outboxSize:   DefaultOutboxSize,
		writeTimeout: 5 * time.Second,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.outboxSize <= 0 {
		cfg.outboxSize = DefaultOutboxSize
	}
	now := time.Now()
	ch := &Channel{
		conn:      conn,
		cfg:       cfg,
		ib:        newInbox(cfg.inboxSize),
		outs:      make(chan []byte, cfg.outboxSize),
		done:      make(chan struct{}),
		wDone:     make(chan struct{}),
		rLastTime: newAtomicTime(now),
		wLastTime: newAtomicTime(now),
	}
	ch.cfg.log = cfg.log.With().Str("peer", conn.RemoteAddr().String()).Logger()
	go ch.loopRecv()
	go ch.loopSend()
	return ch
}

func (ch *Channel) opErr(op string, srcErr error) error {
	if srcErr == nil {
		return nil
	}
	return &net.OpError{Op: op, Net: "lanenet", Source: ch.conn.LocalAddr(), Addr: ch.conn.RemoteAddr(), Err: srcErr}
}

func (ch *Channel) loopRecv() {
	defer close(ch.done)
	for atomic.LoadUint32(&ch.isClosing) == 0 {
		b, err := ReadFrame(ch.conn, ch.cfg.maxFrame)
		if err != nil {
			ch.ib.Close(ch.recvErr(err))
			return
		}
		ch.rLastTime.Set(time.Now())

		env, err := Decode(b)
		if err != nil {
			metrics().add(metrics().decodeErrors)
			ch.cfg.log.Error().Err(err).Int("size", len(b)).Msg("discarding undecodable message")
			continue
		}
		if !ch.ib.Put(env) {
			metrics().add(metrics().inboxDrops)
			ch.cfg.log.Warn().Str("type", env.Type).Uint64("seq", env.Seq).Msg("inbox full, message dropped")
		}
	}
	ch.ib.Close(ErrClosedByLocal)
}

func (ch *Channel) recvErr(err error) error {
	if atomic.LoadUint32(&ch.isClosing) == 1 {
		return ErrClosedByLocal
	}
	if errors.Is(err, ErrFrameTooLarge) {
		ch.cfg.log.Error().Err(err).Msg("stream out of sync")
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		ch.cfg.log.Warn().Msg("peer closed the connection")
	} else {
		ch.cfg.log.Error().Err(err).Msg("connection error in receive")
	}
	return fmt.Errorf("%w: %v", ErrConnectionLost, err)
}

// Write encodes env and writes it as one frame.
func (ch *Channel) Write(env Envelope) error {
	b, err := Encode(env)
	if err != nil {
		return ch.opErr("Write", err)
	}
	return ch.WriteEncoded(b)
}

// WriteEncoded queues an already encoded envelope for the writer goroutine.
// A full outbox means the peer stopped reading: the channel is closed and
// every later Poll reports ErrConnectionLost.
func (ch *Channel) WriteEncoded(b []byte) error {
	if atomic.LoadUint32(&ch.isClosing) == 1 {
		return ch.opErr("Write", ErrClosedByLocal)
	}
	select {
	case <-ch.wDone:
		return ch.opErr("Write", ErrConnectionLost)
	default:
	}
	select {
	case ch.outs <- b:
		return nil
	default:
	}
	err := fmt.Errorf("%w: outbox full (%d frames)", ErrConnectionLost, cap(ch.outs))
	ch.cfg.log.Error().Err(err).Msg("peer is not reading")
	ch.fail(err)
	return ch.opErr("Write", err)
}

func (ch *Channel) loopSend() {
	defer close(ch.wDone)
	for {
		select {
		case b := <-ch.outs:
			if ch.cfg.writeTimeout > 0 {
				ch.conn.SetWriteDeadline(time.Now().Add(ch.cfg.writeTimeout))
			}
			if err := WriteFrame(ch.conn, b); err != nil {
				if atomic.LoadUint32(&ch.isClosing) == 0 {
					ch.cfg.log.Error().Err(err).Msg("connection error in send")
					ch.fail(fmt.Errorf("%w: %v", ErrConnectionLost, err))
				}
				return
			}
			ch.wLastTime.Set(time.Now())
		case <-ch.done:
			return
		}
	}
}

// fail ends the stream on a send side error. The inbox keeps the reason so
// the owner learns about it from Poll.
func (ch *Channel) fail(err error) {
	ch.ib.Close(err)
	ch.conn.Close()
}

// Poll returns the next received envelope without blocking. The error is
// non-nil only once the stream has ended and every queued envelope was taken.
func (ch *Channel) Poll() (Envelope, bool, error) {
	env, ok, err := ch.ib.Poll()
	if ok {
		return env, true, nil
	}
	return Envelope{}, false, err
}

// Close stops the receive goroutine by closing the socket.
func (ch *Channel) Close() error {
	if !atomic.CompareAndSwapUint32(&ch.isClosing, 0, 1) {
		return ch.opErr("Close", ErrClosedByLocal)
	}
	err := ch.conn.Close()
	ch.ib.Close(ErrClosedByLocal)
	ch.ib.Drain()
	return ch.opErr("Close", err)
}

// Done is closed once the receive goroutine has exited. The writer goroutine
// follows it.
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

func (ch *Channel) LocalAddr() net.Addr {
	return ch.conn.LocalAddr()
}

func (ch *Channel) RemoteAddr() net.Addr {
	return ch.conn.RemoteAddr()
}

func (ch *Channel) LastReadTime() time.Time {
	return ch.rLastTime.Get()
}

func (ch *Channel) LastWriteTime() time.Time {
	return ch.wLastTime.Get()
}
