package lanenet

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrConnectFailed = errors.New("connect failed")
	errPeerWasClosed = errors.New("peer was closed")
)

// Peer is the host side listener. It keeps at most one active channel; a
// second client is refused until the first one's stream has ended.
type Peer struct {
	mtx       sync.Mutex
	locLnr    net.Listener
	acptCh    chan *Channel
	active    *Channel
	wasClosed bool
	chOpts    []ChannelOption
	log       zerolog.Logger
}

func (pr *Peer) opErr(op string, srcErr error) error {
	if srcErr == nil {
		return nil
	}
	return &net.OpError{Op: op, Net: "lanenet", Source: pr.Addr(), Addr: nil, Err: srcErr}
}

func ListenListener(lnr net.Listener, log zerolog.Logger, opts ...ChannelOption) *Peer {
	pr := &Peer{
		locLnr: lnr,
		acptCh: make(chan *Channel, 1),
		chOpts: append([]ChannelOption{WithChannelLogger(log)}, opts...),
		log:    log,
	}
	go pr.loopAccept()
	return pr
}

func Listen(addr string, log zerolog.Logger, opts ...ChannelOption) (*Peer, error) {
	lnr, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	pr := ListenListener(lnr, log, opts...)
	log.Info().Str("addr", lnr.Addr().String()).Msg("listening")
	return pr, nil
}

func (pr *Peer) loopAccept() {
	defer close(pr.acptCh)
	for {
		con, err := pr.locLnr.Accept()
		if err != nil {
			pr.mtx.Lock()
			closed := pr.wasClosed
			pr.mtx.Unlock()
			if !closed {
				pr.log.Error().Err(err).Msg("accept failed")
			}
			return
		}
		pr.admit(con)
	}
}

func (pr *Peer) admit(con net.Conn) {
	pr.mtx.Lock()
	defer pr.mtx.Unlock()

	if pr.wasClosed {
		con.Close()
		return
	}
	if pr.active != nil {
		select {
		case <-pr.active.Done():
		default:
			pr.log.Warn().Str("peer", con.RemoteAddr().String()).Msg("refusing second peer")
			con.Close()
			return
		}
	}
	ch := NewChannel(con, pr.chOpts...)
	pr.active = ch
	pr.log.Info().Str("peer", con.RemoteAddr().String()).Msg("peer connected")
	select {
	case pr.acptCh <- ch:
	default:
		// the previous peer was never collected; replace it
		select {
		case old := <-pr.acptCh:
			old.Close()
		default:
		}
		pr.acptCh <- ch
	}
}

// Accepted delivers each admitted channel once. It is closed when the peer closes.
func (pr *Peer) Accepted() <-chan *Channel {
	return pr.acptCh
}

func (pr *Peer) Accept() (*Channel, error) {
	ch, ok := <-pr.acptCh
	if !ok {
		return nil, pr.opErr("Accept", errPeerWasClosed)
	}
	return ch, nil
}

func (pr *Peer) Addr() net.Addr {
	return pr.locLnr.Addr()
}

func (pr *Peer) Close() error {
	pr.mtx.Lock()
	defer pr.mtx.Unlock()

	if pr.wasClosed {
		return pr.opErr("Close", errPeerWasClosed)
	}
	pr.wasClosed = true
	return pr.opErr("Close", pr.locLnr.Close())
}

// Dial connects to a host, retrying with exponential backoff per policy.
func Dial(ctx context.Context, addr string, policy ConnectPolicy, log zerolog.Logger, opts ...ChannelOption) (*Channel, error) {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := policy.Backoff
	dlr := net.Dialer{Timeout: policy.Timeout}

	var lastErr error
	for i := 0; i < attempts; i++ {
		con, err := dlr.DialContext(ctx, "tcp", addr)
		if err == nil {
			log.Info().Str("addr", addr).Int("attempt", i+1).Msg("connected")
			return NewChannel(con, append([]ChannelOption{WithChannelLogger(log)}, opts...)...), nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", i+1).Msg("connection attempt failed")
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, &net.OpError{Op: "dial", Net: "lanenet", Err: ctx.Err()}
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	log.Error().Str("addr", addr).Msg("failed to connect after all retries")
	return nil, &net.OpError{Op: "dial", Net: "lanenet", Err: fmt.Errorf("%w after %d attempts: %v", ErrConnectFailed, attempts, lastErr)}
}
