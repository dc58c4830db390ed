package lanenet

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pollOne(t *testing.T, ch *Channel) (Envelope, error) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		env, ok, err := ch.Poll()
		if ok || err != nil {
			return env, err
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("nothing received")
	return Envelope{}, nil
}

func TestChannelExchange(t *testing.T) {
	a, b := net.Pipe()
	ca, cb := NewChannel(a), NewChannel(b)
	defer ca.Close()
	defer cb.Close()

	env, err := NewEnvelope(MsgSpawnRequest, "Wanderer_Magician")
	require.NoError(t, err)
	env.Seq = 7
	require.NoError(t, ca.Write(env))

	got, err := pollOne(t, cb)
	require.NoError(t, err)
	assert.Equal(t, env, got)

	_, ok, err := cb.Poll()
	assert.False(t, ok)
	assert.NoError(t, err)
}

func TestChannelSkipsMalformed(t *testing.T) {
	a, b := net.Pipe()
	cb := NewChannel(b)
	defer cb.Close()
	defer a.Close()

	env, err := NewEnvelope(MsgGameState, nil)
	require.NoError(t, err)
	good, err := Encode(env)
	require.NoError(t, err)

	go func() {
		WriteFrame(a, []byte("definitely not lz4"))
		WriteFrame(a, good)
	}()

	got, err := pollOne(t, cb)
	require.NoError(t, err)
	assert.Equal(t, MsgGameState, got.Type)
}

func TestChannelPeerClosed(t *testing.T) {
	a, b := net.Pipe()
	cb := NewChannel(b)
	defer cb.Close()

	require.NoError(t, a.Close())
	_, err := pollOne(t, cb)
	assert.ErrorIs(t, err, ErrConnectionLost)

	select {
	case <-cb.Done():
	case <-time.After(time.Second):
		t.Fatal("receive goroutine still running")
	}
}

func TestChannelClose(t *testing.T) {
	a, b := net.Pipe()
	ca := NewChannel(a)
	defer b.Close()

	require.NoError(t, ca.Close())
	assert.ErrorIs(t, ca.Close(), ErrClosedByLocal)
	assert.ErrorIs(t, ca.WriteEncoded([]byte{1}), ErrClosedByLocal)

	<-ca.Done()
	_, ok, err := ca.Poll()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrClosedByLocal)
}

func TestPeerAcceptAndDial(t *testing.T) {
	pr, err := Listen("127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	defer pr.Close()

	ctx := context.Background()
	cli, err := Dial(ctx, pr.Addr().String(), DefaultConnectPolicy(), zerolog.Nop())
	require.NoError(t, err)
	defer cli.Close()

	srv, err := pr.Accept()
	require.NoError(t, err)
	defer srv.Close()

	env, err := NewEnvelope(MsgDeltaState, map[string]int{"lg": 20})
	require.NoError(t, err)
	require.NoError(t, cli.Write(env))
	got, err := pollOne(t, srv)
	require.NoError(t, err)
	assert.Equal(t, env.Payload, got.Payload)

	// two-party only: a second client is hung up on
	other, err := Dial(ctx, pr.Addr().String(), DefaultConnectPolicy(), zerolog.Nop())
	require.NoError(t, err)
	defer other.Close()
	_, err = pollOne(t, other)
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestPeerAdmitsAfterFirstLeaves(t *testing.T) {
	pr, err := Listen("127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	defer pr.Close()

	first, err := Dial(context.Background(), pr.Addr().String(), DefaultConnectPolicy(), zerolog.Nop())
	require.NoError(t, err)
	srv, err := pr.Accept()
	require.NoError(t, err)
	require.NoError(t, first.Close())
	<-srv.Done()

	second, err := Dial(context.Background(), pr.Addr().String(), DefaultConnectPolicy(), zerolog.Nop())
	require.NoError(t, err)
	defer second.Close()
	srv2, err := pr.Accept()
	require.NoError(t, err)
	defer srv2.Close()
	assert.Equal(t, second.LocalAddr().String(), srv2.RemoteAddr().String())
}

func TestDialGivesUp(t *testing.T) {
	lnr, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lnr.Addr().String()
	lnr.Close()

	policy := ConnectPolicy{Timeout: 100 * time.Millisecond, Attempts: 3, Backoff: 5 * time.Millisecond}
	_, err = Dial(context.Background(), addr, policy, zerolog.Nop())
	assert.ErrorIs(t, err, ErrConnectFailed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Dial(ctx, addr, policy, zerolog.Nop())
	assert.Error(t, err)
}

func TestInbox(t *testing.T) {
	ib := newInbox(2)
	assert.True(t, ib.Put(Envelope{Seq: 1}))
	assert.True(t, ib.Put(Envelope{Seq: 2}))
	assert.False(t, ib.Put(Envelope{Seq: 3}))
	assert.Equal(t, 2, ib.Len())

	ib.Close(ErrConnectionLost)
	ib.Close(ErrClosedByLocal)
	assert.False(t, ib.Put(Envelope{Seq: 4}))

	env, ok, err := ib.Poll()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), env.Seq)
	_, ok, _ = ib.Poll()
	require.True(t, ok)

	_, ok, err = ib.Poll()
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrConnectionLost)
}

func TestChannelWriteDoesNotWaitForPeer(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	ca := NewChannel(a, WithOutboxSize(2), WithWriteTimeout(time.Minute))
	defer ca.Close()

	start := time.Now()
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		err = ca.WriteEncoded([]byte{1, 2, 3})
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.ErrorIs(t, err, ErrConnectionLost)

	_, err = pollOne(t, ca)
	assert.ErrorIs(t, err, ErrConnectionLost)
	assert.ErrorIs(t, ca.WriteEncoded([]byte{1}), ErrConnectionLost)
}

func TestChannelActivityTimes(t *testing.T) {
	a, b := net.Pipe()
	ca, cb := NewChannel(a), NewChannel(b)
	defer ca.Close()
	defer cb.Close()

	wrote, read := ca.LastWriteTime(), cb.LastReadTime()
	time.Sleep(5 * time.Millisecond)

	env, err := NewEnvelope(MsgSpawnRequest, "Fire_vizard")
	require.NoError(t, err)
	require.NoError(t, ca.Write(env))
	_, err = pollOne(t, cb)
	require.NoError(t, err)

	assert.True(t, cb.LastReadTime().After(read))
	assert.Eventually(t, func() bool {
		return ca.LastWriteTime().After(wrote)
	}, time.Second, time.Millisecond)
}
