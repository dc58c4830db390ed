package lanenet

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pierrec/lz4/v4"
)

var ErrMalformedMessage = errors.New("malformed message")

type Envelope struct {
	Version   uint8           `cbor:"v"`
	Type      string          `cbor:"t"`
	Payload   cbor.RawMessage `cbor:"p,omitempty"`
	Timestamp int64           `cbor:"ts"`
	Seq       uint64          `cbor:"s"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels: 32,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

var bufPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

func NewEnvelope(typ string, payload interface{}) (Envelope, error) {
	env := Envelope{Version: ProtocolVersion, Type: typ}
	if payload == nil {
		return env, nil
	}
	p, err := encMode.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	env.Payload = p
	return env, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Payload) == 0 {
		return out, fmt.Errorf("%w: empty payload for %q", ErrMalformedMessage, env.Type)
	}
	if err := decMode.Unmarshal(env.Payload, &out); err != nil {
		return out, fmt.Errorf("%w: %s payload: %v", ErrMalformedMessage, env.Type, err)
	}
	return out, nil
}

// Encode serializes env to CBOR and compresses it into an LZ4 frame.
func Encode(env Envelope) ([]byte, error) {
	if env.Type == "" {
		return nil, errors.New("encode envelope with empty type")
	}
	raw, err := encMode.Marshal(env)
	if err != nil {
		return nil, err
	}

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	zw := lz4.NewWriter(buf)
	if _, err = zw.Write(raw); err != nil {
		return nil, err
	}
	if err = zw.Close(); err != nil {
		return nil, err
	}
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out, nil
}

// Decode reverses Encode. Any corruption yields an error wrapping ErrMalformedMessage.
func Decode(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty", ErrMalformedMessage)
	}

	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer bufPool.Put(buf)

	zr := lz4.NewReader(bytes.NewReader(b))
	n, err := io.Copy(buf, io.LimitReader(zr, maxDecodedSize+1))
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: decompress: %v", ErrMalformedMessage, err)
	}
	if n > maxDecodedSize {
		return Envelope{}, fmt.Errorf("%w: decompresses past %d bytes", ErrMalformedMessage, maxDecodedSize)
	}

	var env Envelope
	if err := decMode.Unmarshal(buf.Bytes(), &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	if env.Version != ProtocolVersion {
		return Envelope{}, fmt.Errorf("%w: protocol version %d", ErrMalformedMessage, env.Version)
	}
	// detach from the pooled buffer
	if env.Payload != nil {
		p := make([]byte, len(env.Payload))
		copy(p, env.Payload)
		env.Payload = p
	}
	return env, nil
}
