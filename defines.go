package lanenet

import "time"

// message types
const (
	MsgGameState         = "game_state"
	MsgDeltaState        = "delta_state"
	MsgSpawnRequest      = "spawn_request"
	MsgAck               = "ack"
	MsgRetransmitRequest = "retransmit_request"
)

// Sequenced types consume a sequence number, are acked and delivered in order.
// The rest are control messages handled on receipt.
var isSequencedType = map[string]bool{
	MsgGameState:         true,
	MsgDeltaState:        true,
	MsgSpawnRequest:      true,
	MsgAck:               false,
	MsgRetransmitRequest: false,
}

func IsSequenced(typ string) bool {
	return isSequencedType[typ]
}

const ProtocolVersion uint8 = 1

const DefaultPort = 5555

const (
	DefaultAckTimeout     = 100 * time.Millisecond
	DefaultMaxRetries     = 3
	DefaultReorderLimit   = 100
	DefaultHistorySize    = 256
	DefaultGapTimeout     = 250 * time.Millisecond
	DefaultMaxGapRequests = 3
	DefaultMaxFrameSize   = 4 << 20
	maxDecodedSize        = 4 * DefaultMaxFrameSize
	DefaultInboxSize      = 1024
	DefaultOutboxSize     = 1024
	rttSamplesMax         = 10
)

const (
	DefaultConnectTimeout  = 5 * time.Second
	DefaultConnectAttempts = 3
	DefaultConnectBackoff  = time.Second
)

const (
	DefaultSnapshotHz        = 15
	DefaultFullStateInterval = 60
	DefaultErrorCountdown    = 3 * time.Second
	DefaultSpawnRate         = 5
	DefaultSpawnBurst        = 5
)

// ConnectPolicy governs connection establishment: bounded per-attempt timeout
// with exponential backoff between attempts.
type ConnectPolicy struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

func DefaultConnectPolicy() ConnectPolicy {
	return ConnectPolicy{
		Timeout:  DefaultConnectTimeout,
		Attempts: DefaultConnectAttempts,
		Backoff:  DefaultConnectBackoff,
	}
}

// AckPolicy governs in-session retransmission: fixed timeout, fixed retry count.
type AckPolicy struct {
	Timeout    time.Duration
	MaxRetries int
}

func DefaultAckPolicy() AckPolicy {
	return AckPolicy{
		Timeout:    DefaultAckTimeout,
		MaxRetries: DefaultMaxRetries,
	}
}
