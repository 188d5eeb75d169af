package mqtt

// ConnState is the listener's connection state. There is no terminal
// state: the daemon reconnects until the process is stopped.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
	StateBackoff
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateBackoff:
		return "BACKOFF"
	default:
		return "UNKNOWN"
	}
}

// MessageHandler receives every raw payload delivered on the subscription.
type MessageHandler func(topic string, payload []byte)

// transport is one broker session. Abstracted so the reconnect loop can be
// exercised without a broker.
type transport interface {
	Connect() error
	Subscribe(topic string) error
	Disconnect()
	Lost() <-chan error
}
