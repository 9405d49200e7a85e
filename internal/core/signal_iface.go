package core

//go:generate mockgen -source=signal_iface.go -destination=mocks/mock_signal.go -package=mocks

// Frame is a raw encoded event, one text frame on the wire.
type Frame []byte

// SignalConnection abstracts the messaging transport of one connection.
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
