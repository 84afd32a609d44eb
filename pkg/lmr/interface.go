package lmr

// Transport owns the byte-level connection to a readout board (real or mocked).
// Read blocks at most for the configured read timeout and returns whatever
// arrived, possibly nothing.
type Transport interface {
	Open() error
	Write(p []byte) (n int, err error)
	Read(p []byte) (n int, err error)
	Close() error
	IsOpen() bool
}

// Ensure Serial implements Transport.
var _ Transport = (*Serial)(nil)

// Ensure Mock implements Transport.
var _ Transport = (*Mock)(nil)

// Ensure both board codecs implement Codec.
var (
	_ Codec = (*ReadoutCodec)(nil)
	_ Codec = (*SmartecCodec)(nil)
)
