package stream

import "errors"

var (
	// ErrPartialConsume is returned when a codec implementation consumes
	// less than it was given; this package's built-in codecs never do
	// that (they buffer internally instead), so seeing this error means a
	// third-party Codec violated its contract.
	ErrPartialConsume = errors.New("stream: codec partially consumed input")

	// ErrClosed is returned by operations attempted on a Stream after its
	// reference count has dropped to zero and Free has torn it down.
	ErrClosed = errors.New("stream: use of closed stream")

	// ErrTooLarge is returned by GetUntil when no delimiter is found
	// within max bytes.
	ErrTooLarge = errors.New("stream: line exceeds maximum length")

	// ErrNotSeekable is returned by Seek/Tell when the underlying device
	// (a net.Conn, a plain file descriptor) has no notion of an absolute
	// byte position — only the in-memory device supports it today.
	ErrNotSeekable = errors.New("stream: device does not support seek")
)
