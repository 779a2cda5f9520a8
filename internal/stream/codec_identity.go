package stream

// identityCodec passes bytes through unchanged. Used as the default when a
// Stream carries no transformation, and as a base case exercised by the
// round-trip property tests spec.md §8 calls for.
type identityCodec struct{}

// NewIdentityCodec returns a no-op Codec.
func NewIdentityCodec() Codec { return identityCodec{} }

func (identityCodec) Name() string { return "identity" }

func (identityCodec) Transform(dst, src []byte) (consumed, produced int, err error) {
	n := copy(dst, src)
	if n < len(src) {
		return 0, 0, ErrPartialConsume
	}
	return len(src), n, nil
}

func (identityCodec) Flush(dst []byte) (produced int, complete bool, err error) {
	return 0, true, nil
}

func (identityCodec) Close() error { return nil }
