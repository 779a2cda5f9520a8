// codec.go — stateful byte transformers chained onto a Stream.
package stream

import "bytes"

// holdingBufSize is the 4 KiB figure spec.md gives for the per-codec
// holding buffer: the case where a downstream codec cannot consume
// everything an upstream one produced in one call. Here it sizes the
// scratch headroom applyStage adds past its input and the buffer each
// Flush call fills; a stage's hold buffer itself is an uncapped
// bytes.Buffer.
const holdingBufSize = 4096

// Codec is a stateful transformer attached to a Stream's read or write
// chain. Transform consumes as much of src as the codec can make progress
// on and reports how much of each it touched; callers loop until src is
// exhausted. Flush drains any bytes the codec is still holding internally
// (e.g. a gzip writer's trailer, a CBC encrypter's final padded block).
type Codec interface {
	// Name identifies the codec for diagnostics (e.g. "gzip", "aes-256-cbc").
	Name() string
	// Transform consumes src into dst, returning bytes consumed and produced.
	Transform(dst, src []byte) (consumed, produced int, err error)
	// Flush drains residual internal state into dst. complete is true once
	// nothing more will ever be produced by this codec.
	Flush(dst []byte) (produced int, complete bool, err error)
	// Close releases any library-specific context (gzip/cipher state).
	Close() error
}

// stage is one codec plus the holding buffer that sits between it and
// the next stage, modelling exactly the producer/consumer mismatch spec.md
// describes: a stage's Transform may produce more than the next stage can
// immediately consume, so the surplus waits here.
type stage struct {
	codec Codec
	hold  bytes.Buffer
}

// chain is an ordered list of stages, used identically for the input
// direction (wire → consumer) and the output direction (producer → wire);
// only which end callers attach to differs. AddHead prepends (wire-nearest
// for input, consumer-nearest for output); AddTail appends. Per spec.md
// §4.1, an output chain built as AddTail(gzip) then AddTail(cipher) yields
// wire order cipher(gzip(plain)).
type chain struct {
	stages []*stage
}

func newChain() *chain { return &chain{} }

func (c *chain) addHead(cd Codec) {
	c.stages = append([]*stage{{codec: cd}}, c.stages...)
}

func (c *chain) addTail(cd Codec) {
	c.stages = append(c.stages, &stage{codec: cd})
}

func (c *chain) empty() bool { return len(c.stages) == 0 }

// applyStage runs data through a single stage's Transform, honoring its
// holding buffer the same way a multi-call feed would: data always fully
// consumed by the codecs in this package, so the holding buffer only ever
// carries over bytes a future codec implementation couldn't immediately
// absorb.
func applyStage(st *stage, data []byte) ([]byte, error) {
	scratch := make([]byte, len(data)+holdingBufSize)
	n, p, err := st.codec.Transform(scratch, data)
	if err != nil {
		return nil, err
	}
	if n < len(data) {
		return nil, ErrPartialConsume
	}
	produced := scratch[:p]
	if st.hold.Len() > 0 {
		st.hold.Write(produced)
		produced = append([]byte(nil), st.hold.Bytes()...)
		st.hold.Reset()
	}
	return produced, nil
}

// feed pushes src through every stage in order, each stage's Transform
// output becoming the next stage's input, and returns the bytes finally
// available for the caller plus how many bytes of src the first stage
// consumed.
func (c *chain) feed(src []byte) (consumed int, out []byte, err error) {
	if c.empty() {
		return len(src), append([]byte(nil), src...), nil
	}
	cur := src
	consumed = len(src) // first stage always consumes everything offered;
	// per-stage Transform implementations in this package never partially
	// consume (they either buffer input internally or return an error),
	// so "consumed" tracks the outermost call's contract for callers that
	// still want to honor partial-consumption semantics against a real
	// device buffer.
	for _, st := range c.stages {
		produced, e := applyStage(st, cur)
		if e != nil {
			return 0, nil, e
		}
		cur = produced
	}
	return consumed, append([]byte(nil), cur...), nil
}

// flushAll calls Flush on every stage in order until all report complete,
// draining residual bytes (gzip trailers, final cipher blocks). A stage's
// flushed chunk is not handed to the device directly — it is piped through
// every subsequent stage's Transform first, the same chain order feed()
// enforces on ordinary writes, so an output chain built as
// AddTail(gzip), AddTail(cipher) still yields cipher(gzip(plain)) for the
// bytes gzip only releases on Flush/Close, and an input chain built as
// AddTail(cipher-decrypt), AddTail(gzip-decompress) still decompresses the
// final plaintext block cipher-decrypt only releases on Flush.
func (c *chain) flushAll() (out []byte, complete bool, err error) {
	if c.empty() {
		return nil, true, nil
	}
	complete = true
	for i, st := range c.stages {
		buf := make([]byte, holdingBufSize)
		p, cmpl, e := st.codec.Flush(buf)
		if e != nil {
			return nil, false, e
		}
		if !cmpl {
			complete = false
		}
		cur := buf[:p]
		for _, ds := range c.stages[i+1:] {
			if len(cur) == 0 {
				break
			}
			produced, e := applyStage(ds, cur)
			if e != nil {
				return nil, false, e
			}
			cur = produced
		}
		out = append(out, cur...)
	}
	return out, complete, nil
}

func (c *chain) closeAll() error {
	var first error
	for _, st := range c.stages {
		if err := st.codec.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
