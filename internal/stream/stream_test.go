package stream

import (
	"bytes"
	"io"
	"testing"
)

// roundTrip writes data through a Stream configured with encodeCodecs (tail,
// in order) and reads it back through a second Stream configured with
// decodeCodecs, verifying the bytes survive unchanged. This is the
// round-trip property spec.md §8 requires for every codec chain.
func roundTrip(t *testing.T, data []byte, encodeCodecs, decodeCodecs []Codec) {
	t.Helper()

	var wire bytes.Buffer
	enc := New(&wire, nil, "encode", false)
	for _, c := range encodeCodecs {
		enc.CodecAddTail(c)
	}
	if _, err := enc.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.CodecsRemove(); err != nil {
		t.Fatalf("codecs remove: %v", err)
	}

	dec := NewReader(bytes.NewReader(wire.Bytes()), "decode")
	for _, c := range decodeCodecs {
		dec.CodecAddTail(c)
	}
	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d bytes", len(got), len(data))
	}
}

func TestRoundTripIdentity(t *testing.T) {
	roundTrip(t, []byte("hello, klone"), []Codec{NewIdentityCodec()}, []Codec{NewIdentityCodec()})
}

func TestRoundTripGzip(t *testing.T) {
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog\n"), 200)
	roundTrip(t, data, []Codec{NewGzipCompressCodec()}, []Codec{NewGzipDecompressCodec()})
}

func TestRoundTripCipher(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	enc, err := NewCipherEncryptCodec(key)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := NewCipherDecryptCodec(key)
	if err != nil {
		t.Fatal(err)
	}
	data := []byte("session variables travel encrypted over the wire")
	roundTrip(t, data, []Codec{enc}, []Codec{dec})
}

func TestRoundTripGzipThenCipher(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("abcdefghijklmnopqrstuvwxyz012345"))
	enc, err := NewCipherEncryptCodec(key)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := NewCipherDecryptCodec(key)
	if err != nil {
		t.Fatal(err)
	}
	data := bytes.Repeat([]byte("compress then encrypt, wire sees cipher(gzip(plain)). "), 100)
	// spec.md §4.1: attach compressor first, then cipher, so the wire sees
	// cipher(gzip(plain)).
	roundTrip(t, data,
		[]Codec{NewGzipCompressCodec(), enc},
		[]Codec{dec, NewGzipDecompressCodec()})
}

func TestFlushAllPipesAcrossStageOrder(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	enc, err := NewCipherEncryptCodec(key)
	if err != nil {
		t.Fatal(err)
	}

	var wire bytes.Buffer
	s := New(&wire, nil, "flush-order", false)
	s.CodecAddTail(NewGzipCompressCodec())
	s.CodecAddTail(enc)
	data := []byte("gzip buffers almost everything until Flush")
	if _, err := s.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.CodecsRemove(); err != nil {
		t.Fatalf("codecs remove: %v", err)
	}

	// Every byte gzip only released on Flush must still have gone through
	// the cipher stage: the wire can never contain the plaintext, and its
	// length must be a multiple of the AES block size (CBC padding).
	if bytes.Contains(wire.Bytes(), data) {
		t.Fatal("plaintext reached the wire unencrypted — flush bypassed the cipher stage")
	}
	if wire.Len()%16 != 0 {
		t.Fatalf("expected CBC-padded output, got %d bytes", wire.Len())
	}
}

func TestStreamFreeIsIdempotentAndRefCounted(t *testing.T) {
	var wire bytes.Buffer
	s := New(&wire, io.NopCloser(bytes.NewReader(nil)), "t", false)
	dup := s.Dup()
	if err := s.Free(); err != nil {
		t.Fatalf("first free: %v", err)
	}
	if err := dup.Free(); err != nil {
		t.Fatalf("second free: %v", err)
	}
}

func TestGetsStripsLineEnding(t *testing.T) {
	s := New(bytes.NewBufferString("GET / HTTP/1.0\r\n"), nil, "t", false)
	line, err := s.Gets(1024)
	if err != nil {
		t.Fatal(err)
	}
	if line != "GET / HTTP/1.0" {
		t.Fatalf("got %q", line)
	}
}

func TestGetUntilTooLarge(t *testing.T) {
	s := New(bytes.NewBufferString("no delimiter in here at all"), nil, "t", false)
	if _, err := s.GetUntil('\n', 8); err != ErrTooLarge {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestMemoryStreamSeekRewritesInPlace(t *testing.T) {
	s := NewMemory("seek-test")
	if _, err := s.Write([]byte("hello, klone")); err != nil {
		t.Fatalf("write: %v", err)
	}
	pos, err := s.Tell()
	if err != nil {
		t.Fatalf("tell: %v", err)
	}
	if pos != int64(len("hello, klone")) {
		t.Fatalf("expected tell == %d after write, got %d", len("hello, klone"), pos)
	}

	if err := s.Seek(7); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if _, err := s.Write([]byte("world!")); err != nil {
		t.Fatalf("write after seek: %v", err)
	}

	if err := s.Seek(0); err != nil {
		t.Fatalf("seek back to start: %v", err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello, world!" {
		t.Fatalf("expected %q, got %q", "hello, world!", string(got))
	}
}

func TestSeekOnNonSeekableDeviceErrors(t *testing.T) {
	var wire bytes.Buffer
	s := New(&wire, nil, "t", false)
	if err := s.Seek(0); err != ErrNotSeekable {
		t.Fatalf("expected ErrNotSeekable, got %v", err)
	}
	if _, err := s.Tell(); err != ErrNotSeekable {
		t.Fatalf("expected ErrNotSeekable, got %v", err)
	}
}
