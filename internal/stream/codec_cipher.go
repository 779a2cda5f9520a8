// codec_cipher.go — AES-256-CBC encrypt/decrypt codec.
//
// CBC mode requires whole-block input, so both directions buffer any
// partial final block internally (the "holding buffer" spec.md describes)
// and PKCS#7-pad/unpad only at Flush, which is the one point a stream is
// guaranteed to have seen all its bytes.
package stream

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

const aesBlockSize = aes.BlockSize // 16

// NewCipherEncryptCodec returns a Codec that AES-256-CBC-encrypts bytes
// written through it, generating and prefixing a random IV to the first
// output.
func NewCipherEncryptCodec(key [32]byte) (Codec, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher codec: %w", err)
	}
	iv := make([]byte, aesBlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("cipher codec: iv: %w", err)
	}
	return &cipherEncryptCodec{
		block:     block,
		iv:        iv,
		ivWritten: false,
	}, nil
}

type cipherEncryptCodec struct {
	block     cipher.Block
	iv        []byte
	ivWritten bool
	pending   bytes.Buffer // bytes not yet a full block
}

func (c *cipherEncryptCodec) Name() string { return "aes-256-cbc-encrypt" }

func (c *cipherEncryptCodec) Transform(dst, src []byte) (consumed, produced int, err error) {
	var out bytes.Buffer
	if !c.ivWritten {
		out.Write(c.iv)
		c.ivWritten = true
	}
	c.pending.Write(src)
	full := (c.pending.Len() / aesBlockSize) * aesBlockSize
	if full > 0 {
		plain := make([]byte, full)
		c.pending.Read(plain) //nolint:errcheck // bytes.Buffer.Read never errors here
		enc := make([]byte, full)
		mode := cipher.NewCBCEncrypter(c.block, c.iv)
		mode.CryptBlocks(enc, plain)
		copy(c.iv, enc[full-aesBlockSize:])
		out.Write(enc)
	}
	n := copy(dst, out.Bytes())
	return len(src), n, nil
}

func (c *cipherEncryptCodec) Flush(dst []byte) (produced int, complete bool, err error) {
	pad := aesBlockSize - (c.pending.Len() % aesBlockSize)
	padded := make([]byte, c.pending.Len()+pad)
	copy(padded, c.pending.Bytes())
	for i := c.pending.Len(); i < len(padded); i++ {
		padded[i] = byte(pad)
	}
	c.pending.Reset()
	enc := make([]byte, len(padded))
	mode := cipher.NewCBCEncrypter(c.block, c.iv)
	mode.CryptBlocks(enc, padded)
	n := copy(dst, enc)
	return n, n == len(enc), nil
}

func (c *cipherEncryptCodec) Close() error { return nil }

// NewCipherDecryptCodec returns a Codec that AES-256-CBC-decrypts bytes
// written through it. The first aesBlockSize bytes of the stream must be
// the IV the encrypt codec prefixed.
func NewCipherDecryptCodec(key [32]byte) (Codec, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher codec: %w", err)
	}
	return &cipherDecryptCodec{block: block}, nil
}

type cipherDecryptCodec struct {
	block   cipher.Block
	iv      []byte
	pending bytes.Buffer // ciphertext not yet a full block, or holding the last
	// decrypted block back until Flush strips its PKCS#7 padding, since we
	// can't tell a mid-stream block from the final one any earlier.
	lastPlain []byte
}

func (c *cipherDecryptCodec) Name() string { return "aes-256-cbc-decrypt" }

func (c *cipherDecryptCodec) Transform(dst, src []byte) (consumed, produced int, err error) {
	c.pending.Write(src)
	if c.iv == nil {
		if c.pending.Len() < aesBlockSize {
			return len(src), 0, nil
		}
		c.iv = make([]byte, aesBlockSize)
		c.pending.Read(c.iv) //nolint:errcheck
	}
	full := (c.pending.Len() / aesBlockSize) * aesBlockSize
	if full == 0 {
		return len(src), 0, nil
	}
	ct := make([]byte, full)
	c.pending.Read(ct) //nolint:errcheck
	mode := cipher.NewCBCDecrypter(c.block, c.iv)
	pt := make([]byte, full)
	mode.CryptBlocks(pt, ct)
	copy(c.iv, ct[full-aesBlockSize:])

	// Hold back the final decrypted block: it might carry PKCS#7 padding
	// that only Flush is positioned to strip.
	toEmit := append(c.lastPlain, pt[:len(pt)-aesBlockSize]...)
	c.lastPlain = pt[len(pt)-aesBlockSize:]

	n := copy(dst, toEmit)
	return len(src), n, nil
}

func (c *cipherDecryptCodec) Flush(dst []byte) (produced int, complete bool, err error) {
	if len(c.lastPlain) == 0 {
		return 0, true, nil
	}
	pad := int(c.lastPlain[len(c.lastPlain)-1])
	if pad < 1 || pad > aesBlockSize || pad > len(c.lastPlain) {
		return 0, false, fmt.Errorf("cipher codec: invalid PKCS#7 padding")
	}
	unpadded := c.lastPlain[:len(c.lastPlain)-pad]
	c.lastPlain = nil
	n := copy(dst, unpadded)
	return n, true, nil
}

func (c *cipherDecryptCodec) Close() error { return nil }
