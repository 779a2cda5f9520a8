// Command klone-iocat pipes stdin through a configurable internal/stream
// codec chain and writes the result to stdout — a debugging tool for
// the I/O pipeline spec.md §4.1 describes, independent of any HTTP
// serving: cat with gzip/cipher stages attached.
//
// Usage: klone-iocat [--gzip] [--gunzip] [--encrypt] [--decrypt] [--cipher-key hex64]
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/klone-io/klone/internal/stream"
)

const usageText = `klone-iocat — pipe stdin through a stream codec chain to stdout

Usage:
  klone-iocat [options]

Options:
  --gzip            Gzip-compress stdin
  --gunzip          Gzip-decompress stdin
  --cipher-key <hex>  32-byte AES-256 key, hex encoded (64 hex chars)
  --encrypt         Encrypt stdin with --cipher-key (prefixes a random IV)
  --decrypt         Decrypt stdin with --cipher-key (expects a leading IV)
  --help            Show this help

Codecs apply in the order gzip/gunzip, then encrypt/decrypt, matching
the write-direction chain order internal/stream.Stream builds for an
outgoing klone response (compress, then encrypt).
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run is klone-iocat's entrypoint, separated from main for testability.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("klone-iocat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	gzipFlag := fs.Bool("gzip", false, "gzip-compress stdin")
	gunzipFlag := fs.Bool("gunzip", false, "gzip-decompress stdin")
	cipherKeyHex := fs.String("cipher-key", "", "32-byte AES-256 key, hex encoded")
	encryptFlag := fs.Bool("encrypt", false, "encrypt stdin with --cipher-key")
	decryptFlag := fs.Bool("decrypt", false, "decrypt stdin with --cipher-key")
	help := fs.Bool("help", false, "show usage")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		fmt.Fprint(stderr, usageText)
		return 0
	}

	st := stream.NewReader(stdin, "klone-iocat-stdin")

	if *gzipFlag {
		st.CodecAddTail(stream.NewGzipCompressCodec())
	}
	if *gunzipFlag {
		st.CodecAddTail(stream.NewGzipDecompressCodec())
	}

	if *encryptFlag || *decryptFlag {
		key, err := parseCipherKey(*cipherKeyHex)
		if err != nil {
			fmt.Fprintf(stderr, "klone-iocat: %v\n", err)
			return 2
		}
		var codec stream.Codec
		if *encryptFlag {
			codec, err = stream.NewCipherEncryptCodec(key)
		} else {
			codec, err = stream.NewCipherDecryptCodec(key)
		}
		if err != nil {
			fmt.Fprintf(stderr, "klone-iocat: %v\n", err)
			return 1
		}
		st.CodecAddTail(codec)
	}
	defer st.Free()

	if _, err := io.Copy(stdout, st); err != nil {
		fmt.Fprintf(stderr, "klone-iocat: %v\n", err)
		return 1
	}
	return 0
}

func parseCipherKey(hexKey string) ([32]byte, error) {
	var key [32]byte
	if hexKey == "" {
		return key, fmt.Errorf("--cipher-key is required with --encrypt/--decrypt")
	}
	b, err := hex.DecodeString(hexKey)
	if err != nil || len(b) != 32 {
		return key, fmt.Errorf("--cipher-key must be 64 hex characters (32 bytes)")
	}
	copy(key[:], b)
	return key, nil
}
