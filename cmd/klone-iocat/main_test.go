package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

func TestRunIdentityPassthrough(t *testing.T) {
	in := strings.NewReader("hello, klone\n")
	var out, errOut bytes.Buffer

	code := run(nil, in, &out, &errOut)
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d (stderr: %s)", code, errOut.String())
	}
	if out.String() != "hello, klone\n" {
		t.Errorf("expected passthrough output, got %q", out.String())
	}
}

func TestRunGzipRoundTrip(t *testing.T) {
	plain := "klone-iocat round trip test payload"

	var compressed, errOut bytes.Buffer
	code := run([]string{"--gzip"}, strings.NewReader(plain), &compressed, &errOut)
	if code != 0 {
		t.Fatalf("compress: expected exit code 0, got %d (stderr: %s)", code, errOut.String())
	}

	var roundTripped bytes.Buffer
	code = run([]string{"--gunzip"}, bytes.NewReader(compressed.Bytes()), &roundTripped, &errOut)
	if code != 0 {
		t.Fatalf("decompress: expected exit code 0, got %d (stderr: %s)", code, errOut.String())
	}
	if roundTripped.String() != plain {
		t.Errorf("expected %q after round trip, got %q", plain, roundTripped.String())
	}
}

func TestRunEncryptDecryptRoundTrip(t *testing.T) {
	plain := "a secret klone session payload"
	key := strings.Repeat("ab", 32) // 64 hex chars = 32 bytes

	var encrypted, errOut bytes.Buffer
	code := run([]string{"--encrypt", "--cipher-key", key}, strings.NewReader(plain), &encrypted, &errOut)
	if code != 0 {
		t.Fatalf("encrypt: expected exit code 0, got %d (stderr: %s)", code, errOut.String())
	}

	var decrypted bytes.Buffer
	code = run([]string{"--decrypt", "--cipher-key", key}, bytes.NewReader(encrypted.Bytes()), &decrypted, &errOut)
	if code != 0 {
		t.Fatalf("decrypt: expected exit code 0, got %d (stderr: %s)", code, errOut.String())
	}
	if decrypted.String() != plain {
		t.Errorf("expected %q after round trip, got %q", plain, decrypted.String())
	}
}

func TestRunEncryptMissingKey(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"--encrypt"}, strings.NewReader("x"), &out, &errOut)
	if code != 2 {
		t.Errorf("expected exit code 2 for missing --cipher-key, got %d", code)
	}
}

func TestRunEncryptBadKey(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"--encrypt", "--cipher-key", "not-hex"}, strings.NewReader("x"), &out, &errOut)
	if code != 2 {
		t.Errorf("expected exit code 2 for a malformed --cipher-key, got %d", code)
	}
}

func TestParseCipherKey(t *testing.T) {
	want := strings.Repeat("11", 32)
	key, err := parseCipherKey(want)
	if err != nil {
		t.Fatalf("parseCipherKey: %v", err)
	}
	if hex.EncodeToString(key[:]) != want {
		t.Errorf("expected key %s, got %s", want, hex.EncodeToString(key[:]))
	}
}
