package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
	"github.com/klone-io/klone/internal/stream"
)

// Client-side session cookie names, per spec.md §4.7.
const (
	cookieClientSesData  = "KL1_CLISES_DATA"
	cookieClientSesMTime = "KL1_CLISES_MTIME"
	cookieClientSesIV    = "KL1_CLISES_IV"
	cookieClientSesHMAC  = "KL1_CLISES_HMAC"

	maxClientSideCookieBytes = 4096
)

// ClientSideOptions configures a client-side session: no server-side
// storage at all, the full session state round-trips in four cookies
// (ciphertext, mtime, IV, and an authenticating HMAC), per spec.md §4.7.
// CipherKey encrypts and authenticates this backend's cookies; it is the
// key cmd/klone derives from the configured session passphrase, not the
// value of the KLONE_CIPHER_KEY reserved session variable.
type ClientSideOptions struct {
	CipherKey [32]byte
	HMACKey   []byte
	MaxAge    time.Duration
	Domain    string
	Path      string
	Secure    bool
}

// CreateClientSide implements spec.md §4.7's client-side session_create:
// read, authenticate, and decrypt the four cookies if all are present and
// consistent; otherwise (missing, malformed, or tampered) starts empty.
// A tampered cookie set is treated exactly like a missing one — the
// caller never sees a partially-trusted session.
func CreateClientSide(opts ClientSideOptions, req *httpreq.Request, resp *httpresp.Response) (*Session, error) {
	s := &Session{vars: map[string]string{}, clientSide: &opts, resp: resp}

	dataB64, ok1 := req.Cookies[cookieClientSesData]
	ivB64, ok2 := req.Cookies[cookieClientSesIV]
	mtimeStr, ok3 := req.Cookies[cookieClientSesMTime]
	macB64, ok4 := req.Cookies[cookieClientSesHMAC]
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return s, nil
	}

	if !verifyClientSideMAC(opts.HMACKey, dataB64, ivB64, mtimeStr, macB64) {
		return s, nil
	}

	data, err1 := base64.StdEncoding.DecodeString(dataB64)
	iv, err2 := base64.StdEncoding.DecodeString(ivB64)
	if err1 != nil || err2 != nil {
		return s, nil
	}
	unixSec, err := strconv.ParseInt(mtimeStr, 10, 64)
	if err != nil {
		return s, nil
	}
	mtime := time.Unix(unixSec, 0)
	if opts.MaxAge > 0 && time.Since(mtime) > opts.MaxAge {
		return s, nil
	}

	plain, err := decryptClientSidePayload(opts.CipherKey, iv, data)
	if err != nil {
		return s, nil
	}
	vars, err := parseSessionLines(plain)
	if err != nil {
		return s, nil
	}

	s.vars = vars
	s.mtime = mtime
	return s, nil
}

func verifyClientSideMAC(key []byte, dataB64, ivB64, mtimeStr, macB64 string) bool {
	want, err := base64.StdEncoding.DecodeString(macB64)
	if err != nil {
		return false
	}
	got := clientSideMAC(key, dataB64, ivB64, mtimeStr)
	return hmac.Equal(got, want)
}

func clientSideMAC(key []byte, dataB64, ivB64, mtimeStr string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(dataB64))
	mac.Write([]byte{0})
	mac.Write([]byte(ivB64))
	mac.Write([]byte{0})
	mac.Write([]byte(mtimeStr))
	return mac.Sum(nil)
}

// saveClientSide encrypts and HMACs the session's vars into the four
// cookies. An empty, never-dirtied session writes nothing, matching the
// file/memory backends' no-op-on-empty behaviour.
func (s *Session) saveClientSide() error {
	opts := s.clientSide
	if len(s.vars) == 0 {
		return nil
	}

	s.mtime = time.Now()
	plain := serializeSessionLines(s.vars)

	iv, ciphertext, err := encryptClientSidePayload(opts.CipherKey, plain)
	if err != nil {
		return err
	}

	dataB64 := base64.StdEncoding.EncodeToString(ciphertext)
	ivB64 := base64.StdEncoding.EncodeToString(iv)
	mtimeStr := strconv.FormatInt(s.mtime.Unix(), 10)
	macB64 := base64.StdEncoding.EncodeToString(clientSideMAC(opts.HMACKey, dataB64, ivB64, mtimeStr))

	if len(dataB64)+len(ivB64)+len(mtimeStr)+len(macB64) > maxClientSideCookieBytes {
		return fmt.Errorf("session: client-side payload exceeds %d bytes", maxClientSideCookieBytes)
	}

	if s.resp == nil {
		return nil
	}
	for _, kv := range []struct{ name, value string }{
		{cookieClientSesData, dataB64},
		{cookieClientSesIV, ivB64},
		{cookieClientSesMTime, mtimeStr},
		{cookieClientSesHMAC, macB64},
	} {
		if err := s.resp.SetCookie(kv.name, kv.value, time.Time{}, opts.Path, opts.Domain, opts.Secure); err != nil {
			return err
		}
	}
	return nil
}

// removeClientSide expires all four cookies.
func (s *Session) removeClientSide() error {
	if s.resp == nil {
		return nil
	}
	opts := s.clientSide
	for _, name := range []string{cookieClientSesData, cookieClientSesIV, cookieClientSesMTime, cookieClientSesHMAC} {
		if err := s.resp.SetCookie(name, "", time.Unix(0, 0), opts.Path, opts.Domain, opts.Secure); err != nil {
			return err
		}
	}
	return nil
}

// encryptClientSidePayload runs plain through the stream cipher codec,
// which prefixes a fresh random IV to its output; this function splits
// that IV back off so it can ride in its own cookie, per spec.md §4.7's
// four-cookie layout.
func encryptClientSidePayload(key [32]byte, plain []byte) (iv, ciphertext []byte, err error) {
	enc, err := stream.NewCipherEncryptCodec(key)
	if err != nil {
		return nil, nil, err
	}
	var out []byte
	buf := make([]byte, len(plain)+2*aesBlockSizeForSession)
	_, n, err := enc.Transform(buf, plain)
	if err != nil {
		return nil, nil, err
	}
	out = append(out, buf[:n]...)
	for {
		fn, complete, err := enc.Flush(buf)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, buf[:fn]...)
		if complete {
			break
		}
	}
	if len(out) < aesBlockSizeForSession {
		return nil, nil, fmt.Errorf("session: cipher codec produced no IV")
	}
	return out[:aesBlockSizeForSession], out[aesBlockSizeForSession:], nil
}

func decryptClientSidePayload(key [32]byte, iv, ciphertext []byte) ([]byte, error) {
	dec, err := stream.NewCipherDecryptCodec(key)
	if err != nil {
		return nil, err
	}
	blob := append(append([]byte{}, iv...), ciphertext...)
	var out []byte
	buf := make([]byte, len(blob)+aesBlockSizeForSession)
	_, n, err := dec.Transform(buf, blob)
	if err != nil {
		return nil, err
	}
	out = append(out, buf[:n]...)
	for {
		fn, complete, err := dec.Flush(buf)
		if err != nil {
			return nil, err
		}
		out = append(out, buf[:fn]...)
		if complete {
			break
		}
	}
	return out, nil
}

// aesBlockSizeForSession mirrors stream's unexported aesBlockSize so this
// file doesn't need to reach into package internals for a constant.
const aesBlockSizeForSession = 16
