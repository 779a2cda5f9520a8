package broker

import (
	"strings"
	"time"

	"github.com/klone-io/klone/internal/embfs"
	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
	"github.com/klone-io/klone/internal/mime"
	"github.com/klone-io/klone/internal/stream"
)

// ErrKeyNeeded describes an encrypted resource requested without a session
// cipher-key set — spec.md §4.7's EXT_KEY_NEEDED gap between "cleared to
// decrypt" and "needs password." EmbFSStatic.Serve does not return it: it
// sets the custom 430 status on the response itself.
var ErrKeyNeeded = errKeyNeeded{}

type errKeyNeeded struct{}

func (errKeyNeeded) Error() string { return "broker: encrypted resource needs a session cipher key" }

// EmbFSStatic is the built-in supplier that looks up a URI in a compile-
// time hash map of embedded resources, per spec.md §4.5.
type EmbFSStatic struct {
	FS *embfs.FS

	// CipherKey resolves the requesting session's KLONE_CIPHER_KEY, if
	// any; set by cmd/klone when it builds the broker, so this package doesn't need to depend
	// directly on internal/session.
	CipherKey func(req *httpreq.Request) (key [32]byte, ok bool)
}

func (s *EmbFSStatic) Name() string { return "embfs-static" }

func (s *EmbFSStatic) IsValidURI(req *httpreq.Request, uri string) (bool, any, time.Time) {
	meta, ok := s.FS.Stat(uri)
	if !ok {
		return false, nil, time.Time{}
	}
	return true, uri, meta.ModTime
}

func (s *EmbFSStatic) Serve(req *httpreq.Request, resp *httpresp.Response, handle any) error {
	uri := handle.(string)
	meta, ok := s.FS.Stat(uri)
	if !ok {
		return errNotFound{}
	}

	data, err := s.FS.ReadFile(uri)
	if err != nil {
		return err
	}

	if meta.Encrypted {
		key, ok := s.cipherKey(req)
		if !ok {
			resp.SetStatus(430)
			return resp.Finalize()
		}
		dec, err := stream.NewCipherDecryptCodec(key)
		if err != nil {
			return err
		}
		plain, err := decryptAll(dec, data)
		if err != nil {
			return err
		}
		data = plain
	}

	ct := mime.TypeByExtension(uri)
	_ = resp.SetContentType(ct)

	wantsGzip := acceptsGzip(req) && meta.Compressible && !meta.Encrypted
	if wantsGzip {
		_ = resp.SetContentEncoding("gzip")
		resp.Stream.CodecAddTail(stream.NewGzipCompressCodec())
	} else {
		_ = resp.SetContentLength(int64(len(data)))
	}

	if req.Method != httpreq.MethodHead {
		if _, err := resp.Write(data); err != nil {
			return err
		}
	}
	return resp.Finalize()
}

func (s *EmbFSStatic) cipherKey(req *httpreq.Request) ([32]byte, bool) {
	if s.CipherKey == nil {
		return [32]byte{}, false
	}
	return s.CipherKey(req)
}

func acceptsGzip(req *httpreq.Request) bool {
	ae, ok := req.Header.Get("Accept-Encoding")
	if !ok {
		return false
	}
	for _, tok := range strings.Split(ae, ",") {
		if strings.EqualFold(strings.TrimSpace(strings.SplitN(tok, ";", 2)[0]), "gzip") {
			return true
		}
	}
	return false
}

// decryptAll runs the whole ciphertext through dec in one shot — encrypted
// embFS resources are loaded fully into memory already (ReadFile), so
// there is no streaming benefit to doing this incrementally.
func decryptAll(dec stream.Codec, ciphertext []byte) ([]byte, error) {
	dst := make([]byte, len(ciphertext)+64)
	_, n, err := dec.Transform(dst, ciphertext)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), dst[:n]...)
	for {
		tail := make([]byte, 64)
		p, complete, err := dec.Flush(tail)
		if err != nil {
			return nil, err
		}
		out = append(out, tail[:p]...)
		if complete {
			break
		}
	}
	return out, nil
}

type errNotFound struct{}

func (errNotFound) Error() string { return "broker: resource not found" }
