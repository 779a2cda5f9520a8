package session

import (
	"bufio"
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klone-io/klone/internal/stream"
	"golang.org/x/sys/unix"
)

// FileBackendOptions configures the file session backend.
type FileBackendOptions struct {
	Dir        string // session_path
	PeerAddr   string // appended to the filename, per spec.md §6
	Gzip       bool
	CipherKey  *[32]byte // nil disables AES-256-CBC wrapping
}

// NewFileBackend returns a Backend storing one file per session at
// <Dir>/klone_sess_<id>_<PeerAddr>, serialised as urlencoded
// name=value lines, optionally gzip- and AES-256-CBC-wrapped, per
// spec.md §4.7/§6. An advisory flock guards concurrent access — closing
// spec.md's documented "file-session concurrency" gap, since more than
// one worker process can serve the same client across requests.
func NewFileBackend(opts FileBackendOptions) Backend {
	return Backend{
		Load:   func(id string) (map[string]string, time.Time, bool, error) { return loadFileSession(opts, id) },
		Save:   func(id string, vars map[string]string, mtime time.Time) error { return saveFileSession(opts, id, vars) },
		Remove: func(id string) error { return os.Remove(sessionFilePath(opts, id)) },
	}
}

func sessionFilePath(opts FileBackendOptions, id string) string {
	return filepath.Join(opts.Dir, fmt.Sprintf("klone_sess_%s_%s", id, opts.PeerAddr))
}

func loadFileSession(opts FileBackendOptions, id string) (map[string]string, time.Time, bool, error) {
	path := sessionFilePath(opts, id)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return nil, time.Time{}, false, fmt.Errorf("session: flock %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	info, err := f.Stat()
	if err != nil {
		return nil, time.Time{}, false, err
	}

	raw, err := decodeFileBody(opts, f)
	if err != nil {
		return nil, time.Time{}, false, err
	}

	vars, err := parseSessionLines(raw)
	if err != nil {
		return nil, time.Time{}, false, err
	}
	return vars, info.ModTime(), true, nil
}

func saveFileSession(opts FileBackendOptions, id string, vars map[string]string) error {
	path := sessionFilePath(opts, id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("session: flock %s: %w", path, err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	body := serializeSessionLines(vars)
	return encodeFileBody(opts, f, body)
}

func serializeSessionLines(vars map[string]string) []byte {
	var b bytes.Buffer
	for name, value := range vars {
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
		b.WriteByte('\n')
	}
	return b.Bytes()
}

func parseSessionLines(raw []byte) (map[string]string, error) {
	vars := map[string]string{}
	sc := bufio.NewScanner(bytes.NewReader(raw))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("session: malformed line %q", line)
		}
		n, err1 := url.QueryUnescape(name)
		v, err2 := url.QueryUnescape(value)
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("session: malformed urlencoding in line %q", line)
		}
		vars[n] = v
	}
	return vars, sc.Err()
}

// encodeFileBody writes body through the configured gzip/cipher codecs (if
// any) to w, matching the wire-order convention cipher(gzip(plain)).
func encodeFileBody(opts FileBackendOptions, w *os.File, body []byte) error {
	s := stream.New(w, nil, "session-file", false)
	if opts.Gzip {
		s.CodecAddTail(stream.NewGzipCompressCodec())
	}
	if opts.CipherKey != nil {
		enc, err := stream.NewCipherEncryptCodec(*opts.CipherKey)
		if err != nil {
			return err
		}
		s.CodecAddTail(enc)
	}
	if _, err := s.Write(body); err != nil {
		return err
	}
	return s.CodecsRemove()
}

func decodeFileBody(opts FileBackendOptions, f *os.File) ([]byte, error) {
	s := stream.NewReader(f, "session-file")
	if opts.CipherKey != nil {
		dec, err := stream.NewCipherDecryptCodec(*opts.CipherKey)
		if err != nil {
			return nil, err
		}
		s.CodecAddTail(dec)
	}
	if opts.Gzip {
		s.CodecAddTail(stream.NewGzipDecompressCodec())
	}
	var out bytes.Buffer
	buf := make([]byte, 4096)
	for {
		n, err := s.Read(buf)
		if n > 0 {
			out.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return out.Bytes(), nil
}
