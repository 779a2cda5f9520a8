package broker

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/klone-io/klone/internal/header"
	"github.com/klone-io/klone/internal/httpreq"
	"github.com/klone-io/klone/internal/httpresp"
)

// FilesystemCGI is the built-in supplier that execs an external program
// for requests under a configured script_alias directory, or whose
// extension has a registered interpreter, per spec.md §4.5. Where the
// original forks and execs directly, this runs the program via os/exec —
// the idiomatic Go substitute for fork+exec+dup2-onto-stdio, since Go
// cannot safely fork a multi-threaded runtime.
type FilesystemCGI struct {
	// ScriptAliasDir is the directory prefix under which any executable
	// file is treated as a CGI program.
	ScriptAliasDir string
	// Interpreters maps a file extension (".php", ".pl", …) to the
	// interpreter binary invoked with the script path as argv[1].
	Interpreters map[string]string

	ServerAddr string
	ServerPort int
}

func (c *FilesystemCGI) Name() string { return "filesystem-cgi" }

func (c *FilesystemCGI) IsValidURI(req *httpreq.Request, uri string) (bool, any, time.Time) {
	path := uri
	underScriptAlias := c.ScriptAliasDir != "" && strings.HasPrefix(path, c.ScriptAliasDir)
	ext := filepath.Ext(path)
	interpreter, hasInterpreter := c.Interpreters[ext]

	if !underScriptAlias && !hasInterpreter {
		return false, nil, time.Time{}
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false, nil, time.Time{}
	}
	if underScriptAlias && !hasInterpreter && info.Mode()&0111 == 0 {
		// Under script_alias but not executable and no interpreter
		// registered for its extension: spec.md requires executable bit.
		return false, nil, time.Time{}
	}
	return true, cgiHandle{path: path, interpreter: interpreter}, info.ModTime()
}

type cgiHandle struct {
	path        string
	interpreter string
}

func (c *FilesystemCGI) Serve(req *httpreq.Request, resp *httpresp.Response, handle any) error {
	h := handle.(cgiHandle)

	var cmd *exec.Cmd
	if h.interpreter != "" {
		cmd = exec.Command(h.interpreter, h.path)
	} else {
		cmd = exec.Command(h.path)
	}
	cmd.Env = c.buildEnv(req, h.path)
	cmd.Dir = filepath.Dir(h.path)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr
	if req.Method == httpreq.MethodPost || req.Method == httpreq.MethodPut {
		cmd.Stdin = strings.NewReader(req.QueryString)
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("broker: cgi %s: %w", h.path, err)
	}

	name := filepath.Base(h.path)
	if strings.HasPrefix(name, "nph-") {
		// Non-parsed-headers: the program's entire stdout goes straight to
		// the wire untouched.
		if req.Method != httpreq.MethodHead {
			_, err := resp.Write(stdout.Bytes())
			if err != nil {
				return err
			}
		}
		return resp.Finalize()
	}

	body, err := mergeCGIHeaders(resp.Header, stdout.Bytes())
	if err != nil {
		return err
	}
	if req.Method != httpreq.MethodHead {
		if _, err := resp.Write(body); err != nil {
			return err
		}
	}
	return resp.Finalize()
}

// mergeCGIHeaders splits a CGI program's stdout into its RFC 822 header
// block and body, merging the headers into resp and returning the body.
func mergeCGIHeaders(h *header.Header, out []byte) ([]byte, error) {
	br := bufio.NewReader(bytes.NewReader(out))
	if err := h.Load(br); err != nil {
		return nil, fmt.Errorf("broker: malformed cgi headers: %w", err)
	}
	rest, _ := br.Peek(br.Buffered())
	body := make([]byte, 0, len(rest))
	buf := make([]byte, 4096)
	for {
		n, err := br.Read(buf)
		if n > 0 {
			body = append(body, buf[:n]...)
		}
		if err != nil {
			break
		}
	}
	return body, nil
}

// buildEnv synthesises the canonical CGI environment variables spec.md §6
// documents, on top of whatever environment the worker process already
// carries (PATH, etc.).
func (c *FilesystemCGI) buildEnv(req *httpreq.Request, scriptPath string) []string {
	env := os.Environ()
	env = append(env,
		"GATEWAY_INTERFACE=CGI/1.1",
		"SERVER_PROTOCOL="+req.Protocol,
		"REQUEST_METHOD="+req.Method.String(),
		"SCRIPT_NAME="+scriptPath,
		"SCRIPT_FILENAME="+scriptPath,
		"PATH_INFO="+req.PathInfo,
		"QUERY_STRING="+req.QueryString,
		"SERVER_ADDR="+c.ServerAddr,
		"SERVER_PORT="+strconv.Itoa(c.ServerPort),
	)
	if ct, ok := req.Header.Get("Content-Type"); ok {
		env = append(env, "CONTENT_TYPE="+ct)
	}
	if req.ContentLength > 0 {
		env = append(env, "CONTENT_LENGTH="+strconv.FormatInt(req.ContentLength, 10))
	}
	for _, f := range req.Header.Fields() {
		name := "HTTP_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		env = append(env, name+"="+f.Value)
	}
	return env
}
