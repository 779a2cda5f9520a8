// Package header implements the ordered, case-insensitive multi-valued
// field list shared by requests and responses, including RFC 822
// folded-line unfolding and CGI-environment ingestion.
//
// Grounded on the teacher's internal/mcp/protocol.go ordered name/value
// parsing idiom, adapted from JSON-RPC fields to RFC 822 header fields.
package header

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MaxFields caps the number of fields a single header may carry, preventing
// unbounded memory growth from a malicious or buggy client per spec.md §4.2.
const MaxFields = 256

// Mode controls how Load merges a field into an existing Header.
type Mode int

const (
	// Add always appends, allowing multiple fields of the same name (e.g.
	// Set-Cookie).
	Add Mode = iota
	// Override deletes any existing field with the same name, then appends.
	Override
	// Keep appends only if no field with that name already exists.
	Keep
)

// Field is a single (name, value) pair.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered sequence of fields preserving insertion order.
type Header struct {
	fields []Field
}

// New returns an empty Header.
func New() *Header { return &Header{} }

// Get returns the value of the first field matching name
// (case-insensitive), and whether one was found.
func (h *Header) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// GetAll returns every field value matching name, in insertion order.
func (h *Header) GetAll(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Add appends a field unconditionally (subject to MaxFields).
func (h *Header) Add(name, value string) error {
	if len(h.fields) >= MaxFields {
		return fmt.Errorf("header: too many fields (max %d)", MaxFields)
	}
	h.fields = append(h.fields, Field{Name: name, Value: value})
	return nil
}

// Set replaces the first existing field matching name, or appends if none
// exists — spec.md's set_field.
func (h *Header) Set(name, value string) error {
	for i := range h.fields {
		if strings.EqualFold(h.fields[i].Name, name) {
			h.fields[i].Value = value
			return nil
		}
	}
	return h.Add(name, value)
}

// LoadWith appends or merges a field per mode.
func (h *Header) LoadWith(mode Mode, name, value string) error {
	switch mode {
	case Override:
		h.Del(name)
		return h.Add(name, value)
	case Keep:
		if _, ok := h.Get(name); ok {
			return nil
		}
		return h.Add(name, value)
	default:
		return h.Add(name, value)
	}
}

// Del removes every field matching name.
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Fields returns the fields in insertion order. Callers must not mutate
// the returned slice's backing array.
func (h *Header) Fields() []Field { return h.fields }

// Load reads RFC 822-style "Name: value" lines from r until a blank line,
// unfolding continuation lines (a line beginning with SP or HTAB is joined
// onto the previous field's value) before each field is appended.
func (h *Header) Load(r *bufio.Reader) error {
	return h.LoadEx(r, Add)
}

// LoadEx is Load parameterised by merge mode.
func (h *Header) LoadEx(r *bufio.Reader, mode Mode) error {
	var curName, curValue string
	haveCurrent := false

	flush := func() error {
		if haveCurrent {
			if err := h.LoadWith(mode, curName, curValue); err != nil {
				return err
			}
			haveCurrent = false
		}
		return nil
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return flush()
		}
		if line[0] == ' ' || line[0] == '\t' {
			// Folded continuation line.
			curValue += " " + strings.TrimSpace(line)
		} else {
			if err := flush(); err != nil {
				return err
			}
			name, value, ok := strings.Cut(line, ":")
			if !ok {
				return fmt.Errorf("header: malformed field %q", line)
			}
			curName = strings.TrimSpace(name)
			curValue = strings.TrimSpace(value)
			haveCurrent = true
		}
		if err == io.EOF {
			return flush()
		}
	}
}

// LoadFromCGIEnv scans environ (the "KEY=value" strings from os.Environ())
// for HTTP_* variables, rewriting "_" to "-" in the field name (HTTP_X_FOO
// becomes "X-FOO"; the case of the name is left as it is).
func (h *Header) LoadFromCGIEnv(environ []string) error {
	const prefix = "HTTP_"
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(k, prefix) {
			continue
		}
		name := strings.ReplaceAll(k[len(prefix):], "_", "-")
		if err := h.Add(name, v); err != nil {
			return err
		}
	}
	return nil
}

// WriteTo serialises the header as RFC 822 lines terminated by a blank
// line, used by the response filter when it transitions to FLUSHING.
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var n int64
	for _, f := range h.fields {
		written, err := fmt.Fprintf(w, "%s: %s\r\n", f.Name, f.Value)
		n += int64(written)
		if err != nil {
			return n, err
		}
	}
	written, err := io.WriteString(w, "\r\n")
	n += int64(written)
	return n, err
}
