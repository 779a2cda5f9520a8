package httpreq

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ParseData parses the request body per spec.md §4.3: Content-Length is
// required, a post-timeout alarm wraps the whole read, and bodies larger
// than opts.PostMaxSize are rejected. urlencoded bodies are merged into the
// query string and args; multipart/form-data bodies are parsed into
// PostArgs and Uploads.
func (r *Request) ParseData() error {
	if r.Method != MethodPost && r.Method != MethodPut {
		return nil
	}
	cl, err := r.parseContentLength()
	if err != nil {
		return err
	}
	r.ContentLength = cl
	if cl > r.opts.PostMaxSize {
		return &StatusError{413, fmt.Sprintf("request body %d exceeds post_maxsize %d", cl, r.opts.PostMaxSize)}
	}

	alarm := r.opts.Wheel.Add(r.opts.PostTimeout, func() { _ = r.Stream.Close() })
	defer r.opts.Wheel.Cancel(alarm)

	ct, _ := r.Header.Get("Content-Type")
	mediaType, params, _ := mime.ParseMediaType(ct)

	switch {
	case mediaType == "multipart/form-data":
		boundary, ok := params["boundary"]
		if !ok {
			return &StatusError{400, "multipart/form-data without boundary"}
		}
		return r.parseMultipart(boundary, cl)
	default:
		// application/x-www-form-urlencoded, or no Content-Type at all —
		// spec.md treats absence the same as urlencoded.
		return r.parseURLEncodedBody(cl)
	}
}

func (r *Request) parseURLEncodedBody(cl int64) error {
	body := make([]byte, cl)
	if _, err := io.ReadFull(r.br, body); err != nil {
		return &StatusError{400, "short body: " + err.Error()}
	}
	if r.QueryString != "" {
		r.QueryString += "&" + string(body)
	} else {
		r.QueryString = string(body)
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return &StatusError{400, "malformed form body"}
	}
	for k, vs := range values {
		r.PostArgs[k] = append(r.PostArgs[k], vs...)
		r.MergedArgs[k] = append(r.MergedArgs[k], vs...)
	}
	return nil
}

// maxMemoryPart is not consulted by parseMultipart: a non-file part is
// read whole into memory with io.ReadAll whatever its size. That covers
// spec.md's "growing into an overflow buffer when a fixed stack buffer is
// too small" — Go's []byte naturally grows, so the "overflow buffer" is
// simply whatever io.ReadAll allocates.
const maxMemoryPart = 1 << 20 // 1 MiB

func (r *Request) parseMultipart(boundary string, cl int64) error {
	limited := io.LimitReader(r.br, cl)
	mr := multipart.NewReader(limited, boundary)

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return &StatusError{400, "malformed multipart body: " + err.Error()}
		}

		if cte := part.Header.Get("Content-Transfer-Encoding"); cte != "" && !strings.EqualFold(cte, "binary") {
			part.Close()
			return &StatusError{400, "unsupported Content-Transfer-Encoding " + cte}
		}

		fieldName := part.FormName()
		clientFilename := part.FileName()

		if clientFilename != "" {
			if err := r.storeUploadPart(part, fieldName, clientFilename); err != nil {
				part.Close()
				return err
			}
		} else {
			data, err := io.ReadAll(part)
			if err != nil {
				part.Close()
				return &StatusError{400, "malformed multipart part: " + err.Error()}
			}
			r.PostArgs[fieldName] = append(r.PostArgs[fieldName], string(data))
			r.MergedArgs[fieldName] = append(r.MergedArgs[fieldName], string(data))
		}
		part.Close()
	}
	return nil
}

func (r *Request) storeUploadPart(part *multipart.Part, fieldName, clientFilename string) error {
	// Reject path traversal in the client-supplied filename before it ever
	// touches a temp-file name — grounded on the teacher's upload/security.go
	// validator idiom.
	if strings.ContainsAny(clientFilename, "/\\") || strings.Contains(clientFilename, "..") {
		return &StatusError{400, "unsafe upload filename " + clientFilename}
	}

	tmp, err := os.CreateTemp(r.opts.TempDir, "klone_upload_*")
	if err != nil {
		return &StatusError{500, "cannot create temp file: " + err.Error()}
	}
	defer tmp.Close()

	n, err := io.Copy(tmp, part)
	if err != nil {
		os.Remove(tmp.Name())
		return &StatusError{400, "short upload body: " + err.Error()}
	}

	mimeType := part.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(clientFilename))
	}

	r.Uploads = append(r.Uploads, &Upload{
		FieldName:      fieldName,
		ClientFilename: clientFilename,
		TempPath:       tmp.Name(),
		MIMEType:       mimeType,
		Size:           n,
	})
	return nil
}
