package http

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/proto"

	"github.com/emberhttp/ember/core/pools"
)

// headerField keeps response headers in insertion order so serialized
// output is deterministic.
type headerField struct {
	key   string
	value string
}

// Response accumulates exactly one HTTP response: a status, ordered
// headers, and a body. Nothing touches the wire until WriteTo, which
// the dispatcher calls once per connection. Instances are pooled; the
// ownership rules on Handler apply.
type Response struct {
	status int
	fields []headerField
	body   []byte
}

// Reset clears the response for reuse, keeping allocated capacity.
func (r *Response) Reset() {
	r.status = 0
	r.fields = r.fields[:0]
	r.body = r.body[:0]
}

// SetStatus sets the status code without touching headers or body.
func (r *Response) SetStatus(code int) {
	r.status = code
}

// StatusCode returns the status set so far; 0 becomes 200 at write time.
func (r *Response) StatusCode() int {
	return r.status
}

// SetHeader sets a header, replacing any earlier value under a
// case-insensitively equal key. Content-Length and Connection are
// computed at write time and cannot be overridden.
func (r *Response) SetHeader(key, value string) {
	if strings.EqualFold(key, "Content-Length") || strings.EqualFold(key, "Connection") {
		return
	}
	for i := range r.fields {
		if strings.EqualFold(r.fields[i].key, key) {
			r.fields[i].value = value
			return
		}
	}
	r.fields = append(r.fields, headerField{key: key, value: value})
}

// Header returns the header value for key, matching case-insensitively.
func (r *Response) Header(key string) string {
	for i := range r.fields {
		if strings.EqualFold(r.fields[i].key, key) {
			return r.fields[i].value
		}
	}
	return ""
}

// Body returns the body accumulated so far.
func (r *Response) Body() []byte {
	return r.body
}

// Text responds with a text/plain body.
func (r *Response) Text(code int, body string) {
	r.status = code
	r.SetHeader("Content-Type", "text/plain")
	r.body = append(r.body[:0], body...)
}

// HTML responds with a text/html body.
func (r *Response) HTML(code int, body string) {
	r.status = code
	r.SetHeader("Content-Type", "text/html")
	r.body = append(r.body[:0], body...)
}

// JSON marshals v as the application/json body.
func (r *Response) JSON(code int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal json body")
	}
	r.status = code
	r.SetHeader("Content-Type", "application/json")
	r.body = append(r.body[:0], data...)
	return nil
}

// Proto marshals m as the application/x-protobuf body.
func (r *Response) Proto(code int, m proto.Message) error {
	data, err := proto.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "marshal protobuf body")
	}
	r.status = code
	r.SetHeader("Content-Type", "application/x-protobuf")
	r.body = append(r.body[:0], data...)
	return nil
}

// Bytes responds with an application/octet-stream body.
func (r *Response) Bytes(code int, body []byte) {
	r.Data(code, "application/octet-stream", body)
}

// Data responds with an arbitrary content type.
func (r *Response) Data(code int, contentType string, body []byte) {
	r.status = code
	r.SetHeader("Content-Type", contentType)
	r.body = append(r.body[:0], body...)
}

// NoContent responds with the given status and an empty body.
func (r *Response) NoContent(code int) {
	r.status = code
	r.body = r.body[:0]
}

// File responds with the file's contents, typed by extension. A missing
// file comes back as a 404-coded error so the dispatcher answers with
// the right status when the handler just returns it.
func (r *Response) File(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewError(StatusNotFound, err)
		}
		return errors.Wrapf(err, "read %s", path)
	}
	r.Data(StatusOK, contentTypeByExt(path), data)
	return nil
}

// WriteTo serializes the response in one buffered write: status line,
// headers in insertion order, computed Content-Length, Connection:
// close, blank line, body. It implements io.WriterTo.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	code := r.status
	if code == 0 {
		code = StatusOK
	}

	buf := pools.AcquireBuffer(len(r.body) + 256)
	b := (*buf)[:0]

	b = append(b, "HTTP/1.1 "...)
	b = appendInt(b, code)
	b = append(b, ' ')
	b = append(b, StatusText(code)...)
	b = append(b, '\r', '\n')
	for _, f := range r.fields {
		b = append(b, f.key...)
		b = append(b, ':', ' ')
		b = append(b, f.value...)
		b = append(b, '\r', '\n')
	}
	b = append(b, "Content-Length: "...)
	b = appendInt(b, len(r.body))
	b = append(b, "\r\nConnection: close\r\n\r\n"...)
	b = append(b, r.body...)

	n, err := w.Write(b)
	*buf = b
	pools.ReleaseBuffer(buf)
	return int64(n), err
}

// contentTypeByExt maps a file extension to its content type.
func contentTypeByExt(filename string) string {
	switch filepath.Ext(filename) {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".pdf":
		return "application/pdf"
	case ".zip":
		return "application/zip"
	case ".mp3":
		return "audio/mpeg"
	case ".mp4":
		return "video/mp4"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".svg":
		return "image/svg+xml"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

// appendInt appends the decimal form of i without allocating.
func appendInt(b []byte, i int) []byte {
	if i == 0 {
		return append(b, '0')
	}
	if i < 0 {
		b = append(b, '-')
		i = -i
	}

	var digits [20]byte
	n := 0
	for i > 0 {
		digits[n] = byte('0' + i%10)
		i /= 10
		n++
	}
	for n > 0 {
		n--
		b = append(b, digits[n])
	}
	return b
}
