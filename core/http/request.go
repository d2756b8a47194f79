package http

import (
	"encoding/json"
	"net/textproto"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/proto"
)

// Request is a parsed HTTP request. Hot header fields live in dedicated
// struct members; everything else lands in ExtraHeaders under its
// canonical MIME key. Instances are pooled by the dispatcher, so
// handlers must treat them as read-only and must not keep references
// past the handler return.
type Request struct {
	Method string
	Path   string
	Proto  string

	// RemoteAddr is the peer address of the underlying connection.
	RemoteAddr string

	// Predefined common header fields.
	ContentType   string
	ContentLength string
	UserAgent     string
	Accept        string
	Host          string
	Connection    string

	// Extra headers, canonical keys, allocated only when needed.
	ExtraHeaders map[string]string

	// Query parameters from the request target.
	Query map[string]string

	// Params holds path parameters bound by the route table
	// (":id" and "*rest" segments).
	Params map[string]string

	// Request body, fully read and bounded by the parser.
	Body []byte
}

// Reset clears the request for reuse, keeping allocated capacity.
func (r *Request) Reset() {
	r.Method = ""
	r.Path = ""
	r.Proto = ""
	r.RemoteAddr = ""
	r.ContentType = ""
	r.ContentLength = ""
	r.UserAgent = ""
	r.Accept = ""
	r.Host = ""
	r.Connection = ""

	// Clear maps without freeing memory.
	if r.ExtraHeaders != nil {
		for k := range r.ExtraHeaders {
			delete(r.ExtraHeaders, k)
		}
	}
	if r.Query != nil {
		for k := range r.Query {
			delete(r.Query, k)
		}
	}
	r.Params = nil

	r.Body = r.Body[:0]
}

// SetHeader stores a header under its canonical key, so lookups are
// case-insensitive. Predefined fields take priority over the map.
func (r *Request) SetHeader(key, value string) {
	switch textproto.CanonicalMIMEHeaderKey(key) {
	case "Content-Type":
		r.ContentType = value
	case "Content-Length":
		r.ContentLength = value
	case "User-Agent":
		r.UserAgent = value
	case "Accept":
		r.Accept = value
	case "Host":
		r.Host = value
	case "Connection":
		r.Connection = value
	default:
		if r.ExtraHeaders == nil {
			r.ExtraHeaders = make(map[string]string)
		}
		r.ExtraHeaders[textproto.CanonicalMIMEHeaderKey(key)] = value
	}
}

// Header returns the value for key, matching case-insensitively.
func (r *Request) Header(key string) string {
	switch textproto.CanonicalMIMEHeaderKey(key) {
	case "Content-Type":
		return r.ContentType
	case "Content-Length":
		return r.ContentLength
	case "User-Agent":
		return r.UserAgent
	case "Accept":
		return r.Accept
	case "Host":
		return r.Host
	case "Connection":
		return r.Connection
	default:
		if r.ExtraHeaders == nil {
			return ""
		}
		return r.ExtraHeaders[textproto.CanonicalMIMEHeaderKey(key)]
	}
}

// Param returns the path parameter bound under name, or "".
func (r *Request) Param(name string) string {
	if r.Params == nil {
		return ""
	}
	return r.Params[name]
}

// QueryValue returns the query parameter for key, or "".
func (r *Request) QueryValue(key string) string {
	if r.Query == nil {
		return ""
	}
	return r.Query[key]
}

// Bind unmarshals the JSON body into v.
func (r *Request) Bind(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return errors.Wrap(err, "bind json body")
	}
	return nil
}

// BindProto unmarshals the protobuf body into m.
func (r *Request) BindProto(m proto.Message) error {
	if err := proto.Unmarshal(r.Body, m); err != nil {
		return errors.Wrap(err, "bind protobuf body")
	}
	return nil
}
