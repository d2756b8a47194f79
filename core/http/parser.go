package http

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Parse failure sentinels. The dispatcher maps these to 4xx responses;
// any other parser error is a transport failure and closes the
// connection without a response.
var (
	ErrMalformedRequest = errors.New("malformed request line")
	ErrUnknownMethod    = errors.New("unknown method")
	ErrMalformedHeader  = errors.New("malformed header")
	ErrHeaderTooLarge   = errors.New("header section too large")
	ErrBodyTooLarge     = errors.New("body too large")
	ErrTruncatedBody    = errors.New("truncated body")
)

// Default parser limits, applied when a field is zero or negative.
const (
	DefaultMaxHeaderBytes = 8 * 1024
	DefaultMaxBodyBytes   = 1 << 20
)

// Parser reads HTTP/1.x requests off a buffered reader. MaxHeaderBytes
// caps the request line plus the header section, MaxBodyBytes caps the
// decoded body; both fall back to the package defaults when unset.
// Reads inherit whatever deadline the caller set on the connection.
type Parser struct {
	MaxHeaderBytes int
	MaxBodyBytes   int
}

// Parse fills req from r. The request line, headers, and full body are
// consumed; req owns every byte it references afterwards.
//
// An io.EOF return means the peer closed without sending anything.
func (p *Parser) Parse(r *bufio.Reader, req *Request) error {
	remain := p.maxHeader()

	line, err := readLine(r, &remain)
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			// Partial request line, then the peer went away.
			return errors.Wrap(ErrMalformedRequest, "unterminated request line")
		}
		return err
	}
	if err := parseRequestLine(req, line); err != nil {
		return err
	}

	for {
		line, err := readLine(r, &remain)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errors.Wrap(ErrMalformedHeader, "unterminated header section")
			}
			return err
		}
		if line == "" {
			break
		}
		if err := parseHeaderLine(req, line); err != nil {
			return err
		}
	}

	return p.readBody(r, req)
}

func (p *Parser) maxHeader() int {
	if p.MaxHeaderBytes <= 0 {
		return DefaultMaxHeaderBytes
	}
	return p.MaxHeaderBytes
}

func (p *Parser) maxBody() int {
	if p.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return p.MaxBodyBytes
}

// readLine reads one CRLF- (or LF-) terminated line, charging its raw
// length against *remain. The budget check runs per chunk, so an
// oversized line fails before it is buffered whole.
func readLine(r *bufio.Reader, remain *int) (string, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		*remain -= len(chunk)
		if *remain < 0 {
			return "", ErrHeaderTooLarge
		}
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(line), err
	}
	n := len(line) - 1 // trailing \n
	if n > 0 && line[n-1] == '\r' {
		n--
	}
	return string(line[:n]), nil
}

// parseRequestLine splits "METHOD TARGET PROTO" and peels the query
// string off the target.
func parseRequestLine(req *Request, line string) error {
	sp1 := strings.IndexByte(line, ' ')
	if sp1 <= 0 {
		return ErrMalformedRequest
	}
	sp2 := strings.IndexByte(line[sp1+1:], ' ')
	if sp2 == -1 {
		return ErrMalformedRequest
	}
	sp2 += sp1 + 1

	method := line[:sp1]
	target := line[sp1+1 : sp2]
	proto := line[sp2+1:]

	if !validMethod(method) {
		return errors.Wrapf(ErrUnknownMethod, "%q", method)
	}
	if target == "" {
		return ErrMalformedRequest
	}
	if proto != "HTTP/1.1" && proto != "HTTP/1.0" {
		return errors.Wrapf(ErrMalformedRequest, "unsupported protocol %q", proto)
	}

	if idx := strings.IndexByte(target, '?'); idx != -1 {
		parseQuery(req, target[idx+1:])
		target = target[:idx]
	}

	req.Method = method
	req.Path = target
	req.Proto = proto
	return nil
}

// validMethod accepts the standard request methods. CONNECT is not one
// of them: tunnelling is not supported.
func validMethod(m string) bool {
	switch m {
	case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "TRACE":
		return true
	}
	return false
}

func parseHeaderLine(req *Request, line string) error {
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		return errors.Wrapf(ErrMalformedHeader, "%q", line)
	}
	key := strings.TrimSpace(line[:colon])
	if key == "" {
		return errors.Wrapf(ErrMalformedHeader, "%q", line)
	}
	req.SetHeader(key, strings.TrimSpace(line[colon+1:]))
	return nil
}

// parseQuery splits "a=1&b=2" pairs into the request's query map.
func parseQuery(req *Request, raw string) {
	if req.Query == nil {
		req.Query = make(map[string]string)
	}
	for raw != "" {
		pair := raw
		if idx := strings.IndexByte(raw, '&'); idx != -1 {
			pair, raw = raw[:idx], raw[idx+1:]
		} else {
			raw = ""
		}
		if pair == "" {
			continue
		}
		if eq := strings.IndexByte(pair, '='); eq != -1 {
			req.Query[pair[:eq]] = pair[eq+1:]
		} else {
			req.Query[pair] = ""
		}
	}
}

// readBody consumes the message body. Transfer-Encoding: chunked wins
// over Content-Length; without either header there is no body.
func (p *Parser) readBody(r *bufio.Reader, req *Request) error {
	if te := req.Header("Transfer-Encoding"); te != "" {
		if !strings.EqualFold(te, "chunked") {
			return errors.Wrapf(ErrMalformedHeader, "transfer-encoding %q", te)
		}
		return p.readChunkedBody(r, req)
	}

	cl := req.ContentLength
	if cl == "" {
		return nil
	}
	n, err := strconv.Atoi(cl)
	if err != nil || n < 0 {
		return errors.Wrapf(ErrMalformedHeader, "content-length %q", cl)
	}
	if n > p.maxBody() {
		return ErrBodyTooLarge
	}
	if n == 0 {
		return nil
	}

	if cap(req.Body) < n {
		req.Body = make([]byte, n)
	} else {
		req.Body = req.Body[:n]
	}
	if _, err := io.ReadFull(r, req.Body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncatedBody
		}
		return err
	}
	return nil
}

// readChunkedBody decodes a chunked body into req.Body, keeping the
// decoded total under the body limit.
func (p *Parser) readChunkedBody(r *bufio.Reader, req *Request) error {
	req.Body = req.Body[:0]
	total := 0
	for {
		size, err := readChunkSize(r)
		if err != nil {
			return err
		}
		if size == 0 {
			// Trailer section: discard lines until the blank one,
			// under a shared budget.
			remain := 1024
			for {
				line, err := readLine(r, &remain)
				if err != nil {
					if errors.Is(err, io.EOF) {
						return ErrTruncatedBody
					}
					return err
				}
				if line == "" {
					return nil
				}
			}
		}

		total += size
		if total > p.maxBody() {
			return ErrBodyTooLarge
		}

		start := len(req.Body)
		req.Body = append(req.Body, make([]byte, size)...)
		if _, err := io.ReadFull(r, req.Body[start:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return ErrTruncatedBody
			}
			return err
		}
		if err := readChunkCRLF(r); err != nil {
			return err
		}
	}
}

// readChunkSize reads a "SIZE[;ext]CRLF" chunk header.
func readChunkSize(r *bufio.Reader) (int, error) {
	remain := 64
	line, err := readLine(r, &remain)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, ErrTruncatedBody
		}
		if errors.Is(err, ErrHeaderTooLarge) {
			return 0, errors.Wrap(ErrMalformedRequest, "chunk size line too long")
		}
		return 0, err
	}
	if idx := strings.IndexByte(line, ';'); idx != -1 {
		line = line[:idx]
	}
	size, perr := strconv.ParseUint(strings.TrimSpace(line), 16, 31)
	if perr != nil {
		return 0, errors.Wrapf(ErrMalformedRequest, "chunk size %q", line)
	}
	return int(size), nil
}

// readChunkCRLF consumes the CRLF that terminates a chunk's data.
func readChunkCRLF(r *bufio.Reader) error {
	remain := 4
	line, err := readLine(r, &remain)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ErrTruncatedBody
		}
		if errors.Is(err, ErrHeaderTooLarge) {
			return errors.Wrap(ErrMalformedRequest, "missing chunk terminator")
		}
		return err
	}
	if line != "" {
		return errors.Wrap(ErrMalformedRequest, "missing chunk terminator")
	}
	return nil
}
