package http

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, p Parser, raw string) (*Request, error) {
	t.Helper()
	req := &Request{}
	err := p.Parse(bufio.NewReader(strings.NewReader(raw)), req)
	return req, err
}

func TestParseSimpleGet(t *testing.T) {
	req, err := parse(t, Parser{},
		"GET /hello HTTP/1.1\r\nHost: example.com\r\nUser-Agent: ember-test\r\n\r\n")
	require.NoError(t, err)

	require.Equal(t, "GET", req.Method)
	require.Equal(t, "/hello", req.Path)
	require.Equal(t, "HTTP/1.1", req.Proto)
	require.Equal(t, "example.com", req.Host)
	require.Equal(t, "ember-test", req.UserAgent)
	require.Empty(t, req.Body)
	require.Nil(t, req.Query)
}

func TestParseHTTP10(t *testing.T) {
	req, err := parse(t, Parser{}, "GET / HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.0", req.Proto)
}

func TestParseBareLFLineEndings(t *testing.T) {
	req, err := parse(t, Parser{}, "GET /lf HTTP/1.1\nHost: a\n\n")
	require.NoError(t, err)
	require.Equal(t, "/lf", req.Path)
	require.Equal(t, "a", req.Host)
}

func TestParseQueryString(t *testing.T) {
	req, err := parse(t, Parser{}, "GET /search?q=go&page=2&flag HTTP/1.1\r\n\r\n")
	require.NoError(t, err)

	require.Equal(t, "/search", req.Path)
	require.Equal(t, "go", req.QueryValue("q"))
	require.Equal(t, "2", req.QueryValue("page"))
	require.Equal(t, "", req.QueryValue("flag"))
	require.Equal(t, "", req.QueryValue("missing"))
}

func TestParseContentLengthBody(t *testing.T) {
	req, err := parse(t, Parser{},
		"POST /upload HTTP/1.1\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello")
	require.NoError(t, err)

	require.Equal(t, "POST", req.Method)
	require.Equal(t, "text/plain", req.ContentType)
	require.Equal(t, []byte("hello"), req.Body)
}

func TestParseZeroContentLength(t *testing.T) {
	req, err := parse(t, Parser{}, "POST /x HTTP/1.1\r\nContent-Length: 0\r\n\r\n")
	require.NoError(t, err)
	require.Empty(t, req.Body)
}

func TestParseHeaderCaseInsensitive(t *testing.T) {
	req, err := parse(t, Parser{},
		"GET / HTTP/1.1\r\ncontent-type: application/json\r\nX-Custom: v\r\n\r\n")
	require.NoError(t, err)

	require.Equal(t, "application/json", req.ContentType)
	require.Equal(t, "application/json", req.Header("Content-Type"))
	require.Equal(t, "v", req.Header("x-custom"))
	require.Equal(t, "v", req.Header("X-CUSTOM"))
}

func TestParseChunkedBody(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			"two chunks",
			"POST /up HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
				"5\r\nhello\r\n6\r\n world\r\n0\r\n\r\n",
			"hello world",
		},
		{
			"chunk extension ignored",
			"POST /up HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
				"5;ext=1\r\nhello\r\n0\r\n\r\n",
			"hello",
		},
		{
			"trailers discarded",
			"POST /up HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n" +
				"3\r\nabc\r\n0\r\nX-Trailer: v\r\n\r\n",
			"abc",
		},
		{
			"empty body",
			"POST /up HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n0\r\n\r\n",
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := parse(t, Parser{}, tt.raw)
			require.NoError(t, err)
			require.Equal(t, tt.want, string(req.Body))
		})
	}
}

func TestParseRejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"unknown method", "BREW /x HTTP/1.1\r\n\r\n", ErrUnknownMethod},
		{"lowercase method", "get /x HTTP/1.1\r\n\r\n", ErrUnknownMethod},
		{"connect not supported", "CONNECT host:443 HTTP/1.1\r\n\r\n", ErrUnknownMethod},
		{"no spaces", "GARBAGE\r\n\r\n", ErrMalformedRequest},
		{"missing protocol", "GET /x\r\n\r\n", ErrMalformedRequest},
		{"empty target", "GET  HTTP/1.1\r\n\r\n", ErrMalformedRequest},
		{"unsupported protocol", "GET /x HTTP/2\r\n\r\n", ErrMalformedRequest},
		{"header without colon", "GET /x HTTP/1.1\r\nBadHeader\r\n\r\n", ErrMalformedHeader},
		{"header empty key", "GET /x HTTP/1.1\r\n: v\r\n\r\n", ErrMalformedHeader},
		{"bad content length", "POST /x HTTP/1.1\r\nContent-Length: abc\r\n\r\n", ErrMalformedHeader},
		{"negative content length", "POST /x HTTP/1.1\r\nContent-Length: -1\r\n\r\n", ErrMalformedHeader},
		{"unsupported transfer encoding", "POST /x HTTP/1.1\r\nTransfer-Encoding: gzip\r\n\r\n", ErrMalformedHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse(t, Parser{}, tt.raw)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseHeaderTooLarge(t *testing.T) {
	p := Parser{MaxHeaderBytes: 128}

	_, err := parse(t, p,
		"GET /x HTTP/1.1\r\nX-Big: "+strings.Repeat("a", 200)+"\r\n\r\n")
	require.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestParseHeaderBudgetSharedAcrossLines(t *testing.T) {
	p := Parser{MaxHeaderBytes: 64}

	// Each line is small, but together they blow the budget.
	raw := "GET /x HTTP/1.1\r\n"
	for i := 0; i < 10; i++ {
		raw += "X-H: aaaaaaaaaa\r\n"
	}
	raw += "\r\n"

	_, err := parse(t, p, raw)
	require.ErrorIs(t, err, ErrHeaderTooLarge)
}

func TestParseBodyTooLarge(t *testing.T) {
	p := Parser{MaxBodyBytes: 10}

	_, err := parse(t, p,
		"POST /x HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello hello")
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestParseChunkedBodyTooLarge(t *testing.T) {
	p := Parser{MaxBodyBytes: 8}

	_, err := parse(t, p,
		"POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n"+
			"5\r\nhello\r\n5\r\nworld\r\n0\r\n\r\n")
	require.ErrorIs(t, err, ErrBodyTooLarge)
}

func TestParseTruncatedBody(t *testing.T) {
	_, err := parse(t, Parser{},
		"POST /x HTTP/1.1\r\nContent-Length: 10\r\n\r\nhell")
	require.ErrorIs(t, err, ErrTruncatedBody)
}

func TestParseTruncatedChunk(t *testing.T) {
	_, err := parse(t, Parser{},
		"POST /x HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhe")
	require.ErrorIs(t, err, ErrTruncatedBody)
}

// An immediate close is io.EOF and nothing else; the dispatcher closes
// silently. A close mid-message is a malformed request.
func TestParseEOFClassification(t *testing.T) {
	_, err := parse(t, Parser{}, "")
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, parseFailureKind(err))

	_, err = parse(t, Parser{}, "GET /he")
	require.ErrorIs(t, err, ErrMalformedRequest)

	_, err = parse(t, Parser{}, "GET /x HTTP/1.1\r\nHost: a\r\n")
	require.ErrorIs(t, err, ErrMalformedHeader)
}

// parseFailureKind mirrors how callers bucket parse errors: any
// sentinel is a rejection, everything else is transport-level.
func parseFailureKind(err error) int {
	for i, sentinel := range []error{
		ErrMalformedRequest, ErrUnknownMethod, ErrMalformedHeader,
		ErrHeaderTooLarge, ErrBodyTooLarge, ErrTruncatedBody,
	} {
		if errors.Is(err, sentinel) {
			return i + 1
		}
	}
	return 0
}

func BenchmarkParseSimpleRequest(b *testing.B) {
	raw := "GET /hello HTTP/1.1\r\nHost: example.com\r\nUser-Agent: bench\r\nAccept: */*\r\n\r\n"
	p := Parser{}
	req := &Request{}
	sr := strings.NewReader(raw)
	br := bufio.NewReader(sr)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sr.Reset(raw)
		br.Reset(sr)
		req.Reset()
		if err := p.Parse(br, req); err != nil {
			b.Fatal(err)
		}
	}
}
