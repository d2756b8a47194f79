package router

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/emberhttp/ember/core/http"
)

// tagged returns a handler that records its tag when served.
func tagged(last *string, tag string) http.HandlerFunc {
	return func(req *http.Request, res *http.Response) error {
		*last = tag
		return nil
	}
}

func TestTableStaticMatch(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("GET", "/", tagged(&last, "root"))
	tbl.Register("GET", "/hello", tagged(&last, "hello"))
	tbl.Register("GET", "/hello/world", tagged(&last, "world"))

	tests := []struct {
		path        string
		shouldMatch bool
	}{
		{"/", true},
		{"/hello", true},
		{"/hello/world", true},
		{"/missing", false},
		{"/hello/", false}, // trailing slash is a different path
		{"/Hello", false},  // paths are case-sensitive
	}

	for _, tt := range tests {
		h, params := tbl.Resolve("GET", tt.path)
		require.Equal(t, tt.shouldMatch, h != nil, "path %s", tt.path)
		require.Nil(t, params)
	}
}

func TestTableMethodIsPartOfKey(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("GET", "/hello", tagged(&last, "get"))

	h, _ := tbl.Resolve("POST", "/hello")
	require.Nil(t, h, "a path registered under another method must not match")

	h, _ = tbl.Resolve("GET", "/hello")
	require.NotNil(t, h)
}

func TestTableLastWriteWins(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("GET", "/dup", tagged(&last, "first"))
	tbl.Register("GET", "/dup", tagged(&last, "second"))

	require.Equal(t, 1, tbl.Len())

	h, _ := tbl.Resolve("GET", "/dup")
	require.NotNil(t, h)
	require.NoError(t, h.Serve(nil, nil))
	require.Equal(t, "second", last)
}

func TestTableParamPrecedence(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("GET", "/user/admin", tagged(&last, "exact"))
	tbl.Register("GET", "/user/:id", tagged(&last, "param"))

	h, params := tbl.Resolve("GET", "/user/admin")
	require.NotNil(t, h)
	require.NoError(t, h.Serve(nil, nil))
	require.Equal(t, "exact", last)
	require.Nil(t, params)

	h, params = tbl.Resolve("GET", "/user/123")
	require.NotNil(t, h)
	require.NoError(t, h.Serve(nil, nil))
	require.Equal(t, "param", last)
	require.Equal(t, map[string]string{"id": "123"}, params)
}

func TestTableMultipleParams(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("GET", "/api/:version/users/:id", tagged(&last, "users"))

	h, params := tbl.Resolve("GET", "/api/v2/users/42")
	require.NotNil(t, h)
	require.Equal(t, map[string]string{"version": "v2", "id": "42"}, params)

	h, _ = tbl.Resolve("GET", "/api/v2/users")
	require.Nil(t, h, "missing trailing segment must not match")

	h, _ = tbl.Resolve("GET", "/api//users/42")
	require.Nil(t, h, "an empty segment must not satisfy a parameter")
}

func TestTableCatchAll(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("GET", "/files/*path", tagged(&last, "files"))

	h, params := tbl.Resolve("GET", "/files/a/b/c.txt")
	require.NotNil(t, h)
	require.Equal(t, map[string]string{"path": "a/b/c.txt"}, params)

	h, params = tbl.Resolve("GET", "/files/")
	require.NotNil(t, h)
	require.Equal(t, map[string]string{"path": ""}, params)

	h, _ = tbl.Resolve("GET", "/files")
	require.Nil(t, h, "the catch-all needs at least the trailing slash")
}

func TestTableNoBacktracking(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("GET", "/a/:x/c", tagged(&last, "param"))
	tbl.Register("GET", "/a/*rest", tagged(&last, "catch"))

	// /a/b/c descends the param branch and matches.
	h, params := tbl.Resolve("GET", "/a/b/c")
	require.NotNil(t, h)
	require.NoError(t, h.Serve(nil, nil))
	require.Equal(t, "param", last)
	require.Equal(t, map[string]string{"x": "b"}, params)

	// /a/b/d also descends the param branch, dead-ends at "d", and must
	// not fall back to the catch-all registered one level up.
	h, _ = tbl.Resolve("GET", "/a/b/d")
	require.Nil(t, h)
}

func TestTableRegisterPanics(t *testing.T) {
	tbl := New()
	var last string
	h := tagged(&last, "h")

	require.PanicsWithValue(t, "router: pattern must begin with '/'", func() {
		tbl.Register("GET", "hello", h)
	})
	require.PanicsWithValue(t, "router: pattern must begin with '/'", func() {
		tbl.Register("GET", "", h)
	})
	require.PanicsWithValue(t, "router: nil handler", func() {
		tbl.Register("GET", "/x", nil)
	})
	require.PanicsWithValue(t, "router: wildcards must be named", func() {
		tbl.Register("GET", "/x/:", h)
	})
	require.PanicsWithValue(t, "router: catch-all must be the final segment", func() {
		tbl.Register("GET", "/x/*rest/y", h)
	})
	require.PanicsWithValue(t, "router: wildcard must occupy a full path segment", func() {
		tbl.Register("GET", "/x/user_:id", h)
	})

	tbl.Register("GET", "/c/:id", h)
	require.Panics(t, func() {
		tbl.Register("GET", "/c/:name", h)
	})
}

func TestTableMethodNormalization(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("get", "/lower", tagged(&last, "lower"))

	h, _ := tbl.Resolve("GET", "/lower")
	require.NotNil(t, h)
}

func TestTableRoutesListing(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("GET", "/hello", tagged(&last, "a"))
	tbl.Register("POST", "/hello", tagged(&last, "b"))
	tbl.Register("GET", "/user/:id", tagged(&last, "c"))

	require.Equal(t, 3, tbl.Len())
	require.Equal(t, []string{
		"GET /hello",
		"GET /user/:id",
		"POST /hello",
	}, tbl.Routes())
}

func TestTableConcurrentRegisterAndResolve(t *testing.T) {
	tbl := New()
	var last string
	tbl.Register("GET", "/static", tagged(&last, "static"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				var l string
				tbl.Register("GET", fmt.Sprintf("/route/%d/%d", i, j), tagged(&l, "x"))
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				h, _ := tbl.Resolve("GET", "/static")
				require.NotNil(t, h)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 1+8*100, tbl.Len())
}
